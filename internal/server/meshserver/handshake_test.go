package meshserver

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/yndnr/rafter-go/internal/core/domain"
)

func testPeers(t *testing.T, ids ...domain.PeerID) *domain.PeerTable {
	t.Helper()
	addrs := make(map[domain.PeerID]string, len(ids))
	for i, id := range ids {
		addrs[id] = net.JoinHostPort("127.0.0.1", string(rune('1'+i))+"0000")
	}
	table, err := domain.NewPeerTable(addrs)
	if err != nil {
		t.Fatalf("NewPeerTable() error = %v", err)
	}
	return table
}

func TestHello_Encode(t *testing.T) {
	h := hello{Version: helloVersion, Flags: flagAuth, Sender: 0x0102030405060708, Target: 2}
	for i := range h.Nonce {
		h.Nonce[i] = byte(0xA0 + i)
	}

	buf := h.encode()
	if len(buf) != helloSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), helloSize)
	}
	if string(buf[0:4]) != "RFTR" {
		t.Errorf("magic = %q", buf[0:4])
	}
	if !bytes.Equal(buf[8:16], []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("sender bytes = %x, want big-endian", buf[8:16])
	}

	got, err := decodeHello(buf)
	if err != nil {
		t.Fatalf("decodeHello() error = %v", err)
	}
	if got != h {
		t.Errorf("decodeHello() = %+v, want %+v", got, h)
	}
}

func TestDecodeHello_Rejects(t *testing.T) {
	valid := (&hello{Version: helloVersion, Sender: 1, Target: 2}).encode()

	tests := []struct {
		name          string
		mutate func([]byte) []byte
	}{
		{name: "short frame", mutate: func(b []byte) []byte { return b[:20] }},
		{name: "bad magic", mutate: func(b []byte) []byte { b[0] = 'X'; return b }},
		{name: "future version", mutate: func(b []byte) []byte { b[4] = 9; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(append([]byte(nil), valid...))
			if _, err := decodeHello(buf); err == nil {
				t.Error("decodeHello() succeeded, want error")
			}
		})
	}
}

type handshakeResult struct {
	remote    domain.PeerID
	clientErr error
	serverErr error
}

// runHandshake runs client against server over a pipe, the client dialing target.
func runHandshake(client, server *handshaker, target domain.PeerID) handshakeResult {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	var res handshakeResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		res.remote, res.serverErr = server.server(b)
		if res.serverErr != nil {
			b.Close()
		}
	}()

	res.clientErr = client.client(a, target)
	if res.clientErr != nil {
		a.Close()
	}
	<-done
	return res
}

func TestHandshake(t *testing.T) {
	peers := testPeers(t, 1, 2, 3)
	secret := []byte("cluster-secret")

	tests := []struct {
		name          string
		client        *handshaker
		server        *handshaker
		target        domain.PeerID
		wantOK        bool
		wantClientErr bool
		wantServerErr bool
	}{
		{
			name:   "plain",
			client: &handshaker{local: 1, peers: peers, timeout: time.Second},
			server: &handshaker{local: 2, peers: peers, timeout: time.Second},
			target: 2,
			wantOK: true,
		},
		{
			name:   "authenticated",
			client: &handshaker{local: 3, peers: peers, secret: secret, timeout: time.Second},
			server: &handshaker{local: 2, peers: peers, secret: secret, timeout: time.Second},
			target: 2,
			wantOK: true,
		},
		{
			name:          "wrong secret",
			client:        &handshaker{local: 1, peers: peers, secret: []byte("other"), timeout: time.Second},
			server:        &handshaker{local: 2, peers: peers, secret: secret, timeout: time.Second},
			target:        2,
			wantClientErr: true,
			wantServerErr: true,
		},
		{
			name:          "client without secret",
			client:        &handshaker{local: 1, peers: peers, timeout: time.Second},
			server:        &handshaker{local: 2, peers: peers, secret: secret, timeout: time.Second},
			target:        2,
			wantClientErr: true,
			wantServerErr: true,
		},
		{
			name:          "unknown sender",
			client:        &handshaker{local: 9, peers: peers, timeout: time.Second},
			server:        &handshaker{local: 2, peers: peers, timeout: time.Second},
			target:        2,
			wantClientErr: true,
			wantServerErr: true,
		},
		{
			name:          "sender claims server id",
			client:        &handshaker{local: 2, peers: peers, timeout: time.Second},
			server:        &handshaker{local: 2, peers: peers, timeout: time.Second},
			target:        2,
			wantClientErr: true,
			wantServerErr: true,
		},
		{
			name:          "dialed the wrong node",
			client:        &handshaker{local: 1, peers: peers, timeout: time.Second},
			server:        &handshaker{local: 2, peers: peers, timeout: time.Second},
			target:        3,
			wantClientErr: true,
			wantServerErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runHandshake(tt.client, tt.server, tt.target)

			if tt.wantOK {
				if res.clientErr != nil || res.serverErr != nil {
					t.Fatalf("client err = %v, server err = %v", res.clientErr, res.serverErr)
				}
				if res.remote != tt.client.local {
					t.Errorf("server saw remote %d, want %d", res.remote, tt.client.local)
				}
				return
			}

			if tt.wantClientErr && !errors.Is(res.clientErr, domain.ErrClientHandshake) {
				t.Errorf("client err = %v, want ErrClientHandshake", res.clientErr)
			}
			if tt.wantServerErr && !errors.Is(res.serverErr, domain.ErrServerHandshake) {
				t.Errorf("server err = %v, want ErrServerHandshake", res.serverErr)
			}
		})
	}
}

func TestHandshake_ServerTimesOutSilentClient(t *testing.T) {
	peers := testPeers(t, 1, 2)
	server := &handshaker{local: 2, peers: peers, timeout: 50 * time.Millisecond}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	start := time.Now()
	_, err := server.server(b)
	if !errors.Is(err, domain.ErrServerHandshake) {
		t.Fatalf("server() error = %v, want ErrServerHandshake", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("server() took %s, want it bounded by the timeout", elapsed)
	}
}

func TestComputeMAC(t *testing.T) {
	var nonce [nonceSize]byte
	nonce[0] = 7

	a, err := computeMAC([]byte("k"), nonce, 1, 2)
	if err != nil {
		t.Fatalf("computeMAC() error = %v", err)
	}
	if len(a) != macSize {
		t.Fatalf("mac size = %d, want %d", len(a), macSize)
	}

	swapped, _ := computeMAC([]byte("k"), nonce, 2, 1)
	if bytes.Equal(a, swapped) {
		t.Error("mac does not bind the direction of the proof")
	}
	otherKey, _ := computeMAC([]byte("j"), nonce, 1, 2)
	if bytes.Equal(a, otherKey) {
		t.Error("mac does not depend on the secret")
	}

	if _, err := computeMAC(make([]byte, MaxSecretSize+1), nonce, 1, 2); err == nil {
		t.Error("computeMAC() accepted an oversized key")
	}
}
