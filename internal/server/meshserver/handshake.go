package meshserver

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/yndnr/rafter-go/internal/core/domain"
)

// Hello frame layout (big-endian):
//
//	magic "RFTR" | version u8 | flags u8 | reserved u16 | sender u64 | target u64 | nonce [16]
const (
	helloMagic   = "RFTR"
	helloVersion = 1
	helloSize    = 40
	nonceSize    = 16
	macSize      = blake2b.Size256

	// flagAuth marks a hello whose sender will prove the cluster secret.
	flagAuth uint8 = 1 << 0
)

// MaxSecretSize is the longest cluster secret accepted as a BLAKE2b key.
const MaxSecretSize = blake2b.Size

type hello struct {
	Version uint8
	Flags   uint8
	Sender  domain.PeerID
	Target  domain.PeerID
	Nonce   [nonceSize]byte
}

func (h *hello) encode() []byte {
	buf := make([]byte, helloSize)
	copy(buf[0:4], helloMagic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.Sender))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.Target))
	copy(buf[24:40], h.Nonce[:])
	return buf
}

func decodeHello(buf []byte) (hello, error) {
	var h hello
	if len(buf) != helloSize {
		return h, fmt.Errorf("hello frame is %d bytes, want %d", len(buf), helloSize)
	}
	if string(buf[0:4]) != helloMagic {
		return h, fmt.Errorf("bad magic %q", buf[0:4])
	}
	h.Version = buf[4]
	if h.Version != helloVersion {
		return h, fmt.Errorf("unsupported version %d", h.Version)
	}
	h.Flags = buf[5]
	h.Sender = domain.PeerID(binary.BigEndian.Uint64(buf[8:16]))
	h.Target = domain.PeerID(binary.BigEndian.Uint64(buf[16:24]))
	copy(h.Nonce[:], buf[24:40])
	return h, nil
}

// handshaker runs both sides of the hello exchange for the local node.
type handshaker struct {
	local   domain.PeerID
	peers   *domain.PeerTable
	secret  []byte
	timeout time.Duration
}

func (hs *handshaker) flags() uint8 {
	if len(hs.secret) > 0 {
		return flagAuth
	}
	return 0
}

func (hs *handshaker) newHello(target domain.PeerID) (hello, error) {
	h := hello{
		Version: helloVersion,
		Flags:   hs.flags(),
		Sender:  hs.local,
		Target:  target,
	}
	if _, err := rand.Read(h.Nonce[:]); err != nil {
		return h, fmt.Errorf("generate nonce: %w", err)
	}
	return h, nil
}

// client runs the dialing side against remote.
func (hs *handshaker) client(conn net.Conn, remote domain.PeerID) error {
	if err := hs.clientExchange(conn, remote); err != nil {
		return domain.ErrClientHandshake.Detailf("peer %s", remote).Wrap(err)
	}
	return nil
}

func (hs *handshaker) clientExchange(conn net.Conn, remote domain.PeerID) error {
	if hs.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(hs.timeout)); err != nil {
			return err
		}
		defer conn.SetDeadline(time.Time{})
	}

	ours, err := hs.newHello(remote)
	if err != nil {
		return err
	}
	if _, err := conn.Write(ours.encode()); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	theirs, err := readHello(conn)
	if err != nil {
		return err
	}
	if theirs.Sender != remote {
		return fmt.Errorf("expected peer %s, got %s", remote, theirs.Sender)
	}
	if theirs.Target != hs.local {
		return fmt.Errorf("peer addressed %s, local id is %s", theirs.Target, hs.local)
	}
	if theirs.Flags&flagAuth != ours.Flags&flagAuth {
		return fmt.Errorf("authentication mode mismatch")
	}
	if ours.Flags&flagAuth == 0 {
		return nil
	}

	proof, err := computeMAC(hs.secret, theirs.Nonce, hs.local, remote)
	if err != nil {
		return err
	}
	if _, err := conn.Write(proof); err != nil {
		return fmt.Errorf("send mac: %w", err)
	}
	return verifyMAC(conn, hs.secret, ours.Nonce, remote, hs.local)
}

// server runs the accepting side and returns the authenticated remote id.
func (hs *handshaker) server(conn net.Conn) (domain.PeerID, error) {
	remote, err := hs.serverExchange(conn)
	if err != nil {
		return 0, domain.ErrServerHandshake.Detailf("from %s", conn.RemoteAddr()).Wrap(err)
	}
	return remote, nil
}

func (hs *handshaker) serverExchange(conn net.Conn) (domain.PeerID, error) {
	if hs.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(hs.timeout)); err != nil {
			return 0, err
		}
		defer conn.SetDeadline(time.Time{})
	}

	theirs, err := readHello(conn)
	if err != nil {
		return 0, err
	}
	remote := theirs.Sender
	switch {
	case remote == hs.local:
		return 0, fmt.Errorf("peer claims local id %s", remote)
	case !hs.peers.Contains(remote):
		return 0, fmt.Errorf("unknown peer %s", remote)
	case theirs.Target != hs.local:
		return 0, fmt.Errorf("peer %s addressed %s, local id is %s", remote, theirs.Target, hs.local)
	case theirs.Flags&flagAuth != hs.flags():
		return 0, fmt.Errorf("authentication mode mismatch with peer %s", remote)
	}

	ours, err := hs.newHello(remote)
	if err != nil {
		return 0, err
	}
	if _, err := conn.Write(ours.encode()); err != nil {
		return 0, fmt.Errorf("send hello: %w", err)
	}
	if ours.Flags&flagAuth == 0 {
		return remote, nil
	}

	if err := verifyMAC(conn, hs.secret, ours.Nonce, remote, hs.local); err != nil {
		return 0, err
	}
	proof, err := computeMAC(hs.secret, theirs.Nonce, hs.local, remote)
	if err != nil {
		return 0, err
	}
	if _, err := conn.Write(proof); err != nil {
		return 0, fmt.Errorf("send mac: %w", err)
	}
	return remote, nil
}

func readHello(r io.Reader) (hello, error) {
	buf := make([]byte, helloSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return hello{}, fmt.Errorf("read hello: %w", err)
	}
	return decodeHello(buf)
}

// computeMAC proves that prover holds secret, bound to the verifier's nonce.
func computeMAC(secret []byte, nonce [nonceSize]byte, prover, verifier domain.PeerID) ([]byte, error) {
	h, err := blake2b.New256(secret)
	if err != nil {
		return nil, fmt.Errorf("init mac: %w", err)
	}
	h.Write(nonce[:])
	var ids [16]byte
	binary.BigEndian.PutUint64(ids[0:8], uint64(prover))
	binary.BigEndian.PutUint64(ids[8:16], uint64(verifier))
	h.Write(ids[:])
	return h.Sum(nil), nil
}

func verifyMAC(r io.Reader, secret []byte, nonce [nonceSize]byte, prover, verifier domain.PeerID) error {
	got := make([]byte, macSize)
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("read mac: %w", err)
	}
	want, err := computeMAC(secret, nonce, prover, verifier)
	if err != nil {
		return err
	}
	if !hmac.Equal(got, want) {
		return fmt.Errorf("peer %s failed authentication", prover)
	}
	return nil
}
