package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/yndnr/rafter-go/internal/core/domain"
)

func TestLocalNode(t *testing.T) {
	cfg := threeNodes()

	entry, id, err := LocalNode(cfg, "beta")
	if err != nil {
		t.Fatalf("LocalNode() error = %v", err)
	}
	if id != 2 || entry.Listen != "10.0.0.2:7000" {
		t.Errorf("LocalNode() = %+v, %d", entry, id)
	}

	if _, _, err := LocalNode(cfg, "delta"); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("LocalNode(delta) error = %v, want ErrConfiguration", err)
	}
}

func TestToPeerTable(t *testing.T) {
	peers, err := ToPeerTable(threeNodes())
	if err != nil {
		t.Fatalf("ToPeerTable() error = %v", err)
	}
	if peers.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", peers.Len())
	}
	if addr, _ := peers.Addr(3); addr != "10.0.0.3:7000" {
		t.Errorf("Addr(3) = %q, want the listen address", addr)
	}

	cfg := threeNodes()
	cfg.Nodes["beta"] = NodeEntry{ID: 1, Listen: "10.0.0.2:7000"}
	if _, err := ToPeerTable(cfg); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("duplicate id error = %v, want ErrConfiguration", err)
	}
}

func TestToMeshConfig(t *testing.T) {
	cfg := threeNodes()
	cfg.Mesh.Secret = "k"
	cfg.Mesh.ReuseAddr = true
	cfg.Mesh.BindDialToListen = true

	peers, err := ToPeerTable(cfg)
	if err != nil {
		t.Fatalf("ToPeerTable() error = %v", err)
	}
	mc, err := ToMeshConfig(cfg, "gamma", peers, nil)
	if err != nil {
		t.Fatalf("ToMeshConfig() error = %v", err)
	}

	if mc.Local != 3 || mc.Peers != peers {
		t.Errorf("Local = %d, Peers = %p", mc.Local, mc.Peers)
	}
	if string(mc.Secret) != "k" {
		t.Errorf("Secret = %q", mc.Secret)
	}
	if mc.ListenerHook == nil || !mc.BindDialToListen {
		t.Error("address reuse settings were not carried over")
	}
	if mc.BackoffMin != cfg.Mesh.BackoffMin || mc.AcceptBurst != cfg.Mesh.AcceptBurst {
		t.Errorf("timing settings not carried over: %+v", mc)
	}

	cfg.Mesh.Secret = ""
	cfg.Mesh.ReuseAddr = false
	if mc, _ = ToMeshConfig(cfg, "gamma", peers, nil); mc.Secret != nil || mc.ListenerHook != nil {
		t.Error("disabled settings produced a secret or hook")
	}
}

func TestToRaftConfig(t *testing.T) {
	cfg := threeNodes()
	cfg.Raft.Bootstrap = true
	cfg.Raft.DataDir = t.TempDir()

	rc, err := ToRaftConfig(cfg, "alpha", nil)
	if err != nil {
		t.Fatalf("ToRaftConfig() error = %v", err)
	}
	if rc.Local != 1 || !rc.Bootstrap || rc.DataDir != filepath.Join(cfg.Raft.DataDir, "alpha") {
		t.Errorf("ToRaftConfig() = %+v", rc)
	}
	if len(rc.Voters) != 3 || rc.Voters[2] != "10.0.0.2:7100" {
		t.Errorf("Voters = %v, want raft addresses of all nodes", rc.Voters)
	}
}

func TestToDiscoveryConfig(t *testing.T) {
	cfg := threeNodes()
	peers, _ := ToPeerTable(cfg)

	dc, err := ToDiscoveryConfig(cfg, "beta", peers, nil)
	if err != nil {
		t.Fatalf("ToDiscoveryConfig() error = %v", err)
	}
	if dc.Local != 2 || dc.BindAddr != "10.0.0.2:7200" {
		t.Errorf("Local = %d, BindAddr = %q", dc.Local, dc.BindAddr)
	}
	want := []string{"10.0.0.1:7200", "10.0.0.3:7200"}
	if len(dc.Seeds) != len(want) || dc.Seeds[0] != want[0] || dc.Seeds[1] != want[1] {
		t.Errorf("Seeds = %v, want %v", dc.Seeds, want)
	}
}
