package utils

import (
	"testing"

	"github.com/vpnmerger/aggregator/pkg/models"
)

func TestContentHashStability(t *testing.T) {
	a := &models.VPNConfiguration{Protocol: models.ProtocolVMess, Server: "Example.com", Port: 443, UUID: "u1"}
	b := &models.VPNConfiguration{Protocol: models.ProtocolVMess, Server: "example.com", Port: 443, UUID: "u1"}
	if ContentHash(a) != ContentHash(b) {
		t.Fatal("content hash should be case-insensitive on server")
	}

	c := &models.VPNConfiguration{Protocol: models.ProtocolVMess, Server: "example.com", Port: 444, UUID: "u1"}
	if ContentHash(a) == ContentHash(c) {
		t.Fatal("content hash should differ when port differs")
	}
}

func TestServerPortAndProtocolKeys(t *testing.T) {
	cfg := &models.VPNConfiguration{Protocol: models.ProtocolTrojan, Server: "Host.example", Port: 8443}
	if got := ServerPortKey(cfg); got != "host.example:8443" {
		t.Fatalf("ServerPortKey = %q", got)
	}
	if got := ServerProtocolKey(cfg); got != "host.example:trojan" {
		t.Fatalf("ServerProtocolKey = %q", got)
	}
}

func TestShardPickerStableAndDistributes(t *testing.T) {
	picker := NewShardPicker([]string{"shard-0", "shard-1", "shard-2", "shard-3"})
	keys := []string{"fetch:a", "fetch:b", "fetch:c", "fetch:d", "fetch:e", "fetch:f"}

	first := map[string]string{}
	for _, k := range keys {
		first[k] = picker.Pick(k)
	}
	for _, k := range keys {
		if got := picker.Pick(k); got != first[k] {
			t.Fatalf("Pick(%q) not stable: got %q, want %q", k, got, first[k])
		}
	}

	seen := map[string]bool{}
	for _, v := range first {
		seen[v] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected keys to distribute across multiple shards, got %v", seen)
	}
}
