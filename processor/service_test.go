package processor

import (
	"context"
	"testing"

	"github.com/vpnmerger/aggregator/pkg/models"
)

func TestService_Process_DropsInvalidAndUnsafe(t *testing.T) {
	s := NewService(nil, nil, nil)
	configs := []*models.VPNConfiguration{
		{Protocol: models.ProtocolVLESS, Server: "example.com", Port: 443, UUID: "u"},
		{Protocol: models.ProtocolVLESS, Server: "", Port: 443, UUID: "u"},        // invalid: empty server
		{Protocol: models.ProtocolVLESS, Server: "127.0.0.1", Port: 443, UUID: "u"}, // unsafe: loopback
		{Protocol: "bogus", Server: "example.com", Port: 443},                      // invalid protocol
	}
	resp := s.Process(context.Background(), configs, StrategyExact, "")
	if len(resp.Configs) != 1 {
		t.Fatalf("expected 1 surviving configuration, got %d: %+v", len(resp.Configs), resp.Configs)
	}
	if resp.DroppedUnsafe != 3 {
		t.Fatalf("expected 3 dropped, got %d", resp.DroppedUnsafe)
	}
}

func TestService_Process_DeduplicatesAcrossSources(t *testing.T) {
	s := NewService(nil, nil, nil)
	configs := []*models.VPNConfiguration{
		{Protocol: models.ProtocolVMess, Server: "1.2.3.4", Port: 443, UUID: "same", SourceURL: "https://a"},
		{Protocol: models.ProtocolVMess, Server: "1.2.3.4", Port: 443, UUID: "same", SourceURL: "https://b"},
	}
	resp := s.Process(context.Background(), configs, StrategyExact, "")
	if len(resp.Configs) != 1 {
		t.Fatalf("expected dedup to collapse identical configs, got %d", len(resp.Configs))
	}
	if resp.Deduplicated != 1 {
		t.Fatalf("expected Deduplicated=1, got %d", resp.Deduplicated)
	}
}

func TestService_Process_EmptyInput(t *testing.T) {
	s := NewService(nil, nil, nil)
	resp := s.Process(context.Background(), nil, StrategyExact, "")
	if len(resp.Configs) != 0 {
		t.Fatalf("expected empty output for empty input")
	}
}
