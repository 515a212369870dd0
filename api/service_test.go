package api

import (
	"context"
	"testing"

	"github.com/vpnmerger/aggregator/pkg/models"
)

func TestHealth_DegradedWhenComponentsNotReady(t *testing.T) {
	original := readiness
	defer func() { readiness = original }()
	readiness = func() map[string]bool {
		return map[string]bool{"sourcemanager": false, "pipeline": true}
	}

	resp, err := Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || resp.MergerInitialized {
		t.Fatalf("expected degraded status, got %+v", resp)
	}
	if resp.Components["sourcemanager"] != "not_initialized" {
		t.Fatalf("expected sourcemanager reported not_initialized, got %+v", resp.Components)
	}
}

func TestHealth_HealthyWhenAllReady(t *testing.T) {
	original := readiness
	defer func() { readiness = original }()
	readiness = func() map[string]bool {
		return map[string]bool{"sourcemanager": true, "pipeline": true}
	}

	resp, err := Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || !resp.MergerInitialized {
		t.Fatalf("expected healthy status, got %+v", resp)
	}
}

func TestValidateURLs_MixedOutcomes(t *testing.T) {
	resp, err := ValidateURLs(context.Background(), &ValidateURLsRequest{
		URLs: []string{"https://example.com/sub", "ftp://bad-scheme.example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Checked != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 checked results, got %+v", resp)
	}
	if !resp.Results[0].Valid {
		t.Fatalf("expected https URL to be valid: %+v", resp.Results[0])
	}
	if resp.Results[1].Valid || resp.Results[1].Reason == "" {
		t.Fatalf("expected ftp URL to be rejected with a reason: %+v", resp.Results[1])
	}
}

func TestConfigurations_FiltersAndPaginates(t *testing.T) {
	cfgs := []*models.VPNConfiguration{
		{Protocol: models.ProtocolVMess, Server: "a", Port: 443, QualityScore: 0.9},
		{Protocol: models.ProtocolTrojan, Server: "b", Port: 443, QualityScore: 0.5},
		{Protocol: models.ProtocolVMess, Server: "c", Port: 443, QualityScore: 0.2},
	}
	cfgs[0].SetMetadata("location", "us")
	cfgs[1].SetMetadata("location", "de")
	cfgs[2].SetMetadata("location", "us")

	original := lastConfigurationsFunc
	defer func() { lastConfigurationsFunc = original }()
	lastConfigurationsFunc = func() []*models.VPNConfiguration { return cfgs }

	resp, err := Configurations(context.Background(), &ConfigurationsRequest{Protocol: "vmess"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 vmess configs, got %d", resp.Total)
	}
	if resp.Configs[0].QualityScore < resp.Configs[1].QualityScore {
		t.Fatal("expected descending quality score order")
	}

	resp, err = Configurations(context.Background(), &ConfigurationsRequest{MinQuality: 0.6})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected 1 config at or above min_quality 0.6, got %d", resp.Total)
	}

	resp, err = Configurations(context.Background(), &ConfigurationsRequest{Location: "us"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 configs in location us, got %d", resp.Total)
	}

	resp, err = Configurations(context.Background(), &ConfigurationsRequest{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Configs) != 1 {
		t.Fatalf("expected total 3 with a page of 1, got total=%d page=%d", resp.Total, len(resp.Configs))
	}
}
