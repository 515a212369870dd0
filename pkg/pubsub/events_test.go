package pubsub

import (
	"encoding/json"
	"testing"
	"time"
)

func TestConfigurationChangeEventValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   ConfigurationChangeEvent
		wantErr bool
	}{
		{
			name: "valid add",
			event: ConfigurationChangeEvent{
				Version:     EventVersion1,
				Service:     "sourcemanager",
				URL:         "https://example.com/sub",
				Action:      "add",
				TriggeredAt: now,
				RequestID:   "req-123",
			},
			wantErr: false,
		},
		{
			name: "invalid version",
			event: ConfigurationChangeEvent{
				Version: 999, Service: "sourcemanager", Action: "add", TriggeredAt: now,
			},
			wantErr: true,
		},
		{
			name: "missing service",
			event: ConfigurationChangeEvent{
				Version: EventVersion1, Action: "add", TriggeredAt: now,
			},
			wantErr: true,
		},
		{
			name: "bad action",
			event: ConfigurationChangeEvent{
				Version: EventVersion1, Service: "sourcemanager", Action: "rename", TriggeredAt: now,
			},
			wantErr: true,
		},
		{
			name: "zero triggered_at",
			event: ConfigurationChangeEvent{
				Version: EventVersion1, Service: "sourcemanager", Action: "add",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigurationChangeEventJSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	event := ConfigurationChangeEvent{
		Version: EventVersion1, Service: "sourcemanager", URL: "https://example.com",
		Action: "remove", TriggeredAt: now, RequestID: "req-1",
	}
	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	var decoded ConfigurationChangeEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.URL != event.URL || decoded.Action != event.Action {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestSourceUpdateEventValidate(t *testing.T) {
	now := time.Now()
	valid := SourceUpdateEvent{
		Version: EventVersion1, Service: "fetcher", URL: "https://example.com",
		URLHash: "abc123", Success: true, TriggeredAt: now,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}

	missingHash := valid
	missingHash.URLHash = ""
	if err := missingHash.Validate(); err == nil {
		t.Fatal("expected error for missing url_hash")
	}
}

func TestSourceBlacklistedEventValidate(t *testing.T) {
	now := time.Now()
	valid := SourceBlacklistedEvent{URL: "https://example.com", Reason: "low_reputation", Version: EventVersion1, TriggeredAt: now}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	missing := valid
	missing.Reason = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for missing reason")
	}
}

func TestJobProgressEventValidate(t *testing.T) {
	valid := JobProgressEvent{Version: EventVersion1, JobID: "job-1", Status: "running", Progress: 0.5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	outOfRange := valid
	outOfRange.Progress = 1.5
	if err := outOfRange.Validate(); err == nil {
		t.Fatal("expected error for out-of-range progress")
	}
}

func TestAllTopicsAreValid(t *testing.T) {
	for _, topic := range AllTopics() {
		if !IsValidTopic(topic) {
			t.Errorf("topic %q reported invalid by IsValidTopic", topic)
		}
	}
	if IsValidTopic("not.a.real.topic") {
		t.Error("expected unknown topic to be invalid")
	}
}
