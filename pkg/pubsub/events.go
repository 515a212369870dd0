// Package pubsub provides topic names and event type definitions for the
// aggregator's event-driven coordination: source-registry changes invalidate
// fetcher cache tags, job lifecycle transitions are broadcast for progress
// polling, and source reliability changes drive monitoring alerts.
//
// Event versioning strategy:
// - Version 1: Initial schema
// - Future versions: Add fields, never remove (backward compatible)
package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const EventVersion1 = 1

// ConfigurationChangeEvent is published when a source is added or removed
// from the registry. On a removal the fetcher invalidates that source's
// "fetch:{url_hash}" cache tag; an addition invalidates nothing.
type ConfigurationChangeEvent struct {
	Version     int       `json:"version"`
	Service     string    `json:"service"`
	URL         string    `json:"url"`
	Action      string    `json:"action"` // "add" or "remove"
	TriggeredAt time.Time `json:"triggered_at"`
	RequestID   string    `json:"request_id"`
}

func (e *ConfigurationChangeEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Service == "" {
		return errors.New("service field is required")
	}
	if e.Action != "add" && e.Action != "remove" {
		return fmt.Errorf("invalid action: %s", e.Action)
	}
	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}
	return nil
}

func (e *ConfigurationChangeEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// SourceUpdateEvent reports the outcome of one fetch attempt for a source.
// It is consumed by the source manager and monitoring; no subscriber evicts
// cache entries on it.
type SourceUpdateEvent struct {
	Version     int       `json:"version"`
	Service     string    `json:"service"`
	URL         string    `json:"url"`
	URLHash     string    `json:"url_hash"`
	Success     bool      `json:"success"`
	TriggeredAt time.Time `json:"triggered_at"`
	RequestID   string    `json:"request_id"`
}

func (e *SourceUpdateEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Service == "" {
		return errors.New("service field is required")
	}
	if e.URLHash == "" {
		return errors.New("url_hash is required")
	}
	return nil
}

// SourceBlacklistedEvent is published when the source manager auto-
// blacklists a source after a consecutive low-reputation streak.
type SourceBlacklistedEvent struct {
	Version     int       `json:"version"`
	URL         string    `json:"url"`
	Reason      string    `json:"reason"`
	TriggeredAt time.Time `json:"triggered_at"`
	RequestID   string    `json:"request_id"`
}

func (e *SourceBlacklistedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.URL == "" {
		return errors.New("url is required")
	}
	if e.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

// JobProgressEvent is published on every job progress update so that
// monitoring/dashboard consumers can track long-running pipeline runs
// without polling the job store.
type JobProgressEvent struct {
	Version     int       `json:"version"`
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
}

func (e *JobProgressEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.JobID == "" {
		return errors.New("job_id is required")
	}
	if e.Progress < 0 || e.Progress > 1 {
		return fmt.Errorf("progress %f out of range [0,1]", e.Progress)
	}
	return nil
}
