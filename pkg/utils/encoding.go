// Package utils provides serialization utilities for cache entries and events.
//
// This file implements marshal/unmarshal helpers. Every helper uses JSON
// (stdlib, portable, human-readable); no other encoding can be selected.
//
// Design Notes:
//   - JSON for portability and debugging
//   - CompactJSON passes the input through json.RawMessage
//   - All encoding errors include context for debugging
package utils

import (
	"encoding/json"
	"fmt"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// MarshalCacheEntry serializes an L1 cache entry to bytes, for storage in
// the L2/L3 tiers.
func MarshalCacheEntry(e *models.CacheEntry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil entry")
	}
	return json.Marshal(e)
}

// UnmarshalCacheEntry deserializes an L1 cache entry from bytes.
func UnmarshalCacheEntry(data []byte) (*models.CacheEntry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// MarshalEvent serializes an event to bytes. Generic function for any event type.
func MarshalEvent(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("cannot marshal nil event")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return data, nil
}

// UnmarshalEvent deserializes an event from bytes into the provided pointer.
func UnmarshalEvent(data []byte, event interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmarshal empty data")
	}

	if event == nil {
		return fmt.Errorf("event pointer cannot be nil")
	}

	if err := json.Unmarshal(data, event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return nil
}

// MarshalJSON is a convenience wrapper for encoding arbitrary data.
func MarshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// UnmarshalJSON is a convenience wrapper for decoding arbitrary data.
func UnmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmarshal empty data")
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// CompactJSON compacts JSON by removing whitespace.
func CompactJSON(data []byte) ([]byte, error) {
	var compacted json.RawMessage
	if err := json.Unmarshal(data, &compacted); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	return json.Marshal(compacted)
}

// PrettyJSON formats JSON with indentation for human readability.
func PrettyJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format JSON: %w", err)
	}

	return pretty, nil
}

// EstimateEncodedSize estimates the encoded size of a value in bytes.
func EstimateEncodedSize(v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
