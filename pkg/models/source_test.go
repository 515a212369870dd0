package models

import (
	"testing"
	"time"
)

func TestSourceMetadataRingBufferBound(t *testing.T) {
	s := NewSourceMetadata("https://example.com/sub", TierBulk, 0.5)
	base := time.Now()
	for i := 0; i < historySize+10; i++ {
		s.RecordPerformance(PerformanceRecord{
			Success:        true,
			ConfigCount:    i,
			ResponseTimeMs: 10,
			Timestamp:      base.Add(time.Duration(i) * time.Second),
		})
	}
	if s.historyLen != historySize {
		t.Fatalf("historyLen = %d, want %d", s.historyLen, historySize)
	}
	records := s.Records()
	if len(records) != historySize {
		t.Fatalf("Records() len = %d, want %d", len(records), historySize)
	}
	// oldest surviving record should be the 11th insert (index 10), since
	// the first 10 were evicted.
	if records[0].ConfigCount != 10 {
		t.Fatalf("oldest surviving ConfigCount = %d, want 10", records[0].ConfigCount)
	}
}

func TestReputationScoreRecency(t *testing.T) {
	s := NewSourceMetadata("https://example.com", TierPremium, 1.0)
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.RecordPerformance(PerformanceRecord{Success: true, Timestamp: now})
	}
	fresh := s.ReputationScore(now)
	stale := s.ReputationScore(now.Add(48 * time.Hour))
	if stale >= fresh {
		t.Fatalf("expected reputation to decay with age: fresh=%f stale=%f", fresh, stale)
	}
}

func TestAutoBlacklistAfterStreak(t *testing.T) {
	s := NewSourceMetadata("https://example.com", TierExperimental, 0.0)
	now := time.Now()
	// all failures, zero weight -> reputation stays near zero
	for i := 0; i < historySize; i++ {
		s.RecordPerformance(PerformanceRecord{Success: false, Timestamp: now})
	}
	var blacklisted bool
	for i := 0; i < lowReputationStreak; i++ {
		blacklisted = s.NoteReputationSample(now)
	}
	if !blacklisted {
		t.Fatal("expected auto-blacklist after consecutive low-reputation streak")
	}
}

func TestShouldUpdate(t *testing.T) {
	s := NewSourceMetadata("https://example.com", TierBulk, 0.5)
	now := time.Now()
	if !s.ShouldUpdate(time.Hour, now) {
		t.Fatal("never-fetched source should be due for update")
	}
	s.RecordPerformance(PerformanceRecord{Timestamp: now})
	if s.ShouldUpdate(time.Hour, now.Add(time.Minute)) {
		t.Fatal("source fetched a minute ago should not be due within an hour")
	}
	if !s.ShouldUpdate(time.Hour, now.Add(2*time.Hour)) {
		t.Fatal("source should be due after the frequency elapses")
	}
}
