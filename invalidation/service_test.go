package invalidation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockAuditLogger provides a test implementation of audit logging.
type MockAuditLogger struct {
	mu   sync.Mutex
	logs []AuditLog
}

func NewMockAuditLogger() *MockAuditLogger {
	return &MockAuditLogger{
		logs: make([]AuditLog, 0),
	}
}

func (m *MockAuditLogger) Insert(ctx context.Context, log AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *MockAuditLogger) GetRecent(ctx context.Context, limit, offset int, tagFilter string) ([]AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Filter by tag if provided
	filtered := make([]AuditLog, 0)
	for i := len(m.logs) - 1; i >= 0; i-- {
		log := m.logs[i]
		if tagFilter == "" || log.TagSummary == tagFilter {
			filtered = append(filtered, log)
		}
	}

	// Apply pagination
	if offset >= len(filtered) {
		return []AuditLog{}, nil
	}

	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[offset:end], nil
}

func (m *MockAuditLogger) GetCount(ctx context.Context, tagFilter string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tagFilter == "" {
		return len(m.logs), nil
	}

	count := 0
	for _, log := range m.logs {
		if log.TagSummary == tagFilter {
			count++
		}
	}
	return count, nil
}

func (m *MockAuditLogger) GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]AuditLog, 0)
	for _, log := range m.logs {
		if log.RequestID == requestID {
			result = append(result, log)
		}
	}
	return result, nil
}

// setupTestService creates a test service with mocks.
func setupTestService() *Service {
	return &Service{
		auditLogger: NewMockAuditLogger(),
		metrics:     &Metrics{},
	}
}

func TestService_InvalidateTags(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	req := &InvalidateTagsRequest{
		Tags:        []string{"sources", "fetch:abc123"},
		TriggeredBy: "test",
		RequestID:   "test-req-1",
	}

	resp, err := svc.InvalidateTags(ctx, req)
	if err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}

	if !resp.Success {
		t.Error("Expected success=true")
	}

	if resp.InvalidatedCount != 2 {
		t.Errorf("Expected 2 invalidated, got %d", resp.InvalidatedCount)
	}

	if resp.RequestID != "test-req-1" {
		t.Errorf("Expected request ID test-req-1, got %s", resp.RequestID)
	}

	// Verify metrics
	if svc.metrics.TotalInvalidations.Load() != 1 {
		t.Errorf("Expected 1 invalidation metric, got %d", svc.metrics.TotalInvalidations.Load())
	}
}

func TestService_InvalidateTags_Deduplication(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	req := &InvalidateTagsRequest{
		Tags:        []string{"fetch:abc", "fetch:abc", "sources"},
		TriggeredBy: "test",
	}

	resp, err := svc.InvalidateTags(ctx, req)
	if err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}

	// Should deduplicate to 2 unique tags
	if resp.InvalidatedCount != 2 {
		t.Errorf("Expected 2 unique tags after deduplication, got %d", resp.InvalidatedCount)
	}
}

func TestService_InvalidateTags_EmptyTags(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	req := &InvalidateTagsRequest{
		Tags:        []string{},
		TriggeredBy: "test",
	}

	_, err := svc.InvalidateTags(ctx, req)
	if err == nil {
		t.Error("Expected error for empty tags")
	}
}

func TestService_GetMetrics(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	// Perform some invalidations
	svc.InvalidateTags(ctx, &InvalidateTagsRequest{
		Tags:        []string{"sources"},
		TriggeredBy: "test",
	})
	svc.InvalidateTags(ctx, &InvalidateTagsRequest{
		Tags:        []string{"fetch:abc123"},
		TriggeredBy: "test",
	})

	// Get metrics
	metrics, err := svc.GetMetrics(ctx)
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}

	if metrics.TotalInvalidations != 2 {
		t.Errorf("Expected 2 total invalidations, got %d", metrics.TotalInvalidations)
	}
}

func TestMockAuditLogger_Insert(t *testing.T) {
	logger := NewMockAuditLogger()
	ctx := context.Background()

	log := AuditLog{
		TagSummary:  "sources",
		Tags:        []string{"sources"},
		TriggeredBy: "test",
		Timestamp:   time.Now(),
		RequestID:   "req-1",
	}

	err := logger.Insert(ctx, log)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Verify insertion
	logs, err := logger.GetRecent(ctx, 10, 0, "")
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(logs) != 1 {
		t.Errorf("Expected 1 log, got %d", len(logs))
	}

	if logs[0].TagSummary != "sources" {
		t.Errorf("Expected tag summary sources, got %s", logs[0].TagSummary)
	}
}

func TestMockAuditLogger_GetRecent_Pagination(t *testing.T) {
	logger := NewMockAuditLogger()
	ctx := context.Background()

	// Insert multiple logs
	for i := 0; i < 10; i++ {
		logger.Insert(ctx, AuditLog{
			TagSummary:  fmt.Sprintf("fetch:%d", i),
			Tags:        []string{fmt.Sprintf("fetch:%d", i)},
			TriggeredBy: "test",
			Timestamp:   time.Now(),
			RequestID:   fmt.Sprintf("req-%d", i),
		})
	}

	// Get first page
	logs, err := logger.GetRecent(ctx, 5, 0, "")
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(logs) != 5 {
		t.Errorf("Expected 5 logs, got %d", len(logs))
	}

	// Get second page
	logs, err = logger.GetRecent(ctx, 5, 5, "")
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(logs) != 5 {
		t.Errorf("Expected 5 logs on second page, got %d", len(logs))
	}
}

func TestMockAuditLogger_GetByRequestID(t *testing.T) {
	logger := NewMockAuditLogger()
	ctx := context.Background()

	// Insert logs with different request IDs
	logger.Insert(ctx, AuditLog{
		TagSummary:  "sources",
		RequestID:   "req-1",
		TriggeredBy: "test",
		Timestamp:   time.Now(),
	})

	logger.Insert(ctx, AuditLog{
		TagSummary:  "fetch:def456",
		RequestID:   "req-2",
		TriggeredBy: "test",
		Timestamp:   time.Now(),
	})

	logger.Insert(ctx, AuditLog{
		TagSummary:  "fetch:abc123",
		RequestID:   "req-1",
		TriggeredBy: "test",
		Timestamp:   time.Now(),
	})

	// Query by request ID
	logs, err := logger.GetByRequestID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByRequestID failed: %v", err)
	}

	if len(logs) != 2 {
		t.Errorf("Expected 2 logs for req-1, got %d", len(logs))
	}

	for _, log := range logs {
		if log.RequestID != "req-1" {
			t.Errorf("Expected request ID req-1, got %s", log.RequestID)
		}
	}
}

func TestConcurrentInvalidations(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	var wg sync.WaitGroup
	concurrency := 100

	// Concurrent tag invalidations
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &InvalidateTagsRequest{
				Tags:        []string{fmt.Sprintf("fetch:%d", i)},
				TriggeredBy: "concurrent-test",
			}
			_, _ = svc.InvalidateTags(ctx, req)
		}(i)
	}

	wg.Wait()

	// Verify metrics
	totalInvalidations := svc.metrics.TotalInvalidations.Load()
	if totalInvalidations != int64(concurrency) {
		t.Errorf("Expected %d invalidations, got %d", concurrency, totalInvalidations)
	}
}

func BenchmarkService_InvalidateTags(b *testing.B) {
	svc := setupTestService()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := &InvalidateTagsRequest{
			Tags:        []string{fmt.Sprintf("fetch:%d", i)},
			TriggeredBy: "benchmark",
		}
		svc.InvalidateTags(ctx, req)
	}
}
