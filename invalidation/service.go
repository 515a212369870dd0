// Package invalidation coordinates cache-tag invalidation across every
// fetcher instance sharing the VPN source cache.
//
// Design Philosophy:
// - Pub/Sub broadcast ensures eventual consistency across all fetcher instances
// - Audit logging provides immutable invalidation history for debugging
// - Metrics enable observability of invalidation volume and latency
//
// Performance Characteristics:
// - Tag invalidation: O(t) where t = number of tags in the request
// - Pub/Sub publish: O(1) + network latency
// - Audit insert: O(1) database write
//
// Consistency Model:
// - At-least-once delivery via Pub/Sub guarantees all fetcher instances receive
//   the invalidation
// - Idempotent invalidation ensures correctness under duplicate events
// - Audit log provides single source of truth for invalidation history
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"encore.dev/pubsub"
	"encore.dev/storage/sqldb"
)

//encore:service
type Service struct {
	auditLogger AuditLoggerInterface
	metrics     *Metrics
}

// AuditLoggerInterface defines the interface for audit logging operations.
type AuditLoggerInterface interface {
	Insert(ctx context.Context, log AuditLog) error
	GetRecent(ctx context.Context, limit, offset int, tagFilter string) ([]AuditLog, error)
	GetCount(ctx context.Context, tagFilter string) (int, error)
	GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error)
}

// Metrics tracks invalidation performance counters.
type Metrics struct {
	TotalInvalidations atomic.Int64
	AuditWrites        atomic.Int64
	PubSubPublishes    atomic.Int64
	Errors             atomic.Int64
}

// Database for audit logging
var db = sqldb.Named("invalidation_db")

// Initialize service with dependencies
func initService() (*Service, error) {
	auditLogger, err := NewAuditLogger(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	return &Service{
		auditLogger: auditLogger,
		metrics:     &Metrics{},
	}, nil
}

// Global service instance
var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize invalidation service: %v", err))
	}
}

// InvalidationEvent represents a cache-tag invalidation broadcast to every
// fetcher instance. Tags are the fetcher's own vocabulary (§4.2): the
// fetcher tags each cached payload with "fetch:{url_hash}" only, and sends
// that tag when a source is removed. No entry carries a "sources" tag, so
// adding a source invalidates nothing.
type InvalidationEvent struct {
	Tags        []string  `json:"tags"`         // Cache tags to evict
	TriggeredBy string    `json:"triggered_by"` // Source: "sourcemanager", "fetcher", "admin"
	Timestamp   time.Time `json:"timestamp"`    // When invalidation was triggered
	RequestID   string    `json:"request_id"`   // For tracing and correlation
}

// Pub/Sub topic for cache invalidation events
var CacheInvalidateTopic = pubsub.NewTopic[*InvalidationEvent](
	"cache-invalidate",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// Request and response types

type InvalidateTagsRequest struct {
	Tags        []string `json:"tags"`         // Cache tags to invalidate
	TriggeredBy string   `json:"triggered_by"` // Source identifier
	RequestID   string   `json:"request_id"`   // Optional correlation ID
}

type InvalidateTagsResponse struct {
	Success          bool      `json:"success"`
	InvalidatedCount int       `json:"invalidated_count"`
	Tags             []string  `json:"tags"`
	RequestID        string    `json:"request_id"`
	PublishedAt      time.Time `json:"published_at"`
}

type GetAuditLogsRequest struct {
	Limit  int    `json:"limit"`          // Number of logs to retrieve
	Offset int    `json:"offset"`         // Pagination offset
	Tag    string `json:"tag,omitempty"`  // Optional: filter by tag
}

type GetAuditLogsResponse struct {
	Logs       []AuditLog `json:"logs"`
	TotalCount int        `json:"total_count"`
	HasMore    bool       `json:"has_more"`
}

type MetricsResponse struct {
	TotalInvalidations int64 `json:"total_invalidations"`
	AuditWrites        int64 `json:"audit_writes"`
	PubSubPublishes    int64 `json:"pubsub_publishes"`
	Errors             int64 `json:"errors"`
}

// InvalidateTags invalidates the given cache tags and broadcasts the event
// to every fetcher instance. This is the only invalidation shape the fetch
// cache needs: tags are exact per-source tags ("fetch:{url_hash}"), never a
// wildcard key pattern.
//
// Complexity: O(t) where t = number of tags
//
//encore:api public method=POST path=/invalidate/tags
func InvalidateTags(ctx context.Context, req *InvalidateTagsRequest) (*InvalidateTagsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.InvalidateTags(ctx, req)
}

func (s *Service) InvalidateTags(ctx context.Context, req *InvalidateTagsRequest) (*InvalidateTagsResponse, error) {
	startTime := time.Now()

	// Validation
	if len(req.Tags) == 0 {
		return nil, errors.New("tags cannot be empty")
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "unknown"
	}
	if req.RequestID == "" {
		req.RequestID = generateRequestID()
	}

	// Deduplicate tags
	uniqueTags := deduplicateTags(req.Tags)

	// Create invalidation event
	event := &InvalidationEvent{
		Tags:        uniqueTags,
		TriggeredBy: req.TriggeredBy,
		Timestamp:   time.Now(),
		RequestID:   req.RequestID,
	}

	// Publish to Pub/Sub (broadcast to every fetcher instance)
	_, err := CacheInvalidateTopic.Publish(ctx, event)
	if err != nil {
		s.metrics.Errors.Add(1)
		return nil, fmt.Errorf("failed to publish invalidation event: %w", err)
	}
	s.metrics.PubSubPublishes.Add(1)

	// Write audit log (async to not block response)
	go func() {
		auditLog := AuditLog{
			TagSummary:  formatTagSummary(uniqueTags),
			Tags:        uniqueTags,
			TriggeredBy: req.TriggeredBy,
			Timestamp:   event.Timestamp,
			RequestID:   req.RequestID,
			Latency:     time.Since(startTime).Milliseconds(),
		}
		if err := s.auditLogger.Insert(context.Background(), auditLog); err != nil {
			// Log error but don't fail the request
			s.metrics.Errors.Add(1)
		} else {
			s.metrics.AuditWrites.Add(1)
		}
	}()

	// Update metrics
	s.metrics.TotalInvalidations.Add(1)

	return &InvalidateTagsResponse{
		Success:          true,
		InvalidatedCount: len(uniqueTags),
		Tags:             uniqueTags,
		RequestID:        req.RequestID,
		PublishedAt:      event.Timestamp,
	}, nil
}

// GetAuditLogs retrieves invalidation audit history with pagination.
//
//encore:api public method=GET path=/audit/logs
func GetAuditLogs(ctx context.Context, req *GetAuditLogsRequest) (*GetAuditLogsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetAuditLogs(ctx, req)
}

func (s *Service) GetAuditLogs(ctx context.Context, req *GetAuditLogsRequest) (*GetAuditLogsResponse, error) {
	// Default pagination
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 1000 {
		req.Limit = 1000 // Max page size
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	// Fetch logs
	logs, err := s.auditLogger.GetRecent(ctx, req.Limit+1, req.Offset, req.Tag)
	if err != nil {
		s.metrics.Errors.Add(1)
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	// Check if there are more results
	hasMore := len(logs) > req.Limit
	if hasMore {
		logs = logs[:req.Limit]
	}

	// Get total count (for pagination info)
	totalCount, err := s.auditLogger.GetCount(ctx, req.Tag)
	if err != nil {
		totalCount = len(logs) // Fallback
	}

	return &GetAuditLogsResponse{
		Logs:       logs,
		TotalCount: totalCount,
		HasMore:    hasMore,
	}, nil
}

// GetMetrics returns invalidation service metrics.
//
//encore:api public method=GET path=/invalidate/metrics
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetMetrics(ctx)
}

func (s *Service) GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	return &MetricsResponse{
		TotalInvalidations: s.metrics.TotalInvalidations.Load(),
		AuditWrites:        s.metrics.AuditWrites.Load(),
		PubSubPublishes:    s.metrics.PubSubPublishes.Load(),
		Errors:             s.metrics.Errors.Load(),
	}, nil
}

// Helper functions

// deduplicateTags removes duplicate tags while preserving order.
func deduplicateTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))

	for _, tag := range tags {
		if !seen[tag] {
			seen[tag] = true
			result = append(result, tag)
		}
	}

	return result
}

// formatTagSummary joins multiple tags into a single filterable string for
// the audit log's LIKE-based tag search.
func formatTagSummary(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	summary := tags[0]
	for _, t := range tags[1:] {
		summary += "," + t
	}
	return summary
}

// generateRequestID creates a unique request identifier for tracing.
func generateRequestID() string {
	return fmt.Sprintf("inv-%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%1000)
}
