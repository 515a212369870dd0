// Pub/Sub wiring: the fetcher subscribes to source-registry changes and
// invalidates that source's fetch tag in L1 and, when configured, L3 (L2
// relies on TTL expiry; see HandleCacheInvalidate). It also declares the
// sources.update topic that Service.PublishSourceUpdate publishes to; the
// fetch path itself does not call PublishSourceUpdate. Generalizes the teacher's
// cache-manager/subscriptions.go subscription pattern from cache-key
// invalidation to fetch-tag invalidation, and fixes its reference to the
// local encore.app/invalidation package by depending on the shared
// pkg/pubsub event/topic definitions instead.
package fetcher

import (
	"context"
	"time"

	"encore.dev/pubsub"

	"github.com/vpnmerger/aggregator/invalidation"
	ev "github.com/vpnmerger/aggregator/pkg/pubsub"
)

// ConfigurationChangeTopic carries source add/remove events from the
// source manager.
var ConfigurationChangeTopic = pubsub.NewTopic[*ev.ConfigurationChangeEvent](
	ev.TopicConfigurationChange,
	pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce},
)

// SourceUpdateTopic carries per-fetch outcome events published by this
// service and consumed by the source manager (reputation updates) and
// monitoring.
var SourceUpdateTopic = pubsub.NewTopic[*ev.SourceUpdateEvent](
	ev.TopicSourceUpdate,
	pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce},
)

// CircuitBreakerTripEvent is published whenever a per-host breaker
// transitions to OPEN, consumed by monitoring for alerting.
type CircuitBreakerTripEvent struct {
	Host      string    `json:"host"`
	Timestamp time.Time `json:"timestamp"`
}

var CircuitBreakerTripTopic = pubsub.NewTopic[*CircuitBreakerTripEvent](
	"fetcher.circuit_breaker_trip",
	pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce},
)

var _ = pubsub.NewSubscription(
	ConfigurationChangeTopic,
	"fetcher-invalidate-on-configuration-change",
	pubsub.SubscriptionConfig[*ev.ConfigurationChangeEvent]{
		Handler: HandleConfigurationChange,
	},
)

// HandleConfigurationChange routes a removed source's fetch tag through the
// invalidation service instead of evicting locally: InvalidateTags
// broadcasts an InvalidationEvent on invalidation.CacheInvalidateTopic (and
// records an audit log entry), which every fetcher instance's own
// subscription (HandleCacheInvalidate, below) consumes to evict its L1/L3
// tiers. This keeps a single fetcher instance consistent with every other
// instance subscribed to the same broadcast, rather than only invalidating
// the instance that happened to receive the configuration_change event.
func HandleConfigurationChange(ctx context.Context, event *ev.ConfigurationChangeEvent) error {
	if event.Action != "remove" {
		return nil
	}
	tag := "fetch:" + urlHash(event.URL)
	_, err := invalidation.InvalidateTags(ctx, &invalidation.InvalidateTagsRequest{
		Tags:        []string{tag},
		TriggeredBy: "sourcemanager.remove_source",
	})
	return err
}

var _ = pubsub.NewSubscription(
	invalidation.CacheInvalidateTopic,
	"fetcher-apply-cache-invalidation",
	pubsub.SubscriptionConfig[*invalidation.InvalidationEvent]{
		Handler: HandleCacheInvalidate,
	},
)

// HandleCacheInvalidate is the consumer side of the broadcast: it evicts
// every matched tag from this instance's L1 and L3 tiers. L2 has no
// per-tag index (Redis keys aren't enumerable here without a SCAN sweep),
// so it relies on TTL expiry instead.
func HandleCacheInvalidate(ctx context.Context, event *invalidation.InvalidationEvent) error {
	if svc == nil {
		return nil
	}
	for _, tag := range event.Tags {
		svc.l1.DeleteByTag(tag)
		if svc.l3 != nil {
			svc.l3.DeleteByTag(ctx, tag)
		}
	}
	return nil
}
