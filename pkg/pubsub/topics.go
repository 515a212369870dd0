// Package pubsub provides topic names and event type definitions for the
// VPN source aggregator's event-driven coordination.
//
// Topic Naming Convention:
//   - sources.configuration_change: source registry add/remove events
//   - sources.update: per-fetch source performance events
//   - sources.blacklisted: auto-blacklist notifications
//   - jobs.progress: job lifecycle/progress events
//
// Design Notes:
//   - Topics are defined as constants to avoid typos and enable compile-time checks
//   - Version field in events enables schema evolution without breaking consumers
//   - No direct Encore dependencies to keep pkg/ reusable across services
package pubsub

// Topic name constants for Encore Pub/Sub integration. Use these when
// defining pubsub.Topic[T] in service code.
const (
	// TopicConfigurationChange is published when a source is added or
	// removed from the registry.
	// Event type: ConfigurationChangeEvent
	// Publishers: sourcemanager
	// Subscribers: fetcher (on remove, invalidates "fetch:{url_hash}")
	TopicConfigurationChange = "sources.configuration_change"

	// TopicSourceUpdate carries per-fetch outcome events.
	// Event type: SourceUpdateEvent
	// Publishers: fetcher (Service.PublishSourceUpdate)
	// Subscribers: sourcemanager, monitoring (neither evicts cache entries)
	TopicSourceUpdate = "sources.update"

	// TopicSourceBlacklisted is published when a source is auto-blacklisted.
	// Event type: SourceBlacklistedEvent
	// Publishers: sourcemanager
	// Subscribers: monitoring (alerts)
	TopicSourceBlacklisted = "sources.blacklisted"

	// TopicJobProgress is published on job lifecycle transitions.
	// Event type: JobProgressEvent
	// Publishers: jobmanager
	// Subscribers: monitoring/dashboard
	TopicJobProgress = "jobs.progress"
)

// AllTopics returns all defined topic names. Useful for validation, testing,
// and administrative tools.
func AllTopics() []string {
	return []string{
		TopicConfigurationChange,
		TopicSourceUpdate,
		TopicSourceBlacklisted,
		TopicJobProgress,
	}
}

// IsValidTopic checks if the given topic name is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range AllTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
