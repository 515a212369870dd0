package sourcemanager

import (
	"encore.dev/pubsub"

	ev "github.com/vpnmerger/aggregator/pkg/pubsub"
)

// ConfigurationChangeTopic carries source add/remove events, consumed by
// the fetcher to invalidate cached entries for a removed source.
var ConfigurationChangeTopic = pubsub.NewTopic[*ev.ConfigurationChangeEvent](
	ev.TopicConfigurationChange,
	pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce},
)

// SourceBlacklistedTopic carries auto-blacklist notifications, consumed by
// monitoring for alerting.
var SourceBlacklistedTopic = pubsub.NewTopic[*ev.SourceBlacklistedEvent](
	ev.TopicSourceBlacklisted,
	pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce},
)
