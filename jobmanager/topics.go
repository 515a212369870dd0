package jobmanager

import (
	"encore.dev/pubsub"

	ev "github.com/vpnmerger/aggregator/pkg/pubsub"
)

// JobProgressTopic carries job lifecycle and progress transitions,
// consumed by monitoring to track long-running pipeline runs without
// polling the job store.
var JobProgressTopic = pubsub.NewTopic[*ev.JobProgressEvent](
	ev.TopicJobProgress,
	pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce},
)
