package sourcemanager

import (
	"context"

	"encore.dev/pubsub"

	"github.com/vpnmerger/aggregator/fetcher"
	ev "github.com/vpnmerger/aggregator/pkg/pubsub"
)

var _ = pubsub.NewSubscription(
	fetcher.SourceUpdateTopic,
	"sourcemanager-update-reputation",
	pubsub.SubscriptionConfig[*ev.SourceUpdateEvent]{
		Handler: HandleSourceUpdate,
	},
)

// HandleSourceUpdate records a fetch outcome against the matching source's
// performance history, driving reputation scoring and auto-blacklisting.
// Config count and response time are not carried on the lightweight event
// (they are reported separately by the processor once parsing completes),
// so only the success/failure signal is recorded here.
func HandleSourceUpdate(ctx context.Context, event *ev.SourceUpdateEvent) error {
	s, err := initService()
	if err != nil {
		return err
	}
	return s.UpdatePerformance(ctx, event.URL, event.Success, 0, 0)
}
