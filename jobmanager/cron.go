package jobmanager

import (
	"context"
	"strconv"
	"time"

	"encore.dev/cron"
)

// CleanupTask runs the periodic stale-job recovery pass (spec §4.6) every
// five minutes on a fixed cron schedule, the same Encore cron idiom the
// teacher uses for warming schedules. Config.CleanupInterval is not read
// here; changing it does not change how often this job runs.
var _ = cron.NewJob("job-cleanup", cron.JobConfig{
	Title:    "Stale Job Cleanup",
	Schedule: "*/5 * * * *",
	Endpoint: CleanupTask,
})

//encore:api private
func CleanupTask(ctx context.Context) error {
	s, err := initService()
	if err != nil {
		return err
	}
	timedOut, removed := s.Cleanup(time.Now())
	if timedOut > 0 || removed > 0 {
		s.log.Info("job cleanup pass", map[string]string{
			"timed_out": strconv.Itoa(timedOut),
			"removed":   strconv.Itoa(removed),
		})
	}
	return nil
}
