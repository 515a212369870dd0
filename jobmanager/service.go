package jobmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vpnmerger/aggregator/pkg/logging"
	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/pubsub"
	"github.com/vpnmerger/aggregator/pkg/readiness"
)

// Config controls pool sizing and the cleanup/timeout defaults from
// spec §4.6.
type Config struct {
	PoolSize        int
	MaxDuration     time.Duration
	CleanupInterval time.Duration
	MaxAge          time.Duration
	Retention       time.Duration
	PersistPath     string
}

// DefaultConfig returns the spec defaults: pool of 4, 1h job timeout, 5m
// cleanup interval, 24h max age and retention.
func DefaultConfig() Config {
	return Config{
		PoolSize:        4,
		MaxDuration:     time.Hour,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          24 * time.Hour,
		Retention:       24 * time.Hour,
		PersistPath:     "jobs.json",
	}
}

// ProgressFunc reports monotonically non-decreasing progress on a running
// job (spec §5).
type ProgressFunc func(progress float64, message string)

// RunFunc executes one job type's body. Implementations receive a context
// that is cancelled on explicit cancellation or wall-clock timeout, and must
// observe it between suspension points (spec §5). The returned map becomes
// the job's Result on success.
type RunFunc func(ctx context.Context, params map[string]interface{}, progress ProgressFunc) (map[string]interface{}, error)

// Service runs jobs against a bounded worker pool, inverting the dependency
// the teacher's warming.Service has on a concrete cache-manager.Service:
// the pipeline body for each job type is supplied by main as a RunFunc
// rather than imported directly, so this package owns no knowledge of
// sourcemanager/fetcher/processor/formatters (spec §9: invert ownership).
//
//encore:service
type Service struct {
	cfg     Config
	store   *Store
	sem     chan struct{}
	runners map[models.JobType]RunFunc
	log     *logging.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

var svc *Service
var once sync.Once

func initService() (*Service, error) {
	var err error
	once.Do(func() {
		svc, err = NewService(DefaultConfig(), nil)
	})
	return svc, err
}

// NewService constructs a job manager. runners maps each supported job
// type to the function that executes it; a nil or missing entry for a
// requested job type fails that job rather than panicking.
func NewService(cfg Config, runners map[models.JobType]RunFunc) (*Service, error) {
	store, err := NewStore(cfg.PersistPath)
	if err != nil {
		return nil, err
	}
	if runners == nil {
		runners = make(map[models.JobType]RunFunc)
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		sem:     make(chan struct{}, cfg.PoolSize),
		runners: runners,
		log:     logging.New("jobmanager"),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// SetRunner registers (or replaces) the RunFunc for a job type.
func (s *Service) SetRunner(jobType models.JobType, run RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[jobType] = run
}

// SubmitRequest is the input to the submit-job endpoint.
type SubmitRequest struct {
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// SubmitResponse reports the newly created job's ID, matching the spec's
// 202-Accepted contract: {job_id, status:"accepted"}.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Submit creates a pending job and enqueues it for execution. Jobs beyond
// pool capacity queue in pending until a worker slot frees up, rather than
// blocking the submitting caller.
//
//encore:api public method=POST path=/api/v1/pipeline/run
func Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, models.JobType(req.Type), req.Parameters)
}

func (s *Service) Submit(ctx context.Context, jobType models.JobType, params map[string]interface{}) (*SubmitResponse, error) {
	job := models.NewJob(uuid.NewString(), jobType, params)
	if err := s.store.Put(job); err != nil {
		return nil, fmt.Errorf("persisting new job: %w", err)
	}

	s.wg.Add(1)
	go s.run(job)

	return &SubmitResponse{JobID: job.ID, Status: "accepted"}, nil
}

// run acquires a pool slot (queuing in pending until one is free), then
// drives one job through pending -> running -> terminal.
func (s *Service) run(job *models.Job) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
		cancel()
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		job.MarkCancelled(time.Now())
		s.persistAndPublish(job)
		return
	}

	runCtx, stop := context.WithTimeout(ctx, s.cfg.MaxDuration)
	defer stop()

	job.MarkRunning(time.Now())
	s.persistAndPublish(job)

	runner, ok := s.runners[job.Type]
	if !ok {
		job.MarkFailed(time.Now(), fmt.Errorf("no runner registered for job type %q", job.Type))
		s.persistAndPublish(job)
		return
	}

	progress := func(p float64, message string) {
		job.SetProgress(p)
		job.Message = message
		s.persistAndPublish(job)
	}

	result, err := runner(runCtx, job.Parameters, progress)

	now := time.Now()
	switch {
	case runCtx.Err() == context.Canceled:
		job.MarkCancelled(now)
	case runCtx.Err() == context.DeadlineExceeded:
		job.MarkTimeout(now)
	case err != nil:
		job.MarkFailed(now, err)
	default:
		job.MarkCompleted(now, result)
	}
	s.persistAndPublish(job)
}

func (s *Service) persistAndPublish(job *models.Job) {
	if err := s.store.Put(job); err != nil {
		s.log.Error("failed to persist job", map[string]string{"job_id": job.ID, "error": err.Error()})
	}
	event := &pubsub.JobProgressEvent{
		Version:     pubsub.EventVersion1,
		JobID:       job.ID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Message:     job.Message,
		TriggeredAt: time.Now(),
	}
	if err := event.Validate(); err == nil {
		_, _ = JobProgressTopic.Publish(context.Background(), event)
	}
}

// Status returns the current job record.
//
//encore:api public method=GET path=/api/v1/pipeline/status/:id
func Status(ctx context.Context, id string) (*models.Job, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	job, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("job %q not found", id)
	}
	return job, nil
}

// CancelRequest identifies the job to cancel.
type CancelRequest struct {
	JobID string `json:"job_id"`
}

// Cancel requests cancellation of a running or pending job. Idempotent:
// cancelling an already-terminal job is a no-op that reports cancelled=false.
//
//encore:api public method=POST path=/api/v1/pipeline/cancel
func Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	if !readiness.Ready() {
		return nil, readiness.ErrNotInitialized
	}
	s, err := initService()
	if err != nil {
		return nil, err
	}
	return s.Cancel(req.JobID), nil
}

// CancelResponse reports whether the cancellation request took effect.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (s *Service) Cancel(jobID string) *CancelResponse {
	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if !ok {
		return &CancelResponse{Cancelled: false}
	}
	cancel()
	return &CancelResponse{Cancelled: true}
}

// Wait blocks until every submitted job has reached a terminal state.
// Used by tests and the batch CLI entry point, which must not exit before
// background goroutines finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Cleanup runs one pass of the periodic stale-job recovery task (spec
// §4.6): marks non-terminal jobs older than MaxAge as timeout and deletes
// terminal jobs older than Retention.
func (s *Service) Cleanup(now time.Time) (timedOut, removed int) {
	return s.store.CleanupStale(now, s.cfg.MaxAge, s.cfg.Retention)
}

// Store exposes the backing store for listing endpoints.
func (s *Service) Store() *Store { return s.store }
