// Package jobmanager drives background pipeline executions: a bounded
// worker pool runs jobs from a pending queue, progress and terminal state
// are persisted to a JSON file after every transition, and a periodic
// cleanup task recovers stale jobs (spec §4.6).
//
// Persistence follows the teacher's atomic-write idiom used throughout the
// cache-manager/invalidation packages for anything durable: write to a
// temp file, fsync is skipped (matching the teacher's posture — no example
// repo in the pack calls Sync before rename), then rename over the
// destination so a reader never observes a partially written file.
package jobmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// persistedFile is the on-disk shape: {"jobs": [...]}.
type persistedFile struct {
	Jobs []*models.Job `json:"jobs"`
}

// Store holds the in-memory job map and serializes every mutation to a
// backing file under a single lock (spec §5: "file writes serialized
// behind a single lock; map mutations under the same lock during
// persistence").
type Store struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	path string
}

// NewStore constructs a store backed by path. If the file already exists
// its contents are loaded; models.Job.UnmarshalJSON accepts both ISO-8601
// strings and integer epoch seconds for created_at/started_at/finished_at
// (spec §4.6), so a file written by an older or foreign writer using epoch
// seconds still loads cleanly.
func NewStore(path string) (*Store, error) {
	s := &Store{jobs: make(map[string]*models.Job), path: path}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading job store %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing job store %s: %w", s.path, err)
	}
	for _, j := range pf.Jobs {
		s.jobs[j.ID] = j
	}
	return nil
}

// persistLocked writes the current job map to s.path via write-temp +
// rename. Caller must hold s.mu. A no-op if the store has no backing path
// (useful for tests and the library entry point when persistence is
// disabled).
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	pf := persistedFile{Jobs: make([]*models.Job, 0, len(s.jobs))}
	for _, j := range s.jobs {
		pf.Jobs = append(pf.Jobs, j)
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling job store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating job store dir %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".jobs-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp job store file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp job store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp job store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp job store file: %w", err)
	}
	return nil
}

// Put inserts or replaces a job and persists the store.
func (s *Store) Put(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return s.persistLocked()
}

// Get returns the job with the given ID, if any.
func (s *Store) Get(id string) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// All returns a snapshot of every job, for listing and cleanup.
func (s *Store) All() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Delete removes a job and persists the store.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return s.persistLocked()
}

// CleanupStale marks running/pending jobs older than maxAge as timeout and
// deletes completed/failed/cancelled jobs older than retention, rewriting
// the backing file once for the whole pass.
func (s *Store) CleanupStale(now time.Time, maxAge, retention time.Duration) (timedOut, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if !j.Status.IsTerminal() && now.Sub(j.CreatedAt) > maxAge {
			j.MarkTimeout(now)
			timedOut++
		}
	}
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.FinishedAt != nil && now.Sub(*j.FinishedAt) > retention {
			delete(s.jobs, id)
			removed++
		}
	}
	if timedOut > 0 || removed > 0 {
		_ = s.persistLocked()
	}
	return timedOut, removed
}
