package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType enumerates the kinds of background pipeline execution.
type JobType string

const (
	JobTypeProcess  JobType = "process"
	JobTypeValidate JobType = "validate"
)

// JobStatus is the job lifecycle state (spec §4.6).
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobTimeout   JobStatus = "timeout"
)

// IsTerminal reports whether the status is one a job cannot leave.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobTimeout:
		return true
	default:
		return false
	}
}

// Job is a unit of pipeline execution with a persistent lifecycle.
//
// Invariant: a terminal status implies FinishedAt is set, and
// Progress == 1.0 iff Status == completed.
type Job struct {
	ID         string                 `json:"id"`
	Type       JobType                `json:"type"`
	Status     JobStatus              `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Progress   float64                `json:"progress"`
	Message    string                 `json:"message,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// UnmarshalJSON accepts created_at/started_at/finished_at as either an
// RFC3339 string or an integer epoch-seconds number (spec §4.6: "timestamps
// accept both ISO-8601 strings and integer epoch seconds"), so a job file
// written by an older or foreign writer that emits epoch seconds still
// loads cleanly.
func (j *Job) UnmarshalJSON(data []byte) error {
	type alias Job
	aux := &struct {
		CreatedAt  json.RawMessage `json:"created_at"`
		StartedAt  json.RawMessage `json:"started_at,omitempty"`
		FinishedAt json.RawMessage `json:"finished_at,omitempty"`
		*alias
	}{alias: (*alias)(j)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.CreatedAt) > 0 {
		t, err := parseFlexTime(aux.CreatedAt)
		if err != nil {
			return fmt.Errorf("job.created_at: %w", err)
		}
		j.CreatedAt = t
	}
	if t, ok, err := parseOptionalFlexTime(aux.StartedAt); err != nil {
		return fmt.Errorf("job.started_at: %w", err)
	} else if ok {
		j.StartedAt = &t
	}
	if t, ok, err := parseOptionalFlexTime(aux.FinishedAt); err != nil {
		return fmt.Errorf("job.finished_at: %w", err)
	} else if ok {
		j.FinishedAt = &t
	}
	return nil
}

func parseOptionalFlexTime(raw json.RawMessage) (time.Time, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false, nil
	}
	t, err := parseFlexTime(raw)
	return t, true, err
}

func parseFlexTime(raw json.RawMessage) (time.Time, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		t, err := time.Parse(time.RFC3339, asString)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing ISO-8601 timestamp %q: %w", asString, err)
		}
		return t, nil
	}
	var asEpoch int64
	if err := json.Unmarshal(raw, &asEpoch); err == nil {
		return time.Unix(asEpoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp value: %s", raw)
}

// NewJob constructs a pending job with the given type and parameters.
func NewJob(id string, jobType JobType, params map[string]interface{}) *Job {
	return &Job{
		ID:         id,
		Type:       jobType,
		Status:     JobPending,
		CreatedAt:  time.Now(),
		Parameters: params,
	}
}

// SetProgress enforces the monotonic non-decreasing invariant from §5;
// calls that would decrease progress are silently clamped to the current
// value rather than propagating a caller bug into observable state.
func (j *Job) SetProgress(p float64) {
	if p < j.Progress {
		p = j.Progress
	}
	if p > 1 {
		p = 1
	}
	j.Progress = p
}

// MarkRunning transitions pending -> running.
func (j *Job) MarkRunning(now time.Time) {
	j.Status = JobRunning
	j.StartedAt = &now
}

// MarkCompleted transitions running -> completed, forcing progress to 1.0.
func (j *Job) MarkCompleted(now time.Time, result map[string]interface{}) {
	j.Status = JobCompleted
	j.Progress = 1.0
	j.Result = result
	j.FinishedAt = &now
}

// MarkFailed transitions running -> failed, recording the error.
func (j *Job) MarkFailed(now time.Time, err error) {
	j.Status = JobFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.FinishedAt = &now
}

// MarkCancelled transitions any non-terminal status -> cancelled.
func (j *Job) MarkCancelled(now time.Time) bool {
	if j.Status.IsTerminal() {
		return false
	}
	j.Status = JobCancelled
	j.FinishedAt = &now
	return true
}

// MarkTimeout transitions running/pending -> timeout.
func (j *Job) MarkTimeout(now time.Time) {
	j.Status = JobTimeout
	j.FinishedAt = &now
}
