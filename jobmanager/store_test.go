package jobmanager

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/vpnmerger/aggregator/pkg/models"
)

func TestStore_PutAndGet(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatal(err)
	}
	job := models.NewJob("j1", models.JobTypeProcess, nil)
	if err := store.Put(job); err != nil {
		t.Fatal(err)
	}
	got, ok := store.Get("j1")
	if !ok || got.ID != "j1" {
		t.Fatalf("expected to retrieve job j1, got %v, %v", got, ok)
	}
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	job := models.NewJob("j1", models.JobTypeProcess, map[string]interface{}{"k": "v"})
	if err := store.Put(job); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get("j1")
	if !ok {
		t.Fatal("expected job to survive reload")
	}
	if got.Type != models.JobTypeProcess {
		t.Fatalf("unexpected type after reload: %v", got.Type)
	}
}

func TestStore_CleanupStale_MarksTimeoutAndRemovesExpired(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	stuck := models.NewJob("stuck", models.JobTypeProcess, nil)
	stuck.CreatedAt = now.Add(-48 * time.Hour)
	stuck.MarkRunning(stuck.CreatedAt)
	_ = store.Put(stuck)

	old := models.NewJob("old", models.JobTypeProcess, nil)
	old.MarkCompleted(now.Add(-48*time.Hour), nil)
	_ = store.Put(old)

	fresh := models.NewJob("fresh", models.JobTypeProcess, nil)
	fresh.MarkCompleted(now, nil)
	_ = store.Put(fresh)

	timedOut, removed := store.CleanupStale(now, 24*time.Hour, 24*time.Hour)
	if timedOut != 1 {
		t.Fatalf("expected 1 timed out job, got %d", timedOut)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed job, got %d", removed)
	}

	got, ok := store.Get("stuck")
	if !ok || got.Status != models.JobTimeout {
		t.Fatalf("expected stuck job marked timeout, got %+v", got)
	}
	if _, ok := store.Get("old"); ok {
		t.Fatal("expected old completed job to be removed")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Fatal("expected fresh completed job to survive")
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("does-not-exist"); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}
