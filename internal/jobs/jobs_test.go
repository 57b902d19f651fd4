package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	dbembed "github.com/garnizeh/talentflow/db"
	dbpkg "github.com/garnizeh/talentflow/internal/db"
	"github.com/garnizeh/talentflow/internal/jobs"
)

func setupQueue(t *testing.T) *jobs.Repository {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	d, err := dbpkg.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbembed.Migrations, dbembed.SeedFiles); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return jobs.NewRepository(d)
}

func TestBackoffDuration(t *testing.T) {
	if d := jobs.BackoffDuration(0); d != time.Second {
		t.Fatalf("attempt 0: %v", d)
	}
	if d := jobs.BackoffDuration(3); d != 8*time.Second {
		t.Fatalf("attempt 3: %v", d)
	}
	if d := jobs.BackoffDuration(30); d != 5*time.Minute {
		t.Fatalf("attempt 30 should cap: %v", d)
	}
}

func TestEnqueueClaimCycle(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, &jobs.Job{Type: jobs.TypeNotify, Payload: []byte(`{"event":"lead_created"}`)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected job id")
	}

	j, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if j == nil || j.ID != id || j.Status != "running" {
		t.Fatalf("unexpected claim: %#v", j)
	}

	// the claimed job is not handed out again
	again, err := repo.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("running job claimed twice: %#v", again)
	}
}

func TestWorkerProcessesJob(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()

	var handled int32
	done := make(chan struct{})
	handlers := map[string]jobs.Handler{
		jobs.TypeDispatchSend: func(ctx context.Context, j *jobs.Job) error {
			if atomic.AddInt32(&handled, 1) == 1 {
				close(done)
			}
			return nil
		},
	}

	pool := jobs.NewWorkerPool(repo, handlers, nil, 1)
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: jobs.TypeDispatchSend, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("job was not processed")
	}
}

func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()

	var attempts int32
	failed := make(chan struct{})
	handlers := map[string]jobs.Handler{
		jobs.TypeNotify: func(ctx context.Context, j *jobs.Job) error {
			if atomic.AddInt32(&attempts, 1) == 2 {
				defer close(failed)
			}
			return errors.New("webhook down")
		},
	}

	pool := jobs.NewWorkerPool(repo, handlers, nil, 1)
	pool.Start(ctx)
	defer pool.Stop()

	// first attempt fails immediately; the retry is scheduled with backoff,
	// so force it due by enqueueing with max_attempts=1 to dead-letter fast
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: jobs.TypeNotify, Payload: []byte(`{}`), MaxAttempts: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: jobs.TypeNotify, Payload: []byte(`{}`), MaxAttempts: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatalf("jobs were not attempted")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		counts, err := repo.Counts(ctx)
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if counts["dead_letter"] == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 dead-letter jobs, got %v", counts)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestUnknownTypeDeadLetters(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()

	pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{}, nil, 1)
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "bogus", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		counts, err := repo.Counts(ctx)
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if counts["dead_letter"] == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected dead-letter for unknown type, got %v", counts)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
