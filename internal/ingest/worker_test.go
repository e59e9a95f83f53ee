package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/library"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/pdf/pdftest"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

type mockExtractor struct {
	mu     sync.Mutex
	warmed []string
	warmFn func(ctx context.Context, filename string) (int, error)
}

func (m *mockExtractor) Warm(ctx context.Context, filename string) (int, error) {
	m.mu.Lock()
	m.warmed = append(m.warmed, filename)
	m.mu.Unlock()
	if m.warmFn != nil {
		return m.warmFn(ctx, filename)
	}
	return 1, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, document string) string {
	t.Helper()
	id, err := Enqueue(store, document)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Add(-time.Second).Format("2006-01-02T15:04:05.000000Z07:00")
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, "book.pdf")

	ex := &mockExtractor{}
	w := NewWorker(store, ex, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if len(ex.warmed) != 1 || ex.warmed[0] != "book.pdf" {
		t.Errorf("warmed = %v, want [book.pdf]", ex.warmed)
	}

	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}

	didWork, err = w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce on empty queue = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_FillsPageCache(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, dir, "book.pdf", pdftest.Doc{Pages: []string{"one", "two"}})
	store := openTestStore(t)
	enqueueTestJob(t, store, "book.pdf")

	w := NewWorker(store, library.New(dir, library.WithCache(store)), 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	n, err := store.CachedPages("book.pdf")
	if err != nil {
		t.Fatalf("CachedPages: %v", err)
	}
	if n != 2 {
		t.Errorf("cached pages = %d, want 2", n)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, "flaky.pdf")

	var calls atomic.Int32
	w := NewWorker(store, &mockExtractor{
		warmFn: func(_ context.Context, _ string) (int, error) {
			n := calls.Add(1)
			if n <= 2 {
				return 0, fmt.Errorf("transient error %d", n)
			}
			return 3, nil
		},
	}, 0)

	ctx := context.Background()

	// 1st attempt fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 1 = %v, %v", didWork, err)
	}
	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "pending" || job.Attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", job.Status, job.Attempts)
	}
	if job.LastError != "extracting flaky.pdf: transient error 1" {
		t.Errorf("last error = %q", job.LastError)
	}

	// Backoff keeps the job from being claimed again right away.
	if didWork, _ := w.RunOnce(ctx); didWork {
		t.Fatal("job claimed during backoff")
	}

	resetRunAfter(t, store, id)

	// 2nd attempt fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 2 = %v, %v", didWork, err)
	}
	job, _ = store.GetJob(id)
	if job.Attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", job.Attempts)
	}

	resetRunAfter(t, store, id)

	// 3rd attempt succeeds
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 3 = %v, %v", didWork, err)
	}
	job, _ = store.GetJob(id)
	if job.Status != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", job.Status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	id := enqueueTestJob(t, store, "missing.pdf")

	w := NewWorker(store, &mockExtractor{
		warmFn: func(_ context.Context, _ string) (int, error) {
			return 0, library.ErrNotFound
		},
	}, 0)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, id)
		}
	}

	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "failed" {
		t.Errorf("final status = %q, want %q", job.Status, "failed")
	}
}

func TestWorker_BadPayload(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(storage.Job{ID: "bad", Type: JobType, PayloadJSON: `{"document":""}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	ex := &mockExtractor{}
	if _, err := NewWorker(store, ex, 0).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(ex.warmed) != 0 {
		t.Errorf("extractor called for empty document")
	}
	job, _ := store.GetJob("bad")
	if job.Status != "failed" {
		t.Errorf("status = %q, want failed", job.Status)
	}
}

func TestWorker_ConcurrentEnqueue(t *testing.T) {
	store := openTestStore(t)

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				if _, err := Enqueue(store, fmt.Sprintf("doc-%d-%d.pdf", g, j)); err != nil {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	ex := &mockExtractor{}
	w := NewWorker(store, ex, 0)

	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	processed := 0
	for processed < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after processing %d/%d jobs", processed, total)
		default:
		}
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce error at job %d: %v", processed, err)
		}
		if didWork {
			processed++
		}
	}

	seen := map[string]bool{}
	for _, d := range ex.warmed {
		seen[d] = true
	}
	if len(seen) != total {
		t.Errorf("warmed %d distinct documents, want %d", len(seen), total)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewWorker(store, &mockExtractor{}, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatal("context not cancelled")
	}
}
