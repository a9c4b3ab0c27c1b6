package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBufferedActivityRecorder_NonBlockingFallbackWhenQueueIsFull(t *testing.T) {
	primary := &blockingActivityRecorder{block: make(chan struct{})}
	fallback := &bufferCapturingRecorder{}
	recorder, err := NewBufferedActivityRecorder(primary, fallback, ActivityRetentionPolicy{}, 1)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer func() {
		close(primary.block)
		recorder.Close()
	}()

	if err := recorder.Record(context.Background(), ActivityEntry{ID: "a", Action: ActionLogin}); err != nil {
		t.Fatalf("record first: %v", err)
	}

	start := time.Now()
	for _, id := range []string{"b", "c"} {
		if err := recorder.Record(context.Background(), ActivityEntry{ID: id, Action: ActionConfirmCode}); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected non-blocking fallback write")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fallback.count() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected fallback recorder to capture saturated write")
}

func TestBufferedActivityRecorder_FallbackOnPrimaryErrorRedactsMetadata(t *testing.T) {
	fallback := &bufferCapturingRecorder{}
	recorder, err := NewBufferedActivityRecorder(errorActivityRecorder{}, fallback, ActivityRetentionPolicy{}, 4)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer recorder.Close()

	if err := recorder.Record(context.Background(), ActivityEntry{
		ID:       "x",
		Action:   ActionLogin,
		Metadata: map[string]any{"pin": "12345", "operation_id": "consent-1"},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fallback.count() == 1 {
			entry := fallback.lastEntry()
			if entry.Metadata["pin"] != RedactedValue || entry.Metadata["operation_id"] != "consent-1" {
				t.Fatalf("expected redacted metadata, got %#v", entry.Metadata)
			}
			if entry.CreatedAt.IsZero() {
				t.Fatalf("expected created_at stamped")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected fallback write after primary failure")
}

func TestBufferedActivityRecorder_EnforceRetention(t *testing.T) {
	pruner := &stubPruner{deleted: 7}
	recorder, err := NewBufferedActivityRecorder(pruner, nil, ActivityRetentionPolicy{
		TTL:    24 * time.Hour,
		RowCap: 100,
	}, 4)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer recorder.Close()

	deleted, err := recorder.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("enforce retention: %v", err)
	}
	if deleted != 7 {
		t.Fatalf("expected deleted=7, got %d", deleted)
	}
	if pruner.lastPolicy.RowCap != 100 || pruner.lastPolicy.TTL != 24*time.Hour {
		t.Fatalf("expected policy propagation")
	}

	if _, err := NewBufferedActivityRecorder(nil, nil, ActivityRetentionPolicy{}, 0); err == nil {
		t.Fatalf("expected missing primary to fail")
	}
}

type blockingActivityRecorder struct {
	block chan struct{}
}

func (s *blockingActivityRecorder) Record(context.Context, ActivityEntry) error {
	<-s.block
	return nil
}

type errorActivityRecorder struct{}

func (errorActivityRecorder) Record(context.Context, ActivityEntry) error {
	return errors.New("primary write failed")
}

type bufferCapturingRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *bufferCapturingRecorder) Record(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *bufferCapturingRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *bufferCapturingRecorder) lastEntry() ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[len(s.entries)-1]
}

type stubPruner struct {
	lastPolicy ActivityRetentionPolicy
	deleted    int
}

func (s *stubPruner) Record(context.Context, ActivityEntry) error {
	return nil
}

func (s *stubPruner) Prune(_ context.Context, policy ActivityRetentionPolicy) (int, error) {
	s.lastPolicy = policy
	return s.deleted, nil
}

var (
	_ ActivityRecorder        = (*blockingActivityRecorder)(nil)
	_ ActivityRecorder        = (*bufferCapturingRecorder)(nil)
	_ ActivityRetentionPruner = (*stubPruner)(nil)
)
