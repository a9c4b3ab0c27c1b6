package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type ActivityRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type ActivityRetentionPruner interface {
	Prune(ctx context.Context, policy ActivityRetentionPolicy) (deleted int, err error)
}

// BufferedActivityRecorder moves audit writes off the authorisation path.
// Entries are queued; when the queue is full or the primary fails, the
// fallback recorder takes the entry.
type BufferedActivityRecorder struct {
	primary  ActivityRecorder
	fallback ActivityRecorder
	policy   ActivityRetentionPolicy
	pruner   ActivityRetentionPruner

	queue chan ActivityEntry
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewBufferedActivityRecorder(
	primary ActivityRecorder,
	fallback ActivityRecorder,
	policy ActivityRetentionPolicy,
	bufferSize int,
) (*BufferedActivityRecorder, error) {
	if primary == nil {
		return nil, fmt.Errorf("core: primary activity recorder is required")
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	recorder := &BufferedActivityRecorder{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		queue:    make(chan ActivityEntry, bufferSize),
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if pruner, ok := primary.(ActivityRetentionPruner); ok {
		recorder.pruner = pruner
	}

	go recorder.run()
	return recorder, nil
}

func (r *BufferedActivityRecorder) Record(ctx context.Context, entry ActivityEntry) error {
	if r == nil || r.primary == nil {
		return fmt.Errorf("core: buffered activity recorder is not configured")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	entry.Metadata = RedactSensitiveMap(entry.Metadata)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.queue <- entry:
		return nil
	default:
		if r.fallback != nil {
			return r.fallback.Record(ctx, entry)
		}
		return nil
	}
}

// EnforceRetention prunes the primary store when it supports it.
func (r *BufferedActivityRecorder) EnforceRetention(ctx context.Context) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("core: buffered activity recorder is not configured")
	}
	if r.pruner == nil {
		return 0, nil
	}
	return r.pruner.Prune(ctx, r.policy)
}

// Close drains nothing; queued entries not yet written are dropped.
func (r *BufferedActivityRecorder) Close() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}

func (r *BufferedActivityRecorder) run() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		case entry := <-r.queue:
			if err := r.primary.Record(context.Background(), entry); err != nil && r.fallback != nil {
				_ = r.fallback.Record(context.Background(), entry)
			}
		}
	}
}

var _ ActivityRecorder = (*BufferedActivityRecorder)(nil)
