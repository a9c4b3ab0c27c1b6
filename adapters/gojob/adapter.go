package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-psd2-sca/core"
)

const (
	JobIDStatusSync       = "sca.status.sync"
	ParamOperationID      = "operation_id"
	DefaultDedupPolicy    = job.DeduplicationPolicy("drop")
	statusSyncMetricScope = "sca.status_sync"
)

var ErrMissingOperationID = errors.New("gojob: status sync message has no operation id")

// RetryPolicy bounds requeues of failed status sync deliveries.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt derives the nack options for a failed attempt. Delays
// double per attempt from BaseDelay and are capped at MaxDelay.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay <= 0 && p.BaseDelay > 0 && attempt > 0 {
		out.Delay = p.BaseDelay << min(attempt-1, 16)
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// StatusSyncMessage builds the queue message for one operation. The
// idempotency key lets the queue collapse repeated syncs of the same
// operation while one is pending.
func StatusSyncMessage(operationID string) *job.ExecutionMessage {
	operationID = strings.TrimSpace(operationID)
	return &job.ExecutionMessage{
		JobID:          JobIDStatusSync,
		ScriptPath:     JobIDStatusSync,
		Parameters:     map[string]any{ParamOperationID: operationID},
		IdempotencyKey: JobIDStatusSync + ":" + operationID,
		DedupPolicy:    DefaultDedupPolicy,
	}
}

func OperationIDFromMessage(msg *job.ExecutionMessage) (string, error) {
	if msg == nil || msg.Parameters == nil {
		return "", ErrMissingOperationID
	}
	operationID, _ := msg.Parameters[ParamOperationID].(string)
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return "", ErrMissingOperationID
	}
	return operationID, nil
}

// StatusSyncEnqueuer is a core.StatusSyncHook that defers the sync to a
// go-job queue instead of calling the surrounding system inline.
type StatusSyncEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewStatusSyncEnqueuer(enqueuer queue.Enqueuer) *StatusSyncEnqueuer {
	return &StatusSyncEnqueuer{enqueuer: enqueuer}
}

func (e *StatusSyncEnqueuer) SyncStatus(ctx context.Context, operationID string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(operationID) == "" {
		return ErrMissingOperationID
	}
	return e.enqueuer.Enqueue(ctx, StatusSyncMessage(operationID))
}

// StatusSyncWorker drains status sync deliveries into the real hook.
type StatusSyncWorker struct {
	dequeuer queue.Dequeuer
	target   core.StatusSyncHook
	policy   RetryPolicy
	logger   glog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewStatusSyncWorker(dequeuer queue.Dequeuer, target core.StatusSyncHook, policy RetryPolicy, logger glog.Logger) *StatusSyncWorker {
	if logger == nil {
		logger = glog.Nop()
	}
	return &StatusSyncWorker{
		dequeuer: dequeuer,
		target:   target,
		policy:   policy,
		logger:   logger,
		attempts: map[string]int{},
	}
}

// ProcessNext handles a single delivery. Malformed messages are dead
// lettered; sync failures are nacked under the retry policy and returned.
func (w *StatusSyncWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.target == nil {
		return fmt.Errorf("gojob: status sync worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	operationID, err := OperationIDFromMessage(msg)
	if err != nil {
		w.logger.Warn("status sync message dropped", "error", err.Error())
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	key := msg.IdempotencyKey
	if syncErr := w.target.SyncStatus(ctx, operationID); syncErr != nil {
		attempt := w.bumpAttempt(key)
		opts := w.policy.NormalizeAttempt(queue.NackOptions{Requeue: true, Reason: syncErr.Error()}, attempt)
		w.logger.Warn("status sync failed",
			ParamOperationID, operationID,
			"attempt", attempt,
			"requeue", opts.Requeue,
			"dead_letter", opts.DeadLetter,
		)
		if opts.DeadLetter || !opts.Requeue {
			w.resetAttempt(key)
		}
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return errors.Join(syncErr, nackErr)
		}
		return syncErr
	}

	w.resetAttempt(key)
	return delivery.Ack(ctx)
}

func (w *StatusSyncWorker) bumpAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *StatusSyncWorker) resetAttempt(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

// WorkerHookAdapter reports go-job worker events as SCA sync metrics and
// log lines.
type WorkerHookAdapter struct {
	logger  glog.Logger
	metrics core.MetricsRecorder
}

func NewWorkerHookAdapter(logger glog.Logger, metrics core.MetricsRecorder) *WorkerHookAdapter {
	if logger == nil {
		logger = glog.Nop()
	}
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &WorkerHookAdapter{logger: logger, metrics: metrics}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.observe(ctx, "start", event)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.observe(ctx, "success", event)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.observe(ctx, "failure", event)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.observe(ctx, "retry", event)
}

func (a *WorkerHookAdapter) observe(ctx context.Context, phase string, event worker.Event) {
	if a == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	tags := map[string]string{"phase": phase}
	args := []any{"phase", phase, "attempt", event.Attempt}
	if message != nil {
		tags["job_id"] = message.JobID
		if operationID, err := OperationIDFromMessage(message); err == nil {
			args = append(args, ParamOperationID, operationID)
		}
	}
	a.metrics.IncCounter(ctx, statusSyncMetricScope+"."+phase+".total", 1, tags)
	if event.Duration > 0 {
		a.metrics.ObserveHistogram(ctx, statusSyncMetricScope+".duration_ms", float64(event.Duration.Milliseconds()), tags)
	}

	logger := a.logger.WithContext(ctx)
	switch phase {
	case "failure", "retry":
		if event.Err != nil {
			args = append(args, "error", event.Err.Error())
		}
		logger.Warn("status sync job "+phase, args...)
	default:
		logger.Debug("status sync job "+phase, args...)
	}
}

var (
	_ core.StatusSyncHook = (*StatusSyncEnqueuer)(nil)
	_ worker.Hook         = (*WorkerHookAdapter)(nil)
)
