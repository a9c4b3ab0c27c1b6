package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

type logLevel int

const (
	levelInfo logLevel = iota
	levelWarn
	levelError
)

// stepOutcome is the observable summary of one authorisation step. The same
// value feeds metrics tags and the structured log line.
type stepOutcome struct {
	action      ActionKind
	op          OperationContext
	status      ScaStatus
	operationID string
	textCode    string
	errKind     ErrorKind
	retryable   bool
	elapsed     time.Duration
	err         error
}

func newStepOutcome(action ActionKind, op OperationContext, result StepResult, err error, elapsed time.Duration) stepOutcome {
	outcome := stepOutcome{
		action:      action,
		op:          op,
		status:      result.Status,
		operationID: firstNonEmpty(result.OperationID, op.OperationID),
		elapsed:     elapsed,
		err:         err,
	}
	if result.Err != nil {
		outcome.textCode = result.Err.TextCode
	}
	if err != nil {
		outcome.errKind, _ = KindOf(err)
		outcome.retryable = IsRetryable(err)
	}
	return outcome
}

func (o stepOutcome) failed() bool {
	return o.err != nil
}

func (o stepOutcome) metricName(suffix string) string {
	action := string(o.action)
	if action == "" {
		action = "unknown"
	}
	return "sca." + action + "." + suffix
}

func (o stepOutcome) tags() map[string]string {
	tags := map[string]string{
		"operation": string(o.action),
		"status":    "success",
	}
	if o.failed() {
		tags["status"] = "failure"
	}
	if o.op.Kind != "" {
		tags["kind"] = string(o.op.Kind)
	}
	if o.op.Kind == OperationKindPayment && o.op.PaymentType != "" {
		tags["payment_type"] = string(o.op.PaymentType)
	}
	if o.status != "" {
		tags["sca_status"] = string(o.status)
	}
	if o.textCode != "" {
		tags["error_code"] = o.textCode
	}
	if o.retryable {
		tags["retryable"] = "true"
	}
	return tags
}

func (o stepOutcome) fields(base map[string]any) map[string]any {
	fields := cloneFields(base)
	fields["event_type"] = string(o.action)
	fields["duration_ms"] = o.elapsed.Milliseconds()
	if o.status != "" {
		fields["sca_status"] = string(o.status)
	}
	if o.operationID != "" {
		fields["operation_id"] = o.operationID
	}
	if !o.failed() {
		fields["status"] = "success"
		return fields
	}
	fields["status"] = "failure"
	fields["error"] = o.err.Error()
	if o.textCode != "" {
		fields["error_code"] = o.textCode
	}
	if o.errKind != "" {
		fields["error_kind"] = string(o.errKind)
	}
	return fields
}

// level keeps remote outages at warn; the PSU can retry them and they say
// nothing about the state of the authorisation.
func (o stepOutcome) level() logLevel {
	switch {
	case !o.failed():
		return levelInfo
	case o.retryable:
		return levelWarn
	default:
		return levelError
	}
}

func (s *Service) reportStep(ctx context.Context, outcome stepOutcome, base map[string]any) {
	if s == nil {
		return
	}
	tags := outcome.tags()
	s.recordCounter(ctx, outcome.metricName("total"), 1, tags)
	s.recordHistogram(ctx, outcome.metricName("duration_ms"), float64(outcome.elapsed.Milliseconds()), tags)

	message := string(outcome.action) + " succeeded"
	if outcome.failed() {
		message = string(outcome.action) + " failed"
	}
	s.emit(ctx, outcome.level(), message, outcome.fields(base))
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.emit(ctx, levelError, message, fields)
}

// emit redacts credentials before the fields reach any logger.
func (s *Service) emit(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	fields = RedactSensitiveMap(fields)
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := flattenFields(fields)
	switch level {
	case levelError:
		logger.Error(message, args...)
	case levelWarn:
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
