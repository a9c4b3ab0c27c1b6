package core

import (
	"context"
	"sync"
	"testing"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_ConfirmSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	client := &stubAuthClient{
		confirmFn: func(context.Context, string, string, string) (ScaResponse, error) {
			return ScaResponse{ScaStatus: ScaStatusFinalised}, nil
		},
	}
	svc := newTestService(t, client, WithMetricsRecorder(metrics), WithLoggerProvider(stubLoggerProvider{logger: logger}), WithLogger(logger))

	_, err := svc.ConfirmCode(context.Background(), ConfirmCodeRequest{
		Operation: OperationContext{Kind: OperationKindPayment, OperationID: "payment-1", PaymentType: PaymentTypeSingle},
		Code:      "123456",
		Blob:      mustEncode(t, paymentState(ScaStatusMethodSelected)),
	})
	if err != nil {
		t.Fatalf("confirm code: %v", err)
	}

	if len(metrics.counters) != 1 || metrics.counters[0].name != "sca.confirm_code.total" {
		t.Fatalf("expected one confirm counter, got %#v", metrics.counters)
	}
	tags := metrics.counters[0].tags
	if tags["status"] != "success" || tags["kind"] != "payment" || tags["sca_status"] != string(ScaStatusFinalised) {
		t.Fatalf("unexpected counter tags: %#v", tags)
	}
	if tags["payment_type"] != string(PaymentTypeSingle) {
		t.Fatalf("expected payment type tag, got %#v", tags)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0].name != "sca.confirm_code.duration_ms" {
		t.Fatalf("expected one duration histogram, got %#v", metrics.histograms)
	}

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected log records")
	}
	last := records[len(records)-1]
	if last.level != "info" || last.msg != "confirm_code succeeded" {
		t.Fatalf("unexpected log record %#v", last)
	}
	if last.fields["operation_id"] != "payment-1" {
		t.Fatalf("expected operation id in log fields, got %#v", last.fields)
	}
}

func TestServiceObservability_FailureCarriesErrorCodeAndRedacts(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	client := &stubAuthClient{
		loginFn: func(context.Context, LoginRequest) (ScaResponse, error) {
			return ScaResponse{}, &RemoteFault{StatusCode: 401, Message: "invalid login"}
		},
	}
	svc := newTestService(t, client, WithMetricsRecorder(metrics), WithLoggerProvider(stubLoggerProvider{logger: logger}), WithLogger(logger))

	_, err := svc.AuthorisePsu(context.Background(), AuthorisePsuRequest{
		Operation:   OperationContext{Kind: OperationKindConsent, OperationID: "consent-1"},
		Credentials: PsuCredentials{LoginID: "psu-1", Password: "hunter2"},
		Blob:        mustEncode(t, consentState(ScaStatusStarted)),
	})
	if !IsKind(err, KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	if len(metrics.counters) != 1 {
		t.Fatalf("expected one counter, got %#v", metrics.counters)
	}
	tags := metrics.counters[0].tags
	if tags["status"] != "failure" || tags["error_code"] != ScaErrorInvalidCredentials {
		t.Fatalf("unexpected failure tags: %#v", tags)
	}

	var failure *capturedLog
	records := logger.snapshot()
	for index := range records {
		if records[index].msg == "login failed" {
			failure = &records[index]
		}
	}
	if failure == nil || failure.level != "error" {
		t.Fatalf("expected login failure log, got %#v", records)
	}
	for _, record := range records {
		for key, value := range record.fields {
			if text, ok := value.(string); ok && text == "hunter2" {
				t.Fatalf("expected password to stay out of logs, found under %q", key)
			}
		}
	}
}

func TestServiceObservability_RemoteOutageLogsAtWarnAndTagsRetryable(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	client := &stubAuthClient{
		selectFn: func(context.Context, string, string, string) (ScaResponse, error) {
			return ScaResponse{}, &RemoteFault{StatusCode: 503, Message: "maintenance"}
		},
	}
	svc := newTestService(t, client, WithMetricsRecorder(metrics), WithLoggerProvider(stubLoggerProvider{logger: logger}), WithLogger(logger))

	_, err := svc.SelectScaMethod(context.Background(), SelectMethodRequest{
		Operation: consentOperation(),
		MethodID:  "sms-1",
		Blob:      mustEncode(t, consentState(ScaStatusPSUAuthenticated)),
	})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable outage, got %v", err)
	}

	if len(metrics.counters) != 1 || metrics.counters[0].name != "sca.select_method.total" {
		t.Fatalf("expected one select counter, got %#v", metrics.counters)
	}
	tags := metrics.counters[0].tags
	if tags["retryable"] != "true" || tags["error_code"] != ScaErrorRemoteUnavailable {
		t.Fatalf("unexpected outage tags: %#v", tags)
	}

	var step *capturedLog
	records := logger.snapshot()
	for index := range records {
		if records[index].msg == "select_method failed" {
			step = &records[index]
		}
	}
	if step == nil || step.level != "warn" {
		t.Fatalf("expected warn-level step log, got %#v", records)
	}
	if step.fields["error_kind"] != string(KindRemoteUnavailable) {
		t.Fatalf("expected error kind in fields, got %#v", step.fields)
	}
}

func TestStepOutcome_TagsOnlyPaymentTypeForPayments(t *testing.T) {
	op := consentOperation()
	op.PaymentType = PaymentTypeSingle
	outcome := newStepOutcome(ActionConfirmCode, op, StepResult{Status: ScaStatusFinalised}, nil, 0)
	tags := outcome.tags()
	if _, ok := tags["payment_type"]; ok {
		t.Fatalf("expected no payment type on a consent step, got %#v", tags)
	}
	if outcome.metricName("total") != "sca.confirm_code.total" || outcome.level() != levelInfo {
		t.Fatalf("unexpected outcome naming %q", outcome.metricName("total"))
	}
	if newStepOutcome("", op, StepResult{}, nil, 0).metricName("total") != "sca.unknown.total" {
		t.Fatalf("expected unknown action bucket")
	}
}
