package gologger

import (
	"context"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-psd2-sca/core"
)

const DefaultName = "psd2-sca"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if name == "" {
		name = DefaultName
	}
	return glog.Resolve(name, provider, logger)
}

// RedactingLogger masks credentials in key/value arguments before they reach
// the wrapped logger.
type RedactingLogger struct {
	next glog.Logger
}

func NewRedactingLogger(next glog.Logger) *RedactingLogger {
	if next == nil {
		next = glog.Nop()
	}
	return &RedactingLogger{next: next}
}

func (l *RedactingLogger) Trace(msg string, args ...any) {
	l.next.Trace(msg, core.RedactKeyValues(args...)...)
}

func (l *RedactingLogger) Debug(msg string, args ...any) {
	l.next.Debug(msg, core.RedactKeyValues(args...)...)
}

func (l *RedactingLogger) Info(msg string, args ...any) {
	l.next.Info(msg, core.RedactKeyValues(args...)...)
}

func (l *RedactingLogger) Warn(msg string, args ...any) {
	l.next.Warn(msg, core.RedactKeyValues(args...)...)
}

func (l *RedactingLogger) Error(msg string, args ...any) {
	l.next.Error(msg, core.RedactKeyValues(args...)...)
}

func (l *RedactingLogger) Fatal(msg string, args ...any) {
	l.next.Fatal(msg, core.RedactKeyValues(args...)...)
}

func (l *RedactingLogger) WithContext(ctx context.Context) glog.Logger {
	return &RedactingLogger{next: l.next.WithContext(ctx)}
}

type redactingProvider struct {
	next glog.LoggerProvider
}

func (p redactingProvider) GetLogger(name string) glog.Logger {
	if p.next == nil {
		return NewRedactingLogger(nil)
	}
	return NewRedactingLogger(p.next.GetLogger(name))
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns go-job bridges over
// redacting wrappers, so job parameters never leak credentials.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	redactedProvider := redactingProvider{next: resolvedProvider}
	redactedLogger := NewRedactingLogger(resolvedLogger)
	return resolvedProvider, resolvedLogger, ToJobProvider(redactedProvider), ToJobLogger(redactedLogger)
}

var (
	_ glog.Logger         = (*RedactingLogger)(nil)
	_ glog.LoggerProvider = redactingProvider{}
)
