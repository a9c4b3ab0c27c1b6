package prom

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/goliatone/go-psd2-sca/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels is the fixed label set every SCA metric carries. Tags outside the
// set are dropped; missing ones are exported as "".
var Labels = []string{
	"operation",
	"status",
	"kind",
	"payment_type",
	"sca_status",
	"error_code",
	"phase",
	"job_id",
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// DefaultBuckets are in milliseconds; remote SCA calls sit between tens of
// milliseconds and the remote timeout.
var DefaultBuckets = prometheus.ExponentialBuckets(5, 2, 12)

type Config struct {
	Registry  prometheus.Registerer
	Namespace string
	Buckets   []float64
}

// MetricsRecorder exports core metrics as Prometheus vectors, created on
// first use per metric name.
type MetricsRecorder struct {
	registry  prometheus.Registerer
	namespace string
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	lastErr    error
}

func NewMetricsRecorder(cfg Config) *MetricsRecorder {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	return &MetricsRecorder{
		registry:   registry,
		namespace:  SanitizeName(cfg.Namespace),
		buckets:    buckets,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

func (r *MetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counterVec(name)
	if vec == nil {
		return
	}
	vec.WithLabelValues(labelValues(tags)...).Add(float64(value))
}

func (r *MetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogramVec(name)
	if vec == nil {
		return
	}
	vec.WithLabelValues(labelValues(tags)...).Observe(value)
}

// Err reports the last registration failure, if any.
func (r *MetricsRecorder) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *MetricsRecorder) counterVec(name string) *prometheus.CounterVec {
	name = SanitizeName(name)
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      "SCA counter " + name,
	}, Labels)
	registered, err := register(r.registry, vec)
	if err != nil {
		r.lastErr = err
		return nil
	}
	counter, ok := registered.(*prometheus.CounterVec)
	if !ok {
		r.lastErr = errors.New("prometheus: metric " + name + " registered with another type")
		return nil
	}
	r.counters[name] = counter
	return counter
}

func (r *MetricsRecorder) histogramVec(name string) *prometheus.HistogramVec {
	name = SanitizeName(name)
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      "SCA histogram " + name,
		Buckets:   r.buckets,
	}, Labels)
	registered, err := register(r.registry, vec)
	if err != nil {
		r.lastErr = err
		return nil
	}
	histogram, ok := registered.(*prometheus.HistogramVec)
	if !ok {
		r.lastErr = errors.New("prometheus: metric " + name + " registered with another type")
		return nil
	}
	r.histograms[name] = histogram
	return histogram
}

// register returns the already registered collector on duplicates so two
// recorders over one registry share vectors.
func register(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

// SanitizeName maps dotted core metric names onto the Prometheus charset,
// e.g. "sca.confirm_code.total" becomes "sca_confirm_code_total".
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = invalidNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func labelValues(tags map[string]string) []string {
	values := make([]string, len(Labels))
	for i, label := range Labels {
		values[i] = strings.TrimSpace(tags[label])
	}
	return values
}

var _ core.MetricsRecorder = (*MetricsRecorder)(nil)
