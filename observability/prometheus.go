package observability

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gu "github.com/xraph/go-utils/metrics"
)

var _ gu.MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory is a go-utils MetricFactory whose instruments are also
// registered with a Prometheus registerer. The go-utils side keeps the
// in-process statistics (Value, Count, Percentile); Prometheus serves the
// scrape endpoint.
//
// Label keys are fixed when an instrument is created: pass them with
// gu.WithLabel(key, "") and set values through WithLabels. A series is
// exported once a value is recorded on it.
type PrometheusFactory struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*promCounter
	gauges     map[string]*promGauge
	histograms map[string]*promHistogram
	summaries  map[string]*promSummary
	timers     map[string]*promTimer
}

// NewPrometheusFactory returns a factory registering with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	return &PrometheusFactory{
		reg:        reg,
		counters:   make(map[string]*promCounter),
		gauges:     make(map[string]*promGauge),
		histograms: make(map[string]*promHistogram),
		summaries:  make(map[string]*promSummary),
		timers:     make(map[string]*promTimer),
	}
}

// metricSpec is the subset of go-utils options that shape a Prometheus
// metric family.
type metricSpec struct {
	opts   prometheus.Opts
	keys   []string
	labels prometheus.Labels
	bucket []float64
}

func newSpec(name string, opts []gu.MetricOption) metricSpec {
	o := &gu.MetricOptions{}
	for _, opt := range opts {
		opt(o)
	}
	keys := slices.Sorted(maps.Keys(o.Labels))
	help := o.Description
	if help == "" {
		help = name
	}
	return metricSpec{
		opts: prometheus.Opts{
			Namespace:   o.Namespace,
			Subsystem:   o.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: o.ConstLabels,
		},
		keys:   keys,
		labels: bind(keys, nil, o.Labels),
		bucket: o.Buckets,
	}
}

// bind fills every key of the family from extra, then base, so a child
// instrument always carries the full label set.
func bind(keys []string, base prometheus.Labels, extra map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		if v, ok := extra[k]; ok {
			out[k] = v
		} else {
			out[k] = base[k]
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Counter
// ──────────────────────────────────────────────────

type promCounter struct {
	gu.Counter
	vec    *prometheus.CounterVec
	keys   []string
	labels prometheus.Labels
}

// Counter returns the counter registered under name, creating it on first use.
func (f *PrometheusFactory) Counter(name string, opts ...gu.MetricOption) gu.Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[name]; ok {
		return c
	}
	spec := newSpec(name, opts)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts(spec.opts), spec.keys)
	f.reg.MustRegister(vec)
	c := &promCounter{
		Counter: gu.NewCounter(name, opts...),
		vec:     vec,
		keys:    spec.keys,
		labels:  spec.labels,
	}
	f.counters[name] = c
	return c
}

func (c *promCounter) Inc() { c.Add(1) }

func (c *promCounter) Add(delta float64) {
	if delta < 0 {
		return
	}
	c.Counter.Add(delta)
	c.vec.With(c.labels).Add(delta)
}

func (c *promCounter) AddWithExemplar(delta float64, exemplar gu.Exemplar) {
	c.Add(delta)
}

func (c *promCounter) WithLabels(labels map[string]string) gu.Counter {
	bound := bind(c.keys, c.labels, labels)
	return &promCounter{
		Counter: c.Counter.WithLabels(bound),
		vec:     c.vec,
		keys:    c.keys,
		labels:  bound,
	}
}

// ──────────────────────────────────────────────────
// Gauge
// ──────────────────────────────────────────────────

type promGauge struct {
	gu.Gauge
	vec    *prometheus.GaugeVec
	keys   []string
	labels prometheus.Labels
}

// Gauge returns the gauge registered under name, creating it on first use.
func (f *PrometheusFactory) Gauge(name string, opts ...gu.MetricOption) gu.Gauge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.gauges[name]; ok {
		return g
	}
	spec := newSpec(name, opts)
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts(spec.opts), spec.keys)
	f.reg.MustRegister(vec)
	g := &promGauge{
		Gauge:  gu.NewGauge(name, opts...),
		vec:    vec,
		keys:   spec.keys,
		labels: spec.labels,
	}
	f.gauges[name] = g
	return g
}

func (g *promGauge) Set(v float64)     { g.Gauge.Set(v); g.vec.With(g.labels).Set(v) }
func (g *promGauge) Inc()              { g.Add(1) }
func (g *promGauge) Dec()              { g.Add(-1) }
func (g *promGauge) Sub(delta float64) { g.Add(-delta) }

func (g *promGauge) Add(delta float64) {
	g.Gauge.Add(delta)
	g.vec.With(g.labels).Add(delta)
}

func (g *promGauge) SetToCurrentTime() {
	g.Set(float64(time.Now().Unix()))
}

func (g *promGauge) Reset() error {
	g.vec.With(g.labels).Set(0)
	return g.Gauge.Reset()
}

func (g *promGauge) WithLabels(labels map[string]string) gu.Gauge {
	bound := bind(g.keys, g.labels, labels)
	return &promGauge{
		Gauge:  g.Gauge.WithLabels(bound),
		vec:    g.vec,
		keys:   g.keys,
		labels: bound,
	}
}

// ──────────────────────────────────────────────────
// Histogram
// ──────────────────────────────────────────────────

type promHistogram struct {
	gu.Histogram
	vec    *prometheus.HistogramVec
	keys   []string
	labels prometheus.Labels
}

// Histogram returns the histogram registered under name, creating it on
// first use. Buckets default to prometheus.DefBuckets.
func (f *PrometheusFactory) Histogram(name string, opts ...gu.MetricOption) gu.Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.histograms[name]; ok {
		return h
	}
	spec := newSpec(name, opts)
	buckets := spec.bucket
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   spec.opts.Namespace,
		Subsystem:   spec.opts.Subsystem,
		Name:        spec.opts.Name,
		Help:        spec.opts.Help,
		ConstLabels: spec.opts.ConstLabels,
		Buckets:     buckets,
	}, spec.keys)
	f.reg.MustRegister(vec)
	h := &promHistogram{
		Histogram: gu.NewHistogram(name, append(opts, gu.WithBuckets(buckets...))...),
		vec:       vec,
		keys:      spec.keys,
		labels:    spec.labels,
	}
	f.histograms[name] = h
	return h
}

func (h *promHistogram) Observe(v float64) {
	h.Histogram.Observe(v)
	h.vec.With(h.labels).Observe(v)
}

func (h *promHistogram) ObserveWithExemplar(v float64, exemplar gu.Exemplar) {
	h.Histogram.ObserveWithExemplar(v, exemplar)
	h.vec.With(h.labels).Observe(v)
}

func (h *promHistogram) WithLabels(labels map[string]string) gu.Histogram {
	bound := bind(h.keys, h.labels, labels)
	return &promHistogram{
		Histogram: h.Histogram.WithLabels(bound),
		vec:       h.vec,
		keys:      h.keys,
		labels:    bound,
	}
}

// ──────────────────────────────────────────────────
// Summary
// ──────────────────────────────────────────────────

type promSummary struct {
	gu.Summary
	vec    *prometheus.SummaryVec
	keys   []string
	labels prometheus.Labels
}

// Summary returns the summary registered under name, creating it on first use.
func (f *PrometheusFactory) Summary(name string, opts ...gu.MetricOption) gu.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.summaries[name]; ok {
		return s
	}
	spec := newSpec(name, opts)
	vec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:   spec.opts.Namespace,
		Subsystem:   spec.opts.Subsystem,
		Name:        spec.opts.Name,
		Help:        spec.opts.Help,
		ConstLabels: spec.opts.ConstLabels,
		Objectives:  map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, spec.keys)
	f.reg.MustRegister(vec)
	s := &promSummary{
		Summary: gu.NewSummary(name, opts...),
		vec:     vec,
		keys:    spec.keys,
		labels:  spec.labels,
	}
	f.summaries[name] = s
	return s
}

func (s *promSummary) Observe(v float64) {
	s.Summary.Observe(v)
	s.vec.With(s.labels).Observe(v)
}

func (s *promSummary) WithLabels(labels map[string]string) gu.Summary {
	bound := bind(s.keys, s.labels, labels)
	return &promSummary{
		Summary: s.Summary.WithLabels(bound),
		vec:     s.vec,
		keys:    s.keys,
		labels:  bound,
	}
}

// ──────────────────────────────────────────────────
// Timer
// ──────────────────────────────────────────────────

// promTimer exports durations in seconds as a Prometheus histogram named
// <name>_seconds.
type promTimer struct {
	gu.Timer
	vec    *prometheus.HistogramVec
	keys   []string
	labels prometheus.Labels
}

// Timer returns the timer registered under name, creating it on first use.
func (f *PrometheusFactory) Timer(name string, opts ...gu.MetricOption) gu.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.timers[name]; ok {
		return t
	}
	spec := newSpec(name, opts)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   spec.opts.Namespace,
		Subsystem:   spec.opts.Subsystem,
		Name:        spec.opts.Name + "_seconds",
		Help:        spec.opts.Help,
		ConstLabels: spec.opts.ConstLabels,
		Buckets:     prometheus.DefBuckets,
	}, spec.keys)
	f.reg.MustRegister(vec)
	t := &promTimer{
		Timer:  gu.NewTimer(name, opts...),
		vec:    vec,
		keys:   spec.keys,
		labels: spec.labels,
	}
	f.timers[name] = t
	return t
}

func (t *promTimer) Record(d time.Duration) {
	t.Timer.Record(d)
	t.vec.With(t.labels).Observe(d.Seconds())
}

func (t *promTimer) RecordWithExemplar(d time.Duration, exemplar gu.Exemplar) {
	t.Timer.RecordWithExemplar(d, exemplar)
	t.vec.With(t.labels).Observe(d.Seconds())
}

func (t *promTimer) Time() func() {
	start := time.Now()
	return func() { t.Record(time.Since(start)) }
}

func (t *promTimer) WithLabels(labels map[string]string) gu.Timer {
	bound := bind(t.keys, t.labels, labels)
	return &promTimer{
		Timer:  t.Timer.WithLabels(bound),
		vec:    t.vec,
		keys:   t.keys,
		labels: bound,
	}
}
