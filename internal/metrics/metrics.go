// Package metrics keeps in-process counters, gauges and histograms and
// exposes them in the Prometheus text format.
//
// Metrics are registered once on a Registry and updated lock-free (counters,
// gauges) or under a short mutex (histograms). A nil metric is a no-op so
// callers need not check whether metrics are enabled.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a metric family in the exposition format.
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels are constant labels attached to a metric.
type Labels map[string]string

// String renders labels as {a="x",b="y"} with sorted keys.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, l[k])
	}
	b.WriteByte('}')
	return b.String()
}

// with returns the label string extended by one more pair.
func (l Labels) with(key, value string) string {
	s := l.String()
	pair := fmt.Sprintf("%s=%q", key, value)
	if s == "" {
		return "{" + pair + "}"
	}
	return s[:len(s)-1] + "," + pair + "}"
}

// Counter only goes up.
type Counter struct {
	name, help string
	labels     Labels
	value      atomic.Uint64
}

// Inc adds one.
func (c *Counter) Inc() {
	if c != nil {
		c.value.Add(1)
	}
}

// Add adds n.
func (c *Counter) Add(n uint64) {
	if c != nil {
		c.value.Add(n)
	}
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	if c == nil {
		return 0
	}
	return c.value.Load()
}

// Gauge goes up and down.
type Gauge struct {
	name, help string
	labels     Labels
	value      atomic.Int64
}

func (g *Gauge) Set(v int64) {
	if g != nil {
		g.value.Store(v)
	}
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v int64) {
	if g != nil {
		g.value.Add(v)
	}
}

func (g *Gauge) Value() int64 {
	if g == nil {
		return 0
	}
	return g.value.Load()
}

// LatencyBuckets suit per-key work, in seconds.
var LatencyBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// Histogram counts observations into cumulative upper-bound buckets.
type Histogram struct {
	name, help string
	labels     Labels
	bounds     []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, last is +Inf
	sum    float64
	count  uint64
}

func newHistogram(name, help string, labels Labels, bounds []float64) *Histogram {
	if len(bounds) == 0 {
		bounds = LatencyBuckets
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{
		name:   name,
		help:   help,
		labels: labels,
		bounds: sorted,
		counts: make([]uint64, len(sorted)+1),
	}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	if h == nil {
		return
	}
	// First bucket whose upper bound is >= v.
	idx := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	h.counts[idx]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// HistogramSnapshot is a consistent copy of a histogram.
type HistogramSnapshot struct {
	Bounds []float64 `json:"bounds"`
	// Cumulative holds one count per bound plus the +Inf total.
	Cumulative []uint64 `json:"cumulative"`
	Sum        float64  `json:"sum"`
	Count      uint64   `json:"count"`
}

// Mean returns the average observation, or 0 when empty.
func (s HistogramSnapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Snapshot copies the current state.
func (h *Histogram) Snapshot() HistogramSnapshot {
	if h == nil {
		return HistogramSnapshot{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]uint64, len(h.counts))
	var running uint64
	for i, n := range h.counts {
		running += n
		cum[i] = running
	}
	return HistogramSnapshot{
		Bounds:     append([]float64(nil), h.bounds...),
		Cumulative: cum,
		Sum:        h.sum,
		Count:      h.count,
	}
}

// Registry names and owns metrics.
type Registry struct {
	namespace string

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates a registry prefixing every name with namespace.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace:  namespace,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// Counter returns the counter called name, creating it on first use.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	key := r.fullName(name) + labels.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: r.fullName(name), help: help, labels: labels}
	r.counters[key] = c
	return c
}

// Gauge returns the gauge called name, creating it on first use.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	key := r.fullName(name) + labels.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: r.fullName(name), help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// Histogram returns the histogram called name, creating it on first use.
// Bounds are fixed by the first call.
func (r *Registry) Histogram(name, help string, labels Labels, bounds []float64) *Histogram {
	key := r.fullName(name) + labels.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h
	}
	h := newHistogram(r.fullName(name), help, labels, bounds)
	r.histograms[key] = h
	return h
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WritePrometheus writes every metric in the text exposition format,
// sorted by name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ew := &errWriter{w: w}
	header := func(name, help string, kind Kind, seen map[string]bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		ew.printf("# HELP %s %s\n", name, help)
		ew.printf("# TYPE %s %s\n", name, kind)
	}

	seen := make(map[string]bool)
	for _, k := range sortedKeys(r.counters) {
		c := r.counters[k]
		header(c.name, c.help, KindCounter, seen)
		ew.printf("%s%s %d\n", c.name, c.labels, c.Value())
	}
	for _, k := range sortedKeys(r.gauges) {
		g := r.gauges[k]
		header(g.name, g.help, KindGauge, seen)
		ew.printf("%s%s %d\n", g.name, g.labels, g.Value())
	}
	for _, k := range sortedKeys(r.histograms) {
		h := r.histograms[k]
		header(h.name, h.help, KindHistogram, seen)
		s := h.Snapshot()
		for i, b := range s.Bounds {
			ew.printf("%s_bucket%s %d\n", h.name, h.labels.with("le", formatBound(b)), s.Cumulative[i])
		}
		ew.printf("%s_bucket%s %d\n", h.name, h.labels.with("le", "+Inf"), s.Count)
		ew.printf("%s_sum%s %g\n", h.name, h.labels, s.Sum)
		ew.printf("%s_count%s %d\n", h.name, h.labels, s.Count)
	}
	return ew.err
}

func formatBound(b float64) string {
	return fmt.Sprintf("%g", b)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// Snapshot maps every metric name (with labels) to its value. Histograms
// map to a HistogramSnapshot.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.counters)+len(r.gauges)+len(r.histograms))
	for k, c := range r.counters {
		out[k] = c.Value()
	}
	for k, g := range r.gauges {
		out[k] = g.Value()
	}
	for k, h := range r.histograms {
		out[k] = h.Snapshot()
	}
	return out
}

// Handler serves the registry. Clients asking for JSON get the snapshot,
// everyone else the text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			enc.Encode(r.Snapshot())
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}
