package metrics

import "time"

// EngineMetrics groups the metrics recorded by input method engines.
// All methods are safe on a nil receiver.
type EngineMetrics struct {
	registry *Registry

	KeysTotal      *Counter
	KeysHandled    *Counter
	Commits        *Counter
	CommittedChars *Counter
	Selections     *Counter
	Deletions      *Counter
	Panics         *Counter

	ActiveEngines *Gauge

	ComposeSeconds *Histogram
	KeySeconds     *Histogram
}

// NewEngineMetrics registers the engine metrics on registry, or on a new
// "imecore" registry when registry is nil.
func NewEngineMetrics(registry *Registry) *EngineMetrics {
	if registry == nil {
		registry = NewRegistry("imecore")
	}
	return &EngineMetrics{
		registry: registry,

		KeysTotal:      registry.Counter("keys_total", "Key events offered to engines", nil),
		KeysHandled:    registry.Counter("keys_handled_total", "Key events consumed by engines", nil),
		Commits:        registry.Counter("commits_total", "Texts committed to applications", nil),
		CommittedChars: registry.Counter("committed_chars_total", "Characters committed to applications", nil),
		Selections:     registry.Counter("selections_total", "Candidates selected", nil),
		Deletions:      registry.Counter("deletions_total", "Candidates deleted from the user dictionary", nil),
		Panics:         registry.Counter("panics_total", "Recovered engine panics", nil),

		ActiveEngines: registry.Gauge("active_engines", "Engines currently serving an input context", nil),

		ComposeSeconds: registry.Histogram("compose_seconds", "Time spent segmenting and translating input", nil, LatencyBuckets),
		KeySeconds:     registry.Histogram("key_seconds", "Time spent handling one key event", nil, LatencyBuckets),
	}
}

// Registry returns the registry holding the metrics.
func (m *EngineMetrics) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordKey counts a key event and how long it took.
func (m *EngineMetrics) RecordKey(handled bool, start time.Time) {
	if m == nil {
		return
	}
	m.KeysTotal.Inc()
	if handled {
		m.KeysHandled.Inc()
	}
	m.KeySeconds.ObserveSince(start)
}

// RecordCommit counts committed text.
func (m *EngineMetrics) RecordCommit(text string) {
	if m == nil {
		return
	}
	m.Commits.Inc()
	m.CommittedChars.Add(uint64(len([]rune(text))))
}

// RecordCompose records the duration of one composition pass.
func (m *EngineMetrics) RecordCompose(start time.Time) {
	if m == nil {
		return
	}
	m.ComposeSeconds.ObserveSince(start)
}

func (m *EngineMetrics) RecordSelection() {
	if m != nil {
		m.Selections.Inc()
	}
}

func (m *EngineMetrics) RecordDeletion() {
	if m != nil {
		m.Deletions.Inc()
	}
}

func (m *EngineMetrics) RecordPanic() {
	if m != nil {
		m.Panics.Inc()
	}
}

func (m *EngineMetrics) EngineStarted() {
	if m != nil {
		m.ActiveEngines.Inc()
	}
}

func (m *EngineMetrics) EngineStopped() {
	if m != nil {
		m.ActiveEngines.Dec()
	}
}
