// Package menu provides the lazy candidate menu attached to segments and
// the translation streams that feed it.
package menu

import (
	"imecore/internal/candidate"
	"imecore/internal/composition"
)

// Translation is a lazy, ordered stream of candidates.
type Translation interface {
	// Exhausted reports whether the stream has no more candidates.
	Exhausted() bool
	// Peek returns the current candidate without consuming it, or nil when
	// exhausted.
	Peek() candidate.Candidate
	// Next advances past the current candidate. It returns false once the
	// stream is exhausted.
	Next() bool
}

// Translator produces candidates for the input of one segment.
type Translator interface {
	Query(input string, seg *composition.Segment) Translation
}

// Filter decorates, drops or merges candidates flowing into a menu.
// prepared holds the candidates the menu has already taken, so a filter may
// fold a new candidate into an earlier one.
type Filter interface {
	Apply(t Translation, prepared *[]candidate.Candidate) Translation
	AppliesTo(seg *composition.Segment) bool
}

// FifoTranslation streams a fixed list of candidates.
type FifoTranslation struct {
	cands []candidate.Candidate
	pos   int
}

// NewFifoTranslation streams cands in order.
func NewFifoTranslation(cands ...candidate.Candidate) *FifoTranslation {
	return &FifoTranslation{cands: cands}
}

// Append adds a candidate to the end of the stream.
func (t *FifoTranslation) Append(c candidate.Candidate) {
	t.cands = append(t.cands, c)
}

func (t *FifoTranslation) Exhausted() bool { return t.pos >= len(t.cands) }

func (t *FifoTranslation) Peek() candidate.Candidate {
	if t.Exhausted() {
		return nil
	}
	return t.cands[t.pos]
}

func (t *FifoTranslation) Next() bool {
	if t.Exhausted() {
		return false
	}
	t.pos++
	return !t.Exhausted()
}

// FuncTranslation pulls candidates from a generator on demand.
// The generator returns false when it has nothing more to give.
type FuncTranslation struct {
	gen     func() (candidate.Candidate, bool)
	current candidate.Candidate
	done    bool
}

// NewFuncTranslation creates a translation backed by gen.
func NewFuncTranslation(gen func() (candidate.Candidate, bool)) *FuncTranslation {
	t := &FuncTranslation{gen: gen}
	t.pull()
	return t
}

func (t *FuncTranslation) pull() {
	c, ok := t.gen()
	if !ok || c == nil {
		t.current = nil
		t.done = true
		return
	}
	t.current = c
}

func (t *FuncTranslation) Exhausted() bool { return t.done }

func (t *FuncTranslation) Peek() candidate.Candidate { return t.current }

func (t *FuncTranslation) Next() bool {
	if t.done {
		return false
	}
	t.pull()
	return !t.done
}

// MergedTranslation interleaves several translations by candidate.Compare.
// On a tie the translation added first wins, so merging is stable.
type MergedTranslation struct {
	sources []Translation
	current int
}

// NewMergedTranslation merges sources, skipping nil ones.
func NewMergedTranslation(sources ...Translation) *MergedTranslation {
	m := &MergedTranslation{current: -1}
	for _, s := range sources {
		m.Add(s)
	}
	return m
}

// Add appends another source.
func (m *MergedTranslation) Add(t Translation) {
	if t == nil {
		return
	}
	m.sources = append(m.sources, t)
	m.elect()
}

// Len returns the number of sources.
func (m *MergedTranslation) Len() int { return len(m.sources) }

func (m *MergedTranslation) elect() {
	m.current = -1
	var best candidate.Candidate
	for i, s := range m.sources {
		if s.Exhausted() {
			continue
		}
		c := s.Peek()
		if c == nil {
			continue
		}
		if m.current < 0 || candidate.Compare(c, best) < 0 {
			m.current = i
			best = c
		}
	}
}

func (m *MergedTranslation) Exhausted() bool { return m.current < 0 }

func (m *MergedTranslation) Peek() candidate.Candidate {
	if m.current < 0 {
		return nil
	}
	return m.sources[m.current].Peek()
}

func (m *MergedTranslation) Next() bool {
	if m.current < 0 {
		return false
	}
	m.sources[m.current].Next()
	m.elect()
	return m.current >= 0
}
