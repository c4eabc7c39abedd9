package userdict

import (
	"context"
	"log/slog"

	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/menu"
	"imecore/internal/notify"
	"imecore/internal/session"
)

// CandidateType is the type of candidates read from the user dictionary.
const CandidateType = "user"

// Manager learns from a session: committed segments are recorded and
// deleted candidates are tombstoned.
type Manager struct {
	store  *Store
	logger *slog.Logger
	conns  []notify.Connection
}

// NewManager creates a manager writing to store.
func NewManager(store *Store) *Manager {
	return &Manager{store: store, logger: store.logger}
}

// Attach subscribes to the commit and delete channels of ctx.
func (m *Manager) Attach(ctx *session.Context) {
	m.conns = append(m.conns,
		ctx.CommitNotifier().Connect(m.onCommit),
		ctx.DeleteNotifier().Connect(m.onDelete),
	)
}

// Detach drops every subscription made by Attach.
func (m *Manager) Detach() {
	for _, c := range m.conns {
		c.Disconnect()
	}
	m.conns = nil
}

func codeOf(input string, c candidate.Candidate) string {
	start, end := c.Start(), c.End()
	if start < 0 || end > len(input) || start >= end {
		return ""
	}
	return input[start:end]
}

// learnable excludes candidates that only echo the input.
func learnable(c candidate.Candidate, code string) bool {
	return code != "" && c.Text() != "" && c.Text() != code
}

func (m *Manager) onCommit(ctx *session.Context) {
	input := ctx.Input()
	for _, seg := range ctx.Composition().Segments() {
		if seg.Status < composition.StatusSelected {
			continue
		}
		for _, g := range candidate.GetGenuineCandidates(seg.SelectedCandidate()) {
			code := codeOf(input, g)
			if !learnable(g, code) {
				continue
			}
			if err := m.store.Commit(context.Background(), code, g.Text()); err != nil {
				m.logger.Warn("failed to record commit", "code", code, "error", err)
			}
		}
	}
}

func (m *Manager) onDelete(ctx *session.Context) {
	input := ctx.Input()
	for _, g := range candidate.GetGenuineCandidates(ctx.DeletedCandidate()) {
		code := codeOf(input, g)
		if code == "" {
			continue
		}
		if _, err := m.store.Delete(context.Background(), code, g.Text()); err != nil {
			m.logger.Warn("failed to delete entry", "code", code, "error", err)
		}
	}
}

// Translator offers learned phrases for a segment's code.
type Translator struct {
	store *Store
	// Boost is added to entry weights so learned phrases outrank table
	// phrases of the same span.
	Boost float64
}

// NewTranslator creates a translator reading store.
func NewTranslator(store *Store) *Translator {
	return &Translator{store: store, Boost: 100}
}

// Query implements menu.Translator.
func (t *Translator) Query(input string, seg *composition.Segment) menu.Translation {
	if seg == nil || input == "" || seg.HasTag(composition.TagRaw) {
		return nil
	}
	entries, err := t.store.Lookup(context.Background(), input)
	if err != nil {
		t.store.logger.Warn("user dictionary lookup failed", "code", input, "error", err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	tr := menu.NewFifoTranslation()
	for _, e := range entries {
		tr.Append(candidate.NewSimple(CandidateType, seg.Start, seg.Start+len(input), e.Text, "").
			WithQuality(e.Weight + t.Boost))
	}
	return tr
}
