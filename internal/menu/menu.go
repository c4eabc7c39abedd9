package menu

import (
	"imecore/internal/candidate"
)

// Menu lazily materializes candidates from its translations.
// It implements composition.Menu.
type Menu struct {
	merged     *MergedTranslation
	result     Translation
	candidates []candidate.Candidate
}

// New creates an empty menu.
func New() *Menu {
	m := &Menu{merged: NewMergedTranslation()}
	m.result = m.merged
	return m
}

// AddTranslation merges another candidate source into the menu.
// Translations must be added before any filter.
func (m *Menu) AddTranslation(t Translation) {
	m.merged.Add(t)
}

// AddFilter wraps the current result stream with f.
func (m *Menu) AddFilter(f Filter) {
	m.result = f.Apply(m.result, &m.candidates)
}

// Prepare pulls candidates until n are available or the sources run dry.
func (m *Menu) Prepare(n int) int {
	for len(m.candidates) < n && !m.result.Exhausted() {
		if c := m.result.Peek(); c != nil {
			m.candidates = append(m.candidates, c)
		}
		m.result.Next()
	}
	return len(m.candidates)
}

// CandidateAt returns the candidate at index, preparing as needed.
func (m *Menu) CandidateAt(index int) candidate.Candidate {
	if index < 0 {
		return nil
	}
	if index >= len(m.candidates) && index >= m.Prepare(index+1) {
		return nil
	}
	return m.candidates[index]
}

// Count returns the number of prepared candidates.
func (m *Menu) Count() int { return len(m.candidates) }

// Empty reports whether the menu can produce no candidate.
func (m *Menu) Empty() bool {
	return m.Prepare(1) == 0
}

// Candidates returns the prepared candidates.
func (m *Menu) Candidates() []candidate.Candidate {
	out := make([]candidate.Candidate, len(m.candidates))
	copy(out, m.candidates)
	return out
}

// Page is one screenful of candidates.
type Page struct {
	Size       int
	Number     int
	IsLastPage bool
	Candidates []candidate.Candidate
}

// CreatePage prepares and returns page number pageNo of size pageSize.
// Returns nil when the page would be empty.
func (m *Menu) CreatePage(pageSize, pageNo int) *Page {
	if pageSize <= 0 || pageNo < 0 {
		return nil
	}
	start := pageSize * pageNo
	end := start + pageSize
	available := m.Prepare(end + 1)
	if available <= start {
		return nil
	}
	last := end >= available
	if end > available {
		end = available
	}
	page := &Page{
		Size:       pageSize,
		Number:     pageNo,
		IsLastPage: last,
		Candidates: make([]candidate.Candidate, end-start),
	}
	copy(page.Candidates, m.candidates[start:end])
	return page
}
