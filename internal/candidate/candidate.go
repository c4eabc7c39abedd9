// Package candidate defines the proposed output texts produced for a range
// of input, their decorator variants, and the ordering used to merge them.
package candidate

import "sort"

// Candidate is a proposed output text spanning [Start, End) of the input.
//
// Implementations are immutable once handed to a menu. Decorators expose
// the candidate they wrap through Unwrapper.
type Candidate interface {
	Type() string
	Start() int
	End() int
	Quality() float64
	Text() string
	Comment() string
	Preedit() string
}

// Unwrapper is implemented by decorator candidates.
// Unwrap returns the next-level candidate, never nil.
type Unwrapper interface {
	Unwrap() Candidate
}

// Simple is a plain value candidate.
type Simple struct {
	Kind    string
	From    int
	To      int
	Value   string
	Note    string
	Display string
	Score   float64
}

// NewSimple creates a Simple candidate.
func NewSimple(kind string, start, end int, text, comment string) *Simple {
	return &Simple{
		Kind:  kind,
		From:  start,
		To:    end,
		Value: text,
		Note:  comment,
	}
}

func (c *Simple) Type() string { return c.Kind }
func (c *Simple) Start() int { return c.From }
func (c *Simple) End() int { return c.To }
func (c *Simple) Quality() float64 { return c.Score }
func (c *Simple) Text() string { return c.Value }
func (c *Simple) Comment() string { return c.Note }
func (c *Simple) Preedit() string { return c.Display }

// WithQuality sets the quality and returns the candidate for chaining.
func (c *Simple) WithQuality(q float64) *Simple {
	c.Score = q
	return c
}

// WithPreedit sets the preedit text and returns the candidate for chaining.
func (c *Simple) WithPreedit(p string) *Simple {
	c.Display = p
	return c
}

// Compare orders candidates for merging into one menu.
// A negative result means a sorts first.
//
// The candidate nearer to the beginning comes first, then the longer one,
// then the one with higher quality. Any candidate sorts before nil.
func Compare(a, b Candidate) int {
	if a == nil && b == nil {
		return 0
	}
	if b == nil {
		return -1
	}
	if a == nil {
		return 1
	}
	if k := a.Start() - b.Start(); k != 0 {
		return k
	}
	if k := a.End() - b.End(); k != 0 {
		return -k
	}
	qdiff := a.Quality() - b.Quality()
	switch {
	case qdiff > 0:
		return -1
	case qdiff < 0:
		return 1
	}
	return 0
}

// SortStable sorts candidates by Compare, keeping ties in their prior order.
func SortStable(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return Compare(cands[i], cands[j]) < 0
	})
}

// GetGenuineCandidate strips decorator wrapping: a Uniquified candidate
// resolves to its first item and a Shadow to its item, repeatedly, so the
// result is never a decorator. Returns nil only for a nil candidate.
func GetGenuineCandidate(c Candidate) Candidate {
	return Unwrap(c)
}

// GetGenuineCandidates returns one genuine candidate per Uniquified item in
// item order, or a single genuine candidate for any other variant.
func GetGenuineCandidates(c Candidate) []Candidate {
	if c == nil {
		return nil
	}
	for {
		if u, ok := c.(*Uniquified); ok {
			items := u.Items()
			result := make([]Candidate, 0, len(items))
			for _, item := range items {
				result = append(result, Unwrap(item))
			}
			return result
		}
		// A decorator over a Uniquified still fans out.
		w, ok := c.(Unwrapper)
		if !ok {
			return []Candidate{c}
		}
		c = w.Unwrap()
	}
}

// Unwrap follows Unwrapper links until a candidate that is not a decorator.
// Decorators defined outside this package take part by implementing
// Unwrapper.
func Unwrap(c Candidate) Candidate {
	for c != nil {
		u, ok := c.(Unwrapper)
		if !ok {
			return c
		}
		c = u.Unwrap()
	}
	return nil
}
