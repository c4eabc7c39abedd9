// Package composition models the structured interpretation of the input
// buffer: a stack of contiguous segments, each with a commitment status and
// a lazily prepared candidate menu.
package composition

import (
	"sort"

	"imecore/internal/candidate"
)

// Well-known segment tags.
const (
	TagSelectedBeforeEditing = "selected_before_editing"
	TagPartial               = "partial"
	TagPhony                 = "phony"
	TagRaw                   = "raw"
)

// Status is the commitment level of a segment.
type Status int

const (
	// StatusVoid marks a segment that still needs translation.
	StatusVoid Status = iota
	// StatusGuess marks a translated segment whose highlighted candidate is
	// only a guess.
	StatusGuess
	// StatusSelected marks a segment whose candidate the user picked.
	StatusSelected
	// StatusConfirmed marks a segment that can no longer be reopened.
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusVoid:
		return "void"
	case StatusGuess:
		return "guess"
	case StatusSelected:
		return "selected"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Menu is the lazy candidate sequence attached to a segment.
// It is owned by the translation subsystem; a segment only references it.
type Menu interface {
	// Prepare materializes at least n candidates if the sources allow and
	// returns how many are available.
	Prepare(n int) int
	// CandidateAt returns the candidate at index, preparing as needed.
	// Returns nil past the end.
	CandidateAt(index int) candidate.Candidate
	// Count returns the number of candidates prepared so far.
	Count() int
	// Empty reports whether the menu can produce no candidate at all.
	Empty() bool
}

// Segment is one contiguous range [Start, End) of the input.
type Segment struct {
	Start int
	End   int
	// Length is the span the segment was created with. Close may shrink
	// End; Reopen restores it when the caret still sits at the old end.
	Length        int
	Status        Status
	Tags          map[string]struct{}
	Menu          Menu
	SelectedIndex int
	Prompt        string
}

// NewSegment creates a void segment covering [start, end).
func NewSegment(start, end int) *Segment {
	return &Segment{
		Start:  start,
		End:    end,
		Length: end - start,
		Tags:   make(map[string]struct{}),
	}
}

// Clear resets the segment to a void state over the same range.
func (s *Segment) Clear() {
	s.Status = StatusVoid
	s.Tags = make(map[string]struct{})
	s.Menu = nil
	s.SelectedIndex = 0
	s.Prompt = ""
}

// Close shrinks the segment to the end of its selected candidate when that
// candidate covers only part of the range, tagging it partial.
func (s *Segment) Close() {
	cand := s.SelectedCandidate()
	if cand != nil && cand.End() < s.End {
		s.End = cand.End()
		s.AddTag(TagPartial)
	}
}

// Reopen moves a selected segment back to guess with its trailing boundary
// at caret. Returns false for segments that were never selected.
//
// When the caret sits at the segment's original end the menu and
// selection are kept; otherwise the menu is dropped so the segment gets
// translated again over its new range.
func (s *Segment) Reopen(caret int) bool {
	if s.Status < StatusSelected {
		return false
	}
	if caret < s.Start {
		caret = s.Start
	}
	originalEnd := s.Start + s.Length
	if caret != originalEnd {
		s.Menu = nil
		s.SelectedIndex = 0
	}
	s.End = caret
	s.Status = StatusGuess
	s.RemoveTag(TagPartial)
	return true
}

// HasTag reports whether tag is set.
func (s *Segment) HasTag(tag string) bool {
	_, ok := s.Tags[tag]
	return ok
}

// AddTag sets tag.
func (s *Segment) AddTag(tag string) {
	if s.Tags == nil {
		s.Tags = make(map[string]struct{})
	}
	s.Tags[tag] = struct{}{}
}

// RemoveTag clears tag.
func (s *Segment) RemoveTag(tag string) {
	delete(s.Tags, tag)
}

// TagList returns the tags in sorted order.
func (s *Segment) TagList() []string {
	tags := make([]string, 0, len(s.Tags))
	for tag := range s.Tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// CandidateAt returns the menu candidate at index, or nil.
func (s *Segment) CandidateAt(index int) candidate.Candidate {
	if s.Menu == nil || index < 0 {
		return nil
	}
	return s.Menu.CandidateAt(index)
}

// SelectedCandidate returns the candidate at SelectedIndex, or nil.
func (s *Segment) SelectedCandidate() candidate.Candidate {
	return s.CandidateAt(s.SelectedIndex)
}

// Empty reports whether the segment covers no input.
func (s *Segment) Empty() bool {
	return s.Start == s.End
}
