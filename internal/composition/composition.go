package composition

import (
	"fmt"
	"strings"
)

// Forwarder extends or re-derives the segment stack after the composition
// has been shortened or a segment has been selected. Implementations that
// need the default step should call OpenNext, not Forward.
type Forwarder interface {
	Forward(c *Composition) bool
}

// Segmentor recognizes the segment starting at the composition's current
// start position, typically through AddSegment. It returns false to stop
// later segmentors from running on the same step.
type Segmentor interface {
	Proceed(c *Composition) bool
}

// Preedit is the caret-annotated rendering of the composition.
// Offsets are byte offsets into Text.
type Preedit struct {
	Text     string
	CaretPos int
	SelStart int
	SelEnd   int
}

// Composition is an ordered stack of contiguous segments over a prefix of
// the input.
type Composition struct {
	input     string
	segments  []*Segment
	forwarder Forwarder
}

// New creates an empty composition.
func New() *Composition {
	return &Composition{}
}

// SetForwarder installs the collaborator invoked by Forward.
func (c *Composition) SetForwarder(f Forwarder) {
	c.forwarder = f
}

// Input returns the input the segments were derived from.
func (c *Composition) Input() string { return c.input }

// Empty reports whether there are no segments.
func (c *Composition) Empty() bool { return len(c.segments) == 0 }

// Len returns the number of segments.
func (c *Composition) Len() int { return len(c.segments) }

// At returns the segment at index i.
func (c *Composition) At(i int) *Segment { return c.segments[i] }

// Back returns the tail segment, or nil when empty.
func (c *Composition) Back() *Segment {
	if len(c.segments) == 0 {
		return nil
	}
	return c.segments[len(c.segments)-1]
}

// Segments returns the segments, earliest first.
func (c *Composition) Segments() []*Segment {
	out := make([]*Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// Reset points the composition at a new input. Segments reaching past the
// first byte where the inputs differ are dropped; the rest are kept.
func (c *Composition) Reset(input string) {
	diff := 0
	for diff < len(c.input) && diff < len(input) && c.input[diff] == input[diff] {
		diff++
	}
	disposed := 0
	for len(c.segments) > 0 && c.Back().End > diff {
		c.PopBack()
		disposed++
	}
	if disposed > 0 {
		c.OpenNext()
	}
	c.input = input
}

// Truncate keeps only the first n segments.
func (c *Composition) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(c.segments) {
		return
	}
	c.segments = c.segments[:n]
}

// AddSegment records a segment recognized at the current start position.
// A longer segment replaces the current tail; an equal one merges tags.
func (c *Composition) AddSegment(seg *Segment) bool {
	if seg.Start != c.CurrentStart() {
		return false
	}
	if len(c.segments) == 0 {
		c.segments = append(c.segments, seg)
		return true
	}
	last := c.Back()
	switch {
	case last.End < seg.End:
		c.segments[len(c.segments)-1] = seg
	case last.End == seg.End:
		for tag := range seg.Tags {
			last.AddTag(tag)
		}
	}
	return true
}

// Forward asks the installed Forwarder to extend the composition, falling
// back to OpenNext when none is installed.
func (c *Composition) Forward() bool {
	if c.forwarder != nil {
		return c.forwarder.Forward(c)
	}
	return c.OpenNext()
}

// OpenNext opens an empty segment where the tail segment ends.
// It fails when there is no tail or the tail is itself empty.
func (c *Composition) OpenNext() bool {
	last := c.Back()
	if last == nil || last.Empty() {
		return false
	}
	c.segments = append(c.segments, NewSegment(last.End, last.End))
	return true
}

// Trim pops an empty trailing segment.
func (c *Composition) Trim() bool {
	last := c.Back()
	if last != nil && last.Empty() {
		c.PopBack()
		return true
	}
	return false
}

// PopBack removes and returns the tail segment, or nil when empty.
func (c *Composition) PopBack() *Segment {
	last := c.Back()
	if last == nil {
		return nil
	}
	c.segments[len(c.segments)-1] = nil
	c.segments = c.segments[:len(c.segments)-1]
	return last
}

// Clear drops every segment and forgets the input.
func (c *Composition) Clear() {
	c.segments = nil
	c.input = ""
}

// HasFinishedSegmentation reports whether the segments cover the input.
func (c *Composition) HasFinishedSegmentation() bool {
	return c.CurrentEnd() >= len(c.input)
}

// HasFinishedComposition reports whether the last non-empty segment has
// been selected or confirmed.
func (c *Composition) HasFinishedComposition() bool {
	if len(c.segments) == 0 {
		return false
	}
	k := len(c.segments) - 1
	if k > 0 && c.segments[k].Empty() {
		k--
	}
	return c.segments[k].Status >= StatusSelected
}

// CurrentStart returns the start of the tail segment, or 0.
func (c *Composition) CurrentStart() int {
	if last := c.Back(); last != nil {
		return last.Start
	}
	return 0
}

// CurrentEnd returns the end of the tail segment, or 0.
func (c *Composition) CurrentEnd() int {
	if last := c.Back(); last != nil {
		return last.End
	}
	return 0
}

// ConfirmedPosition returns the end of the last selected or confirmed
// segment, or 0.
func (c *Composition) ConfirmedPosition() int {
	k := 0
	for _, seg := range c.segments {
		if seg.Status >= StatusSelected {
			k = seg.End
		}
	}
	return k
}

func (c *Composition) slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(c.input) {
		end = len(c.input)
	}
	if start >= end {
		return ""
	}
	return c.input[start:end]
}

// GetPreedit renders the composition for editing. Segments before the tail
// show their selected text; the tail shows the candidate preedit or raw
// input and is reported as the selection range. softCursor, when not
// empty, is inserted at the caret.
func (c *Composition) GetPreedit(fullInput string, caretPos int, softCursor string) Preedit {
	var b strings.Builder
	var p Preedit
	end := 0
	caretText := -1

	for i, seg := range c.segments {
		start := end
		cand := seg.SelectedCandidate()
		if i < len(c.segments)-1 {
			if cand != nil {
				end = cand.End()
				b.WriteString(cand.Text())
			} else {
				end = seg.End
				if !seg.HasTag(TagPhony) {
					b.WriteString(c.slice(start, end))
				}
			}
		} else {
			p.SelStart = b.Len()
			if cand != nil && cand.Preedit() != "" {
				end = cand.End()
				b.WriteString(cand.Preedit())
			} else {
				end = seg.End
				b.WriteString(c.slice(start, end))
			}
			p.SelEnd = b.Len()
		}
		if caretText < 0 && start <= caretPos && caretPos < end {
			caretText = b.Len()
		}
	}
	if end < len(fullInput) {
		if caretText < 0 && caretPos >= end {
			caretText = b.Len() + caretPos - end
		}
		b.WriteString(fullInput[end:])
	}
	if caretText < 0 {
		caretText = b.Len()
	}

	p.Text = b.String()
	p.CaretPos = caretText
	if softCursor != "" {
		p.Text = p.Text[:caretText] + softCursor + p.Text[caretText:]
		if p.SelStart >= caretText && p.SelStart != p.SelEnd {
			p.SelStart += len(softCursor)
		}
		if p.SelEnd >= caretText {
			p.SelEnd += len(softCursor)
		}
	}
	return p
}

// GetCommitText concatenates each segment's selected candidate text, or
// the raw input of segments without one, followed by whatever of fullInput
// lies past the last segment.
func (c *Composition) GetCommitText(fullInput string) string {
	var b strings.Builder
	end := 0
	for _, seg := range c.segments {
		if cand := seg.SelectedCandidate(); cand != nil {
			end = cand.End()
			b.WriteString(cand.Text())
		} else {
			end = seg.End
			if !seg.HasTag(TagPhony) {
				b.WriteString(c.slice(seg.Start, seg.End))
			}
		}
	}
	writeTail(&b, fullInput, end)
	return b.String()
}

// GetScriptText renders fullInput as spelled: candidate preedit where
// present, raw input otherwise.
func (c *Composition) GetScriptText(fullInput string) string {
	var b strings.Builder
	end := 0
	for _, seg := range c.segments {
		start := end
		cand := seg.SelectedCandidate()
		if cand != nil {
			end = cand.End()
		} else {
			end = seg.End
		}
		if cand != nil && cand.Preedit() != "" {
			b.WriteString(cand.Preedit())
		} else {
			b.WriteString(c.slice(start, end))
		}
	}
	writeTail(&b, fullInput, end)
	return b.String()
}

func writeTail(b *strings.Builder, fullInput string, end int) {
	if end < len(fullInput) {
		b.WriteString(fullInput[end:])
	}
}

// GetDebugText describes every segment for logs.
func (c *Composition) GetDebugText() string {
	var b strings.Builder
	for i, seg := range c.segments {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "[%d,%d)%s", seg.Start, seg.End, seg.Status)
		if cand := seg.SelectedCandidate(); cand != nil {
			b.WriteString(":" + cand.Text())
		}
	}
	return b.String()
}
