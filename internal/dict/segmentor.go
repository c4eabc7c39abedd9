package dict

import (
	"imecore/internal/composition"
)

// TagTable marks segments recognized by a table.
const TagTable = "table"

// Segmentor splits input at code boundaries of a Table.
//
// At each step it takes the rest of the input when that is still the prefix
// of some code, so a code being typed stays in one segment; otherwise the
// longest complete code; otherwise a single byte tagged raw.
type Segmentor struct {
	table *Table
}

// NewSegmentor creates a segmentor over table.
func NewSegmentor(table *Table) *Segmentor {
	return &Segmentor{table: table}
}

// Proceed implements composition.Segmentor.
func (s *Segmentor) Proceed(c *composition.Composition) bool {
	start := c.CurrentStart()
	input := c.Input()
	if start >= len(input) {
		return true
	}
	rest := input[start:]

	var seg *composition.Segment
	switch n := s.table.LongestMatch(rest); {
	case len(rest) <= s.table.MaxCodeLen() && s.table.HasPrefix(rest):
		seg = composition.NewSegment(start, len(input))
		seg.AddTag(TagTable)
	case n > 0:
		seg = composition.NewSegment(start, start+n)
		seg.AddTag(TagTable)
	default:
		seg = composition.NewSegment(start, start+1)
		seg.AddTag(composition.TagRaw)
	}
	c.AddSegment(seg)
	return true
}
