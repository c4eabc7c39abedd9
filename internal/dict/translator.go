package dict

import (
	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/menu"
)

// CandidateType is the type of candidates produced from a table.
const CandidateType = "table"

// CompletionType is the type of candidates for codes still being typed.
const CompletionType = "completion"

// Translator offers table phrases for a segment's code: exact matches
// first, then phrases for shorter prefixes of the code, then completions
// of the code when enabled.
type Translator struct {
	table *Table
	// CompletionLimit caps completion candidates; 0 disables completion.
	CompletionLimit int
}

// NewTranslator creates a translator over table.
func NewTranslator(table *Table) *Translator {
	return &Translator{table: table, CompletionLimit: 50}
}

// Query implements menu.Translator.
func (t *Translator) Query(input string, seg *composition.Segment) menu.Translation {
	if seg == nil || input == "" || seg.HasTag(composition.TagRaw) {
		return nil
	}
	var cands []candidate.Candidate
	for n := len(input); n > 0; n-- {
		for _, p := range t.table.Lookup(input[:n]) {
			c := candidate.NewSimple(CandidateType, seg.Start, seg.Start+n, p.Text, p.Comment).
				WithQuality(p.Weight)
			cands = append(cands, c)
		}
	}
	if t.CompletionLimit > 0 {
		for _, p := range t.table.Complete(input, t.CompletionLimit) {
			c := candidate.NewSimple(CompletionType, seg.Start, seg.Start+len(input), p.Text, "~"+p.Code[len(input):]).
				WithQuality(p.Weight - 1)
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return nil
	}
	candidate.SortStable(cands)
	return menu.NewFifoTranslation(cands...)
}
