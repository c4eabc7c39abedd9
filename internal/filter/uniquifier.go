// Package filter holds menu filters that rewrite the candidate stream:
// merging duplicates and converting candidate text.
package filter

import (
	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/menu"
)

// Uniquifier folds candidates whose text was already offered into the
// earlier candidate, which becomes a candidate.Uniquified.
type Uniquifier struct{}

// NewUniquifier creates a Uniquifier.
func NewUniquifier() *Uniquifier { return &Uniquifier{} }

func (u *Uniquifier) AppliesTo(*composition.Segment) bool { return true }

func (u *Uniquifier) Apply(t menu.Translation, prepared *[]candidate.Candidate) menu.Translation {
	return menu.NewFuncTranslation(func() (candidate.Candidate, bool) {
		for !t.Exhausted() {
			c := t.Peek()
			t.Next()
			if c == nil {
				continue
			}
			if !fold(c, prepared) {
				return c, true
			}
		}
		return nil, false
	})
}

// fold merges c into a prepared candidate with the same text.
func fold(c candidate.Candidate, prepared *[]candidate.Candidate) bool {
	if prepared == nil {
		return false
	}
	for i, p := range *prepared {
		if p.Text() != c.Text() {
			continue
		}
		u, ok := p.(*candidate.Uniquified)
		if !ok {
			u = candidate.NewUniquified(p)
			(*prepared)[i] = u
		}
		u.Append(c)
		return true
	}
	return false
}
