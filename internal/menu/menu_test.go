package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imecore/internal/candidate"
	"imecore/internal/composition"
)

func simple(start, end int, text string, q float64) candidate.Candidate {
	return candidate.NewSimple("test", start, end, text, "").WithQuality(q)
}

func texts(cands []candidate.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Text()
	}
	return out
}

func TestFifoTranslation(t *testing.T) {
	tr := NewFifoTranslation(simple(0, 1, "a", 0), simple(0, 1, "b", 0))
	require.False(t, tr.Exhausted())
	assert.Equal(t, "a", tr.Peek().Text())
	assert.True(t, tr.Next())
	assert.Equal(t, "b", tr.Peek().Text())
	assert.False(t, tr.Next())
	assert.True(t, tr.Exhausted())
	assert.Nil(t, tr.Peek())
	assert.False(t, tr.Next())
}

func TestFuncTranslationIsLazy(t *testing.T) {
	pulled := 0
	tr := NewFuncTranslation(func() (candidate.Candidate, bool) {
		pulled++
		return simple(0, 1, "x", float64(-pulled)), true
	})

	m := New()
	m.AddTranslation(tr)

	assert.Equal(t, 3, m.Prepare(3))
	assert.LessOrEqual(t, pulled, 4, "an unbounded source must only be pulled on demand")
	assert.NotNil(t, m.CandidateAt(9))
	assert.Equal(t, 10, m.Count())
}

func TestMergedTranslationOrdersByCompare(t *testing.T) {
	dict := NewFifoTranslation(
		simple(0, 5, "你好", 1),
		simple(0, 2, "你", 1),
	)
	user := NewFifoTranslation(
		simple(0, 5, "妳好", 2),
		simple(0, 2, "妳", 0.5),
	)

	m := New()
	m.AddTranslation(dict)
	m.AddTranslation(user)

	assert.Equal(t, 4, m.Prepare(10))
	assert.Equal(t, []string{"妳好", "你好", "你", "妳"}, texts(m.Candidates()))
}

func TestMergedTranslationTiesAreStable(t *testing.T) {
	first := NewFifoTranslation(simple(0, 2, "a1", 1), simple(0, 2, "a2", 1))
	second := NewFifoTranslation(simple(0, 2, "b1", 1))

	merged := NewMergedTranslation(first, nil, second)
	assert.Equal(t, 2, merged.Len())

	var got []string
	for !merged.Exhausted() {
		got = append(got, merged.Peek().Text())
		merged.Next()
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, got)
}

func TestEmptyMenu(t *testing.T) {
	m := New()
	assert.True(t, m.Empty())
	assert.Nil(t, m.CandidateAt(0))
	assert.Nil(t, m.CandidateAt(-1))
	assert.Nil(t, m.CreatePage(5, 0))
	assert.Zero(t, m.Prepare(5))
	assert.Zero(t, m.Count())
	assert.Empty(t, m.Candidates())

	m.AddTranslation(NewFifoTranslation())
	assert.True(t, m.Empty())
	assert.Zero(t, m.Prepare(5))
}

func TestMergedTranslationWithoutSources(t *testing.T) {
	tests := []struct {
		name    string
		sources []Translation
	}{
		{"none", nil},
		{"only nil", []Translation{nil}},
		{"only exhausted", []Translation{NewFifoTranslation()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMergedTranslation(tt.sources...)
			assert.True(t, m.Exhausted())
			assert.Nil(t, m.Peek())
			assert.False(t, m.Next())
		})
	}
}

func TestCreatePage(t *testing.T) {
	tr := NewFifoTranslation()
	for i := 0; i < 7; i++ {
		tr.Append(simple(0, 1, string(rune('a'+i)), float64(-i)))
	}
	m := New()
	m.AddTranslation(tr)

	p0 := m.CreatePage(5, 0)
	require.NotNil(t, p0)
	assert.False(t, p0.IsLastPage)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, texts(p0.Candidates))

	p1 := m.CreatePage(5, 1)
	require.NotNil(t, p1)
	assert.True(t, p1.IsLastPage)
	assert.Equal(t, []string{"f", "g"}, texts(p1.Candidates))

	assert.Nil(t, m.CreatePage(5, 2))
}

type dropFilter struct{ text string }

func (f dropFilter) AppliesTo(*composition.Segment) bool { return true }

func (f dropFilter) Apply(t Translation, _ *[]candidate.Candidate) Translation {
	return NewFuncTranslation(func() (candidate.Candidate, bool) {
		for !t.Exhausted() {
			c := t.Peek()
			t.Next()
			if c.Text() != f.text {
				return c, true
			}
		}
		return nil, false
	})
}

func TestMenuFilter(t *testing.T) {
	m := New()
	m.AddTranslation(NewFifoTranslation(simple(0, 1, "a", 0), simple(0, 1, "b", 0), simple(0, 1, "c", 0)))
	m.AddFilter(dropFilter{text: "b"})

	assert.Equal(t, 2, m.Prepare(10))
	assert.Equal(t, []string{"a", "c"}, texts(m.Candidates()))
}

func TestMenuSatisfiesSegmentContract(t *testing.T) {
	var _ composition.Menu = New()

	seg := composition.NewSegment(0, 1)
	m := New()
	m.AddTranslation(NewFifoTranslation(simple(0, 1, "a", 0)))
	seg.Menu = m
	assert.Equal(t, "a", seg.SelectedCandidate().Text())
}
