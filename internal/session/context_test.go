package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/menu"
)

// recorder counts notifications per channel.
type recorder struct {
	commit, update, selected, deleted int
	options, properties               []string
}

func record(ctx *Context) *recorder {
	r := &recorder{}
	ctx.CommitNotifier().Connect(func(*Context) { r.commit++ })
	ctx.UpdateNotifier().Connect(func(*Context) { r.update++ })
	ctx.SelectNotifier().Connect(func(*Context) { r.selected++ })
	ctx.DeleteNotifier().Connect(func(*Context) { r.deleted++ })
	ctx.OptionUpdateNotifier().Connect(func(_ *Context, name string) { r.options = append(r.options, name) })
	ctx.PropertyUpdateNotifier().Connect(func(_ *Context, name string) { r.properties = append(r.properties, name) })
	return r
}

// nihao builds "nihao" split into an untranslated [0,2) and a translated
// [2,5) tail.
func nihao(t *testing.T) *Context {
	t.Helper()
	ctx := New()
	require.True(t, ctx.PushInput("nihao"))

	comp := ctx.Composition()
	comp.Reset(ctx.Input())

	ni := composition.NewSegment(0, 2)
	ni.Status = composition.StatusGuess
	require.True(t, comp.AddSegment(ni))
	require.True(t, comp.OpenNext())

	hao := composition.NewSegment(2, 5)
	m := menu.New()
	m.AddTranslation(menu.NewFifoTranslation(
		candidate.NewSimple("table", 2, 5, "好", "hao3"),
		candidate.NewSimple("table", 2, 5, "号", "hao4"),
	))
	hao.Menu = m
	hao.Status = composition.StatusGuess
	require.True(t, comp.AddSegment(hao))
	require.Equal(t, 2, comp.Len())
	return ctx
}

func TestEmptyContext(t *testing.T) {
	ctx := New()
	r := record(ctx)

	assert.False(t, ctx.IsComposing())
	assert.False(t, ctx.HasMenu())
	assert.Nil(t, ctx.GetSelectedCandidate())
	assert.False(t, ctx.Commit())
	assert.False(t, ctx.PopInput(1))
	assert.False(t, ctx.DeleteInput(1))
	assert.False(t, ctx.Select(0))
	assert.False(t, ctx.Highlight(0))
	assert.False(t, ctx.DeleteCandidateAt(0))
	assert.False(t, ctx.DeleteCurrentSelection())
	assert.False(t, ctx.DeleteCandidate(nil))
	assert.False(t, ctx.ConfirmCurrentSelection())
	assert.False(t, ctx.ReopenPreviousSegment())
	assert.False(t, ctx.ClearPreviousSegment())
	assert.False(t, ctx.ReopenPreviousSelection())
	assert.False(t, ctx.ClearNonConfirmedComposition())
	assert.False(t, ctx.RefreshNonConfirmedComposition())
	assert.Equal(t, "", ctx.GetCommitText())
	assert.Equal(t, "", ctx.GetScriptText())

	assert.Equal(t, &recorder{}, r, "failed operations must not notify")
}

func TestSelectAndCommitText(t *testing.T) {
	ctx := nihao(t)
	r := record(ctx)

	assert.True(t, ctx.HasMenu())
	assert.Equal(t, "ni好", ctx.GetCommitText(), "the highlighted candidate stands in for its segment")

	require.True(t, ctx.Select(0))
	assert.Equal(t, 1, r.selected)
	assert.Equal(t, composition.StatusSelected, ctx.Composition().Back().Status)
	assert.Equal(t, "好", ctx.GetSelectedCandidate().Text())
	assert.Equal(t, "ni好", ctx.GetCommitText())
	assert.Equal(t, "nihao", ctx.GetScriptText())

	assert.False(t, ctx.Select(2))
	assert.Equal(t, 1, r.selected)
}

func TestSelectOtherCandidate(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(1))
	assert.Equal(t, "ni号", ctx.GetCommitText())
}

func TestDumbOptionSuppressesCommitText(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(0))
	ctx.SetOption(OptionDumb, true)
	assert.Equal(t, "", ctx.GetCommitText())
	assert.Equal(t, "nihao", ctx.GetScriptText())
}

func TestCommitResetsSession(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(0))

	var committed string
	var tailStatus composition.Status
	ctx.CommitNotifier().Connect(func(c *Context) {
		committed = c.GetCommitText()
		tailStatus = c.Composition().Back().Status
	})
	r := record(ctx)

	require.True(t, ctx.Commit())
	assert.Equal(t, "ni好", committed)
	assert.Equal(t, composition.StatusConfirmed, tailStatus)
	assert.Equal(t, 1, r.commit)
	assert.Equal(t, 1, r.update, "commit clears the session")

	assert.False(t, ctx.IsComposing())
	assert.Equal(t, "", ctx.Input())
	assert.Equal(t, 0, ctx.CaretPos())
	assert.True(t, ctx.Composition().Empty())
	assert.False(t, ctx.Commit())
}

func TestCommitRawInput(t *testing.T) {
	ctx := New()
	ctx.PushInput("abc")
	assert.Equal(t, "abc", ctx.GetCommitText())
	assert.Equal(t, "abc", ctx.GetScriptText())
	var committed string
	ctx.CommitNotifier().Connect(func(c *Context) { committed = c.GetCommitText() })
	require.True(t, ctx.Commit())
	assert.Equal(t, "abc", committed)
}

func TestInputEditing(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		caret     int
		op        func(*Context) bool
		wantOK    bool
		wantInput string
		wantCaret int
	}{
		{"push at end", "ab", 2, func(c *Context) bool { return c.PushInput("c") }, true, "abc", 3},
		{"push in middle", "ac", 1, func(c *Context) bool { return c.PushInput("b") }, true, "abc", 2},
		{"push char", "", 0, func(c *Context) bool { return c.PushChar('n') }, true, "n", 1},
		{"pop before caret", "abc", 2, func(c *Context) bool { return c.PopInput(2) }, true, "c", 0},
		{"pop past start", "abc", 1, func(c *Context) bool { return c.PopInput(2) }, false, "abc", 1},
		{"pop negative", "abc", 1, func(c *Context) bool { return c.PopInput(-1) }, false, "abc", 1},
		{"delete at caret", "abc", 1, func(c *Context) bool { return c.DeleteInput(2) }, true, "a", 1},
		{"delete past end", "abc", 1, func(c *Context) bool { return c.DeleteInput(3) }, false, "abc", 1},
		{"delete at end", "abc", 3, func(c *Context) bool { return c.DeleteInput(1) }, false, "abc", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := New()
			ctx.SetInput(tt.input)
			ctx.SetCaretPos(tt.caret)
			r := record(ctx)

			assert.Equal(t, tt.wantOK, tt.op(ctx))
			assert.Equal(t, tt.wantInput, ctx.Input())
			assert.Equal(t, tt.wantCaret, ctx.CaretPos())
			if tt.wantOK {
				assert.Equal(t, 1, r.update)
			} else {
				assert.Equal(t, 0, r.update)
			}
		})
	}
}

func TestSetCaretPosClamps(t *testing.T) {
	ctx := New()
	ctx.SetInput("abc")
	r := record(ctx)

	ctx.SetCaretPos(-3)
	assert.Equal(t, 0, ctx.CaretPos())
	ctx.SetCaretPos(99)
	assert.Equal(t, 3, ctx.CaretPos())
	ctx.SetCaretPos(1)
	assert.Equal(t, 1, ctx.CaretPos())
	assert.Equal(t, 3, r.update)
}

func TestSetInputMovesCaretToEnd(t *testing.T) {
	ctx := New()
	ctx.SetInput("abc")
	ctx.SetCaretPos(0)
	ctx.SetInput("hello")
	assert.Equal(t, 5, ctx.CaretPos())
	assert.True(t, ctx.IsComposing())
}

func TestClearAlwaysNotifies(t *testing.T) {
	ctx := New()
	r := record(ctx)
	ctx.Clear()
	assert.Equal(t, 1, r.update)
}

func TestHighlight(t *testing.T) {
	ctx := nihao(t)
	r := record(ctx)
	tail := ctx.Composition().Back()

	assert.True(t, ctx.Highlight(1))
	assert.Equal(t, 1, tail.SelectedIndex)
	assert.Equal(t, "号", ctx.GetSelectedCandidate().Text())
	assert.Equal(t, 1, r.update)

	assert.False(t, ctx.Highlight(1), "unchanged selection is a no-op")
	assert.False(t, ctx.Highlight(7), "clamped to the last candidate")
	assert.Equal(t, 1, tail.SelectedIndex)
	assert.False(t, ctx.Highlight(-1))

	assert.True(t, ctx.Highlight(0))
	assert.Equal(t, 2, r.update)
}

func TestHighlightWithoutMenu(t *testing.T) {
	ctx := New()
	ctx.SetInput("ni")
	ctx.Composition().Reset("ni")
	ctx.Composition().AddSegment(composition.NewSegment(0, 2))
	assert.False(t, ctx.Highlight(0))
}

func TestDeleteCandidate(t *testing.T) {
	ctx := nihao(t)
	var seen []string
	ctx.DeleteNotifier().Connect(func(c *Context) {
		seen = append(seen, c.DeletedCandidate().Text())
	})

	assert.True(t, ctx.DeleteCandidateAt(1))
	assert.True(t, ctx.DeleteCurrentSelection())
	assert.False(t, ctx.DeleteCandidateAt(5))
	assert.True(t, ctx.DeleteCandidate(candidate.NewSimple("user", 0, 2, "你", "")))
	assert.Equal(t, []string{"号", "好", "你"}, seen)
	assert.Nil(t, ctx.DeletedCandidate())
}

func TestConfirmCurrentSelection(t *testing.T) {
	t.Run("highlighted candidate", func(t *testing.T) {
		ctx := nihao(t)
		r := record(ctx)
		require.True(t, ctx.ConfirmCurrentSelection())
		assert.Equal(t, composition.StatusSelected, ctx.Composition().Back().Status)
		assert.Equal(t, 1, r.selected)
	})

	t.Run("raw input", func(t *testing.T) {
		ctx := New()
		ctx.SetInput("ni")
		ctx.Composition().Reset("ni")
		ctx.Composition().AddSegment(composition.NewSegment(0, 2))
		r := record(ctx)
		require.True(t, ctx.ConfirmCurrentSelection())
		assert.Equal(t, composition.StatusSelected, ctx.Composition().Back().Status)
		assert.Equal(t, 1, r.selected)
	})

	t.Run("empty segment", func(t *testing.T) {
		ctx := nihao(t)
		require.True(t, ctx.Select(0))
		require.True(t, ctx.Composition().OpenNext())
		r := record(ctx)
		assert.False(t, ctx.ConfirmCurrentSelection())
		assert.Equal(t, composition.StatusVoid, ctx.Composition().Back().Status)
		assert.Equal(t, 0, r.selected)
	})
}

func TestReopenPreviousSelection(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(0))
	require.True(t, ctx.Composition().OpenNext())
	r := record(ctx)

	require.True(t, ctx.ReopenPreviousSelection())
	comp := ctx.Composition()
	assert.Equal(t, 2, comp.Len(), "segments after the selection are popped")
	tail := comp.Back()
	assert.Equal(t, composition.StatusGuess, tail.Status)
	assert.Equal(t, 5, tail.End)
	assert.NotNil(t, tail.Menu, "caret at the original end keeps the menu")
	assert.Equal(t, 1, r.update)

	assert.False(t, ctx.ReopenPreviousSelection(), "nothing selected any more")
}

func TestReopenAfterEditIsRefused(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(0))

	ctx.BeginEditing()
	assert.True(t, ctx.Composition().Back().HasTag(composition.TagSelectedBeforeEditing))
	require.True(t, ctx.PushInput("m"))

	assert.False(t, ctx.ReopenPreviousSelection())
	assert.Equal(t, composition.StatusSelected, ctx.Composition().Back().Status)
}

func TestConfirmPreviousSelectionTagsAndFails(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(0))
	assert.False(t, ctx.ConfirmPreviousSelection())
	assert.True(t, ctx.Composition().Back().HasTag(composition.TagSelectedBeforeEditing))
}

func TestConfirmedSegmentsStopTheScan(t *testing.T) {
	ctx := nihao(t)
	comp := ctx.Composition()
	comp.At(0).Status = composition.StatusSelected
	comp.Back().Status = composition.StatusConfirmed

	ctx.BeginEditing()
	assert.False(t, comp.At(0).HasTag(composition.TagSelectedBeforeEditing))
	assert.False(t, ctx.ReopenPreviousSelection())
	assert.Equal(t, composition.StatusSelected, comp.At(0).Status)
}

func TestBeginEditingTagsMostRecentSelection(t *testing.T) {
	ctx := nihao(t)
	comp := ctx.Composition()
	comp.At(0).Status = composition.StatusSelected
	require.True(t, ctx.Select(0))

	ctx.BeginEditing()
	assert.True(t, comp.Back().HasTag(composition.TagSelectedBeforeEditing))
	assert.False(t, comp.At(0).HasTag(composition.TagSelectedBeforeEditing))
}

func TestReopenPreviousSegment(t *testing.T) {
	ctx := nihao(t)
	require.True(t, ctx.Select(0))
	require.True(t, ctx.Composition().OpenNext())
	r := record(ctx)

	require.True(t, ctx.ReopenPreviousSegment())
	assert.Equal(t, 2, ctx.Composition().Len())
	assert.Equal(t, composition.StatusGuess, ctx.Composition().Back().Status)
	assert.Equal(t, 1, r.update)

	assert.False(t, ctx.ReopenPreviousSegment(), "tail is not empty")
}

func TestClearPreviousSegment(t *testing.T) {
	ctx := nihao(t)
	r := record(ctx)

	require.True(t, ctx.ClearPreviousSegment())
	assert.Equal(t, "ni", ctx.Input())
	assert.Equal(t, 2, ctx.CaretPos())
	assert.Equal(t, 1, r.update)

	ctx2 := nihao(t)
	require.True(t, ctx2.Composition().OpenNext())
	assert.False(t, ctx2.ClearPreviousSegment(), "tail starts at the end of input")
	assert.Equal(t, "nihao", ctx2.Input())
}

func TestClearNonConfirmedComposition(t *testing.T) {
	t.Run("pops unselected", func(t *testing.T) {
		ctx := nihao(t)
		r := record(ctx)
		assert.True(t, ctx.ClearNonConfirmedComposition())
		assert.True(t, ctx.Composition().Empty())
		assert.Equal(t, 0, r.update)
	})

	t.Run("keeps selected", func(t *testing.T) {
		ctx := nihao(t)
		require.True(t, ctx.Select(0))
		assert.False(t, ctx.ClearNonConfirmedComposition())
		assert.Equal(t, 2, ctx.Composition().Len())
	})

	t.Run("reextends after pop", func(t *testing.T) {
		ctx := nihao(t)
		require.True(t, ctx.Select(0))
		require.True(t, ctx.Composition().OpenNext())
		assert.True(t, ctx.ClearNonConfirmedComposition())
		assert.Equal(t, 3, ctx.Composition().Len(), "an empty segment is reopened after the selection")
		assert.True(t, ctx.Composition().Back().Empty())
	})

	t.Run("refresh notifies", func(t *testing.T) {
		ctx := nihao(t)
		r := record(ctx)
		assert.True(t, ctx.RefreshNonConfirmedComposition())
		assert.Equal(t, 1, r.update)
		assert.False(t, ctx.RefreshNonConfirmedComposition())
		assert.Equal(t, 1, r.update)
	})
}

func TestPreedit(t *testing.T) {
	ctx := nihao(t)
	p := ctx.GetPreedit()
	assert.Equal(t, "nihao", p.Text)
	assert.Equal(t, 5, p.CaretPos)
	assert.Equal(t, 2, p.SelStart)
	assert.Equal(t, 5, p.SelEnd)

	ctx.SetOption(OptionSoftCursor, true)
	assert.Equal(t, CaretSymbol, ctx.GetSoftCursor())
	assert.Equal(t, "nihao"+CaretSymbol, ctx.GetPreedit().Text)
}

func TestTransientOptions(t *testing.T) {
	ctx := New()
	r := record(ctx)

	ctx.SetOption("_temp", true)
	ctx.SetOption("ascii_mode", true)
	ctx.SetProperty("_hint", "x")
	ctx.SetProperty("layout", "qwerty")
	assert.Equal(t, []string{"_temp", "ascii_mode"}, r.options)
	assert.Equal(t, []string{"_hint", "layout"}, r.properties)
	assert.Equal(t, []string{"_temp", "ascii_mode"}, ctx.OptionNames())

	ctx.ClearTransientOptions()
	assert.False(t, ctx.GetOption("_temp"))
	assert.True(t, ctx.GetOption("ascii_mode"))
	assert.Equal(t, "", ctx.GetProperty("_hint"))
	assert.Equal(t, "qwerty", ctx.GetProperty("layout"))
	assert.Equal(t, []string{"layout"}, ctx.PropertyNames())
	assert.Len(t, r.options, 2, "clearing does not notify")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient("_x"))
	assert.False(t, IsTransient("x_"))
	assert.False(t, IsTransient(""))
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	ctx := New()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		ctx.UpdateNotifier().Connect(func(*Context) { order = append(order, i) })
	}
	ctx.PushInput("a")
	assert.Equal(t, []int{0, 1, 2}, order)
}
