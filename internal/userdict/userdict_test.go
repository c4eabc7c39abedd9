package userdict

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/menu"
	"imecore/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "user.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMigrates(t *testing.T) {
	s := openTestStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "user.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background(), "ni", "你"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is harmless")

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	entries, err := s2.Lookup(context.Background(), "ni")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "你", entries[0].Text)
}

func TestCommitAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entries, err := s.Lookup(ctx, "ni")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Commit(ctx, "ni", "妳"))
	require.NoError(t, s.Commit(ctx, "ni", "你"))
	require.NoError(t, s.Commit(ctx, "ni", "你"))

	entries, err = s.Lookup(ctx, "ni")
	require.NoError(t, err, "a commit invalidates the cached empty result")
	require.Len(t, entries, 2)
	assert.Equal(t, "你", entries[0].Text)
	assert.Equal(t, 2.0, entries[0].Weight)
	assert.Equal(t, int64(2), entries[0].Commits)
	assert.Equal(t, "妳", entries[1].Text)
}

func TestDeleteTombstones(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Commit(ctx, "ni", "你"))
	require.NoError(t, s.Commit(ctx, "ni", "你"))

	removed, err := s.Delete(ctx, "ni", "你")
	require.NoError(t, err)
	assert.True(t, removed)

	entries, err := s.Lookup(ctx, "ni")
	require.NoError(t, err)
	assert.Empty(t, entries)

	deleted, err := s.IsDeleted(ctx, "ni", "你")
	require.NoError(t, err)
	assert.True(t, deleted)

	removed, err = s.Delete(ctx, "hao", "好")
	require.NoError(t, err)
	assert.False(t, removed, "tombstoning an unknown phrase removes nothing")

	all, err := s.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	live, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, live)

	require.NoError(t, s.Commit(ctx, "ni", "你"))
	entries, err = s.Lookup(ctx, "ni")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1.0, entries[0].Weight, "a restored entry starts over")
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Delete(ctx, "ni", "你")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, "hao", "好"))

	n, err := s.Purge(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "好", all[0].Text)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "user.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Commit(ctx, "a", "b"), ErrClosed)
	_, err = s.Lookup(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Delete(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.List(ctx, false)
	assert.ErrorIs(t, err, ErrClosed)
}

// composed builds a session over "nihao" with both segments selected.
func composed(t *testing.T, first, second candidate.Candidate) *session.Context {
	t.Helper()
	ctx := session.New()
	ctx.SetInput("nihao")
	comp := ctx.Composition()
	comp.Reset("nihao")

	ni := composition.NewSegment(0, 2)
	m1 := menu.New()
	m1.AddTranslation(menu.NewFifoTranslation(first))
	ni.Menu = m1
	ni.Status = composition.StatusSelected
	require.True(t, comp.AddSegment(ni))
	require.True(t, comp.OpenNext())

	hao := composition.NewSegment(2, 5)
	m2 := menu.New()
	m2.AddTranslation(menu.NewFifoTranslation(second))
	hao.Menu = m2
	hao.Status = composition.StatusGuess
	require.True(t, comp.AddSegment(hao))
	return ctx
}

func TestManagerLearnsSelectedSegments(t *testing.T) {
	s := openTestStore(t)
	m := NewManager(s)

	ni := candidate.NewSimple("table", 0, 2, "你", "")
	hao := candidate.NewSimple("table", 2, 5, "好", "")
	ctx := composed(t, candidate.NewShadow(ni, "妳"), hao)
	m.Attach(ctx)
	require.True(t, ctx.Select(0))
	require.True(t, ctx.Commit())

	entries, err := s.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Code: "hao", Text: "好"}, Entry{Code: entries[0].Code, Text: entries[0].Text})
	assert.Equal(t, "你", entries[1].Text, "the genuine candidate is learned, not its shadow")
}

func TestManagerSkipsGuessesAndRawEcho(t *testing.T) {
	s := openTestStore(t)
	m := NewManager(s)

	raw := candidate.NewSimple("raw", 0, 2, "ni", "")
	hao := candidate.NewSimple("table", 2, 5, "好", "")
	ctx := composed(t, raw, hao)
	m.Attach(ctx)
	require.True(t, ctx.Commit())

	entries, err := s.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManagerDeletesGenuineCandidates(t *testing.T) {
	ctx0 := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Commit(ctx0, "hao", "好"))
	m := NewManager(s)

	user := candidate.NewSimple(CandidateType, 2, 5, "好", "")
	table := candidate.NewSimple("table", 2, 5, "好", "")
	u := candidate.NewUniquified(user)
	u.Append(table)

	ctx := composed(t, candidate.NewSimple("table", 0, 2, "你", ""), u)
	m.Attach(ctx)
	require.True(t, ctx.DeleteCurrentSelection())

	entries, err := s.Lookup(ctx0, "hao")
	require.NoError(t, err)
	assert.Empty(t, entries)

	m.Detach()
	require.NoError(t, s.Commit(ctx0, "hao", "好"))
	require.True(t, ctx.DeleteCurrentSelection())
	entries, err = s.Lookup(ctx0, "hao")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "detached manager ignores deletions")
}

func TestTranslator(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Commit(ctx, "hao", "号"))
	require.NoError(t, s.Commit(ctx, "hao", "好"))
	require.NoError(t, s.Commit(ctx, "hao", "好"))

	tr := NewTranslator(s)
	seg := composition.NewSegment(2, 5)
	res := tr.Query("hao", seg)
	require.NotNil(t, res)

	first := res.Peek()
	assert.Equal(t, "好", first.Text())
	assert.Equal(t, CandidateType, first.Type())
	assert.Equal(t, 2, first.Start())
	assert.Equal(t, 5, first.End())
	assert.Equal(t, 102.0, first.Quality())

	assert.Nil(t, tr.Query("ni", composition.NewSegment(0, 2)))

	raw := composition.NewSegment(0, 3)
	raw.AddTag(composition.TagRaw)
	assert.Nil(t, tr.Query("hao", raw))
}
