package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imecore/internal/candidate"
	"imecore/internal/menu"
)

func cand(kind, text, comment string) candidate.Candidate {
	return candidate.NewSimple(kind, 0, 2, text, comment)
}

func menuTexts(m *menu.Menu) []string {
	var out []string
	for _, c := range m.Candidates() {
		out = append(out, c.Text())
	}
	return out
}

func TestUniquifierMergesDuplicates(t *testing.T) {
	a := cand("table", "你", "ni3")
	b := cand("table", "妳", "ni3")
	dup := cand("user", "你", "")
	dup2 := cand("table", "你", "ni")

	m := menu.New()
	m.AddTranslation(menu.NewFifoTranslation(a, b, dup, dup2))
	m.AddFilter(NewUniquifier())

	assert.Equal(t, 2, m.Prepare(10))
	assert.Equal(t, []string{"你", "妳"}, menuTexts(m))

	u, ok := m.CandidateAt(0).(*candidate.Uniquified)
	require.True(t, ok)
	assert.Equal(t, []candidate.Candidate{a, dup, dup2}, candidate.GetGenuineCandidates(u))
	assert.Same(t, b, m.CandidateAt(1))
}

type optionSet map[string]bool

func (o optionSet) GetOption(name string) bool { return o[name] }

func TestConvertFilter(t *testing.T) {
	conv := NewMapConverter(map[string]string{"后": "後", "面": "麵"})

	tests := []struct {
		name        string
		filter      ConvertFilter
		in          candidate.Candidate
		wantText    string
		wantComment string
		wantType    string
	}{
		{
			name:     "converted",
			filter:   ConvertFilter{Converter: conv},
			in:       cand("table", "后", "hou"),
			wantText: "後", wantType: ShadowType,
		},
		{
			name:     "unchanged text passes through",
			filter:   ConvertFilter{Converter: conv},
			in:       cand("table", "你", "ni"),
			wantText: "你", wantComment: "ni", wantType: "table",
		},
		{
			name:     "excluded type",
			filter:   ConvertFilter{Converter: conv, ExcludedTypes: map[string]bool{"user": true}},
			in:       cand("user", "后", ""),
			wantText: "后", wantType: "user",
		},
		{
			name:     "char tips",
			filter:   ConvertFilter{Converter: conv, Tips: TipsChar},
			in:       cand("table", "后", "hou"),
			wantText: "後", wantComment: "〔后〕", wantType: ShadowType,
		},
		{
			name:     "char tips skip phrases",
			filter:   ConvertFilter{Converter: conv, Tips: TipsChar},
			in:       cand("table", "后面", ""),
			wantText: "後麵", wantType: ShadowType,
		},
		{
			name:     "all tips",
			filter:   ConvertFilter{Converter: conv, Tips: TipsAll},
			in:       cand("table", "后面", ""),
			wantText: "後麵", wantComment: "〔后面〕", wantType: ShadowType,
		},
		{
			name:     "inherit comment",
			filter:   ConvertFilter{Converter: conv, InheritComment: true},
			in:       cand("table", "后", "hou"),
			wantText: "後", wantComment: "hou", wantType: ShadowType,
		},
		{
			name:     "show in comment",
			filter:   ConvertFilter{Converter: conv, ShowInComment: true},
			in:       cand("table", "后", "hou"),
			wantText: "后", wantComment: "後", wantType: ShadowType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := menu.New()
			m.AddTranslation(menu.NewFifoTranslation(tt.in))
			m.AddFilter(&tt.filter)

			got := m.CandidateAt(0)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantText, got.Text())
			assert.Equal(t, tt.wantComment, got.Comment())
			assert.Equal(t, tt.wantType, got.Type())
			assert.Same(t, tt.in, candidate.GetGenuineCandidate(got))
		})
	}
}

func TestConvertFilterOptionGate(t *testing.T) {
	opts := optionSet{}
	f := &ConvertFilter{
		Converter: NewMapConverter(map[string]string{"后": "後"}),
		Option:    "traditional",
		Options:   opts,
	}

	off := menu.New()
	off.AddTranslation(menu.NewFifoTranslation(cand("table", "后", "")))
	off.AddFilter(f)
	assert.Equal(t, "后", off.CandidateAt(0).Text())

	opts["traditional"] = true
	on := menu.New()
	on.AddTranslation(menu.NewFifoTranslation(cand("table", "后", "")))
	on.AddFilter(f)
	assert.Equal(t, "後", on.CandidateAt(0).Text())
}

func TestMapConverterLongestMatch(t *testing.T) {
	conv := NewMapConverter(map[string]string{
		"干":  "幹",
		"干净": "乾淨",
		"":   "ignored",
	})
	assert.Equal(t, 2, conv.Len())

	got, ok := conv.Convert("干净的干")
	assert.True(t, ok)
	assert.Equal(t, "乾淨的幹", got)

	got, ok = conv.Convert("abc")
	assert.False(t, ok)
	assert.Equal(t, "abc", got)

	empty := NewMapConverter(nil)
	got, ok = empty.Convert("x")
	assert.False(t, ok)
	assert.Equal(t, "x", got)
}

func TestLoadMapConverter(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"map.toml": "[phrases]\n\"后\" = \"後\"\n",
		"map.yaml": "phrases:\n  后: 後\n",
		"map.json": `{"phrases": {"后": "後"}}`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			conv, err := LoadMapConverter(path)
			require.NoError(t, err)
			got, ok := conv.Convert("后")
			assert.True(t, ok)
			assert.Equal(t, "後", got)
		})
	}

	_, err := LoadMapConverter(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadMapConverter(bad)
	assert.Error(t, err)
}

func TestWidthConverter(t *testing.T) {
	tests := []struct {
		mode string
		in   string
		want string
		ok   bool
	}{
		{WidthFull, "abc", "ａｂｃ", true},
		{WidthHalf, "ａｂｃ", "abc", true},
		{WidthFold, "ａｂｃ", "abc", true},
		{WidthFull, "你好", "你好", false},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.in, func(t *testing.T) {
			conv, err := NewWidthConverter(tt.mode)
			require.NoError(t, err)
			got, ok := conv.Convert(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewWidthConverter("double")
	assert.Error(t, err)
}

func TestParseTipsLevel(t *testing.T) {
	for in, want := range map[string]TipsLevel{"": TipsNone, "none": TipsNone, "Char": TipsChar, "all": TipsAll} {
		got, err := ParseTipsLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTipsLevel("some")
	assert.Error(t, err)
}
