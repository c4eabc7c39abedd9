package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"

	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/menu"
)

// Converter rewrites candidate text. ok is false when the text is left as
// it was.
type Converter interface {
	Convert(text string) (converted string, ok bool)
}

// Width conversion modes.
const (
	WidthFull = "full"
	WidthHalf = "half"
	WidthFold = "fold"
)

// WidthConverter converts between full-width and half-width forms.
type WidthConverter struct {
	t width.Transformer
}

// NewWidthConverter returns a converter for mode, one of WidthFull,
// WidthHalf or WidthFold.
func NewWidthConverter(mode string) (*WidthConverter, error) {
	switch mode {
	case WidthFull:
		return &WidthConverter{t: width.Widen}, nil
	case WidthHalf:
		return &WidthConverter{t: width.Narrow}, nil
	case WidthFold:
		return &WidthConverter{t: width.Fold}, nil
	default:
		return nil, fmt.Errorf("unknown width mode %q", mode)
	}
}

func (w *WidthConverter) Convert(text string) (string, bool) {
	out := w.t.String(text)
	return out, out != text
}

// MapConverter replaces the longest matching phrase at each position.
type MapConverter struct {
	phrases map[string]string
	maxLen  int // in runes
}

// NewMapConverter creates a converter from a phrase map.
func NewMapConverter(phrases map[string]string) *MapConverter {
	m := &MapConverter{phrases: make(map[string]string, len(phrases))}
	for k, v := range phrases {
		if k == "" {
			continue
		}
		m.phrases[k] = v
		if n := utf8.RuneCountInString(k); n > m.maxLen {
			m.maxLen = n
		}
	}
	return m
}

type phraseMapFile struct {
	Phrases map[string]string `toml:"phrases" json:"phrases" yaml:"phrases"`
}

// LoadMapConverter reads a phrase map from a TOML, JSON or YAML file with a
// top-level "phrases" table.
func LoadMapConverter(path string) (*MapConverter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrase map: %w", err)
	}
	var f phraseMapFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = toml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse phrase map %s: %w", path, err)
	}
	return NewMapConverter(f.Phrases), nil
}

// Len returns the number of phrases.
func (m *MapConverter) Len() int { return len(m.phrases) }

func (m *MapConverter) Convert(text string) (string, bool) {
	if len(m.phrases) == 0 {
		return text, false
	}
	runes := []rune(text)
	var b strings.Builder
	changed := false
	for i := 0; i < len(runes); {
		matched := false
		for n := min(m.maxLen, len(runes)-i); n > 0; n-- {
			if v, ok := m.phrases[string(runes[i:i+n])]; ok {
				b.WriteString(v)
				i += n
				matched = true
				changed = true
				break
			}
		}
		if !matched {
			b.WriteRune(runes[i])
			i++
		}
	}
	return b.String(), changed
}

// TipsLevel selects which converted candidates show the original text.
type TipsLevel int

const (
	TipsNone TipsLevel = iota
	// TipsChar shows tips for single-character candidates only.
	TipsChar
	TipsAll
)

// ParseTipsLevel parses "none", "char" or "all".
func ParseTipsLevel(s string) (TipsLevel, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return TipsNone, nil
	case "char":
		return TipsChar, nil
	case "all":
		return TipsAll, nil
	default:
		return TipsNone, fmt.Errorf("unknown tips level %q", s)
	}
}

// OptionReader reads session options.
type OptionReader interface {
	GetOption(name string) bool
}

// ShadowType is the candidate type of converted candidates.
const ShadowType = "converted"

// ConvertFilter runs candidate text through a Converter.
type ConvertFilter struct {
	Converter Converter
	// Option gates the filter when set; the filter is idle while the
	// option is off.
	Option  string
	Options OptionReader
	// ExcludedTypes are candidate types passed through unchanged.
	ExcludedTypes map[string]bool
	Tips          TipsLevel
	// ShowInComment keeps the text and puts the converted form in the
	// comment.
	ShowInComment  bool
	InheritComment bool
}

func (f *ConvertFilter) AppliesTo(*composition.Segment) bool { return true }

func (f *ConvertFilter) enabled() bool {
	if f.Converter == nil {
		return false
	}
	if f.Option == "" || f.Options == nil {
		return true
	}
	return f.Options.GetOption(f.Option)
}

func (f *ConvertFilter) Apply(t menu.Translation, _ *[]candidate.Candidate) menu.Translation {
	if !f.enabled() {
		return t
	}
	return menu.NewFuncTranslation(func() (candidate.Candidate, bool) {
		for !t.Exhausted() {
			c := t.Peek()
			t.Next()
			if c != nil {
				return f.convert(c), true
			}
		}
		return nil, false
	})
}

func (f *ConvertFilter) convert(c candidate.Candidate) candidate.Candidate {
	if f.ExcludedTypes[c.Type()] {
		return c
	}
	original := c.Text()
	converted, ok := f.Converter.Convert(original)
	if !ok || converted == original {
		return c
	}
	if f.ShowInComment {
		return candidate.NewShadow(c, "",
			candidate.WithShadowType(ShadowType),
			candidate.WithShadowComment(converted))
	}
	opts := []candidate.ShadowOption{
		candidate.WithShadowType(ShadowType),
		candidate.InheritComment(f.InheritComment),
	}
	if f.tipsFor(original) {
		opts = append(opts, candidate.WithShadowComment("〔"+original+"〕"))
	}
	return candidate.NewShadow(c, converted, opts...)
}

func (f *ConvertFilter) tipsFor(original string) bool {
	switch f.Tips {
	case TipsAll:
		return true
	case TipsChar:
		return utf8.RuneCountInString(original) == 1
	default:
		return false
	}
}
