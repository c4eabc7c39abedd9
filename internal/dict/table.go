// Package dict loads code tables and turns them into segments and
// candidates.
//
// A code table maps input codes (the keys a user types) to phrases. Tables
// are read from TOML, YAML or JSON files holding an "entries" list:
//
//	name = "pinyin-mini"
//
//	[[entries]]
//	code = "ni"
//	text = "你"
//	weight = 10
package dict

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrEmptyCode is returned for entries without a code.
var ErrEmptyCode = errors.New("entry has empty code")

// Phrase is one table entry.
type Phrase struct {
	Code    string  `toml:"code" json:"code" yaml:"code"`
	Text    string  `toml:"text" json:"text" yaml:"text"`
	Comment string  `toml:"comment,omitempty" json:"comment,omitempty" yaml:"comment,omitempty"`
	Weight  float64 `toml:"weight,omitempty" json:"weight,omitempty" yaml:"weight,omitempty"`
}

type tableFile struct {
	Name    string   `toml:"name" json:"name" yaml:"name"`
	Entries []Phrase `toml:"entries" json:"entries" yaml:"entries"`
}

// Table is an immutable code table sorted by code, then by descending
// weight.
type Table struct {
	Name    string
	phrases []Phrase
	maxCode int
}

// NewTable builds a table from phrases.
func NewTable(name string, phrases []Phrase) (*Table, error) {
	t := &Table{Name: name, phrases: make([]Phrase, 0, len(phrases))}
	for i, p := range phrases {
		if p.Code == "" {
			return nil, fmt.Errorf("entry %d (%q): %w", i, p.Text, ErrEmptyCode)
		}
		t.phrases = append(t.phrases, p)
		if len(p.Code) > t.maxCode {
			t.maxCode = len(p.Code)
		}
	}
	sort.SliceStable(t.phrases, func(i, j int) bool {
		a, b := t.phrases[i], t.phrases[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Weight > b.Weight
	})
	return t, nil
}

// LoadTable reads a table file. The format follows the file extension and
// defaults to TOML.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	var f tableFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = toml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse table %s: %w", path, err)
	}

	name := f.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return NewTable(name, f.Entries)
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.phrases) }

// MaxCodeLen returns the length of the longest code.
func (t *Table) MaxCodeLen() int { return t.maxCode }

func (t *Table) lowerBound(code string) int {
	return sort.Search(len(t.phrases), func(i int) bool {
		return t.phrases[i].Code >= code
	})
}

// Lookup returns the phrases for code, heaviest first.
func (t *Table) Lookup(code string) []Phrase {
	var out []Phrase
	for i := t.lowerBound(code); i < len(t.phrases) && t.phrases[i].Code == code; i++ {
		out = append(out, t.phrases[i])
	}
	return out
}

// Complete returns the phrases whose code extends prefix, excluding exact
// matches, ordered by code then weight.
func (t *Table) Complete(prefix string, limit int) []Phrase {
	var out []Phrase
	for i := t.lowerBound(prefix); i < len(t.phrases); i++ {
		p := t.phrases[i]
		if !strings.HasPrefix(p.Code, prefix) {
			break
		}
		if p.Code == prefix {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// HasPrefix reports whether some code starts with prefix.
func (t *Table) HasPrefix(prefix string) bool {
	i := t.lowerBound(prefix)
	return i < len(t.phrases) && strings.HasPrefix(t.phrases[i].Code, prefix)
}

// Contains reports whether code is in the table.
func (t *Table) Contains(code string) bool {
	i := t.lowerBound(code)
	return i < len(t.phrases) && t.phrases[i].Code == code
}

// LongestMatch returns the length of the longest code that is a prefix of
// input, or 0.
func (t *Table) LongestMatch(input string) int {
	for n := min(len(input), t.maxCode); n > 0; n-- {
		if t.Contains(input[:n]) {
			return n
		}
	}
	return 0
}

// Phrases returns a copy of all entries in table order.
func (t *Table) Phrases() []Phrase {
	out := make([]Phrase, len(t.phrases))
	copy(out, t.phrases)
	return out
}
