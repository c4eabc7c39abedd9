package ime

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Keysyms for the non-printable keys the engine handles. Values are X11
// keysyms, which IBus passes through unchanged.
const (
	KeyBackSpace uint32 = 0xff08
	KeyTab       uint32 = 0xff09
	KeyReturn    uint32 = 0xff0d
	KeyEscape    uint32 = 0xff1b
	KeyHome      uint32 = 0xff50
	KeyLeft      uint32 = 0xff51
	KeyUp        uint32 = 0xff52
	KeyRight     uint32 = 0xff53
	KeyDown      uint32 = 0xff54
	KeyPageUp    uint32 = 0xff55
	KeyPageDown  uint32 = 0xff56
	KeyEnd       uint32 = 0xff57
	KeyKPEnter   uint32 = 0xff8d
	KeyDelete    uint32 = 0xffff
	KeySpace     uint32 = 0x0020
)

// unicodeKeysymOffset maps keysyms 0x01000000+cp to code point cp.
const unicodeKeysymOffset = 0x01000000

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Super on Linux, Command on macOS
	ModRelease
)

// Key is a key event delivered by a platform bridge.
type Key struct {
	// Keyval is the keysym. Zero means Char alone identifies the key.
	Keyval uint32

	// Char is the character the key produces, or 0 for function keys.
	Char rune

	Modifiers Modifiers
}

// NewKey creates a key event for a printable character.
func NewKey(char rune) Key {
	return Key{Keyval: runeToKeyval(char), Char: char}
}

// NewKeyval creates a key event from a keysym.
func NewKeyval(keyval uint32, mods Modifiers) Key {
	return Key{Keyval: keyval, Char: keyvalToRune(keyval), Modifiers: mods}
}

// Has reports whether every modifier in m is held.
func (k Key) Has(m Modifiers) bool { return k.Modifiers&m == m }

// IsRelease reports whether this is a key release.
func (k Key) IsRelease() bool { return k.Has(ModRelease) }

// printable returns the character typed by the key, if any.
func (k Key) printable() (rune, bool) {
	c := k.Char
	if c == 0 {
		c = keyvalToRune(k.Keyval)
	}
	if c == 0 || c == ' ' || !unicode.IsPrint(c) {
		return 0, false
	}
	return c, true
}

func (k Key) keyval() uint32 {
	if k.Keyval != 0 {
		return k.Keyval
	}
	return runeToKeyval(k.Char)
}

// keyvalToRune converts a keysym to the character it types, or 0.
func keyvalToRune(keyval uint32) rune {
	switch {
	case keyval >= 0x20 && keyval <= 0x7e:
		return rune(keyval)
	case keyval >= 0xa0 && keyval <= 0xff:
		return rune(keyval)
	case keyval >= unicodeKeysymOffset && keyval <= unicodeKeysymOffset+unicode.MaxRune:
		return rune(keyval - unicodeKeysymOffset)
	default:
		return 0
	}
}

func runeToKeyval(r rune) uint32 {
	switch {
	case r <= 0:
		return 0
	case r >= 0x20 && r <= 0x7e, r >= 0xa0 && r <= 0xff:
		return uint32(r)
	default:
		return uint32(r) + unicodeKeysymOffset
	}
}

// keyNames maps the names accepted by ParseKey to keysyms.
var keyNames = map[string]uint32{
	"BackSpace": KeyBackSpace,
	"Tab":       KeyTab,
	"Return":    KeyReturn,
	"Escape":    KeyEscape,
	"Home":      KeyHome,
	"Left":      KeyLeft,
	"Up":        KeyUp,
	"Right":     KeyRight,
	"Down":      KeyDown,
	"Page_Up":   KeyPageUp,
	"Page_Down": KeyPageDown,
	"End":       KeyEnd,
	"Delete":    KeyDelete,
	"space":     KeySpace,
}

var modifierNames = map[string]Modifiers{
	"Shift":   ModShift,
	"Control": ModControl,
	"Alt":     ModAlt,
	"Super":   ModMeta,
	"Release": ModRelease,
}

// ParseKeys parses a key sequence. Plain characters stand for themselves;
// named keys are written in braces with optional modifiers, as in
// "ni{BackSpace}hao{space}" or "{Shift+Delete}".
func ParseKeys(seq string) ([]Key, error) {
	var keys []Key
	for len(seq) > 0 {
		if seq[0] != '{' {
			r, size := utf8.DecodeRuneInString(seq)
			if r == utf8.RuneError && size <= 1 {
				return nil, fmt.Errorf("invalid UTF-8 in key sequence")
			}
			keys = append(keys, NewKey(r))
			seq = seq[size:]
			continue
		}
		end := strings.IndexByte(seq, '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated key name in %q", seq)
		}
		key, err := parseKeyName(seq[1:end])
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		seq = seq[end+1:]
	}
	return keys, nil
}

func parseKeyName(name string) (Key, error) {
	parts := strings.Split(name, "+")
	var mods Modifiers
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierNames[p]
		if !ok {
			return Key{}, fmt.Errorf("unknown modifier %q", p)
		}
		mods |= m
	}
	last := parts[len(parts)-1]
	if keyval, ok := keyNames[last]; ok {
		return NewKeyval(keyval, mods), nil
	}
	if r, size := utf8.DecodeRuneInString(last); size == len(last) && r != utf8.RuneError {
		key := NewKey(r)
		key.Modifiers = mods
		return key, nil
	}
	return Key{}, fmt.Errorf("unknown key %q", last)
}
