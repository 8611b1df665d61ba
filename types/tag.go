package types

import (
	"fmt"
	"strings"
)

// Arabic diacritic code points.
const (
	Fathatan rune = 'ً'
	Dammatan rune = 'ٌ'
	Kasratan rune = 'ٍ'
	Fatha    rune = 'َ'
	Damma    rune = 'ُ'
	Kasra    rune = 'ِ'
	Shadda   rune = 'ّ'
	Sukun    rune = 'ْ'
)

// Start pads the context window before the first character of a word.
const Start rune = '*'

// NullTagName is the external name of NullTag in model dumps.
const NullTagName = "O"

// Tag indexes a TagSet. The zero value is the first tag of the set, so use
// NullTag explicitly for unmarked characters.
type Tag uint8

// Tags of the default set, in tie-break order.
const (
	TagDammatan Tag = iota
	TagFathatan
	TagKasratan
	TagDamma
	TagFatha
	TagKasra
	TagSukun
	TagShadda
	TagShaddaDammatan
	TagShaddaFathatan
	TagShaddaKasratan
	TagShaddaDamma
	TagShaddaFatha
	TagShaddaKasra
	TagShaddaSukun
	NullTag
)

type TagDef struct {
	Name  string
	Marks []rune
}

// TagSet is the closed enumeration of mark states. The order of Defs fixes
// the decoder tie-break; the last definition must be the null tag.
type TagSet struct {
	defs   []TagDef
	byMark map[string]Tag
	marks  map[rune]bool
}

var defaultTagDefs = []TagDef{
	{Name: "dammatan", Marks: []rune{Dammatan}},
	{Name: "fathatan", Marks: []rune{Fathatan}},
	{Name: "kasratan", Marks: []rune{Kasratan}},
	{Name: "damma", Marks: []rune{Damma}},
	{Name: "fatha", Marks: []rune{Fatha}},
	{Name: "kasra", Marks: []rune{Kasra}},
	{Name: "sukun", Marks: []rune{Sukun}},
	{Name: "shadda", Marks: []rune{Shadda}},
	{Name: "shadda_dammatan", Marks: []rune{Shadda, Dammatan}},
	{Name: "shadda_fathatan", Marks: []rune{Shadda, Fathatan}},
	{Name: "shadda_kasratan", Marks: []rune{Shadda, Kasratan}},
	{Name: "shadda_damma", Marks: []rune{Shadda, Damma}},
	{Name: "shadda_fatha", Marks: []rune{Shadda, Fatha}},
	{Name: "shadda_kasra", Marks: []rune{Shadda, Kasra}},
	{Name: "shadda_sukun", Marks: []rune{Shadda, Sukun}},
	{Name: "null", Marks: nil},
}

func DefaultTagSet() TagSet {
	ts, err := NewTagSet(defaultTagDefs)
	if err != nil {
		panic(err)
	}
	return ts
}

func NewTagSet(defs []TagDef) (TagSet, error) {
	if len(defs) < 2 || len(defs) > 256 {
		return TagSet{}, fmt.Errorf("tag set needs 2..256 tags, got %d", len(defs))
	}
	if len(defs[len(defs)-1].Marks) != 0 {
		return TagSet{}, fmt.Errorf("last tag %q must carry no marks", defs[len(defs)-1].Name)
	}

	ts := TagSet{
		defs:   make([]TagDef, len(defs)),
		byMark: make(map[string]Tag, len(defs)),
		marks:  make(map[rune]bool),
	}
	for i, def := range defs {
		if i < len(defs)-1 && (len(def.Marks) == 0 || len(def.Marks) > 2) {
			return TagSet{}, fmt.Errorf("tag %q must carry one or two marks", def.Name)
		}
		marks := make([]rune, len(def.Marks))
		copy(marks, def.Marks)
		ts.defs[i] = TagDef{Name: def.Name, Marks: marks}

		key := markKey(marks)
		if _, dup := ts.byMark[key]; dup {
			return TagSet{}, fmt.Errorf("tag %q duplicates marks of another tag", def.Name)
		}
		ts.byMark[key] = Tag(i)
		for _, m := range marks {
			ts.marks[m] = true
		}
	}
	return ts, nil
}

// markKey is order-insensitive for pairs, so shadda+vowel and vowel+shadda
// resolve to the same composite.
func markKey(marks []rune) string {
	if len(marks) == 2 && marks[0] > marks[1] {
		return string([]rune{marks[1], marks[0]})
	}
	return string(marks)
}

func (ts TagSet) Len() int {
	return len(ts.defs)
}

// Tags returns every tag in tie-break order.
func (ts TagSet) Tags() []Tag {
	tags := make([]Tag, len(ts.defs))
	for i := range ts.defs {
		tags[i] = Tag(i)
	}
	return tags
}

func (ts TagSet) Null() Tag {
	return Tag(len(ts.defs) - 1)
}

func (ts TagSet) IsMark(ch rune) bool {
	return ts.marks[ch]
}

func (ts TagSet) Valid(tag Tag) bool {
	return int(tag) < len(ts.defs)
}

// Lookup resolves one or two marks to a tag.
func (ts TagSet) Lookup(marks ...rune) (Tag, bool) {
	if len(marks) == 0 || len(marks) > 2 {
		return 0, false
	}
	tag, ok := ts.byMark[markKey(marks)]
	return tag, ok
}

func (ts TagSet) Marks(tag Tag) string {
	if !ts.Valid(tag) {
		return ""
	}
	return string(ts.defs[tag].Marks)
}

func (ts TagSet) Name(tag Tag) string {
	if !ts.Valid(tag) {
		return fmt.Sprintf("tag(%d)", tag)
	}
	return ts.defs[tag].Name
}

// Symbol is the dump form of a tag: its marks, or "O" for the null tag.
func (ts TagSet) Symbol(tag Tag) string {
	if tag == ts.Null() {
		return NullTagName
	}
	return ts.Marks(tag)
}

func (ts TagSet) ParseSymbol(s string) (Tag, error) {
	if s == NullTagName {
		return ts.Null(), nil
	}
	tag, ok := ts.Lookup([]rune(s)...)
	if !ok {
		return 0, fmt.Errorf("unknown tag symbol %q", s)
	}
	return tag, nil
}

// Strip removes every mark character of the set.
func (ts TagSet) Strip(s string) string {
	return strings.Map(func(r rune) rune {
		if ts.marks[r] {
			return -1
		}
		return r
	}, s)
}
