package tokenizer

import (
	"strings"

	"tashkeela.com/diac/types"
)

// Aligner splits a marked word into one aligned pair per base character.
type Aligner func(word string) ([]types.AlignedPair, error)

func NewAligner(tags types.TagSet) Aligner {
	return func(word string) ([]types.AlignedPair, error) {
		return align(word, tags)
	}
}

func align(word string, tags types.TagSet) ([]types.AlignedPair, error) {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil, &types.AlignmentError{Word: word, Reason: "empty word"}
	}

	pairs := make([]types.AlignedPair, 0, len(runes))
	for pos := 0; pos < len(runes); {
		base := runes[pos]
		if tags.IsMark(base) {
			return nil, &types.AlignmentError{Word: word, Offset: pos, Reason: "mark has no base character"}
		}

		// a base with no mark after it closes immediately
		tag := tags.Null()
		next := pos + 1

		if next < len(runes) && tags.IsMark(runes[next]) {
			marks := 1
			for next+marks < len(runes) && tags.IsMark(runes[next+marks]) {
				marks++
			}
			if marks > 2 {
				return nil, &types.AlignmentError{Word: word, Offset: next, Reason: "more than two marks on one character"}
			}

			var ok bool
			tag, ok = tags.Lookup(runes[next : next+marks]...)
			if !ok {
				return nil, &types.AlignmentError{Word: word, Offset: next, Reason: "marks do not form a known tag"}
			}
			next += marks
		}

		pairs = append(pairs, types.AlignedPair{Char: base, Tag: tag})
		pos = next
	}

	return pairs, nil
}

// Render writes pairs back as a marked string, composites shadda first.
func Render(pairs []types.AlignedPair, tags types.TagSet) string {
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteRune(p.Char)
		if p.Tag != tags.Null() {
			sb.WriteString(tags.Marks(p.Tag))
		}
	}
	return sb.String()
}

func Clean(word string, tags types.TagSet) string {
	return tags.Strip(word)
}

func HasMarks(word string, tags types.TagSet) bool {
	for _, r := range word {
		if tags.IsMark(r) {
			return true
		}
	}
	return false
}
