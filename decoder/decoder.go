package decoder

import (
	"fmt"
	"strings"

	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/types"
)

// Decoder marks one unmarked word.
type Decoder func(word string) (string, error)

// New returns a greedy decoder over a trained model. For each character it
// picks the tag with the highest count under the current context, scanning
// tags in set order and switching only on a strictly greater count, so ties
// go to the earlier tag and unseen keys keep the null tag. The window slides
// on input characters, never on predicted marks.
//
// The model is only read, so one model may back many decoders at once.
func New(model *ngram.Model) Decoder {
	tags := model.Tags()
	order := tags.Tags()
	null := tags.Null()

	return func(word string) (string, error) {
		for i, ch := range word {
			if tags.IsMark(ch) {
				return "", fmt.Errorf("%q at byte %d: %w", word, i, types.ErrMarkedInput)
			}
		}

		w := model.NewWindow()
		var sb strings.Builder
		sb.Grow(len(word) * 2)
		for _, ch := range word {
			context := w.String()
			best, bestCount := null, uint64(0)
			for _, tag := range order {
				if c := model.CountAt(context, ch, tag); c > bestCount {
					best, bestCount = tag, c
				}
			}
			sb.WriteRune(ch)
			if best != null {
				sb.WriteString(tags.Marks(best))
			}
			w.Push(ch)
		}
		return sb.String(), nil
	}
}
