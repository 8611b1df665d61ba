package evaluation

import (
	"tashkeela.com/diac/tokenizer"
	"tashkeela.com/diac/types"
)

// WordScore counts matching tags between a gold word and a prediction.
type WordScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

func (s WordScore) FullyCorrect() bool {
	return s.Correct == s.Total
}

func (s WordScore) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// Scorer compares a gold marked word with a predicted marked word.
type Scorer func(gold, predicted string) (WordScore, error)

// NewScorer aligns both words and compares tags position by position.
// Words that do not align return the *types.AlignmentError; words with a
// different number of base characters return *types.LengthMismatchError.
func NewScorer(tags types.TagSet) Scorer {
	align := tokenizer.NewAligner(tags)
	return func(gold, predicted string) (WordScore, error) {
		goldPairs, err := align(gold)
		if err != nil {
			return WordScore{}, err
		}
		predPairs, err := align(predicted)
		if err != nil {
			return WordScore{}, err
		}
		if len(goldPairs) != len(predPairs) {
			return WordScore{}, &types.LengthMismatchError{
				Gold:      gold,
				Predicted: predicted,
				GoldLen:   len(goldPairs),
				PredLen:   len(predPairs),
			}
		}

		score := WordScore{Total: len(goldPairs)}
		for i := range goldPairs {
			if goldPairs[i].Tag == predPairs[i].Tag {
				score.Correct++
			}
		}
		return score, nil
	}
}
