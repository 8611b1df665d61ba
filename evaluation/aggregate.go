package evaluation

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"tashkeela.com/diac/types"
)

// MinAlignedLength is the shortest word that counts towards the aggregate.
const MinAlignedLength = 2

const NumBuckets = 5

// BucketLabels name the histogram buckets in order.
var BucketLabels = [NumBuckets]string{"<0.2", "0.2-0.4", "0.4-0.6", "0.6-0.8", ">=0.8"}

// Bucket maps a per-word accuracy in [0,1] to its histogram bucket. Every
// value lands in exactly one bucket; out-of-range values clamp to the ends.
func Bucket(acc float64) int {
	switch {
	case acc < 0.2:
		return 0
	case acc < 0.4:
		return 1
	case acc < 0.6:
		return 2
	case acc < 0.8:
		return 3
	default:
		return 4
	}
}

// Excluded tallies words left out of the aggregate, by cause.
type Excluded struct {
	Alignment      int `json:"alignment"`
	LengthMismatch int `json:"length_mismatch"`
	Short          int `json:"short"`
}

func (e Excluded) Total() int {
	return e.Alignment + e.LengthMismatch + e.Short
}

// Aggregate accumulates word scores over a corpus. The zero value is ready
// to use. It is not safe for concurrent use; aggregate per file and Merge.
type Aggregate struct {
	Words        int
	CorrectWords int
	Chars        int
	CorrectChars int
	Histogram    [NumBuckets]int
	Excluded     Excluded

	accuracies []float64
}

// Add counts one scored word, excluding words shorter than MinAlignedLength.
func (a *Aggregate) Add(score WordScore) {
	if score.Total < MinAlignedLength {
		a.Excluded.Short++
		return
	}
	a.Words++
	if score.FullyCorrect() {
		a.CorrectWords++
	}
	a.Chars += score.Total
	a.CorrectChars += score.Correct
	acc := score.Accuracy()
	a.Histogram[Bucket(acc)]++
	a.accuracies = append(a.accuracies, acc)
}

// Exclude records a word that failed scoring. Errors other than alignment
// and length mismatch are returned unchanged.
func (a *Aggregate) Exclude(err error) error {
	switch {
	case errors.Is(err, types.ErrAlignment):
		a.Excluded.Alignment++
	case errors.Is(err, types.ErrLengthMismatch):
		a.Excluded.LengthMismatch++
	default:
		return err
	}
	return nil
}

// Observe scores one pair of words and adds or excludes it. The scoring
// error is returned so callers can log it; it is already accounted for.
func (a *Aggregate) Observe(score Scorer, gold, predicted string) error {
	s, err := score(gold, predicted)
	if err != nil {
		if other := a.Exclude(err); other != nil {
			return fmt.Errorf("score %q: %w", gold, other)
		}
		return err
	}
	a.Add(s)
	return nil
}

func (a *Aggregate) Merge(other *Aggregate) {
	a.Words += other.Words
	a.CorrectWords += other.CorrectWords
	a.Chars += other.Chars
	a.CorrectChars += other.CorrectChars
	for i := range a.Histogram {
		a.Histogram[i] += other.Histogram[i]
	}
	a.Excluded.Alignment += other.Excluded.Alignment
	a.Excluded.LengthMismatch += other.Excluded.LengthMismatch
	a.Excluded.Short += other.Excluded.Short
	a.accuracies = append(a.accuracies, other.accuracies...)
}

func (a *Aggregate) WordAccuracy() float64 {
	return ratio(a.CorrectWords, a.Words)
}

func (a *Aggregate) CharAccuracy() float64 {
	return ratio(a.CorrectChars, a.Chars)
}

// MeanStdDev of per-word accuracy. The deviation is zero below two words.
func (a *Aggregate) MeanStdDev() (mean, std float64) {
	switch len(a.accuracies) {
	case 0:
		return 0, 0
	case 1:
		return a.accuracies[0], 0
	}
	mean, std = stat.MeanStdDev(a.accuracies, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// HistogramBucket is one labelled bucket of a Report.
type HistogramBucket struct {
	Label string `json:"label"`
	Words int    `json:"words"`
}

// Report is the serializable summary of an Aggregate.
type Report struct {
	Name         string            `json:"name,omitempty"`
	Words        int               `json:"words"`
	CorrectWords int               `json:"correct_words"`
	Chars        int               `json:"chars"`
	CorrectChars int               `json:"correct_chars"`
	WordAccuracy float64           `json:"word_accuracy"`
	CharAccuracy float64           `json:"char_accuracy"`
	MeanAccuracy float64           `json:"mean_accuracy"`
	StdDev       float64           `json:"stddev_accuracy"`
	Histogram    []HistogramBucket `json:"histogram"`
	Excluded     Excluded          `json:"excluded"`
}

func (a *Aggregate) Report(name string) Report {
	mean, std := a.MeanStdDev()
	r := Report{
		Name:         name,
		Words:        a.Words,
		CorrectWords: a.CorrectWords,
		Chars:        a.Chars,
		CorrectChars: a.CorrectChars,
		WordAccuracy: a.WordAccuracy(),
		CharAccuracy: a.CharAccuracy(),
		MeanAccuracy: mean,
		StdDev:       std,
		Histogram:    make([]HistogramBucket, NumBuckets),
		Excluded:     a.Excluded,
	}
	for i, label := range BucketLabels {
		r.Histogram[i] = HistogramBucket{Label: label, Words: a.Histogram[i]}
	}
	return r
}

// WriteSummary prints the human-readable block shown after evaluation.
func (r Report) WriteSummary(w io.Writer) error {
	lines := []string{
		"This model has got:",
		fmt.Sprintf("\tCorrect words: %d out of %d", r.CorrectWords, r.Words),
		fmt.Sprintf("\tCorrect characters: %d out of %d", r.CorrectChars, r.Chars),
		fmt.Sprintf("\tAn accuracy (character-wise): %f", r.CharAccuracy),
		fmt.Sprintf("\tAn accuracy (word-wise): %f", r.WordAccuracy),
		fmt.Sprintf("\tPer-word accuracy: mean %f, stddev %f", r.MeanAccuracy, r.StdDev),
	}
	for _, b := range r.Histogram {
		lines = append(lines, fmt.Sprintf("\t%-8s %d", b.Label, b.Words))
	}
	lines = append(lines, fmt.Sprintf("\tExcluded: %d alignment, %d length mismatch, %d short",
		r.Excluded.Alignment, r.Excluded.LengthMismatch, r.Excluded.Short))

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
