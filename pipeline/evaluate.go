package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"tashkeela.com/diac/evaluation"
	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/metrics"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/utils"
)

// minLineRunes is the shortest line, gold or predicted, that is scored.
const minLineRunes = 2

// EvaluateDirs scores each predicted file against the gold file of the same
// name, line by line. Words that fail to score are excluded and counted in
// the aggregate; a missing gold file ends the run.
func EvaluateDirs(ctx context.Context, goldDir, predictedDir string, tags types.TagSet) (*evaluation.Aggregate, []FileStats, error) {
	evalLogger := logger.NewLogger("Evaluation")
	names, err := utils.ListFiles(predictedDir)
	if err != nil {
		return nil, nil, err
	}

	score := evaluation.NewScorer(tags)
	total := &evaluation.Aggregate{}
	stats := make([]FileStats, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return total, stats, err
		}
		goldPath := filepath.Join(goldDir, name)
		if _, err := os.Stat(goldPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return total, stats, &types.MissingResourceError{Path: goldPath, Err: err}
			}
			return total, stats, err
		}
		gold, err := utils.ReadList(goldPath)
		if err != nil {
			return total, stats, err
		}
		predicted, err := utils.ReadList(filepath.Join(predictedDir, name))
		if err != nil {
			return total, stats, err
		}
		if len(gold) != len(predicted) {
			evalLogger.Warn().Str("file", name).Int("gold_lines", len(gold)).Int("predicted_lines", len(predicted)).
				Msg("Line counts differ, scoring the common prefix")
		}

		fileAgg, s := evaluateLines(score, gold, predicted)
		s.Name = name
		total.Merge(fileAgg)
		metrics.RecordEvaluationExclusions(fileAgg.Excluded.Alignment)
		evalLogger.Info().Str("file", name).Int("words", s.Words).Int("errors", s.Errors).
			Float64("char_accuracy", fileAgg.CharAccuracy()).Msg("Evaluated file")
		stats = append(stats, s)
	}
	return total, stats, nil
}

func evaluateLines(score evaluation.Scorer, gold, predicted []string) (*evaluation.Aggregate, FileStats) {
	agg := &evaluation.Aggregate{}
	var stats FileStats
	n := len(gold)
	if len(predicted) < n {
		n = len(predicted)
	}
	for i := 0; i < n; i++ {
		g := strings.TrimSpace(gold[i])
		p := strings.TrimSpace(predicted[i])
		if utf8.RuneCountInString(g) < minLineRunes || utf8.RuneCountInString(p) < minLineRunes {
			stats.Skipped++
			continue
		}
		stats.Words++
		if err := agg.Observe(score, g, p); err != nil {
			stats.Errors++
		}
	}
	return agg, stats
}
