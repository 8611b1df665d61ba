package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/metrics"
	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/utils"
)

// Train counts every marked word of every file in dir into model, one file
// at a time in name order. Blank lines are skipped and words that fail to
// align are tallied per file; neither stops training.
func Train(ctx context.Context, dir string, model *ngram.Model) ([]FileStats, error) {
	trainLogger := logger.NewLogger("Training")
	names, err := utils.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	trainLogger.Info().Str("dir", dir).Int("files", len(names)).Int("order", model.Order()).Msg("Starting training")
	stats := make([]FileStats, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s, err := trainFile(filepath.Join(dir, name), model)
		if err != nil {
			return stats, err
		}
		trainLogger.Info().Str("file", name).Int("words", s.Words).Int("errors", s.Errors).Msg("Trained file")
		stats = append(stats, s)
	}
	return stats, nil
}

type partialModel struct {
	index int
	model *ngram.Model
	stats FileStats
}

// TrainParallel trains each file into its own partial model on a bounded
// pool and merges the partials into model afterwards. The result equals
// Train over the same directory.
func TrainParallel(ctx context.Context, dir string, model *ngram.Model, workers int) ([]FileStats, error) {
	if workers <= 1 {
		return Train(ctx, dir, model)
	}
	trainLogger := logger.NewLogger("Training")
	names, err := utils.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	trainLogger.Info().Str("dir", dir).Int("files", len(names)).Int("workers", workers).Msg("Starting parallel training")
	p := pool.NewWithResults[partialModel]().
		WithContext(ctx).
		WithMaxGoroutines(workers).
		WithCancelOnError()
	for i, name := range names {
		i, name := i, name
		p.Go(func(ctx context.Context) (partialModel, error) {
			if err := ctx.Err(); err != nil {
				return partialModel{}, err
			}
			partial, err := ngram.NewModel(model.Order(), model.Tags())
			if err != nil {
				return partialModel{}, err
			}
			s, err := trainFile(filepath.Join(dir, name), partial)
			if err != nil {
				return partialModel{}, err
			}
			trainLogger.Info().Str("file", name).Int("words", s.Words).Int("errors", s.Errors).Msg("Trained file")
			return partialModel{index: i, model: partial, stats: s}, nil
		})
	}
	partials, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(partials, func(a, b int) bool { return partials[a].index < partials[b].index })
	stats := make([]FileStats, len(partials))
	for i, part := range partials {
		if err := model.Merge(part.model); err != nil {
			return nil, err
		}
		stats[i] = part.stats
	}
	return stats, nil
}

func trainFile(path string, model *ngram.Model) (FileStats, error) {
	stats := FileStats{Name: filepath.Base(path)}
	lines, err := utils.ReadList(path)
	if err != nil {
		return stats, err
	}
	for _, line := range lines {
		word := strings.TrimSpace(line)
		if word == "" {
			continue
		}
		stats.Words++
		if err := model.TrainWord(word); err != nil {
			stats.Errors++
		}
	}
	metrics.RecordTraining(stats.Words-stats.Errors, stats.Errors)
	return stats, nil
}
