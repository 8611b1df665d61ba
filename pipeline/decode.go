package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"tashkeela.com/diac/decoder"
	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/metrics"
	"tashkeela.com/diac/utils"
)

// cancelCheckLines is how often long inputs look at their context.
const cancelCheckLines = 1024

// TextDecoder marks every word of a text. Lines keep their position and
// blank lines stay blank.
type TextDecoder func(ctx context.Context, text string) (string, FileStats, error)

func NewTextDecoder(dec decoder.Decoder) TextDecoder {
	return func(ctx context.Context, text string) (string, FileStats, error) {
		lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
		out, stats, err := decodeLines(ctx, dec, lines)
		if err != nil {
			return "", stats, err
		}
		return strings.Join(out, "\n") + "\n", stats, nil
	}
}

// decodeLines decodes each whitespace-separated word of each line. A word
// the decoder refuses is written back unchanged and counted as an error.
func decodeLines(ctx context.Context, dec decoder.Decoder, lines []string) ([]string, FileStats, error) {
	var stats FileStats
	out := make([]string, len(lines))
	for i, line := range lines {
		if i%cancelCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		for j, word := range words {
			stats.Words++
			marked, err := dec(word)
			if err != nil {
				stats.Errors++
				continue
			}
			words[j] = marked
		}
		out[i] = strings.Join(words, " ")
	}
	return out, stats, nil
}

// DecodeDir decodes every file of in into a file of the same name in out.
// Files run in parallel on at most workers goroutines; the decoder only
// reads its model, so they share it.
func DecodeDir(ctx context.Context, in, out string, dec decoder.Decoder, workers int) ([]FileStats, error) {
	decodeLogger := logger.NewLogger("Decoding")
	names, err := utils.ListFiles(in)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(out); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	decodeLogger.Info().Str("in", in).Str("out", out).Int("files", len(names)).Int("workers", workers).Msg("Starting decoding")
	p := pool.NewWithResults[FileStats]().
		WithContext(ctx).
		WithMaxGoroutines(workers).
		WithCancelOnError()
	for _, name := range names {
		name := name
		p.Go(func(ctx context.Context) (FileStats, error) {
			start := time.Now()
			lines, err := utils.ReadList(filepath.Join(in, name))
			if err != nil {
				return FileStats{}, err
			}
			decoded, stats, err := decodeLines(ctx, dec, lines)
			if err != nil {
				return FileStats{}, err
			}
			stats.Name = name
			err = utils.WriteFileAtomic(filepath.Join(out, name), func(w io.Writer) error {
				for _, line := range decoded {
					if _, err := io.WriteString(w, line+"\n"); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return FileStats{}, err
			}
			metrics.RecordDecode("file", stats.Words, stats.Errors, time.Since(start))
			decodeLogger.Info().Str("file", name).Int("words", stats.Words).Int("errors", stats.Errors).Msg("Decoded file")
			return stats, nil
		})
	}
	stats, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, nil
}
