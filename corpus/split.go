package corpus

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/utils"
)

type SplitResult struct {
	Train []string `json:"train"`
	Test  []string `json:"test"`
}

// Split moves the numbered files of dir into dir/train and dir/test/gold.
// ratio is the share of files, taken from the end of the numbering, that
// goes to the test side.
func Split(dir string, ratio float64) (SplitResult, error) {
	splitLogger := logger.NewLogger("Splitter")
	if ratio < 0 || ratio > 1 {
		return SplitResult{}, fmt.Errorf("ratio must be within [0,1], got %v", ratio)
	}
	names, err := utils.ListFiles(dir)
	if err != nil {
		return SplitResult{}, err
	}

	type numbered struct {
		name string
		n    int
	}
	var files []numbered
	for _, name := range names {
		n, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		files = append(files, numbered{name, n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	trainDir := filepath.Join(dir, "train")
	goldDir := filepath.Join(dir, "test", "gold")
	for _, d := range []string{trainDir, goldDir} {
		if err := utils.EnsureDir(d); err != nil {
			return SplitResult{}, err
		}
	}

	cut := int(float64(len(files)) * (1 - ratio))
	var result SplitResult
	for i, f := range files {
		target := trainDir
		if i >= cut {
			target = goldDir
		}
		if err := os.Rename(filepath.Join(dir, f.name), filepath.Join(target, f.name)); err != nil {
			return result, err
		}
		if i < cut {
			result.Train = append(result.Train, f.name)
		} else {
			result.Test = append(result.Test, f.name)
		}
	}
	splitLogger.Info().Int("train", len(result.Train)).Int("test", len(result.Test)).Msg("Split corpus")
	return result, nil
}

// Strip writes a mark-free copy of every gold file into testDir.
func Strip(ctx context.Context, goldDir, testDir string, tags types.TagSet) ([]string, error) {
	stripLogger := logger.NewLogger("Stripper")
	names, err := utils.ListFiles(goldDir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(testDir); err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := utils.ReadList(filepath.Join(goldDir, name))
		if err != nil {
			return nil, err
		}
		err = utils.WriteFileAtomic(filepath.Join(testDir, name), func(w io.Writer) error {
			for _, line := range lines {
				if _, err := io.WriteString(w, tags.Strip(line)+"\n"); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		stripLogger.Info().Str("file", name).Int("lines", len(lines)).Msg("Stripped file")
	}
	return names, nil
}
