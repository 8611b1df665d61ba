package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tashkeela.com/diac/decoder"
	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/types"
)

var trainFiles = map[string]string{
	"1.txt": "مُقَدِّمَةُ\nالطَّبَرِيِّ\n\nشَيْخِ\nَبad\n",
	"2.txt": "الدِّينِ\nفَجَاءَ\n  فِيهِ  \n\n\n",
	"3.txt": "بِالْعَجَبِ\nالْعُجَابِ\nوَنَثَرَ\nأَلْبَابَ\nالْأَلْبَاب\n",
}

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newModel(t *testing.T, order int) *ngram.Model {
	t.Helper()
	m, err := ngram.NewModel(order, types.DefaultTagSet())
	require.NoError(t, err)
	return m
}

func TestTrain(t *testing.T) {
	dir := writeDir(t, trainFiles)
	m := newModel(t, 3)

	stats, err := Train(context.Background(), dir, m)
	require.NoError(t, err)
	require.Equal(t, []FileStats{
		{Name: "1.txt", Words: 4, Errors: 1},
		{Name: "2.txt", Words: 3},
		{Name: "3.txt", Words: 5},
	}, stats)
	require.Equal(t, FileStats{Words: 12, Errors: 1}, Totals(stats))
	require.Equal(t, uint64(1), m.CountAt("**", 'م', types.TagDamma))
	require.Equal(t, uint64(1), m.CountAt("**", 'ف', types.TagKasra))

	t.Run("missing directory", func(t *testing.T) {
		_, err := Train(context.Background(), filepath.Join(dir, "absent"), newModel(t, 3))
		require.True(t, errors.Is(err, types.ErrMissingResource))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Train(ctx, dir, newModel(t, 3))
		require.True(t, errors.Is(err, context.Canceled))
	})
}

func TestTrainParallelMatchesSequential(t *testing.T) {
	dir := writeDir(t, trainFiles)

	seq := newModel(t, 3)
	seqStats, err := Train(context.Background(), dir, seq)
	require.NoError(t, err)

	par := newModel(t, 3)
	parStats, err := TrainParallel(context.Background(), dir, par, 3)
	require.NoError(t, err)

	require.Equal(t, seqStats, parStats)
	require.Equal(t, seq.Fingerprint(), par.Fingerprint())
}

func TestTextDecoder(t *testing.T) {
	m := newModel(t, 3)
	require.NoError(t, m.TrainWord("فِيهِ"))
	decode := NewTextDecoder(decoder.New(m))

	out, stats, err := decode(context.Background(), "فيه\n\nفيه  ب\nفِيهِ\n")
	require.NoError(t, err)
	require.Equal(t, "فِيهِ\n\nفِيهِ ب\nفِيهِ\n", out)
	require.Equal(t, FileStats{Words: 4, Errors: 1}, stats)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = decode(ctx, "فيه\n")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestDecodeDir(t *testing.T) {
	m := newModel(t, 3)
	_, err := Train(context.Background(), writeDir(t, trainFiles), m)
	require.NoError(t, err)

	tags := types.DefaultTagSet()
	in := writeDir(t, map[string]string{
		"1.txt": "مقدمة\n\nفيه\n",
		"2.txt": "الألباب\n",
		"3.txt": "",
	})
	out := filepath.Join(t.TempDir(), "predicted", "3gram")

	stats, err := DecodeDir(context.Background(), in, out, decoder.New(m), 2)
	require.NoError(t, err)
	require.Equal(t, []FileStats{
		{Name: "1.txt", Words: 2},
		{Name: "2.txt", Words: 1},
		{Name: "3.txt"},
	}, stats)

	body, err := os.ReadFile(filepath.Join(out, "1.txt"))
	require.NoError(t, err)
	lines := strings.Split(string(body), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "مقدمة", tags.Strip(lines[0]))
	require.Equal(t, "", lines[1])
	want, err := decoder.New(m)("فيه")
	require.NoError(t, err)
	require.Equal(t, want, lines[2])
	require.Equal(t, "", lines[3])

	_, err = DecodeDir(context.Background(), filepath.Join(in, "absent"), out, decoder.New(m), 1)
	require.True(t, errors.Is(err, types.ErrMissingResource))
}

func TestEvaluateDirs(t *testing.T) {
	tags := types.DefaultTagSet()
	gold := writeDir(t, map[string]string{
		"1.txt": "مُقَدِّمَةُ\n\nفِيهِ\nَبad\nوَ\nالدِّينِ\n",
	})
	predicted := writeDir(t, map[string]string{
		"1.txt": "مُقَدِّمَةُ\n\nفيه\nبad\nو\nالدين\nextra\n",
	})

	agg, stats, err := EvaluateDirs(context.Background(), gold, predicted, tags)
	require.NoError(t, err)
	require.Equal(t, []FileStats{{Name: "1.txt", Words: 4, Errors: 1, Skipped: 2}}, stats)
	require.Equal(t, 3, agg.Words)
	require.Equal(t, 1, agg.CorrectWords)
	require.Equal(t, 1, agg.Excluded.Alignment)
	require.Equal(t, 5+3+5, agg.Chars)

	t.Run("missing gold file", func(t *testing.T) {
		extra := writeDir(t, map[string]string{"9.txt": "فيه\n"})
		_, _, err := EvaluateDirs(context.Background(), gold, extra, tags)
		require.True(t, errors.Is(err, types.ErrMissingResource))
	})
}
