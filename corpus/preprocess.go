package corpus

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/utils"
)

const DefaultWordsPerFile = 1000000

var (
	sentenceSplit = regexp.MustCompile(`؟|!|\.+`)
	// digits and punctuation other than the sentence enders
	noise = regexp.MustCompile(`[\p{Nd}\\/()\[\]|\-’÷×*+_<>«»@#$%^&:]+`)
	// a word is kept only if it carries one of the short vowels or sukun
	vowels = string([]rune{types.Damma, types.Fatha, types.Kasra, types.Sukun})
)

// xmlTextPath is the element chain whose text is extracted from XML sources.
var xmlTextPath = []string{"text", "body", "p"}

type Config struct {
	OutDir       string
	WordsPerFile int
}

type PreprocessStats struct {
	Sources int `json:"sources"`
	Words   int `json:"words"`
	Files   int `json:"files"`
}

// Preprocess turns a tree of raw marked text into one-word-per-line files
// under cfg.OutDir named 1, 2, 3... Sentences are split on ؟ ! and runs of
// dots, stripped of noise, and each word carrying a vowel mark is written on
// its own line. A blank line follows every sentence that produced a word. A
// new file is started once the current one holds WordsPerFile words.
func Preprocess(ctx context.Context, srcDir string, cfg Config) (PreprocessStats, error) {
	prepLogger := logger.NewLogger("Preprocessor")
	if cfg.WordsPerFile <= 0 {
		cfg.WordsPerFile = DefaultWordsPerFile
	}
	if _, err := os.Stat(srcDir); err != nil {
		return PreprocessStats{}, &types.MissingResourceError{Path: srcDir, Err: err}
	}
	if err := utils.EnsureDir(cfg.OutDir); err != nil {
		return PreprocessStats{}, err
	}

	out := &rollingWriter{dir: cfg.OutDir, limit: cfg.WordsPerFile}
	defer out.Close()

	var stats PreprocessStats
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if filepath.Clean(path) == filepath.Clean(cfg.OutDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := readSource(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		words, err := writeSentences(out, content)
		if err != nil {
			return err
		}
		stats.Sources++
		stats.Words += words
		prepLogger.Info().Str("file", path).Int("words", words).Msg("Preprocessed source")
		return nil
	})
	if err != nil {
		return stats, err
	}
	if err := out.Close(); err != nil {
		return stats, err
	}
	stats.Files = out.count
	prepLogger.Info().Int("words", stats.Words).Int("files", stats.Files).Msg("Done preprocessing")
	return stats, nil
}

func readSource(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return extractXMLText(f)
	}
	buf, err := io.ReadAll(f)
	return string(buf), err
}

// extractXMLText joins the text of every text/body/p element with newlines.
func extractXMLText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	var (
		stack []string
		parts []string
		cur   strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			if inTextPath(stack) {
				cur.Reset()
			}
		case xml.CharData:
			if inTextPath(stack) {
				cur.Write(t)
			}
		case xml.EndElement:
			if inTextPath(stack) {
				parts = append(parts, cur.String())
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}

func inTextPath(stack []string) bool {
	if len(stack) < len(xmlTextPath) {
		return false
	}
	tail := stack[len(stack)-len(xmlTextPath):]
	for i, name := range xmlTextPath {
		if tail[i] != name {
			return false
		}
	}
	return true
}

func writeSentences(out *rollingWriter, content string) (int, error) {
	written := 0
	for _, sentence := range sentenceSplit.Split(content, -1) {
		sentence = strings.TrimSpace(noise.ReplaceAllString(sentence, ""))
		inside := false
		for _, word := range strings.Fields(sentence) {
			if !strings.ContainsAny(word, vowels) {
				continue
			}
			inside = true
			if err := out.WriteWord(word); err != nil {
				return written, err
			}
			written++
		}
		if inside {
			if err := out.EndSentence(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// rollingWriter writes numbered files, moving to the next one at a
// sentence boundary once limit words have been written.
type rollingWriter struct {
	dir   string
	limit int
	count int
	words int
	file  *os.File
	buf   *bufio.Writer
}

func (w *rollingWriter) open() error {
	w.count++
	f, err := os.Create(filepath.Join(w.dir, strconv.Itoa(w.count)))
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.words = 0
	return nil
}

func (w *rollingWriter) WriteWord(word string) error {
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	w.words++
	_, err := w.buf.WriteString(word + "\n")
	return err
}

func (w *rollingWriter) EndSentence() error {
	if w.file == nil {
		return nil
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	if w.words >= w.limit {
		return w.Close()
	}
	return nil
}

func (w *rollingWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	w.buf = nil
	return err
}
