package ngram

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"tashkeela.com/diac/types"
)

type blobEntry struct {
	Context string `json:"context"`
	Char    string `json:"char"`
	Tag     string `json:"tag"`
	Count   uint64 `json:"count"`
}

type blob struct {
	Order    int         `json:"order"`
	Checksum uint64      `json:"checksum"`
	Entries  []blobEntry `json:"entries"`
}

// Encode writes the model as one JSON document carrying its fingerprint.
func Encode(w io.Writer, m *Model) error {
	entries := m.Entries()
	doc := blob{
		Order:    m.order,
		Checksum: fingerprint(m.order, entries),
		Entries:  make([]blobEntry, len(entries)),
	}
	for i, e := range entries {
		doc.Entries[i] = blobEntry{
			Context: e.Context,
			Char:    string(e.Char),
			Tag:     m.tags.Symbol(e.Tag),
			Count:   e.Count,
		}
	}
	return json.NewEncoder(w).Encode(doc)
}

// Decode reads a document written by Encode and verifies its checksum.
func Decode(r io.Reader, tags types.TagSet) (*Model, error) {
	var doc blob
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	m, err := NewModel(doc.Order, tags)
	if err != nil {
		return nil, err
	}
	for i, e := range doc.Entries {
		ch, size := utf8.DecodeRuneInString(e.Char)
		if size == 0 || size != len(e.Char) {
			return nil, fmt.Errorf("entry %d: invalid character %q", i, e.Char)
		}
		tag, err := tags.ParseSymbol(e.Tag)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := m.Add(Key{Context: e.Context, Char: ch, Tag: tag}, e.Count); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	if sum := m.Fingerprint(); sum != doc.Checksum {
		return nil, fmt.Errorf("model checksum mismatch: stored %x, computed %x", doc.Checksum, sum)
	}
	return m, nil
}

// EncodeKey flattens a key as context, character and tag symbol. The context
// length is fixed by the order, so no separator is needed.
func EncodeKey(k Key, tags types.TagSet) string {
	return k.Context + string(k.Char) + tags.Symbol(k.Tag)
}

func DecodeKey(s string, order int, tags types.TagSet) (Key, error) {
	runes := []rune(s)
	if len(runes) < order+1 {
		return Key{}, fmt.Errorf("key %q too short for order %d", s, order)
	}
	tag, err := tags.ParseSymbol(string(runes[order:]))
	if err != nil {
		return Key{}, err
	}
	return Key{
		Context: string(runes[:order-1]),
		Char:    runes[order-1],
		Tag:     tag,
	}, nil
}

// WriteText dumps one entry per line: c1|...|cN-1|char|tag<TAB>count.
func WriteText(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	for _, e := range m.Entries() {
		fields := make([]string, 0, m.order+1)
		for _, c := range e.Context {
			fields = append(fields, string(c))
		}
		fields = append(fields, string(e.Char), m.tags.Symbol(e.Tag))
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", strings.Join(fields, "|"), e.Count); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadText parses the WriteText format.
func ReadText(r io.Reader, order int, tags types.TagSet) (*Model, error) {
	m, err := NewModel(order, tags)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		tab := strings.LastIndexByte(text, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("line %d: missing count", line)
		}
		count, err := strconv.ParseUint(text[tab+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fields := strings.SplitN(text[:tab], "|", order+1)
		if len(fields) != order+1 {
			return nil, fmt.Errorf("line %d: want %d fields, got %d", line, order+1, len(fields))
		}
		var ctx []rune
		for _, f := range fields[:order-1] {
			ctx = append(ctx, []rune(f)...)
		}
		ch := []rune(fields[order-1])
		if len(ch) != 1 {
			return nil, fmt.Errorf("line %d: invalid character %q", line, fields[order-1])
		}
		tag, err := tags.ParseSymbol(fields[order])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := m.Add(Key{Context: string(ctx), Char: ch[0], Tag: tag}, count); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
