package ngram

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/twmb/murmur3"

	"tashkeela.com/diac/tokenizer"
	"tashkeela.com/diac/types"
)

// Key identifies one count: the context window, the current base character
// and the tag it carried.
type Key struct {
	Context string
	Char    rune
	Tag     types.Tag
}

type Entry struct {
	Key
	Count uint64
}

// Model counts tags per (context, character). It is written only while
// training; once trained it is safe to share between readers.
type Model struct {
	order  int
	tags   types.TagSet
	align  tokenizer.Aligner
	counts map[Key]uint64
}

func NewModel(order int, tags types.TagSet) (*Model, error) {
	if order < 2 {
		return nil, fmt.Errorf("expecting order >= 2, got %d", order)
	}
	return &Model{
		order:  order,
		tags:   tags,
		align:  tokenizer.NewAligner(tags),
		counts: make(map[Key]uint64),
	}, nil
}

func (m *Model) Order() int {
	return m.order
}

func (m *Model) Tags() types.TagSet {
	return m.tags
}

// Len is the number of distinct keys with a non-zero count.
func (m *Model) Len() int {
	return len(m.counts)
}

// NewWindow returns a window sized for this model's order.
func (m *Model) NewWindow() *Window {
	return NewWindow(m.order - 1)
}

func (m *Model) Observe(w *Window, ch rune, tag types.Tag) {
	m.counts[Key{Context: w.String(), Char: ch, Tag: tag}]++
}

func (m *Model) Count(w *Window, ch rune, tag types.Tag) uint64 {
	return m.counts[Key{Context: w.String(), Char: ch, Tag: tag}]
}

// CountAt is Count with a precomputed context string.
func (m *Model) CountAt(context string, ch rune, tag types.Tag) uint64 {
	return m.counts[Key{Context: context, Char: ch, Tag: tag}]
}

// Add sets an entry while loading; counts for an existing key accumulate.
func (m *Model) Add(key Key, count uint64) error {
	if n := len([]rune(key.Context)); n != m.order-1 {
		return fmt.Errorf("context %q has %d characters, want %d", key.Context, n, m.order-1)
	}
	if !m.tags.Valid(key.Tag) {
		return fmt.Errorf("tag %d outside the tag set", key.Tag)
	}
	if count == 0 {
		return nil
	}
	m.counts[key] += count
	return nil
}

// TrainWord aligns one marked word and counts each of its pairs. A word that
// cannot be aligned leaves the model untouched.
func (m *Model) TrainWord(word string) error {
	pairs, err := m.align(word)
	if err != nil {
		return err
	}
	w := m.NewWindow()
	for _, p := range pairs {
		m.Observe(w, p.Char, p.Tag)
		w.Push(p.Char)
	}
	return nil
}

// Train feeds every word and returns how many failed to align.
func (m *Model) Train(words []string) (errs int) {
	for _, word := range words {
		if err := m.TrainWord(word); err != nil {
			errs++
		}
	}
	return errs
}

// Merge adds the counts of other into m.
func (m *Model) Merge(other *Model) error {
	if other.order != m.order {
		return fmt.Errorf("cannot merge order %d model into order %d", other.order, m.order)
	}
	if other.tags.Len() != m.tags.Len() {
		return fmt.Errorf("cannot merge models over different tag sets")
	}
	for k, v := range other.counts {
		m.counts[k] += v
	}
	return nil
}

// Entries lists every count sorted by context, character and tag.
func (m *Model) Entries() []Entry {
	entries := make([]Entry, 0, len(m.counts))
	for k, v := range m.counts {
		entries = append(entries, Entry{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Context != b.Context {
			return a.Context < b.Context
		}
		if a.Char != b.Char {
			return a.Char < b.Char
		}
		return a.Tag < b.Tag
	})
	return entries
}

// Fingerprint hashes the ordered entries; equal models have equal fingerprints.
func (m *Model) Fingerprint() uint64 {
	return fingerprint(m.order, m.Entries())
}

func fingerprint(order int, entries []Entry) uint64 {
	h := murmur3.New64()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(order))
	_, _ = h.Write(buf[:])
	for _, e := range entries {
		_, _ = h.Write([]byte(e.Context))
		binary.LittleEndian.PutUint32(buf[:4], uint32(e.Char))
		_, _ = h.Write(buf[:4])
		_, _ = h.Write([]byte{byte(e.Tag)})
		binary.LittleEndian.PutUint64(buf[:], e.Count)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
