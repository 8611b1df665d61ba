package ngram

import "tashkeela.com/diac/types"

// Window holds the last N-1 base characters seen, oldest first. It is a ring
// buffer primed with the start sentinel.
type Window struct {
	buf  []rune
	head int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	w := &Window{buf: make([]rune, size)}
	w.Reset()
	return w
}

func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = types.Start
	}
	w.head = 0
}

// Push drops the oldest character and appends ch.
func (w *Window) Push(ch rune) {
	w.buf[w.head] = ch
	w.head = (w.head + 1) % len(w.buf)
}

func (w *Window) Len() int {
	return len(w.buf)
}

func (w *Window) Runes() []rune {
	out := make([]rune, 0, len(w.buf))
	out = append(out, w.buf[w.head:]...)
	return append(out, w.buf[:w.head]...)
}

func (w *Window) String() string {
	return string(w.Runes())
}
