package executor

import (
	"bytes"
	"sync"
	"unicode/utf8"
)

// maxChunk bounds the text of one output frame. Longer lines are forwarded in pieces.
const maxChunk = 64 << 10

// lineWriter forwards every complete line written to it, newline included.
// A line longer than maxChunk is forwarded in chunks without newline.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		n := bytes.IndexByte(w.buf, '\n') + 1
		switch {
		case n > 0 && n <= maxChunk:
		case len(w.buf) > maxChunk:
			n = chunkEnd(w.buf)
		default:
			if len(w.buf) == 0 {
				w.buf = nil
			}
			return len(p), nil
		}
		w.emit(string(w.buf[:n]))
		w.buf = w.buf[n:]
	}
}

// chunkEnd returns where to cut buf, longer than maxChunk, so that no rune is split.
func chunkEnd(buf []byte) int {
	n := maxChunk
	for i := maxChunk; i > maxChunk-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			n = i
			break
		}
	}
	return n
}

// Flush forwards a trailing line without newline, if any.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf) + "\n")
		w.buf = nil
	}
}
