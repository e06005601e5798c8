// Package buffer implements the append-only host code buffer that every
// line-E emitter writes into. It plays the role the recompiler's raw
// []byte x86Code slice plays for the host's x86 JIT, generalised to a
// cursor type so emitters never see or mutate a backing array directly.
package buffer

// Buffer is an ordered, append-only sequence of 32-bit native
// instruction words. The core never reads back what it has written; it
// only appends through Emit and reports its length through Len.
type Buffer struct {
	words []uint32
}

// New returns an empty host code buffer.
func New() *Buffer {
	return &Buffer{words: make([]uint32, 0, 64)}
}

// Cursor is an opaque write position returned to callers instead of a
// raw slice index, matching the "host buffer cursor" of the spec.
type Cursor int

// Pos returns the buffer's current write cursor.
func (b *Buffer) Pos() Cursor {
	return Cursor(len(b.words))
}

// Emit appends one host instruction word and returns the advanced
// cursor.
func (b *Buffer) Emit(word uint32) Cursor {
	b.words = append(b.words, word)
	return b.Pos()
}

// EmitAll appends a sequence of host instruction words in order.
func (b *Buffer) EmitAll(words ...uint32) Cursor {
	b.words = append(b.words, words...)
	return b.Pos()
}

// Words returns the words written between two cursors, oldest first.
// It exists for testing and disassembly only; production emitters never
// call it.
func (b *Buffer) Words(from, to Cursor) []uint32 {
	return b.words[from:to]
}

// Len returns the total number of words written so far.
func (b *Buffer) Len() int {
	return len(b.words)
}

// All returns every word written so far, oldest first.
func (b *Buffer) All() []uint32 {
	return b.words
}
