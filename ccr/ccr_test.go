package ccr

import (
	"testing"

	"github.com/m68kjit/linee/buffer"
	"github.com/stretchr/testify/assert"
)

func TestClearBitsRemovesHandledBitsFromMask(t *testing.T) {
	buf := buffer.New()
	mask := V | C
	ClearBits(buf, 20, 9, V, &mask)
	assert.Equal(t, C, mask)
	assert.Greater(t, buf.Len(), 0)
}

func TestClearBitsNoOpWhenBitNotRequested(t *testing.T) {
	buf := buffer.New()
	mask := C
	before := buf.Len()
	ClearBits(buf, 20, 9, V, &mask)
	assert.Equal(t, before, buf.Len())
	assert.Equal(t, C, mask)
}

func TestSetFromNZConsumesBothBitsTogether(t *testing.T) {
	buf := buffer.New()
	mask := N | Z | C
	SetFromNZ(buf, 20, 9, 10, Word, &mask)
	assert.Equal(t, C, mask)
	assert.Greater(t, buf.Len(), 0)
}

func TestSetFromValueBitClearsOnlyItsOwnBit(t *testing.T) {
	buf := buffer.New()
	mask := X | C
	SetFromValueBit(buf, 20, 9, X, &mask)
	assert.Equal(t, C, mask)
}

func TestBitPosPanicsOnCompoundMask(t *testing.T) {
	assert.Panics(t, func() { bitPos(N | Z) })
}
