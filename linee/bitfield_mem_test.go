package linee

import (
	"testing"

	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/regalloc"
	"github.com/stretchr/testify/assert"
)

func TestEmitBFMemOpBFTSTOnAddressRegisterIndirectConsumesNoExtWords(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 0) // (A0)
	opcode := uint16(0xE8C0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(0, 8, 8))
	n := emitBFMemOp(buf, alloc, opcode, ext, nil, BFTST, ccr.All)
	assert.Equal(t, 0, n)
}

func TestEmitBFMemOpFieldStraddlingByteBoundaryLeavesScratchBalanced(t *testing.T) {
	// offset 4, width 16: the field spans bits 4..19, crossing the first
	// byte boundary within the 64-bit aligned load.
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 0)
	opcode := uint16(0xE9C0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(3, 4, 16))
	assert.NotPanics(t, func() {
		emitBFMemOp(buf, alloc, opcode, ext, nil, BFEXTU, ccr.All)
	})
	assert.True(t, alloc.IsDirty(regalloc.D3))
	assert.NotPanics(t, func() {
		for i := 0; i < 6; i++ {
			alloc.AllocTemp()
		}
	})
}

func TestEmitBFMemOpFieldStraddlingThirtyTwoBitBoundary(t *testing.T) {
	// offset 24, width 16: bits 24..39, straddling the 32-bit word the
	// guest EA itself names -- only the 64-bit aligned load keeps the
	// whole field in one read.
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 1)
	opcode := uint16(0xE9C0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(2, 24, 16))
	assert.NotPanics(t, func() {
		emitBFMemOp(buf, alloc, opcode, ext, nil, BFEXTU, ccr.All)
	})
}

func TestEmitBFMemOpBFINSWritesBackThroughTheSameAddress(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 2)
	opcode := uint16(0xEFC0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(1, 8, 8))
	before := buf.Len()
	assert.NotPanics(t, func() {
		emitBFMemOp(buf, alloc, opcode, ext, nil, BFINS, ccr.All)
	})
	assert.Greater(t, buf.Len(), before)
}

func TestEmitBFMemOpPostIncrementWritesBackAddressRegister(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(3<<3 | 4) // (A4)+
	opcode := uint16(0xECC0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(0, 0, 8))
	assert.NotPanics(t, func() {
		emitBFMemOp(buf, alloc, opcode, ext, nil, BFCLR, ccr.All)
	})
	assert.True(t, alloc.IsDirty(regalloc.A4))
}

func TestEmitBFMemOpDisplacementModeReportsOneExtWordBeyondTheBitFieldWord(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(5<<3 | 5) // (d16,A5)
	opcode := uint16(0xE8C0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(0, 0, 8))
	n := emitBFMemOp(buf, alloc, opcode, ext, []uint16{0x0004}, BFTST, ccr.All)
	assert.Equal(t, 1, n)
}

func TestEmitBFMemOpBFFFOOnAddressRegisterIndirect(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 0)
	opcode := uint16(0xEDC0) | uint16(eaBits)
	ext := decodeBitFieldExt(bfExtWord(5, 0, 8))
	assert.NotPanics(t, func() {
		emitBFMemOp(buf, alloc, opcode, ext, nil, BFFFO, ccr.All)
	})
	assert.True(t, alloc.IsDirty(regalloc.D5))
}

func TestEmitBFMemOpEveryOpLeavesScratchBalanced(t *testing.T) {
	ext := decodeBitFieldExt(bfExtWord(1, 4, 12))
	for _, op := range []BFOp{BFTST, BFEXTU, BFEXTS, BFCHG, BFCLR, BFFFO, BFSET, BFINS} {
		buf := buffer.New()
		alloc := regalloc.New(buf)
		eaBits := uint8(2<<3 | 0)
		opcode := uint16(0xE8C0) | uint16(op)<<8 | uint16(eaBits)
		assert.NotPanics(t, func() {
			emitBFMemOp(buf, alloc, opcode, ext, nil, op, ccr.All)
		}, "op=%v", op)
		assert.NotPanics(t, func() {
			for i := 0; i < 6; i++ {
				alloc.AllocTemp()
			}
		}, "op=%v leaked a temp", op)
	}
}
