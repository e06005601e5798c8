package linee

import (
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/regalloc"
)

func widthOfSize(s Size) ccr.Width {
	switch s {
	case SizeByte:
		return ccr.Byte
	case SizeWord:
		return ccr.Word
	default:
		return ccr.Long
	}
}

// emitCtx bundles the buffer and allocator nearly every emitter in
// this package needs, the way the recompiler threads a single
// Instruction value through its generate* functions.
type emitCtx struct {
	buf   *buffer.Buffer
	alloc *regalloc.Allocator
}

// finishShiftFlags applies the flag-update contract shared by every
// shift and rotate in this family: V is always cleared, N/Z come from
// the in-width result, C is the bit that was shifted or rotated out,
// and X mirrors C except for plain rotates, which never touch it.
func finishShiftFlags(ctx *emitCtx, result, carrySrc, scratch uint8, carryBit uint8, width ccr.Width, touchesX bool, mask *ccr.Mask) {
	cc := ctx.alloc.ModifyCC()
	ccr.ClearBits(ctx.buf, cc, scratch, ccr.V, mask)
	ccr.SetFromNZ(ctx.buf, cc, result, scratch, width, mask)
	ccr.SetFromBitViaTemp(ctx.buf, cc, carrySrc, scratch, carryBit, ccr.C, mask)
	if touchesX {
		ccr.SetFromBitViaTemp(ctx.buf, cc, carrySrc, scratch, carryBit, ccr.X, mask)
	}
}
