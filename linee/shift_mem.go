package linee

import (
	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/ea"
	"github.com/m68kjit/linee/regalloc"
)

// emitMemShift implements ASL/ASR, LSL/LSR, ROL/ROR and ROXL/ROXR in
// their memory form. The operand is always a word; the EA emitter
// supplies the address, a plain load brings the word in, a single
// shift/rotate by one position is performed, and the result is stored
// back through the same address.
func emitMemShift(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, extWords []uint16, mask ccr.Mask) int {
	f := decodeMemShift(opcode)
	ctx := &emitCtx{buf: buf, alloc: alloc}

	r := ea.Load(buf, alloc, f.ea, extWords, ea.Word)
	addr := r.AddrReady

	val := alloc.AllocTemp()
	buf.Emit(arm64.LDRHoffset(val, addr, 0))

	scratch := alloc.AllocTemp()
	defer alloc.Free(scratch)

	carrySrc := alloc.AllocTemp()
	buf.Emit(arm64.MOVreg(carrySrc, val, true))
	defer alloc.Free(carrySrc)

	var carryBit uint8
	if f.dir == DirLeft {
		carryBit = 16 - 1
	} else {
		carryBit = 0
	}

	switch f.op {
	case OpROXx:
		cc := alloc.ModifyCC()
		xBit := alloc.AllocTemp()
		buf.Emit(arm64.UBFXimm(xBit, cc, bitPosX, 1, false))
		rotated := roxRotateOnePosition(ctx, val, xBit, 16, f.dir)
		buf.Emit(arm64.MOVreg(val, rotated, true))
		alloc.Free(xBit)
		m := mask
		finishShiftFlags(ctx, val, carrySrc, scratch, carryBit, ccr.Word, true, &m)
	case OpROx:
		shiftOneRotate(ctx, val, val, 16, f.dir)
		m := mask
		finishShiftFlags(ctx, val, carrySrc, scratch, carryBit, ccr.Word, false, &m)
	default:
		shiftWordOnePosition(ctx, val, f.op, f.dir)
		m := mask
		finishShiftFlags(ctx, val, carrySrc, scratch, carryBit, ccr.Word, true, &m)
	}

	buf.Emit(arm64.STRHoffset(val, addr, 0))
	alloc.Free(val)
	ea.Writeback(buf, alloc, f.ea, ea.Word, r)

	advancePC(buf, 2+2*r.ExtWords)
	return r.ExtWords
}

// shiftOneRotate emits a width-confined rotate-by-one in either
// direction, reusing the duplicate-into-upper-half trick so the
// wrapped bit comes from the top copy of the operand rather than from
// the full register width AArch64's own rotate wraps at.
func shiftOneRotate(ctx *emitCtx, dst, src uint8, width uint8, dir Direction) {
	emitRotateNative(ctx, dst, src, 1, width, dir, true)
}

// shiftWordOnePosition performs ASL/ASR/LSL/LSR's memory-form
// shift-by-one in place on val, a word held in the low 16 bits of a
// 64-bit register.
func shiftWordOnePosition(ctx *emitCtx, val uint8, op Op, dir Direction) {
	buf := ctx.buf
	switch {
	case dir == DirLeft:
		buf.Emit(arm64.LSLimm(val, val, 1, 32, false))
	case op == OpASx:
		sext := ctx.alloc.AllocTemp()
		buf.Emit(arm64.SBFXimm(sext, val, 0, 16, true))
		buf.Emit(arm64.ASRimm(sext, sext, 1, 32, true))
		buf.Emit(arm64.BFIimm(val, sext, 0, 16, true))
		ctx.alloc.Free(sext)
	default:
		buf.Emit(arm64.LSRimm(val, val, 1, 32, true))
	}
}

const bitPosX = 4

// roxRotateOnePosition performs a one-position extended rotate of a
// `width`-bit operand with the X bit participating, returning a fresh
// register holding the rotated value. The caller is responsible for
// extracting the new X/C bit from the same bit position finishShiftFlags
// already derives from the pre-rotate operand.
func roxRotateOnePosition(ctx *emitCtx, val, xBit uint8, width uint8, dir Direction) uint8 {
	buf := ctx.buf
	widened := ctx.alloc.AllocTemp()
	buf.Emit(arm64.UBFXimm(widened, val, 0, width, true))
	buf.Emit(arm64.BFIimm(widened, xBit, width, 1, true))
	rotated := ctx.alloc.AllocTemp()
	if dir == DirLeft {
		modulus := width + 1
		dup := ctx.alloc.AllocTemp()
		buf.Emit(arm64.ORRshiftedReg(dup, widened, widened, 0 /*LSL*/, modulus, true))
		buf.Emit(arm64.LSRimm(rotated, dup, modulus-1, 64, true))
		ctx.alloc.Free(dup)
	} else {
		buf.Emit(arm64.LSRimm(rotated, widened, 1, width+1, true))
		lowBit := ctx.alloc.AllocTemp()
		buf.Emit(arm64.UBFXimm(lowBit, widened, 0, 1, true))
		buf.Emit(arm64.BFIimm(rotated, lowBit, width, 1, true))
		ctx.alloc.Free(lowBit)
	}
	out := ctx.alloc.AllocTemp()
	buf.Emit(arm64.UBFXimm(out, rotated, 0, width, true))
	ctx.alloc.Free(widened)
	ctx.alloc.Free(rotated)
	return out
}
