package linee

import (
	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/regalloc"
)

// emitRoxRegister implements ROXL/ROXR in register form. The X bit
// participates in the rotation, so the operand is widened to
// size·8+1 logical bits (33/17/9, reduced from a 64/32/16-bit host
// temporary), the count is taken modulo that widened size, and the
// rotation is realised as a shift of the duplicated-into-upper-half
// pattern the plain-rotate path also uses, generalised to include the
// extra X bit. A zero-count result still re-derives N/Z from the
// untouched operand and leaves C/X as a copy of the current X bit.
func emitRoxRegister(buf *buffer.Buffer, alloc *regalloc.Allocator, f regShiftFields, mask ccr.Mask) int {
	ctx := &emitCtx{buf: buf, alloc: alloc}
	dstGuest := regalloc.D0 + regalloc.GuestReg(f.dst)
	dst := alloc.MapWrite(dstGuest)
	width := uint8(f.size) * 8
	modulus := width + 1

	scratch := alloc.AllocTemp()
	defer alloc.Free(scratch)

	cc := alloc.ModifyCC()
	xBit := alloc.AllocTemp()
	buf.Emit(arm64.UBFXimm(xBit, cc, bitPosX, 1, false))
	defer alloc.Free(xBit)

	var cnt uint8
	var cntReg uint8
	variableCount := f.regSource
	if variableCount {
		countHost := alloc.MapRead(regalloc.D0 + regalloc.GuestReg(f.countOrSrcReg))
		raw := alloc.AllocTemp()
		modConst := alloc.AllocTemp()
		buf.Emit(arm64.MOVZ(modConst, 63, 0, true))
		buf.Emit(arm64.ANDshiftedReg(raw, countHost, modConst, 0, 0, true))
		alloc.Free(modConst)
		modReg := alloc.AllocTemp()
		buf.Emit(arm64.MOVZ(modReg, uint16(modulus), 0, true))
		cntReg = alloc.AllocTemp()
		emitUnsignedMod(ctx, cntReg, raw, modReg)
		alloc.Free(raw)
		alloc.Free(modReg)
		defer alloc.Free(cntReg)
	} else {
		cnt = ImmediateCount(f.countOrSrcReg) % modulus
	}

	widened := alloc.AllocTemp()
	defer alloc.Free(widened)
	buf.Emit(arm64.UBFXimm(widened, dst, 0, width, true))
	buf.Emit(arm64.BFIimm(widened, xBit, width, 1, true))

	dup := alloc.AllocTemp()
	defer alloc.Free(dup)
	buf.Emit(arm64.ORRshiftedReg(dup, widened, widened, 0, modulus, true))

	rotated := alloc.AllocTemp()
	defer alloc.Free(rotated)
	if variableCount {
		var shiftAmt uint8 = cntReg
		if f.dir == DirLeft {
			modReg2 := alloc.AllocTemp()
			buf.Emit(arm64.MOVZ(modReg2, uint16(modulus), 0, true))
			neg := alloc.AllocTemp()
			buf.Emit(arm64.SUBreg(neg, modReg2, cntReg, true))
			alloc.Free(modReg2)
			shiftAmt = neg
			defer alloc.Free(neg)
		}
		buf.Emit(arm64.LSRVreg(rotated, dup, shiftAmt, true))
	} else {
		rightAmt := cnt
		if f.dir == DirLeft {
			rightAmt = (modulus - cnt) % modulus
		}
		buf.Emit(arm64.LSRimm(rotated, dup, rightAmt, 64, true))
	}

	newWidened := alloc.AllocTemp()
	defer alloc.Free(newWidened)
	buf.Emit(arm64.UBFXimm(newWidened, rotated, 0, modulus, true))

	newVal := alloc.AllocTemp()
	defer alloc.Free(newVal)
	buf.Emit(arm64.UBFXimm(newVal, newWidened, 0, width, true))
	newX := alloc.AllocTemp()
	defer alloc.Free(newX)
	buf.Emit(arm64.UBFXimm(newX, newWidened, width, 1, true))

	buf.Emit(arm64.BFIimm(dst, newVal, 0, width, true))
	alloc.SetDirty(dstGuest)

	if mask != 0 {
		m := mask
		ccr.ClearBits(buf, cc, scratch, ccr.V, &m)
		ccr.SetFromNZ(buf, cc, newVal, scratch, widthOfSize(f.size), &m)
		ccr.SetFromValueBit(buf, cc, newX, ccr.C, &m)
		ccr.SetFromValueBit(buf, cc, newX, ccr.X, &m)
	}

	advancePC(buf, 2)
	return 0
}

// emitUnsignedMod computes out = raw % modReg for the small moduli
// (9/17/33) this family ever divides by. raw is already reduced mod 64
// and modulus is at least 9, so raw/modReg is at most 7 (63/9); seven
// rounds of conditionally committing out-modReg (via CSEL, so the
// subtraction only takes effect while out >= modReg) covers every case.
func emitUnsignedMod(ctx *emitCtx, out, raw, modReg uint8) {
	buf := ctx.buf
	buf.Emit(arm64.MOVreg(out, raw, true))
	diff := ctx.alloc.AllocTemp()
	defer ctx.alloc.Free(diff)
	for i := 0; i < 7; i++ {
		buf.Emit(arm64.SUBreg(diff, out, modReg, true))
		buf.Emit(arm64.CMPreg(out, modReg, true))
		buf.Emit(arm64.CSELreg(out, diff, out, arm64.CondGE, true))
	}
}
