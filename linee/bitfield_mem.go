package linee

import (
	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/ea"
	"github.com/m68kjit/linee/regalloc"
)

// emitBFMemOp implements the memory-source forms of
// BFTST/BFEXTU/BFEXTS/BFCHG/BFCLR/BFSET/BFINS/BFFFO. A field can
// straddle a 32-bit boundary, so the base byte the EA names is widened
// to a 64-bit, byte-aligned load, which is enough room for any width up
// to 32 starting at any bit offset 0..31. The load comes back in host
// byte order; a REV puts it into the big-endian, bit-0-is-MSB view the
// offset/width arithmetic assumes, after which the field is brought to
// the top of the 64-bit word by a left shift of offset%8 (the part of
// the offset a whole-byte base adjustment can't absorb) and extracted
// exactly like the register-source form, just against a wider
// container.
func emitBFMemOp(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext bitFieldExt, extWords []uint16, op BFOp, mask ccr.Mask) int {
	eaBits := uint8(opcode & 0x3F)
	r := ea.Load(buf, alloc, eaBits, extWords, ea.Byte)
	base := r.AddrReady

	offset := resolveOffset(buf, alloc, ext)
	width := resolveWidth(buf, alloc, ext)
	defer alloc.Free(offset)
	defer alloc.Free(width)

	byteAdvance := alloc.AllocTemp()
	buf.Emit(arm64.LSRimm(byteAdvance, offset, 3, 32, true))
	bitShift := alloc.AllocTemp()
	seven := alloc.AllocTemp()
	buf.Emit(arm64.MOVZ(seven, 7, 0, true))
	buf.Emit(arm64.ANDshiftedReg(bitShift, offset, seven, 0, 0, true))
	alloc.Free(seven)

	addr := alloc.AllocTemp()
	buf.Emit(arm64.ADDreg(addr, base, byteAdvance, true))
	alloc.Free(byteAdvance)

	raw := alloc.AllocTemp()
	buf.Emit(arm64.LDRx64(raw, addr, 0))
	rev := alloc.AllocTemp()
	buf.Emit(arm64.REVreg(rev, raw, true))
	alloc.Free(raw)

	shiftedVal := alloc.AllocTemp()
	buf.Emit(arm64.LSLVreg(shiftedVal, rev, bitShift, true))
	alloc.Free(rev)

	sixtyFour := alloc.AllocTemp()
	buf.Emit(arm64.MOVZ(sixtyFour, 64, 0, true))
	rshift := alloc.AllocTemp()
	buf.Emit(arm64.SUBreg(rshift, sixtyFour, width, true))
	alloc.Free(sixtyFour)

	ones := buildOnes(buf, alloc, width)

	fieldU := alloc.AllocTemp()
	buf.Emit(arm64.LSRVreg(fieldU, shiftedVal, rshift, true))
	buf.Emit(arm64.ANDshiftedReg(fieldU, fieldU, ones, 0, 0, true))

	scratch := alloc.AllocTemp()
	defer alloc.Free(scratch)

	switch op {
	case BFTST:
		signed := signExtendWidth(buf, alloc, fieldU, width)
		bfTestFlags(buf, alloc, signed, scratch, mask)
		alloc.Free(signed)
		alloc.Free(fieldU)
		alloc.Free(ones)
		alloc.Free(rshift)
		alloc.Free(shiftedVal)

	case BFEXTU, BFEXTS:
		signed := signExtendWidth(buf, alloc, fieldU, width)
		dst := alloc.MapWrite(ext.dst)
		if op == BFEXTU {
			buf.Emit(arm64.MOVreg(dst, fieldU, false))
		} else {
			buf.Emit(arm64.MOVreg(dst, signed, false))
		}
		alloc.SetDirty(ext.dst)
		bfTestFlags(buf, alloc, signed, scratch, mask)
		alloc.Free(signed)
		alloc.Free(fieldU)
		alloc.Free(ones)
		alloc.Free(rshift)
		alloc.Free(shiftedVal)

	case BFFFO:
		found := bffoPosition(buf, alloc, fieldU, width, offset)
		dst := alloc.MapWrite(ext.dst)
		buf.Emit(arm64.MOVreg(dst, found, false))
		alloc.SetDirty(ext.dst)
		alloc.Free(found)
		signed := signExtendWidth(buf, alloc, fieldU, width)
		bfTestFlags(buf, alloc, signed, scratch, mask)
		alloc.Free(signed)
		alloc.Free(fieldU)
		alloc.Free(ones)
		alloc.Free(rshift)
		alloc.Free(shiftedVal)

	case BFCHG, BFCLR, BFSET, BFINS:
		maskAtPos := alloc.AllocTemp()
		buf.Emit(arm64.LSLVreg(maskAtPos, ones, rshift, true))

		var newFieldSigned uint8
		switch op {
		case BFCHG:
			signed := signExtendWidth(buf, alloc, fieldU, width)
			bfTestFlags(buf, alloc, signed, scratch, mask)
			alloc.Free(signed)
			buf.Emit(arm64.EORshiftedReg(shiftedVal, shiftedVal, maskAtPos, 0, 0, true))
		case BFCLR:
			signed := signExtendWidth(buf, alloc, fieldU, width)
			bfTestFlags(buf, alloc, signed, scratch, mask)
			alloc.Free(signed)
			buf.Emit(arm64.BICshiftedReg(shiftedVal, shiftedVal, maskAtPos, 0, 0, true))
		case BFSET:
			signed := signExtendWidth(buf, alloc, fieldU, width)
			bfTestFlags(buf, alloc, signed, scratch, mask)
			alloc.Free(signed)
			buf.Emit(arm64.ORRshiftedReg(shiftedVal, shiftedVal, maskAtPos, 0, 0, true))
		case BFINS:
			data := alloc.MapRead(ext.dst)
			masked := alloc.AllocTemp()
			buf.Emit(arm64.ANDshiftedReg(masked, data, ones, 0, 0, true))
			positioned := alloc.AllocTemp()
			buf.Emit(arm64.LSLVreg(positioned, masked, rshift, true))
			buf.Emit(arm64.BICshiftedReg(shiftedVal, shiftedVal, maskAtPos, 0, 0, true))
			buf.Emit(arm64.ORRshiftedReg(shiftedVal, shiftedVal, positioned, 0, 0, true))
			newFieldSigned = signExtendWidth(buf, alloc, masked, width)
			bfTestFlags(buf, alloc, newFieldSigned, scratch, mask)
			alloc.Free(newFieldSigned)
			alloc.Free(masked)
			alloc.Free(positioned)
		}
		alloc.Free(maskAtPos)
		alloc.Free(fieldU)
		alloc.Free(ones)

		restored := alloc.AllocTemp()
		buf.Emit(arm64.LSRVreg(restored, shiftedVal, bitShift, true))
		alloc.Free(shiftedVal)
		unrev := alloc.AllocTemp()
		buf.Emit(arm64.REVreg(unrev, restored, true))
		alloc.Free(restored)
		buf.Emit(arm64.STRx64(unrev, addr, 0))
		alloc.Free(unrev)
		alloc.Free(rshift)
	}

	alloc.Free(bitShift)
	alloc.Free(addr)
	ea.Writeback(buf, alloc, eaBits, ea.Byte, r)

	extWordsConsumed := r.ExtWords
	advancePC(buf, 4+2*extWordsConsumed)
	return extWordsConsumed
}

// buildOnes materialises a right-justified width-bit mask, the same
// construction resolveGeometry uses for the register-source path.
func buildOnes(buf *buffer.Buffer, alloc *regalloc.Allocator, width uint8) uint8 {
	one := alloc.AllocTemp()
	buf.Emit(arm64.MOVZ(one, 1, 0, true))
	ones := alloc.AllocTemp()
	buf.Emit(arm64.LSLVreg(ones, one, width, true))
	buf.Emit(arm64.SUBimm(ones, ones, 1, true))
	alloc.Free(one)
	return ones
}
