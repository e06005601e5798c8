package linee

import (
	"testing"

	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/regalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memShiftOpcode(op Op, dir Direction, eaBits uint8) uint16 {
	opcode := uint16(0xE000)
	opcode |= uint16(op) << 9
	opcode |= uint16(dir) << 8
	opcode |= 3 << 6 // memory-form size marker
	opcode |= uint16(eaBits)
	return opcode
}

func TestEmitMemShiftOnAddressRegisterIndirectConsumesNoExtWords(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 0) // (A0)
	opcode := memShiftOpcode(OpASx, DirLeft, eaBits)
	n := emitMemShift(buf, alloc, opcode, nil, ccr.All)
	assert.Equal(t, 0, n)
}

func TestEmitMemShiftPostIncrementWritesBackAddressRegister(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(3<<3 | 1) // (A1)+
	opcode := memShiftOpcode(OpLSx, DirRight, eaBits)
	assert.NotPanics(t, func() {
		emitMemShift(buf, alloc, opcode, nil, ccr.All)
	})
	assert.True(t, alloc.IsDirty(regalloc.A1))
}

func TestEmitMemShiftPreDecrementAdjustsAddressBeforeLoad(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(4<<3 | 2) // -(A2)
	opcode := memShiftOpcode(OpROx, DirLeft, eaBits)
	assert.NotPanics(t, func() {
		emitMemShift(buf, alloc, opcode, nil, ccr.All)
	})
	assert.True(t, alloc.IsDirty(regalloc.A2))
}

func TestEmitMemShiftDisplacementModeConsumesOneExtWord(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(5<<3 | 3) // (d16,A3)
	opcode := memShiftOpcode(OpASx, DirRight, eaBits)
	n := emitMemShift(buf, alloc, opcode, []uint16{0x0010}, ccr.All)
	assert.Equal(t, 1, n)
}

func TestEmitMemShiftROXxReadsAndRewritesXAndC(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 0)
	opcode := memShiftOpcode(OpROXx, DirLeft, eaBits)
	assert.NotPanics(t, func() {
		emitMemShift(buf, alloc, opcode, nil, ccr.All)
	})
	assert.True(t, alloc.CCDirty())
}

func TestEmitMemShiftEveryOpAndDirectionLeavesScratchBalanced(t *testing.T) {
	for _, op := range []Op{OpASx, OpLSx, OpROXx, OpROx} {
		for _, dir := range []Direction{DirLeft, DirRight} {
			buf := buffer.New()
			alloc := regalloc.New(buf)
			eaBits := uint8(2<<3 | 0)
			opcode := memShiftOpcode(op, dir, eaBits)
			assert.NotPanics(t, func() {
				emitMemShift(buf, alloc, opcode, nil, ccr.All)
			}, "op=%v dir=%v", op, dir)
			assert.NotPanics(t, func() {
				for i := 0; i < 6; i++ {
					alloc.AllocTemp()
				}
			}, "op=%v dir=%v leaked a temp", op, dir)
		}
	}
}

func TestEmitMemShiftMaskZeroStillAdvancesPC(t *testing.T) {
	// Unlike the register form, the memory form has no early-out for a
	// mask of zero: it always runs the flag-update sequence, which just
	// ends up clearing nothing once ccr.ClearBits/SetFromNZ/etc. see an
	// empty mask.
	buf := buffer.New()
	alloc := regalloc.New(buf)
	eaBits := uint8(2<<3 | 0)
	opcode := memShiftOpcode(OpASx, DirLeft, eaBits)
	before := buf.Len()
	assert.NotPanics(t, func() {
		emitMemShift(buf, alloc, opcode, nil, 0)
	})
	assert.Greater(t, buf.Len(), before)
}

// expectWordShiftOnePosition is the reference shiftWordOnePosition is
// checked against: a plain one-position shift of a 16-bit word, signed
// for the ASR-right case and unsigned everywhere else.
func expectWordShiftOnePosition(val uint16, op Op, dir Direction) uint16 {
	if dir == DirLeft {
		return val << 1
	}
	if op == OpASx {
		return uint16(int16(val) >> 1)
	}
	return val >> 1
}

// TestShiftWordOnePositionMatchesReferenceAcrossTheFullDomain runs
// shiftWordOnePosition's emitted words through arm64.Sim directly,
// since arm64.Sim has no load/store support and can't drive
// emitMemShift's full EA/load/store path end to end — the same
// precedent shift_rox_reg_test.go's emitUnsignedMod test follows.
func TestShiftWordOnePositionMatchesReferenceAcrossTheFullDomain(t *testing.T) {
	values := []uint16{0, 1, 0x40, 0x80, 0x8000, 0xFFFF, 0x1234, 0x7FFF}
	for _, op := range []Op{OpASx, OpLSx} {
		for _, dir := range []Direction{DirLeft, DirRight} {
			for _, value := range values {
				buf := buffer.New()
				alloc := regalloc.New(buf)
				ctx := &emitCtx{buf: buf, alloc: alloc}
				val := alloc.AllocTemp()

				shiftWordOnePosition(ctx, val, op, dir)

				sim := arm64.NewSim()
				sim.SetW(val, uint32(value))
				require.NoError(t, sim.Run(buf.All()), "op=%v dir=%v value=%#x", op, dir, value)

				want := expectWordShiftOnePosition(value, op, dir)
				if got := uint16(sim.W(val)); got != want {
					t.Fatalf("op=%v dir=%v value=%#x: got %#x, want %#x", op, dir, value, got, want)
				}
			}
		}
	}
}

// expectRoxRotateOnePosition is the reference roxRotateOnePosition is
// checked against: the X bit joins the operand as its own bit above
// the top of width, the pair rotates by one position, and the result
// is split back into its value and X/C components.
func expectRoxRotateOnePosition(val uint32, xBit uint8, width uint8, dir Direction) (newVal uint32, newX uint8) {
	mask := uint32(1)<<width - 1
	modulus := width + 1
	full := uint32(1)<<modulus - 1
	widened := (val & mask) | uint32(xBit&1)<<width

	var rotated uint32
	if dir == DirLeft {
		rotated = (widened<<1 | widened>>(modulus-1)) & full
	} else {
		rotated = (widened>>1 | widened<<(modulus-1)) & full
	}
	return rotated & mask, uint8(rotated>>width) & 1
}

// TestRoxRotateOnePositionMatchesReferenceAcrossTheFullDomain covers
// both ROXL.W and ROXR.W's memory-form rotate-by-one, verifying
// roxRotateOnePosition's returned register against
// expectRoxRotateOnePosition for every combination of operand and X
// bit — this is the path comment 3's DirLeft fix touched.
func TestRoxRotateOnePositionMatchesReferenceAcrossTheFullDomain(t *testing.T) {
	values := []uint16{0, 1, 0x40, 0x80, 0x8000, 0xFFFF, 0x1234, 0x7FFF}
	for _, dir := range []Direction{DirLeft, DirRight} {
		for _, x := range []uint8{0, 1} {
			for _, value := range values {
				buf := buffer.New()
				alloc := regalloc.New(buf)
				ctx := &emitCtx{buf: buf, alloc: alloc}
				val := alloc.AllocTemp()
				xBit := alloc.AllocTemp()

				out := roxRotateOnePosition(ctx, val, xBit, 16, dir)

				sim := arm64.NewSim()
				sim.SetW(val, uint32(value))
				sim.SetW(xBit, uint32(x))
				require.NoError(t, sim.Run(buf.All()), "dir=%v x=%d value=%#x", dir, x, value)

				wantVal, _ := expectRoxRotateOnePosition(uint32(value), x, 16, dir)
				if got := uint16(sim.W(out)); got != uint16(wantVal) {
					t.Fatalf("dir=%v x=%d value=%#x: got %#x, want %#x", dir, x, value, got, wantVal)
				}
			}
		}
	}
}
