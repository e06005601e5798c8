// Package ccr implements the flag-update helpers of component 4.7: a
// small set of composable routines that, given the subset of CCR bits a
// guest instruction must produce, emit the minimal ARM64 code to
// clear/set N, Z, V, C, X on the host register the allocator caches the
// guest condition code register in. Every helper takes the live
// update mask by pointer and clears the bits it has handled, so a
// caller that only needs N/Z never pays for a C/X computation, and so
// on down the chain — mirroring the original JIT's per-bit
// "update_mask &= ~SR_x" bookkeeping.
package ccr

import (
	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
)

// Mask is a bitset over the five 68000 condition bits, ordered to match
// the hardware SR byte: bit 4 is X, bit 0 is C.
type Mask uint8

const (
	C Mask = 1 << 0
	V Mask = 1 << 1
	Z Mask = 1 << 2
	N Mask = 1 << 3
	X Mask = 1 << 4

	All Mask = C | V | Z | N | X
)

// Width is the operand width a flag computation must be evaluated at.
type Width uint8

const (
	Byte Width = 8
	Word Width = 16
	Long Width = 32
)

// ClearMask emits code that AND-NOTs the bits of mask out of the cached
// CCR register cc, using scratch as a throwaway host register for the
// mask constant.
func ClearMask(buf *buffer.Buffer, cc, scratch uint8, mask Mask) {
	buf.Emit(arm64.MOVimm16(scratch, uint16(mask), false))
	buf.Emit(arm64.BICshiftedReg(cc, cc, scratch, 0, 0, false))
}

// SetFromNZ clears then re-asserts N and/or Z on cc from the in-width
// value held in result, and clears those bits out of *mask. width
// selects how result is sign-justified before the zero test: byte and
// word results are left-shifted into the top of the register first so
// a single CMN against the zero register reflects the correct N and Z
// for that width, the same trick the original JIT performs with
// cmn_reg(31, tmp, LSL, 32-width).
func SetFromNZ(buf *buffer.Buffer, cc, result, scratch uint8, width Width, mask *Mask) {
	if *mask&(N|Z) == 0 {
		return
	}
	shift := 32 - uint8(width)
	buf.Emit(arm64.CMNreg(arm64.ZR, result, 0, shift, false))
	if *mask&Z != 0 {
		buf.Emit(arm64.CSETreg(scratch, arm64.CondEQ, false))
		buf.Emit(arm64.BFIimm(cc, scratch, bitPos(Z), 1, false))
	}
	if *mask&N != 0 {
		buf.Emit(arm64.CSETreg(scratch, arm64.CondMI, false))
		buf.Emit(arm64.BFIimm(cc, scratch, bitPos(N), 1, false))
	}
	*mask &^= N | Z
}

// SetFromBitViaTemp extracts bit srcBit of src into scratch, then
// inserts that single bit into cc at the position belonging to which,
// clearing which out of *mask. It is used for C and X, both of which
// are always carried as an explicit 0/1 extracted from the shifted-out
// bit of the operand rather than derived from a host condition flag.
func SetFromBitViaTemp(buf *buffer.Buffer, cc, src, scratch uint8, srcBit uint8, which Mask, mask *Mask) {
	if *mask&which == 0 {
		return
	}
	buf.Emit(arm64.UBFXimm(scratch, src, srcBit, 1, false))
	buf.Emit(arm64.BFIimm(cc, scratch, bitPos(which), 1, false))
	*mask &^= which
}

// SetFromValueBit inserts a value already known to be exactly 0 or 1
// (held in valueReg) directly into cc at which's position.
func SetFromValueBit(buf *buffer.Buffer, cc, valueReg uint8, which Mask, mask *Mask) {
	if *mask&which == 0 {
		return
	}
	buf.Emit(arm64.BFIimm(cc, valueReg, bitPos(which), 1, false))
	*mask &^= which
}

// ClearBits clears the given bits out of cc unconditionally and out of
// *mask, used by operations (LSL/LSR/ROL/ROR/ROXL/ROXR, and V on every
// line-E opcode) that always produce zero for some flag rather than
// deriving it.
func ClearBits(buf *buffer.Buffer, cc, scratch uint8, which Mask, mask *Mask) {
	if *mask&which == 0 {
		return
	}
	ClearMask(buf, cc, scratch, which)
	*mask &^= which
}

func bitPos(m Mask) uint8 {
	switch m {
	case C:
		return 0
	case V:
		return 1
	case Z:
		return 2
	case N:
		return 3
	case X:
		return 4
	default:
		panic("ccr: bitPos called with a non-singleton mask")
	}
}
