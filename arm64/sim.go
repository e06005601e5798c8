package arm64

import (
	"fmt"
	"math/bits"
)

// Sim is a minimal interpreter for the instruction subset this package's
// encoders produce. It exists so callers in the linee package can emit a
// sequence through the real encoders and then check the actual computed
// value rather than only the instruction count or dirty-bit bookkeeping.
// It is not a general AArch64 emulator: Run returns an error for any word
// that does not match one of the opcodes below, so a test that exercises
// an unsupported instruction fails loudly instead of silently no-opping.
type Sim struct {
	regs       [32]uint64
	N, Z, C, V bool
}

// NewSim returns a simulator with all registers zeroed and flags clear.
func NewSim() *Sim { return &Sim{} }

// SetW sets the 32-bit view of register r, zero-extending into the full
// 64-bit register the way a real Wn write does. Writes to the zero
// register are discarded.
func (s *Sim) SetW(r uint8, v uint32) {
	if r&31 == ZR {
		return
	}
	s.regs[r&31] = uint64(v)
}

// SetX sets the full 64-bit register r.
func (s *Sim) SetX(r uint8, v uint64) {
	if r&31 == ZR {
		return
	}
	s.regs[r&31] = v
}

// W returns the 32-bit view of register r.
func (s *Sim) W(r uint8) uint32 {
	if r&31 == ZR {
		return 0
	}
	return uint32(s.regs[r&31])
}

// X returns the full 64-bit value of register r.
func (s *Sim) X(r uint8) uint64 {
	if r&31 == ZR {
		return 0
	}
	return s.regs[r&31]
}

func (s *Sim) read(r uint8, sf bool) uint64 {
	r &= 31
	if r == ZR {
		return 0
	}
	if sf {
		return s.regs[r]
	}
	return uint64(uint32(s.regs[r]))
}

func (s *Sim) write(r uint8, val uint64, sf bool) {
	r &= 31
	if r == ZR {
		return
	}
	if sf {
		s.regs[r] = val
	} else {
		s.regs[r] = uint64(uint32(val))
	}
}

// Run executes words in sequence against the simulator's register file.
func (s *Sim) Run(words []uint32) error {
	for i, w := range words {
		if err := s.step(w); err != nil {
			return fmt.Errorf("word %d (%#08x): %w", i, w, err)
		}
	}
	return nil
}

// variable-field masks, named by the bit position they occupy in the
// formulas in encode.go. Shared across every instruction decoded below.
const (
	varSF             = uint32(1) << 31
	varRd             = uint32(0x1F)
	varRnAt5          = uint32(0x1F) << 5
	varRmAt16         = uint32(0x1F) << 16
	varShiftTypeAt22  = uint32(0x3) << 22
	varAmountAt10     = uint32(0x3F) << 10
	varImm16At5       = uint32(0xFFFF) << 5
	varShiftAt21      = uint32(0x3) << 21
	varImm12At10      = uint32(0xFFF) << 10
	varCondAt12       = uint32(0xF) << 12
	varNAt22          = uint32(1) << 22
	varImmrAt16       = uint32(0x3F) << 16
)

// Each fixed{Mask,Val} pair is derived directly from the real encoder
// called with every variable field zeroed, rather than hand-transcribed
// hex, so the decode table can't drift from what encode.go actually
// produces.
var (
	movzVar       = varSF | varShiftAt21 | varImm16At5 | varRd
	movzFixedMask = ^movzVar
	movzFixedVal  = MOVZ(0, 0, 0, false) & movzFixedMask

	logicalVar   = varSF | varShiftTypeAt22 | varRmAt16 | varAmountAt10 | varRnAt5 | varRd
	logicalFixedMask = ^logicalVar
	andFixedVal  = ANDshiftedReg(0, 0, 0, 0, 0, false) & logicalFixedMask
	orrFixedVal  = ORRshiftedReg(0, 0, 0, 0, 0, false) & logicalFixedMask
	eorFixedVal  = EORshiftedReg(0, 0, 0, 0, 0, false) & logicalFixedMask

	addsubVar     = varSF | varRmAt16 | varRnAt5 | varRd
	addsubFixedMask = ^addsubVar
	subFixedVal   = SUBreg(0, 0, 0, false) & addsubFixedMask
	addFixedVal   = ADDreg(0, 0, 0, false) & addsubFixedMask

	cmpImmVar       = varSF | varImm12At10 | varRnAt5
	cmpImmFixedMask = ^cmpImmVar
	cmpImmFixedVal  = CMPimm(0, 0, false) & cmpImmFixedMask

	cmpRegVar       = varSF | varRmAt16 | varRnAt5
	cmpRegFixedMask = ^cmpRegVar
	cmpRegFixedVal  = CMPreg(0, 0, false) & cmpRegFixedMask

	cselVar       = varSF | varRmAt16 | varCondAt12 | varRnAt5 | varRd
	cselFixedMask = ^cselVar
	cselFixedVal  = CSELreg(0, 0, 0, 0, false) & cselFixedMask

	dp1Var       = varSF | varRnAt5 | varRd
	dp1FixedMask = ^dp1Var
	clzFixedVal  = CLZreg(0, 0, false) & dp1FixedMask

	dp2Var       = varSF | varRmAt16 | varRnAt5 | varRd
	dp2FixedMask = ^dp2Var
	lslvFixedVal = LSLVreg(0, 0, 0, false) & dp2FixedMask
	lsrvFixedVal = LSRVreg(0, 0, 0, false) & dp2FixedMask
	asrvFixedVal = ASRVreg(0, 0, 0, false) & dp2FixedMask

	bicFixedVal = BICshiftedReg(0, 0, 0, 0, 0, false) & logicalFixedMask

	immVar       = varSF | varImm12At10 | varRnAt5 | varRd
	immFixedMask = ^immVar
	subImmFixedVal = SUBimm(0, 0, 0, false) & immFixedMask

	// bfmVar covers the UBFM/SBFM/BFM bitfield-move family (LSLimm,
	// LSRimm, ASRimm, UBFXimm, SBFXimm, BFIimm, BFXILimm are all one of
	// these three hardware words under different immr/imms values).
	bfmVar       = varSF | varNAt22 | varImmrAt16 | varAmountAt10 | varRnAt5 | varRd
	bfmFixedMask = ^bfmVar
	ubfmFixedVal = ubfm(0, 0, 0, 0, false) & bfmFixedMask
	sbfmFixedVal = sbfm(0, 0, 0, 0, false) & bfmFixedMask
	bfmFixedVal  = BFIimm(0, 0, 0, 1, false) & bfmFixedMask

	// RORimm is encoded as EXTR rd, rn, rn, #shift: rn appears at both
	// the varRmAt16 and varRnAt5 positions, so both must be excluded
	// from the fixed comparison.
	rorImmVar       = varSF | varNAt22 | varRmAt16 | varAmountAt10 | varRnAt5 | varRd
	rorImmFixedMask = ^rorImmVar
	rorImmFixedVal  = RORimm(0, 0, 0, false) & rorImmFixedMask

	rorvFixedVal = RORVreg(0, 0, 0, false) & dp2FixedMask
)

// maskBits returns the low n bits of v, treating n>=64 as the identity
// mask rather than relying on Go's shift-overflow wraparound directly,
// since a shift by a variable amount >= the operand width is only
// well-defined for unsigned shifts of exactly that width in Go, and n
// arrives here as a plain int from width arithmetic, not a constant.
func maskBits(v uint64, n uint) uint64 {
	if n == 0 {
		return 0
	}
	if n >= 64 {
		return v
	}
	return v & (uint64(1)<<n - 1)
}

// rotateRight rotates the low width bits of v right by amount
// positions, wrapping within width rather than within 64.
func rotateRight(v uint64, amount uint8, width uint) uint64 {
	amt := uint(amount) % width
	v = maskBits(v, width)
	if amt == 0 {
		return v
	}
	return maskBits(v>>amt|v<<(width-amt), width)
}

// execBitfieldMove implements the real UBFM/SBFM/BFM architectural
// semantics: rotate src right by immr, then select the low (imms-immr
// mod width)+1 bits of that rotation into the corresponding bit
// positions of the result, each the low (imms+1) bits of src re-placed
// at bit position immr. Everything outside that field is zero for
// UBFM, sign-extended for SBFM, or left as dst for BFM (which is why
// dst is threaded through even for the two extend cases, where it
// never actually contributes to the result).
func execBitfieldMove(dst, src uint64, immr, imms uint8, sf, extend, unsigned bool) uint64 {
	width := uint(32)
	if sf {
		width = 64
	}
	S, R := uint(imms), uint(immr)
	d := (S + width - R) % width
	wmask := rotateRight(maskBits(^uint64(0), S+1), immr, width)
	tmask := maskBits(^uint64(0), d+1)
	bot := rotateRight(maskBits(src, width), immr, width) & wmask

	var result uint64
	if extend {
		var top uint64
		if !unsigned && (src>>S)&1 != 0 {
			top = maskBits(^uint64(0), width)
		}
		result = top&^tmask | bot&tmask
	} else {
		merged := dst&^wmask | bot
		result = dst&^tmask | merged&tmask
	}
	return maskBits(result, width)
}

// shiftedOperand applies the shift encoded in a logical-shifted-register
// word (AND/ORR/EOR/BIC) to rm before the bitwise combine; the decode
// side previously read this field and discarded it.
func shiftedOperand(val uint64, shiftType, amount uint8, sf bool) uint64 {
	width := uint(32)
	if sf {
		width = 64
	}
	v := maskBits(val, width)
	amt := uint(amount) % width
	switch shiftType & 3 {
	case shiftLSL:
		return maskBits(v<<amt, width)
	case shiftLSR:
		return v >> amt
	case shiftASR:
		if sf {
			return uint64(int64(v) >> amt)
		}
		return uint64(uint32(int32(uint32(v)) >> amt))
	default: // shiftROR
		return rotateRight(v, amount, width)
	}
}

func (s *Sim) step(word uint32) error {
	sf := word&varSF != 0
	rd := uint8(word) & 0x1F
	rn := uint8(word>>5) & 0x1F
	rm := uint8(word>>16) & 0x1F

	shiftType := uint8(word>>22) & 0x3
	amount := uint8(word>>10) & 0x3F

	switch {
	case word&movzFixedMask == movzFixedVal:
		shift := uint8(word>>21) & 0x3
		imm16 := uint16(word>>5) & 0xFFFF
		s.write(rd, uint64(imm16)<<(16*uint(shift)), sf)
		return nil

	case word&logicalFixedMask == andFixedVal:
		s.write(rd, s.read(rn, sf)&shiftedOperand(s.read(rm, sf), shiftType, amount, sf), sf)
		return nil

	case word&logicalFixedMask == orrFixedVal:
		s.write(rd, s.read(rn, sf)|shiftedOperand(s.read(rm, sf), shiftType, amount, sf), sf)
		return nil

	case word&logicalFixedMask == eorFixedVal:
		s.write(rd, s.read(rn, sf)^shiftedOperand(s.read(rm, sf), shiftType, amount, sf), sf)
		return nil

	case word&logicalFixedMask == bicFixedVal:
		s.write(rd, s.read(rn, sf)&^shiftedOperand(s.read(rm, sf), shiftType, amount, sf), sf)
		return nil

	case word&bfmFixedMask == ubfmFixedVal:
		immr := uint8(word>>16) & 0x3F
		imms := uint8(word>>10) & 0x3F
		s.write(rd, execBitfieldMove(0, s.read(rn, sf), immr, imms, sf, true, true), sf)
		return nil

	case word&bfmFixedMask == sbfmFixedVal:
		immr := uint8(word>>16) & 0x3F
		imms := uint8(word>>10) & 0x3F
		s.write(rd, execBitfieldMove(0, s.read(rn, sf), immr, imms, sf, true, false), sf)
		return nil

	case word&bfmFixedMask == bfmFixedVal:
		immr := uint8(word>>16) & 0x3F
		imms := uint8(word>>10) & 0x3F
		s.write(rd, execBitfieldMove(s.read(rd, sf), s.read(rn, sf), immr, imms, sf, false, true), sf)
		return nil

	case word&rorImmFixedMask == rorImmFixedVal:
		width := uint(32)
		if sf {
			width = 64
		}
		s.write(rd, rotateRight(s.read(rn, sf), amount, width), sf)
		return nil

	case word&dp2FixedMask == rorvFixedVal:
		if sf {
			s.write(rd, bits.RotateLeft64(s.read(rn, true), -int(s.read(rm, true)&63)), true)
		} else {
			s.write(rd, uint64(bits.RotateLeft32(uint32(s.read(rn, false)), -int(s.read(rm, false)&31))), false)
		}
		return nil

	case word&immFixedMask == subImmFixedVal:
		imm12 := uint64(uint16(word>>10) & 0xFFF)
		s.write(rd, s.read(rn, sf)-imm12, sf)
		return nil

	case word&addsubFixedMask == subFixedVal:
		s.write(rd, s.read(rn, sf)-s.read(rm, sf), sf)
		return nil

	case word&addsubFixedMask == addFixedVal:
		s.write(rd, s.read(rn, sf)+s.read(rm, sf), sf)
		return nil

	case word&cmpImmFixedMask == cmpImmFixedVal:
		imm12 := uint64(uint16(word>>10) & 0xFFF)
		s.setFlagsSub(s.read(rn, sf), imm12, sf)
		return nil

	case word&cmpRegFixedMask == cmpRegFixedVal:
		s.setFlagsSub(s.read(rn, sf), s.read(rm, sf), sf)
		return nil

	case word&cselFixedMask == cselFixedVal:
		cond := Cond(uint8(word>>12) & 0xF)
		if s.condHolds(cond) {
			s.write(rd, s.read(rn, sf), sf)
		} else {
			s.write(rd, s.read(rm, sf), sf)
		}
		return nil

	case word&dp1FixedMask == clzFixedVal:
		if sf {
			s.write(rd, uint64(bits.LeadingZeros64(s.read(rn, true))), true)
		} else {
			s.write(rd, uint64(bits.LeadingZeros32(uint32(s.read(rn, false)))), false)
		}
		return nil

	case word&dp2FixedMask == lslvFixedVal:
		if sf {
			s.write(rd, s.read(rn, true)<<(s.read(rm, true)&63), true)
		} else {
			s.write(rd, uint64(uint32(s.read(rn, false))<<(uint32(s.read(rm, false))&31)), false)
		}
		return nil

	case word&dp2FixedMask == lsrvFixedVal:
		if sf {
			s.write(rd, s.read(rn, true)>>(s.read(rm, true)&63), true)
		} else {
			s.write(rd, uint64(uint32(s.read(rn, false))>>(uint32(s.read(rm, false))&31)), false)
		}
		return nil

	case word&dp2FixedMask == asrvFixedVal:
		if sf {
			s.write(rd, uint64(int64(s.read(rn, true))>>(s.read(rm, true)&63)), true)
		} else {
			s.write(rd, uint64(uint32(int32(uint32(s.read(rn, false)))>>(uint32(s.read(rm, false))&31))), false)
		}
		return nil

	case word&^(varSF|varShiftTypeAt22|varRmAt16|varAmountAt10|varRnAt5) == CMNreg(0, 0, 0, 0, false):
		a, b := s.read(rn, sf), shiftedOperand(s.read(rm, sf), shiftType, amount, sf)
		top := uint(31)
		if sf {
			top = 63
		}
		sum := maskBits(a+b, top+1)
		s.N, s.Z, s.C, s.V = sum>>top&1 == 1, sum == 0, sum < a, (a^sum)&(b^sum)>>top&1 == 1
		return nil

	case word&^(varSF|varCondAt12|varRd) == CSETreg(0, CondNE, false):
		var v uint64
		if !s.condHolds(Cond(uint8(word>>12) & 0xF)) {
			v = 1
		}
		s.write(rd, v, sf)
		return nil

	default:
		return fmt.Errorf("unsupported instruction for simulation: %#08x", word)
	}
}

func (s *Sim) condHolds(c Cond) bool {
	switch c {
	case CondEQ:
		return s.Z
	case CondNE:
		return !s.Z
	case CondCS:
		return s.C
	case CondCC:
		return !s.C
	case CondMI:
		return s.N
	case CondPL:
		return !s.N
	case CondVS:
		return s.V
	case CondVC:
		return !s.V
	case CondHI:
		return s.C && !s.Z
	case CondLS:
		return !s.C || s.Z
	case CondGE:
		return s.N == s.V
	case CondLT:
		return s.N != s.V
	case CondGT:
		return s.N == s.V && !s.Z
	case CondLE:
		return !(s.N == s.V && !s.Z)
	case CondAL:
		return true
	default:
		return false
	}
}

// setFlagsSub sets N/Z/C/V as a SUBS a, b would at the given width.
func (s *Sim) setFlagsSub(a, b uint64, sf bool) {
	if !sf {
		a = uint64(uint32(a))
		b = uint64(uint32(b))
	}
	result := a - b
	if !sf {
		result = uint64(uint32(result))
	}
	s.Z = result == 0
	var signA, signB, signR bool
	if sf {
		s.N = result>>63&1 == 1
		signA, signB, signR = a>>63&1 == 1, b>>63&1 == 1, result>>63&1 == 1
	} else {
		s.N = result>>31&1 == 1
		signA, signB, signR = a>>31&1 == 1, b>>31&1 == 1, result>>31&1 == 1
	}
	s.C = a >= b
	s.V = signA != signB && signR != signA
}
