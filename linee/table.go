package linee

import (
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/ea"
	"github.com/m68kjit/linee/regalloc"
)

// emitFunc is the uniform shape every dispatch-table entry's emitter
// takes: the opcode word plus the 16-bit extension-word stream that
// follows it, returning how many of those extension words it consumed.
type emitFunc func(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext []uint16, mask ccr.Mask) int

// Entry is one slot of the 4,096-entry dispatch table: an emitter plus
// the bookkeeping a length query or a liveness pass needs without
// running the emitter itself.
type Entry struct {
	emit            emitFunc
	needs           ccr.Mask
	sets            ccr.Mask
	baseLengthWords int
	hasEA           bool
	eaBits          uint8
}

// table is built once, from the pattern→emitter rules in buildTable,
// and never mutated after package init — the "initial state and
// terminal state coincide" invariant the table is specified to hold.
var table = buildTable()

// buildTable materialises the 4,096-entry array from a handful of
// per-family rules instead of a literal designated initialiser: one
// pass classifies every 12-bit index by the bit pattern that
// distinguishes register-form shifts, memory-form shifts and the
// bit-field group (bits 7-6 and bit 11, per the main opcode layout),
// then fills in the entry for whichever family the index belongs to.
// Indices whose bit pattern encodes an addressing mode no line-E form
// may legally use are left as zero-value entries, which emit() and
// length() both treat as the "opcode not in table" case.
func buildTable() [4096]Entry {
	var t [4096]Entry
	for i := 0; i < 4096; i++ {
		opcode := uint16(0xE000 | i)
		switch {
		case isBitFieldForm(opcode):
			t[i] = bitFieldEntry(opcode)
		case isMemoryForm(opcode):
			t[i] = memShiftEntry(opcode)
		default:
			t[i] = regShiftEntry(opcode)
		}
	}
	return t
}

func regShiftEntry(opcode uint16) Entry {
	f := decodeRegShift(opcode)
	needs, sets := shiftMasks(f.op)
	return Entry{
		emit: func(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext []uint16, mask ccr.Mask) int {
			emitRegShift(buf, alloc, opcode, mask)
			return 0
		},
		needs:           needs,
		sets:            sets,
		baseLengthWords: 1,
	}
}

// memAlterableMode reports whether the 6-bit EA specifier names one of
// the addressing modes the EA emitter actually materialises an address
// for — every mode but register-direct, PC-relative and immediate.
func memAlterableMode(eaBits uint8) bool {
	mode := (eaBits >> 3) & 7
	reg := eaBits & 7
	if mode == 0 || mode == 1 {
		return false
	}
	if mode == 7 && reg >= 2 {
		return false
	}
	return true
}

func memShiftEntry(opcode uint16) Entry {
	f := decodeMemShift(opcode)
	if !memAlterableMode(f.ea) {
		return Entry{}
	}
	needs, sets := shiftMasks(f.op)
	return Entry{
		emit: func(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext []uint16, mask ccr.Mask) int {
			return emitMemShift(buf, alloc, opcode, ext, mask)
		},
		needs:           needs,
		sets:            sets,
		baseLengthWords: 1,
		hasEA:           true,
		eaBits:          f.ea,
	}
}

// shiftMasks reports the needs/sets CCR masks shared by every shift and
// rotate, register or memory form: the extended rotates read the
// current X bit to rotate it in and write every bit including X; the
// plain rotates read nothing and never touch X; everything else
// (ASx/LSx) reads nothing but writes every bit.
func shiftMasks(op Op) (needs, sets ccr.Mask) {
	if op == OpROx {
		return 0, ccr.N | ccr.Z | ccr.V | ccr.C
	}
	if op == OpROXx {
		return ccr.X, ccr.All
	}
	return 0, ccr.All
}

// bitFieldEAMode reports whether opcode's EA specifier names the
// register-direct form, in which case the field lives in a data
// register with no address to compute, as opposed to one of the
// memory-alterable modes the EA emitter handles.
func bitFieldEAMode(eaBits uint8) bool {
	return (eaBits>>3)&7 == 0
}

func bitFieldEntry(opcode uint16) Entry {
	op := bfOpFromOpcode(opcode)
	eaBits := uint8(opcode & 0x3F)
	sets := ccr.N | ccr.Z | ccr.V | ccr.C

	if bitFieldEAMode(eaBits) {
		return Entry{
			emit: func(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext []uint16, mask ccr.Mask) int {
				bf := decodeBitFieldExt(ext[0])
				emitBFRegOp(buf, alloc, opcode, bf, op, mask)
				return 1
			},
			sets:            sets,
			baseLengthWords: 2,
		}
	}
	if !memAlterableMode(eaBits) {
		return Entry{}
	}
	return Entry{
		emit: func(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext []uint16, mask ccr.Mask) int {
			bf := decodeBitFieldExt(ext[0])
			n := emitBFMemOp(buf, alloc, opcode, bf, ext[1:], op, mask)
			return 1 + n
		},
		sets:            sets,
		baseLengthWords: 2,
		hasEA:           true,
		eaBits:          eaBits,
	}
}

// Emit dispatches opcode through the table, clamping the caller's
// update_mask to the instruction's own sets_mask before handing it to
// the emitter, per the testable property that the emitted code writes
// exactly sets_mask ∩ update_mask. ext is the extension-word stream
// starting right after opcode. If opcode is absent from the table — an
// addressing mode or bit pattern no line-E form defines — it emits the
// guest ILLEGAL-INSTRUCTION exception sequence instead.
func Emit(buf *buffer.Buffer, alloc *regalloc.Allocator, opcode uint16, ext []uint16, updateMask ccr.Mask) int {
	e := table[opcode&0x0FFF]
	if e.emit == nil {
		emitException(buf, illegalInstructionVector, uint32(opcode))
		return 0
	}
	return e.emit(buf, alloc, opcode, ext, updateMask&e.sets)
}

// SRInfo reports the CCR bits opcode reads and the CCR bits it writes,
// for the live-flag analysis the table's own comment in the spec
// attributes to code outside this package. An opcode absent from the
// table is reported as needing every flag and setting none, so a
// conservative caller never treats it as flag-transparent.
func SRInfo(opcode uint16) (needs, sets ccr.Mask) {
	e := table[opcode&0x0FFF]
	if e.emit == nil {
		return ccr.All, 0
	}
	return e.needs, e.sets
}

// Length computes the encoded length, in 16-bit words, of the guest
// instruction starting at stream[0], including any extension words the
// EA specifier consumes. An opcode absent from the table has length 1:
// the illegal-instruction sequence consumes only the opcode word
// itself before trapping.
func Length(stream []uint16) int {
	e := table[stream[0]&0x0FFF]
	if e.emit == nil {
		return 1
	}
	words := e.baseLengthWords
	if e.hasEA {
		words += ea.Length(e.eaBits, stream[words:])
	}
	return words
}
