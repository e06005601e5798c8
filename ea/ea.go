// Package ea is the effective-address emitter: it translates a 6-bit
// guest EA specifier (mode in bits 5-3, register in bits 2-0) plus any
// extension words into ARM64 code that leaves the operand's address in
// a nominated host register, and reports how many 16-bit extension
// words it consumed from the guest instruction stream. It is the
// collaborator the spec calls load_ea; line-E's memory-form shift,
// rotate and bit-field emitters all go through it rather than decoding
// addressing modes themselves.
package ea

import (
	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/regalloc"
)

// Mode is the 3-bit addressing-mode field of a guest EA specifier.
type Mode uint8

const (
	ModeDn         Mode = 0
	ModeAn         Mode = 1
	ModeAnIndirect Mode = 2
	ModeAnPostInc  Mode = 3
	ModeAnPreDec   Mode = 4
	ModeAnDisp     Mode = 5
	ModeAnIndex    Mode = 6
	ModeExtended   Mode = 7
)

// Size is the operand size in bytes, used to compute the
// post-increment/pre-decrement step.
type Size uint8

const (
	Byte Size = 1
	Word Size = 2
	Long Size = 4
)

// Result reports what Load actually did, so callers that must emit a
// matching writeback (post-increment store, pre-decrement store) know
// which form of addressing they are dealing with.
type Result struct {
	Mode      Mode
	ExtWords  int
	PostInc   bool
	PreDec    bool
	AddrReady uint8 // host register holding the materialised address
}

// Load decodes the 6-bit specifier eaBits (mode<<3|reg) and emits ARM64
// code that leaves the operand's address in a host register, returning
// that register plus bookkeeping the caller needs. For modes 2, 3 and 4
// the register is the address register's own host binding; for modes 5,
// 6 and 7 it is a freshly allocated temporary.
// ext is the extension-word stream starting right after the opcode
// word; only modes 5, 6 and 7 ever consume from it. Load panics if
// eaBits names a register-direct mode (0 or 1), since those modes have
// no effective address — callers for line-E's register forms never
// reach this path.
func Load(buf *buffer.Buffer, alloc *regalloc.Allocator, eaBits uint8, ext []uint16, size Size) Result {
	mode := Mode((eaBits >> 3) & 7)
	reg := eaBits & 7

	switch mode {
	case ModeAnIndirect:
		return Result{Mode: mode, AddrReady: addrRegOf(alloc, reg)}

	case ModeAnPostInc:
		addr := addrRegOf(alloc, reg)
		return Result{Mode: mode, PostInc: true, AddrReady: addr}

	case ModeAnPreDec:
		an := regalloc.GuestReg(regalloc.A0) + regalloc.GuestReg(reg)
		host := alloc.MapWrite(an)
		buf.Emit(arm64.SUBimm(host, host, uint16(size), true))
		alloc.SetDirty(an)
		return Result{Mode: mode, PreDec: true, AddrReady: host}

	case ModeAnDisp:
		base := addrRegOf(alloc, reg)
		disp := int16(ext[0])
		dst := alloc.AllocTemp()
		emitAddImmSigned(buf, dst, base, int32(disp))
		return Result{Mode: mode, ExtWords: 1, AddrReady: dst}

	case ModeAnIndex:
		base := addrRegOf(alloc, reg)
		brief := ext[0]
		dst := alloc.AllocTemp()
		emitBriefIndex(buf, alloc, dst, base, brief)
		return Result{Mode: mode, ExtWords: 1, AddrReady: dst}

	case ModeExtended:
		switch reg {
		case 0: // absolute short, sign-extended
			dst := alloc.AllocTemp()
			emitLoadImm32(buf, dst, uint32(int32(int16(ext[0]))))
			return Result{Mode: mode, ExtWords: 1, AddrReady: dst}
		case 1: // absolute long
			dst := alloc.AllocTemp()
			v := uint32(ext[0])<<16 | uint32(ext[1])
			emitLoadImm32(buf, dst, v)
			return Result{Mode: mode, ExtWords: 2, AddrReady: dst}
		default:
			panic("ea: PC-relative and immediate specifiers are not alterable addressing modes for line-E")
		}

	default:
		panic("ea: register-direct mode has no effective address")
	}
}

// Writeback emits the address-register update that a post-increment or
// pre-decrement Load deferred. For pre-decrement the register was
// already updated by Load; this only handles post-increment, which by
// m68k convention commits after the operand has been consumed.
func Writeback(buf *buffer.Buffer, alloc *regalloc.Allocator, eaBits uint8, size Size, r Result) {
	if !r.PostInc {
		return
	}
	reg := eaBits & 7
	an := regalloc.GuestReg(regalloc.A0) + regalloc.GuestReg(reg)
	host := alloc.MapWrite(an)
	buf.Emit(arm64.ADDimm(host, host, uint16(size), true))
	alloc.SetDirty(an)
}

// Length reports how many 16-bit extension words the specifier eaBits
// consumes, without emitting any code, mirroring sr_info()'s EA-length
// query so line_e_length() can compute instruction lengths cheaply.
func Length(eaBits uint8, ext []uint16) int {
	mode := Mode((eaBits >> 3) & 7)
	reg := eaBits & 7
	switch mode {
	case ModeAnDisp, ModeAnIndex:
		return 1
	case ModeExtended:
		if reg == 1 {
			return 2
		}
		return 1
	default:
		return 0
	}
}

func addrRegOf(alloc *regalloc.Allocator, reg uint8) uint8 {
	return alloc.MapRead(regalloc.GuestReg(regalloc.A0) + regalloc.GuestReg(reg))
}

func emitAddImmSigned(buf *buffer.Buffer, dst, base uint8, imm int32) {
	if imm >= 0 && imm < 1<<12 {
		buf.Emit(arm64.ADDimm(dst, base, uint16(imm), true))
		return
	}
	if imm < 0 && -imm < 1<<12 {
		buf.Emit(arm64.SUBimm(dst, base, uint16(-imm), true))
		return
	}
	emitLoadImm32(buf, dst, uint32(imm))
	buf.Emit(arm64.ADDreg(dst, base, dst, true))
}

func emitLoadImm32(buf *buffer.Buffer, dst uint8, v uint32) {
	buf.Emit(arm64.MOVZ(dst, uint16(v), 0, true))
	if hi := uint16(v >> 16); hi != 0 {
		buf.Emit(arm64.MOVK(dst, hi, 1, true))
	}
}

// emitBriefIndex materialises (d8,An,Xn) addressing from a brief
// extension word: bit 15 selects An or Dn as the index register, bit
// 11 selects word/long sign-extension of the index, and bits 7-0 carry
// the signed 8-bit displacement.
func emitBriefIndex(buf *buffer.Buffer, alloc *regalloc.Allocator, dst, base uint8, brief uint16) {
	idxReg := uint8((brief >> 12) & 7)
	isAddr := brief&0x8000 != 0
	longIndex := brief&0x0800 != 0
	disp := int8(brief & 0xFF)

	var idx regalloc.GuestReg
	if isAddr {
		idx = regalloc.A0 + regalloc.GuestReg(idxReg)
	} else {
		idx = regalloc.D0 + regalloc.GuestReg(idxReg)
	}
	idxHost := alloc.MapRead(idx)

	tmp := alloc.AllocTemp()
	if longIndex {
		buf.Emit(arm64.MOVreg(tmp, idxHost, true))
	} else {
		buf.Emit(arm64.SBFXimm(tmp, idxHost, 0, 16, true))
	}
	buf.Emit(arm64.ADDreg(dst, base, tmp, true))
	alloc.Free(tmp)
	emitAddImmSigned(buf, dst, dst, int32(disp))
}
