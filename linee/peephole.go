package linee

import (
	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/log"
	"github.com/m68kjit/linee/regalloc"
)

// These are the opcode masks the byte-swap peephole matches against:
// ROR.W/ROL.W #8,Dn rotates a word by exactly half its own width, so
// the two directions are indistinguishable and both masks wildcard the
// direction bit.
const (
	rorW8Opcode      = 0xE058
	rorW8Mask        = 0xFEF8
	rorW8SameRegMask = 0xFEFF
	swapOpcode       = 0x4840
)

// matchByteSwapIdiom reports whether the three guest words starting at
// stream encode ROR.W #8,Dn ; SWAP Dn ; ROR.W #8,Dn (directions may
// differ between the two rotates, and between ROL and ROR, since
// rotating a word by its own half-width is direction-independent).
func matchByteSwapIdiom(stream []uint16) bool {
	if len(stream) < 3 {
		return false
	}
	op1, op2, op3 := stream[0], stream[1], stream[2]
	reg := op1 & 7
	if op1&rorW8Mask != rorW8Opcode {
		return false
	}
	if op2 != swapOpcode|reg {
		return false
	}
	if op3&rorW8SameRegMask != op1&rorW8SameRegMask {
		return false
	}
	return true
}

// EmitLineE is the family entrypoint the outer dispatch driver calls
// once per guest opcode. It first checks the ROR.W/SWAP/ROR.W
// byte-swap idiom described in the spec's peephole and, on a match,
// collapses all three guest instructions into a single ARM64 byte
// reverse; otherwise it falls back to the dispatch table. It returns
// the number of 16-bit stream words consumed and the number of guest
// instructions that represents (1, or 3 for the peephole).
func EmitLineE(buf *buffer.Buffer, alloc *regalloc.Allocator, stream []uint16) (wordsConsumed, insnConsumed int) {
	if matchByteSwapIdiom(stream) {
		opcode := stream[0]
		reg := regalloc.D0 + regalloc.GuestReg(opcode&7)
		log.Debug(log.Peephole, "collapsed ROR.W/SWAP/ROR.W into a byte reverse", "reg", reg)
		host := alloc.MapWrite(reg)
		buf.Emit(arm64.REVreg(host, host, false))
		alloc.SetDirty(reg)

		mask := srMaskFor(opcode) & (ccr.N | ccr.Z | ccr.V | ccr.C)
		if mask != 0 {
			cc := alloc.ModifyCC()
			scratch := alloc.AllocTemp()
			ccr.ClearBits(buf, cc, scratch, ccr.V|ccr.C, &mask)
			ccr.SetFromNZ(buf, cc, host, scratch, ccr.Long, &mask)
			alloc.Free(scratch)
		}

		advancePC(buf, 6)
		return 3, 3
	}

	opcode := stream[0]
	mask := srMaskFor(opcode)
	n := Emit(buf, alloc, opcode, stream[1:], mask)
	return 1 + n, 1
}
