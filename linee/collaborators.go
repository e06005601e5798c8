package linee

import (
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/log"
)

// advancePC and emitException stand in for the out-of-scope PC and
// exception helpers the spec names as external collaborators
// (advance_pc, emit_exception). The outer driver that owns the guest
// PC and the trap table is expected to supply real implementations;
// these keep the package self-contained and are the seam a driver
// replaces wholesale, the same way generateTrap in the recompiler
// defers to a single emitTrap() sentinel rather than inlining a real
// trap handler.
//
// srMaskFor stands in for the live-flag analysis outside the core
// (M68K_GetSRMask in the collaborator this family was grounded on):
// given the opcode about to be translated, it reports which CCR bits
// the surrounding code actually needs this instruction to produce.
// EmitLineE calls it internally so its own external signature needs no
// mask parameter; Emit, used directly by callers (tests, or a driver
// that already knows the mask) takes update_mask explicitly instead of
// going through this seam, since Go favours an explicit parameter over
// a hidden lookup where the caller already has the value in hand.
var (
	advancePC     = defaultAdvancePC
	emitException = defaultEmitException
	srMaskFor     = defaultSRMaskFor
)

func defaultSRMaskFor(opcode uint16) ccr.Mask {
	return ccr.All
}

// illegalInstructionVector is the guest trap vector line-E raises for
// any opcode absent from the dispatch table.
const illegalInstructionVector = 4

func defaultAdvancePC(buf *buffer.Buffer, bytes int) {
	buf.Emit(pcAdvanceSentinel(bytes))
}

func defaultEmitException(buf *buffer.Buffer, vector uint8, aux uint32) {
	log.Warn(log.Dispatch, "no line-E emitter for opcode", "vector", vector, "opcode", aux)
	buf.Emit(exceptionSentinel(vector, aux))
}

// pcAdvanceSentinel and exceptionSentinel encode bookkeeping-only host
// words a real driver recognises and replaces at link time; they carry
// no ARM64 semantics of their own, mirroring the 0xDEADBEEF/0xFEFEFEFE
// placeholder words the recompiler leaves for its own patch sites.
func pcAdvanceSentinel(bytes int) uint32 {
	return 0xFEFE0000 | uint32(bytes&0xFFFF)
}

func exceptionSentinel(vector uint8, aux uint32) uint32 {
	return 0xDEAD0000 | uint32(vector)<<8 | (aux & 0xFF)
}
