package linee

import (
	"testing"

	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/ccr"
	"github.com/m68kjit/linee/regalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFormShiftsFillEveryEntryOfTheirSpace(t *testing.T) {
	// Every low-12-bit index whose size field isn't the reserved 11
	// value is a register-form shift/rotate, and all such opcodes are
	// defined on real hardware, so none of these slots may be empty.
	for i := 0; i < 4096; i++ {
		opcode := uint16(0xE000 | i)
		if isMemoryForm(opcode) {
			continue
		}
		require.NotNil(t, table[i].emit, "opcode %#04x missing from table", opcode)
		assert.Equal(t, 1, table[i].baseLengthWords)
		assert.False(t, table[i].hasEA)
	}
}

func TestBitFieldRegisterFormHasNoEAAndTwoWordBaseLength(t *testing.T) {
	e := table[0xE8C4&0x0FFF] // BFTST D4{...}
	require.NotNil(t, e.emit)
	assert.False(t, e.hasEA)
	assert.Equal(t, 2, e.baseLengthWords)
	assert.Equal(t, ccr.N|ccr.Z|ccr.V|ccr.C, e.sets)
}

func TestMemoryFormShiftRejectsRegisterDirectModes(t *testing.T) {
	// ASL <ea> with EA mode 0 (Dn) isn't a legal memory-form encoding,
	// and size bits 11 never name a register form either, so the slot
	// the memory-form decode would claim must stay empty.
	opcode := uint16(0xE1C0) // dir=1, op=ASx, ea mode 0 reg 0
	e := table[opcode&0x0FFF]
	assert.Nil(t, e.emit)
}

func TestBitFieldMemoryFormRejectsAddressRegisterDirect(t *testing.T) {
	opcode := uint16(0xE8C8) // BFTST, ea mode 1 (An) reg 0 -- not alterable
	e := table[opcode&0x0FFF]
	assert.Nil(t, e.emit)
}

func TestPlainRotatesNeedNothingAndNeverSetX(t *testing.T) {
	needs, sets := SRInfo(0xE318) // ROL.B #1,D0
	assert.Zero(t, needs)
	assert.Equal(t, ccr.N|ccr.Z|ccr.V|ccr.C, sets)
}

func TestExtendedRotatesNeedXAndSetEveryBit(t *testing.T) {
	needs, sets := SRInfo(0xE392) // ROXL.L #1,D2
	assert.Equal(t, ccr.X, needs)
	assert.Equal(t, ccr.All, sets)
}

func TestSRInfoOnUnknownOpcodeNeedsAllAndSetsNone(t *testing.T) {
	opcode := uint16(0xE1C0) // the empty memory-form slot above
	needs, sets := SRInfo(opcode)
	assert.Equal(t, ccr.All, needs)
	assert.Zero(t, sets)
}

func TestLengthOfRegisterFormIsOneWord(t *testing.T) {
	assert.Equal(t, 1, Length([]uint16{0xE300}))
}

func TestLengthOfMemoryFormIncludesEAExtensionWords(t *testing.T) {
	// ASL <ea>, (d16,A0): one base word plus one displacement word.
	stream := []uint16{0xE1F0 &^ 0x3F | 0x28, 0x0010}
	assert.Equal(t, 2, Length(stream))
}

func TestLengthOfBitFieldMemoryFormIncludesExtAndEAWords(t *testing.T) {
	// BFTST on (A0): two base words (opcode + bit-field ext word), no
	// further EA extension since address-register-indirect consumes
	// none.
	stream := []uint16{0xE8D0, 0x0000}
	assert.Equal(t, 2, Length(stream))
}

func TestLengthOfUnknownOpcodeIsOne(t *testing.T) {
	assert.Equal(t, 1, Length([]uint16{0xE1C0}))
}

func TestEmitOnUnknownOpcodeRaisesIllegalInstructionAndConsumesNoExtWords(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	before := buf.Len()
	n := Emit(buf, alloc, 0xE1C0, nil, ccr.All)
	assert.Zero(t, n)
	assert.Greater(t, buf.Len(), before)
}

func TestEmitRegisterFormAdvancesBufferAndConsumesNoExtWords(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	before := buf.Len()
	n := Emit(buf, alloc, 0xE300, nil, ccr.All) // ASL.B #1,D0
	assert.Zero(t, n)
	assert.Greater(t, buf.Len(), before)
}

func TestEmitBitFieldRegisterFormConsumesExactlyOneExtWord(t *testing.T) {
	buf := buffer.New()
	alloc := regalloc.New(buf)
	n := Emit(buf, alloc, 0xE9C4, []uint16{0x5208}, ccr.All) // BFEXTU D4{8:8},D5
	assert.Equal(t, 1, n)
}

func TestEmitClampsUpdateMaskToTheOpcodesOwnSetsMask(t *testing.T) {
	// ROL never writes X; asking for it anyway must not panic or wrongly
	// report it as handled, since finishShiftFlags only ever clears and
	// sets bits still present in the mask it is handed.
	buf := buffer.New()
	alloc := regalloc.New(buf)
	assert.NotPanics(t, func() {
		Emit(buf, alloc, 0xE318, nil, ccr.All) // ROL.B #1,D0, mask includes X
	})
}

func TestEveryEmitterLeavesTheScratchPoolFullyReusable(t *testing.T) {
	// A leaked temporary would eventually exhaust the pool; exercising
	// every distinct opcode shape back to back and then still being able
	// to allocate a fresh temp proves every AllocTemp in this package is
	// paired with a Free on its exit path.
	buf := buffer.New()
	alloc := regalloc.New(buf)
	opcodes := []struct {
		opcode uint16
		ext    []uint16
	}{
		{0xE300, nil},              // ASL.B #1,D0
		{0xE849, nil},              // LSR.W #4,D1
		{0xE392, nil},              // ROXL.L #1,D2
		{0xE318, nil},              // ROL.B #1,D0
		{0xE3A0, nil},              // register-sourced ASL.L D1,D0
		{0xE1D0, nil},              // ASL (A0)
		{0xE9C4, []uint16{0x5208}}, // BFEXTU D4{8:8},D5
		{0xEAC4, []uint16{0x1204}}, // BFCHG D4{...}
		{0xEFD0, []uint16{0x1208}}, // BFINS (A0){...}
	}
	for _, c := range opcodes {
		require.NotPanics(t, func() {
			Emit(buf, alloc, c.opcode, c.ext, ccr.All)
		}, "opcode %#04x", c.opcode)
	}
	assert.NotPanics(t, func() {
		for i := 0; i < 6; i++ {
			alloc.AllocTemp()
		}
	})
}
