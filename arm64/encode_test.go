package arm64

import "testing"

func TestMOVZEncodesImmediateAndDestination(t *testing.T) {
	word := MOVZ(3, 0x1234, 0, false)
	if rd := word & 0x1F; rd != 3 {
		t.Fatalf("rd = %d, want 3", rd)
	}
	if imm := (word >> 5) & 0xFFFF; imm != 0x1234 {
		t.Fatalf("imm16 = %#x, want 0x1234", imm)
	}
	if sf := word >> 31; sf != 0 {
		t.Fatalf("sf = %d, want 0 for 32-bit form", sf)
	}
}

func TestMOVregIsOrrWithZeroRegister(t *testing.T) {
	got := MOVreg(1, 2, true)
	want := ORRshiftedReg(1, ZR, 2, shiftLSL, 0, true)
	if got != want {
		t.Fatalf("MOVreg = %#x, want %#x", got, want)
	}
}

func TestNEGregIsSubFromZero(t *testing.T) {
	got := NEGreg(5, 6, false)
	want := SUBreg(5, ZR, 6, false)
	if got != want {
		t.Fatalf("NEGreg = %#x, want %#x", got, want)
	}
}

func TestBcondEncodesConditionInLow4Bits(t *testing.T) {
	word := Bcond(CondEQ, 4)
	if cond := Cond(word & 0xF); cond != CondEQ {
		t.Fatalf("cond = %v, want CondEQ", cond)
	}
}

func TestRORimmAndLSLimmDistinctEncodings(t *testing.T) {
	a := RORimm(0, 1, 8, true)
	b := LSLimm(0, 1, 8, 32, false)
	if a == b {
		t.Fatalf("ROR and LSL encodings unexpectedly equal")
	}
}
