package linee

import (
	"testing"

	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/regalloc"
	"github.com/stretchr/testify/require"
)

// TestEmitUnsignedModReducesAcrossTheFullRange executes emitUnsignedMod's
// emitted code for every (raw, modulus) pair in ROXL/ROXR's actual domain
// (modulus is always 9, 17 or 33; raw is pre-reduced mod 64) and checks the
// computed value against Go's own %, rather than only checking that the
// buffer grew or nothing panicked.
func TestEmitUnsignedModReducesAcrossTheFullRange(t *testing.T) {
	for _, modulus := range []uint32{9, 17, 33} {
		for raw := uint32(0); raw < 64; raw++ {
			buf := buffer.New()
			alloc := regalloc.New(buf)
			ctx := &emitCtx{buf: buf, alloc: alloc}
			rawReg := alloc.AllocTemp()
			modReg := alloc.AllocTemp()
			out := alloc.AllocTemp()

			emitUnsignedMod(ctx, out, rawReg, modReg)

			sim := arm64.NewSim()
			sim.SetW(rawReg, raw)
			sim.SetW(modReg, modulus)
			require.NoError(t, sim.Run(buf.All()))
			if got, want := sim.W(out), raw%modulus; got != want {
				t.Fatalf("emitUnsignedMod(%d, %d) = %d, want %d", raw, modulus, got, want)
			}
		}
	}
}
