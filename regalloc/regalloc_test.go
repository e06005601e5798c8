package regalloc

import (
	"testing"

	"github.com/m68kjit/linee/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapReadIsStableAcrossCalls(t *testing.T) {
	a := New(buffer.New())
	h1 := a.MapRead(D3)
	h2 := a.MapRead(D3)
	assert.Equal(t, h1, h2)
}

func TestMapWriteDoesNotMarkDirty(t *testing.T) {
	a := New(buffer.New())
	a.MapWrite(D0)
	assert.False(t, a.IsDirty(D0))
	a.SetDirty(D0)
	assert.True(t, a.IsDirty(D0))
}

func TestAllocTempReturnsDistinctRegistersUntilFreed(t *testing.T) {
	a := New(buffer.New())
	seen := make(map[uint8]bool)
	var temps []uint8
	for i := 0; i < 6; i++ {
		r := a.AllocTemp()
		require.False(t, seen[r], "register %d handed out twice while live", r)
		seen[r] = true
		temps = append(temps, r)
	}
	for _, r := range temps {
		a.Free(r)
	}
	// pool should be fully reusable now
	for i := 0; i < 6; i++ {
		a.AllocTemp()
	}
}

func TestAllocTempPanicsWhenPoolExhausted(t *testing.T) {
	a := New(buffer.New())
	assert.Panics(t, func() {
		for i := 0; i < 64; i++ {
			a.AllocTemp()
		}
	})
}

func TestModifyCCMarksCacheDirty(t *testing.T) {
	a := New(buffer.New())
	assert.False(t, a.CCDirty())
	a.ModifyCC()
	assert.True(t, a.CCDirty())
}

func TestCopyEmitsAMoveAndOwnsAFreshTemp(t *testing.T) {
	buf := buffer.New()
	a := New(buf)
	before := buf.Len()
	tmp := a.Copy(D2)
	assert.Greater(t, buf.Len(), before)
	assert.NotEqual(t, a.MapRead(D2), tmp)
	a.Free(tmp)
}
