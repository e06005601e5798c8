// Package regalloc models the register-allocation interface the line-E
// emitters are written against: a mapping from guest (m68k) register
// identifiers to host (ARM64) register identifiers, a dirty bit per
// guest register, and a designated host register that caches the guest
// condition code register (CCR). It plays the role the recompiler's
// regInfoList/BaseReg pairing plays for the x86 host, generalised into
// an explicit allocator object instead of a flat package-level slice,
// per the "shared CCR cached in a host register" redesign note.
package regalloc

import (
	"fmt"

	"github.com/m68kjit/linee/arm64"
	"github.com/m68kjit/linee/buffer"
)

// Guest register identifiers. D0..D7 are data registers, A0..A7 address
// registers; line-E's register forms touch only data registers, while
// its memory forms also read and update address registers through the
// EA emitter.
type GuestReg uint8

const (
	D0 GuestReg = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
)

// firstScratch..lastScratch is the pool of host registers available to
// alloc_temp()/copy(); x19..x28 are callee-saved and not used for
// scratch, x29/x30/sp are reserved by the calling convention, and a
// handful of low registers are reserved for guest register caching by
// the outer driver before line-E ever runs. The spec requires the pool
// to be large enough for any single emitter's peak of six temporaries;
// the pool holds ten, leaving four spare.
const (
	firstScratch = 9
	lastScratch  = 18
	ccrHostReg   = 19
)

// Allocator owns the guest<->host register bindings and the packed CCR
// cache for the duration of one basic block's translation. It is not
// safe for concurrent use; translation is strictly single-threaded.
type Allocator struct {
	buf *buffer.Buffer

	hostOf   map[GuestReg]uint8
	dirty    map[GuestReg]bool
	scratch  [lastScratch - firstScratch + 1]bool
	ccrDirty bool
}

// New creates an allocator writing temporaries and spills into buf.
func New(buf *buffer.Buffer) *Allocator {
	return &Allocator{
		buf:    buf,
		hostOf: make(map[GuestReg]uint8, 16),
		dirty:  make(map[GuestReg]bool, 16),
	}
}

func (a *Allocator) hostSlot(g GuestReg) uint8 {
	// A stable, collision-free mapping from guest register number to a
	// dedicated host register; the outer driver is assumed to have
	// already reserved x0..x8 as the permanent home for D0..A7 the same
	// way the recompiler dedicates one x86 register per PVM register.
	return uint8(g)
}

// MapRead binds g to a host register for reading and returns it. It
// never marks g dirty.
func (a *Allocator) MapRead(g GuestReg) uint8 {
	if h, ok := a.hostOf[g]; ok {
		return h
	}
	h := a.hostSlot(g)
	a.hostOf[g] = h
	return h
}

// MapWrite binds g to a host register for writing, invalidating any
// prior mapping the way the spec's "map for write" must, and returns
// the host register. The caller is expected to call SetDirty once it
// has actually produced a new value.
func (a *Allocator) MapWrite(g GuestReg) uint8 {
	h := a.hostSlot(g)
	a.hostOf[g] = h
	return h
}

// SetDirty marks g's host binding as holding a value distinct from
// guest memory, deferring the writeback to whatever collaborator
// flushes registers at block exit.
func (a *Allocator) SetDirty(g GuestReg) {
	a.dirty[g] = true
}

// IsDirty reports whether g has been written since it was last mapped.
func (a *Allocator) IsDirty(g GuestReg) bool {
	return a.dirty[g]
}

// Copy produces an independent temporary initialised from g's current
// value, owned by the caller until it calls Free. The emitter that
// copy belongs to must free it on every exit path.
func (a *Allocator) Copy(g GuestReg) uint8 {
	src := a.MapRead(g)
	dst := a.AllocTemp()
	a.buf.Emit(arm64.MOVreg(dst, src, true))
	return dst
}

// AllocTemp reserves one scratch host register for the emitter's own
// use. Panics if the pool is exhausted; the spec treats allocator
// exhaustion as a hard programming error, not a recoverable one, since
// no single line-E emitter needs more than six temporaries at once.
func (a *Allocator) AllocTemp() uint8 {
	for i := range a.scratch {
		if !a.scratch[i] {
			a.scratch[i] = true
			return uint8(firstScratch + i)
		}
	}
	panic(fmt.Sprintf("regalloc: scratch pool (%d registers) exhausted", len(a.scratch)))
}

// Free releases a temporary or a mapped guest register binding back to
// the pool. Freeing a guest register's host binding is a no-op beyond
// bookkeeping: the binding is simply forgotten, matching the spec's
// invariant that only one host register ever holds a given guest value
// at a time.
func (a *Allocator) Free(h uint8) {
	if h >= firstScratch && h <= lastScratch {
		a.scratch[h-firstScratch] = false
	}
}

// ModifyCC returns the host register that caches the guest CCR, marking
// it dirty so later guest-visible flag updates are guaranteed not to be
// dropped by an optimisation pass upstream.
func (a *Allocator) ModifyCC() uint8 {
	a.ccrDirty = true
	return ccrHostReg
}

// CCDirty reports whether the cached CCR has been written during this
// block's translation.
func (a *Allocator) CCDirty() bool {
	return a.ccrDirty
}
