// Package handle gives every cross-plugin object a small integer identity
// backed by a generation-coloured slot table, so a stale handle value is
// detectable rather than silently resolving to the wrong object after reuse.
package handle

import (
	"sync"

	"github.com/edgekernel/core/pkg/metrics"
)

const (
	genBits  = 12
	genMask  = (1 << genBits) - 1
	maxGen   = genMask
	growthBy = 1024
)

// ID is an ABI-safe 32-bit handle: (index << 12) | generation. Zero is never
// a valid id — index 0 is reserved so a zeroed ID is always Null.
type ID uint32

const Null ID = 0

func makeID(index uint32, gen uint16) ID {
	return ID((index << genBits) | uint32(gen))
}

func (h ID) index() uint32 { return uint32(h) >> genBits }
func (h ID) gen() uint16   { return uint16(h) & genMask }

type slot struct {
	obj     any
	gen     uint16
	used    bool
	anchors map[*Root]struct{} // every root currently anchoring this handle
}

// Root owns a set of handle anchors. While any root anchors a handle, the
// underlying object stays alive; once the last anchoring root releases it
// (explicitly, or via ReleaseRoot), the slot is freed and its generation
// advances so stale copies of the id are detectable.
type Root struct {
	table *Table
	mu    sync.Mutex
	owned map[uint32]ID // slot index -> handle id this root anchors
}

// Table is the handle table: a densely packed slot array plus two free
// lists (recently-freed, never-used).
type Table struct {
	mu           sync.Mutex
	slots        []slot
	freedIndices []uint32
	nextNewIndex uint32
	occupied     int
}

// New creates an empty handle table with no preallocated capacity.
func New() *Table {
	t := &Table{
		slots:        make([]slot, 1, growthBy), // index 0 reserved, never issued
		nextNewIndex: 1,
	}
	metrics.HandleTableCapacity.Set(float64(cap(t.slots)))
	return t
}

// CreateRoot creates a new anchoring root. Roots are independent; the same
// object may be anchored to several roots simultaneously.
func (t *Table) CreateRoot() *Root {
	return &Root{table: t, owned: make(map[uint32]ID)}
}

func (t *Table) growLocked() {
	newCap := len(t.slots) + growthBy
	grown := make([]slot, len(t.slots), newCap)
	copy(grown, t.slots)
	t.slots = grown[:newCap]
	metrics.HandleTableCapacity.Set(float64(cap(t.slots)))
}

// allocateLocked picks a slot index for a new object, preferring a
// never-used slot over a freed one — per spec.md §4.2, this gives handles a
// "stumbled-upon = invalid" property: an index that held a different object
// a moment ago is only reissued once the table is otherwise full.
func (t *Table) allocateLocked() uint32 {
	if int(t.nextNewIndex) < len(t.slots) {
		idx := t.nextNewIndex
		t.nextNewIndex++
		return idx
	}
	if n := len(t.freedIndices); n > 0 {
		idx := t.freedIndices[n-1]
		t.freedIndices = t.freedIndices[:n-1]
		return idx
	}
	t.growLocked()
	idx := t.nextNewIndex
	t.nextNewIndex++
	return idx
}

// Create allocates a handle for obj, anchored to root.
func (t *Table) Create(obj any, root *Root) ID {
	t.mu.Lock()
	idx := t.allocateLocked()
	gen := t.slots[idx].gen
	t.slots[idx] = slot{obj: obj, gen: gen, used: true, anchors: map[*Root]struct{}{root: {}}}
	t.occupied++
	metrics.HandleTableOccupancy.Set(float64(t.occupied))
	t.mu.Unlock()

	id := makeID(idx, gen)

	root.mu.Lock()
	root.owned[idx] = id
	root.mu.Unlock()

	return id
}

// Lookup returns the live object for h, or (nil, false) if h is null, stale
// (wrong generation), or was never issued.
func (t *Table) Lookup(h ID) (any, bool) {
	if h == Null {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if int(idx) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[idx]
	if !s.used || s.gen != h.gen() {
		return nil, false
	}
	return s.obj, true
}

// Anchor adds an additional anchoring root to an existing handle, e.g. when
// a value created under a call scope is promoted to module-scope lifetime.
func (t *Table) Anchor(h ID, root *Root) {
	if h == Null {
		return
	}
	t.mu.Lock()
	idx := h.index()
	if int(idx) >= len(t.slots) {
		t.mu.Unlock()
		return
	}
	s := &t.slots[idx]
	if !s.used || s.gen != h.gen() {
		t.mu.Unlock()
		return
	}
	s.anchors[root] = struct{}{}
	t.mu.Unlock()

	root.mu.Lock()
	root.owned[idx] = h
	root.mu.Unlock()
}

// freeSlotLocked must be called with t.mu held; it assumes the slot's
// anchors set is already empty.
func (t *Table) freeSlotLocked(idx uint32) {
	s := &t.slots[idx]
	s.obj = nil
	s.used = false
	s.anchors = nil
	if s.gen == maxGen {
		s.gen = 0
	} else {
		s.gen++
	}
	t.freedIndices = append(t.freedIndices, idx)
	t.occupied--
	metrics.HandleTableOccupancy.Set(float64(t.occupied))
}

// Release releases root's anchor on h. The underlying object is destroyed,
// and the slot's generation advances, only once no root anchors it any
// longer. Releasing an already-released or invalid handle is a no-op.
func (t *Table) Release(h ID, root *Root) {
	if h == Null {
		return
	}
	idx := h.index()

	root.mu.Lock()
	if _, owned := root.owned[idx]; !owned {
		root.mu.Unlock()
		return
	}
	delete(root.owned, idx)
	root.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.slots) {
		return
	}
	s := &t.slots[idx]
	if !s.used || s.gen != h.gen() {
		return
	}
	delete(s.anchors, root)
	if len(s.anchors) == 0 {
		t.freeSlotLocked(idx)
	}
}

// ReleaseRoot releases every handle currently anchored to root. Bulk
// release is O(handles owned by root).
func (t *Table) ReleaseRoot(root *Root) {
	root.mu.Lock()
	owned := root.owned
	root.owned = make(map[uint32]ID)
	root.mu.Unlock()

	for idx, id := range owned {
		t.mu.Lock()
		if int(idx) < len(t.slots) {
			s := &t.slots[idx]
			if s.used && s.gen == id.gen() {
				delete(s.anchors, root)
				if len(s.anchors) == 0 {
					t.freeSlotLocked(idx)
				}
			}
		}
		t.mu.Unlock()
	}
}

// Len reports how many handles are anchored to root.
func (root *Root) Len() int {
	root.mu.Lock()
	defer root.mu.Unlock()
	return len(root.owned)
}
