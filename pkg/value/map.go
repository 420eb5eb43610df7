package value

import (
	"strings"
	"sync"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/symtab"
)

// Map is a symbol-keyed container. Insertion order is not observable.
type Map struct {
	syms *symtab.Table
	mu   sync.RWMutex
	data map[symtab.ID]any
	// order of keys is not a public contract; kept only so Keys() and
	// ToJSON/ToYAML produce deterministic output for tests.
	order []symtab.ID
}

// NewMap creates an empty map whose keys are interned through syms.
func NewMap(syms *symtab.Table) *Map {
	return &Map{syms: syms, data: make(map[symtab.ID]any)}
}

func (m *Map) selfPtr() any { return m }

func (m *Map) containerChildren() []Container {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Container
	for _, v := range m.data {
		if c, ok := v.(Container); ok {
			out = append(out, c)
		}
	}
	return out
}

// Clone performs a deep copy of structure (a fresh Map) with a shallow copy
// of leaves (leaf containers are not recursively cloned).
func (m *Map) Clone() Container {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := &Map{syms: m.syms, data: make(map[symtab.ID]any, len(m.data)), order: append([]symtab.ID(nil), m.order...)}
	for k, v := range m.data {
		cp.data[k] = v
	}
	return cp
}

func (m *Map) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.data))
}

func (m *Map) Empty() bool { return m.Size() == 0 }

// Put stores value at key, interning key if necessary. Inserting a
// container value that would create a cycle in the ownership DAG fails with
// CycleError and leaves the map unchanged.
func (m *Map) Put(key string, v any) error {
	if err := maybeCheckCycle(m, v); err != nil {
		return err
	}
	id := m.syms.Intern(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[id]; !exists {
		m.order = append(m.order, id)
	}
	m.data[id] = v
	return nil
}

// Get returns the value at key, or (nil, false) if absent.
func (m *Map) Get(key string) (any, bool) {
	id := m.syms.LookupIfExists(key)
	if id == 0 {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[id]
	return v, ok
}

func (m *Map) HasKey(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the map's keys as a List, in insertion order.
func (m *Map) Keys(listSyms *symtab.Table) *List {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := NewList(listSyms)
	for _, id := range m.order {
		name, _ := m.syms.Lookup(id)
		_ = out.Insert(-1, name)
	}
	return out
}

// FoldKey returns the stored key whose case-folded form matches key, or key
// itself unchanged if no stored key folds to it.
func (m *Map) FoldKey(key string) string {
	if m.HasKey(key) {
		return key
	}
	lower := strings.ToLower(key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		stored, _ := m.syms.Lookup(id)
		if strings.ToLower(stored) == lower {
			return stored
		}
	}
	return key
}

// Remove deletes key from the map, if present.
func (m *Map) Remove(key string) {
	id := m.syms.LookupIfExists(key)
	if id == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return
	}
	delete(m.data, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Range calls fn for every key/value pair in insertion order; fn returning
// false stops the iteration early.
func (m *Map) Range(fn func(key string, v any) bool) {
	m.mu.RLock()
	order := append([]symtab.ID(nil), m.order...)
	m.mu.RUnlock()
	for _, id := range order {
		m.mu.RLock()
		v, ok := m.data[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		name, _ := m.syms.Lookup(id)
		if !fn(name, v) {
			return
		}
	}
}

var errInvalidContainer = coreerr.New(coreerr.InvalidContainerError, "operation not valid for this container kind")
