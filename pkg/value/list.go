package value

import (
	"sync"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/symtab"
)

// List is an ordered sequence of value entries.
type List struct {
	syms *symtab.Table
	mu   sync.RWMutex
	data []any
}

func NewList(syms *symtab.Table) *List {
	return &List{syms: syms}
}

func (l *List) selfPtr() any { return l }

func (l *List) containerChildren() []Container {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Container
	for _, v := range l.data {
		if c, ok := v.(Container); ok {
			out = append(out, c)
		}
	}
	return out
}

func (l *List) Clone() Container {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := &List{syms: l.syms, data: append([]any(nil), l.data...)}
	return cp
}

func (l *List) Size() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint32(len(l.data))
}

func (l *List) Empty() bool { return l.Size() == 0 }

// resolveIndex converts the "-1 means append/last" convention into a real
// slice index. insert controls whether len(data) (one past the end) is a
// valid target (true for Insert, false for Put/Get which address an
// existing element).
func resolveIndex(i int, length int, insert bool) (int, error) {
	if i == -1 {
		if insert {
			return length, nil
		}
		if length == 0 {
			return 0, coreerr.New(coreerr.InvalidListError, "put(-1) on empty list")
		}
		return length - 1, nil
	}
	if i < 0 {
		return 0, coreerr.Newf(coreerr.InvalidListError, "negative index %d is only valid as -1", i)
	}
	max := length
	if !insert {
		max = length - 1
	}
	if i > max {
		return 0, coreerr.Newf(coreerr.InvalidListError, "index %d out of range (len %d)", i, length)
	}
	return i, nil
}

// Put replaces the element at index i (-1 means the last element).
func (l *List) Put(i int, v any) error {
	if err := maybeCheckCycle(l, v); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := resolveIndex(i, len(l.data), false)
	if err != nil {
		return err
	}
	l.data[idx] = v
	return nil
}

// Insert inserts v before index i (-1 means append).
func (l *List) Insert(i int, v any) error {
	if err := maybeCheckCycle(l, v); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := resolveIndex(i, len(l.data), true)
	if err != nil {
		return err
	}
	l.data = append(l.data, nil)
	copy(l.data[idx+1:], l.data[idx:])
	l.data[idx] = v
	return nil
}

// Get returns the element at index i (-1 means the last element).
func (l *List) Get(i int) (any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, err := resolveIndex(i, len(l.data), false)
	if err != nil {
		return nil, err
	}
	return l.data[idx], nil
}

// Remove deletes the element at index i (-1 means the last element).
func (l *List) Remove(i int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := resolveIndex(i, len(l.data), false)
	if err != nil {
		return err
	}
	l.data = append(l.data[:idx], l.data[idx+1:]...)
	return nil
}

// Slice returns a shallow copy of the backing elements, in order.
func (l *List) Slice() []any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]any(nil), l.data...)
}
