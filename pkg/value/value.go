// Package value implements the polymorphic container model shared across
// plugins: maps, lists, buffers, and boxed scalars, with structural sharing,
// a clone operation, and a cycle check on every container-valued insert.
package value

import (
	"strconv"
	"strings"
	"sync"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/handle"
	"github.com/edgekernel/core/pkg/symtab"
)

// Container is the common contract implemented by Map, List, Buffer, and
// Boxed.
type Container interface {
	Clone() Container
	Size() uint32
	Empty() bool

	// selfPtr returns an identity usable for the cycle check and for
	// recognising "this exact container" as a prospective child.
	selfPtr() any
	// containerChildren returns the direct container-valued children, for
	// the cycle walk.
	containerChildren() []Container
}

// cycleMu is the single global mutex guarding the cycle check across every
// container mutation that might introduce one, per spec.md §4.3/§5.
var cycleMu sync.Mutex

// checkNoCycle walks child's descendants looking for parent. Per-node locks
// are taken and released one level at a time (never nested) to avoid
// deadlocking against concurrent mutation elsewhere in the tree; the walk
// itself is serialized process-wide by cycleMu.
func checkNoCycle(parent Container, child Container) error {
	cycleMu.Lock()
	defer cycleMu.Unlock()

	if parent.selfPtr() == child.selfPtr() {
		return coreerr.New(coreerr.CycleError, "container cannot contain itself")
	}

	visited := map[any]bool{}
	queue := []Container{child}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		p := cur.selfPtr()
		if p == nil {
			continue
		}
		if p == parent.selfPtr() {
			return coreerr.New(coreerr.CycleError, "cycle detected in container ownership graph")
		}
		if visited[p] {
			continue
		}
		visited[p] = true
		for _, c := range cur.containerChildren() {
			queue = append(queue, c)
		}
	}
	return nil
}

// maybeCheckCycle runs the cycle check only when v is itself a container;
// scalar values can never introduce a cycle.
func maybeCheckCycle(parent Container, v any) error {
	child, ok := v.(Container)
	if !ok {
		return nil
	}
	return checkNoCycle(parent, child)
}

// ScalarKind is one of the boxed-scalar primitive kinds.
type ScalarKind int

const (
	ScalarBool ScalarKind = iota
	ScalarInt64
	ScalarFloat64
	ScalarString
	ScalarSymbol
	ScalarHandle
)

// --- Boxed scalar -----------------------------------------------------

// Boxed wraps exactly one scalar so it can be passed uniformly alongside
// maps, lists, and buffers.
type Boxed struct {
	kind ScalarKind
	b    bool
	i    int64
	f    float64
	s    string
	sym  symtab.ID
	h    handle.ID
}

func Box(v any) Boxed {
	switch t := v.(type) {
	case bool:
		return Boxed{kind: ScalarBool, b: t}
	case int64:
		return Boxed{kind: ScalarInt64, i: t}
	case int:
		return Boxed{kind: ScalarInt64, i: int64(t)}
	case float64:
		return Boxed{kind: ScalarFloat64, f: t}
	case string:
		return Boxed{kind: ScalarString, s: t}
	case symtab.ID:
		return Boxed{kind: ScalarSymbol, sym: t}
	case handle.ID:
		return Boxed{kind: ScalarHandle, h: t}
	default:
		panic("value: unsupported scalar type boxed")
	}
}

func (b Boxed) Kind() ScalarKind               { return b.kind }
func (b Boxed) Clone() Container               { return b }
func (b Boxed) Size() uint32                   { return 1 }
func (b Boxed) Empty() bool                    { return false }
func (b Boxed) selfPtr() any                   { return nil } // scalars never participate in cycles
func (b Boxed) containerChildren() []Container { return nil }

// UnboxBool converts the stored scalar to bool: numeric non-zero is true;
// strings "true"/"false" are recognised case-insensitively, any other
// numeric string parses as a number first.
func (b Boxed) UnboxBool() bool {
	switch b.kind {
	case ScalarBool:
		return b.b
	case ScalarInt64:
		return b.i != 0
	case ScalarFloat64:
		return b.f != 0
	case ScalarString:
		switch strings.ToLower(b.s) {
		case "true":
			return true
		case "false":
			return false
		}
		if f, err := strconv.ParseFloat(b.s, 64); err == nil {
			return f != 0
		}
		return b.s != ""
	default:
		return false
	}
}

// UnboxInt64 converts the stored scalar to int64. Float truncates toward
// zero; string parses; bool is 0/1. Integer narrowing elsewhere in this
// package wraps modulo 2^width, matching spec.md §4.3.
func (b Boxed) UnboxInt64() int64 {
	switch b.kind {
	case ScalarInt64:
		return b.i
	case ScalarFloat64:
		return int64(b.f)
	case ScalarBool:
		if b.b {
			return 1
		}
		return 0
	case ScalarString:
		n, _ := strconv.ParseInt(strings.TrimSpace(b.s), 10, 64)
		return n
	default:
		return 0
	}
}

// UnboxInt32 narrows UnboxInt64 modulo 2^32, wrapping rather than erroring.
func (b Boxed) UnboxInt32() int32 { return int32(b.UnboxInt64()) }

func (b Boxed) UnboxFloat64() float64 {
	switch b.kind {
	case ScalarFloat64:
		return b.f
	case ScalarInt64:
		return float64(b.i)
	case ScalarBool:
		if b.b {
			return 1
		}
		return 0
	case ScalarString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(b.s), 64)
		return f
	default:
		return 0
	}
}

func (b Boxed) UnboxString() string {
	switch b.kind {
	case ScalarString:
		return b.s
	case ScalarBool:
		return strconv.FormatBool(b.b)
	case ScalarInt64:
		return strconv.FormatInt(b.i, 10)
	case ScalarFloat64:
		return strconv.FormatFloat(b.f, 'g', -1, 64)
	default:
		return ""
	}
}

func (b Boxed) UnboxSymbol() symtab.ID {
	if b.kind == ScalarSymbol {
		return b.sym
	}
	return 0
}

func (b Boxed) UnboxHandle() handle.ID {
	if b.kind == ScalarHandle {
		return b.h
	}
	return handle.Null
}
