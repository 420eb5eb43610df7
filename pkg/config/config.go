// Package config implements the in-memory configuration tree: a namespace
// of interior Topics nodes and leaf Topic values, with timestamped
// last-writer-wins writes, a validator convergence pass, and watcher
// notification that climbs toward the root. See SPEC_FULL.md §4.5.
package config

import "time"

// Timestamp is wall-clock milliseconds since the Unix epoch (see
// original_source/nucleus/src/config/config_timestamp.hpp).
type Timestamp uint64

const (
	// Never is the smallest timestamp: a default value applied with Never
	// loses to any subsequently proposed real write.
	Never Timestamp = 0
	// Dawn is the earliest real (non-sentinel) timestamp.
	Dawn Timestamp = 1
)

// Infinite is the largest timestamp: nothing written later can ever beat it.
const Infinite Timestamp = ^Timestamp(0)

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp { return Timestamp(time.Now().UnixMilli()) }

// Reasons is a bitmask of the events a Watcher may fire on.
type Reasons uint8

const ReasonNone Reasons = 0

const (
	// ReasonChanged fires on the topic whose value changed.
	ReasonChanged Reasons = 1 << iota
	// ReasonChildChanged fires on a node when any descendant changes.
	ReasonChildChanged
	// ReasonChildRemoved fires on a node when a direct child is removed.
	ReasonChildRemoved
	// ReasonTimestampUpdated fires when a write bumps modtime without
	// changing the stored value.
	ReasonTimestampUpdated
	// ReasonValidation marks a watcher as a validator: it runs before a
	// write is applied and may rewrite the proposed value.
	ReasonValidation
	// ReasonInitialized fires, just before ReasonChanged, on every write
	// that changes the value of a topic whose modtime is still Never — so a
	// Dflt default and the first timestamped write after it each fire it.
	ReasonInitialized
)

func (r Reasons) has(reason Reasons) bool { return r&reason != 0 }

// Node is the behavior shared by Topics (interior) and Topic (leaf) nodes.
type Node interface {
	Name() string
	ModTime() Timestamp
	Parent() *Topics
	ExcludedFromLog() bool
	KeyPath() []string
}

// WatcherFunc is the single callback shape used for both change
// notification and validation, dispatched by reason — the Go rendering of
// the reference implementation's polymorphic Watcher interface (validate/
// changed/childChanged as one object). For any reason other than
// ReasonValidation, the return value is ignored.
type WatcherFunc func(node *Topics, subKey string, reason Reasons, proposed, current any) (rewritten any, rewrite bool)

// Watcher is an opaque token returned by AddWatcher, used to remove the
// registration later. Unlike the reference implementation's weak_ptr-based
// automatic expiry, watchers here live until explicitly removed with
// Topics.RemoveWatcher — idiomatic Go has no weak references, and explicit
// removal is already how this module manages every other lifetime (see
// pkg/scope).
type Watcher struct {
	subKey  string
	reasons Reasons
	cb      WatcherFunc
}

func (w *Watcher) shouldFire(subKey string, reason Reasons) bool {
	return w.reasons.has(reason) && w.subKey == subKey
}

// keyPath walks Parent() links (concrete *Topics, never a nil-interface
// gotcha) up to the root and returns the full path as segments, excluding
// the anonymous root's own empty name.
func keyPath(n Node) []string {
	path := []string{n.Name()}
	for parent := n.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Name() == "" && parent.Parent() == nil {
			break
		}
		path = append([]string{parent.Name()}, path...)
	}
	return path
}
