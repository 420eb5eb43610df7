package config

import (
	"sync"

	"github.com/edgekernel/core/pkg/metrics"
	"github.com/edgekernel/core/pkg/value"
)

// Topic is a leaf configuration value: a single boxed scalar with a
// last-writer-wins timestamp.
type Topic struct {
	mu          sync.RWMutex
	name        string
	modtime     Timestamp
	value       value.Boxed
	excludeTlog bool
	parent      *Topics
}

func (leaf *Topic) Name() string          { return leaf.name }
func (leaf *Topic) Parent() *Topics       { return leaf.parent }
func (leaf *Topic) ExcludedFromLog() bool { return leaf.excludeTlog }
func (leaf *Topic) KeyPath() []string     { return keyPath(leaf) }

func (leaf *Topic) ModTime() Timestamp {
	leaf.mu.RLock()
	defer leaf.mu.RUnlock()
	return leaf.modtime
}

// Value returns the current boxed value.
func (leaf *Topic) Value() value.Boxed {
	leaf.mu.RLock()
	defer leaf.mu.RUnlock()
	return leaf.value
}

// Dflt applies defVal only if the topic has never been written (its modtime
// is still Never); otherwise it is a no-op. Matches Topic::dflt.
func (leaf *Topic) Dflt(defVal value.Boxed) *Topic {
	if leaf.ModTime() == Never {
		leaf.WithNewerValue(Never, defVal, true, true)
	}
	return leaf
}

// WithNewerValue applies proposed as the topic's new value if proposedTime
// wins against the current write:
//
//   - if the value is unchanged and the timestamp would not strictly
//     increase (or increase-on-no-change is disallowed), this is a no-op;
//   - if proposedTime is older than the current modtime and
//     allowDecrease is false, this is a no-op;
//   - otherwise registered validators run (and may rewrite the value)
//     before it is applied, modtime is set to proposedTime, the parent is
//     notified, and the write is appended to the transaction log (unless
//     this subtree is excluded).
//
// Returns whether anything was applied (value or timestamp).
func (leaf *Topic) WithNewerValue(proposedTime Timestamp, proposed value.Boxed, allowDecrease, allowIncreaseIfUnchanged bool) bool {
	leaf.mu.Lock()
	currentValue := leaf.value
	currentModTime := leaf.modtime
	leaf.mu.Unlock()

	timestampWouldIncrease := allowIncreaseIfUnchanged && proposedTime > currentModTime

	if (currentValue == proposed || (!allowDecrease && proposedTime < currentModTime)) && !timestampWouldIncrease {
		metrics.ConfigWritesTotal.WithLabelValues("rejected").Inc()
		return false
	}

	newValue := proposed
	if rewritten := leaf.parent.validate(leaf.name, proposed, currentValue); rewritten != nil {
		if b, ok := rewritten.(value.Boxed); ok {
			newValue = b
		}
	}

	changed := newValue != currentValue
	if !changed && !timestampWouldIncrease {
		metrics.ConfigWritesTotal.WithLabelValues("rejected").Inc()
		return false
	}

	leaf.mu.Lock()
	wasNever := leaf.modtime == Never
	leaf.value = newValue
	leaf.modtime = proposedTime
	leaf.mu.Unlock()

	leaf.parent.setChild(leaf.name, leaf)
	if !leaf.excludeTlog {
		leaf.parent.appendToLog(leaf.KeyPath(), proposedTime, newValue)
	}

	switch {
	case changed && wasNever:
		leaf.parent.notifyChange(leaf.name, ReasonInitialized)
		leaf.parent.notifyChange(leaf.name, ReasonChanged)
	case changed:
		leaf.parent.notifyChange(leaf.name, ReasonChanged)
	default:
		leaf.parent.notifyChange(leaf.name, ReasonTimestampUpdated)
	}
	metrics.ConfigWritesTotal.WithLabelValues("applied").Inc()
	return true
}

// WithNewerModTime bumps modtime without touching the value, firing
// ReasonTimestampUpdated, but only if newModTime is strictly later than the
// current one.
func (leaf *Topic) WithNewerModTime(newModTime Timestamp) bool {
	leaf.mu.Lock()
	if newModTime <= leaf.modtime {
		leaf.mu.Unlock()
		return false
	}
	leaf.modtime = newModTime
	leaf.mu.Unlock()

	leaf.parent.setChild(leaf.name, leaf)
	leaf.parent.notifyChange(leaf.name, ReasonTimestampUpdated)
	return true
}

// Remove deletes this topic from its parent if timestamp is not older than
// its current modtime.
func (leaf *Topic) Remove(timestamp Timestamp) {
	leaf.mu.Lock()
	if timestamp < leaf.modtime {
		leaf.mu.Unlock()
		return
	}
	leaf.modtime = timestamp
	name := leaf.name
	leaf.mu.Unlock()
	leaf.parent.removeChild(name)
}
