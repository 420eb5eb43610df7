package config

import (
	"strings"
	"sync"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/value"
)

func invalidPath(name string) error {
	return coreerr.Newf(coreerr.InvalidConfigPathError, "%q already exists as the other node kind", name)
}

// MergeBehavior selects how Topics.UpdateFromMap treats existing children
// absent from the proposed map.
type MergeBehavior int

const (
	// MergeKeep leaves children absent from the proposed map untouched.
	MergeKeep MergeBehavior = iota
	// MergeReplace removes children absent from the proposed map, making
	// the node's child set exactly match the map afterward.
	MergeReplace
)

// Topics is an interior node: a namespace of named children, each either
// another Topics or a leaf Topic.
type Topics struct {
	name        string
	modtime     Timestamp
	excludeTlog bool
	parent      *Topics
	queue       *PublishQueue
	tlog        *TransactionLog

	mu       sync.RWMutex
	children map[string]Node // keyed by strings.ToLower(original name)
	watchers []*Watcher
}

// newRoot creates the anonymous root of a configuration tree. q may be nil
// (publishing becomes synchronous); tlog may be nil (writes are not
// persisted).
func newRoot(q *PublishQueue, tlog *TransactionLog) *Topics {
	return &Topics{children: make(map[string]Node), queue: q, tlog: tlog}
}

// NewRoot creates a fresh, empty configuration tree rooted at an anonymous
// Topics node, with a started publish queue.
func NewRoot() *Topics {
	q := NewPublishQueue()
	q.Start()
	return newRoot(q, nil)
}

// NewRootWithLog creates a root whose writes (outside excluded subtrees)
// are appended to tlog for startup replay.
func NewRootWithLog(tlog *TransactionLog) *Topics {
	q := NewPublishQueue()
	q.Start()
	return newRoot(q, tlog)
}

// Close stops the root's publish queue. Only meaningful on the root.
func (t *Topics) Close() {
	if t.queue != nil {
		t.queue.Stop()
	}
}

func (t *Topics) Name() string          { return t.name }
func (t *Topics) ModTime() Timestamp    { return t.modtime }
func (t *Topics) Parent() *Topics       { return t.parent }
func (t *Topics) ExcludedFromLog() bool { return t.excludeTlog }
func (t *Topics) KeyPath() []string     { return keyPath(t) }

func foldKey(name string) string { return strings.ToLower(name) }

func (t *Topics) publish(action func()) {
	if t.queue == nil {
		action()
		return
	}
	t.queue.Publish(action)
}

func (t *Topics) appendToLog(path []string, ts Timestamp, v value.Boxed) {
	if t.tlog == nil || t.excludeTlog {
		return
	}
	_ = t.tlog.Append(path, ts, plainValue(v))
}

// plainValue converts a Boxed scalar to the plain Go value jsoniter can
// actually marshal (Boxed's fields are unexported).
func plainValue(b value.Boxed) any {
	switch b.Kind() {
	case value.ScalarBool:
		return b.UnboxBool()
	case value.ScalarInt64:
		return b.UnboxInt64()
	case value.ScalarFloat64:
		return b.UnboxFloat64()
	default:
		return b.UnboxString()
	}
}

// child returns the existing child named name, if any.
func (t *Topics) child(name string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.children[foldKey(name)]
	return n, ok
}

func (t *Topics) setChild(name string, n Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[foldKey(name)] = n
}

// CreateInteriorChild returns the existing interior child named name,
// creating it if absent. It fails (returns nil) if a leaf Topic already
// occupies that name.
func (t *Topics) CreateInteriorChild(name string) *Topics {
	if existing, ok := t.child(name); ok {
		if sub, ok := existing.(*Topics); ok {
			return sub
		}
		return nil
	}
	sub := &Topics{
		name:        name,
		parent:      t,
		queue:       t.queue,
		tlog:        t.tlog,
		excludeTlog: t.excludeTlog || strings.HasPrefix(name, "_"),
		children:    make(map[string]Node),
	}
	t.setChild(name, sub)
	return sub
}

// CreateTopic returns the existing leaf Topic named name, creating it
// (holding the zero value.Boxed, which reads as boolean false) if absent. It fails (returns nil) if an interior
// Topics already occupies that name.
func (t *Topics) CreateTopic(name string) *Topic {
	if existing, ok := t.child(name); ok {
		if leaf, ok := existing.(*Topic); ok {
			return leaf
		}
		return nil
	}
	leaf := &Topic{
		name:        name,
		parent:      t,
		excludeTlog: t.excludeTlog || strings.HasPrefix(name, "_"),
	}
	t.setChild(name, leaf)
	return leaf
}

// FindTopics is the non-creating lookup for an interior child.
func (t *Topics) FindTopics(path []string) (*Topics, bool) {
	cur := t
	for _, seg := range path {
		n, ok := cur.child(seg)
		if !ok {
			return nil, false
		}
		sub, ok := n.(*Topics)
		if !ok {
			return nil, false
		}
		cur = sub
	}
	return cur, true
}

// LookupTopics is FindTopics without the ok return.
func (t *Topics) LookupTopics(path []string) *Topics {
	n, _ := t.FindTopics(path)
	return n
}

// Find is the non-creating lookup for a leaf at path (interior segments,
// then the final leaf name).
func (t *Topics) Find(path []string) (*Topic, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent, ok := t.FindTopics(path[:len(path)-1])
	if !ok {
		return nil, false
	}
	n, ok := parent.child(path[len(path)-1])
	if !ok {
		return nil, false
	}
	leaf, ok := n.(*Topic)
	return leaf, ok
}

// Lookup is Find without the ok return.
func (t *Topics) Lookup(path []string) *Topic {
	n, _ := t.Find(path)
	return n
}

// AddWatcher registers cb on this node, filtered to subKey (empty matches
// node-wide reasons like ReasonChildChanged) and the given reason bitmask.
// The returned Watcher is the token for RemoveWatcher.
func (t *Topics) AddWatcher(subKey string, reasons Reasons, cb WatcherFunc) *Watcher {
	w := &Watcher{subKey: subKey, reasons: reasons, cb: cb}
	t.mu.Lock()
	t.watchers = append(t.watchers, w)
	t.mu.Unlock()
	return w
}

// RemoveWatcher undoes a prior AddWatcher.
func (t *Topics) RemoveWatcher(w *Watcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.watchers {
		if existing == w {
			t.watchers = append(t.watchers[:i], t.watchers[i+1:]...)
			return
		}
	}
}

func (t *Topics) filterWatchers(subKey string, reason Reasons) []*Watcher {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Watcher
	for _, w := range t.watchers {
		if w.shouldFire(subKey, reason) {
			out = append(out, w)
		}
	}
	return out
}

// validate runs the registered validators for subKey against proposed,
// relative to current, iterating until they converge or three laps pass —
// matching original_source/nucleus/src/config/config_manager.cpp's
// Topics::validate exactly (spec.md §9 Open Question #2, resolved in
// DESIGN.md: a non-convergent validator set silently keeps the last
// proposed value rather than erroring).
func (t *Topics) validate(subKey string, proposed, current any) any {
	watchers := t.filterWatchers(subKey, ReasonValidation)
	if len(watchers) == 0 {
		return proposed
	}
	newValue := proposed
	rewrite := true
	for laps := 3; laps > 0 && rewrite; laps-- {
		rewrite = false
		for _, w := range watchers {
			nv, changed := w.cb(t, subKey, ReasonValidation, newValue, current)
			if changed && nv != newValue {
				rewrite = true
				newValue = nv
			}
		}
	}
	return newValue
}

// notifyChange dispatches subKey's exact watchers, this node's
// childChanged watchers, and then climbs every ancestor's childChanged
// watchers in turn — matching the reference's notifyChange, which walks
// "all parents" rather than stopping at the first one that cares. The
// climb never runs for a tlog-excluded node: t.excludeTlog already
// reflects every ancestor's exclusion (it's inherited at creation time),
// so a node under a "_"-prefixed subtree stops here exactly where
// config_manager.cpp's `while (parent && !_excludeTlog)` would.
func (t *Topics) notifyChange(subKey string, reason Reasons) {
	for _, w := range t.filterWatchers(subKey, reason) {
		w := w
		t.publish(func() { w.cb(t, subKey, reason, nil, nil) })
	}
	if subKey != "" {
		for _, w := range t.filterWatchers("", ReasonChildChanged) {
			w := w
			t.publish(func() { w.cb(t, subKey, reason, nil, nil) })
		}
	}
	if t.excludeTlog {
		return
	}
	for parent := t.parent; parent != nil; parent = parent.parent {
		for _, w := range parent.filterWatchers("", ReasonChildChanged) {
			w := w
			parent.publish(func() { w.cb(t, subKey, reason, nil, nil) })
		}
	}
}

// removeChild drops name from the child set and notifies watchers of the
// removal; it does not recursively tear down the removed subtree's own
// watchers since nothing else holds a reference to it afterward.
func (t *Topics) removeChild(name string) {
	t.mu.Lock()
	delete(t.children, foldKey(name))
	t.mu.Unlock()
	t.notifyChange(name, ReasonChildRemoved)
}

// UpdateFromMap writes every key in m into this node: nested *value.Map
// values recurse into interior children under the same behavior,
// everything else becomes (or
// updates) a leaf Topic with the current time as its write timestamp.
// Under MergeReplace, children present in this node but absent from m are
// removed afterward.
func (t *Topics) UpdateFromMap(m *value.Map, behavior MergeBehavior) error {
	t.mu.RLock()
	toRemove := make(map[string]string, len(t.children))
	for _, n := range t.children {
		toRemove[foldKey(n.Name())] = n.Name()
	}
	t.mu.RUnlock()

	now := Now()
	var updateErr error
	m.Range(func(key string, v any) bool {
		delete(toRemove, foldKey(key))
		if err := t.updateChild(key, v, now, behavior); err != nil {
			updateErr = err
			return false
		}
		return true
	})
	if updateErr != nil {
		return updateErr
	}

	if behavior == MergeReplace {
		for folded := range toRemove {
			t.mu.RLock()
			n, ok := t.children[folded]
			t.mu.RUnlock()
			if ok {
				t.removeChild(n.Name())
			}
		}
	}
	return nil
}

func (t *Topics) updateChild(name string, v any, now Timestamp, behavior MergeBehavior) error {
	if nested, ok := v.(*value.Map); ok {
		child := t.CreateInteriorChild(name)
		if child == nil {
			return invalidPath(name)
		}
		return child.UpdateFromMap(nested, behavior)
	}
	leaf := t.CreateTopic(name)
	if leaf == nil {
		return invalidPath(name)
	}
	boxed, ok := v.(value.Boxed)
	if !ok {
		boxed = value.Box(v)
	}
	leaf.WithNewerValue(now, boxed, true, true)
	return nil
}
