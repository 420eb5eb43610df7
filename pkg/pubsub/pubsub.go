// Package pubsub implements the kernel's local topic bus: listeners
// register per-topic and are invoked in LIFO order (the most recent
// subscriber sees a call first), with each invocation's outcome delivered
// through a future.Future rather than a bare error return. See
// SPEC_FULL.md §4.6.
package pubsub

import (
	"sync"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/future"
	"github.com/edgekernel/core/pkg/handle"
	"github.com/edgekernel/core/pkg/log"
	"github.com/edgekernel/core/pkg/metrics"
	"github.com/edgekernel/core/pkg/scope"
	"github.com/edgekernel/core/pkg/value"
)

// ListenerFunc handles one call on a topic, returning a result value (or
// an error to fail the caller's future).
type ListenerFunc func(ctx *scope.ExecContext, topic string, data value.Container) (any, error)

// Subscription is the handle-anchored token returned by Bus.Subscribe.
// Releasing the handle root it was created under (e.g. on plugin unload)
// does not automatically unsubscribe it — call Bus.Unsubscribe, mirroring
// how pkg/config.Watcher must be removed explicitly rather than relying on
// handle lifetime (neither has a C++-style weak-reference equivalent).
type Subscription struct {
	id    handle.ID
	topic string
	cb    ListenerFunc
}

// Bus dispatches calls to per-topic listener lists. Per Design Notes §9,
// this is an explicit object a caller owns (typically one field of
// pkg/engine.Context) rather than a package-level singleton — spec.md's
// free-function shorthand (Subscribe/CallTopicFirst/CallTopicAll) is
// rendered here as methods on *Bus for that reason.
type Bus struct {
	table *handle.Table

	mu        sync.RWMutex
	listeners map[string][]*Subscription
}

// NewBus creates an empty bus backed by table, the same handle table used
// to anchor every other cross-plugin object.
func NewBus(table *handle.Table) *Bus {
	return &Bus{table: table, listeners: make(map[string][]*Subscription)}
}

// Subscribe registers cb on topic, anchored to root, and returns the
// subscription token. New subscribers are delivered to before older ones
// (LIFO).
func (b *Bus) Subscribe(root *handle.Root, topic string, cb ListenerFunc) *Subscription {
	sub := &Subscription{topic: topic, cb: cb}
	sub.id = b.table.Create(sub, root)

	b.mu.Lock()
	b.listeners[topic] = append(b.listeners[topic], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from its topic and releases its handle under
// root.
func (b *Bus) Unsubscribe(root *handle.Root, sub *Subscription) {
	b.table.Release(sub.id, root)

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.listeners[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// subscribersLIFO returns topic's subscribers newest-first.
func (b *Bus) subscribersLIFO(topic string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.listeners[topic]
	out := make([]*Subscription, len(subs))
	for i, s := range subs {
		out[len(subs)-1-i] = s
	}
	return out
}

// dispatch invokes sub.cb, converting a panic to a CallbackError (the Go
// rendering of the reference implementation's api_error_trap) and settling
// p with whichever of (value, error) results.
func dispatch(p *future.Promise, sub *Subscription, ctx *scope.ExecContext, topic string, data value.Container) {
	timer := metrics.NewTimer()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			log.WithTopic(topic).Error().Interface("recovered", r).Msg("listener panicked")
			_ = p.SetError(coreerr.Newf(coreerr.CallbackError, "panic in listener for topic %q: %v", topic, r))
		}
		metrics.PubSubDispatchLatency.WithLabelValues(topic).Observe(timer.Duration().Seconds())
		metrics.PubSubCallsTotal.WithLabelValues(outcome).Inc()
	}()
	result, err := sub.cb(ctx, topic, data)
	if err != nil {
		outcome = "error"
		_ = p.SetError(err)
		return
	}
	_ = p.SetValue(result)
}

// CallTopicFirst delivers to only the most recently subscribed listener on
// topic. If topic has no subscribers, the returned future fails with
// coreerr.NoSubscriberError.
func (b *Bus) CallTopicFirst(ctx *scope.ExecContext, topic string, data value.Container) *future.Future {
	subs := b.subscribersLIFO(topic)
	p := future.NewPromise()
	if len(subs) == 0 {
		_ = p.SetError(coreerr.Newf(coreerr.NoSubscriberError, "no subscriber for topic %q", topic))
		return p.Future()
	}
	dispatch(p, subs[0], ctx, topic, data)
	return p.Future()
}

// CallTopicAll delivers to every subscriber on topic, LIFO, each through
// its own future. An empty topic yields an empty (not nil-erroring) slice.
func (b *Bus) CallTopicAll(ctx *scope.ExecContext, topic string, data value.Container) []*future.Future {
	subs := b.subscribersLIFO(topic)
	futures := make([]*future.Future, len(subs))
	for i, s := range subs {
		p := future.NewPromise()
		dispatch(p, s, ctx, topic, data)
		futures[i] = p.Future()
	}
	return futures
}
