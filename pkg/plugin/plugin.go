// Package plugin defines the capability interface modules implement and
// the callback-data layouts the core hands them during dispatch. A
// plugin here is a Go value satisfying Module, not a dynamically loaded
// shared object — the C ABI trampolines that would load one are an
// explicit non-goal (see SPEC_FULL.md §5, Design Notes §9). See
// SPEC_FULL.md §4.9.
package plugin

import (
	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/scope"
	"github.com/edgekernel/core/pkg/value"
)

// Phase identifies one step of a module's lifecycle. The core invokes a
// module's Invoke once per phase, in this order, aborting the remaining
// phases for that module if one returns an error.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseDiscover  Phase = "discover"
	PhaseStart     Phase = "start"
	PhaseRun       Phase = "run"
	PhaseTerminate Phase = "terminate"
)

// Module is the capability interface every plugin implements. data carries
// whatever phase-specific payload the core passes in (nil for phases that
// take none).
type Module interface {
	Invoke(ctx *scope.ExecContext, phase Phase, data value.Container) error
}

// TopicCallbackData is the layout passed to a callback registered for
// topic delivery. Field names mirror the ABI's little-endian packed
// struct; here the handles are plain handle.ID-compatible uint32s rather
// than a pointer into foreign memory.
type TopicCallbackData struct {
	TaskHandle   uint32
	TopicSymbol  uint32
	DataHandle   uint32
	ReturnHandle uint32
}

// LifecycleCallbackData is the layout passed to a callback registered for
// lifecycle phase notifications.
type LifecycleCallbackData struct {
	ModuleHandle uint32
	PhaseSymbol  uint32
	DataHandle   uint32
	RetHandled   uint32
}

// AsyncCallbackData carries no inputs; it marks a callback fired purely as
// a wakeup.
type AsyncCallbackData struct{}

// FutureCallbackData is passed when a registered future settles.
type FutureCallbackData struct {
	FutureHandle uint32
}

// ChannelListenCallbackData is passed when a channel listener fires.
type ChannelListenCallbackData struct {
	DataHandle uint32
}

// ChannelCloseCallbackData carries no inputs; it marks a channel's close.
type ChannelCloseCallbackData struct{}

// invokeTrapped calls mod.Invoke, converting a panic into a CallbackError
// the same way pkg/pubsub.dispatch and pkg/task's subtask runner trap a
// panicking callback rather than letting it escape into the caller's
// dispatch loop.
func invokeTrapped(mod Module, ctx *scope.ExecContext, phase Phase, data value.Container) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = coreerr.Newf(coreerr.CallbackError, "panic in module during phase %q: %v", phase, r)
		}
	}()
	return mod.Invoke(ctx, phase, data)
}
