// Package scope anchors handles to modules and call frames so that plugin
// shutdown (or call-frame return) reclaims everything created within it.
package scope

import (
	"github.com/edgekernel/core/pkg/handle"
)

// ModuleScope is the long-lived scope associated with a loaded plugin. Every
// handle the plugin creates without an explicit inner call scope anchors
// here; releasing it (on plugin unload) reclaims everything the plugin ever
// created.
type ModuleScope struct {
	Name string
	root *handle.Root
}

// NewModuleScope creates a module scope backed by a fresh handle root.
func NewModuleScope(table *handle.Table, name string) *ModuleScope {
	return &ModuleScope{Name: name, root: table.CreateRoot()}
}

func (m *ModuleScope) Root() *handle.Root { return m.root }

// Release reclaims every handle the plugin created under this scope.
func (m *ModuleScope) Release(table *handle.Table) {
	table.ReleaseRoot(m.root)
}

// CallScope is a stack-discipline scope tied to one call frame. Handles
// created while it is the innermost call scope on its ExecContext's stack
// anchor here and are reclaimed when it pops.
type CallScope struct {
	root *handle.Root
}

func (c *CallScope) Root() *handle.Root { return c.root }

// ExecContext is the explicit, per-call context threaded through every
// plugin/callback invocation — the idiomatic Go rendering of the reference
// implementation's thread-local "current context" chain (see
// SPEC_FULL.md §4.4 / Design Notes). It carries the current module scope,
// the call-scope stack, and the last error this logical thread of execution
// raised. It does not record which task, if any, is currently running.
type ExecContext struct {
	table     *handle.Table
	Module    *ModuleScope
	callStack []*CallScope
	LastError error
}

// NewExecContext creates a context rooted at module, with an empty call
// stack.
func NewExecContext(table *handle.Table, module *ModuleScope) *ExecContext {
	return &ExecContext{table: table, Module: module}
}

// PushCallScope creates and pushes a new call scope, returning it so the
// caller can pop it (typically via defer) when the frame returns.
func (c *ExecContext) PushCallScope() *CallScope {
	cs := &CallScope{root: c.table.CreateRoot()}
	c.callStack = append(c.callStack, cs)
	return cs
}

// PopCallScope pops and releases the innermost call scope. It is a
// programmer error to pop when cs is not the innermost scope; PopCallScope
// pops whatever scope is on top regardless, matching stack discipline.
func (c *ExecContext) PopCallScope() {
	n := len(c.callStack)
	if n == 0 {
		return
	}
	top := c.callStack[n-1]
	c.callStack = c.callStack[:n-1]
	c.table.ReleaseRoot(top.root)
}

// CurrentRoot returns the innermost call scope's root if one is pushed,
// otherwise the module scope's root — this is where new handles anchor by
// default.
func (c *ExecContext) CurrentRoot() *handle.Root {
	if n := len(c.callStack); n > 0 {
		return c.callStack[n-1].root
	}
	return c.Module.Root()
}

// WithTempRoot pushes a call scope, runs fn, and pops it on return — even if
// fn panics — so handles fn creates before returning are released
// automatically, matching the "temp root on plugin callback entry"
// behaviour from spec.md §4.4.
func (c *ExecContext) WithTempRoot(fn func()) {
	c.PushCallScope()
	defer c.PopCallScope()
	fn()
}
