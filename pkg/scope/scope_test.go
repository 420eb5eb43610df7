package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekernel/core/pkg/handle"
)

func TestModuleScopeReleaseReclaimsHandles(t *testing.T) {
	table := handle.New()
	mod := NewModuleScope(table, "plugin-a")
	h := table.Create("obj", mod.Root())

	_, ok := table.Lookup(h)
	require.True(t, ok)

	mod.Release(table)
	_, ok = table.Lookup(h)
	assert.False(t, ok)
}

func TestCallScopePopReleasesOnlyItsHandles(t *testing.T) {
	table := handle.New()
	mod := NewModuleScope(table, "plugin-a")
	ctx := NewExecContext(table, mod)

	moduleHandle := table.Create("module-level", ctx.CurrentRoot())

	ctx.PushCallScope()
	frameHandle := table.Create("frame-level", ctx.CurrentRoot())

	ctx.PopCallScope()

	_, ok := table.Lookup(frameHandle)
	assert.False(t, ok, "call-scope handle should be reclaimed when the frame pops")

	_, ok = table.Lookup(moduleHandle)
	assert.True(t, ok, "module-scope handle should survive the frame pop")
}

func TestWithTempRootReleasesEvenOnPanic(t *testing.T) {
	table := handle.New()
	mod := NewModuleScope(table, "plugin-a")
	ctx := NewExecContext(table, mod)

	var h handle.ID
	func() {
		defer func() { recover() }()
		ctx.WithTempRoot(func() {
			h = table.Create("transient", ctx.CurrentRoot())
			panic("boom")
		})
	}()

	_, ok := table.Lookup(h)
	assert.False(t, ok)
}
