package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/scope"
	"github.com/edgekernel/core/pkg/value"
)

type recordingModule struct {
	seen []Phase
	fail Phase
}

func (m *recordingModule) Invoke(ctx *scope.ExecContext, phase Phase, data value.Container) error {
	m.seen = append(m.seen, phase)
	if phase == m.fail {
		return coreerr.New(coreerr.CallbackError, "boom")
	}
	return nil
}

func TestRunLifecycleRunsPhasesInOrder(t *testing.T) {
	r := NewRegistry()
	mod := &recordingModule{}
	r.Register("one", mod)

	failures := r.RunLifecycle(nil, nil)
	assert.Empty(t, failures)
	assert.Equal(t, []Phase{PhaseBootstrap, PhaseDiscover, PhaseStart, PhaseRun, PhaseTerminate}, mod.seen)
}

func TestFailedModuleExcludedFromLaterPhases(t *testing.T) {
	r := NewRegistry()
	mod := &recordingModule{fail: PhaseDiscover}
	r.Register("flaky", mod)

	failures := r.RunLifecycle(nil, nil)
	require.Contains(t, failures, "flaky")
	assert.Equal(t, []Phase{PhaseBootstrap, PhaseDiscover}, mod.seen)
}

func TestOneModuleFailingDoesNotStopOthers(t *testing.T) {
	r := NewRegistry()
	bad := &recordingModule{fail: PhaseBootstrap}
	good := &recordingModule{}
	r.Register("bad", bad)
	r.Register("good", good)

	failures := r.RunLifecycle(nil, nil)
	require.Contains(t, failures, "bad")
	assert.NotContains(t, failures, "good")
	assert.Equal(t, []Phase{PhaseBootstrap}, bad.seen)
	assert.Len(t, good.seen, 5)
}

type panickingModule struct{}

func (panickingModule) Invoke(ctx *scope.ExecContext, phase Phase, data value.Container) error {
	panic("kaboom")
}

func TestPanicInModuleBecomesCallbackError(t *testing.T) {
	r := NewRegistry()
	r.Register("panicky", panickingModule{})

	failures := r.RunPhase(nil, PhaseBootstrap, nil)
	require.Contains(t, failures, "panicky")
	assert.True(t, coreerr.As(failures["panicky"], coreerr.CallbackError))
}
