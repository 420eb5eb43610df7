package plugin

import (
	"sync"

	"github.com/edgekernel/core/pkg/log"
	"github.com/edgekernel/core/pkg/metrics"
	"github.com/edgekernel/core/pkg/scope"
	"github.com/edgekernel/core/pkg/value"
)

var phaseOrder = []Phase{PhaseBootstrap, PhaseDiscover, PhaseStart, PhaseRun, PhaseTerminate}

// Registry holds the set of loaded modules and drives them through the
// lifecycle phases in order. A module that returns an error from one
// phase is excluded from every phase after it, per spec: "returning a
// non-zero error kind aborts the phase for that module" — the failure is
// scoped to that module, not the whole fleet.
type Registry struct {
	mu      sync.Mutex
	modules []namedModule
	failed  map[string]error
}

type namedModule struct {
	name string
	mod  Module
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{failed: make(map[string]error)}
}

// Register adds mod under name, to be driven through every subsequent
// RunPhase call. Modules run in registration order within a phase.
func (r *Registry) Register(name string, mod Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, namedModule{name: name, mod: mod})
}

// RunPhase invokes phase on every registered module that has not
// previously failed, in registration order, and returns the per-module
// errors keyed by module name (omitting modules that succeeded).
func (r *Registry) RunPhase(ctx *scope.ExecContext, phase Phase, data value.Container) map[string]error {
	r.mu.Lock()
	mods := make([]namedModule, len(r.modules))
	copy(mods, r.modules)
	r.mu.Unlock()

	outcomes := make(map[string]error)
	for _, nm := range mods {
		r.mu.Lock()
		_, alreadyFailed := r.failed[nm.name]
		r.mu.Unlock()
		if alreadyFailed {
			continue
		}

		timer := metrics.NewTimer()
		err := invokeTrapped(nm.mod, ctx, phase, data)
		timer.ObserveDurationVec(metrics.PluginInvocationDuration, string(phase))
		outcome := "ok"
		if err != nil {
			outcome = "error"
			outcomes[nm.name] = err
			r.mu.Lock()
			r.failed[nm.name] = err
			r.mu.Unlock()
			log.WithModule(nm.name).Error().Err(err).Str("phase", string(phase)).Msg("module lifecycle phase failed")
		}
		metrics.PluginInvocationsTotal.WithLabelValues(string(phase), outcome).Inc()
	}
	return outcomes
}

// RunLifecycle runs every phase in order (bootstrap, discover, start,
// run, terminate), stopping early only in the sense that a failed
// module drops out of later phases; it returns the union of every
// phase's failures, last write wins per module.
func (r *Registry) RunLifecycle(ctx *scope.ExecContext, data value.Container) map[string]error {
	all := make(map[string]error)
	for _, phase := range phaseOrder {
		for name, err := range r.RunPhase(ctx, phase, data) {
			all[name] = err
		}
	}
	return all
}
