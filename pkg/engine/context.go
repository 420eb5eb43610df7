// Package engine wires the kernel's subsystems together into one explicit
// object created once at process start, rather than as package-level
// singletons — symbols, handles, configuration, pub/sub, tasks, and
// plugins are all fields of Context. See SPEC_FULL.md §0, §3 item 5.
package engine

import (
	"os"
	"time"

	"github.com/edgekernel/core/pkg/config"
	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/handle"
	"github.com/edgekernel/core/pkg/log"
	"github.com/edgekernel/core/pkg/plugin"
	"github.com/edgekernel/core/pkg/pubsub"
	"github.com/edgekernel/core/pkg/scope"
	"github.com/edgekernel/core/pkg/symtab"
	"github.com/edgekernel/core/pkg/task"
	"github.com/edgekernel/core/pkg/value"
)

// Options configures a new Context.
type Options struct {
	// Workers is the task manager's pool size; zero uses its default (5).
	Workers int
	// TransactionLogPath, if non-empty, backs the config tree with a
	// bbolt-persisted transaction log replayed at startup.
	TransactionLogPath string
}

// Context owns the process-lifetime instance of every core subsystem.
// Callers reach it explicitly rather than through package-level state,
// matching how scope.ExecContext is threaded through calls instead of
// relying on a thread-local.
type Context struct {
	Handles *handle.Table
	Config  *config.Topics
	Bus     *pubsub.Bus
	Tasks   *task.Manager
	Plugins *plugin.Registry

	syms      *symtab.Table
	module    *scope.ModuleScope
	startTime time.Time
	tlog      *config.TransactionLog
}

// New creates a Context with a fresh handle table, config tree, pub/sub
// bus, task manager, and plugin registry, wiring each from the one built
// before it exactly as a bootstrap sequence would.
func New(opts Options) (*Context, error) {
	handles := handle.New()

	var tlog *config.TransactionLog
	var root *config.Topics
	if opts.TransactionLogPath != "" {
		var err error
		tlog, err = config.OpenTransactionLog(opts.TransactionLogPath)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.InvalidConfigPathError, "opening transaction log", err)
		}
		root = config.NewRootWithLog(tlog)
		log.WithComponent("engine").Info().Str("path", opts.TransactionLogPath).Msg("transaction log opened")
	} else {
		root = config.NewRoot()
	}

	ctx := &Context{
		Handles:   handles,
		Config:    root,
		Bus:       pubsub.NewBus(handles),
		Tasks:     task.NewManager(opts.Workers),
		Plugins:   plugin.NewRegistry(),
		syms:      symtab.New(),
		module:    scope.NewModuleScope(handles, "engine"),
		startTime: time.Now(),
		tlog:      tlog,
	}
	return ctx, nil
}

// Bootstrap replays any persisted transaction log entries into the config
// tree, then merges cfg on top under config.MergeKeep (bootstrap files
// supplement, never prune, what replay already restored).
func (c *Context) Bootstrap(cfg *value.Map) error {
	if c.tlog != nil {
		if err := c.tlog.Replay(c.replayEntry); err != nil {
			return coreerr.Wrap(coreerr.InvalidConfigPathError, "replaying transaction log", err)
		}
	}
	if cfg == nil {
		return nil
	}
	return c.Config.UpdateFromMap(cfg, config.MergeKeep)
}

func (c *Context) replayEntry(path []string, ts config.Timestamp, v any) error {
	if len(path) == 0 {
		return nil
	}
	node := c.Config
	for _, seg := range path[:len(path)-1] {
		node = node.CreateInteriorChild(seg)
		if node == nil {
			return coreerr.Newf(coreerr.InvalidConfigPathError, "replay path %v conflicts with an existing leaf", path)
		}
	}
	leaf := node.CreateTopic(path[len(path)-1])
	if leaf == nil {
		return coreerr.Newf(coreerr.InvalidConfigPathError, "replay path %v conflicts with an existing interior node", path)
	}
	leaf.WithNewerValue(ts, value.Box(v), true, true)
	return nil
}

// SystemProperties returns a read-only snapshot of process metadata —
// uptime and pid — as a value.Container, matching the original source's
// sys_properties facility. Plugins read it; nothing writes to it.
func (c *Context) SystemProperties() value.Container {
	m := value.NewMap(c.syms)
	_ = m.Put("pid", value.Box(int64(os.Getpid())))
	_ = m.Put("uptime_seconds", value.Box(time.Since(c.startTime).Seconds()))
	return m
}

// NewExecContext creates a fresh ExecContext rooted at the engine's own
// module scope, for one top-level call into the core (e.g. a CLI command
// or an inbound RPC, once those exist).
func (c *Context) NewExecContext() *scope.ExecContext {
	return scope.NewExecContext(c.Handles, c.module)
}

// Shutdown stops the task manager, the config tree's publish queue, and
// closes the transaction log, in that order so nothing is still writing
// to the log when it closes.
func (c *Context) Shutdown() {
	c.Tasks.Shutdown()
	c.Config.Close()
	if c.tlog != nil {
		_ = c.tlog.Close()
	}
	c.module.Release(c.Handles)
	log.Info("engine shutdown complete")
}
