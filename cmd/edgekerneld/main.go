package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgekernel/core/pkg/engine"
	"github.com/edgekernel/core/pkg/log"
	"github.com/edgekernel/core/pkg/metrics"
	"github.com/edgekernel/core/pkg/value"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "edgekerneld",
	Short: "edgekernel core process",
	Long: `edgekerneld hosts the core runtime: symbol table, handle table,
configuration tree, pub/sub bus, task manager, and plugin registry,
wired together as a single explicit Context.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"edgekerneld version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(configCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the core runtime",
	Long: `Start brings up a Context (handle table, config tree, pub/sub
bus, task manager, plugin registry), optionally bootstraps it from a
YAML file and a persisted transaction log, runs every registered
plugin through its lifecycle phases, and serves metrics/health until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		tlogPath, _ := cmd.Flags().GetString("data-dir")
		bootstrapFile, _ := cmd.Flags().GetString("bootstrap")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		var tlog string
		if tlogPath != "" {
			tlog = tlogPath + "/tlog.db"
			if err := os.MkdirAll(tlogPath, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
		}

		ctx, err := engine.New(engine.Options{
			Workers:            workers,
			TransactionLogPath: tlog,
		})
		if err != nil {
			return fmt.Errorf("creating engine context: %w", err)
		}
		defer ctx.Shutdown()

		var bootstrapCfg *value.Map
		if bootstrapFile != "" {
			m, err := loadBootstrapFile(bootstrapFile)
			if err != nil {
				return fmt.Errorf("loading bootstrap file: %w", err)
			}
			bootstrapCfg = m
		}
		if err := ctx.Bootstrap(bootstrapCfg); err != nil {
			return fmt.Errorf("bootstrapping config: %w", err)
		}
		log.Logger.Info().Msg("config bootstrap complete")

		metrics.RegisterComponent("config", true, "ready")
		metrics.RegisterComponent("task", true, "ready")
		metrics.RegisterComponent("plugin", true, "ready")

		failures := ctx.Plugins.RunLifecycle(ctx.NewExecContext(), nil)
		for name, err := range failures {
			log.Logger.Warn().Str("module", name).Err(err).Msg("plugin lifecycle failure")
		}

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

		log.Logger.Info().Msg("edgekerneld running, press Ctrl+C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Logger.Info().Msg("shutting down")
		return nil
	},
}

func init() {
	startCmd.Flags().Int("workers", 0, "Task manager worker pool size (0 uses the default)")
	startCmd.Flags().String("data-dir", "", "Directory holding the configuration transaction log (empty disables persistence)")
	startCmd.Flags().String("bootstrap", "", "YAML file merged into the config tree at startup")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP endpoints")
}
