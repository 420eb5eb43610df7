package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgekernel/core/pkg/config"
	"github.com/edgekernel/core/pkg/engine"
	"github.com/edgekernel/core/pkg/value"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or modify a config tree's transaction log",
}

var configGetCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Print the value stored at PATH in the transaction log",
	Long: `PATH is dot-separated, e.g. "worker.cpu_limit". get replays the
transaction log at --data-dir into a fresh config tree and looks up
PATH in it — it does not talk to a running edgekerneld.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := openConfigContext(cmd)
		if err != nil {
			return err
		}
		defer ctx.Shutdown()

		path := strings.Split(args[0], ".")
		leaf := ctx.Config.Lookup(path)
		if leaf == nil {
			return fmt.Errorf("no value at %q", args[0])
		}
		fmt.Println(scalarString(leaf.Value()))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set PATH VALUE",
	Short: "Write VALUE at PATH into the transaction log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := openConfigContext(cmd)
		if err != nil {
			return err
		}
		defer ctx.Shutdown()

		path := strings.Split(args[0], ".")
		node := ctx.Config
		for _, seg := range path[:len(path)-1] {
			node = node.CreateInteriorChild(seg)
			if node == nil {
				return fmt.Errorf("%q conflicts with an existing leaf", args[0])
			}
		}
		leaf := node.CreateTopic(path[len(path)-1])
		if leaf == nil {
			return fmt.Errorf("%q conflicts with an existing interior node", args[0])
		}

		leaf.WithNewerValue(config.Now(), parseScalar(args[1]), true, true)
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	for _, c := range []*cobra.Command{configGetCmd, configSetCmd} {
		c.Flags().String("data-dir", "./edgekernel-data", "Directory holding the configuration transaction log")
	}
}

func openConfigContext(cmd *cobra.Command) (*engine.Context, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	ctx, err := engine.New(engine.Options{TransactionLogPath: dataDir + "/tlog.db"})
	if err != nil {
		return nil, fmt.Errorf("opening transaction log: %w", err)
	}
	if err := ctx.Bootstrap(nil); err != nil {
		ctx.Shutdown()
		return nil, fmt.Errorf("replaying transaction log: %w", err)
	}
	return ctx, nil
}

func scalarString(b value.Boxed) string {
	switch b.Kind() {
	case value.ScalarBool:
		return strconv.FormatBool(b.UnboxBool())
	case value.ScalarInt64:
		return strconv.FormatInt(b.UnboxInt64(), 10)
	case value.ScalarFloat64:
		return strconv.FormatFloat(b.UnboxFloat64(), 'g', -1, 64)
	default:
		return b.UnboxString()
	}
}

// parseScalar guesses VALUE's type from its literal form: int, then
// float, then bool, falling back to a plain string.
func parseScalar(s string) value.Boxed {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Box(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Box(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return value.Box(b)
	}
	return value.Box(s)
}
