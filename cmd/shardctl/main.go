// Command shardctl sends commands through the sharding client and inspects
// the topology it builds.
//
//	shardctl --config topology.yaml exec set user:1 alice
//	shardctl exec get user:1
//	shardctl locate user:1 user:2
//	shardctl ring
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shardkv/shardkv/pkg/client"
	"github.com/shardkv/shardkv/pkg/config"
)

var (
	configFile string
	logLevel   string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "shardctl",
		Short:         "Command-line front end for the sharding client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Topology file (.yaml, .yml or .toml); SHARDKV_SERVERS is used when empty")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-command timeout")

	root.AddCommand(newExecCommand(), newLocateCommand(), newInfoCommand(), newRingCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.ClientConfig, error) {
	var (
		cfg *config.ClientConfig
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.LoadClientConfig()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// withClient builds a client from the configured topology, runs fn and
// closes the client.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := client.NewFromConfig(cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Error closing client", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func newExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec verb [args...]",
		Short: "Send one raw command and print the response blocks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				cmdArgs := make([]interface{}, len(args)-1)
				for i, a := range args[1:] {
					cmdArgs[i] = a
				}
				resp, err := c.Execute(ctx, args[0], cmdArgs...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, resp.Status)
				for _, b := range resp.Blocks {
					fmt.Fprintln(out, string(b))
				}
				return nil
			})
		},
	}
}

func newLocateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "locate key [key...]",
		Short: "Print the cluster that owns each key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(_ context.Context, c *client.Client) error {
				for _, key := range args {
					id, err := c.Locate(key)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, id)
				}
				return nil
			})
		},
	}
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print server information from the default cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				info, err := c.Info(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
}

func newRingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ring",
		Short: "Print the hash ring and the clusters behind it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(_ context.Context, c *client.Client) error {
				out := cmd.OutOrStdout()
				stats := c.RingStats()
				keys := make([]string, 0, len(stats))
				for k := range stats {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "%s: %v\n", k, stats[k])
				}
				for _, cl := range c.Clusters() {
					addrs := make([]string, 0, len(cl.Servers()))
					for _, srv := range cl.Servers() {
						addrs = append(addrs, srv.Address())
					}
					fmt.Fprintf(out, "cluster %s weight=%d servers=%s\n", cl.ID(), cl.Weight(), strings.Join(addrs, ","))
				}
				return nil
			})
		},
	}
}
