// Package main is the entry point for the meshpipe binary.
// It loads a declarative pipeline configuration and runs one-off fetch and
// store operations against it, which makes it useful for validating configs
// and exercising routes from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meshpipe/meshpipe/pkg/config"
	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/logging"
	"github.com/meshpipe/meshpipe/pkg/telemetry"
)

const defaultLogLevel = "info"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meshpipe",
		Short: "Type-directed data pipeline tool",
		Long: `Assembles a data pipeline from a YAML configuration and runs
operations against it.

Example:
  meshpipe validate -c pipeline.yaml
  meshpipe get user -c pipeline.yaml -q id=42`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRoutesCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())

	return rootCmd
}

type cliEnv struct {
	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

// setup loads the config, builds the logger, and starts telemetry export
// when the config enables it.
func setup(cmd *cobra.Command) (*cliEnv, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != defaultLogLevel {
		cfg.Logging.Level = logLevel
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: true,
	})
	slog.SetDefault(logger)

	env := &cliEnv{cfg: cfg, logger: logger}
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Environment: cfg.Telemetry.Environment,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up telemetry: %w", err)
		}
		env.shutdown = shutdown
	}
	return env, nil
}

func (e *cliEnv) close(ctx context.Context) {
	if e.shutdown != nil {
		if err := e.shutdown(ctx); err != nil {
			e.logger.Error("telemetry shutdown failed", "error", err)
		}
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and build the pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			p, err := env.cfg.Build(builtinRegistry(env.logger), env.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d elements, %d transformers\n",
				len(env.cfg.Pipeline.Elements), len(env.cfg.Pipeline.Transformers))
			_ = p
			return nil
		},
	}
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes <type>",
		Short: "Show the resolved read and write routes for a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			p, err := env.cfg.Build(builtinRegistry(env.logger), env.logger)
			if err != nil {
				return err
			}

			key := domain.Key(args[0])
			out := cmd.OutOrStdout()

			routes, err := p.Routes(key)
			if err != nil {
				fmt.Fprintf(out, "read:  %v\n", err)
			} else {
				for _, r := range routes {
					fmt.Fprintf(out, "read:  %s [%s] cost=%d\n", r.Source, r.Resident, r.Cost)
					for _, s := range r.Sinks {
						phase := "before"
						if s.AfterConversion {
							phase = "after"
						}
						fmt.Fprintf(out, "       -> %s [%s] cost=%d (%s)\n", s.Sink, s.Type, s.Cost, phase)
					}
				}
			}

			stores := p.StoreRoutes(key)
			if len(stores) == 0 {
				fmt.Fprintln(out, "write: (no-op)")
			}
			for _, s := range stores {
				fmt.Fprintf(out, "write: %s [%s] cost=%d\n", s.Sink, s.Type, s.Cost)
			}
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <type>",
		Short: "Fetch one item of the given type and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			p, err := env.cfg.Build(builtinRegistry(env.logger), env.logger)
			if err != nil {
				return err
			}

			pairs, err := cmd.Flags().GetStringArray("query")
			if err != nil {
				return fmt.Errorf("failed to get query flag: %w", err)
			}
			q, err := parseQuery(pairs)
			if err != nil {
				return err
			}

			item, err := p.Get(cmd.Context(), domain.Key(args[0]), q)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(item)
		},
	}
	cmd.Flags().StringArrayP("query", "q", nil, "Query key=value pair (repeatable)")
	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <type>",
		Short: "Store items of the given type read as JSON lines from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			p, err := env.cfg.Build(builtinRegistry(env.logger), env.logger)
			if err != nil {
				return err
			}

			path, err := cmd.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			in := cmd.InOrStdin()
			if path != "" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open items file: %w", err)
				}
				defer f.Close()
				in = f
			}

			key := domain.Key(args[0])
			dec := json.NewDecoder(in)
			count := 0
			for dec.More() {
				var item map[string]any
				if err := dec.Decode(&item); err != nil {
					return fmt.Errorf("failed to decode item %d: %w", count, err)
				}
				if err := p.Put(cmd.Context(), key, item); err != nil {
					return err
				}
				count++
			}
			env.logger.Info("stored items", "type", key, "count", count)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Path to a JSON lines file (default stdin)")
	return cmd
}

// parseQuery turns repeated key=value flags into a query. Values are kept as
// strings; element validators coerce named string types where needed.
func parseQuery(pairs []string) (domain.Query, error) {
	q := make(domain.Query, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query pair %q, want key=value", pair)
		}
		q[key] = value
	}
	return q, nil
}
