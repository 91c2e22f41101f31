package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolrouter/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
	stderr     io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "toolrouter",
		Short: "Discover MCP services by similarity and invoke their tools",
		Long: `toolrouter keeps a registry of MCP services indexed by the embedding of
their descriptions. It resolves a service by name, picks a transport from
the shape of its endpoint, and invokes one of its tools.

Examples:
  toolrouter register --name weather --description "weather by city" --endpoint http://localhost:8001/mcp
  toolrouter search "what is the weather in Paris"
  toolrouter invoke weather getWeather --args '{"city":"Paris"}'
  toolrouter serve --transport sse --addr :9000`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (default: built-in defaults and environment)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(
		newServeCmd(opts),
		newRegisterCmd(opts),
		newSearchCmd(opts),
		newResolveCmd(opts),
		newInvokeCmd(opts),
	)
	return cmd
}

// load reads the configuration and applies command-line overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		if _, err := config.ParseLevel(o.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// withApp loads the configuration, wires an app and runs fn with it.
func (o *rootOptions) withApp(ctx context.Context, mutate func(*config.Config), fn func(*app) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := cfg.Logging.NewLogger(o.stderr)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
