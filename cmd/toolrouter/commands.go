package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolrouter/config"
	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/transport"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var transportFlag, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP router over stdio, SSE or streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mutate := func(cfg *config.Config) {
				if transportFlag != "" {
					cfg.Server.Transport = transportFlag
				}
				if addr != "" {
					cfg.Server.Addr = addr
				}
			}
			return root.withApp(cmd.Context(), mutate, func(a *app) error {
				if err := a.reindex(cmd.Context()); err != nil {
					a.logger.Warn("operation index not rebuilt", "error", err)
				}
				r, err := a.router()
				if err != nil {
					return err
				}
				if a.cfg.Server.Transport == config.TransportStdio {
					return r.ServeStdio(cmd.Context())
				}
				return r.ListenAndServe(cmd.Context(), a.cfg.Server.Addr)
			})
		},
	}
	cmd.Flags().StringVar(&transportFlag, "transport", "", "stdio, sse or http (overrides config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for sse and http (overrides config)")
	return cmd
}

func newRegisterCmd(root *rootOptions) *cobra.Command {
	var d registry.Descriptor
	var toolsFile string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register or replace a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if toolsFile != "" {
				raw, err := os.ReadFile(toolsFile)
				if err != nil {
					return fmt.Errorf("read tools file: %w", err)
				}
				if !json.Valid(raw) {
					return fmt.Errorf("tools file %s is not valid JSON", toolsFile)
				}
				d.Operations = raw
			}
			return root.withApp(cmd.Context(), nil, func(a *app) error {
				if err := a.registry.Register(cmd.Context(), d); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"status":  "success",
					"message": fmt.Sprintf("Server '%s' registered.", d.Identity),
				})
			})
		},
	}
	cmd.Flags().StringVar(&d.Identity, "name", "", "unique service name")
	cmd.Flags().StringVar(&d.Description, "description", "", "what the service does")
	cmd.Flags().StringVar(&d.Endpoint, "endpoint", "", "service URL")
	cmd.Flags().StringVar(&toolsFile, "tools-file", "", "JSON file holding the service's tool list")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var topK int
	var minScore float64
	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Find services by similarity to a query; no query samples the registry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return root.withApp(cmd.Context(), nil, func(a *app) error {
				results, err := a.registry.SearchBySimilarity(cmd.Context(), query, topK)
				if err != nil {
					return err
				}
				if minScore > 0 {
					results = results.FilterByMinScore(minScore)
				}
				if results == nil {
					results = registry.Results{}
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "number of services to return")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results scoring below this similarity")
	return cmd
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NAME",
		Short: "Print the registered descriptor of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd.Context(), nil, func(a *app) error {
				res, err := a.registry.Resolve(cmd.Context(), args[0])
				if registry.IsNotFound(err) {
					return fmt.Errorf("service %q is not registered: %w", args[0], err)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res.Descriptor)
			})
		},
	}
}

func newInvokeCmd(root *rootOptions) *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "invoke NAME OPERATION",
		Short: "Invoke an operation on a registered service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]any
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &params); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}
			return root.withApp(cmd.Context(), nil, func(a *app) error {
				res := a.dispatcher.Invoke(cmd.Context(), args[0], args[1], params)
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.OK() {
					return fmt.Errorf("invoke %s/%s failed", args[0], args[1])
				}
				if err := remoteFailure(res.Value); err != nil {
					return fmt.Errorf("invoke %s/%s: %w", args[0], args[1], err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "operation arguments as a JSON object")
	return cmd
}

// remoteFailure reports errors the remote service returned as data: a
// JSON-RPC error envelope or a tool result flagged isError.
func remoteFailure(v any) error {
	if rpcErr := transport.RemoteError(v); rpcErr != nil {
		return rpcErr
	}
	if m, ok := v.(map[string]any); ok && m["isError"] == true {
		return errors.New("tool reported an error")
	}
	return nil
}
