package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wapi-nlq/internal/app"
	"wapi-nlq/internal/common/config"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/nlq/executor"
)

type rootOptions struct {
	configFile string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "nlqctl",
		Short: "Operator tool for the WAPI natural-language query pipeline",
		Long: `nlqctl runs natural-language queries against an Infoblox grid from the
command line, exports the active intent catalog and checks grid connectivity.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./configs/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log pipeline stages to stderr")

	root.AddCommand(newQueryCmd(opts), newCatalogCmd(opts), newPingCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFromFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	level := "warn"
	if o.debug {
		level = "debug"
	}
	return cfg, logger.NewStructured(level, "console"), nil
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		audit     bool
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one query through the pipeline and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Pipeline.ConfidenceThreshold = threshold
			}

			a, err := app.Build(cmd.Context(), cfg, log, app.Options{DisableAudit: !audit})
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Pipeline.Process(cmd.Context(), strings.Join(args, " "))
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&audit, "audit", false, "append the result to the configured audit sinks")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "override pipeline.confidence_threshold")
	return cmd
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the grid answers with the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), executor.PingTimeout+time.Second)
			defer cancel()

			exec := executor.New(nlqhttp.NewClient(executor.PingTimeout), log)
			res := exec.Ping(ctx, cfg.Grid)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", executor.GridHost(cfg.Grid), res.Message)
			if !res.OK {
				return fmt.Errorf("grid check failed")
			}
			return nil
		},
	}
}
