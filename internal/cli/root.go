// Package cli implements the claimctl command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/claims/internal/bootstrap"
	"github.com/liamcoop/claims/internal/config"
	"github.com/liamcoop/claims/internal/logger"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

// Output formats
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

type options struct {
	cfgFile string
	output  string
	verbose bool
}

// NewRootCmd builds the claimctl command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "claimctl",
		Short: "claimctl - offline insurance claim processing",
		Long: `claimctl runs the claim pipeline against local documents:
classification into document types, field extraction, and an advisory
liability evaluation under a named policy.

Results are advisory. Every payout recommendation needs human review.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			switch opts.output {
			case OutputJSON, OutputYAML:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (use %s or %s)", opts.output, OutputJSON, OutputYAML)
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default: ./claims.yaml or $HOME/.claims/claims.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", OutputJSON, "output format: json or yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline activity to stderr")

	cmd.AddCommand(
		newVersionCmd(),
		newClassifyCmd(opts),
		newExtractCmd(opts),
		newEvaluateCmd(opts),
		newProcessCmd(opts),
		newBatchCmd(opts),
		newPoliciesCmd(opts),
		newRulesCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claimctl %s\n", Version)
		},
	}
}

// loadConfig reads configuration; logging stays at WARN unless --verbose
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if !o.verbose {
		cfg.Log.Level = "WARN"
	}
	return cfg, nil
}

// service assembles the pipeline; callers must Close it
func (o *options) service(ctx context.Context) (*bootstrap.Service, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg)
}

// print writes v to the command's stdout in the selected format
func (o *options) print(cmd *cobra.Command, v any) error {
	w := cmd.OutOrStdout()
	if o.output == OutputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("error marshaling output: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("error marshaling output: %w", err)
	}
	return nil
}
