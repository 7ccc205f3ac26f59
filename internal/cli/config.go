package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/claims/catalog"
	"github.com/liamcoop/claims/internal/config"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage claimctl configuration",
		Long: `Manage claimctl configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. Environment variables (CLAIMS_*, DATABASE_URL, LOG_LEVEL), including a .env file
2. Config file (--config, ./claims.yaml or ~/.claims/claims.yaml)
3. Defaults`,
	}

	cmd.AddCommand(newConfigShowCmd(opts), newConfigInitCmd(), newCatalogExportCmd(opts))
	return cmd
}

func newConfigShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}

			if cfg.File != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n", cfg.File)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "No configuration file found (using defaults)\n")
			}
			return opts.print(cmd, cfg)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Long:  `Create a configuration file (default ./claims.yaml) holding every option at its default value.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			path := "claims.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, statErr := os.Stat(path); statErr == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite it", path)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("error creating config directory: %w", err)
				}
			}

			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("error marshaling config: %w", err)
			}

			header := "# claimctl configuration\n" +
				"# Environment variables CLAIMS_<SECTION>_<KEY> override these values,\n" +
				"# e.g. CLAIMS_DATABASE_DRIVER=sqlite CLAIMS_DATABASE_URL=claims.db\n\n"
			if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
				return fmt.Errorf("error writing config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// newCatalogExportCmd prints the active catalog so it can be edited and
// loaded back with catalog.file
func newCatalogExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the active keyword, field and policy catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			cat := catalog.Default()
			if cfg.Catalog.File != "" {
				if cat, err = catalog.Load(cfg.Catalog.File); err != nil {
					return err
				}
			}

			data, err := cat.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
