package main

import (
	"fmt"

	"github.com/nvandessel/targetdist/internal/targetdist"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate targetdist configuration",
		Long: `Show or validate the effective configuration.

The configuration is read from --config, or from ~/.targetdist/config.yaml,
with TARGETDIST_* environment variables applied on top.

Examples:
  targetdist config show
  targetdist config validate --config wt.yaml`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the distribution it describes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			e, err := targetdist.New(cfg.Distribution)
			if err != nil {
				return fmt.Errorf("invalid distribution: %w", err)
			}
			defer e.Close()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":    "valid",
					"type":      e.Type(),
					"dimension": e.Dimension(),
					"dynamic":   e.Dynamic(),
					"plan":      e.Plan(targetdist.Primary),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %s (dynamic: %v)\n", e.Description(), e.Dynamic())
			return nil
		},
	}
}
