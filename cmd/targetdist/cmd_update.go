package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Compute the target distribution and save its grids",
		Long: `Build the configured distribution, run one or more updates and save
the target distribution grids to the configured store.

Dynamic distributions read their free energy from the grid file in the
config, or from a stored grid with --fes.

Examples:
  targetdist update --config wt.yaml
  targetdist update --config wt.yaml --iterations 5 --fes fes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			iterations, _ := cmd.Flags().GetInt("iterations")
			fesKey, _ := cmd.Flags().GetString("fes")
			if iterations < 1 {
				return fmt.Errorf("--iterations must be at least 1, got %d", iterations)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx, cfg, cmd.ErrOrStderr(), fesKey)
			if err != nil {
				return err
			}
			defer s.Close()

			done, saved, err := s.run(ctx, iterations)
			if err != nil {
				return err
			}

			sum := s.summary(done, saved)
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}

	cmd.Flags().Int("iterations", 1, "Number of updates to run")
	cmd.Flags().String("fes", "", "Store key of the free energy grid")
	return cmd
}
