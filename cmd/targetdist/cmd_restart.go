package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the target distribution from a stored grid",
		Long: `Load a stored target distribution into a freshly configured engine
and save it together with its recomputed log grid. The stored grid must
have the configured number of cells. With --iterations the restarted
engine is updated that many times before saving.

Example:
  targetdist restart --config wt.yaml --from targetdist.3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			iterations, _ := cmd.Flags().GetInt("iterations")
			fesKey, _ := cmd.Flags().GetString("fes")
			if from == "" {
				return fmt.Errorf("--from is required")
			}
			if iterations < 0 {
				return fmt.Errorf("--iterations must not be negative, got %d", iterations)
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

			if err := s.engine.RestartFrom(ctx, s.store, from); err != nil {
				return err
			}
			done, saved, err := s.run(ctx, iterations)
			if err != nil {
				return err
			}

			sum := s.summary(done, saved)
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"restarted_from": from,
					"summary":        sum,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restarted from %s\n", from)
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}

	cmd.Flags().String("from", "", "Store key of the grid to restart from")
	cmd.Flags().Int("iterations", 0, "Number of updates to run after the restart")
	cmd.Flags().String("fes", "", "Store key of the free energy grid")
	return cmd
}
