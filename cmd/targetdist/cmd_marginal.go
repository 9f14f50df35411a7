package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/pathutil"
	"github.com/nvandessel/targetdist/internal/targetdist"
	"github.com/spf13/cobra"
)

func newMarginalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marginal",
		Short: "Marginalize a stored grid onto a subset of its axes",
		Long: `Integrate a stored grid over every axis not listed in --args and save
the result as targetdist_marginal_<args>. With --out the marginal is also
written as a grid text file inside the project root or ~/.targetdist.

Example:
  targetdist marginal --grid targetdist --args s1 --out marginal_s1.dat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("grid")
			keep, _ := cmd.Flags().GetStringSlice("args")
			out, _ := cmd.Flags().GetString("out")
			root, _ := cmd.Flags().GetString("root")
			if len(keep) == 0 {
				return fmt.Errorf("--args is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx := cmd.Context()
			s, err := cfg.OpenStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to open grid store: %w", err)
			}
			defer s.Close()

			f, err := s.Load(ctx, key)
			if err != nil {
				return err
			}
			m, err := targetdist.Marginal(f, keep)
			if err != nil {
				return err
			}
			name := targetdist.MarginalName(keep)
			if err := s.Save(ctx, name, m); err != nil {
				return fmt.Errorf("failed to save %s: %w", name, err)
			}
			if out != "" {
				if err := writeGridFile(out, root, m); err != nil {
					return err
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"source":   key,
					"args":     keep,
					"saved":    name,
					"out":      out,
					"integral": grid.Integrate(m),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d cells, integral %.6f)\n", name, m.Size(), grid.Integrate(m))
			if out != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			}
			return nil
		},
	}

	cmd.Flags().String("grid", constants.KeyTargetDist, "Store key of the grid to marginalize")
	cmd.Flags().StringSlice("args", nil, "Axes to keep, comma separated")
	cmd.Flags().String("out", "", "Also write the marginal to this grid file")
	return cmd
}

// writeGridFile writes f to path after confining path to the project root
// or ~/.targetdist.
func writeGridFile(path, root string, f *grid.Field) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	allowed, err := pathutil.DefaultGridDirs(absRoot)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	if err := pathutil.ValidatePath(path, allowed); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", pathutil.RedactPath(path), err)
	}
	if err := grid.Write(fh, f); err != nil {
		fh.Close()
		return fmt.Errorf("writing %s: %w", pathutil.RedactPath(path), err)
	}
	return fh.Close()
}
