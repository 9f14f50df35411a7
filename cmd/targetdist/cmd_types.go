package main

import (
	"fmt"
	"strings"

	"github.com/nvandessel/targetdist/internal/targetdist"
	"github.com/spf13/cobra"
)

type typeInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keys        []string `json:"keys"`
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List distribution types and their keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []typeInfo
			for _, r := range targetdist.Types() {
				infos = append(infos, typeInfo{Name: r.Name, Description: r.Description, Keys: r.Keys})
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			out := cmd.OutOrStdout()
			for _, info := range infos {
				fmt.Fprintf(out, "%s\n  %s\n", info.Name, info.Description)
				if len(info.Keys) > 0 {
					fmt.Fprintf(out, "  keys: %s\n", strings.Join(info.Keys, ", "))
				}
			}
			return nil
		},
	}
}
