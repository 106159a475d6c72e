package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify store connectivity and list stored collections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("store unreachable: %w", err)
			}
			infos, err := a.Store.Collections(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collections: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "store\t%s\tok\n", a.Config.Store.Driver)
			total := 0
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\n", info.Name, info.Count)
				total += info.Count
			}
			fmt.Fprintf(w, "total\t%d\n", total)
			return w.Flush()
		},
	}
}
