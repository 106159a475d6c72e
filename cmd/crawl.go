package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl now and exit",
		Long: `Runs a single crawl of every configured category, honoring the same
status lease as the scheduler. Without --force the run is skipped when today's
data already exists.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := a.Scheduler.Execute(cmd.Context(), crawler.RunRequest{
				Trigger:   crawler.TriggerCLI,
				Force:     force,
				Submitted: a.Clock.Now(),
			})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode outcome: %w", err)
			}
			if out.Err != nil {
				return fmt.Errorf("crawl failed: %w", out.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "crawl even if today's data already exists")
	return cmd
}
