package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/scheduler"
)

type statusOutput struct {
	Status        crawler.CrawlStatus `json:"status"`
	Countdown     scheduler.Countdown `json:"countdown"`
	ScheduledTime string              `json:"scheduled_time"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the scheduler status and the time until the next crawl",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			status, countdown, err := a.Scheduler.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(statusOutput{
				Status:        status,
				Countdown:     countdown,
				ScheduledTime: a.Scheduler.ScheduledTime(),
			})
		},
	}
}
