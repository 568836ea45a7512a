package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/schedule"
)

var scheduleEvery time.Duration

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create a recurring check schedule for a site",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		c, err := schedule.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
		if err != nil {
			return err
		}
		defer c.Close()

		every := scheduleEvery
		if every == 0 {
			every = time.Duration(cfg.Temporal.IntervalHours) * time.Hour
		}

		req := checkRequest()
		req.SingleQuery = ""
		created, err := schedule.EnsureSchedule(ctx, c.ScheduleClient(), cfg.Temporal.TaskQueue, every, req)
		if err != nil {
			return err
		}

		zap.L().Info("site check schedule",
			zap.String("schedule_id", schedule.ScheduleID(req.SiteID)),
			zap.Duration("every", every),
			zap.Bool("created", created),
		)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&checkDomain, "domain", "", "site domain to check (required)")
	scheduleCmd.Flags().StringVar(&checkSiteID, "site", "", "site ID (required)")
	scheduleCmd.Flags().StringVar(&checkPlan, "plan", "free", "plan tier: free, tier2, tier3, tier4")
	scheduleCmd.Flags().StringVar(&checkCategory, "category", "", "industry category for category templates")
	scheduleCmd.Flags().StringSliceVar(&checkCustom, "custom", nil, "custom queries (honored by paid plans)")
	scheduleCmd.Flags().DurationVar(&scheduleEvery, "every", 0, "check interval (default from config)")
	_ = scheduleCmd.MarkFlagRequired("domain")
	_ = scheduleCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(scheduleCmd)
}
