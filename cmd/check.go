package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/model"
)

var (
	checkDomain   string
	checkSiteID   string
	checkPlan     string
	checkCategory string
	checkQuery    string
	checkCustom   []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one visibility check cycle for a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Dispatcher.RunCheck(ctx, checkRequest())
		if err != nil {
			return eris.Wrap(err, "run check")
		}

		zap.L().Info("check complete",
			zap.String("domain", res.Domain),
			zap.String("check_id", res.CheckID),
			zap.Int("visibility_percent", res.VisibilityPercent),
			zap.Int("apis_called", res.APIsCalled),
			zap.Int("opportunities", len(res.Opportunities)),
			zap.Float64("cost_usd", res.EstimatedCostUSD),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func checkRequest() model.CheckRequest {
	return model.CheckRequest{
		Domain:        checkDomain,
		SiteID:        checkSiteID,
		Plan:          model.ParsePlan(checkPlan),
		Category:      checkCategory,
		CustomQueries: checkCustom,
		SingleQuery:   checkQuery,
	}
}

func init() {
	checkCmd.Flags().StringVar(&checkDomain, "domain", "", "site domain to check (required)")
	checkCmd.Flags().StringVar(&checkSiteID, "site", "", "site ID; results are persisted only when set")
	checkCmd.Flags().StringVar(&checkPlan, "plan", "free", "plan tier: free, tier2, tier3, tier4")
	checkCmd.Flags().StringVar(&checkCategory, "category", "", "industry category for category templates")
	checkCmd.Flags().StringVar(&checkQuery, "query", "", "re-check a single query on every provider")
	checkCmd.Flags().StringSliceVar(&checkCustom, "custom", nil, "custom queries (honored by paid plans)")
	_ = checkCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(checkCmd)
}
