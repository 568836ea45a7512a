package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geo-visibility/internal/gap"
	"github.com/sells-group/geo-visibility/internal/model"
)

var (
	oppsSiteID    string
	oppsAddressed string
)

var opportunitiesCmd = &cobra.Command{
	Use:   "opportunities",
	Short: "List ranked content opportunities for a site",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("check"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if oppsAddressed != "" {
			if err := st.MarkAddressed(ctx, oppsSiteID, oppsAddressed); err != nil {
				return eris.Wrap(err, "mark addressed")
			}
		}

		opps, err := gap.NewAnalyzer(st, cfg.Gap.Lookback).Opportunities(ctx, oppsSiteID)
		if err != nil {
			return eris.Wrap(err, "list opportunities")
		}
		return printOpportunities(os.Stdout, opps)
	},
}

func printOpportunities(out io.Writer, opps []model.Opportunity) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMPACT\tINTENT\tMISSED\tADDRESSED\tQUERY")
	for _, o := range opps {
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%t\t%s\n", o.Impact, o.BuyerIntent, len(o.MissedOn), o.Addressed, o.Query)
	}
	return w.Flush()
}

func init() {
	opportunitiesCmd.Flags().StringVar(&oppsSiteID, "site", "", "site ID (required)")
	opportunitiesCmd.Flags().StringVar(&oppsAddressed, "addressed", "", "mark this query as addressed before listing")
	_ = opportunitiesCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(opportunitiesCmd)
}
