package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shahryar908/agenticrag/internal/db"
	"github.com/shahryar908/agenticrag/internal/util"
)

var (
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent workflow runs from the run log",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print as JSON")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	client, err := db.NewClient(db.Config{DSN: cfg.RunLog.DSN, Workers: 1, QueueSize: 1}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	runs, err := client.RecentRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if runsJSON {
		return printJSON(cmd, runs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tTYPE\tSTATUS\tCONF\tMS\tPATH\tQUERY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.QueryType, r.Status, r.Confidence, r.DurationMs,
			strings.Join(r.Path, ">"), util.Preview(r.Query, 60))
	}
	return tw.Flush()
}
