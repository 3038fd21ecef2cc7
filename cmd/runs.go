package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/floodcat/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded batch orders and scoring runs",
}

// -- runs batches --

var runsBatchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List Sentinel Hub batch requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		flood, _ := cmd.Flags().GetString("flood")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		reqs, err := st.ListBatchRequests(ctx, store.BatchFilter{FloodID: flood, Status: status, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs batches")
		}
		if len(reqs) == 0 {
			fmt.Fprintln(os.Stderr, "No batch requests found.")
			return nil
		}

		formatBatchList(os.Stdout, reqs)
		return nil
	},
}

// -- runs scores --

var runsScoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "List recorded chip scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, _ := cmd.Flags().GetString("run")
		experiment, _ := cmd.Flags().GetString("experiment")
		limit, _ := cmd.Flags().GetInt("limit")

		rows, err := st.ListScores(ctx, store.ScoreFilter{RunID: runID, Experiment: experiment, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs scores")
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No scores found.")
			return nil
		}

		formatScoreList(os.Stdout, rows)
		return nil
	},
}

func init() {
	runsBatchesCmd.Flags().String("flood", "", "filter by flood id")
	runsBatchesCmd.Flags().String("status", "", "filter by batch status (CREATED, ANALYSIS_DONE, DONE, FAILED, ...)")
	runsBatchesCmd.Flags().Int("limit", 50, "max number of batch requests to display")

	runsScoresCmd.Flags().String("run", "", "filter by scoring run id")
	runsScoresCmd.Flags().String("experiment", "", "filter by experiment id")
	runsScoresCmd.Flags().Int("limit", 50, "max number of scores to display")

	runsCmd.AddCommand(runsBatchesCmd, runsScoresCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatBatchList writes a tabular list of batch requests to out.
func formatBatchList(out io.Writer, reqs []store.BatchRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFLOOD\tSTATUS\tTILES\tVALUE\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-----\t-----\t-------")

	for _, r := range reqs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t%s\n",
			truncateID(r.ID),
			r.FloodID,
			r.Status,
			r.TileCount,
			r.ValueEstimate,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatScoreList writes a tabular list of chip scores to out.
func formatScoreList(out io.Writer, rows []store.ScoreRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tEXPERIMENT\tCHIP\tF1\tF1_URBAN\tF1_NOT_URBAN\tIOU\tIOU_URBAN\tIOU_NOT_URBAN")
	_, _ = fmt.Fprintln(w, "---\t----------\t----\t--\t--------\t------------\t---\t---------\t-------------")

	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			truncateID(r.RunID),
			r.Experiment,
			r.ChipID,
			r.F1All, r.F1Urban, r.F1NotUrban,
			r.IoUAll, r.IoUUrban, r.IoUNotUrban,
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
