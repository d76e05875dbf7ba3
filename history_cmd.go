package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-save/internal/history"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent save runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return cc.Finish(runHistory(cmd.Context(), cc, limit))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of runs to show")

	return cmd
}

func runHistory(ctx context.Context, cc *CLIContext, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	if _, err := os.Stat(cc.Cfg.HistoryDB); os.IsNotExist(err) {
		if cc.Flags.JSON {
			return writeJSON(cc.out, []history.Run{})
		}

		cc.Statusf("No runs recorded yet.\n")

		return nil
	}

	store, err := history.Open(ctx, cc.Cfg.HistoryDB, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return writeJSON(cc.out, runs)
	}

	if len(runs) == 0 {
		cc.Statusf("No runs recorded yet.\n")
		return nil
	}

	rows := make([][]string, 0, len(runs))

	for i := range runs {
		r := &runs[i]

		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
		}

		rows = append(rows, []string{
			formatTime(r.StartedAt),
			r.Status,
			duration,
			r.ShareID,
			r.DestName,
			strconv.Itoa(r.Report.FilesCopied),
			strconv.Itoa(r.Report.FilesFailed),
		})
	}

	printTable(cc.out, []string{"STARTED", "STATUS", "DURATION", "SHARE", "DEST", "COPIED", "FAILED"}, rows)

	return nil
}
