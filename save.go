package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/alipan-save/internal/adrive"
	"github.com/tonimelisma/alipan-save/internal/config"
	"github.com/tonimelisma/alipan-save/internal/history"
	"github.com/tonimelisma/alipan-save/internal/saver"
	"github.com/tonimelisma/alipan-save/internal/sharelink"
)

// shareRootID is the id of a share's virtual top level, used when a share
// exposes several items and the link names no folder.
const shareRootID = "root"

// fallbackTargetName names the destination when the share has no name.
const fallbackTargetName = "share"

type saveOptions struct {
	dryRun    bool
	noHistory bool
}

func newSaveCmd() *cobra.Command {
	var opts saveOptions

	cmd := &cobra.Command{
		Use:   "save [share-link]",
		Short: "Copy a share into your drive",
		Long: `Copy a shared folder tree into a new folder of your drive.

The share link comes from the argument or share_link in the config file.
The folder is created under target_parent_file_id and named after the share
unless --target-name is given; the service renames it on collision.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{shareLinkArgAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			// Canceling the parent releases the signal handler once the run ends.
			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			return cc.Finish(runSave(shutdownContext(parent, cc.Logger), cc, opts))
		},
	}

	cmd.Flags().String("password", "", "share extraction code")
	cmd.Flags().String("target-name", "", "destination folder name (default: share name)")
	cmd.Flags().String("target-parent", "", "file id of the folder to create the destination in (default: root)")
	cmd.Flags().Int("batch-size", 0, "files per batch copy request")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "resolve the share and print the plan without copying")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record this run in the history database")

	return cmd
}

// savePlan is everything decided before the first write call.
type savePlan struct {
	ShareID      string `json:"share_id"`
	ShareName    string `json:"share_name"`
	FileCount    int    `json:"file_count"`
	SourceID     string `json:"source_id"`
	APIBase      string `json:"api_base"`
	DestParentID string `json:"dest_parent_id"`
	DestName     string `json:"dest_name"`
	BatchSize    int    `json:"batch_size"`
}

// saveResult is the JSON summary of a finished run.
type saveResult struct {
	savePlan
	RunID  string        `json:"run_id,omitempty"`
	DestID string        `json:"dest_id"`
	Report *saver.Report `json:"report"`
}

// runSave is the run driver: resolve the share, create the destination
// folder, and hand the tree to the saver.
func runSave(ctx context.Context, cc *CLIContext, opts saveOptions) error {
	cfg := cc.Cfg
	logger := cc.Logger

	if err := cfg.Require(config.FieldAccessToken, config.FieldDriveID, config.FieldShareLink); err != nil {
		return err
	}

	link, err := sharelink.Parse(cfg.ShareLink)
	if err != nil {
		return err
	}

	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = sharelink.InferAPIBase(link)
	}

	client := newClient(cc, apiBase)

	logger.Info("starting save",
		slog.String("share_id", link.ShareID),
		slog.String("drive_id", cfg.DriveID),
		slog.String("api_base", apiBase),
	)

	shareToken, err := client.ShareToken(ctx, link.ShareID, cfg.SharePwd)
	if err != nil {
		return fmt.Errorf("getting share token: %w", err)
	}

	info, err := client.ShareInfo(ctx, link.ShareID, shareToken)
	if err != nil {
		return fmt.Errorf("getting share info: %w", err)
	}

	sourceID, err := sourceFolder(link, info)
	if err != nil {
		return err
	}

	plan := savePlan{
		ShareID:      link.ShareID,
		ShareName:    info.Name,
		FileCount:    info.FileCount,
		SourceID:     sourceID,
		APIBase:      apiBase,
		DestParentID: cfg.TargetParentFileID,
		DestName:     targetName(cfg.TargetFolderName, info.Name),
		BatchSize:    cfg.BatchSize,
	}

	logger.Info("share resolved",
		slog.String("share_name", plan.ShareName),
		slog.Int("file_count", plan.FileCount),
		slog.String("source_id", plan.SourceID),
	)

	if opts.dryRun {
		return printPlan(cc, plan)
	}

	runID, store := beginHistory(ctx, cc, plan, opts.noHistory)
	if store != nil {
		defer store.Close()
	}

	dest, report, runErr := copyShare(ctx, cc, client, saver.Share{ID: link.ShareID, Token: shareToken}, plan)

	destID := ""
	if dest != nil {
		destID = dest.ID
	}

	if store != nil {
		// Record the outcome even when the run was interrupted.
		if err := store.Finish(context.WithoutCancel(ctx), runID, destID, report, runErr); err != nil {
			logger.Warn("recording run in history failed", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		return runErr
	}

	return printResult(cc, saveResult{savePlan: plan, RunID: runID, DestID: destID, Report: report})
}

// copyShare creates the destination folder and runs the saver into it.
func copyShare(
	ctx context.Context, cc *CLIContext, client *adrive.Client, share saver.Share, plan savePlan,
) (*adrive.Node, *saver.Report, error) {
	dest, err := client.CreateFolder(ctx, plan.DestParentID, plan.DestName, true)
	if err != nil {
		return nil, nil, fmt.Errorf("creating destination folder: %w", err)
	}

	cc.Logger.Info("destination folder ready",
		slog.String("parent_id", plan.DestParentID),
		slog.String("name", dest.Name),
		slog.String("file_id", dest.ID),
	)

	s := saver.New(client, saver.Options{BatchSize: plan.BatchSize, Logger: cc.Logger})

	report, err := s.Save(ctx, share, plan.SourceID, dest.ID)
	if err != nil {
		return dest, report, err
	}

	return dest, report, nil
}

// beginHistory opens the ledger and records the run start. History is
// best-effort: failures are logged and the run continues unrecorded.
func beginHistory(ctx context.Context, cc *CLIContext, plan savePlan, disabled bool) (string, *history.Store) {
	if disabled || cc.Cfg.HistoryDB == "" {
		return "", nil
	}

	store, err := history.Open(ctx, cc.Cfg.HistoryDB, cc.Logger)
	if err != nil {
		cc.Logger.Warn("history unavailable", slog.String("error", err.Error()))
		return "", nil
	}

	id, err := store.Begin(ctx, history.Run{
		ShareID:      plan.ShareID,
		SourceID:     plan.SourceID,
		DestParentID: plan.DestParentID,
		DestName:     plan.DestName,
		APIBase:      plan.APIBase,
	})
	if err != nil {
		cc.Logger.Warn("recording run in history failed", slog.String("error", err.Error()))
		store.Close()

		return "", nil
	}

	return id, store
}

// sourceFolder picks the share folder to copy: the folder named by the
// link, else the share's single top-level item, else the share root when
// there are several. A share listing no top-level items cannot be copied.
func sourceFolder(link sharelink.Link, info *adrive.ShareInfo) (string, error) {
	switch {
	case link.FolderID != "":
		return link.FolderID, nil
	case len(info.Roots) == 1:
		return info.Roots[0].ID, nil
	case len(info.Roots) > 1:
		return shareRootID, nil
	default:
		return "", fmt.Errorf("%w: share %s has no root file", adrive.ErrMalformedResponse, link.ShareID)
	}
}

// targetName returns the NFC-normalized destination folder name.
func targetName(override, shareName string) string {
	name := strings.TrimSpace(override)
	if name == "" {
		name = strings.TrimSpace(shareName)
	}

	if name == "" {
		name = fallbackTargetName
	}

	return norm.NFC.String(name)
}

func printPlan(cc *CLIContext, plan savePlan) error {
	if cc.Flags.JSON {
		return writeJSON(cc.out, plan)
	}

	fmt.Fprintf(cc.out, "Share:       %s (%s, %d files)\n", plan.ShareName, plan.ShareID, plan.FileCount)
	fmt.Fprintf(cc.out, "Source:      %s\n", plan.SourceID)
	fmt.Fprintf(cc.out, "Destination: %s/%s\n", plan.DestParentID, plan.DestName)
	fmt.Fprintf(cc.out, "API:         %s\n", plan.APIBase)
	cc.Statusf("Dry run: nothing was created or copied.\n")

	return nil
}

func printResult(cc *CLIContext, res saveResult) error {
	if cc.Flags.JSON {
		return writeJSON(cc.out, res)
	}

	r := res.Report
	cc.Statusf("Saved %q into %s (folder id %s)\n", res.ShareName, res.DestName, res.DestID)
	cc.Statusf("  folders: %d visited, %d created, %d copied whole, %d empty\n",
		r.FoldersVisited, r.FoldersCreated, r.SubtreeCopies, r.EmptyFolders)
	cc.Statusf("  files:   %d copied, %d failed\n", r.FilesCopied, r.FilesFailed)

	if r.SubtreeCopies > 0 {
		cc.Statusf("Large folders may still be copying on the server.\n")
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
