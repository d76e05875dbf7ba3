package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-save/internal/adrive"
	"github.com/tonimelisma/alipan-save/internal/config"
	"github.com/tonimelisma/alipan-save/internal/sharelink"
)

func newLsCmd() *cobra.Command {
	var folderID string

	cmd := &cobra.Command{
		Use:   "ls [share-link]",
		Short: "List the contents of a share folder",
		Long: `List one folder of a share without signing in.

Without --folder the folder named by the link is listed, or the share's top
level when the link names none.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{shareLinkArgAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return cc.Finish(runLs(cmd.Context(), cc, folderID))
		},
	}

	cmd.Flags().String("password", "", "share extraction code")
	cmd.Flags().StringVar(&folderID, "folder", "", "file id of the share folder to list")

	return cmd
}

// lsItem is the JSON form of one listed node.
type lsItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified string `json:"modified,omitempty"`
}

func runLs(ctx context.Context, cc *CLIContext, folderID string) error {
	if err := cc.Cfg.Require(config.FieldShareLink); err != nil {
		return err
	}

	link, err := sharelink.Parse(cc.Cfg.ShareLink)
	if err != nil {
		return err
	}

	apiBase := cc.Cfg.APIBaseURL
	if apiBase == "" {
		apiBase = sharelink.InferAPIBase(link)
	}

	if folderID == "" {
		folderID = link.FolderID
	}

	if folderID == "" {
		folderID = shareRootID
	}

	client := newClient(cc, apiBase)

	shareToken, err := client.ShareToken(ctx, link.ShareID, cc.Cfg.SharePwd)
	if err != nil {
		return fmt.Errorf("getting share token: %w", err)
	}

	nodes, err := client.ListChildren(ctx, link.ShareID, shareToken, folderID)
	if err != nil {
		return fmt.Errorf("listing %s: %w", folderID, err)
	}

	cc.Logger.Debug("listed share folder",
		slog.String("share_id", link.ShareID),
		slog.String("folder_id", folderID),
		slog.Int("count", len(nodes)),
	)

	if cc.Flags.JSON {
		return printLsJSON(cc.out, nodes)
	}

	printLsTable(cc, nodes)

	return nil
}

func printLsJSON(w io.Writer, nodes []adrive.Node) error {
	items := make([]lsItem, 0, len(nodes))

	for _, n := range nodes {
		item := lsItem{ID: n.ID, Name: n.Name, Type: n.Type, Size: n.Size}
		if !n.UpdatedAt.IsZero() {
			item.Modified = n.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}

		items = append(items, item)
	}

	return writeJSON(w, items)
}

func printLsTable(cc *CLIContext, nodes []adrive.Node) {
	if len(nodes) == 0 {
		cc.Statusf("Folder is empty.\n")
		return
	}

	rows := make([][]string, 0, len(nodes))

	for _, n := range nodes {
		name, size := n.Name, formatSize(n.Size)
		if n.IsFolder() {
			name += "/"
			size = "-"
		}

		modified := "-"
		if !n.UpdatedAt.IsZero() {
			modified = formatTime(n.UpdatedAt)
		}

		rows = append(rows, []string{name, size, modified, n.ID})
	}

	printTable(cc.out, []string{"NAME", "SIZE", "MODIFIED", "ID"}, rows)
}
