package adrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// createAttempts is the retry budget for folder creation.
const createAttempts = 5

// Name conflict policies for folder creation.
const (
	checkNameAutoRename = "auto_rename"
	checkNameRefuse     = "refuse"
)

type createFolderRequest struct {
	DriveID       string `json:"drive_id"`
	ParentFileID  string `json:"parent_file_id"`
	Name          string `json:"name"`
	CheckNameMode string `json:"check_name_mode"`
	Type          string `json:"type"`
}

// CreateFolder creates a folder named name under parentID in the account's
// drive. With renameOnConflict the service appends a disambiguator to the
// name on collision instead of failing. The returned Node carries the name
// the service actually used.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string, renameOnConflict bool) (*Node, error) {
	mode := checkNameRefuse
	if renameOnConflict {
		mode = checkNameAutoRename
	}

	var resp fileResponse

	err := c.Execute(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/adrive/v2/file/createWithFolders",
		Body: createFolderRequest{
			DriveID:       c.driveID,
			ParentFileID:  parentID,
			Name:          name,
			CheckNameMode: mode,
			Type:          TypeFolder,
		},
		MaxAttempts: createAttempts,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.FileID == "" {
		return nil, fmt.Errorf("%w: create folder %q returned no file_id", ErrMalformedResponse, name)
	}

	if resp.Type == "" {
		resp.Type = TypeFolder
	}

	if resp.Name == "" && resp.FileName == "" {
		resp.Name = name
	}

	node, err := resp.toNode()
	if err != nil {
		return nil, err
	}

	if node.ParentID == "" {
		node.ParentID = parentID
	}

	c.logger.Info("created folder",
		slog.String("parent_id", parentID),
		slog.String("name", node.Name),
		slog.String("file_id", node.ID),
	)

	return &node, nil
}
