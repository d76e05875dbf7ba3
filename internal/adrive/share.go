package adrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// listPageSize is the limit sent with each list_by_share request.
// 200 is the largest page the web client asks for.
const listPageSize = 200

// Retry budgets per operation, as total attempts.
const (
	shareAttempts = 3
	listAttempts  = 5
)

// anonymous omits the account's bearer token from share-scoped calls.
var anonymous = []string{headerAuthorization}

type shareTokenRequest struct {
	ShareID  string `json:"share_id"`
	SharePwd string `json:"share_pwd"`
}

type shareTokenResponse struct {
	ShareToken string `json:"share_token"`
	ExpiresIn  int    `json:"expires_in"`
}

type shareInfoRequest struct {
	ShareID string `json:"share_id"`
}

type shareInfoResponse struct {
	ShareName   string          `json:"share_name"`
	FileCount   int             `json:"file_count"`
	CreatorName string          `json:"creator_name"`
	Expiration  string          `json:"expiration"`
	FileInfos   []shareFileInfo `json:"file_infos"`
}

type shareFileInfo struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Type     string `json:"type"`
}

type listByShareRequest struct {
	ShareID        string `json:"share_id"`
	ParentFileID   string `json:"parent_file_id"`
	Limit          int    `json:"limit"`
	OrderBy        string `json:"order_by"`
	OrderDirection string `json:"order_direction"`
	Marker         string `json:"marker,omitempty"`
}

type listByShareResponse struct {
	Items      []fileResponse `json:"items"`
	NextMarker string         `json:"next_marker"`
}

// fileResponse mirrors a file entity as returned by list and create calls.
// Callers see it only as a Node, via toNode.
type fileResponse struct {
	FileID       string `json:"file_id"`
	Name         string `json:"name"`
	FileName     string `json:"file_name"` // createWithFolders uses file_name
	Type         string `json:"type"`
	ParentFileID string `json:"parent_file_id"`
	Size         int64  `json:"size"`
	UpdatedAt    string `json:"updated_at"`
}

// toNode normalizes a file entity, rejecting entries without an id or type.
func (f *fileResponse) toNode() (Node, error) {
	if f.FileID == "" {
		return Node{}, fmt.Errorf("%w: item %q has no file_id", ErrMalformedResponse, f.Name)
	}

	if f.Type != TypeFile && f.Type != TypeFolder {
		return Node{}, fmt.Errorf("%w: item %s has unknown type %q", ErrMalformedResponse, f.FileID, f.Type)
	}

	name := f.Name
	if name == "" {
		name = f.FileName
	}

	n := Node{
		ID:       f.FileID,
		Name:     name,
		Type:     f.Type,
		ParentID: f.ParentFileID,
		Size:     f.Size,
	}

	if f.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.UpdatedAt); err == nil {
			n.UpdatedAt = t
		}
	}

	return n, nil
}

// shareHeader returns the override header set for share-scoped calls.
func shareHeader(shareToken string) http.Header {
	h := http.Header{}
	h.Set(ShareTokenHeader, shareToken)

	return h
}

// ShareToken exchanges a share id and optional password for a short-lived
// share token. The call is anonymous: the account token is not sent.
func (c *Client) ShareToken(ctx context.Context, shareID, password string) (string, error) {
	c.logger.Info("requesting share token", slog.String("share_id", shareID))

	var resp shareTokenResponse

	err := c.Execute(ctx, &Request{
		Method:      http.MethodPost,
		Path:        "/v2/share_link/get_share_token",
		Omit:        anonymous,
		Body:        shareTokenRequest{ShareID: shareID, SharePwd: password},
		MaxAttempts: shareAttempts,
	}, &resp)
	if err != nil {
		return "", err
	}

	if resp.ShareToken == "" {
		return "", fmt.Errorf("%w: share token response for %s has no share_token", ErrMalformedResponse, shareID)
	}

	c.logger.Debug("share token acquired", slog.Int("expires_in", resp.ExpiresIn))

	return resp.ShareToken, nil
}

// ShareInfo fetches a share's anonymous metadata.
func (c *Client) ShareInfo(ctx context.Context, shareID, shareToken string) (*ShareInfo, error) {
	var resp shareInfoResponse

	err := c.Execute(ctx, &Request{
		Method:      http.MethodPost,
		Path:        "/adrive/v3/share_link/get_share_by_anonymous",
		Header:      shareHeader(shareToken),
		Omit:        anonymous,
		Body:        shareInfoRequest{ShareID: shareID},
		MaxAttempts: shareAttempts,
	}, &resp)
	if err != nil {
		return nil, err
	}

	info := &ShareInfo{
		Name:       resp.ShareName,
		FileCount:  resp.FileCount,
		Creator:    resp.CreatorName,
		Expiration: resp.Expiration,
		Roots:      make([]Node, 0, len(resp.FileInfos)),
	}

	for _, fi := range resp.FileInfos {
		if fi.FileID == "" {
			continue
		}

		info.Roots = append(info.Roots, Node{ID: fi.FileID, Name: fi.FileName, Type: fi.Type})
	}

	return info, nil
}

// ListChildren returns every child of parentID inside the share, following
// next_marker until the service reports no further page. Items are ordered
// by name ascending, as requested from the service.
func (c *Client) ListChildren(ctx context.Context, shareID, shareToken, parentID string) ([]Node, error) {
	c.logger.Debug("listing share folder",
		slog.String("share_id", shareID),
		slog.String("parent_id", parentID),
	)

	var nodes []Node

	marker := ""

	for page := 1; ; page++ {
		var resp listByShareResponse

		err := c.Execute(ctx, &Request{
			Method: http.MethodPost,
			Path:   "/adrive/v2/file/list_by_share",
			Header: shareHeader(shareToken),
			Omit:   anonymous,
			Body: listByShareRequest{
				ShareID:        shareID,
				ParentFileID:   parentID,
				Limit:          listPageSize,
				OrderBy:        "name",
				OrderDirection: "ASC",
				Marker:         marker,
			},
			MaxAttempts: listAttempts,
		}, &resp)
		if err != nil {
			return nil, err
		}

		for i := range resp.Items {
			n, err := resp.Items[i].toNode()
			if err != nil {
				return nil, fmt.Errorf("adrive: listing %s page %d: %w", parentID, page, err)
			}

			nodes = append(nodes, n)
		}

		c.logger.Debug("fetched share folder page",
			slog.Int("page", page),
			slog.Int("count", len(resp.Items)),
		)

		if resp.NextMarker == "" {
			break
		}

		marker = resp.NextMarker
	}

	c.logger.Debug("listed share folder",
		slog.String("parent_id", parentID),
		slog.Int("total_items", len(nodes)),
	)

	return nodes, nil
}
