// Package sharelink parses Aliyun Drive share URLs.
package sharelink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// API hosts by share-link domain.
const (
	AliyunDriveAPI = "https://api.aliyundrive.com"
	AlipanAPI      = "https://api.alipan.com"
)

// ErrInvalidLink is returned for URLs that are not share links.
var ErrInvalidLink = errors.New("sharelink: not a share link")

// Link is a parsed share URL. FolderID is empty when the link points at the
// share itself rather than a folder inside it.
type Link struct {
	ShareID  string
	FolderID string
	Host     string
}

// Parse extracts the share id and optional folder id from links of the form
// https://www.alipan.com/s/<share_id>[/folder/<folder_id>]. A missing scheme
// is tolerated.
func Parse(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Link{}, fmt.Errorf("%w: empty link", ErrInvalidLink)
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	if len(segs) < 2 || segs[0] != "s" {
		return Link{}, fmt.Errorf("%w: %q (want /s/<share_id> or /s/<share_id>/folder/<folder_id>)", ErrInvalidLink, raw)
	}

	link := Link{ShareID: segs[1], Host: u.Hostname()}

	// Trailing segments other than folder/<id> are ignored.
	if len(segs) >= 4 && segs[2] == "folder" {
		link.FolderID = segs[3]
	}

	return link, nil
}

// InferAPIBase picks the API host matching the link's domain. alipan.com
// links use api.alipan.com; everything else uses api.aliyundrive.com.
func InferAPIBase(link Link) string {
	host := strings.ToLower(link.Host)
	if host == "alipan.com" || strings.HasSuffix(host, ".alipan.com") {
		return AlipanAPI
	}

	return AliyunDriveAPI
}
