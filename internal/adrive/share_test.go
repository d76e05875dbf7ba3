package adrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareToken_Anonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/share_link/get_share_token", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req shareTokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "share-1", req.ShareID)
		assert.Equal(t, "pw", req.SharePwd)

		_, _ = w.Write([]byte(`{"share_token":"st-123","expires_in":7200}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	tok, err := client.ShareToken(context.Background(), "share-1", "pw")
	require.NoError(t, err)
	assert.Equal(t, "st-123", tok)
}

func TestShareToken_MissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"expires_in":7200}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ShareToken(context.Background(), "share-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestShareToken_RetriesThreeTimes(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ShareToken(context.Background(), "share-1", "")
	require.Error(t, err)
	assert.Equal(t, int32(shareAttempts), calls.Load())
}

func TestShareInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adrive/v3/share_link/get_share_by_anonymous", r.URL.Path)
		assert.Equal(t, "st", r.Header.Get(ShareTokenHeader))
		assert.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{
			"share_name": "Holiday",
			"file_count": 12,
			"creator_name": "someone",
			"expiration": "",
			"file_infos": [{"file_id": "root-folder", "file_name": "Holiday", "type": "folder"}, {"file_name": "skipped"}]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	info, err := client.ShareInfo(context.Background(), "share-1", "st")
	require.NoError(t, err)

	assert.Equal(t, "Holiday", info.Name)
	assert.Equal(t, 12, info.FileCount)
	assert.Equal(t, "someone", info.Creator)
	require.Len(t, info.Roots, 1)
	assert.Equal(t, "root-folder", info.Roots[0].ID)
	assert.True(t, info.Roots[0].IsFolder())
}

// pagedShareServer serves total items named file-NNNN in pages of pageSize,
// chained through next_marker, and counts page requests.
func pagedShareServer(t *testing.T, total, pageSize int, pages *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)

		assert.Equal(t, "/adrive/v2/file/list_by_share", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "st", r.Header.Get(ShareTokenHeader))

		var req listByShareRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "name", req.OrderBy)
		assert.Equal(t, "ASC", req.OrderDirection)
		assert.Equal(t, "parent", req.ParentFileID)

		start := 0
		if req.Marker != "" {
			n, err := strconv.Atoi(req.Marker)
			assert.NoError(t, err)
			start = n
		}

		end := min(start+pageSize, total)

		resp := listByShareResponse{}
		for i := start; i < end; i++ {
			resp.Items = append(resp.Items, fileResponse{
				FileID:       fmt.Sprintf("id-%04d", i),
				Name:         fmt.Sprintf("file-%04d", i),
				Type:         TypeFile,
				ParentFileID: "parent",
				Size:         int64(i),
				UpdatedAt:    "2024-05-01T10:00:00.000Z",
			})
		}

		if end < total {
			resp.NextMarker = strconv.Itoa(end)
		}

		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestListChildren_UnionOfAllPages(t *testing.T) {
	var pages atomic.Int32

	srv := pagedShareServer(t, 1000, 200, &pages)
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	nodes, err := client.ListChildren(context.Background(), "share-1", "st", "parent")
	require.NoError(t, err)

	assert.Equal(t, int32(5), pages.Load())
	require.Len(t, nodes, 1000)

	names := make([]string, len(nodes))
	seen := make(map[string]bool, len(nodes))

	for i, n := range nodes {
		names[i] = n.Name
		assert.False(t, seen[n.ID], "duplicate %s", n.ID)
		seen[n.ID] = true
	}

	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, "file-0000", names[0])
	assert.Equal(t, "file-0999", names[999])
	assert.False(t, nodes[0].UpdatedAt.IsZero())
}

func TestListChildren_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"next_marker":""}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	nodes, err := client.ListChildren(context.Background(), "share-1", "st", "parent")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestListChildren_RejectsItemWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"name":"ghost","type":"file"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListChildren(context.Background(), "share-1", "st", "parent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestListChildren_PageFailurePropagates(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"items":[{"file_id":"a","name":"a","type":"file"}],"next_marker":"m"}`))
			return
		}

		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListChildren(context.Background(), "share-1", "st", "parent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1+listAttempts), calls.Load())
}
