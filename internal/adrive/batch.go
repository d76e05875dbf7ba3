package adrive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Retry budgets for batch calls, as total attempts. A failed sub-request
// is never retried on its own; only the whole batch is.
const (
	batchAttempts = 3
	taskAttempts  = 3
)

const (
	batchPath     = "/adrive/v4/batch"
	batchResource = "file"
)

type batchRequest struct {
	Requests []batchSubRequest `json:"requests"`
	Resource string            `json:"resource"`
}

type batchSubRequest struct {
	Body    any               `json:"body"`
	Headers map[string]string `json:"headers"`
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
}

type batchResponse struct {
	Responses []batchSubResponse `json:"responses"`
}

type batchSubResponse struct {
	Body   json.RawMessage `json:"body"`
	ID     string          `json:"id"`
	Status int             `json:"status"`
}

type copyRequest struct {
	FileID         string `json:"file_id"`
	ShareID        string `json:"share_id"`
	AutoRename     bool   `json:"auto_rename"`
	ToParentFileID string `json:"to_parent_file_id"`
	ToDriveID      string `json:"to_drive_id"`
}

type copyResponseBody struct {
	FileID      string `json:"file_id"`
	AsyncTaskID string `json:"async_task_id"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

type asyncTaskRequest struct {
	AsyncTaskID string `json:"async_task_id"`
}

// asyncTaskResponse covers both the batch sub-response body and the plain
// status endpoint, which reports "status" where the batch reports "state".
type asyncTaskResponse struct {
	AsyncTaskID     string `json:"async_task_id"`
	State           string `json:"state"`
	Status          string `json:"status"`
	TotalProcess    int    `json:"total_process"`
	ConsumedProcess int    `json:"consumed_process"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func (r *asyncTaskResponse) toTask(id string) *AsyncTask {
	state := r.State
	if state == "" {
		state = r.Status
	}

	if state == "" {
		state = TaskUnknown
	}

	if r.AsyncTaskID != "" {
		id = r.AsyncTaskID
	}

	return &AsyncTask{
		ID:              id,
		State:           state,
		TotalProcess:    r.TotalProcess,
		ConsumedProcess: r.ConsumedProcess,
		Code:            r.Code,
		Message:         r.Message,
	}
}

func jsonSubHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

// CopyOne copies a single file or folder out of a share into destID. It is
// issued as a one-element batch; a folder copy typically answers 202 with
// an async task id.
func (c *Client) CopyOne(ctx context.Context, shareID, shareToken, fileID, destID string) (CopyResult, error) {
	results, err := c.CopyMany(ctx, shareID, shareToken, []string{fileID}, destID)
	if err != nil {
		return CopyResult{}, err
	}

	if len(results) == 0 {
		return CopyResult{ID: "0"}, nil
	}

	return results[0], nil
}

// CopyMany copies fileIDs out of a share into destID with one batch call.
// Every sub-request asks the service to auto-rename on name collision.
// Results are returned in the order the service sent them; the caller
// decides how to count missing or failed entries.
func (c *Client) CopyMany(ctx context.Context, shareID, shareToken string, fileIDs []string, destID string) ([]CopyResult, error) {
	subs := make([]batchSubRequest, 0, len(fileIDs))
	for i, id := range fileIDs {
		subs = append(subs, batchSubRequest{
			Body: copyRequest{
				FileID:         id,
				ShareID:        shareID,
				AutoRename:     true,
				ToParentFileID: destID,
				ToDriveID:      c.driveID,
			},
			Headers: jsonSubHeaders(),
			ID:      strconv.Itoa(i),
			Method:  http.MethodPost,
			URL:     "/file/copy",
		})
	}

	var resp batchResponse

	err := c.Execute(ctx, &Request{
		Method:      http.MethodPost,
		Path:        batchPath,
		Header:      shareHeader(shareToken),
		Body:        batchRequest{Requests: subs, Resource: batchResource},
		MaxAttempts: batchAttempts,
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]CopyResult, 0, len(resp.Responses))
	for _, sub := range resp.Responses {
		r := CopyResult{ID: sub.ID, Status: sub.Status}

		var body copyResponseBody
		if len(sub.Body) > 0 && json.Unmarshal(sub.Body, &body) == nil {
			r.FileID = body.FileID
			r.AsyncTaskID = body.AsyncTaskID
			r.Code = body.Code
			r.Message = body.Message
		}

		results = append(results, r)
	}

	return results, nil
}

// CheckAsyncTask reports the state of an async task. It asks through the
// batch endpoint first and, if that path fails for any reason other than
// cancellation, falls back to the plain status endpoint.
func (c *Client) CheckAsyncTask(ctx context.Context, taskID string) (*AsyncTask, error) {
	task, err := c.checkTaskBatch(ctx, taskID)
	if err == nil {
		return task, nil
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("adrive: request canceled: %w", ctx.Err())
	}

	c.logger.Debug("batch task check failed, using status endpoint",
		slog.String("async_task_id", taskID),
		slog.String("error", err.Error()),
	)

	var resp asyncTaskResponse

	err = c.Execute(ctx, &Request{
		Method:      http.MethodGet,
		Path:        "/v2/async_task/get?async_task_id=" + url.QueryEscape(taskID),
		MaxAttempts: taskAttempts,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.toTask(taskID), nil
}

func (c *Client) checkTaskBatch(ctx context.Context, taskID string) (*AsyncTask, error) {
	var resp batchResponse

	err := c.Execute(ctx, &Request{
		Method: http.MethodPost,
		Path:   batchPath,
		Body: batchRequest{
			Requests: []batchSubRequest{{
				Body:    asyncTaskRequest{AsyncTaskID: taskID},
				Headers: jsonSubHeaders(),
				ID:      taskID,
				Method:  http.MethodPost,
				URL:     "/async_task/get",
			}},
			Resource: batchResource,
		},
		MaxAttempts: taskAttempts,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Responses) == 0 {
		return &AsyncTask{ID: taskID, State: TaskUnknown}, nil
	}

	sub := resp.Responses[0]
	if len(sub.Body) == 0 || string(sub.Body) == "null" {
		return &AsyncTask{ID: taskID, State: TaskUnknown}, nil
	}

	var body asyncTaskResponse
	if err := json.Unmarshal(sub.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: async task %s: %v", ErrMalformedResponse, taskID, err)
	}

	return body.toTask(taskID), nil
}
