// Package saver copies a folder tree out of a public share into the
// account's drive. It first asks the service to copy a whole folder in one
// call and, when that is not possible, walks the folder itself: files are
// copied in batches and each subfolder is recreated and handled the same way.
package saver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tonimelisma/alipan-save/internal/adrive"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultBatchSize    = 500
	DefaultPollInterval = time.Second
	chunkInterval       = 200 * time.Millisecond
	folderInterval      = 100 * time.Millisecond
)

// statusCopied is the per-item status of a synchronous copy.
// statusAccepted means the copy continues as an async task.
const (
	statusCopied   = 201
	statusAccepted = 202
)

// API is the subset of the drive client the saver needs.
type API interface {
	ListChildren(ctx context.Context, shareID, shareToken, parentID string) ([]adrive.Node, error)
	CreateFolder(ctx context.Context, parentID, name string, renameOnConflict bool) (*adrive.Node, error)
	CopyOne(ctx context.Context, shareID, shareToken, fileID, destID string) (adrive.CopyResult, error)
	CopyMany(ctx context.Context, shareID, shareToken string, fileIDs []string, destID string) ([]adrive.CopyResult, error)
	CheckAsyncTask(ctx context.Context, taskID string) (*adrive.AsyncTask, error)
}

// Pacer spaces out successive calls. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Share identifies the share being copied from and the token that grants
// access to it.
type Share struct {
	ID    string
	Token string
}

// Report summarizes a Save run.
type Report struct {
	FoldersVisited int `json:"folders_visited"`
	FoldersCreated int `json:"folders_created"`
	SubtreeCopies  int `json:"subtree_copies"`
	Fallbacks      int `json:"fallbacks"`
	FilesCopied    int `json:"files_copied"`
	FilesFailed    int `json:"files_failed"`
	EmptyFolders   int `json:"empty_folders"`
}

// Options configures a Saver.
type Options struct {
	BatchSize    int
	PollInterval time.Duration
	ChunkPacer   Pacer // between file batches; default one per 200ms
	FolderPacer  Pacer // between folder creations; default one per 100ms
	Logger       *slog.Logger
}

// Saver runs copy jobs against an API. Not safe for concurrent Save calls.
type Saver struct {
	api          API
	batchSize    int
	pollInterval time.Duration
	chunkPacer   Pacer
	folderPacer  Pacer
	logger       *slog.Logger

	// sleepFunc waits between async task polls. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Saver. Zero-valued options take their defaults.
func New(api API, opts Options) *Saver {
	s := &Saver{
		api:          api,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		chunkPacer:   opts.ChunkPacer,
		folderPacer:  opts.FolderPacer,
		logger:       opts.Logger,
		sleepFunc:    timeSleep,
	}

	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}

	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}

	if s.chunkPacer == nil {
		s.chunkPacer = rate.NewLimiter(rate.Every(chunkInterval), 1)
	}

	if s.folderPacer == nil {
		s.folderPacer = rate.NewLimiter(rate.Every(folderInterval), 1)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// outcome of the whole-subtree attempt.
type outcome int

const (
	outcomeCopied outcome = iota
	outcomeFallback
	outcomeFatal
)

func (o outcome) String() string {
	switch o {
	case outcomeCopied:
		return "copied"
	case outcomeFallback:
		return "fallback"
	case outcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// taskKind selects what a stack entry does when popped.
type taskKind int

const (
	taskCopyFolder   taskKind = iota // copy sourceID into destID
	taskCreateFolder                 // create name under destID, then copy sourceID into it
)

// task is one entry on the work stack. path is the share-relative path,
// used only for logging.
type task struct {
	kind     taskKind
	sourceID string
	destID   string
	name     string
	path     string
}

// Save copies the share folder sourceID into the account folder destID.
//
// Work is kept on an explicit LIFO stack. Subfolders are pushed in reverse
// listing order so they are processed depth-first in the same order the
// service lists them, and each destination folder is created before
// anything is copied into it.
//
// The returned Report is non-nil even on error and reflects the work done
// up to the failure.
func (s *Saver) Save(ctx context.Context, share Share, sourceID, destID string) (*Report, error) {
	report := &Report{}
	stack := []task{{kind: taskCopyFolder, sourceID: sourceID, destID: destID, path: "/"}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("saver: canceled: %w", err)
		}

		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t.kind {
		case taskCreateFolder:
			created, err := s.createFolder(ctx, t)
			if err != nil {
				return report, err
			}

			report.FoldersCreated++

			stack = append(stack, task{kind: taskCopyFolder, sourceID: t.sourceID, destID: created.ID, path: t.path})

		case taskCopyFolder:
			pushed, err := s.copyFolder(ctx, share, t, report)
			if err != nil {
				return report, err
			}

			stack = append(stack, pushed...)
		}
	}

	s.logger.Info("save complete",
		slog.Int("folders_visited", report.FoldersVisited),
		slog.Int("folders_created", report.FoldersCreated),
		slog.Int("subtree_copies", report.SubtreeCopies),
		slog.Int("files_copied", report.FilesCopied),
		slog.Int("files_failed", report.FilesFailed),
	)

	return report, nil
}

func (s *Saver) createFolder(ctx context.Context, t task) (*adrive.Node, error) {
	if err := s.folderPacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("saver: waiting to create %s: %w", t.path, err)
	}

	created, err := s.api.CreateFolder(ctx, t.destID, t.name, true)
	if err != nil {
		return nil, fmt.Errorf("saver: creating folder %s: %w", t.path, err)
	}

	s.logger.Debug("created destination folder",
		slog.String("path", t.path),
		slog.String("dest_id", created.ID),
		slog.String("name", created.Name),
	)

	return created, nil
}

// copyFolder handles one source folder. It returns the create-folder tasks
// for the subfolders that the caller must push, already in reverse order.
func (s *Saver) copyFolder(ctx context.Context, share Share, t task, report *Report) ([]task, error) {
	report.FoldersVisited++

	out, err := s.copySubtree(ctx, share, t.sourceID, t.destID)
	s.logger.Debug("whole-folder attempt", slog.String("path", t.path), slog.String("outcome", out.String()))

	switch out {
	case outcomeCopied:
		report.SubtreeCopies++
		s.logger.Info("folder copied in one call", slog.String("path", t.path))

		return nil, nil
	case outcomeFatal:
		return nil, fmt.Errorf("saver: copying %s: %w", t.path, err)
	case outcomeFallback:
	}

	report.Fallbacks++

	items, err := s.api.ListChildren(ctx, share.ID, share.Token, t.sourceID)
	if err != nil {
		return nil, fmt.Errorf("saver: listing %s: %w", t.path, err)
	}

	if len(items) == 0 {
		report.EmptyFolders++
		s.logger.Info("folder is empty", slog.String("path", t.path), slog.String("source_id", t.sourceID))

		return nil, nil
	}

	var (
		fileIDs []string
		folders []adrive.Node
	)

	for _, it := range items {
		if it.IsFolder() {
			if strings.TrimSpace(it.Name) == "" {
				s.logger.Warn("skipping folder without a name",
					slog.String("path", t.path),
					slog.String("source_id", it.ID),
				)

				continue
			}

			folders = append(folders, it)

			continue
		}

		fileIDs = append(fileIDs, it.ID)
	}

	if err := s.copyFiles(ctx, share, t, fileIDs, report); err != nil {
		return nil, err
	}

	tasks := make([]task, 0, len(folders))
	for i := len(folders) - 1; i >= 0; i-- {
		f := folders[i]
		tasks = append(tasks, task{
			kind:     taskCreateFolder,
			sourceID: f.ID,
			destID:   t.destID,
			name:     f.Name,
			path:     joinPath(t.path, f.Name),
		})
	}

	return tasks, nil
}

// copyFiles copies fileIDs into t.destID in chunks of batchSize. Failed
// items are counted, not retried.
func (s *Saver) copyFiles(ctx context.Context, share Share, t task, fileIDs []string, report *Report) error {
	if len(fileIDs) == 0 {
		return nil
	}

	ok, failed := 0, 0

	for start := 0; start < len(fileIDs); start += s.batchSize {
		end := min(start+s.batchSize, len(fileIDs))
		chunk := fileIDs[start:end]

		if err := s.chunkPacer.Wait(ctx); err != nil {
			return fmt.Errorf("saver: waiting to copy into %s: %w", t.path, err)
		}

		results, err := s.api.CopyMany(ctx, share.ID, share.Token, chunk, t.destID)
		if err != nil {
			return fmt.Errorf("saver: copying files into %s: %w", t.path, err)
		}

		copied := 0

		for _, r := range results {
			if r.Status == statusCopied {
				copied++
				continue
			}

			s.logger.Warn("file copy failed",
				slog.String("path", t.path),
				slog.Int("status", r.Status),
				slog.String("code", r.Code),
				slog.String("message", r.Message),
			)
		}

		// Items the service did not answer for count as failed.
		copied = min(copied, len(chunk))
		ok += copied
		failed += len(chunk) - copied

		s.logger.Info("file batch done",
			slog.String("path", t.path),
			slog.Int("done", end),
			slog.Int("total", len(fileIDs)),
			slog.Int("ok", ok),
			slog.Int("failed", failed),
		)
	}

	report.FilesCopied += ok
	report.FilesFailed += failed

	return nil
}

// copySubtree asks the service to copy the folder sourceID into destID as a
// single operation. Any failure other than an authorization, locked-drive
// or cancellation error yields outcomeFallback.
func (s *Saver) copySubtree(ctx context.Context, share Share, sourceID, destID string) (outcome, error) {
	res, err := s.api.CopyOne(ctx, share.ID, share.Token, sourceID, destID)
	if err != nil {
		return s.classify(ctx, sourceID, "whole-folder copy failed", err)
	}

	switch {
	case res.Status == statusCopied:
		return outcomeCopied, nil
	case res.Status == statusAccepted && res.AsyncTaskID != "":
		return s.pollTask(ctx, sourceID, res.AsyncTaskID)
	default:
		s.logger.Warn("whole-folder copy not accepted, walking folder",
			slog.String("source_id", sourceID),
			slog.Int("status", res.Status),
			slog.String("code", res.Code),
			slog.String("message", res.Message),
		)

		return outcomeFallback, nil
	}
}

// pollTask polls an async copy until it reaches a terminal state. There is
// no attempt limit; only cancellation stops it early.
func (s *Saver) pollTask(ctx context.Context, sourceID, taskID string) (outcome, error) {
	logger := s.logger.With(slog.String("source_id", sourceID), slog.String("async_task_id", taskID))

	for {
		st, err := s.api.CheckAsyncTask(ctx, taskID)
		if err != nil {
			return s.classify(ctx, sourceID, "async task check failed", err)
		}

		switch st.State {
		case adrive.TaskSucceed:
			logger.Info("async folder copy succeeded", slog.Int("total_process", st.TotalProcess))
			return outcomeCopied, nil
		case adrive.TaskFailed, adrive.TaskCancelled:
			logger.Warn("async folder copy ended, walking folder",
				slog.String("state", st.State),
				slog.String("message", st.Message),
			)

			return outcomeFallback, nil
		}

		logger.Debug("async folder copy in progress",
			slog.String("state", st.State),
			slog.Int("consumed", st.ConsumedProcess),
			slog.Int("total", st.TotalProcess),
		)

		if err := s.sleepFunc(ctx, s.pollInterval); err != nil {
			return outcomeFatal, err
		}
	}
}

func (s *Saver) classify(ctx context.Context, sourceID, msg string, err error) (outcome, error) {
	if isFatal(ctx, err) {
		return outcomeFatal, err
	}

	s.logger.Warn(msg+", walking folder",
		slog.String("source_id", sourceID),
		slog.String("error", err.Error()),
	)

	return outcomeFallback, nil
}

// isFatal reports whether err must abort the run instead of demoting the
// whole-folder copy to a walk.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, adrive.ErrUnauthorized) ||
		errors.Is(err, adrive.ErrDriveLocked)
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}

	return parent + "/" + name
}

// timeSleep waits for d or until ctx is done.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
