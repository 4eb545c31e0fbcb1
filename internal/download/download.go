// Package download implements the core per-file and per-session
// download pipeline: classifying what's already on disk, streaming a
// node through a .part file, and folding the result into session
// state, throughput stats, and progress events.
package download

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/nshenoy/megadl/internal/diskspace"
	"github.com/nshenoy/megadl/internal/events"
	"github.com/nshenoy/megadl/internal/fsops"
	"github.com/nshenoy/megadl/internal/http"
	"github.com/nshenoy/megadl/internal/megaclient"
	"github.com/nshenoy/megadl/internal/resources"
	"github.com/nshenoy/megadl/internal/session"
	"github.com/nshenoy/megadl/internal/stats"
)

// DiskSafetyMargin is the multiplier applied to a file's size before
// checking free space (1.05 == require 5% headroom above the raw byte
// count), per internal/diskspace.CheckAvailableSpace's convention.
const DiskSafetyMargin = 1.05

// Retry tuning for a single file's transfer. mega.nz calls go through
// internal/ratelimit separately (internal/megaclient handles that
// concern); these bound how many times a dropped connection mid-file
// is retried before the file is given up as failed.
const (
	maxTransferRetries = 5
	retryInitialDelay  = 500 * time.Millisecond
	retryMaxDelay      = 20 * time.Second
)

// ErrSizeMismatch is returned when an existing file at the destination
// doesn't match the remote size and force_overwrite is disabled.
var ErrSizeMismatch = errors.New("download: existing file size does not match remote")

// Client is the narrow capability the engine needs from a logged-in
// mega.nz session. *megaclient.Client satisfies this directly.
type Client interface {
	Download(ctx context.Context, node *megaclient.Node, dstPath string, onProgress megaclient.ProgressFunc) error
}

// File describes one file queued for download: a resolved mega.nz
// node and the path it should land at.
type File struct {
	Handle   string // mega.nz node handle, used as the resources.Manager allocation key
	Node     *megaclient.Node
	DestPath string
}

// CollectResult is CollectFiles' partition of a resolved node tree:
// items ready to pull, and counts of what was already complete or
// found with a leftover .part sibling.
type CollectResult struct {
	ToDownload []File
	Skipped    int
	Partial    int
}

// CollectFiles walks root (recursing into folder nodes) and
// classifies every leaf file it finds against disk state, building
// each file's destination path by concatenating ancestor folder names
// under destPath. rootHandle identifies the resolved URL the walk
// started from; descendant files inside a folder are keyed by their
// own destination path rather than a mega.nz handle, since go-mega
// exposes no public accessor for a child node's internal handle once
// a folder tree has been walked — only the root handle from the
// original URL is available.
//
// For every leaf with a leftover <path>.part sibling, a
// PartialDetected event is published (informational only: the engine
// never byte-range-resumes a .part, it redownloads).
func CollectFiles(fs fsops.FS, bus *events.EventBus, rootHandle string, root *megaclient.Node, destPath string, forceOverwrite bool) CollectResult {
	var result CollectResult
	collectNode(fs, bus, rootHandle, root, destPath, true, forceOverwrite, &result)
	return result
}

func collectNode(fs fsops.FS, bus *events.EventBus, rootHandle string, n *megaclient.Node, destPath string, isRoot bool, forceOverwrite bool, result *CollectResult) {
	if n.IsFolder() {
		for _, c := range n.Children() {
			collectNode(fs, bus, rootHandle, c, filepath.Join(destPath, c.Name), false, forceOverwrite, result)
		}
		return
	}

	partPath := destPath + ".part"
	if partExists, _ := fs.Exists(partPath); partExists {
		result.Partial++
		if size, ok, _ := fs.Size(partPath); ok && bus != nil {
			bus.Publish(&events.PartialDetectedEvent{
				BaseEvent:    events.BaseEvent{EventType: events.EventPartialDetected, Time: time.Now()},
				Name:         n.Name,
				ExistingSize: size,
				ExpectedSize: n.Size,
			})
		}
	}

	action, err := classifyExisting(fs, destPath, n.Size, forceOverwrite)
	if err == nil && action == ActionSkip {
		result.Skipped++
		return
	}

	handle := destPath
	if isRoot {
		handle = rootHandle
	}
	result.ToDownload = append(result.ToDownload, File{Handle: handle, Node: n, DestPath: destPath})
}

// Action is the classification CollectFiles/classifyExisting assigns
// a queued file against what's already on disk.
type Action int

const (
	// ActionDownload proceeds with a normal (or overwriting) download.
	ActionDownload Action = iota
	// ActionSkip means a complete, correctly-sized file already
	// exists at the destination; nothing to do.
	ActionSkip
	// ActionRefuse means the destination exists with the wrong size,
	// force_overwrite is off, and there's no stale .part file to
	// explain the mismatch — the engine won't guess and overwrite
	// what might be the user's own data (spec's OQ1 decision).
	ActionRefuse
)

// classifyExisting inspects dest (and its .part sibling) to decide
// what DownloadFile should do.
func classifyExisting(fs fsops.FS, dest string, expectedSize int64, forceOverwrite bool) (Action, error) {
	if forceOverwrite {
		return ActionDownload, nil
	}

	exists, err := fs.Exists(dest)
	if err != nil {
		return ActionDownload, err
	}
	if !exists {
		return ActionDownload, nil
	}

	size, ok, err := fs.Size(dest)
	if err != nil {
		return ActionDownload, err
	}
	if !ok {
		return ActionDownload, nil
	}
	if size == expectedSize {
		return ActionSkip, nil
	}

	// Wrong size. A leftover .part next to it means the mismatch is
	// our own stale artifact from an earlier interrupted run (go-mega
	// gives us no byte-range resume, so it must restart); otherwise
	// this is unexplained and gets refused.
	partExists, err := fs.Exists(dest + ".part")
	if err != nil {
		return ActionDownload, err
	}
	if partExists {
		return ActionDownload, nil
	}
	return ActionRefuse, nil
}

// Engine runs the download pipeline for a session's files. sem is the
// engine's single, shared concurrency permit pool: every DownloadAll
// call — whether the initial batch or a later one pushed in through
// the ingress API — acquires from the same pool, so N batches never
// add up to N*ConcurrentFiles simultaneous transfers.
type Engine struct {
	FS        fsops.FS
	Client    Client
	Resources *resources.Manager
	Bus       *events.EventBus

	ForceOverwrite  bool
	ConcurrentFiles int
	CleanupOnError  bool

	sem chan struct{}
}

// NewEngine builds an engine with an OS-backed filesystem and a permit
// pool sized to concurrentFiles (shared across every DownloadAll call
// made against it). concurrentFiles <= 0 defaults to 4.
func NewEngine(client Client, res *resources.Manager, bus *events.EventBus, concurrentFiles int) *Engine {
	if concurrentFiles <= 0 {
		concurrentFiles = 4
	}
	return &Engine{
		FS:              fsops.OS{},
		Client:          client,
		Resources:       res,
		Bus:             bus,
		ConcurrentFiles: concurrentFiles,
		sem:             make(chan struct{}, concurrentFiles),
	}
}

// Result summarizes the outcome of one file's DownloadFile call.
type Result struct {
	Status session.FileStatus
	Stats  stats.FileStats // zero value if Status != FileCompleted
	Err    error
}

// DownloadFile runs the full pipeline for a single file: classify
// what's on disk, stream it to a .part file with retry, then commit
// via rename. st may be nil (e.g. ad hoc single-file downloads outside
// a tracked session); when non-nil the session is updated and saved so
// a crash mid-transfer leaves a resumable record.
func (e *Engine) DownloadFile(ctx context.Context, f File, st *session.State) Result {
	tracker := stats.NewTracker(filepath.Base(f.DestPath))

	action, err := classifyExisting(e.FS, f.DestPath, f.Node.Size, e.ForceOverwrite)
	if err != nil {
		return e.fail(f, st, err, true)
	}

	switch action {
	case ActionSkip:
		if st != nil {
			_ = st.MarkFileComplete(f.DestPath)
		}
		e.publishFile(events.EventFileCompleted, f, 1.0, 0, nil)
		return Result{Status: session.FileCompleted}

	case ActionRefuse:
		if st != nil {
			_ = st.MarkFileSizeMismatch(f.DestPath, ErrSizeMismatch.Error())
		}
		e.publishError(f, ErrSizeMismatch, false, true)
		return Result{Status: session.FileSizeMismatch, Err: ErrSizeMismatch}
	}

	if err := diskspace.CheckAvailableSpace(f.DestPath, f.Node.Size, DiskSafetyMargin); err != nil {
		return e.fail(f, st, err, true)
	}

	if e.Resources != nil {
		// The allocated count is realized via megaclient's
		// SetDownloadWorkers at login, not consulted here; Allocate's
		// job is to keep the shared pool's accounting honest across
		// concurrent files.
		e.Resources.Allocate(f.Handle, f.Node.Size, e.ConcurrentFiles)
		defer e.Resources.Release(f.Handle)
	}

	if err := e.FS.CreateDirAll(filepath.Dir(f.DestPath)); err != nil {
		return e.fail(f, st, err, true)
	}

	partPath := f.DestPath + ".part"
	// Pre-allocate the .part file at full size so a disk that's
	// genuinely full fails here, before any bytes are requested from
	// mega.nz, rather than partway through the transfer.
	part, err := e.FS.CreateFile(partPath, f.Node.Size)
	if err != nil {
		return e.fail(f, st, err, true)
	}
	part.Close()

	if st != nil {
		st.Status = session.StatusInProgress
		_ = st.Save()
	}
	e.publishFile(events.EventFileStarted, f, 0, 0, nil)

	started := time.Now()
	var lastReported int64
	onProgress := func(cumulative int64) {
		delta := cumulative - lastReported
		if delta <= 0 {
			return
		}
		lastReported = cumulative
		tracker.RecordBytes(delta)
		var speed int64
		if secs := time.Since(started).Seconds(); secs > 0 {
			speed = int64(float64(tracker.Downloaded()) / secs)
		}
		e.publishFile(events.EventFileProgress, f, float64(cumulative)/float64(f.Node.Size), speed, nil)
	}

	retryCfg := http.Config{
		MaxRetries:   maxTransferRetries,
		InitialDelay: retryInitialDelay,
		MaxDelay:     retryMaxDelay,
		OnRetry: func(attempt int, err error, errType http.ErrorType) {
			e.publishError(f, err, true, false)
		},
	}

	err = http.ExecuteWithRetry(ctx, retryCfg, func() error {
		return e.Client.Download(ctx, f.Node, partPath, onProgress)
	})
	if err != nil {
		if ctx.Err() != nil {
			return e.cancelled(f, partPath)
		}
		if e.CleanupOnError {
			_ = e.FS.Remove(partPath)
		}
		return e.fail(f, st, err, true)
	}

	if err := e.FS.Rename(partPath, f.DestPath); err != nil {
		return e.fail(f, st, err, true)
	}

	fs := tracker.Finish()
	if st != nil {
		_ = st.MarkFileComplete(f.DestPath)
	}
	var speed int64
	if secs := fs.Elapsed.Seconds(); secs > 0 {
		speed = int64(float64(fs.Bytes) / secs)
	}
	e.publishFile(events.EventFileCompleted, f, 1.0, speed, nil)

	return Result{Status: session.FileCompleted, Stats: fs}
}

func (e *Engine) fail(f File, st *session.State, err error, persisted bool) Result {
	if st != nil {
		_ = st.MarkFileError(f.DestPath, err.Error())
	}
	e.publishError(f, err, false, persisted)
	return Result{Status: session.FileError, Err: err}
}

// cancelled handles a transfer interrupted by ctx cancellation: it
// must not enter the error-emission path (no Error event, no
// MarkFileError) — the file entry is left untouched so it still reads
// Pending and a later resume retries it rather than treating user
// cancellation as a download failure.
func (e *Engine) cancelled(f File, partPath string) Result {
	if e.CleanupOnError {
		_ = e.FS.Remove(partPath)
	}
	e.publishFile(events.EventFileCancelled, f, 0, 0, nil)
	return Result{Status: session.FilePending, Err: context.Canceled}
}

func (e *Engine) publishFile(t events.EventType, f File, progress float64, speed int64, err error) {
	if e.Bus == nil {
		return
	}
	size := int64(0)
	if f.Node != nil {
		size = f.Node.Size
	}
	e.Bus.Publish(&events.FileEvent{
		BaseEvent: events.BaseEvent{EventType: t, Time: time.Now()},
		FileID:    f.Handle,
		Name:      filepath.Base(f.DestPath),
		Size:      size,
		Progress:  progress,
		Speed:     float64(speed),
		Error:     err,
	})
}

func (e *Engine) publishError(f File, err error, retryable, persisted bool) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(&events.ErrorEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventError, Time: time.Now()},
		FileName:  filepath.Base(f.DestPath),
		Stage:     "downloading",
		Error:     err,
		Retryable: retryable,
		Persisted: persisted,
	})
}

// DownloadAll runs every file in files concurrently, bounded by
// e.ConcurrentFiles, and returns once all have finished (or ctx is
// cancelled). It aggregates results into a stats.Builder and, if st is
// non-nil, persists session progress as files complete.
func (e *Engine) DownloadAll(ctx context.Context, files []File, st *session.State) (stats.SessionStats, []Result) {
	builder := stats.NewBuilder()
	results := make([]Result, len(files))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, f := range files {
		select {
		case <-ctx.Done():
			results[i] = Result{Status: session.FilePending, Err: ctx.Err()}
			continue
		default:
		}

		wg.Add(1)
		e.sem <- struct{}{}
		go func(i int, f File) {
			defer wg.Done()
			defer func() { <-e.sem }()

			res := e.DownloadFile(ctx, f, st)

			mu.Lock()
			results[i] = res
			switch res.Status {
			case session.FileCompleted:
				if res.Stats.Bytes > 0 {
					builder.AddDownload(res.Stats)
				} else {
					builder.AddSkipped()
				}
			}
			mu.Unlock()
		}(i, f)
	}

	wg.Wait()
	return builder.Build(), results
}
