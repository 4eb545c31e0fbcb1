// Package orchestrator turns user-submitted input (raw mega.nz URLs,
// .dlc container paths, or arbitrary text containing either) into a
// queue of concrete files ready for internal/download, resolving each
// URL's node against a logged-in megaclient.Client and recording
// unresolvable entries against session state rather than failing the
// whole batch.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nshenoy/megadl/internal/dlc"
	"github.com/nshenoy/megadl/internal/download"
	"github.com/nshenoy/megadl/internal/events"
	"github.com/nshenoy/megadl/internal/fsops"
	"github.com/nshenoy/megadl/internal/megaclient"
	"github.com/nshenoy/megadl/internal/session"
	"github.com/nshenoy/megadl/internal/urlextract"
	"github.com/nshenoy/megadl/internal/util/paths"
	"github.com/nshenoy/megadl/internal/validation"
)

var handleRe = regexp.MustCompile(`mega\.nz/(?:file|folder)/([^#/?]+)`)

// ErrNoHandle is returned when a string doesn't contain a recognizable
// mega.nz file/folder handle.
var ErrNoHandle = fmt.Errorf("orchestrator: no mega.nz handle found in URL")

// ParseHandle extracts the node handle segment from a mega.nz
// file/folder URL, normalizing legacy (#!handle!key) forms first.
func ParseHandle(rawURL string) (string, error) {
	u := urlextract.Normalize(strings.TrimSpace(rawURL))
	sub := handleRe.FindStringSubmatch(u)
	if sub == nil {
		return "", ErrNoHandle
	}
	return sub[1], nil
}

// Resolver is the subset of megaclient.Client the orchestrator needs.
type Resolver interface {
	ResolveHandle(ctx context.Context, handle string) (*megaclient.Node, error)
}

// Queue builds a session's URL and file queues from raw input: each
// string in inputs is either a direct mega.nz URL, a path to a local
// .dlc container, or free text to scan for both via
// internal/urlextract. A bare node handle is not a recognized input.
type Queue struct {
	Resolver       Resolver
	Decoder        *dlc.Decoder
	DestDir        string
	FS             fsops.FS
	Bus            *events.EventBus
	ForceOverwrite bool
}

// NewQueue builds a Queue with a fresh .dlc decoder and an OS-backed
// filesystem. Bus and ForceOverwrite are zero-valued (no events
// published, no forced overwrite) until the caller sets them.
func NewQueue(resolver Resolver, destDir string) *Queue {
	return &Queue{Resolver: resolver, Decoder: dlc.NewDecoder(), DestDir: destDir, FS: fsops.OS{}}
}

func (q *Queue) publish(event events.Event) {
	if q.Bus != nil {
		q.Bus.Publish(event)
	}
}

// Resolve expands inputs into concrete download.File entries and a
// parallel slice of session.UrlEntry describing what happened to each
// URL encountered along the way (fetched or errored). It never
// returns an error itself; per-URL failures are captured in the
// returned UrlEntry list so one bad link doesn't abort the batch.
func (q *Queue) Resolve(ctx context.Context, inputs []string) ([]download.File, []session.UrlEntry) {
	q.publish(&events.UrlsReceivedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventUrlsReceived, Time: time.Now()},
		Count:     len(inputs),
	})

	var urls []string
	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(in), ".dlc") {
			expanded, err := q.expandContainer(ctx, in)
			if err != nil {
				urls = append(urls, in) // recorded as an error below
				continue
			}
			urls = append(urls, expanded...)
			continue
		}
		urls = append(urls, urlextract.Extract(in)...)
	}

	var files []download.File
	var entries []session.UrlEntry

	for _, u := range urls {
		q.publish(&events.UrlEvent{BaseEvent: events.BaseEvent{EventType: events.EventUrlQueued, Time: time.Now()}, URL: u})

		handle, err := ParseHandle(u)
		if err != nil {
			entries = append(entries, session.UrlEntry{URL: u, Status: session.UrlError, ErrMsg: err.Error()})
			continue
		}

		q.publish(&events.StatusEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventStatus, Time: time.Now()},
			Message:   fmt.Sprintf("resolving %s", u),
		})

		node, err := q.Resolver.ResolveHandle(ctx, handle)
		if err != nil {
			entries = append(entries, session.UrlEntry{URL: u, Status: session.UrlError, ErrMsg: err.Error()})
			continue
		}

		// node.Name comes from the mega.nz API, not the local user, so
		// it's validated before ever reaching filepath.Join: a
		// maliciously-named remote file ("../../.ssh/authorized_keys")
		// must not be able to write outside DestDir.
		if err := validation.ValidateFilename(node.Name); err != nil {
			entries = append(entries, session.UrlEntry{URL: u, Status: session.UrlError, ErrMsg: err.Error()})
			continue
		}

		destPath := filepath.Join(q.DestDir, node.Name)
		collected := download.CollectFiles(q.FS, q.Bus, handle, node, destPath, q.ForceOverwrite)

		q.publish(&events.FilesCollectedEvent{
			BaseEvent:  events.BaseEvent{EventType: events.EventFilesCollected, Time: time.Now()},
			URL:        u,
			ToDownload: len(collected.ToDownload),
			Skipped:    collected.Skipped,
			Partial:    collected.Partial,
		})

		for _, f := range collected.ToDownload {
			files = append(files, f)
			q.publish(&events.FileEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventFileQueued, Time: time.Now()},
				FileID:    f.Handle,
				Name:      filepath.Base(f.DestPath),
				Size:      f.Node.Size,
			})
		}

		entries = append(entries, session.UrlEntry{URL: u, Status: session.UrlFetched})
		q.publish(&events.UrlEvent{BaseEvent: events.BaseEvent{EventType: events.EventUrlResolved, Time: time.Now()}, URL: u})
	}

	deduplicateDestinations(files)

	return files, entries
}

// deduplicateDestinations renames DestPath in place for any files that
// resolved to the same local path (two distinct mega.nz links sharing
// a filename), so one download doesn't clobber the other's .part file.
func deduplicateDestinations(files []download.File) {
	queued := make([]paths.QueuedFile, len(files))
	for i, f := range files {
		queued[i] = paths.QueuedFile{Handle: f.Handle, Name: f.Node.Name, LocalPath: f.DestPath, Size: f.Node.Size}
	}

	resolved, _ := paths.ResolveCollisions(queued)
	for i := range files {
		files[i].DestPath = resolved[i].LocalPath
	}
}

// expandContainer reads a .dlc file from disk and decodes it into its
// contained mega.nz URLs.
func (q *Queue) expandContainer(ctx context.Context, path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reading container %s: %w", path, err)
	}
	return q.Decoder.Decode(ctx, string(raw))
}

// ToFileEntries converts resolved files into session.FileEntry records
// for a fresh session's queue.
func ToFileEntries(files []download.File) []session.FileEntry {
	entries := make([]session.FileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, session.FileEntry{
			Handle: f.Handle,
			Path:   f.DestPath,
			Size:   uint64(f.Node.Size),
			Status: session.FilePending,
		})
	}
	return entries
}
