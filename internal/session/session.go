// Package session persists download-manager state atomically as TOML,
// enabling resumption of pending work across process restarts.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/nshenoy/megadl/internal/config"
)

// Status is the overall lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// UrlStatus is the lifecycle state of one submitted URL.
type UrlStatus string

const (
	UrlPending UrlStatus = "pending"
	UrlFetched UrlStatus = "fetched"
	UrlError   UrlStatus = "error"
)

// FileStatus is the lifecycle state of one concrete file entry.
type FileStatus string

const (
	FilePending      FileStatus = "pending"
	FileDownloading  FileStatus = "downloading"
	FileCompleted    FileStatus = "completed"
	FileError        FileStatus = "error"
	FileSizeMismatch FileStatus = "size_mismatch"
)

// UrlEntry tracks one user-submitted URL through resolution.
type UrlEntry struct {
	URL    string    `toml:"url"`
	Status UrlStatus `toml:"status"`
	ErrMsg string    `toml:"error,omitempty"`
}

// FileEntry tracks one concrete file within a session. Path is unique
// within a session; completed files are removed rather than marked,
// so completion is implicit by absence (spec.md §3).
type FileEntry struct {
	Handle string     `toml:"handle"` // mega.nz node handle, needed to re-resolve the node on resume
	Path   string     `toml:"path"`
	Size   uint64     `toml:"size"`
	Status FileStatus `toml:"status"`
	ErrMsg string     `toml:"error,omitempty"`
}

// State is the full on-disk session: credentials, config, and the
// URL/file queues.
type State struct {
	ID          string                  `toml:"id"`
	Created     time.Time               `toml:"created"`
	Status      Status                  `toml:"status"`
	Credentials config.SavedCredentials `toml:"credentials"`
	Config      config.DownloadConfig   `toml:"config"`
	URLs        []UrlEntry              `toml:"urls"`
	Files       []FileEntry             `toml:"files"`

	path string // set by Load/New, not persisted
}

// New creates a fresh in-progress session with a random v4 id.
func New(stateDir string, creds config.SavedCredentials, cfg config.DownloadConfig) *State {
	id := uuid.New().String()
	return &State{
		ID:          id,
		Created:     time.Now(),
		Status:      StatusInProgress,
		Credentials: creds,
		Config:      cfg,
		path:        statePath(stateDir, id),
	}
}

func statePath(stateDir, id string) string {
	return filepath.Join(stateDir, id+".toml")
}

// Save atomically persists the session: write a 0600 temp file, then
// rename over the final path. Rename is the commit point (spec.md
// §4.E) — a crash between the two steps always leaves either the
// previous state or the new one fully intact, never a truncated file.
func (s *State) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads a session file from disk.
func Load(path string) (*State, error) {
	var s State
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("session: decoding %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// Latest scans stateDir for the newest session whose status is not
// Completed, deleting every older non-completed session file found in
// the same scan so exactly one resume candidate survives. Returns nil
// if no resumable session exists.
//
// On return, any URL entries previously marked Fetched are reset to
// Pending — the pipeline re-classifies files against disk and skips
// what's already downloaded (spec.md §4.E).
func Latest(stateDir string) (*State, error) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type candidate struct {
		state *State
		path  string
	}
	var candidates []candidate

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(stateDir, e.Name())
		st, err := Load(path)
		if err != nil {
			continue
		}
		if st.Status == StatusCompleted {
			continue
		}
		candidates = append(candidates, candidate{state: st, path: path})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].state.Created.After(candidates[j].state.Created)
	})

	newest := candidates[0]
	for _, c := range candidates[1:] {
		os.Remove(c.path)
	}

	for i := range newest.state.URLs {
		if newest.state.URLs[i].Status == UrlFetched {
			newest.state.URLs[i].Status = UrlPending
		}
	}

	return newest.state, nil
}

// MarkFileComplete removes a file entry from the session (completion
// is implicit by absence) and persists.
func (s *State) MarkFileComplete(path string) error {
	for i, f := range s.Files {
		if f.Path == path {
			s.Files = append(s.Files[:i], s.Files[i+1:]...)
			break
		}
	}
	s.syncStatus()
	return s.Save()
}

// MarkFileError records an error on a file entry and persists.
func (s *State) MarkFileError(path, msg string) error {
	for i, f := range s.Files {
		if f.Path == path {
			s.Files[i].Status = FileError
			s.Files[i].ErrMsg = msg
		}
	}
	return s.Save()
}

// MarkFileSizeMismatch records that a file's existing on-disk size
// doesn't match what mega.nz reports, and force_overwrite is off
// (spec.md's OQ1): the engine refuses to touch the file rather than
// guess whether it's a stale partial download or the user's own data.
func (s *State) MarkFileSizeMismatch(path, msg string) error {
	for i, f := range s.Files {
		if f.Path == path {
			s.Files[i].Status = FileSizeMismatch
			s.Files[i].ErrMsg = msg
		}
	}
	return s.Save()
}

// RetryFile resets a failed or size-mismatched file entry back to
// Pending so the next run picks it up again, and persists.
func (s *State) RetryFile(path string) error {
	for i, f := range s.Files {
		if f.Path == path {
			s.Files[i].Status = FilePending
			s.Files[i].ErrMsg = ""
		}
	}
	return s.Save()
}

// RemoveFile drops a file entry (e.g. on explicit user delete).
func (s *State) RemoveFile(path string) error {
	for i, f := range s.Files {
		if f.Path == path {
			s.Files = append(s.Files[:i], s.Files[i+1:]...)
			break
		}
	}
	s.syncStatus()
	return s.Save()
}

// MarkPaused flips the session to Paused and persists.
func (s *State) MarkPaused() error {
	s.Status = StatusPaused
	return s.Save()
}

// MarkCompleted flips the session to Completed and persists. Per
// spec.md §3's invariant, this should only be called once Files is
// empty.
func (s *State) MarkCompleted() error {
	s.Status = StatusCompleted
	return s.Save()
}

// syncStatus marks an InProgress session Completed once its Files list
// is empty — called after any mutation that might empty the queue
// mid-run. It never sets Paused; MarkPaused does that.
func (s *State) syncStatus() {
	if len(s.Files) == 0 && s.Status == StatusInProgress {
		s.Status = StatusCompleted
	}
}

// RemainingCount reports how many file entries are still queued.
func (s *State) RemainingCount() int { return len(s.Files) }

// Path returns the on-disk location of this session file.
func (s *State) Path() string { return s.path }
