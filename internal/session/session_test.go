package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nshenoy/megadl/internal/config"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, config.SavedCredentials{Email: "x@example.com"}, config.DefaultDownloadConfig())
	s.Files = []FileEntry{{Path: "/dl/a.txt", Size: 10, Status: FilePending}}
	s.URLs = []UrlEntry{{URL: "https://mega.nz/file/abc#def", Status: UrlFetched}}

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(s.Path())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("got id %q, want %q", got.ID, s.ID)
	}
	if len(got.Files) != 1 || got.Files[0].Path != "/dl/a.txt" {
		t.Fatalf("got files %+v", got.Files)
	}
}

func TestLatestKeepsNewestAndResetsFetched(t *testing.T) {
	dir := t.TempDir()

	older := New(dir, config.SavedCredentials{}, config.DefaultDownloadConfig())
	older.Created = time.Now().Add(-time.Hour)
	older.URLs = []UrlEntry{{URL: "https://mega.nz/file/old", Status: UrlFetched}}
	if err := older.Save(); err != nil {
		t.Fatalf("Save older: %v", err)
	}

	newer := New(dir, config.SavedCredentials{}, config.DefaultDownloadConfig())
	newer.Created = time.Now()
	newer.URLs = []UrlEntry{{URL: "https://mega.nz/file/new", Status: UrlFetched}}
	if err := newer.Save(); err != nil {
		t.Fatalf("Save newer: %v", err)
	}

	got, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil {
		t.Fatal("expected a resumable session")
	}
	if got.ID != newer.ID {
		t.Fatalf("got id %q, want newest %q", got.ID, newer.ID)
	}
	if got.URLs[0].Status != UrlPending {
		t.Fatalf("expected Fetched to reset to Pending, got %v", got.URLs[0].Status)
	}

	if _, err := Load(older.Path()); err == nil {
		t.Fatal("expected older session file to have been removed")
	}
}

func TestLatestSkipsCompleted(t *testing.T) {
	dir := t.TempDir()

	done := New(dir, config.SavedCredentials{}, config.DefaultDownloadConfig())
	done.Status = StatusCompleted
	if err := done.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no resumable session, got %+v", got)
	}
}

func TestLatestMissingDirReturnsNil(t *testing.T) {
	got, err := Latest(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for a missing state directory")
	}
}

func TestMarkFileCompleteDropsEntryAndCompletesSession(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, config.SavedCredentials{}, config.DefaultDownloadConfig())
	s.Files = []FileEntry{{Path: "/dl/a.txt", Status: FilePending}}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.MarkFileComplete("/dl/a.txt"); err != nil {
		t.Fatalf("MarkFileComplete: %v", err)
	}
	if len(s.Files) != 0 {
		t.Fatalf("expected file entry removed, got %+v", s.Files)
	}
	if s.Status != StatusCompleted {
		t.Fatalf("expected session Completed once queue empties, got %v", s.Status)
	}
}

func TestMarkFileSizeMismatchPersistsStatus(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, config.SavedCredentials{}, config.DefaultDownloadConfig())
	s.Files = []FileEntry{{Path: "/dl/b.txt", Status: FilePending}}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.MarkFileSizeMismatch("/dl/b.txt", "existing file size does not match remote"); err != nil {
		t.Fatalf("MarkFileSizeMismatch: %v", err)
	}
	if s.Files[0].Status != FileSizeMismatch {
		t.Fatalf("expected FileSizeMismatch, got %v", s.Files[0].Status)
	}

	reloaded, err := Load(s.Path())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Files[0].Status != FileSizeMismatch {
		t.Fatalf("expected persisted FileSizeMismatch, got %v", reloaded.Files[0].Status)
	}
}
