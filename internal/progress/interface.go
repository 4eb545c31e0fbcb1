package progress

import "io"

// ProgressUI defines the interface for progress tracking during file
// downloads. DownloadUI implements this; callers that just want to
// wire session events into whatever UI is active should prefer
// Sink (sink.go) rather than depending on DownloadUI directly.
type ProgressUI interface {
	// AddFileBar creates a new progress bar for a file download.
	AddFileBar(index int, fileID, remoteName, localPath string, size int64) FileBarHandle

	// Wait blocks until all progress bars complete.
	Wait()

	// Writer returns an io.Writer that safely outputs above the
	// progress bars. Returns mpb's writer if in terminal mode,
	// otherwise os.Stderr.
	Writer() io.Writer

	// IsTerminal returns true if output is to a terminal (progress
	// bars are active).
	IsTerminal() bool
}

// FileBarHandle represents a handle to a single file's progress bar.
type FileBarHandle interface {
	// UpdateProgress updates the progress bar based on a fraction
	// (0.0 to 1.0).
	UpdateProgress(fraction float64)

	// SetRetry updates the retry counter and visually marks the bar.
	SetRetry(count int)

	// Complete marks the operation as finished and prints a summary.
	Complete(err error)

	// ResetStartTime resets the start time to now (used to exclude
	// preparation time from the reported transfer rate).
	ResetStartTime()
}

var _ ProgressUI = (*DownloadUI)(nil)
var _ FileBarHandle = (*DownloadFileBar)(nil)
