package stats

import "testing"

func TestTrackerMonotonicDownloaded(t *testing.T) {
	tr := NewTracker("movie.mkv")
	deltas := []int64{100_000, 250_000, 350_000, 200_000, 100_000}
	var want int64
	for _, d := range deltas {
		tr.RecordBytes(d)
		want += d
	}
	if got := tr.Downloaded(); got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestTrackerIgnoresNonPositiveDeltas(t *testing.T) {
	tr := NewTracker("f")
	tr.RecordBytes(100)
	tr.RecordBytes(0)
	tr.RecordBytes(-50)
	if got := tr.Downloaded(); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestBuilderIgnoresFilesWithoutRampUp(t *testing.T) {
	b := NewBuilder()
	b.AddDownload(FileStats{Bytes: 100, ReachedRamp: false})
	b.AddDownload(FileStats{Bytes: 200, ReachedRamp: false})
	got := b.Build()
	if got.MeanRampUp != 0 {
		t.Fatalf("expected zero mean ramp-up, got %v", got.MeanRampUp)
	}
	if got.TotalBytes != 300 {
		t.Fatalf("got %d, want 300", got.TotalBytes)
	}
}

func TestBuilderSkippedDoesNotAffectBytes(t *testing.T) {
	b := NewBuilder()
	b.AddSkipped()
	b.AddSkipped()
	got := b.Build()
	if got.FilesSkipped != 2 || got.TotalBytes != 0 {
		t.Fatalf("got %+v", got)
	}
}
