// Package stats tracks per-file download throughput and aggregates
// per-session statistics: peak instantaneous speed, ramp-up time (the
// first moment speed reaches 80% of the file's eventual peak), and
// session-wide totals.
package stats

import (
	"math"
	"sync/atomic"
	"time"
)

// FileStats summarizes one completed file download.
type FileStats struct {
	Name        string
	Bytes       int64
	Elapsed     time.Duration
	PeakSpeed   float64       // bytes/sec
	RampUpTime  time.Duration // 0 if the 80%-of-peak threshold was never reached
	ReachedRamp bool
}

// SessionStats aggregates a batch of file downloads.
type SessionStats struct {
	FilesCompleted int
	FilesSkipped   int
	TotalBytes     int64
	PeakSpeed      float64
	MeanRampUp     time.Duration // mean over files that reached ramp-up
}

// AverageSpeed returns the session's overall throughput in bytes/sec
// given the wall-clock duration of the batch.
func (s SessionStats) AverageSpeed(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / elapsed.Seconds()
}

// Tracker records progress for a single file download. All methods
// are safe for concurrent use by multiple chunk workers.
type Tracker struct {
	name  string
	start time.Time

	downloaded int64 // bytes downloaded so far
	peakBits   uint64

	rampUpNanos int64 // time.Time.UnixNano() of ramp-up moment, 0 until set
	rampSet     int32
}

// NewTracker starts a tracker for a file named name.
func NewTracker(name string) *Tracker {
	return &Tracker{name: name, start: time.Now()}
}

// RecordBytes adds delta bytes to the cumulative downloaded counter
// and updates the instantaneous-speed / peak / ramp-up bookkeeping.
// delta must be the monotonic increase for this sample, never a raw
// cumulative value — callers are responsible for converting cumulative
// callbacks from the transport into deltas before calling this.
func (t *Tracker) RecordBytes(delta int64) {
	if delta <= 0 {
		return
	}
	total := atomic.AddInt64(&t.downloaded, delta)

	elapsed := time.Since(t.start).Seconds()
	if elapsed <= 0 {
		return
	}
	speed := float64(total) / elapsed

	peak := t.updatePeak(speed)
	if speed >= 0.8*peak && atomic.CompareAndSwapInt32(&t.rampSet, 0, 1) {
		atomic.StoreInt64(&t.rampUpNanos, time.Now().UnixNano())
	}
}

// updatePeak performs an atomic fetch-max of speed against the
// tracker's peak, returning the resulting peak value.
func (t *Tracker) updatePeak(speed float64) float64 {
	for {
		old := atomic.LoadUint64(&t.peakBits)
		oldSpeed := math.Float64frombits(old)
		if speed <= oldSpeed {
			return oldSpeed
		}
		if atomic.CompareAndSwapUint64(&t.peakBits, old, math.Float64bits(speed)) {
			return speed
		}
	}
}

// Downloaded returns the cumulative bytes recorded so far.
func (t *Tracker) Downloaded() int64 {
	return atomic.LoadInt64(&t.downloaded)
}

// Finish finalizes the tracker into a FileStats snapshot.
func (t *Tracker) Finish() FileStats {
	elapsed := time.Since(t.start)
	peak := math.Float64frombits(atomic.LoadUint64(&t.peakBits))

	fs := FileStats{
		Name:      t.name,
		Bytes:     atomic.LoadInt64(&t.downloaded),
		Elapsed:   elapsed,
		PeakSpeed: peak,
	}

	if nanos := atomic.LoadInt64(&t.rampUpNanos); nanos != 0 {
		fs.ReachedRamp = true
		fs.RampUpTime = time.Unix(0, nanos).Sub(t.start)
	}
	return fs
}

// Builder accumulates per-file FileStats into a SessionStats.
type Builder struct {
	filesCompleted int
	filesSkipped   int
	totalBytes     int64
	peakSpeed      float64
	rampSum        time.Duration
	rampCount      int
}

// NewBuilder creates an empty session stats builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddDownload folds one completed file's stats into the session.
func (b *Builder) AddDownload(fs FileStats) {
	b.filesCompleted++
	b.totalBytes += fs.Bytes
	if fs.PeakSpeed > b.peakSpeed {
		b.peakSpeed = fs.PeakSpeed
	}
	if fs.ReachedRamp {
		b.rampSum += fs.RampUpTime
		b.rampCount++
	}
}

// AddSkipped records one file that was skipped (already complete on
// disk) without contributing to throughput totals.
func (b *Builder) AddSkipped() {
	b.filesSkipped++
}

// Build finalizes the session statistics.
func (b *Builder) Build() SessionStats {
	var mean time.Duration
	if b.rampCount > 0 {
		mean = b.rampSum / time.Duration(b.rampCount)
	}
	return SessionStats{
		FilesCompleted: b.filesCompleted,
		FilesSkipped:   b.filesSkipped,
		TotalBytes:     b.totalBytes,
		PeakSpeed:      b.peakSpeed,
		MeanRampUp:     mean,
	}
}
