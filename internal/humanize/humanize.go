// Package humanize formats byte counts, durations, and transfer rates
// for terminal and log output.
package humanize

import (
	"fmt"
	"time"
)

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// Bytes formats n as a binary (1024-based) size string, e.g.
// "4.50 MiB".
func Bytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	val := float64(n)
	unit := 0
	for val >= 1024 && unit < len(byteUnits)-1 {
		val /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", val, byteUnits[unit])
}

// Rate formats a bytes/second throughput figure, e.g. "3.20 MiB/s".
func Rate(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return Bytes(int64(bytesPerSecond)) + "/s"
}

// Duration formats d at whole-second resolution, e.g. "1h2m3s" for
// longer transfers or "45s" for short ones.
func Duration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	return d.String()
}

// ETA estimates the remaining time to transfer remaining bytes at
// the given rate, returning "unknown" if the rate is non-positive.
func ETA(remaining int64, bytesPerSecond float64) string {
	if bytesPerSecond <= 0 || remaining <= 0 {
		return "unknown"
	}
	secs := float64(remaining) / bytesPerSecond
	return Duration(time.Duration(secs) * time.Second)
}
