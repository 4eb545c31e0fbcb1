//go:build darwin || linux

package resources

import "runtime"

// getAvailableMemory returns available system memory in bytes (Unix/Linux/macOS)
func getAvailableMemory() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Conservative estimate: 4GB total system memory minus current allocations,
	// capped to a usable 75% margin.
	totalSystemMemory := uint64(4 * 1024 * 1024 * 1024)
	currentlyAllocated := m.Alloc

	if totalSystemMemory > currentlyAllocated {
		availableBytes := uint64(float64(totalSystemMemory-currentlyAllocated) * 0.75)

		if availableBytes < MinSystemMemory {
			availableBytes = MinSystemMemory
		}
		if availableBytes > MaxSystemMemory {
			availableBytes = MaxSystemMemory
		}
		return availableBytes
	}

	return 2 * 1024 * 1024 * 1024
}
