package resources

import (
	"runtime"
	"testing"
	"time"
)

func TestNewManagerRespectsOverride(t *testing.T) {
	mgr := NewManager(Config{MaxWorkers: 8})
	if mgr.Stats().TotalWorkers != 8 {
		t.Fatalf("got total %d, want 8", mgr.Stats().TotalWorkers)
	}
	if mgr.Stats().AvailableWorkers != 8 {
		t.Fatalf("expected available to equal total initially")
	}
}

func TestAllocateAndRelease(t *testing.T) {
	mgr := NewManager(Config{MaxWorkers: 10})

	allocated := mgr.Allocate("dl-1", 1*1024*1024*1024, 1)
	if allocated < 1 || allocated > 10 {
		t.Fatalf("got %d workers, want 1..10", allocated)
	}
	if mgr.Stats().AvailableWorkers != 10-allocated {
		t.Fatalf("got available %d, want %d", mgr.Stats().AvailableWorkers, 10-allocated)
	}

	mgr.Release("dl-1")
	if mgr.Stats().AvailableWorkers != 10 {
		t.Fatalf("expected all workers released, got %d", mgr.Stats().AvailableWorkers)
	}
}

func TestMultipleAllocationsStayWithinPool(t *testing.T) {
	mgr := NewManager(Config{MaxWorkers: 15})

	a1 := mgr.Allocate("f1", 500*1024*1024, 3)
	a2 := mgr.Allocate("f2", 2*1024*1024*1024, 3)
	a3 := mgr.Allocate("f3", 100*1024*1024, 3)

	if a1+a2+a3 > 15 {
		t.Fatalf("total allocated %d exceeds pool size 15", a1+a2+a3)
	}

	mgr.Release("f2")
	if mgr.Stats().AvailableWorkers != 15-a1-a3 {
		t.Fatalf("got available %d, want %d", mgr.Stats().AvailableWorkers, 15-a1-a3)
	}
}

func TestFileSizeAllocationScalesWithSize(t *testing.T) {
	mgr := NewManager(Config{MaxWorkers: 16})
	small := mgr.Allocate("small", 50*1024*1024, 1)
	mgr.Release("small")

	mgr = NewManager(Config{MaxWorkers: 16})
	large := mgr.Allocate("large", 5*1024*1024*1024, 1)
	mgr.Release("large")

	if small != 1 {
		t.Fatalf("expected small file to get 1 worker, got %d", small)
	}
	if large <= small {
		t.Fatalf("expected large file to get more workers than small, got large=%d small=%d", large, small)
	}
}

func TestConcurrentAllocateRelease(t *testing.T) {
	mgr := NewManager(Config{MaxWorkers: 20})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			defer func() { done <- true }()
			transferID := string(rune('A' + id))
			n := mgr.Allocate(transferID, 1*1024*1024*1024, 10)
			if n < 1 {
				t.Errorf("worker %d got 0 workers", id)
			}
			time.Sleep(10 * time.Millisecond)
			mgr.Release(transferID)
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if mgr.Stats().AvailableWorkers != mgr.Stats().TotalWorkers {
		t.Fatal("expected all workers available after concurrent test")
	}
}

func TestThroughputMonitorScaleSignals(t *testing.T) {
	mgr := NewManager(Config{MaxWorkers: 8})

	for i := 0; i < 4; i++ {
		mgr.RecordThroughput("dl-1", 10*1024*1024)
	}
	if !mgr.ShouldScaleUp("dl-1") {
		t.Fatal("expected stable high throughput to suggest scaling up")
	}

	mgr.RecordThroughput("dl-2", 10*1024*1024)
	mgr.RecordThroughput("dl-2", 10*1024*1024)
	mgr.RecordThroughput("dl-2", 10*1024*1024)
	mgr.RecordThroughput("dl-2", 1*1024*1024)
	mgr.RecordThroughput("dl-2", 1*1024*1024)
	mgr.RecordThroughput("dl-2", 1*1024*1024)
	if !mgr.ShouldScaleDown("dl-2") {
		t.Fatal("expected declining throughput to suggest scaling down")
	}
}

func TestMemoryDetection(t *testing.T) {
	mem := getAvailableMemory()
	if mem < 512*1024*1024 {
		t.Fatalf("getAvailableMemory returned too little: %d bytes", mem)
	}
	if mem > 128*1024*1024*1024 {
		t.Fatalf("getAvailableMemory returned suspiciously large value: %d bytes", mem)
	}
	t.Logf("detected available memory: %d MB, cores: %d", mem/(1024*1024), runtime.NumCPU())
}
