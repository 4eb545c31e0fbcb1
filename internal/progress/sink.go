package progress

import (
	"sync"

	"github.com/nshenoy/megadl/internal/events"
)

// Sink subscribes to an events.EventBus and drives a ProgressUI's bars
// from the file lifecycle events internal/download publishes, so the
// download engine never has to import or know about the terminal UI.
type Sink struct {
	ui  ProgressUI
	bus *events.EventBus
	ch  <-chan events.Event

	done chan struct{}

	mu    sync.Mutex
	bars  map[string]FileBarHandle
	index int
}

// NewSink wires ui to bus's file-scoped events. Call Close to
// unsubscribe and stop the sink's event loop.
func NewSink(ui ProgressUI, bus *events.EventBus) *Sink {
	s := &Sink{
		ui:   ui,
		bus:  bus,
		ch:   bus.SubscribeAll(),
		done: make(chan struct{}),
		bars: make(map[string]FileBarHandle),
	}

	go func() {
		for {
			select {
			case evt, ok := <-s.ch:
				if !ok {
					return
				}
				s.handle(evt)
			case <-s.done:
				return
			}
		}
	}()

	return s
}

// Close unsubscribes the sink from its bus and stops its event loop.
// Safe to call once; a second call would panic on the closed done
// channel, matching close()'s usual contract.
func (s *Sink) Close() {
	s.bus.UnsubscribeAll(s.ch)
	close(s.done)
}

func (s *Sink) handle(evt events.Event) {
	switch e := evt.(type) {
	case *events.FileEvent:
		s.handleFileEvent(e)
	case *events.ErrorEvent:
		if bar := s.barFor(e.FileName); bar != nil && e.Retryable {
			bar.SetRetry(1)
		}
	}
}

func (s *Sink) handleFileEvent(e *events.FileEvent) {
	switch e.EventType {
	case events.EventFileStarted:
		s.mu.Lock()
		s.index++
		bar := s.ui.AddFileBar(s.index, e.FileID, e.Name, e.Name, e.Size)
		s.bars[e.Name] = bar
		s.mu.Unlock()
	case events.EventFileProgress:
		if bar := s.barFor(e.Name); bar != nil {
			bar.UpdateProgress(e.Progress)
		}
	case events.EventFileCompleted:
		if bar := s.barFor(e.Name); bar != nil {
			bar.Complete(e.Error)
		}
	case events.EventFileFailed:
		if bar := s.barFor(e.Name); bar != nil {
			bar.Complete(e.Error)
		}
	}
}

func (s *Sink) barFor(name string) FileBarHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bars[name]
}

// Wait blocks until the underlying UI's bars finish rendering.
func (s *Sink) Wait() {
	s.ui.Wait()
}
