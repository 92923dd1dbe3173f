// Package progress decouples pipeline progress reporting from any renderer.
// Events are published without back-pressure: a slow or absent consumer never
// blocks fetch workers.
package progress

import (
	"log/slog"
	"sync"
	"time"
)

// TaskKind identifies what a progress event is about.
type TaskKind string

const (
	KindChapter    TaskKind = "chapter"
	KindStylesheet TaskKind = "stylesheet"
	KindImage      TaskKind = "image"
)

// Event is one per-task progress notification. Events may arrive out of
// order relative to chapter index.
type Event struct {
	Kind    TaskKind
	ID      string // local filename or URL of the task
	State   string // fetched | transformed | failed
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// Sink consumes progress events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Publish(Event)
}

// NullSink discards all events.
type NullSink struct{}

func (NullSink) Publish(Event) {}

// LogSink writes one slog line per event.
type LogSink struct{}

func (LogSink) Publish(e Event) {
	if e.Err != nil {
		slog.Warn("Task failed", "kind", e.Kind, "id", e.ID, "elapsed", e.Elapsed, "error", e.Err)
		return
	}
	slog.Debug("Task done", "kind", e.Kind, "id", e.ID, "state", e.State, "bytes", e.Bytes, "elapsed", e.Elapsed)
}

// Dispatcher fans events out to a sink through a bounded buffer. Publish
// never blocks; events beyond the buffer are dropped and counted.
type Dispatcher struct {
	ch      chan Event
	dropped int64
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
}

// NewDispatcher starts a dispatcher delivering to sink with the given buffer
// size. Close must be called to flush and stop the delivery goroutine.
func NewDispatcher(sink Sink, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{ch: make(chan Event, buffer)}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range d.ch {
			sink.Publish(e)
		}
	}()
	return d
}

// Publish enqueues an event, dropping it if the buffer is full.
func (d *Dispatcher) Publish(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	select {
	case d.ch <- e:
	default:
		d.dropped++
	}
	d.mu.Unlock()
}

// Close flushes buffered events and stops delivery. Returns the number of
// events dropped due to a full buffer.
func (d *Dispatcher) Close() int64 {
	d.mu.Lock()
	if d.closed {
		dropped := d.dropped
		d.mu.Unlock()
		return dropped
	}
	d.closed = true
	close(d.ch)
	dropped := d.dropped
	d.mu.Unlock()
	d.wg.Wait()
	return dropped
}
