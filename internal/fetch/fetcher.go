// Package fetch runs remote resource downloads through a bounded worker
// pool. Completion order is unconstrained; callers key results by task ID and
// never rely on arrival order.
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/progress"
)

// Transport is the dependency used to materialize one resource.
type Transport interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Task is one unit of fetch work: a chapter page, stylesheet, or image.
// ID is the resource's local package filename and must be unique per run.
type Task struct {
	Kind progress.TaskKind
	ID   string
	URL  string
}

// Result is the terminal outcome of one task.
type Result struct {
	Task    Task
	Body    []byte
	Err     error
	Elapsed time.Duration
}

// Fetcher schedules tasks over a fixed number of workers.
type Fetcher struct {
	transport Transport
	workers   int
	events    progress.Sink
}

// NewFetcher creates a fetcher with the given concurrency. A nil sink
// silences progress reporting.
func NewFetcher(transport Transport, workers int, events progress.Sink) *Fetcher {
	if workers <= 0 {
		workers = 1
	}
	if events == nil {
		events = progress.NullSink{}
	}
	return &Fetcher{transport: transport, workers: workers, events: events}
}

// Run executes all tasks and returns results keyed by task ID. Tasks sharing
// a URL are fetched once; every ID still receives a result. Cancellation
// stops scheduling new tasks; in-flight requests finish or time out on their
// own, and unscheduled tasks are reported as canceled.
func (f *Fetcher) Run(ctx context.Context, tasks []Task) map[string]Result {
	deduped, aliases := dedupe(tasks)

	queue := make(chan Task)
	resultCh := make(chan Result, len(deduped))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				resultCh <- f.runTask(ctx, task)
			}
		}()
	}

	scheduled := 0
schedule:
	for _, task := range deduped {
		select {
		case <-ctx.Done():
			break schedule
		case queue <- task:
			scheduled++
		}
	}
	close(queue)
	wg.Wait()
	close(resultCh)

	results := make(map[string]Result, len(tasks))
	for r := range resultCh {
		results[r.Task.ID] = r
	}
	// Tasks never scheduled due to cancellation get a terminal error.
	for _, task := range deduped {
		if _, ok := results[task.ID]; !ok {
			results[task.ID] = Result{
				Task: task,
				Err: errors.Wrap(ctx.Err(), errors.CategoryNetwork, errors.SeverityError, "fetch canceled").
					WithContext("url", task.URL),
			}
		}
	}
	// Fan results out to URL-sharing aliases.
	for aliasID, primaryID := range aliases {
		r := results[primaryID]
		results[aliasID] = Result{Task: Task{Kind: r.Task.Kind, ID: aliasID, URL: r.Task.URL}, Body: r.Body, Err: r.Err, Elapsed: r.Elapsed}
	}

	slog.Debug("Fetch batch complete", "tasks", len(tasks), "unique", len(deduped), "scheduled", scheduled)
	return results
}

func (f *Fetcher) runTask(ctx context.Context, task Task) Result {
	start := time.Now()
	body, err := f.transport.Fetch(ctx, task.URL)
	elapsed := time.Since(start)

	event := progress.Event{Kind: task.Kind, ID: task.ID, Elapsed: elapsed}
	if err != nil {
		event.State = "failed"
		event.Err = err
	} else {
		event.State = "fetched"
		event.Bytes = int64(len(body))
	}
	f.events.Publish(event)

	return Result{Task: task, Body: body, Err: err, Elapsed: elapsed}
}

// dedupe collapses tasks sharing a URL onto the first occurrence. The
// returned aliases map later IDs to the ID that actually fetches.
func dedupe(tasks []Task) ([]Task, map[string]string) {
	byURL := make(map[string]string, len(tasks))
	aliases := make(map[string]string)
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if primary, seen := byURL[t.URL]; seen {
			if primary != t.ID {
				aliases[t.ID] = primary
			}
			continue
		}
		byURL[t.URL] = t.ID
		out = append(out, t)
	}
	return out, aliases
}
