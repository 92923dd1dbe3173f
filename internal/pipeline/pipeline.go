// Package pipeline orchestrates one publication download end to end:
// metadata resolution, parallel fetching, per-chapter transformation, and
// package assembly. Stages hand off complete value sets; no stage reaches
// back into an earlier one.
package pipeline

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/catalog"
	"git.home.luguber.info/inful/bookbinder/internal/config"
	"git.home.luguber.info/inful/bookbinder/internal/epub"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/fetch"
	"git.home.luguber.info/inful/bookbinder/internal/logfields"
	"git.home.luguber.info/inful/bookbinder/internal/progress"
	"git.home.luguber.info/inful/bookbinder/internal/transform"
)

// Transport is the shared network dependency for all stages.
type Transport interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Runner executes complete download runs against one configuration.
type Runner struct {
	cfg       *config.Config
	transport Transport
	catalog   *catalog.Client
	fetcher   *fetch.Fetcher
	assembler *epub.Assembler
	events    progress.Sink
}

// NewRunner wires a runner from its configuration and transport. A nil sink
// silences progress reporting.
func NewRunner(cfg *config.Config, transport Transport, events progress.Sink) *Runner {
	if events == nil {
		events = progress.NullSink{}
	}
	return &Runner{
		cfg:       cfg,
		transport: transport,
		catalog:   catalog.NewClient(transport, cfg.BaseURL),
		fetcher:   fetch.NewFetcher(transport, cfg.MaxConcurrency, events),
		assembler: epub.NewAssembler(""),
		events:    events,
	}
}

// Report summarizes one finished run.
type Report struct {
	BookID            string
	Title             string
	OutputPath        string
	ChaptersTotal     int
	ChaptersSucceeded int
	ChaptersFailed    int
	AssetsTotal       int
	AssetsFailed      int
	Elapsed           time.Duration
}

// Run downloads and packages one publication. The returned report is non-nil
// only on success; any fatal condition aborts before finalize, leaving no
// partial file in the destination.
func (r *Runner) Run(ctx context.Context, bookID string) (*Report, error) {
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout.Std())
		defer cancel()
	}

	start := time.Now()
	slog.Info("Run started", logfields.BookID(bookID), logfields.Stage("resolve"))

	pub, err := r.catalog.Resolve(ctx, bookID)
	if err != nil {
		return nil, err
	}
	slog.Info("Publication resolved",
		logfields.BookID(bookID),
		logfields.Title(pub.Title),
		slog.Int("chapters", len(pub.Chapters)),
		slog.Int("assets", len(pub.Assets)))

	results, err := r.fetchAll(ctx, pub)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, runCanceled(bookID, ctx.Err())
	}

	missing := map[string]bool{}
	assetsFailed := 0
	assets := make(map[string][]byte, len(pub.Assets))
	for _, a := range pub.Assets {
		res := results[a.Filename]
		if res.Err != nil {
			missing[a.Filename] = true
			assetsFailed++
			continue
		}
		assets[a.Filename] = res.Body
	}

	transformed, chapterErrs := r.transformAll(pub, results, missing)
	if ctx.Err() != nil {
		return nil, runCanceled(bookID, ctx.Err())
	}

	total := len(pub.Chapters)
	failed := total - len(transformed)
	if total > 0 && float64(failed)/float64(total) > r.cfg.FailureThresholdRatio {
		for filename, err := range chapterErrs {
			slog.Warn("Chapter lost", logfields.BookID(bookID), logfields.Chapter(filename), logfields.Error(err))
		}
		return nil, errors.FailureThresholdExceeded(failed, total, r.cfg.FailureThresholdRatio)
	}

	in := epub.Input{Publication: pub, Chapters: transformed, Assets: assets}
	r.attachCover(ctx, pub, &in)

	outPath, err := r.assembler.Assemble(in, r.cfg.DestinationDirectory)
	if err != nil {
		return nil, err
	}

	report := &Report{
		BookID:            bookID,
		Title:             pub.Title,
		OutputPath:        outPath,
		ChaptersTotal:     total,
		ChaptersSucceeded: len(transformed),
		ChaptersFailed:    failed,
		AssetsTotal:       len(pub.Assets),
		AssetsFailed:      assetsFailed,
		Elapsed:           time.Since(start),
	}
	slog.Info("Run finished",
		logfields.BookID(bookID),
		logfields.Path(outPath),
		slog.Int("chapters_ok", report.ChaptersSucceeded),
		slog.Int("chapters_failed", report.ChaptersFailed),
		slog.Int("assets_failed", report.AssetsFailed),
		logfields.DurationMS(float64(report.Elapsed.Milliseconds())))
	return report, nil
}

// fetchAll downloads every chapter page and asset through the worker pool. A
// fatal failure on any task (an authentication rejection, typically) aborts
// the whole run.
func (r *Runner) fetchAll(ctx context.Context, pub *book.Publication) (map[string]fetch.Result, error) {
	tasks := make([]fetch.Task, 0, len(pub.Chapters)+len(pub.Assets))
	for _, ch := range pub.Chapters {
		tasks = append(tasks, fetch.Task{Kind: progress.KindChapter, ID: ch.Filename, URL: ch.URL})
	}
	for _, a := range pub.Assets {
		kind := progress.KindImage
		if a.Kind == book.AssetStylesheet {
			kind = progress.KindStylesheet
		}
		tasks = append(tasks, fetch.Task{Kind: kind, ID: a.Filename, URL: a.URL})
	}

	results := r.fetcher.Run(ctx, tasks)
	for _, res := range results {
		if res.Err != nil && errors.IsFatal(res.Err) {
			return nil, res.Err
		}
	}
	return results, nil
}

// transformAll rewrites fetched chapters in parallel. Chapter-scoped failures
// are collected, not propagated; the caller applies the failure threshold.
func (r *Runner) transformAll(pub *book.Publication, results map[string]fetch.Result, missing map[string]bool) ([]transform.TransformedChapter, map[string]error) {
	opts := transform.Options{
		BookID:          pub.ID,
		ReaderOptimized: r.cfg.ReaderOptimized,
		Missing:         missing,
		OmitMissing:     r.cfg.AssetFailurePolicy == config.AssetFailureOmit,
	}

	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		transformed []transform.TransformedChapter
		chapterErrs = map[string]error{}
	)
	sem := make(chan struct{}, r.cfg.MaxConcurrency)

	for _, ref := range pub.Chapters {
		res, ok := results[ref.Filename]
		if !ok || res.Err != nil {
			err := res.Err
			if err == nil {
				err = errors.ContentError(ref.Filename, "no fetch result")
			}
			chapterErrs[ref.Filename] = err
			continue
		}

		wg.Add(1)
		go func(ref book.ChapterRef, body []byte) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			tc, err := transform.Transform(body, ref, opts)
			if err == nil && r.cfg.AssetFailurePolicy == config.AssetFailureFailChapter {
				for _, a := range tc.Assets {
					if missing[a] {
						err = errors.ContentError(ref.Filename, "referenced asset failed to fetch")
						break
					}
				}
			}

			mu.Lock()
			if err != nil {
				chapterErrs[ref.Filename] = err
			} else {
				transformed = append(transformed, *tc)
			}
			mu.Unlock()

			event := progress.Event{Kind: progress.KindChapter, ID: ref.Filename, State: "transformed", Err: err}
			if err != nil {
				event.State = "failed"
			}
			r.events.Publish(event)
		}(ref, res.Body)
	}
	wg.Wait()

	return transformed, chapterErrs
}

// attachCover downloads the publication's cover image when the resolved asset
// set carries none. Failure is tolerable; the package simply ships without a
// synthesized cover page.
func (r *Runner) attachCover(ctx context.Context, pub *book.Publication, in *epub.Input) {
	if pub.CoverURL == "" || hasCoverAsset(pub) {
		return
	}
	data, err := r.transport.Fetch(ctx, pub.CoverURL)
	if err != nil {
		slog.Warn("Cover download failed", logfields.BookID(pub.ID), logfields.URL(pub.CoverURL), logfields.Error(err))
		return
	}
	ext := strings.ToLower(path.Ext(book.ImageFilename(pub.CoverURL)))
	if ext == "" {
		ext = ".jpg"
	}
	in.CoverPath = "Images/default_cover" + ext
	in.CoverData = data
}

func hasCoverAsset(pub *book.Publication) bool {
	for _, a := range pub.Assets {
		if a.Kind == book.AssetImage && strings.Contains(strings.ToLower(a.Filename), "cover") {
			return true
		}
	}
	for _, ch := range pub.Chapters {
		if strings.Contains(strings.ToLower(ch.Filename), "cover") {
			return true
		}
	}
	return false
}

func runCanceled(bookID string, cause error) error {
	return errors.Wrap(cause, errors.CategoryNetwork, errors.SeverityError, "run canceled").
		WithContext("book_id", bookID)
}
