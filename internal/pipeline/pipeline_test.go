package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbinder/internal/auth"
	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/config"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/fetch"
	"git.home.luguber.info/inful/bookbinder/internal/progress"
	"git.home.luguber.info/inful/bookbinder/internal/retry"
	"git.home.luguber.info/inful/bookbinder/internal/transport"
)

// bookService is a fake remote content service for one two-chapter book.
type bookService struct {
	srv *httptest.Server

	chapter2Status int // 0 = OK
	imageStatus    int // 0 = OK
	rejectAll      bool

	cssRequests   atomic.Int64
	totalRequests atomic.Int64
}

func newBookService(t *testing.T) *bookService {
	t.Helper()
	bs := &bookService{}
	mux := http.NewServeMux()
	bs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.totalRequests.Add(1)
		if bs.rejectAll {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(bs.srv.Close)
	base := bs.srv.URL

	mux.HandleFunc("/api/v1/book/777/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"identifier": "777",
			"title": "Pipelines in Practice",
			"description": "<p>About pipelines.</p>",
			"isbn": "9780000000777",
			"issued": "2023-05-01",
			"cover": %q,
			"web_url": "%s/library/view/pipelines/777/",
			"authors": [{"name": "P. Author"}],
			"subjects": [{"name": "Engineering"}],
			"publishers": [{"name": "Example Press"}]
		}`, base+"/covers/777.png", base)
	})
	mux.HandleFunc("/api/v1/book/777/chapter/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"count": 2, "next": "",
			"results": [
				{"filename": "ch01.html", "title": "One", "content": "%[1]s/content/ch01.html",
				 "asset_base_url": "%[1]s/assets/", "images": ["fig1.png"],
				 "stylesheets": [{"url": "%[1]s/css/main.css"}], "site_styles": []},
				{"filename": "ch02.html", "title": "Two", "content": "%[1]s/content/ch02.html",
				 "asset_base_url": "%[1]s/assets/", "images": [],
				 "stylesheets": [{"url": "%[1]s/css/main.css"}], "site_styles": []}
			]
		}`, base)
	})
	mux.HandleFunc("/api/v1/book/777/toc/", func(w http.ResponseWriter, r *http.Request) {
		// hrefs arrive remote-shaped: absolute URLs or bare .html names
		fmt.Fprintf(w, `[
			{"id": "t1", "label": "One", "href": "%s/library/view/pipelines/777/ch01.html", "depth": "1", "children": []},
			{"id": "t2", "label": "Two", "href": "ch02.html", "depth": "1", "children": []}
		]`, base)
	})
	mux.HandleFunc("/content/ch01.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="sbo-rt-content"><p>chapter one</p><img src="fig1.png"/></div></body></html>`)
	})
	mux.HandleFunc("/content/ch02.html", func(w http.ResponseWriter, r *http.Request) {
		if bs.chapter2Status != 0 {
			w.WriteHeader(bs.chapter2Status)
			return
		}
		fmt.Fprint(w, `<html><body><div id="sbo-rt-content"><p>chapter two</p></div></body></html>`)
	})
	mux.HandleFunc("/assets/fig1.png", func(w http.ResponseWriter, r *http.Request) {
		if bs.imageStatus != 0 {
			w.WriteHeader(bs.imageStatus)
			return
		}
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47}) //nolint:errcheck
	})
	mux.HandleFunc("/css/main.css", func(w http.ResponseWriter, r *http.Request) {
		bs.cssRequests.Add(1)
		fmt.Fprint(w, "body{margin:0}")
	})
	mux.HandleFunc("/covers/777.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47, 0x0d}) //nolint:errcheck
	})

	return bs
}

func testRunner(t *testing.T, bs *bookService, mutate func(*config.Config)) (*Runner, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = bs.srv.URL
	cfg.DestinationDirectory = t.TempDir()
	cfg.MaxRetryAttempts = 2
	cfg.BackoffBase = config.Duration(time.Millisecond)
	cfg.BackoffCeiling = config.Duration(5 * time.Millisecond)
	if mutate != nil {
		mutate(cfg)
	}
	policy := retry.NewPolicy(cfg.BackoffBase.Std(), cfg.BackoffCeiling.Std(), cfg.MaxRetryAttempts)
	tr := transport.NewClient(nil, policy, auth.None{}, cfg.RequestTimeout.Std())
	return NewRunner(cfg, tr, nil), cfg
}

func readArchiveEntry(t *testing.T, epubPath, name string) (string, bool) {
	t.Helper()
	zr, err := zip.OpenReader(epubPath)
	require.NoError(t, err)
	defer zr.Close() //nolint:errcheck
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close() //nolint:errcheck
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(data), true
		}
	}
	return "", false
}

func TestRunProducesPackage(t *testing.T) {
	bs := newBookService(t)
	runner, cfg := testRunner(t, bs, nil)

	report, err := runner.Run(context.Background(), "777")
	require.NoError(t, err)

	assert.Equal(t, "Pipelines in Practice", report.Title)
	assert.Equal(t, 2, report.ChaptersTotal)
	assert.Equal(t, 2, report.ChaptersSucceeded)
	assert.Zero(t, report.ChaptersFailed)
	assert.Zero(t, report.AssetsFailed)

	expected := filepath.Join(cfg.DestinationDirectory, "Pipelines in Practice (777)", "777.epub")
	assert.Equal(t, expected, report.OutputPath)

	ch1, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/ch01.xhtml")
	require.True(t, ok)
	assert.Contains(t, ch1, "chapter one")
	assert.Contains(t, ch1, `src="Images/fig1.png"`)
	assert.Contains(t, ch1, `href="Styles/Style00.css"`)

	_, ok = readArchiveEntry(t, report.OutputPath, "OEBPS/Images/fig1.png")
	assert.True(t, ok, "image asset packaged")
	css, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/Styles/Style00.css")
	require.True(t, ok)
	assert.Equal(t, "body{margin:0}", css)

	// both chapters reference the same stylesheet URL; it is fetched once
	assert.Equal(t, int64(1), bs.cssRequests.Load())

	// synthesized cover from the publication metadata
	page, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/default_cover.xhtml")
	require.True(t, ok)
	assert.Contains(t, page, "Images/default_cover.png")

	// navigation links point at the packaged files, not the remote service
	nav, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/nav.xhtml")
	require.True(t, ok)
	assert.Contains(t, nav, `<a href="ch01.xhtml">One</a>`)
	assert.Contains(t, nav, `<a href="ch02.xhtml">Two</a>`)
	assert.NotContains(t, nav, bs.srv.URL)
	ncx, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/toc.ncx")
	require.True(t, ok)
	assert.Contains(t, ncx, `<content src="ch01.xhtml"/>`)
	assert.NotContains(t, ncx, bs.srv.URL)
}

func TestRunFailureThresholdAborts(t *testing.T) {
	bs := newBookService(t)
	bs.chapter2Status = http.StatusNotFound
	runner, cfg := testRunner(t, bs, func(c *config.Config) {
		c.FailureThresholdRatio = 0.2
	})

	_, err := runner.Run(context.Background(), "777")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStructural))

	// nothing written on abort
	entries, readErr := os.ReadDir(cfg.DestinationDirectory)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestRunToleratedChapterFailure(t *testing.T) {
	bs := newBookService(t)
	bs.chapter2Status = http.StatusNotFound
	runner, _ := testRunner(t, bs, func(c *config.Config) {
		c.FailureThresholdRatio = 0.5
	})

	report, err := runner.Run(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChaptersSucceeded)
	assert.Equal(t, 1, report.ChaptersFailed)

	_, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/ch02.xhtml")
	assert.False(t, ok, "failed chapter is not packaged")

	// the lost chapter disappears from the navigation documents too
	nav, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/nav.xhtml")
	require.True(t, ok)
	assert.Contains(t, nav, `<a href="ch01.xhtml">One</a>`)
	assert.NotContains(t, nav, "ch02.xhtml")
	ncx, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/toc.ncx")
	require.True(t, ok)
	assert.NotContains(t, ncx, "ch02.xhtml")
}

func TestRunOmitMissingAsset(t *testing.T) {
	bs := newBookService(t)
	bs.imageStatus = http.StatusNotFound
	runner, _ := testRunner(t, bs, func(c *config.Config) {
		c.AssetFailurePolicy = config.AssetFailureOmit
	})

	report, err := runner.Run(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, 2, report.ChaptersSucceeded)
	assert.Equal(t, 1, report.AssetsFailed)

	ch1, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/ch01.xhtml")
	require.True(t, ok)
	assert.NotContains(t, ch1, "fig1.png", "broken reference omitted")
	_, ok = readArchiveEntry(t, report.OutputPath, "OEBPS/Images/fig1.png")
	assert.False(t, ok)
}

func TestRunFailChapterPolicy(t *testing.T) {
	bs := newBookService(t)
	bs.imageStatus = http.StatusNotFound
	runner, _ := testRunner(t, bs, func(c *config.Config) {
		c.AssetFailurePolicy = config.AssetFailureFailChapter
		c.FailureThresholdRatio = 0.5
	})

	report, err := runner.Run(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChaptersSucceeded)
	assert.Equal(t, 1, report.ChaptersFailed)

	_, ok := readArchiveEntry(t, report.OutputPath, "OEBPS/ch01.xhtml")
	assert.False(t, ok, "chapter referencing the failed asset is dropped")
	_, ok = readArchiveEntry(t, report.OutputPath, "OEBPS/ch02.xhtml")
	assert.True(t, ok)
}

func TestRunAuthFailureAborts(t *testing.T) {
	bs := newBookService(t)
	bs.rejectAll = true
	runner, _ := testRunner(t, bs, nil)

	_, err := runner.Run(context.Background(), "777")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
}

func TestRunCancellation(t *testing.T) {
	bs := newBookService(t)
	runner, cfg := testRunner(t, bs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, "777")
	require.Error(t, err)

	entries, readErr := os.ReadDir(cfg.DestinationDirectory)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestTransformAllMissingFetchResult(t *testing.T) {
	r := &Runner{cfg: config.Default(), events: progress.NullSink{}}
	pub := &book.Publication{
		ID:       "1",
		Chapters: []book.ChapterRef{{Index: 0, Filename: "ch01.xhtml"}},
	}

	transformed, chapterErrs := r.transformAll(pub, map[string]fetch.Result{}, nil)
	assert.Empty(t, transformed)
	require.Error(t, chapterErrs["ch01.xhtml"], "absent fetch result carries an explicit error")
	assert.True(t, errors.IsCategory(chapterErrs["ch01.xhtml"], errors.CategoryContent))
}

func TestRunUnknownBook(t *testing.T) {
	bs := newBookService(t)
	runner, _ := testRunner(t, bs, nil)

	_, err := runner.Run(context.Background(), "999")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}
