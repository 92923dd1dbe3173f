// Package book holds the resolved data model for one publication: ordered
// chapter references and the deduplicated asset set that drive the pipeline.
package book

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// State tracks a chapter or asset through the pipeline.
type State int

const (
	StatePending State = iota
	StateFetched
	StateTransformed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetched:
		return "fetched"
	case StateTransformed:
		return "transformed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// AssetKind distinguishes the two asset flavors referenced by chapters.
type AssetKind int

const (
	AssetStylesheet AssetKind = iota
	AssetImage
)

func (k AssetKind) String() string {
	if k == AssetStylesheet {
		return "stylesheet"
	}
	return "image"
}

// ChapterRef is one ordered unit of publication content. Index defines spine
// order and is authoritative; it is never re-derived from completion order.
type ChapterRef struct {
	Index    int
	Title    string
	URL      string
	Filename string // local OEBPS filename, always .xhtml
	State    State

	// Stylesheets lists the local package paths of the stylesheets this
	// chapter links, in discovery order.
	Stylesheets []string
}

// AssetRef is a stylesheet or image referenced by one or more chapters. The
// local filename is a deterministic function of the URL, so the same URL
// always maps to the same file and duplicate references collapse.
type AssetRef struct {
	URL      string
	Kind     AssetKind
	Filename string // path inside OEBPS: Styles/... or Images/...
	State    State
}

// Author is a single publication author.
type Author struct {
	Name string
}

// TOCEntry is one node of the publication's navigation tree.
type TOCEntry struct {
	ID       string
	Fragment string
	Label    string
	Href     string
	Depth    int
	Children []TOCEntry
}

// Publication is the resolved metadata for one book. Immutable once resolved;
// owned by the pipeline invocation.
type Publication struct {
	ID          string
	Title       string
	Authors     []Author
	Description string
	Subjects    []string
	Publishers  []string
	Rights      string
	Issued      string
	ISBN        string
	CoverURL    string
	WebURL      string

	Chapters []ChapterRef
	Assets   []AssetRef
	TOC      []TOCEntry
}

// ChapterFilename converts a remote chapter filename to its local package
// name.
func ChapterFilename(remote string) string {
	name := path.Base(remote)
	if strings.HasSuffix(name, ".html") {
		name = strings.TrimSuffix(name, ".html") + ".xhtml"
	}
	if !strings.HasSuffix(name, ".xhtml") {
		name += ".xhtml"
	}
	return name
}

// StylesheetFilename returns the stable package path for the nth discovered
// stylesheet.
func StylesheetFilename(index int) string {
	return fmt.Sprintf("Styles/Style%02d.css", index)
}

// ImageFilename derives the package path for an image from its URL basename.
func ImageFilename(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = u.Path
	}
	return "Images/" + path.Base(name)
}
