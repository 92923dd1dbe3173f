// Package catalog resolves publication metadata from the remote content
// service: book info, the ordered chapter list, and the navigation tree.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// Fetcher is the transport dependency; satisfied by *transport.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client talks to the book metadata API.
type Client struct {
	fetcher Fetcher
	baseURL string
}

// NewClient creates a catalog client rooted at baseURL
// (e.g. https://learning.oreilly.com).
func NewClient(fetcher Fetcher, baseURL string) *Client {
	return &Client{fetcher: fetcher, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Client) apiURL(bookID string) string {
	return fmt.Sprintf("%s/api/v1/book/%s/", c.baseURL, bookID)
}

// Info mirrors the /api/v1/book/{id}/ payload.
type Info struct {
	Identifier  string      `json:"identifier"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Rights      string      `json:"rights"`
	Issued      string      `json:"issued"`
	ISBN        string      `json:"isbn"`
	Cover       string      `json:"cover"`
	WebURL      string      `json:"web_url"`
	Authors     []namedItem `json:"authors"`
	Subjects    []namedItem `json:"subjects"`
	Publishers  []namedItem `json:"publishers"`
	Detail      string      `json:"detail"`
}

type namedItem struct {
	Name string `json:"name"`
}

// chapterPage mirrors one page of /api/v1/book/{id}/chapter/.
type chapterPage struct {
	Count   int           `json:"count"`
	Next    string        `json:"next"`
	Results []chapterMeta `json:"results"`
}

type chapterMeta struct {
	Filename     string       `json:"filename"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	AssetBaseURL string       `json:"asset_base_url"`
	Images       []string     `json:"images"`
	Stylesheets  []styleEntry `json:"stylesheets"`
	SiteStyles   []string     `json:"site_styles"`
}

type styleEntry struct {
	URL string `json:"url"`
}

// tocEntry mirrors one node of /api/v1/book/{id}/toc/.
type tocEntry struct {
	ID       string     `json:"id"`
	Fragment string     `json:"fragment"`
	Label    string     `json:"label"`
	Href     string     `json:"href"`
	Depth    string     `json:"depth"`
	Children []tocEntry `json:"children"`
}

// BookInfo retrieves the publication metadata document.
func (c *Client) BookInfo(ctx context.Context, bookID string) (*Info, error) {
	body, err := c.fetcher.Fetch(ctx, c.apiURL(bookID))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.MalformedResponse(c.apiURL(bookID), err)
	}
	if info.Title == "" {
		// An error payload carries only a "detail" field.
		return nil, errors.New(errors.CategoryNotFound, errors.SeverityFatal, "book not present in the catalog").
			WithContext("book_id", bookID).
			WithContext("detail", info.Detail)
	}
	return &info, nil
}

// chapters retrieves all chapter metadata, following pagination. Chapters
// whose filename or title mentions the cover are moved to the front, since
// the remote order occasionally buries the cover page mid-list.
func (c *Client) chapters(ctx context.Context, bookID string) ([]chapterMeta, error) {
	var all []chapterMeta
	for page := 1; ; page++ {
		pageURL := fmt.Sprintf("%schapter/?page=%d", c.apiURL(bookID), page)
		body, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		var cp chapterPage
		if err := json.Unmarshal(body, &cp); err != nil {
			return nil, errors.MalformedResponse(pageURL, err)
		}
		if page == 1 && len(cp.Results) == 0 {
			return nil, errors.New(errors.CategoryMalformed, errors.SeverityFatal, "book has no chapters").
				WithContext("book_id", bookID)
		}
		all = append(all, cp.Results...)
		if cp.Next == "" {
			break
		}
	}

	var cover, rest []chapterMeta
	for _, ch := range all {
		if strings.Contains(ch.Filename, "cover") || strings.Contains(strings.ToLower(ch.Title), "cover") {
			cover = append(cover, ch)
		} else {
			rest = append(rest, ch)
		}
	}
	return append(cover, rest...), nil
}

// toc retrieves the navigation tree.
func (c *Client) toc(ctx context.Context, bookID string) ([]book.TOCEntry, error) {
	tocURL := c.apiURL(bookID) + "toc/"
	body, err := c.fetcher.Fetch(ctx, tocURL)
	if err != nil {
		return nil, err
	}
	var entries []tocEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, errors.MalformedResponse(tocURL, err)
	}
	return convertTOC(entries), nil
}

func convertTOC(entries []tocEntry) []book.TOCEntry {
	out := make([]book.TOCEntry, 0, len(entries))
	for _, e := range entries {
		depth := 1
		if d, err := atoiSafe(e.Depth); err == nil && d > 0 {
			depth = d
		}
		out = append(out, book.TOCEntry{
			ID:       e.ID,
			Fragment: e.Fragment,
			Label:    e.Label,
			Href:     e.Href,
			Depth:    depth,
			Children: convertTOC(e.Children),
		})
	}
	return out
}

func atoiSafe(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// resolveImageURL resolves one image reference against the chapter's asset
// base. Books served through the v2 epub API use a different asset root.
func (c *Client) resolveImageURL(bookID string, ch chapterMeta, img string) string {
	if strings.Contains(ch.Content, "v2") {
		return fmt.Sprintf("%s/api/v2/epubs/urn:orm:book:%s/files/%s", c.baseURL, bookID, img)
	}
	base, err := url.Parse(ch.AssetBaseURL)
	if err != nil {
		return img
	}
	ref, err := url.Parse(img)
	if err != nil {
		return img
	}
	return base.ResolveReference(ref).String()
}

// Resolve builds the immutable Publication driving one pipeline run: ordered
// chapter refs, the deduplicated asset set, and the navigation tree. Two
// distinct asset URLs mapping to the same local filename is a fatal
// structural error.
func (c *Client) Resolve(ctx context.Context, bookID string) (*book.Publication, error) {
	info, err := c.BookInfo(ctx, bookID)
	if err != nil {
		return nil, err
	}
	chapters, err := c.chapters(ctx, bookID)
	if err != nil {
		return nil, err
	}
	toc, err := c.toc(ctx, bookID)
	if err != nil {
		return nil, err
	}

	pub := &book.Publication{
		ID:          bookID,
		Title:       info.Title,
		Description: info.Description,
		Rights:      info.Rights,
		Issued:      info.Issued,
		ISBN:        info.ISBN,
		CoverURL:    info.Cover,
		WebURL:      info.WebURL,
		TOC:         toc,
	}
	for _, a := range info.Authors {
		pub.Authors = append(pub.Authors, book.Author{Name: a.Name})
	}
	for _, s := range info.Subjects {
		pub.Subjects = append(pub.Subjects, s.Name)
	}
	for _, p := range info.Publishers {
		pub.Publishers = append(pub.Publishers, p.Name)
	}

	styleIndex := map[string]int{} // stylesheet URL -> ordinal
	imageNames := map[string]string{}
	seenImages := map[string]bool{}
	chapterURLs := map[string]string{} // local chapter filename -> content URL

	for i, ch := range chapters {
		ref := book.ChapterRef{
			Index:    i,
			Title:    ch.Title,
			URL:      ch.Content,
			Filename: book.ChapterFilename(ch.Filename),
			State:    book.StatePending,
		}
		if prior, clash := chapterURLs[ref.Filename]; clash {
			return nil, errors.FilenameCollision(ref.Filename, prior, ch.Content)
		}
		chapterURLs[ref.Filename] = ch.Content

		styleURLs := make([]string, 0, len(ch.Stylesheets)+len(ch.SiteStyles))
		for _, s := range ch.Stylesheets {
			styleURLs = append(styleURLs, s.URL)
		}
		styleURLs = append(styleURLs, ch.SiteStyles...)
		for _, su := range styleURLs {
			idx, seen := styleIndex[su]
			if !seen {
				idx = len(styleIndex)
				styleIndex[su] = idx
				pub.Assets = append(pub.Assets, book.AssetRef{
					URL:      su,
					Kind:     book.AssetStylesheet,
					Filename: book.StylesheetFilename(idx),
					State:    book.StatePending,
				})
			}
			ref.Stylesheets = append(ref.Stylesheets, book.StylesheetFilename(idx))
		}

		for _, img := range ch.Images {
			full := c.resolveImageURL(bookID, ch, img)
			if seenImages[full] {
				continue
			}
			seenImages[full] = true
			local := book.ImageFilename(full)
			if prior, clash := imageNames[local]; clash && prior != full {
				return nil, errors.FilenameCollision(local, prior, full)
			}
			imageNames[local] = full
			pub.Assets = append(pub.Assets, book.AssetRef{
				URL:      full,
				Kind:     book.AssetImage,
				Filename: local,
				State:    book.StatePending,
			})
		}

		pub.Chapters = append(pub.Chapters, ref)
	}

	return pub, nil
}
