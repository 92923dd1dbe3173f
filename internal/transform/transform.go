// Package transform rewrites fetched chapter markup into package-conformant
// XHTML: it extracts the content root, applies the declarative style
// exclusion rules, normalizes code blocks, and rewrites links to local
// package paths. Pure transformation; no network or disk I/O, parallelizable
// per chapter.
package transform

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// contentRootID marks the element that carries the actual chapter content in
// the remote reader markup.
const contentRootID = "sbo-rt-content"

// Options configures chapter transformation.
type Options struct {
	// BookID is used to recognize absolute intra-book links.
	BookID string
	// ReaderOptimized injects CSS overrides that keep wide tables and
	// preformatted blocks inside the viewport on e-ink readers.
	ReaderOptimized bool
	// Rules is the style exclusion rule set; nil means DefaultRules.
	Rules []Rule
	// Missing marks local asset paths whose fetch failed terminally.
	Missing map[string]bool
	// OmitMissing drops references to missing assets from the output.
	// When false the references are kept and the caller decides the
	// chapter's fate against the fetched set.
	OmitMissing bool
}

// TransformedChapter is the output of one chapter transformation.
type TransformedChapter struct {
	Index    int
	Filename string
	Title    string
	Content  []byte
	// Assets lists the local package paths this chapter references. The
	// assembler checks it against the successfully fetched set.
	Assets []string
}

const baseCSS = "body{margin:1em;background-color:transparent!important;}" +
	"#sbo-rt-content *{text-indent:0pt!important;}#sbo-rt-content .bq{margin-right:1em!important;}"

const readerOptimizedCSS = "#sbo-rt-content *{word-wrap:break-word!important;" +
	"word-break:break-word!important;}#sbo-rt-content table,#sbo-rt-content pre" +
	"{overflow-x:unset!important;overflow:unset!important;" +
	"overflow-y:unset!important;white-space:pre-wrap!important;}"

// Transform rewrites one chapter's markup. Parsing is best-effort: malformed
// input is repaired where possible, and only a document with no extractable
// content root fails, scoped to this chapter.
func Transform(markup []byte, ch book.ChapterRef, opts Options) (*TransformedChapter, error) {
	doc, err := xhtml.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, errors.ContentError(ch.Filename, "unparseable markup")
	}

	root := findByID(doc, contentRootID)
	if root == nil {
		return nil, errors.ContentError(ch.Filename, "content root missing or corrupted")
	}

	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules
	}

	var inlineStyles []string
	walk(root, func(n *xhtml.Node) {
		switch {
		case n.Type == xhtml.ElementNode && n.DataAtom == atom.Style:
			promoteStyleTemplate(n)
			css := ApplyRules(textContent(n), rules)
			if strings.TrimSpace(css) != "" {
				inlineStyles = append(inlineStyles, css)
			}
		case n.Type == xhtml.ElementNode:
			filterStyleAttr(n, rules)
		}
	})
	removeNodes(root, func(n *xhtml.Node) bool {
		return n.Type == xhtml.ElementNode && (n.DataAtom == atom.Style || isStylesheetLink(n))
	})

	normalizeCodeBlocks(root)
	rewriteSVGImages(root)
	rewriteLinks(root, opts.BookID)

	stylesheets := ch.Stylesheets
	if opts.OmitMissing && len(opts.Missing) > 0 {
		removeNodes(root, func(n *xhtml.Node) bool {
			return n.Type == xhtml.ElementNode && n.DataAtom == atom.Img && opts.Missing[getAttr(n, "src")]
		})
		kept := make([]string, 0, len(stylesheets))
		for _, s := range stylesheets {
			if !opts.Missing[s] {
				kept = append(kept, s)
			}
		}
		stylesheets = kept
	}

	assets := collectAssets(root, stylesheets)

	var body bytes.Buffer
	if err := renderXHTML(&body, root); err != nil {
		return nil, errors.ContentError(ch.Filename, fmt.Sprintf("render failed: %v", err))
	}

	pageCh := ch
	pageCh.Stylesheets = stylesheets
	page := buildPage(pageCh, opts, inlineStyles, body.String())

	return &TransformedChapter{
		Index:    ch.Index,
		Filename: ch.Filename,
		Title:    ch.Title,
		Content:  []byte(page),
		Assets:   assets,
	}, nil
}

// buildPage wraps the rewritten content in the base XHTML page template.
func buildPage(ch book.ChapterRef, opts Options, inlineStyles []string, body string) string {
	var head strings.Builder
	head.WriteString("<title>" + html.EscapeString(ch.Title) + "</title>\n")
	for _, href := range ch.Stylesheets {
		head.WriteString(fmt.Sprintf("<link href=%q rel=\"stylesheet\" type=\"text/css\" />\n", href))
	}

	var css strings.Builder
	css.WriteString(baseCSS)
	if opts.ReaderOptimized {
		css.WriteString(readerOptimizedCSS)
	}
	for _, s := range inlineStyles {
		css.WriteString("\n")
		css.WriteString(s)
	}

	return "<!DOCTYPE html>\n" +
		"<html lang=\"en\" xml:lang=\"en\" xmlns=\"http://www.w3.org/1999/xhtml\"" +
		" xmlns:epub=\"http://www.idpf.org/2007/ops\">\n" +
		"<head>\n" + head.String() +
		"<style type=\"text/css\">" + css.String() + "</style>\n" +
		"</head>\n" +
		"<body>" + body + "</body>\n</html>"
}

// collectAssets gathers the local package paths the chapter now references.
func collectAssets(root *xhtml.Node, stylesheets []string) []string {
	set := map[string]bool{}
	for _, s := range stylesheets {
		set[s] = true
	}
	walk(root, func(n *xhtml.Node) {
		if n.Type != xhtml.ElementNode {
			return
		}
		if n.DataAtom == atom.Img {
			if src := getAttr(n, "src"); strings.HasPrefix(src, "Images/") {
				set[src] = true
			}
		}
	})
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// promoteStyleTemplate moves a data-template attribute into the style node's
// text, matching the remote reader's deferred style delivery.
func promoteStyleTemplate(n *xhtml.Node) {
	tpl := getAttr(n, "data-template")
	if tpl == "" {
		return
	}
	removeAttr(n, "data-template")
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: tpl})
}

func isStylesheetLink(n *xhtml.Node) bool {
	return n.DataAtom == atom.Link && strings.EqualFold(getAttr(n, "rel"), "stylesheet")
}
