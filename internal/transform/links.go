package transform

import (
	"net/url"
	"path"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true, ".webp": true,
}

// rewriteLinks points every hyperlink and asset reference at its local
// package path: images go under Images/, chapter links swap .html for
// .xhtml, absolute links that stay inside the book are reduced to their
// local tail.
func rewriteLinks(root *xhtml.Node, bookID string) {
	walk(root, func(n *xhtml.Node) {
		if n.Type != xhtml.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.A, atom.Area:
			if href := getAttr(n, "href"); href != "" {
				setAttr(n, "href", replaceLink(href, bookID))
			}
		case atom.Img, atom.Source:
			if src := getAttr(n, "src"); src != "" {
				setAttr(n, "src", replaceLink(src, bookID))
			}
		}
	})
}

// replaceLink implements the rewrite policy for one reference.
func replaceLink(link, bookID string) string {
	if link == "" || strings.HasPrefix(link, "mailto:") {
		return link
	}

	if isAbsoluteURL(link) {
		// Absolute links that mention the book collapse to their local
		// tail; everything else is an external reference and stays.
		if bookID != "" && strings.Contains(link, bookID) {
			parts := strings.SplitN(link, bookID, 2)
			tail := strings.TrimPrefix(parts[1], "/")
			return replaceLink(tail, bookID)
		}
		return link
	}

	if isImageLink(link) {
		return "Images/" + path.Base(stripQuery(link))
	}

	return strings.Replace(link, ".html", ".xhtml", 1)
}

func isAbsoluteURL(link string) bool {
	u, err := url.Parse(link)
	return err == nil && u.Host != ""
}

func isImageLink(link string) bool {
	link = strings.ToLower(stripQuery(link))
	if imageExtensions[path.Ext(link)] {
		return true
	}
	// Remote reader convention: anything under these folders is an image.
	for _, marker := range []string{"cover", "images", "graphics"} {
		if strings.Contains(link, marker) {
			return true
		}
	}
	return false
}

func stripQuery(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}

// rewriteSVGImages replaces svg-wrapped <image> references with plain <img>
// tags, which e-readers render far more reliably.
func rewriteSVGImages(root *xhtml.Node) {
	var svgs []*xhtml.Node
	walk(root, func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && n.DataAtom == atom.Svg {
			svgs = append(svgs, n)
		}
	})
	for _, svg := range svgs {
		href := findSVGImageHref(svg)
		if href == "" || svg.Parent == nil {
			continue
		}
		img := &xhtml.Node{
			Type:     xhtml.ElementNode,
			DataAtom: atom.Img,
			Data:     "img",
			Attr:     []xhtml.Attribute{{Key: "src", Val: href}},
		}
		svg.Parent.InsertBefore(img, svg)
		svg.Parent.RemoveChild(svg)
	}
}

func findSVGImageHref(svg *xhtml.Node) string {
	var href string
	walk(svg, func(n *xhtml.Node) {
		if href != "" || n.Type != xhtml.ElementNode || n.Data != "image" {
			return
		}
		for _, a := range n.Attr {
			if strings.Contains(a.Key, "href") && a.Val != "" {
				href = a.Val
				return
			}
		}
	})
	return href
}
