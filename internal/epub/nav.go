package epub

import (
	"bytes"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/transform"
)

// renderNCX emits the EPUB2-compatible navigation control file. playOrder
// follows a depth-first walk of the navigation tree.
func renderNCX(pub *book.Publication, identifier string, chapters []transform.TransformedChapter) []byte {
	entries := navEntries(pub, chapters)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<!DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd">` + "\n")
	buf.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n")
	fmt.Fprintf(&buf, "<head>\n<meta content=%q name=\"dtb:uid\"/>\n", xmlEscape(identifier))
	fmt.Fprintf(&buf, "<meta content=\"%d\" name=\"dtb:depth\"/>\n", treeDepth(entries))
	buf.WriteString("<meta content=\"0\" name=\"dtb:totalPageCount\"/>\n<meta content=\"0\" name=\"dtb:maxPageNumber\"/>\n</head>\n")
	fmt.Fprintf(&buf, "<docTitle><text>%s</text></docTitle>\n", xmlEscape(pub.Title))
	if len(pub.Authors) > 0 {
		fmt.Fprintf(&buf, "<docAuthor><text>%s</text></docAuthor>\n", xmlEscape(pub.Authors[0].Name))
	}
	buf.WriteString("<navMap>\n")
	playOrder := 0
	writeNavPoints(&buf, entries, &playOrder)
	buf.WriteString("</navMap>\n</ncx>\n")
	return buf.Bytes()
}

func writeNavPoints(buf *bytes.Buffer, entries []book.TOCEntry, playOrder *int) {
	for _, e := range entries {
		*playOrder++
		fmt.Fprintf(buf, "<navPoint id=%q playOrder=\"%d\">\n", xmlEscape(navPointID(e, *playOrder)), *playOrder)
		fmt.Fprintf(buf, "<navLabel><text>%s</text></navLabel>\n", xmlEscape(e.Label))
		fmt.Fprintf(buf, "<content src=%q/>\n", xmlEscape(e.Href))
		writeNavPoints(buf, e.Children, playOrder)
		buf.WriteString("</navPoint>\n")
	}
}

func navPointID(e book.TOCEntry, playOrder int) string {
	if e.ID != "" {
		return "np-" + e.ID
	}
	return fmt.Sprintf("np-%d", playOrder)
}

// renderNav emits the EPUB3 navigation document with the nested list form of
// the same tree.
func renderNav(pub *book.Publication, chapters []transform.TransformedChapter) []byte {
	entries := navEntries(pub, chapters)

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	fmt.Fprintf(&buf, "<head><title>%s</title></head>\n<body>\n", xmlEscape(pub.Title))
	buf.WriteString(`<nav epub:type="toc" id="toc">` + "\n<h1>Table of Contents</h1>\n")
	writeNavList(&buf, entries)
	buf.WriteString("</nav>\n</body>\n</html>\n")
	return buf.Bytes()
}

func writeNavList(buf *bytes.Buffer, entries []book.TOCEntry) {
	if len(entries) == 0 {
		return
	}
	buf.WriteString("<ol>\n")
	for _, e := range entries {
		fmt.Fprintf(buf, "<li><a href=%q>%s</a>", xmlEscape(e.Href), xmlEscape(e.Label))
		if len(e.Children) > 0 {
			buf.WriteString("\n")
			writeNavList(buf, e.Children)
		}
		buf.WriteString("</li>\n")
	}
	buf.WriteString("</ol>\n")
}

// navEntries returns the navigation tree with hrefs rewritten onto packaged
// content files and entries for unpackaged chapters dropped. It falls back to
// a flat chapter list when the remote service supplied no usable TOC.
func navEntries(pub *book.Publication, chapters []transform.TransformedChapter) []book.TOCEntry {
	packaged := make(map[string]bool, len(chapters))
	for _, ch := range chapters {
		packaged[ch.Filename] = true
	}
	if entries := localizeTOC(pub.TOC, packaged); len(entries) > 0 {
		return entries
	}
	entries := make([]book.TOCEntry, 0, len(chapters))
	for _, ch := range chapters {
		title := ch.Title
		if title == "" {
			title = ch.Filename
		}
		entries = append(entries, book.TOCEntry{Label: title, Href: ch.Filename, Depth: 1})
	}
	return entries
}

// localizeTOC rewrites remote hrefs onto local package paths and removes
// entries whose target file is not in the assembled set, promoting their
// surviving children so nested sections are not lost with a failed parent.
func localizeTOC(entries []book.TOCEntry, packaged map[string]bool) []book.TOCEntry {
	out := make([]book.TOCEntry, 0, len(entries))
	for _, e := range entries {
		e.Href = localHref(e.Href)
		e.Children = localizeTOC(e.Children, packaged)
		file, _, _ := strings.Cut(e.Href, "#")
		if !packaged[file] {
			out = append(out, e.Children...)
			continue
		}
		out = append(out, e)
	}
	return out
}

// localHref maps a TOC href from the remote service onto its packaged
// content file: basename only, .html becomes .xhtml, fragment preserved.
func localHref(href string) string {
	base, frag, hasFrag := strings.Cut(href, "#")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.ReplaceAll(base, ".html", ".xhtml")
	if hasFrag {
		return base + "#" + frag
	}
	return base
}

func treeDepth(entries []book.TOCEntry) int {
	depth := 1
	for _, e := range entries {
		if d := 1 + treeDepth(e.Children); len(e.Children) > 0 && d > depth {
			depth = d
		}
	}
	return depth
}
