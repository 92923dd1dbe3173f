package transform

import (
	"bytes"
	"io"
	"regexp"

	xhtml "golang.org/x/net/html"
)

// voidTagPattern matches serialized void elements that XHTML requires to be
// self-closed.
var voidTagPattern = regexp.MustCompile(`<(img|br|hr|input|meta|link|col|embed|source|wbr|area)((?:[^>"]|"[^"]*")*?)\s*/?>`)

// renderXHTML serializes a node tree as XHTML. x/net/html renders HTML5
// syntax, so void elements are post-fixed to their self-closing form.
func renderXHTML(w io.Writer, n *xhtml.Node) error {
	var buf bytes.Buffer
	if err := xhtml.Render(&buf, n); err != nil {
		return err
	}
	fixed := voidTagPattern.ReplaceAll(buf.Bytes(), []byte("<$1$2 />"))
	_, err := w.Write(fixed)
	return err
}
