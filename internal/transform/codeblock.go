package transform

import (
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// normalizeCodeBlocks collapses the remote reader's code-block scaffolding
// into plain <pre> elements. Whitespace and line breaks inside the code are
// preserved exactly; only wrapper markup is removed.
func normalizeCodeBlocks(root *xhtml.Node) {
	var pres []*xhtml.Node
	walk(root, func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && n.DataAtom == atom.Pre {
			pres = append(pres, n)
		}
	})
	for _, pre := range pres {
		flattenPre(pre)
		unwrapHighlightAncestors(pre)
	}
}

// flattenPre replaces a <pre> subtree (spans per token, one div per line,
// nested <code>) with its exact text content. <br> elements count as line
// breaks since the reader markup uses them instead of literal newlines.
func flattenPre(pre *xhtml.Node) {
	text := preText(pre)
	for c := pre.FirstChild; c != nil; {
		next := c.NextSibling
		pre.RemoveChild(c)
		c = next
	}
	pre.Attr = keepOnlyAttr(pre.Attr, "id")
	pre.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: text})
}

// preText extracts the literal text of a code block, turning <br> and
// per-line <div> wrappers into newlines.
func preText(n *xhtml.Node) string {
	var out []byte
	var emit func(*xhtml.Node)
	emit = func(c *xhtml.Node) {
		switch {
		case c.Type == xhtml.TextNode:
			out = append(out, c.Data...)
		case c.Type == xhtml.ElementNode && c.DataAtom == atom.Br:
			out = append(out, '\n')
		case c.Type == xhtml.ElementNode && c.DataAtom == atom.Div:
			for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
				emit(gc)
			}
			if len(out) == 0 || out[len(out)-1] != '\n' {
				out = append(out, '\n')
			}
			return
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			emit(gc)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		emit(c)
	}
	return string(out)
}

// unwrapHighlightAncestors removes highlighter wrapper divs directly above a
// <pre>, hoisting the pre into their place.
func unwrapHighlightAncestors(pre *xhtml.Node) {
	for {
		parent := pre.Parent
		if parent == nil || parent.Type != xhtml.ElementNode || parent.DataAtom != atom.Div {
			return
		}
		if !hasClass(parent, "highlight") && !hasClass(parent, "codeblock") && !hasClass(parent, "sourceCode") {
			return
		}
		grand := parent.Parent
		if grand == nil {
			return
		}
		parent.RemoveChild(pre)
		grand.InsertBefore(pre, parent)
		grand.RemoveChild(parent)
	}
}

func keepOnlyAttr(attrs []xhtml.Attribute, keys ...string) []xhtml.Attribute {
	keep := map[string]bool{}
	for _, k := range keys {
		keep[k] = true
	}
	out := attrs[:0]
	for _, a := range attrs {
		if keep[a.Key] {
			out = append(out, a)
		}
	}
	return out
}
