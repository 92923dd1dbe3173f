package transform

import (
	"strings"

	xhtml "golang.org/x/net/html"
)

// Small DOM helpers over x/net/html nodes.

func walk(n *xhtml.Node, fn func(*xhtml.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// removeNodes detaches every node in the subtree matching the predicate.
func removeNodes(root *xhtml.Node, match func(*xhtml.Node) bool) {
	var doomed []*xhtml.Node
	walk(root, func(n *xhtml.Node) {
		if n != root && match(n) {
			doomed = append(doomed, n)
		}
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func findByID(n *xhtml.Node, id string) *xhtml.Node {
	if n.Type == xhtml.ElementNode && getAttr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *xhtml.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, xhtml.Attribute{Key: key, Val: val})
}

func removeAttr(n *xhtml.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func hasClass(n *xhtml.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent concatenates all text nodes under n.
func textContent(n *xhtml.Node) string {
	var sb strings.Builder
	walk(n, func(c *xhtml.Node) {
		if c.Type == xhtml.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}
