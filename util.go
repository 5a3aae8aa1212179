package pagequery

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// walk visits n and its descendants in tree order, descending into the
// shadow root of a host right after the host itself. Returning false from
// visit stops the walk.
func (d *Document) walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	if sr := d.shadows[n]; sr != nil {
		if !d.walk(sr.root, visit) {
			return false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !d.walk(c, visit) {
			return false
		}
	}
	return true
}

// scopes returns root followed by every shadow root hosted inside root's
// subtree, depth-first, each shadow root immediately followed by the shadow
// roots nested within it.
func (d *Document) scopes(root *html.Node) []*html.Node {
	scopes := []*html.Node{root}
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if sr := d.shadows[n]; sr != nil {
			scopes = append(scopes, d.scopes(sr.root)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return scopes
}

// treeRoot returns the root of the tree n belongs to: the document, a shadow
// root, or the top of a detached subtree.
func treeRoot(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// getElementByID searches the light tree under root.
func getElementByID(root *html.Node, id string) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && getAttr(c, "id") == id {
			return c
		}
		if n := getElementByID(c, id); n != nil {
			return n
		}
	}
	return nil
}

// closest returns the first of n and its ancestor elements, within the same
// tree, that satisfies match.
func closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if match(n) {
			return n
		}
	}
	return nil
}

// parentElement returns the parent of n if it is an element.
func parentElement(n *html.Node) *html.Node {
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		return n.Parent
	}
	return nil
}

func moveChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; c = src.FirstChild {
		src.RemoveChild(c)
		dst.AppendChild(c)
	}
}

func isTag(n *html.Node, tags ...atom.Atom) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, a := range tags {
		if n.DataAtom == a {
			return true
		}
	}
	return false
}

// nodeName returns the lower cased DOM nodeName of n.
func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToLower(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		if n.Data != "" {
			return n.Data
		}
		return "#document"
	case html.DoctypeNode:
		return n.Data
	}
	return ""
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func getAttr(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

// textContent returns the concatenated text of n's light tree.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
			case html.ElementNode:
				visit(c)
			}
		}
	}
	visit(n)
	return sb.String()
}

// normalizeWhitespace collapses whitespace runs into single spaces and trims
// the result.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func childCount(n *html.Node) int {
	var i int
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		i++
	}
	return i
}
