package pagequery

import (
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// autoClosingTags are previewed as self closing.
var autoClosingTags = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Command: true, atom.Embed: true, atom.Hr: true, atom.Img: true,
	atom.Input: true, atom.Keygen: true, atom.Link: true, atom.Menuitem: true,
	atom.Meta: true, atom.Param: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

const previewMaxLen = 50

// PreviewNode returns a short human readable rendition of n for use in
// diagnostics. It is not meant to be parsed.
func (e *Engine) PreviewNode(n *html.Node) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return previewNode(n)
}

func previewNode(n *html.Node) string {
	switch {
	case n == nil:
		return "<nil>"
	case n.Type == html.TextNode:
		return oneLine("#text=" + n.Data)
	case n.Type != html.ElementNode:
		return oneLine("<" + nodeName(n) + " />")
	}

	name := nodeName(n)
	attrs := make([]string, 0, len(n.Attr))
	for _, a := range n.Attr {
		if a.Key == "style" {
			continue
		}
		attrs = append(attrs, " "+a.Key+`="`+a.Val+`"`)
	}
	slices.SortStableFunc(attrs, func(a, b string) bool {
		return len([]rune(a)) < len([]rune(b))
	})
	attrText := clamp(strings.Join(attrs, ""))
	if autoClosingTags[n.DataAtom] {
		return oneLine("<" + name + attrText + "/>")
	}

	children := childCount(n)
	onlyText := children <= 5
	for c := n.FirstChild; onlyText && c != nil; c = c.NextSibling {
		onlyText = c.Type == html.TextNode
	}
	var text string
	switch {
	case onlyText:
		text = textContent(n)
	case children != 0:
		text = "…"
	}
	return oneLine("<" + name + attrText + ">" + clamp(text) + "</" + name + ">")
}

// clamp shortens s to previewMaxLen characters, marking the cut with an
// ellipsis.
func clamp(s string) string {
	if r := []rune(s); len(r) > previewMaxLen {
		return string(r[:previewMaxLen-1]) + "…"
	}
	return s
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", "↵", "\t", "⇆").Replace(s)
}
