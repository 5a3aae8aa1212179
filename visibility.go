package pagequery

import (
	"sync"

	"github.com/chromedp/cdproto/dom"
	"golang.org/x/net/html"
)

// Layout measures rendered element boxes in document coordinates. It is
// called with the document lock held.
type Layout interface {
	BoundingBox(n *html.Node) (dom.Rect, bool)
}

// LayoutFunc adapts a function to the Layout interface.
type LayoutFunc func(n *html.Node) (dom.Rect, bool)

// BoundingBox satisfies Layout.
func (f LayoutFunc) BoundingBox(n *html.Node) (dom.Rect, bool) {
	return f(n)
}

// StyleLayout derives element boxes from the inline left, top, width and
// height declarations of an element. Elements without a declared size get a
// 1x1 box.
type StyleLayout struct{}

// BoundingBox satisfies Layout.
func (StyleLayout) BoundingBox(n *html.Node) (dom.Rect, bool) {
	if n.Type != html.ElementNode {
		return dom.Rect{}, false
	}
	s := inlineStyle(n)
	return dom.Rect{
		X:      s.px("left", 0),
		Y:      s.px("top", 0),
		Width:  s.px("width", 1),
		Height: s.px("height", 1),
	}, true
}

// BoxLayout is a Layout whose boxes are pinned by the host. Elements without
// a pinned box are measured by the fallback layout.
type BoxLayout struct {
	mu       sync.RWMutex
	boxes    map[*html.Node]dom.Rect
	fallback Layout
}

// NewBoxLayout creates a BoxLayout. A nil fallback leaves unpinned elements
// without a box.
func NewBoxLayout(fallback Layout) *BoxLayout {
	return &BoxLayout{
		boxes:    make(map[*html.Node]dom.Rect),
		fallback: fallback,
	}
}

// SetBox pins the box of n.
func (l *BoxLayout) SetBox(n *html.Node, r dom.Rect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.boxes[n] = r
}

// Clear unpins the box of n.
func (l *BoxLayout) Clear(n *html.Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.boxes, n)
}

// BoundingBox satisfies Layout.
func (l *BoxLayout) BoundingBox(n *html.Node) (dom.Rect, bool) {
	l.mu.RLock()
	r, ok := l.boxes[n]
	l.mu.RUnlock()
	if ok {
		return r, true
	}
	if l.fallback != nil {
		return l.fallback.BoundingBox(n)
	}
	return dom.Rect{}, false
}

// boundingBox returns the box of n, or false when n is not rendered.
func (d *Document) boundingBox(n *html.Node) (dom.Rect, bool) {
	if n == nil || n.Type != html.ElementNode || !d.isConnected(n) {
		return dom.Rect{}, false
	}
	return d.layout.BoundingBox(n)
}

// isVisible reports whether e has a non empty box and neither e nor any
// element containing it, across shadow boundaries, suppresses rendering.
func (d *Document) isVisible(e *html.Node) bool {
	r, ok := d.boundingBox(e)
	if !ok || r.Width <= 0 || r.Height <= 0 {
		return false
	}
	for n := e; n != nil; n = d.parentElementOrShadowHost(n) {
		if computedStyle(n).suppressed() {
			return false
		}
	}
	return true
}

func contains(r dom.Rect, x, y float64) bool {
	return r.X <= x && x < r.X+r.Width && r.Y <= y && y < r.Y+r.Height
}

// elementsFromPoint returns the visible elements of the tree rooted at
// container whose box contains the document point (x, y), topmost first.
// Later elements in tree order paint above earlier ones.
func (d *Document) elementsFromPoint(container *html.Node, x, y float64) []*html.Node {
	var hits []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if computedStyle(c).suppressed() {
				continue
			}
			if r, ok := d.layout.BoundingBox(c); ok && r.Width > 0 && r.Height > 0 && contains(r, x, y) {
				hits = append(hits, c)
			}
			visit(c)
		}
	}
	visit(container)
	for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
		hits[i], hits[j] = hits[j], hits[i]
	}
	return hits
}

// deepElementFromPoint returns the topmost element at the document point
// (x, y), descending into shadow roots.
func (d *Document) deepElementFromPoint(x, y float64) *html.Node {
	var element *html.Node
	for container := d.root; container != nil; {
		hits := d.elementsFromPoint(container, x, y)
		if len(hits) == 0 {
			break
		}
		inner := hits[0]
		if element != nil && inner == element {
			break
		}
		element = inner
		container = d.shadowRootOf(element)
	}
	return element
}
