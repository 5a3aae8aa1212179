package pagequery

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/chromedp/pagequery/device"
)

// DefaultFrameInterval is the default rendering frame cadence of a Document.
const DefaultFrameInterval = 16 * time.Millisecond

// Document is a live, mutable page that the engine queries and manipulates.
//
// The document lock plays the role of the page's event loop: engine calls
// perform all their reads and writes of one tick while holding it, and page
// code may only mutate the tree through Update. Event listeners run with the
// lock held and must not call back into the Document or an Engine.
type Document struct {
	mu sync.Mutex

	root *html.Node

	// shadows maps hosts to their shadow roots, hosts maps shadow root
	// fragments back to them.
	shadows map[*html.Node]*shadowRoot
	hosts   map[*html.Node]*shadowRoot

	props     map[*html.Node]*elementProps
	listeners map[*html.Node][]cancelableListener

	layout Layout
	device device.Info

	active    *html.Node
	selection Selection
	scrollX   float64
	scrollY   float64

	frames *frameClock

	obsMu     sync.Mutex
	observers map[int]func()
	nextObs   int
}

type shadowRoot struct {
	host *html.Node
	root *html.Node
	mode cdp.ShadowRootType
}

// Selection is a document-level selection range over the child nodes of
// Node.
type Selection struct {
	Node       *html.Node
	Start, End int
}

// DocumentOption is a Document option.
type DocumentOption = func(*Document)

// WithLayout sets the layout used to measure element boxes.
func WithLayout(l Layout) DocumentOption {
	return func(d *Document) {
		d.layout = l
	}
}

// WithDevice sets the emulated device, which determines the viewport size
// and touch support of the document.
func WithDevice(dev device.Device) DocumentOption {
	return func(d *Document) {
		d.device = dev.Device()
	}
}

// WithFrameInterval sets the rendering frame cadence used by frame
// synchronized waits.
func WithFrameInterval(interval time.Duration) DocumentOption {
	return func(d *Document) {
		d.frames.interval = interval
	}
}

// NewDocument wraps an already parsed node tree. Declarative shadow roots
// found in the tree are attached.
func NewDocument(root *html.Node, opts ...DocumentOption) *Document {
	d := &Document{
		root:      root,
		shadows:   make(map[*html.Node]*shadowRoot),
		hosts:     make(map[*html.Node]*shadowRoot),
		props:     make(map[*html.Node]*elementProps),
		listeners: make(map[*html.Node][]cancelableListener),
		layout:    StyleLayout{},
		device:    device.Reset.Device(),
		frames:    &frameClock{interval: DefaultFrameInterval},
		observers: make(map[int]func()),
	}
	for _, o := range opts {
		o(d)
	}
	d.attachDeclarativeShadowRoots(root)
	return d
}

// Parse parses an HTML document from r.
func Parse(r io.Reader, opts ...DocumentOption) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root, opts...), nil
}

// ParseString parses an HTML document from s.
func ParseString(s string, opts ...DocumentOption) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Update runs fn with exclusive access to the tree, then notifies change
// observers. It is the only way page code may mutate the document.
func (d *Document) Update(fn func(t *Tree)) {
	d.mu.Lock()
	fn(&Tree{d: d})
	d.mu.Unlock()
	d.notify()
}

// View runs fn with exclusive access to the tree. Change observers are only
// notified when fn mutated the tree through t.
func (d *Document) View(fn func(t *Tree)) {
	t := &Tree{d: d}
	d.mu.Lock()
	fn(t)
	d.mu.Unlock()
	if t.changed {
		d.notify()
	}
}

// GetElementByID returns the first element in the document tree with the
// given id.
func (d *Document) GetElementByID(id string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return getElementByID(d.root, id)
}

// ShadowRoot returns the shadow root hosted by n, or nil.
func (d *Document) ShadowRoot(n *html.Node) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sr := d.shadows[n]; sr != nil {
		return sr.root
	}
	return nil
}

// Value returns the current value of an input, textarea, select or option.
func (d *Document) Value(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value(n)
}

// SelectedValues returns the values of the selected options of a select.
func (d *Document) SelectedValues(n *html.Node) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var values []string
	for _, o := range d.selectedOptions(n) {
		values = append(values, optionValue(o))
	}
	return values
}

// Files returns the files assigned to a file input.
func (d *Document) Files(n *html.Node) []File {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.props[n]; p != nil {
		return append([]File(nil), p.files...)
	}
	return nil
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Selection returns the document selection.
func (d *Document) Selection() Selection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selection
}

// SelectionRange returns the text selection of an input or textarea, in
// characters.
func (d *Document) SelectionRange(n *html.Node) (start, end int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.prop(n)
	return p.selStart, p.selEnd
}

// Viewport returns the visible area of the document in document coordinates.
func (d *Document) Viewport() dom.Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport()
}

// IsConnected reports whether n is part of the document tree, following
// shadow roots up to their hosts.
func (d *Document) IsConnected(n *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isConnected(n)
}

// AddEventListener registers fn for events of type typ delivered to n. The
// listener is dropped once ctx is done.
func (d *Document) AddEventListener(ctx context.Context, n *html.Node, typ string, fn func(*Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[n] = append(d.listeners[n], cancelableListener{ctx: ctx, typ: typ, fn: fn})
}

func (d *Document) viewport() dom.Rect {
	return dom.Rect{
		X:      d.scrollX,
		Y:      d.scrollY,
		Width:  float64(d.device.Width),
		Height: float64(d.device.Height),
	}
}

// observe registers fn to be called after every Update.
func (d *Document) observe(fn func()) (cancel func()) {
	d.obsMu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.obsMu.Lock()
			delete(d.observers, id)
			d.obsMu.Unlock()
		})
	}
}

// notify calls the observers. Observers must not block.
func (d *Document) notify() {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	for _, fn := range d.observers {
		fn()
	}
}

// isConnected walks up from n, crossing shadow roots, until it reaches the
// document node.
func (d *Document) isConnected(n *html.Node) bool {
	for p := n; p != nil; {
		if p == d.root {
			return true
		}
		if p.Parent == nil {
			sr := d.hosts[p]
			if sr == nil {
				return false
			}
			p = sr.host
			continue
		}
		p = p.Parent
	}
	return false
}

// isShadowRoot reports whether n is a shadow root fragment.
func (d *Document) isShadowRoot(n *html.Node) bool {
	return n != nil && d.hosts[n] != nil
}

// shadowRootOf returns the shadow root hosted by n.
func (d *Document) shadowRootOf(n *html.Node) *html.Node {
	if sr := d.shadows[n]; sr != nil {
		return sr.root
	}
	return nil
}

// parentElementOrShadowHost returns the parent element of n, or the host of
// the shadow root n is a direct child of.
func (d *Document) parentElementOrShadowHost(n *html.Node) *html.Node {
	p := n.Parent
	if p == nil {
		return nil
	}
	if p.Type == html.ElementNode {
		return p
	}
	if sr := d.hosts[p]; sr != nil {
		return sr.host
	}
	return nil
}

// attachShadow creates an empty shadow root on host, replacing any previous
// one.
func (d *Document) attachShadow(host *html.Node, mode cdp.ShadowRootType) *html.Node {
	if old := d.shadows[host]; old != nil {
		delete(d.hosts, old.root)
	}
	sr := &shadowRoot{
		host: host,
		root: &html.Node{Type: html.DocumentNode, Data: "#shadow-root"},
		mode: mode,
	}
	d.shadows[host] = sr
	d.hosts[sr.root] = sr
	return sr.root
}

// attachDeclarativeShadowRoots converts <template shadowrootmode=...>
// children into shadow roots of their parent element.
func (d *Document) attachDeclarativeShadowRoots(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if n.Type == html.ElementNode && c.Type == html.ElementNode && c.DataAtom == atom.Template && d.shadows[n] == nil {
			if mode, ok := declarativeShadowMode(c); ok {
				sr := d.attachShadow(n, mode)
				moveChildren(sr, c)
				n.RemoveChild(c)
				d.attachDeclarativeShadowRoots(sr)
				c = next
				continue
			}
		}
		d.attachDeclarativeShadowRoots(c)
		c = next
	}
}

func declarativeShadowMode(n *html.Node) (cdp.ShadowRootType, bool) {
	for _, key := range []string{"shadowrootmode", "shadowroot"} {
		if v, ok := attr(n, key); ok {
			switch strings.ToLower(v) {
			case "open":
				return cdp.ShadowRootTypeOpen, true
			case "closed":
				return cdp.ShadowRootTypeClosed, true
			}
		}
	}
	return "", false
}

// Tree is the mutation handle passed to Document.Update and Document.View.
// It must not be retained after the callback returns.
type Tree struct {
	d       *Document
	changed bool
}

// Root returns the document node.
func (t *Tree) Root() *html.Node {
	return t.d.root
}

// GetElementByID returns the first element with the given id, searching the
// document and every shadow root.
func (t *Tree) GetElementByID(id string) *html.Node {
	var found *html.Node
	t.d.walk(t.d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// AttachShadow attaches an open shadow root to host and returns it.
func (t *Tree) AttachShadow(host *html.Node) *html.Node {
	t.changed = true
	return t.d.attachShadow(host, cdp.ShadowRootTypeOpen)
}

// ShadowRoot returns the shadow root hosted by n, or nil.
func (t *Tree) ShadowRoot(n *html.Node) *html.Node {
	return t.d.shadowRootOf(n)
}

// AppendChild appends child to parent, detaching it from its current parent
// first.
func (t *Tree) AppendChild(parent, child *html.Node) {
	t.changed = true
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
}

// AppendHTML parses markup in the context of parent and appends the
// resulting nodes. Declarative shadow roots in markup are attached.
func (t *Tree) AppendHTML(parent *html.Node, markup string) ([]*html.Node, error) {
	scope := parent
	if scope.Type != html.ElementNode {
		scope = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), scope)
	if err != nil {
		return nil, err
	}
	t.changed = true
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	t.d.attachDeclarativeShadowRoots(parent)
	return nodes, nil
}

// Remove detaches n from its parent.
func (t *Tree) Remove(n *html.Node) {
	t.changed = true
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// SetAttribute sets an attribute on n.
func (t *Tree) SetAttribute(n *html.Node, key, val string) {
	t.changed = true
	setAttr(n, key, val)
}

// RemoveAttribute removes an attribute from n.
func (t *Tree) RemoveAttribute(n *html.Node, key string) {
	t.changed = true
	removeAttr(n, key)
}

// SetValue sets the current value of a form control, as page script would.
func (t *Tree) SetValue(n *html.Node, value string) {
	t.changed = true
	t.d.setValue(n, value)
}

// SetScroll sets the viewport scroll offset.
func (t *Tree) SetScroll(x, y float64) {
	t.changed = true
	t.d.scrollX, t.d.scrollY = x, y
}
