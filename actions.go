package pagequery

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"golang.org/x/exp/slices"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Outcome is the result of a successful action.
type Outcome string

// Action outcomes.
const (
	// OutcomeDone is returned when the action completed.
	OutcomeDone Outcome = "done"

	// OutcomeNeedsInput is returned when the caller must complete the action
	// with keystrokes, see Engine.Type.
	OutcomeNeedsInput Outcome = "needsinput"
)

// SelectOption identifies options to select. An option matches when it is
// Node, or when all of the set fields match it.
type SelectOption struct {
	Value *string
	Label *string
	Index *int
	Node  *html.Node
}

func (o SelectOption) matches(option *html.Node, index int) bool {
	if o.Node != nil {
		return o.Node == option
	}
	return (o.Value == nil || *o.Value == optionValue(option)) &&
		(o.Label == nil || *o.Label == optionLabel(option)) &&
		(o.Index == nil || *o.Index == index)
}

// SelectOptions selects the options of the select targeted by node that
// match options, replacing the previous selection, and returns their values.
// A single select only gets the first matching option selected.
func (e *Engine) SelectOptions(node *html.Node, options []SelectOption) ([]string, error) {
	var (
		values []string
		err    error
	)
	e.update(func() {
		values, err = e.doc.selectOptions(node, options)
	})
	return values, err
}

func (d *Document) selectOptions(node *html.Node, toSelect []SelectOption) ([]string, error) {
	element := d.retarget(node, followLabel)
	if element == nil || !d.isConnected(element) {
		return nil, ErrNotConnected
	}
	if !isTag(element, atom.Select) {
		return nil, ErrNotSelect
	}
	multiple := hasAttr(element, "multiple")
	options := d.options(element)

	remaining := append([]SelectOption(nil), toSelect...)
	var selected []*html.Node
	for index, option := range options {
		var matched bool
		for _, o := range remaining {
			if o.matches(option, index) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		selected = append(selected, option)
		if !multiple {
			break
		}
		rest := remaining[:0]
		for _, o := range remaining {
			if !o.matches(option, index) {
				rest = append(rest, o)
			}
		}
		remaining = rest
	}

	for _, option := range options {
		d.setOptionSelected(option, false)
	}
	values := make([]string, 0, len(selected))
	for _, option := range selected {
		d.setOptionSelected(option, true)
		values = append(values, optionValue(option))
	}
	d.fire(element, "input", true)
	d.fire(element, "change", true)
	return values, nil
}

// FilePayload is a file to assign to a file input, with base64 encoded
// contents.
type FilePayload struct {
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Buffer         string `json:"buffer"`
	LastModifiedMs int64  `json:"lastModifiedMs,omitempty"`
}

// SetInputFiles replaces the files of the file input node with payloads.
func (e *Engine) SetInputFiles(node *html.Node, payloads []FilePayload) (Outcome, error) {
	if node == nil || node.Type != html.ElementNode {
		return "", ErrNotElement
	}
	if !isTag(node, atom.Input) {
		return "", ErrNotInput
	}
	if strings.ToLower(getAttr(node, "type")) != "file" {
		return "", ErrNotFile
	}
	files := make([]File, 0, len(payloads))
	for _, p := range payloads {
		data, err := base64.StdEncoding.DecodeString(p.Buffer)
		if err != nil {
			return "", fmt.Errorf("could not decode file %q: %w", p.Name, err)
		}
		f := File{
			Name:     p.Name,
			MimeType: p.MimeType,
			Data:     data,
		}
		if p.LastModifiedMs != 0 {
			f.LastModified = time.UnixMilli(p.LastModifiedMs)
		} else {
			f.LastModified = time.Now()
		}
		files = append(files, f)
	}
	e.update(func() {
		e.doc.prop(node).files = files
		e.doc.fire(node, "input", true)
		e.doc.fire(node, "change", true)
	})
	return OutcomeDone, nil
}

// ScrollAlignment is the alignment of an element scrolled into view.
type ScrollAlignment string

// Scroll alignments.
const (
	AlignStart   ScrollAlignment = "start"
	AlignCenter  ScrollAlignment = "center"
	AlignEnd     ScrollAlignment = "end"
	AlignNearest ScrollAlignment = "nearest"
)

// ScrollIntoViewOptions are the options of ScrollIntoView. Block defaults
// to start and Inline to nearest.
type ScrollIntoViewOptions struct {
	Block  ScrollAlignment `json:"block,omitempty"`
	Inline ScrollAlignment `json:"inline,omitempty"`
}

// ScrollIntoView scrolls the document so that node is in view.
func (e *Engine) ScrollIntoView(node *html.Node, opts ScrollIntoViewOptions) error {
	var err error
	e.update(func() {
		element := node
		if element != nil && element.Type != html.ElementNode {
			element = parentElement(element)
		}
		if element == nil || !e.doc.isConnected(element) {
			err = ErrNotConnected
			return
		}
		r, ok := e.doc.boundingBox(element)
		if !ok {
			return
		}
		if opts.Block == "" {
			opts.Block = AlignStart
		}
		if opts.Inline == "" {
			opts.Inline = AlignNearest
		}
		vp := e.doc.viewport()
		x := scrollOffset(opts.Inline, vp.X, vp.Width, r.X, r.Width)
		y := scrollOffset(opts.Block, vp.Y, vp.Height, r.Y, r.Height)
		if x != e.doc.scrollX || y != e.doc.scrollY {
			e.doc.scrollX, e.doc.scrollY = x, y
			e.doc.fire(e.doc.root, "scroll", false)
		}
	})
	return err
}

// scrollOffset computes the scroll offset along one axis that aligns the
// segment [pos, pos+size) in a viewport of the given extent.
func scrollOffset(align ScrollAlignment, scroll, extent, pos, size float64) float64 {
	var off float64
	switch align {
	case AlignCenter:
		off = pos + size/2 - extent/2
	case AlignEnd:
		off = pos + size - extent
	case AlignNearest:
		switch {
		case pos >= scroll && pos+size <= scroll+extent:
			off = scroll
		case pos < scroll || size > extent:
			off = pos
		default:
			off = pos + size - extent
		}
	default:
		off = pos
	}
	return math.Max(0, off)
}

// BoundingBox returns the box of node in document coordinates, or false
// when it is not rendered.
func (e *Engine) BoundingBox(node *html.Node) (dom.Rect, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.boundingBox(node)
}

// DeepElementFromPoint returns the topmost element at the viewport point
// (x, y), descending into shadow roots, or nil.
func (e *Engine) DeepElementFromPoint(x, y float64) *html.Node {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.deepElementFromPoint(x+e.doc.scrollX, y+e.doc.scrollY)
}

// CheckHitTargetAt checks that a pointer action at the viewport point (x, y)
// would be received by node or one of its descendants. Otherwise it returns
// a *HitTargetError describing the intercepting element.
func (e *Engine) CheckHitTargetAt(node *html.Node, x, y float64) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	element := node
	if element != nil && element.Type != html.ElementNode {
		element = parentElement(element)
	}
	if element == nil || !e.doc.isConnected(element) {
		return ErrNotConnected
	}
	if b := closest(element, isButtonLike); b != nil {
		element = b
	}

	hit := e.doc.deepElementFromPoint(x+e.doc.scrollX, y+e.doc.scrollY)
	var hitParents []*html.Node
	for hit != nil && hit != element {
		hitParents = append(hitParents, hit)
		hit = e.doc.parentElementOrShadowHost(hit)
	}
	if hit == element {
		return nil
	}

	desc := previewNode(e.documentElement())
	if len(hitParents) != 0 {
		desc = previewNode(hitParents[0])
	}
	// the root is the topmost element of the hit chain that is not in the
	// chain of node
	for n := element; n != nil; n = e.doc.parentElementOrShadowHost(n) {
		if i := slices.Index(hitParents, n); i != -1 {
			if i > 1 {
				desc += " from " + previewNode(hitParents[i-1]) + " subtree"
			}
			break
		}
	}
	return &HitTargetError{Description: desc}
}

func (e *Engine) documentElement() *html.Node {
	for c := e.doc.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// ElementBorderWidth returns the left and top border widths of node.
func (e *Engine) ElementBorderWidth(node *html.Node) (BorderWidth, error) {
	if node == nil || node.Type != html.ElementNode {
		return BorderWidth{}, ErrNotElement
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return computedStyle(node).borderWidth(), nil
}
