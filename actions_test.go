package pagequery

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/dom"
	"golang.org/x/net/html"
)

func TestScrollIntoView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		opts ScrollIntoViewOptions
		exp  dom.Rect
	}{
		{ScrollIntoViewOptions{}, dom.Rect{X: 0, Y: 2000, Width: 1280, Height: 720}},
		{ScrollIntoViewOptions{Block: AlignCenter}, dom.Rect{X: 0, Y: 1665, Width: 1280, Height: 720}},
		{ScrollIntoViewOptions{Block: AlignEnd}, dom.Rect{X: 0, Y: 1330, Width: 1280, Height: 720}},
		{ScrollIntoViewOptions{Block: AlignNearest}, dom.Rect{X: 0, Y: 1330, Width: 1280, Height: 720}},
	}
	for i, test := range tests {
		e := testEngine(t, "visibility.html")
		doc := e.Document()
		var scrolls int
		ctx, cancel := context.WithCancel(context.Background())
		doc.AddEventListener(ctx, doc.Root(), "scroll", func(*Event) {
			scrolls++
		})

		if err := e.ScrollIntoView(byID(t, doc, "below"), test.opts); err != nil {
			t.Fatalf("test %d got error: %v", i, err)
		}
		cancel()
		if vp := doc.Viewport(); vp != test.exp {
			t.Errorf("test %d expected viewport %v, got: %v", i, test.exp, vp)
		}
		if scrolls != 1 {
			t.Errorf("test %d expected one scroll event, got: %d", i, scrolls)
		}
	}
}

func TestScrollIntoViewInView(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "visibility.html")
	doc := e.Document()
	var scrolls int
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doc.AddEventListener(ctx, doc.Root(), "scroll", func(*Event) {
		scrolls++
	})

	if err := e.ScrollIntoView(byID(t, doc, "shown").FirstChild, ScrollIntoViewOptions{Block: AlignNearest}); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if scrolls != 0 {
		t.Errorf("expected no scroll event, got: %d", scrolls)
	}
	if vp, exp := doc.Viewport(), (dom.Rect{Width: 1280, Height: 720}); vp != exp {
		t.Errorf("expected viewport %v, got: %v", exp, vp)
	}

	if err := e.ScrollIntoView(nil, ScrollIntoViewOptions{}); err != ErrNotConnected {
		t.Errorf("expected %v, got: %v", ErrNotConnected, err)
	}
}

func TestScrollOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		align                     ScrollAlignment
		scroll, extent, pos, size float64
		exp                       float64
	}{
		{AlignStart, 0, 100, 300, 10, 300},
		{AlignCenter, 0, 100, 300, 10, 255},
		{AlignEnd, 0, 100, 300, 10, 210},
		{AlignNearest, 0, 100, 50, 10, 0},
		{AlignNearest, 200, 100, 50, 10, 50},
		{AlignNearest, 0, 100, 300, 10, 210},
		{AlignNearest, 0, 100, 300, 200, 300},
		{AlignCenter, 0, 100, 10, 10, 0},
	}
	for i, test := range tests {
		if v := scrollOffset(test.align, test.scroll, test.extent, test.pos, test.size); v != test.exp {
			t.Errorf("test %d expected %v, got: %v", i, test.exp, v)
		}
	}
}

func TestDeepElementFromPoint(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "visibility.html")
	doc := e.Document()
	tests := []struct {
		x, y float64
		exp  string
	}{
		{280, 280, "target"},
		{215, 215, "overlay"},
		{160, 160, "overlay"},
		{50, 15, "shown"},
		{1000, 600, ""},
	}
	for i, test := range tests {
		n := e.DeepElementFromPoint(test.x, test.y)
		if test.exp == "" {
			if n != nil {
				t.Errorf("test %d expected nil, got: %s", i, previewNode(n))
			}
			continue
		}
		if n == nil || getAttr(n, "id") != test.exp {
			t.Errorf("test %d expected #%s, got: %s", i, test.exp, previewNode(n))
		}
	}

	// viewport coordinates follow the scroll position
	if err := e.ScrollIntoView(byID(t, doc, "below"), ScrollIntoViewOptions{}); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if n := e.DeepElementFromPoint(10, 10); n == nil || getAttr(n, "id") != "below" {
		t.Errorf("expected #below, got: %s", previewNode(n))
	}
}

func TestDeepElementFromPointShadow(t *testing.T) {
	t.Parallel()

	doc, err := ParseString(`<div id="host" style="left: 0; top: 0; width: 100px; height: 100px">` +
		`<template shadowrootmode="open">` +
		`<span id="inner" style="left: 10px; top: 10px; width: 20px; height: 20px">in</span>` +
		`</template></div>`)
	if err != nil {
		t.Fatal(err)
	}
	e := New(doc, WithLogf(t.Logf))

	if n := e.DeepElementFromPoint(15, 15); n == nil || getAttr(n, "id") != "inner" {
		t.Errorf("expected #inner, got: %s", previewNode(n))
	}
	if err := e.CheckHitTargetAt(byID(t, doc, "host"), 15, 15); err != nil {
		t.Errorf("expected the host to receive pointer events, got: %v", err)
	}
	if n := e.DeepElementFromPoint(50, 50); n == nil || getAttr(n, "id") != "host" {
		t.Errorf("expected #host, got: %s", previewNode(n))
	}
}

func TestCheckHitTargetAt(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "visibility.html")
	doc := e.Document()
	target := byID(t, doc, "target")

	if err := e.CheckHitTargetAt(target, 280, 280); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	tests := []struct {
		x, y float64
		exp  string
	}{
		{205, 205, `<div id="overlay">overlay</div>`},
		{1000, 600, `<html>…</html>`}, // nothing hit
	}
	for i, test := range tests {
		err := e.CheckHitTargetAt(target, test.x, test.y)
		var hit *HitTargetError
		if !errors.As(err, &hit) {
			t.Fatalf("test %d expected *HitTargetError, got: %v", i, err)
		}
		if !errors.Is(err, ErrHitTargetIntercepted) {
			t.Errorf("test %d expected %v, got: %v", i, ErrHitTargetIntercepted, err)
		}
		if hit.Description != test.exp {
			t.Errorf("test %d expected %q, got: %q", i, test.exp, hit.Description)
		}
	}

	detached := &html.Node{Type: html.ElementNode, Data: "div"}
	if err := e.CheckHitTargetAt(detached, 0, 0); err != ErrNotConnected {
		t.Errorf("expected %v, got: %v", ErrNotConnected, err)
	}
}

func TestCheckHitTargetAtSubtree(t *testing.T) {
	t.Parallel()

	doc, err := ParseString(`<div id="target" style="left: 0; top: 0; width: 50px; height: 50px">t</div>` +
		`<div id="cover" style="left: 0; top: 0; width: 100px; height: 100px">` +
		`<span id="deep" style="left: 0; top: 0; width: 10px; height: 10px">d</span>` +
		`</div>`)
	if err != nil {
		t.Fatal(err)
	}
	e := New(doc, WithLogf(t.Logf))

	err = e.CheckHitTargetAt(byID(t, doc, "target"), 5, 5)
	var hit *HitTargetError
	if !errors.As(err, &hit) {
		t.Fatalf("expected *HitTargetError, got: %v", err)
	}
	exp := `<span id="deep">d</span> from <div id="cover">…</div> subtree`
	if hit.Description != exp {
		t.Errorf("expected %q, got: %q", exp, hit.Description)
	}
	if s := hit.Error(); s != exp+" intercepts pointer events" {
		t.Errorf("unexpected message: %s", s)
	}
}

func TestElementBorderWidth(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "visibility.html")
	doc := e.Document()

	tests := []struct {
		id  string
		exp BorderWidth
	}{
		{"bordered", BorderWidth{Left: 3, Top: 5}},
		{"shown", BorderWidth{}},
	}
	for i, test := range tests {
		bw, err := e.ElementBorderWidth(byID(t, doc, test.id))
		if err != nil {
			t.Fatalf("test %d got error: %v", i, err)
		}
		if bw != test.exp {
			t.Errorf("test %d expected %v, got: %v", i, test.exp, bw)
		}
	}

	if _, err := e.ElementBorderWidth(byID(t, doc, "shown").FirstChild); err != ErrNotElement {
		t.Errorf("expected %v, got: %v", ErrNotElement, err)
	}
}

func TestBorderWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		style string
		exp   BorderWidth
	}{
		{"", BorderWidth{}},
		{"border: thin solid", BorderWidth{1, 1}},
		{"border-width: 1px 2px 3px 4px", BorderWidth{4, 1}},
		{"border-width: 1px 2px", BorderWidth{2, 1}},
		{"border: thick; border-left: 2.5px dashed", BorderWidth{2, 5}},
		{"border-left-width: 7px; border-top-width: 8em", BorderWidth{7, 8}},
	}
	for i, test := range tests {
		n := &html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{{Key: "style", Val: test.style}}}
		if bw := computedStyle(n).borderWidth(); bw != test.exp {
			t.Errorf("test %d (%q) expected %v, got: %v", i, test.style, test.exp, bw)
		}
	}
}

func TestBoundingBox(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "visibility.html")
	doc := e.Document()

	inline := dom.Rect{X: 10, Y: 10, Width: 100, Height: 20}
	if r, ok := e.BoundingBox(byID(t, doc, "shown")); !ok || r != inline {
		t.Errorf("expected %v, got: %v %t", inline, r, ok)
	}
	if _, ok := e.BoundingBox(byID(t, doc, "shown").FirstChild); ok {
		t.Error("expected no box for a text node")
	}

	// pinned boxes win over the fallback
	layout := NewBoxLayout(StyleLayout{})
	e = testEngine(t, "visibility.html", WithLayout(layout))
	shown := byID(t, e.Document(), "shown")
	pinned := dom.Rect{X: 1, Y: 2, Width: 3, Height: 4}
	layout.SetBox(shown, pinned)
	if r, _ := e.BoundingBox(shown); r != pinned {
		t.Errorf("expected %v, got: %v", pinned, r)
	}
	layout.Clear(shown)
	if r, _ := e.BoundingBox(shown); r != inline {
		t.Errorf("expected %v, got: %v", inline, r)
	}
}

func TestDocumentElement(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "shadow.html")
	if root := e.DocumentElement(byID(t, e.Document(), "shadow2")); root == nil || root.Data != "html" {
		t.Errorf("expected <html>, got: %s", previewNode(root))
	}
	if root := e.DocumentElement(&html.Node{Type: html.ElementNode, Data: "div"}); root != nil {
		t.Errorf("expected nil for a detached node, got: %s", previewNode(root))
	}
}
