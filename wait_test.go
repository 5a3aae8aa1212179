package pagequery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/dom"
	"golang.org/x/net/html"
)

func TestWaitForSelectorAttached(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "shadow.html", WithFrameInterval(time.Millisecond))
	sec := byID(t, e.Document(), "sec")
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Document().Update(func(tr *Tree) {
			if _, err := tr.AppendHTML(sec, `<span id="late">late</span>`); err != nil {
				panic(err)
			}
		})
	}()

	n, err := e.WaitForSelector(context.Background(), MustParseSelector("#late"), nil, true, StateAttached,
		WithPollingTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if n == nil || getAttr(n, "id") != "late" {
		t.Errorf("expected #late, got: %s", previewNode(n))
	}
}

func TestWaitForSelectorViewChanges(t *testing.T) {
	t.Parallel()

	// changes made under View wake change polling too
	e := testEngine(t, "shadow.html")
	sec := byID(t, e.Document(), "sec")
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Document().View(func(tr *Tree) {
			tr.SetAttribute(sec, "class", "ready")
		})
	}()

	n, err := e.WaitForSelector(context.Background(), MustParseSelector("section.ready"), nil, false, StateAttached,
		WithPollingMutation(), WithPollingTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if n != sec {
		t.Errorf("expected #sec, got: %s", previewNode(n))
	}
}

func TestWaitForSelectorDetached(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "shadow.html", WithFrameInterval(time.Millisecond))
	shadow := byID(t, e.Document(), "shadow2")
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Document().Update(func(tr *Tree) {
			tr.Remove(shadow)
		})
	}()

	n, err := e.WaitForSelector(context.Background(), MustParseSelector("#shadow2"), nil, true, StateDetached,
		WithPollingTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if n != nil {
		t.Errorf("expected nil, got: %s", previewNode(n))
	}
}

func TestWaitForSelectorVisible(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "visibility.html", WithFrameInterval(time.Millisecond))
	none := byID(t, e.Document(), "none")
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Document().Update(func(tr *Tree) {
			tr.RemoveAttribute(none, "style")
		})
	}()

	n, err := e.WaitForSelector(context.Background(), MustParseSelector("#none"), nil, false, StateVisible,
		WithPollingTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if n != none {
		t.Errorf("expected #none, got: %s", previewNode(n))
	}

	// already hidden resolves right away
	n, err = e.WaitForSelector(context.Background(), MustParseSelector("#invisible"), nil, false, StateHidden)
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if n != nil {
		t.Errorf("expected nil, got: %s", previewNode(n))
	}
}

func TestWaitForSelectorErrors(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "shadow.html", WithFrameInterval(time.Millisecond))

	_, err := e.WaitForSelector(context.Background(), MustParseSelector(".item"), nil, false, StateEnabled)
	if !errors.Is(err, ErrUnexpectedState) {
		t.Errorf("expected %v, got: %v", ErrUnexpectedState, err)
	}

	_, err = e.WaitForSelector(context.Background(), MustParseSelector(".item"), nil, true, StateAttached)
	var strict *StrictModeError
	if !errors.As(err, &strict) {
		t.Fatalf("expected *StrictModeError, got: %v", err)
	}
	if len(strict.Previews) != 4 {
		t.Errorf("expected 4 previews, got: %v", strict.Previews)
	}

	_, err = e.WaitForSelector(context.Background(), MustParseSelector("#missing"), nil, false, StateAttached,
		WithPollingTimeout(20*time.Millisecond))
	if !errors.Is(err, ErrPollingTimeout) {
		t.Errorf("expected %v, got: %v", ErrPollingTimeout, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.WaitForSelector(ctx, MustParseSelector("#missing"), nil, false, StateVisible)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected %v, got: %v", context.Canceled, err)
	}
}

func TestWaitForElementStates(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html", WithFrameInterval(time.Millisecond))
	button := byID(t, e.Document(), "fs-button")
	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Document().Update(func(tr *Tree) {
			tr.RemoveAttribute(tr.GetElementByID("fs"), "disabled")
		})
	}()

	err := e.WaitForElementStates(context.Background(), button,
		[]ElementState{StateVisible, StateEnabled, StateStable},
		WithPollingTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
}

func TestWaitForElementStatesNotConnected(t *testing.T) {
	t.Parallel()

	e := testEngine(t, "forms.html", WithFrameInterval(time.Millisecond))
	para := byID(t, e.Document(), "para")
	e.Document().Update(func(tr *Tree) {
		tr.Remove(para)
	})

	for _, state := range []ElementState{StateVisible, StateStable} {
		err := e.WaitForElementStates(context.Background(), para, []ElementState{state})
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("state %s expected %v, got: %v", state, ErrNotConnected, err)
		}
	}
}

func TestWaitForElementStatesUnstable(t *testing.T) {
	t.Parallel()

	// every measurement moves the element
	var mu sync.Mutex
	var x float64
	layout := LayoutFunc(func(n *html.Node) (dom.Rect, bool) {
		mu.Lock()
		defer mu.Unlock()
		x++
		return dom.Rect{X: x, Width: 10, Height: 10}, true
	})
	e := testEngine(t, "forms.html", WithFrameInterval(time.Millisecond), WithLayout(layout))

	err := e.WaitForElementStates(context.Background(), byID(t, e.Document(), "name"),
		[]ElementState{StateStable}, WithPollingTimeout(50*time.Millisecond))
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError, got: %v", err)
	}
}

func TestStableTakesFrames(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var measured int
	layout := LayoutFunc(func(n *html.Node) (dom.Rect, bool) {
		mu.Lock()
		defer mu.Unlock()
		measured++
		return dom.Rect{Width: 10, Height: 10}, true
	})
	e := testEngine(t, "forms.html", WithFrameInterval(time.Millisecond), WithLayout(layout))

	err := e.WaitForElementStates(context.Background(), byID(t, e.Document(), "name"),
		[]ElementState{StateStable}, WithPollingTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("got error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if measured != stableFrameCount+1 {
		t.Errorf("expected %d measurements, got: %d", stableFrameCount+1, measured)
	}
}

func TestDropTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		interval time.Duration
		exp      time.Duration
	}{
		{0, frameDropTolerance},
		{DefaultFrameInterval, frameDropTolerance},
		{time.Second, frameDropTolerance},
		{8 * time.Millisecond, 7500 * time.Microsecond},
	}
	for i, test := range tests {
		c := &frameClock{interval: test.interval}
		if got := c.dropTolerance(); got != test.exp {
			t.Errorf("test %d expected %v, got: %v", i, test.exp, got)
		}
	}
}
