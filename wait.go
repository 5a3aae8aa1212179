package pagequery

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"golang.org/x/net/html"
)

const (
	// stableFrameCount is the number of consecutive frames an element's box
	// must stay the same for the element to be stable.
	stableFrameCount = 10

	// frameDropTolerance is the minimal time between two stability
	// observations at the default frame rate. Frames arriving sooner are
	// dropped.
	frameDropTolerance = 15 * time.Millisecond
)

// dropTolerance scales frameDropTolerance to the frame interval of the
// clock.
func (c *frameClock) dropTolerance() time.Duration {
	if c.interval > 0 && c.interval < DefaultFrameInterval {
		return c.interval * frameDropTolerance / DefaultFrameInterval
	}
	return frameDropTolerance
}

// WaitForSelector waits until the first element matched by sel below root
// is in state, one of attached, detached, visible or hidden. It returns the
// element for attached and visible, and nil for detached and hidden.
//
// In strict mode, whenever the first match changes and sel matches more than
// one element, the wait fails with a *StrictModeError.
//
// Attached and detached are polled on document changes, visible and hidden
// on every frame, unless the options select another scheduler.
func (e *Engine) WaitForSelector(ctx context.Context, sel *Selector, root *html.Node, strict bool, state ElementState, opts ...PollOption) (*html.Node, error) {
	polling := "raf"
	switch state {
	case StateAttached, StateDetached:
		polling = "mutation"
	case StateVisible, StateHidden:
	default:
		return nil, fmt.Errorf("%w: cannot wait for selector to be %q", ErrUnexpectedState, state)
	}
	p := newPollTask(polling, opts...)

	var lastElement *html.Node
	e.debugf("waiting for %q to be %s", sel, state)
	return Poll(ctx, p.scheduler(e.doc), p.timeout, func() (*html.Node, error) {
		e.doc.mu.Lock()
		defer e.doc.mu.Unlock()

		elements, err := e.querySelectorAll(sel, root)
		if err != nil {
			return nil, err
		}
		var element *html.Node
		if len(elements) != 0 {
			element = elements[0]
		}
		if element != lastElement {
			lastElement = element
			switch {
			case element == nil:
				e.debugf("%q did not match any elements", sel)
			case strict && len(elements) > 1:
				return nil, e.strictModeError(sel, elements)
			default:
				e.debugf("%q resolved to %s", sel, previewNode(element))
			}
		}

		switch state {
		case StateAttached:
			if element != nil {
				return element, nil
			}
		case StateDetached:
			if element == nil {
				return nil, nil
			}
		case StateVisible:
			if element != nil && e.doc.isVisible(element) {
				return element, nil
			}
		case StateHidden:
			if element == nil || !e.doc.isVisible(element) {
				return nil, nil
			}
		}
		return nil, ErrContinuePolling
	})
}

// WaitForElementStates waits until node is in all of states. States other
// than stable must hold on the same frame; error tags returned while
// checking them end the wait.
func (e *Engine) WaitForElementStates(ctx context.Context, node *html.Node, states []ElementState, opts ...PollOption) error {
	p := newPollTask("raf", opts...)
	tolerance := e.doc.frames.dropTolerance()

	var (
		lastRect   *dom.Rect
		lastTime   time.Time
		samePosCnt int
	)
	_, err := Poll(ctx, p.scheduler(e.doc), p.timeout, func() (bool, error) {
		e.doc.mu.Lock()
		defer e.doc.mu.Unlock()

		for _, state := range states {
			if state != StateStable {
				ok, err := e.doc.checkElementState(node, state)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, ErrContinuePolling
				}
				continue
			}

			element := e.doc.retarget(node, noFollowLabel)
			if element == nil || !e.doc.isConnected(element) {
				return false, ErrNotConnected
			}

			// drop frames that arrive too early
			now := time.Now()
			if !lastTime.IsZero() && now.Sub(lastTime) < tolerance {
				return false, ErrContinuePolling
			}
			lastTime = now

			rect, _ := e.doc.boundingBox(element)
			if lastRect != nil && rect == *lastRect {
				samePosCnt++
			} else {
				samePosCnt = 0
			}
			lastRect = &rect
			if samePosCnt < stableFrameCount {
				return false, ErrContinuePolling
			}
		}
		return true, nil
	})
	return err
}
