package pagequery

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error types.
var (
	// ErrInvalidSelector is the error returned when a selector cannot be
	// parsed, or one of its parts is rejected by its query engine.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrInvalidTarget is the error returned when a node handle does not
	// refer to a node of the session's document.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrPollingTimeout is the error returned when the predicate of a poll
	// does not hold before its timeout.
	ErrPollingTimeout = errors.New("waiting for predicate timed out")

	// ErrContinuePolling is returned by poll predicates that do not hold
	// yet.
	ErrContinuePolling = errors.New("continue polling")
)

// ErrorTag is one of the closed set of precondition failures returned by
// engine operations.
type ErrorTag string

// Error tags.
const (
	ErrNotConnected           ErrorTag = "error:notconnected"
	ErrNotElement             ErrorTag = "error:notelement"
	ErrNotInput               ErrorTag = "error:notinput"
	ErrNotFile                ErrorTag = "error:notfile"
	ErrNotFillableElement     ErrorTag = "error:notfillableelement"
	ErrNotFillableNumberInput ErrorTag = "error:notfillablenumberinput"
	ErrNotValidDate           ErrorTag = "error:notvaliddate"
	ErrNotSelect              ErrorTag = "error:notselect"
	ErrNotQueryableNode       ErrorTag = "error:notqueryablenode"
	ErrNthNoCapture           ErrorTag = "error:nthnocapture"
	ErrUnexpectedState        ErrorTag = "error:unexpected-state"
	ErrStrictModeViolation    ErrorTag = "error:strictmodeviolation"
	ErrHitTargetIntercepted   ErrorTag = "error:intercept"
)

var errorTagDescriptions = map[ErrorTag]string{
	ErrNotConnected:           "element is not attached to the DOM",
	ErrNotElement:             "node is not an element",
	ErrNotInput:               "node is not an HTMLInputElement",
	ErrNotFile:                "node is not an input[type=file] element",
	ErrNotFillableElement:     "element is not an <input> or <textarea> element",
	ErrNotFillableNumberInput: "cannot type text into input[type=number]",
	ErrNotValidDate:           "malformed value",
	ErrNotSelect:              "element is not a <select> element",
	ErrNotQueryableNode:       "node is not queryable",
	ErrNthNoCapture:           "can't query n-th element in a chained selector with capture",
	ErrUnexpectedState:        "unexpected element state",
	ErrStrictModeViolation:    "strict mode violation, multiple elements returned for selector query",
	ErrHitTargetIntercepted:   "another element is intercepting with pointer action",
}

// Error satisfies the error interface.
func (t ErrorTag) Error() string {
	return string(t)
}

// Description returns a human readable description of the tag.
func (t ErrorTag) Description() string {
	if s, ok := errorTagDescriptions[t]; ok {
		return s
	}
	return strings.TrimPrefix(string(t), "error:")
}

// ParseErrorTag returns the tag for s, when s is a known tag.
func ParseErrorTag(s string) (ErrorTag, bool) {
	t := ErrorTag(s)
	_, ok := errorTagDescriptions[t]
	return t, ok
}

// StrictModeError is the error returned when a strict query matches more
// than one element.
type StrictModeError struct {
	Selector string
	Previews []string
}

// Error satisfies the error interface.
func (e *StrictModeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "strict mode violation: %q resolved to %d elements:", e.Selector, len(e.Previews))
	for i, p := range e.Previews {
		fmt.Fprintf(&sb, "\n    %d) %s", i+1, p)
	}
	return sb.String()
}

// Unwrap returns ErrStrictModeViolation.
func (e *StrictModeError) Unwrap() error {
	return ErrStrictModeViolation
}

// TimeoutError is the error returned when a poll times out.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

// Error satisfies the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %dms", e.Elapsed.Milliseconds())
}

// Unwrap returns ErrPollingTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrPollingTimeout
}

// HitTargetError is the error returned when another element would receive
// a pointer action aimed at a node.
type HitTargetError struct {
	// Description is the preview of the intercepting element, followed by
	// the preview of the subtree it belongs to when it is a different one.
	Description string
}

// Error satisfies the error interface.
func (e *HitTargetError) Error() string {
	return e.Description + " intercepts pointer events"
}

// Unwrap returns ErrHitTargetIntercepted.
func (e *HitTargetError) Unwrap() error {
	return ErrHitTargetIntercepted
}
