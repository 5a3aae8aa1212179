package pagequery

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ElementState is a state an element can be checked or waited for.
type ElementState string

// Element states.
const (
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateEnabled  ElementState = "enabled"
	StateDisabled ElementState = "disabled"
	StateStable   ElementState = "stable"
)

// String satisfies fmt.Stringer.
func (s ElementState) String() string {
	return string(s)
}

// ParseElementState parses an element state name.
func ParseElementState(s string) (ElementState, error) {
	switch st := ElementState(strings.ToLower(strings.TrimSpace(s))); st {
	case StateAttached, StateDetached, StateVisible, StateHidden,
		StateEnabled, StateDisabled, StateStable:
		return st, nil
	}
	return "", fmt.Errorf("unknown element state %q", s)
}

// retargetBehavior selects whether retargeting resolves labels to their
// control.
type retargetBehavior int

const (
	noFollowLabel retargetBehavior = iota
	followLabel
)

// retargetBehaviorFor returns the retargeting applied before checking state.
func retargetBehaviorFor(state ElementState) retargetBehavior {
	switch state {
	case StateStable, StateVisible, StateHidden:
		return noFollowLabel
	}
	return followLabel
}

// retarget resolves n to the element an interaction with it is aimed at:
// text nodes target their parent element, elements inside a button or a
// button-like role target it, and with followLabel a label targets its
// control.
func (d *Document) retarget(n *html.Node, behavior retargetBehavior) *html.Node {
	element := n
	if element == nil {
		return nil
	}
	if element.Type != html.ElementNode {
		element = parentElement(element)
		if element == nil {
			return nil
		}
	}
	if !isTag(element, atom.Input, atom.Textarea, atom.Select) {
		if b := closest(element, isButtonLike); b != nil {
			element = b
		}
	}
	if behavior == followLabel {
		if !isTag(element, atom.Input, atom.Textarea, atom.Select, atom.Button) &&
			!isButtonRole(element) && !isContentEditable(element) {
			if label := closest(element, func(n *html.Node) bool { return isTag(n, atom.Label) }); label != nil {
				if control := d.labelControl(label); control != nil {
					element = control
				}
			}
		}
	}
	return element
}

func isButtonRole(n *html.Node) bool {
	switch getAttr(n, "role") {
	case "button", "checkbox", "radio":
		return true
	}
	return false
}

func isButtonLike(n *html.Node) bool {
	return isTag(n, atom.Button) || isButtonRole(n)
}

func isContentEditable(n *html.Node) bool {
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if v, ok := attr(n, "contenteditable"); ok {
			return !strings.EqualFold(v, "false")
		}
	}
	return false
}

// labelable elements can be associated with a label.
var labelable = []atom.Atom{
	atom.Button, atom.Input, atom.Meter, atom.Output,
	atom.Progress, atom.Select, atom.Textarea,
}

// labelControl returns the control a label is associated with: the element
// named by its for attribute in the same tree, or its first labelable
// descendant.
func (d *Document) labelControl(label *html.Node) *html.Node {
	if id, ok := attr(label, "for"); ok {
		c := getElementByID(treeRoot(label), id)
		if isTag(c, labelable...) && !(isTag(c, atom.Input) && inputType(c) == "hidden") {
			return c
		}
		return nil
	}
	var control *html.Node
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isTag(c, labelable...) && !(isTag(c, atom.Input) && inputType(c) == "hidden") {
				control = c
				return true
			}
			if visit(c) {
				return true
			}
		}
		return false
	}
	visit(label)
	return control
}

// CheckElementState checks whether node is in state. It returns
// ErrNotConnected when node is detached and the state is not attached or
// detached, and ErrUnexpectedState for stable, which needs to be waited for.
func (e *Engine) CheckElementState(node *html.Node, state ElementState) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.checkElementState(node, state)
}

func (d *Document) checkElementState(node *html.Node, state ElementState) (bool, error) {
	switch state {
	case StateAttached:
		return node != nil && d.isConnected(node), nil
	case StateDetached:
		return node == nil || !d.isConnected(node), nil
	}
	element := d.retarget(node, retargetBehaviorFor(state))
	if element == nil || !d.isConnected(element) {
		return false, ErrNotConnected
	}
	switch state {
	case StateVisible:
		return d.isVisible(element), nil
	case StateHidden:
		return !d.isVisible(element), nil
	case StateEnabled:
		return !isDisabled(element), nil
	case StateDisabled:
		return isDisabled(element), nil
	}
	return false, ErrUnexpectedState
}

// isDisabled reports whether a native form control is disabled, by its
// own attribute or by a disabled fieldset or optgroup/select.
func isDisabled(n *html.Node) bool {
	switch {
	case isTag(n, atom.Option):
		return isDisabledOption(n)
	case isTag(n, atom.Optgroup):
		return hasAttr(n, "disabled")
	case !isTag(n, atom.Button, atom.Input, atom.Select, atom.Textarea, atom.Fieldset):
		return false
	}
	if hasAttr(n, "disabled") {
		return true
	}
	return inDisabledFieldset(n)
}

func isDisabledOption(n *html.Node) bool {
	if hasAttr(n, "disabled") {
		return true
	}
	for p := parentElement(n); p != nil; p = parentElement(p) {
		switch {
		case isTag(p, atom.Optgroup) && hasAttr(p, "disabled"):
			return true
		case isTag(p, atom.Select):
			return isDisabled(p)
		}
	}
	return false
}

// inDisabledFieldset reports whether n descends from a disabled fieldset,
// outside of the fieldset's first legend.
func inDisabledFieldset(n *html.Node) bool {
	child := n
	for p := parentElement(n); p != nil; child, p = p, parentElement(p) {
		if !isTag(p, atom.Fieldset) || !hasAttr(p, "disabled") {
			continue
		}
		if isTag(child, atom.Legend) && child == firstLegend(p) {
			continue
		}
		return true
	}
	return false
}

func firstLegend(fieldset *html.Node) *html.Node {
	for c := fieldset.FirstChild; c != nil; c = c.NextSibling {
		if isTag(c, atom.Legend) {
			return c
		}
	}
	return nil
}
