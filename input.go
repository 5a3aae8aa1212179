package pagequery

import (
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/chromedp/pagequery/kb"
)

// fillableInputTypes are the input types Fill assigns the value of.
var fillableInputTypes = map[string]bool{
	"text": true, "search": true, "url": true, "tel": true, "password": true,
	"email": true, "number": true, "date": true, "time": true,
	"datetime-local": true, "month": true, "week": true, "color": true,
	"range": true,
}

// dateInputTypes only keep a value that is valid for their type.
var dateInputTypes = map[string]bool{
	"date": true, "time": true, "datetime": true, "datetime-local": true,
	"month": true, "week": true,
}

// Fill sets the value of the input or textarea targeted by node, following
// labels. Inputs are assigned the trimmed value directly and OutcomeDone is
// returned. Textareas get their text selected and OutcomeNeedsInput is
// returned: the caller is expected to Type the value.
func (e *Engine) Fill(node *html.Node, value string) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	e.update(func() {
		out, err = e.doc.fill(node, value)
	})
	return out, err
}

func (d *Document) fill(node *html.Node, value string) (Outcome, error) {
	element := d.retarget(node, followLabel)
	if element == nil || !d.isConnected(element) {
		return "", ErrNotConnected
	}
	switch {
	case isTag(element, atom.Input):
		typ := inputType(element)
		if !fillableInputTypes[typ] {
			return "", ErrNotFillableElement
		}
		value = strings.TrimSpace(value)
		if typ == "number" && !isNumeric(value) {
			return "", ErrNotFillableNumberInput
		}
		d.focus(element, false)
		d.setValue(element, value)
		if dateInputTypes[typ] && d.value(element) != value {
			return "", ErrNotValidDate
		}
		d.fire(element, "input", true)
		d.fire(element, "change", true)
		return OutcomeDone, nil

	case isTag(element, atom.Textarea):
		d.selectText(element)
		return OutcomeNeedsInput, nil
	}
	return "", ErrNotFillableElement
}

// SelectText selects the text of the element targeted by node, following
// labels, and focuses it.
func (e *Engine) SelectText(node *html.Node) (Outcome, error) {
	var err error
	e.update(func() {
		element := e.doc.retarget(node, followLabel)
		if element == nil || !e.doc.isConnected(element) {
			err = ErrNotConnected
			return
		}
		e.doc.selectText(element)
	})
	if err != nil {
		return "", err
	}
	return OutcomeDone, nil
}

func (d *Document) selectText(element *html.Node) {
	if isTag(element, atom.Input, atom.Textarea) {
		p := d.prop(element)
		p.selStart, p.selEnd = 0, utf8.RuneCountInString(d.value(element))
		d.focus(element, false)
		return
	}
	d.selection = Selection{Node: element, End: childCount(element)}
	d.focus(element, false)
}

// FocusNode focuses the element targeted by node, following labels. With
// resetSelection, an input that was not focused before gets its caret moved
// to the start.
func (e *Engine) FocusNode(node *html.Node, resetSelection bool) (Outcome, error) {
	var err error
	e.update(func() {
		element := e.doc.retarget(node, followLabel)
		if element == nil || !e.doc.isConnected(element) {
			err = ErrNotConnected
			return
		}
		e.doc.focus(element, resetSelection)
	})
	if err != nil {
		return "", err
	}
	return OutcomeDone, nil
}

// focus moves the focus to element, firing blur and focusout on the
// previously focused element and focus and focusin on element.
func (d *Document) focus(element *html.Node, resetSelection bool) {
	if d.active == element {
		return
	}
	if old := d.active; old != nil {
		d.active = nil
		d.fire(old, "blur", false)
		d.fire(old, "focusout", true)
	}
	d.active = element
	d.fire(element, "focus", false)
	d.fire(element, "focusin", true)
	if resetSelection && isTag(element, atom.Input) {
		p := d.prop(element)
		p.selStart, p.selEnd = 0, 0
	}
}

// KeyOption is a key action option.
type KeyOption = func(*input.DispatchKeyEventParams)

// KeyModifiers is a key action option to add additional modifiers on the key
// press.
func KeyModifiers(modifiers ...input.Modifier) KeyOption {
	return func(p *input.DispatchKeyEventParams) {
		for _, m := range modifiers {
			p.Modifiers |= m
		}
	}
}

// Type focuses the input, textarea or contenteditable element targeted by
// node and types text into it one key at a time, firing keydown, keypress,
// input and keyup events. It is the keystroke level step following an
// OutcomeNeedsInput from Fill.
func (e *Engine) Type(node *html.Node, text string, opts ...KeyOption) error {
	var err error
	e.update(func() {
		element := e.doc.retarget(node, followLabel)
		if element == nil || !e.doc.isConnected(element) {
			err = ErrNotConnected
			return
		}
		if !isTag(element, atom.Input, atom.Textarea) && !isContentEditable(element) {
			err = ErrNotFillableElement
			return
		}
		e.doc.focus(element, false)
		for _, r := range text {
			for _, p := range kb.Encode(r) {
				for _, o := range opts {
					o(p)
				}
				e.doc.key(element, p)
			}
		}
	})
	return err
}

// key dispatches one key event of a keystroke to element and performs its
// default action.
func (d *Document) key(element *html.Node, p *input.DispatchKeyEventParams) {
	init := EventInit{
		"key":      p.Key,
		"code":     p.Code,
		"keyCode":  p.WindowsVirtualKeyCode,
		"shiftKey": p.Modifiers&input.ModifierShift != 0,
		"ctrlKey":  p.Modifiers&input.ModifierCtrl != 0,
		"altKey":   p.Modifiers&input.ModifierAlt != 0,
		"metaKey":  p.Modifiers&input.ModifierMeta != 0,
	}
	switch p.Type {
	case input.KeyDown, input.KeyRawDown:
		if !d.dispatch(element, d.newEvent("keydown", init)) {
			return
		}
		switch p.Key {
		case "Backspace":
			d.editText(element, "", -1)
		case "Delete":
			d.editText(element, "", 1)
		}
	case input.KeyChar:
		init["charCode"] = int64(firstRune(p.Text))
		if !d.dispatch(element, d.newEvent("keypress", init)) {
			return
		}
		if p.Modifiers&(input.ModifierCtrl|input.ModifierMeta) != 0 {
			return
		}
		text := p.Text
		if text == "\r" {
			if !isTag(element, atom.Textarea) && !isContentEditable(element) {
				return
			}
			text = "\n"
		}
		d.editText(element, text, 0)
	case input.KeyUp:
		d.dispatch(element, d.newEvent("keyup", init))
	}
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// editText replaces the selection of element with text. With an empty text
// and a collapsed selection, it deletes one character backward (dir < 0) or
// forward (dir > 0) instead. An input event follows any change.
func (d *Document) editText(element *html.Node, text string, dir int) {
	if !isTag(element, atom.Input, atom.Textarea) {
		if text == "" {
			return
		}
		element.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		d.fire(element, "input", true)
		return
	}
	value := []rune(d.value(element))
	p := d.prop(element)
	start, end := clampInt(p.selStart, 0, len(value)), clampInt(p.selEnd, 0, len(value))
	if start > end {
		start, end = end, start
	}
	if text == "" && start == end {
		switch {
		case dir < 0 && start > 0:
			start--
		case dir > 0 && end < len(value):
			end++
		default:
			return
		}
	}
	nv := string(value[:start]) + text + string(value[end:])
	d.setValue(element, nv)
	caret := start + utf8.RuneCountInString(text)
	p.selStart, p.selEnd = caret, caret
	d.fire(element, "input", true)
}

func clampInt(v, min, max int) int {
	switch {
	case v < min:
		return min
	case v > max:
		return max
	}
	return v
}
