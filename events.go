package pagequery

import (
	"golang.org/x/net/html"
)

// EventCategory is the interface a synthesized event implements.
type EventCategory string

// Event categories.
const (
	CategoryMouse    EventCategory = "mouse"
	CategoryKeyboard EventCategory = "keyboard"
	CategoryTouch    EventCategory = "touch"
	CategoryPointer  EventCategory = "pointer"
	CategoryFocus    EventCategory = "focus"
	CategoryDrag     EventCategory = "drag"
	CategoryGeneric  EventCategory = "generic"
)

// eventCategories maps event types to their category. It is never written
// after package initialization.
var eventCategories = map[string]EventCategory{
	"auxclick":   CategoryMouse,
	"click":      CategoryMouse,
	"dblclick":   CategoryMouse,
	"mousedown":  CategoryMouse,
	"mouseenter": CategoryMouse,
	"mouseleave": CategoryMouse,
	"mousemove":  CategoryMouse,
	"mouseout":   CategoryMouse,
	"mouseover":  CategoryMouse,
	"mouseup":    CategoryMouse,
	"mousewheel": CategoryMouse,

	"keydown":   CategoryKeyboard,
	"keyup":     CategoryKeyboard,
	"keypress":  CategoryKeyboard,
	"textInput": CategoryKeyboard,

	"touchstart":  CategoryTouch,
	"touchmove":   CategoryTouch,
	"touchend":    CategoryTouch,
	"touchcancel": CategoryTouch,

	"pointerover":        CategoryPointer,
	"pointerout":         CategoryPointer,
	"pointerenter":       CategoryPointer,
	"pointerleave":       CategoryPointer,
	"pointerdown":        CategoryPointer,
	"pointerup":          CategoryPointer,
	"pointermove":        CategoryPointer,
	"pointercancel":      CategoryPointer,
	"gotpointercapture":  CategoryPointer,
	"lostpointercapture": CategoryPointer,

	"focus":    CategoryFocus,
	"blur":     CategoryFocus,
	"focusin":  CategoryFocus,
	"focusout": CategoryFocus,

	"drag":      CategoryDrag,
	"dragstart": CategoryDrag,
	"dragend":   CategoryDrag,
	"dragover":  CategoryDrag,
	"dragenter": CategoryDrag,
	"dragleave": CategoryDrag,
	"dragexit":  CategoryDrag,
	"drop":      CategoryDrag,
}

// EventCategoryOf returns the category of an event type.
func EventCategoryOf(typ string) EventCategory {
	if c, ok := eventCategories[typ]; ok {
		return c
	}
	return CategoryGeneric
}

// EventInit holds the init dictionary of a synthesized event. The bubbles,
// cancelable and composed keys control propagation, the rest is passed
// through to listeners.
type EventInit map[string]interface{}

func (init EventInit) flag(key string, def bool) bool {
	if v, ok := init[key].(bool); ok {
		return v
	}
	return def
}

// Event is an event delivered to listeners registered with
// Document.AddEventListener.
type Event struct {
	Type       string
	Category   EventCategory
	Bubbles    bool
	Cancelable bool
	Composed   bool
	Init       EventInit

	// Target is the node the event was dispatched to, retargeted to the
	// shadow host when seen from outside a shadow tree. CurrentTarget is the
	// node whose listeners are running.
	Target        *html.Node
	CurrentTarget *html.Node

	defaultPrevented bool
	stopped          bool
	immediateStopped bool
}

// PreventDefault cancels the event, when it is cancelable.
func (ev *Event) PreventDefault() {
	if ev.Cancelable {
		ev.defaultPrevented = true
	}
}

// DefaultPrevented reports whether PreventDefault canceled the event.
func (ev *Event) DefaultPrevented() bool {
	return ev.defaultPrevented
}

// StopPropagation stops the event once the listeners of the current target
// have run.
func (ev *Event) StopPropagation() {
	ev.stopped = true
}

// StopImmediatePropagation stops the event without running the remaining
// listeners of the current target.
func (ev *Event) StopImmediatePropagation() {
	ev.stopped = true
	ev.immediateStopped = true
}

// newEvent synthesizes an event of type typ. Bubbles, cancelable and
// composed default to true. Touch events are generic events on devices
// without touch support.
func (d *Document) newEvent(typ string, init EventInit) *Event {
	category := EventCategoryOf(typ)
	if category == CategoryTouch && !d.device.Touch {
		category = CategoryGeneric
	}
	return &Event{
		Type:       typ,
		Category:   category,
		Bubbles:    init.flag("bubbles", true),
		Cancelable: init.flag("cancelable", true),
		Composed:   init.flag("composed", true),
		Init:       init,
	}
}

// dispatch delivers ev to target and, when it bubbles, to its ancestors.
// Composed events cross from shadow roots to their hosts. It reports
// whether the default action may proceed.
func (d *Document) dispatch(target *html.Node, ev *Event) bool {
	ev.Target = target
	for n := target; n != nil && !ev.stopped; {
		ev.CurrentTarget = n
		if list, ok := d.listeners[n]; ok {
			if list = runListeners(list, ev); len(list) == 0 {
				delete(d.listeners, n)
			} else {
				d.listeners[n] = list
			}
		}
		if !ev.Bubbles {
			break
		}
		switch sr := d.hosts[n]; {
		case n.Parent != nil:
			n = n.Parent
		case sr != nil && ev.Composed:
			n = sr.host
			ev.Target = sr.host
		default:
			n = nil
		}
	}
	ev.CurrentTarget = nil
	return !ev.defaultPrevented
}

// fire dispatches a simple event, like the ones form controls fire on user
// input.
func (d *Document) fire(target *html.Node, typ string, bubbles bool) bool {
	return d.dispatch(target, &Event{
		Type:     typ,
		Category: EventCategoryOf(typ),
		Bubbles:  bubbles,
		Composed: typ == "input" || EventCategoryOf(typ) == CategoryFocus,
	})
}

// DispatchEvent synthesizes an event of type typ with init and dispatches
// it to node.
func (e *Engine) DispatchEvent(node *html.Node, typ string, init EventInit) error {
	if node == nil {
		return ErrNotConnected
	}
	e.update(func() {
		e.doc.dispatch(node, e.doc.newEvent(typ, init))
	})
	return nil
}
