package pagequery

import (
	"context"
)

// cancelableListener is an event listener that is dropped once its context
// is done.
type cancelableListener struct {
	ctx context.Context
	typ string
	fn  func(*Event)
}

// runListeners calls the listeners of list registered for the type of ev
// and returns list without the listeners whose context is done.
func runListeners(list []cancelableListener, ev *Event) []cancelableListener {
	for i := 0; i < len(list); {
		listener := list[i]
		select {
		case <-listener.ctx.Done():
			list = append(list[:i], list[i+1:]...)
			continue
		default:
			if listener.typ == ev.Type && !ev.immediateStopped {
				listener.fn(ev)
			}
			i++
		}
	}
	return list
}
