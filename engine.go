package pagequery

import (
	"golang.org/x/net/html"
)

// Engine resolves selectors, evaluates element states, waits for
// conditions and performs input actions against one Document.
//
// An Engine holds no state between calls and is safe for concurrent use.
type Engine struct {
	doc *Document

	// logging funcs
	logf   LogFunc
	debugf LogFunc
	errf   LogFunc
}

// Option is an engine option.
type Option = func(*Engine)

// New creates an engine for doc.
func New(doc *Document, opts ...Option) *Engine {
	e := &Engine{
		doc:    doc,
		logf:   Logger.Printf,
		debugf: nopLogf,
	}
	for _, o := range opts {
		o(e)
	}
	// ensure errf is set
	if e.errf == nil {
		e.errf = func(s string, v ...interface{}) { e.logf("ERROR: "+s, v...) }
	}
	return e
}

// WithLogf is an engine option to specify a func to receive general logging.
func WithLogf(f LogFunc) Option {
	return func(e *Engine) {
		e.logf = f
	}
}

// WithDebugf is an engine option to specify a func to receive debug logging
// (eg, poll ticks and strict mode diagnostics).
func WithDebugf(f LogFunc) Option {
	return func(e *Engine) {
		e.debugf = f
	}
}

// WithErrorf is an engine option to specify a func to receive error logging.
func WithErrorf(f LogFunc) Option {
	return func(e *Engine) {
		e.errf = f
	}
}

// update runs fn with the document locked, then notifies the document's
// change observers of whatever listeners did in the meantime.
func (e *Engine) update(fn func()) {
	e.doc.mu.Lock()
	fn()
	e.doc.mu.Unlock()
	e.doc.notify()
}

// Document returns the document of the engine.
func (e *Engine) Document() *Document {
	return e.doc
}

// DocumentElement returns the root element of the document n belongs to,
// or nil when n is detached.
func (e *Engine) DocumentElement(n *html.Node) *html.Node {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if n == nil || !e.doc.isConnected(n) {
		return nil
	}
	return e.documentElement()
}
