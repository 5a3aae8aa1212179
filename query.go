package pagequery

import (
	"golang.org/x/net/html"
)

// matchContext is an element matched by a selector prefix together with
// the capture element inherited along the chain.
type matchContext struct {
	element *html.Node
	capture *html.Node
}

// queryCache memoizes engine lookups for one resolution. Scope nodes are
// assigned small integer handles on first visit.
type queryCache struct {
	handles map[*html.Node]int
	results map[queryKey][]*html.Node
}

type queryKey struct {
	handle int
	part   int
}

func newQueryCache() *queryCache {
	return &queryCache{
		handles: make(map[*html.Node]int),
		results: make(map[queryKey][]*html.Node),
	}
}

func (c *queryCache) handle(n *html.Node) int {
	h, ok := c.handles[n]
	if !ok {
		h = len(c.handles)
		c.handles[n] = h
	}
	return h
}

// QuerySelectorAll returns the distinct elements matched by sel below
// root, in encounter order. A nil root is the document.
func (e *Engine) QuerySelectorAll(sel *Selector, root *html.Node) ([]*html.Node, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.querySelectorAll(sel, root)
}

// QuerySelector returns the first element matched by sel below root, or
// nil. In strict mode, more than one match is a *StrictModeError.
func (e *Engine) QuerySelector(sel *Selector, root *html.Node, strict bool) (*html.Node, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	nodes, err := e.querySelectorAll(sel, root)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	if strict && len(nodes) > 1 {
		return nil, e.strictModeError(sel, nodes)
	}
	return nodes[0], nil
}

func (e *Engine) strictModeError(sel *Selector, nodes []*html.Node) *StrictModeError {
	err := &StrictModeError{Selector: sel.String()}
	for _, n := range nodes {
		err.Previews = append(err.Previews, previewNode(n))
	}
	return err
}

// queryable reports whether selectors can be resolved below n.
func queryable(n *html.Node) bool {
	return n != nil && (n.Type == html.DocumentNode || n.Type == html.ElementNode)
}

func (e *Engine) querySelectorAll(sel *Selector, root *html.Node) ([]*html.Node, error) {
	if root == nil {
		root = e.doc.root
	}
	if sel.Capture != -1 && sel.hasNth() {
		return nil, ErrNthNoCapture
	}
	if !queryable(root) {
		return nil, ErrNotQueryableNode
	}

	cache := newQueryCache()
	roots := []matchContext{{element: root}}
	for i := range sel.Parts {
		var err error
		if roots, err = e.queryPart(roots, sel, i, cache); err != nil {
			return nil, err
		}
		if len(roots) == 0 {
			return nil, nil
		}
	}

	seen := make(map[*html.Node]bool, len(roots))
	var nodes []*html.Node
	for _, r := range roots {
		n := r.capture
		if n == nil {
			n = r.element
		}
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// queryPart advances roots by the part at index.
func (e *Engine) queryPart(roots []matchContext, sel *Selector, index int, cache *queryCache) ([]matchContext, error) {
	part := sel.Parts[index]
	switch part.Engine {
	case EngineVisible:
		var res []matchContext
		for _, r := range roots {
			if e.doc.isVisible(r.element) == part.visible {
				if sel.captures(index - 1) {
					r.capture = r.element
				}
				res = append(res, r)
			}
		}
		return res, nil

	case EngineNth:
		var distinct []matchContext
		seen := make(map[*html.Node]bool)
		for _, r := range roots {
			if !seen[r.element] {
				seen[r.element] = true
				distinct = append(distinct, r)
			}
		}
		n := part.nth
		if n == -1 {
			n = len(distinct) - 1
		}
		if n < 0 || n >= len(distinct) {
			return nil, nil
		}
		return distinct[n : n+1], nil
	}

	query := queryEngines[part.Engine]
	seen := make(map[matchContext]bool)
	var res []matchContext
	for _, r := range roots {
		capture := r.capture
		if sel.captures(index - 1) {
			capture = r.element
		}
		for _, scope := range e.doc.scopes(r.element) {
			key := queryKey{cache.handle(scope), index}
			matches, ok := cache.results[key]
			if !ok {
				var err error
				if matches, err = query(scope, part.Body); err != nil {
					return nil, err
				}
				cache.results[key] = matches
			}
			for _, m := range matches {
				mc := matchContext{element: m, capture: capture}
				if !seen[mc] {
					seen[mc] = true
					res = append(res, mc)
				}
			}
		}
	}
	return res, nil
}
