package pagequery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/net/html"
)

// Session serves engine requests for one client. Nodes are exchanged as
// cdp.NodeID handles assigned by the session; handle 0 is the document.
type Session struct {
	e *Engine

	mu    sync.Mutex
	ids   map[*html.Node]cdp.NodeID
	nodes map[cdp.NodeID]*html.Node
	next  cdp.NodeID

	// logging funcs
	logf   LogFunc
	debugf LogFunc
	errf   LogFunc
}

// SessionOption is a session option.
type SessionOption = func(*Session)

// NewSession creates a session for e.
func NewSession(e *Engine, opts ...SessionOption) *Session {
	s := &Session{
		e:      e,
		ids:    make(map[*html.Node]cdp.NodeID),
		nodes:  make(map[cdp.NodeID]*html.Node),
		logf:   Logger.Printf,
		debugf: nopLogf,
	}
	for _, o := range opts {
		o(s)
	}
	if s.errf == nil {
		s.errf = func(str string, v ...interface{}) { s.logf("ERROR: "+str, v...) }
	}
	return s
}

// WithSessionLogf is a session option to specify a func to receive general
// logging.
func WithSessionLogf(f LogFunc) SessionOption {
	return func(s *Session) {
		s.logf = f
	}
}

// WithSessionDebugf is a session option to specify a func to receive
// requests and responses as they are handled.
func WithSessionDebugf(f LogFunc) SessionOption {
	return func(s *Session) {
		s.debugf = f
	}
}

// WithSessionErrorf is a session option to specify a func to receive error
// logging.
func WithSessionErrorf(f LogFunc) SessionOption {
	return func(s *Session) {
		s.errf = f
	}
}

// NodeID returns the handle of n, assigning one on first use.
func (s *Session) NodeID(n *html.Node) cdp.NodeID {
	if n == nil {
		return 0
	}
	if n == s.e.doc.root {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[n]; ok {
		return id
	}
	s.next++
	s.ids[n], s.nodes[s.next] = s.next, n
	return s.next
}

// Node returns the node of handle id.
func (s *Session) Node(id cdp.NodeID) (*html.Node, error) {
	if id == 0 {
		return s.e.doc.root, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrInvalidTarget, id)
	}
	return n, nil
}

// target returns the node of an optional handle, nil when absent.
func (s *Session) target(id cdp.NodeID) (*html.Node, error) {
	if id == 0 {
		return nil, nil
	}
	return s.Node(id)
}

// NodeIDs returns the assigned handles in ascending order.
func (s *Session) NodeIDs() []cdp.NodeID {
	s.mu.Lock()
	ids := maps.Keys(s.nodes)
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// ReleaseDetached drops the handles of nodes that are no longer connected
// to the document, and returns how many were dropped.
func (s *Session) ReleaseDetached() int {
	d := s.e.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.nodes)
	maps.DeleteFunc(s.nodes, func(_ cdp.NodeID, n *html.Node) bool {
		return !d.isConnected(n)
	})
	maps.DeleteFunc(s.ids, func(n *html.Node, _ cdp.NodeID) bool {
		return !d.isConnected(n)
	})
	return before - len(s.nodes)
}

// Serve reads requests from t until it fails or ctx is done, handling them
// concurrently. Responses are written in completion order. The transport is
// closed and pending requests are canceled when Serve returns.
func (s *Session) Serve(ctx context.Context, t Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := t.Close(); err != nil {
			s.errf("could not close transport: %v", err)
		}
		close(closed)
	}()

	var (
		wg  sync.WaitGroup
		wmu sync.Mutex
	)
	defer func() {
		cancel()
		wg.Wait()
		<-closed
	}()

	for {
		req, err := t.Read()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, io.EOF):
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.Handle(ctx, req)
			wmu.Lock()
			defer wmu.Unlock()
			if err := t.Write(res); err != nil {
				s.errf("could not write response %d: %v", res.ID, err)
			}
		}()
	}
}

// Handle runs one request and returns its response.
func (s *Session) Handle(ctx context.Context, req *Request) *Response {
	start := time.Now()
	s.debugf("-> %d %s", req.ID, req.Method)
	v, err := s.call(ctx, req.Method, &req.Params)
	res := &Response{ID: req.ID}
	switch r := classify(err); {
	case r.thrown != nil:
		res.Error = r.thrown
		s.debugf("<- %d %s: %v (%v)", req.ID, req.Method, r.thrown, time.Since(start))
		return res
	case r.result != nil:
		v = r.result
	}
	buf, err := marshalResult(v)
	if err != nil {
		s.errf("could not marshal result of %s: %v", req.Method, err)
		res.Error = &ResponseError{Kind: "error", Message: err.Error()}
		return res
	}
	res.Result = buf
	s.debugf("<- %d %s: %s (%v)", req.ID, req.Method, buf, time.Since(start))
	return res
}

// call dispatches a method to the engine. Nodes in the returned value are
// replaced by their handles by marshalResult.
func (s *Session) call(ctx context.Context, method MethodType, p *Params) (interface{}, error) {
	e := s.e
	switch method {
	case MethodQuerySelector:
		sel, root, err := s.selector(p)
		if err != nil {
			return nil, err
		}
		n, err := e.QuerySelector(sel, root, p.Strict)
		return s.nodeResult(n), err

	case MethodQuerySelectorAll:
		sel, root, err := s.selector(p)
		if err != nil {
			return nil, err
		}
		nodes, err := e.QuerySelectorAll(sel, root)
		if err != nil {
			return nil, err
		}
		ids := make([]cdp.NodeID, 0, len(nodes))
		for _, n := range nodes {
			ids = append(ids, s.NodeID(n))
		}
		return ids, nil

	case MethodWaitForSelector:
		sel, root, err := s.selector(p)
		if err != nil {
			return nil, err
		}
		state, err := ParseElementState(p.State)
		if err != nil {
			return nil, err
		}
		n, err := e.WaitForSelector(ctx, sel, root, p.Strict, state, pollOptions(p)...)
		if err == nil && (state == StateDetached || state == StateHidden) {
			return true, nil
		}
		return s.nodeResult(n), err

	case MethodWaitForElementStates:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		states := make([]ElementState, 0, len(p.States))
		for _, str := range p.States {
			st, err := ParseElementState(str)
			if err != nil {
				return nil, err
			}
			states = append(states, st)
		}
		if err := e.WaitForElementStates(ctx, node, states, pollOptions(p)...); err != nil {
			return nil, err
		}
		return true, nil

	case MethodCheckElementState:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		state, err := ParseElementState(p.State)
		if err != nil {
			return nil, err
		}
		return e.CheckElementState(node, state)

	case MethodFill:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		return e.Fill(node, p.Value)

	case MethodSelectOptions:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		options := make([]SelectOption, 0, len(p.Options))
		for _, o := range p.Options {
			opt := SelectOption{Value: o.Value, Label: o.Label}
			if o.Index != nil {
				i := int(*o.Index)
				opt.Index = &i
			}
			if o.Node != 0 {
				if opt.Node, err = s.Node(o.Node); err != nil {
					return nil, err
				}
			}
			options = append(options, opt)
		}
		values, err := e.SelectOptions(node, options)
		if values == nil && err == nil {
			values = []string{}
		}
		return values, err

	case MethodSetInputFiles:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		return e.SetInputFiles(node, p.Files)

	case MethodSelectText:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		return e.SelectText(node)

	case MethodFocusNode:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		return e.FocusNode(node, p.ResetSelection)

	case MethodDispatchEvent:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		if err := e.DispatchEvent(node, p.Type, EventInit(p.EventInit)); err != nil {
			return nil, err
		}
		return OutcomeDone, nil

	case MethodScrollIntoView:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		opts := ScrollIntoViewOptions{
			Block:  ScrollAlignment(p.Block),
			Inline: ScrollAlignment(p.Inline),
		}
		if err := e.ScrollIntoView(node, opts); err != nil {
			return nil, err
		}
		return OutcomeDone, nil

	case MethodPreviewNode:
		node, err := s.Node(p.Node)
		if err != nil {
			return nil, err
		}
		return e.PreviewNode(node), nil

	case MethodTypeText:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		if err := e.Type(node, p.Text); err != nil {
			return nil, err
		}
		return OutcomeDone, nil

	case MethodDescribeNode:
		node, err := s.Node(p.Node)
		if err != nil {
			return nil, err
		}
		depth := p.Depth
		if depth == 0 {
			depth = 1
		}
		e.doc.mu.Lock()
		defer e.doc.mu.Unlock()
		return s.describe(node, depth), nil

	case MethodBoundingBox:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		if r, ok := e.BoundingBox(node); ok {
			return &r, nil
		}
		return nil, nil

	case MethodCheckHitTargetAt:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		if err := e.CheckHitTargetAt(node, p.X, p.Y); err != nil {
			return nil, err
		}
		return OutcomeDone, nil

	case MethodDeepElementFromPoint:
		return s.nodeResult(e.DeepElementFromPoint(p.X, p.Y)), nil

	case MethodElementBorderWidth:
		node, err := s.target(p.Node)
		if err != nil {
			return nil, err
		}
		return e.ElementBorderWidth(node)

	case MethodDocumentElement:
		node, err := s.Node(p.Node)
		if err != nil {
			return nil, err
		}
		return s.nodeResult(e.DocumentElement(node)), nil

	case MethodReleaseNodes:
		return s.ReleaseDetached(), nil
	}
	return nil, fmt.Errorf("unknown method %q", method)
}

func (s *Session) selector(p *Params) (*Selector, *html.Node, error) {
	sel, err := ParseSelector(p.Selector)
	if err != nil {
		return nil, nil, err
	}
	root, err := s.target(p.Root)
	if err != nil {
		return nil, nil, err
	}
	return sel, root, nil
}

// nodeHandle is a node result, marshaled as its handle or null.
type nodeHandle struct {
	id   cdp.NodeID
	none bool
}

func (s *Session) nodeResult(n *html.Node) nodeHandle {
	if n == nil {
		return nodeHandle{none: true}
	}
	return nodeHandle{id: s.NodeID(n)}
}

// describe converts n to a cdp.Node, descending depth levels into its
// children and shadow roots. A negative depth describes the whole subtree.
// The document must be locked.
func (s *Session) describe(n *html.Node, depth int64) *cdp.Node {
	d := s.e.doc
	cn := &cdp.Node{
		NodeID:         s.NodeID(n),
		BackendNodeID:  cdp.BackendNodeID(s.NodeID(n)),
		NodeName:       nodeName(n),
		ChildNodeCount: int64(childCount(n)),
	}
	if p := n.Parent; p != nil {
		cn.ParentID = s.NodeID(p)
	}
	switch n.Type {
	case html.ElementNode:
		cn.NodeType = cdp.NodeTypeElement
		cn.NodeName = strings.ToUpper(n.Data)
		cn.LocalName = n.Data
		cn.Attributes = make([]string, 0, 2*len(n.Attr))
		for _, a := range n.Attr {
			cn.Attributes = append(cn.Attributes, a.Key, a.Val)
		}
	case html.TextNode:
		cn.NodeType = cdp.NodeTypeText
		cn.NodeValue = n.Data
	case html.CommentNode:
		cn.NodeType = cdp.NodeTypeComment
		cn.NodeValue = n.Data
	case html.DoctypeNode:
		cn.NodeType = cdp.NodeTypeDocumentType
	case html.DocumentNode:
		cn.NodeType = cdp.NodeTypeDocument
		if sr := d.hosts[n]; sr != nil {
			cn.NodeType = cdp.NodeTypeDocumentFragment
			cn.NodeName = "#document-fragment"
			cn.ShadowRootType = sr.mode
			cn.ParentID = s.NodeID(sr.host)
		}
	}
	if depth == 0 {
		return cn
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cn.Children = append(cn.Children, s.describe(c, depth-1))
	}
	if sr := d.shadows[n]; sr != nil {
		cn.ShadowRoots = []*cdp.Node{s.describe(sr.root, depth-1)}
	}
	return cn
}

func pollOptions(p *Params) []PollOption {
	var opts []PollOption
	switch {
	case p.Interval > 0:
		opts = append(opts, WithPollingInterval(time.Duration(p.Interval)*time.Millisecond))
	case p.Polling == "mutation":
		opts = append(opts, WithPollingMutation())
	case p.Polling == "raf":
		opts = append(opts, WithPollingRAF())
	}
	if p.Timeout != nil {
		opts = append(opts, WithPollingTimeout(time.Duration(*p.Timeout)*time.Millisecond))
	}
	return opts
}

// classification is how an error is reported on the wire.
type classification struct {
	result interface{}
	thrown *ResponseError
}

// classify splits errors into error tags and hit target descriptions,
// which are results, and thrown errors.
func classify(err error) classification {
	if err == nil {
		return classification{}
	}
	var (
		strict  *StrictModeError
		timeout *TimeoutError
		hit     *HitTargetError
		tag     ErrorTag
	)
	switch {
	case errors.As(err, &strict):
		return classification{thrown: &ResponseError{Kind: "strictmodeviolation", Message: err.Error()}}
	case errors.As(err, &timeout):
		return classification{thrown: &ResponseError{Kind: "timeout", Message: err.Error()}}
	case errors.As(err, &hit):
		return classification{result: hitTargetResult(hit.Description)}
	case errors.As(err, &tag):
		return classification{result: tag}
	}
	kind := "error"
	switch {
	case errors.Is(err, ErrInvalidSelector):
		kind = "invalidselector"
	case errors.Is(err, ErrInvalidTarget):
		kind = "invalidtarget"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "canceled"
	}
	return classification{thrown: &ResponseError{Kind: kind, Message: err.Error()}}
}

type hitTargetResult string

// marshalResult encodes a method result.
func marshalResult(v interface{}) (easyjson.RawMessage, error) {
	w := jwriter.Writer{}
	switch x := v.(type) {
	case nil:
		w.RawString("null")
	case nodeHandle:
		if x.none {
			w.RawString("null")
		} else {
			w.Int64(int64(x.id))
		}
	case []cdp.NodeID:
		w.RawByte('[')
		for i, id := range x {
			if i > 0 {
				w.RawByte(',')
			}
			w.Int64(int64(id))
		}
		w.RawByte(']')
	case []string:
		w.RawByte('[')
		for i, str := range x {
			if i > 0 {
				w.RawByte(',')
			}
			w.String(str)
		}
		w.RawByte(']')
	case bool:
		w.Bool(x)
	case int:
		w.Int(x)
	case string:
		w.String(x)
	case Outcome:
		w.String(string(x))
	case ErrorTag:
		w.String(string(x))
	case hitTargetResult:
		w.RawString(`{"hitTargetDescription":`)
		w.String(string(x))
		w.RawByte('}')
	case BorderWidth:
		w.RawString(`{"left":`)
		w.Int64(x.Left)
		w.RawString(`,"top":`)
		w.Int64(x.Top)
		w.RawByte('}')
	case easyjson.Marshaler:
		x.MarshalEasyJSON(&w)
	default:
		return nil, fmt.Errorf("unsupported result type %T", v)
	}
	buf, err := w.BuildBytes()
	return easyjson.RawMessage(buf), err
}
