// Package client provides a websocket client for pagequery servers.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"

	"github.com/chromedp/pagequery"
)

// DefaultEndpoint is the default endpoint to connect to.
const DefaultEndpoint = "ws://localhost:9333/"

// Error is a client error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

const (
	// ErrClosed is the error returned by calls on a closed client.
	ErrClosed Error = "client closed"
)

// Client is a pagequery client. It is safe for concurrent use; calls are
// multiplexed over one connection.
type Client struct {
	conn *pagequery.Conn

	next int64

	mu      sync.Mutex
	pending map[int64]chan *pagequery.Response
	err     error

	done chan struct{}

	url      string
	connOpts []pagequery.ConnOption
}

// Option is a client option.
type Option func(*Client)

// URL is a client option to specify the websocket URL of the server.
func URL(urlstr string) Option {
	return func(c *Client) {
		c.url = urlstr
	}
}

// ConnOptions is a client option to specify options of the underlying
// connection.
func ConnOptions(opts ...pagequery.ConnOption) Option {
	return func(c *Client) {
		c.connOpts = append(c.connOpts, opts...)
	}
}

// Dial connects to a pagequery server.
func Dial(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		url:     DefaultEndpoint,
		pending: make(map[int64]chan *pagequery.Response),
		done:    make(chan struct{}),
	}

	// apply opts
	for _, o := range opts {
		o(c)
	}

	conn, err := pagequery.DialContext(ctx, c.url, c.connOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.run()
	return c, nil
}

// run routes responses to their pending calls until the connection fails.
func (c *Client) run() {
	defer close(c.done)
	for {
		res, err := c.conn.ReadResponse()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			c.mu.Lock()
			if c.err == nil {
				c.err = err
			}
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

// Close closes the connection and waits for pending calls to be released.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.err == nil {
		c.err = ErrClosed
	}
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Call sends a request and waits for its response. Thrown errors are
// returned as *pagequery.ResponseError.
func (c *Client) Call(ctx context.Context, method pagequery.MethodType, params pagequery.Params) (easyjson.RawMessage, error) {
	id := atomic.AddInt64(&c.next, 1)
	ch := make(chan *pagequery.Response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.conn.WriteRequest(&pagequery.Request{ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return nil, c.err
		}
		if res.Error != nil {
			return nil, res.Error
		}
		return res.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// isNull reports whether buf is a null or missing result.
func isNull(buf easyjson.RawMessage) bool {
	return len(buf) == 0 || string(buf) == "null"
}

// tagOr decodes a result that is either an error tag or a value decoded by
// decode.
func tagOr(buf easyjson.RawMessage, decode func(*jlexer.Lexer)) error {
	if isNull(buf) {
		return nil
	}
	in := jlexer.Lexer{Data: buf}
	if tag, ok := pagequery.ParseErrorTag(stringResult(buf)); ok {
		return tag
	}
	decode(&in)
	return in.Error()
}

// stringResult returns the JSON string in buf, or "" when buf is not a
// string.
func stringResult(buf easyjson.RawMessage) string {
	if len(buf) == 0 || buf[0] != '"' {
		return ""
	}
	in := jlexer.Lexer{Data: buf}
	s := in.String()
	if in.Error() != nil {
		return ""
	}
	return s
}

// node decodes a node handle result. ok is false for null.
func node(buf easyjson.RawMessage, err error) (id cdp.NodeID, ok bool, _ error) {
	if err != nil {
		return 0, false, err
	}
	if isNull(buf) {
		return 0, false, nil
	}
	err = tagOr(buf, func(in *jlexer.Lexer) {
		if in.IsNull() {
			in.Skip()
			return
		}
		id, ok = cdp.NodeID(in.Int64()), true
	})
	return id, ok, err
}

// outcome decodes an action outcome result.
func outcome(buf easyjson.RawMessage, err error) (pagequery.Outcome, error) {
	if err != nil {
		return "", err
	}
	var out pagequery.Outcome
	err = tagOr(buf, func(in *jlexer.Lexer) {
		out = pagequery.Outcome(in.String())
	})
	return out, err
}

// QuerySelector returns the handle of the first node matching selector
// under root. ok is false when nothing matches.
func (c *Client) QuerySelector(ctx context.Context, selector string, root cdp.NodeID, strict bool) (cdp.NodeID, bool, error) {
	return node(c.Call(ctx, pagequery.MethodQuerySelector, pagequery.Params{
		Selector: selector,
		Root:     root,
		Strict:   strict,
	}))
}

// QuerySelectorAll returns the handles of all nodes matching selector under
// root.
func (c *Client) QuerySelectorAll(ctx context.Context, selector string, root cdp.NodeID) ([]cdp.NodeID, error) {
	buf, err := c.Call(ctx, pagequery.MethodQuerySelectorAll, pagequery.Params{
		Selector: selector,
		Root:     root,
	})
	if err != nil {
		return nil, err
	}
	ids := []cdp.NodeID{}
	err = tagOr(buf, func(in *jlexer.Lexer) {
		in.Delim('[')
		for !in.IsDelim(']') {
			ids = append(ids, cdp.NodeID(in.Int64()))
			in.WantComma()
		}
		in.Delim(']')
	})
	return ids, err
}

// WaitForSelector waits for selector to reach state, see
// pagequery.Engine.WaitForSelector. For detached and hidden, the returned
// handle is 0 and ok is true once the state is reached.
func (c *Client) WaitForSelector(ctx context.Context, selector string, state pagequery.ElementState, params pagequery.Params) (cdp.NodeID, bool, error) {
	params.Selector, params.State = selector, string(state)
	buf, err := c.Call(ctx, pagequery.MethodWaitForSelector, params)
	if err == nil && string(buf) == "true" {
		return 0, true, nil
	}
	return node(buf, err)
}

// WaitForElementStates waits for a node to be in all states.
func (c *Client) WaitForElementStates(ctx context.Context, id cdp.NodeID, states []pagequery.ElementState, params pagequery.Params) error {
	params.Node = id
	params.States = make([]string, 0, len(states))
	for _, st := range states {
		params.States = append(params.States, string(st))
	}
	buf, err := c.Call(ctx, pagequery.MethodWaitForElementStates, params)
	if err != nil {
		return err
	}
	return tagOr(buf, func(in *jlexer.Lexer) {
		in.Bool()
	})
}

// CheckElementState checks the state of a node.
func (c *Client) CheckElementState(ctx context.Context, id cdp.NodeID, state pagequery.ElementState) (bool, error) {
	buf, err := c.Call(ctx, pagequery.MethodCheckElementState, pagequery.Params{
		Node:  id,
		State: string(state),
	})
	if err != nil {
		return false, err
	}
	var v bool
	err = tagOr(buf, func(in *jlexer.Lexer) {
		v = in.Bool()
	})
	return v, err
}

// Fill fills an input or textarea.
func (c *Client) Fill(ctx context.Context, id cdp.NodeID, value string) (pagequery.Outcome, error) {
	return outcome(c.Call(ctx, pagequery.MethodFill, pagequery.Params{
		Node:  id,
		Value: value,
	}))
}

// Type types text into a node.
func (c *Client) Type(ctx context.Context, id cdp.NodeID, text string) (pagequery.Outcome, error) {
	return outcome(c.Call(ctx, pagequery.MethodTypeText, pagequery.Params{
		Node: id,
		Text: text,
	}))
}

// SelectOptions selects options of a select and returns their values.
func (c *Client) SelectOptions(ctx context.Context, id cdp.NodeID, options ...pagequery.OptionParam) ([]string, error) {
	buf, err := c.Call(ctx, pagequery.MethodSelectOptions, pagequery.Params{
		Node:    id,
		Options: options,
	})
	if err != nil {
		return nil, err
	}
	values := []string{}
	err = tagOr(buf, func(in *jlexer.Lexer) {
		in.Delim('[')
		for !in.IsDelim(']') {
			values = append(values, in.String())
			in.WantComma()
		}
		in.Delim(']')
	})
	return values, err
}

// PreviewNode returns the preview of a node.
func (c *Client) PreviewNode(ctx context.Context, id cdp.NodeID) (string, error) {
	buf, err := c.Call(ctx, pagequery.MethodPreviewNode, pagequery.Params{Node: id})
	if err != nil {
		return "", err
	}
	var s string
	err = easyjson.Unmarshal(buf, (*stringValue)(&s))
	return s, err
}

// DescribeNode describes a node and its children up to depth levels.
func (c *Client) DescribeNode(ctx context.Context, id cdp.NodeID, depth int64) (*cdp.Node, error) {
	buf, err := c.Call(ctx, pagequery.MethodDescribeNode, pagequery.Params{
		Node:  id,
		Depth: depth,
	})
	if err != nil {
		return nil, err
	}
	n := new(cdp.Node)
	if err := easyjson.Unmarshal(buf, n); err != nil {
		return nil, err
	}
	return n, nil
}

// BoundingBox returns the box of a node, or nil when it is not rendered.
func (c *Client) BoundingBox(ctx context.Context, id cdp.NodeID) (*dom.Rect, error) {
	buf, err := c.Call(ctx, pagequery.MethodBoundingBox, pagequery.Params{Node: id})
	if err != nil {
		return nil, err
	}
	if isNull(buf) {
		return nil, nil
	}
	if tag, ok := pagequery.ParseErrorTag(stringResult(buf)); ok {
		return nil, tag
	}
	r := new(dom.Rect)
	if err := easyjson.Unmarshal(buf, r); err != nil {
		return nil, fmt.Errorf("could not decode box: %w", err)
	}
	return r, nil
}

type stringValue string

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler.
func (v *stringValue) UnmarshalEasyJSON(in *jlexer.Lexer) {
	*v = stringValue(in.String())
}
