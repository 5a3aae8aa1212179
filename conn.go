package pagequery

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// ErrInvalidWebsocketMessage is the error returned when a websocket message
// is not a text message.
var ErrInvalidWebsocketMessage = errors.New("invalid websocket message")

// Transport is the common interface to receive requests from and send
// responses to a client.
type Transport interface {
	Read() (*Request, error)
	Write(*Response) error
	io.Closer
}

// Conn is a websocket connection carrying easyjson encoded messages. The
// server end is a Transport; the client end exchanges requests and
// responses the other way round with WriteRequest and ReadResponse.
type Conn struct {
	conn  net.Conn
	rw    io.ReadWriter
	state ws.State

	// reuse the easyjson lexer, under rmu
	rmu     sync.Mutex
	decoder jlexer.Lexer

	// reuse the easyjson writer, under wmu
	wmu     sync.Mutex
	encoder jwriter.Writer

	dbgf LogFunc
}

// ConnOption is a connection option.
type ConnOption = func(*Conn)

// WithConnDebugf is a connection option to specify a func to receive the
// raw messages read and written.
func WithConnDebugf(f LogFunc) ConnOption {
	return func(c *Conn) {
		c.dbgf = f
	}
}

// newConn wraps an established websocket connection. br holds bytes already
// buffered from conn during the handshake, and may be nil.
func newConn(conn net.Conn, br *bufio.Reader, state ws.State, opts ...ConnOption) *Conn {
	c := &Conn{
		conn:  conn,
		rw:    conn,
		state: state,
	}
	if br != nil && br.Buffered() != 0 {
		c.rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DialContext dials the websocket URL of a pagequery server.
func DialContext(ctx context.Context, urlstr string, opts ...ConnOption) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	return newConn(conn, br, ws.StateClientSide, opts...), nil
}

// Upgrade upgrades an HTTP request to a websocket and returns the server end
// of the connection.
func Upgrade(w http.ResponseWriter, r *http.Request, opts ...ConnOption) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}
	var br *bufio.Reader
	if rw != nil {
		br = rw.Reader
	}
	return newConn(conn, br, ws.StateServerSide, opts...), nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Read reads the next request.
func (c *Conn) Read() (*Request, error) {
	req := new(Request)
	if err := c.read(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Write writes a response.
func (c *Conn) Write(res *Response) error {
	return c.write(res)
}

// ReadResponse reads the next response.
func (c *Conn) ReadResponse() (*Response, error) {
	res := new(Response)
	if err := c.read(res); err != nil {
		return nil, err
	}
	return res, nil
}

// WriteRequest writes a request.
func (c *Conn) WriteRequest(req *Request) error {
	return c.write(req)
}

func (c *Conn) read(v easyjson.Unmarshaler) error {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var (
		buf []byte
		op  ws.OpCode
		err error
	)
	if c.state.ServerSide() {
		buf, op, err = wsutil.ReadClientData(c.rw)
	} else {
		buf, op, err = wsutil.ReadServerData(c.rw)
	}
	var closed wsutil.ClosedError
	switch {
	case errors.As(err, &closed):
		return io.EOF
	case err != nil:
		return err
	case op != ws.OpText:
		return ErrInvalidWebsocketMessage
	}
	if c.dbgf != nil {
		c.dbgf("<- %s", buf)
	}

	// unmarshal, reusing lexer
	c.decoder = jlexer.Lexer{Data: buf}
	v.UnmarshalEasyJSON(&c.decoder)
	return c.decoder.Error()
}

func (c *Conn) write(v easyjson.Marshaler) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.encoder = jwriter.Writer{}
	v.MarshalEasyJSON(&c.encoder)
	buf, err := c.encoder.BuildBytes()
	if err != nil {
		return err
	}
	if c.dbgf != nil {
		c.dbgf("-> %s", buf)
	}
	if c.state.ServerSide() {
		return wsutil.WriteServerText(c.rw, buf)
	}
	return wsutil.WriteClientText(c.rw, buf)
}

// Handler serves a Session per websocket connection.
type Handler struct {
	Engine         *Engine
	SessionOptions []SessionOption
	ConnOptions    []ConnOption

	// Errorf receives connection errors. Defaults to Logger.Printf.
	Errorf LogFunc
}

// ServeHTTP satisfies http.Handler. The session lasts until the client
// closes the connection or the request context is done.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	errf := h.Errorf
	if errf == nil {
		errf = Logger.Printf
	}
	conn, err := Upgrade(w, r, h.ConnOptions...)
	if err != nil {
		errf("could not upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}
	s := NewSession(h.Engine, h.SessionOptions...)
	if err := s.Serve(r.Context(), conn); err != nil && !errors.Is(err, context.Canceled) {
		errf("session from %s: %v", r.RemoteAddr, err)
	}
}
