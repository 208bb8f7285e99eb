// Package httpd is the portal's HTTP/1.1 server. It reassembles requests
// from non-blocking reads, routes them by exact path, and answers every
// request with Connection: close.
package httpd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"slices"
	"strings"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/wire"
	"github.com/haukened/rr-portal/internal/portal/services/orchestrator"
	"github.com/haukened/rr-portal/internal/portal/services/server"
	"github.com/haukened/rr-portal/internal/portal/services/streamio"
)

const (
	DefaultMaxHeader = 2048
	DefaultMaxBody   = 10 * 1024

	// maxAccept bounds how many pending connections one event accepts.
	maxAccept = 8
)

// Limits bounds per-request buffering.
type Limits struct {
	MaxHeader int
	MaxBody   int
}

// Interceptor may answer a request before routing. It returns true when
// it has handled the request.
type Interceptor func(req *Request, res *Response) bool

// Options configures a Server. Files may be nil when no File routes exist.
type Options struct {
	Routes    Routes
	Files     fs.FS
	Limits    Limits
	Stream    streamio.Options
	Intercept Interceptor
	// OnClose runs after a client connection is released.
	OnClose func(conn *domain.Connection)
}

// Server is the HTTP protocol handler.
type Server struct {
	base      *server.Base
	orch      *orchestrator.Orchestrator
	streams   *streamio.Manager
	routes    Routes
	files     fs.FS
	limits    Limits
	intercept Interceptor
	onClose   func(conn *domain.Connection)
	logger    log.Logger
}

var (
	_ orchestrator.Handler = (*Server)(nil)
	_ orchestrator.Ender   = (*Server)(nil)
)

// Listen binds the server to addr.
func Listen(orch *orchestrator.Orchestrator, addr netip.AddrPort, opts Options, logger log.Logger) (*Server, error) {
	if opts.Limits.MaxHeader <= 0 {
		opts.Limits.MaxHeader = DefaultMaxHeader
	}
	if opts.Limits.MaxBody <= 0 {
		opts.Limits.MaxBody = DefaultMaxBody
	}
	s := &Server{
		orch:      orch,
		streams:   streamio.New(orch.Net(), orch.Poller(), logger, opts.Stream),
		routes:    opts.Routes,
		files:     opts.Files,
		limits:    opts.Limits,
		intercept: opts.Intercept,
		onClose:   opts.OnClose,
		logger:    logger,
	}
	base, err := server.Listen(orch, domain.ProtocolHTTP, addr, s, logger)
	if err != nil {
		return nil, err
	}
	s.base = base
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() netip.AddrPort { return s.base.Addr() }

// Handle services the listening socket and client connections.
func (s *Server) Handle(conn *domain.Connection, ev domain.Event) (bool, error) {
	if conn.Listening {
		s.accept(ev)
		return false, nil
	}
	sock := conn.Socket

	if ev.IsFault() {
		fields := conn.LogFields()
		fields["events"] = ev.String()
		s.logger.Debug(fields, "Client socket error or hangup")
		s.End(sock)
		return true, nil
	}

	if ev.Has(domain.EventReadable) {
		if _, ok := s.streams.Read(sock); !ok {
			s.released(conn)
			return true, nil
		}
		s.process(conn)
		if !s.streams.Live(sock) {
			return true, nil
		}
	}

	if ev.Has(domain.EventWritable) && s.streams.Pending(sock) > 0 {
		if s.streams.Write(sock) {
			s.End(sock)
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) accept(ev domain.Event) {
	if ev.IsFault() {
		s.logger.Warn(map[string]any{"events": ev.String()}, "HTTP listener reported error condition")
	}
	for i := 0; i < maxAccept; i++ {
		conn, err := s.base.Accept()
		if err != nil {
			s.logger.Warn(map[string]any{"error": err}, "Failed to accept HTTP connection")
			return
		}
		if conn == nil {
			return
		}
		s.streams.Attach(conn.Socket)
	}
}

// process parses and dispatches every complete request in the accumulator.
func (s *Server) process(conn *domain.Connection) {
	sock := conn.Socket
	for s.streams.Live(sock) {
		buf := s.streams.Buffered(sock)
		if len(buf) == 0 {
			return
		}

		end := wire.FindHeadEnd(buf)
		if end < 0 {
			if len(buf) > s.limits.MaxHeader {
				s.reject(conn, "Headers too large")
			}
			return
		}
		if end > s.limits.MaxHeader {
			s.reject(conn, "Headers too large")
			return
		}

		head, err := wire.ParseRequestHead(buf[:end])
		if err != nil {
			fields := conn.LogFields()
			fields["error"] = err
			s.logger.Debug(fields, "Malformed HTTP request")
			if errors.Is(err, wire.ErrInvalidContentLength) {
				s.reject(conn, "Invalid Content-Length")
			} else {
				s.reject(conn, "Bad Request")
			}
			return
		}
		if head.ContentLength > s.limits.MaxBody {
			s.reject(conn, "Request body too large")
			return
		}

		bodyStart := end + wire.HeadTerminatorLen
		total := bodyStart + head.ContentLength
		if len(buf) < total {
			return
		}

		req := &Request{
			Method:   head.Method,
			Path:     head.Path,
			RawQuery: head.RawQuery,
			Query:    head.Query,
			Headers:  head.Headers,
			Body:     slices.Clone(buf[bodyStart:total]),
			Version:  head.Version,
			Conn:     conn,
		}
		s.streams.Consume(sock, total)
		s.dispatch(req)
	}
}

// reject answers 400 and drops whatever else is buffered. The connection
// closes once the response drains.
func (s *Server) reject(conn *domain.Connection, msg string) {
	s.streams.Discard(conn.Socket)
	res := newResponse(s.streams, conn, s.logger)
	_ = res.BadRequest(msg)
	s.settle(res)
}

// settle releases the connection when its response could not be queued.
// Nothing would ever be written to it otherwise.
func (s *Server) settle(res *Response) {
	if res.Err() == nil {
		return
	}
	fields := res.conn.LogFields()
	fields["status"] = res.Status()
	fields["error"] = res.Err()
	s.logger.Warn(fields, "Failed to queue HTTP response, closing connection")
	s.End(res.conn.Socket)
}

func (s *Server) dispatch(req *Request) {
	res := newResponse(s.streams, req.Conn, s.logger)
	fields := req.Conn.LogFields()
	fields["method"] = req.Method
	fields["path"] = req.Path
	s.logger.Info(fields, "HTTP request")

	defer func() {
		if r := recover(); r != nil {
			fields["panic"] = fmt.Sprint(r)
			s.logger.Error(fields, "HTTP handler panicked")
			if res.Sent() {
				s.End(req.Conn.Socket)
				return
			}
			_ = res.ServerError()
		}
		s.settle(res)
	}()

	if s.intercept != nil && s.intercept(req, res) {
		return
	}

	route, ok := s.routes.Lookup(req.Path)
	switch {
	case !ok:
		_ = res.NotFound()
	case route.Handler != nil:
		s.serveFunc(route.Handler, req, res, fields)
	case route.File != "":
		s.serveFile(route.File, res, fields)
	default:
		s.logger.Error(fields, "Route has neither file nor handler")
		_ = res.ServerError()
	}
}

func (s *Server) serveFunc(fn HandlerFunc, req *Request, res *Response, fields map[string]any) {
	body, err := fn(req, res)
	switch {
	case err != nil:
		fields["error"] = err
		s.logger.Error(fields, "HTTP handler failed")
		if !res.Sent() {
			_ = res.ServerError()
		}
	case res.Sent():
	case body != nil:
		_ = res.HTML(body)
	default:
		_ = res.OK(contentTypeText, nil)
	}
}

func (s *Server) serveFile(name string, res *Response, fields map[string]any) {
	if s.files == nil {
		_ = res.NotFound()
		return
	}
	data, err := fs.ReadFile(s.files, strings.TrimPrefix(name, "/"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		_ = res.NotFound()
	case err != nil:
		fields["error"] = err
		fields["file"] = name
		s.logger.Error(fields, "Failed to read static file")
		_ = res.ServerError()
	default:
		_ = res.OK(ContentType(name, data), data)
	}
}

// End releases a client connection, or stops the server when sock is the
// listening socket. Repeated calls are harmless.
func (s *Server) End(sock domain.Socket) {
	if s.base.IsListener(sock) {
		s.base.Stop()
		return
	}
	if !s.streams.Live(sock) {
		return
	}
	conn, tracked := s.orch.Lookup(sock)
	s.streams.End(sock)
	if tracked {
		s.released(conn)
	}
}

func (s *Server) released(conn *domain.Connection) {
	if s.onClose != nil {
		s.onClose(conn)
	}
}

// Stop closes every client connection and the listening socket.
func (s *Server) Stop() {
	for _, conn := range s.orch.Connections() {
		if conn.Listening || !s.streams.Live(conn.Socket) {
			continue
		}
		s.End(conn.Socket)
		s.orch.Forget(conn)
	}
	s.base.Stop()
}
