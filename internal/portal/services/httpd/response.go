package httpd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/services/streamio"
)

// ErrAlreadySent is returned by a second send on the same Response.
var ErrAlreadySent = errors.New("response already sent")

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json"

	serverName = "rr-portal"
)

// Header is one extra response header.
type Header struct {
	Name  string
	Value string
}

// Response builds the single reply to one request.
type Response struct {
	streams *streamio.Manager
	conn    *domain.Connection
	logger  log.Logger
	sent    bool
	status  int
	failed  error
}

func newResponse(streams *streamio.Manager, conn *domain.Connection, logger log.Logger) *Response {
	return &Response{streams: streams, conn: conn, logger: logger}
}

// Sent reports whether the response has been queued.
func (r *Response) Sent() bool { return r.sent }

// Status returns the status code sent, or zero.
func (r *Response) Status() int { return r.status }

// Err returns the error that kept the response from being queued, if any.
func (r *Response) Err() error { return r.failed }

// Send queues the status line, headers and body. Every response carries
// Content-Length and Connection: close.
func (r *Response) Send(status int, contentType string, body []byte, extra ...Header) error {
	if r.sent {
		fields := r.conn.LogFields()
		fields["status"] = status
		r.logger.Warn(fields, "Response already sent, dropping second send")
		return ErrAlreadySent
	}
	r.sent = true
	r.status = status

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if contentType != "" {
		b.WriteString("Content-Type: " + contentType + "\r\n")
	}
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	for _, h := range extra {
		b.WriteString(h.Name + ": " + h.Value + "\r\n")
	}
	b.WriteString("Server: " + serverName + "\r\n")
	b.WriteString("Connection: close\r\n\r\n")

	fields := r.conn.LogFields()
	fields["status"] = status
	fields["size"] = len(body)
	r.logger.Debug(fields, "HTTP response")

	if err := r.streams.Prepare(r.conn.Socket, []byte(b.String()), body); err != nil {
		r.failed = fmt.Errorf("queue response: %w", err)
		return r.failed
	}
	return nil
}

// OK sends 200 with the given content type.
func (r *Response) OK(contentType string, body []byte, extra ...Header) error {
	return r.Send(http.StatusOK, contentType, body, extra...)
}

// HTML sends 200 text/html.
func (r *Response) HTML(body []byte) error {
	return r.OK(contentTypeHTML, body)
}

// JSON marshals v and sends it with status 200.
func (r *Response) JSON(v any, extra ...Header) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return r.OK(contentTypeJSON, body, extra...)
}

// Text sends a plain-text body with the given status.
func (r *Response) Text(status int, msg string) error {
	return r.Send(status, contentTypeText, []byte(msg))
}

// Redirect sends 307 with an empty body.
func (r *Response) Redirect(location string) error {
	return r.Send(http.StatusTemporaryRedirect, "", nil, Header{Name: "Location", Value: location})
}

func (r *Response) NotFound() error {
	return r.Text(http.StatusNotFound, "Not Found")
}

func (r *Response) BadRequest(msg string) error {
	if msg == "" {
		msg = "Bad Request"
	}
	return r.Text(http.StatusBadRequest, msg)
}

func (r *Response) ServerError() error {
	return r.Text(http.StatusInternalServerError, "Internal Server Error")
}

// MethodNotAllowed sends 405 listing the allowed methods.
func (r *Response) MethodNotAllowed(allow ...string) error {
	return r.Send(http.StatusMethodNotAllowed, contentTypeText, []byte("Method Not Allowed"),
		Header{Name: "Allow", Value: strings.Join(allow, ", ")})
}
