package httpd

import (
	"strings"

	"github.com/haukened/rr-portal/internal/portal/common/codec"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

// Request is a fully received HTTP request. Handlers must not modify it.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	// Query holds decoded query parameters; the last occurrence of a key wins.
	Query map[string]string
	// Headers maps lower-cased header names to values.
	Headers map[string]string
	Body    []byte
	Version string
	Conn    *domain.Connection
}

// Header returns the value of the named header, case-insensitively.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Host returns the Host header without a port.
func (r *Request) Host() string {
	host := r.Headers["host"]
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}

// Form decodes an application/x-www-form-urlencoded body.
func (r *Request) Form() map[string]string {
	return codec.ParseForm(string(r.Body))
}
