package wire

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/haukened/rr-portal/internal/portal/common/codec"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrInvalidContentLength = errors.New("invalid Content-Length")
)

var headEnd = []byte("\r\n\r\n")

// RequestHead is a parsed HTTP/1.1 request line plus headers.
type RequestHead struct {
	Method   string
	Path     string
	RawQuery string
	Query    map[string]string
	Version  string
	// Headers maps lower-cased names to values; the last occurrence wins.
	Headers       map[string]string
	ContentLength int
}

// FindHeadEnd returns the index of the blank line ending the request head,
// or -1 if it has not arrived yet.
func FindHeadEnd(buf []byte) int {
	return bytes.Index(buf, headEnd)
}

// HeadTerminatorLen is the length of the CRLFCRLF sequence after the head.
const HeadTerminatorLen = 4

// ParseRequestHead parses head, which excludes the terminating blank line.
// Header lines without a colon are ignored.
func ParseRequestHead(head []byte) (RequestHead, error) {
	lines := strings.Split(string(head), "\r\n")

	method, rest, ok := strings.Cut(lines[0], " ")
	if !ok || method == "" {
		return RequestHead{}, ErrMalformedRequestLine
	}
	target, version, ok := strings.Cut(rest, " ")
	if !ok || target == "" || !strings.HasPrefix(version, "HTTP/") {
		return RequestHead{}, ErrMalformedRequestLine
	}
	for _, c := range method {
		if c < 'A' || c > 'Z' {
			return RequestHead{}, ErrMalformedRequestLine
		}
	}

	path, rawQuery, _ := strings.Cut(target, "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	h := RequestHead{
		Method:   method,
		Path:     path,
		RawQuery: rawQuery,
		Query:    codec.ParseForm(rawQuery),
		Version:  version,
		Headers:  make(map[string]string, len(lines)-1),
	}
	for _, line := range lines[1:] {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		h.Headers[key] = strings.TrimSpace(val)
	}

	if cl, ok := h.Headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return RequestHead{}, ErrInvalidContentLength
		}
		h.ContentLength = n
	}
	return h, nil
}
