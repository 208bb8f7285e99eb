package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindHeadEnd(t *testing.T) {
	assert.Equal(t, -1, FindHeadEnd([]byte("GET / HTTP/1.1\r\nHost: x\r\n")))
	assert.Equal(t, 14, FindHeadEnd([]byte("GET / HTTP/1.1\r\n\r\nbody")))
	assert.Equal(t, -1, FindHeadEnd(nil))
}

func TestParseRequestHead(t *testing.T) {
	head := "POST /save?x=1&y=a+b HTTP/1.1\r\n" +
		"Host: 192.168.4.1\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"content-length:  25 \r\n" +
		"X-Dup: one\r\n" +
		"x-dup: two\r\n" +
		"garbage line\r\n"

	h, err := ParseRequestHead([]byte(head[:len(head)-2]))
	require.NoError(t, err)

	assert.Equal(t, "POST", h.Method)
	assert.Equal(t, "/save", h.Path)
	assert.Equal(t, "x=1&y=a+b", h.RawQuery)
	assert.Equal(t, map[string]string{"x": "1", "y": "a b"}, h.Query)
	assert.Equal(t, "HTTP/1.1", h.Version)
	assert.Equal(t, "192.168.4.1", h.Headers["host"])
	assert.Equal(t, "two", h.Headers["x-dup"])
	assert.Equal(t, 25, h.ContentLength)
	assert.Len(t, h.Headers, 4)
}

func TestParseRequestHead_Defaults(t *testing.T) {
	h, err := ParseRequestHead([]byte("GET generate_204 HTTP/1.0"))
	require.NoError(t, err)
	assert.Equal(t, "/generate_204", h.Path)
	assert.Equal(t, "", h.RawQuery)
	assert.Empty(t, h.Query)
	assert.Equal(t, 0, h.ContentLength)
}

func TestParseRequestHead_Errors(t *testing.T) {
	tests := []struct {
		name string
		head string
		want error
	}{
		{name: "empty", head: "", want: ErrMalformedRequestLine},
		{name: "method only", head: "GET", want: ErrMalformedRequestLine},
		{name: "no version", head: "GET /", want: ErrMalformedRequestLine},
		{name: "bad version", head: "GET / FTP/1.0", want: ErrMalformedRequestLine},
		{name: "lowercase method", head: "get / HTTP/1.1", want: ErrMalformedRequestLine},
		{name: "binary junk", head: "\x16\x03\x01\x02\x00 x HTTP/1.1", want: ErrMalformedRequestLine},
		{name: "content length text", head: "POST / HTTP/1.1\r\nContent-Length: ten", want: ErrInvalidContentLength},
		{name: "content length negative", head: "POST / HTTP/1.1\r\nContent-Length: -1", want: ErrInvalidContentLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequestHead([]byte(tt.head))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
