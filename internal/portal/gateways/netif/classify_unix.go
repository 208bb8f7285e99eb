//go:build unix

package netif

import (
	"errors"

	"golang.org/x/sys/unix"
)

var errnoClasses = []struct {
	errno unix.Errno
	class string
}{
	{unix.ECONNRESET, "ECONNRESET"},
	{unix.EPIPE, "EPIPE"},
	{unix.ECONNABORTED, "ECONNABORTED"},
	{unix.ECONNREFUSED, "ECONNREFUSED"},
	{unix.ENOTCONN, "ENOTCONN"},
	{unix.ETIMEDOUT, "ETIMEDOUT"},
	{unix.EHOSTUNREACH, "EHOSTUNREACH"},
	{unix.ENETUNREACH, "ENETUNREACH"},
	{unix.ENETDOWN, "ENETDOWN"},
	{unix.EADDRINUSE, "EADDRINUSE"},
	{unix.EADDRNOTAVAIL, "EADDRNOTAVAIL"},
	{unix.EACCES, "EACCES"},
	{unix.EBADF, "EBADF"},
	{unix.EINVAL, "EINVAL"},
	{unix.ENOBUFS, "ENOBUFS"},
	{unix.EMFILE, "EMFILE"},
}

// Classify maps err to a short errno-style label for log fields.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWouldBlock):
		return "EAGAIN"
	case errors.Is(err, ErrClosed):
		return "EOF"
	case errors.Is(err, ErrNotRegistered):
		return "ENOTREG"
	}
	for _, c := range errnoClasses {
		if errors.Is(err, c.errno) {
			return c.class
		}
	}
	return "EGENERIC"
}
