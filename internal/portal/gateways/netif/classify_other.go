//go:build !unix

package netif

import "errors"

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
	return "EGENERIC"
}
