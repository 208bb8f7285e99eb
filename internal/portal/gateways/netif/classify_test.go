//go:build unix

package netif

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "would block", err: ErrWouldBlock, want: "EAGAIN"},
		{name: "closed", err: fmt.Errorf("read: %w", ErrClosed), want: "EOF"},
		{name: "not registered", err: ErrNotRegistered, want: "ENOTREG"},
		{name: "reset", err: fmt.Errorf("write: %w", unix.ECONNRESET), want: "ECONNRESET"},
		{name: "pipe", err: unix.EPIPE, want: "EPIPE"},
		{name: "bad fd", err: fmt.Errorf("close: %w", unix.EBADF), want: "EBADF"},
		{name: "other", err: errors.New("boom"), want: "EGENERIC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestMapErr(t *testing.T) {
	assert.Equal(t, ErrWouldBlock, mapErr("read", unix.EAGAIN))
	assert.Equal(t, ErrWouldBlock, mapErr("read", unix.EINTR))

	err := mapErr("write", unix.ECONNRESET)
	assert.ErrorIs(t, err, unix.ECONNRESET)
	assert.Contains(t, err.Error(), "write")
}
