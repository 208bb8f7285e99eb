package domain

import (
	"errors"
	"fmt"
)

// Protocol is an application protocol served by the portal.
type Protocol uint8

const (
	ProtocolDNS Protocol = iota + 1
	ProtocolHTTP
	ProtocolWebSocket
)

// ErrConflictingBinding is returned when a protocol is bound to a second,
// different transport.
var ErrConflictingBinding = errors.New("protocol already bound to a different transport")

// IsValid returns true if the Protocol is one of the supported protocols.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolDNS, ProtocolHTTP, ProtocolWebSocket:
		return true
	default:
		return false
	}
}

// String returns the textual representation of the Protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolDNS:
		return "dns"
	case ProtocolHTTP:
		return "http"
	case ProtocolWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Bindings maps every protocol to exactly one transport.
type Bindings struct {
	m map[Protocol]Transport
}

// NewBindings returns an empty binding table.
func NewBindings() *Bindings {
	return &Bindings{m: make(map[Protocol]Transport)}
}

// DefaultBindings returns DNS over UDP, HTTP and WebSocket over TCP.
func DefaultBindings() *Bindings {
	b := NewBindings()
	b.m[ProtocolDNS] = TransportUDP
	b.m[ProtocolHTTP] = TransportTCP
	b.m[ProtocolWebSocket] = TransportTCP
	return b
}

// Bind associates p with t. Re-binding to the same transport is a no-op.
func (b *Bindings) Bind(p Protocol, t Transport) error {
	if !p.IsValid() {
		return fmt.Errorf("invalid protocol %d", p)
	}
	if !t.IsValid() {
		return fmt.Errorf("invalid transport %d", t)
	}
	if cur, ok := b.m[p]; ok && cur != t {
		return fmt.Errorf("%w: %s is bound to %s, not %s", ErrConflictingBinding, p, cur, t)
	}
	b.m[p] = t
	return nil
}

// TransportOf returns the transport p is bound to.
func (b *Bindings) TransportOf(p Protocol) (Transport, bool) {
	t, ok := b.m[p]
	return t, ok
}
