package domain

import (
	"net/netip"

	"github.com/google/uuid"
)

// Socket is an opaque handle issued by the network interface.
type Socket int

// Event is a readiness bitmask reported by the poller.
type Event uint8

const (
	EventReadable Event = 1 << iota
	EventWritable
	EventError
	EventHangup
	EventInvalid
)

// Has reports whether every bit of mask is set in e.
func (e Event) Has(mask Event) bool {
	return e&mask == mask
}

// IsFault reports whether e carries an error, hangup or invalid bit.
func (e Event) IsFault() bool {
	return e&(EventError|EventHangup|EventInvalid) != 0
}

// String returns the set flags joined with '|'.
func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	names := [...]string{"readable", "writable", "error", "hangup", "invalid"}
	out := ""
	for i, n := range names {
		if e&(1<<i) == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n
	}
	return out
}

// Connection is one live socket known to the orchestrator.
type Connection struct {
	// ID identifies the connection for its lifetime. Socket numbers are
	// recycled by the kernel; IDs are not.
	ID        uuid.UUID
	Socket    Socket
	Transport Transport
	// Protocol is zero until an accepted connection is claimed by a server.
	Protocol  Protocol
	Peer      netip.AddrPort
	Listening bool
}

// NewConnection returns a Connection with a fresh ID.
func NewConnection(sock Socket, t Transport) *Connection {
	return &Connection{
		ID:        uuid.New(),
		Socket:    sock,
		Transport: t,
	}
}

// LogFields returns the fields used to tag log entries about c.
func (c *Connection) LogFields() map[string]any {
	f := map[string]any{
		"conn_id":   c.ID.String(),
		"socket":    int(c.Socket),
		"transport": c.Transport.String(),
	}
	if c.Protocol != 0 {
		f["protocol"] = c.Protocol.String()
	}
	if c.Peer.IsValid() {
		f["client"] = c.Peer.String()
	}
	return f
}
