// Package streamio keeps per-connection stream buffers: an inbound
// accumulator fed by non-blocking reads, and an outbound FIFO of payloads
// transmitted in chunks of at most MSS bytes.
package streamio

import (
	"errors"
	"fmt"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
)

const (
	DefaultMSS      = 536
	DefaultReadSize = 1024
)

// ErrNotAttached is returned by Prepare for sockets without buffers.
var ErrNotAttached = errors.New("socket has no stream buffers")

// Options tunes a Manager. Zero fields take defaults.
type Options struct {
	MSS      int
	ReadSize int
}

// payload is one queued message. chunk[lo:hi] is the part of the current
// chunk not yet on the wire; src is what has not been chunked yet.
type payload struct {
	src    []byte
	chunk  []byte
	lo, hi int
}

type buffers struct {
	in  []byte
	out []*payload
}

// Manager owns the stream buffers of every attached socket.
type Manager struct {
	nif     netif.Interface
	poller  netif.Poller
	logger  log.Logger
	mss     int
	scratch []byte
	conns   map[domain.Socket]*buffers
}

// New returns a Manager reading and writing through nif.
func New(nif netif.Interface, poller netif.Poller, logger log.Logger, opts Options) *Manager {
	if opts.MSS <= 0 {
		opts.MSS = DefaultMSS
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	return &Manager{
		nif:     nif,
		poller:  poller,
		logger:  logger,
		mss:     opts.MSS,
		scratch: make([]byte, opts.ReadSize),
		conns:   make(map[domain.Socket]*buffers),
	}
}

// Attach creates empty buffers for sock. Attaching twice resets them.
func (m *Manager) Attach(sock domain.Socket) {
	m.conns[sock] = &buffers{}
}

// Live reports whether sock has buffers.
func (m *Manager) Live(sock domain.Socket) bool {
	_, ok := m.conns[sock]
	return ok
}

// Read performs one non-blocking read into the accumulator and returns all
// buffered bytes. A read error or peer close ends the connection and
// reports false.
func (m *Manager) Read(sock domain.Socket) ([]byte, bool) {
	b, ok := m.conns[sock]
	if !ok {
		return nil, false
	}
	n, err := m.nif.Read(sock, m.scratch)
	switch {
	case errors.Is(err, netif.ErrWouldBlock):
		return b.in, true
	case errors.Is(err, netif.ErrClosed):
		m.logger.Debug(map[string]any{"socket": int(sock)}, "Peer closed connection")
		m.End(sock)
		return nil, false
	case err != nil:
		m.logger.Warn(map[string]any{
			"socket": int(sock),
			"error":  err,
			"errno":  netif.Classify(err),
		}, "Stream read failed")
		m.End(sock)
		return nil, false
	}
	b.in = append(b.in, m.scratch[:n]...)
	return b.in, true
}

// Buffered returns the accumulator without reading.
func (m *Manager) Buffered(sock domain.Socket) []byte {
	if b, ok := m.conns[sock]; ok {
		return b.in
	}
	return nil
}

// Consume drops the first n accumulated bytes.
func (m *Manager) Consume(sock domain.Socket, n int) {
	b, ok := m.conns[sock]
	if !ok {
		return
	}
	if n >= len(b.in) {
		b.in = nil
		return
	}
	b.in = append([]byte(nil), b.in[n:]...)
}

// Discard empties the accumulator.
func (m *Manager) Discard(sock domain.Socket) {
	if b, ok := m.conns[sock]; ok {
		b.in = nil
	}
}

// Prepare queues the concatenation of parts as one message and switches
// the socket's interest to writable.
func (m *Manager) Prepare(sock domain.Socket, parts ...[]byte) error {
	b, ok := m.conns[sock]
	if !ok {
		return fmt.Errorf("prepare socket %d: %w", sock, ErrNotAttached)
	}
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	src := make([]byte, 0, size)
	for _, p := range parts {
		src = append(src, p...)
	}
	b.out = append(b.out, &payload{src: src, chunk: make([]byte, 0, m.mss)})

	if err := m.poller.Modify(sock, domain.EventWritable); err != nil {
		return fmt.Errorf("prepare socket %d: %w", sock, err)
	}
	return nil
}

// Write makes progress on the front payload. It returns true once every
// queued payload has been sent and interest is back to readable. A socket
// error drops the front payload and also reports true.
func (m *Manager) Write(sock domain.Socket) bool {
	b, ok := m.conns[sock]
	if !ok {
		return true
	}
	for len(b.out) > 0 {
		p := b.out[0]
		if p.lo == p.hi {
			if len(p.src) == 0 {
				b.out = b.out[1:]
				continue
			}
			n := min(m.mss, len(p.src))
			p.chunk = append(p.chunk[:0], p.src[:n]...)
			p.src = p.src[n:]
			p.lo, p.hi = 0, n
		}

		n, err := m.nif.Write(sock, p.chunk[p.lo:p.hi])
		if errors.Is(err, netif.ErrWouldBlock) {
			return false
		}
		if err != nil {
			m.logger.Warn(map[string]any{
				"socket": int(sock),
				"error":  err,
				"errno":  netif.Classify(err),
			}, "Stream write failed, dropping payload")
			b.out = b.out[1:]
			return true
		}
		p.lo += n
		if p.lo < p.hi {
			// Partial write; wait for the next writable event.
			return false
		}
	}
	if err := m.poller.Modify(sock, domain.EventReadable); err != nil {
		m.logger.Debug(map[string]any{"socket": int(sock), "error": err}, "Failed to restore read interest")
	}
	return true
}

// Pending returns the number of queued payloads.
func (m *Manager) Pending(sock domain.Socket) int {
	if b, ok := m.conns[sock]; ok {
		return len(b.out)
	}
	return 0
}

// End releases sock: buffers, poller registration, descriptor. Only
// attached sockets are touched, so repeating End is harmless even after
// the socket number has been reused by a connection that is not attached.
func (m *Manager) End(sock domain.Socket) {
	if _, ok := m.conns[sock]; !ok {
		return
	}
	delete(m.conns, sock)

	if err := m.poller.Unregister(sock); err != nil {
		m.logger.Debug(map[string]any{"socket": int(sock), "error": err}, "Unregister on end failed")
	}
	if err := m.nif.Close(sock); err != nil {
		m.logger.Debug(map[string]any{
			"socket": int(sock),
			"error":  err,
			"errno":  netif.Classify(err),
		}, "Close on end failed")
	}
}
