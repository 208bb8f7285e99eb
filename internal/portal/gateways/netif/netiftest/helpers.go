package netiftest

import (
	"net/netip"
	"slices"

	"github.com/haukened/rr-portal/internal/portal/domain"
)

func (n *Network) mustSocket(sock domain.Socket) *socket {
	s, ok := n.socks[sock]
	if !ok {
		panic("netiftest: unknown socket")
	}
	return s
}

// Connect queues an inbound stream connection from peer on listener and
// returns the socket Accept will hand out for it.
func (n *Network) Connect(listener domain.Socket, peer netip.AddrPort) domain.Socket {
	ln := n.mustSocket(listener)
	c := n.alloc(&socket{transport: domain.TransportTCP, local: ln.local, peer: peer})
	ln.backlog = append(ln.backlog, c)
	return c
}

// Feed appends bytes the peer sent on a stream socket.
func (n *Network) Feed(sock domain.Socket, data []byte) {
	s := n.mustSocket(sock)
	s.in = append(s.in, data...)
}

// Shutdown makes reads return netif.ErrClosed once buffered input drains.
func (n *Network) Shutdown(sock domain.Socket) {
	n.mustSocket(sock).eof = true
}

// Hangup marks the peer gone: reads hit EOF and polls report EventHangup.
func (n *Network) Hangup(sock domain.Socket) {
	s := n.mustSocket(sock)
	s.eof = true
	s.hangup = true
}

// Fault makes polls report EventError for sock.
func (n *Network) Fault(sock domain.Socket) {
	n.mustSocket(sock).fault = true
}

// PendingError queues a socket error, such as an ICMP port unreachable on
// UDP. Polls report EventError until the next RecvFrom returns it.
func (n *Network) PendingError(sock domain.Socket, err error) {
	n.mustSocket(sock).pending = err
}

// FailReads makes every subsequent read on sock return err.
func (n *Network) FailReads(sock domain.Socket, err error) {
	n.mustSocket(sock).readErr = err
}

// FailWrites makes every subsequent write on sock return err.
func (n *Network) FailWrites(sock domain.Socket, err error) {
	n.mustSocket(sock).writeErr = err
}

// FailModify makes every subsequent interest change on sock return err.
func (n *Network) FailModify(sock domain.Socket, err error) {
	n.mustSocket(sock).modifyErr = err
}

// SetWriteLimit caps the bytes accepted per Write call. Zero removes the cap.
func (n *Network) SetWriteLimit(sock domain.Socket, limit int) {
	n.mustSocket(sock).limit = limit
}

// BlockWrites toggles whether writes report would-block.
func (n *Network) BlockWrites(sock domain.Socket, blocked bool) {
	n.mustSocket(sock).blocked = blocked
}

// Inject queues a datagram from peer on a UDP socket.
func (n *Network) Inject(sock domain.Socket, peer netip.AddrPort, payload []byte) {
	s := n.mustSocket(sock)
	s.datagrams = append(s.datagrams, Datagram{Peer: peer, Payload: slices.Clone(payload)})
}

// Sent returns the datagrams written to sock.
func (n *Network) Sent(sock domain.Socket) []Datagram {
	return n.mustSocket(sock).sent
}

// Wire returns every byte written to a stream socket.
func (n *Network) Wire(sock domain.Socket) []byte {
	return n.mustSocket(sock).wire
}

// Writes returns the number of successful Write calls on sock.
func (n *Network) Writes(sock domain.Socket) int {
	return n.mustSocket(sock).writes
}

// Unread returns input fed to sock that has not been read yet.
func (n *Network) Unread(sock domain.Socket) []byte {
	return n.mustSocket(sock).in
}

// CloseCount returns how many times Close was called on sock.
func (n *Network) CloseCount(sock domain.Socket) int {
	return n.mustSocket(sock).closes
}

// IsClosed reports whether sock has been closed.
func (n *Network) IsClosed(sock domain.Socket) bool {
	return n.mustSocket(sock).closed
}

// Interest returns the poller interest for sock.
func (n *Network) Interest(sock domain.Socket) (domain.Event, bool) {
	ev, ok := n.interest[sock]
	return ev, ok
}

// Open returns every socket that has not been closed, in ascending order.
func (n *Network) Open() []domain.Socket {
	var out []domain.Socket
	for sock, s := range n.socks {
		if !s.closed {
			out = append(out, sock)
		}
	}
	slices.Sort(out)
	return out
}

// Registered returns every socket the poller watches, in ascending order.
func (n *Network) Registered() []domain.Socket {
	out := make([]domain.Socket, 0, len(n.interest))
	for sock := range n.interest {
		out = append(out, sock)
	}
	slices.Sort(out)
	return out
}

// Polls returns how many times Poll was called.
func (n *Network) Polls() int {
	return n.polls
}
