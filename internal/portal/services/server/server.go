// Package server holds the plumbing every portal server shares: binding
// the listening socket, wiring it into the orchestrator, and accepting
// stream connections.
package server

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
	"github.com/haukened/rr-portal/internal/portal/services/orchestrator"
)

// ErrUnboundProtocol is returned when a protocol has no transport binding.
var ErrUnboundProtocol = errors.New("protocol has no transport binding")

// Base is a listening socket owned by one protocol handler.
type Base struct {
	orch     *orchestrator.Orchestrator
	conn     *domain.Connection
	handler  orchestrator.Handler
	protocol domain.Protocol
	addr     netip.AddrPort
	logger   log.Logger
	stopped  bool
}

// Listen binds addr with the transport bound to proto and registers
// handler for the listening connection, for proto, and as the fallback
// for the transport.
func Listen(orch *orchestrator.Orchestrator, proto domain.Protocol, addr netip.AddrPort, handler orchestrator.Handler, logger log.Logger) (*Base, error) {
	t, ok := orch.Bindings().TransportOf(proto)
	if !ok {
		return nil, fmt.Errorf("listen %s: %w", proto, ErrUnboundProtocol)
	}

	sock, err := orch.Net().Listen(addr, t)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s server on %s: %w", proto, addr, err)
	}

	conn := domain.NewConnection(sock, t)
	conn.Protocol = proto
	conn.Listening = true
	local, err := orch.Net().LocalAddr(sock)
	if err != nil {
		local = addr
	}

	b := &Base{orch: orch, conn: conn, handler: handler, protocol: proto, addr: local, logger: logger}

	orch.Track(conn)
	for _, reg := range []struct {
		key    orchestrator.Key
		target orchestrator.Target
	}{
		{orchestrator.ConnectionKey(conn), orchestrator.HandlerTarget(handler)},
		{orchestrator.ProtocolKey(proto), orchestrator.HandlerTarget(handler)},
		{orchestrator.TransportKey(t), orchestrator.AliasTarget(orchestrator.ProtocolKey(proto))},
	} {
		if err := orch.Register(reg.key, reg.target); err != nil {
			b.Stop()
			return nil, fmt.Errorf("listen %s: %w", proto, err)
		}
	}
	if err := orch.Poller().Register(sock, domain.EventReadable); err != nil {
		b.Stop()
		return nil, fmt.Errorf("listen %s: poller: %w", proto, err)
	}

	logger.Info(map[string]any{
		"protocol":  proto.String(),
		"transport": t.String(),
		"address":   b.Addr().String(),
	}, "Server listening")
	return b, nil
}

// Conn returns the listening connection.
func (b *Base) Conn() *domain.Connection { return b.conn }

// Protocol returns the protocol this server speaks.
func (b *Base) Protocol() domain.Protocol { return b.protocol }

// Addr returns the bound local address.
func (b *Base) Addr() netip.AddrPort { return b.addr }

// IsListener reports whether sock is this server's listening socket.
func (b *Base) IsListener(sock domain.Socket) bool {
	cur, ok := b.orch.Lookup(sock)
	return ok && cur.ID == b.conn.ID
}

// Accept takes one pending stream connection, tracks it and registers it
// for reads. It returns nil without error when nothing is pending.
func (b *Base) Accept() (*domain.Connection, error) {
	sock, peer, err := b.orch.Net().Accept(b.conn.Socket)
	if errors.Is(err, netif.ErrWouldBlock) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}

	conn := domain.NewConnection(sock, b.conn.Transport)
	conn.Protocol = b.protocol
	conn.Peer = peer
	b.orch.Track(conn)
	if err := b.orch.Poller().Register(sock, domain.EventReadable); err != nil {
		b.orch.Teardown(conn, nil)
		return nil, fmt.Errorf("accept: poller: %w", err)
	}

	b.logger.Debug(conn.LogFields(), "Accepted connection")
	return conn, nil
}

// Stop removes the server's dispatch entries and releases the listening
// socket if it is still tracked. It is safe to call more than once.
func (b *Base) Stop() {
	if b.stopped {
		return
	}
	b.stopped = true

	b.orch.UnregisterIf(orchestrator.ProtocolKey(b.protocol), b.handler)
	b.orch.UnregisterAliasIf(orchestrator.TransportKey(b.conn.Transport), orchestrator.ProtocolKey(b.protocol))
	if b.IsListener(b.conn.Socket) {
		b.orch.Teardown(b.conn, nil)
	} else {
		b.orch.Forget(b.conn)
	}

	b.logger.Info(map[string]any{
		"protocol": b.protocol.String(),
		"address":  b.Addr().String(),
	}, "Server stopped")
}
