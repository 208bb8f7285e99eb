// Package dnsd answers every DNS query, whatever its type, with an A record
// for the portal's own address so that clients resolve any hostname to the
// provisioning UI.
package dnsd

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
	"github.com/haukened/rr-portal/internal/portal/gateways/wire"
	"github.com/haukened/rr-portal/internal/portal/services/orchestrator"
	"github.com/haukened/rr-portal/internal/portal/services/server"
)

const (
	maxDatagram = 1024
	// maxBatch bounds how many queued datagrams one readiness event drains.
	maxBatch = 8
)

// Stats counts datagrams handled since start.
type Stats struct {
	Answered uint64
	Dropped  uint64
}

// Responder is the DNS side of the captive portal. It keeps no state
// between datagrams.
type Responder struct {
	base   *server.Base
	nif    netif.Interface
	codec  wire.DNSCodec
	ip     netip.Addr
	logger log.Logger
	buf    []byte
	stats  Stats
}

var _ orchestrator.Handler = (*Responder)(nil)

// Listen binds the responder to addr. Every answer carries ip.
func Listen(orch *orchestrator.Orchestrator, addr netip.AddrPort, ip netip.Addr, codec wire.DNSCodec, logger log.Logger) (*Responder, error) {
	if !ip.Is4() {
		return nil, fmt.Errorf("dns responder: portal address %s: %w", ip, wire.ErrNotIPv4)
	}
	r := &Responder{
		nif:    orch.Net(),
		codec:  codec,
		ip:     ip,
		logger: logger,
		buf:    make([]byte, maxDatagram),
	}
	base, err := server.Listen(orch, domain.ProtocolDNS, addr, r, logger)
	if err != nil {
		return nil, err
	}
	r.base = base
	return r, nil
}

// Handle drains queued datagrams on the listening socket. Bad datagrams
// never end the responder; a socket reported invalid or hung up does.
func (r *Responder) Handle(conn *domain.Connection, ev domain.Event) (bool, error) {
	if ev.Has(domain.EventInvalid) || ev.Has(domain.EventHangup) {
		fields := conn.LogFields()
		fields["events"] = ev.String()
		r.logger.Error(fields, "DNS socket is no longer usable, stopping responder")
		r.Stop()
		return false, nil
	}
	// A pending socket error is returned, and cleared, by the next read.
	if !ev.Has(domain.EventReadable) && !ev.Has(domain.EventError) {
		return false, nil
	}
	for i := 0; i < maxBatch; i++ {
		if !r.serveOne(conn.Socket) {
			break
		}
	}
	return false, nil
}

// serveOne answers one datagram. It returns false once the socket has
// nothing more to read.
func (r *Responder) serveOne(sock domain.Socket) bool {
	n, client, err := r.nif.RecvFrom(sock, r.buf)
	if errors.Is(err, netif.ErrWouldBlock) {
		return false
	}
	if err != nil {
		r.logger.Warn(map[string]any{
			"error": err,
			"errno": netif.Classify(err),
		}, "Failed to read DNS datagram")
		return false
	}

	query, err := r.codec.DecodeQuery(r.buf[:n])
	if err != nil {
		r.stats.Dropped++
		r.logger.Warn(map[string]any{
			"client": client.String(),
			"error":  err,
			"size":   n,
		}, "Failed to decode DNS query")
		return true
	}

	answer, err := r.codec.EncodeAnswer(query, r.ip)
	if err != nil {
		r.stats.Dropped++
		r.logger.Error(map[string]any{
			"client":   client.String(),
			"query_id": query.ID,
			"error":    err,
		}, "Failed to encode DNS answer")
		return true
	}

	if _, err := r.nif.SendTo(sock, answer, client); err != nil {
		r.stats.Dropped++
		r.logger.Warn(map[string]any{
			"client":   client.String(),
			"query_id": query.ID,
			"error":    err,
			"errno":    netif.Classify(err),
		}, "Failed to send DNS answer")
		return true
	}

	r.stats.Answered++
	r.logger.Debug(map[string]any{
		"client":   client.String(),
		"query_id": query.ID,
		"name":     query.Name,
		"type":     query.Type.String(),
		"answer":   r.ip.String(),
	}, "Answered DNS query")
	return true
}

// Addr returns the bound address.
func (r *Responder) Addr() netip.AddrPort { return r.base.Addr() }

// Stats returns the responder's counters.
func (r *Responder) Stats() Stats { return r.stats }

// Stop releases the listening socket.
func (r *Responder) Stop() { r.base.Stop() }
