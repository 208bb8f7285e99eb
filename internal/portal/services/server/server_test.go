package server

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif/netiftest"
	"github.com/haukened/rr-portal/internal/portal/services/orchestrator"
)

type nopHandler struct{}

func (nopHandler) Handle(*domain.Connection, domain.Event) (bool, error) { return false, nil }

var httpAddr = netip.MustParseAddrPort("192.168.4.1:80")

func newOrch() (*orchestrator.Orchestrator, *netiftest.Network) {
	n := netiftest.New()
	return orchestrator.New(n, n, domain.DefaultBindings(), log.NewNoopLogger()), n
}

func TestListen_WiresOrchestrator(t *testing.T) {
	o, n := newOrch()
	h := &nopHandler{}

	b, err := Listen(o, domain.ProtocolHTTP, httpAddr, h, log.NewNoopLogger())
	require.NoError(t, err)

	conn := b.Conn()
	assert.True(t, conn.Listening)
	assert.Equal(t, domain.TransportTCP, conn.Transport)
	assert.Equal(t, domain.ProtocolHTTP, b.Protocol())
	assert.Equal(t, httpAddr, b.Addr())
	assert.True(t, b.IsListener(conn.Socket))

	ev, ok := n.Interest(conn.Socket)
	require.True(t, ok)
	assert.Equal(t, domain.EventReadable, ev)

	got, err := o.Resolve(conn)
	require.NoError(t, err)
	assert.Same(t, h, got)

	// An unclaimed TCP connection falls back to the HTTP handler.
	orphan := domain.NewConnection(99, domain.TransportTCP)
	got, err = o.Resolve(orphan)
	require.NoError(t, err)
	assert.Same(t, h, got)
}

func TestListen_Errors(t *testing.T) {
	o, _ := newOrch()

	_, err := Listen(o, domain.ProtocolWebSocket, httpAddr, &nopHandler{}, log.NewNoopLogger())
	require.NoError(t, err)

	_, err = Listen(o, domain.ProtocolHTTP, httpAddr, &nopHandler{}, log.NewNoopLogger())
	assert.ErrorIs(t, err, netiftest.ErrAddrInUse)

	empty := orchestrator.New(netiftest.New(), netiftest.New(), domain.NewBindings(), log.NewNoopLogger())
	_, err = Listen(empty, domain.ProtocolDNS, httpAddr, &nopHandler{}, log.NewNoopLogger())
	assert.ErrorIs(t, err, ErrUnboundProtocol)
}

func TestAccept(t *testing.T) {
	o, n := newOrch()
	b, err := Listen(o, domain.ProtocolHTTP, httpAddr, &nopHandler{}, log.NewNoopLogger())
	require.NoError(t, err)

	conn, err := b.Accept()
	assert.NoError(t, err)
	assert.Nil(t, conn, "nothing pending")

	peer := netip.MustParseAddrPort("192.168.4.50:61000")
	sock := n.Connect(b.Conn().Socket, peer)

	conn, err = b.Accept()
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, sock, conn.Socket)
	assert.Equal(t, peer, conn.Peer)
	assert.Equal(t, domain.ProtocolHTTP, conn.Protocol)
	assert.False(t, conn.Listening)

	tracked, ok := o.Lookup(sock)
	require.True(t, ok)
	assert.Equal(t, conn.ID, tracked.ID)
	_, ok = n.Interest(sock)
	assert.True(t, ok)
}

func TestStop(t *testing.T) {
	o, n := newOrch()
	h := &nopHandler{}
	b, err := Listen(o, domain.ProtocolDNS, netip.MustParseAddrPort("192.168.4.1:53"), h, log.NewNoopLogger())
	require.NoError(t, err)
	sock := b.Conn().Socket

	b.Stop()
	b.Stop()

	assert.Equal(t, 1, n.CloseCount(sock))
	_, ok := o.Lookup(sock)
	assert.False(t, ok)
	_, err = o.Resolve(domain.NewConnection(7, domain.TransportUDP))
	assert.ErrorIs(t, err, orchestrator.ErrNoHandler)
}

func TestStop_AfterOrchestratorClose(t *testing.T) {
	o, n := newOrch()
	b, err := Listen(o, domain.ProtocolDNS, netip.MustParseAddrPort("192.168.4.1:53"), &nopHandler{}, log.NewNoopLogger())
	require.NoError(t, err)
	sock := b.Conn().Socket

	o.Close()
	b.Stop()

	assert.Equal(t, 1, n.CloseCount(sock))
}
