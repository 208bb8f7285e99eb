package dnsd

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif/netiftest"
	"github.com/haukened/rr-portal/internal/portal/gateways/wire"
	"github.com/haukened/rr-portal/internal/portal/services/orchestrator"
)

var (
	bindAddr = netip.MustParseAddrPort("0.0.0.0:53")
	portalIP = netip.MustParseAddr("192.168.4.1")
	client   = netip.MustParseAddrPort("192.168.4.23:33333")
)

// MockDNSCodec implements wire.DNSCodec for testing.
type MockDNSCodec struct {
	mock.Mock
}

func (m *MockDNSCodec) DecodeQuery(data []byte) (domain.DNSQuery, error) {
	args := m.Called(data)
	return args.Get(0).(domain.DNSQuery), args.Error(1)
}

func (m *MockDNSCodec) EncodeAnswer(q domain.DNSQuery, ip netip.Addr) ([]byte, error) {
	args := m.Called(q, ip)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func setup(t *testing.T, codec wire.DNSCodec) (*Responder, *orchestrator.Orchestrator, *netiftest.Network) {
	t.Helper()
	n := netiftest.New()
	o := orchestrator.New(n, n, domain.DefaultBindings(), log.NewNoopLogger())
	r, err := Listen(o, bindAddr, portalIP, codec, log.NewNoopLogger())
	require.NoError(t, err)
	return r, o, n
}

func query(t *testing.T, id uint16, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	m.Id = id
	b, err := m.Pack()
	require.NoError(t, err)
	return b
}

func TestListen_RejectsIPv6Answer(t *testing.T) {
	n := netiftest.New()
	o := orchestrator.New(n, n, domain.DefaultBindings(), log.NewNoopLogger())
	_, err := Listen(o, bindAddr, netip.MustParseAddr("fe80::1"), wire.NewUDPCodec(log.NewNoopLogger()), log.NewNoopLogger())
	assert.ErrorIs(t, err, wire.ErrNotIPv4)
}

func TestResponder_AnswersEveryName(t *testing.T) {
	r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket

	names := []string{"example.com.", "connectivitycheck.gstatic.com.", "captive.apple.com."}
	for i, name := range names {
		n.Inject(sock, client, query(t, uint16(100+i), name))
	}

	_, err := o.Pump(0)
	require.NoError(t, err)

	sent := n.Sent(sock)
	require.Len(t, sent, len(names))
	for i, d := range sent {
		assert.Equal(t, client, d.Peer)
		var m dns.Msg
		require.NoError(t, m.Unpack(d.Payload))
		assert.Equal(t, uint16(100+i), m.Id)
		assert.Equal(t, names[i], m.Question[0].Name)
		require.Len(t, m.Answer, 1)
		assert.Equal(t, "192.168.4.1", m.Answer[0].(*dns.A).A.String())
	}
	assert.Equal(t, Stats{Answered: 3}, r.Stats())
}

func TestResponder_MalformedDropped(t *testing.T) {
	r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket

	n.Inject(sock, client, []byte{0x01, 0x02, 0x03})
	n.Inject(sock, client, query(t, 7, "ok.example."))

	_, err := o.Pump(0)
	require.NoError(t, err)

	require.Len(t, n.Sent(sock), 1, "the bad datagram is dropped, the good one answered")
	assert.False(t, n.IsClosed(sock))
	_, tracked := o.Lookup(sock)
	assert.True(t, tracked)
	assert.Equal(t, Stats{Answered: 1, Dropped: 1}, r.Stats())
}

func TestResponder_CodecErrors(t *testing.T) {
	codec := &MockDNSCodec{}
	r, o, n := setup(t, codec)
	sock := r.base.Conn().Socket

	q := domain.DNSQuery{ID: 1, Name: "x."}
	codec.On("DecodeQuery", mock.Anything).Return(q, nil)
	codec.On("EncodeAnswer", q, portalIP).Return(nil, errors.New("encode failed"))

	n.Inject(sock, client, []byte("anything"))
	_, err := o.Pump(0)
	require.NoError(t, err)

	assert.Empty(t, n.Sent(sock))
	assert.Equal(t, uint64(1), r.Stats().Dropped)
	codec.AssertExpectations(t)
}

func TestResponder_SendFailureKeepsSocket(t *testing.T) {
	r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket
	n.FailWrites(sock, errors.New("network unreachable"))

	n.Inject(sock, client, query(t, 1, "a."))
	_, err := o.Pump(0)
	require.NoError(t, err)

	assert.False(t, n.IsClosed(sock))
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestResponder_BatchLimit(t *testing.T) {
	r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket
	for i := 0; i < maxBatch+2; i++ {
		n.Inject(sock, client, query(t, uint16(i), "a."))
	}

	_, _ = o.Pump(0)
	assert.Len(t, n.Sent(sock), maxBatch)
	_, _ = o.Pump(0)
	assert.Len(t, n.Sent(sock), maxBatch+2)
}

func TestResponder_FaultEventKeepsSocket(t *testing.T) {
	r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket
	n.Fault(sock)

	assert.False(t, o.Dispatch(sock, domain.EventError))
	assert.False(t, n.IsClosed(sock))
}

func TestResponder_PendingErrorClearedByRead(t *testing.T) {
	r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket
	n.PendingError(sock, errors.New("connection refused"))

	ready, err := o.Pump(0)
	require.NoError(t, err)
	assert.Equal(t, 1, ready)

	ready, err = o.Pump(0)
	require.NoError(t, err)
	assert.Equal(t, 0, ready, "error condition does not repeat")
	assert.False(t, n.IsClosed(sock))

	n.Inject(sock, client, query(t, 9, "a."))
	_, err = o.Pump(0)
	require.NoError(t, err)
	assert.Len(t, n.Sent(sock), 1)
}

func TestResponder_UnusableSocketStops(t *testing.T) {
	tests := []struct {
		name      string
		breakSock func(n *netiftest.Network, sock domain.Socket)
	}{
		{name: "hangup", breakSock: func(n *netiftest.Network, sock domain.Socket) { n.Hangup(sock) }},
		{name: "invalid", breakSock: func(n *netiftest.Network, sock domain.Socket) { _ = n.Close(sock) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, o, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
			sock := r.base.Conn().Socket
			tt.breakSock(n, sock)

			_, err := o.Pump(0)
			require.NoError(t, err)
			assert.True(t, n.IsClosed(sock))
			assert.NotContains(t, n.Registered(), sock)
			_, tracked := o.Lookup(sock)
			assert.False(t, tracked)

			ready, err := o.Pump(0)
			require.NoError(t, err)
			assert.Equal(t, 0, ready)
		})
	}
}

func TestResponder_Stop(t *testing.T) {
	r, _, n := setup(t, wire.NewUDPCodec(log.NewNoopLogger()))
	sock := r.base.Conn().Socket
	assert.Equal(t, bindAddr, r.Addr())

	r.Stop()
	assert.True(t, n.IsClosed(sock))
}
