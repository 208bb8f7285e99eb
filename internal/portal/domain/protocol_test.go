package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	tests := []struct {
		name   string
		t      Transport
		valid  bool
		stream bool
		str    string
	}{
		{name: "udp", t: TransportUDP, valid: true, stream: false, str: "udp"},
		{name: "tcp", t: TransportTCP, valid: true, stream: true, str: "tcp"},
		{name: "zero", t: 0, valid: false, stream: false, str: "unknown"},
		{name: "out of range", t: 9, valid: false, stream: false, str: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.t.IsValid())
			assert.Equal(t, tt.stream, tt.t.IsStream())
			assert.Equal(t, tt.str, tt.t.String())
		})
	}
}

func TestProtocol(t *testing.T) {
	assert.Equal(t, "dns", ProtocolDNS.String())
	assert.Equal(t, "http", ProtocolHTTP.String())
	assert.Equal(t, "websocket", ProtocolWebSocket.String())
	assert.Equal(t, "unknown", Protocol(0).String())
	assert.True(t, ProtocolWebSocket.IsValid())
	assert.False(t, Protocol(42).IsValid())
}

func TestDefaultBindings(t *testing.T) {
	b := DefaultBindings()

	tests := []struct {
		p    Protocol
		want Transport
	}{
		{ProtocolDNS, TransportUDP},
		{ProtocolHTTP, TransportTCP},
		{ProtocolWebSocket, TransportTCP},
	}
	for _, tt := range tests {
		got, ok := b.TransportOf(tt.p)
		require.True(t, ok, tt.p.String())
		assert.Equal(t, tt.want, got, tt.p.String())
	}
}

func TestBindings_Bind(t *testing.T) {
	b := NewBindings()

	_, ok := b.TransportOf(ProtocolDNS)
	assert.False(t, ok)

	require.NoError(t, b.Bind(ProtocolDNS, TransportUDP))
	require.NoError(t, b.Bind(ProtocolDNS, TransportUDP), "same binding twice is fine")

	err := b.Bind(ProtocolDNS, TransportTCP)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingBinding)

	got, _ := b.TransportOf(ProtocolDNS)
	assert.Equal(t, TransportUDP, got, "failed bind leaves the original")

	assert.Error(t, b.Bind(0, TransportUDP))
	assert.Error(t, b.Bind(ProtocolHTTP, 0))
}
