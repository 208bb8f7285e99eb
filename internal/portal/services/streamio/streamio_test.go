package streamio

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif/netiftest"
)

func setup(t *testing.T, opts Options) (*Manager, *netiftest.Network, domain.Socket) {
	t.Helper()
	n := netiftest.New()
	ln, err := n.Listen(netip.MustParseAddrPort("0.0.0.0:80"), domain.TransportTCP)
	require.NoError(t, err)
	n.Connect(ln, netip.MustParseAddrPort("10.0.0.2:5000"))
	sock, _, err := n.Accept(ln)
	require.NoError(t, err)
	require.NoError(t, n.Register(sock, domain.EventReadable))

	m := New(n, n, log.NewNoopLogger(), opts)
	m.Attach(sock)
	return m, n, sock
}

func TestNew_Defaults(t *testing.T) {
	m := New(netiftest.New(), netiftest.New(), log.NewNoopLogger(), Options{})
	assert.Equal(t, DefaultMSS, m.mss)
	assert.Len(t, m.scratch, DefaultReadSize)
}

func TestRead_Accumulates(t *testing.T) {
	m, n, sock := setup(t, Options{ReadSize: 4})

	data, ok := m.Read(sock)
	assert.True(t, ok, "would-block is not an error")
	assert.Empty(t, data)

	n.Feed(sock, []byte("GET / HTTP/1.1"))
	data, ok = m.Read(sock)
	require.True(t, ok)
	assert.Equal(t, "GET ", string(data))

	data, _ = m.Read(sock)
	assert.Equal(t, "GET / HT", string(data))
	assert.Equal(t, "GET / HT", string(m.Buffered(sock)))

	m.Consume(sock, 4)
	assert.Equal(t, "/ HT", string(m.Buffered(sock)))
	m.Consume(sock, 100)
	assert.Empty(t, m.Buffered(sock))

	n.Feed(sock, []byte("junk"))
	m.Read(sock)
	m.Discard(sock)
	assert.Empty(t, m.Buffered(sock))
}

func TestRead_PeerCloseEnds(t *testing.T) {
	m, n, sock := setup(t, Options{})
	n.Shutdown(sock)

	data, ok := m.Read(sock)
	assert.False(t, ok)
	assert.Nil(t, data)
	assert.False(t, m.Live(sock))
	assert.True(t, n.IsClosed(sock))
	_, registered := n.Interest(sock)
	assert.False(t, registered)
}

func TestRead_ErrorEnds(t *testing.T) {
	m, n, sock := setup(t, Options{})
	n.FailReads(sock, errors.New("connection reset"))

	_, ok := m.Read(sock)
	assert.False(t, ok)
	assert.True(t, n.IsClosed(sock))
}

func TestRead_Unattached(t *testing.T) {
	m, _, _ := setup(t, Options{})
	_, ok := m.Read(99)
	assert.False(t, ok)
	assert.Nil(t, m.Buffered(99))
}

func TestPrepare_SwitchesInterest(t *testing.T) {
	m, n, sock := setup(t, Options{})

	require.NoError(t, m.Prepare(sock, []byte("head"), []byte("body")))
	assert.Equal(t, 1, m.Pending(sock))
	ev, _ := n.Interest(sock)
	assert.Equal(t, domain.EventWritable, ev)

	assert.True(t, m.Write(sock))
	assert.Equal(t, "headbody", string(n.Wire(sock)))
	assert.Equal(t, 0, m.Pending(sock))
	ev, _ = n.Interest(sock)
	assert.Equal(t, domain.EventReadable, ev)
}

func TestPrepare_Unattached(t *testing.T) {
	m, _, _ := setup(t, Options{})
	assert.ErrorIs(t, m.Prepare(99, []byte("x")), ErrNotAttached)
}

func TestWrite_ChunksAtMSS(t *testing.T) {
	m, n, sock := setup(t, Options{MSS: 10})
	body := bytes.Repeat([]byte("0123456789"), 5)
	body = append(body, "tail"...)

	require.NoError(t, m.Prepare(sock, body))
	assert.True(t, m.Write(sock))
	assert.Equal(t, body, n.Wire(sock))
	assert.Equal(t, 6, n.Writes(sock), "five full chunks plus the tail")
}

func TestWrite_PartialWritesAreByteExact(t *testing.T) {
	tests := []struct {
		name  string
		mss   int
		limit int
	}{
		{name: "limit below mss", mss: 8, limit: 3},
		{name: "limit equals mss", mss: 8, limit: 8},
		{name: "single byte", mss: 536, limit: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, n, sock := setup(t, Options{MSS: tt.mss})
			n.SetWriteLimit(sock, tt.limit)

			p1 := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
			p2 := []byte("second payload")
			require.NoError(t, m.Prepare(sock, p1))
			require.NoError(t, m.Prepare(sock, p2))

			done := false
			for i := 0; i < 1000 && !done; i++ {
				done = m.Write(sock)
			}
			require.True(t, done)
			assert.Equal(t, append(append([]byte(nil), p1...), p2...), n.Wire(sock))
		})
	}
}

func TestWrite_WouldBlockKeepsState(t *testing.T) {
	m, n, sock := setup(t, Options{MSS: 4})
	require.NoError(t, m.Prepare(sock, []byte("abcdefgh")))

	n.BlockWrites(sock, true)
	assert.False(t, m.Write(sock))
	assert.Empty(t, n.Wire(sock))
	assert.Equal(t, 1, m.Pending(sock))

	n.BlockWrites(sock, false)
	assert.True(t, m.Write(sock))
	assert.Equal(t, "abcdefgh", string(n.Wire(sock)))
}

func TestWrite_ErrorDropsFrontPayload(t *testing.T) {
	m, n, sock := setup(t, Options{})
	require.NoError(t, m.Prepare(sock, []byte("one")))
	require.NoError(t, m.Prepare(sock, []byte("two")))

	n.FailWrites(sock, errors.New("broken pipe"))
	assert.True(t, m.Write(sock))
	assert.Equal(t, 1, m.Pending(sock))
}

func TestWrite_EmptyPayload(t *testing.T) {
	m, n, sock := setup(t, Options{})
	require.NoError(t, m.Prepare(sock))
	assert.True(t, m.Write(sock))
	assert.Empty(t, n.Wire(sock))
	assert.True(t, m.Write(99), "unattached sockets have nothing pending")
}

func TestEnd_Idempotent(t *testing.T) {
	m, n, sock := setup(t, Options{})

	m.End(sock)
	m.End(sock)

	assert.False(t, m.Live(sock))
	assert.Equal(t, 1, n.CloseCount(sock))
	assert.Empty(t, n.Registered())
}
