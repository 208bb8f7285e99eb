package orchestrator

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

type keyKind uint8

const (
	kindConnection keyKind = iota + 1
	kindProtocol
	kindTransport
)

// Key addresses one entry of the dispatch table.
type Key struct {
	kind      keyKind
	conn      uuid.UUID
	protocol  domain.Protocol
	transport domain.Transport
}

// ConnectionKey addresses a handler for one specific connection.
func ConnectionKey(conn *domain.Connection) Key {
	return Key{kind: kindConnection, conn: conn.ID}
}

// ProtocolKey addresses the handler for every connection of a protocol.
func ProtocolKey(p domain.Protocol) Key {
	return Key{kind: kindProtocol, protocol: p}
}

// TransportKey addresses the fallback for every connection of a transport.
func TransportKey(t domain.Transport) Key {
	return Key{kind: kindTransport, transport: t}
}

func (k Key) valid() bool {
	switch k.kind {
	case kindConnection:
		return k.conn != uuid.Nil
	case kindProtocol:
		return k.protocol.IsValid()
	case kindTransport:
		return k.transport.IsValid()
	default:
		return false
	}
}

func (k Key) String() string {
	switch k.kind {
	case kindConnection:
		return "conn:" + k.conn.String()
	case kindProtocol:
		return "protocol:" + k.protocol.String()
	case kindTransport:
		return "transport:" + k.transport.String()
	default:
		return fmt.Sprintf("key(%d)", k.kind)
	}
}

// Target is what a Key resolves to: a handler, or another key.
type Target struct {
	handler Handler
	alias   Key
	isAlias bool
}

// HandlerTarget resolves directly to h.
func HandlerTarget(h Handler) Target {
	return Target{handler: h}
}

// AliasTarget resolves by looking up k instead.
func AliasTarget(k Key) Target {
	return Target{alias: k, isAlias: true}
}
