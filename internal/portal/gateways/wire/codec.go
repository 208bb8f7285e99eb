package wire

import (
	"net/netip"

	"github.com/haukened/rr-portal/internal/portal/domain"
)

// DNSCodec converts between DNS wire format and the responder's domain types.
type DNSCodec interface {
	DecodeQuery(data []byte) (domain.DNSQuery, error)
	EncodeAnswer(q domain.DNSQuery, ip netip.Addr) ([]byte, error)
}
