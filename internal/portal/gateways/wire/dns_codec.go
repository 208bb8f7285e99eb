// Package wire provides encoding and decoding of the portal's wire formats:
// DNS queries and answers over UDP (RFC 1035) and HTTP/1.1 request heads.
package wire

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"slices"
	"strings"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

const (
	headerLen = 12
	maxName   = 255

	flagQR       = 0x8000
	answerFlags  = 0x8180 // QR, RD, RA, RCODE 0
	answerTTL    = 60
	namePtrQName = 0xC00C // pointer to the name at offset 12
)

var (
	ErrShortMessage      = errors.New("message shorter than DNS header")
	ErrNotQuery          = errors.New("message is a response, not a query")
	ErrNoQuestion        = errors.New("query has no question")
	ErrMultipleQuestions = errors.New("query has more than one question")
	ErrCompressedName    = errors.New("compression pointer in query name")
	ErrLabelOverrun      = errors.New("label length out of bounds")
	ErrNameTooLong       = errors.New("query name exceeds 255 bytes")
	ErrTruncatedQuestion = errors.New("question section truncated")
	ErrNotIPv4           = errors.New("answer address is not IPv4")
)

// udpCodec implements DNSCodec for standard DNS over UDP messages.
type udpCodec struct {
	logger log.Logger
}

var _ DNSCodec = (*udpCodec)(nil)

// NewUDPCodec creates and returns a new instance of udpCodec using the provided logger.
func NewUDPCodec(logger log.Logger) *udpCodec {
	return &udpCodec{
		logger: logger,
	}
}

// DecodeQuery parses the header and the single question of a DNS query.
// The raw question bytes are kept so the answer can echo them exactly.
func (c *udpCodec) DecodeQuery(data []byte) (domain.DNSQuery, error) {
	if len(data) < headerLen {
		return domain.DNSQuery{}, ErrShortMessage
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	if flags&flagQR != 0 {
		return domain.DNSQuery{}, ErrNotQuery
	}
	switch binary.BigEndian.Uint16(data[4:6]) {
	case 0:
		return domain.DNSQuery{}, ErrNoQuestion
	case 1:
	default:
		return domain.DNSQuery{}, ErrMultipleQuestions
	}

	name, end, err := walkLabels(data, headerLen)
	if err != nil {
		return domain.DNSQuery{}, err
	}
	if end+4 > len(data) {
		return domain.DNSQuery{}, ErrTruncatedQuestion
	}

	id := binary.BigEndian.Uint16(data[0:2])
	qtype := domain.RRType(binary.BigEndian.Uint16(data[end : end+2]))
	qclass := domain.RRClass(binary.BigEndian.Uint16(data[end+2 : end+4]))

	c.logger.Debug(map[string]any{
		"query_id": id,
		"name":     name,
		"type":     qtype.String(),
	}, "Decoded DNS query")

	return domain.DNSQuery{
		ID:       id,
		Name:     name,
		Type:     qtype,
		Class:    qclass,
		Question: slices.Clone(data[headerLen : end+4]),
	}, nil
}

// walkLabels reads length-prefixed labels from offset to the zero
// terminator and returns the dotted name and the offset just past it.
func walkLabels(data []byte, offset int) (string, int, error) {
	var b strings.Builder
	for {
		if offset >= len(data) {
			return "", 0, ErrLabelOverrun
		}
		length := int(data[offset])
		if length == 0 {
			offset++
			break
		}
		if length&0xC0 != 0 {
			return "", 0, ErrCompressedName
		}
		offset++
		if offset+length > len(data) {
			return "", 0, ErrLabelOverrun
		}
		b.Write(data[offset : offset+length])
		b.WriteByte('.')
		if b.Len() > maxName {
			return "", 0, ErrNameTooLong
		}
		offset += length
	}
	if b.Len() == 0 {
		return ".", offset, nil
	}
	return b.String(), offset, nil
}

// EncodeAnswer builds the response to q: same ID and question, one A
// record pointing at ip.
func (c *udpCodec) EncodeAnswer(q domain.DNSQuery, ip netip.Addr) ([]byte, error) {
	if !ip.Is4() {
		return nil, ErrNotIPv4
	}
	buf := make([]byte, 0, headerLen+len(q.Question)+16)

	// Header
	buf = binary.BigEndian.AppendUint16(buf, q.ID)
	buf = binary.BigEndian.AppendUint16(buf, answerFlags)
	buf = binary.BigEndian.AppendUint16(buf, 1) // QDCOUNT
	buf = binary.BigEndian.AppendUint16(buf, 1) // ANCOUNT
	buf = binary.BigEndian.AppendUint16(buf, 0) // NSCOUNT
	buf = binary.BigEndian.AppendUint16(buf, 0) // ARCOUNT

	buf = append(buf, q.Question...)

	// Answer
	addr := ip.As4()
	buf = binary.BigEndian.AppendUint16(buf, namePtrQName)
	buf = binary.BigEndian.AppendUint16(buf, uint16(domain.RRTypeA))
	buf = binary.BigEndian.AppendUint16(buf, uint16(domain.RRClassIN))
	buf = binary.BigEndian.AppendUint32(buf, answerTTL)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(addr)))
	buf = append(buf, addr[:]...)

	return buf, nil
}
