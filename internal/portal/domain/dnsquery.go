package domain

// RRType is a DNS resource record type.
type RRType uint16

// RRType constants for the types a captive client commonly asks for.
const (
	RRTypeA     RRType = 1
	RRTypeNS    RRType = 2
	RRTypeCNAME RRType = 5
	RRTypeSOA   RRType = 6
	RRTypePTR   RRType = 12
	RRTypeMX    RRType = 15
	RRTypeTXT   RRType = 16
	RRTypeAAAA  RRType = 28
	RRTypeSRV   RRType = 33
	RRTypeHTTPS RRType = 65
	RRTypeANY   RRType = 255
)

// String returns the mnemonic for known types.
func (t RRType) String() string {
	switch t {
	case RRTypeA:
		return "A"
	case RRTypeNS:
		return "NS"
	case RRTypeCNAME:
		return "CNAME"
	case RRTypeSOA:
		return "SOA"
	case RRTypePTR:
		return "PTR"
	case RRTypeMX:
		return "MX"
	case RRTypeTXT:
		return "TXT"
	case RRTypeAAAA:
		return "AAAA"
	case RRTypeSRV:
		return "SRV"
	case RRTypeHTTPS:
		return "HTTPS"
	case RRTypeANY:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}

// RRClass represents a DNS class (usually IN for Internet).
type RRClass uint16

const (
	RRClassIN  RRClass = 1
	RRClassCH  RRClass = 3
	RRClassHS  RRClass = 4
	RRClassANY RRClass = 255
)

// IsValid returns true if the RRClass is one a query may carry.
func (c RRClass) IsValid() bool {
	switch c {
	case RRClassIN, RRClassCH, RRClassHS, RRClassANY:
		return true
	default:
		return false
	}
}

// DNSQuery is the part of an inbound DNS query the responder needs.
type DNSQuery struct {
	ID   uint16
	Name string // dotted, with trailing dot
	Type RRType
	// Class of the first question.
	Class RRClass
	// Question holds the raw bytes of the first question section entry,
	// echoed byte-for-byte in the answer.
	Question []byte
}
