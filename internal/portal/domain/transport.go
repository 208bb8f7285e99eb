package domain

// Transport is the socket flavour a protocol runs over.
type Transport uint8

const (
	TransportUDP Transport = iota + 1 // datagram sockets
	TransportTCP                      // stream sockets
)

// IsValid returns true if the Transport is one of the supported transports.
func (t Transport) IsValid() bool {
	switch t {
	case TransportUDP, TransportTCP:
		return true
	default:
		return false
	}
}

// IsStream reports whether the transport is connection oriented.
func (t Transport) IsStream() bool {
	return t == TransportTCP
}

// String returns the textual representation of the Transport.
func (t Transport) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	default:
		return "unknown"
	}
}
