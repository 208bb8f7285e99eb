package domain

import (
	"errors"
	"strings"
)

var (
	ErrMissingSSID     = errors.New("missing SSID")
	ErrSSIDTooLong     = errors.New("SSID longer than 32 bytes")
	ErrPasswordTooLong = errors.New("password longer than 64 bytes")
)

// Network is a saved set of Wi-Fi credentials.
type Network struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// NewNetwork trims the SSID and validates lengths in bytes.
func NewNetwork(ssid, password string) (Network, error) {
	n := Network{SSID: strings.TrimSpace(ssid), Password: password}
	if err := n.Validate(); err != nil {
		return Network{}, err
	}
	return n, nil
}

// Validate checks the length constraints of an 802.11 SSID and WPA passphrase.
func (n Network) Validate() error {
	switch {
	case n.SSID == "":
		return ErrMissingSSID
	case len(n.SSID) > 32:
		return ErrSSIDTooLong
	case len(n.Password) > 64:
		return ErrPasswordTooLong
	}
	return nil
}
