package entities

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address20 is an EVM-style 20-byte address.
type Address20 [20]byte

// Address32 is an SS58-style 32-byte Substrate account id.
type Address32 [32]byte

// ParseAddress20 parses a "0x"-prefixed or bare hex string into an Address20.
func ParseAddress20(s string) (Address20, error) {
	var out Address20
	b, err := decodeHex(s, 20)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// ParseAddress32 parses a "0x"-prefixed or bare hex string into an Address32.
func ParseAddress32(s string) (Address32, error) {
	var out Address32
	b, err := decodeHex(s, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHex(s string, wantLen int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("address: invalid hex %q: %w", s, err)
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("address: want %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}

func (a Address20) String() string { return "0x" + hex.EncodeToString(a[:]) }
func (a Address32) String() string { return "0x" + hex.EncodeToString(a[:]) }

// AddressScheme distinguishes which of Address20/Address32 an Address holds.
type AddressScheme uint8

const (
	AddressSchemeAddress20 AddressScheme = iota
	AddressSchemeAddress32
)

// Address is the union Address20 | Address32: the former for EVM-compatible
// chains, the latter for SS58-encoded Substrate accounts.
type Address struct {
	Scheme AddressScheme
	A20    Address20
	A32    Address32
}

func NewAddress20(a Address20) Address { return Address{Scheme: AddressSchemeAddress20, A20: a} }
func NewAddress32(a Address32) Address { return Address{Scheme: AddressSchemeAddress32, A32: a} }

func (a Address) String() string {
	if a.Scheme == AddressSchemeAddress32 {
		return a.A32.String()
	}
	return a.A20.String()
}
