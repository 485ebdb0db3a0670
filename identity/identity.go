// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package identity provides the address type used to identify callers,
// recipients, and collaborators throughout coffer.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AddressLength is the size of an address in bytes
const AddressLength = 20

var ErrInvalidAddressLength = errors.New("invalid address length")

// Address is a fixed-size participant identity
type Address [AddressLength]byte

// ZeroAddress is the all-zeroes address
var ZeroAddress = Address{}

// NewAddress creates an Address from a byte slice
func NewAddress(data []byte) (Address, error) {
	if len(data) != AddressLength {
		return Address{}, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidAddressLength,
			AddressLength,
			len(data),
		)
	}
	var addr Address
	copy(addr[:], data)
	return addr, nil
}

// ParseAddress decodes a hex-encoded address, with or without a 0x prefix
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("malformed address %q: %w", s, err)
	}
	return NewAddress(data)
}

// AddressFromSeed derives a deterministic address from an arbitrary seed
// string. This is used for development-mode identities and tests.
func AddressFromSeed(seed string) Address {
	sum := blake2b.Sum256([]byte(seed))
	var addr Address
	copy(addr[:], sum[:AddressLength])
	return addr
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address bytes
func (a Address) Bytes() []byte {
	ret := make([]byte, AddressLength)
	copy(ret, a[:])
	return ret
}

// IsZero returns true for the all-zeroes address
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// IsReserved returns true for addresses in the reserved low-value range
// (numeric value 0x00 through 0xff). These overlap with well-known
// precompile-style addresses on ledger hosts and are excluded from
// participating in any flow. The zero address is part of this range.
func (a Address) IsReserved() bool {
	for _, b := range a[:AddressLength-1] {
		if b != 0 {
			return false
		}
	}
	return true
}
