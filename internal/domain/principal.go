package domain

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PrincipalSize is the length of a principal key in bytes.
const PrincipalSize = 32

// subAccountMarker is appended to sub-account derivation seeds.
const subAccountMarker = "LedgerSubAccount"

// ErrInvalidPrincipal is returned when a principal cannot be decoded.
var ErrInvalidPrincipal = errors.New("invalid principal")

// Principal identifies an account: an external wallet key or a derived sub-account.
// It is a value type; equal keys are the same account.
type Principal [PrincipalSize]byte

// ParsePrincipal decodes a base58 principal.
func ParsePrincipal(s string) (Principal, error) {
	var p Principal
	raw, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(raw) != PrincipalSize {
		return p, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrincipal, PrincipalSize, len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

// MustParsePrincipal is ParsePrincipal that panics on error. Intended for constants and tests.
func MustParsePrincipal(s string) Principal {
	p, err := ParsePrincipal(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PrincipalFromBytes copies a 32-byte key into a Principal.
func PrincipalFromBytes(b []byte) (Principal, error) {
	var p Principal
	if len(b) != PrincipalSize {
		return p, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrincipal, PrincipalSize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// String returns the base58 form.
func (p Principal) String() string {
	return base58.Encode(p[:])
}

// Bytes returns a copy of the raw key.
func (p Principal) Bytes() []byte {
	out := make([]byte, PrincipalSize)
	copy(out, p[:])
	return out
}

// IsZero reports whether p is the all-zero principal.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// Compare orders principals by their raw bytes.
func (p Principal) Compare(other Principal) int {
	return bytes.Compare(p[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := ParsePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DeriveSubAccount derives the principal of a named sub-account owned by owner.
//
// Derivation: SHA256(owner | name | bump | "LedgerSubAccount"), walking bump down
// from 255 and keeping the first hash that is off the ed25519 curve, so that no
// wallet key can ever sign for a sub-account.
func DeriveSubAccount(owner Principal, name string) (Principal, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, PrincipalSize+len(name)+1+len(subAccountMarker))
		data = append(data, owner[:]...)
		data = append(data, []byte(name)...)
		data = append(data, bump)
		data = append(data, []byte(subAccountMarker)...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return Principal(hash), nil
		}
	}
	return Principal{}, fmt.Errorf("no off-curve sub-account for %q", name)
}

// IsSubAccount reports whether p could not be a wallet key.
func (p Principal) IsSubAccount() bool {
	return !isOnCurve(p[:])
}

func isOnCurve(point []byte) bool {
	if len(point) != PrincipalSize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
