package kv

import (
	"encoding/binary"
	"fmt"

	"token-ledger/internal/domain"
)

// Key prefixes. Each record type lives in its own keyspace.
const (
	PrefixState          = 1 // ledger scalars
	PrefixBalance        = 2 // principal -> balance
	PrefixEvent          = 3 // sequence -> event
	PrefixEventID        = 4 // event id -> sequence
	PrefixPrincipalEvent = 5 // principal, sequence -> nothing
)

// EncodeKey builds a key from a prefix and its segments. Integers are encoded
// big-endian so that iteration order matches numeric order.
func EncodeKey(prefix uint8, segments ...interface{}) []byte {
	key := []byte{prefix}
	for _, segment := range segments {
		switch s := segment.(type) {
		case uint64:
			val := make([]byte, 8)
			binary.BigEndian.PutUint64(val, s)
			key = append(key, val...)
		case domain.Principal:
			key = append(key, s[:]...)
		case string:
			key = append(key, s...)
		default:
			panic(fmt.Sprintf("unknown type (%T)", segment))
		}
	}
	return key
}
