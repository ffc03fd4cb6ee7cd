package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"token-ledger/internal/domain"
)

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(sequence|kind|sender|recipient|amount|token_uri)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	sequence uint64,
	kind domain.EventKind,
	sender domain.Principal,
	recipient domain.Principal,
	amount uint64,
	tokenURI string,
) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%d|%s",
		sequence,
		string(kind),
		sender.String(),
		recipient.String(),
		amount,
		tokenURI,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// EventID computes the id of an already-populated event.
func EventID(e *domain.Event) string {
	return ComputeEventID(e.Sequence, e.Kind, e.Sender, e.Recipient, e.Amount, e.TokenURI)
}
