// Package stream publishes committed ledger events over WebSocket.
//
// The wire protocol is JSON-RPC 2.0 shaped: a client sends ledgerSubscribe
// with an optional Filter and receives a subscription id, then one
// ledgerNotification per matching event. ledgerUnsubscribe ends a
// subscription.
package stream

import (
	"encoding/json"

	"token-ledger/internal/domain"
)

// Method names.
const (
	MethodSubscribe    = "ledgerSubscribe"
	MethodUnsubscribe  = "ledgerUnsubscribe"
	MethodNotification = "ledgerNotification"
)

// Filter selects events for a subscription. A zero Filter matches everything.
type Filter struct {
	// Principal restricts events to those where it is sender or recipient.
	Principal *domain.Principal `json:"principal,omitempty"`
	// Kinds restricts events to the listed kinds.
	Kinds []domain.EventKind `json:"kinds,omitempty"`
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *domain.Event) bool {
	if f.Principal != nil && e.Sender != *f.Principal && e.Recipient != *f.Principal {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

type wsRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64         `json:"subscription"`
	Result       *domain.Event `json:"result"`
}

// JSON-RPC error codes.
const (
	errCodeParse          = -32700
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
)
