// Package connection orchestrates channel-connection lifecycles: the
// OAuth-driven linkage of a company to an external messaging channel
// (WhatsApp, Instagram) and the state machine that guards it.
package connection

import (
	"errors"
	"fmt"

	"github.com/coreplane/coreplane/pkg/store"
)

// ErrInvalidTransition is returned for any state change outside the
// transition table. Callers see the failure; it is never swallowed.
var ErrInvalidTransition = errors.New("connection: invalid transition")

// Channel identifiers.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
)

// transitions is the complete lifecycle:
//
//	pending       -> code_received | error_oauth
//	code_received -> active | error_oauth | error_channel
//
// active and error_* are terminal. Reconnecting creates a new flow
// rather than reusing the record.
var transitions = map[store.ConnectionStatus][]store.ConnectionStatus{
	store.ConnectionPending: {
		store.ConnectionCodeReceived,
		store.ConnectionErrorOAuth,
	},
	store.ConnectionCodeReceived: {
		store.ConnectionActive,
		store.ConnectionErrorOAuth,
		store.ConnectionErrorChannel,
	},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to store.ConnectionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves conn to the target status, or fails with
// ErrInvalidTransition.
func Transition(conn *store.Connection, to store.ConnectionStatus) error {
	if !CanTransition(conn.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conn.Status, to)
	}
	conn.Status = to
	return nil
}
