// Package authn delegates bearer-token verification to the external
// authentication service over the message bus.
package authn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// TokenValidation is the authentication service's answer for one token.
type TokenValidation struct {
	Valid   bool   `json:"valid"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
}

// TokenValidator verifies a raw bearer token. A transport or upstream
// failure is returned as an error; an invalid token is a non-error
// TokenValidation with Valid=false.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*TokenValidation, error)
}

// busRequester is the slice of *nats.Conn the validator needs.
type busRequester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// BusValidator asks the authentication service over a request/reply
// subject. Every call is bounded by the configured timeout so a hung
// upstream surfaces as a failed resolution rather than a stuck request.
type BusValidator struct {
	conn    busRequester
	subject string
	timeout time.Duration
}

type validateRequest struct {
	Token string `json:"token"`
}

// NewBusValidator creates a validator speaking to the given subject.
func NewBusValidator(conn *nats.Conn, subject string, timeout time.Duration) *BusValidator {
	return newBusValidator(conn, subject, timeout)
}

func newBusValidator(conn busRequester, subject string, timeout time.Duration) *BusValidator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BusValidator{conn: conn, subject: subject, timeout: timeout}
}

// Validate sends the raw token to the authentication service and decodes
// its verdict.
func (v *BusValidator) Validate(ctx context.Context, token string) (*TokenValidation, error) {
	payload, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	msg, err := v.conn.RequestWithContext(ctx, v.subject, payload)
	if err != nil {
		return nil, fmt.Errorf("token validation request failed: %w", err)
	}

	var result TokenValidation
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode validation response: %w", err)
	}

	return &result, nil
}
