package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/coreplane/coreplane/pkg/observability"
	"github.com/coreplane/coreplane/pkg/store"
)

// ErrUnknownChannel is returned when no OAuth configuration exists for
// the requested channel.
var ErrUnknownChannel = errors.New("connection: unknown channel")

// ConnectionStore is the slice of the persistence layer the orchestrator
// needs.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, conn *store.Connection) error
	GetConnectionByID(ctx context.Context, id string) (*store.Connection, error)
	UpdateConnection(ctx context.Context, conn *store.Connection) error
	ListStaleConnections(ctx context.Context, cutoff time.Time) ([]store.Connection, error)
}

// ConfirmConnectionRequest drives the code_received -> active transition
// with the channel-specific identifiers returned by the provider.
type ConfirmConnectionRequest struct {
	CompanyID          string            `json:"companyId"`
	ConnectionID       string            `json:"connectionId"`
	PhoneNumberID      string            `json:"phoneNumberId"`
	DisplayPhoneNumber string            `json:"displayPhoneNumber"`
	WabaID             string            `json:"wabaId,omitempty"`
	Meta               map[string]string `json:"meta,omitempty"`
}

// InitiateResult is returned to the client starting a connection flow.
type InitiateResult struct {
	Connection *store.Connection `json:"connection"`
	AuthURL    string            `json:"authUrl"`
}

// Orchestrator manages connection lifecycles. Token exchange with the
// provider happens elsewhere; the orchestrator only builds the
// authorization URL, guards state transitions and tracks the single-use
// OAuth state tokens.
type Orchestrator struct {
	store   ConnectionStore
	states  StateStore
	oauth   map[string]*oauth2.Config
	log     *logrus.Logger
	metrics *observability.Metrics
}

// NewOrchestrator creates an orchestrator. oauthConfigs maps channel name
// to its provider configuration. metrics may be nil.
func NewOrchestrator(s ConnectionStore, states StateStore, oauthConfigs map[string]*oauth2.Config,
	log *logrus.Logger, metrics *observability.Metrics) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	return &Orchestrator{
		store:   s,
		states:  states,
		oauth:   oauthConfigs,
		log:     log,
		metrics: metrics,
	}
}

// Initiate creates a pending connection for (company, channel), registers
// a fresh single-use state token and returns the provider authorization
// URL carrying it. A company may hold several connections on the same
// channel; each flow gets its own connection record.
func (o *Orchestrator) Initiate(ctx context.Context, companyID, channel, displayName string) (*InitiateResult, error) {
	oauthConfig, ok := o.oauth[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	conn := &store.Connection{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		Channel:     channel,
		Status:      store.ConnectionPending,
		VerifyToken: uuid.NewString(),
		DisplayName: displayName,
	}
	if err := o.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	state := uuid.NewString()
	if err := o.states.Set(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to register oauth state: %w", err)
	}

	o.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"company_id":    companyID,
		"channel":       channel,
	}).Info("connection flow initiated")

	return &InitiateResult{
		Connection: conn,
		AuthURL:    oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline),
	}, nil
}

// HandleCallback processes the provider redirect for a connection.
// A consumed, unexpired state moves the connection to code_received; an
// invalid or replayed state, or a provider-reported error, moves it to
// error_oauth and the failure is returned to the caller.
func (o *Orchestrator) HandleCallback(ctx context.Context, connectionID, state, providerError string) (*store.Connection, error) {
	conn, err := o.store.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	valid, err := o.states.ConsumeIfValid(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	if !valid || providerError != "" {
		if err := o.transition(ctx, conn, store.ConnectionErrorOAuth); err != nil {
			return nil, err
		}
		if providerError != "" {
			return conn, fmt.Errorf("connection: provider error: %s", providerError)
		}
		return conn, fmt.Errorf("connection: invalid or expired oauth state")
	}

	if err := o.transition(ctx, conn, store.ConnectionCodeReceived); err != nil {
		return nil, err
	}
	return conn, nil
}

// Confirm completes a flow: code_received -> active with the channel
// identifiers from the provider. The connection must belong to the
// requesting company.
func (o *Orchestrator) Confirm(ctx context.Context, req ConfirmConnectionRequest) (*store.Connection, error) {
	conn, err := o.store.GetConnectionByID(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.CompanyID != req.CompanyID {
		return nil, store.ErrNotFound
	}

	if !CanTransition(conn.Status, store.ConnectionActive) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conn.Status, store.ConnectionActive)
	}

	conn.PhoneNumberID = req.PhoneNumberID
	conn.DisplayPhoneNumber = req.DisplayPhoneNumber
	conn.ConnectionRefID = req.WabaID
	if pageID, ok := req.Meta["pageId"]; ok {
		conn.PageID = pageID
	}

	if err := o.transition(ctx, conn, store.ConnectionActive); err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"company_id":    conn.CompanyID,
		"channel":       conn.Channel,
	}).Info("connection activated")

	return conn, nil
}

// Fail moves a connection to one of the error states, for
// channel-side failures reported after the OAuth leg succeeded.
func (o *Orchestrator) Fail(ctx context.Context, connectionID string, to store.ConnectionStatus) (*store.Connection, error) {
	if to != store.ConnectionErrorOAuth && to != store.ConnectionErrorChannel {
		return nil, fmt.Errorf("%w: %s is not an error state", ErrInvalidTransition, to)
	}

	conn, err := o.store.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if err := o.transition(ctx, conn, to); err != nil {
		return nil, err
	}
	return conn, nil
}

// ExpireStale moves connections stuck in pending or code_received for
// longer than maxAge to error_oauth. Run periodically; abandoned flows
// otherwise linger forever since reconnection starts a new record.
func (o *Orchestrator) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := o.store.ListStaleConnections(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale connections: %w", err)
	}

	expired := 0
	for i := range stale {
		conn := &stale[i]
		if err := o.transition(ctx, conn, store.ConnectionErrorOAuth); err != nil {
			o.log.WithError(err).WithField("connection_id", conn.ID).Warn("failed to expire stale connection")
			continue
		}
		expired++
		if o.metrics != nil {
			o.metrics.StaleConnectionsExpired.Inc()
		}
	}

	if expired > 0 {
		o.log.WithField("count", expired).Info("expired stale connection flows")
	}
	return expired, nil
}

// transition applies the state machine and persists the result.
func (o *Orchestrator) transition(ctx context.Context, conn *store.Connection, to store.ConnectionStatus) error {
	from := conn.Status
	if err := Transition(conn, to); err != nil {
		return err
	}
	if err := o.store.UpdateConnection(ctx, conn); err != nil {
		conn.Status = from
		return fmt.Errorf("failed to persist transition: %w", err)
	}
	if o.metrics != nil {
		o.metrics.ConnectionTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	}
	return nil
}
