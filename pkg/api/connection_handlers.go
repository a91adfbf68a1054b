package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/coreplane/coreplane/pkg/connection"
	"github.com/coreplane/coreplane/pkg/store"
)

// ConnectionService is the orchestrator surface the HTTP handlers need.
type ConnectionService interface {
	Initiate(ctx context.Context, companyID, channel, displayName string) (*connection.InitiateResult, error)
	HandleCallback(ctx context.Context, connectionID, state, providerError string) (*store.Connection, error)
	Confirm(ctx context.Context, req connection.ConfirmConnectionRequest) (*store.Connection, error)
}

// ConnectionGetter reads a connection record.
type ConnectionGetter interface {
	GetConnectionByID(ctx context.Context, id string) (*store.Connection, error)
}

// ConnectionHandlers serves the channel-connection endpoints.
type ConnectionHandlers struct {
	service ConnectionService
	store   ConnectionGetter
	log     *logrus.Logger
}

// NewConnectionHandlers creates the connection endpoint handlers.
func NewConnectionHandlers(service ConnectionService, connStore ConnectionGetter, log *logrus.Logger) *ConnectionHandlers {
	if log == nil {
		log = logrus.New()
	}
	return &ConnectionHandlers{service: service, store: connStore, log: log}
}

type initiateBody struct {
	CompanyID   string `json:"companyId"`
	Channel     string `json:"channel"`
	DisplayName string `json:"displayName"`
}

// handleInitiate starts a connection flow. POST /v1/connections
func (h *ConnectionHandlers) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var body initiateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.CompanyID == "" || body.Channel == "" {
		writeError(w, http.StatusBadRequest, "companyId and channel are required")
		return
	}

	result, err := h.service.Initiate(r.Context(), body.CompanyID, body.Channel, body.DisplayName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleCallback processes the provider redirect.
// GET /v1/connections/{connectionId}/callback?state=...&error=...
func (h *ConnectionHandlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["connectionId"]
	state := r.URL.Query().Get("state")
	providerError := r.URL.Query().Get("error")

	conn, err := h.service.HandleCallback(r.Context(), connectionID, state, providerError)
	if err != nil {
		if conn != nil {
			// The connection moved to an error state; report the failed
			// flow with its final record rather than a bare error.
			writeJSON(w, http.StatusConflict, conn)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// handleConfirm completes a flow with the provider identifiers.
// POST /v1/connections/{connectionId}/confirm
func (h *ConnectionHandlers) handleConfirm(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["connectionId"]

	var req connection.ConfirmConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.ConnectionID = connectionID
	if req.CompanyID == "" || req.PhoneNumberID == "" {
		writeError(w, http.StatusBadRequest, "companyId and phoneNumberId are required")
		return
	}

	conn, err := h.service.Confirm(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// handleGet returns one connection. GET /v1/connections/{connectionId}
func (h *ConnectionHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	conn, err := h.store.GetConnectionByID(r.Context(), mux.Vars(r)["connectionId"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}
