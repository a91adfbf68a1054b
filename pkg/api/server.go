// Package api is the HTTP surface of the core service: access resolution
// endpoints, connection flow endpoints, role assignment, health and
// metrics. The hard logic lives in pkg/access and pkg/connection; this
// package is request plumbing.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP API server
type Server struct {
	router      *mux.Router
	access      *AccessHandlers
	connections *ConnectionHandlers
	log         *logrus.Logger
}

// NewServer creates the API server and wires all routes.
func NewServer(accessHandlers *AccessHandlers, connectionHandlers *ConnectionHandlers,
	registry *prometheus.Registry, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}

	s := &Server{
		router:      mux.NewRouter(),
		access:      accessHandlers,
		connections: connectionHandlers,
		log:         log,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/access/context", s.access.handleResolveContext).Methods("GET")
	v1.HandleFunc("/access/check", s.access.handleCheckAccess).Methods("POST")
	v1.HandleFunc("/access/modules", s.access.handleListModules).Methods("GET")

	// Role assignment mutates privileges; it is gated on a roles:assign
	// grant in the target company.
	pm := NewPermissionMiddleware(accessHandlers.resolver)
	v1.Handle("/companies/{companyId}/users/{userId}/roles",
		pm.RequirePermission("roles", "assign")(http.HandlerFunc(s.access.handleAssignRoles))).Methods("PUT")

	v1.HandleFunc("/connections", s.connections.handleInitiate).Methods("POST")
	v1.HandleFunc("/connections/{connectionId}/callback", s.connections.handleCallback).Methods("GET")
	v1.HandleFunc("/connections/{connectionId}/confirm", s.connections.handleConfirm).Methods("POST")
	v1.HandleFunc("/connections/{connectionId}", s.connections.handleGet).Methods("GET")

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
