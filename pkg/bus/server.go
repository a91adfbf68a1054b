package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/coreplane/coreplane/pkg/access"
	"github.com/coreplane/coreplane/pkg/observability"
	"github.com/coreplane/coreplane/pkg/store"
)

// AccessService is the resolver surface the bus exposes.
type AccessService interface {
	ResolveUserContext(ctx context.Context, token, companyID string) (*access.UserContext, error)
	CheckAccess(ctx context.Context, token, companyID, resource, action string) (*access.AccessDecision, error)
}

// ModuleLister lists the active feature modules.
type ModuleLister interface {
	ListActiveModules(ctx context.Context) ([]store.Module, error)
}

// Error codes carried in error replies.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeNotFound     = "NOT_FOUND"
	CodeUpstream     = "UPSTREAM"
	CodeInternal     = "INTERNAL"
)

type resolveContextRequest struct {
	Token     string `json:"token"`
	CompanyID string `json:"companyId"`
}

type checkAccessRequest struct {
	Token     string `json:"token"`
	CompanyID string `json:"companyId"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
}

type errorReply struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server subscribes the core operations on the bus.
type Server struct {
	conn    *nats.Conn
	access  AccessService
	modules ModuleLister
	queue   string
	log     *logrus.Logger
	metrics *observability.Metrics
	subs    []*nats.Subscription
}

// NewServer creates a bus server. queue defaults to DefaultQueueGroup.
func NewServer(conn *nats.Conn, accessService AccessService, modules ModuleLister,
	queue string, log *logrus.Logger, metrics *observability.Metrics) *Server {
	if queue == "" {
		queue = DefaultQueueGroup
	}
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		conn:    conn,
		access:  accessService,
		modules: modules,
		queue:   queue,
		log:     log,
		metrics: metrics,
	}
}

// Start subscribes every subject in the shared queue group.
func (s *Server) Start() error {
	handlers := map[string]func(context.Context, []byte) []byte{
		SubjectResolveUserContext: s.handleResolveUserContext,
		SubjectCheckAccess:        s.handleCheckAccess,
		SubjectResolveModules:     s.handleResolveModules,
	}

	for subject, handler := range handlers {
		sub, err := s.conn.QueueSubscribe(subject, s.queue, s.wrap(subject, handler))
		if err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.log.WithField("queue", s.queue).Info("bus server subscribed")
	return nil
}

// Stop drains all subscriptions.
func (s *Server) Stop() error {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			return fmt.Errorf("failed to drain %s: %w", sub.Subject, err)
		}
	}
	return nil
}

func (s *Server) wrap(subject string, handler func(context.Context, []byte) []byte) nats.MsgHandler {
	return func(msg *nats.Msg) {
		start := time.Now()
		reply := handler(context.Background(), msg.Data)

		status := "ok"
		var probe errorReply
		if json.Unmarshal(reply, &probe) == nil && probe.Error.Code != "" {
			status = probe.Error.Code
		}

		if s.metrics != nil {
			s.metrics.BusRequestsTotal.WithLabelValues(subject, status).Inc()
			s.metrics.BusRequestDuration.WithLabelValues(subject).Observe(time.Since(start).Seconds())
		}

		if err := msg.Respond(reply); err != nil {
			s.log.WithError(err).WithField("subject", subject).Warn("failed to respond")
		}
	}
}

func (s *Server) handleResolveUserContext(ctx context.Context, data []byte) []byte {
	var req resolveContextRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errReply(CodeBadRequest, "malformed request payload")
	}
	if req.Token == "" || req.CompanyID == "" {
		return errReply(CodeBadRequest, "token and companyId are required")
	}

	userContext, err := s.access.ResolveUserContext(ctx, req.Token, req.CompanyID)
	if err != nil {
		return errReplyFor(err)
	}
	return marshalReply(userContext)
}

func (s *Server) handleCheckAccess(ctx context.Context, data []byte) []byte {
	var req checkAccessRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errReply(CodeBadRequest, "malformed request payload")
	}
	if req.Token == "" || req.CompanyID == "" || req.Resource == "" || req.Action == "" {
		return errReply(CodeBadRequest, "token, companyId, resource and action are required")
	}

	decision, err := s.access.CheckAccess(ctx, req.Token, req.CompanyID, req.Resource, req.Action)
	if err != nil {
		return errReplyFor(err)
	}
	return marshalReply(decision)
}

func (s *Server) handleResolveModules(ctx context.Context, data []byte) []byte {
	modules, err := s.modules.ListActiveModules(ctx)
	if err != nil {
		return errReply(CodeUpstream, "failed to list modules")
	}
	if modules == nil {
		modules = []store.Module{}
	}
	return marshalReply(modules)
}

// errReplyFor maps the error taxonomy onto wire codes. Unauthorized is
// reported as-is and never downgraded to a deny; upstream failures stay
// visibly retryable.
func errReplyFor(err error) []byte {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return errReply(CodeUnauthorized, "unauthorized")
	case errors.Is(err, access.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return errReply(CodeNotFound, "not found")
	case errors.Is(err, access.ErrUpstream):
		return errReply(CodeUpstream, "upstream unavailable")
	default:
		return errReply(CodeInternal, "internal error")
	}
}

func errReply(code, message string) []byte {
	data, _ := json.Marshal(errorReply{Error: errorBody{Code: code, Message: message}})
	return data
}

func marshalReply(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return errReply(CodeInternal, "failed to encode reply")
	}
	return data
}
