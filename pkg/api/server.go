// Package api is the HTTP and WebSocket surface: REST routes for the spec
// graph, proposals, search, and approvals, plus the live-channel upgrade
// endpoint.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/approval"
	"github.com/specforge/specforge/pkg/channels"
	"github.com/specforge/specforge/pkg/database"
	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/metrics"
	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/orchestrator"
	"github.com/specforge/specforge/pkg/semantic"
	"github.com/specforge/specforge/pkg/specsource"
)

// Config holds the server's own settings, decoupled from the global config.
type Config struct {
	// AuthToken is required as ?token= on WebSocket upgrades. Empty disables
	// the check (local development).
	AuthToken string

	// AllowedWSOrigins restricts browser WebSocket upgrades. Empty allows
	// any origin (non-browser clients send none).
	AllowedWSOrigins []string

	// MaxTraversalDepth caps graph traversal endpoints.
	MaxTraversalDepth int
}

// Server wires the domain components behind the HTTP surface.
type Server struct {
	cfg        Config
	repo       graph.Repository
	index      *semantic.Index
	orch       *orchestrator.Orchestrator
	approvals  *approval.Manager
	hub        *channels.Hub
	metrics    *metrics.Metrics
	dbClient   *database.Client // nil when running on in-memory stores
	specSource *specsource.Service
	logger     *slog.Logger

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the server and registers all routes. dbClient may be nil.
func NewServer(cfg Config, repo graph.Repository, index *semantic.Index,
	orch *orchestrator.Orchestrator, approvals *approval.Manager,
	hub *channels.Hub, m *metrics.Metrics, dbClient *database.Client,
	logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		repo:       repo,
		index:      index,
		orch:       orch,
		approvals:  approvals,
		hub:        hub,
		metrics:    m,
		dbClient:   dbClient,
		specSource: specsource.NewService(specsource.Config{}),
		logger:     logger,
	}
	s.echo = s.buildRouter()
	s.wireInboundEvents()
	return s
}

// SetSpecSource replaces the default source document resolver. Call before
// Start.
func (s *Server) SetSpecSource(svc *specsource.Service) {
	if svc != nil {
		s.specSource = svc
	}
}

func (s *Server) buildRouter() *echo.Echo {
	e := echo.New()
	e.Use(requestLogger(s.logger))
	e.Use(securityHeaders())

	e.GET("/healthz", s.healthHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := e.Group("/api/v1")

	v1.POST("/nodes", s.createNodeHandler)
	v1.GET("/nodes", s.listNodesHandler)
	v1.GET("/nodes/:id", s.getNodeHandler)
	v1.PATCH("/nodes/:id", s.updateNodeHandler)
	v1.DELETE("/nodes/:id", s.deleteNodeHandler)
	v1.GET("/nodes/:id/source", s.nodeSourceHandler)
	v1.GET("/sources", s.listSourcesHandler)

	v1.POST("/edges", s.createEdgeHandler)
	v1.GET("/edges", s.listEdgesHandler)
	v1.DELETE("/edges/:id", s.deleteEdgeHandler)

	v1.GET("/search", s.searchHandler)
	v1.GET("/graph/cycles", s.cyclesHandler)
	v1.GET("/graph/topology", s.topologyHandler)
	v1.GET("/graph/impact", s.impactHandler)

	v1.POST("/proposals", s.proposeHandler)
	v1.GET("/proposals", s.listProposalsHandler)
	v1.GET("/proposals/:id", s.getProposalHandler)
	v1.POST("/proposals/:id/cancel", s.cancelProposalHandler)
	v1.POST("/proposals/:id/conflict-check", s.conflictCheckHandler)

	v1.POST("/approvals/:id/respond", s.respondApprovalHandler)

	e.GET("/ws/:user_id/:client_type", s.wsHandler)
	return e
}

// wireInboundEvents routes live-channel frames into the approval manager.
// approval:response over the socket is equivalent to the REST respond path.
func (s *Server) wireInboundEvents() {
	if s.hub == nil || s.approvals == nil {
		return
	}
	s.hub.On("approval:response", func(ctx context.Context, sess *channels.Session, data json.RawMessage) {
		var resp models.ApprovalResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			s.logger.Warn("Malformed approval response frame",
				"user_id", sess.UserID, "error", err)
			return
		}
		if resp.UserID == "" {
			resp.UserID = sess.UserID
		}
		if err := s.approvals.Respond(ctx, &resp); err != nil {
			s.logger.Warn("Approval response not accepted",
				"request_id", resp.RequestID, "user_id", sess.UserID, "error", err)
		}
	})
}

// ServeHTTP makes the server usable directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the HTTP server and closes live channels.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close("server shutting down")
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
