package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/database"
	"github.com/specforge/specforge/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is one component's health in the /healthz response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the payload of GET /healthz.
type HealthResponse struct {
	Status           string                 `json:"status"`
	Version          string                 `json:"version"`
	ActiveSessions   int                    `json:"active_sessions"`
	PendingApprovals int                    `json:"pending_approvals"`
	Checks           map[string]HealthCheck `json:"checks"`
}

// healthHandler handles GET /healthz. Only the process's own components are
// checked; the external model service is excluded so its outages do not
// restart this process.
func (s *Server) healthHandler(c echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.dbClient != nil {
		if _, err := database.Health(reqCtx, s.dbClient.DB()); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy, Message: "in-memory stores"}
	}

	resp := &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	}
	if s.hub != nil {
		resp.ActiveSessions = s.hub.ActiveSessions()
	}
	if s.approvals != nil {
		resp.PendingApprovals = s.approvals.PendingCount()
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, resp)
}
