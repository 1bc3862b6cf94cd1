package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/agent"
	"github.com/specforge/specforge/pkg/approval"
	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/mutation"
)

// ErrorResponse is the structured error payload. No stack traces or internal
// detail cross this boundary.
type ErrorResponse struct {
	Status           string   `json:"status"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

func failedResponse(messages ...string) *ErrorResponse {
	return &ErrorResponse{Status: "failed", ValidationErrors: messages}
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses with the
// structured error payload.
func writeDomainError(c echo.Context, logger *slog.Logger, err error) error {
	switch {
	case graph.IsValidationError(err):
		return c.JSON(http.StatusBadRequest, failedResponse(err.Error()))
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, mutation.ErrProposalNotFound):
		return c.JSON(http.StatusNotFound, failedResponse(err.Error()))
	case errors.Is(err, graph.ErrDuplicateID):
		return c.JSON(http.StatusConflict, failedResponse(err.Error()))
	case errors.Is(err, graph.ErrDanglingEdge):
		return c.JSON(http.StatusBadRequest, failedResponse(err.Error()))
	case graph.IsDependencyError(err):
		return c.JSON(http.StatusConflict, failedResponse(err.Error()))
	case mutation.IsConflictError(err), mutation.IsTransitionError(err):
		return c.JSON(http.StatusConflict, failedResponse(err.Error()))
	case approval.IsApprovalError(err):
		return c.JSON(http.StatusBadRequest, failedResponse(err.Error()))
	case agent.IsAgentTimeout(err):
		return c.JSON(http.StatusGatewayTimeout, failedResponse("agent analysis timed out"))
	}

	logger.Error("Unexpected error on HTTP boundary", "error", err)
	return c.JSON(http.StatusInternalServerError, failedResponse("internal server error"))
}
