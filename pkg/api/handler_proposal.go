package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/models"
)

// ProposeRequest is the body of POST /api/v1/proposals.
type ProposeRequest struct {
	SpecID          string                 `json:"spec_id"`
	UserID          string                 `json:"user_id"`
	OperationType   models.OperationType   `json:"operation_type"`
	CurrentVersion  string                 `json:"current_version,omitempty"`
	ProposedChanges *models.ProposedChange `json:"proposed_changes"`
	Reasoning       string                 `json:"reasoning,omitempty"`
	Confidence      float64                `json:"confidence,omitempty"`
}

// proposeHandler handles POST /api/v1/proposals. Analysis runs asynchronously;
// the accepted proposal is returned immediately and the outcome arrives as a
// mutation:result live event.
func (s *Server) proposeHandler(c echo.Context) error {
	var req ProposeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.OperationType.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown operation_type: "+string(req.OperationType))
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if req.ProposedChanges == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "proposed_changes is required")
	}

	proposal := &models.MutationProposal{
		SpecID:          req.SpecID,
		UserID:          req.UserID,
		OperationType:   req.OperationType,
		CurrentVersion:  req.CurrentVersion,
		ProposedChanges: req.ProposedChanges,
		Reasoning:       req.Reasoning,
		Confidence:      req.Confidence,
	}
	accepted, err := s.orch.ProposeMutation(c.Request().Context(), proposal)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// getProposalHandler handles GET /api/v1/proposals/:id.
func (s *Server) getProposalHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "proposal id is required")
	}
	p, err := s.orch.GetProposal(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, p)
}

// listProposalsHandler handles GET /api/v1/proposals. Filters: spec_id,
// user_id, status, limit.
func (s *Server) listProposalsHandler(c echo.Context) error {
	filter := &models.ProposalFilter{
		SpecID: c.QueryParam("spec_id"),
		UserID: c.QueryParam("user_id"),
		Status: models.ProposalStatus(c.QueryParam("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status: "+string(filter.Status))
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	proposals, err := s.orch.ListProposals(c.Request().Context(), filter)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	if proposals == nil {
		proposals = []*models.MutationProposal{}
	}
	return c.JSON(http.StatusOK, proposals)
}

// cancelProposalHandler handles POST /api/v1/proposals/:id/cancel.
func (s *Server) cancelProposalHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "proposal id is required")
	}
	p, err := s.orch.CancelProposal(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, p)
}

// conflictCheckHandler handles POST /api/v1/proposals/:id/conflict-check.
// Runs an on-demand conflict analysis against the current graph state.
func (s *Server) conflictCheckHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "proposal id is required")
	}
	verdict, err := s.orch.RunConflictCheck(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, verdict)
}
