package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/models"
)

// RespondApprovalRequest is the body of POST /api/v1/approvals/:id/respond.
// This is the REST fallback for clients without a live channel; the decision
// semantics are identical to the approval:response frame.
type RespondApprovalRequest struct {
	UserID          string                  `json:"user_id"`
	Decision        models.ApprovalDecision `json:"decision"`
	ModifiedContent *models.ProposedChange  `json:"modified_content,omitempty"`
	Reason          string                  `json:"reason,omitempty"`
}

// respondApprovalHandler handles POST /api/v1/approvals/:id/respond.
func (s *Server) respondApprovalHandler(c echo.Context) error {
	requestID := c.PathParam("id")
	if requestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "approval request id is required")
	}
	var req RespondApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp := &models.ApprovalResponse{
		RequestID:       requestID,
		UserID:          req.UserID,
		Decision:        req.Decision,
		ModifiedContent: req.ModifiedContent,
		Reason:          req.Reason,
	}
	if err := s.approvals.Respond(c.Request().Context(), resp); err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}
