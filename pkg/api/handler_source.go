package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// SourceResponse is the payload of GET /api/v1/nodes/:id/source.
type SourceResponse struct {
	NodeID     string `json:"node_id"`
	SpecSource string `json:"spec_source,omitempty"`
	Content    string `json:"content"`
}

// nodeSourceHandler handles GET /api/v1/nodes/:id/source. Resolves the node's
// external source document; nodes without a spec_source URL resolve to their
// inline content.
func (s *Server) nodeSourceHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	node, err := s.repo.GetNode(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}

	content, err := s.specSource.Resolve(c.Request().Context(), node)
	if err != nil {
		s.logger.Warn("Source document resolution failed",
			"node_id", id, "spec_source", node.SpecSource, "error", err)
		return c.JSON(http.StatusBadGateway, failedResponse(err.Error()))
	}
	return c.JSON(http.StatusOK, &SourceResponse{
		NodeID:     node.ID,
		SpecSource: node.SpecSource,
		Content:    content,
	})
}

// SourceListResponse is the payload of GET /api/v1/sources.
type SourceListResponse struct {
	Documents []string `json:"documents"`
}

// listSourcesHandler handles GET /api/v1/sources: the markdown documents of
// the configured spec repository. Empty when no repository is configured.
func (s *Server) listSourcesHandler(c echo.Context) error {
	docs, err := s.specSource.ListDocuments(c.Request().Context())
	if err != nil {
		s.logger.Warn("Source document listing failed", "error", err)
		return c.JSON(http.StatusBadGateway, failedResponse(err.Error()))
	}
	return c.JSON(http.StatusOK, &SourceListResponse{Documents: docs})
}
