package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/models"
)

// createNodeHandler handles POST /api/v1/nodes.
func (s *Server) createNodeHandler(c echo.Context) error {
	var node models.Node
	if err := c.Bind(&node); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := s.repo.CreateNode(c.Request().Context(), &node)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// getNodeHandler handles GET /api/v1/nodes/:id.
func (s *Server) getNodeHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	node, err := s.repo.GetNode(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, node)
}

// listNodesHandler handles GET /api/v1/nodes. Filters: kind, status, and any
// number of meta.<key>=<value> pairs matched by metadata equality.
func (s *Server) listNodesHandler(c echo.Context) error {
	filter := &models.NodeFilter{
		Kind:   models.NodeKind(c.QueryParam("kind")),
		Status: models.NodeStatus(c.QueryParam("status")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown node kind: "+string(filter.Kind))
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown node status: "+string(filter.Status))
	}
	for key, values := range c.Request().URL.Query() {
		if k, ok := strings.CutPrefix(key, "meta."); ok && len(values) > 0 {
			if filter.Metadata == nil {
				filter.Metadata = make(map[string]string)
			}
			filter.Metadata[k] = values[0]
		}
	}

	nodes, err := s.repo.QueryNodes(c.Request().Context(), filter)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	if nodes == nil {
		nodes = []*models.Node{}
	}
	return c.JSON(http.StatusOK, nodes)
}

// updateNodeHandler handles PATCH /api/v1/nodes/:id.
func (s *Server) updateNodeHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	var update models.NodeUpdate
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	node, err := s.repo.UpdateNode(c.Request().Context(), id, &update)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, node)
}

// deleteNodeHandler handles DELETE /api/v1/nodes/:id. Incident edges are
// removed with the node.
func (s *Server) deleteNodeHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node id is required")
	}
	if err := s.repo.DeleteNode(c.Request().Context(), id); err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// createEdgeHandler handles POST /api/v1/edges.
func (s *Server) createEdgeHandler(c echo.Context) error {
	var edge models.Edge
	if err := c.Bind(&edge); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := s.repo.CreateEdge(c.Request().Context(), &edge)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// listEdgesHandler handles GET /api/v1/edges. Filters: kind, source_id, target_id.
func (s *Server) listEdgesHandler(c echo.Context) error {
	filter := &models.EdgeFilter{
		Kind:     models.EdgeKind(c.QueryParam("kind")),
		SourceID: c.QueryParam("source_id"),
		TargetID: c.QueryParam("target_id"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown edge kind: "+string(filter.Kind))
	}
	edges, err := s.repo.QueryEdges(c.Request().Context(), filter)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	if edges == nil {
		edges = []*models.Edge{}
	}
	return c.JSON(http.StatusOK, edges)
}

// deleteEdgeHandler handles DELETE /api/v1/edges/:id.
func (s *Server) deleteEdgeHandler(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "edge id is required")
	}
	if err := s.repo.DeleteEdge(c.Request().Context(), id); err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CyclesResponse is the payload of GET /api/v1/graph/cycles.
type CyclesResponse struct {
	Cycles []models.CircularDependency `json:"cycles"`
}

// cyclesHandler handles GET /api/v1/graph/cycles.
func (s *Server) cyclesHandler(c echo.Context) error {
	resolver, err := graph.NewDependencyResolverFromRepo(c.Request().Context(), s.repo)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	cycles := resolver.DetectCycles()
	if cycles == nil {
		cycles = []models.CircularDependency{}
	}
	return c.JSON(http.StatusOK, &CyclesResponse{Cycles: cycles})
}

// TopologyResponse is the payload of GET /api/v1/graph/topology.
type TopologyResponse struct {
	Order     []string   `json:"order"`
	Layers    [][]string `json:"layers,omitempty"`
	Stranded  []string   `json:"stranded,omitempty"`
	IsAcyclic bool       `json:"is_acyclic"`
}

// topologyHandler handles GET /api/v1/graph/topology. ?layered=true returns
// the parallelizable layers instead of the flat order.
func (s *Server) topologyHandler(c echo.Context) error {
	resolver, err := graph.NewDependencyResolverFromRepo(c.Request().Context(), s.repo)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}

	if c.QueryParam("layered") == "true" {
		layered := resolver.LayeredSort()
		resp := &TopologyResponse{
			Layers:    layered.Layers,
			Stranded:  layered.Stranded,
			IsAcyclic: layered.IsAcyclic,
		}
		for _, layer := range layered.Layers {
			resp.Order = append(resp.Order, layer...)
		}
		return c.JSON(http.StatusOK, resp)
	}

	result := resolver.KahnSort()
	return c.JSON(http.StatusOK, &TopologyResponse{
		Order:     result.Order,
		Stranded:  result.Stranded,
		IsAcyclic: result.IsAcyclic,
	})
}

// impactHandler handles GET /api/v1/graph/impact?node_ids=a,b.
func (s *Server) impactHandler(c echo.Context) error {
	raw := c.QueryParam("node_ids")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "node_ids is required")
	}
	ids := strings.Split(raw, ",")

	snap, err := s.repo.Snapshot(c.Request().Context(), nil, nil)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	return c.JSON(http.StatusOK, graph.AnalyzeImpact(snap, ids))
}
