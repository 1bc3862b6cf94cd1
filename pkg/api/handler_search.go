package api

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/models"
)

const defaultSearchLimit = 10

// searchHandler handles GET /api/v1/search?q=...&k=...&meta.<key>=<value>.
func (s *Server) searchHandler(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	k := defaultSearchLimit
	if v := c.QueryParam("k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be an integer in [1,100]")
		}
		k = parsed
	}

	var filters map[string]string
	for key, values := range c.Request().URL.Query() {
		if fk, ok := strings.CutPrefix(key, "meta."); ok && len(values) > 0 {
			if filters == nil {
				filters = make(map[string]string)
			}
			filters[fk] = values[0]
		}
	}

	nodes, err := s.index.Search(c.Request().Context(), query, k, filters)
	if err != nil {
		return writeDomainError(c, s.logger, err)
	}
	if nodes == nil {
		nodes = []*models.Node{}
	}
	return c.JSON(http.StatusOK, nodes)
}
