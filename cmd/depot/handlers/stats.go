package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/backhaul-io/backhaul/cmd/depot/service"
	"github.com/backhaul-io/backhaul/common/bootstrap"
)

// StatsHandler serves retention statistics
type StatsHandler struct {
	components *bootstrap.Components
	store      *service.Store
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(components *bootstrap.Components, store *service.Store) *StatsHandler {
	return &StatsHandler{
		components: components,
		store:      store,
	}
}

// Get returns stats for one stream, or all streams when no stream
// query parameter is given
// GET /stats?stream=<name>
func (h *StatsHandler) Get(c echo.Context) error {
	stream := c.QueryParam("stream")

	stats, err := h.store.Stats(stream)
	if err != nil {
		if errors.Is(err, service.ErrUnknownStream) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		h.components.Logger.Error("failed to compute stats", "stream", stream, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute stats")
	}

	return c.JSON(http.StatusOK, stats)
}
