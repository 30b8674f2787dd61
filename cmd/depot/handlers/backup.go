package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/backhaul-io/backhaul/cmd/depot/service"
	"github.com/backhaul-io/backhaul/common/bootstrap"
)

// BackupHandler handles artifact ingest
type BackupHandler struct {
	components *bootstrap.Components
	store      *service.Store
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(components *bootstrap.Components, store *service.Store) *BackupHandler {
	return &BackupHandler{
		components: components,
		store:      store,
	}
}

// Receive accepts one backup artifact as a multipart upload
// POST /backup
func (h *BackupHandler) Receive(c echo.Context) error {
	stream := c.FormValue("stream")
	if stream == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "stream field is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file part is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.components.Logger.Error("failed to open uploaded file", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read upload")
	}
	defer src.Close()

	result, err := h.store.Ingest(c.Request().Context(), stream, fileHeader.Filename, src)
	if err != nil {
		if errors.Is(err, service.ErrUnknownStream) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.components.Logger.Error("ingest failed",
			"stream", stream,
			"filename", fileHeader.Filename,
			"error", err,
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save backup")
	}

	h.components.Logger.Info("backup ingested",
		"stream", stream,
		"filename", fileHeader.Filename,
		"stored_bytes", result.StoredBytes,
		"evicted", result.Evicted,
	)

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "success",
		"message":  fmt.Sprintf("Backup received: %s", fileHeader.Filename),
		"stream":   stream,
		"filename": fileHeader.Filename,
	})
}
