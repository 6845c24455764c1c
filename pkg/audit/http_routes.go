package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/internal/httpserver"
)

type HttpHandler struct {
	logger *zap.Logger
	db     Database
}

func NewHttpHandler(logger *zap.Logger, db Database) *HttpHandler {
	return &HttpHandler{logger: logger.Named("audit"), db: db}
}

// Register exposes the read-only query endpoint. There is intentionally no
// write surface; entries are appended by the engine only.
func (h *HttpHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/audit", h.Query)
}

func (h *HttpHandler) Query(ctx echo.Context) error {
	var filter Filter

	for _, t := range httpserver.QueryArrayParam(ctx, "type") {
		filter.Types = append(filter.Types, EntryType(t))
	}

	if raw := ctx.QueryParam("taskId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
		}
		filter.TaskID = &id
	}

	if raw := ctx.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		filter.From = &t
	}
	if raw := ctx.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		filter.To = &t
	}

	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = limit
	}

	entries, err := h.db.Query(filter)
	if err != nil {
		h.logger.Error("audit query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query audit log")
	}

	return ctx.JSON(http.StatusOK, entries)
}
