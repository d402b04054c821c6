package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventops/auth-gateway/internal/api/response"
	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

type AdminHandler struct {
	logs ports.SecurityLogService
}

func NewAdminHandler(logs ports.SecurityLogService) *AdminHandler {
	return &AdminHandler{logs: logs}
}

type securityLogsResponse struct {
	Entries []*domain.SecurityLogEntry `json:"entries"`
	Count   int                        `json:"count"`
}

// SecurityLogs lists recent security log entries, newest first.
//
// @Summary      Security log
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        userId    query     string  false  "Filter by user id"
// @Param        activity  query     string  false  "Filter by activity type"
// @Param        since     query     string  false  "RFC3339 lower bound"
// @Param        limit     query     int     false  "Max entries (default 100, max 500)"
// @Success      200       {object}  response.Envelope{data=securityLogsResponse}
// @Failure      400       {object}  response.Envelope
// @Failure      403       {object}  response.Envelope
// @Router       /admin/security-logs [get]
func (h *AdminHandler) SecurityLogs(c echo.Context) error {
	filter := domain.SecurityLogFilter{
		UserID:   c.QueryParam("userId"),
		Activity: domain.Activity(c.QueryParam("activity")),
	}

	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.NewValidationError("since", "since must be an RFC3339 timestamp")
		}
		filter.Since = since
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.NewValidationError("limit", "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	entries, err := h.logs.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*domain.SecurityLogEntry{}
	}
	return response.OK(c, securityLogsResponse{Entries: entries, Count: len(entries)})
}
