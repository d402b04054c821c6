// Package response renders the JSON envelope shared by every endpoint:
//
//	{"success": true,  "data": ..., "timestamp": ..., "requestId": ...}
//	{"success": false, "error": "<Code>", "message": ..., "details": ..., "timestamp": ..., "requestId": ...}
package response

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c echo.Context, data any) error {
	return JSON(c, http.StatusOK, data)
}

// Created writes a 201 success envelope.
func Created(c echo.Context, data any) error {
	return JSON(c, http.StatusCreated, data)
}

// JSON writes a success envelope with the given status.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: now(),
		RequestID: RequestID(c),
	})
}

// Error writes a failure envelope.
func Error(c echo.Context, status int, code, message string, details any) error {
	return c.JSON(status, Envelope{
		Success:   false,
		Error:     code,
		Message:   message,
		Details:   details,
		Timestamp: now(),
		RequestID: RequestID(c),
	})
}

// RequestID returns the id assigned by the RequestID middleware, falling back
// to one supplied by the client.
func RequestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
