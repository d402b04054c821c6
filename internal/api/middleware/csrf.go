package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventops/auth-gateway/internal/core/ports"
)

const (
	// HeaderCSRFToken carries the CSRF token on mutating requests.
	HeaderCSRFToken = "X-CSRF-Token"
	// CSRFField is the body and query field checked when the header is absent.
	CSRFField = "_csrf"
)

// CSRFConfig configures the CSRF middleware.
type CSRFConfig struct {
	Service ports.CSRFService
	// ExemptPaths are path prefixes that never require a token.
	ExemptPaths []string
}

// CSRF rejects mutating requests that do not present a valid single-use token.
// GET, HEAD and OPTIONS pass through.
func CSRF(cfg CSRFConfig) echo.MiddlewareFunc {
	exempt := make([]string, 0, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		if p = strings.TrimSpace(p); p != "" {
			exempt = append(exempt, p)
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			path := c.Request().URL.Path
			if exemptPath(path, exempt) {
				return next(c)
			}

			token := csrfToken(c)
			if err := cfg.Service.Consume(c.Request().Context(), token, clientInfo(c)); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// exemptPath matches whole path segments, so "/health" covers "/health" and
// "/health/ready" but not "/healthcheck".
func exemptPath(path string, exempt []string) bool {
	for _, p := range exempt {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			return true
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// csrfToken looks in the header, then the body field, then the query string.
func csrfToken(c echo.Context) string {
	if v := c.Request().Header.Get(HeaderCSRFToken); v != "" {
		return v
	}
	if v := bodyToken(c); v != "" {
		return v
	}
	return c.QueryParam(CSRFField)
}

func bodyToken(c echo.Context) string {
	req := c.Request()
	if req.Body == nil || req.Body == http.NoBody {
		return ""
	}
	ctype := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		// Whatever the decoder consumed is replayed ahead of the unread rest.
		var seen bytes.Buffer
		var body struct {
			CSRF string `json:"_csrf"`
		}
		err := json.NewDecoder(io.TeeReader(req.Body, &seen)).Decode(&body)
		req.Body = readCloser{Reader: io.MultiReader(&seen, req.Body), Closer: req.Body}
		if err != nil {
			return ""
		}
		return body.CSRF
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm),
		strings.HasPrefix(ctype, echo.MIMEMultipartForm):
		return req.FormValue(CSRFField)
	}
	return ""
}

// readCloser replays a peeked prefix ahead of the unread body and closes the
// original body.
type readCloser struct {
	io.Reader
	io.Closer
}
