package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventops/auth-gateway/internal/api/response"
	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

type AuthHandler struct {
	auth  ports.AuthService
	authz ports.Authorizer
	csrf  ports.CSRFService
}

func NewAuthHandler(auth ports.AuthService, authz ports.Authorizer, csrf ports.CSRFService) *AuthHandler {
	return &AuthHandler{auth: auth, authz: authz, csrf: csrf}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

type tokensResponse struct {
	Tokens *domain.TokenPair `json:"tokens"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type logoutAllResponse struct {
	Message         string `json:"message"`
	RevokedSessions int64  `json:"revokedSessions"`
}

type sessionsResponse struct {
	Sessions []domain.SessionInfo `json:"sessions"`
}

type csrfResponse struct {
	CSRFToken string    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type permissionsResponse struct {
	Role        domain.Role `json:"role"`
	Permissions []string    `json:"permissions"`
}

// Register creates a new user account and its first session.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        X-CSRF-Token  header    string           true  "CSRF token"
// @Param        body          body      registerRequest  true  "User registration details"
// @Success      201           {object}  response.Envelope{data=domain.AuthResult}
// @Failure      400           {object}  response.Envelope
// @Failure      409           {object}  response.Envelope
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Register(c.Request().Context(), ports.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Client:    clientInfo(c),
	})
	if err != nil {
		return err
	}
	return response.Created(c, result)
}

// Login authenticates a user and opens a new session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        X-CSRF-Token  header    string        true  "CSRF token"
// @Param        body          body      loginRequest  true  "Login credentials"
// @Success      200           {object}  response.Envelope{data=domain.AuthResult}
// @Failure      400           {object}  response.Envelope
// @Failure      401           {object}  response.Envelope
// @Failure      403           {object}  response.Envelope
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.Request().Context(), ports.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Client:     clientInfo(c),
	})
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

// Refresh exchanges a refresh token for a new token pair.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        X-CSRF-Token  header    string          true  "CSRF token"
// @Param        body          body      refreshRequest  true  "Refresh token"
// @Success      200           {object}  response.Envelope{data=tokensResponse}
// @Failure      401           {object}  response.Envelope
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken, clientInfo(c))
	if err != nil {
		return err
	}
	return response.OK(c, tokensResponse{Tokens: pair})
}

// Logout revokes the current session.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope{data=messageResponse}
// @Failure      401  {object}  response.Envelope
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OK(c, messageResponse{Message: "Logged out successfully"})
}

// LogoutAll revokes every session of the caller.
//
// @Summary      Logout from all devices
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope{data=logoutAllResponse}
// @Failure      401  {object}  response.Envelope
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	n, err := h.auth.LogoutAll(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, logoutAllResponse{Message: "Logged out from all devices", RevokedSessions: n})
}

// ChangePassword replaces the caller's password and revokes all sessions.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  response.Envelope{data=messageResponse}
// @Failure      400   {object}  response.Envelope
// @Failure      401   {object}  response.Envelope
// @Router       /auth/change-password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = h.auth.ChangePassword(c.Request().Context(), ports.ChangePasswordInput{
		UserID:          id.UserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Client:          clientInfo(c),
	})
	if err != nil {
		return err
	}
	return response.OK(c, messageResponse{Message: "Password changed successfully; please log in again"})
}

// Profile returns the caller's account.
//
// @Summary      Current user profile
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope{data=domain.User}
// @Failure      401  {object}  response.Envelope
// @Router       /auth/profile [get]
func (h *AuthHandler) Profile(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Profile(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, user)
}

// Sessions lists the caller's active sessions.
//
// @Summary      Active sessions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope{data=sessionsResponse}
// @Failure      401  {object}  response.Envelope
// @Router       /auth/sessions [get]
func (h *AuthHandler) Sessions(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	sessions, err := h.auth.Sessions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []domain.SessionInfo{}
	}
	return response.OK(c, sessionsResponse{Sessions: sessions})
}

// RevokeSession deactivates one of the caller's sessions.
//
// @Summary      Revoke a session
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Param        X-CSRF-Token  header    string  true  "CSRF token"
// @Param        id            path      string  true  "Session ID"
// @Success      200           {object}  response.Envelope{data=messageResponse}
// @Failure      403           {object}  response.Envelope
// @Failure      404           {object}  response.Envelope
// @Router       /auth/sessions/{id} [delete]
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.auth.RevokeSession(c.Request().Context(), id, c.Param("id")); err != nil {
		return err
	}
	return response.OK(c, messageResponse{Message: "Session revoked"})
}

// CSRFToken issues a single-use CSRF token bound to the caller.
//
// @Summary      Issue a CSRF token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Envelope{data=csrfResponse}
// @Router       /auth/csrf-token [get]
func (h *AuthHandler) CSRFToken(c echo.Context) error {
	var userID string
	if id, ok := domain.IdentityFromContext(c.Request().Context()); ok {
		userID = id.UserID
	}
	tok, err := h.csrf.Issue(c.Request().Context(), userID, clientInfo(c))
	if err != nil {
		return err
	}
	return response.OK(c, csrfResponse{CSRFToken: tok.Token, ExpiresAt: tok.ExpiresAt})
}

// Permissions returns the caller's effective permissions.
//
// @Summary      Effective permissions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope{data=permissionsResponse}
// @Failure      401  {object}  response.Envelope
// @Router       /auth/permissions [get]
func (h *AuthHandler) Permissions(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	perms, err := h.authz.EffectivePermissions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, permissionsResponse{Role: id.Role, Permissions: perms.Strings()})
}
