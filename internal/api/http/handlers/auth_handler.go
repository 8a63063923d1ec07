package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/CeoatNorthstar/qhub-auth/internal/api/dto"
	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/service"
	apperrors "github.com/CeoatNorthstar/qhub-auth/pkg/util/errorutil"
)

// AuthHandler exposes registration, login and session endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	res, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}, deviceOf(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(authResponse(res))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password, deviceOf(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(authResponse(res))
}

// Logout handles POST /auth/logout. The token is revoked by hash without
// being verified, so expired tokens can still be logged out.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, err := auth.BearerToken(c)
	if err != nil {
		return apperrors.NewValidationError("bearer token required", nil)
	}
	if err := h.auth.Logout(c.UserContext(), token); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

// LogoutAll handles POST /auth/logout-all.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	n, err := h.auth.LogoutAll(c.UserContext(), principal.ID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.RevokedResponse{Revoked: n})
}

// Verify handles GET /auth/verify.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	return c.JSON(fiber.Map{"principal": dto.NewPrincipalDetail(principal)})
}

// ListSessions handles GET /auth/sessions.
func (h *AuthHandler) ListSessions(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	var currentID string
	if current, ok := auth.SessionFromContext(c); ok {
		currentID = current.ID
	}

	sessions, err := h.auth.ListSessions(c.UserContext(), principal.ID)
	if err != nil {
		return mapServiceError(err)
	}
	out := dto.SessionListResponse{Sessions: make([]dto.SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, dto.NewSessionResponse(s, s.ID == currentID))
	}
	return c.JSON(out)
}

// RevokeSession handles DELETE /auth/sessions/:id.
func (h *AuthHandler) RevokeSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	if err := h.auth.RevokeSession(c.UserContext(), principal.ID, c.Params("id")); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"message": "session revoked"})
}

// Deactivate handles POST /auth/deactivate: the caller closes their own
// account.
func (h *AuthHandler) Deactivate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	n, err := h.auth.Deactivate(c.UserContext(), principal.ID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.RevokedResponse{Revoked: n})
}

func authResponse(res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Token:     res.Token,
		Principal: dto.NewPrincipalSummary(res.Principal),
		ExpiresAt: res.ExpiresAt.Unix(),
	}
}

func deviceOf(c *fiber.Ctx) domain.Device {
	return domain.Device{UserAgent: c.Get(fiber.HeaderUserAgent), IP: c.IP()}
}
