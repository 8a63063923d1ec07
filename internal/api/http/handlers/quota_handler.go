package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/CeoatNorthstar/qhub-auth/internal/api/dto"
	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/observability"
	"github.com/CeoatNorthstar/qhub-auth/internal/service"
	apperrors "github.com/CeoatNorthstar/qhub-auth/pkg/util/errorutil"
)

// QuotaHandler exposes usage and consume/release endpoints.
type QuotaHandler struct {
	quota   *service.QuotaEnforcer
	metrics *observability.Metrics
}

// NewQuotaHandler constructs handler.
func NewQuotaHandler(quota *service.QuotaEnforcer, metrics *observability.Metrics) *QuotaHandler {
	return &QuotaHandler{quota: quota, metrics: metrics}
}

// Usage handles GET /quota.
func (h *QuotaHandler) Usage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	snapshots, err := h.quota.Usage(c.UserContext(), principal)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.NewUsageResponse(principal.Tier, snapshots))
}

// Limits handles GET /quota/limits. Anonymous callers see the free tier.
func (h *QuotaHandler) Limits(c *fiber.Ctx) error {
	tier := domain.TierFree
	if principal, ok := auth.PrincipalFromContext(c); ok {
		tier = principal.Tier
	}
	return c.JSON(dto.LimitsResponse{Tier: tier, Limits: h.quota.Limits(tier)})
}

// Consume handles POST /quota/:resource/consume.
func (h *QuotaHandler) Consume(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	resource := domain.ResourceType(c.Params("resource"))

	decision, err := h.quota.Consume(c.UserContext(), principal, resource)
	if err != nil {
		return mapServiceError(err)
	}
	h.metrics.RecordQuotaDecision(string(resource), decision.Allowed)
	if !decision.Allowed {
		return apperrors.NewQuotaExceeded(string(resource), decision.Current, decision.Limit)
	}
	return c.JSON(dto.QuotaDecisionResponse{
		Allowed:  true,
		Resource: resource,
		Current:  decision.Current,
		Limit:    decision.Limit,
	})
}

// Release handles POST /quota/:resource/release.
func (h *QuotaHandler) Release(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(nil)
	}
	resource := domain.ResourceType(c.Params("resource"))

	current, err := h.quota.Release(c.UserContext(), principal.ID, resource)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.QuotaReleaseResponse{Resource: resource, Current: current})
}
