package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	apperrors "github.com/CeoatNorthstar/qhub-auth/pkg/util/errorutil"
)

const (
	principalKey = "auth_principal"
	sessionKey   = "auth_session"
)

var (
	// ErrSessionNotLive is returned by session lookups when the token hash is
	// unknown, expired, or owned by an inactive principal.
	ErrSessionNotLive = errors.New("session not live")
	// ErrUnknownPrincipal is returned by principal lookups for missing ids.
	ErrUnknownPrincipal = errors.New("principal not found")
)

// SessionLookup confirms that a presented token is still registered.
type SessionLookup interface {
	Confirm(ctx context.Context, tokenHash string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string)
}

// PrincipalLookup loads the principal a session belongs to.
type PrincipalLookup interface {
	Get(ctx context.Context, principalID string) (*domain.Principal, error)
}

// gateStage names how far a request got before it was rejected.
type gateStage string

const (
	stageUnauthenticated gateStage = "unauthenticated"
	stageTokenExtracted  gateStage = "token_extracted"
	stageTokenVerified   gateStage = "token_verified"
	stageSessionChecked  gateStage = "session_confirmed"
)

type rejection struct {
	stage gateStage
	cause error
	// dependency marks store failures, which are not the caller's fault.
	dependency bool
}

// Gate authenticates bearer requests: the token must verify, its session must
// still be live and the principal must be active.
type Gate struct {
	tokens     *TokenManager
	sessions   SessionLookup
	principals PrincipalLookup
	logger     *zap.Logger
}

// NewGate constructs the middleware.
func NewGate(tokens *TokenManager, sessions SessionLookup, principals PrincipalLookup, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{tokens: tokens, sessions: sessions, principals: principals, logger: logger}
}

// Handle enforces authentication for protected routes.
func (g *Gate) Handle(c *fiber.Ctx) error {
	principal, session, rej := g.authenticate(c)
	if rej != nil {
		if rej.dependency {
			g.logger.Error("auth gate: store failure", zap.String("stage", string(rej.stage)), zap.Error(rej.cause))
			return apperrors.NewDependencyError(rej.cause)
		}
		g.logger.Debug("auth gate: rejected",
			zap.String("stage", string(rej.stage)),
			zap.String("path", c.Path()),
			zap.Error(rej.cause),
		)
		return apperrors.NewUnauthorized(rej.cause)
	}
	g.attach(c, principal, session)
	return c.Next()
}

// Optional runs the same checks but lets the request through anonymously when
// any of them fail.
func (g *Gate) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, session, rej := g.authenticate(c)
		if rej != nil {
			if rej.stage != stageUnauthenticated {
				g.logger.Debug("auth gate: continuing anonymously",
					zap.String("stage", string(rej.stage)),
					zap.Error(rej.cause),
				)
			}
			return c.Next()
		}
		g.attach(c, principal, session)
		return c.Next()
	}
}

func (g *Gate) authenticate(c *fiber.Ctx) (*domain.Principal, *domain.Session, *rejection) {
	raw, err := BearerToken(c)
	if err != nil {
		return nil, nil, &rejection{stage: stageUnauthenticated, cause: err}
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return nil, nil, &rejection{stage: stageTokenExtracted, cause: err}
	}

	ctx := c.UserContext()
	session, err := g.sessions.Confirm(ctx, HashToken(raw))
	if err != nil {
		return nil, nil, &rejection{stage: stageTokenVerified, cause: err, dependency: !errors.Is(err, ErrSessionNotLive)}
	}
	if session.PrincipalID != claims.PrincipalID() {
		return nil, nil, &rejection{stage: stageTokenVerified, cause: errors.New("session owner does not match token subject")}
	}

	principal, err := g.principals.Get(ctx, session.PrincipalID)
	if err != nil {
		return nil, nil, &rejection{stage: stageSessionChecked, cause: err, dependency: !errors.Is(err, ErrUnknownPrincipal)}
	}
	if !principal.Active {
		return nil, nil, &rejection{stage: stageSessionChecked, cause: errors.New("principal inactive")}
	}

	g.sessions.Touch(ctx, session.ID)
	return principal, session, nil
}

func (g *Gate) attach(c *fiber.Ctx, principal *domain.Principal, session *domain.Session) {
	c.Locals(principalKey, principal)
	c.Locals(sessionKey, session)
}

var (
	errMissingHeader   = errors.New("missing authorization header")
	errMalformedHeader = errors.New("malformed authorization header")
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(*domain.Principal)
	return principal, ok && principal != nil
}

// SessionFromContext retrieves the session the request authenticated with.
func SessionFromContext(c *fiber.Ctx) (*domain.Session, bool) {
	session, ok := c.Locals(sessionKey).(*domain.Session)
	return session, ok && session != nil
}
