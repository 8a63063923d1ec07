package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CeoatNorthstar/qhub-auth/internal/api/http/handlers"
	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
	"github.com/CeoatNorthstar/qhub-auth/internal/observability"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository/memory"
	"github.com/CeoatNorthstar/qhub-auth/internal/service"
	apperrors "github.com/CeoatNorthstar/qhub-auth/pkg/util/errorutil"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher()
	store := memory.NewStore()

	tokens := auth.NewTokenManager("router-test-secret", time.Hour, nil)
	credentials := service.NewCredentialStore(store, auth.NewHasher(auth.MinBcryptCost), logger, nil)
	sessions := service.NewSessionRegistry(store, dispatcher, logger, nil)
	quota := service.NewQuotaEnforcer(memory.NewUsageRepository(), nil, dispatcher, logger, nil)
	authService := service.NewAuthService(service.AuthDependencies{
		Store:       store,
		Credentials: credentials,
		Sessions:    sessions,
		Tokens:      tokens,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("qhub-auth", "test", metrics, nil),
		Auth:   handlers.NewAuthHandler(authService),
		Quota:  handlers.NewQuotaHandler(quota, metrics),
		Gate:   auth.NewGate(tokens, sessions, credentials, logger),
	})
	return app
}

type response struct {
	status int
	body   map[string]any
}

func (r response) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func call(t *testing.T, app *fiber.App, method, path, token, body string) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	req.Header.Set(fiber.HeaderUserAgent, "router-test")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, body: map[string]any{}}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func register(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	resp := call(t, app, http.MethodPost, "/auth/register", "", `{"email":"`+email+`","password":"Pass1234!"}`)
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	token, _ := resp.body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRouter_RegisterAndDuplicate(t *testing.T) {
	app := newTestApp(t)

	resp := call(t, app, http.MethodPost, "/auth/register", "", `{"email":"Alice@Example.com","password":"Pass1234!"}`)
	require.Equal(t, http.StatusCreated, resp.status)
	principal, _ := resp.body["principal"].(map[string]any)
	assert.Equal(t, "alice@example.com", principal["email"])
	assert.Equal(t, "free", principal["tier"])
	assert.NotZero(t, resp.body["expires_at"])

	resp = call(t, app, http.MethodPost, "/auth/register", "", `{"email":"alice@example.com","password":"Other1234!"}`)
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, apperrors.CodeConflict, resp.errorCode())

	resp = call(t, app, http.MethodPost, "/auth/register", "", `{"email":"bob@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, apperrors.CodeValidation, resp.errorCode())
}

func TestRouter_LoginFailuresAreOpaque(t *testing.T) {
	app := newTestApp(t)
	register(t, app, "alice@example.com")

	wrong := call(t, app, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"Wrong1234!"}`)
	unknown := call(t, app, http.MethodPost, "/auth/login", "", `{"email":"nobody@example.com","password":"Pass1234!"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.status)
	assert.Equal(t, http.StatusUnauthorized, unknown.status)
	assert.Equal(t, wrong.body, unknown.body)

	ok := call(t, app, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"Pass1234!"}`)
	assert.Equal(t, http.StatusOK, ok.status)
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "alice@example.com")

	resp := call(t, app, http.MethodGet, "/auth/verify", token, "")
	require.Equal(t, http.StatusOK, resp.status)

	resp = call(t, app, http.MethodPost, "/auth/logout", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = call(t, app, http.MethodPost, "/auth/logout", token, "")
	assert.Equal(t, http.StatusOK, resp.status)

	resp = call(t, app, http.MethodGet, "/auth/verify", token, "")
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, apperrors.CodeUnauthorized, resp.errorCode())

	resp = call(t, app, http.MethodPost, "/auth/logout", token, "")
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestRouter_SessionsListAndOwnership(t *testing.T) {
	app := newTestApp(t)
	alice := register(t, app, "alice@example.com")
	second := call(t, app, http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"Pass1234!"}`)
	require.Equal(t, http.StatusOK, second.status)
	bob := register(t, app, "bob@example.com")

	resp := call(t, app, http.MethodGet, "/auth/sessions", alice, "")
	require.Equal(t, http.StatusOK, resp.status)
	list, _ := resp.body["sessions"].([]any)
	require.Len(t, list, 2)

	var current int
	var aliceSessionID string
	for _, item := range list {
		s := item.(map[string]any)
		aliceSessionID = s["id"].(string)
		if s["current"] == true {
			current++
		}
	}
	assert.Equal(t, 1, current)

	resp = call(t, app, http.MethodDelete, "/auth/sessions/"+aliceSessionID, bob, "")
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, apperrors.CodeNotFound, resp.errorCode())

	resp = call(t, app, http.MethodDelete, "/auth/sessions/not-a-uuid", alice, "")
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, apperrors.CodeNotFound, resp.errorCode())

	resp = call(t, app, http.MethodPost, "/auth/logout-all", alice, "")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, float64(2), resp.body["revoked"])

	resp = call(t, app, http.MethodGet, "/auth/sessions", alice, "")
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestRouter_QuotaConsumeUntilDenied(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "alice@example.com")

	for i := 1; i <= 3; i++ {
		resp := call(t, app, http.MethodPost, "/quota/compute_jobs/consume", token, "")
		require.Equal(t, http.StatusOK, resp.status)
		assert.Equal(t, float64(i), resp.body["current"])
	}

	resp := call(t, app, http.MethodPost, "/quota/compute_jobs/consume", token, "")
	require.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, apperrors.CodeQuotaExceeded, resp.errorCode())
	details := resp.body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "compute_jobs", details["resource"])
	assert.Equal(t, float64(3), details["limit"])

	resp = call(t, app, http.MethodPost, "/quota/compute_jobs/release", token, "")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, float64(2), resp.body["current"])

	resp = call(t, app, http.MethodPost, "/quota/ai_messages/release", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = call(t, app, http.MethodPost, "/quota/gpu_hours/consume", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = call(t, app, http.MethodGet, "/quota", token, "")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "free", resp.body["tier"])
}

func TestRouter_QuotaRequiresAuth(t *testing.T) {
	app := newTestApp(t)

	resp := call(t, app, http.MethodPost, "/quota/ai_messages/consume", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = call(t, app, http.MethodGet, "/quota/limits", "", "")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "free", resp.body["tier"])
	limits := resp.body["limits"].(map[string]any)
	assert.Equal(t, float64(10), limits["ai_messages"])
}

func TestRouter_HealthAndUnknownRoute(t *testing.T) {
	app := newTestApp(t)

	resp := call(t, app, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "alive", resp.body["status"])

	resp = call(t, app, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, resp.status)

	resp = call(t, app, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, apperrors.CodeNotFound, resp.errorCode())
}
