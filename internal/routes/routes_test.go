package routes

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/handlers"
	"github.com/Ananth-NQI/linkup-backend/internal/middleware"
)

func newApp(opts Options) *fiber.App {
	app := fiber.New()
	SetupRoutes(app, Handlers{
		Health:     handlers.NewHealthHandler("test", "test", "memory", false, nil),
		SMS:        handlers.NewSMSHandler(nil, nil, nil),
		Onboarding: handlers.NewOnboardingHandler(nil, nil),
	}, opts, zap.NewNop())
	return app
}

func TestRoutes_HealthIsOpen(t *testing.T) {
	app := newApp(Options{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRoutes_WebhooksRequireSignature(t *testing.T) {
	app := newApp(Options{Twilio: middleware.SignatureVerifier{AuthToken: "token"}})
	for _, path := range []string{"/webhook/sms", "/webhook/sms/status"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(url.Values{"MessageSid": {"SM1"}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRoutes_ValidationDisabledReachesHandler(t *testing.T) {
	app := newApp(Options{DisableWebhookValidation: true})
	// missing From is rejected by the handler itself
	req := httptest.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader(url.Values{"MessageSid": {"SM1"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRoutes_WebhooksRequireFormBody(t *testing.T) {
	for _, disabled := range []bool{false, true} {
		app := newApp(Options{
			Twilio:                   middleware.SignatureVerifier{AuthToken: "token"},
			DisableWebhookValidation: disabled,
		})
		for _, path := range []string{"/webhook/sms", "/webhook/sms/status"} {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"MessageSid":"SM1"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode, path)
		}
	}
}

func TestRoutes_StepRequiresSchedulerSignature(t *testing.T) {
	app := newApp(Options{
		DisableWebhookValidation: true,
		Scheduler:                middleware.SchedulerVerifier{CurrentSigningKey: "key"},
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/onboarding/step", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/internal/onboarding/step", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Signature", "not-a-jwt")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
