package middleware

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stepURL = "https://api.example.com/internal/onboarding/step"

func signSchedulerToken(t *testing.T, key, subject string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	claims := schedulerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "Upstash",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Second)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
		Body: base64.URLEncoding.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestSchedulerVerifier_CurrentAndNextKeys(t *testing.T) {
	body := []byte(`{"step_id":"onboarding_message_1"}`)
	v := SchedulerVerifier{CurrentSigningKey: "current", NextSigningKey: "next", ExpectedURL: stepURL}

	require.NoError(t, v.Verify(signSchedulerToken(t, "current", stepURL, body), body))
	require.NoError(t, v.Verify(signSchedulerToken(t, "next", stepURL, body), body))

	err := v.Verify(signSchedulerToken(t, "other", stepURL, body), body)
	require.ErrorIs(t, err, ErrInvalidSchedulerSignature)
}

func TestSchedulerVerifier_RejectsBodyAndSubjectMismatch(t *testing.T) {
	body := []byte(`{"step_id":"onboarding_message_1"}`)
	v := SchedulerVerifier{CurrentSigningKey: "current", ExpectedURL: stepURL}

	token := signSchedulerToken(t, "current", stepURL, body)
	require.ErrorIs(t, v.Verify(token, []byte(`{"step_id":"onboarding_message_4"}`)), ErrInvalidSchedulerSignature)

	wrongSubject := signSchedulerToken(t, "current", "https://evil.example.com/step", body)
	require.ErrorIs(t, v.Verify(wrongSubject, body), ErrInvalidSchedulerSignature)

	require.ErrorIs(t, v.Verify("", body), ErrMissingSchedulerSignature)
	require.ErrorIs(t, SchedulerVerifier{}.Verify(token, body), ErrInvalidSchedulerSignature)
}

func TestValidateSchedulerSignature_Middleware(t *testing.T) {
	v := SchedulerVerifier{CurrentSigningKey: "current"}
	app := fiber.New()
	app.Post("/internal/onboarding/step", ValidateSchedulerSignature(v, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	body := `{"step_id":"onboarding_message_1"}`

	req := httptest.NewRequest(http.MethodPost, "/internal/onboarding/step", strings.NewReader(body))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/internal/onboarding/step", strings.NewReader(body))
	req.Header.Set("Upstash-Signature", "not-a-jwt")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/internal/onboarding/step", strings.NewReader(body))
	req.Header.Set("Upstash-Signature", signSchedulerToken(t, "current", stepURL, []byte(body)))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
