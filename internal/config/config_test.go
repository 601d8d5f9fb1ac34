package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeParams struct {
	vals  map[string]string
	err   error
	calls []string
}

func (f *fakeParams) GetParameter(_ context.Context, name string) (string, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return "", f.err
	}
	return f.vals[name], nil
}

func TestFromEnv_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("USE_MEMORY_STORE", "true")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com/")
	t.Setenv("SCHEDULER_TIMEOUT_MS", "250")
	t.Setenv("PARAM_PREFIX", "/linkup/prod/")

	cfg := FromEnv()
	require.Equal(t, "8080", cfg.Port)
	require.True(t, cfg.UseMemoryStore)
	require.Equal(t, "https://api.example.com", cfg.PublicBaseURL)
	require.Equal(t, 250*time.Millisecond, cfg.SchedulerTimeout)
	require.Equal(t, "/linkup/prod", cfg.ParamPrefix)
	require.Equal(t, "https://qstash.upstash.io", cfg.QStashURL)
}

func TestLoadSecrets_FillsOnlyMissing(t *testing.T) {
	cfg := Config{ParamPrefix: "/linkup", TwilioAuthToken: "from-env"}
	params := &fakeParams{vals: map[string]string{
		"/linkup/qstash_token":               "tok",
		"/linkup/qstash_current_signing_key": "cur",
		"/linkup/qstash_next_signing_key":    "next",
	}}

	require.NoError(t, cfg.LoadSecrets(context.Background(), params))
	require.Equal(t, "from-env", cfg.TwilioAuthToken)
	require.Equal(t, "tok", cfg.QStashToken)
	require.Equal(t, "cur", cfg.QStashCurrentSigningKey)
	require.Equal(t, "next", cfg.QStashNextSigningKey)
	require.NotContains(t, params.calls, "/linkup/twilio_auth_token")
}

func TestLoadSecrets_NoPrefixIsNoop(t *testing.T) {
	params := &fakeParams{err: errors.New("should not be called")}
	cfg := Config{}
	require.NoError(t, cfg.LoadSecrets(context.Background(), params))
	require.Empty(t, params.calls)
}

func TestLoadSecrets_PropagatesErrors(t *testing.T) {
	cfg := Config{ParamPrefix: "/linkup"}
	err := cfg.LoadSecrets(context.Background(), &fakeParams{err: errors.New("denied")})
	require.ErrorContains(t, err, "twilio_auth_token")
	require.ErrorContains(t, err, "denied")
}

func TestValidate(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "PUBLIC_BASE_URL")
	require.ErrorContains(t, err, "TWILIO_AUTH_TOKEN")

	ok := Config{
		PublicBaseURL:           "https://api.example.com",
		TwilioAuthToken:         "t",
		TwilioFromNumber:        "+15550000000",
		QStashCurrentSigningKey: "k",
	}
	require.NoError(t, ok.Validate())
}
