package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ananth-NQI/linkup-backend/internal/integrations/paramstore"
)

// Config is read once at startup and passed down explicitly.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	UseMemoryStore         bool
	DBUser                 string
	DBPass                 string
	DBName                 string
	DBHost                 string
	InstanceConnectionName string

	TwilioAccountSID          string
	TwilioAuthToken           string
	TwilioFromNumber          string
	TwilioMessagingServiceSID string

	// PublicBaseURL is the externally reachable origin used for status and
	// scheduler callbacks.
	PublicBaseURL string
	// WebhookURLOverride is the URL the provider is configured to call, used as
	// an extra signature candidate when proxies rewrite the host.
	WebhookURLOverride       string
	DisableWebhookValidation bool

	QStashURL               string
	QStashToken             string
	QStashCurrentSigningKey string
	QStashNextSigningKey    string
	SchedulerTimeout        time.Duration

	ParamPrefix string
}

// FromEnv reads the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "production"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		UseMemoryStore:         envBool("USE_MEMORY_STORE"),
		DBUser:                 envOr("DB_USER", "postgres"),
		DBPass:                 os.Getenv("DB_PASS"),
		DBName:                 envOr("DB_NAME", "linkup"),
		DBHost:                 envOr("DB_HOST", "localhost"),
		InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),

		TwilioAccountSID:          os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:           os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:          os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioMessagingServiceSID: os.Getenv("TWILIO_MESSAGING_SERVICE_SID"),

		PublicBaseURL:            strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		WebhookURLOverride:       os.Getenv("SMS_WEBHOOK_URL_OVERRIDE"),
		DisableWebhookValidation: envBool("DISABLE_WEBHOOK_VALIDATION"),

		QStashURL:               strings.TrimRight(envOr("QSTASH_URL", "https://qstash.upstash.io"), "/"),
		QStashToken:             os.Getenv("QSTASH_TOKEN"),
		QStashCurrentSigningKey: os.Getenv("QSTASH_CURRENT_SIGNING_KEY"),
		QStashNextSigningKey:    os.Getenv("QSTASH_NEXT_SIGNING_KEY"),
		SchedulerTimeout:        time.Duration(envInt("SCHEDULER_TIMEOUT_MS", 5000)) * time.Millisecond,

		ParamPrefix: strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
	}
}

// LoadSecrets fills empty secret fields from the parameter store under
// ParamPrefix. Values already present in the environment win.
func (c *Config) LoadSecrets(ctx context.Context, params paramstore.Getter) error {
	if c.ParamPrefix == "" || params == nil {
		return nil
	}
	secrets := []struct {
		name string
		dst  *string
	}{
		{"twilio_auth_token", &c.TwilioAuthToken},
		{"qstash_token", &c.QStashToken},
		{"qstash_current_signing_key", &c.QStashCurrentSigningKey},
		{"qstash_next_signing_key", &c.QStashNextSigningKey},
	}
	for _, s := range secrets {
		if *s.dst != "" {
			continue
		}
		v, err := params.GetParameter(ctx, c.ParamPrefix+"/"+s.name)
		if err != nil {
			return fmt.Errorf("config: load %s: %w", s.name, err)
		}
		*s.dst = v
	}
	return nil
}

// Validate reports settings the service cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if c.TwilioAuthToken == "" && !c.DisableWebhookValidation {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required unless webhook validation is disabled"))
	}
	if c.QStashCurrentSigningKey == "" {
		errs = append(errs, errors.New("QSTASH_CURRENT_SIGNING_KEY is required"))
	}
	if c.TwilioFromNumber == "" && c.TwilioMessagingServiceSID == "" {
		errs = append(errs, errors.New("TWILIO_FROM_NUMBER or TWILIO_MESSAGING_SERVICE_SID is required"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs locally.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
