package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable NewConfig reads so the host environment
// cannot leak into a test. Empty values fall back to defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "JWT_SECRET", "JWT_TTL",
		"TRIAL_DURATION", "TRIAL_DAILY_AI_CHAT_LIMIT", "TRIAL_IP_WINDOW", "TRIAL_IP_MAX_STARTS",
		"QUOTA_TIMEZONE", "QUOTA_RETENTION", "STORAGE_PROVIDER", "STORAGE_SIGNING_KEY",
		"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME",
		"AI_PROVIDER", "ANTHROPIC_API_KEY", "ADMIN_EMAILS", "PLAN_CACHE_TTL", "TRUSTED_PROXIES",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/toeicprep")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 72*time.Hour, cfg.TrialDuration)
	assert.Equal(t, 20, cfg.TrialDailyAIChatLimit)
	assert.Equal(t, 3, cfg.TrialIPMaxStarts)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, "mock", cfg.AIProvider)
	assert.Equal(t, 10*time.Minute, cfg.PlanCacheTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, cfg.JWTSecret, cfg.StorageSigningKey)
	assert.NotNil(t, cfg.QuotaTimezone)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestNewConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/toeicprep")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE_SIGNING_KEY", "other")
	t.Setenv("TRIAL_DURATION", "48h")
	t.Setenv("QUOTA_TIMEZONE", "Asia/Tokyo")
	t.Setenv("ADMIN_EMAILS", " Ops@Example.com ,,admin@example.com")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "other", cfg.StorageSigningKey)
	assert.Equal(t, 48*time.Hour, cfg.TrialDuration)
	assert.Equal(t, "Asia/Tokyo", cfg.QuotaTimezone.String())
	assert.Equal(t, []string{"ops@example.com", "admin@example.com"}, cfg.AdminEmails)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.TrustedProxies)
	assert.Equal(t, 8080, cfg.Port, "unparseable values fall back to the default")
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"jwt secret outside development", map[string]string{"ENV": "production"}, "JWT_SECRET"},
		{"bad timezone", map[string]string{"QUOTA_TIMEZONE": "Mars/Olympus"}, "QUOTA_TIMEZONE"},
		{"zero chat limit", map[string]string{"TRIAL_DAILY_AI_CHAT_LIMIT": "0"}, "TRIAL_DAILY_AI_CHAT_LIMIT"},
		{"r2 without account", map[string]string{"STORAGE_PROVIDER": "r2"}, "R2_ACCOUNT_ID"},
		{"unknown storage", map[string]string{"STORAGE_PROVIDER": "ftp"}, "STORAGE_PROVIDER"},
		{"anthropic without key", map[string]string{"AI_PROVIDER": "anthropic"}, "ANTHROPIC_API_KEY"},
		{"unknown ai provider", map[string]string{"AI_PROVIDER": "oracle"}, "AI_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATABASE_URL", "postgres://localhost/toeicprep")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
