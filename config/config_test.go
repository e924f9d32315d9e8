package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "  s3cret  ")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.Database.UseSSL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.BearerTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.VerificationTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.False(t, cfg.Auth.RoleAddRequiresPassword)
	assert.Equal(t, "log", cfg.Mail.Transport)
	assert.Equal(t, 3, cfg.Mail.MaxAttempts)
	assert.Equal(t, "rabbitmq", cfg.MQBackend)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_SSL", "true")
	t.Setenv("AUTH_VERIFICATION_TTL", "2h")
	t.Setenv("AUTH_BCRYPT_COST", "10")
	t.Setenv("AUTH_ROLE_ADD_REQUIRES_PASSWORD", "true")
	t.Setenv("MAIL_TRANSPORT", "QUEUE")
	t.Setenv("MQ_BACKEND", "PubSub")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.VerificationTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.RoleAddRequiresPassword)
	assert.Equal(t, "queue", cfg.Mail.Transport)
	assert.Equal(t, "pubsub", cfg.MQBackend)
}

func TestGetEnvHelpers_InvalidFallsBack(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, time.Minute, getEnvDuration("X_DUR", time.Minute))
}
