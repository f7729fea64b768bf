package config_test

import (
	"testing"
	"time"

	"paintball-ticketing/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodKey = "k9T#mQ2v!Lx7Wz4pR8sY1nB6cF3hJ0dG"

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9999")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("QR_ENCRYPTION_KEY", goodKey)
	t.Setenv("JWT_SECRET", "secret")

	cfg := config.Load()

	assert.Equal(t, ":9999", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 120, cfg.RateLimit.Requests, "unparsable values fall back to the default")
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsWeakQRKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("QR_ENCRYPTION_KEY", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	err := config.Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QR_ENCRYPTION_KEY")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	t.Setenv("QR_ENCRYPTION_KEY", goodKey)
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("QR_STORAGE", "s3")
	t.Setenv("PAYMENT_PROVIDER", "razorpay")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OIDC_ISSUER", "")

	err := config.Load().Validate()
	require.Error(t, err)
	for _, want := range []string{"DB_DRIVER", "QR_S3_BUCKET", "PAYMENT_PROVIDER", "JWT_SECRET"} {
		assert.Contains(t, err.Error(), want)
	}
}
