package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 10, cfg.ThrottleLimit)
	assert.Equal(t, 10*time.Minute, cfg.ThrottleWindow)
	assert.Equal(t, "open", cfg.ThrottleFailureMode)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, int64(10000), cfg.CODSurchargeAmount)
	assert.Equal(t, "catalog", cfg.SnapshotPricing)
	assert.Empty(t, cfg.PaymentGatewayURL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 500*time.Millisecond, cfg.SlowQueryThreshold())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("THROTTLE_LIMIT", "3")
	t.Setenv("THROTTLE_WINDOW", "1m")
	t.Setenv("THROTTLE_FAILURE_MODE", "local")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SNAPSHOT_PRICING", "client")
	t.Setenv("PAYMENT_GATEWAY_URL", "https://pay.example.com")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.ThrottleLimit)
	assert.Equal(t, time.Minute, cfg.ThrottleWindow)
	assert.Equal(t, "local", cfg.ThrottleFailureMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "client", cfg.SnapshotPricing)
	assert.Equal(t, "https://pay.example.com", cfg.PaymentGatewayURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"port out of range", "HTTP_PORT", "70000", "invalid HTTP port"},
		{"unknown failure mode", "THROTTLE_FAILURE_MODE", "maybe", "THROTTLE_FAILURE_MODE"},
		{"zero throttle limit", "THROTTLE_LIMIT", "0", "THROTTLE_LIMIT"},
		{"negative surcharge", "COD_SURCHARGE_AMOUNT", "-1", "COD_SURCHARGE_AMOUNT"},
		{"unknown pricing", "SNAPSHOT_PRICING", "whatever", "SNAPSHOT_PRICING"},
		{"bad gateway url", "PAYMENT_GATEWAY_URL", "not a url", "PAYMENT_GATEWAY_URL"},
		{"sample rate above one", "OTEL_SAMPLE_RATE", "1.5", "OTEL_SAMPLE_RATE"},
		{"unparseable window", "THROTTLE_WINDOW", "ten minutes", "ThrottleWindow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestPostgres(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: 5433, PostgresUser: "u", PostgresPass: "p",
		PostgresDB: "orders", PostgresSSL: "require", DBMaxConns: 10, DBMinConns: 2,
		DBMaxConnLifetimeMins: 5, DBMaxConnIdleTimeMins: 1,
	}

	pg := cfg.Postgres()

	assert.Equal(t, "postgres://u:p@db:5433/orders?sslmode=require", pg.DSN())
	assert.Equal(t, 5*time.Minute, pg.MaxConnLifetime)
	assert.Equal(t, time.Minute, pg.MaxConnIdleTime)
}
