package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.InDelta(t, 99.0, cfg.Payment.FreeShippingThreshold, 0.001)
	assert.InDelta(t, 9.99, cfg.Payment.FlatShippingFee, 0.001)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.False(t, cfg.Notify.Enabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "150")
	t.Setenv("FLAT_SHIPPING_FEE", "4.50")
	t.Setenv("RECONCILE_INTERVAL", "1m")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 150.0, cfg.Payment.FreeShippingThreshold, 0.001)
	assert.InDelta(t, 4.50, cfg.Payment.FlatShippingFee, 0.001)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
	assert.True(t, cfg.IsProduction())
}

func TestValidateRejectsShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateRejectsNegativeShipping(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("FLAT_SHIPPING_FEE", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "db.internal"
	cfg.Database.Port = "5432"
	cfg.Database.User = "svc"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "merchstore"
	cfg.Database.SSLMode = "require"

	assert.Equal(t,
		"host=db.internal port=5432 user=svc password=secret dbname=merchstore sslmode=require",
		cfg.GetDatabaseDSN())
}
