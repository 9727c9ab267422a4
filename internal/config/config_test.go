package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORAGE_BACKEND", "TAX_RATE", "CARD_DELAY_MS", "KAFKA_BROKERS", "REDIS_ADDR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, "0.07", cfg.TaxRate.String())
	assert.Equal(t, 2*time.Second, cfg.CardDelay)
	assert.Equal(t, 10*time.Second, cfg.CheckoutTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "Postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TAX_RATE", "0.0825")
	t.Setenv("CARD_APPROVAL_RATE", "0.5")
	t.Setenv("CARD_DELAY_MS", "not-a-number")
	t.Setenv("AUDIT_WORKERS", "12")

	cfg := Load()
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "0.0825", cfg.TaxRate.String())
	assert.Equal(t, 0.5, cfg.CardApprovalRate)
	assert.Equal(t, 2*time.Second, cfg.CardDelay)
	assert.Equal(t, 12, cfg.AuditWorkers)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"backend", map[string]string{"STORAGE_BACKEND": "mongo"}},
		{"tax", map[string]string{"TAX_RATE": "1.5"}},
		{"negative tax", map[string]string{"TAX_RATE": "-0.01"}},
		{"approval", map[string]string{"CARD_APPROVAL_RATE": "1.1"}},
		{"timeout below card delay", map[string]string{"CARD_DELAY_MS": "5000", "CHECKOUT_TIMEOUT_MS": "4000"}},
		{"workers", map[string]string{"AUDIT_WORKERS": "0"}},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			assert.Error(t, Load().Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	log, err := Load().NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))
}

func TestRequestTimeoutOutlastsCheckout(t *testing.T) {
	t.Setenv("CHECKOUT_TIMEOUT_MS", "30000")
	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.CheckoutTimeout)
	assert.Greater(t, cfg.RequestTimeout(), cfg.CheckoutTimeout)
}
