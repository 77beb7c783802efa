package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacemap/riskengine/internal/domain/valueobject"
	"github.com/peacemap/riskengine/internal/infrastructure/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riskd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "riskd", cfg.Service.Name)
	assert.Equal(t, 9090, cfg.Service.GRPCPort)
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.InDelta(t, 100.0, cfg.Service.HTTPRateLimit, 1e-9)
	assert.Equal(t, ":9090", cfg.GRPCAddress())
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.TLS.Enabled())

	assert.InDelta(t, 70.0, cfg.Risk.AlertThresholds.High, 1e-9)
	assert.InDelta(t, 90.0, cfg.Risk.AlertThresholds.Critical, 1e-9)
	assert.True(t, cfg.Risk.Calculators.Composite.Enabled)
	assert.InDelta(t, 0.95, cfg.Risk.Calculators.Anomaly.DecayFactor, 1e-9)
	assert.Equal(t, valueobject.DefaultThresholds(), cfg.Risk.Calculators.Regional.Thresholds)
	assert.Equal(t, 10, cfg.Risk.Calculators.Anomaly.MinSamples)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
service:
  grpc_port: 7000
  log_level: debug
risk:
  history_limit: 500
  alert_thresholds:
    high: 60
    critical: 85
  calculators:
    supplier:
      enabled: false
    composite:
      time_window_days: 14
      weights:
        event_count: 0.5
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Service.GRPCPort)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, 500, cfg.Risk.HistoryLimit)
	assert.Equal(t, 14, cfg.Risk.Calculators.Composite.TimeWindowDays)
	assert.InDelta(t, 0.5, cfg.Risk.Calculators.Composite.Weights["event_count"], 1e-9)

	mc := cfg.Risk.ManagerConfig()
	assert.InDelta(t, 60.0, mc.AlertThresholds.High, 1e-9)
	assert.Equal(t, 500, mc.HistoryLimit)
	assert.Equal(t, 14, mc.Composite.TimeWindowDays)
	assert.False(t, mc.Enabled(valueobject.CalculatorSupplier))
	assert.True(t, mc.Enabled(valueobject.CalculatorAnomaly))
	assert.Equal(t, []valueobject.CalculatorKind{valueobject.CalculatorSupplier}, mc.Disabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "service:\n  http_port: 8181\n")
	t.Setenv("RISKENGINE_SERVICE_HTTP_PORT", "8282")
	t.Setenv("RISKENGINE_RISK_ALERT_THRESHOLDS_HIGH", "65")
	t.Setenv("RISKENGINE_DATABASE_URL", "postgres://risk@localhost/risk")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8282, cfg.Service.HTTPPort)
	assert.InDelta(t, 65.0, cfg.Risk.AlertThresholds.High, 1e-9)
	assert.Equal(t, "postgres://risk@localhost/risk", cfg.Database.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"grpc port out of range", func(c *config.Config) { c.Service.GRPCPort = 70000 }},
		{"ports collide", func(c *config.Config) { c.Service.HTTPPort = c.Service.GRPCPort }},
		{"negative rate limit", func(c *config.Config) { c.Service.HTTPRateLimit = -1 }},
		{"unknown log format", func(c *config.Config) { c.Service.LogFormat = "xml" }},
		{"unknown log level", func(c *config.Config) { c.Service.LogLevel = "verbose" }},
		{"kafka without brokers", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
		{"auth without key", func(c *config.Config) { c.Auth.Required = true }},
		{"tls cert without key", func(c *config.Config) { c.TLS.CertFile = "cert.pem" }},
		{"high above critical", func(c *config.Config) { c.Risk.AlertThresholds.High = 95 }},
		{"negative history limit", func(c *config.Config) { c.Risk.HistoryLimit = -1 }},
		{"unordered thresholds", func(c *config.Config) { c.Risk.Calculators.Regional.Thresholds.Low = 80 }},
		{"decay out of range", func(c *config.Config) { c.Risk.Calculators.Composite.DecayFactor = 1.5 }},
		{"negative weight", func(c *config.Config) {
			c.Risk.Calculators.Supplier.Weights = map[string]float64{"location_risk": -1}
		}},
		{"contamination too high", func(c *config.Config) { c.Risk.Calculators.Anomaly.Contamination = 0.9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}
