// Package config loads riskd configuration from an optional YAML file with
// RISKENGINE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// ErrInvalidConfig is returned, wrapped, by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes every environment override, e.g. RISKENGINE_SERVICE_GRPC_PORT.
const EnvPrefix = "RISKENGINE"

// Config holds all configuration for riskd.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Risk      RiskConfig      `mapstructure:"risk"`
}

// ServiceConfig configures the process itself.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	GRPCPort    int    `mapstructure:"grpc_port"`
	HTTPPort    int    `mapstructure:"http_port"`
	// HTTPRateLimit caps HTTP requests per second; 0 disables limiting.
	HTTPRateLimit float64 `mapstructure:"http_rate_limit"`
}

// DatabaseConfig configures the Postgres score store. An empty URL disables it.
type DatabaseConfig struct {
	URL           string `mapstructure:"url"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	MaxConns      int32  `mapstructure:"max_conns"`
}

// KafkaConfig configures event ingestion and domain event relay.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	RiskTopic     string   `mapstructure:"risk_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Enabled       bool     `mapstructure:"enabled"`
}

// AuthConfig configures JWT authentication of gRPC calls.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	PublicKeyFile string `mapstructure:"public_key_file"`
	Issuer        string `mapstructure:"issuer"`
	Required      bool   `mapstructure:"required"`
}

// TLSConfig enables TLS on the gRPC listener when both files are set.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether TLS is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

// RiskConfig configures the risk manager and its calculators.
type RiskConfig struct {
	AlertThresholds manager.AlertThresholds `mapstructure:"alert_thresholds"`
	Calculators     CalculatorsConfig       `mapstructure:"calculators"`
	HistoryLimit    int                     `mapstructure:"history_limit"`
}

// CalculatorsConfig holds per-calculator settings.
type CalculatorsConfig struct {
	Composite CompositeConfig `mapstructure:"composite"`
	Regional  RegionalConfig  `mapstructure:"regional"`
	Supplier  SupplierConfig  `mapstructure:"supplier"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
}

// CalculatorConfig is shared by every calculator section.
type CalculatorConfig struct {
	Weights     map[string]float64     `mapstructure:"weights"`
	Thresholds  valueobject.Thresholds `mapstructure:"thresholds"`
	DecayFactor float64                `mapstructure:"decay_factor"`
	Enabled     bool                   `mapstructure:"enabled"`
}

func (c CalculatorConfig) base() service.BaseConfig {
	return service.BaseConfig{Weights: c.Weights, Thresholds: c.Thresholds, DecayFactor: c.DecayFactor}
}

// CompositeConfig configures the composite calculator.
type CompositeConfig struct {
	CalculatorConfig         `mapstructure:",squash"`
	MaxEventsPerRegion       int     `mapstructure:"max_events_per_region"`
	SentimentWeightNegative  float64 `mapstructure:"sentiment_weight_negative"`
	PortProximityThresholdKm float64 `mapstructure:"port_proximity_threshold_km"`
	TimeWindowDays           int     `mapstructure:"time_window_days"`
}

// RegionalConfig configures the regional calculator.
type RegionalConfig struct {
	CalculatorConfig       `mapstructure:",squash"`
	MaxEventDensity        float64 `mapstructure:"max_event_density"`
	RegionSizeThresholdKm2 float64 `mapstructure:"region_size_threshold_km2"`
}

// SupplierConfig configures the supplier calculator.
type SupplierConfig struct {
	CalculatorConfig       `mapstructure:",squash"`
	RequiredCertifications []string `mapstructure:"required_certifications"`
	MinCreditRating        float64  `mapstructure:"min_credit_rating"`
	MaxDebtRatio           float64  `mapstructure:"max_debt_ratio"`
	MinProfitMargin        float64  `mapstructure:"min_profit_margin"`
}

// AnomalyConfig configures the anomaly detector.
type AnomalyConfig struct {
	CalculatorConfig `mapstructure:",squash"`
	Contamination    float64 `mapstructure:"contamination"`
	WindowSize       int     `mapstructure:"window_size"`
	MinSamples       int     `mapstructure:"min_samples"`
	ZScoreThreshold  float64 `mapstructure:"z_score_threshold"`
	Trees            int     `mapstructure:"trees"`
	Seed             int64   `mapstructure:"seed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "riskd")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_format", "json")
	v.SetDefault("service.grpc_port", 9090)
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.http_rate_limit", 100.0)

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "peacemap.events.normalized")
	v.SetDefault("kafka.risk_topic", "peacemap.risk.events")
	v.SetDefault("kafka.consumer_group", "riskd")

	v.SetDefault("auth.required", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.public_key_file", "")
	v.SetDefault("auth.issuer", "peacemap")

	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")

	thresholds := valueobject.DefaultThresholds()
	alerts := manager.DefaultAlertThresholds()
	v.SetDefault("risk.alert_thresholds.high", alerts.High)
	v.SetDefault("risk.alert_thresholds.critical", alerts.Critical)
	v.SetDefault("risk.history_limit", 0)

	for _, kind := range valueobject.CalculatorKinds() {
		prefix := "risk.calculators." + string(kind) + "."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"decay_factor", service.DefaultDecayFactor)
		v.SetDefault(prefix+"thresholds.low", thresholds.Low)
		v.SetDefault(prefix+"thresholds.medium", thresholds.Medium)
		v.SetDefault(prefix+"thresholds.high", thresholds.High)
		v.SetDefault(prefix+"thresholds.critical", thresholds.Critical)
	}

	v.SetDefault("risk.calculators.composite.max_events_per_region", 100)
	v.SetDefault("risk.calculators.composite.sentiment_weight_negative", 1.5)
	v.SetDefault("risk.calculators.composite.port_proximity_threshold_km", 50.0)
	v.SetDefault("risk.calculators.composite.time_window_days", 30)

	v.SetDefault("risk.calculators.regional.max_event_density", 10.0)
	v.SetDefault("risk.calculators.regional.region_size_threshold_km2", 100.0)

	v.SetDefault("risk.calculators.supplier.required_certifications", service.DefaultRequiredCertifications())
	v.SetDefault("risk.calculators.supplier.min_credit_rating", 600.0)
	v.SetDefault("risk.calculators.supplier.max_debt_ratio", 0.6)
	v.SetDefault("risk.calculators.supplier.min_profit_margin", 0.05)

	v.SetDefault("risk.calculators.anomaly.contamination", 0.1)
	v.SetDefault("risk.calculators.anomaly.window_size", 30)
	v.SetDefault("risk.calculators.anomaly.min_samples", 10)
	v.SetDefault("risk.calculators.anomaly.z_score_threshold", 2.0)
	v.SetDefault("risk.calculators.anomaly.trees", 100)
	v.SetDefault("risk.calculators.anomaly.seed", 42)
}

// Load reads configuration from path, if non-empty, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ports, log settings, auth and every risk tunable.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Service.GRPCPort > 0 && c.Service.GRPCPort < 65536, "service.grpc_port out of range: %d", c.Service.GRPCPort)
	check(c.Service.HTTPPort > 0 && c.Service.HTTPPort < 65536, "service.http_port out of range: %d", c.Service.HTTPPort)
	check(c.Service.GRPCPort != c.Service.HTTPPort, "service.grpc_port and service.http_port must differ")
	check(c.Service.HTTPRateLimit >= 0, "service.http_rate_limit must not be negative")
	check(oneOf(c.Service.LogFormat, "json", "text"), "service.log_format must be json or text, got %q", c.Service.LogFormat)
	check(oneOf(strings.ToLower(c.Service.LogLevel), "debug", "info", "warn", "error"), "service.log_level unknown: %q", c.Service.LogLevel)

	check(c.Database.MaxConns > 0, "database.max_conns must be positive")
	if c.Kafka.Enabled {
		check(len(c.Kafka.Brokers) > 0, "kafka.brokers is required when kafka is enabled")
		check(c.Kafka.EventsTopic != "" && c.Kafka.RiskTopic != "", "kafka topics are required when kafka is enabled")
	}
	if c.Auth.Required {
		check(c.Auth.JWTSecret != "" || c.Auth.PublicKeyFile != "", "auth.jwt_secret or auth.public_key_file is required when auth is required")
	}
	check((c.TLS.CertFile == "") == (c.TLS.KeyFile == ""), "tls.cert_file and tls.key_file must be set together")

	r := c.Risk
	check(r.AlertThresholds.High >= 0 && r.AlertThresholds.High <= r.AlertThresholds.Critical,
		"risk.alert_thresholds must satisfy 0 <= high <= critical")
	check(r.HistoryLimit >= 0, "risk.history_limit must be non-negative")

	calcs := map[valueobject.CalculatorKind]CalculatorConfig{
		valueobject.CalculatorComposite: r.Calculators.Composite.CalculatorConfig,
		valueobject.CalculatorRegional:  r.Calculators.Regional.CalculatorConfig,
		valueobject.CalculatorSupplier:  r.Calculators.Supplier.CalculatorConfig,
		valueobject.CalculatorAnomaly:   r.Calculators.Anomaly.CalculatorConfig,
	}
	for _, kind := range valueobject.CalculatorKinds() {
		cc := calcs[kind]
		if err := cc.Thresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("risk.calculators.%s.thresholds: %w", kind, err))
		}
		check(cc.DecayFactor > 0 && cc.DecayFactor < 1, "risk.calculators.%s.decay_factor must be in (0,1)", kind)
		for name, w := range cc.Weights {
			check(w >= 0, "risk.calculators.%s.weights.%s must be non-negative", kind, name)
		}
	}

	a := r.Calculators.Anomaly
	check(a.Contamination > 0 && a.Contamination <= 0.5, "risk.calculators.anomaly.contamination must be in (0,0.5]")
	check(a.MinSamples > 0, "risk.calculators.anomaly.min_samples must be positive")
	check(a.ZScoreThreshold > 0, "risk.calculators.anomaly.z_score_threshold must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ManagerConfig converts the risk section into the manager's configuration.
func (r RiskConfig) ManagerConfig() manager.Config {
	c := r.Calculators
	cfg := manager.Config{
		AlertThresholds: r.AlertThresholds,
		HistoryLimit:    r.HistoryLimit,
		Composite: service.CompositeConfig{
			BaseConfig:               c.Composite.base(),
			MaxEventsPerRegion:       c.Composite.MaxEventsPerRegion,
			SentimentWeightNegative:  c.Composite.SentimentWeightNegative,
			PortProximityThresholdKm: c.Composite.PortProximityThresholdKm,
			TimeWindowDays:           c.Composite.TimeWindowDays,
		},
		Regional: service.RegionalConfig{
			BaseConfig:             c.Regional.base(),
			MaxEventDensity:        c.Regional.MaxEventDensity,
			RegionSizeThresholdKm2: c.Regional.RegionSizeThresholdKm2,
		},
		Supplier: service.SupplierConfig{
			BaseConfig:             c.Supplier.base(),
			RequiredCertifications: c.Supplier.RequiredCertifications,
			MinCreditRating:        c.Supplier.MinCreditRating,
			MaxDebtRatio:           c.Supplier.MaxDebtRatio,
			MinProfitMargin:        c.Supplier.MinProfitMargin,
		},
		Anomaly: service.AnomalyConfig{
			BaseConfig:      c.Anomaly.base(),
			Contamination:   c.Anomaly.Contamination,
			WindowSize:      c.Anomaly.WindowSize,
			MinSamples:      c.Anomaly.MinSamples,
			ZScoreThreshold: c.Anomaly.ZScoreThreshold,
			Trees:           c.Anomaly.Trees,
			Seed:            c.Anomaly.Seed,
		},
	}

	enabled := map[valueobject.CalculatorKind]bool{
		valueobject.CalculatorComposite: c.Composite.Enabled,
		valueobject.CalculatorRegional:  c.Regional.Enabled,
		valueobject.CalculatorSupplier:  c.Supplier.Enabled,
		valueobject.CalculatorAnomaly:   c.Anomaly.Enabled,
	}
	for _, kind := range valueobject.CalculatorKinds() {
		if !enabled[kind] {
			cfg.Disabled = append(cfg.Disabled, kind)
		}
	}
	return cfg
}

// GRPCAddress returns the full gRPC listen address.
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf(":%d", c.Service.GRPCPort)
}

// HTTPAddress returns the full HTTP listen address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.Service.HTTPPort)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
