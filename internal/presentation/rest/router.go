package rest

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/peacemap/riskengine/pkg/auth"
)

// RouterConfig assembles the HTTP surface.
type RouterConfig struct {
	Risk    *RiskHandler
	Health  *HealthHandler
	Metrics http.Handler
	// Validator enables bearer-token authentication of /v1 routes when set.
	Validator auth.TokenValidator
	Logger    *slog.Logger
	// RateLimit caps requests per second across all routes; 0 disables it.
	RateLimit float64
}

// AuthPolicy is the role policy for the /v1 routes.
func AuthPolicy() auth.Policy {
	return auth.Policy{
		MinRole: map[string]string{
			"POST /v1/alerts/{id}/ack": auth.RoleAnalyst,
		},
		Default: auth.RoleViewer,
	}
}

// NewRouter builds the HTTP handler. Health and metrics endpoints are never
// authenticated.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(mux)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	if cfg.Risk != nil {
		policy := AuthPolicy()
		for pattern, handler := range cfg.Risk.Routes() {
			var h http.Handler = handler
			if cfg.Validator != nil {
				h = auth.HTTPMiddleware(cfg.Validator, policy, h)
			}
			mux.Handle(pattern, h)
		}
	}

	var handler http.Handler = mux
	if cfg.RateLimit > 0 {
		handler = RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit))))(handler)
	}
	if cfg.Logger != nil {
		handler = LoggingMiddleware(cfg.Logger)(handler)
	}
	return handler
}
