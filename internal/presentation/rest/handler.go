package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// RiskReader is the subset of *manager.Manager served over HTTP.
type RiskReader interface {
	AcknowledgeAlert(ctx context.Context, id uuid.UUID) error
	GetActiveAlerts(region string) []model.RiskAlert
	CalculatorStatus() map[valueobject.CalculatorKind]service.Status
	Capabilities() (service.Capabilities, error)
	GetRiskSummary(region string) manager.Summary
	GetRiskTrends(region string, days int) manager.Trends
	GetRiskStatistics() manager.Statistics
	CompositeTrends(region string) manager.CompositeTrend
	CompareRegions() manager.RegionComparison
	SuppliersAtRisk(threshold float64) []manager.SupplierSummary
	AnomalySummary() (manager.AnomalySummary, error)
	Export(format string) ([]byte, error)
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RiskHandler serves the read-only risk API and alert acknowledgement.
type RiskHandler struct {
	risk   RiskReader
	logger *slog.Logger
}

// NewRiskHandler creates a handler over r.
func NewRiskHandler(r RiskReader, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: r, logger: logger}
}

// Routes maps each route pattern to its handler.
func (h *RiskHandler) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /v1/risk/summary":          h.summary,
		"GET /v1/risk/trends":           h.trends,
		"GET /v1/risk/statistics":       h.statistics,
		"GET /v1/risk/composite-trends": h.compositeTrends,
		"GET /v1/regions/compare":       h.compareRegions,
		"GET /v1/suppliers/at-risk":     h.suppliersAtRisk,
		"GET /v1/alerts":                h.activeAlerts,
		"POST /v1/alerts/{id}/ack":      h.acknowledge,
		"GET /v1/anomaly/summary":       h.anomalySummary,
		"GET /v1/anomaly/capabilities":  h.capabilities,
		"GET /v1/calculators":           h.calculators,
		"GET /v1/export":                h.export,
	}
}

func (h *RiskHandler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.GetRiskSummary(r.URL.Query().Get("region")))
}

func (h *RiskHandler) trends(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 3650 {
			writeError(w, http.StatusBadRequest, "days must be an integer in [1, 3650]")
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, h.risk.GetRiskTrends(r.URL.Query().Get("region"), days))
}

func (h *RiskHandler) statistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.GetRiskStatistics())
}

func (h *RiskHandler) compositeTrends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.CompositeTrends(r.URL.Query().Get("region")))
}

func (h *RiskHandler) compareRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.CompareRegions())
}

func (h *RiskHandler) suppliersAtRisk(w http.ResponseWriter, r *http.Request) {
	threshold := valueobject.DefaultThresholds().High
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			writeError(w, http.StatusBadRequest, "threshold must be a number in [0, 100]")
			return
		}
		threshold = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": h.risk.SuppliersAtRisk(threshold)})
}

func (h *RiskHandler) activeAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := dto.FromAlerts(h.risk.GetActiveAlerts(r.URL.Query().Get("region")))
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *RiskHandler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	if err := h.risk.AcknowledgeAlert(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert_id": id.String(), "acknowledged": true})
}

func (h *RiskHandler) anomalySummary(w http.ResponseWriter, _ *http.Request) {
	summary, err := h.risk.AnomalySummary()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RiskHandler) capabilities(w http.ResponseWriter, _ *http.Request) {
	caps, err := h.risk.Capabilities()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (h *RiskHandler) calculators(w http.ResponseWriter, _ *http.Request) {
	statuses := h.risk.CalculatorStatus()
	out := make(map[string]service.Status, len(statuses))
	for kind, st := range statuses {
		out[string(kind)] = st
	}
	writeJSON(w, http.StatusOK, map[string]any{"calculators": out})
}

func (h *RiskHandler) export(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = manager.FormatJSON
	}
	doc, err := h.risk.Export(format)
	if err != nil {
		h.fail(w, err)
		return
	}

	contentType := "application/json"
	if format != manager.FormatJSON {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.logger.Warn("failed to write export", slog.String("error", err.Error()))
	}
}

// fail maps application errors onto HTTP status codes.
func (h *RiskHandler) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, dto.ErrValidation), errors.Is(err, manager.ErrUnsupportedFormat):
		code = http.StatusBadRequest
	case errors.Is(err, manager.ErrAlertNotFound), errors.Is(err, manager.ErrCalculatorUnavailable):
		code = http.StatusNotFound
	case errors.Is(err, manager.ErrNotInitialized):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
