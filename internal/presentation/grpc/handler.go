package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// RiskManager is the subset of *manager.Manager the handler serves.
type RiskManager interface {
	CalculateCompositeRisk(ctx context.Context, req service.Request) (model.RiskScore, error)
	CalculateRegionalRisk(ctx context.Context, region string, req service.Request) (model.RiskScore, error)
	CalculateSupplierRisk(ctx context.Context, supplier model.Supplier) (model.RiskScore, error)
	DetectAnomalies(ctx context.Context, req service.Request) (model.RiskScore, error)
	CalculateAllRisks(ctx context.Context, req service.Request) map[valueobject.CalculatorKind]model.RiskScore
	TrainAnomalyDetector(ctx context.Context, samples []model.Sample) (bool, error)
	AcknowledgeAlert(ctx context.Context, id uuid.UUID) error
	Ready() bool
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

// RiskHandler implements RiskServiceServer on top of the risk manager.
type RiskHandler struct {
	manager RiskManager
	logger  *slog.Logger
}

var _ RiskServiceServer = (*RiskHandler)(nil)

// NewRiskHandler creates a handler serving m.
func NewRiskHandler(m RiskManager, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{manager: m, logger: logger}
}

// CalculateCompositeRisk scores an event collection.
func (h *RiskHandler) CalculateCompositeRisk(ctx context.Context, req *dto.ScoreRequest) (*ScoreResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	score, err := h.manager.CalculateCompositeRisk(ctx, req.ToService())
	return h.scoreResponse(score, err, "composite")
}

// CalculateRegionalRisk scores the request's region.
func (h *RiskHandler) CalculateRegionalRisk(ctx context.Context, req *dto.ScoreRequest) (*ScoreResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	if strings.TrimSpace(req.Region) == "" {
		return nil, status.Error(codes.InvalidArgument, "region is required")
	}
	score, err := h.manager.CalculateRegionalRisk(ctx, req.Region, req.ToService())
	return h.scoreResponse(score, err, "regional")
}

// CalculateSupplierRisk scores one supplier.
func (h *RiskHandler) CalculateSupplierRisk(ctx context.Context, req *dto.SupplierRequest) (*ScoreResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	score, err := h.manager.CalculateSupplierRisk(ctx, req.Supplier)
	return h.scoreResponse(score, err, "supplier")
}

// DetectAnomalies runs the anomaly detector.
func (h *RiskHandler) DetectAnomalies(ctx context.Context, req *dto.ScoreRequest) (*ScoreResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	score, err := h.manager.DetectAnomalies(ctx, req.ToService())
	return h.scoreResponse(score, err, "anomaly")
}

// CalculateAllRisks runs every applicable calculator.
func (h *RiskHandler) CalculateAllRisks(ctx context.Context, req *dto.ScoreRequest) (*AllRisksResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	if !h.manager.Ready() {
		return nil, toStatus(manager.ErrNotInitialized)
	}

	scores := h.manager.CalculateAllRisks(ctx, req.ToService())
	resp := &AllRisksResponse{Scores: make(map[string]ScoreResponse, len(scores))}
	for kind, score := range scores {
		resp.Scores[string(kind)] = newScoreResponse(score)
	}
	return resp, nil
}

// TrainAnomalyDetector fits the anomaly model on historical samples.
func (h *RiskHandler) TrainAnomalyDetector(ctx context.Context, req *dto.TrainRequest) (*TrainResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	ok, err := h.manager.TrainAnomalyDetector(ctx, req.Samples)
	if err != nil {
		return nil, toStatus(err)
	}
	h.logger.Info("anomaly detector training requested",
		slog.Int("samples", len(req.Samples)),
		slog.Bool("trained", ok),
	)
	return &TrainResponse{Trained: ok, Samples: len(req.Samples)}, nil
}

// GetRiskSummary summarizes a region's history.
func (h *RiskHandler) GetRiskSummary(_ context.Context, req *RegionRequest) (*manager.Summary, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	summary := h.manager.GetRiskSummary(req.Region)
	return &summary, nil
}

// GetRiskTrends fits a trend over a region's recent scores.
func (h *RiskHandler) GetRiskTrends(_ context.Context, req *TrendsRequest) (*manager.Trends, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	trends := h.manager.GetRiskTrends(req.Region, req.Days)
	return &trends, nil
}

// ListActiveAlerts returns unacknowledged alerts.
func (h *RiskHandler) ListActiveAlerts(_ context.Context, req *RegionRequest) (*AlertsResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	return &AlertsResponse{Alerts: dto.FromAlerts(h.manager.GetActiveAlerts(req.Region))}, nil
}

// AcknowledgeAlert marks an alert acknowledged.
func (h *RiskHandler) AcknowledgeAlert(ctx context.Context, req *AcknowledgeRequest) (*AcknowledgeResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	id, err := uuid.Parse(req.AlertID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid alert_id: %v", err)
	}
	if err := h.manager.AcknowledgeAlert(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &AcknowledgeResponse{AlertID: id.String(), Acknowledged: true}, nil
}

// GetRiskStatistics summarizes the whole history.
func (h *RiskHandler) GetRiskStatistics(_ context.Context, _ *Empty) (*manager.Statistics, error) {
	stats := h.manager.GetRiskStatistics()
	return &stats, nil
}

// GetCalculatorStatus reports each registered calculator.
func (h *RiskHandler) GetCalculatorStatus(_ context.Context, _ *Empty) (*CalculatorStatusResponse, error) {
	statuses := h.manager.CalculatorStatus()
	resp := &CalculatorStatusResponse{Calculators: make(map[string]service.Status, len(statuses))}
	for kind, st := range statuses {
		resp.Calculators[string(kind)] = st
	}
	return resp, nil
}

// GetCompositeTrends compares early and late composite scores for a region.
func (h *RiskHandler) GetCompositeTrends(_ context.Context, req *RegionRequest) (*manager.CompositeTrend, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	trend := h.manager.CompositeTrends(req.Region)
	return &trend, nil
}

// CompareRegions ranks regions by their latest regional score.
func (h *RiskHandler) CompareRegions(_ context.Context, _ *Empty) (*manager.RegionComparison, error) {
	cmp := h.manager.CompareRegions()
	return &cmp, nil
}

// ListSuppliersAtRisk returns supplier scores at or above a threshold.
func (h *RiskHandler) ListSuppliersAtRisk(_ context.Context, req *ThresholdRequest) (*SuppliersResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	return &SuppliersResponse{Suppliers: h.manager.SuppliersAtRisk(req.Threshold)}, nil
}

// GetAnomalySummary reports the detector state and recorded anomalies.
func (h *RiskHandler) GetAnomalySummary(_ context.Context, _ *Empty) (*manager.AnomalySummary, error) {
	summary, err := h.manager.AnomalySummary()
	if err != nil {
		return nil, toStatus(err)
	}
	return &summary, nil
}

// GetCapabilities lists the anomaly detection methods.
func (h *RiskHandler) GetCapabilities(_ context.Context, _ *Empty) (*service.Capabilities, error) {
	caps, err := h.manager.Capabilities()
	if err != nil {
		return nil, toStatus(err)
	}
	return &caps, nil
}

// Export renders the history and alert log.
func (h *RiskHandler) Export(_ context.Context, req *ExportRequest) (*ExportResponse, error) {
	if err := dto.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	format := req.Format
	if format == "" {
		format = manager.FormatJSON
	}
	doc, err := h.manager.Export(format)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ExportResponse{Format: format, Document: doc}, nil
}

func (h *RiskHandler) scoreResponse(score model.RiskScore, err error, kind string) (*ScoreResponse, error) {
	if err != nil {
		h.logger.Warn("risk calculation rejected",
			slog.String("calculator", kind),
			slog.String("error", err.Error()),
		)
		return nil, toStatus(err)
	}
	resp := newScoreResponse(score)
	return &resp, nil
}

func newScoreResponse(score model.RiskScore) ScoreResponse {
	return ScoreResponse{
		Score:     dto.FromScore(score),
		Breakdown: manager.BreakdownOf(score),
	}
}

// toStatus maps application errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dto.ErrValidation), errors.Is(err, manager.ErrUnsupportedFormat):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, manager.ErrCalculatorUnavailable), errors.Is(err, manager.ErrNotInitialized):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, manager.ErrAlertNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
