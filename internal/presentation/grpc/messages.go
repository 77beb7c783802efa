package grpc

import (
	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/service"
)

// Empty is the request of methods that take no arguments.
type Empty struct{}

// RegionRequest scopes a query to one region; empty means all regions.
type RegionRequest struct {
	Region string `json:"region,omitempty" validate:"max=256"`
}

// TrendsRequest asks for the trend over the last Days days.
type TrendsRequest struct {
	Region string `json:"region,omitempty" validate:"max=256"`
	Days   int    `json:"days,omitempty" validate:"gte=0,lte=3650"`
}

// ThresholdRequest filters supplier scores at or above Threshold.
type ThresholdRequest struct {
	Threshold float64 `json:"threshold" validate:"gte=0,lte=100"`
}

// AcknowledgeRequest identifies an alert to acknowledge.
type AcknowledgeRequest struct {
	AlertID string `json:"alert_id" validate:"required,uuid"`
}

// ExportRequest selects the export encoding.
type ExportRequest struct {
	Format string `json:"format,omitempty" validate:"omitempty,oneof=json yaml yml"`
}

// ScoreResponse is a recorded score with its factor breakdown.
type ScoreResponse struct {
	Score     dto.ScoreRecord   `json:"score"`
	Breakdown manager.Breakdown `json:"breakdown"`
}

// AllRisksResponse holds one score per calculator that ran.
type AllRisksResponse struct {
	Scores map[string]ScoreResponse `json:"scores"`
}

// TrainResponse reports whether the anomaly model was (re)fitted.
type TrainResponse struct {
	Trained bool `json:"trained"`
	Samples int  `json:"samples"`
}

// AlertsResponse lists alerts.
type AlertsResponse struct {
	Alerts []dto.AlertRecord `json:"alerts"`
}

// AcknowledgeResponse confirms an acknowledgement.
type AcknowledgeResponse struct {
	AlertID      string `json:"alert_id"`
	Acknowledged bool   `json:"acknowledged"`
}

// CalculatorStatusResponse is keyed by calculator kind.
type CalculatorStatusResponse struct {
	Calculators map[string]service.Status `json:"calculators"`
}

// SuppliersResponse lists supplier scores above a threshold.
type SuppliersResponse struct {
	Suppliers []manager.SupplierSummary `json:"suppliers"`
}

// ExportResponse carries an encoded export document.
type ExportResponse struct {
	Format   string `json:"format"`
	Document []byte `json:"document"`
}
