package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
)

// Scorer is the part of the risk manager the event consumer drives.
type Scorer interface {
	CalculateCompositeRisk(ctx context.Context, req service.Request) (model.RiskScore, error)
	CalculateRegionalRisk(ctx context.Context, region string, req service.Request) (model.RiskScore, error)
	DetectAnomalies(ctx context.Context, req service.Request) (model.RiskScore, error)
}

// EventBatchHandler scores each consumed batch of normalized events.
type EventBatchHandler struct {
	scorer Scorer
	logger *slog.Logger
}

// NewEventBatchHandler creates a handler.
func NewEventBatchHandler(scorer Scorer, logger *slog.Logger) *EventBatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBatchHandler{scorer: scorer, logger: logger}
}

// Handle decodes and validates a dto.EventBatch, then runs composite scoring,
// regional scoring when the batch names a region, and anomaly detection when
// it carries metrics. Malformed batches fail with pkgkafka.ErrPermanent.
func (h *EventBatchHandler) Handle(ctx context.Context, msg pkgkafka.Message) error {
	var batch dto.EventBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return fmt.Errorf("%w: decode event batch: %w", pkgkafka.ErrPermanent, err)
	}
	if err := dto.Validate(batch); err != nil {
		return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
	}

	req := batch.ToService()
	composite, err := h.scorer.CalculateCompositeRisk(ctx, req)
	if err = h.check("composite", err); err != nil {
		return err
	}

	logArgs := []any{
		"region", batch.Region,
		"events", len(batch.Events),
		"composite", composite.OverallScore,
	}

	if batch.Region != "" {
		regional, err := h.scorer.CalculateRegionalRisk(ctx, batch.Region, req)
		if err = h.check("regional", err); err != nil {
			return err
		}
		logArgs = append(logArgs, "regional", regional.OverallScore)
	}

	if len(batch.Metrics) > 0 {
		anomaly, err := h.scorer.DetectAnomalies(ctx, req)
		if err = h.check("anomaly", err); err != nil {
			return err
		}
		logArgs = append(logArgs, "anomaly", anomaly.OverallScore)
	}

	h.logger.InfoContext(ctx, "event batch scored", logArgs...)
	return nil
}

// check tolerates disabled calculators and marks a failed calculation as
// permanent, since replaying the same batch fails the same way.
func (h *EventBatchHandler) check(kind string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, manager.ErrCalculatorUnavailable):
		h.logger.Debug("calculator disabled, skipping", "calculator", kind)
		return nil
	case errors.Is(err, manager.ErrNotInitialized):
		return fmt.Errorf("%s scoring: %w", kind, err)
	default:
		return fmt.Errorf("%w: %s scoring: %w", pkgkafka.ErrPermanent, kind, err)
	}
}
