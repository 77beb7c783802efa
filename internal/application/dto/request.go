package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
)

// ErrValidation is returned, wrapped, by Validate for any rejected request.
var ErrValidation = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its struct tags.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

// ScoreRequest is the input for every scoring operation. Calculators read the
// fields relevant to them.
type ScoreRequest struct {
	Bounds         *model.Bounds           `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Supplier       *model.Supplier         `json:"supplier,omitempty" yaml:"supplier,omitempty"`
	Economic       map[string]float64      `json:"economic_data,omitempty" yaml:"economic_data,omitempty"`
	Political      map[string]float64      `json:"political_data,omitempty" yaml:"political_data,omitempty"`
	Infrastructure map[string]float64      `json:"infrastructure_data,omitempty" yaml:"infrastructure_data,omitempty"`
	Metrics        map[string]float64      `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Region         string                  `json:"region,omitempty" yaml:"region,omitempty" validate:"max=256"`
	Events         []model.Event           `json:"events,omitempty" yaml:"events,omitempty" validate:"dive"`
	Ports          []model.Port            `json:"ports,omitempty" yaml:"ports,omitempty" validate:"dive"`
	TimeSeries     []model.TimeSeriesPoint `json:"time_series,omitempty" yaml:"time_series,omitempty" validate:"dive"`
	WindowDays     int                     `json:"window_days,omitempty" yaml:"window_days,omitempty" validate:"gte=0,lte=3650"`
}

// ToService converts the request to a calculator request.
func (r ScoreRequest) ToService() service.Request {
	return service.Request{
		Bounds:         r.Bounds,
		Supplier:       r.Supplier,
		Economic:       r.Economic,
		Political:      r.Political,
		Infrastructure: r.Infrastructure,
		Metrics:        r.Metrics,
		Region:         r.Region,
		Events:         r.Events,
		Ports:          r.Ports,
		TimeSeries:     r.TimeSeries,
		WindowDays:     r.WindowDays,
	}
}

// SupplierRequest scores one supplier.
type SupplierRequest struct {
	Supplier model.Supplier `json:"supplier" yaml:"supplier"`
}

// TrainRequest carries historical samples for the anomaly detector.
type TrainRequest struct {
	Samples []model.Sample `json:"samples" yaml:"samples" validate:"required,min=1"`
}

// EventBatch is the message published by the ingestion pipeline for a
// region's normalized events.
type EventBatch struct {
	Bounds *model.Bounds `json:"bounds,omitempty"`
	Region string        `json:"region,omitempty" validate:"max=256"`
	Events []model.Event `json:"events" validate:"required,min=1,dive"`
	Ports  []model.Port  `json:"ports,omitempty" validate:"dive"`
	// Metrics, when present, are also screened for anomalies.
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	WindowDays int                `json:"window_days,omitempty" validate:"gte=0,lte=3650"`
}

// ToService converts the batch to a calculator request.
func (b EventBatch) ToService() service.Request {
	return service.Request{
		Bounds:     b.Bounds,
		Region:     b.Region,
		Events:     b.Events,
		Metrics:    b.Metrics,
		Ports:      b.Ports,
		WindowDays: b.WindowDays,
	}
}
