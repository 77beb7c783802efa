package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// Composite factor names.
const (
	FactorEventCount    = "event_count"
	FactorSentiment     = "sentiment"
	FactorPortProximity = "proximity_to_ports"
	FactorEventSeverity = "event_severity"
	FactorTemporalDecay = "temporal_decay"
)

// DefaultCompositeWeights are the composite factor weights.
func DefaultCompositeWeights() map[string]float64 {
	return map[string]float64{
		FactorEventCount:    0.30,
		FactorSentiment:     0.25,
		FactorPortProximity: 0.20,
		FactorEventSeverity: 0.15,
		FactorTemporalDecay: 0.10,
	}
}

// CompositeConfig configures the composite calculator. Zero tunables take
// their defaults.
type CompositeConfig struct {
	BaseConfig
	MaxEventsPerRegion       int
	SentimentWeightNegative  float64
	PortProximityThresholdKm float64
	TimeWindowDays           int
}

func (c *CompositeConfig) applyDefaults() {
	if c.MaxEventsPerRegion <= 0 {
		c.MaxEventsPerRegion = 100
	}
	if c.SentimentWeightNegative <= 0 {
		c.SentimentWeightNegative = 1.5
	}
	if c.PortProximityThresholdKm <= 0 {
		c.PortProximityThresholdKm = 50
	}
	if c.TimeWindowDays <= 0 {
		c.TimeWindowDays = 30
	}
}

// CompositeCalculator scores an event collection by volume, sentiment, port
// proximity, severity and recency.
type CompositeCalculator struct {
	*Base
	cfg CompositeConfig
}

// NewCompositeCalculator creates a CompositeCalculator.
func NewCompositeCalculator(cfg CompositeConfig, opts ...Option) *CompositeCalculator {
	cfg.applyDefaults()
	return &CompositeCalculator{
		Base: newBase(valueobject.CalculatorComposite, DefaultCompositeWeights(), cfg.BaseConfig, opts...),
		cfg:  cfg,
	}
}

// Calculate scores req.Events. req.WindowDays overrides the configured window.
func (c *CompositeCalculator) Calculate(_ context.Context, req Request) (score model.RiskScore) {
	defer c.recoverEmpty(req.Region, &score)

	window := req.WindowDays
	if window <= 0 {
		window = c.cfg.TimeWindowDays
	}
	now := c.now()

	factors := []model.RiskFactor{
		c.factor(FactorEventCount, "event_analysis", c.eventCount(req.Events, window, now)),
		c.factor(FactorSentiment, "sentiment_analysis", c.sentiment(req.Events)),
		c.factor(FactorPortProximity, "geographic_analysis", c.portProximity(req.Events, req.Ports)),
		c.factor(FactorEventSeverity, "severity_analysis", c.severity(req.Events)),
		c.factor(FactorTemporalDecay, "temporal_analysis", c.temporalDecay(req.Events, now)),
	}

	return c.build(req.Region, factors, map[string]any{
		"time_window_days": window,
		"event_count":      len(req.Events),
		"port_count":       len(req.Ports),
	})
}

func (c *CompositeCalculator) eventCount(events []model.Event, windowDays int, now time.Time) factorResult {
	cutoff := now.AddDate(0, 0, -windowDays)
	recent := 0
	for _, e := range events {
		if !e.PublishedAt.IsZero() && !e.PublishedAt.Before(cutoff) {
			recent++
		}
	}
	if recent == 0 {
		return noData(0, 0, fmt.Sprintf("No events in the last %d days", windowDays))
	}

	value := math.Min(float64(recent)/float64(c.cfg.MaxEventsPerRegion), 1) * 100
	return factorResult{
		value:      value,
		confidence: ratio(float64(recent), 10),
		note:       fmt.Sprintf("%d events in the last %d days", recent, windowDays),
	}
}

func (c *CompositeCalculator) sentiment(events []model.Event) factorResult {
	if len(events) == 0 {
		return noData(0, 0, "No events")
	}

	var sum float64
	n := 0
	for _, e := range events {
		if e.SentimentScore != nil {
			sum += *e.SentimentScore
			n++
		}
	}
	if n == 0 {
		return noData(50, 0.3, "No sentiment data available")
	}

	mean := sum / float64(n)
	var value float64
	if mean < 0 {
		value = math.Abs(mean) * 100 * c.cfg.SentimentWeightNegative
	} else {
		value = (1 - mean) * 50
	}

	return factorResult{
		value:      math.Min(value, 100),
		confidence: ratio(float64(n), 20),
		note:       fmt.Sprintf("Average sentiment %.2f over %d events", mean, n),
	}
}

func (c *CompositeCalculator) portProximity(events []model.Event, ports []model.Port) factorResult {
	if len(events) == 0 || len(ports) == 0 {
		return noData(0, 0, "No port data or events")
	}

	threshold := c.cfg.PortProximityThresholdKm
	var sum float64
	n := 0
	for _, e := range events {
		if e.Location == nil {
			continue
		}
		d, ok := nearestPortKm(e.Location.Lat, e.Location.Lon, ports)
		if !ok || math.IsNaN(d) || d > threshold {
			continue
		}
		sum += (threshold - d) / threshold * 100
		n++
	}
	if n == 0 {
		return noData(0, 1, fmt.Sprintf("No events within %.0f km of a port", threshold))
	}

	return factorResult{
		value:      sum / float64(n),
		confidence: ratio(float64(n), 10),
		note:       fmt.Sprintf("%d events within %.0f km of a port", n, threshold),
	}
}

func (c *CompositeCalculator) severity(events []model.Event) factorResult {
	if len(events) == 0 {
		return noData(0, 0, "No events")
	}

	var sum float64
	n := 0
	for _, e := range events {
		if e.Severity.IsZero() {
			continue
		}
		sum += e.Severity.Score()
		n++
	}
	if n == 0 {
		return noData(0, 0.3, "No severity data available")
	}

	mean := sum / float64(n)
	return factorResult{
		value:      mean,
		confidence: ratio(float64(n), 20),
		note:       fmt.Sprintf("Average severity score %.1f", mean),
	}
}

func (c *CompositeCalculator) temporalDecay(events []model.Event, now time.Time) factorResult {
	var sum float64
	n := 0
	for _, e := range events {
		if e.PublishedAt.IsZero() {
			continue
		}
		daysOld := int(now.Sub(e.PublishedAt).Hours() / 24)
		sum += c.decay(100, daysOld)
		n++
	}
	if n == 0 {
		return noData(0, 0, "No dated events")
	}

	mean := sum / float64(n)
	return factorResult{
		value:      mean,
		confidence: ratio(float64(n), 50),
		note:       fmt.Sprintf("Recency-weighted intensity %.1f", mean),
	}
}
