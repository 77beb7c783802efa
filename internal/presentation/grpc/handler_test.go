package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
	"github.com/peacemap/riskengine/pkg/testutil"
)

// --- Test doubles ---

// fixedCalculator always scores value.
type fixedCalculator struct {
	kind  valueobject.CalculatorKind
	value float64
}

func (f fixedCalculator) Kind() valueobject.CalculatorKind { return f.kind }

func (f fixedCalculator) Initialize(context.Context) error { return nil }

func (f fixedCalculator) Status() service.Status {
	return service.Status{Kind: string(f.kind), Weights: map[string]float64{"fixed": 1}, Initialized: true}
}

func (f fixedCalculator) Calculate(_ context.Context, req service.Request) model.RiskScore {
	return model.RiskScore{
		ID:           uuid.New(),
		Calculator:   f.kind,
		Region:       req.Region,
		OverallScore: f.value,
		RiskLevel:    valueobject.DefaultThresholds().Classify(f.value),
		Confidence:   1,
		CalculatedAt: testutil.TestTime,
		Factors: []model.RiskFactor{
			{Name: "primary", Value: f.value, Weight: 0.75, Confidence: 1},
			{Name: "secondary", Value: f.value, Weight: 0.25, Confidence: 1},
		},
		Metadata: map[string]any{},
	}
}

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg manager.Config, opts ...manager.Option) *manager.Manager {
	t.Helper()
	opts = append([]manager.Option{
		manager.WithClock(testutil.FixedClock(testutil.TestTime)),
		manager.WithLogger(testLogger()),
	}, opts...)
	m, err := manager.New(cfg, opts...)
	require.NoError(t, err)
	return m
}

func buildTestHandler(t *testing.T, opts ...manager.Option) *RiskHandler {
	t.Helper()
	m := newTestManager(t, manager.Config{}, opts...)
	require.NoError(t, m.Initialize(context.Background()))
	return NewRiskHandler(m, testLogger())
}

func sampleEvents() []model.Event {
	return []model.Event{
		{ID: "e1", Title: "port strike", PublishedAt: testutil.TestTime, Severity: valueobject.SeverityHigh, Confidence: 0.9},
		{ID: "e2", Title: "protest", PublishedAt: testutil.TestTime.Add(-time.Hour), Severity: valueobject.SeverityMedium},
	}
}

func assertCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected a gRPC status, got %v", err)
	assert.Equal(t, code, st.Code(), st.Message())
}

// --- Tests ---

func TestCalculateCompositeRisk_Success(t *testing.T) {
	h := buildTestHandler(t)

	resp, err := h.CalculateCompositeRisk(context.Background(), &dto.ScoreRequest{
		Region: "gulf",
		Events: sampleEvents(),
	})
	require.NoError(t, err)

	assert.Equal(t, "composite", resp.Score.Calculator)
	assert.Equal(t, "gulf", resp.Score.Region)
	assert.Len(t, resp.Score.Factors, 5)
	assert.InDelta(t, resp.Score.OverallScore, resp.Breakdown.OverallScore, 1e-9)

	var sum float64
	for _, f := range resp.Breakdown.Factors {
		sum += f.WeightedContribution
	}
	assert.InDelta(t, resp.Score.OverallScore, sum, 1e-6)
}

func TestCalculateCompositeRisk_ValidationError(t *testing.T) {
	h := buildTestHandler(t)

	_, err := h.CalculateCompositeRisk(context.Background(), &dto.ScoreRequest{
		Events: []model.Event{{ID: "e1", PublishedAt: testutil.TestTime}},
	})
	assertCode(t, err, codes.InvalidArgument)
}

func TestCalculateRegionalRisk_RequiresRegion(t *testing.T) {
	h := buildTestHandler(t)

	_, err := h.CalculateRegionalRisk(context.Background(), &dto.ScoreRequest{Region: "  "})
	assertCode(t, err, codes.InvalidArgument)

	resp, err := h.CalculateRegionalRisk(context.Background(), &dto.ScoreRequest{Region: "Middle East"})
	require.NoError(t, err)
	assert.Equal(t, "regional", resp.Score.Calculator)
	assert.Equal(t, "Middle East", resp.Score.Region)
}

func TestCalculateSupplierRisk(t *testing.T) {
	h := buildTestHandler(t)

	resp, err := h.CalculateSupplierRisk(context.Background(), &dto.SupplierRequest{
		Supplier: model.Supplier{ID: "s-1", Name: "Acme", Country: "Germany"},
	})
	require.NoError(t, err)
	assert.Equal(t, "supplier", resp.Score.Calculator)

	_, err = h.CalculateSupplierRisk(context.Background(), &dto.SupplierRequest{})
	assertCode(t, err, codes.InvalidArgument)
}

func TestScoring_NotInitialized(t *testing.T) {
	m := newTestManager(t, manager.Config{})
	h := NewRiskHandler(m, testLogger())

	_, err := h.CalculateCompositeRisk(context.Background(), &dto.ScoreRequest{})
	assertCode(t, err, codes.FailedPrecondition)

	_, err = h.CalculateAllRisks(context.Background(), &dto.ScoreRequest{})
	assertCode(t, err, codes.FailedPrecondition)
}

func TestScoring_DisabledCalculator(t *testing.T) {
	m := newTestManager(t, manager.Config{
		Disabled: []valueobject.CalculatorKind{valueobject.CalculatorAnomaly},
	})
	require.NoError(t, m.Initialize(context.Background()))
	h := NewRiskHandler(m, testLogger())

	_, err := h.DetectAnomalies(context.Background(), &dto.ScoreRequest{Metrics: map[string]float64{"x": 1}})
	assertCode(t, err, codes.FailedPrecondition)

	_, err = h.TrainAnomalyDetector(context.Background(), &dto.TrainRequest{
		Samples: []model.Sample{{Metrics: map[string]float64{"x": 1}}},
	})
	assertCode(t, err, codes.FailedPrecondition)

	_, err = h.GetCapabilities(context.Background(), &Empty{})
	assertCode(t, err, codes.FailedPrecondition)
}

func TestCalculateAllRisks(t *testing.T) {
	h := buildTestHandler(t)

	resp, err := h.CalculateAllRisks(context.Background(), &dto.ScoreRequest{
		Region: "Western Europe",
		Events: sampleEvents(),
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Scores, "composite")
	assert.Contains(t, resp.Scores, "regional")
	assert.Contains(t, resp.Scores, "anomaly")
	assert.NotContains(t, resp.Scores, "supplier")
}

func TestTrainAnomalyDetector(t *testing.T) {
	h := buildTestHandler(t)

	_, err := h.TrainAnomalyDetector(context.Background(), &dto.TrainRequest{})
	assertCode(t, err, codes.InvalidArgument)

	few := []model.Sample{{Metrics: map[string]float64{"rate": 1}}}
	resp, err := h.TrainAnomalyDetector(context.Background(), &dto.TrainRequest{Samples: few})
	require.NoError(t, err)
	assert.False(t, resp.Trained)

	samples := make([]model.Sample, 20)
	for i := range samples {
		samples[i] = model.Sample{Region: "north", Metrics: map[string]float64{"rate": float64(10 + i%3)}}
	}
	resp, err = h.TrainAnomalyDetector(context.Background(), &dto.TrainRequest{Samples: samples})
	require.NoError(t, err)
	assert.True(t, resp.Trained)
	assert.Equal(t, 20, resp.Samples)

	caps, err := h.GetCapabilities(context.Background(), &Empty{})
	require.NoError(t, err)
	assert.True(t, caps.IsTrained)
}

func TestAlertLifecycle(t *testing.T) {
	h := buildTestHandler(t, manager.WithCalculator(fixedCalculator{kind: valueobject.CalculatorComposite, value: 95}))
	ctx := context.Background()

	_, err := h.CalculateCompositeRisk(ctx, &dto.ScoreRequest{Region: "gulf"})
	require.NoError(t, err)

	active, err := h.ListActiveAlerts(ctx, &RegionRequest{Region: "gulf"})
	require.NoError(t, err)
	require.Len(t, active.Alerts, 2)

	other, err := h.ListActiveAlerts(ctx, &RegionRequest{Region: "elsewhere"})
	require.NoError(t, err)
	assert.Empty(t, other.Alerts)

	ack, err := h.AcknowledgeAlert(ctx, &AcknowledgeRequest{AlertID: active.Alerts[0].ID})
	require.NoError(t, err)
	assert.True(t, ack.Acknowledged)

	active, err = h.ListActiveAlerts(ctx, &RegionRequest{Region: "gulf"})
	require.NoError(t, err)
	assert.Len(t, active.Alerts, 1)

	_, err = h.AcknowledgeAlert(ctx, &AcknowledgeRequest{AlertID: uuid.NewString()})
	assertCode(t, err, codes.NotFound)

	_, err = h.AcknowledgeAlert(ctx, &AcknowledgeRequest{AlertID: "not-a-uuid"})
	assertCode(t, err, codes.InvalidArgument)
}

func TestQueries(t *testing.T) {
	h := buildTestHandler(t, manager.WithCalculator(fixedCalculator{kind: valueobject.CalculatorComposite, value: 40}))
	ctx := context.Background()

	for range 3 {
		_, err := h.CalculateCompositeRisk(ctx, &dto.ScoreRequest{Region: "gulf"})
		require.NoError(t, err)
	}

	summary, err := h.GetRiskSummary(ctx, &RegionRequest{Region: "gulf"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalAssessments)
	assert.InDelta(t, 40.0, summary.AverageRisk, 1e-9)

	trends, err := h.GetRiskTrends(ctx, &TrendsRequest{Region: "gulf", Days: 7})
	require.NoError(t, err)
	assert.NotEmpty(t, trends.Trend)

	_, err = h.GetRiskTrends(ctx, &TrendsRequest{Days: -1})
	assertCode(t, err, codes.InvalidArgument)

	stats, err := h.GetRiskStatistics(ctx, &Empty{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAssessments)
	assert.Equal(t, 3, stats.CalculatorCounts["composite"])

	statuses, err := h.GetCalculatorStatus(ctx, &Empty{})
	require.NoError(t, err)
	assert.Len(t, statuses.Calculators, 4)

	composite, err := h.GetCompositeTrends(ctx, &RegionRequest{Region: "gulf"})
	require.NoError(t, err)
	assert.NotNil(t, composite)

	_, err = h.CompareRegions(ctx, &Empty{})
	require.NoError(t, err)

	suppliers, err := h.ListSuppliersAtRisk(ctx, &ThresholdRequest{Threshold: 50})
	require.NoError(t, err)
	assert.Empty(t, suppliers.Suppliers)

	_, err = h.ListSuppliersAtRisk(ctx, &ThresholdRequest{Threshold: 150})
	assertCode(t, err, codes.InvalidArgument)

	anomaly, err := h.GetAnomalySummary(ctx, &Empty{})
	require.NoError(t, err)
	assert.Zero(t, anomaly.TotalAnalyses)
}

func TestExport(t *testing.T) {
	h := buildTestHandler(t, manager.WithCalculator(fixedCalculator{kind: valueobject.CalculatorComposite, value: 75}))
	ctx := context.Background()

	_, err := h.CalculateCompositeRisk(ctx, &dto.ScoreRequest{Region: "gulf"})
	require.NoError(t, err)

	resp, err := h.Export(ctx, &ExportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "json", resp.Format)
	assert.Contains(t, string(resp.Document), `"risk_history"`)

	resp, err = h.Export(ctx, &ExportRequest{Format: "yaml"})
	require.NoError(t, err)
	var doc dto.ExportDocument
	require.NoError(t, yaml.Unmarshal(resp.Document, &doc))
	assert.Len(t, doc.RiskHistory, 1)
	assert.Len(t, doc.Alerts, 1)

	_, err = h.Export(ctx, &ExportRequest{Format: "xml"})
	assertCode(t, err, codes.InvalidArgument)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", fmt.Errorf("%w: bad", dto.ErrValidation), codes.InvalidArgument},
		{"format", fmt.Errorf("%w: xml", manager.ErrUnsupportedFormat), codes.InvalidArgument},
		{"unavailable", fmt.Errorf("%w: supplier", manager.ErrCalculatorUnavailable), codes.FailedPrecondition},
		{"not initialized", manager.ErrNotInitialized, codes.FailedPrecondition},
		{"not found", manager.ErrAlertNotFound, codes.NotFound},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"unknown", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, toStatus(tt.err), tt.code)
		})
	}
	assert.NoError(t, toStatus(nil))
}
