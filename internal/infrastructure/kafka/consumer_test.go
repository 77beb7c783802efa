package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/infrastructure/kafka"
	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
)

type mockScorer struct {
	calls      []string
	regions    []string
	err        map[string]error
	lastEvents int
}

func (s *mockScorer) result(kind string) (model.RiskScore, error) {
	s.calls = append(s.calls, kind)
	if err := s.err[kind]; err != nil {
		return model.RiskScore{}, err
	}
	return sampleScore(), nil
}

func (s *mockScorer) CalculateCompositeRisk(_ context.Context, req service.Request) (model.RiskScore, error) {
	s.lastEvents = len(req.Events)
	return s.result("composite")
}

func (s *mockScorer) CalculateRegionalRisk(_ context.Context, region string, _ service.Request) (model.RiskScore, error) {
	s.regions = append(s.regions, region)
	return s.result("regional")
}

func (s *mockScorer) DetectAnomalies(context.Context, service.Request) (model.RiskScore, error) {
	return s.result("anomaly")
}

func batchMessage(t *testing.T, b dto.EventBatch) pkgkafka.Message {
	t.Helper()
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	return pkgkafka.Message{Value: raw}
}

func validBatch() dto.EventBatch {
	return dto.EventBatch{
		Events: []model.Event{{ID: "e1", Title: "port strike", PublishedAt: testTime, Confidence: 0.7}},
	}
}

func TestEventBatchHandler_Routing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*dto.EventBatch)
		calls   []string
		regions []string
	}{
		{"composite only", func(*dto.EventBatch) {}, []string{"composite"}, nil},
		{"with region", func(b *dto.EventBatch) { b.Region = "gulf" }, []string{"composite", "regional"}, []string{"gulf"}},
		{"with metrics", func(b *dto.EventBatch) {
			b.Metrics = map[string]float64{"event_rate": 3}
		}, []string{"composite", "anomaly"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBatch()
			tt.mutate(&b)
			scorer := &mockScorer{}

			err := kafka.NewEventBatchHandler(scorer, nil).Handle(context.Background(), batchMessage(t, b))
			require.NoError(t, err)
			assert.Equal(t, tt.calls, scorer.calls)
			assert.Equal(t, tt.regions, scorer.regions)
			assert.Equal(t, 1, scorer.lastEvents)
		})
	}
}

func TestEventBatchHandler_PermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		msg  func(t *testing.T) pkgkafka.Message
	}{
		{"malformed json", func(*testing.T) pkgkafka.Message { return pkgkafka.Message{Value: []byte("{")} }},
		{"no events", func(t *testing.T) pkgkafka.Message { return batchMessage(t, dto.EventBatch{Region: "x"}) }},
		{"invalid event", func(t *testing.T) pkgkafka.Message {
			b := validBatch()
			b.Events[0].Title = ""
			return batchMessage(t, b)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &mockScorer{}
			err := kafka.NewEventBatchHandler(scorer, nil).Handle(context.Background(), tt.msg(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, pkgkafka.ErrPermanent)
			assert.Empty(t, scorer.calls)
		})
	}
}

func TestEventBatchHandler_ScorerErrors(t *testing.T) {
	t.Run("disabled calculator is skipped", func(t *testing.T) {
		scorer := &mockScorer{err: map[string]error{"regional": manager.ErrCalculatorUnavailable}}
		b := validBatch()
		b.Region = "gulf"
		require.NoError(t, kafka.NewEventBatchHandler(scorer, nil).Handle(context.Background(), batchMessage(t, b)))
	})

	t.Run("uninitialized manager is retried", func(t *testing.T) {
		scorer := &mockScorer{err: map[string]error{"composite": manager.ErrNotInitialized}}
		err := kafka.NewEventBatchHandler(scorer, nil).Handle(context.Background(), batchMessage(t, validBatch()))
		require.ErrorIs(t, err, manager.ErrNotInitialized)
		assert.False(t, errors.Is(err, pkgkafka.ErrPermanent))
	})

	t.Run("calculation failure is permanent", func(t *testing.T) {
		scorer := &mockScorer{err: map[string]error{"composite": errors.New("boom")}}
		err := kafka.NewEventBatchHandler(scorer, nil).Handle(context.Background(), batchMessage(t, validBatch()))
		require.ErrorIs(t, err, pkgkafka.ErrPermanent)
	})
}
