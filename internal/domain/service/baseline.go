package service

import (
	"maps"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/peacemap/riskengine/internal/domain/model"
)

// minRegionalSamples is the number of samples a region needs before it gets
// its own baseline.
const minRegionalSamples = 3

// Baselines holds historical metric statistics, globally and per region.
type Baselines struct {
	Global   map[string]model.MetricStats            `json:"global" yaml:"global"`
	Regional map[string]map[string]model.MetricStats `json:"regional" yaml:"regional"`
}

// computeBaselines summarizes samples. A metric needs more than one value to
// get stats. Samples without a region count toward the global baseline only.
func computeBaselines(samples []model.Sample) Baselines {
	b := Baselines{
		Global:   metricStats(samples),
		Regional: map[string]map[string]model.MetricStats{},
	}

	byRegion := map[string][]model.Sample{}
	for _, s := range samples {
		if s.Region != "" {
			byRegion[s.Region] = append(byRegion[s.Region], s)
		}
	}
	for region, group := range byRegion {
		if len(group) < minRegionalSamples {
			continue
		}
		if stats := metricStats(group); len(stats) > 0 {
			b.Regional[region] = stats
		}
	}
	return b
}

func metricStats(samples []model.Sample) map[string]model.MetricStats {
	values := map[string][]float64{}
	for _, s := range samples {
		for name, v := range s.Metrics {
			values[name] = append(values[name], v)
		}
	}

	out := make(map[string]model.MetricStats, len(values))
	for name, vs := range values {
		if len(vs) < 2 {
			continue
		}
		mean, std := stat.PopMeanStdDev(vs, nil)
		out[name] = model.MetricStats{
			Mean:  mean,
			Std:   std,
			Min:   floats.Min(vs),
			Max:   floats.Max(vs),
			Count: len(vs),
		}
	}
	return out
}

// featureNames returns the sorted union of metric names across samples.
func featureNames(samples []model.Sample) []string {
	set := map[string]struct{}{}
	for _, s := range samples {
		for name := range s.Metrics {
			set[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// featureMatrix lays samples out as rows over features. A missing value is
// filled with the column mean of the samples that carry it.
func featureMatrix(samples []model.Sample, features []string) [][]float64 {
	means := make([]float64, len(features))
	for j, name := range features {
		var sum float64
		n := 0
		for _, s := range samples {
			if v, ok := s.Metrics[name]; ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			means[j] = sum / float64(n)
		}
	}

	rows := make([][]float64, len(samples))
	for i, s := range samples {
		row := make([]float64, len(features))
		for j, name := range features {
			if v, ok := s.Metrics[name]; ok {
				row[j] = v
			} else {
				row[j] = means[j]
			}
		}
		rows[i] = row
	}
	return rows
}
