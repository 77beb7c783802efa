package service

import (
	"math"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	eulerGamma        = 0.5772156649015329
	maxTreeSampleSize = 256
)

// standardScaler centers and scales each column to unit population variance.
type standardScaler struct {
	mean []float64
	std  []float64
}

func fitScaler(rows [][]float64) standardScaler {
	cols := len(rows[0])
	s := standardScaler{mean: make([]float64, cols), std: make([]float64, cols)}
	col := make([]float64, len(rows))
	for j := range cols {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.mean[j], s.std[j] = mean, std
	}
	return s
}

func (s standardScaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.mean[j]) / s.std[j]
	}
	return out
}

// iNode is a node of an isolation tree. Leaves have nil children.
type iNode struct {
	left    *iNode
	right   *iNode
	feature int
	split   float64
	size    int
}

// isolationForest is an ensemble of random partitioning trees. Points that
// are isolated in fewer splits on average are more anomalous.
type isolationForest struct {
	trees      []*iNode
	sampleSize int
	offset     float64
}

// fitIsolationForest grows nTrees trees on rows and sets the decision offset
// so that roughly a contamination share of the training rows score as
// anomalies.
func fitIsolationForest(rows [][]float64, nTrees int, contamination float64, rng *rand.Rand) *isolationForest {
	psi := min(maxTreeSampleSize, len(rows))
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	f := &isolationForest{trees: make([]*iNode, nTrees), sampleSize: psi}
	for t := range nTrees {
		idx := rng.Perm(len(rows))[:psi]
		sample := make([][]float64, psi)
		for i, k := range idx {
			sample[i] = rows[k]
		}
		f.trees[t] = growTree(sample, 0, heightLimit, rng)
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = f.scoreSample(row)
	}
	slices.Sort(scores)
	f.offset = stat.Quantile(contamination, stat.LinInterp, scores, nil)
	return f
}

func growTree(rows [][]float64, depth, limit int, rng *rand.Rand) *iNode {
	if depth >= limit || len(rows) <= 1 {
		return &iNode{size: len(rows)}
	}

	// Split on a random feature that still varies within this node.
	for _, feature := range rng.Perm(len(rows[0])) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range rows {
			lo = math.Min(lo, r[feature])
			hi = math.Max(hi, r[feature])
		}
		if hi <= lo {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, r := range rows {
			if r[feature] < split {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		return &iNode{
			feature: feature,
			split:   split,
			left:    growTree(left, depth+1, limit, rng),
			right:   growTree(right, depth+1, limit, rng),
		}
	}

	return &iNode{size: len(rows)}
}

func pathLength(x []float64, n *iNode, depth int) float64 {
	for n.left != nil {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// scoreSample returns the negated anomaly score 2^(-E[h]/c(ψ)); lower is
// more anomalous.
func (f *isolationForest) scoreSample(x []float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(f.trees))
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return -0.5
	}
	return -math.Pow(2, -mean/c)
}

// decision returns the shifted score; negative values are anomalies.
func (f *isolationForest) decision(x []float64) float64 {
	return f.scoreSample(x) - f.offset
}
