package ctree

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

//randomScale is the resolution of the integer draw of random thresholds.
const randomScale = 1e8

//BestSplit contains results of the split selection algorithm.
type BestSplit struct {
	column          int
	value           float64
	categorical     bool
	impurity        float64
	nodeImpurity    float64
	numberOfObjects int
	left, right     *Dataset
}

//Column returns the index of the examined feature.
func (s BestSplit) Column() int { return s.column }

//Value returns the threshold or the category of the split.
func (s BestSplit) Value() float64 { return s.value }

//Impurity returns the weighted impurity of both groups.
func (s BestSplit) Impurity() float64 { return s.impurity }

//Groups returns the two partitions of the split.
func (s BestSplit) Groups() (left, right *Dataset) { return s.left, s.right }

//Splitter is a split-search strategy. It returns the partition of a non-empty dataset with the
//lowest impurity among the candidates it examines.
type Splitter interface {
	Split(ds *Dataset, crit Criterion, maxFeatures int, rng *rand.Rand) (*BestSplit, error)
}

//ExactSearch is the CART search: every candidate threshold of every sampled column is scored.
//Candidates of a continuous column are its quantiles at 3 + log2(m) evenly spaced points.
type ExactSearch struct{}

//RandomizedSearch is the Extra Tree search: one random candidate per sampled column is scored.
type RandomizedSearch struct{}

//SplitterByName returns "exact" or "randomized" search.
func SplitterByName(name string) (Splitter, error) {
	switch name {
	case "", "exact", "cart":
		return ExactSearch{}, nil
	case "randomized", "extra":
		return RandomizedSearch{}, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown split search %q", name)
}

func (ExactSearch) Split(ds *Dataset, crit Criterion, maxFeatures int, rng *rand.Rand) (*BestSplit, error) {
	columns, err := selectColumns(ds, maxFeatures, rng)
	if err != nil {
		return nil, err
	}

	var sc scan
	for _, column := range columns {
		values := ds.Column(column)
		categorical := ds.FeatureType(column) == Categorical

		var candidates []float64
		if categorical {
			candidates = distinct(values)
			if len(candidates) == 2 {
				candidates = candidates[:1]
			}
		} else {
			candidates = quantiles(values)
		}

		for _, value := range candidates {
			if sc.consider(ds, crit, column, value, categorical) {
				return sc.result()
			}
		}
	}
	return sc.result()
}

func (RandomizedSearch) Split(ds *Dataset, crit Criterion, maxFeatures int, rng *rand.Rand) (*BestSplit, error) {
	columns, err := selectColumns(ds, maxFeatures, rng)
	if err != nil {
		return nil, err
	}

	var sc scan
	for _, column := range columns {
		values := ds.Column(column)
		categorical := ds.FeatureType(column) == Categorical

		var value float64
		if categorical {
			levels := distinct(values)
			value = levels[intn(rng, len(levels))]
		} else {
			value = uniformThreshold(floats.Min(values), floats.Max(values), rng)
		}

		if sc.consider(ds, crit, column, value, categorical) {
			break
		}
	}
	return sc.result()
}

//scan keeps the best candidate seen so far, the first one wins a tie.
type scan struct {
	best *BestSplit
}

//consider scores one candidate and reports whether a perfect split has been found.
func (sc *scan) consider(ds *Dataset, crit Criterion, column int, value float64, categorical bool) bool {
	left, right := ds.SplitByColumn(column, value)
	impurity := SplitImpurity(crit, left, right)
	if sc.best == nil || impurity < sc.best.impurity {
		sc.best = &BestSplit{
			column:          column,
			value:           value,
			categorical:     categorical,
			impurity:        impurity,
			numberOfObjects: ds.NumSamples(),
			left:            left,
			right:           right,
		}
	}
	return sc.best.impurity == 0
}

func (sc *scan) result() (*BestSplit, error) {
	if sc.best == nil {
		return nil, errors.Wrap(ErrSplitFailure, "no candidate split could be scored")
	}
	return sc.best, nil
}

//selectColumns draws up to maxFeatures columns without replacement, ceil(sqrt(n)) when maxFeatures
//is unset, and returns them in ascending order.
func selectColumns(ds *Dataset, maxFeatures int, rng *rand.Rand) ([]int, error) {
	h, w := ds.Shape()
	if w < 1 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "no feature column to split on")
	}
	if h < 1 {
		return nil, errors.Wrap(ErrSplitFailure, "cannot split an empty dataset")
	}

	k := maxFeatures
	if k <= 0 {
		k = int(math.Ceil(math.Sqrt(float64(w))))
	}
	if k > w {
		k = w
	}

	columns := make([]int, k)
	if k == w {
		for i := range columns {
			columns[i] = i
		}
		return columns, nil
	}

	var src rand.Source
	if rng != nil {
		src = rng
	}
	sampleuv.WithoutReplacement(columns, w, src)
	sort.Ints(columns)
	return columns, nil
}

//quantiles returns the distinct empirical quantiles of values at 3 + log2(m) evenly spaced points.
func quantiles(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	k := 3 + int(math.Log2(float64(len(sorted))))
	candidates := make([]float64, 0, k)
	for i := 0; i < k; i++ {
		q := stat.Quantile(float64(i)/float64(k-1), stat.Empirical, sorted, nil)
		if len(candidates) == 0 || q != candidates[len(candidates)-1] {
			candidates = append(candidates, q)
		}
	}
	return candidates
}

//distinct returns the sorted distinct values.
func distinct(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

//uniformThreshold draws a value in [lo, hi] through an integer draw at randomScale resolution.
func uniformThreshold(lo, hi float64, rng *rand.Rand) float64 {
	if lo == hi {
		return lo
	}
	a, b := math.Floor(lo*randomScale), math.Ceil(hi*randomScale)
	if b-a >= math.MaxInt64 || math.IsInf(b-a, 0) || math.IsNaN(b-a) {
		return lo + unitFloat(rng)*(hi-lo)
	}
	step := int64(b - a)
	var k int64
	if rng != nil {
		k = rng.Int63n(step + 1)
	} else {
		k = rand.Int63n(step + 1)
	}
	return math.Min(hi, math.Max(lo, (a+float64(k))/randomScale))
}

func intn(rng *rand.Rand, n int) int {
	if rng != nil {
		return rng.Intn(n)
	}
	return rand.Intn(n)
}

func unitFloat(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return rand.Float64()
}
