package ctree

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func fourRows() *Dataset {
	ds := NewDataset(mat.NewDense(4, 1, []float64{1, 2, 3, 4}), []float64{0, 0, 1, 1}, nil)
	ds.ClassNames = []string{"a", "b"}
	return ds
}

//twoBlobs is a classification dataset of two noisy clusters in three dimensions.
func twoBlobs(rows int, seed uint64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	features := mat.NewDense(rows, 3, nil)
	labels := make([]float64, rows)
	for p := 0; p < rows; p++ {
		label := float64(p % 2)
		labels[p] = label
		features.Set(p, 0, label*2+rng.NormFloat64())
		features.Set(p, 1, rng.Float64())
		features.Set(p, 2, -label+rng.NormFloat64())
	}
	ds := NewDataset(features, labels, nil)
	ds.ClassNames = []string{"left", "right"}
	return ds
}

func sineWave(rows int) *Dataset {
	features := mat.NewDense(rows, 2, nil)
	labels := make([]float64, rows)
	for p := 0; p < rows; p++ {
		x := float64(p) / float64(rows-1)
		features.Set(p, 0, x)
		features.Set(p, 1, float64(p%3))
		labels[p] = math.Sin(6*x) + 0.1*float64(p%3)
	}
	return NewDataset(features, labels, []FeatureType{Continuous, Categorical})
}

func grow(t *testing.T, ds *Dataset, params TreeParams, crit Criterion, splitter Splitter, seed uint64) *Tree {
	t.Helper()
	tree, err := NewTree(params, crit, splitter, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	require.NoError(t, tree.Grow(ds))
	return tree
}

func TestFourRowScenario(t *testing.T) {
	tree := grow(t, fourRows(), DefaultTreeParams(), Gini{}, ExactSearch{}, 1)

	root := tree.TreeNodes[0]
	require.False(t, root.IsLeaf())
	assert.Equal(t, 0, root.Column)
	assert.Equal(t, 3.0, root.Value)
	assert.Equal(t, 0.0, root.Impurity)
	assert.InDelta(t, 0.5, root.PurityIncrease(), 1e-12)

	outcome, err := tree.Search([]float64{2.5})
	require.NoError(t, err)
	assert.Equal(t, "a", outcome.Label)

	outcome, err = tree.Search([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, "b", outcome.Label, "the threshold itself goes right")

	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, 0, tree.Balance())
	assert.Len(t, tree.Leaves(), 2)
}

func TestCollapseToSingleOutcome(t *testing.T) {
	params := DefaultTreeParams()
	params.MinPurityIncrease = 10
	tree := grow(t, twoBlobs(60, 3), params, Gini{}, ExactSearch{}, 1)

	require.Equal(t, 1, tree.NumNodes())
	require.True(t, tree.TreeNodes[0].IsLeaf())
	assert.Equal(t, 60, tree.LeafNodes[0].Count)
	assert.InDelta(t, 0.5, tree.LeafNodes[0].Probabilities["left"], 1e-12)

	importances, err := tree.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{0: 0, 1: 0, 2: 0}, importances)
}

func TestRandomizedSingleFeatureIsReproducible(t *testing.T) {
	ds := NewDataset(mat.NewDense(8, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8}), []float64{0, 0, 0, 0, 1, 1, 1, 1}, nil)
	params := DefaultTreeParams()
	params.MaxLeafSize = 1

	first := grow(t, ds, params, Gini{}, RandomizedSearch{}, 42)
	second := grow(t, ds, params, Gini{}, RandomizedSearch{}, 42)
	require.Equal(t, first.TreeNodes, second.TreeNodes)

	root := first.TreeNodes[0]
	assert.GreaterOrEqual(t, root.Value, 1.0)
	assert.LessOrEqual(t, root.Value, 8.0)
	for _, x := range []float64{1, 2, 3, 4, 5, 6, 7, 8} {
		outcome, err := first.Search([]float64{x})
		require.NoError(t, err)
		assert.Equal(t, ds.Labels[int(x)-1], outcome.Class, "x=%v", x)
	}
}

func TestTreeInvariants(t *testing.T) {
	testCases := []struct {
		name     string
		ds       *Dataset
		crit     Criterion
		splitter Splitter
		params   TreeParams
	}{
		{"gini exact", twoBlobs(200, 7), Gini{}, ExactSearch{}, DefaultTreeParams()},
		{"entropy randomized", twoBlobs(200, 8), Entropy{}, RandomizedSearch{}, DefaultTreeParams()},
		{"variance exact shallow", sineWave(150), Variance{}, ExactSearch{}, TreeParams{MaxHeight: 3, MaxLeafSize: 2, MinPurityIncrease: 1e-7}},
		{"variance randomized", sineWave(150), Variance{}, RandomizedSearch{}, TreeParams{MaxHeight: 6, MaxLeafSize: 1, MaxFeatures: 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := grow(t, tc.ds, tc.params, tc.crit, tc.splitter, 11)

			for _, node := range tree.TreeNodes {
				assert.Nil(t, node.groups, "groups of node %d were not released", node.TreeNodeId)
				if node.IsLeaf() {
					assert.Equal(t, -1, node.LeftIndex)
					assert.Equal(t, -1, node.RightIndex)
					continue
				}
				assert.NotEqual(t, -1, node.LeftIndex)
				assert.NotEqual(t, -1, node.RightIndex)
				assert.GreaterOrEqual(t, node.PurityIncrease(), tc.params.MinPurityIncrease)
			}

			assert.LessOrEqual(t, tree.Height()+1, max(tc.params.MaxHeight, 2), "the root is at depth 1")

			var covered []int
			for _, leaf := range tree.Leaves() {
				covered = append(covered, leaf.RecordIds...)
			}
			sort.Ints(covered)
			assert.Equal(t, tc.ds.Records(), covered, "every training row reaches exactly one leaf")

			for p := 0; p < tc.ds.NumSamples(); p++ {
				sample := tc.ds.Sample(p)
				first, err := tree.Search(sample)
				require.NoError(t, err)
				second, err := tree.Search(sample)
				require.NoError(t, err)
				assert.Equal(t, first, second)
				assert.Contains(t, first.RecordIds, p)
			}
		})
	}
}

func TestGrowIsDeterministicForSeed(t *testing.T) {
	ds := twoBlobs(120, 5)
	params := DefaultTreeParams()
	params.MaxFeatures = 2

	for _, splitter := range []Splitter{ExactSearch{}, RandomizedSearch{}} {
		t.Run(fmt.Sprintf("%T", splitter), func(t *testing.T) {
			first := grow(t, ds, params, Gini{}, splitter, 9)
			second := grow(t, ds, params, Gini{}, splitter, 9)
			assert.Equal(t, first.TreeNodes, second.TreeNodes)
			assert.Equal(t, first.LeafNodes, second.LeafNodes)

			firstRules, err := first.Rules(nil)
			require.NoError(t, err)
			secondRules, err := second.Rules(nil)
			require.NoError(t, err)
			assert.Equal(t, firstRules, secondRules)
		})
	}
}

func TestRegrowReplacesTree(t *testing.T) {
	tree := grow(t, twoBlobs(80, 1), DefaultTreeParams(), Gini{}, ExactSearch{}, 1)
	require.NoError(t, tree.Grow(fourRows()))
	assert.Equal(t, 1, tree.NumFeatures)
	assert.Equal(t, 3, tree.NumNodes())
}

func TestMaxHeightOne(t *testing.T) {
	params := DefaultTreeParams()
	params.MaxHeight = 1
	tree := grow(t, twoBlobs(100, 2), params, Gini{}, ExactSearch{}, 1)
	assert.Equal(t, 1, tree.Height())
	assert.Equal(t, 3, tree.NumNodes())
}

func TestMaxHeightCountsTheRoot(t *testing.T) {
	ds := NewDataset(mat.NewDense(8, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8}), []float64{0, 1, 0, 1, 0, 1, 0, 1}, nil)
	params := TreeParams{MaxHeight: 2, MaxLeafSize: 1}

	tree := grow(t, ds, params, Gini{}, ExactSearch{}, 1)
	assert.Equal(t, 3, tree.NumNodes())
	assert.Equal(t, 1, tree.Height())
	assert.Len(t, tree.Leaves(), 2)

	params.MaxHeight = 3
	tree = grow(t, ds, params, Gini{}, ExactSearch{}, 1)
	assert.Equal(t, 2, tree.Height())
}

func TestSmallDatasetIsSingleLeaf(t *testing.T) {
	ds := NewDataset(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{0, 1, 0}, nil)
	tree := grow(t, ds, DefaultTreeParams(), Gini{}, ExactSearch{}, 1)

	require.Equal(t, 1, tree.NumNodes())
	require.True(t, tree.TreeNodes[0].IsLeaf())
	assert.Equal(t, 3, tree.LeafNodes[0].Count)
	assert.Equal(t, []int{0, 1, 2}, tree.LeafNodes[0].RecordIds)
	assert.Equal(t, 0, tree.Height())
}

func TestEmptyGroupBecomesSharedLeaf(t *testing.T) {
	ds := NewDataset(mat.NewDense(6, 1, []float64{5, 5, 5, 5, 5, 5}), []float64{0, 1, 0, 1, 0, 1}, nil)
	params := DefaultTreeParams()
	params.MinPurityIncrease = 0
	tree := grow(t, ds, params, Gini{}, ExactSearch{}, 1)

	root := tree.TreeNodes[0]
	require.False(t, root.IsLeaf())
	assert.Equal(t, root.LeftIndex, root.RightIndex)
	assert.Len(t, tree.Leaves(), 1)
	assert.Equal(t, 6, tree.Leaves()[0].Count)
	assert.Equal(t, 1, tree.Height())
}

func TestFeatureImportances(t *testing.T) {
	params := TreeParams{MaxHeight: 2, MaxLeafSize: 3, MaxFeatures: 3}
	tree := grow(t, twoBlobs(200, 4), params, Gini{}, ExactSearch{}, 3)
	importances, err := tree.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, importances, 3)

	total := 0.0
	for _, node := range tree.TreeNodes {
		total += node.PurityIncrease()
	}
	sum := 0.0
	for column, importance := range importances {
		assert.GreaterOrEqual(t, importance, 0.0, "column %d", column)
		sum += importance
	}
	assert.InDelta(t, total, sum, 1e-9)
	assert.Greater(t, importances[0], importances[1])
}

func TestRules(t *testing.T) {
	tree := grow(t, fourRows(), DefaultTreeParams(), Gini{}, ExactSearch{}, 1)
	rules, err := tree.Rules([]string{"x"})
	require.NoError(t, err)
	assert.Contains(t, rules, "if x < 3:\n  Outcome=a")
	assert.Contains(t, rules, "if x >= 3:\n  Outcome=b")

	levels := NewDataset(mat.NewDense(4, 1, []float64{0, 0, 1, 2}), []float64{0, 0, 1, 1}, []FeatureType{Categorical})
	levels.Levels = [][]string{{"red", "green", "blue"}}
	tree = grow(t, levels, DefaultTreeParams(), Gini{}, ExactSearch{}, 1)
	rules, err = tree.Rules(nil)
	require.NoError(t, err)
	assert.Contains(t, rules, "Column_0 == red")
	assert.Contains(t, rules, "Column_0 != red")
}

func TestBareTree(t *testing.T) {
	tree, err := NewTree(DefaultTreeParams(), Gini{}, nil, nil)
	require.NoError(t, err)
	require.True(t, tree.Bare())

	_, err = tree.Search([]float64{1})
	assert.True(t, errors.Is(err, ErrNotTrained))
	_, err = tree.FeatureImportances()
	assert.True(t, errors.Is(err, ErrNotTrained))
	_, err = tree.Rules(nil)
	assert.True(t, errors.Is(err, ErrNotTrained))
	_, _, err = tree.DrawGraph(nil)
	assert.True(t, errors.Is(err, ErrNotTrained))
	assert.Equal(t, 0, tree.Height())
}

func TestInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name   string
		params TreeParams
	}{
		{"zero height", TreeParams{MaxHeight: 0, MaxLeafSize: 1}},
		{"zero leaf size", TreeParams{MaxHeight: 3, MaxLeafSize: 0}},
		{"negative purity", TreeParams{MaxHeight: 3, MaxLeafSize: 1, MinPurityIncrease: -1}},
		{"nan purity", TreeParams{MaxHeight: 3, MaxLeafSize: 1, MinPurityIncrease: math.NaN()}},
		{"negative features", TreeParams{MaxHeight: 3, MaxLeafSize: 1, MaxFeatures: -2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTree(tc.params, Gini{}, ExactSearch{}, nil)
			assert.Equal(t, ErrInvalidConfiguration, errors.Cause(err))
		})
	}

	_, err := NewTree(DefaultTreeParams(), nil, ExactSearch{}, nil)
	assert.Equal(t, ErrInvalidConfiguration, errors.Cause(err))

	tree, err := NewTree(DefaultTreeParams(), Gini{}, ExactSearch{}, nil)
	require.NoError(t, err)
	err = tree.Grow(NewDataset(mat.NewDense(2, 1, []float64{1, 2}), []float64{0}, nil))
	assert.Equal(t, ErrInvalidConfiguration, errors.Cause(err))
	assert.True(t, tree.Bare())
}

func TestSearchRejectsShortSample(t *testing.T) {
	tree := grow(t, twoBlobs(40, 1), DefaultTreeParams(), Gini{}, ExactSearch{}, 1)
	_, err := tree.Search([]float64{1})
	assert.Equal(t, ErrInvalidConfiguration, errors.Cause(err))
}
