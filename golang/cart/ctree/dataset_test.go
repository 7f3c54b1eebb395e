package ctree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSplitAndMerge(t *testing.T) {
	features := mat.NewDense(5, 2, []float64{
		1, 0,
		5, 1,
		2, 1,
		4, 0,
		3, 2,
	})
	ds := NewDataset(features, []float64{10, 50, 20, 40, 30}, []FeatureType{Continuous, Categorical})
	require.NoError(t, ds.Validate())

	left, right := ds.SplitByColumn(0, 3)
	assert.Equal(t, []int{0, 2}, left.Records())
	assert.Equal(t, []int{1, 3, 4}, right.Records())
	assert.Equal(t, []float64{50, 40, 30}, right.LabelsOf())

	category, rest := right.SplitByColumn(1, 0)
	assert.Equal(t, []int{3}, category.Records())
	assert.Equal(t, []int{1, 4}, rest.Records())
	assert.Equal(t, []float64{5, 3}, rest.Column(0))
	assert.Equal(t, []float64{3, 2}, rest.Sample(1))

	merged := left.Merge(right)
	assert.Equal(t, 5, merged.NumSamples())
	assert.Equal(t, []int{0, 2, 1, 3, 4}, merged.Records())

	h, w := merged.Shape()
	assert.Equal(t, 5, h)
	assert.Equal(t, 2, w)
	assert.Equal(t, Categorical, merged.FeatureType(1))
}

func TestTakeAndWithLabels(t *testing.T) {
	ds := NewDataset(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{0, 1, 1}, nil)
	ds.ClassNames = []string{"no", "yes"}

	bootstrap := ds.Take([]int{2, 2, 0})
	assert.Equal(t, []int{2, 2, 0}, bootstrap.Records())
	assert.Equal(t, []float64{1, 1, 0}, bootstrap.LabelsOf())

	relabeled := bootstrap.WithLabels([]float64{0.5, 1.5, 2.5})
	assert.Equal(t, []float64{2.5, 2.5, 0.5}, relabeled.LabelsOf())
	assert.Nil(t, relabeled.ClassNames)

	whole := ds.WithLabels([]float64{7, 8, 9})
	assert.Equal(t, []float64{7, 8, 9}, whole.LabelsOf())
	assert.Equal(t, 3, whole.NumSamples())
	assert.True(t, ds.Take(nil).Empty())
}

func TestDatasetValidate(t *testing.T) {
	testCases := []struct {
		name string
		ds   *Dataset
	}{
		{"no features", &Dataset{}},
		{"short labels", NewDataset(mat.NewDense(2, 1, nil), []float64{1}, nil)},
		{"types", NewDataset(mat.NewDense(2, 1, nil), []float64{1, 2}, []FeatureType{Continuous, Continuous})},
		{"class codes", &Dataset{Features: mat.NewDense(2, 1, nil), Labels: []float64{0, 2}, ClassNames: []string{"a", "b"}}},
		{"fractional class", &Dataset{Features: mat.NewDense(1, 1, nil), Labels: []float64{0.5}, ClassNames: []string{"a"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.ds.Validate(), ErrInvalidConfiguration))
		})
	}

	ds := &Dataset{Features: mat.NewDense(2, 1, nil), Labels: []float64{0, 1}}
	require.NoError(t, ds.Validate())
	assert.Equal(t, []int{0, 1}, ds.RecordIds)
}

func TestReadDataset(t *testing.T) {
	dir := t.TempDir()
	featuresFile := filepath.Join(dir, "features.npy")
	labelsFile := filepath.Join(dir, "labels.npy")

	writeNpy(t, featuresFile, mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}))
	writeNpy(t, labelsFile, []float64{0, 1, 0})

	ds, err := ReadDataset(featuresFile, labelsFile, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.NumSamples())
	assert.Equal(t, []float64{3, 4}, ds.Sample(1))
	assert.Equal(t, []float64{0, 1, 0}, ds.LabelsOf())

	_, err = ReadDataset(filepath.Join(dir, "missing.npy"), labelsFile, nil)
	assert.Error(t, err)
}

func writeNpy(t *testing.T, fileName string, value interface{}) {
	t.Helper()
	f, err := os.Create(fileName)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, npyio.Write(f, value))
}
