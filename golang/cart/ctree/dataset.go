package ctree

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//FeatureType tells how a column is compared: by equality or by the less-than rule.
type FeatureType int

const (
	Continuous FeatureType = iota
	Categorical
)

func (t FeatureType) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case Categorical:
		return "categorical"
	}
	return fmt.Sprintf("FeatureType(%d)", int(t))
}

//Dataset is a labeled dataset. Features, Labels and RecordIds are shared between a dataset and
//the subsets produced from it; a subset only owns the list of rows it selects.
//For classification Labels hold class codes that index ClassNames, categorical features hold
//category codes that index Levels[column].
type Dataset struct {
	Features    *mat.Dense
	Types       []FeatureType
	Labels      []float64
	RecordIds   []int
	ClassNames  []string
	Levels      [][]string
	Description string

	rows []int
	view bool
}

//NewDataset creates a dataset that covers every row of features. Types may be nil, in which
//case all columns are continuous.
func NewDataset(features *mat.Dense, labels []float64, types []FeatureType) *Dataset {
	h, _ := features.Dims()
	ds := &Dataset{Features: features, Labels: labels, Types: types, RecordIds: make([]int, h)}
	for p := 0; p < h; p++ {
		ds.RecordIds[p] = p
	}
	return ds
}

//SetDescription sets a description used when the dataset is reported in logs.
func (ds *Dataset) SetDescription(description string) {
	ds.Description = description
}

//Validate checks the consistency of dimensions of the dataset components.
func (ds *Dataset) Validate() error {
	if ds.Features == nil {
		return errors.Wrap(ErrInvalidConfiguration, "dataset has no features")
	}
	h, w := ds.Features.Dims()
	if w < 1 {
		return errors.Wrap(ErrInvalidConfiguration, "dataset has zero feature columns")
	}
	if len(ds.Labels) != h {
		return errors.Wrapf(ErrInvalidConfiguration, "the labels length %d is not equal to the features height %d", len(ds.Labels), h)
	}
	if ds.Types != nil && len(ds.Types) != w {
		return errors.Wrapf(ErrInvalidConfiguration, "%d feature types given for %d columns", len(ds.Types), w)
	}
	if ds.RecordIds == nil {
		ds.RecordIds = make([]int, h)
		for p := range ds.RecordIds {
			ds.RecordIds[p] = p
		}
	} else if len(ds.RecordIds) != h {
		return errors.Wrapf(ErrInvalidConfiguration, "the record ids length %d is not equal to the features height %d", len(ds.RecordIds), h)
	}
	if ds.ClassNames != nil {
		for p, label := range ds.Labels {
			if label != math.Trunc(label) || label < 0 || int(label) >= len(ds.ClassNames) {
				return errors.Wrapf(ErrInvalidConfiguration, "label %v of row %d is not a class code", label, p)
			}
		}
	}
	for _, p := range ds.rows {
		if p < 0 || p >= h {
			return errors.Wrapf(ErrInvalidConfiguration, "row %d is out of range", p)
		}
	}
	return nil
}

func (ds *Dataset) row(p int) int {
	if ds.view {
		return ds.rows[p]
	}
	return p
}

//NumSamples returns the number of rows in the dataset.
func (ds *Dataset) NumSamples() int {
	if ds.view {
		return len(ds.rows)
	}
	if ds.Features == nil {
		return 0
	}
	h, _ := ds.Features.Dims()
	return h
}

//NumFeatures returns the number of feature columns.
func (ds *Dataset) NumFeatures() int {
	if ds.Features == nil {
		return 0
	}
	_, w := ds.Features.Dims()
	return w
}

//Shape returns the number of rows and the number of feature columns.
func (ds *Dataset) Shape() (int, int) {
	return ds.NumSamples(), ds.NumFeatures()
}

//Empty reports whether the dataset has no rows.
func (ds *Dataset) Empty() bool {
	return ds.NumSamples() == 0
}

//FeatureType returns the declared type of the column.
func (ds *Dataset) FeatureType(column int) FeatureType {
	if ds.Types == nil {
		return Continuous
	}
	return ds.Types[column]
}

//Column returns the values of one column for the rows of the dataset.
func (ds *Dataset) Column(column int) []float64 {
	n := ds.NumSamples()
	values := make([]float64, n)
	for p := 0; p < n; p++ {
		values[p] = ds.Features.At(ds.row(p), column)
	}
	return values
}

//Sample returns the feature vector of the p-th row.
func (ds *Dataset) Sample(p int) []float64 {
	return mat.Row(nil, ds.row(p), ds.Features)
}

//LabelsOf returns the labels of the rows of the dataset.
func (ds *Dataset) LabelsOf() []float64 {
	if !ds.view {
		return ds.Labels
	}
	labels := make([]float64, len(ds.rows))
	for p, r := range ds.rows {
		labels[p] = ds.Labels[r]
	}
	return labels
}

//Records returns the record ids of the rows of the dataset.
func (ds *Dataset) Records() []int {
	n := ds.NumSamples()
	ids := make([]int, n)
	for p := 0; p < n; p++ {
		ids[p] = ds.RecordIds[ds.row(p)]
	}
	return ids
}

func (ds *Dataset) subset(rows []int) *Dataset {
	return &Dataset{
		Features:    ds.Features,
		Types:       ds.Types,
		Labels:      ds.Labels,
		RecordIds:   ds.RecordIds,
		ClassNames:  ds.ClassNames,
		Levels:      ds.Levels,
		Description: ds.Description,
		rows:        rows,
		view:        true,
	}
}

//Take returns the subset made of the given positions of the dataset. Positions may repeat.
func (ds *Dataset) Take(positions []int) *Dataset {
	rows := make([]int, len(positions))
	for i, p := range positions {
		rows[i] = ds.row(p)
	}
	return ds.subset(rows)
}

//SplitByColumn partitions the dataset by the value of a column. Rows go left when the value
//equals value for categorical columns and when it is less than value for continuous ones.
func (ds *Dataset) SplitByColumn(column int, value float64) (left, right *Dataset) {
	n := ds.NumSamples()
	categorical := ds.FeatureType(column) == Categorical
	leftRows, rightRows := make([]int, 0, n), make([]int, 0, n)

	for p := 0; p < n; p++ {
		r := ds.row(p)
		if GoesLeft(ds.Features.At(r, column), value, categorical) {
			leftRows = append(leftRows, r)
		} else {
			rightRows = append(rightRows, r)
		}
	}

	return ds.subset(leftRows), ds.subset(rightRows)
}

//GoesLeft is the single comparison rule shared by partitioning and traversal.
func GoesLeft(x, value float64, categorical bool) bool {
	if categorical {
		return x == value
	}
	return x < value
}

//Merge returns the union of the rows of two subsets of the same dataset.
func (ds *Dataset) Merge(other *Dataset) *Dataset {
	rows := make([]int, 0, ds.NumSamples()+other.NumSamples())
	for p := 0; p < ds.NumSamples(); p++ {
		rows = append(rows, ds.row(p))
	}
	for p := 0; p < other.NumSamples(); p++ {
		rows = append(rows, other.row(p))
	}
	return ds.subset(rows)
}

//WithLabels returns a dataset over the same rows and features with a new label vector. The
//vector is indexed like the Labels of the receiver.
func (ds *Dataset) WithLabels(labels []float64) *Dataset {
	out := ds.subset(ds.rows)
	out.view = ds.view
	out.Labels = labels
	out.ClassNames = nil
	return out
}

//ReadDataset reads a features matrix and a labels vector from npy files.
func ReadDataset(fileNameFeatures, fileNameLabels string, types []FeatureType) (*Dataset, error) {
	log.Debugf("try to load features <%s>", fileNameFeatures)
	features, err := ReadNpy(fileNameFeatures)
	if err != nil {
		return nil, err
	}
	log.Debugf("try to load labels <%s>", fileNameLabels)
	labels, err := ReadNpyVector(fileNameLabels)
	if err != nil {
		return nil, err
	}
	ds := NewDataset(features, labels, types)
	return ds, ds.Validate()
}

//ReadNpy reads the content of npy file into a matrix.
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", fileName)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read npy header of %s", fileName)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, errors.Wrapf(err, "can't read npy data of %s", fileName)
	}
	return denseMat, nil
}

//ReadNpyVector reads the content of npy file as a flat vector.
func ReadNpyVector(fileName string) ([]float64, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", fileName)
	}
	defer f.Close()

	var values []float64
	if err := npyio.Read(f, &values); err != nil {
		return nil, errors.Wrapf(err, "can't read npy data of %s", fileName)
	}
	return values, nil
}
