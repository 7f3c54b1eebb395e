package learner

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var log = logrus.WithField("component", "learner")

//TreeLearnerParams configure one tree of an estimator. Criterion defaults to gini for
//classification and to variance for regression. Search is "exact" (the default) or "randomized",
//the Extra Tree search.
type TreeLearnerParams struct {
	ctree.TreeParams `mapstructure:",squash"`
	Criterion        string `json:"criterion" mapstructure:"criterion"`
	Search           string `json:"search" mapstructure:"search"`
	Seed             uint64 `json:"seed" mapstructure:"seed"`
}

//DefaultTreeLearnerParams returns the default tree parameters with the exact search.
func DefaultTreeLearnerParams() TreeLearnerParams {
	return TreeLearnerParams{TreeParams: ctree.DefaultTreeParams()}
}

func (p TreeLearnerParams) newTree(regression bool, seed uint64) (*ctree.Tree, error) {
	name := p.Criterion
	if name == "" {
		name = "gini"
		if regression {
			name = "variance"
		}
	}
	crit, err := ctree.CriterionByName(name)
	if err != nil {
		return nil, err
	}
	if _, isVariance := crit.(ctree.Variance); isVariance != regression {
		return nil, errors.Wrapf(ctree.ErrInvalidConfiguration, "criterion %q does not fit the task", name)
	}

	splitter, err := ctree.SplitterByName(p.Search)
	if err != nil {
		return nil, err
	}
	return ctree.NewTree(p.TreeParams, crit, splitter, rand.New(rand.NewSource(seed)))
}

//predictTree applies fn to the outcome of every row of features.
func predictTree(tree *ctree.Tree, features mat.Matrix, fn func(p int, outcome *ctree.Outcome)) error {
	if tree == nil || tree.Bare() {
		return errors.Wrap(ctree.ErrNotTrained, "predict with an untrained model")
	}
	h, w := features.Dims()
	sample := make([]float64, w)
	for p := 0; p < h; p++ {
		mat.Row(sample, p, features)
		outcome, err := tree.Search(sample)
		if err != nil {
			return err
		}
		fn(p, outcome)
	}
	return nil
}

//normalize scales importances to sum to 1. All zero importances are returned as is.
func normalize(importances map[int]float64) map[int]float64 {
	values := make([]float64, 0, len(importances))
	for _, v := range importances {
		values = append(values, v)
	}
	total := floats.Sum(values)
	if total <= 0 {
		return importances
	}
	for column := range importances {
		importances[column] /= total
	}
	return importances
}

//classesOf returns the sorted distinct class codes of the dataset.
func classesOf(ds *ctree.Dataset) []float64 {
	seen := make(map[float64]bool)
	classes := make([]float64, 0)
	for _, label := range ds.LabelsOf() {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	floats.Argsort(classes, make([]int, len(classes)))
	return classes
}

func checkFeatures(features mat.Matrix, numFeatures int) error {
	_, w := features.Dims()
	if w != numFeatures {
		return errors.Wrapf(ctree.ErrInvalidConfiguration, "features have %d columns, the model was trained on %d", w, numFeatures)
	}
	return nil
}
