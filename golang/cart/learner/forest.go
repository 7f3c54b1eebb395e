package learner

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

//ForestParams collect arguments required to construct a forest. Ratio is the size of a bootstrap
//sample relative to the training set, 1 when unset. Workers bounds the number of trees grown at
//once, GOMAXPROCS when unset.
type ForestParams struct {
	Tree          TreeLearnerParams `json:"tree" mapstructure:"tree"`
	NumEstimators int               `json:"num_estimators" mapstructure:"num_estimators"`
	Ratio         float64           `json:"ratio" mapstructure:"ratio"`
	Workers       int               `json:"workers" mapstructure:"workers"`
	Regression    bool              `json:"regression" mapstructure:"regression"`
}

//RandomForest is a bagged ensemble of trees. Classification forests vote, regression forests average.
type RandomForest struct {
	Params     ForestParams
	Estimators []*ctree.Tree
	Classes    []float64
	ClassNames []string
}

//NewRandomForest creates an untrained forest.
func NewRandomForest(params ForestParams) *RandomForest {
	return &RandomForest{Params: params}
}

func (f *RandomForest) validate() error {
	if f.Params.NumEstimators < 1 {
		return errors.Wrapf(ctree.ErrInvalidConfiguration, "forest needs at least one estimator, %d given", f.Params.NumEstimators)
	}
	if f.Params.Ratio < 0 {
		return errors.Wrapf(ctree.ErrInvalidConfiguration, "bootstrap ratio must be positive, %g given", f.Params.Ratio)
	}
	return f.Params.Tree.Validate()
}

//Train grows NumEstimators trees, each on its own bootstrap sample drawn from a seed derived
//from the forest seed, so that the result does not depend on Workers.
func (f *RandomForest) Train(ds *ctree.Dataset) error {
	if err := f.validate(); err != nil {
		return err
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	n := ds.NumSamples()
	if n == 0 {
		return errors.Wrap(ctree.ErrInvalidConfiguration, "cannot train a forest on an empty dataset")
	}

	ratio := f.Params.Ratio
	if ratio == 0 {
		ratio = 1
	}
	size := int(ratio * float64(n))
	if size < 1 {
		size = 1
	}
	workers := f.Params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	seeds := make([]uint64, f.Params.NumEstimators)
	master := rand.New(rand.NewSource(f.Params.Tree.Seed))
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	estimators := make([]*ctree.Tree, f.Params.NumEstimators)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range estimators {
		i := i
		g.Go(func() error {
			tree, err := f.Params.Tree.newTree(f.Params.Regression, seeds[i])
			if err != nil {
				return err
			}
			bootstrap := rand.New(rand.NewSource(seeds[i] ^ 0x9e3779b97f4a7c15))
			positions := make([]int, size)
			for j := range positions {
				positions[j] = bootstrap.Intn(n)
			}
			if err := tree.Grow(ds.Take(positions)); err != nil {
				return errors.Wrapf(err, "can't grow estimator %d", i)
			}
			log.Debugf("estimator %d: %d nodes", i, tree.NumNodes())
			estimators[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Estimators = estimators
	if !f.Params.Regression {
		f.Classes = classesOf(ds)
		f.ClassNames = ds.ClassNames
	}
	log.Infof("random forest: %d estimators on %d rows with %d workers", len(estimators), n, workers)
	return nil
}

func (f *RandomForest) checkTrained(features mat.Matrix) error {
	if len(f.Estimators) == 0 {
		return errors.Wrap(ctree.ErrNotTrained, "predict with an untrained forest")
	}
	return checkFeatures(features, f.Estimators[0].NumFeatures)
}

//Predict returns the majority vote of the estimators for classification, ties going to the lowest
//class code, and the mean of their predictions for regression.
func (f *RandomForest) Predict(features mat.Matrix) (*mat.Dense, error) {
	if err := f.checkTrained(features); err != nil {
		return nil, err
	}
	h, _ := features.Dims()
	prediction := mat.NewDense(h, 1, nil)

	if f.Params.Regression {
		for _, tree := range f.Estimators {
			err := predictTree(tree, features, func(p int, outcome *ctree.Outcome) {
				prediction.Set(p, 0, prediction.At(p, 0)+outcome.Mean)
			})
			if err != nil {
				return nil, err
			}
		}
		prediction.Scale(1/float64(len(f.Estimators)), prediction)
		return prediction, nil
	}

	votes := mat.NewDense(h, len(f.Classes), nil)
	column := make(map[float64]int, len(f.Classes))
	for q, code := range f.Classes {
		column[code] = q
	}
	for _, tree := range f.Estimators {
		err := predictTree(tree, features, func(p int, outcome *ctree.Outcome) {
			q := column[outcome.Class]
			votes.Set(p, q, votes.At(p, q)+1)
		})
		if err != nil {
			return nil, err
		}
	}
	for p := 0; p < h; p++ {
		best := 0
		for q := 1; q < len(f.Classes); q++ {
			if votes.At(p, q) > votes.At(p, best) {
				best = q
			}
		}
		prediction.Set(p, 0, f.Classes[best])
	}
	return prediction, nil
}

//Proba averages the leaf probabilities of the estimators, one column per entry of Classes.
func (f *RandomForest) Proba(features mat.Matrix) (*mat.Dense, error) {
	if f.Params.Regression {
		return nil, errors.Wrap(ctree.ErrInvalidConfiguration, "probabilities of a regression forest")
	}
	if err := f.checkTrained(features); err != nil {
		return nil, err
	}
	h, _ := features.Dims()
	proba := mat.NewDense(h, len(f.Classes), nil)
	for _, tree := range f.Estimators {
		err := predictTree(tree, features, func(p int, outcome *ctree.Outcome) {
			for q, code := range f.Classes {
				proba.Set(p, q, proba.At(p, q)+outcome.Probabilities[ctree.ClassName(f.ClassNames, code)])
			}
		})
		if err != nil {
			return nil, err
		}
	}
	proba.Scale(1/float64(len(f.Estimators)), proba)
	return proba, nil
}

//FeatureImportances averages the normalized importances of the estimators.
func (f *RandomForest) FeatureImportances() (map[int]float64, error) {
	if len(f.Estimators) == 0 {
		return nil, errors.Wrap(ctree.ErrNotTrained, "importances of an untrained forest")
	}
	table, err := f.importanceTable()
	if err != nil {
		return nil, err
	}
	total, err := table.Sum(0)
	if err != nil {
		return nil, errors.Wrap(err, "can't reduce the importance table")
	}

	numFeatures := f.Estimators[0].NumFeatures
	importances := make(map[int]float64, numFeatures)
	for column := 0; column < numFeatures; column++ {
		value, err := total.At(column)
		if err != nil {
			return nil, errors.Wrapf(err, "can't read importance of column %d", column)
		}
		importances[column] = value.(float64) / float64(len(f.Estimators))
	}
	return importances, nil
}

//importanceTable holds the normalized importances of every estimator, one row per tree.
func (f *RandomForest) importanceTable() (*tensor.Dense, error) {
	numFeatures := f.Estimators[0].NumFeatures
	table := tensor.New(tensor.WithShape(len(f.Estimators), numFeatures), tensor.Of(tensor.Float64))
	for i, tree := range f.Estimators {
		importances, err := tree.FeatureImportances()
		if err != nil {
			return nil, err
		}
		for column, value := range normalize(importances) {
			if err := table.SetAt(value, i, column); err != nil {
				return nil, errors.Wrapf(err, "can't store importance of column %d", column)
			}
		}
	}
	return table, nil
}

func (f *RandomForest) Trees() []*ctree.Tree {
	return f.Estimators
}
