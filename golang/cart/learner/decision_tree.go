package learner

import (
	"github.com/pkg/errors"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"gonum.org/v1/gonum/mat"
)

//ClassificationTree is a single CART (or Extra Tree) classifier.
type ClassificationTree struct {
	Params     TreeLearnerParams
	Tree       *ctree.Tree
	Classes    []float64
	ClassNames []string
}

//NewClassificationTree creates an untrained classifier.
func NewClassificationTree(params TreeLearnerParams) *ClassificationTree {
	return &ClassificationTree{Params: params}
}

//Train grows the tree on ds. Labels must be class codes.
func (m *ClassificationTree) Train(ds *ctree.Dataset) error {
	tree, err := m.Params.newTree(false, m.Params.Seed)
	if err != nil {
		return err
	}
	if err := tree.Grow(ds); err != nil {
		return errors.Wrap(err, "can't grow the classification tree")
	}
	m.Tree = tree
	m.Classes = classesOf(ds)
	m.ClassNames = ds.ClassNames
	log.Infof("classification tree: %d nodes, height %d", tree.NumNodes(), tree.Height())
	return nil
}

//Predict returns the predicted class codes as a column.
func (m *ClassificationTree) Predict(features mat.Matrix) (*mat.Dense, error) {
	if err := m.checkTrained(features); err != nil {
		return nil, err
	}
	h, _ := features.Dims()
	prediction := mat.NewDense(h, 1, nil)
	err := predictTree(m.Tree, features, func(p int, outcome *ctree.Outcome) {
		prediction.Set(p, 0, outcome.Class)
	})
	return prediction, err
}

//PredictLabels returns the predicted class names.
func (m *ClassificationTree) PredictLabels(features mat.Matrix) ([]string, error) {
	if err := m.checkTrained(features); err != nil {
		return nil, err
	}
	h, _ := features.Dims()
	labels := make([]string, h)
	err := predictTree(m.Tree, features, func(p int, outcome *ctree.Outcome) {
		labels[p] = outcome.Label
	})
	return labels, err
}

//Proba returns the class probabilities of the leaves, one column per entry of Classes.
func (m *ClassificationTree) Proba(features mat.Matrix) (*mat.Dense, error) {
	if err := m.checkTrained(features); err != nil {
		return nil, err
	}
	h, _ := features.Dims()
	proba := mat.NewDense(h, len(m.Classes), nil)
	err := predictTree(m.Tree, features, func(p int, outcome *ctree.Outcome) {
		for q, code := range m.Classes {
			proba.Set(p, q, outcome.Probabilities[ctree.ClassName(m.ClassNames, code)])
		}
	})
	return proba, err
}

//FeatureImportances returns the purity increases per column normalized to sum to 1.
func (m *ClassificationTree) FeatureImportances() (map[int]float64, error) {
	if m.Tree == nil {
		return nil, errors.Wrap(ctree.ErrNotTrained, "importances of an untrained model")
	}
	importances, err := m.Tree.FeatureImportances()
	if err != nil {
		return nil, err
	}
	return normalize(importances), nil
}

func (m *ClassificationTree) Rules(header []string) (string, error) {
	if m.Tree == nil {
		return "", errors.Wrap(ctree.ErrNotTrained, "rules of an untrained model")
	}
	return m.Tree.Rules(header)
}

func (m *ClassificationTree) Trees() []*ctree.Tree {
	if m.Tree == nil {
		return nil
	}
	return []*ctree.Tree{m.Tree}
}

func (m *ClassificationTree) checkTrained(features mat.Matrix) error {
	if m.Tree == nil || m.Tree.Bare() {
		return errors.Wrap(ctree.ErrNotTrained, "predict with an untrained model")
	}
	return checkFeatures(features, m.Tree.NumFeatures)
}

//RegressionTree is a single CART (or Extra Tree) regressor.
type RegressionTree struct {
	Params TreeLearnerParams
	Tree   *ctree.Tree
}

//NewRegressionTree creates an untrained regressor.
func NewRegressionTree(params TreeLearnerParams) *RegressionTree {
	return &RegressionTree{Params: params}
}

func (m *RegressionTree) Train(ds *ctree.Dataset) error {
	tree, err := m.Params.newTree(true, m.Params.Seed)
	if err != nil {
		return err
	}
	if err := tree.Grow(ds); err != nil {
		return errors.Wrap(err, "can't grow the regression tree")
	}
	m.Tree = tree
	log.Infof("regression tree: %d nodes, height %d", tree.NumNodes(), tree.Height())
	return nil
}

//Predict returns the leaf means as a column.
func (m *RegressionTree) Predict(features mat.Matrix) (*mat.Dense, error) {
	if m.Tree == nil || m.Tree.Bare() {
		return nil, errors.Wrap(ctree.ErrNotTrained, "predict with an untrained model")
	}
	if err := checkFeatures(features, m.Tree.NumFeatures); err != nil {
		return nil, err
	}
	h, _ := features.Dims()
	prediction := mat.NewDense(h, 1, nil)
	err := predictTree(m.Tree, features, func(p int, outcome *ctree.Outcome) {
		prediction.Set(p, 0, outcome.Mean)
	})
	return prediction, err
}

func (m *RegressionTree) FeatureImportances() (map[int]float64, error) {
	if m.Tree == nil {
		return nil, errors.Wrap(ctree.ErrNotTrained, "importances of an untrained model")
	}
	importances, err := m.Tree.FeatureImportances()
	if err != nil {
		return nil, err
	}
	return normalize(importances), nil
}

func (m *RegressionTree) Rules(header []string) (string, error) {
	if m.Tree == nil {
		return "", errors.Wrap(ctree.ErrNotTrained, "rules of an untrained model")
	}
	return m.Tree.Rules(header)
}

func (m *RegressionTree) Trees() []*ctree.Tree {
	if m.Tree == nil {
		return nil
	}
	return []*ctree.Tree{m.Tree}
}
