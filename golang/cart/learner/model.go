package learner

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"gonum.org/v1/gonum/mat"
)

//Model is a trainable tree estimator.
type Model interface {
	Train(ds *ctree.Dataset) error
	Predict(features mat.Matrix) (*mat.Dense, error)
	FeatureImportances() (map[int]float64, error)
	Trees() []*ctree.Tree
}

const (
	KindClassificationTree = "classification_tree"
	KindRegressionTree     = "regression_tree"
	KindRandomForest       = "random_forest"
	KindGradientBoost      = "gradient_boost"
)

type modelFile struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

//KindOf returns the name under which a model is saved.
func KindOf(model Model) (string, error) {
	switch model.(type) {
	case *ClassificationTree:
		return KindClassificationTree, nil
	case *RegressionTree:
		return KindRegressionTree, nil
	case *RandomForest:
		return KindRandomForest, nil
	case *GradientBoost:
		return KindGradientBoost, nil
	}
	return "", errors.Wrapf(ctree.ErrInvalidConfiguration, "unknown model type %T", model)
}

func emptyModel(kind string) (Model, error) {
	switch kind {
	case KindClassificationTree:
		return &ClassificationTree{}, nil
	case KindRegressionTree:
		return &RegressionTree{}, nil
	case KindRandomForest:
		return &RandomForest{}, nil
	case KindGradientBoost:
		return &GradientBoost{}, nil
	}
	return nil, errors.Wrapf(ctree.ErrInvalidConfiguration, "unknown model kind %q", kind)
}

//Save writes the model as JSON.
func Save(model Model, filename string) error {
	kind, err := KindOf(model)
	if err != nil {
		return err
	}
	modelByteRepr, err := json.Marshal(model)
	if err != nil {
		return errors.Wrap(err, "can't encode the model")
	}
	fileByteRepr, err := json.MarshalIndent(modelFile{Kind: kind, Model: modelByteRepr}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "can't encode the model")
	}

	dest, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "can't open file %s to write", filename)
	}
	if _, err := dest.Write(fileByteRepr); err != nil {
		dest.Close()
		return errors.Wrapf(err, "can't write %s", filename)
	}
	return dest.Close()
}

//LoadModel reads a model written by Save. A loaded model predicts but can't be trained further.
func LoadModel(filename string) (Model, error) {
	source, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", filename)
	}
	defer source.Close()

	var file modelFile
	if err := json.NewDecoder(source).Decode(&file); err != nil {
		return nil, errors.Wrapf(err, "can't decode %s", filename)
	}
	model, err := emptyModel(file.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(file.Model, model); err != nil {
		return nil, errors.Wrapf(err, "can't decode the %s in %s", file.Kind, filename)
	}
	return model, nil
}

//RenderTrees draws every tree of the model into picturesDirectory as <dumpPrefix>_<index>.<figureType>.
func RenderTrees(model Model, header []string, dumpPrefix, figureType, picturesDirectory string) error {
	if _, err := ctree.GraphFormat(figureType); err != nil {
		return err
	}
	for graphInd, currentTree := range model.Trees() {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		if err := currentTree.RenderGraph(header, figureType, path.Join(picturesDirectory, filename)); err != nil {
			return err
		}
	}
	return nil
}
