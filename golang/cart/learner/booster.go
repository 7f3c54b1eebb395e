package learner

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//BoostStage is one tree of the booster with the monitored metrics after it was added.
type BoostStage struct {
	Tree             *ctree.Tree
	LearningCurveRow []float64
}

//BoostParams collect arguments required to construct a booster. Every stage grows a regression
//tree with its own seed derived from Tree.Seed.
type BoostParams struct {
	Tree         TreeLearnerParams `json:"tree" mapstructure:"tree"`
	NStages      int               `json:"n_stages" mapstructure:"n_stages"`
	LearningRate float64           `json:"learning_rate" mapstructure:"learning_rate"`
}

//GradientBoost fits regression trees to the residuals of the mean squared error.
type GradientBoost struct {
	Params              BoostParams
	Bias                float64
	Stages              []BoostStage
	LearningCurveTitles []string

	monitors []*ctree.Dataset
}

//NewGradientBoost creates an untrained booster.
func NewGradientBoost(params BoostParams) *GradientBoost {
	return &GradientBoost{Params: params}
}

//Monitor registers datasets whose RMSE is logged and stored after every stage. The description
//of a dataset is the title of its learning curve.
func (b *GradientBoost) Monitor(datasets ...*ctree.Dataset) {
	b.monitors = append(b.monitors, datasets...)
}

func (b *GradientBoost) validate() error {
	if b.Params.NStages < 1 {
		return errors.Wrapf(ctree.ErrInvalidConfiguration, "booster needs at least one stage, %d given", b.Params.NStages)
	}
	if b.Params.LearningRate <= 0 || math.IsNaN(b.Params.LearningRate) {
		return errors.Wrapf(ctree.ErrInvalidConfiguration, "learning rate must be positive, %g given", b.Params.LearningRate)
	}
	return b.Params.Tree.Validate()
}

//Train starts from the mean label and adds NStages trees, each fitted to the current residuals.
func (b *GradientBoost) Train(ds *ctree.Dataset) error {
	if err := b.validate(); err != nil {
		return err
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.Empty() {
		return errors.Wrap(ctree.ErrInvalidConfiguration, "cannot train a booster on an empty dataset")
	}

	b.Bias = stat.Mean(ds.LabelsOf(), nil)
	b.Stages = make([]BoostStage, 0, b.Params.NStages)
	b.LearningCurveTitles = make([]string, 0, len(b.monitors))

	h, _ := ds.Features.Dims()
	bias := make([]float64, h)
	floats.AddConst(b.Bias, bias)

	monitorBiases := make([][]float64, len(b.monitors))
	for i, monitor := range b.monitors {
		b.LearningCurveTitles = append(b.LearningCurveTitles, monitor.Description)
		monitorBiases[i] = make([]float64, monitor.NumSamples())
		floats.AddConst(b.Bias, monitorBiases[i])
	}

	residual := make([]float64, h)
	for stage := 0; stage < b.Params.NStages; stage++ {
		floats.SubTo(residual, ds.Labels, bias)

		tree, err := b.Params.Tree.newTree(true, b.Params.Tree.Seed+uint64(stage))
		if err != nil {
			return err
		}
		if err := tree.Grow(ds.WithLabels(residual)); err != nil {
			return errors.Wrapf(err, "can't grow the tree of stage %d", stage+1)
		}

		err = predictTree(tree, ds.Features, func(p int, outcome *ctree.Outcome) {
			bias[p] += b.Params.LearningRate * outcome.Mean
		})
		if err != nil {
			return err
		}

		current := BoostStage{Tree: tree}
		for i, monitor := range b.monitors {
			value, err := b.message(tree, monitor, monitorBiases[i])
			if err != nil {
				return err
			}
			current.LearningCurveRow = append(current.LearningCurveRow, value)
		}
		b.Stages = append(b.Stages, current)
		log.Debugf("tree number %d", stage+1)
	}
	log.Infof("gradient boost: %d stages", len(b.Stages))
	return nil
}

//message adds the stage to the running prediction of a monitored dataset and reports its RMSE.
func (b *GradientBoost) message(tree *ctree.Tree, monitor *ctree.Dataset, monitorBias []float64) (float64, error) {
	n := monitor.NumSamples()
	for p := 0; p < n; p++ {
		outcome, err := tree.Search(monitor.Sample(p))
		if err != nil {
			return 0, err
		}
		monitorBias[p] += b.Params.LearningRate * outcome.Mean
	}
	value := Rmse(monitor.LabelsOf(), monitorBias)
	log.WithFields(logrus.Fields{"dataset": monitor.Description, "rmse": value}).Info("learning curve")
	return value, nil
}

//Rmse returns the root mean squared error between target and prediction.
func Rmse(target, prediction []float64) float64 {
	if len(target) == 0 {
		return 0
	}
	return floats.Distance(target, prediction, 2) / math.Sqrt(float64(len(target)))
}

//PredictValue infers values of the target using the first treesNumber stages, all of them when nil.
func (b *GradientBoost) PredictValue(features mat.Matrix, treesNumber *int) (*mat.Dense, error) {
	if len(b.Stages) == 0 {
		return nil, errors.Wrap(ctree.ErrNotTrained, "predict with an untrained booster")
	}
	if err := checkFeatures(features, b.Stages[0].Tree.NumFeatures); err != nil {
		return nil, err
	}

	n := len(b.Stages)
	if treesNumber != nil {
		if *treesNumber < 0 || *treesNumber > n {
			return nil, errors.Wrapf(ctree.ErrInvalidConfiguration, "trees number %d is out of [0, %d]", *treesNumber, n)
		}
		n = *treesNumber
	}

	h, _ := features.Dims()
	prediction := mat.NewDense(h, 1, nil)
	for p := 0; p < h; p++ {
		prediction.Set(p, 0, b.Bias)
	}
	for _, stage := range b.Stages[:n] {
		err := predictTree(stage.Tree, features, func(p int, outcome *ctree.Outcome) {
			prediction.Set(p, 0, prediction.At(p, 0)+b.Params.LearningRate*outcome.Mean)
		})
		if err != nil {
			return nil, err
		}
	}
	return prediction, nil
}

func (b *GradientBoost) Predict(features mat.Matrix) (*mat.Dense, error) {
	return b.PredictValue(features, nil)
}

//LearningCurve returns the RMSE of target after every stage.
func (b *GradientBoost) LearningCurve(features mat.Matrix, target []float64) ([]float64, error) {
	curve := make([]float64, 0, len(b.Stages))
	for n := 1; n <= len(b.Stages); n++ {
		n := n
		prediction, err := b.PredictValue(features, &n)
		if err != nil {
			return nil, err
		}
		curve = append(curve, Rmse(target, mat.Col(nil, 0, prediction)))
	}
	return curve, nil
}

//FeatureImportances sums the importances of the stages and normalizes them.
func (b *GradientBoost) FeatureImportances() (map[int]float64, error) {
	if len(b.Stages) == 0 {
		return nil, errors.Wrap(ctree.ErrNotTrained, "importances of an untrained booster")
	}
	total := make(map[int]float64)
	for _, stage := range b.Stages {
		importances, err := stage.Tree.FeatureImportances()
		if err != nil {
			return nil, err
		}
		for column, value := range importances {
			total[column] += value
		}
	}
	return normalize(total), nil
}

func (b *GradientBoost) Trees() []*ctree.Tree {
	trees := make([]*ctree.Tree, len(b.Stages))
	for i, stage := range b.Stages {
		trees[i] = stage.Tree
	}
	return trees
}

type LearningCurvesDump struct {
	Titles []string
	Values [][]float64
}

//DumpLearningCurves writes the monitored metrics of every stage as JSON.
func (b *GradientBoost) DumpLearningCurves(filenameLearningCurves string) error {
	learningCurvesDump := LearningCurvesDump{Titles: b.LearningCurveTitles, Values: make([][]float64, 0)}
	for _, stage := range b.Stages {
		learningCurvesDump.Values = append(learningCurvesDump.Values, stage.LearningCurveRow)
	}

	bytesResult, err := json.MarshalIndent(learningCurvesDump, "", "  ")
	if err != nil {
		return errors.Wrap(err, "can't encode learning curves")
	}
	return errors.Wrapf(os.WriteFile(filenameLearningCurves, bytesResult, 0644), "can't write %s", filenameLearningCurves)
}
