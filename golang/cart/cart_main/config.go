package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"github.com/tarstars/cart_trees/golang/cart/learner"
)

//decodeConfig reads a JSON or YAML config file into out. Keys missing from the file keep the values out already has.
func decodeConfig(srcConfig string, out interface{}) error {
	v := viper.New()
	v.SetConfigFile(srcConfig)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "can't read config %s", srcConfig)
	}
	if err := v.Unmarshal(out); err != nil {
		return errors.Wrapf(err, "can't decode config %s", srcConfig)
	}
	log.Debugf("config %s: %+v", srcConfig, out)
	return nil
}

type DatasetConfig struct {
	Description        string   `mapstructure:"description"`
	FileNameFeatures   string   `mapstructure:"filename_features"`
	FileNameLabels     string   `mapstructure:"filename_labels"`
	CategoricalColumns []int    `mapstructure:"categorical_columns"`
	ClassNames         []string `mapstructure:"class_names"`
}

//Load reads the features and the labels, marking the categorical columns.
func (c DatasetConfig) Load() (*ctree.Dataset, error) {
	features, err := ctree.ReadNpy(c.FileNameFeatures)
	if err != nil {
		return nil, err
	}
	_, w := features.Dims()

	var types []ctree.FeatureType
	if len(c.CategoricalColumns) > 0 {
		types = make([]ctree.FeatureType, w)
		for _, column := range c.CategoricalColumns {
			if column < 0 || column >= w {
				return nil, errors.Wrapf(ctree.ErrInvalidConfiguration, "categorical column %d is out of %d columns", column, w)
			}
			types[column] = ctree.Categorical
		}
	}

	labels, err := ctree.ReadNpyVector(c.FileNameLabels)
	if err != nil {
		return nil, err
	}
	ds := ctree.NewDataset(features, labels, types)
	ds.ClassNames = c.ClassNames
	ds.SetDescription(c.Description)
	return ds, ds.Validate()
}

type TrainConfig struct {
	Train         DatasetConfig             `mapstructure:"train"`
	Tests         []DatasetConfig           `mapstructure:"tests"`
	FileNameModel string                    `mapstructure:"filename_model"`
	Model         string                    `mapstructure:"model"`
	Tree          learner.TreeLearnerParams `mapstructure:"tree"`
	NumEstimators int                       `mapstructure:"num_estimators"`
	Ratio         float64                   `mapstructure:"ratio"`
	Workers       int                       `mapstructure:"workers"`
	Regression    bool                      `mapstructure:"regression"`
	NStages       int                       `mapstructure:"n_stages"`
	LearningRate  float64                   `mapstructure:"learning_rate"`
}

func defaultTrainConfig() TrainConfig {
	return TrainConfig{
		Model:         learner.KindClassificationTree,
		Tree:          learner.DefaultTreeLearnerParams(),
		NumEstimators: 100,
		NStages:       100,
		LearningRate:  0.1,
	}
}

//NewModel creates the untrained estimator the config describes.
func (c TrainConfig) NewModel() (learner.Model, error) {
	switch c.Model {
	case learner.KindClassificationTree:
		return learner.NewClassificationTree(c.Tree), nil
	case learner.KindRegressionTree:
		return learner.NewRegressionTree(c.Tree), nil
	case learner.KindRandomForest:
		return learner.NewRandomForest(learner.ForestParams{
			Tree:          c.Tree,
			NumEstimators: c.NumEstimators,
			Ratio:         c.Ratio,
			Workers:       c.Workers,
			Regression:    c.Regression,
		}), nil
	case learner.KindGradientBoost:
		return learner.NewGradientBoost(learner.BoostParams{
			Tree:         c.Tree,
			NStages:      c.NStages,
			LearningRate: c.LearningRate,
		}), nil
	}
	return nil, errors.Wrapf(ctree.ErrInvalidConfiguration, "unknown model %q", c.Model)
}

type PredictConfig struct {
	FileNameFeatures   string `mapstructure:"filename_features"`
	FileNameModel      string `mapstructure:"filename_model"`
	FileNamePrediction string `mapstructure:"filename_prediction"`
	TreesNumber        int    `mapstructure:"trees_number"`
	Proba              bool   `mapstructure:"proba"`
}

type InspectConfig struct {
	FileNameModel     string   `mapstructure:"filename_model"`
	Header            []string `mapstructure:"header"`
	FileNameRules     string   `mapstructure:"filename_rules"`
	FigureType        string   `mapstructure:"figure_type"`
	PicturesDirectory string   `mapstructure:"pictures_directory"`
	DumpPrefix        string   `mapstructure:"dump_prefix"`
}

type LcurveConfig struct {
	Data                   DatasetConfig `mapstructure:"data"`
	FileNameModel          string        `mapstructure:"filename_model"`
	FileNameLearningCurve  string        `mapstructure:"filename_learning_curve"`
	FileNameLearningCurves string        `mapstructure:"filename_learning_curves"`
}
