package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tarstars/cart_trees/golang/cart/ctree"
	"github.com/tarstars/cart_trees/golang/cart/learner"
	"gonum.org/v1/gonum/mat"
)

func init() {
	rootCmd.AddCommand(trainCmd, predictCmd, rulesCmd, graphCmd, lcurveCmd, learningCurvesCmd, importancesCmd)
}

func writeNpy(fileName string, m *mat.Dense) error {
	dst, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", fileName)
	}
	if err := npyio.Write(dst, m); err != nil {
		dst.Close()
		return errors.Wrapf(err, "can't write %s", fileName)
	}
	return dst.Close()
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train a model and save it",
	RunE: func(cmd *cobra.Command, args []string) error {
		trainConfig := defaultTrainConfig()
		if err := decodeConfig(viper.GetString("config"), &trainConfig); err != nil {
			return err
		}

		log.Info("load train")
		dsTrain, err := trainConfig.Train.Load()
		if err != nil {
			return err
		}

		model, err := trainConfig.NewModel()
		if err != nil {
			return err
		}

		if booster, ok := model.(*learner.GradientBoost); ok {
			for _, testConfig := range trainConfig.Tests {
				log.Infof("load test %s", testConfig.Description)
				dsTest, err := testConfig.Load()
				if err != nil {
					return err
				}
				booster.Monitor(dsTest)
			}
		}

		if err := model.Train(dsTrain); err != nil {
			return err
		}
		return learner.Save(model, trainConfig.FileNameModel)
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "predict with a saved model and write the prediction as npy",
	RunE: func(cmd *cobra.Command, args []string) error {
		var predictConfig PredictConfig
		if err := decodeConfig(viper.GetString("config"), &predictConfig); err != nil {
			return err
		}

		features, err := ctree.ReadNpy(predictConfig.FileNameFeatures)
		if err != nil {
			return err
		}
		model, err := learner.LoadModel(predictConfig.FileNameModel)
		if err != nil {
			return err
		}

		var prediction *mat.Dense
		switch m := model.(type) {
		case *learner.GradientBoost:
			var optionalTreeNumber *int
			if predictConfig.TreesNumber != 0 {
				optionalTreeNumber = &predictConfig.TreesNumber
			}
			prediction, err = m.PredictValue(features, optionalTreeNumber)
		case *learner.ClassificationTree:
			if predictConfig.Proba {
				prediction, err = m.Proba(features)
			} else {
				prediction, err = m.Predict(features)
			}
		case *learner.RandomForest:
			if predictConfig.Proba {
				prediction, err = m.Proba(features)
			} else {
				prediction, err = m.Predict(features)
			}
		default:
			prediction, err = model.Predict(features)
		}
		if err != nil {
			return err
		}
		return writeNpy(predictConfig.FileNamePrediction, prediction)
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "print the rules of every tree of a saved model",
	RunE: func(cmd *cobra.Command, args []string) error {
		var inspectConfig InspectConfig
		if err := decodeConfig(viper.GetString("config"), &inspectConfig); err != nil {
			return err
		}
		model, err := learner.LoadModel(inspectConfig.FileNameModel)
		if err != nil {
			return err
		}

		var sb strings.Builder
		for treeInd, tree := range model.Trees() {
			rules, err := tree.Rules(inspectConfig.Header)
			if err != nil {
				return err
			}
			fmt.Fprintf(&sb, "# tree %d\n%s\n", treeInd, rules)
		}

		if inspectConfig.FileNameRules == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), sb.String())
			return err
		}
		return errors.Wrapf(os.WriteFile(inspectConfig.FileNameRules, []byte(sb.String()), 0644), "can't write %s", inspectConfig.FileNameRules)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "render the trees of a saved model with graphviz",
	RunE: func(cmd *cobra.Command, args []string) error {
		inspectConfig := InspectConfig{FigureType: "svg", PicturesDirectory: ".", DumpPrefix: "tree"}
		if err := decodeConfig(viper.GetString("config"), &inspectConfig); err != nil {
			return err
		}
		model, err := learner.LoadModel(inspectConfig.FileNameModel)
		if err != nil {
			return err
		}
		return learner.RenderTrees(model, inspectConfig.Header, inspectConfig.DumpPrefix, inspectConfig.FigureType, inspectConfig.PicturesDirectory)
	},
}

var lcurveCmd = &cobra.Command{
	Use:   "lcurve",
	Short: "compute the RMSE of a saved booster after every stage on a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		var lcurveConfig LcurveConfig
		if err := decodeConfig(viper.GetString("config"), &lcurveConfig); err != nil {
			return err
		}
		booster, err := loadBooster(lcurveConfig.FileNameModel)
		if err != nil {
			return err
		}
		ds, err := lcurveConfig.Data.Load()
		if err != nil {
			return err
		}

		curve, err := booster.LearningCurve(ds.Features, ds.LabelsOf())
		if err != nil {
			return err
		}
		return writeNpy(lcurveConfig.FileNameLearningCurve, mat.NewDense(len(curve), 1, curve))
	},
}

var learningCurvesCmd = &cobra.Command{
	Use:   "get_learning_curves",
	Short: "dump the learning curves recorded while a booster was trained",
	RunE: func(cmd *cobra.Command, args []string) error {
		var lcurveConfig LcurveConfig
		if err := decodeConfig(viper.GetString("config"), &lcurveConfig); err != nil {
			return err
		}
		booster, err := loadBooster(lcurveConfig.FileNameModel)
		if err != nil {
			return err
		}
		return booster.DumpLearningCurves(lcurveConfig.FileNameLearningCurves)
	},
}

func loadBooster(fileName string) (*learner.GradientBoost, error) {
	model, err := learner.LoadModel(fileName)
	if err != nil {
		return nil, err
	}
	booster, ok := model.(*learner.GradientBoost)
	if !ok {
		return nil, errors.Wrapf(ctree.ErrInvalidConfiguration, "%s is not a gradient boost model", fileName)
	}
	return booster, nil
}

var importancesCmd = &cobra.Command{
	Use:   "importances",
	Short: "print the normalized feature importances of a saved model",
	RunE: func(cmd *cobra.Command, args []string) error {
		var inspectConfig InspectConfig
		if err := decodeConfig(viper.GetString("config"), &inspectConfig); err != nil {
			return err
		}
		model, err := learner.LoadModel(inspectConfig.FileNameModel)
		if err != nil {
			return err
		}
		importances, err := model.FeatureImportances()
		if err != nil {
			return err
		}

		columns := make([]int, 0, len(importances))
		for column := range importances {
			columns = append(columns, column)
		}
		sort.Slice(columns, func(i, j int) bool {
			return importances[columns[i]] > importances[columns[j]] ||
				importances[columns[i]] == importances[columns[j]] && columns[i] < columns[j]
		})

		for _, column := range columns {
			name := fmt.Sprintf("Column_%d", column)
			if column < len(inspectConfig.Header) {
				name = inspectConfig.Header[column]
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-24s %.6f\n", name, importances[column]); err != nil {
				return err
			}
		}
		return nil
	},
}
