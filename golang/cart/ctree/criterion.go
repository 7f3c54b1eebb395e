package ctree

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

//Criterion scores the heterogeneity of a group of labels and turns a terminal group into an Outcome.
//Impurity must be non-negative, 0 meaning a pure group.
type Criterion interface {
	Impurity(labels []float64) float64
	Terminate(ds *Dataset) Outcome
}

//Gini is the Gini impurity 1 - sum(p^2) over class proportions.
type Gini struct{}

//Entropy is the Shannon entropy -sum(p*ln(p)) over class proportions.
type Entropy struct{}

//Variance is the sample variance of continuous labels.
type Variance struct{}

//CriterionByName returns the criterion registered under name.
func CriterionByName(name string) (Criterion, error) {
	switch strings.ToLower(name) {
	case "gini":
		return Gini{}, nil
	case "entropy":
		return Entropy{}, nil
	case "variance", "mse":
		return Variance{}, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown criterion %q", name)
}

func (Gini) Impurity(labels []float64) float64 {
	n := float64(len(labels))
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, count := range classCounts(labels) {
		p := float64(count) / n
		sum += p * p
	}
	return math.Max(0, 1-sum)
}

func (Gini) Terminate(ds *Dataset) Outcome {
	return classOutcome(ds, Gini{})
}

func (Entropy) Impurity(labels []float64) float64 {
	n := float64(len(labels))
	if n == 0 {
		return 0
	}
	h := 0.0
	for _, count := range classCounts(labels) {
		p := float64(count) / n
		h -= p * math.Log(p)
	}
	return math.Max(0, h)
}

func (Entropy) Terminate(ds *Dataset) Outcome {
	return classOutcome(ds, Entropy{})
}

func (Variance) Impurity(labels []float64) float64 {
	if len(labels) <= 1 {
		return 0
	}
	return math.Max(0, stat.Variance(labels, nil))
}

func (Variance) Terminate(ds *Dataset) Outcome {
	labels := ds.LabelsOf()
	outcome := Outcome{
		Kind:      ValueOutcome,
		Count:     len(labels),
		RecordIds: ds.Records(),
	}
	if len(labels) > 0 {
		outcome.Mean = stat.Mean(labels, nil)
	}
	outcome.Variance = Variance{}.Impurity(labels)
	outcome.Impurity = outcome.Variance
	return outcome
}

//SplitImpurity is the impurity of a partition: the impurities of the groups weighted by their
//share of rows. Groups of at most one row are pure and are skipped.
func SplitImpurity(crit Criterion, groups ...*Dataset) float64 {
	n := 0
	for _, g := range groups {
		n += g.NumSamples()
	}
	if n == 0 {
		return 0
	}
	impurity := 0.0
	for _, g := range groups {
		m := g.NumSamples()
		if m <= 1 {
			continue
		}
		impurity += float64(m) / float64(n) * crit.Impurity(g.LabelsOf())
	}
	return impurity
}

func classCounts(labels []float64) map[float64]int {
	counts := make(map[float64]int)
	for _, label := range labels {
		counts[label]++
	}
	return counts
}

//ClassName returns the printable name of a class code.
func ClassName(names []string, code float64) string {
	if i := int(code); float64(i) == code && i >= 0 && i < len(names) {
		return names[i]
	}
	return strconv.FormatFloat(code, 'g', -1, 64)
}

func classOutcome(ds *Dataset, crit Criterion) Outcome {
	labels := ds.LabelsOf()
	counts := classCounts(labels)

	codes := make([]float64, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Float64s(codes)

	outcome := Outcome{
		Kind:          ClassOutcome,
		Count:         len(labels),
		Probabilities: make(map[string]float64, len(codes)),
		Impurity:      crit.Impurity(labels),
		RecordIds:     ds.Records(),
	}
	best := -1
	for _, code := range codes {
		count := counts[code]
		outcome.Probabilities[ClassName(ds.ClassNames, code)] = float64(count) / float64(len(labels))
		if count > best {
			best = count
			outcome.Class = code
			outcome.Label = ClassName(ds.ClassNames, code)
		}
	}
	return outcome
}
