package ctree

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

//Search walks the tree from the root down to the outcome of sample. A categorical split sends
//the sample left on equality, a continuous one when the feature is less than the threshold.
func (tree *Tree) Search(sample []float64) (*Outcome, error) {
	if tree.Bare() {
		return nil, errors.Wrap(ErrNotTrained, "search in a bare tree")
	}
	if len(sample) < tree.NumFeatures {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "sample has %d features, the tree was grown on %d", len(sample), tree.NumFeatures)
	}

	ind := 0
	for !tree.TreeNodes[ind].IsLeaf() {
		node := tree.TreeNodes[ind]
		if GoesLeft(sample[node.Column], node.Value, node.Categorical) {
			ind = node.LeftIndex
		} else {
			ind = node.RightIndex
		}
	}
	outcome := tree.LeafNodes[tree.TreeNodes[ind].LeafIndex].Outcome
	return &outcome, nil
}

//FeatureImportances sums the purity increases of the splits per column. Every column of the
//training set is present, columns never split on have zero importance.
func (tree *Tree) FeatureImportances() (map[int]float64, error) {
	if tree.Bare() {
		return nil, errors.Wrap(ErrNotTrained, "feature importances of a bare tree")
	}
	importances := make(map[int]float64, tree.NumFeatures)
	for column := 0; column < tree.NumFeatures; column++ {
		importances[column] = 0
	}
	for _, node := range tree.TreeNodes {
		if node.IsLeaf() {
			continue
		}
		importances[node.Column] += node.PurityIncrease()
	}
	return importances, nil
}

//Rules renders the tree depth first, one condition per line, indenting each level by two spaces.
//Columns are named by header when it has a name for them.
func (tree *Tree) Rules(header []string) (string, error) {
	if tree.Bare() {
		return "", errors.Wrap(ErrNotTrained, "rules of a bare tree")
	}
	var sb strings.Builder
	tree.writeRules(&sb, header, 0, 0)
	return sb.String(), nil
}

func (tree *Tree) writeRules(sb *strings.Builder, header []string, ind, level int) {
	indent := strings.Repeat("  ", level)
	node := tree.TreeNodes[ind]
	if node.IsLeaf() {
		fmt.Fprintf(sb, "%s%s\n", indent, tree.LeafNodes[node.LeafIndex].Outcome)
		return
	}
	fmt.Fprintf(sb, "%sif %s:\n", indent, node.Condition(header, tree.Levels, true))
	tree.writeRules(sb, header, node.LeftIndex, level+1)
	fmt.Fprintf(sb, "%sif %s:\n", indent, node.Condition(header, tree.Levels, false))
	tree.writeRules(sb, header, node.RightIndex, level+1)
}

//Height returns the number of edges on the longest path from the root to a leaf.
func (tree *Tree) Height() int {
	if tree.Bare() {
		return 0
	}
	return tree.height(0)
}

func (tree *Tree) height(ind int) int {
	node := tree.TreeNodes[ind]
	if node.IsLeaf() {
		return 0
	}
	l, r := tree.height(node.LeftIndex), tree.height(node.RightIndex)
	if l > r {
		return l + 1
	}
	return r + 1
}

//Balance returns the height of the right subtree of the root minus the height of the left one.
func (tree *Tree) Balance() int {
	if tree.Bare() || tree.TreeNodes[0].IsLeaf() {
		return 0
	}
	return tree.height(tree.TreeNodes[0].RightIndex) - tree.height(tree.TreeNodes[0].LeftIndex)
}

//Leaves returns the outcomes of the tree, each leaf once even when it is attached to both sides of a split.
func (tree *Tree) Leaves() []Outcome {
	outcomes := make([]Outcome, len(tree.LeafNodes))
	for i, leaf := range tree.LeafNodes {
		outcomes[i] = leaf.Outcome
	}
	return outcomes
}
