package ctree

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

var log = logrus.WithField("component", "ctree")

const (
	defaultMaxHeight         = math.MaxInt32
	defaultMaxLeafSize       = 3
	defaultMinPurityIncrease = 1e-7
)

//TreeParams are the hyper-parameters of tree growth. A zero MaxFeatures means ceil(sqrt(n_features)).
type TreeParams struct {
	MaxHeight         int     `json:"max_height" mapstructure:"max_height"`
	MaxLeafSize       int     `json:"max_leaf_size" mapstructure:"max_leaf_size"`
	MinPurityIncrease float64 `json:"min_purity_increase" mapstructure:"min_purity_increase"`
	MaxFeatures       int     `json:"max_features" mapstructure:"max_features"`
}

//DefaultTreeParams returns unbounded height, leaves of at most 3 rows and a minimal purity increase of 1e-7.
func DefaultTreeParams() TreeParams {
	return TreeParams{
		MaxHeight:         defaultMaxHeight,
		MaxLeafSize:       defaultMaxLeafSize,
		MinPurityIncrease: defaultMinPurityIncrease,
	}
}

//Validate fails fast on parameters the grower cannot work with.
func (p TreeParams) Validate() error {
	if p.MaxHeight < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "max height must be at least 1, %d given", p.MaxHeight)
	}
	if p.MaxLeafSize < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "max leaf size must be at least 1, %d given", p.MaxLeafSize)
	}
	if p.MinPurityIncrease < 0 || math.IsNaN(p.MinPurityIncrease) {
		return errors.Wrapf(ErrInvalidConfiguration, "min purity increase must be non-negative, %g given", p.MinPurityIncrease)
	}
	if p.MaxFeatures < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "max features must be unset or at least 1, %d given", p.MaxFeatures)
	}
	return nil
}

//Tree is a binary decision tree stored in two arrays: TreeNodes holds splits and the nodes
//that point to leaves, LeafNodes holds the outcomes. The root is TreeNodes[0].
//A Tree is not safe for concurrent use; independent trees can be grown in parallel.
type Tree struct {
	Params      TreeParams
	TreeNodes   []TreeNode
	LeafNodes   []LeafNode
	NumFeatures int
	Types       []FeatureType
	Levels      [][]string

	criterion Criterion
	splitter  Splitter
	rng       *rand.Rand
}

//NewTree validates params and creates a bare tree. rng may be nil to use the global source.
func NewTree(params TreeParams, criterion Criterion, splitter Splitter, rng *rand.Rand) (*Tree, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if criterion == nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, "criterion is required")
	}
	if splitter == nil {
		splitter = ExactSearch{}
	}
	return &Tree{Params: params, criterion: criterion, splitter: splitter, rng: rng}, nil
}

//Bare reports whether the tree has not been grown.
func (tree *Tree) Bare() bool {
	return len(tree.TreeNodes) == 0
}

//NumNodes returns the number of tree nodes, leaves included.
func (tree *Tree) NumNodes() int {
	return len(tree.TreeNodes)
}

type stackItem struct {
	node  int
	depth int
}

type buildStack []stackItem

func (s buildStack) Empty() bool       { return len(s) == 0 }
func (s *buildStack) Push(n stackItem) { *s = append(*s, n) }
func (s *buildStack) Pop() stackItem {
	d := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return d
}

//Grow builds the tree from ds, discarding a previously grown tree. The root is at depth 1 and
//no leaf is deeper than MaxHeight, so MaxHeight 1 and 2 both give a single split.
//A dataset of at most MaxLeafSize rows becomes a single leaf.
func (tree *Tree) Grow(ds *Dataset) error {
	if tree.criterion == nil || tree.splitter == nil {
		return errors.Wrap(ErrInvalidConfiguration, "tree was not created with NewTree")
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.Empty() {
		return errors.Wrap(ErrInvalidConfiguration, "cannot grow a tree from an empty dataset")
	}

	tree.TreeNodes = make([]TreeNode, 0)
	tree.LeafNodes = make([]LeafNode, 0)
	tree.NumFeatures = ds.NumFeatures()
	tree.Types = ds.Types
	tree.Levels = ds.Levels

	if ds.NumSamples() <= tree.Params.MaxLeafSize {
		tree.addLeaf(ds)
		log.Debugf("grown a single leaf tree from %d rows", ds.NumSamples())
		return nil
	}

	root, err := tree.split(ds)
	if err != nil {
		tree.TreeNodes = nil
		return err
	}
	if root.PurityIncrease() < tree.Params.MinPurityIncrease {
		tree.addLeaf(ds)
		log.Debugf("grown a single leaf tree from %d rows", ds.NumSamples())
		return nil
	}

	stack := buildStack{}
	stack.Push(stackItem{tree.addNode(root), 1})

	for !stack.Empty() {
		item := stack.Pop()
		left, right := tree.cleanup(item.node)
		depth := item.depth + 1

		if left.Empty() || right.Empty() {
			leaf := tree.addLeaf(left.Merge(right))
			tree.attach(item.node, leaf, leaf)
			continue
		}

		if depth >= tree.Params.MaxHeight {
			tree.attach(item.node, tree.addLeaf(left), tree.addLeaf(right))
			continue
		}

		leftId, err := tree.branch(left)
		if err != nil {
			tree.TreeNodes = nil
			return err
		}
		rightId, err := tree.branch(right)
		if err != nil {
			tree.TreeNodes = nil
			return err
		}
		tree.attach(item.node, leftId, rightId)

		for _, child := range []int{rightId, leftId} {
			if tree.TreeNodes[child].IsLeaf() {
				continue
			}
			if tree.TreeNodes[child].PurityIncrease() < tree.Params.MinPurityIncrease {
				tree.rollback(child)
				continue
			}
			stack.Push(stackItem{child, depth})
		}
	}

	log.WithFields(logrus.Fields{
		"rows":   ds.NumSamples(),
		"nodes":  len(tree.TreeNodes),
		"leaves": len(tree.LeafNodes),
	}).Debug("grown tree")
	return nil
}

//split asks the strategy for the best partition of ds and scores the node itself.
func (tree *Tree) split(ds *Dataset) (TreeNode, error) {
	bestSplit, err := tree.splitter.Split(ds, tree.criterion, tree.Params.MaxFeatures, tree.rng)
	if err != nil {
		return TreeNode{}, err
	}
	if bestSplit.left == nil || bestSplit.right == nil {
		return TreeNode{}, errors.Wrap(ErrSplitFailure, "split search returned no groups")
	}
	bestSplit.nodeImpurity = tree.criterion.Impurity(ds.LabelsOf())
	return NewTreeNodeFromSplitInfo(*bestSplit, -1), nil
}

//branch splits the subset when it has more than MaxLeafSize rows and terminates it otherwise.
func (tree *Tree) branch(ds *Dataset) (int, error) {
	if ds.NumSamples() <= tree.Params.MaxLeafSize {
		return tree.addLeaf(ds), nil
	}
	node, err := tree.split(ds)
	if err != nil {
		return -1, err
	}
	return tree.addNode(node), nil
}

func (tree *Tree) addNode(node TreeNode) int {
	node.TreeNodeId = len(tree.TreeNodes)
	tree.TreeNodes = append(tree.TreeNodes, node)
	return node.TreeNodeId
}

//addLeaf terminates ds into an outcome and returns the index of the tree node pointing to it.
func (tree *Tree) addLeaf(ds *Dataset) int {
	treeNode := NewTreeNode()
	treeNode.NumberOfObjects = ds.NumSamples()
	treeNode.LeafIndex = tree.addOutcome(ds)
	treeNode.Impurity = tree.LeafNodes[treeNode.LeafIndex].Impurity
	treeNode.NodeImpurity = treeNode.Impurity
	return tree.addNode(treeNode)
}

func (tree *Tree) addOutcome(ds *Dataset) int {
	leafNodeId := len(tree.LeafNodes)
	tree.LeafNodes = append(tree.LeafNodes, LeafNode{LeafNodeId: leafNodeId, Outcome: tree.criterion.Terminate(ds)})
	return leafNodeId
}

//cleanup takes the groups away from a split so that they can be collected once its children exist.
func (tree *Tree) cleanup(id int) (left, right *Dataset) {
	g := tree.TreeNodes[id].groups
	tree.TreeNodes[id].groups = nil
	return g.left, g.right
}

func (tree *Tree) attach(id, left, right int) {
	tree.TreeNodes[id].LeftIndex = left
	tree.TreeNodes[id].RightIndex = right
}

//rollback turns a split that has not been developed yet into a leaf of its own subset.
func (tree *Tree) rollback(id int) {
	left, right := tree.cleanup(id)
	node := &tree.TreeNodes[id]
	node.Column = -1
	node.Value = 0
	node.Categorical = false
	node.LeftIndex, node.RightIndex = -1, -1
	node.LeafIndex = tree.addOutcome(left.Merge(right))
	node.Impurity = tree.LeafNodes[node.LeafIndex].Impurity
	node.NodeImpurity = node.Impurity
}
