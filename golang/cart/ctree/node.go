package ctree

import (
	"fmt"
	"sort"
	"strings"
)

//OutcomeKind distinguishes classification leaves from regression leaves.
type OutcomeKind int

const (
	ClassOutcome OutcomeKind = iota
	ValueOutcome
)

//Outcome is the prediction stored in a leaf. Classification leaves fill Probabilities, Label and
//Class (the code of Label); regression leaves fill Mean and Variance. RecordIds of the training
//rows are kept in memory only.
type Outcome struct {
	Kind          OutcomeKind        `json:"kind"`
	Label         string             `json:"label,omitempty"`
	Class         float64            `json:"class,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Mean          float64            `json:"mean,omitempty"`
	Variance      float64            `json:"variance,omitempty"`
	Count         int                `json:"count"`
	Impurity      float64            `json:"impurity"`
	RecordIds     []int              `json:"-"`
}

//Value returns the numeric point prediction: the class code or the mean.
func (o Outcome) Value() float64 {
	if o.Kind == ClassOutcome {
		return o.Class
	}
	return o.Mean
}

func (o Outcome) String() string {
	if o.Kind == ValueOutcome {
		return fmt.Sprintf("Outcome=%.6g (variance=%.4g, samples=%d)", o.Mean, o.Variance, o.Count)
	}
	labels := make([]string, 0, len(o.Probabilities))
	for label := range o.Probabilities {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = fmt.Sprintf("%s:%.3g", label, o.Probabilities[label])
	}
	return fmt.Sprintf("Outcome=%s (impurity=%.4g, samples=%d, p={%s})", o.Label, o.Impurity, o.Count, strings.Join(parts, " "))
}

//groups is the pair of subsets produced by a split. A split owns it only until its children are attached.
type groups struct {
	left, right *Dataset
}

//TreeNode is a node of a tree. Tree is stored in an array. LeftIndex and RightIndex are equal to -1
//when the current node is a leaf otherwise they contain array indices of children.
//A leaf node contains LeafIndex that is an index of the LeafNodes array.
type TreeNode struct {
	TreeNodeId      int
	Column          int
	Value           float64
	Categorical     bool
	LeftIndex       int
	RightIndex      int
	LeafIndex       int
	NumberOfObjects int
	Impurity        float64 // weighted impurity of the child groups
	NodeImpurity    float64 // impurity of the labels that reached the node

	groups *groups
}

//GraphDescription returns the description of a tree node for tree rendering as a graph
func (node TreeNode) GraphDescription(columns []string, levels [][]string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("#", node.NumberOfObjects))
	sb.WriteString(fmt.Sprintln("id: ", node.TreeNodeId))
	sb.WriteString(fmt.Sprintf("impurity: %.4g\n", node.Impurity))
	sb.WriteString(node.Condition(columns, levels, true))
	return sb.String()
}

//Condition renders the test of the node for the left (match) or the right branch.
func (node TreeNode) Condition(columns []string, levels [][]string, left bool) string {
	name := fmt.Sprintf("Column_%d", node.Column)
	if node.Column < len(columns) && columns[node.Column] != "" {
		name = columns[node.Column]
	}
	if node.Categorical {
		value := fmt.Sprintf("%g", node.Value)
		if node.Column < len(levels) {
			value = ClassName(levels[node.Column], node.Value)
		}
		if left {
			return fmt.Sprintf("%s == %s", name, value)
		}
		return fmt.Sprintf("%s != %s", name, value)
	}
	if left {
		return fmt.Sprintf("%s < %.6g", name, node.Value)
	}
	return fmt.Sprintf("%s >= %.6g", name, node.Value)
}

func NewTreeNode() TreeNode {
	return TreeNode{LeftIndex: -1, RightIndex: -1, LeafIndex: -1, Column: -1}
}

//NewTreeNodeFromSplitInfo creates a new tree node and extracts the column, the value and the
//groups from a BestSplit object.
func NewTreeNodeFromSplitInfo(splitInfo BestSplit, treeNodeId int) TreeNode {
	treeNode := NewTreeNode()
	treeNode.TreeNodeId = treeNodeId
	treeNode.Column = splitInfo.column
	treeNode.Value = splitInfo.value
	treeNode.Categorical = splitInfo.categorical
	treeNode.NumberOfObjects = splitInfo.numberOfObjects
	treeNode.Impurity = splitInfo.impurity
	treeNode.NodeImpurity = splitInfo.nodeImpurity
	treeNode.groups = &groups{left: splitInfo.left, right: splitInfo.right}
	return treeNode
}

//IsLeaf returns whether this node is a LeafNode.
func (node TreeNode) IsLeaf() bool {
	return node.LeafIndex != -1
}

//PurityIncrease is the impurity of the node minus the weighted impurity of its children groups.
func (node TreeNode) PurityIncrease() float64 {
	if node.IsLeaf() {
		return 0
	}
	return node.NodeImpurity - node.Impurity
}

//LeafNode stores the outcome of a leaf.
type LeafNode struct {
	LeafNodeId int
	Outcome
}

//GraphDescription returns the description of a leaf node for tree rendering as a graph
func (node LeafNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("id: ", node.LeafNodeId))
	if node.Kind == ValueOutcome {
		sb.WriteString(fmt.Sprintf("mean: %6.4g\n", node.Mean))
		sb.WriteString(fmt.Sprintf("variance: %6.4g\n", node.Variance))
	} else {
		sb.WriteString(fmt.Sprintln("label: ", node.Label))
		sb.WriteString(fmt.Sprintf("impurity: %6.4g\n", node.Impurity))
	}
	sb.WriteString(fmt.Sprintln(node.Count))
	return sb.String()
}
