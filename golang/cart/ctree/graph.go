package ctree

import (
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/pkg/errors"
)

//GraphFormat maps a file extension to a graphviz output format.
func GraphFormat(figureType string) (graphviz.Format, error) {
	format, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
		"dot": graphviz.XDOT,
	}[figureType]
	if !ok {
		return "", errors.Wrapf(ErrInvalidConfiguration, "unknown figure type %q", figureType)
	}
	return format, nil
}

func (tree *Tree) recurrentDraw(g *cgraph.Graph, header []string, nodeNumber int, parentNode *cgraph.Node, edgeLabel string) error {
	currentNode, err := g.CreateNode(fmt.Sprint(tree.TreeNodes[nodeNumber].TreeNodeId))
	if err != nil {
		return errors.Wrapf(err, "can't create graph node %d", nodeNumber)
	}

	if parentNode != nil {
		edge, err := g.CreateEdge("", parentNode, currentNode)
		if err != nil {
			return errors.Wrapf(err, "can't create graph edge to %d", nodeNumber)
		}
		edge.SetLabel(edgeLabel)
	}

	node := tree.TreeNodes[nodeNumber]
	if node.IsLeaf() {
		currentNode.Set("label", tree.LeafNodes[node.LeafIndex].GraphDescription())
		currentNode.Set("shape", "box")
		return nil
	}

	currentNode.Set("label", node.GraphDescription(header, tree.Levels))
	if err := tree.recurrentDraw(g, header, node.LeftIndex, currentNode, "yes"); err != nil {
		return err
	}
	if node.RightIndex == node.LeftIndex {
		return nil
	}
	return tree.recurrentDraw(g, header, node.RightIndex, currentNode, "no")
}

//DrawGraph builds a graphviz graph of the tree. The caller closes both returned objects.
func (tree *Tree) DrawGraph(header []string) (*graphviz.Graphviz, *cgraph.Graph, error) {
	if tree.Bare() {
		return nil, nil, errors.Wrap(ErrNotTrained, "drawing a bare tree")
	}
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, errors.Wrap(err, "can't create graph")
	}

	if err := tree.recurrentDraw(graph, header, 0, nil, ""); err != nil {
		graph.Close()
		graphViz.Close()
		return nil, nil, err
	}
	return graphViz, graph, nil
}

//RenderGraph draws the tree into filename with the given figure type.
func (tree *Tree) RenderGraph(header []string, figureType, filename string) error {
	format, err := GraphFormat(figureType)
	if err != nil {
		return err
	}
	graphViz, graph, err := tree.DrawGraph(header)
	if err != nil {
		return err
	}
	defer graphViz.Close()
	defer graph.Close()

	return errors.Wrapf(graphViz.RenderFilename(graph, format, filename), "can't render %s", filename)
}
