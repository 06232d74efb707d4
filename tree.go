package beast2

import (
	"strings"
)

//TreeNode is a single node in the arena. Children and parent are indices
//into Tree.NODES; -1 means absent. Leaves carry a taxon NAME and sit at
//height zero.
type TreeNode struct {
	HEIGHT float64
	PAR    int
	LEFT   int
	RIGHT  int
	NAME   string
}

//Tree is a rooted binary time tree over an arena of nodes. Leaves occupy
//indices 0..NTIPS-1; internal nodes follow. A valid tree keeps every
//parent at least as high as its children.
type Tree struct {
	NODES []TreeNode
	NTIPS int
	ROOT  int
}

//InitTree allocates an arena for ntips taxa with all links unset
func InitTree(ntips int) *Tree {
	t := new(Tree)
	t.NTIPS = ntips
	t.NODES = make([]TreeNode, 0, 2*ntips-1)
	for i := 0; i < ntips; i++ {
		t.NODES = append(t.NODES, TreeNode{PAR: -1, LEFT: -1, RIGHT: -1})
	}
	t.ROOT = -1
	return t
}

//NewLeaf assigns a name to the next unnamed leaf slot and returns its index
func (t *Tree) NewLeaf(idx int, name string) int {
	t.NODES[idx].NAME = name
	t.NODES[idx].HEIGHT = 0.0
	return idx
}

//Connect creates a new internal node at the given height joining a and b,
//returning its index
func (t *Tree) Connect(a, b int, height float64) int {
	idx := len(t.NODES)
	t.NODES = append(t.NODES, TreeNode{HEIGHT: height, PAR: -1, LEFT: a, RIGHT: b})
	t.NODES[a].PAR = idx
	t.NODES[b].PAR = idx
	return idx
}

//NodeCount returns the number of nodes currently in the arena
func (t *Tree) NodeCount() int {
	return len(t.NODES)
}

//IsLeaf reports whether node i is a tip
func (t *Tree) IsLeaf(i int) bool {
	return t.NODES[i].LEFT == -1 && t.NODES[i].RIGHT == -1
}

//TaxonIndex returns the leaf index carrying the given taxon name, or -1
func (t *Tree) TaxonIndex(name string) int {
	for i := 0; i < t.NTIPS; i++ {
		if t.NODES[i].NAME == name {
			return i
		}
	}
	return -1
}

//InternalNodes returns the indices of all internal nodes
func (t *Tree) InternalNodes() []int {
	var in []int
	for i := range t.NODES {
		if !t.IsLeaf(i) {
			in = append(in, i)
		}
	}
	return in
}

//MRCA finds the most recent common ancestor of a set of leaf indices by
//iterative height-compare climbing
func (t *Tree) MRCA(tips []int) int {
	cur := tips[0]
	for _, k := range tips[1:] {
		cur = t.commonAncestor(cur, k)
	}
	return cur
}

func (t *Tree) commonAncestor(n1, n2 int) int {
	for n1 != n2 {
		if t.NODES[n1].HEIGHT < t.NODES[n2].HEIGHT {
			n1 = t.NODES[n1].PAR
		} else {
			n2 = t.NODES[n2].PAR
		}
	}
	return n1
}

//LeafCountUnder counts the tips in the subtree rooted at node i
func (t *Tree) LeafCountUnder(i int) int {
	if t.IsLeaf(i) {
		return 1
	}
	return t.LeafCountUnder(t.NODES[i].LEFT) + t.LeafCountUnder(t.NODES[i].RIGHT)
}

//HeightSum returns the total of all internal node heights
func (t *Tree) HeightSum() float64 {
	s := 0.
	for i := range t.NODES {
		if !t.IsLeaf(i) {
			s += t.NODES[i].HEIGHT
		}
	}
	return s
}

//Newick renders the tree with branch lengths derived from node heights
func (t *Tree) Newick() string {
	var sb strings.Builder
	t.newick(&sb, t.ROOT)
	sb.WriteString(";")
	return sb.String()
}

func (t *Tree) newick(sb *strings.Builder, i int) {
	n := t.NODES[i]
	if t.IsLeaf(i) {
		sb.WriteString(n.NAME)
	} else {
		sb.WriteString("(")
		t.newick(sb, n.LEFT)
		sb.WriteString(",")
		t.newick(sb, n.RIGHT)
		sb.WriteString(")")
	}
	if n.PAR != -1 {
		sb.WriteString(":")
		sb.WriteString(formatFloat(t.NODES[n.PAR].HEIGHT - n.HEIGHT))
	}
}
