package beast2

import (
	"math"
)

//CompatibleInitialTree builds a starting tree whose calibrated clades are
//monophyletic with heights inside their density bounds. Each clade is grown
//as a ladder whose node heights interpolate up to a target height picked
//between the density's lower and upper quantile bounds; nested clades keep
//strictly smaller heights than their enclosing clade. Remaining taxa attach
//above the calibrated part at unit height increments.
func CompatibleInitialTree(taxa []string, cals []*CalibrationPoint) (*Tree, error) {
	ntips := len(taxa)
	tree := InitTree(ntips)
	for i, nm := range taxa {
		tree.NewLeaf(i, nm)
	}
	if len(cals) == 0 {
		root := 0
		h := 0.0
		for i := 1; i < ntips; i++ {
			h += 1.0
			root = tree.Connect(root, i, h)
		}
		tree.ROOT = root
		return tree, nil
	}

	ord, err := InitOrderedCalibrations(cals, tree)
	if err != nil {
		return nil, err
	}
	n := len(ord.CALS)

	lowBound := make([]float64, n)
	cladeHeight := make([]float64, n)
	for k := 0; k < n; k++ {
		lowBound[k] = ord.CALS[k].DIST.Quantile(0.0)
		if math.IsInf(lowBound[k], -1) || lowBound[k] < 0 {
			lowBound[k] = 0.0
		}
		for _, i := range ord.PARTIAL[k] {
			lowBound[k] = math.Max(lowBound[k], lowBound[i])
		}
		cladeHeight[k] = ord.CALS[k].DIST.Quantile(1.0)
	}
	for k := n - 1; k >= 0; k-- {
		upper := cladeHeight[k]
		if math.IsInf(upper, 1) {
			upper = lowBound[k] + 1.0
		}
		cladeHeight[k] = (upper + lowBound[k]) / 2.0
		for _, i := range ord.PARTIAL[k] {
			cladeHeight[i] = math.Min(cladeHeight[i], cladeHeight[k])
		}
	}

	used := make([]bool, ntips)
	subTree := make([]int, n)
	for k := 0; k < n; k++ {
		nested := make(map[int]bool)
		for _, i := range ord.PARTIAL[k] {
			for _, u := range ord.XCLADES[i] {
				nested[u] = true
			}
		}
		var sbs []int
		for _, ti := range ord.XCLADES[k] {
			if !nested[ti] {
				sbs = append(sbs, ti)
				used[ti] = true
			}
		}
		for _, i := range ord.PARTIAL[k] {
			sbs = append(sbs, subTree[i])
		}

		if len(sbs) == 1 {
			// a single-taxon clade calibrating its parent
			subTree[k] = sbs[0]
			continue
		}
		base := tree.NODES[sbs[len(sbs)-1]].HEIGHT
		step := (cladeHeight[k] - base) / float64(len(sbs)-1)
		tr := sbs[0]
		for i := 1; i < len(sbs); i++ {
			tr = tree.Connect(tr, sbs[i], base+float64(i)*step)
		}
		subTree[k] = tr
	}

	final := subTree[n-1]
	h := cladeHeight[n-1]
	for k := 0; k < n-1; k++ {
		if ord.MAXIMAL[k] {
			h = math.Max(h, cladeHeight[k]) + 1.0
			final = tree.Connect(final, subTree[k], h)
		}
	}
	for ti := 0; ti < ntips; ti++ {
		if !used[ti] {
			h += 1.0
			final = tree.Connect(final, ti, h)
		}
	}
	tree.ROOT = final
	return tree, nil
}
