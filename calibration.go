package beast2

import (
	"fmt"
)

//CalDensity is the target age distribution of a calibrated clade. The gonum
//distuv distributions satisfy it directly.
type CalDensity interface {
	LogProb(x float64) float64
	Quantile(p float64) float64
}

//CalibrationPoint ties a named clade to a target age density. PARENT marks
//a calibration that applies to the parent of the clade's MRCA rather than
//the MRCA itself.
type CalibrationPoint struct {
	NAME   string
	TAXA   []string
	DIST   CalDensity
	PARENT bool
}

//LogPdf evaluates the target density at height h
func (cp *CalibrationPoint) LogPdf(h float64) float64 {
	return cp.DIST.LogProb(h)
}

func (cp *CalibrationPoint) taxonSet() map[string]bool {
	s := make(map[string]bool, len(cp.TAXA))
	for _, tx := range cp.TAXA {
		s[tx] = true
	}
	return s
}

//OrderedCalibrations holds calibration points sorted smallest to largest
//under set inclusion, together with the nesting partial order.
type OrderedCalibrations struct {
	CALS    []*CalibrationPoint
	XCLADES [][]int //leaf indices per calibration, same order as CALS
	PARTIAL [][]int //PARTIAL[k] lists the immediate sub-clades of clade k
	MAXIMAL []bool  //true when clade k is contained in no other clade
}

//InitOrderedCalibrations validates a calibration set against the taxa of a
//tree and builds the nesting partial order. Clades must be pairwise disjoint
//or nested; partial overlap is a configuration error.
func InitOrderedCalibrations(cals []*CalibrationPoint, tree *Tree) (*OrderedCalibrations, error) {
	n := len(cals)
	sets := make([]map[string]bool, n)
	for i, cp := range cals {
		if len(cp.TAXA) == 0 {
			return nil, fmt.Errorf("calibration %s: empty taxon set", cp.NAME)
		}
		sets[i] = cp.taxonSet()
	}
	for k := 0; k < n; k++ {
		for i := k + 1; i < n; i++ {
			if containsAny(sets[i], sets[k]) {
				if !(containsAll(sets[i], sets[k]) || containsAll(sets[k], sets[i])) {
					return nil, fmt.Errorf("calibrated clades %s and %s overlap without nesting",
						cals[k].NAME, cals[i].NAME)
				}
			}
		}
	}

	oc := new(OrderedCalibrations)
	oc.CALS = make([]*CalibrationPoint, n)
	oc.XCLADES = make([][]int, n)

	// place maximal clades at the end one at a time; the result is ordered
	// smallest to largest under set inclusion
	rem := append([]*CalibrationPoint{}, cals...)
	remSets := append([]map[string]bool{}, sets...)
	for loc := n - 1; loc >= 0; loc-- {
		k := 0
		for ; k < len(remSets); k++ {
			if isMaximal(remSets, k) {
				break
			}
		}
		cp := rem[k]
		clade := make([]int, 0, len(cp.TAXA))
		for _, tx := range cp.TAXA {
			ti := tree.TaxonIndex(tx)
			if ti < 0 {
				return nil, fmt.Errorf("calibration %s: taxon %s not found in tree", cp.NAME, tx)
			}
			clade = append(clade, ti)
		}
		oc.CALS[loc] = cp
		oc.XCLADES[loc] = clade
		rem = append(rem[:k], rem[k+1:]...)
		remSets = append(remSets[:k], remSets[k+1:]...)
	}

	// record, per clade, the index of its smallest containing clade, then
	// invert into immediate-children lists
	oc.PARTIAL = make([][]int, n)
	ordSets := make([]map[string]bool, n)
	for k := range oc.CALS {
		ordSets[k] = oc.CALS[k].taxonSet()
	}
	for k := 0; k < n; k++ {
		for i := k + 1; i < n; i++ {
			if containsAll(ordSets[i], ordSets[k]) {
				oc.PARTIAL[i] = append(oc.PARTIAL[i], k)
				break
			}
		}
	}

	oc.MAXIMAL = make([]bool, n)
	for k := range oc.MAXIMAL {
		oc.MAXIMAL[k] = true
	}
	for k := 0; k < n; k++ {
		for _, i := range oc.PARTIAL[k] {
			oc.MAXIMAL[i] = false
		}
	}
	return oc, nil
}

//isMaximal reports whether set k is contained in no other set
func isMaximal(sets []map[string]bool, k int) bool {
	for i := range sets {
		if i != k && containsAll(sets[i], sets[k]) {
			return false
		}
	}
	return true
}
