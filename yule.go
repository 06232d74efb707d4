package beast2

import (
	"fmt"
	"io"
	"math"
	"sort"
)

//CorrectionType selects how the calibration marginal correction is computed
type CorrectionType string

const (
	//CorrNone applies the calibration densities with no marginal correction
	CorrNone CorrectionType = "none"
	//CorrAllTopos computes the exact marginal over all ranked topologies
	CorrAllTopos CorrectionType = "all"
	//CorrRankedCounts uses the cheaper per-interval ranked-count approximation
	CorrRankedCounts CorrectionType = "counts"
)

//CalibratedYule is the Yule tree prior with calibrated monophyletic clades.
//The marginal height distribution of every calibrated node matches its target
//density; the Yule prior is preserved within each conditioned subspace. The
//root height term is doubled in the base likelihood, modeling a stem lineage
//above the root; the corrections are derived against that exact base form.
type CalibratedYule struct {
	RATE    float64
	TYPE    CorrectionType
	ORD     *OrderedCalibrations
	TBL     *NumericTables
	ITER    *LineageIterator
	USERMAR *float64
	NTIPS   int

	//one-entry memo for the general-case correction
	LASTRATE float64
	LASTH    []float64
	LASTVAL  float64
	NEVALS   int //count of general-case recomputations
}

//InitCalibratedYule validates the calibration set against the tree and
//prepares the tables and iterator the correction type requires
func InitCalibratedYule(tree *Tree, rate float64, cals []*CalibrationPoint, ctype CorrectionType, userMar *float64) (*CalibratedYule, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("birth rate must be positive, got %v", rate)
	}
	cy := new(CalibratedYule)
	cy.RATE = rate
	cy.TYPE = ctype
	cy.NTIPS = tree.NTIPS
	cy.USERMAR = userMar
	cy.LASTRATE = math.Inf(-1)
	cy.LASTVAL = math.Inf(-1)

	ord, err := InitOrderedCalibrations(cals, tree)
	if err != nil {
		return nil, err
	}
	cy.ORD = ord

	n := len(cals)
	for _, cp := range cals {
		if cp.PARENT && len(cp.TAXA) == tree.NTIPS {
			return nil, fmt.Errorf("calibration %s: parent of the root does not exist", cp.NAME)
		}
		if !cp.PARENT && len(cp.TAXA) < 2 {
			return nil, fmt.Errorf("calibration %s: a single-taxon clade can only calibrate its parent", cp.NAME)
		}
	}
	if userMar == nil && n > 1 && ctype == CorrAllTopos {
		for _, cp := range cals {
			if cp.PARENT {
				return nil, fmt.Errorf("calibration %s: parent calibrations are not supported with more than one clade", cp.NAME)
			}
		}
	}
	if n > 0 {
		cy.TBL = InitNumericTables(tree.NTIPS + 1)
	}
	if userMar == nil && ctype == CorrAllTopos && n > 1 {
		if !(n == 2 && len(ord.PARTIAL[1]) == 1) {
			cy.ITER = InitLineageIterator(ord, tree.NTIPS)
			cy.LASTH = make([]float64, n)
		}
	}
	return cy, nil
}

//LogLike will calculate the calibrated Yule log density of the tree
func (cy *CalibratedYule) LogLike(tree *Tree) float64 {
	logL := cy.yuleLogLike(tree)
	logL += cy.Correction(tree)
	return logL
}

func (cy *CalibratedYule) yuleLogLike(tree *Tree) float64 {
	lam := cy.RATE
	logL := float64(tree.NTIPS-1) * math.Log(lam)
	for _, i := range tree.InternalNodes() {
		mrh := -lam * tree.NODES[i].HEIGHT
		logL += mrh
		if i == tree.ROOT {
			logL += mrh
		}
	}
	return logL
}

//calNode locates the node a calibration refers to: the clade MRCA, or its
//parent when the calibration carries the parent flag
func (cy *CalibratedYule) calNode(tree *Tree, k int) (int, bool) {
	taxk := cy.ORD.XCLADES[k]
	var c int
	if len(taxk) > 1 {
		c = tree.MRCA(taxk)
		if tree.LeafCountUnder(c) != len(taxk) {
			return -1, false
		}
	} else {
		c = taxk[0]
	}
	if cy.ORD.CALS[k].PARENT {
		c = tree.NODES[c].PAR
	}
	return c, true
}

//Correction computes the calibration log densities minus the marginal term
//so calibrated node heights keep their target distributions. A clade that is
//not monophyletic in the tree short-circuits to -Inf: the proposal is out of
//support and the sampler treats it as an ordinary rejection.
func (cy *CalibratedYule) Correction(tree *Tree) float64 {
	lam := cy.RATE
	n := len(cy.ORD.CALS)
	logL := 0.0
	hs := make([]float64, n)
	for k := 0; k < n; k++ {
		c, mono := cy.calNode(tree, k)
		if !mono {
			return math.Inf(-1)
		}
		h := tree.NODES[c].HEIGHT
		logL += cy.ORD.CALS[k].LogPdf(h)
		hs[k] = h
	}
	if math.IsInf(logL, -1) {
		// some calibration height is out of its density's range
		return logL
	}
	if n == 0 || cy.TYPE == CorrNone {
		return logL
	}
	if cy.USERMAR != nil {
		v := *cy.USERMAR
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.Inf(-1)
		}
		return logL - v
	}

	switch cy.TYPE {
	case CorrAllTopos:
		if n == 1 {
			logL -= cy.logMarginal1(lam, hs[0], len(cy.ORD.XCLADES[0]), cy.ORD.CALS[0].PARENT)
		} else if n == 2 && len(cy.ORD.PARTIAL[1]) == 1 {
			logL -= cy.logMarginal2(lam, hs[0], len(cy.ORD.XCLADES[0]), hs[1], len(cy.ORD.XCLADES[1]))
		} else {
			if lam == cy.LASTRATE {
				k := 0
				for ; k < n; k++ {
					if hs[k] != cy.LASTH[k] {
						break
					}
				}
				if k == n {
					return cy.LASTVAL
				}
			}
			hss := make([]float64, n)
			ranks := make([]int, n)
			for k := 0; k < n; k++ {
				r := 0
				for _, h := range hs {
					if h < hs[k] {
						r++
					}
				}
				ranks[k] = r + 1
				hss[r] = hs[k]
			}
			logL -= cy.logMarginalGeneral(lam, hss, ranks)
			cy.LASTRATE = lam
			copy(cy.LASTH, hs)
			cy.LASTVAL = logL
		}
	case CorrRankedCounts:
		logL -= cy.logRankedCounts(tree, lam, hs)
	}
	return logL
}

//logMarginal1 is the closed-form marginal height density of a single
//calibrated clade, including the combinatorial constants, so it matches the
//general enumeration exactly
func (cy *CalibratedYule) logMarginal1(lam, h float64, p int, forParent bool) float64 {
	tbl := cy.TBL
	n := cy.NTIPS
	q := n - p
	lh := lam * h
	l1mu := math.Log1p(-math.Exp(-lh))

	var lgp float64
	if forParent {
		lgp = tbl.LNR[p] + tbl.LNR[q] - tbl.LFACT[p-1] - tbl.LFACT[q-1]
		lgp += math.Log(lam) - 2*lh
		if p > 1 {
			lgp += float64(p-1) * l1mu
		}
	} else {
		if p == n {
			lgp = tbl.LNR[n] - tbl.LFACT[n-2]
			lgp += math.Log(lam) - 2*lh + float64(n-2)*l1mu
		} else {
			lgp = tbl.LNR[p] + tbl.LNR[q] - lg2 - tbl.LFACT[p-2] - tbl.LFACT[q-1]
			lgp += math.Log(lam) - 3*lh + float64(p-2)*l1mu
		}
	}
	return lgp
}

//logMarginal2 is the closed-form joint marginal for two nested calibrated
//clades: inner clade of size p at h2 inside an outer clade of size pm at h1
func (cy *CalibratedYule) logMarginal2(lam, h2 float64, p int, h1 float64, pm int) float64 {
	tbl := cy.TBL
	n := cy.NTIPS
	m := pm - p
	q := n - pm

	u2 := math.Exp(-lam * h2)
	u1 := math.Exp(-lam * h1)
	e1 := u2 - u1

	// expanded, this is 1 - 2m*u1 + 2(m-1)*u2 - m(m-1)*u1*u2
	// + (m(m+1)/2)*u1^2 + ((m-1)(m-2)/2)*u2^2; the factored form keeps every
	// term nonnegative
	br := (1-u1)*(1-u1) + 2*float64(m-1)*e1*(1-u1) + float64((m-1)*(m-2))/2*e1*e1

	lgl := 2*math.Log(lam) + tbl.LNR[p] + tbl.LNR[m] - tbl.LFACT[p-2] - tbl.LFACT[m-1]
	lgl += float64(p-2)*math.Log1p(-u2) + float64(m-3)*math.Log1p(-u1) + math.Log(br)

	if pm < n {
		lgl += tbl.LNR[q] - lg2 - tbl.LFACT[q-1]
		lgl += -lam * (h2 + 3*h1)
	} else {
		lgl += -lam * (h2 + 2*h1)
	}
	return lgl
}

//logMarginalGeneral sums the marginal density over every admissible
//lineage-count assignment at the ranked calibration levels. hss holds the
//calibration heights sorted ascending; ranks maps each ordered calibration to
//its 1-based rank in hss.
func (cy *CalibratedYule) logMarginalGeneral(lam float64, hss []float64, ranks []int) float64 {
	cy.NEVALS++
	tbl := cy.TBL
	it := cy.ITER
	ng := it.Setup(ranks)

	k := len(hss)
	lehs := make([]float64, k+1)
	for i := 1; i <= k; i++ {
		lehs[i] = -lam * hss[i-1]
	}

	lebase := make([]float64, k)
	for i := 0; i < k; i++ {
		lebase[i] = lehs[i] + math.Log1p(-math.Exp(lehs[i+1]-lehs[i]))
	}

	joiners := it.Joiners()
	val := math.Inf(-1)
	for trj := it.Next(); trj != nil; trj = it.Next() {
		v := 0.0
		for i := 0; i < k; i++ {
			d := 0
			for g := i; g < ng; g++ {
				cgi := trj[g][i] + joiners[g][i]
				if joiners[g][i] > 0 && cgi > 1 {
					v += tbl.LC2[cgi]
				}
				l := cgi - trj[g][i+1]
				v -= tbl.LFACT[l]
				d += l
			}
			v += float64(d) * lebase[i]
		}
		if it.TOP {
			// everything above the highest calibration coalesces to the
			// root, whose height term is doubled by the stem lineage
			c := trj[ng-1][k] + joiners[ng-1][k]
			if joiners[ng-1][k] > 0 && c > 1 {
				v += tbl.LC2[c]
			}
			v += float64(c)*lehs[k] - tbl.LFACT[c]
		}
		val = LogSum(val, v)
	}

	logc0 := 0.0
	for g := 0; g < ng; g++ {
		if s := it.NStart(g); s > 1 {
			logc0 += tbl.LNR[s]
		}
	}
	logc2 := float64(k) * math.Log(lam)
	for i := 1; i <= k; i++ {
		logc2 += lehs[i]
	}
	if !it.TOP {
		// stem above the calibrated root
		logc2 += lehs[k]
	}
	return val + logc0 + logc2
}

//logRankedCounts is the ranked-count correction: a closed form per ranked
//interval over the numbers of free internal nodes between consecutive
//calibrated heights. It is an alternative strategy to the exact enumeration
//and is never mixed with it.
func (cy *CalibratedYule) logRankedCounts(tree *Tree, lam float64, heights []float64) float64 {
	tbl := cy.TBL
	n := len(heights)
	hs := append([]float64{}, heights...)
	sort.Float64s(hs)

	cs := make([]int, n+1)
	for _, ni := range tree.InternalNodes() {
		nhk := tree.NODES[ni].HEIGHT
		i := 0
		for ; i < n; i++ {
			if hs[i] >= nhk {
				break
			}
		}
		if i == n {
			cs[i]++
		} else if nhk < hs[i] {
			cs[i]++
		}
	}

	ll := float64(cs[0])*math.Log1p(-math.Exp(-lam*hs[0])) - lam*hs[0] - tbl.LFACT[cs[0]]
	for i := 1; i < n; i++ {
		c := cs[i]
		ll += float64(c) * (math.Log1p(-math.Exp(-lam*(hs[i]-hs[i-1]))) - lam*hs[i-1])
		ll += -lam*hs[i] - tbl.LFACT[c]
	}
	ll += -lam*float64(cs[n]+1)*hs[n-1] - tbl.LFACT[cs[n]+1]
	ll += float64(n) * math.Log(lam)
	return ll
}

//TraceHeader writes the clade identifiers for the trace log
func (cy *CalibratedYule) TraceHeader(w io.Writer) {
	fmt.Fprint(w, "CalibratedYule")
	for _, cp := range cy.ORD.CALS {
		fmt.Fprint(w, "\t"+cp.NAME)
	}
	fmt.Fprint(w, "\n")
}

//TraceSample writes the current log density and each calibrated clade's
//height as one tab-delimited row
func (cy *CalibratedYule) TraceSample(w io.Writer, tree *Tree, logP float64) {
	fmt.Fprint(w, formatFloat(logP))
	for k := range cy.ORD.CALS {
		c, _ := cy.calNode(tree, k)
		fmt.Fprint(w, "\t"+formatFloat(tree.NODES[c].HEIGHT))
	}
	fmt.Fprint(w, "\n")
}
