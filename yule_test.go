package beast2

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestYuleBaseLikelihood(t *testing.T) {
	tr := ladderTree("a", "b", "c")
	cy, err := InitCalibratedYule(tr, 1.5, nil, CorrNone, nil)
	require.NoError(t, err)

	// two internal heights 1 and 2, root term doubled
	want := 2*math.Log(1.5) - 1.5*(1+2) - 1.5*2
	assert.InDelta(t, want, cy.LogLike(tr), 1e-12)
}

func TestMarginalSingleClade(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d", "e", "f")
	c := cal("abcd", "a", "b", "c", "d")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, nil)
	require.NoError(t, err)

	// p=4 of n=6: the constant is 18/(2*2!*1!) = 4.5
	lam, h := 1.0, 0.7
	u := math.Exp(-lam * h)
	want := math.Log(4.5) + math.Log(lam) - 3*lam*h + 2*math.Log(1-u)
	assert.InDelta(t, want, cy.logMarginal1(lam, h, 4, false), 1e-10)
}

func TestMarginalRootClade(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d", "e")
	c := cal("root", "a", "b", "c", "d", "e")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, nil)
	require.NoError(t, err)

	// p=n=5: the constant is 180/3! = 30
	lam, h := 0.8, 1.3
	u := math.Exp(-lam * h)
	want := math.Log(30) + math.Log(lam) - 2*lam*h + 3*math.Log(1-u)
	assert.InDelta(t, want, cy.logMarginal1(lam, h, 5, false), 1e-10)

	// the enumeration must give the same density
	cy.ITER = InitLineageIterator(cy.ORD, 5)
	got := cy.logMarginalGeneral(lam, []float64{h}, []int{1})
	assert.InDelta(t, want, got, 1e-10)
}

func TestMarginalParentCalibration(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d", "e")
	c := cal("ab", "a", "b")
	c.PARENT = true
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, nil)
	require.NoError(t, err)

	// p=2, q=3: the constant is 1*3/(1!*2!) = 1.5
	lam, h := 1.2, 0.9
	u := math.Exp(-lam * h)
	want := math.Log(1.5) + math.Log(lam) - 2*lam*h + math.Log(1-u)
	assert.InDelta(t, want, cy.logMarginal1(lam, h, 2, true), 1e-10)
}

func TestMarginalSingleCladeMatchesEnumeration(t *testing.T) {
	taxa := []string{"a", "b", "c", "d", "e", "f", "g"}
	for p := 2; p <= 5; p++ {
		for n := p + 1; n <= 7; n++ {
			tr := ladderTree(taxa[:n]...)
			c := cal("clade", taxa[:p]...)
			cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, nil)
			require.NoError(t, err)
			cy.ITER = InitLineageIterator(cy.ORD, n)

			for _, lam := range []float64{0.5, 1.0, 2.3} {
				for _, h := range []float64{0.4, 1.1} {
					closed := cy.logMarginal1(lam, h, p, false)
					general := cy.logMarginalGeneral(lam, []float64{h}, []int{1})
					assert.InDeltaf(t, closed, general, 1e-9,
						"p=%d n=%d lam=%v h=%v", p, n, lam, h)
				}
			}
		}
	}
}

func TestMarginalNestedPairSmall(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d")
	inner := cal("inner", "a", "b")
	outer := cal("outer", "a", "b", "c")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{inner, outer}, CorrAllTopos, nil)
	require.NoError(t, err)

	// p=2, m=1, q=1 reduces to lam^2 * u2 * u1^3 / 2
	lam, h2, h1 := 1.0, 0.5, 1.2
	u2 := math.Exp(-lam * h2)
	u1 := math.Exp(-lam * h1)
	want := math.Log(lam * lam * u2 * u1 * u1 * u1 / 2)
	assert.InDelta(t, want, cy.logMarginal2(lam, h2, 2, h1, 3), 1e-10)

	cy.ITER = InitLineageIterator(cy.ORD, 4)
	got := cy.logMarginalGeneral(lam, []float64{h2, h1}, []int{1, 2})
	assert.InDelta(t, want, got, 1e-10)
}

func TestMarginalNestedPairMatchesEnumeration(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d", "e", "f", "g")
	inner := cal("inner", "a", "b", "c")
	outer := cal("outer", "a", "b", "c", "d", "e")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{inner, outer}, CorrAllTopos, nil)
	require.NoError(t, err)
	cy.ITER = InitLineageIterator(cy.ORD, 7)

	for _, lam := range []float64{0.6, 1.0, 1.7} {
		for _, hs := range [][2]float64{{0.3, 0.8}, {0.5, 2.0}, {1.4, 1.5}} {
			closed := cy.logMarginal2(lam, hs[0], 3, hs[1], 5)
			general := cy.logMarginalGeneral(lam, []float64{hs[0], hs[1]}, []int{1, 2})
			assert.InDeltaf(t, closed, general, 1e-9, "lam=%v hs=%v", lam, hs)
		}
	}
}

func TestMarginalNestedRootMatchesEnumeration(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d", "e")
	inner := cal("inner", "a", "b")
	root := cal("root", "a", "b", "c", "d", "e")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{inner, root}, CorrAllTopos, nil)
	require.NoError(t, err)
	cy.ITER = InitLineageIterator(cy.ORD, 5)

	for _, lam := range []float64{0.9, 1.5} {
		closed := cy.logMarginal2(lam, 0.6, 2, 1.8, 5)
		general := cy.logMarginalGeneral(lam, []float64{0.6, 1.8}, []int{1, 2})
		assert.InDeltaf(t, closed, general, 1e-9, "lam=%v", lam)
	}
}

func balancedFourTree() *Tree {
	tr := InitTree(4)
	for i, nm := range []string{"a", "b", "c", "d"} {
		tr.NewLeaf(i, nm)
	}
	ab := tr.Connect(0, 1, 1.0)
	cd := tr.Connect(2, 3, 1.5)
	tr.ROOT = tr.Connect(ab, cd, 3.0)
	return tr
}

func TestCorrectionSingleClade(t *testing.T) {
	tr := balancedFourTree()
	d := distuv.Normal{Mu: 1.0, Sigma: 0.2}
	c := &CalibrationPoint{NAME: "ab", TAXA: []string{"a", "b"}, DIST: d}
	lam := 1.3
	cy, err := InitCalibratedYule(tr, lam, []*CalibrationPoint{c}, CorrAllTopos, nil)
	require.NoError(t, err)

	want := d.LogProb(1.0) - cy.logMarginal1(lam, 1.0, 2, false)
	assert.InDelta(t, want, cy.Correction(tr), 1e-10)

	base := 3*math.Log(lam) - lam*(1+1.5+3) - lam*3
	assert.InDelta(t, base+want, cy.LogLike(tr), 1e-10)
}

func TestCorrectionMonophylyShortCircuit(t *testing.T) {
	tr := ladderTree("a", "b", "c", "d")
	left := cal("ab", "a", "b")
	right := cal("cd", "c", "d")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{left, right}, CorrAllTopos, nil)
	require.NoError(t, err)
	require.NotNil(t, cy.ITER)

	// c and d do not form a clade in the ladder tree
	got := cy.Correction(tr)
	assert.True(t, math.IsInf(got, -1))
	assert.Equal(t, 0, cy.NEVALS)
}

func TestCorrectionMemo(t *testing.T) {
	tr := balancedFourTree()
	left := cal("ab", "a", "b")
	right := cal("cd", "c", "d")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{left, right}, CorrAllTopos, nil)
	require.NoError(t, err)
	require.NotNil(t, cy.ITER)

	v1 := cy.Correction(tr)
	require.False(t, math.IsInf(v1, -1))
	assert.Equal(t, 1, cy.NEVALS)

	// identical state hits the memo
	v2 := cy.Correction(tr)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, cy.NEVALS)

	// the root is not calibrated; moving it keeps the memo valid
	tr.NODES[tr.ROOT].HEIGHT = 3.5
	cy.Correction(tr)
	assert.Equal(t, 1, cy.NEVALS)

	// moving a calibrated node forces a recomputation
	tr.NODES[4].HEIGHT = 0.8
	v3 := cy.Correction(tr)
	assert.Equal(t, 2, cy.NEVALS)
	assert.NotEqual(t, v1, v3)
}

func TestCorrectionUserMarginal(t *testing.T) {
	tr := balancedFourTree()
	d := distuv.Normal{Mu: 1.0, Sigma: 0.5}
	c := &CalibrationPoint{NAME: "ab", TAXA: []string{"a", "b"}, DIST: d}

	mar := 2.25
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, &mar)
	require.NoError(t, err)
	assert.InDelta(t, d.LogProb(1.0)-mar, cy.Correction(tr), 1e-12)

	bad := math.NaN()
	cy2, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, &bad)
	require.NoError(t, err)
	assert.True(t, math.IsInf(cy2.Correction(tr), -1))
}

func TestCorrectionNone(t *testing.T) {
	tr := balancedFourTree()
	d := distuv.Normal{Mu: 1.0, Sigma: 0.5}
	c := &CalibrationPoint{NAME: "ab", TAXA: []string{"a", "b"}, DIST: d}
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrNone, nil)
	require.NoError(t, err)
	assert.InDelta(t, d.LogProb(1.0), cy.Correction(tr), 1e-12)
}

func TestCorrectionRankedCounts(t *testing.T) {
	tr := balancedFourTree()
	d := distuv.Normal{Mu: 1.0, Sigma: 0.5}
	c := &CalibrationPoint{NAME: "ab", TAXA: []string{"a", "b"}, DIST: d}
	lam := 0.8
	cy, err := InitCalibratedYule(tr, lam, []*CalibrationPoint{c}, CorrRankedCounts, nil)
	require.NoError(t, err)

	// two free internal nodes sit above the calibration at height 1, none
	// below it
	ll := 0.0 - lam*1.0 - 0.0
	ll += -lam*3*1.0 - math.Log(6)
	ll += math.Log(lam)
	assert.InDelta(t, d.LogProb(1.0)-ll, cy.Correction(tr), 1e-10)
}

func TestCorrectionDensityOutOfRange(t *testing.T) {
	tr := balancedFourTree()
	c := &CalibrationPoint{NAME: "ab", TAXA: []string{"a", "b"}, DIST: unif(2, 3)}
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{c}, CorrAllTopos, nil)
	require.NoError(t, err)
	// the clade height 1 is outside the density support
	assert.True(t, math.IsInf(cy.Correction(tr), -1))
}

func TestTraceWriters(t *testing.T) {
	tr := balancedFourTree()
	left := cal("ab", "a", "b")
	right := cal("cd", "c", "d")
	cy, err := InitCalibratedYule(tr, 1.0, []*CalibrationPoint{left, right}, CorrNone, nil)
	require.NoError(t, err)

	var hdr bytes.Buffer
	cy.TraceHeader(&hdr)
	fields := strings.Split(strings.TrimSuffix(hdr.String(), "\n"), "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, "CalibratedYule", fields[0])
	assert.ElementsMatch(t, []string{"ab", "cd"}, fields[1:])

	var row bytes.Buffer
	cy.TraceSample(&row, tr, -12.5)
	cols := strings.Split(strings.TrimSuffix(row.String(), "\n"), "\t")
	require.Len(t, cols, 3)
	assert.Equal(t, "-12.5", cols[0])
	assert.ElementsMatch(t, []string{"1", "1.5"}, cols[1:])
}

func TestInitCalibratedYuleValidation(t *testing.T) {
	tr := balancedFourTree()

	_, err := InitCalibratedYule(tr, 0, nil, CorrAllTopos, nil)
	assert.Error(t, err)

	// a parent calibration on the full taxon set has nowhere to point
	rootPar := cal("all", "a", "b", "c", "d")
	rootPar.PARENT = true
	_, err = InitCalibratedYule(tr, 1.0, []*CalibrationPoint{rootPar}, CorrAllTopos, nil)
	assert.Error(t, err)

	// a bare single taxon is not a clade
	single := cal("just-a", "a")
	_, err = InitCalibratedYule(tr, 1.0, []*CalibrationPoint{single}, CorrAllTopos, nil)
	assert.Error(t, err)

	// parent calibrations cannot mix with the exact multi-clade correction
	par := cal("ab", "a", "b")
	par.PARENT = true
	other := cal("cd", "c", "d")
	_, err = InitCalibratedYule(tr, 1.0, []*CalibrationPoint{par, other}, CorrAllTopos, nil)
	assert.Error(t, err)

	// but they are fine with a user-supplied marginal
	mar := 1.0
	_, err = InitCalibratedYule(tr, 1.0, []*CalibrationPoint{par, other}, CorrAllTopos, &mar)
	assert.NoError(t, err)
}
