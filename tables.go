package beast2

import "math"

var lg2 = math.Log(2.0)

//NumericTables stores precomputed log-space integer tables used by the
//calibration corrections. Sized once at setup to the largest number of
//lineages a calculation can see (leaf count + 1).
type NumericTables struct {
	LC2   []float64 // LC2[i] = log C(i,2); -Inf for i < 2
	LNR   []float64 // LNR[i] = log of prod_{j=2..i} C(j,2); -Inf for i == 0
	LFACT []float64 // LFACT[i] = log i!
}

//InitNumericTables precomputes tables for lineage counts up to maxN-1
func InitNumericTables(maxN int) *NumericTables {
	tbl := new(NumericTables)
	lints := make([]float64, maxN)
	tbl.LC2 = make([]float64, maxN)
	tbl.LNR = make([]float64, maxN)
	tbl.LFACT = make([]float64, maxN)

	lints[0] = math.Inf(-1)
	lints[1] = 0.0
	for i := 2; i < maxN; i++ {
		lints[i] = math.Log(float64(i))
	}

	tbl.LC2[0] = math.Inf(-1)
	tbl.LC2[1] = math.Inf(-1)
	for i := 2; i < maxN; i++ {
		tbl.LC2[i] = lints[i] + lints[i-1] - lg2
	}

	tbl.LFACT[0] = 0.0
	for i := 1; i < maxN; i++ {
		tbl.LFACT[i] = tbl.LFACT[i-1] + lints[i]
	}

	tbl.LNR[0] = math.Inf(-1)
	tbl.LNR[1] = 0.0
	for i := 2; i < maxN; i++ {
		tbl.LNR[i] = tbl.LNR[i-1] + tbl.LC2[i]
	}
	return tbl
}
