package beast2

import (
	"math"
	"strconv"
)

//LogSum adds two probabilities carried in natural log space using the
//stable log1p pattern. Either argument may be -Inf (a zero probability).
func LogSum(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

//SumFloat will return the total of a slice of float64
func SumFloat(v []float64) float64 {
	s := 0.
	for _, x := range v {
		s += x
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func containsAll(a, b map[string]bool) bool {
	for k := range b {
		if !a[k] {
			return false
		}
	}
	return true
}

func containsAny(a, b map[string]bool) bool {
	for k := range b {
		if a[k] {
			return true
		}
	}
	return false
}
