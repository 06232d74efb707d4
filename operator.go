package beast2

import (
	"fmt"
	"math"
	"math/rand"
)

//AdaptCounter is the shared invocation counter gating tuning adaptation.
//Every chain owns one and hands it to each of its operators, so adaptation
//starts after the chain as a whole has taken DELAY proposals, not after each
//operator individually has.
type AdaptCounter struct {
	COUNT int
	DELAY int
}

//InitAdaptCounter will return a counter that opens after delay invocations
func InitAdaptCounter(delay int) *AdaptCounter {
	ac := new(AdaptCounter)
	ac.DELAY = delay
	return ac
}

//Bump records one operator invocation and reports whether adaptation is open
func (ac *AdaptCounter) Bump() bool {
	ac.COUNT++
	return ac.COUNT > ac.DELAY
}

//Past reports whether the burn-in delay has passed without recording anything
func (ac *AdaptCounter) Past() bool {
	return ac.COUNT > ac.DELAY
}

//OpStats carries the acceptance bookkeeping every operator shares
type OpStats struct {
	NAME    string
	WEIGHT  float64
	TARGET  float64
	ACC     int
	REJ     int
	ACCCORR int
	REJCORR int
	AC      *AdaptCounter
}

func InitOpStats(name string, weight float64, ac *AdaptCounter) *OpStats {
	os := new(OpStats)
	os.NAME = name
	os.WEIGHT = weight
	os.TARGET = 0.234
	os.AC = ac
	return os
}

//Accept counts an accepted proposal; the correction counter only moves once
//the shared counter's burn-in has passed
func (os *OpStats) Accept() {
	os.ACC++
	if os.AC.Bump() {
		os.ACCCORR++
	}
}

//Reject counts a rejected proposal
func (os *OpStats) Reject() {
	os.REJ++
	if os.AC.Bump() {
		os.REJCORR++
	}
}

//CalcDelta will return the tuning adjustment for one proposal outcome. The
//step size decays with the number of post-burn-in proposals, pulling the
//acceptance probability toward TARGET. During the shared burn-in window the
//delta is zero, and a non-finite result maps to zero.
func (os *OpStats) CalcDelta(logAlpha float64) float64 {
	if !os.AC.Past() {
		return 0.0
	}
	total := os.ACCCORR + os.REJCORR
	d := (1.0 / float64(total+1)) * (math.Exp(math.Min(logAlpha, 0.0)) - os.TARGET)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0.0
	}
	return d
}

//Ratio is the fraction of proposals accepted over the whole run
func (os *OpStats) Ratio() float64 {
	total := os.ACC + os.REJ
	if total == 0 {
		return 0.0
	}
	return float64(os.ACC) / float64(total)
}

//Operator proposes a reversible change to the sampler state. Propose returns
//the log Hastings ratio: +Inf means accept unconditionally, -Inf means the
//proposal left the state's support and is rejected without evaluating the
//density. After a rejection the chain calls Restore to undo the change.
type Operator interface {
	Propose(r *rand.Rand) float64
	Restore()
	Stats() *OpStats
	Optimize(logAlpha float64)
	CoercableValue() float64
	SetCoercableValue(v float64)
	PerformanceSuggestion() string
}

func performanceSuggestion(os *OpStats, label string, value float64) string {
	total := os.ACC + os.REJ
	if total == 0 {
		return ""
	}
	prob := os.Ratio()
	if prob < 0.5*os.TARGET || prob > 2.0*os.TARGET {
		sv := value * (prob + 0.01) / (os.TARGET + 0.01)
		return fmt.Sprintf("Try setting %s to about %s", label, formatFloat(sv))
	}
	return "good"
}

//NodeHeightSlide slides one random non-root internal node's height uniformly
//within a window, reflecting off the parent height above and the higher
//child below. The move is symmetric.
type NodeHeightSlide struct {
	STATS *OpStats
	TREE  *Tree
	SIZE  float64

	lastNode   int
	lastHeight float64
}

func InitNodeHeightSlide(tree *Tree, size, weight float64, ac *AdaptCounter) *NodeHeightSlide {
	op := new(NodeHeightSlide)
	op.STATS = InitOpStats("NodeHeightSlide", weight, ac)
	op.TREE = tree
	op.SIZE = size
	op.lastNode = -1
	return op
}

func (op *NodeHeightSlide) Propose(r *rand.Rand) float64 {
	op.lastNode = -1
	t := op.TREE
	internals := t.InternalNodes()
	cand := make([]int, 0, len(internals))
	for _, i := range internals {
		if i != t.ROOT {
			cand = append(cand, i)
		}
	}
	if len(cand) == 0 {
		return math.Inf(-1)
	}
	i := cand[r.Intn(len(cand))]
	nd := &t.NODES[i]
	lo := math.Max(t.NODES[nd.LEFT].HEIGHT, t.NODES[nd.RIGHT].HEIGHT)
	hi := t.NODES[nd.PAR].HEIGHT
	if hi <= lo {
		return math.Inf(-1)
	}
	op.lastNode = i
	op.lastHeight = nd.HEIGHT
	nh := nd.HEIGHT + (r.Float64()-0.5)*op.SIZE
	// reflect back into (lo, hi)
	for nh < lo || nh > hi {
		if nh < lo {
			nh = 2*lo - nh
		}
		if nh > hi {
			nh = 2*hi - nh
		}
	}
	nd.HEIGHT = nh
	return 0.0
}

func (op *NodeHeightSlide) Restore() {
	if op.lastNode >= 0 {
		op.TREE.NODES[op.lastNode].HEIGHT = op.lastHeight
		op.lastNode = -1
	}
}

func (op *NodeHeightSlide) Stats() *OpStats { return op.STATS }

func (op *NodeHeightSlide) Optimize(logAlpha float64) {
	d := op.STATS.CalcDelta(logAlpha)
	op.SIZE = math.Exp(d + math.Log(op.SIZE))
}

func (op *NodeHeightSlide) CoercableValue() float64     { return op.SIZE }
func (op *NodeHeightSlide) SetCoercableValue(v float64) { op.SIZE = v }

func (op *NodeHeightSlide) PerformanceSuggestion() string {
	return performanceSuggestion(op.STATS, "window size", op.SIZE)
}

//TreeScale multiplies every internal node height by a common factor
//c = exp(eps*(u-0.5)). Tip heights stay at zero so node order is preserved.
//The log Hastings ratio is m*log(c) for m scaled heights.
type TreeScale struct {
	STATS *OpStats
	TREE  *Tree
	EPS   float64

	lastFactor float64
}

func InitTreeScale(tree *Tree, eps, weight float64, ac *AdaptCounter) *TreeScale {
	op := new(TreeScale)
	op.STATS = InitOpStats("TreeScale", weight, ac)
	op.TREE = tree
	op.EPS = eps
	op.lastFactor = 1.0
	return op
}

func (op *TreeScale) Propose(r *rand.Rand) float64 {
	c := math.Exp(op.EPS * (r.Float64() - 0.5))
	op.lastFactor = c
	m := 0
	for _, i := range op.TREE.InternalNodes() {
		op.TREE.NODES[i].HEIGHT *= c
		m++
	}
	return float64(m) * math.Log(c)
}

func (op *TreeScale) Restore() {
	c := op.lastFactor
	if c == 1.0 {
		return
	}
	for _, i := range op.TREE.InternalNodes() {
		op.TREE.NODES[i].HEIGHT /= c
	}
	op.lastFactor = 1.0
}

func (op *TreeScale) Stats() *OpStats { return op.STATS }

func (op *TreeScale) Optimize(logAlpha float64) {
	d := op.STATS.CalcDelta(logAlpha)
	op.EPS = math.Exp(d + math.Log(op.EPS))
}

func (op *TreeScale) CoercableValue() float64     { return op.EPS }
func (op *TreeScale) SetCoercableValue(v float64) { op.EPS = v }

func (op *TreeScale) PerformanceSuggestion() string {
	return performanceSuggestion(op.STATS, "scale size", op.EPS)
}

//RateScale multiplies the prior's birth rate by c = exp(eps*(u-0.5)); the
//log Hastings ratio is log(c)
type RateScale struct {
	STATS *OpStats
	CY    *CalibratedYule
	EPS   float64

	lastRate float64
}

func InitRateScale(cy *CalibratedYule, eps, weight float64, ac *AdaptCounter) *RateScale {
	op := new(RateScale)
	op.STATS = InitOpStats("RateScale", weight, ac)
	op.CY = cy
	op.EPS = eps
	op.lastRate = -1.0
	return op
}

func (op *RateScale) Propose(r *rand.Rand) float64 {
	c := math.Exp(op.EPS * (r.Float64() - 0.5))
	op.lastRate = op.CY.RATE
	op.CY.RATE *= c
	return math.Log(c)
}

func (op *RateScale) Restore() {
	if op.lastRate > 0 {
		op.CY.RATE = op.lastRate
		op.lastRate = -1.0
	}
}

func (op *RateScale) Stats() *OpStats { return op.STATS }

func (op *RateScale) Optimize(logAlpha float64) {
	d := op.STATS.CalcDelta(logAlpha)
	op.EPS = math.Exp(d + math.Log(op.EPS))
}

func (op *RateScale) CoercableValue() float64     { return op.EPS }
func (op *RateScale) SetCoercableValue(v float64) { op.EPS = v }

func (op *RateScale) PerformanceSuggestion() string {
	return performanceSuggestion(op.STATS, "scale size", op.EPS)
}
