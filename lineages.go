package beast2

//LineageIterator enumerates, for a fixed assignment of ranks to calibration
//heights, every admissible way the lineages of each calibrated clade (and of
//the free lineages outside all clades) can be counted at the ranked height
//levels. Each group owns a trajectory of pre-join lineage counts at the level
//crossings; Next walks the cartesian product of the per-group trajectories in
//a fixed order, so the enumeration is deterministic and restartable.
type LineageIterator struct {
	starts  []int //free lineages entering each clade at the present, order index
	sizes   []int //clade sizes, order index
	partial [][]int
	maximal []bool
	ntips   int

	GROUPS  []*linsGroup //by rank, top group last when present
	TOP     bool         //a free-lineage group exists above the calibrations
	started bool
}

//linsGroup tracks one clade's (or the top free-lineage pool's) lineage count
//trajectory. Crossing i is the bottom of interval i; JOINS[i] lineages from
//immediately nested clades enter there.
type linsGroup struct {
	RANK   int
	START  int
	JOINS  []int
	TRJ    []int //pre-join counts at crossings 0..len-1
	ndigit int   //free choices; digit i fixes TRJ[i+1]
	fixed2 bool  //calibrated group: trajectory must arrive with exactly 2
	pend   []int //pend[i] = joins at crossings > i within the span
}

//InitLineageIterator derives the per-clade joiner table from the calibration
//partial order. The table depends only on the clade structure and is reused
//across every evaluation.
func InitLineageIterator(oc *OrderedCalibrations, ntips int) *LineageIterator {
	it := new(LineageIterator)
	n := len(oc.CALS)
	it.starts = make([]int, n)
	it.sizes = make([]int, n)
	for k := 0; k < n; k++ {
		it.sizes[k] = len(oc.XCLADES[k])
		it.starts[k] = len(oc.XCLADES[k])
		for _, i := range oc.PARTIAL[k] {
			it.starts[k] -= len(oc.XCLADES[i])
		}
	}
	it.partial = oc.PARTIAL
	it.maximal = oc.MAXIMAL
	it.ntips = ntips
	return it
}

//Setup arranges the groups for one ranking of the calibration heights and
//primes the enumeration. ranks[k] is the 1-based rank of clade k's height.
//The return value is the number of groups (calibrations plus one more when
//free lineages survive above the highest calibration).
func (it *LineageIterator) Setup(ranks []int) int {
	n := len(it.starts)
	free := it.ntips
	for k := 0; k < n; k++ {
		if it.maximal[k] {
			free -= it.sizes[k]
		}
	}
	it.TOP = !(free == 0 && countTrue(it.maximal) == 1)

	ng := n
	if it.TOP {
		ng++
	}
	it.GROUPS = make([]*linsGroup, ng)
	for k := 0; k < n; k++ {
		g := new(linsGroup)
		g.RANK = ranks[k]
		g.START = it.starts[k]
		g.JOINS = make([]int, ranks[k]+1)
		for _, i := range it.partial[k] {
			g.JOINS[ranks[i]]++
		}
		g.TRJ = make([]int, ranks[k]+1)
		g.ndigit = ranks[k] - 1
		g.fixed2 = true
		it.GROUPS[ranks[k]-1] = g
	}
	if it.TOP {
		g := new(linsGroup)
		g.RANK = n + 1
		g.START = free
		g.JOINS = make([]int, n+1)
		for k := 0; k < n; k++ {
			if it.maximal[k] {
				g.JOINS[ranks[k]]++
			}
		}
		g.TRJ = make([]int, n+1)
		g.ndigit = n
		g.fixed2 = false
		it.GROUPS[n] = g
	}
	for _, g := range it.GROUPS {
		g.initPending()
	}
	it.Reset()
	return ng
}

//Reset restarts the enumeration for the current ranking
func (it *LineageIterator) Reset() {
	for _, g := range it.GROUPS {
		g.first()
	}
	it.started = false
}

//Next returns the trajectory of every group for the next admissible
//assignment, or nil when the enumeration is exhausted. The returned slices
//are owned by the iterator and valid until the following call.
func (it *LineageIterator) Next() [][]int {
	if !it.started {
		it.started = true
	} else {
		j := len(it.GROUPS) - 1
		for ; j >= 0; j-- {
			if it.GROUPS[j].next() {
				break
			}
		}
		if j < 0 {
			return nil
		}
		for k := j + 1; k < len(it.GROUPS); k++ {
			it.GROUPS[k].first()
		}
	}
	out := make([][]int, len(it.GROUPS))
	for i, g := range it.GROUPS {
		out[i] = g.TRJ
	}
	return out
}

//Joiners returns, per group in rank order, the join counts at each crossing
func (it *LineageIterator) Joiners() [][]int {
	js := make([][]int, len(it.GROUPS))
	for i, g := range it.GROUPS {
		js[i] = g.JOINS
	}
	return js
}

//NStart returns the number of lineages group g begins with at the present
func (it *LineageIterator) NStart(g int) int {
	return it.GROUPS[g].START
}

func (g *linsGroup) initPending() {
	// pend[i] = joins at crossings strictly above i
	g.pend = make([]int, len(g.JOINS))
	s := 0
	for i := len(g.JOINS) - 1; i >= 0; i-- {
		g.pend[i] = s
		s += g.JOINS[i]
	}
}

//digit i chooses TRJ[i+1], the count carried out of interval i. Bounds
//depend on the counts below, so a change to digit i recomputes everything
//to its right. A count may dip to 1 only while nested joins are still
//pending; otherwise the group could never reach its calibrated node (or the
//root) with a pair left to merge.
func (g *linsGroup) bounds(i int) (lo, hi int) {
	ni := g.TRJ[i] + g.JOINS[i] //post-join count at the bottom of interval i
	if ni == 0 {
		return 0, 0
	}
	lo = 2 - g.pend[i]
	if lo < 1 {
		lo = 1
	}
	return lo, ni
}

func (g *linsGroup) first() bool {
	g.TRJ[0] = g.START
	for i := 0; i < g.ndigit; i++ {
		lo, _ := g.bounds(i)
		g.TRJ[i+1] = lo
	}
	g.setTerminal()
	return true
}

func (g *linsGroup) next() bool {
	for i := g.ndigit - 1; i >= 0; i-- {
		_, hi := g.bounds(i)
		if g.TRJ[i+1] < hi {
			g.TRJ[i+1]++
			for j := i + 1; j < g.ndigit; j++ {
				lo, _ := g.bounds(j)
				g.TRJ[j+1] = lo
			}
			g.setTerminal()
			return true
		}
	}
	return false
}

func (g *linsGroup) setTerminal() {
	if g.fixed2 {
		// a calibrated clade always arrives at its own height with 2 lineages
		g.TRJ[g.RANK] = 2
	}
}

func countTrue(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}
