package beast2

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

//Chain is a single Metropolis-Hastings chain sampling tree node heights and
//the birth rate under the calibrated Yule prior
type Chain struct {
	TREE       *Tree
	CY         *CalibratedYule
	OPS        []Operator
	GEN        int
	SAMPLEFREQ int
	PRINTFREQ  int
	TRACEFILE  string
	TREEFILE   string
	RNG        *rand.Rand
	AC         *AdaptCounter

	sampledP []float64
	sampledH []float64
}

//InitChain will set up a chain over the given state with its operator set
func InitChain(tree *Tree, cy *CalibratedYule, ops []Operator, ac *AdaptCounter, seed int64) *Chain {
	c := new(Chain)
	c.TREE = tree
	c.CY = cy
	c.OPS = ops
	c.AC = ac
	c.GEN = 1000000
	c.SAMPLEFREQ = 1000
	c.PRINTFREQ = 10000
	c.TRACEFILE = "mcmc.log"
	c.TREEFILE = "mcmc.trees"
	c.RNG = rand.New(rand.NewSource(seed))
	return c
}

func (c *Chain) chooseOperator() Operator {
	tot := 0.0
	for _, op := range c.OPS {
		tot += op.Stats().WEIGHT
	}
	u := c.RNG.Float64() * tot
	for _, op := range c.OPS {
		u -= op.Stats().WEIGHT
		if u < 0 {
			return op
		}
	}
	return c.OPS[len(c.OPS)-1]
}

//Run will run the chain, writing samples to the trace and tree files and
//printing an acceptance report when finished
func (c *Chain) Run() error {
	tf, err := os.Create(c.TRACEFILE)
	if err != nil {
		return err
	}
	defer tf.Close()
	trw := bufio.NewWriter(tf)
	defer trw.Flush()

	nf, err := os.Create(c.TREEFILE)
	if err != nil {
		return err
	}
	defer nf.Close()
	nww := bufio.NewWriter(nf)
	defer nww.Flush()

	trw.WriteString("state\tposterior\tbirthRate\trootHeight")
	for _, cp := range c.CY.ORD.CALS {
		trw.WriteString("\t" + cp.NAME)
	}
	trw.WriteString("\n")

	logP := c.CY.LogLike(c.TREE)
	for i := 0; i <= c.GEN; i++ {
		op := c.chooseOperator()
		lhr := op.Propose(c.RNG)
		logAlpha := lhr
		if math.IsInf(lhr, -1) {
			op.Stats().Reject()
			op.Restore()
		} else if math.IsInf(lhr, 1) {
			logP = c.CY.LogLike(c.TREE)
			op.Stats().Accept()
		} else {
			newP := c.CY.LogLike(c.TREE)
			logAlpha = newP - logP + lhr
			if logAlpha >= 0 || math.Log(c.RNG.Float64()) < logAlpha {
				logP = newP
				op.Stats().Accept()
			} else {
				op.Stats().Reject()
				op.Restore()
			}
		}
		if c.AC.Past() {
			op.Optimize(logAlpha)
		}
		if i%c.SAMPLEFREQ == 0 {
			c.writeSample(trw, nww, i, logP)
		}
		if i%c.PRINTFREQ == 0 {
			fmt.Println("generation", i, "logP", logP)
		}
	}
	trw.Flush()
	nww.Flush()
	fmt.Println("posterior mean", formatFloat(stat.Mean(c.sampledP, nil)),
		"sd", formatFloat(stat.StdDev(c.sampledP, nil)))
	fmt.Println("root height mean", formatFloat(stat.Mean(c.sampledH, nil)),
		"sd", formatFloat(stat.StdDev(c.sampledH, nil)))
	WriteOperatorReport(os.Stdout, c.OPS)
	return nil
}

func (c *Chain) writeSample(trw, nww *bufio.Writer, state int, logP float64) {
	trw.WriteString(strconv.Itoa(state))
	trw.WriteString("\t" + formatFloat(logP))
	trw.WriteString("\t" + formatFloat(c.CY.RATE))
	trw.WriteString("\t" + formatFloat(c.TREE.NODES[c.TREE.ROOT].HEIGHT))
	for k := range c.CY.ORD.CALS {
		cn, _ := c.CY.calNode(c.TREE, k)
		trw.WriteString("\t" + formatFloat(c.TREE.NODES[cn].HEIGHT))
	}
	trw.WriteString("\n")
	nww.WriteString(c.TREE.Newick() + "\n")
	c.sampledP = append(c.sampledP, logP)
	c.sampledH = append(c.sampledH, c.TREE.NODES[c.TREE.ROOT].HEIGHT)
}

//RunParallel runs several independent chains concurrently and returns the
//first error any of them hits
func RunParallel(chains []*Chain) error {
	var g errgroup.Group
	for _, c := range chains {
		g.Go(c.Run)
	}
	return g.Wait()
}
