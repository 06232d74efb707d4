package beast2

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"
)

//DistConfig describes a calibration density in the run file
type DistConfig struct {
	Type  string  `yaml:"type"`
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Rate  float64 `yaml:"rate"`
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

//CalConfig describes one calibrated clade
type CalConfig struct {
	Name   string     `yaml:"name"`
	Taxa   []string   `yaml:"taxa"`
	Parent bool       `yaml:"parent"`
	Dist   DistConfig `yaml:"dist"`
}

//OpConfig describes one operator and its selection weight
type OpConfig struct {
	Type   string  `yaml:"type"`
	Weight float64 `yaml:"weight"`
	Tuning float64 `yaml:"tuning"`
	Target float64 `yaml:"target"`
}

//RunConfig is the full sampler run description
type RunConfig struct {
	BirthRate    float64     `yaml:"birthRate"`
	Correction   string      `yaml:"correction"`
	UserMarginal *float64    `yaml:"userMarginal"`
	Taxa         []string    `yaml:"taxa"`
	Calibrations []CalConfig `yaml:"calibrations"`
	Operators    []OpConfig  `yaml:"operators"`
	Generations  int         `yaml:"generations"`
	SampleFreq   int         `yaml:"sampleFreq"`
	PrintFreq    int         `yaml:"printFreq"`
	Seed         int64       `yaml:"seed"`
	Chains       int         `yaml:"chains"`
	TraceFile    string      `yaml:"traceFile"`
	TreeFile     string      `yaml:"treeFile"`
	AdaptDelay   int         `yaml:"adaptDelay"`
}

//LoadRunConfig reads and validates a YAML run file
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rc := new(RunConfig)
	if err := yaml.Unmarshal(data, rc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

//Validate checks every field a run needs before any chain is built
func (rc *RunConfig) Validate() error {
	if rc.BirthRate <= 0 {
		return fmt.Errorf("birthRate must be positive, got %v", rc.BirthRate)
	}
	if len(rc.Taxa) < 2 {
		return fmt.Errorf("need at least two taxa, got %d", len(rc.Taxa))
	}
	switch rc.Correction {
	case string(CorrNone), string(CorrAllTopos), string(CorrRankedCounts):
	case "all-topologies":
		rc.Correction = string(CorrAllTopos)
	case "ranked-counts":
		rc.Correction = string(CorrRankedCounts)
	case "":
		rc.Correction = string(CorrAllTopos)
	default:
		return fmt.Errorf("unknown correction type %q (want none, all-topologies or ranked-counts)", rc.Correction)
	}
	if len(rc.Operators) == 0 {
		return fmt.Errorf("no operators configured")
	}
	for _, oc := range rc.Operators {
		if oc.Weight <= 0 {
			return fmt.Errorf("operator %s: weight must be set to a positive value, got %v", oc.Type, oc.Weight)
		}
		if oc.Target < 0 || oc.Target >= 1 {
			return fmt.Errorf("operator %s: target acceptance must be in (0,1), got %v", oc.Type, oc.Target)
		}
	}
	for _, cc := range rc.Calibrations {
		if len(cc.Taxa) == 0 {
			return fmt.Errorf("calibration %s: no taxa given", cc.Name)
		}
		if _, err := BuildDist(cc.Dist); err != nil {
			return fmt.Errorf("calibration %s: %w", cc.Name, err)
		}
	}
	if rc.Generations <= 0 {
		rc.Generations = 1000000
	}
	if rc.SampleFreq <= 0 {
		rc.SampleFreq = 1000
	}
	if rc.PrintFreq <= 0 {
		rc.PrintFreq = 10000
	}
	if rc.Chains <= 0 {
		rc.Chains = 1
	}
	if rc.AdaptDelay <= 0 {
		rc.AdaptDelay = 10000
	}
	if rc.TraceFile == "" {
		rc.TraceFile = "mcmc.log"
	}
	if rc.TreeFile == "" {
		rc.TreeFile = "mcmc.trees"
	}
	return nil
}

//BuildDist maps a distribution spec onto the matching gonum density
func BuildDist(dc DistConfig) (CalDensity, error) {
	switch dc.Type {
	case "normal":
		if dc.Sigma <= 0 {
			return nil, fmt.Errorf("normal: sigma must be positive")
		}
		return distuv.Normal{Mu: dc.Mu, Sigma: dc.Sigma}, nil
	case "lognormal":
		if dc.Sigma <= 0 {
			return nil, fmt.Errorf("lognormal: sigma must be positive")
		}
		return distuv.LogNormal{Mu: dc.Mu, Sigma: dc.Sigma}, nil
	case "uniform":
		if dc.Max <= dc.Min {
			return nil, fmt.Errorf("uniform: max must exceed min")
		}
		return distuv.Uniform{Min: dc.Min, Max: dc.Max}, nil
	case "exponential":
		if dc.Rate <= 0 {
			return nil, fmt.Errorf("exponential: rate must be positive")
		}
		return distuv.Exponential{Rate: dc.Rate}, nil
	case "gamma":
		if dc.Alpha <= 0 || dc.Beta <= 0 {
			return nil, fmt.Errorf("gamma: alpha and beta must be positive")
		}
		return distuv.Gamma{Alpha: dc.Alpha, Beta: dc.Beta}, nil
	default:
		return nil, fmt.Errorf("unknown distribution type %q", dc.Type)
	}
}

func (rc *RunConfig) calibrationPoints() ([]*CalibrationPoint, error) {
	cals := make([]*CalibrationPoint, 0, len(rc.Calibrations))
	for _, cc := range rc.Calibrations {
		d, err := BuildDist(cc.Dist)
		if err != nil {
			return nil, fmt.Errorf("calibration %s: %w", cc.Name, err)
		}
		cp := &CalibrationPoint{NAME: cc.Name, TAXA: cc.Taxa, DIST: d, PARENT: cc.Parent}
		cals = append(cals, cp)
	}
	return cals, nil
}

func (rc *RunConfig) buildOperators(tree *Tree, cy *CalibratedYule, ac *AdaptCounter) ([]Operator, error) {
	ops := make([]Operator, 0, len(rc.Operators))
	for _, oc := range rc.Operators {
		tune := oc.Tuning
		var op Operator
		switch oc.Type {
		case "slide":
			if tune <= 0 {
				tune = 1.0
			}
			op = InitNodeHeightSlide(tree, tune, oc.Weight, ac)
		case "treescale":
			if tune <= 0 {
				tune = 0.5
			}
			op = InitTreeScale(tree, tune, oc.Weight, ac)
		case "ratescale":
			if tune <= 0 {
				tune = 0.5
			}
			op = InitRateScale(cy, tune, oc.Weight, ac)
		default:
			return nil, fmt.Errorf("unknown operator type %q", oc.Type)
		}
		if oc.Target > 0 {
			op.Stats().TARGET = oc.Target
		}
		ops = append(ops, op)
	}
	return ops, nil
}

//BuildChains constructs the configured number of independent chains, each
//with its own tree, prior state and operator set
func (rc *RunConfig) BuildChains() ([]*Chain, error) {
	chains := make([]*Chain, 0, rc.Chains)
	for i := 0; i < rc.Chains; i++ {
		cals, err := rc.calibrationPoints()
		if err != nil {
			return nil, err
		}
		tree, err := CompatibleInitialTree(rc.Taxa, cals)
		if err != nil {
			return nil, err
		}
		cy, err := InitCalibratedYule(tree, rc.BirthRate, cals, CorrectionType(rc.Correction), rc.UserMarginal)
		if err != nil {
			return nil, err
		}
		ac := InitAdaptCounter(rc.AdaptDelay)
		ops, err := rc.buildOperators(tree, cy, ac)
		if err != nil {
			return nil, err
		}
		c := InitChain(tree, cy, ops, ac, rc.Seed+int64(i))
		c.GEN = rc.Generations
		c.SAMPLEFREQ = rc.SampleFreq
		c.PRINTFREQ = rc.PrintFreq
		c.TRACEFILE = rc.TraceFile
		c.TREEFILE = rc.TreeFile
		if rc.Chains > 1 {
			c.TRACEFILE = fmt.Sprintf("%s.%d", rc.TraceFile, i)
			c.TREEFILE = fmt.Sprintf("%s.%d", rc.TreeFile, i)
		}
		chains = append(chains, c)
	}
	return chains, nil
}
