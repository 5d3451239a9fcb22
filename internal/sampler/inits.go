package sampler

import (
	"fmt"
	"math/rand"
	"sort"
)

// #region strategy-definitions

// InitValues maps parameter names to starting values for one chain.
type InitValues map[string]any

// InitStrategy draws one chain's starting values. A nil result means no
// explicit inits for that chain.
type InitStrategy func(Dims, *rand.Rand) InitValues

// StrategyID names a registered init strategy.
type StrategyID string

const (
	InitUnitBetaRandomAlpha StrategyID = "unit_beta_random_alpha"
	InitSamplerDefault      StrategyID = "sampler_default"
)

// Strategies is the registry of built-in init strategies.
var Strategies = map[StrategyID]InitStrategy{
	InitUnitBetaRandomAlpha: unitBetaRandomAlpha,
	InitSamplerDefault:      func(Dims, *rand.Rand) InitValues { return nil },
}

// unitBetaRandomAlpha starts every softmax temperature and group hyperprior
// at 1 and draws learning rates uniformly from [0, 1).
func unitBetaRandomAlpha(d Dims, rng *rand.Rand) InitValues {
	alpha := make([]float64, d.Nsub)
	for i := range alpha {
		alpha[i] = rng.Float64()
	}
	return InitValues{
		"beta":  ones(d.Nsub),
		"alpha": alpha,
		"a":     ones(d.Ngroup),
		"b":     ones(d.Ngroup),
	}
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// #endregion

// #region default-mapping

// defaultModelInits maps model name -> strategy when configuration is silent.
var defaultModelInits = map[string]StrategyID{
	"model1": InitUnitBetaRandomAlpha,
}

// StrategyFor resolves the strategy for a model: configured mapping first,
// then built-in defaults, then the sampler's own inits.
func StrategyFor(model string, configured map[string]string) (StrategyID, InitStrategy, error) {
	sid := InitSamplerDefault
	if name, ok := configured[model]; ok {
		sid = StrategyID(name)
	} else if def, ok := defaultModelInits[model]; ok {
		sid = def
	}
	fn, ok := Strategies[sid]
	if !ok {
		return "", nil, fmt.Errorf("unknown init strategy %q for model %s (known: %v)", sid, model, StrategyNames())
	}
	return sid, fn, nil
}

// StrategyNames lists registered strategies in sorted order.
func StrategyNames() []string {
	names := make([]string, 0, len(Strategies))
	for id := range Strategies {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// #endregion

// #region chain-inits

// ChainInits draws one init set per chain from a single generator, in chain
// order. It returns nil when the strategy leaves every chain to the sampler.
func ChainInits(strategy InitStrategy, d Dims, chains int, seed int64) []InitValues {
	rng := rand.New(rand.NewSource(seed))
	out := make([]InitValues, chains)
	explicit := false
	for c := range out {
		out[c] = strategy(d, rng)
		if out[c] != nil {
			explicit = true
		}
	}
	if !explicit {
		return nil
	}
	return out
}

// #endregion
