package modeldata

// #region options
// Options selects the optional dimensions a model variant consumes.
type Options struct {
	IncludeCondition bool // emit Ncond and per-subject condition
	IncludeRun       bool // emit Nrun and per-trial run
}

// #endregion options

// #region sentinels
const (
	// MissingCue fills chosen/unchosen on trials without a choice.
	MissingCue = 0
	// MissingOutcome fills outcome on trials without feedback.
	MissingOutcome = -1
)

// #endregion sentinels

// #region dictionary
// Dictionary is the fixed-shape numeric payload handed to the sampler.
// Per-trial slices have N entries; per-subject slices have Nsub entries.
type Dictionary struct {
	Options Options

	N      int
	Nsub   int
	Ncue   int // distinct non-missing chosen cues; a vocabulary proxy, not a census
	Ntrial int // largest global trial index
	Ngroup int
	Ncond  int // 0 unless Options.IncludeCondition
	Nrun   int // 0 unless Options.IncludeRun

	Sub      []int
	Chosen   []int
	Unchosen []int
	Trial    []int
	Outcome  []int
	Run      []int // nil unless Options.IncludeRun

	Group     []int // subject -> 1..Ngroup
	Condition []int // subject -> 1..Ncond, nil unless Options.IncludeCondition

	// Labels for each dense index, in index order.
	GroupLabels     []string
	ConditionLabels []string
}

// #endregion dictionary
