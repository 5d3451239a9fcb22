package trials

// #region raw-record
// RawTrialRecord is one trial row as supplied by the task log.
type RawTrialRecord struct {
	Row         int // 1-based source row, for error messages
	Subject     string
	AgeGroup    string
	TrialNum    int
	RunNum      int
	DelayCond   int
	CueLeftPic  string
	CueRightPic string
	CueChosen   string   // empty on a missed trial
	Outcome     *float64 // nil when missing
}

// #endregion raw-record

// #region canonical-trial
// CanonicalTrial is one normalized trial. Rows are ordered by subject, run, trial.
type CanonicalTrial struct {
	Subject   int // dense, 1..Nsub
	AgeGroup  string
	TrialNum  int
	RunNum    int
	DelayCond int
	Outcome   *float64
	Chosen    *int // nil on a missed trial
	Unchosen  int
	Trial     int // TrialNum + RunNum*max(TrialNum), unique within subject

	// Cue ids shown on the trial. Not persisted in the canonical CSV.
	CueLeft  int
	CueRight int
}

// IsMissed reports whether no cue was chosen on the trial.
func (c CanonicalTrial) IsMissed() bool { return c.Chosen == nil }

// #endregion canonical-trial

// #region delay-encoding
// DelayEncoding selects how raw delay-condition codes are carried into the canonical table.
type DelayEncoding string

const (
	// DelayZeroBased shifts codes down by one (1/2 -> 0/1, 1 = delay).
	DelayZeroBased DelayEncoding = "zero_based"
	// DelayAsSupplied keeps codes exactly as logged.
	DelayAsSupplied DelayEncoding = "as_supplied"
)

// Valid reports whether e names a known encoding.
func (e DelayEncoding) Valid() bool {
	return e == DelayZeroBased || e == DelayAsSupplied
}

// #endregion delay-encoding

// #region normalizer-config
// NormalizerConfig holds the explicit encoding choices for a normalization pass.
type NormalizerConfig struct {
	// DelayEncoding has no default; callers must choose one.
	DelayEncoding DelayEncoding
	// CueCharOffset is the position of the cue digit counted from the end of
	// the label, so 5 reads the '3' in "stim3.jpg".
	CueCharOffset int
}

// DefaultCueCharOffset matches labels of the form "<name><digit>.<3-letter ext>".
const DefaultCueCharOffset = 5

// #endregion normalizer-config
