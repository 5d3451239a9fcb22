package trials

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
)

// #region normalizer
// Normalizer turns raw trial logs into the canonical trial table.
type Normalizer struct {
	config NormalizerConfig
}

// NewNormalizer validates the encoding choices and returns a Normalizer.
func NewNormalizer(config NormalizerConfig) (*Normalizer, error) {
	if !config.DelayEncoding.Valid() {
		return nil, fmt.Errorf("delay encoding must be %q or %q, got %q",
			DelayZeroBased, DelayAsSupplied, config.DelayEncoding)
	}
	if config.CueCharOffset == 0 {
		config.CueCharOffset = DefaultCueCharOffset
	}
	if config.CueCharOffset < 1 {
		return nil, fmt.Errorf("cue char offset must be positive, got %d", config.CueCharOffset)
	}
	return &Normalizer{config: config}, nil
}

// #endregion normalizer

// #region normalize
// Normalize sorts raw rows by (subject, run, trial), extracts cue ids, derives
// the unchosen cue and global trial index, encodes the delay condition, and
// renumbers subjects densely. Any malformed row fails the whole table.
func (n *Normalizer) Normalize(raw []RawTrialRecord) ([]CanonicalTrial, error) {
	if len(raw) == 0 {
		return nil, apperr.Schemaf("", 0, "trial table is empty")
	}

	sorted := slices.Clone(raw)
	for i := range sorted {
		sorted[i].Subject = canonicalID(sorted[i].Subject)
	}
	slices.SortStableFunc(sorted, func(a, b RawTrialRecord) int {
		if c := compareIDs(a.Subject, b.Subject); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RunNum, b.RunNum); c != 0 {
			return c
		}
		return cmp.Compare(a.TrialNum, b.TrialNum)
	})

	maxTrial := 0
	for _, r := range sorted {
		if r.TrialNum < 1 {
			return nil, apperr.Schemaf("TrialNum", r.Row, "trial number %d must be >= 1", r.TrialNum)
		}
		if r.RunNum < 0 {
			return nil, apperr.Schemaf("RunNum", r.Row, "run number %d must be >= 0", r.RunNum)
		}
		maxTrial = max(maxTrial, r.TrialNum)
	}

	subjects := denseRanks(sorted, func(r RawTrialRecord) string { return r.Subject })

	out := make([]CanonicalTrial, len(sorted))
	for i, r := range sorted {
		if strings.TrimSpace(r.Subject) == "" {
			return nil, apperr.Schemaf("SubjNum", r.Row, "subject identifier is empty")
		}
		left, err := n.cueID(r.CueLeftPic, "CueLeftPic", r.Row)
		if err != nil {
			return nil, err
		}
		right, err := n.cueID(r.CueRightPic, "CueRightPic", r.Row)
		if err != nil {
			return nil, err
		}
		var chosen *int
		if strings.TrimSpace(r.CueChosen) != "" {
			c, err := n.cueID(r.CueChosen, "CueChosen", r.Row)
			if err != nil {
				return nil, err
			}
			chosen = &c
		}

		out[i] = CanonicalTrial{
			Subject:   subjects[r.Subject],
			AgeGroup:  r.AgeGroup,
			TrialNum:  r.TrialNum,
			RunNum:    r.RunNum,
			DelayCond: n.encodeDelay(r.DelayCond),
			Outcome:   r.Outcome,
			Chosen:    chosen,
			Unchosen:  unchosen(chosen, left, right),
			Trial:     r.TrialNum + r.RunNum*maxTrial,
			CueLeft:   left,
			CueRight:  right,
		}
	}

	if err := checkUniqueTrials(out, func(i int) int { return sorted[i].Row }); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion normalize

// #region renormalize
// Renormalize re-applies ordering, subject densification and trial indexing to
// an already-canonical table. Delay codes and cue ids are left untouched, so a
// second pass over Normalize output is a no-op.
func (n *Normalizer) Renormalize(canon []CanonicalTrial) ([]CanonicalTrial, error) {
	if len(canon) == 0 {
		return nil, apperr.Schemaf("", 0, "trial table is empty")
	}

	out := slices.Clone(canon)
	slices.SortStableFunc(out, func(a, b CanonicalTrial) int {
		if c := cmp.Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RunNum, b.RunNum); c != 0 {
			return c
		}
		return cmp.Compare(a.TrialNum, b.TrialNum)
	})

	maxTrial := 0
	for i, r := range out {
		if r.TrialNum < 1 {
			return nil, apperr.Schemaf("TrialNum", i+1, "trial number %d must be >= 1", r.TrialNum)
		}
		if r.RunNum < 0 {
			return nil, apperr.Schemaf("RunNum", i+1, "run number %d must be >= 0", r.RunNum)
		}
		maxTrial = max(maxTrial, r.TrialNum)
	}

	subjects := denseRanks(out, func(r CanonicalTrial) string { return strconv.Itoa(r.Subject) })
	for i := range out {
		out[i].Subject = subjects[strconv.Itoa(out[i].Subject)]
		out[i].Trial = out[i].TrialNum + out[i].RunNum*maxTrial
	}

	if err := checkUniqueTrials(out, func(i int) int { return i + 1 }); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion renormalize

// #region helpers

// cueID reads the digit at the configured offset from the end of label.
func (n *Normalizer) cueID(label, column string, row int) (int, error) {
	runes := []rune(strings.TrimSpace(label))
	pos := len(runes) - n.config.CueCharOffset
	if pos < 0 {
		return 0, apperr.Schemaf(column, row, "cue label %q has no character at offset -%d", label, n.config.CueCharOffset)
	}
	ch := runes[pos]
	if ch < '0' || ch > '9' {
		return 0, apperr.Schemaf(column, row, "cue label %q: %q at offset -%d is not a digit", label, ch, n.config.CueCharOffset)
	}
	return int(ch - '0'), nil
}

func (n *Normalizer) encodeDelay(code int) int {
	if n.config.DelayEncoding == DelayZeroBased {
		return code - 1
	}
	return code
}

// unchosen defaults to the left cue and switches to the right cue only when the
// left one was chosen. A missed trial (chosen == nil) therefore gets the left
// cue; that matches the historical cleaning step and is kept deliberately.
func unchosen(chosen *int, left, right int) int {
	if chosen != nil && *chosen == left {
		return right
	}
	return left
}

// canonicalID trims a subject identifier and renders integral numbers without
// padding or a decimal part, so "01", "1" and "1.0" name the same subject.
func canonicalID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.Atoi(id); err == nil {
		return strconv.Itoa(n)
	}
	if f, err := strconv.ParseFloat(id, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.Itoa(int(f))
	}
	return id
}

// compareIDs orders subject identifiers numerically when both parse as
// integers and lexically otherwise. Numeric ids sort before the rest.
func compareIDs(a, b string) int {
	ai, aErr := strconv.Atoi(strings.TrimSpace(a))
	bi, bErr := strconv.Atoi(strings.TrimSpace(b))
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// denseRanks maps each distinct key to its 1-based rank in sorted order.
func denseRanks[T any](rows []T, key func(T) string) map[string]int {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range rows {
		k := key(r)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareIDs)
	ranks := make(map[string]int, len(keys))
	for i, k := range keys {
		ranks[k] = i + 1
	}
	return ranks
}

func checkUniqueTrials(rows []CanonicalTrial, sourceRow func(int) int) error {
	type key struct{ subject, trial int }
	seen := make(map[key]bool, len(rows))
	for i, r := range rows {
		k := key{r.Subject, r.Trial}
		if seen[k] {
			return apperr.Schemaf("TrialNum", sourceRow(i),
				"duplicate trial %d (run %d) for subject %d", r.TrialNum, r.RunNum, r.Subject)
		}
		seen[k] = true
	}
	return nil
}

// #endregion helpers
