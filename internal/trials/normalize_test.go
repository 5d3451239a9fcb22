package trials

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danielpatrickdp/hierarchical-rl/go-pipeline/internal/apperr"
	"github.com/google/go-cmp/cmp"
)

// #region helpers
func f64(v float64) *float64 { return &v }

func rawTrial(row int, subj string, run, trial, delay int, left, right, chosen int, outcome float64) RawTrialRecord {
	r := RawTrialRecord{
		Row:         row,
		Subject:     subj,
		AgeGroup:    "1",
		TrialNum:    trial,
		RunNum:      run,
		DelayCond:   delay,
		CueLeftPic:  fmt.Sprintf("stim%d.jpg", left),
		CueRightPic: fmt.Sprintf("stim%d.jpg", right),
		Outcome:     f64(outcome),
	}
	if chosen > 0 {
		r.CueChosen = fmt.Sprintf("stim%d.jpg", chosen)
	}
	return r
}

// syntheticRaw builds nSubj subjects x nRun runs x nTrial trials, shuffled.
func syntheticRaw(subjectIDs []string, nRun, nTrial int) []RawTrialRecord {
	var rows []RawTrialRecord
	row := 1
	// Emit in reverse so the normalizer has to sort.
	for s := len(subjectIDs) - 1; s >= 0; s-- {
		for run := nRun; run >= 1; run-- {
			for tr := nTrial; tr >= 1; tr-- {
				left, right := 1+(tr%3), 4+(tr%2)
				chosen := left
				if tr%2 == 0 {
					chosen = right
				}
				rows = append(rows, rawTrial(row, subjectIDs[s], run, tr, 1+(run%2), left, right, chosen, float64(tr%2)))
				row++
			}
		}
	}
	return rows
}

func mustNormalizer(t *testing.T, enc DelayEncoding) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(NormalizerConfig{DelayEncoding: enc})
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	return n
}

// #endregion helpers

// #region config-tests
func TestNewNormalizer_RequiresDelayEncoding(t *testing.T) {
	_, err := NewNormalizer(NormalizerConfig{})
	if err == nil {
		t.Fatal("expected error when delay encoding is unset")
	}
	if _, err := NewNormalizer(NormalizerConfig{DelayEncoding: "one_based"}); err == nil {
		t.Fatal("expected error for unknown delay encoding")
	}
}

func TestNewNormalizer_DefaultOffset(t *testing.T) {
	n := mustNormalizer(t, DelayAsSupplied)
	if n.config.CueCharOffset != DefaultCueCharOffset {
		t.Errorf("expected default offset %d, got %d", DefaultCueCharOffset, n.config.CueCharOffset)
	}
	if _, err := NewNormalizer(NormalizerConfig{DelayEncoding: DelayAsSupplied, CueCharOffset: -2}); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

// #endregion config-tests

// #region normalize-tests
func TestNormalize_SubjectBijectionPreservesOrder(t *testing.T) {
	n := mustNormalizer(t, DelayZeroBased)
	raw := syntheticRaw([]string{"104", "7", "52"}, 2, 3)

	out, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != len(raw) {
		t.Fatalf("expected %d rows, got %d", len(raw), len(out))
	}

	// Sorted numeric order is 7, 52, 104 -> 1, 2, 3.
	want := map[string]int{"7": 1, "52": 2, "104": 3}
	for i, r := range out {
		if r.Subject < 1 || r.Subject > 3 {
			t.Fatalf("row %d: subject %d outside 1..3", i, r.Subject)
		}
		if i > 0 && out[i-1].Subject > r.Subject {
			t.Fatalf("row %d: subjects not non-decreasing", i)
		}
	}
	counts := map[int]int{}
	for _, r := range out {
		counts[r.Subject]++
	}
	for id, dense := range want {
		if counts[dense] != 6 {
			t.Errorf("subject %s (dense %d): expected 6 rows, got %d", id, dense, counts[dense])
		}
	}
}

func TestNormalize_SortedBySubjectRunTrial(t *testing.T) {
	n := mustNormalizer(t, DelayAsSupplied)
	out, err := n.Normalize(syntheticRaw([]string{"2", "1"}, 2, 3))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for i := 1; i < len(out); i++ {
		a, b := out[i-1], out[i]
		if a.Subject > b.Subject ||
			(a.Subject == b.Subject && a.RunNum > b.RunNum) ||
			(a.Subject == b.Subject && a.RunNum == b.RunNum && a.TrialNum >= b.TrialNum) {
			t.Fatalf("rows %d,%d out of order: %+v then %+v", i-1, i, a, b)
		}
	}
}

func TestNormalize_UnchosenRule(t *testing.T) {
	n := mustNormalizer(t, DelayAsSupplied)
	raw := []RawTrialRecord{
		rawTrial(1, "1", 1, 1, 1, 2, 5, 2, 1), // left chosen
		rawTrial(2, "1", 1, 2, 1, 2, 5, 5, 0), // right chosen
		rawTrial(3, "1", 1, 3, 1, 3, 6, 0, 0), // missed
	}
	raw[2].Outcome = nil

	out, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if out[0].Unchosen != 5 {
		t.Errorf("left chosen: expected unchosen 5, got %d", out[0].Unchosen)
	}
	if out[1].Unchosen != 2 {
		t.Errorf("right chosen: expected unchosen 2, got %d", out[1].Unchosen)
	}
	// Missed trials fall back to the left cue.
	if !out[2].IsMissed() {
		t.Fatal("expected missed trial to have nil chosen")
	}
	if out[2].Unchosen != 3 {
		t.Errorf("missed trial: expected unchosen = left cue 3, got %d", out[2].Unchosen)
	}
	if out[2].Outcome != nil {
		t.Errorf("expected nil outcome to pass through")
	}

	for i, r := range out {
		if r.Unchosen != r.CueLeft && r.Unchosen != r.CueRight {
			t.Errorf("row %d: unchosen %d not in {%d,%d}", i, r.Unchosen, r.CueLeft, r.CueRight)
		}
		if r.Chosen != nil && *r.Chosen == r.Unchosen {
			t.Errorf("row %d: unchosen equals chosen %d", i, *r.Chosen)
		}
	}
}

func TestNormalize_TrialIndexInjectivePerSubject(t *testing.T) {
	n := mustNormalizer(t, DelayAsSupplied)
	out, err := n.Normalize(syntheticRaw([]string{"1", "2"}, 3, 4))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	seen := map[[2]int]bool{}
	for _, r := range out {
		k := [2]int{r.Subject, r.Trial}
		if seen[k] {
			t.Fatalf("duplicate trial index %d for subject %d", r.Trial, r.Subject)
		}
		seen[k] = true
		if r.Trial != r.TrialNum+r.RunNum*4 {
			t.Errorf("trial index %d != %d + %d*4", r.Trial, r.TrialNum, r.RunNum)
		}
	}
}

func TestNormalize_MaxTrialIsGlobal(t *testing.T) {
	n := mustNormalizer(t, DelayAsSupplied)
	raw := []RawTrialRecord{
		rawTrial(1, "1", 1, 1, 1, 1, 2, 1, 1),
		rawTrial(2, "1", 1, 2, 1, 1, 2, 1, 1),
		rawTrial(3, "2", 1, 1, 1, 1, 2, 1, 1),
		rawTrial(4, "2", 1, 5, 1, 1, 2, 1, 1),
	}
	out, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	// Subject 1 only reaches trial 2 but still uses the dataset-wide max of 5.
	if out[0].Trial != 1+1*5 {
		t.Errorf("expected trial index 6, got %d", out[0].Trial)
	}
}

func TestNormalize_DelayEncoding(t *testing.T) {
	raw := []RawTrialRecord{rawTrial(1, "1", 1, 1, 2, 1, 2, 1, 1)}

	tests := []struct {
		enc  DelayEncoding
		want int
	}{
		{DelayZeroBased, 1},
		{DelayAsSupplied, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.enc), func(t *testing.T) {
			out, err := mustNormalizer(t, tt.enc).Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if out[0].DelayCond != tt.want {
				t.Errorf("got %d, want %d", out[0].DelayCond, tt.want)
			}
		})
	}
}

func TestNormalize_SchemaErrors(t *testing.T) {
	base := func() RawTrialRecord { return rawTrial(7, "1", 1, 1, 1, 1, 2, 1, 1) }

	tests := []struct {
		name   string
		mutate func(*RawTrialRecord)
		column string
	}{
		{"short-left-label", func(r *RawTrialRecord) { r.CueLeftPic = "a.b" }, "CueLeftPic"},
		{"non-digit-right", func(r *RawTrialRecord) { r.CueRightPic = "stimX.jpg" }, "CueRightPic"},
		{"non-digit-chosen", func(r *RawTrialRecord) { r.CueChosen = "stim?.png" }, "CueChosen"},
		{"zero-trial", func(r *RawTrialRecord) { r.TrialNum = 0 }, "TrialNum"},
		{"negative-run", func(r *RawTrialRecord) { r.RunNum = -1 }, "RunNum"},
		{"empty-subject", func(r *RawTrialRecord) { r.Subject = " " }, "SubjNum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			_, err := mustNormalizer(t, DelayAsSupplied).Normalize([]RawTrialRecord{r})
			if !errors.Is(err, apperr.ErrSchema) {
				t.Fatalf("expected schema error, got %v", err)
			}
			var se *apperr.SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SchemaError, got %T", err)
			}
			if se.Column != tt.column {
				t.Errorf("expected column %s, got %s", tt.column, se.Column)
			}
			if se.Row != 7 && tt.column != "SubjNum" {
				t.Errorf("expected row 7, got %d", se.Row)
			}
		})
	}
}

func TestNormalize_DuplicateTrial(t *testing.T) {
	raw := []RawTrialRecord{
		rawTrial(1, "1", 1, 1, 1, 1, 2, 1, 1),
		rawTrial(2, "1", 1, 1, 1, 1, 2, 2, 0),
	}
	_, err := mustNormalizer(t, DelayAsSupplied).Normalize(raw)
	if !errors.Is(err, apperr.ErrSchema) {
		t.Fatalf("expected schema error for duplicate trial, got %v", err)
	}
}

func TestNormalize_Empty(t *testing.T) {
	_, err := mustNormalizer(t, DelayAsSupplied).Normalize(nil)
	if !errors.Is(err, apperr.ErrSchema) {
		t.Fatalf("expected schema error for empty table, got %v", err)
	}
}

func TestNormalize_TwoSubjectsTwoRunsThreeTrials(t *testing.T) {
	out, err := mustNormalizer(t, DelayZeroBased).Normalize(syntheticRaw([]string{"11", "30"}, 2, 3))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(out))
	}
	maxTrial := 0
	for _, r := range out {
		maxTrial = max(maxTrial, r.Trial)
	}
	if maxTrial != 9 {
		// run 2, trial 3 -> 3 + 2*3
		t.Errorf("expected max trial index 9, got %d", maxTrial)
	}
}

func TestNormalize_ZeroBasedRuns(t *testing.T) {
	var raw []RawTrialRecord
	row := 1
	for _, subj := range []string{"11", "30"} {
		for run := 0; run <= 1; run++ {
			for tr := 1; tr <= 3; tr++ {
				raw = append(raw, rawTrial(row, subj, run, tr, 1, 1, 2, 1, 1))
				row++
			}
		}
	}
	out, err := mustNormalizer(t, DelayZeroBased).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(out))
	}
	maxTrial := 0
	for _, r := range out {
		maxTrial = max(maxTrial, r.Trial)
	}
	if maxTrial != 6 {
		// run 1, trial 3 -> 3 + 1*3
		t.Errorf("expected max trial index 6, got %d", maxTrial)
	}
	if out[0].Trial != 1 {
		t.Errorf("expected first trial index 1, got %d", out[0].Trial)
	}
}

func TestNormalize_EquivalentSubjectSpellings(t *testing.T) {
	raw := []RawTrialRecord{
		rawTrial(1, "1", 1, 1, 1, 1, 2, 1, 1),
		rawTrial(2, "2", 1, 1, 1, 1, 2, 1, 1),
		rawTrial(3, " 01", 1, 2, 1, 1, 2, 1, 1),
		rawTrial(4, "2.0", 1, 2, 1, 1, 2, 1, 1),
	}
	out, err := mustNormalizer(t, DelayAsSupplied).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	got := make([]int, len(out))
	for i, r := range out {
		got[i] = r.Subject
	}
	if diff := cmp.Diff([]int{1, 1, 2, 2}, got); diff != "" {
		t.Errorf("subjects (-want +got):\n%s", diff)
	}
}

func TestCanonicalID(t *testing.T) {
	tests := map[string]string{
		"01": "1", " 7 ": "7", "101.0": "101", "A12": "A12", "1.5": "1.5", "NaN": "NaN",
	}
	for in, want := range tests {
		if got := canonicalID(in); got != want {
			t.Errorf("canonicalID(%q) = %q, want %q", in, got, want)
		}
	}
}

// #endregion normalize-tests

// #region renormalize-tests
func TestRenormalize_Idempotent(t *testing.T) {
	n := mustNormalizer(t, DelayZeroBased)
	first, err := n.Normalize(syntheticRaw([]string{"9", "3", "5"}, 2, 3))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	second, err := n.Renormalize(first)
	if err != nil {
		t.Fatalf("Renormalize: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("renormalize changed canonical table (-first +second):\n%s", diff)
	}

	third, err := n.Renormalize(second)
	if err != nil {
		t.Fatalf("Renormalize: %v", err)
	}
	if diff := cmp.Diff(second, third); diff != "" {
		t.Errorf("second renormalize not stable:\n%s", diff)
	}
}

func TestRenormalize_DensifiesGaps(t *testing.T) {
	n := mustNormalizer(t, DelayAsSupplied)
	canon := []CanonicalTrial{
		{Subject: 8, TrialNum: 1, RunNum: 1, Trial: 99},
		{Subject: 3, TrialNum: 1, RunNum: 1, Trial: 99},
	}
	out, err := n.Renormalize(canon)
	if err != nil {
		t.Fatalf("Renormalize: %v", err)
	}
	if out[0].Subject != 1 || out[1].Subject != 2 {
		t.Errorf("expected subjects 1,2 got %d,%d", out[0].Subject, out[1].Subject)
	}
	if out[0].Trial != 2 {
		t.Errorf("expected recomputed trial index 2, got %d", out[0].Trial)
	}
}

// #endregion renormalize-tests
