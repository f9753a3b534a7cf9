package replay

import (
	"fmt"
	"strings"
)

// Compare checks a replayed summary against the expected one and returns an
// error wrapping ErrReplayMismatch that lists every differing field.
// Digests are compared only when expected carries them.
func Compare(expected, actual Summary) error {
	var diffs []string
	diff := func(field string, want, got any) {
		diffs = append(diffs, fmt.Sprintf("%s: want %v, got %v", field, want, got))
	}

	if expected.Score != actual.Score {
		diff("score", expected.Score, actual.Score)
	}
	if expected.Accuracy != actual.Accuracy {
		diff("accuracy", expected.Accuracy, actual.Accuracy)
	}
	if expected.MaxCombo != actual.MaxCombo {
		diff("max_combo", expected.MaxCombo, actual.MaxCombo)
	}
	if expected.Perfect != actual.Perfect || expected.Good != actual.Good || expected.Miss != actual.Miss {
		diff("judgments",
			fmt.Sprintf("%d/%d/%d", expected.Perfect, expected.Good, expected.Miss),
			fmt.Sprintf("%d/%d/%d", actual.Perfect, actual.Good, actual.Miss))
	}
	if expected.JudgmentDigest != "" && expected.JudgmentDigest != actual.JudgmentDigest {
		diff("judgment_digest", expected.JudgmentDigest, actual.JudgmentDigest)
	}
	if expected.CrowdDigest != "" && expected.CrowdDigest != actual.CrowdDigest {
		diff("crowd_digest", expected.CrowdDigest, actual.CrowdDigest)
	}

	if len(diffs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", strings.Join(diffs, "; "), ErrReplayMismatch)
}
