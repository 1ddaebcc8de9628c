package domain

import (
	"fmt"
	"strconv"
	"strings"
)

var scoreWords = map[int]string{
	1: "Poor",
	2: "Fair",
	3: "Good",
	4: "Very Good",
	5: "Excellent",
}

// ScoreLabel returns the canonical label for a numeric score, e.g. "4 - Very Good".
func ScoreLabel(n int) string {
	word, ok := scoreWords[n]
	if !ok {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%d - %s", n, word)
}

// ParseScoreLabel converts a score label to its numeric value in [1,5].
// Accepted forms: "4", "4 - Very Good", "4/5", "4.0" and the bare word "very good".
func ParseScoreLabel(label string) (int, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return 0, fmt.Errorf("empty score label")
	}
	lower := strings.ToLower(trimmed)
	for n, word := range scoreWords {
		if lower == strings.ToLower(word) {
			return n, nil
		}
	}

	end := 0
	for end < len(trimmed) && (trimmed[end] == '-' || trimmed[end] == '+' || trimmed[end] == '.' || (trimmed[end] >= '0' && trimmed[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("score label %q has no numeric value", label)
	}
	value, err := strconv.ParseFloat(trimmed[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("score label %q: %w", label, err)
	}
	n := int(value)
	if float64(n) != value {
		return 0, fmt.Errorf("score label %q is not a whole number", label)
	}
	if err := CheckScore(n); err != nil {
		return 0, err
	}
	return n, nil
}

// CheckScore rejects numeric scores outside [MinScore, MaxScore].
func CheckScore(n int) error {
	if n < MinScore || n > MaxScore {
		return fmt.Errorf("score %d outside [%d,%d]", n, MinScore, MaxScore)
	}
	return nil
}

// CheckWeight rejects weights outside [MinWeight, MaxWeight].
func CheckWeight(w int) error {
	if w < MinWeight || w > MaxWeight {
		return fmt.Errorf("weight %d outside [%d,%d]", w, MinWeight, MaxWeight)
	}
	return nil
}

// ScoreBucket places a numeric score into the distribution buckets "1-2", "3" and "4-5".
func ScoreBucket(n int) string {
	switch {
	case n <= 2:
		return "1-2"
	case n == 3:
		return "3"
	default:
		return "4-5"
	}
}

// ScoreBuckets lists distribution buckets in display order.
func ScoreBuckets() []string {
	return []string{"1-2", "3", "4-5"}
}
