package embedding

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrEmptyInput = errors.New("embedding input is empty")

// PrepareInput trims text and truncates it to maxChars runes, cutting at the
// last word boundary when one exists in the final fifth of the budget.
func PrepareInput(text string, maxChars int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	return TruncateInput(text, maxChars), nil
}

func TruncateInput(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	cut := runes[:maxChars]
	floor := maxChars - maxChars/5
	for i := len(cut) - 1; i >= floor; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimRightFunc(string(cut[:i]), unicode.IsSpace)
		}
	}
	return string(cut)
}

// checkDimensions rejects vectors that cannot be compared with the corpus.
func checkDimensions(values []float32, want int) error {
	if len(values) == 0 {
		return errors.New("provider returned an empty vector")
	}
	if want > 0 && len(values) != want {
		return &DimensionError{Got: len(values), Want: want}
	}
	return nil
}

type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}
