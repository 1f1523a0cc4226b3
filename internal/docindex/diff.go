package docindex

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of context lines in Diff hunks.
const DiffContext = 3

// Diff returns a unified diff between the canonical JSON encodings of a and
// b, labelled with aName and bName. Equal indexes produce an empty string.
func Diff(aName string, a *Index, bName string, b *Index) (string, error) {
	ea, err := EncodeJSON(a)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", aName, err)
	}
	eb, err := EncodeJSON(b)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", bName, err)
	}
	if string(ea) == string(eb) {
		return "", nil
	}
	u := difflib.UnifiedDiff{
		A:        splitLines(string(ea)),
		B:        splitLines(string(eb)),
		FromFile: aName,
		ToFile:   bName,
		Context:  DiffContext,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("diffing search indexes: %w", err)
	}
	return s, nil
}

// splitLines keeps line terminators and ends every line with one, so the
// last line diffs cleanly.
func splitLines(s string) []string {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	lines := strings.SplitAfter(s, "\n")
	return lines[:len(lines)-1]
}
