package valueobject

import "fmt"

// ScanVerdict is the outcome of a content scan over a candidate body.
type ScanVerdict string

// Scan verdict constants.
const (
	ScanVerdictClear   ScanVerdict = "clear"
	ScanVerdictFlagged ScanVerdict = "flagged"
)

var validScanVerdicts = map[ScanVerdict]bool{
	ScanVerdictClear:   true,
	ScanVerdictFlagged: true,
}

// NewScanVerdict creates a new ScanVerdict with validation.
func NewScanVerdict(verdict string) (ScanVerdict, error) {
	v := ScanVerdict(verdict)
	if !validScanVerdicts[v] {
		return "", fmt.Errorf("invalid scan verdict: %s", verdict)
	}
	return v, nil
}

// String returns the string representation of the verdict.
func (v ScanVerdict) String() string {
	return string(v)
}
