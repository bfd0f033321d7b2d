package enums

import "fmt"

// TaxMode states whether line-item amounts already embed tax (inclusive) or
// exclude it (exclusive). It is derived from the owning client's configuration.
type TaxMode string

const (
	TaxModeInclusive TaxMode = "inclusive"
	TaxModeExclusive TaxMode = "exclusive"
)

var validTaxModes = []TaxMode{
	TaxModeInclusive,
	TaxModeExclusive,
}

// String implements fmt.Stringer.
func (m TaxMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known TaxMode.
func (m TaxMode) IsValid() bool {
	for _, candidate := range validTaxModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseTaxMode converts raw input into a TaxMode.
func ParseTaxMode(value string) (TaxMode, error) {
	for _, candidate := range validTaxModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tax mode %q", value)
}
