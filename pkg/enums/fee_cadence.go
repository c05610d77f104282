package enums

import "fmt"

// FeeCadence identifies which late-fee variant a loan is bound to. The
// cadence is chosen from the patron tier when the loan is created and is
// immutable for the loan's lifetime.
type FeeCadence string

const (
	FeeCadenceDaily    FeeCadence = "DAILY"
	FeeCadenceWeekly   FeeCadence = "WEEKLY"
	FeeCadenceBiweekly FeeCadence = "BIWEEKLY"
	FeeCadenceMonthly  FeeCadence = "MONTHLY"
)

var validFeeCadences = []FeeCadence{
	FeeCadenceDaily,
	FeeCadenceWeekly,
	FeeCadenceBiweekly,
	FeeCadenceMonthly,
}

// IsValid reports whether the value matches the canonical fee cadence enum.
func (c FeeCadence) IsValid() bool {
	for _, candidate := range validFeeCadences {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseFeeCadence converts raw input into FeeCadence.
func ParseFeeCadence(value string) (FeeCadence, error) {
	for _, candidate := range validFeeCadences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee cadence %q", value)
}
