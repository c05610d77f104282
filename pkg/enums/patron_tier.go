package enums

import "fmt"

// PatronTier classifies patrons; the tier drives the loan cap and the fee
// cadence bound to each loan at checkout.
type PatronTier string

const (
	PatronTierStandard PatronTier = "STANDARD"
	PatronTierStudent  PatronTier = "STUDENT"
	PatronTierFaculty  PatronTier = "FACULTY"
	PatronTierSenior   PatronTier = "SENIOR"
)

var validPatronTiers = []PatronTier{
	PatronTierStandard,
	PatronTierStudent,
	PatronTierFaculty,
	PatronTierSenior,
}

var maxLoansByTier = map[PatronTier]int{
	PatronTierStandard: 1,
	PatronTierStudent:  3,
	PatronTierFaculty:  10,
	PatronTierSenior:   5,
}

// IsValid reports whether the value matches the canonical patron tier enum.
func (t PatronTier) IsValid() bool {
	for _, candidate := range validPatronTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// MaxLoans returns the number of simultaneous active loans the tier allows.
func (t PatronTier) MaxLoans() int {
	if max, ok := maxLoansByTier[t]; ok {
		return max
	}
	return 0
}

// ParsePatronTier converts raw input into PatronTier.
func ParsePatronTier(value string) (PatronTier, error) {
	for _, candidate := range validPatronTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid patron tier %q", value)
}
