package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/openshelf/circulation-backend/pkg/db/models"
	"github.com/openshelf/circulation-backend/pkg/enums"
)

// Per-period penalties by cadence.
var (
	dailyRate    = decimal.RequireFromString("1.5")
	weeklyRate   = decimal.RequireFromString("2.5")
	biweeklyRate = decimal.RequireFromString("5.0")
	monthlyRate  = decimal.RequireFromString("8.0")
)

const day = 24 * time.Hour

// CadenceForTier returns the fee cadence bound to a loan at checkout.
// The binding is permanent; later tier changes never re-price a loan.
func CadenceForTier(tier enums.PatronTier) enums.FeeCadence {
	switch tier {
	case enums.PatronTierStudent:
		return enums.FeeCadenceWeekly
	case enums.PatronTierFaculty:
		return enums.FeeCadenceBiweekly
	case enums.PatronTierSenior:
		return enums.FeeCadenceMonthly
	default:
		return enums.FeeCadenceDaily
	}
}

// RateFor returns the per-period penalty for a cadence.
func RateFor(cadence enums.FeeCadence) decimal.Decimal {
	switch cadence {
	case enums.FeeCadenceWeekly:
		return weeklyRate
	case enums.FeeCadenceBiweekly:
		return biweeklyRate
	case enums.FeeCadenceMonthly:
		return monthlyRate
	default:
		return dailyRate
	}
}

// Amount computes the fee owed when a loan with the given cadence and due
// date is settled at the effective time. Rounding per cadence: daily and
// monthly truncate to whole elapsed periods, weekly rounds up to the next
// whole week, biweekly rounds truncated weeks up to the next pair. Never
// negative.
func Amount(cadence enums.FeeCadence, dueAt, effective time.Time) decimal.Decimal {
	var units int64
	switch cadence {
	case enums.FeeCadenceWeekly:
		units = ceilDiv(effective.Sub(dueAt), 7*day)
	case enums.FeeCadenceBiweekly:
		weeks := int64(effective.Sub(dueAt) / (7 * day))
		units = (weeks + 1) / 2
	case enums.FeeCadenceMonthly:
		units = monthsBetween(dueAt, effective)
	default:
		units = int64(effective.Sub(dueAt) / day)
	}
	if units <= 0 {
		return decimal.Zero
	}
	return RateFor(cadence).Mul(decimal.NewFromInt(units))
}

// ForLoan evaluates the loan's bound cadence against its return timestamp
// when set, otherwise against now.
//
// Returned loans are special-cased: daily, biweekly and monthly report 0
// once the loan is RETURNED, while weekly reports 0 only when the return
// happened before the due date. The asymmetry is intentional and kept.
func ForLoan(loan *models.LoanRecord, now time.Time) decimal.Decimal {
	if loan == nil {
		return decimal.Zero
	}

	effective := now
	if loan.ReturnAt != nil {
		effective = *loan.ReturnAt
	}

	if loan.Status == enums.LoanStatusReturned {
		if loan.FeeCadence != enums.FeeCadenceWeekly {
			return decimal.Zero
		}
		if loan.ReturnAt != nil && loan.ReturnAt.Before(loan.DueAt) {
			return decimal.Zero
		}
	}

	return Amount(loan.FeeCadence, loan.DueAt, effective)
}

func ceilDiv(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + unit - 1) / unit)
}

// monthsBetween counts whole calendar months from a to b, truncating any
// partial month. Zero when b is not after a.
func monthsBetween(a, b time.Time) int64 {
	if !b.After(a) {
		return 0
	}
	months := int64(b.Year()-a.Year())*12 + int64(b.Month()-a.Month())
	anchored := a.AddDate(0, int(months), 0)
	if anchored.After(b) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
