package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithinTolerance reports whether |a - b| <= tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// IsWholeCents reports whether amount has no digits beyond the second decimal place.
func IsWholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(2))
}

// SumAmounts adds all amounts together.
func SumAmounts(amounts ...decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	return sum
}

// FloorFraction returns floor(amount * ratio) in whole currency units.
func FloorFraction(amount, ratio decimal.Decimal) decimal.Decimal {
	return amount.Mul(ratio).Floor()
}

// Percentage returns part/whole*100 rounded to two places, or zero when whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from -> to, ignoring time of day.
func DaysBetween(from, to time.Time) int {
	to = to.In(from.Location())
	return int(StartOfDay(to).Sub(StartOfDay(from)).Hours() / 24)
}

// IsDateOverdue reports whether the calendar day of dueDate has ended by now.
// Days are taken in dueDate's location, so a loan due today is not yet overdue.
func IsDateOverdue(dueDate, now time.Time) bool {
	return StartOfDay(now.In(dueDate.Location())).After(StartOfDay(dueDate))
}
