package sequence

import (
	"fmt"
	"time"
)

// ResetRule controls when a counter starts again from 1
type ResetRule string

const (
	ResetNever   ResetRule = "NEVER"
	ResetYearly  ResetRule = "YEARLY"
	ResetMonthly ResetRule = "MONTHLY"
	ResetDaily   ResetRule = "DAILY"
)

// IsValid returns true if the rule is known
func (r ResetRule) IsValid() bool {
	switch r {
	case ResetNever, ResetYearly, ResetMonthly, ResetDaily:
		return true
	}
	return false
}

func (r ResetRule) String() string {
	return string(r)
}

// Bucket returns the reset bucket asOf falls into. Counters in different
// buckets are independent.
func (r ResetRule) Bucket(asOf time.Time) string {
	switch r {
	case ResetYearly:
		return fmt.Sprintf("%04d", asOf.Year())
	case ResetMonthly:
		return fmt.Sprintf("%04d-%02d", asOf.Year(), int(asOf.Month()))
	case ResetDaily:
		return asOf.Format("2006-01-02")
	default:
		return ""
	}
}
