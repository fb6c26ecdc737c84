package finance

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// MatchSuggestion is a proposed pair of open items whose remaining amounts
// cancel out exactly
type MatchSuggestion struct {
	ControlAccount ControlAccount `json:"control_account"`
	Currency       string         `json:"currency"`
	Debit          *OpenItem      `json:"debit"`
	Credit         *OpenItem      `json:"credit"`
}

// Group turns the suggestion into a clearing group of full remaining amounts
func (s MatchSuggestion) Group() ClearingGroup {
	return ClearingGroup{Members: []ClearingMember{
		{OpenItemID: s.Debit.ID, Amount: s.Debit.RemainingAmount},
		{OpenItemID: s.Credit.ID, Amount: s.Credit.RemainingAmount},
	}}
}

// SuggestMatches pairs positive and negative open items whose remaining
// amounts cancel within tolerance. Items are only paired within the same control account
// and currency. Each debit, oldest first, takes the first unclaimed credit
// of the same size.
//
// This is a greedy exact-amount pairing and not a subset-sum solver: matches
// that need three or more items or near-equal amounts are left for manual
// clearing.
func SuggestMatches(items []*OpenItem, tolerance decimal.Decimal) []MatchSuggestion {
	clearable := lo.Filter(items, func(o *OpenItem, _ int) bool {
		return o.Status.IsClearable() && !o.RemainingAmount.IsZero()
	})
	slices.SortStableFunc(clearable, func(a, b *OpenItem) int {
		if c := a.DocumentDate.Compare(b.DocumentDate); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentNumber, b.DocumentNumber)
	})

	type bucket struct {
		control  ControlAccount
		currency string
	}
	groups := lo.GroupBy(clearable, func(o *OpenItem) bucket {
		return bucket{control: o.ControlAccount, currency: o.Currency}
	})
	keys := lo.Keys(groups)
	slices.SortFunc(keys, func(a, b bucket) int {
		if c := cmp.Compare(a.control, b.control); c != 0 {
			return c
		}
		return cmp.Compare(a.currency, b.currency)
	})

	var out []MatchSuggestion
	for _, key := range keys {
		debits, credits := lo.FilterReject(groups[key], func(o *OpenItem, _ int) bool {
			return o.RemainingAmount.IsPositive()
		})
		claimed := make([]bool, len(credits))
		for _, debit := range debits {
			for i, credit := range credits {
				if claimed[i] {
					continue
				}
				if withinTolerance(debit.RemainingAmount.Add(credit.RemainingAmount), tolerance) {
					claimed[i] = true
					out = append(out, MatchSuggestion{
						ControlAccount: key.control,
						Currency:       key.currency,
						Debit:          debit,
						Credit:         credit,
					})
					break
				}
			}
		}
	}
	return out
}
