package discount

import (
	"time"

	"github.com/google/uuid"
)

// Ledger owns the set of discounts applied to a single checkout session.
// Entries keep insertion order; at most one entry exists per (source id,
// kind). The ledger is not safe for concurrent use; the session event loop
// is its only caller.
type Ledger struct {
	entries []Applied
}

// Contains reports whether a discount from the given source is applied.
func (l *Ledger) Contains(sourceID uuid.UUID, kind Kind) bool {
	for _, e := range l.entries {
		if e.SourceID == sourceID && e.Kind == kind {
			return true
		}
	}
	return false
}

// Apply appends the rule with the given amount. It is a no-op when the
// source is already present, reporting whether the ledger changed.
func (l *Ledger) Apply(rule Rule, amount Money, auto bool, now time.Time) bool {
	if l.Contains(rule.SourceID, rule.Kind) {
		return false
	}
	l.entries = append(l.entries, Applied{
		Rule:      rule,
		SourceID:  rule.SourceID,
		Kind:      rule.Kind,
		Label:     rule.Label,
		Amount:    amount,
		Auto:      auto,
		AppliedAt: now,
	})
	return true
}

// Remove deletes the entry for the given source, reporting whether it existed.
func (l *Ledger) Remove(sourceID uuid.UUID, kind Kind) bool {
	for i, e := range l.entries {
		if e.SourceID == sourceID && e.Kind == kind {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Refresh swaps in an updated rule definition for an applied entry, used
// when a catalog refresh changes a promotion that is already on the ledger.
func (l *Ledger) Refresh(rule Rule) {
	for i := range l.entries {
		if l.entries[i].SourceID == rule.SourceID && l.entries[i].Kind == rule.Kind {
			l.entries[i].Rule = rule
			l.entries[i].Label = rule.Label
			return
		}
	}
}

// Recompute re-validates every entry against the current subtotal and
// updates amounts from scratch. Entries that fail eligibility are evicted.
// It returns the evicted entries and whether anything visible changed.
func (l *Ledger) Recompute(now time.Time, restaurantID uuid.UUID, subtotal, deliveryFee Money) (evicted []Applied, changed bool) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if err := e.Rule.Eligible(now, restaurantID, subtotal); err != nil {
			evicted = append(evicted, e)
			changed = true
			continue
		}
		amount := ComputeAmount(e.Rule, subtotal, deliveryFee)
		if amount != e.Amount {
			e.Amount = amount
			changed = true
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return evicted, changed
}

// Entries returns a copy of the applied discounts in insertion order.
func (l *Ledger) Entries() []Applied {
	out := make([]Applied, len(l.entries))
	copy(out, l.entries)
	return out
}

// Total sums the amounts of all applied discounts.
func (l *Ledger) Total() Money {
	var total Money
	for _, e := range l.entries {
		total += e.Amount
	}
	return total
}

// Len reports the number of applied discounts.
func (l *Ledger) Len() int {
	return len(l.entries)
}
