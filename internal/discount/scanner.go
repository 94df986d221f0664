package discount

import (
	"time"

	"github.com/google/uuid"
)

// scanAutoApply evaluates every automatic promotion in the snapshot and
// attaches the eligible ones that are not already on the ledger. Eligibility
// failures are consumed silently on this path. Re-running with unchanged
// inputs is a no-op; the ledger's duplicate guard makes the scan idempotent.
//
// A promotion the user removed manually is fair game again on the next
// qualifying scan. That matches the product behaviour as shipped; see
// DESIGN.md before changing it.
func scanAutoApply(ledger *Ledger, promos []Promotion, now time.Time, restaurantID uuid.UUID, subtotal, deliveryFee Money) (applied []Applied, changed bool) {
	for _, p := range promos {
		if !p.Automatic() {
			continue
		}
		if ledger.Contains(p.ID, KindPromotion) {
			continue
		}
		rule := PromotionRule(p)
		if err := rule.Eligible(now, restaurantID, subtotal); err != nil {
			continue
		}
		amount := ComputeAmount(rule, subtotal, deliveryFee)
		if ledger.Apply(rule, amount, true, now) {
			applied = append(applied, Applied{
				Rule:      rule,
				SourceID:  rule.SourceID,
				Kind:      rule.Kind,
				Label:     rule.Label,
				Amount:    amount,
				Auto:      true,
				AppliedAt: now,
			})
			changed = true
		}
	}
	return applied, changed
}
