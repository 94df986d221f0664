package discount

// ComputeAmount determines the monetary value of a rule for the given
// subtotal. deliveryFee is the platform standard delivery fee credited by
// free-delivery promotions. Pure: recomputation always starts from the
// current subtotal, never from a previous amount.
func ComputeAmount(r Rule, subtotal, deliveryFee Money) Money {
	if subtotal < 0 {
		subtotal = 0
	}
	if r.FreeDelivery {
		if deliveryFee < 0 {
			return 0
		}
		return deliveryFee
	}
	var amount Money
	if r.PercentBps != nil {
		if *r.PercentBps <= 0 {
			return 0
		}
		amount = (subtotal * Money(*r.PercentBps)) / 10000
		if r.MaxDiscount != nil && amount > *r.MaxDiscount {
			amount = *r.MaxDiscount
		}
	} else {
		amount = r.Value
		// Fixed credits are clamped so a large voucher can never drive the
		// order total negative.
		if amount > subtotal {
			amount = subtotal
		}
	}
	if amount < 0 {
		return 0
	}
	return amount
}
