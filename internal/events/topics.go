package events

// Topic constants for engine events emitted on ledger mutations.
const (
	TopicDiscountApplied    = "discount.applied"
	TopicDiscountRemoved    = "discount.removed"
	TopicDiscountEvicted    = "discount.evicted"
	TopicDiscountRecomputed = "discount.recomputed"
	TopicSessionClosed      = "session.closed"
)

// DefaultTopics returns the canonical list of topics notifiers may observe.
func DefaultTopics() []string {
	return []string{
		TopicDiscountApplied,
		TopicDiscountRemoved,
		TopicDiscountEvicted,
		TopicDiscountRecomputed,
		TopicSessionClosed,
	}
}
