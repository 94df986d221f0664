package discount

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piragazh/feasto/internal/events"
)

// ErrSessionClosed is returned for operations on a closed session.
var ErrSessionClosed = errors.New("checkout session closed")

// ApplyResult reports the outcome of a manual code application.
type ApplyResult struct {
	Success     bool   `json:"success"`
	Label       string `json:"label,omitempty"`
	AmountSaved Money  `json:"amountSaved,omitempty"`
	ErrorReason Reason `json:"errorReason,omitempty"`
}

// ChangeListener observes the applied set after every ledger mutation.
type ChangeListener func(sessionID uuid.UUID, applied []Applied, total Money)

// SessionConfig wires a session's collaborators.
type SessionConfig struct {
	RestaurantID uuid.UUID
	Loader       Loader
	DeliveryFee  Money
	Now          func() time.Time
	OnChange     ChangeListener
	Events       *events.Bus
	Logger       zerolog.Logger
}

// Session is the per-checkout discount engine. All state mutation runs on a
// single update loop so the ledger is never concurrently touched: subtotal
// ticks, catalog refreshes and user actions are serialized in arrival order.
// Catalog lookups happen on the caller's goroutine; their results are
// re-validated against the current subtotal inside the loop, so a slow
// response can never clobber fresher state.
type Session struct {
	ID uuid.UUID

	restaurantID uuid.UUID
	resolver     Resolver
	loader       Loader
	deliveryFee  Money
	nowFn        func() time.Time
	onChange     ChangeListener
	bus          *events.Bus
	logger       zerolog.Logger

	updates chan func()
	closed  chan struct{}
	once    sync.Once

	// Owned by the update loop.
	subtotal Money
	promos   []Promotion
	ledger   Ledger
}

// NewSession constructs a session and starts its update loop. Callers should
// follow up with RefreshCatalog to load the promotion snapshot.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Loader == nil {
		return nil, errors.New("discount: loader is required")
	}
	if cfg.RestaurantID == uuid.Nil {
		return nil, errors.New("discount: restaurant id is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	id := uuid.New()
	s := &Session{
		ID:           id,
		restaurantID: cfg.RestaurantID,
		resolver:     Resolver{Loader: cfg.Loader},
		loader:       cfg.Loader,
		deliveryFee:  cfg.DeliveryFee,
		nowFn:        now,
		onChange:     cfg.OnChange,
		bus:          cfg.Events,
		logger:       cfg.Logger.With().Str("session_id", id.String()).Logger(),
		updates:      make(chan func(), 16),
		closed:       make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// RestaurantID returns the restaurant the session is scoped to.
func (s *Session) RestaurantID() uuid.UUID {
	return s.restaurantID
}

// Close stops the update loop. Pending updates already queued are dropped.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		if s.bus != nil {
			_, _ = s.bus.Emit(context.Background(), events.TopicSessionClosed, s.ID, nil)
		}
	})
}

// SetSubtotal records a new cart subtotal and runs a full recompute plus an
// auto-apply scan against it.
func (s *Session) SetSubtotal(ctx context.Context, subtotal Money) error {
	if subtotal < 0 {
		subtotal = 0
	}
	return s.do(ctx, func() {
		s.subtotal = subtotal
		s.refreshLedger(ctx, "subtotal")
	})
}

// ApplyCode resolves a user-entered code and attaches the matched discount.
// Eligibility failures come back as a typed result, not an error; the error
// return is reserved for transient catalog failures (fail-closed, the ledger
// stays untouched) and closed sessions.
func (s *Session) ApplyCode(ctx context.Context, raw string) (ApplyResult, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return ApplyResult{ErrorReason: ReasonCodeNotFound}, nil
	}
	// Catalog lookup runs outside the loop: it may be slow and must not
	// block subtotal ticks.
	rule, err := s.resolver.Resolve(ctx, s.restaurantID, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return ApplyResult{ErrorReason: ReasonCodeNotFound}, nil
		}
		s.logger.Warn().Err(err).Str("code", code).Msg("resolve code")
		return ApplyResult{}, err
	}

	var result ApplyResult
	err = s.do(ctx, func() {
		// Validate against the subtotal as it is now, not as it was when the
		// lookup started.
		if s.ledger.Contains(rule.SourceID, rule.Kind) {
			result = ApplyResult{ErrorReason: ReasonAlreadyApplied}
			return
		}
		now := s.nowFn()
		if eligErr := rule.Eligible(now, s.restaurantID, s.subtotal); eligErr != nil {
			reason, _ := ReasonFor(eligErr)
			result = ApplyResult{ErrorReason: reason}
			return
		}
		amount := ComputeAmount(rule, s.subtotal, s.deliveryFee)
		s.ledger.Apply(rule, amount, false, now)
		result = ApplyResult{Success: true, Label: rule.Label, AmountSaved: amount}
		s.emit(ctx, events.TopicDiscountApplied, map[string]any{
			"sourceId": rule.SourceID,
			"kind":     rule.Kind,
			"amount":   amount,
			"manual":   true,
		})
		s.notify()
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// RemoveDiscount detaches an applied discount. Removing an automatic
// promotion does not pin it: the next qualifying scan may reattach it.
func (s *Session) RemoveDiscount(ctx context.Context, sourceID uuid.UUID, kind Kind) error {
	return s.do(ctx, func() {
		if !s.ledger.Remove(sourceID, kind) {
			return
		}
		s.emit(ctx, events.TopicDiscountRemoved, map[string]any{
			"sourceId": sourceID,
			"kind":     kind,
		})
		s.notify()
	})
}

// RefreshCatalog fetches the restaurant's promotion snapshot and reconciles
// the ledger with it: applied promotions pick up their fresh definitions,
// ones no longer published are evicted on recompute, and newly qualifying
// automatic promotions are attached. Fetch failures leave everything as is.
func (s *Session) RefreshCatalog(ctx context.Context) error {
	promos, err := s.loader.ListActivePromotions(ctx, s.restaurantID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("refresh catalog")
		return err
	}
	return s.do(ctx, func() {
		s.promos = promos
		fresh := make(map[uuid.UUID]Promotion, len(promos))
		for _, p := range promos {
			fresh[p.ID] = p
		}
		for _, entry := range s.ledger.Entries() {
			if entry.Kind != KindPromotion {
				continue
			}
			if p, ok := fresh[entry.SourceID]; ok {
				s.ledger.Refresh(PromotionRule(p))
			} else {
				// Dropped from the active set: recompute below evicts it via
				// the inactive check.
				stale := entry.Rule
				stale.Active = false
				s.ledger.Refresh(stale)
			}
		}
		s.refreshLedger(ctx, "catalog")
	})
}

// Discounts returns the applied set and its total as of the latest recompute.
func (s *Session) Discounts(ctx context.Context) ([]Applied, Money, error) {
	var (
		applied []Applied
		total   Money
	)
	err := s.do(ctx, func() {
		applied = s.ledger.Entries()
		total = s.ledger.Total()
	})
	return applied, total, err
}

// Subtotal returns the subtotal the ledger was last computed against.
func (s *Session) Subtotal(ctx context.Context) (Money, error) {
	var subtotal Money
	err := s.do(ctx, func() { subtotal = s.subtotal })
	return subtotal, err
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.updates:
			fn()
		case <-s.closed:
			return
		}
	}
}

// do executes fn on the update loop and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case s.updates <- wrapped:
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refreshLedger runs the recompute pass and the auto-apply scan, then fires
// change notifications when anything visible moved. Loop-only.
func (s *Session) refreshLedger(ctx context.Context, trigger string) {
	now := s.nowFn()
	evicted, recomputed := s.ledger.Recompute(now, s.restaurantID, s.subtotal, s.deliveryFee)
	for _, e := range evicted {
		s.emit(ctx, events.TopicDiscountEvicted, map[string]any{
			"sourceId": e.SourceID,
			"kind":     e.Kind,
			"trigger":  trigger,
		})
	}
	applied, scanned := scanAutoApply(&s.ledger, s.promos, now, s.restaurantID, s.subtotal, s.deliveryFee)
	for _, e := range applied {
		s.emit(ctx, events.TopicDiscountApplied, map[string]any{
			"sourceId": e.SourceID,
			"kind":     e.Kind,
			"amount":   e.Amount,
			"manual":   false,
		})
	}
	if recomputed || scanned {
		s.emit(ctx, events.TopicDiscountRecomputed, map[string]any{
			"trigger":  trigger,
			"subtotal": s.subtotal,
			"total":    s.ledger.Total(),
		})
		s.notify()
	}
}

// notify publishes the current applied set to the change listener. Loop-only.
func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.ID, s.ledger.Entries(), s.ledger.Total())
}

func (s *Session) emit(ctx context.Context, topic string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(ctx, topic, s.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}
