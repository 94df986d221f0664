package checkout

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piragazh/feasto/internal/common"
	"github.com/piragazh/feasto/internal/discount"
	"github.com/piragazh/feasto/internal/events"
	"github.com/piragazh/feasto/internal/obs"
)

// ErrSessionNotFound is returned when a session id does not map to a live
// checkout session. Expired sessions surface the same way.
var ErrSessionNotFound = common.NewAppError("SESSION_NOT_FOUND", "checkout session not found", http.StatusNotFound, nil)

// Service owns the live checkout sessions. Each session runs its own update
// loop; the service only routes requests to the right one, expires idle
// sessions and pushes catalog refreshes into the survivors.
type Service struct {
	Loader      discount.Loader
	Events      *events.Bus
	Logger      zerolog.Logger
	DeliveryFee discount.Money
	SessionTTL  time.Duration
	Now         func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*liveSession
}

type liveSession struct {
	session  *discount.Session
	lastSeen time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 30 * time.Minute
}

// Open creates a session for a restaurant, loads its promotion snapshot and
// computes the initial ledger against the given subtotal.
func (s *Service) Open(ctx context.Context, restaurantID uuid.UUID, subtotal discount.Money) (*discount.Session, error) {
	sess, err := discount.NewSession(discount.SessionConfig{
		RestaurantID: restaurantID,
		Loader:       s.Loader,
		DeliveryFee:  s.DeliveryFee,
		Now:          s.Now,
		OnChange:     s.onChange,
		Events:       s.Events,
		Logger:       s.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := sess.RefreshCatalog(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	if err := sess.SetSubtotal(ctx, subtotal); err != nil {
		sess.Close()
		return nil, err
	}

	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[uuid.UUID]*liveSession)
	}
	s.sessions[sess.ID] = &liveSession{session: sess, lastSeen: s.now()}
	open := len(s.sessions)
	s.mu.Unlock()

	obs.SetOpenSessions(open)
	s.Logger.Info().
		Str("session_id", sess.ID.String()).
		Str("restaurant_id", restaurantID.String()).
		Int64("subtotal", subtotal).
		Msg("checkout session opened")
	return sess, nil
}

// Get returns a live session and refreshes its idle deadline.
func (s *Service) Get(id uuid.UUID) (*discount.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	live.lastSeen = s.now()
	return live.session, true
}

// CloseSession tears down a session explicitly.
func (s *Service) CloseSession(id uuid.UUID) bool {
	s.mu.Lock()
	live, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	open := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return false
	}
	live.session.Close()
	obs.SetOpenSessions(open)
	return true
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Run drives the maintenance loop: idle sessions are expired and surviving
// ones get a catalog refresh so mid-session publishes reach them. Blocks
// until ctx is cancelled, then closes every remaining session.
func (s *Service) Run(ctx context.Context, refreshEvery time.Duration) {
	if refreshEvery <= 0 {
		refreshEvery = time.Minute
	}
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.ttl())

	s.mu.Lock()
	var expired []*discount.Session
	var alive []*discount.Session
	for id, live := range s.sessions {
		if live.lastSeen.Before(cutoff) {
			expired = append(expired, live.session)
			delete(s.sessions, id)
			continue
		}
		alive = append(alive, live.session)
	}
	open := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
		s.Logger.Info().Str("session_id", sess.ID.String()).Msg("checkout session expired")
	}
	obs.SetOpenSessions(open)
	for _, sess := range alive {
		if err := sess.RefreshCatalog(ctx); err != nil && ctx.Err() == nil {
			obs.ObserveCatalogRefresh("error")
			s.Logger.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("push catalog refresh")
			continue
		}
		obs.ObserveCatalogRefresh("ok")
	}
}

func (s *Service) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()
	for _, live := range sessions {
		live.session.Close()
	}
}

func (s *Service) onChange(sessionID uuid.UUID, applied []discount.Applied, total discount.Money) {
	obs.ObserveLedgerTotal(total)
	s.Logger.Debug().
		Str("session_id", sessionID.String()).
		Int("applied", len(applied)).
		Int64("total", total).
		Msg("ledger changed")
}
