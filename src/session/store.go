package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

var (
	// ErrSessionExpired is returned when a confirmation names a session that
	// is no longer awaiting confirmation — expired, already executed, or
	// superseded.
	ErrSessionExpired = errors.New("session expired or not awaiting confirmation")

	// ErrSessionBusy is returned instead of queueing when a user's previous
	// command is still in flight.
	ErrSessionBusy = errors.New("previous command still executing")
)

// Session is one user's conversational state. All mutating methods assume
// the caller holds the session via Store.Acquire, which serializes the whole
// interpret → assess → confirm → execute cycle per user.
type Session struct {
	mu sync.Mutex

	UserID         uint
	SessionID      string
	State          string
	PendingRequest *model.TradeRequest
	PendingRisk    *model.RiskAssessment
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Store owns the live sessions, one per user. Cross-user access is
// independent; per-user access is exclusive.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[uint]*Session
	now      func() time.Time
}

func NewStore(cfg Config) *Store {
	return &Store{
		ttl:      cfg.TTL,
		sessions: make(map[uint]*Session),
		now:      time.Now,
	}
}

// WithClock overrides the store's clock. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Acquire returns the user's session with its exclusive lock held, creating
// it on first use. It fails fast with ErrSessionBusy when another command
// holds the lock. Expiry is applied lazily here, so a stale
// awaiting-confirmation session comes back already reset to idle.
func (s *Store) Acquire(userID uint) (*Session, func(), error) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		now := s.now()
		sess = &Session{
			UserID:         userID,
			State:          model.SessionStateIdle,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		s.sessions[userID] = sess
	}
	s.mu.Unlock()

	if !sess.mu.TryLock() {
		return nil, nil, ErrSessionBusy
	}

	s.expireLocked(sess)

	release := func() { sess.mu.Unlock() }
	return sess, release, nil
}

// expireLocked resets a session whose inactivity window has passed. Caller
// holds the session lock.
func (s *Store) expireLocked(sess *Session) {
	if sess.State == model.SessionStateIdle {
		return
	}
	if s.now().Sub(sess.LastActivityAt) <= s.ttl {
		return
	}

	logger.WithFields(logger.Fields{
		"user_id":    sess.UserID,
		"session_id": sess.SessionID,
		"state":      sess.State,
	}).Info("Session expired, discarding pending request")

	sess.reset()
}

func (sess *Session) reset() {
	sess.State = model.SessionStateIdle
	sess.SessionID = ""
	sess.PendingRequest = nil
	sess.PendingRisk = nil
}

// Await parks an assessed trade request for confirmation and returns the
// session id the front-end must echo back. A prior pending request is
// replaced — it was only ever advisory until confirmed.
func (s *Store) Await(sess *Session, req model.TradeRequest, assessment model.RiskAssessment) string {
	sess.SessionID = uuid.NewString()
	sess.State = model.SessionStateAwaitingConfirmation
	sess.PendingRequest = &req
	sess.PendingRisk = &assessment
	sess.LastActivityAt = s.now()
	return sess.SessionID
}

// BeginExecute moves an awaiting session into executing, validating the
// confirmation against the stored session id. A second confirmation of the
// same session, or a confirmation after expiry, gets ErrSessionExpired.
func (s *Store) BeginExecute(sess *Session, sessionID string) (model.TradeRequest, model.RiskAssessment, error) {
	if sess.State != model.SessionStateAwaitingConfirmation || sess.SessionID != sessionID {
		return model.TradeRequest{}, model.RiskAssessment{}, ErrSessionExpired
	}

	req := *sess.PendingRequest
	assessment := *sess.PendingRisk

	sess.State = model.SessionStateExecuting
	sess.LastActivityAt = s.now()

	return req, assessment, nil
}

// Resolve returns the session to idle at the end of an execution cycle,
// successful or not.
func (s *Store) Resolve(sess *Session) {
	sess.reset()
	sess.LastActivityAt = s.now()
}

// CancelPending discards an awaiting request without contacting any venue.
func (s *Store) CancelPending(sess *Session, sessionID string) error {
	if sess.State != model.SessionStateAwaitingConfirmation || sess.SessionID != sessionID {
		return ErrSessionExpired
	}
	sess.reset()
	sess.LastActivityAt = s.now()
	return nil
}

// Touch refreshes the inactivity window.
func (s *Store) Touch(sess *Session) {
	sess.LastActivityAt = s.now()
}

// Snapshot renders the session as its persistable record.
func (s *Store) Snapshot(sess *Session) model.UserSession {
	return model.UserSession{
		UserID:         sess.UserID,
		SessionID:      sess.SessionID,
		State:          sess.State,
		PendingRequest: sess.PendingRequest,
		PendingRisk:    sess.PendingRisk,
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
	}
}

// Sweep drops long-idle sessions periodically so the map does not grow
// unbounded. Lazy expiry on access remains the correctness mechanism; this
// only frees memory.
func (s *Store) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-2 * s.ttl)
	for userID, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		idle := sess.State == model.SessionStateIdle && sess.LastActivityAt.Before(cutoff)
		sess.mu.Unlock()

		if idle {
			delete(s.sessions, userID)
		}
	}
}
