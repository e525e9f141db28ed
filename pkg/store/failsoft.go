package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"bookmuse/pkg/domain"
)

// FailsoftStore adapts Store for the conversation path, where persistence
// problems must degrade to defaults instead of failing a turn. Once the
// backing store reports a missing relation, the wrapper stops calling it for
// the rest of the session and every method short-circuits to its default.
type FailsoftStore struct {
	inner Store
	log   *slog.Logger
	now   func() time.Time

	mu          sync.Mutex
	unavailable bool
}

// FailsoftOption customizes the wrapper.
type FailsoftOption func(*FailsoftStore)

// WithLogger overrides the logger for degraded operations.
func WithLogger(log *slog.Logger) FailsoftOption {
	return func(s *FailsoftStore) {
		s.log = log
	}
}

// WithClock overrides the clock used to derive the current usage date.
func WithClock(now func() time.Time) FailsoftOption {
	return func(s *FailsoftStore) {
		s.now = now
	}
}

// NewFailsoftStore wraps inner with the degrade-to-default policy.
func NewFailsoftStore(inner Store, options ...FailsoftOption) *FailsoftStore {
	s := &FailsoftStore{
		inner: inner,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	return s
}

func (s *FailsoftStore) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// GetUsageToday returns the user's message count for the current UTC day,
// zero when no record exists or the store is degraded.
func (s *FailsoftStore) GetUsageToday(userID string) int {
	if s.isUnavailable() {
		return 0
	}
	count, err := s.inner.GetUsage(userID, s.today())
	if err != nil {
		s.fail("load usage", err)
		return 0
	}
	return count
}

// IncrementUsage upserts the counter to current+1 and returns the new count.
// When persistence is unavailable it returns current unchanged; callers that
// keep their own in-session counter will then diverge from the stored row
// until the next session, which is why the miss is logged.
func (s *FailsoftStore) IncrementUsage(userID string, current int) int {
	if s.isUnavailable() {
		return current
	}
	next := current + 1
	if err := s.inner.SetUsage(userID, s.today(), next); err != nil {
		s.fail("persist usage", err)
		return current
	}
	return next
}

// LoadHistory returns up to limit most recent messages in chronological
// order, or nothing when the store is degraded.
func (s *FailsoftStore) LoadHistory(userID string, limit int) []domain.Message {
	if s.isUnavailable() {
		return nil
	}
	msgs, err := s.inner.ListMessages(userID, limit)
	if err != nil {
		s.fail("load history", err)
		return nil
	}
	return msgs
}

// AppendMessage inserts best-effort; failures are logged, never returned.
func (s *FailsoftStore) AppendMessage(msg domain.Message) {
	if s.isUnavailable() {
		return
	}
	if err := s.inner.AppendMessage(msg); err != nil {
		s.fail("append message", err)
	}
}

// WelcomeSeen reads the per-user welcome flag, false by default.
func (s *FailsoftStore) WelcomeSeen(userID string) bool {
	if s.isUnavailable() {
		return false
	}
	prefs, ok, err := s.inner.GetPreferences(userID)
	if err != nil {
		s.fail("load preferences", err)
		return false
	}
	return ok && prefs.WelcomeSeen
}

// MarkWelcomeSeen persists the welcome flag best-effort.
func (s *FailsoftStore) MarkWelcomeSeen(userID string) {
	if s.isUnavailable() {
		return
	}
	if err := s.inner.SavePreferences(domain.Preferences{UserID: userID, WelcomeSeen: true}); err != nil {
		s.fail("save preferences", err)
	}
}

func (s *FailsoftStore) isUnavailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}

func (s *FailsoftStore) fail(op string, err error) {
	if isMissingRelation(err) {
		s.mu.Lock()
		s.unavailable = true
		s.mu.Unlock()
		s.log.Warn("store schema missing, degrading for the rest of the session", "op", op, "err", err)
		return
	}
	s.log.Warn("store call failed", "op", op, "err", err)
}

// isMissingRelation matches the Postgres undefined_table condition (42P01)
// and the SQLite equivalent used in development.
func isMissingRelation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "42p01") {
		return true
	}
	if strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist") {
		return true
	}
	return strings.Contains(msg, "no such table")
}
