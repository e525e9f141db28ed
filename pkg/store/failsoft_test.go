package store

import (
	"errors"
	"testing"
	"time"

	"bookmuse/pkg/domain"
)

// flakyStore counts calls and fails each operation with a configurable error.
type flakyStore struct {
	*MemoryStore
	err   error
	calls int
}

func (f *flakyStore) GetUsage(userID, date string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.MemoryStore.GetUsage(userID, date)
}

func (f *flakyStore) SetUsage(userID, date string, count int) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.MemoryStore.SetUsage(userID, date, count)
}

func (f *flakyStore) ListMessages(userID string, limit int) ([]domain.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryStore.ListMessages(userID, limit)
}

func (f *flakyStore) AppendMessage(msg domain.Message) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.MemoryStore.AppendMessage(msg)
}

var errMissingTable = errors.New(`ERROR: relation "message_models" does not exist (SQLSTATE 42P01)`)

func TestFailsoftShortCircuitsAfterMissingRelation(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), err: errMissingTable}
	fs := NewFailsoftStore(inner)

	if got := fs.GetUsageToday("u1"); got != 0 {
		t.Fatalf("usage = %d, want 0", got)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}

	// Every later call must short-circuit without touching the store again.
	fs.AppendMessage(domain.Message{ID: "m1", UserID: "u1"})
	if got := fs.LoadHistory("u1", 20); got != nil {
		t.Fatalf("history = %v, want nil", got)
	}
	if got := fs.IncrementUsage("u1", 2); got != 2 {
		t.Fatalf("increment while degraded = %d, want unchanged 2", got)
	}
	if got := fs.GetUsageToday("u1"); got != 0 {
		t.Fatalf("usage while degraded = %d, want 0", got)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want still 1 after degradation", inner.calls)
	}
}

func TestFailsoftTransientErrorDoesNotDegrade(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), err: errors.New("connection refused")}
	fs := NewFailsoftStore(inner)

	if got := fs.GetUsageToday("u1"); got != 0 {
		t.Fatalf("usage = %d, want 0", got)
	}
	inner.err = nil
	if got := fs.IncrementUsage("u1", 0); got != 1 {
		t.Fatalf("increment after recovery = %d, want 1", got)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2 (no sticky flag for transient errors)", inner.calls)
	}
}

func TestFailsoftUsageDayRollover(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := day1
	fs := NewFailsoftStore(NewMemoryStore(), WithClock(func() time.Time { return now }))

	if got := fs.IncrementUsage("u1", 4); got != 5 {
		t.Fatalf("increment = %d, want 5", got)
	}
	if got := fs.GetUsageToday("u1"); got != 5 {
		t.Fatalf("usage same day = %d, want 5", got)
	}

	now = day1.AddDate(0, 0, 1)
	if got := fs.GetUsageToday("u1"); got != 0 {
		t.Fatalf("usage next day = %d, want 0", got)
	}
}

func TestFailsoftHistoryRoundTrip(t *testing.T) {
	fs := NewFailsoftStore(NewMemoryStore())
	msg := domain.Message{
		ID:      "m1",
		UserID:  "u1",
		Role:    domain.RoleAssistant,
		Content: "try this one",
		Books: []domain.Book{{
			ID:        "OL1W",
			Title:     "Atomic Habits",
			Authors:   []string{"James Clear"},
			CoverURL:  "https://covers.example.com/b/id/1-L.jpg",
			CoverURLs: []string{"https://covers.example.com/b/id/1-L.jpg"},
		}},
		CreatedAt: time.Now().UTC(),
	}
	fs.AppendMessage(msg)

	history := fs.LoadHistory("u1", 20)
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	got := history[0]
	if got.Role != msg.Role || got.Content != msg.Content {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Books) != 1 || got.Books[0].Title != "Atomic Habits" {
		t.Fatalf("books mismatch: %+v", got.Books)
	}
}
