package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookmuse/pkg/ai"
	"bookmuse/pkg/domain"
	"bookmuse/pkg/store"
)

type scriptedGenerator struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	block     chan struct{}
}

type scriptedResponse struct {
	text string
	err  error
}

func (g *scriptedGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if idx >= len(g.responses) {
		return "", errors.New("unscripted completion call")
	}
	r := g.responses[idx]
	return r.text, r.err
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type stubCatalog struct {
	mu      sync.Mutex
	queries []string
}

func (c *stubCatalog) Search(_ context.Context, query string, _ int) []domain.Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	return []domain.Book{{ID: "id-" + query, Title: query}}
}

func (c *stubCatalog) queryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func newTestApp(t *testing.T, mem *store.MemoryStore, gen *scriptedGenerator) *App {
	t.Helper()
	a, err := New(Config{Store: mem, Generator: gen, Catalog: &stubCatalog{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func TestSendMessageRejectsEmptyInput(t *testing.T) {
	a := newTestApp(t, store.NewMemoryStore(), &scriptedGenerator{})
	if _, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSendMessageRequiresUser(t *testing.T) {
	a := newTestApp(t, store.NewMemoryStore(), &scriptedGenerator{})
	if _, err := a.SendMessage(context.Background(), domain.User{}, "hi"); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("err = %v, want ErrUserRequired", err)
	}
}

func TestSendMessageBlocksAtDailyCap(t *testing.T) {
	mem := store.NewMemoryStore()
	if err := mem.SetUsage("u1", today(), defaultDailyLimit); err != nil {
		t.Fatalf("SetUsage: %v", err)
	}
	gen := &scriptedGenerator{}
	a := newTestApp(t, mem, gen)

	if _, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "one more?"); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("err = %v, want ErrDailyLimitReached", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator calls = %d, want 0 when the cap blocks the turn", gen.callCount())
	}
	if msgs := a.History(domain.User{ID: "u1"}); len(msgs) != 0 {
		t.Fatalf("history = %v, want empty when the cap blocks the turn", msgs)
	}
}

func TestSendMessageFallbackOnCompletionFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	gen := &scriptedGenerator{responses: []scriptedResponse{{err: ai.ErrUnavailable}}}
	a := newTestApp(t, mem, gen)

	turn, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "recommend something")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.AssistantMessage.Content != fallbackContent(ai.ErrUnavailable) {
		t.Fatalf("content = %q, want the unavailable fallback", turn.AssistantMessage.Content)
	}
	if turn.AssistantMessage.Books != nil {
		t.Fatalf("books = %v, want nil on a failed turn", turn.AssistantMessage.Books)
	}
	// The fallback turn consumes no quota and never reaches extraction.
	if turn.Used != 0 {
		t.Fatalf("used = %d, want 0", turn.Used)
	}
	if count, _ := mem.GetUsage("u1", today()); count != 0 {
		t.Fatalf("stored usage = %d, want 0", count)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator calls = %d, want 1 (no extraction gate)", gen.callCount())
	}
	if msgs := a.History(domain.User{ID: "u1"}); len(msgs) != 2 {
		t.Fatalf("history length = %d, want user and fallback messages persisted", len(msgs))
	}
}

func TestSendMessageFullTurn(t *testing.T) {
	mem := store.NewMemoryStore()
	gen := &scriptedGenerator{responses: []scriptedResponse{
		{text: `Try **"Atomic Habits" by James Clear** for that.`},
		{text: "YES"},
		{text: `["Atomic Habits James Clear"]`},
	}}
	a := newTestApp(t, mem, gen)

	turn, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "how do I build habits?")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.UserMessage.Role != domain.RoleUser || turn.UserMessage.Content != "how do I build habits?" {
		t.Fatalf("user message = %+v", turn.UserMessage)
	}
	if turn.AssistantMessage.Role != domain.RoleAssistant {
		t.Fatalf("assistant role = %q", turn.AssistantMessage.Role)
	}
	if len(turn.AssistantMessage.Books) == 0 {
		t.Fatalf("books empty, want extracted cards")
	}
	if turn.Used != 1 || turn.Limit != defaultDailyLimit {
		t.Fatalf("used/limit = %d/%d, want 1/%d", turn.Used, turn.Limit, defaultDailyLimit)
	}
	if count, _ := mem.GetUsage("u1", today()); count != 1 {
		t.Fatalf("stored usage = %d, want 1", count)
	}
	msgs := a.History(domain.User{ID: "u1"})
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if len(msgs[1].Books) == 0 {
		t.Fatalf("persisted assistant message lost its books")
	}
}

func TestSendMessageRejectsConcurrentTurn(t *testing.T) {
	mem := store.NewMemoryStore()
	gen := &scriptedGenerator{
		responses: []scriptedResponse{{text: "NO recommendations here."}, {text: "NO"}},
		block:     make(chan struct{}),
	}
	a := newTestApp(t, mem, gen)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "first")
		done <- err
	}()
	<-started
	// Wait until the first turn is inside the generator call.
	deadline := time.After(time.Second)
	for gen.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first turn never reached the generator")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("err = %v, want ErrTurnInFlight", err)
	}

	close(gen.block)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	// The guard releases once the turn completes.
	gen.mu.Lock()
	gen.block = nil
	gen.responses = append(gen.responses, scriptedResponse{text: "plain"}, scriptedResponse{text: "NO"})
	gen.mu.Unlock()
	if _, err := a.SendMessage(context.Background(), domain.User{ID: "u1"}, "third"); err != nil {
		t.Fatalf("turn after release: %v", err)
	}
}

func TestRecommendationsFilterLibraryTitles(t *testing.T) {
	mem := store.NewMemoryStore()
	if err := mem.SaveLibraryBook("u1", domain.Book{ID: "b1", Title: "cozy mystery"}); err != nil {
		t.Fatalf("SaveLibraryBook: %v", err)
	}
	a := newTestApp(t, mem, &scriptedGenerator{})

	books := a.Recommendations(context.Background(), domain.User{ID: "u1"}, "cozy mystery", 5)
	for _, b := range books {
		if b.Title == "cozy mystery" {
			t.Fatalf("recommendations include an already-saved title: %+v", b)
		}
	}
}

func TestWelcomeFlagRoundTrip(t *testing.T) {
	a := newTestApp(t, store.NewMemoryStore(), &scriptedGenerator{})
	user := domain.User{ID: "u1"}
	if a.WelcomeSeen(user) {
		t.Fatal("welcome seen before marking")
	}
	a.MarkWelcomeSeen(user)
	if !a.WelcomeSeen(user) {
		t.Fatal("welcome not seen after marking")
	}
}

func TestLibraryOperations(t *testing.T) {
	a := newTestApp(t, store.NewMemoryStore(), &scriptedGenerator{})
	user := domain.User{ID: "u1"}

	if err := a.AddLibraryBook(user, domain.Book{ID: "b1"}); !errors.Is(err, ErrBookRequired) {
		t.Fatalf("err = %v, want ErrBookRequired for a title-less book", err)
	}
	if err := a.AddLibraryBook(user, domain.Book{ID: "b1", Title: "Dune"}); err != nil {
		t.Fatalf("AddLibraryBook: %v", err)
	}
	books, err := a.Library(user)
	if err != nil || len(books) != 1 || books[0].Title != "Dune" {
		t.Fatalf("library = %v (err %v), want [Dune]", books, err)
	}
	if err := a.RemoveLibraryBook(user, "b1"); err != nil {
		t.Fatalf("RemoveLibraryBook: %v", err)
	}
	if books, _ := a.Library(user); len(books) != 0 {
		t.Fatalf("library after delete = %v, want empty", books)
	}
}
