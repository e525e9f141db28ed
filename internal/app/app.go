package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookmuse/internal/extract"
	"bookmuse/pkg/ai"
	"bookmuse/pkg/domain"
	"bookmuse/pkg/store"
)

const (
	defaultDailyLimit   = 10
	defaultHistoryLimit = 20
	defaultContextLimit = 5
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store        store.Store
	Generator    ai.TextGenerator
	Catalog      extract.Searcher
	DailyLimit   int
	HistoryLimit int
	ContextLimit int
	Logger       *slog.Logger
}

// App is the conversation controller. It owns turn-taking: usage-cap
// enforcement, completion, card extraction, and transcript persistence.
// Turns are strictly sequential per user; a submit while one is in flight
// is rejected.
type App struct {
	chat      *store.FailsoftStore
	users     store.Store
	gen       ai.TextGenerator
	catalog   extract.Searcher
	extractor *extract.Engine
	log       *slog.Logger

	dailyLimit   int
	historyLimit int
	contextLimit int

	mu       sync.Mutex
	inFlight map[string]bool
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog client required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dailyLimit := cfg.DailyLimit
	if dailyLimit <= 0 {
		dailyLimit = defaultDailyLimit
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	contextLimit := cfg.ContextLimit
	if contextLimit <= 0 {
		contextLimit = defaultContextLimit
	}
	return &App{
		chat:         store.NewFailsoftStore(cfg.Store, store.WithLogger(logger)),
		users:        cfg.Store,
		gen:          cfg.Generator,
		catalog:      cfg.Catalog,
		extractor:    extract.NewEngine(cfg.Generator, cfg.Catalog, extract.WithLogger(logger)),
		log:          logger,
		dailyLimit:   dailyLimit,
		historyLimit: historyLimit,
		contextLimit: contextLimit,
		inFlight:     make(map[string]bool),
	}, nil
}

// Turn is the outcome of one conversation round.
type Turn struct {
	UserMessage      domain.Message `json:"userMessage"`
	AssistantMessage domain.Message `json:"assistantMessage"`
	Used             int            `json:"used"`
	Limit            int            `json:"limit"`
}

// SendMessage runs one full conversation turn for the user.
func (a *App) SendMessage(ctx context.Context, user domain.User, content string) (Turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Turn{}, ErrEmptyMessage
	}
	if strings.TrimSpace(user.ID) == "" {
		return Turn{}, ErrUserRequired
	}
	if !a.beginTurn(user.ID) {
		return Turn{}, ErrTurnInFlight
	}
	defer a.endTurn(user.ID)

	used := a.chat.GetUsageToday(user.ID)
	if used >= a.dailyLimit {
		return Turn{}, ErrDailyLimitReached
	}

	// Context window is read before appending the new user turn so the
	// prompt carries prior turns only.
	history := a.chat.LoadHistory(user.ID, a.contextLimit)

	userMsg := domain.Message{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	a.chat.AppendMessage(userMsg)

	reply, err := a.gen.GenerateText(ctx, personaPrompt, buildUserPrompt(history, content))
	if err != nil {
		a.log.Warn("completion failed", "user_id", user.ID, "err", err)
		assistant := domain.Message{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Role:      domain.RoleAssistant,
			Content:   fallbackContent(err),
			CreatedAt: time.Now().UTC(),
		}
		a.chat.AppendMessage(assistant)
		return Turn{UserMessage: userMsg, AssistantMessage: assistant, Used: used, Limit: a.dailyLimit}, nil
	}

	books := a.extractor.Extract(ctx, reply, content)
	assistant := domain.Message{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Role:      domain.RoleAssistant,
		Content:   reply,
		Books:     books,
		CreatedAt: time.Now().UTC(),
	}
	a.chat.AppendMessage(assistant)
	used = a.chat.IncrementUsage(user.ID, used)

	return Turn{UserMessage: userMsg, AssistantMessage: assistant, Used: used, Limit: a.dailyLimit}, nil
}

// fallbackContent maps a typed completion failure to user-visible copy. This
// is the only place upstream failures become user-facing text.
func fallbackContent(err error) string {
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		return "The assistant isn't configured yet: its API credential is missing or invalid. Please let the site operator know."
	case errors.Is(err, ai.ErrQuotaExceeded):
		return "The assistant is handling a lot of requests right now. Give it a minute and try again."
	case errors.Is(err, ai.ErrUnavailable):
		return "Sorry, I couldn't reach the assistant just now. Please try again in a moment."
	default:
		return "Sorry, something went wrong while writing a reply. Please try again."
	}
}

// History returns the most recent transcript entries in chronological order.
func (a *App) History(user domain.User) []domain.Message {
	return a.chat.LoadHistory(user.ID, a.historyLimit)
}

// Usage reports today's used count and the configured cap.
func (a *App) Usage(user domain.User) (used, limit int) {
	return a.chat.GetUsageToday(user.ID), a.dailyLimit
}

// WelcomeSeen reads the per-user welcome flag.
func (a *App) WelcomeSeen(user domain.User) bool {
	return a.chat.WelcomeSeen(user.ID)
}

// MarkWelcomeSeen persists the welcome flag.
func (a *App) MarkWelcomeSeen(user domain.User) {
	a.chat.MarkWelcomeSeen(user.ID)
}

// Recommendations searches the catalog and filters out titles the user has
// already saved to their library.
func (a *App) Recommendations(ctx context.Context, user domain.User, query string, limit int) []domain.Book {
	if limit <= 0 {
		limit = 10
	}
	found := a.catalog.Search(ctx, query, limit)
	out := make([]domain.Book, 0, len(found))
	for _, book := range found {
		saved, err := a.users.HasLibraryTitle(user.ID, book.Title)
		if err != nil {
			a.log.Warn("library title check failed", "user_id", user.ID, "err", err)
			saved = false
		}
		if !saved {
			out = append(out, book)
		}
	}
	return out
}

// AddLibraryBook saves a book to the user's reading list.
func (a *App) AddLibraryBook(user domain.User, book domain.Book) error {
	if strings.TrimSpace(book.ID) == "" || strings.TrimSpace(book.Title) == "" {
		return ErrBookRequired
	}
	return a.users.SaveLibraryBook(user.ID, book)
}

// Library lists the user's reading list.
func (a *App) Library(user domain.User) ([]domain.Book, error) {
	return a.users.ListLibraryBooks(user.ID)
}

// RemoveLibraryBook removes one saved book.
func (a *App) RemoveLibraryBook(user domain.User, bookID string) error {
	return a.users.DeleteLibraryBook(user.ID, bookID)
}

func (a *App) beginTurn(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight[userID] {
		return false
	}
	a.inFlight[userID] = true
	return true
}

func (a *App) endTurn(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inFlight, userID)
}
