package store

import "bookmuse/pkg/domain"

// Store defines persistence for users, the chat transcript, daily usage
// counters, preferences, and the per-user library. Rows are scoped by user id;
// callers must pass the authenticated user's id.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// transcript (append-only; read side truncates)
	AppendMessage(domain.Message) error
	ListMessages(userID string, limit int) ([]domain.Message, error)

	// usage counters, one row per (user, date)
	GetUsage(userID, date string) (int, error)
	SetUsage(userID, date string, count int) error

	// preferences
	GetPreferences(userID string) (domain.Preferences, bool, error)
	SavePreferences(domain.Preferences) error

	// library
	SaveLibraryBook(userID string, book domain.Book) error
	ListLibraryBooks(userID string) ([]domain.Book, error)
	DeleteLibraryBook(userID, bookID string) error
	HasLibraryTitle(userID, title string) (bool, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
