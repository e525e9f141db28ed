package domain

import "time"

// Role identifies who authored a message. The set is closed.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Book is the canonical shape for a catalog record. Every field except Title
// is optional; normalization from raw catalog records happens in pkg/catalog.
// CoverURL is the legacy single-cover field and always equals CoverURLs[0]
// when candidates exist.
type Book struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description,omitempty"`
	CoverURL      string   `json:"cover,omitempty"`
	CoverURLs     []string `json:"coverUrls,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	PageCount     int      `json:"pageCount,omitempty"`
	InfoLink      string   `json:"infoLink,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	Language      string   `json:"language,omitempty"`
}

// Message is one transcript entry. Books stays nil when a turn produced no
// cards, which is distinct from an empty list in the data model even though
// both render the same way.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Books     []Book    `json:"books,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UsageRecord counts sent messages per user per UTC calendar day. At most one
// record exists per (user, date); keying on the date resets the count when the
// day rolls over.
type UsageRecord struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`
	Count  int    `json:"count"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Preferences holds per-user UI flags owned by the main store.
type Preferences struct {
	UserID      string `json:"userId"`
	WelcomeSeen bool   `json:"welcomeSeen"`
}
