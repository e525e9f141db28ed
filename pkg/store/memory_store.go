package store

import (
	"strings"
	"sync"
	"time"

	"bookmuse/internal/util"
	"bookmuse/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and keyless local
// development; production uses GormStore.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User // key: user ID
	email    map[string]string      // email -> user ID
	messages map[string][]domain.Message
	usage    map[string]int // userID + "|" + date
	prefs    map[string]domain.Preferences
	library  map[string][]domain.Book
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		messages: make(map[string][]domain.Message),
		usage:    make(map[string]int),
		prefs:    make(map[string]domain.Preferences),
		library:  make(map[string][]domain.Book),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[strings.ToLower(u.Email)] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[strings.ToLower(email)]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.UserID] = append(m.messages[msg.UserID], msg)
	return nil
}

func (m *MemoryStore) ListMessages(userID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	all := m.messages[userID]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Message, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (m *MemoryStore) GetUsage(userID, date string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage[userID+"|"+date], nil
}

func (m *MemoryStore) SetUsage(userID, date string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[userID+"|"+date] = count
	return nil
}

func (m *MemoryStore) GetPreferences(userID string) (domain.Preferences, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	return p, ok, nil
}

func (m *MemoryStore) SavePreferences(prefs domain.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[prefs.UserID] = prefs
	return nil
}

func (m *MemoryStore) SaveLibraryBook(userID string, book domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := m.library[userID]
	for i, existing := range books {
		if existing.ID == book.ID {
			books[i] = book
			return nil
		}
	}
	m.library[userID] = append(books, book)
	return nil
}

func (m *MemoryStore) ListLibraryBooks(userID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	books := m.library[userID]
	out := make([]domain.Book, len(books))
	copy(out, books)
	return out, nil
}

func (m *MemoryStore) DeleteLibraryBook(userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := m.library[userID]
	for i, existing := range books {
		if existing.ID == bookID {
			m.library[userID] = append(books[:i:i], books[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) HasLibraryTitle(userID, title string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return false, nil
	}
	for _, book := range m.library[userID] {
		if strings.ToLower(book.Title) == title {
			return true, nil
		}
	}
	return false, nil
}

// MemorySessionStore keeps session tokens in-process.
type MemorySessionStore struct {
	mu   sync.Mutex
	sess map[string]string
	ttl  map[string]time.Time
}

// NewMemorySessionStore initializes an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sess: make(map[string]string),
		ttl:  make(map[string]time.Time),
	}
}

func (m *MemorySessionStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewID()
	m.sess[token] = userID
	m.ttl[token] = time.Now().UTC().Add(24 * time.Hour)
	return token, nil
}

func (m *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.sess[token]
	if !ok {
		return "", false, nil
	}
	if exp, has := m.ttl[token]; has && time.Now().UTC().After(exp) {
		delete(m.sess, token)
		delete(m.ttl, token)
		return "", false, nil
	}
	return userID, true, nil
}

func (m *MemorySessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	delete(m.ttl, token)
	return nil
}
