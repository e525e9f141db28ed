package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"bookmuse/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type MessageModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Role      string         `gorm:"not null"`
	Content   string         `gorm:"type:text;not null"`
	Books     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

type UsageModel struct {
	UserID    string `gorm:"primaryKey"`
	Date      string `gorm:"primaryKey;size:10"`
	Count     int    `gorm:"not null"`
	UpdatedAt time.Time
}

type PreferenceModel struct {
	UserID      string `gorm:"primaryKey"`
	WelcomeSeen bool   `gorm:"not null"`
	UpdatedAt   time.Time
}

type LibraryBookModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;uniqueIndex:idx_library_user_book"`
	BookID    string         `gorm:"not null;uniqueIndex:idx_library_user_book"`
	Title     string         `gorm:"not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// messageToModel serializes attached book cards to JSON. A nil Books slice
// stays NULL so "no cards" survives the round trip.
func messageToModel(msg domain.Message) (MessageModel, error) {
	model := MessageModel{
		ID:        msg.ID,
		UserID:    msg.UserID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Books != nil {
		raw, err := json.Marshal(msg.Books)
		if err != nil {
			return MessageModel{}, err
		}
		model.Books = datatypes.JSON(raw)
	}
	return model, nil
}

func messageFromModel(m MessageModel) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		UserID:    m.UserID,
		Role:      domain.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Books) > 0 {
		var books []domain.Book
		if err := json.Unmarshal(m.Books, &books); err == nil {
			msg.Books = books
		}
	}
	return msg
}

func libraryBookToModel(userID, rowID string, book domain.Book, now time.Time) (LibraryBookModel, error) {
	raw, err := json.Marshal(book)
	if err != nil {
		return LibraryBookModel{}, err
	}
	return LibraryBookModel{
		ID:        rowID,
		UserID:    userID,
		BookID:    book.ID,
		Title:     book.Title,
		Payload:   datatypes.JSON(raw),
		CreatedAt: now,
	}, nil
}

func libraryBookFromModel(m LibraryBookModel) domain.Book {
	var book domain.Book
	if err := json.Unmarshal(m.Payload, &book); err != nil {
		// Payload predates the current schema; fall back to indexed columns.
		book = domain.Book{ID: m.BookID, Title: m.Title}
	}
	return book
}
