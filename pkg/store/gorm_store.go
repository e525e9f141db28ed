package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookmuse/internal/util"
	"bookmuse/pkg/domain"
)

const migrateLockID int64 = 52415241

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&MessageModel{},
			&UsageModel{},
			&PreferenceModel{},
			&LibraryBookModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// AppendMessage records one transcript entry.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model, err := messageToModel(msg)
	if err != nil {
		return fmt.Errorf("serialize message books: %w", err)
	}
	return s.db.Create(&model).Error
}

// ListMessages returns the most recent messages for a user in ascending
// chronological order (newest-first query, then reversed).
func (s *GormStore) ListMessages(userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// GetUsage returns the message count for (user, date), zero when absent.
func (s *GormStore) GetUsage(userID, date string) (int, error) {
	var model UsageModel
	if err := s.db.First(&model, "user_id = ? AND date = ?", userID, date).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return model.Count, nil
}

// SetUsage upserts the (user, date) counter to count.
func (s *GormStore) SetUsage(userID, date string, count int) error {
	model := UsageModel{UserID: userID, Date: date, Count: count, UpdatedAt: time.Now().UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
	}).Create(&model).Error
}

// GetPreferences returns the preference row for a user.
func (s *GormStore) GetPreferences(userID string) (domain.Preferences, bool, error) {
	var model PreferenceModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Preferences{}, false, nil
		}
		return domain.Preferences{}, false, err
	}
	return domain.Preferences{UserID: model.UserID, WelcomeSeen: model.WelcomeSeen}, true, nil
}

// SavePreferences upserts the preference row.
func (s *GormStore) SavePreferences(prefs domain.Preferences) error {
	model := PreferenceModel{UserID: prefs.UserID, WelcomeSeen: prefs.WelcomeSeen, UpdatedAt: time.Now().UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"welcome_seen", "updated_at"}),
	}).Create(&model).Error
}

// SaveLibraryBook adds a book to the user's library, replacing any saved copy.
func (s *GormStore) SaveLibraryBook(userID string, book domain.Book) error {
	model, err := libraryBookToModel(userID, util.NewID(), book, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("serialize library book: %w", err)
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "payload"}),
	}).Create(&model).Error
}

// ListLibraryBooks returns the user's saved books, oldest first.
func (s *GormStore) ListLibraryBooks(userID string) ([]domain.Book, error) {
	var models []LibraryBookModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, libraryBookFromModel(m))
	}
	return books, nil
}

// DeleteLibraryBook removes one saved book.
func (s *GormStore) DeleteLibraryBook(userID, bookID string) error {
	return s.db.Delete(&LibraryBookModel{}, "user_id = ? AND book_id = ?", userID, bookID).Error
}

// HasLibraryTitle reports whether a title is already saved, ignoring case.
func (s *GormStore) HasLibraryTitle(userID, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}
	var count int64
	if err := s.db.Model(&LibraryBookModel{}).
		Where("user_id = ? AND LOWER(title) = LOWER(?)", userID, title).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
