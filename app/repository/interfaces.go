package repository

import (
	"github.com/TobiasKell/NoteMorph/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
}

// NoteRepository defines the interface for note-related database operations
type NoteRepository interface {
	Create(note *models.Note) error
	GetByUUID(uuid string) (*models.Note, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Note, error)
	CountByUserID(userID uint) (int64, error)
	Delete(id uint) error
}

// Repositories holds all repository instances
type Repositories struct {
	User UserRepository
	Note NoteRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
		Note: NewNoteRepository(db),
	}
}
