package repository

import (
	"github.com/TobiasKell/NoteMorph/app/models"
	"gorm.io/gorm"
)

// noteRepository implements the NoteRepository interface
type noteRepository struct {
	db *gorm.DB
}

// NewNoteRepository creates a new note repository instance
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

// Create persists a new note
func (r *noteRepository) Create(note *models.Note) error {
	return r.db.Create(note).Error
}

// GetByUUID retrieves a note by its public UUID
func (r *noteRepository) GetByUUID(uuid string) (*models.Note, error) {
	var note models.Note
	err := r.db.Where("uuid = ?", uuid).First(&note).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// GetByUserID returns a page of the user's notes, newest first
func (r *noteRepository) GetByUserID(userID uint, offset, limit int) ([]models.Note, error) {
	var notes []models.Note
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notes).Error
	return notes, err
}

// CountByUserID counts the user's notes
func (r *noteRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Note{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// Delete removes a note by primary key
func (r *noteRepository) Delete(id uint) error {
	return r.db.Delete(&models.Note{}, id).Error
}
