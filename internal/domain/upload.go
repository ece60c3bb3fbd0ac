package domain

import (
	"time"

	"github.com/google/uuid"
)

// Upload is the metadata row for a short-lived uploaded file. The bytes
// live on disk under the upload directory, keyed by ID; expired rows and
// their files are purged by a scheduled sweep.
type Upload struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FileName  string    `gorm:"type:text;not null" json:"file_name"`
	MimeType  string    `gorm:"type:text" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
