package store

import (
	"context"
	"errors"
	"time"

	"github.com/luiznunees/backend-canaldireto/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UploadStore struct{ db *gorm.DB }

func (s *Store) Uploads() *UploadStore { return &UploadStore{db: s.DB} }

func (u *UploadStore) Create(ctx context.Context, up *domain.Upload) error {
	return u.db.WithContext(ctx).Create(up).Error
}

func (u *UploadStore) Get(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	var up domain.Upload
	if err := u.db.WithContext(ctx).First(&up, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &up, nil
}

// Expired lists uploads whose TTL elapsed before cutoff.
func (u *UploadStore) Expired(ctx context.Context, cutoff time.Time) ([]domain.Upload, error) {
	var ups []domain.Upload
	err := u.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff).
		Find(&ups).Error
	return ups, err
}

func (u *UploadStore) Delete(ctx context.Context, id uuid.UUID) error {
	return u.db.WithContext(ctx).Delete(&domain.Upload{}, "id = ?", id).Error
}
