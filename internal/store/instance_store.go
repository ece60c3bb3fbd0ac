package store

import (
	"context"
	"errors"

	"github.com/luiznunees/backend-canaldireto/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstanceStore struct{ db *gorm.DB }

func (s *Store) Instances() *InstanceStore { return &InstanceStore{db: s.DB} }

// ActiveByUser returns the user's active instance record. Uniqueness of the
// active record is kept by query discipline, not a constraint: the newest
// record wins if a race ever produced more than one.
func (i *InstanceStore) ActiveByUser(ctx context.Context, userID string) (*domain.InstanceRecord, error) {
	var rec domain.InstanceRecord
	err := i.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at desc").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ByName resolves a record by its immutable instance name, the join key to
// the remote provider's instance identity. Soft-deleted records resolve too;
// callers decide whether that matters.
func (i *InstanceStore) ByName(ctx context.Context, name string) (*domain.InstanceRecord, error) {
	var rec domain.InstanceRecord
	if err := i.db.WithContext(ctx).First(&rec, "instance_name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (i *InstanceStore) Create(ctx context.Context, rec *domain.InstanceRecord) error {
	return i.db.WithContext(ctx).Create(rec).Error
}

// Update applies the given column updates and returns the fresh record.
func (i *InstanceStore) Update(ctx context.Context, id uuid.UUID, updates map[string]any) (*domain.InstanceRecord, error) {
	if err := i.db.WithContext(ctx).
		Model(&domain.InstanceRecord{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	var rec domain.InstanceRecord
	if err := i.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}
