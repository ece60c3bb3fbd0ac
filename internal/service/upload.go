package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/luiznunees/backend-canaldireto/internal/domain"
	"github.com/luiznunees/backend-canaldireto/internal/store"

	"github.com/google/uuid"
)

// maxUploadBytes caps a single upload at 16 MiB, enough for campaign media.
const maxUploadBytes = 16 << 20

// UploadService stores short-lived files on disk with their metadata in the
// record store. Files expire after the configured TTL and are removed by
// PurgeExpired, which the caller schedules.
type UploadService struct {
	store *store.Store
	dir   string
	ttl   time.Duration
	now   func() time.Time
}

func NewUploadService(st *store.Store, dir string, ttl time.Duration) *UploadService {
	return &UploadService{store: st, dir: dir, ttl: ttl, now: time.Now}
}

func (u *UploadService) Save(ctx context.Context, fileName, mimeType string, r io.Reader) (domain.Upload, error) {
	if fileName == "" {
		return domain.Upload{}, fmt.Errorf("%w: file name is required", ErrInvalidRequest)
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return domain.Upload{}, err
	}

	id := uuid.New()
	path := u.filePath(id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return domain.Upload{}, err
	}
	size, err := io.Copy(f, io.LimitReader(r, maxUploadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > maxUploadBytes {
		err = fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidRequest, maxUploadBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return domain.Upload{}, err
	}

	up := domain.Upload{
		ID:        id,
		FileName:  fileName,
		MimeType:  mimeType,
		SizeBytes: size,
		ExpiresAt: u.now().UTC().Add(u.ttl),
	}
	if err := u.store.Uploads().Create(ctx, &up); err != nil {
		_ = os.Remove(path)
		return domain.Upload{}, err
	}
	return up, nil
}

// Open returns the metadata and an open handle for an unexpired upload.
// Expired uploads read as not found even before the sweep removes them.
func (u *UploadService) Open(ctx context.Context, id uuid.UUID) (domain.Upload, *os.File, error) {
	up, err := u.store.Uploads().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.Upload{}, nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
		}
		return domain.Upload{}, nil, err
	}
	if !up.ExpiresAt.After(u.now().UTC()) {
		return domain.Upload{}, nil, fmt.Errorf("%w: %s expired", ErrUploadNotFound, id)
	}
	f, err := os.Open(u.filePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Upload{}, nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
		}
		return domain.Upload{}, nil, err
	}
	return *up, f, nil
}

// PurgeExpired deletes expired rows and their files, returning how many were
// removed.
func (u *UploadService) PurgeExpired(ctx context.Context) (int, error) {
	expired, err := u.store.Uploads().Expired(ctx, u.now().UTC())
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, up := range expired {
		if err := os.Remove(u.filePath(up.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("removing expired upload file failed", "upload_id", up.ID, "error", err)
			continue
		}
		if err := u.store.Uploads().Delete(ctx, up.ID); err != nil {
			slog.Warn("deleting expired upload row failed", "upload_id", up.ID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		slog.Info("expired uploads purged", "count", purged)
	}
	return purged, nil
}

func (u *UploadService) filePath(id uuid.UUID) string {
	return filepath.Join(u.dir, id.String())
}
