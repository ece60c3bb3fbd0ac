package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luiznunees/backend-canaldireto/internal/domain"
	"github.com/luiznunees/backend-canaldireto/internal/evolution"
	"github.com/luiznunees/backend-canaldireto/internal/observability/metrics"
	"github.com/luiznunees/backend-canaldireto/internal/store"

	"github.com/google/uuid"
)

// InstanceService reconciles the remote provider's instance state with the
// local mirror record: setup, bounded-poll sync, disconnect and soft delete.
type InstanceService struct {
	store    *store.Store
	provider Provider

	pollAttempts int
	pollDelay    time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// PollConfig bounds the sync polling loop. Zero values fall back to the
// defaults of 5 attempts, 2s apart.
type PollConfig struct {
	Attempts int
	Delay    time.Duration
}

func NewInstanceService(st *store.Store, provider Provider, poll PollConfig) *InstanceService {
	if poll.Attempts <= 0 {
		poll.Attempts = 5
	}
	if poll.Delay <= 0 {
		poll.Delay = 2 * time.Second
	}
	return &InstanceService{
		store:        st,
		provider:     provider,
		pollAttempts: poll.Attempts,
		pollDelay:    poll.Delay,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type SetupResult struct {
	Instance domain.InstanceRecord
	QRCode   *string
	Created  bool
}

// Setup ensures the user has an active instance. With no active record it
// creates one remotely first and only then persists the mirror; with an
// existing record it refreshes the mirrored status from remote truth. The
// remote provider being down never turns an existing-instance check into a
// hard error.
func (s *InstanceService) Setup(ctx context.Context, userID string) (SetupResult, error) {
	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return SetupResult{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return SetupResult{}, err
	}
	if user.PhoneNumber == "" {
		return SetupResult{}, fmt.Errorf("%w: user has no phone number on file", ErrInvalidRequest)
	}

	rec, err := s.store.Instances().ActiveByUser(ctx, userID)
	if err == nil {
		return s.resync(ctx, rec)
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return SetupResult{}, err
	}

	name := newInstanceName(user.PhoneNumber)
	if err := s.provider.CreateInstance(ctx, name); err != nil {
		metrics.InstanceSetupsTotal.WithLabelValues("failure").Inc()
		return SetupResult{}, fmt.Errorf("%w: create instance: %v", ErrUpstream, err)
	}

	rec = &domain.InstanceRecord{
		ID:                 uuid.New(),
		UserID:             userID,
		InstanceName:       name,
		PhoneNumber:        user.PhoneNumber,
		Status:             domain.StatusDisconnected,
		IsActive:           true,
		ConnectionAttempts: 1,
	}
	if err := s.store.Instances().Create(ctx, rec); err != nil {
		return SetupResult{}, err
	}

	// The instance now exists both remotely and locally; a missing pairing
	// code is cosmetic and must not fail the setup.
	var qr *string
	if code, qErr := s.provider.PairingCode(ctx, name); qErr != nil {
		slog.Warn("initial pairing code fetch failed", "instance", name, "error", qErr)
	} else {
		qr = &code
		if updated, uErr := s.store.Instances().Update(ctx, rec.ID, map[string]any{"qr_code": code}); uErr != nil {
			slog.Warn("persisting initial pairing code failed", "instance", name, "error", uErr)
		} else {
			rec = updated
		}
	}

	metrics.InstanceSetupsTotal.WithLabelValues("created").Inc()
	slog.Info("instance created", "instance", name, "user_id", userID)
	return SetupResult{Instance: *rec, QRCode: qr, Created: true}, nil
}

// resync is the idempotent setup path for a user that already has an active
// record: refresh the mirrored status, and hand out a fresh pairing code when
// the instance turns out to be disconnected.
func (s *InstanceService) resync(ctx context.Context, rec *domain.InstanceRecord) (SetupResult, error) {
	raw, err := s.provider.ConnectionState(ctx, rec.InstanceName)
	if err != nil {
		slog.Warn("connection state fetch failed during setup, returning record as-is",
			"instance", rec.InstanceName, "error", err)
		metrics.InstanceSetupsTotal.WithLabelValues("degraded").Inc()
		return SetupResult{Instance: *rec}, nil
	}

	mapped := domain.StatusFromRemote(raw)
	updates := map[string]any{"status": mapped}

	var qr *string
	if mapped == domain.StatusDisconnected {
		if code, qErr := s.provider.PairingCode(ctx, rec.InstanceName); qErr != nil {
			slog.Warn("pairing code refresh failed", "instance", rec.InstanceName, "error", qErr)
		} else {
			qr = &code
			updates["qr_code"] = code
		}
	}

	updated, err := s.store.Instances().Update(ctx, rec.ID, updates)
	if err != nil {
		return SetupResult{}, err
	}
	metrics.InstanceSetupsTotal.WithLabelValues("resynced").Inc()
	return SetupResult{Instance: *updated, QRCode: qr}, nil
}

type SyncResult struct {
	Instance      domain.InstanceRecord
	QRCode        *string
	StatusChanged bool
}

// Sync polls the provider's connection state up to the configured number of
// attempts, stopping early the first time the instance reports open. Per-poll
// transport failures read as close; the loop never aborts on them. The
// last-observed state is what gets mirrored.
func (s *InstanceService) Sync(ctx context.Context, userID string) (SyncResult, error) {
	rec, err := s.store.Instances().ActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return SyncResult{}, fmt.Errorf("%w: user %s", ErrNoActiveInstance, userID)
		}
		return SyncResult{}, err
	}

	prior := rec.Status
	raw := domain.RemoteStateClose
	var profile *evolution.Profile

	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.pollDelay); err != nil {
				return SyncResult{}, err
			}
		}
		metrics.ConnectionStatePollsTotal.Inc()

		state, pErr := s.provider.ConnectionState(ctx, rec.InstanceName)
		if pErr != nil {
			slog.Warn("connection state poll failed", "instance", rec.InstanceName,
				"attempt", attempt+1, "error", pErr)
			raw = domain.RemoteStateClose
			continue
		}
		raw = state
		if state == domain.RemoteStateOpen {
			if p, fErr := s.provider.FetchProfile(ctx, rec.InstanceName); fErr != nil {
				slog.Warn("profile fetch failed", "instance", rec.InstanceName, "error", fErr)
			} else {
				profile = &p
			}
			break
		}
	}

	mapped := domain.StatusFromRemote(raw)
	updates := map[string]any{"status": mapped}
	if mapped == domain.StatusConnected {
		updates["connection_attempts"] = 0
		updates["last_connection_at"] = s.now().UTC()
		if profile != nil {
			updates["profile_name"] = profile.Name
			updates["profile_picture_url"] = profile.PictureURL
		}
	} else {
		updates["connection_attempts"] = rec.ConnectionAttempts + 1
	}

	var qr *string
	if mapped == domain.StatusDisconnected {
		if code, qErr := s.provider.PairingCode(ctx, rec.InstanceName); qErr != nil {
			slog.Warn("pairing code refresh failed", "instance", rec.InstanceName, "error", qErr)
		} else {
			qr = &code
			updates["qr_code"] = code
		}
	}

	updated, err := s.store.Instances().Update(ctx, rec.ID, updates)
	if err != nil {
		return SyncResult{}, err
	}

	metrics.InstanceSyncsTotal.WithLabelValues(string(mapped)).Inc()
	return SyncResult{
		Instance:      *updated,
		QRCode:        qr,
		StatusChanged: mapped != prior,
	}, nil
}

// Disconnect logs the instance out remotely and only then clears the local
// connection state. A failed logout leaves the record untouched.
func (s *InstanceService) Disconnect(ctx context.Context, userID string) (domain.InstanceRecord, error) {
	rec, err := s.store.Instances().ActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.InstanceRecord{}, fmt.Errorf("%w: user %s", ErrNoActiveInstance, userID)
		}
		return domain.InstanceRecord{}, err
	}

	if err := s.provider.Logout(ctx, rec.InstanceName); err != nil {
		return domain.InstanceRecord{}, fmt.Errorf("%w: logout: %v", ErrUpstream, err)
	}

	updated, err := s.store.Instances().Update(ctx, rec.ID, map[string]any{
		"status":              domain.StatusDisconnected,
		"profile_name":        nil,
		"profile_picture_url": nil,
		"qr_code":             nil,
	})
	if err != nil {
		return domain.InstanceRecord{}, err
	}
	slog.Info("instance disconnected", "instance", rec.InstanceName, "user_id", userID)
	return *updated, nil
}

// Delete soft-deletes the mirror record. The remote delete is attempted
// first, but an unreachable provider must not wedge deletion: only the
// already-gone case is even distinguished, everything else is logged and the
// local deactivation proceeds.
func (s *InstanceService) Delete(ctx context.Context, userID string) (domain.InstanceRecord, error) {
	rec, err := s.store.Instances().ActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.InstanceRecord{}, fmt.Errorf("%w: user %s", ErrNoActiveInstance, userID)
		}
		return domain.InstanceRecord{}, err
	}

	if err := s.provider.DeleteInstance(ctx, rec.InstanceName); err != nil {
		if errors.Is(err, evolution.ErrInstanceNotFound) {
			slog.Info("remote instance already gone", "instance", rec.InstanceName)
		} else {
			slog.Warn("remote delete failed, proceeding with local deactivation",
				"instance", rec.InstanceName, "error", err)
		}
	}

	updated, err := s.store.Instances().Update(ctx, rec.ID, map[string]any{
		"is_active": false,
		"status":    domain.StatusDisconnected,
	})
	if err != nil {
		return domain.InstanceRecord{}, err
	}
	slog.Info("instance deactivated", "instance", rec.InstanceName, "user_id", userID)
	return *updated, nil
}

// ActiveInstance exposes the current active record without touching remote
// state; pass-through surfaces use it to read reconciled connection state.
func (s *InstanceService) ActiveInstance(ctx context.Context, userID string) (domain.InstanceRecord, error) {
	rec, err := s.store.Instances().ActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.InstanceRecord{}, fmt.Errorf("%w: user %s", ErrNoActiveInstance, userID)
		}
		return domain.InstanceRecord{}, err
	}
	return *rec, nil
}

// SendText relays a text message through the user's connected instance.
func (s *InstanceService) SendText(ctx context.Context, userID, number, text string) (json.RawMessage, error) {
	if number == "" || text == "" {
		return nil, fmt.Errorf("%w: number and text are required", ErrInvalidRequest)
	}
	rec, err := s.ActiveInstance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusConnected {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInstanceNotConnected, rec.InstanceName, rec.Status)
	}
	out, err := s.provider.SendText(ctx, rec.InstanceName, number, text)
	if err != nil {
		return nil, fmt.Errorf("%w: send text: %v", ErrUpstream, err)
	}
	return out, nil
}

// newInstanceName derives the globally unique instance name from the owner's
// phone number plus a random 4-digit suffix. Collisions are accepted as
// negligible and not checked.
func newInstanceName(phone string) string {
	var buf [2]byte
	suffix := 0
	if _, err := rand.Read(buf[:]); err == nil {
		suffix = int(binary.BigEndian.Uint16(buf[:])) % 10000
	}
	return fmt.Sprintf("%s_%04d", phone, suffix)
}
