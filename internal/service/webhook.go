package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/luiznunees/backend-canaldireto/internal/domain"
	"github.com/luiznunees/backend-canaldireto/internal/store"
)

// ApplyConnectionUpdate handles a provider-pushed connection.update event.
// The mapped status is written only when it differs from the mirrored one.
func (s *InstanceService) ApplyConnectionUpdate(ctx context.Context, instanceName, state string) error {
	rec, err := s.store.Instances().ByName(ctx, instanceName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("%w: instance %s", ErrNoActiveInstance, instanceName)
		}
		return err
	}

	mapped := domain.StatusFromRemote(state)
	if mapped == rec.Status {
		return nil
	}

	updates := map[string]any{"status": mapped}
	if mapped == domain.StatusConnected {
		updates["connection_attempts"] = 0
		updates["last_connection_at"] = s.now().UTC()
	}
	if _, err := s.store.Instances().Update(ctx, rec.ID, updates); err != nil {
		return err
	}
	slog.Info("webhook connection update applied",
		"instance", instanceName, "from", rec.Status, "to", mapped)
	return nil
}

// ApplyPairingCode handles a provider-pushed qrcode.updated event; the code
// is persisted verbatim.
func (s *InstanceService) ApplyPairingCode(ctx context.Context, instanceName, code string) error {
	rec, err := s.store.Instances().ByName(ctx, instanceName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("%w: instance %s", ErrNoActiveInstance, instanceName)
		}
		return err
	}
	_, err = s.store.Instances().Update(ctx, rec.ID, map[string]any{"qr_code": code})
	return err
}
