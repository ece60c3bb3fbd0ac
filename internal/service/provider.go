package service

import (
	"context"
	"encoding/json"

	"github.com/luiznunees/backend-canaldireto/internal/evolution"
)

// Provider is the slice of the remote instance provider the engine needs.
// *evolution.Client satisfies it; tests substitute fakes.
type Provider interface {
	CreateInstance(ctx context.Context, name string) error
	PairingCode(ctx context.Context, name string) (string, error)
	ConnectionState(ctx context.Context, name string) (string, error)
	FetchProfile(ctx context.Context, name string) (evolution.Profile, error)
	Logout(ctx context.Context, name string) error
	DeleteInstance(ctx context.Context, name string) error
	SendText(ctx context.Context, name, number, text string) (json.RawMessage, error)
}
