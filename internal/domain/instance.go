package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical connection status of a messaging instance as
// mirrored locally. The remote provider's raw state vocabulary is folded
// into these three values by StatusFromRemote.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Remote provider raw states we recognize. Anything else collapses to
// disconnected.
const (
	RemoteStateOpen       = "open"
	RemoteStateConnecting = "connecting"
	RemoteStateClose      = "close"
)

// StatusFromRemote maps the provider's raw connection state to the local
// canonical status. Total: unknown or empty states map to disconnected.
func StatusFromRemote(state string) Status {
	switch state {
	case RemoteStateOpen:
		return StatusConnected
	case RemoteStateConnecting:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// InstanceRecord is the local mirror of one remote messaging instance.
// At most one active record should exist per user; reads are filtered by
// user_id + is_active and soft-deleted records are never reactivated.
type InstanceRecord struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             string     `gorm:"type:text;not null;index" json:"user_id"`
	InstanceName       string     `gorm:"type:text;not null;uniqueIndex" json:"instance_name"`
	PhoneNumber        string     `gorm:"type:text;not null" json:"phone_number"`
	Status             Status     `gorm:"type:text;not null" json:"status"`
	IsActive           bool       `gorm:"not null;index" json:"is_active"`
	QRCode             *string    `gorm:"type:text" json:"qr_code,omitempty"`
	ProfileName        *string    `gorm:"type:text" json:"profile_name,omitempty"`
	ProfilePictureURL  *string    `gorm:"type:text" json:"profile_picture_url,omitempty"`
	ConnectionAttempts int        `gorm:"not null;default:0" json:"connection_attempts"`
	LastConnectionAt   *time.Time `json:"last_connection_at,omitempty"`
	CreatedAt          time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
