package domain

import "time"

// User is the owner directory entry for a caller. IDs are opaque external
// identities; this service only ever reads users, it never creates them.
type User struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"type:text" json:"name"`
	PhoneNumber string    `gorm:"type:text" json:"phone_number"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
