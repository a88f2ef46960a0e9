package domain

import "time"

// RefreshToken is one link in a rotation chain. Only the SHA-256 hash of the
// opaque bearer string is ever persisted; the raw value leaves the service
// exactly once, at issue time. Rows are never deleted on revocation so reuse
// of a rotated token stays detectable.
type RefreshToken struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"user_id"`
	TokenHash  string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserAgent  string     `gorm:"size:512" json:"user_agent"`
	IP         string     `gorm:"size:64" json:"ip"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	ReplacedBy *uint      `gorm:"index" json:"replaced_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Active reports whether the record can still be presented for rotation.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
