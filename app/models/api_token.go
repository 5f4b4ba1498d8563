package models

import "time"

// ApiToken stores one bearer token issued by the Mindbody user-token
// endpoint for a principal. Multiple historical rows may exist per
// username; only the most recent valid one is used.
type ApiToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"type:varchar(191);not null;index:idx_api_tokens_user_expiry,priority:1" json:"username"`
	AccessToken string    `gorm:"type:text;not null" json:"-"`
	TokenType   string    `gorm:"type:varchar(20);not null;default:'Bearer'" json:"token_type"`
	ExpiresIn   int       `gorm:"not null" json:"expires_in"`
	IssuedAt    time.Time `gorm:"type:timestamp;not null" json:"issued_at"`
	ExpiresAt   time.Time `gorm:"type:timestamp;not null;index:idx_api_tokens_user_expiry,priority:2" json:"expires_at"`
	Revoked     bool      `gorm:"default:false;index:idx_api_tokens_user_expiry,priority:3" json:"revoked"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValid reports whether the token can still be presented upstream.
func (t *ApiToken) IsValid(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
