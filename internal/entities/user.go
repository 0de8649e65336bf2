package entities

import "time"

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account holder
type User struct {
	Base
	Email        string `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name         string `gorm:"size:255" json:"name"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Role         string `gorm:"size:16;not null" json:"role"`
}

// IsAdmin reports whether the user may reach admin endpoints
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PasswordResetToken is a single-use, hashed reset token
type PasswordResetToken struct {
	Base
	UserID    string     `gorm:"type:varchar(36);not null;index" json:"userId"`
	TokenHash string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// UserRiver marks a river as tracked by a user
type UserRiver struct {
	Base
	UserID  string `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_river,priority:1" json:"userId"`
	RiverID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_river,priority:2;index" json:"riverId"`
	Notify  bool   `json:"notify"`
	River   *River `gorm:"foreignKey:RiverID" json:"river,omitempty"`
}

// PushSubscription is a browser Web Push endpoint
type PushSubscription struct {
	Base
	UserID   string `gorm:"type:varchar(36);not null;index" json:"userId"`
	Endpoint string `gorm:"size:2048;not null;uniqueIndex" json:"endpoint"`
	P256dh   string `gorm:"size:255;not null" json:"p256dh"`
	Auth     string `gorm:"size:255;not null" json:"auth"`
}
