package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// UserRepository stores accounts and everything hanging off them
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user; a taken email is a conflict
func (r *UserRepository) Create(ctx context.Context, u *entities.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = entities.RoleUser
	}
	return translate(r.db.WithContext(ctx).Create(u).Error, "User")
}

// Get returns a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*entities.User, error) {
	var u entities.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

// GetByEmail returns a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	var u entities.User
	err := r.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

// GetMany returns the users with the given IDs
func (r *UserRepository) GetMany(ctx context.Context, ids []string) ([]entities.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []entities.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return out, nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	res := r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return entities.NotFound("User")
	}
	return nil
}

// CreateResetToken stores a hashed password reset token
func (r *UserRepository) CreateResetToken(ctx context.Context, t *entities.PasswordResetToken) error {
	return translate(r.db.WithContext(ctx).Create(t).Error, "Reset token")
}

// ConsumeResetToken marks an unexpired, unused token as used and returns it
func (r *UserRepository) ConsumeResetToken(ctx context.Context, hash string, now time.Time) (*entities.PasswordResetToken, error) {
	var token entities.PasswordResetToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).First(&token).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Invalid("Reset token is invalid or has expired")
		}
		if err != nil {
			return fmt.Errorf("failed to load reset token: %w", err)
		}
		res := tx.Model(&entities.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now)
		if res.Error != nil {
			return fmt.Errorf("failed to consume reset token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return entities.Invalid("Reset token is invalid or has expired")
		}
		token.UsedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// TrackRiver adds a river to a user's tracked list
func (r *UserRepository) TrackRiver(ctx context.Context, ur *entities.UserRiver) error {
	return translate(r.db.WithContext(ctx).Omit("River").Create(ur).Error, "Tracked river")
}

// UntrackRiver removes a river from a user's tracked list
func (r *UserRepository) UntrackRiver(ctx context.Context, userID, riverID string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND river_id = ?", userID, riverID).Delete(&entities.UserRiver{})
	if res.Error != nil {
		return fmt.Errorf("failed to untrack river: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return entities.NotFound("Tracked river")
	}
	return nil
}

// TrackedRivers returns a user's tracked rivers with the river loaded
func (r *UserRepository) TrackedRivers(ctx context.Context, userID string) ([]entities.UserRiver, error) {
	var out []entities.UserRiver
	if err := r.db.WithContext(ctx).Preload("River").Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked rivers: %w", err)
	}
	return out, nil
}

// WatchersOf returns the IDs of users tracking a river with notifications on
func (r *UserRepository) WatchersOf(ctx context.Context, riverID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entities.UserRiver{}).
		Where("river_id = ? AND notify = ?", riverID, true).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list river watchers: %w", err)
	}
	return ids, nil
}

// GetPreferences returns a user's notification preferences, or the defaults
// when none are stored
func (r *UserRepository) GetPreferences(ctx context.Context, userID string) (*entities.NotificationPreference, error) {
	var p entities.NotificationPreference
	err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = entities.DefaultPreferences(userID)
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return &p, nil
}

// SavePreferences inserts or replaces a user's preferences
func (r *UserRepository) SavePreferences(ctx context.Context, p *entities.NotificationPreference) error {
	if p.ID != "" {
		if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
			return fmt.Errorf("failed to save preferences: %w", err)
		}
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"channel", "deal_alerts", "condition_alerts", "hazard_alerts", "weekly_digest", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// DigestRecipients returns the IDs of users who opted into the weekly digest
func (r *UserRepository) DigestRecipients(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entities.NotificationPreference{}).
		Where("weekly_digest = ?", true).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list digest recipients: %w", err)
	}
	return ids, nil
}

// SaveSubscription inserts a push subscription or moves an existing endpoint
// to the given user and keys
func (r *UserRepository) SaveSubscription(ctx context.Context, s *entities.PushSubscription) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a user's subscription for an endpoint
func (r *UserRepository) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&entities.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete push subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return entities.NotFound("Subscription")
	}
	return nil
}

// DeleteSubscriptionByID removes a subscription the push service reported gone
func (r *UserRepository) DeleteSubscriptionByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&entities.PushSubscription{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

// SubscriptionsFor returns a user's push subscriptions
func (r *UserRepository) SubscriptionsFor(ctx context.Context, userID string) ([]entities.PushSubscription, error) {
	var out []entities.PushSubscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	return out, nil
}
