package usecases

import (
	"context"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// TrackRiverInput starts tracking a river
type TrackRiverInput struct {
	RiverID string `json:"riverId" binding:"required"`
	Notify  *bool  `json:"notify"`
}

// UpdatePreferencesInput is a partial notification preference update
type UpdatePreferencesInput struct {
	Channel         *string `json:"channel" binding:"omitempty,oneof=push email both"`
	DealAlerts      *bool   `json:"dealAlerts"`
	ConditionAlerts *bool   `json:"conditionAlerts"`
	HazardAlerts    *bool   `json:"hazardAlerts"`
	WeeklyDigest    *bool   `json:"weeklyDigest"`
}

// SubscriptionKeys are the browser's push encryption keys
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// SubscribeInput is a browser PushSubscription as serialised by the Push API
type SubscribeInput struct {
	Endpoint string           `json:"endpoint" binding:"required,url"`
	Keys     SubscriptionKeys `json:"keys" binding:"required"`
}

// UnsubscribeInput removes a push endpoint
type UnsubscribeInput struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// UserUseCase manages what a user tracks and how they are notified
type UserUseCase struct {
	users  *repository.UserRepository
	rivers repository.RiverRepository
	log    *zap.Logger
}

// NewUserUseCase creates a user use case
func NewUserUseCase(users *repository.UserRepository, rivers repository.RiverRepository, log *zap.Logger) *UserUseCase {
	return &UserUseCase{users: users, rivers: rivers, log: log.Named("user")}
}

// TrackedRivers returns the rivers the user tracks
func (uc *UserUseCase) TrackedRivers(ctx context.Context, userID string) ([]entities.UserRiver, error) {
	return uc.users.TrackedRivers(ctx, userID)
}

// TrackRiver adds a river to the user's list; notify defaults to on
func (uc *UserUseCase) TrackRiver(ctx context.Context, userID string, in TrackRiverInput) (*entities.UserRiver, error) {
	river, err := uc.rivers.Get(ctx, in.RiverID)
	if err != nil {
		return nil, err
	}
	ur := &entities.UserRiver{
		UserID:  userID,
		RiverID: river.ID,
		Notify:  in.Notify == nil || *in.Notify,
	}
	if err := uc.users.TrackRiver(ctx, ur); err != nil {
		return nil, err
	}
	ur.River = river
	return ur, nil
}

// UntrackRiver removes a river from the user's list
func (uc *UserUseCase) UntrackRiver(ctx context.Context, userID, riverID string) error {
	return uc.users.UntrackRiver(ctx, userID, riverID)
}

// Preferences returns the user's notification preferences
func (uc *UserUseCase) Preferences(ctx context.Context, userID string) (*entities.NotificationPreference, error) {
	return uc.users.GetPreferences(ctx, userID)
}

// UpdatePreferences applies a partial preference update
func (uc *UserUseCase) UpdatePreferences(ctx context.Context, userID string, in UpdatePreferencesInput) (*entities.NotificationPreference, error) {
	prefs, err := uc.users.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Channel != nil {
		switch *in.Channel {
		case entities.ChannelPush, entities.ChannelEmail, entities.ChannelBoth:
			prefs.Channel = *in.Channel
		default:
			return nil, entities.Invalid("Channel must be one of push, email, both")
		}
	}
	if in.DealAlerts != nil {
		prefs.DealAlerts = *in.DealAlerts
	}
	if in.ConditionAlerts != nil {
		prefs.ConditionAlerts = *in.ConditionAlerts
	}
	if in.HazardAlerts != nil {
		prefs.HazardAlerts = *in.HazardAlerts
	}
	if in.WeeklyDigest != nil {
		prefs.WeeklyDigest = *in.WeeklyDigest
	}
	if err := uc.users.SavePreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// Subscribe stores a browser push subscription; re-subscribing the same
// endpoint refreshes its keys
func (uc *UserUseCase) Subscribe(ctx context.Context, userID string, in SubscribeInput) (*entities.PushSubscription, error) {
	sub := &entities.PushSubscription{
		UserID:   userID,
		Endpoint: in.Endpoint,
		P256dh:   in.Keys.P256dh,
		Auth:     in.Keys.Auth,
	}
	if err := uc.users.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	uc.log.Info("Push subscription saved", zap.String("user_id", userID))
	return sub, nil
}

// Unsubscribe removes one of the user's push endpoints
func (uc *UserUseCase) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return uc.users.DeleteSubscription(ctx, userID, endpoint)
}
