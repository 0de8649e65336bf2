package entities

import "time"

// Delivery channels
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelBoth  = "both"
)

// Alert types recorded in the alert log
const (
	AlertDeal      = "deal"
	AlertCondition = "condition"
	AlertHazard    = "hazard"
	AlertDigest    = "digest"
)

// NotificationPreference controls which alerts a user gets and how
type NotificationPreference struct {
	Base
	UserID          string `gorm:"type:varchar(36);not null;uniqueIndex" json:"userId"`
	Channel         string `gorm:"size:8;not null" json:"channel"`
	DealAlerts      bool   `json:"dealAlerts"`
	ConditionAlerts bool   `json:"conditionAlerts"`
	HazardAlerts    bool   `json:"hazardAlerts"`
	WeeklyDigest    bool   `json:"weeklyDigest"`
}

// DefaultPreferences returns the preferences a new user starts with
func DefaultPreferences(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:          userID,
		Channel:         ChannelPush,
		DealAlerts:      true,
		ConditionAlerts: true,
		HazardAlerts:    true,
		WeeklyDigest:    false,
	}
}

// Wants reports whether the preference allows alerts of the given type
func (p *NotificationPreference) Wants(alertType string) bool {
	switch alertType {
	case AlertDeal:
		return p.DealAlerts
	case AlertCondition:
		return p.ConditionAlerts
	case AlertHazard:
		return p.HazardAlerts
	case AlertDigest:
		return p.WeeklyDigest
	}
	return false
}

// UsesPush reports whether push delivery is enabled
func (p *NotificationPreference) UsesPush() bool {
	return p.Channel == ChannelPush || p.Channel == ChannelBoth
}

// UsesEmail reports whether email delivery is enabled
func (p *NotificationPreference) UsesEmail() bool {
	return p.Channel == ChannelEmail || p.Channel == ChannelBoth
}

// AlertLog records a notification that was delivered to a user
type AlertLog struct {
	Base
	UserID   string    `gorm:"type:varchar(36);not null;index" json:"userId"`
	Type     string    `gorm:"size:16;not null;index" json:"type"`
	Channel  string    `gorm:"size:8;not null" json:"channel"`
	Title    string    `gorm:"size:512;not null" json:"title"`
	Body     string    `gorm:"type:text" json:"body,omitempty"`
	Metadata JSONMap   `gorm:"type:text" json:"metadata,omitempty"`
	SentAt   time.Time `gorm:"index" json:"sentAt"`
}

// Scrape log statuses
const (
	ScrapeSuccess = "success"
	ScrapeError   = "error"
)

// ScrapeLog records one run of a scraper or processor
type ScrapeLog struct {
	Base
	Source     string    `gorm:"size:32;not null;index" json:"source"`
	Status     string    `gorm:"size:16;not null" json:"status"`
	ItemCount  int       `json:"itemCount"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	Duration   int64     `json:"duration"`
	StartedAt  time.Time `gorm:"index" json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
