package entities

import "time"

// Trip statuses
const (
	TripPlanning  = "planning"
	TripActive    = "active"
	TripCompleted = "completed"
	TripCancelled = "cancelled"
)

// Trip is a user's planned multi-day river trip
type Trip struct {
	Base
	UserID    string     `gorm:"type:varchar(36);not null;index" json:"userId"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	StartDate time.Time  `json:"startDate"`
	EndDate   time.Time  `json:"endDate"`
	Status    string     `gorm:"size:16;not null" json:"status"`
	Notes     string     `gorm:"type:text" json:"notes,omitempty"`
	IsPublic  bool       `json:"isPublic"`
	Stops     []TripStop `gorm:"foreignKey:TripID" json:"stops"`
}

// TripStop is one river visit within a trip
type TripStop struct {
	Base
	TripID      string `gorm:"type:varchar(36);not null;index" json:"tripId"`
	RiverID     string `gorm:"type:varchar(36);not null" json:"riverId"`
	DayNumber   int    `json:"dayNumber"`
	Notes       string `gorm:"type:text" json:"notes,omitempty"`
	PutInTime   string `gorm:"size:16" json:"putInTime,omitempty"`
	TakeOutTime string `gorm:"size:16" json:"takeOutTime,omitempty"`
	SortOrder   int    `json:"sortOrder"`
	River       *River `gorm:"foreignKey:RiverID" json:"river,omitempty"`
}

// RiverReview is a user's rating of a river
type RiverReview struct {
	Base
	RiverID    string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_review_river_user,priority:1" json:"riverId"`
	UserID     string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_review_river_user,priority:2" json:"userId"`
	Rating     int        `gorm:"not null" json:"rating"`
	Title      string     `gorm:"size:255" json:"title,omitempty"`
	Body       string     `gorm:"type:text" json:"body"`
	VisitDate  *time.Time `json:"visitDate,omitempty"`
	Difficulty string     `gorm:"size:32" json:"difficulty,omitempty"`
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
