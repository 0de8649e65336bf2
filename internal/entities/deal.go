package entities

import "time"

// Gear categories assigned to scraped listings
const (
	CategoryRaft    = "raft"
	CategoryKayak   = "kayak"
	CategoryPaddle  = "paddle"
	CategoryPFD     = "pfd"
	CategoryDrysuit = "drysuit"
	CategoryOther   = "other"
)

// GearDeal is a marketplace listing for whitewater gear
type GearDeal struct {
	Base
	Title       string     `gorm:"size:512;not null" json:"title"`
	Price       *float64   `json:"price,omitempty"`
	URL         string     `gorm:"size:1024;not null;uniqueIndex" json:"url"`
	ImageURL    string     `gorm:"size:1024" json:"imageUrl,omitempty"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Category    string     `gorm:"size:32;index" json:"category,omitempty"`
	Region      string     `gorm:"size:64;index" json:"region,omitempty"`
	PostedAt    *time.Time `json:"postedAt,omitempty"`
	ScrapedAt   time.Time  `gorm:"index" json:"scrapedAt"`
	IsActive    bool       `json:"isActive"`
}

// DealFilter is a user's saved search for gear deals
type DealFilter struct {
	Base
	UserID     string     `gorm:"type:varchar(36);not null;index" json:"userId"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	Keywords   StringList `gorm:"type:text" json:"keywords"`
	Categories StringList `gorm:"type:text" json:"categories"`
	MaxPrice   *float64   `json:"maxPrice,omitempty"`
	Regions    StringList `gorm:"type:text" json:"regions"`
	IsActive   bool       `gorm:"index" json:"isActive"`
}

// DealFilterMatch links a deal to a filter it scored against
type DealFilterMatch struct {
	Base
	FilterID string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_filter_deal,priority:1" json:"filterId"`
	DealID   string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_filter_deal,priority:2" json:"dealId"`
	Score    int         `json:"score"`
	Notified bool        `json:"notified"`
	Filter   *DealFilter `gorm:"foreignKey:FilterID" json:"filter,omitempty"`
	Deal     *GearDeal   `gorm:"foreignKey:DealID" json:"deal,omitempty"`
}
