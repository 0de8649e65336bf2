package entities

import (
	"time"
)

// Quality labels shown to users, ordered from worst to best in QualityOrder
const (
	QualityDangerous = "dangerous"
	QualityPoor      = "poor"
	QualityFair      = "fair"
	QualityGood      = "good"
	QualityExcellent = "excellent"
)

// QualityOrder ranks quality labels from worst to best
var QualityOrder = []string{QualityDangerous, QualityPoor, QualityFair, QualityGood, QualityExcellent}

// QualityRank returns the position of q in QualityOrder, or -1 if unknown
func QualityRank(q string) int {
	for i, v := range QualityOrder {
		if v == q {
			return i
		}
	}
	return -1
}

// Directions of a quality change
const (
	TrendImproved     = "improved"
	TrendDeteriorated = "deteriorated"
	TrendChanged      = "changed"
)

// QualityTrend describes a change from one quality label to another
func QualityTrend(from, to string) string {
	switch {
	case QualityRank(to) > QualityRank(from):
		return TrendImproved
	case to == QualityDangerous:
		return TrendDeteriorated
	default:
		return TrendChanged
	}
}

// Runnability classifications derived from flow
const (
	RunnabilityTooLow    = "too_low"
	RunnabilityLow       = "low"
	RunnabilityRunnable  = "runnable"
	RunnabilityOptimal   = "optimal"
	RunnabilityHigh      = "high"
	RunnabilityTooHigh   = "too_high"
	RunnabilityDangerous = "dangerous"
)

// River represents a tracked waterway section
type River struct {
	Base
	Name        string   `gorm:"size:255;not null;index" json:"name"`
	State       string   `gorm:"size:64;index" json:"state"`
	Region      string   `gorm:"size:128" json:"region,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Difficulty  string   `gorm:"size:32" json:"difficulty,omitempty"`
	Description string   `gorm:"type:text" json:"description,omitempty"`
	AWID        *string  `gorm:"column:aw_id;size:64;uniqueIndex" json:"awId,omitempty"`
	USGSGaugeID *string  `gorm:"column:usgs_gauge_id;size:32;index" json:"usgsGaugeId,omitempty"`
	ImageURL    string   `gorm:"size:1024" json:"imageUrl,omitempty"`
}

// HasCoordinates reports whether the river can be placed on a map
func (r *River) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// RiverCondition is a single flow/quality snapshot for a river from one source
type RiverCondition struct {
	Base
	RiverID     string    `gorm:"type:varchar(36);not null;index:idx_condition_river_time,priority:1" json:"riverId"`
	FlowRate    *float64  `json:"flowRate,omitempty"`
	GaugeHeight *float64  `json:"gaugeHeight,omitempty"`
	WaterTemp   *float64  `json:"waterTemp,omitempty"`
	Quality     *string   `gorm:"size:32" json:"quality,omitempty"`
	Runnability *string   `gorm:"size:32" json:"runnability,omitempty"`
	Source      string    `gorm:"size:32;not null" json:"source"`
	SourceURL   string    `gorm:"size:1024" json:"sourceUrl,omitempty"`
	RawData     JSONMap   `gorm:"type:text" json:"rawData,omitempty"`
	ScrapedAt   time.Time `gorm:"not null;index:idx_condition_river_time,priority:2" json:"scrapedAt"`
	River       *River    `gorm:"foreignKey:RiverID" json:"river,omitempty"`
}

// QualityValue returns the quality label or "" when unset
func (c *RiverCondition) QualityValue() string {
	if c == nil || c.Quality == nil {
		return ""
	}
	return *c.Quality
}

// RunnabilityValue returns the runnability label or "" when unset
func (c *RiverCondition) RunnabilityValue() string {
	if c == nil || c.Runnability == nil {
		return ""
	}
	return *c.Runnability
}

// Hazard severities
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityDanger  = "danger"
)

// Hazard is a safety advisory tied to a river
type Hazard struct {
	Base
	RiverID     string     `gorm:"type:varchar(36);not null;index" json:"riverId"`
	Type        string     `gorm:"size:64;not null" json:"type"`
	Severity    string     `gorm:"size:16;not null;index" json:"severity"`
	Title       string     `gorm:"size:512;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Source      string     `gorm:"size:32" json:"source"`
	SourceURL   string     `gorm:"size:1024" json:"sourceUrl,omitempty"`
	ReportedAt  time.Time  `gorm:"index" json:"reportedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    bool       `gorm:"index" json:"isActive"`
	River       *River     `gorm:"foreignKey:RiverID" json:"river,omitempty"`
}

// RiverSummary is the river detail view with its latest reading and hazards
type RiverSummary struct {
	River
	LatestCondition *RiverCondition `json:"latestCondition,omitempty"`
	ActiveHazards   []Hazard        `json:"activeHazards"`
	AverageRating   float64         `json:"averageRating"`
	ReviewCount     int64           `json:"reviewCount"`
}
