package entities

import "time"

// Scraper source names. They double as keys in the source priority table.
const (
	SourceUSGS       = "usgs"
	SourceAW         = "aw"
	SourceBLM        = "blm"
	SourceUSFS       = "usfs"
	SourceFacebook   = "facebook"
	SourceCraigslist = "craigslist"
	SourceDealMatch  = "deal_matcher"
)

// ScrapedItem is a single record produced by a scraper. Exactly one of
// Condition, Advisory or Deal is set; AW items may also carry Hazards.
type ScrapedItem struct {
	Source    string
	SourceURL string
	ScrapedAt time.Time
	Condition *ConditionReading
	Advisory  *Advisory
	Deal      *DealListing
	Hazards   []HazardReport
	Raw       JSONMap
}

// ConditionReading is a gauge or report reading before normalisation
type ConditionReading struct {
	USGSGaugeID string
	AWID        string
	RiverID     string
	RiverName   string
	FlowRate    *float64
	GaugeHeight *float64
	WaterTemp   *float64
	FlowRange   *FlowRange
	// Quality is a quality label reported directly by the source, used when
	// no flow is available to classify.
	Quality     string
	Difficulty  string
	Description string
}

// FlowRange is a river's recommended flow window in CFS
type FlowRange struct {
	Min  *float64
	Max  *float64
	Unit string
}

// Advisory is a land agency notice that names a river
type Advisory struct {
	RiverName   string
	Type        string
	Severity    string
	Title       string
	Description string
	Area        string
	StartDate   *time.Time
	EndDate     *time.Time
}

// HazardReport is a hazard scraped from a river page
type HazardReport struct {
	Type        string
	Severity    string
	Title       string
	Description string
}

// DealListing is a marketplace listing as scraped
type DealListing struct {
	Title       string
	Price       *float64
	URL         string
	ImageURL    string
	Description string
	Category    string
	Region      string
	PostedAt    *time.Time
}

// ProcessedCondition summarises one condition written by the processor
type ProcessedCondition struct {
	RiverID        string
	RiverName      string
	Quality        string
	Runnability    string
	FlowRate       *float64
	GaugeHeight    *float64
	WaterTemp      *float64
	Source         string
	QualityChanged bool
	OldQuality     string
	NewQuality     string
}

// NewHazard is a hazard created during processing, with its river's name
type NewHazard struct {
	RiverName string
	Hazard    Hazard
}

// ProcessResult is everything the condition processor wrote in one run
type ProcessResult struct {
	Conditions []ProcessedCondition
	Hazards    []NewHazard
}

// DealMatch describes a deal that scored against a user's filter
type DealMatch struct {
	FilterID     string
	FilterName   string
	UserID       string
	DealID       string
	DealTitle    string
	DealPrice    *float64
	DealURL      string
	DealCategory string
	DealRegion   string
	Score        int
	Notify       bool
}
