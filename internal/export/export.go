// Package export renders rivers, conditions, deals, trips and hazards as
// JSON, CSV or GPX downloads.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// Format is an output encoding
type Format string

// Supported formats
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatGPX  Format = "gpx"
)

// Type is the kind of record being exported
type Type string

// Exportable record types
const (
	TypeRivers     Type = "rivers"
	TypeConditions Type = "conditions"
	TypeDeals      Type = "deals"
	TypeTrips      Type = "trips"
	TypeHazards    Type = "hazards"
)

// ParseFormat validates a format name; empty means JSON
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatGPX:
		return f, nil
	}
	return "", entities.Invalid("Format must be one of json, csv, gpx")
}

// ParseType validates a record type name
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeRivers, TypeConditions, TypeDeals, TypeTrips, TypeHazards:
		return t, nil
	}
	return "", entities.Invalid("Type must be one of rivers, conditions, deals, trips, hazards")
}

// SupportsGPX reports whether records of this type carry a location
func (t Type) SupportsGPX() bool {
	return t == TypeRivers || t == TypeTrips
}

// Dataset is a set of records of one type. Rows holds the typed slice
// matching Type: []River, []RiverCondition, []GearDeal, []Trip or []Hazard.
type Dataset struct {
	Type Type
	Rows any
}

// ContentType returns the MIME type of a format
func ContentType(f Format) string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatGPX:
		return "application/gpx+xml"
	}
	return "application/json; charset=utf-8"
}

// Filename builds the download name, e.g. water-watcher-rivers-2025-06-02.csv
func Filename(t Type, f Format, now time.Time) string {
	return fmt.Sprintf("water-watcher-%s-%s.%s", t, now.UTC().Format("2006-01-02"), f)
}

// Write encodes the dataset in the given format
func Write(w io.Writer, f Format, ds Dataset) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, ds)
	case FormatGPX:
		return WriteGPX(w, ds)
	}
	return WriteJSON(w, ds)
}

type jsonExport struct {
	Type       Type      `json:"type"`
	ExportedAt time.Time `json:"exportedAt"`
	Count      int       `json:"count"`
	Data       any       `json:"data"`
}

// WriteJSON writes the rows wrapped with their type and count
func WriteJSON(w io.Writer, ds Dataset) error {
	n, err := rowCount(ds)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonExport{
		Type:       ds.Type,
		ExportedAt: time.Now().UTC(),
		Count:      n,
		Data:       ds.Rows,
	})
}

// WriteCSV writes a header row and one record per row. Trips get one
// record per stop.
func WriteCSV(w io.Writer, ds Dataset) error {
	header, records, err := csvRecords(ds)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func rowCount(ds Dataset) (int, error) {
	switch rows := ds.Rows.(type) {
	case []entities.River:
		return len(rows), nil
	case []entities.RiverCondition:
		return len(rows), nil
	case []entities.GearDeal:
		return len(rows), nil
	case []entities.Trip:
		return len(rows), nil
	case []entities.Hazard:
		return len(rows), nil
	}
	return 0, fmt.Errorf("unsupported export rows %T", ds.Rows)
}

func csvRecords(ds Dataset) ([]string, [][]string, error) {
	switch rows := ds.Rows.(type) {
	case []entities.River:
		out := make([][]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, []string{
				r.ID, r.Name, r.State, r.Region, r.Difficulty,
				floatPtr(r.Latitude), floatPtr(r.Longitude),
				strPtr(r.USGSGaugeID), strPtr(r.AWID),
			})
		}
		return []string{"id", "name", "state", "region", "difficulty", "latitude", "longitude", "usgs_gauge_id", "aw_id"}, out, nil

	case []entities.RiverCondition:
		out := make([][]string, 0, len(rows))
		for _, c := range rows {
			name := ""
			if c.River != nil {
				name = c.River.Name
			}
			out = append(out, []string{
				c.RiverID, name,
				floatPtr(c.FlowRate), floatPtr(c.GaugeHeight), floatPtr(c.WaterTemp),
				c.QualityValue(), c.RunnabilityValue(), c.Source,
				c.ScrapedAt.UTC().Format(time.RFC3339),
			})
		}
		return []string{"river_id", "river_name", "flow_rate", "gauge_height", "water_temp", "quality", "runnability", "source", "scraped_at"}, out, nil

	case []entities.GearDeal:
		out := make([][]string, 0, len(rows))
		for _, d := range rows {
			out = append(out, []string{
				d.ID, d.Title, floatPtr(d.Price), d.Category, d.Region, d.URL,
				timePtr(d.PostedAt), d.ScrapedAt.UTC().Format(time.RFC3339),
			})
		}
		return []string{"id", "title", "price", "category", "region", "url", "posted_at", "scraped_at"}, out, nil

	case []entities.Trip:
		var out [][]string
		for _, t := range rows {
			base := []string{t.ID, t.Name, t.Status, t.StartDate.Format("2006-01-02"), t.EndDate.Format("2006-01-02")}
			if len(t.Stops) == 0 {
				out = append(out, append(base, "", "", "", "", t.Notes))
				continue
			}
			for _, s := range t.Stops {
				river := s.RiverID
				if s.River != nil {
					river = s.River.Name
				}
				row := append(append([]string{}, base...), strconv.Itoa(s.DayNumber), river, s.PutInTime, s.TakeOutTime, s.Notes)
				out = append(out, row)
			}
		}
		return []string{"trip_id", "name", "status", "start_date", "end_date", "day_number", "river", "put_in_time", "take_out_time", "notes"}, out, nil

	case []entities.Hazard:
		out := make([][]string, 0, len(rows))
		for _, h := range rows {
			name := ""
			if h.River != nil {
				name = h.River.Name
			}
			out = append(out, []string{
				h.ID, h.RiverID, name, h.Type, h.Severity, h.Title, h.Source,
				h.ReportedAt.UTC().Format(time.RFC3339), timePtr(h.ExpiresAt),
				strconv.FormatBool(h.IsActive),
			})
		}
		return []string{"id", "river_id", "river_name", "type", "severity", "title", "source", "reported_at", "expires_at", "is_active"}, out, nil
	}
	return nil, nil, fmt.Errorf("unsupported export rows %T", ds.Rows)
}

func floatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
