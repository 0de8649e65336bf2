package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
)

const gpxCreator = "Water-Watcher"

type gpxDoc struct {
	XMLName   xml.Name      `xml:"gpx"`
	Version   string        `xml:"version,attr"`
	Creator   string        `xml:"creator,attr"`
	Namespace string        `xml:"xmlns,attr"`
	Metadata  gpxMetadata   `xml:"metadata"`
	Waypoints []gpxWaypoint `xml:"wpt"`
	Routes    []gpxRoute    `xml:"rte"`
}

type gpxMetadata struct {
	Name string `xml:"name"`
	Time string `xml:"time"`
}

type gpxWaypoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name"`
	Desc string  `xml:"desc,omitempty"`
	Type string  `xml:"type,omitempty"`
}

type gpxRoute struct {
	Name   string        `xml:"name"`
	Desc   string        `xml:"desc,omitempty"`
	Points []gpxWaypoint `xml:"rtept"`
}

// WriteGPX writes a GPX 1.1 document: one waypoint per river with
// coordinates, or one route per trip through its stops' rivers. Rivers
// without coordinates are left out.
func WriteGPX(w io.Writer, ds Dataset) error {
	if !ds.Type.SupportsGPX() {
		return entities.Invalid(fmt.Sprintf("GPX export is only available for rivers and trips, not %s", ds.Type))
	}

	doc := gpxDoc{
		Version:   "1.1",
		Creator:   gpxCreator,
		Namespace: "http://www.topografix.com/GPX/1/1",
		Metadata: gpxMetadata{
			Name: "Water-Watcher " + string(ds.Type),
			Time: time.Now().UTC().Format(time.RFC3339),
		},
	}

	switch rows := ds.Rows.(type) {
	case []entities.River:
		for i := range rows {
			if wpt, ok := riverWaypoint(&rows[i]); ok {
				doc.Waypoints = append(doc.Waypoints, wpt)
			}
		}
	case []entities.Trip:
		for _, t := range rows {
			rte := gpxRoute{
				Name: t.Name,
				Desc: fmt.Sprintf("%s to %s (%s)", t.StartDate.Format("2006-01-02"), t.EndDate.Format("2006-01-02"), t.Status),
			}
			for _, s := range t.Stops {
				if s.River == nil {
					continue
				}
				if wpt, ok := riverWaypoint(s.River); ok {
					wpt.Desc = fmt.Sprintf("Day %d", s.DayNumber)
					rte.Points = append(rte.Points, wpt)
				}
			}
			doc.Routes = append(doc.Routes, rte)
		}
	default:
		return fmt.Errorf("unsupported gpx rows %T", ds.Rows)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write gpx header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode gpx: %w", err)
	}
	return enc.Flush()
}

func riverWaypoint(r *entities.River) (gpxWaypoint, bool) {
	if !r.HasCoordinates() {
		return gpxWaypoint{}, false
	}
	desc := strings.TrimSpace(strings.Join(nonEmpty(r.State, r.Difficulty), ", "))
	return gpxWaypoint{
		Lat:  *r.Latitude,
		Lon:  *r.Longitude,
		Name: r.Name,
		Desc: desc,
		Type: "river",
	}, true
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
