package push

import (
	"fmt"
	"strings"

	"github.com/abelzeko/water-watcher/internal/entities"
)

var trendEmoji = map[string]string{
	entities.TrendImproved:     "🟢",
	entities.TrendDeteriorated: "🔴",
	entities.TrendChanged:      "🟡",
}

var severityEmoji = map[string]string{
	entities.SeverityDanger:  "🔴",
	entities.SeverityWarning: "⚠️",
	entities.SeverityInfo:    "ℹ️",
}

// DealMessage summarises one user's new deal matches
func DealMessage(deals []entities.DealMatch) Message {
	if len(deals) == 1 {
		d := deals[0]
		body := d.DealTitle
		if d.DealPrice != nil && *d.DealPrice > 0 {
			body += fmt.Sprintf(" - $%.0f", *d.DealPrice)
		}
		url := d.DealURL
		if url == "" {
			url = "/deals"
		}
		return Message{Title: "🛶 Raft Watch Deal!", Body: body, URL: url, Tag: "raft-watch"}
	}

	titles := make([]string, 0, 3)
	for i, d := range deals {
		if i == 3 {
			break
		}
		titles = append(titles, truncate(d.DealTitle, 30))
	}
	body := strings.Join(titles, ", ")
	if len(deals) > 3 {
		body += fmt.Sprintf(" +%d more", len(deals)-3)
	}
	return Message{
		Title: fmt.Sprintf("🛶 %d New Raft Watch Deals!", len(deals)),
		Body:  body,
		URL:   "/deals",
		Tag:   "raft-watch",
	}
}

// ConditionMessage announces a quality change on a tracked river
func ConditionMessage(riverID, riverName, oldQuality, newQuality string) Message {
	trend := entities.QualityTrend(oldQuality, newQuality)
	return Message{
		Title: fmt.Sprintf("%s %s Conditions %s", trendEmoji[trend], riverName, strings.ToUpper(trend[:1])+trend[1:]),
		Body:  fmt.Sprintf("Quality went from %s to %s", oldQuality, newQuality),
		URL:   "/rivers/" + riverID,
		Tag:   "river-" + riverID,
	}
}

// HazardMessage announces a new hazard on a tracked river
func HazardMessage(riverID, riverName, title, severity string) Message {
	emoji, ok := severityEmoji[severity]
	if !ok {
		emoji = severityEmoji[entities.SeverityWarning]
	}
	return Message{
		Title: fmt.Sprintf("%s Hazard Alert: %s", emoji, riverName),
		Body:  title,
		URL:   "/rivers/" + riverID,
		Tag:   "hazard-" + riverID,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
