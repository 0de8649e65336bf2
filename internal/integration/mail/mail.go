// Package mail sends notification emails through Resend
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
)

// ErrNotConfigured is returned when no Resend API key is set
var ErrNotConfigured = errors.New("email notifications are not configured")

// EmailAPI is the part of the Resend client the mailer uses
type EmailAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Mailer renders and sends notification emails
type Mailer struct {
	api     EmailAPI
	from    string
	baseURL string
	log     *zap.Logger
	now     func() time.Time
}

// NewMailer creates a Resend-backed mailer. With no API key every send
// returns ErrNotConfigured.
func NewMailer(cfg config.EmailConfig, baseURL string, log *zap.Logger) *Mailer {
	var api EmailAPI
	if cfg.ResendAPIKey != "" {
		api = resend.NewClient(cfg.ResendAPIKey).Emails
	}
	return NewMailerWithAPI(api, cfg.FromAddress, baseURL, log)
}

// NewMailerWithAPI creates a mailer over an existing email API
func NewMailerWithAPI(api EmailAPI, from, baseURL string, log *zap.Logger) *Mailer {
	return &Mailer{
		api:     api,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With(zap.String("channel", "email")),
		now:     time.Now,
	}
}

// Enabled reports whether emails can be sent
func (m *Mailer) Enabled() bool {
	return m.api != nil
}

func (m *Mailer) send(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	_, err := m.api.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    buf.String(),
	})
	if err != nil {
		m.log.Error("Failed to send email", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.log.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

type dealRow struct {
	Title    string
	URL      string
	Price    string
	Category string
	Region   string
}

// DealAlertSubject is the subject line of a deal alert
func DealAlertSubject(deals []entities.DealMatch) string {
	if len(deals) == 1 {
		return "🛶 Raft Watch Deal: " + deals[0].DealTitle
	}
	return fmt.Sprintf("🛶 %d New Raft Watch Deals!", len(deals))
}

// SendDealAlert emails the deals matched by a user's filters
func (m *Mailer) SendDealAlert(ctx context.Context, to string, deals []entities.DealMatch) error {
	if len(deals) == 0 {
		return nil
	}
	rows := make([]dealRow, 0, len(deals))
	for _, d := range deals {
		row := dealRow{
			Title:    d.DealTitle,
			URL:      d.DealURL,
			Price:    "N/A",
			Category: titleCase(d.DealCategory),
			Region:   d.DealRegion,
		}
		if d.DealPrice != nil {
			row.Price = fmt.Sprintf("$%.0f", *d.DealPrice)
		}
		if row.Region == "" {
			row.Region = "-"
		}
		rows = append(rows, row)
	}
	return m.send(ctx, to, DealAlertSubject(deals), dealTemplate, map[string]any{
		"Heading": "New Gear Deals",
		"Deals":   rows,
		"BaseURL": m.baseURL,
	})
}

type detailRow struct {
	Label string
	Value string
}

var trendBadge = map[string]string{
	entities.TrendImproved:     "badge-green",
	entities.TrendDeteriorated: "badge-red",
	entities.TrendChanged:      "badge-yellow",
}

var trendEmoji = map[string]string{
	entities.TrendImproved:     "🟢",
	entities.TrendDeteriorated: "🔴",
	entities.TrendChanged:      "🟡",
}

// ConditionAlertSubject is the subject line of a condition change email
func ConditionAlertSubject(c entities.ProcessedCondition) string {
	trend := entities.QualityTrend(c.OldQuality, c.NewQuality)
	return fmt.Sprintf("%s %s - Conditions %s", trendEmoji[trend], c.RiverName, titleCase(trend))
}

// SendConditionAlert emails a quality change on a tracked river
func (m *Mailer) SendConditionAlert(ctx context.Context, to string, c entities.ProcessedCondition) error {
	trend := entities.QualityTrend(c.OldQuality, c.NewQuality)

	var details []detailRow
	if c.FlowRate != nil {
		details = append(details, detailRow{"Flow Rate", fmt.Sprintf("%.0f CFS", *c.FlowRate)})
	}
	if c.GaugeHeight != nil {
		details = append(details, detailRow{"Gauge Height", fmt.Sprintf("%.1f ft", *c.GaugeHeight)})
	}
	if c.WaterTemp != nil {
		details = append(details, detailRow{"Water Temp", fmt.Sprintf("%.0f°F", *c.WaterTemp)})
	}

	link := m.baseURL + "/rivers"
	if c.RiverID != "" {
		link += "/" + c.RiverID
	}

	return m.send(ctx, to, ConditionAlertSubject(c), conditionTemplate, map[string]any{
		"Heading":    "Conditions " + titleCase(trend),
		"RiverName":  c.RiverName,
		"OldQuality": c.OldQuality,
		"NewQuality": c.NewQuality,
		"Badge":      trendBadge[trend],
		"Details":    details,
		"Link":       link,
	})
}

type hazardRow struct {
	Title       string
	Severity    string
	Type        string
	Badge       string
	Description string
}

var severityEmoji = map[string]string{
	entities.SeverityDanger:  "🔴",
	entities.SeverityWarning: "⚠️",
	entities.SeverityInfo:    "ℹ️",
}

// topSeverity returns the most severe level among hazards
func topSeverity(hazards []entities.Hazard) string {
	top := entities.SeverityInfo
	for _, h := range hazards {
		if h.Severity == entities.SeverityDanger {
			return entities.SeverityDanger
		}
		if h.Severity == entities.SeverityWarning {
			top = entities.SeverityWarning
		}
	}
	return top
}

// HazardAlertSubject is the subject line of a hazard email
func HazardAlertSubject(riverName string, hazards []entities.Hazard) string {
	return fmt.Sprintf("%s Hazard Alert: %s", severityEmoji[topSeverity(hazards)], riverName)
}

// SendHazardAlert emails new hazards reported on a tracked river
func (m *Mailer) SendHazardAlert(ctx context.Context, to, riverID, riverName string, hazards []entities.Hazard) error {
	if len(hazards) == 0 {
		return nil
	}
	rows := make([]hazardRow, 0, len(hazards))
	for _, h := range hazards {
		badge := "badge-blue"
		switch h.Severity {
		case entities.SeverityDanger:
			badge = "badge-red"
		case entities.SeverityWarning:
			badge = "badge-yellow"
		}
		rows = append(rows, hazardRow{
			Title:       h.Title,
			Severity:    strings.ToUpper(h.Severity),
			Type:        h.Type,
			Badge:       badge,
			Description: truncate(h.Description, 200),
		})
	}
	return m.send(ctx, to, HazardAlertSubject(riverName, hazards), hazardTemplate, map[string]any{
		"Heading":   "Hazard Alert",
		"RiverName": riverName,
		"Hazards":   rows,
		"Link":      m.baseURL + "/rivers/" + riverID,
	})
}

// DigestRiver is one line of the weekly digest
type DigestRiver struct {
	Name        string
	Quality     string
	Runnability string
	FlowRate    *float64
	HazardCount int
}

type digestRow struct {
	Name        string
	Quality     string
	Badge       string
	Flow        string
	Runnability string
	Hazards     string
}

var qualityBadge = map[string]string{
	entities.QualityExcellent: "badge-green",
	entities.QualityGood:      "badge-green",
	entities.QualityFair:      "badge-yellow",
	entities.QualityPoor:      "badge-red",
	entities.QualityDangerous: "badge-red",
}

// DigestSubject is the subject line of the weekly digest
const DigestSubject = "🏞️ Water-Watcher Weekly Digest"

// SendWeeklyDigest emails a summary of the user's tracked rivers
func (m *Mailer) SendWeeklyDigest(ctx context.Context, to string, rivers []DigestRiver) error {
	if len(rivers) == 0 {
		return nil
	}
	rows := make([]digestRow, 0, len(rivers))
	for _, r := range rivers {
		row := digestRow{
			Name:        r.Name,
			Quality:     r.Quality,
			Flow:        "-",
			Runnability: "-",
			Hazards:     "✅ None",
		}
		if row.Quality == "" {
			row.Quality = "unknown"
		}
		row.Badge = qualityBadge[row.Quality]
		if row.Badge == "" {
			row.Badge = "badge-blue"
		}
		if r.FlowRate != nil {
			row.Flow = fmt.Sprintf("%.0f CFS", *r.FlowRate)
		}
		if r.Runnability != "" {
			row.Runnability = titleCase(strings.ReplaceAll(r.Runnability, "_", " "))
		}
		if r.HazardCount > 0 {
			row.Hazards = fmt.Sprintf("⚠️ %d", r.HazardCount)
		}
		rows = append(rows, row)
	}
	return m.send(ctx, to, DigestSubject, digestTemplate, map[string]any{
		"Heading": "Weekly Digest",
		"Date":    m.now().UTC().Format("January 02, 2006"),
		"Rivers":  rows,
		"BaseURL": m.baseURL,
	})
}

// SendPasswordReset emails a password reset link
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	return m.send(ctx, to, "Reset your Water-Watcher password", resetTemplate, map[string]any{
		"Heading": "Password Reset",
		"Link":    m.baseURL + "/reset-password?token=" + token,
	})
}

// titleCase upper-cases the first letter of each word
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
