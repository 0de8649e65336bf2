package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
)

type fakeEmails struct {
	sent []*resend.SendEmailRequest
	err  error
}

func (f *fakeEmails) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &resend.SendEmailResponse{Id: "email-1"}, nil
}

func newTestMailer() (*Mailer, *fakeEmails) {
	api := &fakeEmails{}
	m := NewMailerWithAPI(api, "alerts@waterwatcher.app", "https://ww.example.com/", zap.NewNop())
	m.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) }
	return m, api
}

func TestMailerDisabledWithoutKey(t *testing.T) {
	m := NewMailer(config.EmailConfig{FromAddress: "a@b.c"}, "", zap.NewNop())
	assert.False(t, m.Enabled())
	err := m.SendPasswordReset(context.Background(), "u@example.com", "tok")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendDealAlert(t *testing.T) {
	m, api := newTestMailer()
	price := 1200.0
	err := m.SendDealAlert(context.Background(), "u@example.com", []entities.DealMatch{
		{DealTitle: "NRS raft", DealPrice: &price, DealURL: "https://bend.craigslist.org/1.html", DealCategory: "raft", DealRegion: "bend"},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)

	sent := api.sent[0]
	assert.Equal(t, "alerts@waterwatcher.app", sent.From)
	assert.Equal(t, []string{"u@example.com"}, sent.To)
	assert.Equal(t, "🛶 Raft Watch Deal: NRS raft", sent.Subject)
	assert.Contains(t, sent.Html, "$1200")
	assert.Contains(t, sent.Html, "Raft")
	assert.Contains(t, sent.Html, `href="https://bend.craigslist.org/1.html"`)
	assert.Contains(t, sent.Html, "1 gear deal matching")
	assert.Contains(t, sent.Html, "https://ww.example.com/deals")

	require.NoError(t, m.SendDealAlert(context.Background(), "u@example.com", nil))
	assert.Len(t, api.sent, 1, "empty deal list sends nothing")
}

func TestSendConditionAlert(t *testing.T) {
	m, api := newTestMailer()
	flow := 1450.0
	err := m.SendConditionAlert(context.Background(), "u@example.com", entities.ProcessedCondition{
		RiverID:    "r1",
		RiverName:  "Salmon <Main>",
		OldQuality: entities.QualityFair,
		NewQuality: entities.QualityDangerous,
		FlowRate:   &flow,
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)

	assert.Equal(t, "🔴 Salmon <Main> - Conditions Deteriorated", api.sent[0].Subject)
	html := api.sent[0].Html
	assert.Contains(t, html, "Salmon &lt;Main&gt;")
	assert.Contains(t, html, "1450 CFS")
	assert.Contains(t, html, `class="badge badge-red"`)
	assert.NotContains(t, html, "Gauge Height")
	assert.Contains(t, html, "https://ww.example.com/rivers/r1")
}

func TestSendHazardAlert(t *testing.T) {
	m, api := newTestMailer()
	hazards := []entities.Hazard{
		{Title: "Strainer", Severity: entities.SeverityWarning, Type: "strainer"},
		{Title: "Bridge closed", Severity: entities.SeverityDanger, Type: "closure", Description: "Do not pass"},
	}
	require.NoError(t, m.SendHazardAlert(context.Background(), "u@example.com", "r1", "Rogue River", hazards))
	require.Len(t, api.sent, 1)
	assert.Equal(t, "🔴 Hazard Alert: Rogue River", api.sent[0].Subject)
	assert.Contains(t, api.sent[0].Html, "2 new hazards reported")
	assert.Contains(t, api.sent[0].Html, "DANGER")
	assert.Contains(t, api.sent[0].Html, "Do not pass")
}

func TestSendWeeklyDigest(t *testing.T) {
	m, api := newTestMailer()
	flow := 800.0
	err := m.SendWeeklyDigest(context.Background(), "u@example.com", []DigestRiver{
		{Name: "Salmon River", Quality: entities.QualityGood, Runnability: "too_low", FlowRate: &flow, HazardCount: 2},
		{Name: "Rogue River"},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)

	html := api.sent[0].Html
	assert.Equal(t, DigestSubject, api.sent[0].Subject)
	assert.Contains(t, html, "June 02, 2025")
	assert.Contains(t, html, "800 CFS")
	assert.Contains(t, html, "Too Low")
	assert.Contains(t, html, "⚠️ 2")
	assert.Contains(t, html, "unknown")
	assert.Contains(t, html, "✅ None")
}

func TestSendFailureIsReturned(t *testing.T) {
	api := &fakeEmails{err: errors.New("rate limited")}
	m := NewMailerWithAPI(api, "a@b.c", "", zap.NewNop())
	err := m.SendPasswordReset(context.Background(), "u@example.com", "tok")
	assert.ErrorContains(t, err, "rate limited")
}
