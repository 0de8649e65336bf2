package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

type notifierFixture struct {
	db       *gorm.DB
	notifier *Notifier
	push     *fakePush
	mail     *fakeMailer
	users    *repository.UserRepository
	alerts   *repository.AlertRepository
	deals    *repository.DealRepository
}

func newNotifierFixture(t *testing.T) notifierFixture {
	db := newTestDB(t)
	f := notifierFixture{
		db:     db,
		push:   &fakePush{gone: map[string]bool{}},
		mail:   &fakeMailer{},
		users:  repository.NewUserRepository(db),
		alerts: repository.NewAlertRepository(db),
		deals:  repository.NewDealRepository(db),
	}
	f.notifier = NewNotifier(
		f.users,
		f.deals,
		f.alerts,
		repository.NewConditionRepository(db),
		repository.NewHazardRepository(db),
		f.push,
		f.mail,
		zap.NewNop(),
	)
	f.notifier.now = fixedNow
	return f
}

func (f notifierFixture) subscribe(t *testing.T, userID, endpoint string) {
	t.Helper()
	require.NoError(t, f.users.SaveSubscription(context.Background(), &entities.PushSubscription{
		UserID: userID, Endpoint: endpoint, P256dh: "key", Auth: "auth",
	}))
}

func (f notifierFixture) track(t *testing.T, userID, riverID string, notify bool) {
	t.Helper()
	require.NoError(t, f.users.TrackRiver(context.Background(), &entities.UserRiver{UserID: userID, RiverID: riverID, Notify: notify}))
}

func (f notifierFixture) alertsFor(t *testing.T, userID, kind string) []entities.AlertLog {
	t.Helper()
	out, _, err := f.alerts.ListForUser(context.Background(), userID, kind, repository.NewPage(1, 50))
	require.NoError(t, err)
	return out
}

func TestNotifyDealMatches(t *testing.T) {
	ctx := context.Background()
	f := newNotifierFixture(t)

	pushUser := seedUser(t, f.db, "push@example.com")
	mutedUser := seedUser(t, f.db, "muted@example.com")
	setPreferences(t, f.db, mutedUser.ID, func(p *entities.NotificationPreference) { p.DealAlerts = false })

	f.subscribe(t, pushUser.ID, "https://push.example/live")
	f.subscribe(t, pushUser.ID, "https://push.example/gone")
	f.push.gone["https://push.example/gone"] = true

	filter := &entities.DealFilter{UserID: pushUser.ID, Name: "Rafts", IsActive: true}
	require.NoError(t, f.deals.CreateFilter(ctx, filter))
	deal := &entities.GearDeal{Title: "NRS raft", URL: "https://bend.craigslist.org/1.html", Price: ptr(900.0), IsActive: true}
	require.NoError(t, f.deals.Create(ctx, deal))
	require.NoError(t, f.deals.CreateMatch(ctx, &entities.DealFilterMatch{FilterID: filter.ID, DealID: deal.ID, Score: 80}))

	sent, err := f.notifier.NotifyDealMatches(ctx, []entities.DealMatch{
		{FilterID: filter.ID, UserID: pushUser.ID, DealID: deal.ID, DealTitle: deal.Title, DealPrice: deal.Price, DealURL: deal.URL, Score: 80},
		{FilterID: "other", UserID: mutedUser.ID, DealID: "d2", DealTitle: "Paddle", Score: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, f.push.sent, 1)
	assert.Equal(t, "https://push.example/live", f.push.sent[0].Endpoint)
	assert.Equal(t, "🛶 Raft Watch Deal!", f.push.sent[0].Message.Title)
	assert.Empty(t, f.mail.sent, "default channel is push only")

	subs, err := f.users.SubscriptionsFor(ctx, pushUser.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1, "gone subscription removed")
	assert.Equal(t, "https://push.example/live", subs[0].Endpoint)

	logs := f.alertsFor(t, pushUser.ID, entities.AlertDeal)
	require.Len(t, logs, 1)
	assert.Equal(t, entities.ChannelPush, logs[0].Channel)
	assert.Empty(t, f.alertsFor(t, mutedUser.ID, ""))

	matches, _, err := f.deals.ListMatchesForUser(ctx, pushUser.ID, repository.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Notified)
}

func TestNotifyConditionChanges(t *testing.T) {
	ctx := context.Background()
	f := newNotifierFixture(t)
	river := seedRiver(t, f.db, "Salmon River")

	pushUser := seedUser(t, f.db, "push@example.com")
	bothUser := seedUser(t, f.db, "both@example.com")
	silent := seedUser(t, f.db, "silent@example.com")
	setPreferences(t, f.db, bothUser.ID, func(p *entities.NotificationPreference) { p.Channel = entities.ChannelBoth })

	f.subscribe(t, pushUser.ID, "https://push.example/a")
	f.subscribe(t, bothUser.ID, "https://push.example/b")
	f.track(t, pushUser.ID, river.ID, true)
	f.track(t, bothUser.ID, river.ID, true)
	f.track(t, silent.ID, river.ID, false)

	sent, err := f.notifier.NotifyConditionChanges(ctx, []entities.ProcessedCondition{
		{RiverID: river.ID, RiverName: river.Name, Quality: entities.QualityGood},
		{
			RiverID: river.ID, RiverName: river.Name, Quality: entities.QualityGood,
			QualityChanged: true, OldQuality: entities.QualityPoor, NewQuality: entities.QualityGood,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, f.push.sent, 2)
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "both@example.com", f.mail.sent[0].To)

	logs := f.alertsFor(t, bothUser.ID, entities.AlertCondition)
	require.Len(t, logs, 1)
	assert.Equal(t, entities.ChannelBoth, logs[0].Channel)
	assert.Equal(t, "🟢 Salmon River Conditions Improved", logs[0].Title)
	assert.Equal(t, entities.QualityGood, logs[0].Metadata["new_quality"])
	assert.Empty(t, f.alertsFor(t, silent.ID, ""))
}

func TestNotifyConditionChangesEmailFailure(t *testing.T) {
	ctx := context.Background()
	f := newNotifierFixture(t)
	river := seedRiver(t, f.db, "Salmon River")
	user := seedUser(t, f.db, "mail@example.com")
	setPreferences(t, f.db, user.ID, func(p *entities.NotificationPreference) { p.Channel = entities.ChannelEmail })
	f.track(t, user.ID, river.ID, true)
	f.mail.err = errors.New("provider down")

	sent, err := f.notifier.NotifyConditionChanges(ctx, []entities.ProcessedCondition{{
		RiverID: river.ID, RiverName: river.Name, QualityChanged: true,
		OldQuality: entities.QualityGood, NewQuality: entities.QualityDangerous,
	}})
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.alertsFor(t, user.ID, ""))
}

func TestNotifyHazards(t *testing.T) {
	ctx := context.Background()
	f := newNotifierFixture(t)
	rogue := seedRiver(t, f.db, "Rogue River")
	quiet := seedRiver(t, f.db, "Quiet Creek")

	user := seedUser(t, f.db, "haz@example.com")
	setPreferences(t, f.db, user.ID, func(p *entities.NotificationPreference) { p.Channel = entities.ChannelEmail })
	f.track(t, user.ID, rogue.ID, true)

	sent, err := f.notifier.NotifyHazards(ctx, []entities.NewHazard{
		{RiverName: rogue.Name, Hazard: entities.Hazard{Base: entities.Base{ID: "h1"}, RiverID: rogue.ID, Title: "Strainer", Severity: entities.SeverityWarning}},
		{RiverName: rogue.Name, Hazard: entities.Hazard{Base: entities.Base{ID: "h2"}, RiverID: rogue.ID, Title: "Ramp closed", Severity: entities.SeverityDanger}},
		{RiverName: quiet.Name, Hazard: entities.Hazard{Base: entities.Base{ID: "h3"}, RiverID: quiet.ID, Title: "Low water"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "one alert per river and watcher")
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, entities.AlertHazard, f.mail.sent[0].Kind)

	logs := f.alertsFor(t, user.ID, entities.AlertHazard)
	require.Len(t, logs, 1)
	assert.Equal(t, entities.ChannelEmail, logs[0].Channel)
	assert.Contains(t, logs[0].Body, "2 new hazards")
}

func TestSendWeeklyDigest(t *testing.T) {
	ctx := context.Background()
	f := newNotifierFixture(t)
	river := seedRiver(t, f.db, "Deschutes River")
	other := seedRiver(t, f.db, "Klamath River")

	reader := seedUser(t, f.db, "digest@example.com")
	setPreferences(t, f.db, reader.ID, func(p *entities.NotificationPreference) { p.WeeklyDigest = true })
	f.track(t, reader.ID, river.ID, false)
	f.track(t, reader.ID, other.ID, true)

	idle := seedUser(t, f.db, "idle@example.com")
	setPreferences(t, f.db, idle.ID, func(p *entities.NotificationPreference) { p.WeeklyDigest = true })

	conditions := repository.NewConditionRepository(f.db)
	require.NoError(t, conditions.Create(ctx, &entities.RiverCondition{
		RiverID: river.ID, FlowRate: ptr(4200.0), Quality: ptr(entities.QualityExcellent),
		Runnability: ptr(entities.RunnabilityOptimal), Source: entities.SourceUSGS, ScrapedAt: testNow,
	}))
	require.NoError(t, repository.NewHazardRepository(f.db).Create(ctx, &entities.Hazard{
		RiverID: river.ID, Type: "strainer", Severity: entities.SeverityWarning, Title: "Log", IsActive: true,
	}))

	sent, err := f.notifier.SendWeeklyDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "users without tracked rivers are skipped")

	rivers := f.mail.digests["digest@example.com"]
	require.Len(t, rivers, 2)
	byName := map[string]int{}
	for i, r := range rivers {
		byName[r.Name] = i
	}
	desch := rivers[byName["Deschutes River"]]
	assert.Equal(t, entities.QualityExcellent, desch.Quality)
	assert.Equal(t, 4200.0, *desch.FlowRate)
	assert.Equal(t, 1, desch.HazardCount)
	assert.Empty(t, rivers[byName["Klamath River"]].Quality)

	logs := f.alertsFor(t, reader.ID, entities.AlertDigest)
	require.Len(t, logs, 1)
	assert.Equal(t, entities.ChannelEmail, logs[0].Channel)
}

func TestSendWeeklyDigestWithoutEmail(t *testing.T) {
	f := newNotifierFixture(t)
	f.mail.disabled = true
	sent, err := f.notifier.SendWeeklyDigest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}
