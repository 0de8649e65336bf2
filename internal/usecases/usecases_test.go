package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/integration/mail"
	"github.com/abelzeko/water-watcher/internal/integration/push"
	"github.com/abelzeko/water-watcher/internal/repository"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func ptr[T any](v T) *T { return &v }

// newTestDB opens a private in-memory SQLite database with every table migrated
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		URL:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = repository.Close(db) })
	return db
}

func seedRiver(t *testing.T, db *gorm.DB, name string, mutate ...func(*entities.River)) *entities.River {
	t.Helper()
	r := &entities.River{Name: name, State: "OR", Difficulty: "Class III"}
	for _, m := range mutate {
		m(r)
	}
	require.NoError(t, repository.NewRiverRepository(db).Create(context.Background(), r))
	return r
}

func seedUser(t *testing.T, db *gorm.DB, email string, mutate ...func(*entities.User)) *entities.User {
	t.Helper()
	u := &entities.User{Email: email, Name: "Paddler", PasswordHash: "x", Role: entities.RoleUser}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, repository.NewUserRepository(db).Create(context.Background(), u))
	return u
}

func setPreferences(t *testing.T, db *gorm.DB, userID string, mutate func(*entities.NotificationPreference)) {
	t.Helper()
	p := entities.DefaultPreferences(userID)
	mutate(&p)
	require.NoError(t, repository.NewUserRepository(db).SavePreferences(context.Background(), &p))
}

type sentPush struct {
	Endpoint string
	Message  push.Message
}

type fakePush struct {
	mu       sync.Mutex
	disabled bool
	gone     map[string]bool
	sent     []sentPush
}

func (f *fakePush) Enabled() bool { return !f.disabled }

func (f *fakePush) Send(ctx context.Context, sub push.Subscription, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[sub.Endpoint] {
		return push.ErrSubscriptionGone
	}
	f.sent = append(f.sent, sentPush{Endpoint: sub.Endpoint, Message: msg})
	return nil
}

type sentMail struct {
	To   string
	Kind string
}

type fakeMailer struct {
	mu       sync.Mutex
	disabled bool
	err      error
	sent     []sentMail
	digests  map[string][]mail.DigestRiver
	resets   map[string]string
}

func (f *fakeMailer) Enabled() bool { return !f.disabled }

func (f *fakeMailer) record(to, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Kind: kind})
	return nil
}

func (f *fakeMailer) SendDealAlert(ctx context.Context, to string, deals []entities.DealMatch) error {
	return f.record(to, entities.AlertDeal)
}

func (f *fakeMailer) SendConditionAlert(ctx context.Context, to string, c entities.ProcessedCondition) error {
	return f.record(to, entities.AlertCondition)
}

func (f *fakeMailer) SendHazardAlert(ctx context.Context, to, riverID, riverName string, hazards []entities.Hazard) error {
	return f.record(to, entities.AlertHazard)
}

func (f *fakeMailer) SendWeeklyDigest(ctx context.Context, to string, rivers []mail.DigestRiver) error {
	if err := f.record(to, entities.AlertDigest); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.digests == nil {
		f.digests = make(map[string][]mail.DigestRiver)
	}
	f.digests[to] = rivers
	return nil
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	if err := f.record(to, "reset"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resets == nil {
		f.resets = make(map[string]string)
	}
	f.resets[to] = token
	return nil
}
