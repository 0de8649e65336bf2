package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/auth"
	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noMail struct{}

func (noMail) Enabled() bool { return false }

func (noMail) SendPasswordReset(context.Context, string, string) error { return nil }

type testServer struct {
	db     *gorm.DB
	cfg    *config.Config
	tokens *auth.JWTManager
	svc    Services
	server *Server
	router *gin.Engine
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "water-watcher", Env: "test", BaseURL: "http://localhost:3000"},
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			Expiration: time.Hour,
			Issuer:     "water-watcher",
			CookieName: "ww_session",
		},
		RateLimit: config.RateLimitConfig{Requests: 60, Window: time.Minute, AuthRequests: 10, AuthWindow: time.Minute},
		SSE:       config.SSEConfig{PollInterval: 20 * time.Millisecond, Lookback: 5 * time.Minute},
	}
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db, err := repository.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		URL:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = repository.Close(db) })

	log := zap.NewNop()
	rivers := repository.NewRiverRepository(db)
	conditions := repository.NewConditionRepository(db)
	hazards := repository.NewHazardRepository(db)
	reviews := repository.NewReviewRepository(db)
	deals := repository.NewDealRepository(db)
	trips := repository.NewTripRepository(db)
	users := repository.NewUserRepository(db)
	tokens := auth.NewJWTManager(cfg.JWT)

	svc := Services{
		Auth:      usecases.NewAuthUseCase(users, tokens, noMail{}, log),
		Rivers:    usecases.NewRiverUseCase(rivers, conditions, hazards, reviews, log),
		Reviews:   usecases.NewReviewUseCase(reviews, rivers, log),
		Deals:     usecases.NewDealUseCase(deals, log),
		Trips:     usecases.NewTripUseCase(trips, rivers, log),
		Users:     usecases.NewUserUseCase(users, rivers, log),
		Alerts:    usecases.NewAlertUseCase(repository.NewAlertRepository(db)),
		Analytics: usecases.NewAnalyticsUseCase(repository.NewAnalyticsRepository(db)),
		Admin:     usecases.NewAdminUseCase(repository.NewScrapeLogRepository(db)),
		Feed:      usecases.NewFeedUseCase(conditions, hazards, deals),
		Export:    usecases.NewExportUseCase(rivers, conditions, deals, trips, hazards),
	}
	server := NewServer(cfg, log, tokens, svc, nil)

	return &testServer{db: db, cfg: cfg, tokens: tokens, svc: svc, server: server, router: server.Router()}
}

// userToken creates a user with the given role and returns a session token
func (ts *testServer) userToken(t *testing.T, email, role string) (*entities.User, string) {
	t.Helper()
	u := &entities.User{Email: email, Name: "Paddler", PasswordHash: "x", Role: role}
	require.NoError(t, repository.NewUserRepository(ts.db).Create(context.Background(), u))
	token, _, err := ts.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (ts *testServer) seedRiver(t *testing.T, name string) *entities.River {
	t.Helper()
	r := &entities.River{Name: name, State: "ID", Difficulty: "Class III"}
	require.NoError(t, repository.NewRiverRepository(ts.db).Create(context.Background(), r))
	return r
}

func (ts *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
	Meta    *Meta           `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	env := decode(t, w)
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, w)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	return env.Error.Code
}
