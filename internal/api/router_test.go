package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "report-uri /api/csp-report")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, entities.CodeNotFound, errorCode(t, w))
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/auth/register", map[string]string{"email": "not-an-email", "password": "short"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, entities.CodeValidation, env.Error.Code)
	fields := map[string]string{}
	for _, d := range env.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Invalid email format", fields["email"])
	assert.Equal(t, "Must be at least 8 characters", fields["password"])

	creds := map[string]string{"email": "river@example.com", "name": "River Rat", "password": "hunter22hunter"}
	w = ts.do(http.MethodPost, "/api/auth/register", creds, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, "/api/auth/register", creds, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": creds["email"], "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/api/auth/login", map[string]string{"email": creds["email"], "password": creds["password"]}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decodeData[usecases.Session](t, w)
	require.NotEmpty(t, session.Token)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "ww_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, session.Token, cookie.Value)

	w = ts.do(http.MethodGet, "/api/auth/me", nil, session.Token)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeData[entities.User](t, w)
	assert.Equal(t, "river@example.com", me.Email)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = ts.do(http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, entities.CodeUnauthorized, errorCode(t, w))

	w = ts.do(http.MethodGet, "/api/auth/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, w))
}

func TestRiverRoutes(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.userToken(t, "admin@example.com", entities.RoleAdmin)
	_, userToken := ts.userToken(t, "user@example.com", entities.RoleUser)

	body := map[string]any{"name": "Middle Fork Salmon", "state": "ID", "difficulty": "Class III"}
	w := ts.do(http.MethodPost, "/api/rivers", body, userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(http.MethodPost, "/api/rivers", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/api/rivers", body, adminToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	river := decodeData[entities.River](t, w)

	for i := 0; i < 3; i++ {
		ts.seedRiver(t, "Extra River "+string(rune('A'+i)))
	}

	w = ts.do(http.MethodGet, "/api/rivers?page=abc&limit=500", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Page)
	assert.Equal(t, 100, env.Meta.PageSize)
	assert.EqualValues(t, 4, env.Meta.Total)

	w = ts.do(http.MethodGet, "/api/rivers?page=9223372036854775807&limit=100", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env = decode(t, w)
	assert.Equal(t, repository.MaxPageNumber, env.Meta.Page)
	assert.EqualValues(t, 4, env.Meta.Total)

	w = ts.do(http.MethodGet, "/api/rivers?limit=2&page=2", nil, "")
	env = decode(t, w)
	assert.Equal(t, 2, env.Meta.TotalPages)

	w = ts.do(http.MethodGet, "/api/rivers?search=salmon", nil, "")
	env = decode(t, w)
	assert.EqualValues(t, 1, env.Meta.Total)

	w = ts.do(http.MethodGet, "/api/rivers/"+river.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decodeData[entities.RiverSummary](t, w)
	assert.Equal(t, "Middle Fork Salmon", summary.Name)

	w = ts.do(http.MethodPatch, "/api/rivers/"+river.ID, map[string]any{"region": "Frank Church"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Frank Church", decodeData[entities.River](t, w).Region)

	w = ts.do(http.MethodGet, "/api/rivers/"+river.ID+"/conditions?limit=5", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, "/api/rivers/"+river.ID+"/hazards", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodDelete, "/api/rivers/"+river.ID, nil, adminToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(http.MethodGet, "/api/rivers/"+river.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/hazards?severity=apocalyptic", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewRoutes(t *testing.T) {
	ts := newTestServer(t)
	river := ts.seedRiver(t, "Gauley River")
	_, author := ts.userToken(t, "author@example.com", entities.RoleUser)
	_, other := ts.userToken(t, "other@example.com", entities.RoleUser)
	_, admin := ts.userToken(t, "mod@example.com", entities.RoleAdmin)

	path := "/api/rivers/" + river.ID + "/reviews"
	w := ts.do(http.MethodPost, path, map[string]any{"rating": 6, "body": "Huge"}, author)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, path, map[string]any{"rating": 5, "body": "Pillow Rock is huge"}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	review := decodeData[entities.RiverReview](t, w)

	w = ts.do(http.MethodPost, path, map[string]any{"rating": 4, "body": "Again"}, author)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodGet, path, nil, "")
	env := decode(t, w)
	assert.EqualValues(t, 1, env.Meta.Total)

	w = ts.do(http.MethodPatch, "/api/reviews/"+review.ID, map[string]any{"rating": 1}, other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(http.MethodPatch, "/api/reviews/"+review.ID, map[string]any{"rating": 4}, author)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decodeData[entities.RiverReview](t, w).Rating)

	w = ts.do(http.MethodDelete, "/api/reviews/"+review.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(http.MethodDelete, "/api/reviews/"+review.ID, nil, admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTripVisibility(t *testing.T) {
	ts := newTestServer(t)
	river := ts.seedRiver(t, "Grand Canyon")
	_, owner := ts.userToken(t, "owner@example.com", entities.RoleUser)
	_, stranger := ts.userToken(t, "stranger@example.com", entities.RoleUser)

	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	w := ts.do(http.MethodPost, "/api/trips", map[string]any{
		"name": "Lees Ferry to Diamond Creek", "startDate": start, "endDate": start.AddDate(0, 0, 18),
		"stops": []map[string]any{{"riverId": river.ID, "dayNumber": 1}},
	}, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trip := decodeData[entities.Trip](t, w)
	assert.Equal(t, entities.TripPlanning, trip.Status)

	w = ts.do(http.MethodGet, "/api/trips/"+trip.ID, nil, stranger)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodGet, "/api/trips/"+trip.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPatch, "/api/trips/"+trip.ID, map[string]any{"isPublic": true}, owner)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/trips/"+trip.ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodPatch, "/api/trips/"+trip.ID, map[string]any{"name": "Mine now"}, stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, "/api/trips/"+trip.ID+"/stops", map[string]any{"riverId": river.ID, "dayNumber": 2}, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	stop := decodeData[entities.TripStop](t, w)

	w = ts.do(http.MethodDelete, "/api/trips/"+trip.ID+"/stops/"+stop.ID, nil, owner)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodGet, "/api/trips", nil, owner)
	env := decode(t, w)
	assert.EqualValues(t, 1, env.Meta.Total)
	w = ts.do(http.MethodGet, "/api/trips", nil, stranger)
	env = decode(t, w)
	assert.EqualValues(t, 0, env.Meta.Total)

	w = ts.do(http.MethodDelete, "/api/trips/"+trip.ID, nil, owner)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDealAndUserRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	river := ts.seedRiver(t, "Arkansas River")
	_, token := ts.userToken(t, "deals@example.com", entities.RoleUser)
	_, other := ts.userToken(t, "other@example.com", entities.RoleUser)

	deals := repository.NewDealRepository(ts.db)
	price := 450.0
	require.NoError(t, deals.Create(ctx, &entities.GearDeal{Title: "NRS raft", URL: "https://denver.craigslist.org/1.html", Price: &price, Category: "raft", IsActive: true}))

	w := ts.do(http.MethodGet, "/api/deals?maxPrice=500", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w).Meta.Total)
	w = ts.do(http.MethodGet, "/api/deals?maxPrice=cheap", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/deals/filters", map[string]any{"name": "Rafts", "keywords": []string{" Raft "}}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	filter := decodeData[entities.DealFilter](t, w)
	assert.Equal(t, entities.StringList{"raft"}, filter.Keywords)

	w = ts.do(http.MethodGet, "/api/deals/filters/"+filter.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodGet, "/api/deals/filters", nil, token)
	assert.Len(t, decodeData[[]entities.DealFilter](t, w), 1)

	w = ts.do(http.MethodPost, "/api/user/rivers", map[string]any{"riverId": river.ID}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.do(http.MethodGet, "/api/user/rivers", nil, token)
	assert.Len(t, decodeData[[]entities.UserRiver](t, w), 1)
	w = ts.do(http.MethodDelete, "/api/user/rivers/"+river.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodPatch, "/api/user/notifications", map[string]any{"channel": "sms"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPatch, "/api/user/notifications", map[string]any{"channel": "both"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entities.ChannelBoth, decodeData[entities.NotificationPreference](t, w).Channel)

	sub := map[string]any{"endpoint": "https://push.example.com/abc", "keys": map[string]string{"p256dh": "k", "auth": "a"}}
	w = ts.do(http.MethodPost, "/api/notifications/subscribe", sub, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.do(http.MethodDelete, "/api/notifications/subscribe", map[string]any{"endpoint": "https://push.example.com/abc"}, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodGet, "/api/alerts?type=deal", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, "/api/alerts?type=spam", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	_, admin := ts.userToken(t, "admin@example.com", entities.RoleAdmin)
	_, user := ts.userToken(t, "user@example.com", entities.RoleUser)

	w := ts.do(http.MethodGet, "/api/analytics", nil, user)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(http.MethodGet, "/api/analytics", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/admin/scrapers", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]usecases.ScraperStatus](t, w), len(usecases.ScraperSources))
	w = ts.do(http.MethodGet, "/api/admin/scrapers/usgs", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, "/api/admin/scrapers/myspace", nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.seedRiver(t, "Rogue River")
	_, token := ts.userToken(t, "export@example.com", entities.RoleUser)

	w := ts.do(http.MethodGet, "/api/export?format=csv&type=rivers", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/api/export?format=csv&type=rivers", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="water-watcher-rivers-`)
	assert.Contains(t, w.Body.String(), "Rogue River")

	w = ts.do(http.MethodGet, "/api/export?type=rivers", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = ts.do(http.MethodGet, "/api/export?format=xml&type=rivers", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodGet, "/api/export?format=gpx&type=deals", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCSPReport(t *testing.T) {
	ts := newTestServer(t)

	body := `{"csp-report":{"document-uri":"https://waterwatcher.app/","violated-directive":"script-src","blocked-uri":"https://evil.example"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/csp-report", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/csp-report")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	batch := `[{"type":"csp-violation","body":{"documentURL":"https://waterwatcher.app/","blockedURL":"inline","effectiveDirective":"style-src"}}]`
	req = httptest.NewRequest(http.MethodPost, "/api/csp-report", strings.NewReader(batch))
	req.Header.Set("Content-Type", "application/reports+json")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/csp-report", strings.NewReader("nope"))
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute, AuthRequests: 1, AuthWindow: time.Minute}
	})

	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodGet, "/api/rivers", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(http.MethodGet, "/api/rivers", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, CodeRateLimited, errorCode(t, w))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	w = ts.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.HTTP.CORSAllowOrigins = []string{"https://waterwatcher.app"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/rivers", nil)
	req.Header.Set("Origin", "https://waterwatcher.app")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://waterwatcher.app", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/rivers", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBindJSONHidesDecoderErrors(t *testing.T) {
	var dst struct {
		Since time.Time `json:"since"`
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"since":"last tuesday"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	assert.False(t, bindJSON(c, &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, w))
	assert.Contains(t, w.Body.String(), invalidBodyMessage)
	assert.NotContains(t, w.Body.String(), "last tuesday")
	assert.NotContains(t, w.Body.String(), "parsing time")
}
