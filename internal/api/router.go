package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/auth"
	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/logger"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

// Services are the use cases behind the HTTP API
type Services struct {
	Auth      *usecases.AuthUseCase
	Rivers    *usecases.RiverUseCase
	Reviews   *usecases.ReviewUseCase
	Deals     *usecases.DealUseCase
	Trips     *usecases.TripUseCase
	Users     *usecases.UserUseCase
	Alerts    *usecases.AlertUseCase
	Analytics *usecases.AnalyticsUseCase
	Admin     *usecases.AdminUseCase
	Feed      *usecases.FeedUseCase
	Export    *usecases.ExportUseCase
}

// Server holds what the HTTP handlers share
type Server struct {
	cfg    *config.Config
	log    *zap.Logger
	tokens *auth.JWTManager
	svc    Services
	ping   func(ctx context.Context) error
	now    func() time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates the HTTP handlers; ping reports database health and may
// be nil
func NewServer(cfg *config.Config, log *zap.Logger, tokens *auth.JWTManager, svc Services, ping func(ctx context.Context) error) *Server {
	return &Server{
		cfg:     cfg,
		log:     log.Named("api"),
		tokens:  tokens,
		svc:     svc,
		ping:    ping,
		now:     time.Now,
		closing: make(chan struct{}),
	}
}

// CloseStreams ends every open live feed. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Router builds the gin engine with every route and middleware
func (s *Server) Router() *gin.Engine {
	SetupValidator()

	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.HTTP.TrustedProxies); err != nil {
		s.log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(
		RequestID(),
		logger.Recovery(s.log),
		logger.GinMiddleware(s.log),
		Metrics(),
		SecurityHeaders(strings.EqualFold(s.cfg.App.Env, "production")),
		CORS(s.cfg.HTTP.CORSAllowOrigins),
	)

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := func(requests int, window time.Duration) gin.HandlerFunc {
		if !s.cfg.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return NewRateLimiter(requests, window).Middleware()
	}

	cookie := s.cfg.JWT.CookieName
	optional := Authenticate(s.tokens, cookie, false)
	authed := Authenticate(s.tokens, cookie, true)
	admin := []gin.HandlerFunc{authed, RequireAdmin()}

	api := r.Group("/api", limited(s.cfg.RateLimit.Requests, s.cfg.RateLimit.Window))
	api.POST("/csp-report", s.cspReport)

	authGroup := api.Group("/auth")
	{
		strict := limited(s.cfg.RateLimit.AuthRequests, s.cfg.RateLimit.AuthWindow)
		authGroup.POST("/register", strict, s.register)
		authGroup.POST("/login", strict, s.login)
		authGroup.POST("/forgot-password", strict, s.forgotPassword)
		authGroup.POST("/reset-password", strict, s.resetPassword)
		authGroup.POST("/logout", s.logout)
		authGroup.GET("/me", authed, s.me)
	}

	rivers := api.Group("/rivers")
	{
		rivers.GET("", s.listRivers)
		rivers.GET("/:id", s.getRiver)
		rivers.POST("", append(admin, s.createRiver)...)
		rivers.PATCH("/:id", append(admin, s.updateRiver)...)
		rivers.DELETE("/:id", append(admin, s.deleteRiver)...)
		rivers.GET("/:id/conditions", s.riverConditions)
		rivers.GET("/:id/hazards", s.riverHazards)
		rivers.GET("/:id/reviews", s.listReviews)
		rivers.POST("/:id/reviews", authed, s.createReview)
	}

	api.PATCH("/reviews/:id", authed, s.updateReview)
	api.DELETE("/reviews/:id", authed, s.deleteReview)
	api.GET("/hazards", s.listHazards)

	deals := api.Group("/deals")
	{
		deals.GET("", s.listDeals)
		deals.GET("/filters", authed, s.listDealFilters)
		deals.POST("/filters", authed, s.createDealFilter)
		deals.GET("/filters/:id", authed, s.getDealFilter)
		deals.PATCH("/filters/:id", authed, s.updateDealFilter)
		deals.DELETE("/filters/:id", authed, s.deleteDealFilter)
		deals.GET("/matches", authed, s.listDealMatches)
		deals.GET("/:id", s.getDeal)
	}

	trips := api.Group("/trips")
	{
		trips.GET("", authed, s.listTrips)
		trips.POST("", authed, s.createTrip)
		trips.GET("/:id", optional, s.getTrip)
		trips.PATCH("/:id", authed, s.updateTrip)
		trips.DELETE("/:id", authed, s.deleteTrip)
		trips.POST("/:id/stops", authed, s.addTripStop)
		trips.DELETE("/:id/stops/:stopId", authed, s.removeTripStop)
	}

	user := api.Group("/user", authed)
	{
		user.GET("/rivers", s.trackedRivers)
		user.POST("/rivers", s.trackRiver)
		user.DELETE("/rivers/:riverId", s.untrackRiver)
		user.GET("/notifications", s.preferences)
		user.PATCH("/notifications", s.updatePreferences)
	}

	api.GET("/notifications/vapid-public-key", s.vapidPublicKey)
	api.POST("/notifications/subscribe", authed, s.subscribe)
	api.DELETE("/notifications/subscribe", authed, s.unsubscribe)

	api.GET("/alerts", authed, s.listAlerts)
	api.GET("/export", authed, s.export)
	api.GET("/sse/rivers", s.streamRivers)

	api.GET("/analytics", append(admin, s.analytics)...)
	adminGroup := api.Group("/admin", admin...)
	{
		adminGroup.GET("/scrapers", s.scraperStats)
		adminGroup.GET("/scrapers/:source", s.scraperDetail)
	}

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, entities.CodeNotFound, "Route not found")
	})

	return r
}

func (s *Server) health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			logger.FromGin(c).Warn("Health check failed", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"service":   s.cfg.App.Name,
		"timestamp": s.now().UTC(),
	})
}
