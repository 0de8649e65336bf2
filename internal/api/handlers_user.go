package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abelzeko/water-watcher/internal/usecases"
)

func (s *Server) trackedRivers(c *gin.Context) {
	rivers, err := s.svc.Users.TrackedRivers(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, rivers)
}

func (s *Server) trackRiver(c *gin.Context) {
	var in usecases.TrackRiverInput
	if !bindJSON(c, &in) {
		return
	}
	tracked, err := s.svc.Users.TrackRiver(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, tracked)
}

func (s *Server) untrackRiver(c *gin.Context) {
	if err := s.svc.Users.UntrackRiver(c.Request.Context(), currentUserID(c), c.Param("riverId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) preferences(c *gin.Context) {
	prefs, err := s.svc.Users.Preferences(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, prefs)
}

func (s *Server) updatePreferences(c *gin.Context) {
	var in usecases.UpdatePreferencesInput
	if !bindJSON(c, &in) {
		return
	}
	prefs, err := s.svc.Users.UpdatePreferences(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, prefs)
}

func (s *Server) vapidPublicKey(c *gin.Context) {
	ok(c, gin.H{"publicKey": s.cfg.Push.VAPIDPublicKey})
}

func (s *Server) subscribe(c *gin.Context) {
	var in usecases.SubscribeInput
	if !bindJSON(c, &in) {
		return
	}
	sub, err := s.svc.Users.Subscribe(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, sub)
}

func (s *Server) unsubscribe(c *gin.Context) {
	var in usecases.UnsubscribeInput
	if !bindJSON(c, &in) {
		return
	}
	if err := s.svc.Users.Unsubscribe(c.Request.Context(), currentUserID(c), in.Endpoint); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listAlerts(c *gin.Context) {
	page := pageFrom(c)
	alerts, total, err := s.svc.Alerts.List(c.Request.Context(), currentUserID(c), c.Query("type"), page)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, alerts, total, page.Number, page.Size)
}
