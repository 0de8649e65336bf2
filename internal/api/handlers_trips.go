package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abelzeko/water-watcher/internal/usecases"
)

func (s *Server) listTrips(c *gin.Context) {
	page := pageFrom(c)
	trips, total, err := s.svc.Trips.List(c.Request.Context(), currentUserID(c), c.Query("status"), page)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, trips, total, page.Number, page.Size)
}

// getTrip serves public trips to anyone and private trips to their owner
func (s *Server) getTrip(c *gin.Context) {
	trip, err := s.svc.Trips.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, trip)
}

func (s *Server) createTrip(c *gin.Context) {
	var in usecases.CreateTripInput
	if !bindJSON(c, &in) {
		return
	}
	trip, err := s.svc.Trips.Create(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, trip)
}

func (s *Server) updateTrip(c *gin.Context) {
	var in usecases.UpdateTripInput
	if !bindJSON(c, &in) {
		return
	}
	trip, err := s.svc.Trips.Update(c.Request.Context(), currentUserID(c), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, trip)
}

func (s *Server) deleteTrip(c *gin.Context) {
	if err := s.svc.Trips.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addTripStop(c *gin.Context) {
	var in usecases.TripStopInput
	if !bindJSON(c, &in) {
		return
	}
	stop, err := s.svc.Trips.AddStop(c.Request.Context(), currentUserID(c), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, stop)
}

func (s *Server) removeTripStop(c *gin.Context) {
	if err := s.svc.Trips.RemoveStop(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("stopId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
