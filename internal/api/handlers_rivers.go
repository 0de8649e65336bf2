package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

// pageFrom reads page and limit; unparsable values fall back to defaults
func pageFrom(c *gin.Context) repository.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return repository.NewPage(page, limit)
}

func (s *Server) listRivers(c *gin.Context) {
	filter := repository.RiverFilter{
		Search:     c.Query("search"),
		State:      c.Query("state"),
		Difficulty: c.Query("difficulty"),
		Page:       pageFrom(c),
	}
	rivers, total, err := s.svc.Rivers.List(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, rivers, total, filter.Page.Number, filter.Page.Size)
}

func (s *Server) getRiver(c *gin.Context) {
	summary, err := s.svc.Rivers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, summary)
}

func (s *Server) createRiver(c *gin.Context) {
	var in usecases.CreateRiverInput
	if !bindJSON(c, &in) {
		return
	}
	river, err := s.svc.Rivers.Create(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, river)
}

func (s *Server) updateRiver(c *gin.Context) {
	var in usecases.UpdateRiverInput
	if !bindJSON(c, &in) {
		return
	}
	river, err := s.svc.Rivers.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, river)
}

func (s *Server) deleteRiver(c *gin.Context) {
	if err := s.svc.Rivers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) riverConditions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	conditions, err := s.svc.Rivers.Conditions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, conditions)
}

func (s *Server) riverHazards(c *gin.Context) {
	hazards, err := s.svc.Rivers.Hazards(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, hazards)
}

func (s *Server) listHazards(c *gin.Context) {
	page := pageFrom(c)
	hazards, total, err := s.svc.Rivers.ListHazards(c.Request.Context(), c.Query("severity"), page)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, hazards, total, page.Number, page.Size)
}

func (s *Server) listReviews(c *gin.Context) {
	page := pageFrom(c)
	reviews, total, err := s.svc.Reviews.List(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, reviews, total, page.Number, page.Size)
}

func (s *Server) createReview(c *gin.Context) {
	var in usecases.ReviewInput
	if !bindJSON(c, &in) {
		return
	}
	review, err := s.svc.Reviews.Create(c.Request.Context(), currentUserID(c), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, review)
}

func (s *Server) updateReview(c *gin.Context) {
	var in usecases.UpdateReviewInput
	if !bindJSON(c, &in) {
		return
	}
	review, err := s.svc.Reviews.Update(c.Request.Context(), currentUserID(c), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, review)
}

func (s *Server) deleteReview(c *gin.Context) {
	claims := currentClaims(c)
	if err := s.svc.Reviews.Delete(c.Request.Context(), claims.UserID, claims.IsAdmin(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
