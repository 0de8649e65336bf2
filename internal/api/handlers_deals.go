package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

func (s *Server) listDeals(c *gin.Context) {
	query := repository.DealQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Region:   c.Query("region"),
		Page:     pageFrom(c),
	}
	if raw := c.Query("maxPrice"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price < 0 {
			handleError(c, entities.Invalid("maxPrice must be a non-negative number"))
			return
		}
		query.MaxPrice = &price
	}

	deals, total, err := s.svc.Deals.List(c.Request.Context(), query)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, deals, total, query.Page.Number, query.Page.Size)
}

func (s *Server) getDeal(c *gin.Context) {
	deal, err := s.svc.Deals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, deal)
}

func (s *Server) listDealFilters(c *gin.Context) {
	filters, err := s.svc.Deals.ListFilters(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, filters)
}

func (s *Server) getDealFilter(c *gin.Context) {
	filter, err := s.svc.Deals.GetFilter(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, filter)
}

func (s *Server) createDealFilter(c *gin.Context) {
	var in usecases.DealFilterInput
	if !bindJSON(c, &in) {
		return
	}
	filter, err := s.svc.Deals.CreateFilter(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		handleError(c, err)
		return
	}
	created(c, filter)
}

func (s *Server) updateDealFilter(c *gin.Context) {
	var in usecases.UpdateDealFilterInput
	if !bindJSON(c, &in) {
		return
	}
	filter, err := s.svc.Deals.UpdateFilter(c.Request.Context(), currentUserID(c), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, filter)
}

func (s *Server) deleteDealFilter(c *gin.Context) {
	if err := s.svc.Deals.DeleteFilter(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listDealMatches(c *gin.Context) {
	page := pageFrom(c)
	matches, total, err := s.svc.Deals.Matches(c.Request.Context(), currentUserID(c), page)
	if err != nil {
		handleError(c, err)
		return
	}
	okPage(c, matches, total, page.Number, page.Size)
}
