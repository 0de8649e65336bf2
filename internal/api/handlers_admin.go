package api

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) analytics(c *gin.Context) {
	overview, err := s.svc.Analytics.Overview(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, overview)
}

func (s *Server) scraperStats(c *gin.Context) {
	stats, err := s.svc.Admin.ScraperStats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, stats)
}

func (s *Server) scraperDetail(c *gin.Context) {
	detail, err := s.svc.Admin.ScraperDetail(c.Request.Context(), c.Param("source"))
	if err != nil {
		handleError(c, err)
		return
	}
	ok(c, detail)
}
