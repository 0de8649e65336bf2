package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abelzeko/water-watcher/internal/export"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

// export streams a download; the body is rendered before headers are sent so
// a failure still gets a JSON error
func (s *Server) export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		handleError(c, err)
		return
	}
	typ, err := export.ParseType(c.Query("type"))
	if err != nil {
		handleError(c, err)
		return
	}

	ds, err := s.svc.Export.Dataset(c.Request.Context(), currentUserID(c), usecases.ExportRequest{
		Format:  format,
		Type:    typ,
		RiverID: c.Query("riverId"),
	})
	if err != nil {
		handleError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, ds); err != nil {
		handleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(typ, format, s.now())))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
}
