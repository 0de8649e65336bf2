package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/logger"
)

const maxCSPReportBytes = 64 << 10

// cspViolation covers both the report-uri and the Reporting API body
type cspViolation struct {
	DocumentURI        string `json:"document-uri"`
	BlockedURI         string `json:"blocked-uri"`
	ViolatedDirective  string `json:"violated-directive"`
	EffectiveDirective string `json:"effective-directive"`
	SourceFile         string `json:"source-file"`
	LineNumber         int    `json:"line-number"`
}

type cspReportBody struct {
	Report *cspViolation `json:"csp-report"`
	Body   *struct {
		DocumentURL        string `json:"documentURL"`
		BlockedURL         string `json:"blockedURL"`
		EffectiveDirective string `json:"effectiveDirective"`
		SourceFile         string `json:"sourceFile"`
		LineNumber         int    `json:"lineNumber"`
	} `json:"body"`
}

// cspReport accepts application/csp-report and JSON violation reports
func (s *Server) cspReport(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCSPReportBytes))
	if err != nil {
		handleError(c, err)
		return
	}

	var reports []cspReportBody
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &reports)
	} else {
		var one cspReportBody
		err = json.Unmarshal(trimmed, &one)
		reports = append(reports, one)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "Report must be valid JSON")
		return
	}

	log := logger.FromGin(c)
	for _, report := range reports {
		logViolation(log, report.violation())
	}
	c.Status(http.StatusNoContent)
}

func (r cspReportBody) violation() cspViolation {
	switch {
	case r.Report != nil:
		return *r.Report
	case r.Body != nil:
		return cspViolation{
			DocumentURI:        r.Body.DocumentURL,
			BlockedURI:         r.Body.BlockedURL,
			EffectiveDirective: r.Body.EffectiveDirective,
			SourceFile:         r.Body.SourceFile,
			LineNumber:         r.Body.LineNumber,
		}
	}
	return cspViolation{}
}

func logViolation(log *zap.Logger, v cspViolation) {
	log.Warn("CSP violation",
		zap.String("document_uri", v.DocumentURI),
		zap.String("blocked_uri", v.BlockedURI),
		zap.String("violated_directive", v.ViolatedDirective),
		zap.String("effective_directive", v.EffectiveDirective),
		zap.String("source_file", v.SourceFile),
		zap.Int("line_number", v.LineNumber),
	)
}
