package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/logger"
	"github.com/abelzeko/water-watcher/internal/metrics"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

// feedOverlap is how far each poll reaches back before the previous one
const feedOverlap = time.Minute

// streamRivers pushes condition, hazard and deal-match events to a client
// until it disconnects
func (s *Server) streamRivers(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	interval := s.cfg.SSE.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	since := lastEventTime(c.GetHeader("Last-Event-ID"), s.now().UTC().Add(-s.lookback()))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	metrics.SSEActiveClients.Inc()
	defer metrics.SSEActiveClients.Dec()
	log.Debug("Live feed client connected", zap.Time("since", since))

	w := c.Writer
	_, _ = io.WriteString(w, ": connected\n\n")
	w.Flush()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := make(map[string]time.Time)
	for {
		pollAt := s.now().UTC()
		events, err := s.svc.Feed.Poll(ctx, since)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Warn("Live feed poll failed", zap.Error(err))
		default:
			// a batch committed after pollAt can carry earlier created_at values
			if next := pollAt.Add(-feedOverlap); next.After(since) {
				since = next
			}
		}

		written := 0
		for _, ev := range events {
			key := ev.Type + ":" + ev.ID
			if _, dup := sent[key]; dup {
				continue
			}
			sent[key] = ev.At
			if err := writeEvent(w, pollAt.UnixMilli(), ev); err != nil {
				log.Warn("Failed to encode live feed event", zap.String("event", ev.Type), zap.Error(err))
				continue
			}
			written++
		}
		if written == 0 {
			_, _ = io.WriteString(w, ": ping\n\n")
		}
		w.Flush()

		for key, at := range sent {
			if !at.After(since) {
				delete(sent, key)
			}
		}

		select {
		case <-ctx.Done():
			log.Debug("Live feed client disconnected")
			return
		case <-s.closing:
			log.Debug("Live feed closed for shutdown")
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) lookback() time.Duration {
	if s.cfg.SSE.Lookback > 0 {
		return s.cfg.SSE.Lookback
	}
	return 5 * time.Minute
}

func writeEvent(w io.Writer, id int64, ev usecases.FeedEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, ev.Type, data)
	return err
}

// lastEventTime parses a Last-Event-ID in unix milliseconds, falling back
// when it is missing, malformed or in the future
func lastEventTime(header string, fallback time.Time) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil || ms <= 0 {
		return fallback
	}
	t := time.UnixMilli(ms).UTC()
	if t.After(time.Now()) {
		return fallback
	}
	return t
}
