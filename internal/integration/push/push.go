// Package push delivers Web Push notifications signed with VAPID keys
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/config"
)

// ErrSubscriptionGone means the push service no longer knows the endpoint
// and the subscription should be deleted
var ErrSubscriptionGone = errors.New("push subscription expired")

// ErrNotConfigured is returned when no VAPID keys are set
var ErrNotConfigured = errors.New("push notifications are not configured")

const defaultTTL = 86400

// Subscription is the browser side of a push channel
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Message is the JSON payload the service worker renders
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Tag   string `json:"tag"`
}

// Sender signs and posts push messages
type Sender struct {
	publicKey  string
	privateKey string
	subscriber string
	client     webpush.HTTPClient
	log        *zap.Logger
}

// Option customises a Sender
type Option func(*Sender)

// WithHTTPClient swaps the client used to reach push services
func WithHTTPClient(c webpush.HTTPClient) Option {
	return func(s *Sender) {
		s.client = c
	}
}

// NewSender creates a sender from the VAPID settings
func NewSender(cfg config.PushConfig, log *zap.Logger, opts ...Option) *Sender {
	s := &Sender{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: strings.TrimPrefix(cfg.VAPIDSubject, "mailto:"),
		client:     http.DefaultClient,
		log:        log.With(zap.String("channel", "push")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether VAPID keys are present
func (s *Sender) Enabled() bool {
	return s.publicKey != "" && s.privateKey != ""
}

// Send delivers one message. A 404 or 410 answer yields ErrSubscriptionGone.
func (s *Sender) Send(ctx context.Context, sub Subscription, msg Message) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	res, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             defaultTTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		s.log.Info("Push subscription expired", zap.String("endpoint", shorten(sub.Endpoint)))
		return ErrSubscriptionGone
	case res.StatusCode < 200 || res.StatusCode > 299:
		s.log.Warn("Push failed",
			zap.Int("status", res.StatusCode),
			zap.String("endpoint", shorten(sub.Endpoint)))
		return fmt.Errorf("push service answered %d", res.StatusCode)
	}
	return nil
}

func shorten(endpoint string) string {
	if len(endpoint) > 60 {
		return endpoint[:60] + "..."
	}
	return endpoint
}
