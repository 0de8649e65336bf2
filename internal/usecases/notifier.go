package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/integration/mail"
	"github.com/abelzeko/water-watcher/internal/integration/push"
	"github.com/abelzeko/water-watcher/internal/metrics"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// PushSender delivers Web Push messages
type PushSender interface {
	Enabled() bool
	Send(ctx context.Context, sub push.Subscription, msg push.Message) error
}

// AlertMailer delivers notification emails
type AlertMailer interface {
	Enabled() bool
	SendDealAlert(ctx context.Context, to string, deals []entities.DealMatch) error
	SendConditionAlert(ctx context.Context, to string, c entities.ProcessedCondition) error
	SendHazardAlert(ctx context.Context, to, riverID, riverName string, hazards []entities.Hazard) error
	SendWeeklyDigest(ctx context.Context, to string, rivers []mail.DigestRiver) error
}

// Notifier routes pipeline events to users over their chosen channels
type Notifier struct {
	users      *repository.UserRepository
	deals      *repository.DealRepository
	alerts     *repository.AlertRepository
	conditions *repository.ConditionRepository
	hazards    *repository.HazardRepository
	push       PushSender
	mail       AlertMailer
	log        *zap.Logger
	now        func() time.Time
}

// NewNotifier creates a notifier
func NewNotifier(
	users *repository.UserRepository,
	deals *repository.DealRepository,
	alerts *repository.AlertRepository,
	conditions *repository.ConditionRepository,
	hazards *repository.HazardRepository,
	pushSender PushSender,
	mailer AlertMailer,
	log *zap.Logger,
) *Notifier {
	return &Notifier{
		users:      users,
		deals:      deals,
		alerts:     alerts,
		conditions: conditions,
		hazards:    hazards,
		push:       pushSender,
		mail:       mailer,
		log:        log.Named("notifier"),
		now:        time.Now,
	}
}

// alert is one notification for one user, rendered for both channels
type alert struct {
	kind     string
	message  push.Message
	email    func(ctx context.Context, to string) error
	metadata entities.JSONMap
}

// deliver sends a to the user over the channels their preferences allow and
// records an alert log row when at least one channel succeeded
func (n *Notifier) deliver(ctx context.Context, userID string, a alert) (bool, error) {
	prefs, err := n.users.GetPreferences(ctx, userID)
	if err != nil {
		return false, err
	}
	if !prefs.Wants(a.kind) {
		return false, nil
	}

	var channels []string
	if prefs.UsesPush() && n.push.Enabled() {
		if n.sendPush(ctx, userID, a.message) {
			channels = append(channels, entities.ChannelPush)
		}
	}
	if prefs.UsesEmail() && n.mail.Enabled() {
		user, err := n.users.Get(ctx, userID)
		if err != nil {
			return false, err
		}
		if err := a.email(ctx, user.Email); err != nil {
			n.log.Warn("Email delivery failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			channels = append(channels, entities.ChannelEmail)
		}
	}
	if len(channels) == 0 {
		return false, nil
	}

	channel := channels[0]
	if len(channels) == 2 {
		channel = entities.ChannelBoth
	}
	for _, c := range channels {
		metrics.RecordNotification(c, a.kind)
	}

	err = n.alerts.Create(ctx, &entities.AlertLog{
		UserID:   userID,
		Type:     a.kind,
		Channel:  channel,
		Title:    a.message.Title,
		Body:     a.message.Body,
		Metadata: a.metadata,
		SentAt:   n.now().UTC(),
	})
	if err != nil {
		return true, fmt.Errorf("failed to record alert: %w", err)
	}
	return true, nil
}

// sendPush fans a message out to every subscription of the user and prunes
// the ones the push service reports gone
func (n *Notifier) sendPush(ctx context.Context, userID string, msg push.Message) bool {
	subs, err := n.users.SubscriptionsFor(ctx, userID)
	if err != nil {
		n.log.Error("Failed to load push subscriptions", zap.String("user_id", userID), zap.Error(err))
		return false
	}

	delivered := false
	for _, s := range subs {
		err := n.push.Send(ctx, push.Subscription{Endpoint: s.Endpoint, P256dh: s.P256dh, Auth: s.Auth}, msg)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, push.ErrSubscriptionGone):
			if err := n.users.DeleteSubscriptionByID(ctx, s.ID); err != nil {
				n.log.Error("Failed to remove expired subscription", zap.Error(err))
			}
		default:
			n.log.Warn("Push delivery failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return delivered
}

// NotifyDealMatches alerts each user about their new matches in one
// message and marks the matches notified
func (n *Notifier) NotifyDealMatches(ctx context.Context, matches []entities.DealMatch) (int, error) {
	var order []string
	byUser := make(map[string][]entities.DealMatch)
	for _, m := range matches {
		if _, ok := byUser[m.UserID]; !ok {
			order = append(order, m.UserID)
		}
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}

	sent := 0
	for _, userID := range order {
		deals := byUser[userID]
		ids := make([]string, 0, len(deals))
		for _, d := range deals {
			ids = append(ids, d.DealID)
		}

		ok, err := n.deliver(ctx, userID, alert{
			kind:    entities.AlertDeal,
			message: push.DealMessage(deals),
			email: func(ctx context.Context, to string) error {
				return n.mail.SendDealAlert(ctx, to, deals)
			},
			metadata: entities.JSONMap{"deal_ids": ids},
		})
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}

		for _, d := range deals {
			if err := n.deals.MarkNotified(ctx, d.FilterID, d.DealID); err != nil {
				return sent, err
			}
		}
	}

	n.log.Info("Deal notifications sent", zap.Int("sent", sent), zap.Int("users", len(order)))
	return sent, nil
}

// NotifyConditionChanges alerts the watchers of every river whose quality changed
func (n *Notifier) NotifyConditionChanges(ctx context.Context, conditions []entities.ProcessedCondition) (int, error) {
	sent := 0
	for _, c := range conditions {
		if !c.QualityChanged {
			continue
		}
		watchers, err := n.users.WatchersOf(ctx, c.RiverID)
		if err != nil {
			return sent, err
		}

		c := c
		for _, userID := range watchers {
			ok, err := n.deliver(ctx, userID, alert{
				kind:    entities.AlertCondition,
				message: push.ConditionMessage(c.RiverID, c.RiverName, c.OldQuality, c.NewQuality),
				email: func(ctx context.Context, to string) error {
					return n.mail.SendConditionAlert(ctx, to, c)
				},
				metadata: entities.JSONMap{
					"river_id":    c.RiverID,
					"old_quality": c.OldQuality,
					"new_quality": c.NewQuality,
				},
			})
			if err != nil {
				return sent, err
			}
			if ok {
				sent++
			}
		}
		n.log.Info("Condition change notifications",
			zap.String("river", c.RiverName),
			zap.String("from", c.OldQuality),
			zap.String("to", c.NewQuality),
			zap.Int("watchers", len(watchers)))
	}
	return sent, nil
}

// NotifyHazards alerts watchers about new hazards, one message per river
func (n *Notifier) NotifyHazards(ctx context.Context, hazards []entities.NewHazard) (int, error) {
	var order []string
	byRiver := make(map[string][]entities.Hazard)
	names := make(map[string]string)
	for _, h := range hazards {
		id := h.Hazard.RiverID
		if _, ok := byRiver[id]; !ok {
			order = append(order, id)
			names[id] = h.RiverName
		}
		byRiver[id] = append(byRiver[id], h.Hazard)
	}

	sent := 0
	for _, riverID := range order {
		list := byRiver[riverID]
		name := names[riverID]

		watchers, err := n.users.WatchersOf(ctx, riverID)
		if err != nil {
			return sent, err
		}
		if len(watchers) == 0 {
			continue
		}

		title := list[0].Title
		severity := list[0].Severity
		if len(list) > 1 {
			titles := make([]string, 0, len(list))
			for _, h := range list {
				titles = append(titles, h.Title)
				if h.Severity == entities.SeverityDanger {
					severity = entities.SeverityDanger
				}
			}
			title = fmt.Sprintf("%d new hazards: %s", len(list), strings.Join(titles, "; "))
		}
		ids := make([]string, 0, len(list))
		for _, h := range list {
			ids = append(ids, h.ID)
		}

		for _, userID := range watchers {
			ok, err := n.deliver(ctx, userID, alert{
				kind:    entities.AlertHazard,
				message: push.HazardMessage(riverID, name, title, severity),
				email: func(ctx context.Context, to string) error {
					return n.mail.SendHazardAlert(ctx, to, riverID, name, list)
				},
				metadata: entities.JSONMap{"river_id": riverID, "hazard_ids": ids},
			})
			if err != nil {
				return sent, err
			}
			if ok {
				sent++
			}
		}
		n.log.Info("Hazard alert sent", zap.String("river", name), zap.Int("watchers", len(watchers)))
	}
	return sent, nil
}

// SendWeeklyDigest emails each opted-in user a summary of their tracked rivers
func (n *Notifier) SendWeeklyDigest(ctx context.Context) (int, error) {
	if !n.mail.Enabled() {
		n.log.Warn("Email not configured, skipping weekly digest")
		return 0, nil
	}

	recipients, err := n.users.DigestRecipients(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, userID := range recipients {
		tracked, err := n.users.TrackedRivers(ctx, userID)
		if err != nil {
			return sent, err
		}
		if len(tracked) == 0 {
			continue
		}

		ids := make([]string, 0, len(tracked))
		for _, t := range tracked {
			ids = append(ids, t.RiverID)
		}
		latest, err := n.conditions.LatestPerRiver(ctx, ids)
		if err != nil {
			return sent, err
		}

		rivers := make([]mail.DigestRiver, 0, len(tracked))
		for _, t := range tracked {
			if t.River == nil {
				continue
			}
			active, err := n.hazards.ListActiveByRiver(ctx, t.RiverID)
			if err != nil {
				return sent, err
			}
			line := mail.DigestRiver{Name: t.River.Name, HazardCount: len(active)}
			if c, ok := latest[t.RiverID]; ok {
				line.Quality = c.QualityValue()
				line.Runnability = c.RunnabilityValue()
				line.FlowRate = c.FlowRate
			}
			rivers = append(rivers, line)
		}

		user, err := n.users.Get(ctx, userID)
		if err != nil {
			return sent, err
		}
		if err := n.mail.SendWeeklyDigest(ctx, user.Email, rivers); err != nil {
			n.log.Warn("Weekly digest failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		metrics.RecordNotification(entities.ChannelEmail, entities.AlertDigest)
		sent++

		err = n.alerts.Create(ctx, &entities.AlertLog{
			UserID:   userID,
			Type:     entities.AlertDigest,
			Channel:  entities.ChannelEmail,
			Title:    mail.DigestSubject,
			Body:     fmt.Sprintf("%d tracked rivers", len(rivers)),
			Metadata: entities.JSONMap{"river_ids": ids},
			SentAt:   n.now().UTC(),
		})
		if err != nil {
			return sent, fmt.Errorf("failed to record alert: %w", err)
		}
	}

	n.log.Info("Weekly digest sent", zap.Int("sent", sent), zap.Int("recipients", len(recipients)))
	return sent, nil
}
