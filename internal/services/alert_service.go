package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/akagifreeez/apikeys/internal/metrics"
	"github.com/akagifreeez/apikeys/internal/models"
)

// Alert levels, as a percentage of the monthly limit.
const (
	LevelWarning  = 80
	LevelExceeded = 100
)

// QuotaAlert describes a key crossing a quota threshold.
type QuotaAlert struct {
	KeyID  string
	Name   string
	Usage  int64
	Limit  int64
	Level  int
	Period string
}

// Notifier delivers quota alerts.
type Notifier interface {
	Notify(ctx context.Context, alert QuotaAlert) error
}

// QuotaAlertService notifies when a key crosses 80% or 100% of its limit.
// Each level fires at most once per key and period.
type QuotaAlertService struct {
	notifier Notifier

	mu   sync.Mutex
	sent map[string]struct{}
}

// NewQuotaAlertService creates a QuotaAlertService. A nil notifier means
// alerts are only logged.
func NewQuotaAlertService(notifier Notifier) *QuotaAlertService {
	return &QuotaAlertService{
		notifier: notifier,
		sent:     make(map[string]struct{}),
	}
}

// LevelFor returns the highest level reached by usage against limit, or 0.
func LevelFor(usage, limit int64) int {
	switch {
	case limit <= 0:
		return 0
	case usage >= limit:
		return LevelExceeded
	case usage*100 >= limit*LevelWarning:
		return LevelWarning
	default:
		return 0
	}
}

// Check evaluates rec for period and notifies if it reached a level not yet
// alerted. It returns the level notified, or 0.
func (a *QuotaAlertService) Check(ctx context.Context, rec models.KeyRecord, period string) (int, error) {
	if rec.Limit == nil {
		return 0, nil
	}

	level := LevelFor(rec.Usage, *rec.Limit)
	if level == 0 || !a.claim(rec.ID, period, level) {
		return 0, nil
	}

	alert := QuotaAlert{
		KeyID:  rec.ID,
		Name:   rec.Name,
		Usage:  rec.Usage,
		Limit:  *rec.Limit,
		Level:  level,
		Period: period,
	}

	log.Info().
		Str("id", rec.ID).
		Int64("usage", rec.Usage).
		Int64("limit", *rec.Limit).
		Int("level", level).
		Msg("Quota alert triggered")
	metrics.RecordQuotaAlert(strconv.Itoa(level))

	if a.notifier == nil {
		return level, nil
	}

	if err := a.notifier.Notify(ctx, alert); err != nil {
		a.release(rec.ID, period, level)
		return 0, fmt.Errorf("notify quota alert for %s: %w", rec.ID, err)
	}
	return level, nil
}

// claim marks level and every lower level as sent. It reports false if
// level was already sent.
func (a *QuotaAlertService) claim(id, period string, level int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := alertKey(id, period, level)
	if _, ok := a.sent[key]; ok {
		return false
	}
	a.sent[key] = struct{}{}
	if level == LevelExceeded {
		a.sent[alertKey(id, period, LevelWarning)] = struct{}{}
	}
	return true
}

func (a *QuotaAlertService) release(id, period string, level int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sent, alertKey(id, period, level))
}

// Prune forgets alerts from periods other than keep.
func (a *QuotaAlertService) Prune(keep string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.sent {
		parts := strings.Split(key, "|")
		if len(parts) == 3 && parts[1] != keep {
			delete(a.sent, key)
		}
	}
}

func alertKey(id, period string, level int) string {
	return fmt.Sprintf("%s|%s|%d", id, period, level)
}

// DiscordNotifier posts alerts to a Discord webhook.
type DiscordNotifier struct {
	session   *discordgo.Session
	webhookID string
	token     string
	printer   *message.Printer
}

// NewDiscordNotifier parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscordNotifier(webhookURL string) (*DiscordNotifier, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Client.Timeout = 10 * time.Second

	return &DiscordNotifier{
		session:   session,
		webhookID: id,
		token:     token,
		printer:   message.NewPrinter(language.English),
	}, nil
}

func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-3] != "webhooks" {
		return "", "", fmt.Errorf("invalid webhook url: unexpected path %q", u.Path)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Notify sends alert as an embed.
func (d *DiscordNotifier) Notify(ctx context.Context, alert QuotaAlert) error {
	params := &discordgo.WebhookParams{
		Content: d.Content(alert),
		Embeds:  []*discordgo.MessageEmbed{d.Embed(alert)},
	}
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx))
	return err
}

// Content renders the plain-text line shown in notifications.
func (d *DiscordNotifier) Content(alert QuotaAlert) string {
	if alert.Level >= LevelExceeded {
		return d.printer.Sprintf("**%s** has used its monthly quota of %d requests", alert.Name, alert.Limit)
	}
	return d.printer.Sprintf("**%s** has used %d%% of its monthly quota", alert.Name, alert.Level)
}

// Embed renders the alert details.
func (d *DiscordNotifier) Embed(alert QuotaAlert) *discordgo.MessageEmbed {
	color := 0xFFA500
	title := "Quota warning"
	if alert.Level >= LevelExceeded {
		color = 0xE74C3C
		title = "Quota exceeded"
	}

	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s: %s", title, alert.Name),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Usage", Value: d.printer.Sprintf("%d", alert.Usage), Inline: true},
			{Name: "Limit", Value: d.printer.Sprintf("%d", alert.Limit), Inline: true},
			{Name: "Period", Value: alert.Period, Inline: true},
			{Name: "Key ID", Value: alert.KeyID, Inline: false},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "API key service"},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
