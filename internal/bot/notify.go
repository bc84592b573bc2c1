package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const aggregateWindow = 10 * time.Minute

var errNoErrorChannel = errors.New("no error log channel configured")

// aggregator folds repeats of the same audit entry into one alert message.
type aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]*aggregate
}

type aggregate struct {
	channelID string
	messageID string
	count     int
	lastAt    time.Time
}

func newAggregator(window time.Duration) *aggregator {
	return &aggregator{window: window, now: time.Now, entries: make(map[string]*aggregate)}
}

func aggregateKey(entry storage.AuditLog) string {
	return entry.GuildID + "|" + entry.Level + "|" + entry.Event + "|" + entry.Details + "|" + entry.UserID
}

// hit bumps a live aggregate for key in channelID and returns its message
// and new count. ok is false when a fresh message must be sent.
func (a *aggregator) hit(key, channelID string) (messageID string, count int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg := a.entries[key]
	now := a.now()
	if agg == nil || agg.channelID != channelID || now.Sub(agg.lastAt) > a.window {
		return "", 0, false
	}
	agg.count++
	agg.lastAt = now
	return agg.messageID, agg.count, true
}

func (a *aggregator) remember(key, channelID, messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for k, agg := range a.entries {
		if now.Sub(agg.lastAt) > a.window {
			delete(a.entries, k)
		}
	}
	a.entries[key] = &aggregate{channelID: channelID, messageID: messageID, count: 1, lastAt: now}
}

func (a *aggregator) forget(key string) {
	a.mu.Lock()
	delete(a.entries, key)
	a.mu.Unlock()
}

// alertable reports whether an audit entry goes to the alert channel.
// Moderation actions post their own log embed.
func alertable(entry storage.AuditLog) bool {
	return entry.Level == audit.LevelCrit && !strings.HasPrefix(entry.Event, "moderation_")
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if !alertable(entry) {
		return
	}
	channelID := b.settings.Guild(ctx, entry.GuildID).AlertChannel
	if channelID == "" {
		return
	}

	key := aggregateKey(entry)
	if messageID, count, ok := b.alerts.hit(key, channelID); ok {
		embed := AuditEmbed(entry, count, b.cfg.EmbedColors.Warning)
		if _, err := b.session.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx)); err == nil {
			return
		}
		b.alerts.forget(key)
	}

	msg, err := b.session.ChannelMessageSendEmbed(channelID, AuditEmbed(entry, 1, b.cfg.EmbedColors.Warning), discordgo.WithContext(ctx))
	if err != nil || msg == nil {
		b.logger.Warn("audit alert failed", zap.String("guild_id", entry.GuildID), zap.String("event", entry.Event), zap.Error(err))
		return
	}
	b.alerts.remember(key, channelID, msg.ID)
}

// AuditEmbed renders an audit entry, noting how often it repeated.
func AuditEmbed(entry storage.AuditLog, count int, color int) *discordgo.MessageEmbed {
	title := "🚨 " + entry.Event
	if count > 1 {
		title = fmt.Sprintf("%s (x%d)", title, count)
	}
	fields := []*discordgo.MessageEmbedField{ui.Field("Level", entry.Level, true)}
	if entry.UserID != "" {
		fields = append(fields, ui.Field("User", ui.Mention(entry.UserID), true))
	}
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return ui.Card{
		Title:       title,
		Description: ui.Truncate(entry.Details, 2000),
		Color:       color,
		Fields:      fields,
		Timestamp:   at,
	}.Embed()
}

// postError delivers an error report to the guild's error log channel.
func (b *Bot) postError(ctx context.Context, report audit.ErrorReport) error {
	if report.GuildID == "" {
		return errNoErrorChannel
	}
	channelID := b.settings.Guild(ctx, report.GuildID).ErrorLogChannel
	if channelID == "" {
		return errNoErrorChannel
	}
	_, err := b.session.ChannelMessageSendEmbed(channelID, ErrorEmbed(report, b.cfg.EmbedColors.Error), discordgo.WithContext(ctx))
	return err
}

// ErrorEmbed renders an error report for the error log channel.
func ErrorEmbed(report audit.ErrorReport, color int) *discordgo.MessageEmbed {
	message := "unknown error"
	if report.Err != nil {
		message = report.Err.Error()
	}
	keys := make([]string, 0, len(report.Fields))
	for key := range report.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]*discordgo.MessageEmbedField, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, ui.Field(key, report.Fields[key], true))
	}
	return ui.Card{
		Title:       "⚠️ Error: " + report.Scope,
		Description: ui.CodeBlock(message, 2000),
		Color:       color,
		Fields:      fields,
		Timestamp:   report.At,
	}.Embed()
}
