package antispam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"
	"guildkeeper/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	incidentTTL      = 24 * time.Hour
	contentExcerpt   = 500
	maxAlertURLs     = 5
	cryptoColor      = 0xFF0000
	banDeleteDays    = 1
	spamBanReason    = "Anti-spam: banned from alert"
	spamUntimeReason = "Anti-spam: timeout lifted from alert"
)

var ErrNoIncident = errors.New("antispam: incident not found")

// Platform is the part of the Discord session the module calls.
type Platform interface {
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
}

type GuildSettings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
}

type DomainLists interface {
	ListDomainAllow(ctx context.Context, guildID string) ([]string, error)
	ListDomainBlock(ctx context.Context, guildID string) ([]string, error)
}

// Incident is what an alert's "Download Details" button returns.
type Incident struct {
	Message Message
	Verdict Verdict
	Action  string
	At      time.Time
}

type Module struct {
	trackers *TrackerStore
	platform Platform
	settings GuildSettings
	domains  DomainLists
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *zap.Logger
	colors   config.EmbedColors
	now      func() time.Time

	mu        sync.Mutex
	incidents map[string]Incident
}

type Options struct {
	Settings GuildSettings
	Domains  DomainLists
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Colors   config.EmbedColors
}

func New(trackers *TrackerStore, platform Platform, opts Options) *Module {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		trackers:  trackers,
		platform:  platform,
		settings:  opts.Settings,
		domains:   opts.Domains,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    logger,
		colors:    opts.Colors,
		now:       time.Now,
		incidents: make(map[string]Incident),
	}
}

func (m *Module) Trackers() *TrackerStore { return m.trackers }

// FromDiscord converts a gateway message.
func FromDiscord(msg *discordgo.Message, at time.Time) Message {
	out := Message{
		GuildID:         msg.GuildID,
		ChannelID:       msg.ChannelID,
		MessageID:       msg.ID,
		Content:         msg.Content,
		MentionEveryone: msg.MentionEveryone,
		At:              at,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorName = msg.Author.Username
		if created, err := discordgo.SnowflakeTimestamp(msg.Author.ID); err == nil {
			out.AccountCreated = created
		}
	}
	for _, attachment := range msg.Attachments {
		if attachment != nil {
			out.Attachments = append(out.Attachments, attachment.URL)
		}
	}
	return out
}

// HandleMessage classifies msg and applies the remediation for its tier.
func (m *Module) HandleMessage(ctx context.Context, msg Message, bypass bool) Verdict {
	if !bypass && m.domains != nil && len(utils.ExtractURLs(msg.Content)) > 0 {
		msg.Allowlist, msg.Blocklist = m.domainLists(ctx, msg.GuildID)
	}

	verdict := m.trackers.Classify(msg, bypass)
	if !verdict.IsSpam() {
		return verdict
	}
	m.metrics.RecordSpam(string(verdict.Tier))
	m.logger.Info("spam detected",
		zap.String("guild_id", msg.GuildID),
		zap.String("user_id", msg.AuthorID),
		zap.String("tier", string(verdict.Tier)),
		zap.String("reason", verdict.Reason),
		zap.Int("count", verdict.Count),
		zap.Bool("enforce", verdict.Enforce),
	)

	if err := m.platform.ChannelMessageDelete(msg.ChannelID, msg.MessageID, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, msg, "antispam_delete", err)
	}
	if !verdict.Enforce {
		return verdict
	}

	until := msg.At.Add(verdict.Timeout)
	reason := timeoutReason(verdict)
	if err := m.platform.GuildMemberTimeout(msg.GuildID, msg.AuthorID, &until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)); err != nil {
		m.reportError(ctx, msg, "antispam_timeout", err)
	}

	action := actionText(verdict)
	m.storeIncident(Incident{Message: msg, Verdict: verdict, Action: action, At: msg.At})
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.AuthorID, "anti_spam", fmt.Sprintf("tier=%s reason=%s count=%d action=%s", verdict.Tier, verdict.Reason, verdict.Count, action))
	}
	m.sendAlert(ctx, msg, verdict, action)
	return verdict
}

func (m *Module) domainLists(ctx context.Context, guildID string) (map[string]struct{}, map[string]struct{}) {
	allowlist := make(map[string]struct{})
	blocklist := make(map[string]struct{})
	if allow, err := m.domains.ListDomainAllow(ctx, guildID); err == nil {
		for _, domain := range allow {
			allowlist[domain] = struct{}{}
		}
	}
	if block, err := m.domains.ListDomainBlock(ctx, guildID); err == nil {
		for _, domain := range block {
			blocklist[domain] = struct{}{}
		}
	}
	return allowlist, blocklist
}

func (m *Module) sendAlert(ctx context.Context, msg Message, verdict Verdict, action string) {
	channelID := ""
	if m.settings != nil {
		channelID = m.settings.Guild(ctx, msg.GuildID).AlertChannel
	}
	if channelID == "" {
		m.logger.Debug("no alert channel", zap.String("guild_id", msg.GuildID))
		return
	}
	alert := BuildAlert(msg, verdict, action, m.colors, m.now())
	if _, err := m.platform.ChannelMessageSendComplex(channelID, alert, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, msg, "antispam_send_alert", fmt.Errorf("alert channel %s: %w", channelID, err))
	}
}

func (m *Module) reportError(ctx context.Context, msg Message, scope string, err error) {
	fields := map[string]string{
		"user":    msg.AuthorID,
		"channel": msg.ChannelID,
		"content": ui.Truncate(msg.Content, 100),
	}
	if m.audit == nil {
		m.logger.Error(scope, zap.Error(err), zap.Any("fields", fields))
		return
	}
	m.audit.Error(ctx, msg.GuildID, scope, err, fields)
}

func (m *Module) storeIncident(incident Incident) {
	m.mu.Lock()
	m.incidents[incident.Message.MessageID] = incident
	m.mu.Unlock()
}

// Incident returns the stored incident for the alert's download button.
func (m *Module) Incident(userID, messageID string) (Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[messageID]
	if !ok || incident.Message.AuthorID != userID {
		return Incident{}, ErrNoIncident
	}
	return incident, nil
}

// Sweep prunes trackers and expired incidents.
func (m *Module) Sweep(now time.Time) {
	removed := m.trackers.Sweep(now)

	m.mu.Lock()
	for id, incident := range m.incidents {
		if now.Sub(incident.At) > incidentTTL {
			delete(m.incidents, id)
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("spam trackers swept", zap.Int("removed", removed))
	}
}

// Untimeout lifts the timeout applied to userID.
func (m *Module) Untimeout(ctx context.Context, guildID, actorID, userID string) error {
	err := m.platform.GuildMemberTimeout(guildID, userID, nil, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(spamUntimeReason))
	m.metrics.RecordModeration("untimeout", err)
	if err != nil {
		return fmt.Errorf("untimeout %s: %w", userID, err)
	}
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, userID, "anti_spam_untimeout", "moderator="+actorID)
	}
	return nil
}

// Ban bans userID and deletes one day of their messages.
func (m *Module) Ban(ctx context.Context, guildID, actorID, userID string) error {
	err := m.platform.GuildBanCreateWithReason(guildID, userID, spamBanReason, banDeleteDays, discordgo.WithContext(ctx))
	m.metrics.RecordModeration("ban", err)
	if err != nil {
		return fmt.Errorf("ban %s: %w", userID, err)
	}
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelCrit, guildID, userID, "anti_spam_ban", "moderator="+actorID)
	}
	return nil
}

func timeoutReason(v Verdict) string {
	switch v.Tier {
	case TierCrypto:
		return "Crypto/NFT scam spam with @everyone"
	case TierSuspicious:
		return "Suspicious message (potential scam/spam)"
	case TierDuplicate:
		return fmt.Sprintf("Duplicate spam (warning %d)", v.Warnings)
	default:
		return fmt.Sprintf("Rapid messaging (warning %d)", v.Warnings)
	}
}

func actionText(v Verdict) string {
	return "Message deleted, user timed out for " + ui.FormatDuration(v.Timeout)
}

// BuildAlert renders the moderation alert for one enforced detection.
func BuildAlert(msg Message, v Verdict, action string, colors config.EmbedColors, now time.Time) *discordgo.MessageSend {
	card := ui.Card{Timestamp: now, Footer: "Anti-spam"}
	fields := []*discordgo.MessageEmbedField{
		ui.Field("Discord", ui.Mention(msg.AuthorID), true),
		ui.Field("Channel", ui.ChannelMention(msg.ChannelID), true),
	}

	switch v.Tier {
	case TierCrypto:
		card.Title = "Crypto/NFT Scam Detected"
		card.Color = cryptoColor
		fields = append(fields, ui.Field("Pattern", fmt.Sprintf("@everyone with %d images", v.Count), false))
	case TierSuspicious:
		card.Title = "Suspicious Message Detected"
		card.Color = colors.Error
		fields = append(fields, ui.Field("Pattern", v.Reason, false))
	case TierDuplicate:
		card.Title = "Duplicate Message Spam"
		card.Color = colors.Warning
		fields = append(fields,
			ui.Field("Duplicates", fmt.Sprintf("%d identical messages", v.Count), true),
			ui.Field("Warnings", fmt.Sprintf("%d", v.Warnings), true),
		)
	case TierRapid:
		card.Title = "Rapid Message Spam"
		card.Color = colors.Warning
		fields = append(fields,
			ui.Field("Messages", fmt.Sprintf("%d messages", v.Count), true),
			ui.Field("Warnings", fmt.Sprintf("%d", v.Warnings), true),
		)
	}

	fields = append(fields, ui.Field("Content", ui.CodeBlock(msg.Content, contentExcerpt), false))
	if v.Tier == TierCrypto && len(msg.Attachments) > 0 {
		urls := msg.Attachments
		if len(urls) > maxAlertURLs {
			urls = urls[:maxAlertURLs]
		}
		fields = append(fields, ui.Field("Attachments", strings.Join(urls, "\n"), false))
	}
	fields = append(fields, ui.Field("Action", action, false))
	if !msg.AccountCreated.IsZero() {
		fields = append(fields, ui.Field("Account Age", ui.Timestamp(msg.AccountCreated, "R"), true))
	}
	fields = append(fields, ui.Field("Message Created", ui.Timestamp(msg.At, "F"), true))
	card.Fields = fields

	return ui.Message(card.Embed(),
		ui.Row(ui.Secondary("Download Details", customid.SpamDownload(msg.AuthorID, msg.MessageID).String())),
		ui.Row(
			ui.Secondary("Un-Timeout", customid.SpamUntimeout(msg.AuthorID).String()),
			ui.Danger("Ban User", customid.SpamBan(msg.AuthorID).String()),
		),
	)
}

// Report renders an incident as plain text for download.
func (i Incident) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tier: %s\n", i.Verdict.Tier)
	if i.Verdict.Reason != "" {
		fmt.Fprintf(&b, "Pattern: %s\n", i.Verdict.Reason)
	}
	if i.Verdict.Count > 0 {
		fmt.Fprintf(&b, "Count: %d\n", i.Verdict.Count)
	}
	fmt.Fprintf(&b, "Warnings: %d\n", i.Verdict.Warnings)
	fmt.Fprintf(&b, "Action: %s\n", i.Action)
	fmt.Fprintf(&b, "Guild: %s\nChannel: %s\nMessage: %s\n", i.Message.GuildID, i.Message.ChannelID, i.Message.MessageID)
	fmt.Fprintf(&b, "User: %s (%s)\n", i.Message.AuthorName, i.Message.AuthorID)
	if !i.Message.AccountCreated.IsZero() {
		fmt.Fprintf(&b, "Account created: %s\n", i.Message.AccountCreated.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Message created: %s\n", i.Message.At.UTC().Format(time.RFC3339))
	for _, url := range i.Message.Attachments {
		fmt.Fprintf(&b, "Attachment: %s\n", url)
	}
	b.WriteString("\nContent:\n")
	b.WriteString(i.Message.Content)
	b.WriteString("\n")
	return b.String()
}
