// Package moderation implements the staff moderation commands. Every action
// checks permissions and role hierarchy before it touches the member.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	MinTimeout      = time.Minute
	MaxTimeout      = 28 * 24 * time.Hour
	MaxDeleteDays   = 7
	MaxPurge        = 100
	MaxReason       = 512
	MaxListed       = 10
	DefaultReason   = "No reason provided"
	purgeWindow     = 14 * 24 * time.Hour
	softbanFallback = 1
)

var (
	ErrMissingPermission = errors.New("moderation: missing permission")
	ErrSelfTarget        = errors.New("moderation: cannot target yourself")
	ErrTargetOwner       = errors.New("moderation: cannot target the server owner")
	ErrTargetBot         = errors.New("moderation: cannot target the bot")
	ErrHierarchy         = errors.New("moderation: target role is not below yours")
	ErrBotHierarchy      = errors.New("moderation: target role is not below the bot")
	ErrNotMember         = errors.New("moderation: user is not a member")
	ErrInvalidDuration   = errors.New("moderation: duration must be between 1 minute and 28 days")
	ErrInvalidDeleteDays = errors.New("moderation: delete days must be between 0 and 7")
	ErrInvalidAmount     = errors.New("moderation: amount must be between 1 and 100")
	ErrNothingToPurge    = errors.New("moderation: no messages younger than 14 days matched")
)

type Platform interface {
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Directory resolves guilds and members, usually from the state cache.
type Directory interface {
	Guild(guildID string) (*discordgo.Guild, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	BotID() string
}

type WarningStore interface {
	Add(ctx context.Context, guildID, userID, moderatorID, reason string) (storage.WarningRecord, error)
	List(ctx context.Context, guildID, userID string) ([]storage.WarningRecord, error)
}

type Settings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
}

// Request names who acts on whom, and why.
type Request struct {
	GuildID  string
	ActorID  string
	TargetID string
	Reason   string
}

type Module struct {
	platform  Platform
	directory Directory
	warnings  WarningStore
	settings  Settings
	audit     *audit.Logger
	metrics   *metrics.Metrics
	logger    *zap.Logger
	colors    config.EmbedColors
	now       func() time.Time
}

type Options struct {
	Warnings WarningStore
	Settings Settings
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Colors   config.EmbedColors
}

func New(platform Platform, directory Directory, opts Options) *Module {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		platform:  platform,
		directory: directory,
		warnings:  opts.Warnings,
		settings:  opts.Settings,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    logger,
		colors:    opts.Colors,
		now:       time.Now,
	}
}

// SanitizeReason trims reason and caps it at MaxReason runes.
func SanitizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DefaultReason
	}
	return ui.Truncate(reason, MaxReason)
}

func (m *Module) Ban(ctx context.Context, req Request, deleteDays int) error {
	if deleteDays < 0 || deleteDays > MaxDeleteDays {
		return ErrInvalidDeleteDays
	}
	req.Reason = SanitizeReason(req.Reason)
	if _, _, err := m.authorize(req, discordgo.PermissionBanMembers, false); err != nil {
		return err
	}
	err := m.platform.GuildBanCreateWithReason(req.GuildID, req.TargetID, actionReason(req), deleteDays, discordgo.WithContext(ctx))
	return m.finish(ctx, "ban", req, err, ui.Field("Messages Deleted", fmt.Sprintf("%d days", deleteDays), true))
}

func (m *Module) Kick(ctx context.Context, req Request) error {
	req.Reason = SanitizeReason(req.Reason)
	if _, _, err := m.authorize(req, discordgo.PermissionKickMembers, true); err != nil {
		return err
	}
	err := m.platform.GuildMemberDeleteWithReason(req.GuildID, req.TargetID, actionReason(req), discordgo.WithContext(ctx))
	return m.finish(ctx, "kick", req, err)
}

func (m *Module) Timeout(ctx context.Context, req Request, duration time.Duration) error {
	if duration < MinTimeout || duration > MaxTimeout {
		return ErrInvalidDuration
	}
	req.Reason = SanitizeReason(req.Reason)
	if _, _, err := m.authorize(req, discordgo.PermissionModerateMembers, true); err != nil {
		return err
	}
	until := m.now().Add(duration)
	err := m.platform.GuildMemberTimeout(req.GuildID, req.TargetID, &until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(actionReason(req)))
	return m.finish(ctx, "timeout", req, err,
		ui.Field("Duration", ui.FormatDuration(duration), true),
		ui.Field("Expires", ui.Timestamp(until, "R"), true))
}

func (m *Module) Untimeout(ctx context.Context, req Request) error {
	req.Reason = SanitizeReason(req.Reason)
	if _, _, err := m.authorize(req, discordgo.PermissionModerateMembers, true); err != nil {
		return err
	}
	err := m.platform.GuildMemberTimeout(req.GuildID, req.TargetID, nil, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(actionReason(req)))
	return m.finish(ctx, "untimeout", req, err)
}

// Warn stores a warning and tells the member by DM when their DMs are open.
func (m *Module) Warn(ctx context.Context, req Request) (storage.WarningRecord, error) {
	req.Reason = SanitizeReason(req.Reason)
	guild, _, err := m.authorize(req, discordgo.PermissionModerateMembers, false)
	if err != nil {
		return storage.WarningRecord{}, err
	}
	record, err := m.warnings.Add(ctx, req.GuildID, req.TargetID, req.ActorID, req.Reason)
	if err != nil {
		err = fmt.Errorf("store warning: %w", err)
		return storage.WarningRecord{}, m.finish(ctx, "warn", req, err)
	}

	m.notifyMember(ctx, req.TargetID, ui.Card{
		Title:       "You have been warned",
		Description: fmt.Sprintf("You received a warning in **%s**.", guild.Name),
		Color:       m.colors.Warning,
		Fields:      []*discordgo.MessageEmbedField{ui.Field("Reason", req.Reason, false)},
		Timestamp:   m.now(),
	}.Embed())

	return record, m.finish(ctx, "warn", req, nil, ui.Field("Warning ID", record.WarningID, false))
}

// Warnings lists the warnings of userID, newest first.
func (m *Module) Warnings(ctx context.Context, guildID, actorID, userID string) ([]storage.WarningRecord, error) {
	guild, err := m.directory.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("load guild: %w", err)
	}
	actor, err := m.directory.Member(guildID, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if Permissions(guild, actor)&discordgo.PermissionModerateMembers == 0 {
		return nil, ErrMissingPermission
	}
	records, err := m.warnings.List(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	return records, nil
}

// Softban bans and immediately unbans to clear the member's recent messages.
func (m *Module) Softban(ctx context.Context, req Request, deleteDays int) error {
	if deleteDays < 0 || deleteDays > MaxDeleteDays {
		return ErrInvalidDeleteDays
	}
	if deleteDays == 0 {
		deleteDays = softbanFallback
	}
	req.Reason = SanitizeReason(req.Reason)
	guild, _, err := m.authorize(req, discordgo.PermissionBanMembers, true)
	if err != nil {
		return err
	}

	m.notifyMember(ctx, req.TargetID, ui.Card{
		Title:       "You have been softbanned",
		Description: fmt.Sprintf("You were removed from **%s** and your recent messages were deleted. You may rejoin.", guild.Name),
		Color:       m.colors.Error,
		Fields:      []*discordgo.MessageEmbedField{ui.Field("Reason", req.Reason, false)},
		Timestamp:   m.now(),
	}.Embed())

	if err := m.platform.GuildBanCreateWithReason(req.GuildID, req.TargetID, actionReason(req), deleteDays, discordgo.WithContext(ctx)); err != nil {
		return m.finish(ctx, "softban", req, err)
	}
	if err := m.platform.GuildBanDelete(req.GuildID, req.TargetID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason("Softban")); err != nil {
		return m.finish(ctx, "softban", req, fmt.Errorf("unban after softban: %w", err))
	}
	return m.finish(ctx, "softban", req, nil, ui.Field("Messages Deleted", fmt.Sprintf("%d days", deleteDays), true))
}

// Purge deletes up to amount recent messages in channelID, optionally only
// those by userID. Messages older than 14 days are skipped.
func (m *Module) Purge(ctx context.Context, guildID, actorID, channelID string, amount int, userID string) (int, error) {
	if amount < 1 || amount > MaxPurge {
		return 0, ErrInvalidAmount
	}
	guild, err := m.directory.Guild(guildID)
	if err != nil {
		return 0, fmt.Errorf("load guild: %w", err)
	}
	actor, err := m.directory.Member(guildID, actorID)
	if err != nil {
		return 0, fmt.Errorf("load actor: %w", err)
	}
	if Permissions(guild, actor)&discordgo.PermissionManageMessages == 0 {
		return 0, ErrMissingPermission
	}

	req := Request{GuildID: guildID, ActorID: actorID, TargetID: userID, Reason: "Purge"}
	messages, err := m.platform.ChannelMessages(channelID, amount, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, m.finish(ctx, "purge", req, fmt.Errorf("fetch messages: %w", err))
	}
	ids := PurgeCandidates(messages, userID, m.now())
	if len(ids) == 0 {
		return 0, ErrNothingToPurge
	}

	if len(ids) == 1 {
		err = m.platform.ChannelMessageDelete(channelID, ids[0], discordgo.WithContext(ctx))
	} else {
		err = m.platform.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
	}
	if err != nil {
		return 0, m.finish(ctx, "purge", req, err)
	}

	fields := []*discordgo.MessageEmbedField{
		ui.Field("Deleted", fmt.Sprintf("%d messages", len(ids)), true),
		ui.Field("Channel", ui.ChannelMention(channelID), true),
	}
	return len(ids), m.finish(ctx, "purge", req, nil, fields...)
}

// PurgeCandidates selects the ids that may be bulk deleted.
func PurgeCandidates(messages []*discordgo.Message, userID string, now time.Time) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if userID != "" && (msg.Author == nil || msg.Author.ID != userID) {
			continue
		}
		if now.Sub(msg.Timestamp) >= purgeWindow {
			continue
		}
		ids = append(ids, msg.ID)
	}
	return ids
}

// authorize loads the guild and checks permission then hierarchy. When the
// target is not a member, requireMember decides between ErrNotMember and
// skipping the role comparison.
func (m *Module) authorize(req Request, permission int64, requireMember bool) (*discordgo.Guild, *discordgo.Member, error) {
	guild, err := m.directory.Guild(req.GuildID)
	if err != nil {
		return nil, nil, fmt.Errorf("load guild: %w", err)
	}
	actor, err := m.directory.Member(req.GuildID, req.ActorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load actor: %w", err)
	}
	if Permissions(guild, actor)&permission == 0 {
		return nil, nil, ErrMissingPermission
	}
	botID := m.directory.BotID()
	if err := checkIdentity(guild, req.ActorID, req.TargetID, botID); err != nil {
		return nil, nil, err
	}

	target, err := m.directory.Member(req.GuildID, req.TargetID)
	if err != nil {
		if requireMember {
			return nil, nil, ErrNotMember
		}
		return guild, nil, nil
	}
	var bot *discordgo.Member
	if botID != "" {
		if bot, err = m.directory.Member(req.GuildID, botID); err != nil {
			return nil, nil, fmt.Errorf("load bot member: %w", err)
		}
	}
	if err := checkRoles(guild, actor, target, bot); err != nil {
		return nil, nil, err
	}
	return guild, target, nil
}

var actionTitles = map[string]string{
	"ban":       "Member Banned",
	"kick":      "Member Kicked",
	"timeout":   "Member Timed Out",
	"untimeout": "Timeout Removed",
	"warn":      "Member Warned",
	"softban":   "Member Softbanned",
	"purge":     "Messages Purged",
}

// finish records the outcome of a platform call. Failures go to the error
// log; successes are audited and posted to the alert channel.
func (m *Module) finish(ctx context.Context, action string, req Request, err error, extra ...*discordgo.MessageEmbedField) error {
	m.metrics.RecordModeration(action, err)
	if err != nil {
		m.reportError(ctx, req.GuildID, "moderation_"+action, err, map[string]string{"actor": req.ActorID, "target": req.TargetID})
		return fmt.Errorf("%s: %w", action, err)
	}

	if m.audit != nil {
		m.audit.Log(ctx, levelFor(action), req.GuildID, req.TargetID, "moderation_"+action,
			fmt.Sprintf("moderator=%s reason=%s", req.ActorID, req.Reason))
	}
	m.logger.Info("moderation action", zap.String("action", action), zap.String("guild_id", req.GuildID),
		zap.String("actor_id", req.ActorID), zap.String("target_id", req.TargetID))

	m.postLog(ctx, req.GuildID, m.LogEmbed(action, req, extra...))
	return nil
}

func levelFor(action string) string {
	switch action {
	case "ban", "softban":
		return audit.LevelCrit
	case "kick", "timeout", "warn":
		return audit.LevelWarn
	}
	return audit.LevelInfo
}

// LogEmbed is the moderation log entry for one action.
func (m *Module) LogEmbed(action string, req Request, extra ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	color := m.colors.Warning
	switch action {
	case "ban", "softban":
		color = m.colors.Error
	case "untimeout":
		color = m.colors.Success
	case "purge":
		color = m.colors.Action
	}
	title := actionTitles[action]
	if title == "" {
		title = action
	}

	fields := make([]*discordgo.MessageEmbedField, 0, 3+len(extra))
	if req.TargetID != "" {
		fields = append(fields, ui.Field("User", ui.Mention(req.TargetID), true))
	}
	fields = append(fields, ui.Field("Moderator", ui.Mention(req.ActorID), true))
	if action != "purge" {
		fields = append(fields, ui.Field("Reason", req.Reason, false))
	}
	fields = append(fields, extra...)

	return ui.Card{Title: title, Color: color, Fields: fields, Timestamp: m.now()}.Embed()
}

// WarningsEmbed lists at most MaxListed warnings and the overall total.
func (m *Module) WarningsEmbed(userID string, records []storage.WarningRecord) *discordgo.MessageEmbed {
	card := ui.Card{
		Title:     "Warnings",
		Color:     m.colors.Warning,
		Timestamp: m.now(),
		Footer:    fmt.Sprintf("Total warnings: %d", len(records)),
	}
	if len(records) == 0 {
		card.Description = fmt.Sprintf("%s has no warnings.", ui.Mention(userID))
		card.Color = m.colors.Success
		return card.Embed()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Warnings for %s\n\n", ui.Mention(userID))
	for i, record := range records {
		if i == MaxListed {
			fmt.Fprintf(&b, "...and %d more", len(records)-MaxListed)
			break
		}
		fmt.Fprintf(&b, "**%d.** %s\nBy %s %s\n\n", i+1, ui.Truncate(record.Reason, 200),
			ui.Mention(record.ModeratorID), ui.Timestamp(time.Unix(record.Timestamp, 0), "R"))
	}
	card.Description = ui.Truncate(strings.TrimSpace(b.String()), 4096)
	return card.Embed()
}

func (m *Module) postLog(ctx context.Context, guildID string, embed *discordgo.MessageEmbed) {
	if m.settings == nil {
		return
	}
	channelID := m.settings.Guild(ctx, guildID).AlertChannel
	if channelID == "" {
		m.logger.Debug("no moderation log channel", zap.String("guild_id", guildID))
		return
	}
	if _, err := m.platform.ChannelMessageSendComplex(channelID, ui.Message(embed), discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, guildID, "moderation_log", err, map[string]string{"channel": channelID})
	}
}

func (m *Module) notifyMember(ctx context.Context, userID string, embed *discordgo.MessageEmbed) {
	dm, err := m.platform.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err == nil {
		_, err = m.platform.ChannelMessageSendComplex(dm.ID, ui.Message(embed), discordgo.WithContext(ctx))
	}
	if err != nil {
		m.logger.Debug("moderation dm failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (m *Module) reportError(ctx context.Context, guildID, scope string, err error, fields map[string]string) {
	if m.audit == nil {
		m.logger.Error(scope, zap.String("guild_id", guildID), zap.Error(err), zap.Any("fields", fields))
		return
	}
	m.audit.Error(ctx, guildID, scope, err, fields)
}

func actionReason(req Request) string {
	return ui.Truncate(fmt.Sprintf("%s (by %s)", req.Reason, req.ActorID), MaxReason)
}

var userMessages = []struct {
	err error
	msg string
}{
	{ErrMissingPermission, "You don't have permission to do that."},
	{ErrSelfTarget, "You cannot use this on yourself."},
	{ErrTargetOwner, "You cannot use this on the server owner."},
	{ErrTargetBot, "You cannot use this on me."},
	{ErrHierarchy, "You cannot act on this user due to role hierarchy."},
	{ErrBotHierarchy, "I cannot act on this user due to role hierarchy."},
	{ErrNotMember, "User not found in this server."},
	{ErrInvalidDuration, "Duration must be between 1 minute and 28 days."},
	{ErrInvalidDeleteDays, "Delete days must be between 0 and 7."},
	{ErrInvalidAmount, "Amount must be between 1 and 100."},
	{ErrNothingToPurge, "No messages found to delete. Messages must be less than 14 days old."},
}

// Describe maps a validation error to the reply shown to the moderator.
func Describe(err error) (string, bool) {
	for _, entry := range userMessages {
		if errors.Is(err, entry.err) {
			return entry.msg, true
		}
	}
	return "", false
}
