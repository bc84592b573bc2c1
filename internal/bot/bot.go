package bot

import (
	"context"
	"fmt"
	"time"

	"guildkeeper/internal/analytics"
	"guildkeeper/internal/config"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/modules/antispam"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/modules/booster"
	"guildkeeper/internal/modules/guild"
	"guildkeeper/internal/modules/moderation"
	"guildkeeper/internal/modules/snipe"
	"guildkeeper/internal/modules/tempvoice"
	"guildkeeper/internal/modules/ticket"
	"guildkeeper/internal/modules/welcome"
	"guildkeeper/internal/settings"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	retentionSpec = "@daily"
	// stateMessages is how many messages per channel the gateway cache keeps,
	// so deleted messages can still be read.
	stateMessages = 100
)

// Deps are the long-lived services the bot is built from.
type Deps struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *storage.Store
	Documents storage.Documents
	Metrics   *metrics.Metrics
	Audit     *audit.Logger
}

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	metrics   *metrics.Metrics
	audit     *audit.Logger
	settings  *settings.Resolver
	analytics *analytics.Service
	session   *discordgo.Session
	state     *stateView
	cron      *cron.Cron
	alerts    *aggregator

	antispam   *antispam.Module
	tempvoice  *tempvoice.Manager
	moderation *moderation.Module
	tickets    *ticket.Module
	welcome    *welcome.Module
	booster    *booster.Module
	server     *guild.Module
	snipe      *snipe.Module
}

func New(deps Deps) (*Bot, error) {
	cfg := deps.Config
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates
	session.State.MaxMessageCount = stateMessages

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := settings.NewResolver(deps.Store, cfg, logger.Named("settings"))
	state := &stateView{session: session}
	colors := cfg.EmbedColors

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		settings:  resolver,
		analytics: analytics.New(deps.Store),
		session:   session,
		state:     state,
		cron:      cron.New(),
		alerts:    newAggregator(aggregateWindow),
	}

	b.antispam = antispam.New(antispam.NewTrackerStore(antispam.SettingsFromConfig(cfg.AntiSpam)), session, antispam.Options{
		Settings: resolver,
		Domains:  deps.Store,
		Audit:    deps.Audit,
		Metrics:  deps.Metrics,
		Logger:   logger.Named("antispam"),
		Colors:   colors,
	})
	b.tempvoice = tempvoice.NewManager(session, state, resolver, tempvoice.NewRegistry(), tempvoice.Options{
		Audit:   deps.Audit,
		Metrics: deps.Metrics,
		Logger:  logger.Named("tempvoice"),
		Config:  cfg.TempVoice,
		Colors:  colors,
	})
	b.moderation = moderation.New(session, state, moderation.Options{
		Warnings: storage.NewWarnings(deps.Documents),
		Settings: resolver,
		Audit:    deps.Audit,
		Metrics:  deps.Metrics,
		Logger:   logger.Named("moderation"),
		Colors:   colors,
	})
	b.tickets = ticket.New(session, ticket.Options{
		Settings: resolver,
		Audit:    deps.Audit,
		Metrics:  deps.Metrics,
		Logger:   logger.Named("ticket"),
		Colors:   colors,
		Config:   cfg.Tickets,
	})
	b.welcome = welcome.New(session, resolver, logger.Named("welcome"), colors)
	b.booster = booster.New(session, booster.Options{
		Store:    storage.NewBoosters(deps.Documents),
		Settings: resolver,
		Audit:    deps.Audit,
		Logger:   logger.Named("booster"),
		Colors:   colors,
	})

	b.server = guild.New(session, guild.Options{
		Settings: resolver,
		Audit:    deps.Audit,
		Logger:   logger.Named("guild"),
		Colors:   colors,
	})
	b.snipe = snipe.New(storage.NewGhostPings(deps.Documents), logger.Named("snipe"), colors)

	if b.audit != nil {
		b.audit.SetNotifier(b.notifyAudit)
		b.audit.SetSink(b.postError)
	}
	return b, nil
}

// Start opens the gateway, syncs commands and starts the scheduled jobs.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberUpdate)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if err := b.SyncCommands(ctx); err != nil {
		return err
	}
	return b.startJobs()
}

func (b *Bot) startJobs() error {
	if _, err := b.cron.AddFunc(b.cfg.AntiSpam.SweepSpec, func() {
		now := time.Now()
		b.antispam.Sweep(now)
		b.snipe.Sweep(now)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	if _, err := b.cron.AddFunc(retentionSpec, b.cleanupAuditLogs); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	b.cron.Start()
	return nil
}

func (b *Bot) cleanupAuditLogs() {
	if b.store == nil || b.cfg.RetentionDays <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := b.store.CleanupAuditLogs(ctx, b.cfg.RetentionDays)
	if err != nil {
		b.logger.Error("audit retention failed", zap.Error(err))
		return
	}
	b.logger.Info("audit retention", zap.Int64("removed", removed))
}

// Close stops the jobs, waiting for a running one within ctx, then closes
// the gateway.
func (b *Bot) Close(ctx context.Context) {
	if b.cron != nil {
		select {
		case <-b.cron.Stop().Done():
		case <-ctx.Done():
			b.logger.Warn("scheduled job still running at shutdown")
		}
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
	ctx := context.Background()
	for _, guild := range event.Guilds {
		channels, err := session.GuildChannels(guild.ID, discordgo.WithContext(ctx))
		if err != nil {
			b.logger.Warn("list channels failed", zap.String("guild_id", guild.ID), zap.Error(err))
			continue
		}
		if b.tempvoice.AutoDetect(ctx, guild.ID, channels) {
			b.logger.Info("temp voice channels detected", zap.String("guild_id", guild.ID))
		}
	}
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	if !b.cfg.AntiSpam.Enabled {
		return
	}
	ctx := context.Background()
	bypass := b.bypass(ctx, msg.GuildID, msg.Author, msg.Member)
	verdict := b.antispam.HandleMessage(ctx, antispam.FromDiscord(msg.Message, time.Now()), bypass)
	if verdict.IsSpam() {
		b.logger.Debug("spam handled",
			zap.String("guild_id", msg.GuildID),
			zap.String("user_id", msg.Author.ID),
			zap.String("tier", string(verdict.Tier)),
			zap.Bool("enforced", verdict.Enforce),
		)
	}
}

// onMessageDelete needs the cached copy of the message; messages sent
// before the cache saw them carry no content and are skipped.
func (b *Bot) onMessageDelete(_ *discordgo.Session, event *discordgo.MessageDelete) {
	if event.GuildID == "" || event.BeforeDelete == nil {
		return
	}
	ctx := context.Background()
	if err := b.snipe.MessageDeleted(ctx, event.GuildID, event.BeforeDelete); err != nil {
		b.reportError(ctx, event.GuildID, "ghost_ping", err, map[string]string{"channel": event.ChannelID})
	}
}

// bypass reports whether author is exempt from spam checks. member is the
// partial member attached to the message, when present.
func (b *Bot) bypass(ctx context.Context, guildID string, author *discordgo.User, member *discordgo.Member) bool {
	guild, err := b.state.Guild(guildID)
	if err != nil {
		return false
	}
	if member == nil {
		member, err = b.state.Member(guildID, author.ID)
		if err != nil {
			return false
		}
	}
	withUser := *member
	withUser.User = author
	return Bypass(guild, &withUser, b.settings.Guild(ctx, guildID).SupportRoleID)
}

// Bypass is true for administrators, the owner and members whose highest
// role sits strictly above the support role.
func Bypass(guild *discordgo.Guild, member *discordgo.Member, supportRoleID string) bool {
	if moderation.Permissions(guild, member)&discordgo.PermissionAdministrator != 0 {
		return true
	}
	if supportRoleID == "" {
		return false
	}
	for _, role := range guild.Roles {
		if role.ID == supportRoleID {
			return moderation.HighestPosition(guild, member) > role.Position
		}
	}
	return false
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.Member.User == nil || event.Member.User.Bot {
		return
	}
	ctx := context.Background()
	guild, err := b.state.Guild(event.GuildID)
	if err != nil {
		b.reportError(ctx, event.GuildID, "welcome", err, nil)
		return
	}
	if err := b.welcome.MemberJoin(ctx, guild, event.Member); err != nil {
		b.reportError(ctx, event.GuildID, "welcome", err, map[string]string{"user": event.Member.User.ID})
	}
}

func (b *Bot) onGuildMemberUpdate(_ *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	if event.Member == nil || event.Member.User == nil {
		return
	}
	ctx := context.Background()
	boosts := 0
	if guild, err := b.state.Guild(event.GuildID); err == nil {
		boosts = guild.PremiumSubscriptionCount
	}
	if err := b.booster.MemberUpdate(ctx, event.GuildID, event.BeforeUpdate, event.Member, boosts); err != nil {
		b.reportError(ctx, event.GuildID, "booster_log", err, map[string]string{"user": event.Member.User.ID})
	}
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || event.GuildID == "" {
		return
	}
	before := ""
	if event.BeforeUpdate != nil {
		before = event.BeforeUpdate.ChannelID
	}
	username := event.UserID
	if event.Member != nil && event.Member.User != nil {
		username = event.Member.User.Username
	} else if member, err := b.state.Member(event.GuildID, event.UserID); err == nil && member.User != nil {
		username = member.User.Username
	}
	b.tempvoice.HandleVoiceState(context.Background(), event.GuildID, event.UserID, username, before, event.ChannelID)
}

func (b *Bot) reportError(ctx context.Context, guildID, scope string, err error, fields map[string]string) {
	if b.audit == nil {
		b.logger.Error(scope, zap.String("guild_id", guildID), zap.Error(err), zap.Any("fields", fields))
		return
	}
	b.audit.Error(ctx, guildID, scope, err, fields)
}
