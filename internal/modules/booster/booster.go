// Package booster announces new server boosts and lets repeat boosters
// claim their whitelist reward.
package booster

import (
	"context"
	"errors"
	"fmt"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MinBoosts is the boost count that unlocks the claim button.
const MinBoosts = 2

var (
	ErrNotYours        = errors.New("booster: claim belongs to another member")
	ErrAlreadyClaimed  = errors.New("booster: whitelist already claimed")
	ErrNotEnoughBoosts = errors.New("booster: not enough boosts")
)

type Platform interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Store interface {
	Get(ctx context.Context, userID, guildID string) (*storage.BoosterWhitelistRecord, error)
	AddWhitelist(ctx context.Context, userID, guildID string, boostCount int) error
	RemoveWhitelist(ctx context.Context, userID, guildID string) error
}

type Settings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
	Update(ctx context.Context, guildID string, fn func(*storage.GuildSettings)) error
}

type Module struct {
	platform Platform
	store    Store
	settings Settings
	audit    *audit.Logger
	logger   *zap.Logger
	colors   config.EmbedColors
}

type Options struct {
	Store    Store
	Settings Settings
	Audit    *audit.Logger
	Logger   *zap.Logger
	Colors   config.EmbedColors
}

func New(platform Platform, opts Options) *Module {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		platform: platform,
		store:    opts.Store,
		settings: opts.Settings,
		audit:    opts.Audit,
		logger:   logger,
		colors:   opts.Colors,
	}
}

// Configure stores the booster log channel and optional media url.
func (m *Module) Configure(ctx context.Context, guildID, channelID, mediaURL string) error {
	return m.settings.Update(ctx, guildID, func(s *storage.GuildSettings) {
		s.BoosterLogChannel = channelID
		s.BoosterMediaURL = mediaURL
	})
}

// Transition reports whether a member update started or stopped a boost.
func Transition(before, after *discordgo.Member) (started, stopped bool) {
	was := before != nil && before.PremiumSince != nil
	is := after != nil && after.PremiumSince != nil
	return !was && is, was && !is
}

// MemberUpdate announces a new boost and revokes the whitelist when a boost
// ends. boostCount is the guild's total.
func (m *Module) MemberUpdate(ctx context.Context, guildID string, before, after *discordgo.Member, boostCount int) error {
	started, stopped := Transition(before, after)
	if after == nil || after.User == nil {
		return nil
	}
	if stopped {
		return m.stopped(ctx, guildID, after.User.ID)
	}
	if !started {
		return nil
	}

	s := m.settings.Guild(ctx, guildID)
	if s.BoosterLogChannel == "" {
		m.logger.Debug("booster log channel not configured", zap.String("guild_id", guildID))
		return nil
	}
	msg := Announcement(after.User.ID, boostCount, s.BoosterMediaURL, m.colors.Success)
	if _, err := m.platform.ChannelMessageSendComplex(s.BoosterLogChannel, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send booster log: %w", err)
	}
	m.logger.Info("member boosted", zap.String("guild_id", guildID), zap.String("user_id", after.User.ID), zap.Int("boosts", boostCount))
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, after.User.ID, "booster_started", fmt.Sprintf("total=%d", boostCount))
	}
	return nil
}

// stopped revokes the whitelist reward of a member whose boost ended.
func (m *Module) stopped(ctx context.Context, guildID, userID string) error {
	if err := m.store.RemoveWhitelist(ctx, userID, guildID); err != nil {
		return fmt.Errorf("remove whitelist: %w", err)
	}
	m.logger.Info("member stopped boosting", zap.String("guild_id", guildID), zap.String("user_id", userID))
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, userID, "booster_stopped", "whitelist removed")
	}
	return nil
}

// Announcement thanks userID for boosting. At MinBoosts or more it carries
// the claim button.
func Announcement(userID string, boostCount int, mediaURL string, color int) *discordgo.MessageSend {
	embed := ui.Card{
		Title:       "🚀 Server Boosted!",
		Description: fmt.Sprintf("Thank you so much for boosting the server, %s!\nTotal Boosts: **%d**", ui.Mention(userID), boostCount),
		Color:       color,
		Image:       mediaURL,
	}.Embed()
	if boostCount < MinBoosts {
		return ui.Message(embed)
	}
	return ui.Message(embed, ui.Row(ui.Secondary("🎁 Claim your 1 month SP Key", customid.BoosterClaim(userID).String())))
}

// Claim whitelists targetID when clickerID is that member.
func (m *Module) Claim(ctx context.Context, guildID, clickerID, targetID string) error {
	if clickerID != targetID {
		return ErrNotYours
	}
	record, err := m.store.Get(ctx, targetID, guildID)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}
	count := MinBoosts
	if record != nil {
		if record.WhitelistedAt > 0 {
			return ErrAlreadyClaimed
		}
		if record.BoostCount < MinBoosts {
			return ErrNotEnoughBoosts
		}
		count = record.BoostCount
	}
	if err := m.store.AddWhitelist(ctx, targetID, guildID, count); err != nil {
		return fmt.Errorf("save whitelist: %w", err)
	}
	m.logger.Info("booster whitelist claimed", zap.String("guild_id", guildID), zap.String("user_id", targetID))
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, targetID, "booster_claim", fmt.Sprintf("boosts=%d", count))
	}
	return nil
}

// Describe maps a claim error to the reply shown to the member.
func Describe(err error) string {
	switch {
	case err == nil:
		return "Whitelist claimed successfully! You now have access to 1 month SP Key."
	case errors.Is(err, ErrNotYours):
		return "This button is not for you!"
	case errors.Is(err, ErrAlreadyClaimed):
		return "You have already claimed your whitelist!"
	case errors.Is(err, ErrNotEnoughBoosts):
		return fmt.Sprintf("You need at least %d boosts to claim the whitelist!", MinBoosts)
	default:
		return "An error occurred while processing your claim. Please contact an administrator."
	}
}
