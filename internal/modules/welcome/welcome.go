// Package welcome greets new members in the configured welcome channel.
package welcome

import (
	"context"
	"fmt"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const defaultIcon = "https://cdn.discordapp.com/embed/avatars/0.png"

type Platform interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Settings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
	Update(ctx context.Context, guildID string, fn func(*storage.GuildSettings)) error
}

type Module struct {
	platform Platform
	settings Settings
	logger   *zap.Logger
	colors   config.EmbedColors
}

func New(platform Platform, settings Settings, logger *zap.Logger, colors config.EmbedColors) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{platform: platform, settings: settings, logger: logger, colors: colors}
}

// Configure stores the welcome channel and, when set, the rules channel.
func (m *Module) Configure(ctx context.Context, guildID, channelID, rulesID string) error {
	return m.settings.Update(ctx, guildID, func(s *storage.GuildSettings) {
		s.WelcomeChannel = channelID
		if rulesID != "" {
			s.RulesChannel = rulesID
		}
	})
}

// MemberJoin posts the greeting for member. Without a welcome channel it
// does nothing.
func (m *Module) MemberJoin(ctx context.Context, guild *discordgo.Guild, member *discordgo.Member) error {
	if guild == nil || member == nil || member.User == nil {
		return nil
	}
	s := m.settings.Guild(ctx, guild.ID)
	if s.WelcomeChannel == "" {
		m.logger.Debug("welcome channel not configured", zap.String("guild_id", guild.ID))
		return nil
	}
	embed := Embed(guild, member.User, s.RulesChannel, m.colors.Success)
	if _, err := m.platform.ChannelMessageSendComplex(s.WelcomeChannel, ui.Message(embed), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	m.logger.Info("welcome sent", zap.String("guild_id", guild.ID), zap.String("user_id", member.User.ID))
	return nil
}

// Embed builds the greeting. rulesID adds a pointer to the rules channel.
func Embed(guild *discordgo.Guild, user *discordgo.User, rulesID string, color int) *discordgo.MessageEmbed {
	card := ui.Card{
		Title: "👋 Welcome",
		Description: fmt.Sprintf("%s, you've just joined **%s**.\nWe're glad to have you here.",
			ui.Mention(user.ID), guild.Name),
		Color:     color,
		Thumbnail: user.AvatarURL("256"),
		Footer:    guild.Name,
	}
	if rulesID != "" {
		card.Fields = append(card.Fields, ui.Field("📜 Start Here",
			fmt.Sprintf("Before exploring, please read %s to understand how everything works.", ui.ChannelMention(rulesID)), false))
		card.Image = iconURL(guild)
	}
	return card.Embed()
}

func iconURL(guild *discordgo.Guild) string {
	if guild.Icon == "" {
		return defaultIcon
	}
	return discordgo.EndpointGuildIcon(guild.ID, guild.Icon)
}
