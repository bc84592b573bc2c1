package tempvoice

import (
	"context"
	"fmt"

	"guildkeeper/internal/customid"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type SetupResult struct {
	CategoryID  string
	InterfaceID string
	GeneratorID string
	PanelID     string
}

// Setup finds or creates the category, interface channel and generator,
// posts the control panel and stores the ids for the guild.
func (m *Manager) Setup(ctx context.Context, guildID string) (SetupResult, error) {
	channels, err := m.platform.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return SetupResult{}, fmt.Errorf("list channels: %w", err)
	}

	category := findChannel(channels, discordgo.ChannelTypeGuildCategory, "", m.cfg.CategoryName)
	if category == nil {
		category, err = m.platform.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name: m.cfg.CategoryName,
			Type: discordgo.ChannelTypeGuildCategory,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return SetupResult{}, fmt.Errorf("create category: %w", err)
		}
	}

	iface := findChannel(channels, discordgo.ChannelTypeGuildText, category.ID, m.cfg.InterfaceName)
	if iface == nil {
		iface, err = m.platform.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     m.cfg.InterfaceName,
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: category.ID,
			PermissionOverwrites: []*discordgo.PermissionOverwrite{
				{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionSendMessages},
			},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return SetupResult{}, fmt.Errorf("create interface channel: %w", err)
		}
	}

	generator := findChannel(channels, discordgo.ChannelTypeGuildVoice, category.ID, m.cfg.GeneratorName)
	if generator == nil {
		generator, err = m.platform.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     m.cfg.GeneratorName,
			Type:     discordgo.ChannelTypeGuildVoice,
			ParentID: category.ID,
			Bitrate:  m.cfg.Bitrate,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return SetupResult{}, fmt.Errorf("create generator: %w", err)
		}
	}

	result := SetupResult{CategoryID: category.ID, InterfaceID: iface.ID, GeneratorID: generator.ID}
	if err := m.remember(ctx, guildID, result); err != nil {
		return result, err
	}

	panel, err := m.platform.ChannelMessageSendComplex(iface.ID, m.Panel(), discordgo.WithContext(ctx))
	if err != nil {
		return result, fmt.Errorf("send panel: %w", err)
	}
	result.PanelID = panel.ID
	m.logger.Info("tempvoice setup complete", zap.String("guild_id", guildID), zap.String("generator_id", generator.ID))
	return result, nil
}

// AutoDetect restores the generator ids from channel names when none are
// stored for the guild.
func (m *Manager) AutoDetect(ctx context.Context, guildID string, channels []*discordgo.Channel) bool {
	if m.settings.Guild(ctx, guildID).GeneratorChannelID != "" {
		return false
	}
	category := findChannel(channels, discordgo.ChannelTypeGuildCategory, "", m.cfg.CategoryName)
	if category == nil {
		return false
	}
	generator := findChannel(channels, discordgo.ChannelTypeGuildVoice, category.ID, m.cfg.GeneratorName)
	if generator == nil {
		m.logger.Debug("no generator channel in category", zap.String("guild_id", guildID))
		return false
	}
	result := SetupResult{CategoryID: category.ID, GeneratorID: generator.ID}
	if iface := findChannel(channels, discordgo.ChannelTypeGuildText, category.ID, m.cfg.InterfaceName); iface != nil {
		result.InterfaceID = iface.ID
	}
	if err := m.remember(ctx, guildID, result); err != nil {
		m.reportError(ctx, guildID, "tempvoice_autodetect", err, nil)
		return false
	}
	m.logger.Info("tempvoice generator detected", zap.String("guild_id", guildID), zap.String("generator_id", generator.ID))
	return true
}

func (m *Manager) remember(ctx context.Context, guildID string, result SetupResult) error {
	err := m.settings.Update(ctx, guildID, func(s *storage.GuildSettings) {
		s.TempVoiceCategoryID = result.CategoryID
		s.GeneratorChannelID = result.GeneratorID
		if result.InterfaceID != "" {
			s.InterfaceChannelID = result.InterfaceID
		}
	})
	if err != nil {
		return fmt.Errorf("store tempvoice settings: %w", err)
	}
	return nil
}

func findChannel(channels []*discordgo.Channel, kind discordgo.ChannelType, parentID, name string) *discordgo.Channel {
	for _, channel := range channels {
		if channel == nil || channel.Type != kind || channel.Name != name {
			continue
		}
		if parentID != "" && channel.ParentID != parentID {
			continue
		}
		return channel
	}
	return nil
}

var panelRows = [][]struct{ label, action string }{
	{{"Name", "name"}, {"Limit", "limit"}, {"Privacy", "privacy"}, {"Waiting Room", "waitingroom"}, {"Chat", "chat"}},
	{{"Trust", "trust"}, {"Untrust", "untrust"}, {"Invite", "invite"}, {"Kick", "kick"}, {"Region", "region"}},
	{{"Block", "block"}, {"Unblock", "unblock"}, {"Claim", "claim"}, {"Transfer", "transfer"}, {"Delete", "delete"}},
}

// Panel is the control message posted in the interface channel.
func (m *Manager) Panel() *discordgo.MessageSend {
	embed := ui.Card{
		Title:       "TempVoice",
		Description: "This interface can be used to manage temporary voice channels.",
		Color:       m.colors.Action,
	}.Embed()

	rows := make([]discordgo.ActionsRow, 0, len(panelRows))
	for _, buttons := range panelRows {
		components := make([]discordgo.MessageComponent, 0, len(buttons))
		for _, b := range buttons {
			style := ui.Secondary(b.label, customid.TempVoice(b.action).String())
			if b.action == "delete" {
				style = ui.Danger(b.label, customid.TempVoice(b.action).String())
			}
			components = append(components, style)
		}
		rows = append(rows, ui.Row(components...))
	}
	return ui.Message(embed, rows...)
}
