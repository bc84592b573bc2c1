// Package guild posts the server rules panel and the server info card.
package guild

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Text input ids of the edit modal.
const (
	FieldHeader = "header"
	FieldRules  = "rules"
	FieldFooter = "footer"

	rulesTitle     = "📜 Server Rules"
	maxHeaderInput = 500
	maxRulesInput  = 4000
	maxFooterInput = 500
)

var (
	ErrNoRulesChannel = errors.New("guild: rules channel not configured")
	ErrNotRulesPanel  = errors.New("guild: message is not a rules panel")
	ErrEmptyRules     = errors.New("guild: rules text is empty")
)

// Rules is the editable text of a rules panel.
type Rules struct {
	Header string
	Body   string
	Footer string
}

var DefaultRules = Rules{
	Header: "Hello and welcome! We want everyone to have fun here, regardless of background or rank, so we've got a few rules you'll need to follow:",
	Body: strings.Join([]string{
		"### 1. Respect Everyone",
		"Treat others with kindness and respect. No harassment, toxic behavior, or personal attacks.",
		"",
		"### 2. No Controversial Topics",
		"Avoid discussions about politics, religion, or sensitive issues that could create conflicts. Keep the vibe positive!",
		"",
		"### 3. Zero Tolerance for Hate Speech",
		"No racism, sexism, homophobia, or any form of discrimination. This includes offensive slurs, derogatory language, and targeted hate.",
		"",
		"### 4. No Spam or Unwanted Promotions",
		"Avoid sending excessive messages, emojis, caps, pings, or posting Discord invites and self-promo without permission.",
		"",
		"### 5. Protect Privacy",
		"Do not share your personal information or anyone else's (e.g., real name, address, phone number, DMs, or private messages).",
		"",
		"### 6. Report Issues, Don't Handle Them Yourself",
		"If you see someone breaking the rules, report it to the moderators instead of engaging. False reports will result in punishment.",
		"",
		"### 7. Follow Discord Terms of Service",
		"Any violation of Discord's ToS is strictly forbidden. If Discord doesn't allow it, neither do we.",
	}, "\n"),
	Footer: "## Have Fun & Engage!\nBe friendly, make new friends, and contribute positively to the community. Respect others and enjoy your stay!",
}

type Platform interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Settings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
	Update(ctx context.Context, guildID string, fn func(*storage.GuildSettings)) error
}

type Module struct {
	platform Platform
	settings Settings
	audit    *audit.Logger
	logger   *zap.Logger
	colors   config.EmbedColors
}

type Options struct {
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
		settings: opts.Settings,
		audit:    opts.Audit,
		logger:   logger,
		colors:   opts.Colors,
	}
}

// PostRules sends the default rules panel to channelID and remembers it as
// the guild's rules channel.
func (m *Module) PostRules(ctx context.Context, guildID, channelID, actorID string) (*discordgo.Message, error) {
	msg, err := m.platform.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Embeds: RulesEmbeds(DefaultRules, m.colors.Action)}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send rules panel: %w", err)
	}
	if err := m.settings.Update(ctx, guildID, func(s *storage.GuildSettings) { s.RulesChannel = channelID }); err != nil {
		return msg, fmt.Errorf("save rules channel: %w", err)
	}
	m.logger.Info("rules panel posted", zap.String("guild_id", guildID), zap.String("channel_id", channelID))
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, actorID, "rules_posted", "channel="+channelID)
	}
	return msg, nil
}

// EditModal loads the rules panel messageID from the rules channel and
// returns the modal prefilled with its text.
func (m *Module) EditModal(ctx context.Context, guildID, messageID string) (*discordgo.InteractionResponse, error) {
	channelID := m.settings.Guild(ctx, guildID).RulesChannel
	if channelID == "" {
		return nil, ErrNoRulesChannel
	}
	msg, err := m.platform.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch rules panel: %w", err)
	}
	rules, ok := ParseRules(msg)
	if !ok {
		return nil, ErrNotRulesPanel
	}
	return ui.Modal(customid.RulesModal(messageID).String(), "Edit Server Rules",
		textInput(FieldHeader, "Header Text", rules.Header, maxHeaderInput),
		textInput(FieldRules, "Rules (use ### for titles)", rules.Body, maxRulesInput),
		textInput(FieldFooter, "Footer Text", rules.Footer, maxFooterInput),
	), nil
}

func textInput(customID, label, value string, maxLength int) discordgo.ActionsRow {
	return ui.Row(discordgo.TextInput{
		CustomID:  customID,
		Label:     label,
		Style:     discordgo.TextInputParagraph,
		Value:     value,
		Required:  true,
		MaxLength: maxLength,
	})
}

// SaveRules rewrites the rules panel messageID with the submitted modal values.
func (m *Module) SaveRules(ctx context.Context, guildID, messageID, actorID string, values map[string]string) error {
	rules := Rules{
		Header: strings.TrimSpace(values[FieldHeader]),
		Body:   strings.TrimSpace(values[FieldRules]),
		Footer: strings.TrimSpace(values[FieldFooter]),
	}
	if rules.Header == "" || rules.Body == "" || rules.Footer == "" {
		return ErrEmptyRules
	}
	channelID := m.settings.Guild(ctx, guildID).RulesChannel
	if channelID == "" {
		return ErrNoRulesChannel
	}
	edit := discordgo.NewMessageEdit(channelID, messageID).SetEmbeds(RulesEmbeds(rules, m.colors.Action))
	if _, err := m.platform.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit rules panel: %w", err)
	}
	m.logger.Info("rules panel edited", zap.String("guild_id", guildID), zap.String("message_id", messageID))
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, actorID, "rules_edited", "message="+messageID)
	}
	return nil
}

// RulesEmbeds renders a rules panel as three embeds: header, rules, footer.
func RulesEmbeds(r Rules, color int) []*discordgo.MessageEmbed {
	return []*discordgo.MessageEmbed{
		ui.Card{Title: rulesTitle, Description: r.Header, Color: color}.Embed(),
		ui.Card{Description: r.Body, Color: color}.Embed(),
		ui.Card{Description: r.Footer, Color: color}.Embed(),
	}
}

// ParseRules reads back the text of a panel built by RulesEmbeds.
func ParseRules(msg *discordgo.Message) (Rules, bool) {
	if msg == nil || len(msg.Embeds) != 3 || msg.Embeds[0].Title != rulesTitle {
		return Rules{}, false
	}
	return Rules{
		Header: msg.Embeds[0].Description,
		Body:   msg.Embeds[1].Description,
		Footer: msg.Embeds[2].Description,
	}, true
}

// Describe maps a rules error to the reply shown to the actor.
func Describe(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNoRulesChannel):
		return "No rules channel is configured. Run /rules-setup first.", true
	case errors.Is(err, ErrNotRulesPanel):
		return "That message is not a rules panel.", true
	case errors.Is(err, ErrEmptyRules):
		return "Header, rules and footer must not be empty.", true
	}
	return "", false
}
