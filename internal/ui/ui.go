// Package ui builds the embeds, buttons and rows the bot sends.
package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	MaxEmbedFieldValue = 1024
	MaxChannelName     = 100
)

type Card struct {
	Title       string
	Description string
	Color       int
	Fields      []*discordgo.MessageEmbedField
	Thumbnail   string
	Image       string
	Footer      string
	Timestamp   time.Time
}

func (c Card) Embed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       c.Title,
		Description: c.Description,
		Color:       c.Color,
		Fields:      c.Fields,
	}
	if c.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.Thumbnail}
	}
	if c.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: c.Image}
	}
	if c.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: c.Footer}
	}
	if !c.Timestamp.IsZero() {
		embed.Timestamp = c.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}

func Field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: Truncate(value, MaxEmbedFieldValue), Inline: inline}
}

func Primary(label, customID string) discordgo.Button {
	return discordgo.Button{Label: label, Style: discordgo.PrimaryButton, CustomID: customID}
}

func Secondary(label, customID string) discordgo.Button {
	return discordgo.Button{Label: label, Style: discordgo.SecondaryButton, CustomID: customID}
}

func Success(label, customID string) discordgo.Button {
	return discordgo.Button{Label: label, Style: discordgo.SuccessButton, CustomID: customID}
}

func Danger(label, customID string) discordgo.Button {
	return discordgo.Button{Label: label, Style: discordgo.DangerButton, CustomID: customID}
}

func Link(label, url string) discordgo.Button {
	return discordgo.Button{Label: label, Style: discordgo.LinkButton, URL: url}
}

// Row groups up to five buttons, or a single select menu.
func Row(components ...discordgo.MessageComponent) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: components}
}

func Message(embed *discordgo.MessageEmbed, rows ...discordgo.ActionsRow) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	for _, row := range rows {
		if len(row.Components) == 0 {
			continue
		}
		msg.Components = append(msg.Components, row)
	}
	return msg
}

// Components converts rows for use in edits and interaction responses.
func Components(rows ...discordgo.ActionsRow) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		if len(row.Components) == 0 {
			continue
		}
		out = append(out, row)
	}
	return out
}

// TextInput wraps a single text input in the row a modal requires.
func TextInput(customID, label, placeholder string, style discordgo.TextInputStyle, required bool, maxLength int) discordgo.ActionsRow {
	return Row(discordgo.TextInput{
		CustomID:    customID,
		Label:       label,
		Style:       style,
		Placeholder: placeholder,
		Required:    required,
		MaxLength:   maxLength,
	})
}

// Truncate shortens s to at most limit runes, ending with "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

// CodeBlock fences content, truncated to limit runes, with backticks neutralised.
func CodeBlock(content string, limit int) string {
	content = strings.ReplaceAll(content, "```", "`\u200b``")
	if strings.TrimSpace(content) == "" {
		content = "(empty)"
	}
	return "```\n" + Truncate(content, limit) + "\n```"
}

func Mention(userID string) string { return "<@" + userID + ">" }

func ChannelMention(channelID string) string { return "<#" + channelID + ">" }

func RoleMention(roleID string) string { return "<@&" + roleID + ">" }

// Timestamp renders t with a Discord timestamp style, e.g. "R" or "F".
func Timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// FormatDuration renders whole minutes, hours or days.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Reply is an ephemeral interaction reply.
func Reply(content string, rows ...discordgo.ActionsRow) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: Components(rows...),
		},
	}
}

// Announce is a reply visible to the whole channel.
func Announce(content string, rows ...discordgo.ActionsRow) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: Components(rows...),
		},
	}
}

// Update replaces the message the clicked component belongs to.
func Update(embeds []*discordgo.MessageEmbed, components []discordgo.MessageComponent) *discordgo.InteractionResponse {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{Embeds: embeds, Components: components},
	}
}

func ReplyEmbed(embed *discordgo.MessageEmbed, ephemeral bool) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: data}
}

func Modal(customID, title string, rows ...discordgo.ActionsRow) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: Components(rows...),
		},
	}
}

// ModalValues collects text input values from a modal submission by custom id.
func ModalValues(components []discordgo.MessageComponent) map[string]string {
	values := make(map[string]string)
	for _, component := range components {
		var children []discordgo.MessageComponent
		switch row := component.(type) {
		case *discordgo.ActionsRow:
			children = row.Components
		case discordgo.ActionsRow:
			children = row.Components
		}
		for _, child := range children {
			switch input := child.(type) {
			case *discordgo.TextInput:
				values[input.CustomID] = input.Value
			case discordgo.TextInput:
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
