// Package snipe remembers the last deleted message of each channel and
// records mentions that were deleted before the mentioned member saw them.
package snipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	// MaxAge bounds how long a deleted message stays snipeable.
	MaxAge = time.Hour
	// MaxGhostPings is how many ghost pings one reply lists.
	MaxGhostPings = 10
	previewLength = 100
)

var ErrNothing = errors.New("snipe: nothing to show")

// Deleted is the last deleted message of a channel.
type Deleted struct {
	ChannelID   string
	AuthorID    string
	AuthorTag   string
	Content     string
	Attachments []string
	DeletedAt   time.Time
}

type GhostPings interface {
	Add(ctx context.Context, record storage.GhostPingRecord) error
	List(ctx context.Context, guildID, userID string) ([]storage.GhostPingRecord, error)
}

type Module struct {
	pings  GhostPings
	logger *zap.Logger
	colors config.EmbedColors
	now    func() time.Time

	mu   sync.Mutex
	last map[string]Deleted
}

func New(pings GhostPings, logger *zap.Logger, colors config.EmbedColors) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		pings:  pings,
		logger: logger,
		colors: colors,
		now:    time.Now,
		last:   make(map[string]Deleted),
	}
}

// MessageDeleted caches msg for its channel and stores one ghost ping per
// member it mentioned. Bot messages and messages with neither text nor
// attachments are ignored.
func (m *Module) MessageDeleted(ctx context.Context, guildID string, msg *discordgo.Message) error {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return nil
	}
	if msg.Content == "" && len(msg.Attachments) == 0 {
		return nil
	}
	deleted := Deleted{
		ChannelID: msg.ChannelID,
		AuthorID:  msg.Author.ID,
		AuthorTag: Tag(msg.Author),
		Content:   msg.Content,
		DeletedAt: m.now(),
	}
	for _, attachment := range msg.Attachments {
		deleted.Attachments = append(deleted.Attachments, attachment.URL)
	}

	m.mu.Lock()
	m.last[msg.ChannelID] = deleted
	m.mu.Unlock()

	for _, user := range msg.Mentions {
		if user == nil || user.Bot || user.ID == msg.Author.ID {
			continue
		}
		record := storage.GhostPingRecord{
			MessageID:   msg.ID,
			GuildID:     guildID,
			ChannelID:   msg.ChannelID,
			AuthorID:    msg.Author.ID,
			AuthorTag:   deleted.AuthorTag,
			MentionedID: user.ID,
			Content:     msg.Content,
			Timestamp:   deleted.DeletedAt.Unix(),
		}
		if err := m.pings.Add(ctx, record); err != nil {
			return fmt.Errorf("record ghost ping: %w", err)
		}
		m.logger.Debug("ghost ping recorded", zap.String("guild_id", guildID), zap.String("user_id", user.ID))
	}
	return nil
}

// Last returns the newest deleted message of channelID that is younger than MaxAge.
func (m *Module) Last(channelID string) (Deleted, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted, ok := m.last[channelID]
	if !ok || m.now().Sub(deleted.DeletedAt) > MaxAge {
		return Deleted{}, false
	}
	return deleted, true
}

// Sweep forgets deleted messages older than MaxAge.
func (m *Module) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for channelID, deleted := range m.last {
		if now.Sub(deleted.DeletedAt) > MaxAge {
			delete(m.last, channelID)
			removed++
		}
	}
	return removed
}

// SnipeEmbed shows the last deleted message of channelID.
func (m *Module) SnipeEmbed(channelID string) (*discordgo.MessageEmbed, error) {
	deleted, ok := m.Last(channelID)
	if !ok {
		return nil, ErrNothing
	}
	content := deleted.Content
	if content == "" {
		content = "*No content*"
	}
	card := ui.Card{
		Title:       "🔍 Sniped Message",
		Description: ui.Truncate(content, 4000),
		Color:       m.colors.Action,
		Fields: []*discordgo.MessageEmbedField{
			ui.Field("Author", fmt.Sprintf("%s (`%s`)", ui.Mention(deleted.AuthorID), deleted.AuthorTag), true),
			ui.Field("Deleted", ui.Timestamp(deleted.DeletedAt, "R"), true),
		},
		Timestamp: deleted.DeletedAt,
	}
	if len(deleted.Attachments) > 0 {
		card.Fields = append(card.Fields, ui.Field("Attachments", strings.Join(deleted.Attachments, "\n"), false))
	}
	return card.Embed(), nil
}

// GhostPingEmbed lists the latest ghost pings of userID in guildID.
func (m *Module) GhostPingEmbed(ctx context.Context, guildID, userID string) (*discordgo.MessageEmbed, error) {
	records, err := m.pings.List(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("load ghost pings: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNothing
	}
	total := len(records)
	if len(records) > MaxGhostPings {
		records = records[:MaxGhostPings]
	}
	summary := fmt.Sprintf("Showing all %d ghost pings", total)
	if len(records) < total {
		summary = fmt.Sprintf("Showing latest %d of %d ghost pings", len(records), total)
	}

	entries := make([]string, 0, len(records))
	for _, record := range records {
		content := record.Content
		if content == "" {
			content = "*No content*"
		}
		entries = append(entries, strings.Join([]string{
			fmt.Sprintf("**Author:** %s (`%s`)", ui.Mention(record.AuthorID), record.AuthorTag),
			fmt.Sprintf("**Channel:** %s", ui.ChannelMention(record.ChannelID)),
			fmt.Sprintf("**Time:** %s", ui.Timestamp(time.Unix(record.Timestamp, 0), "R")),
			fmt.Sprintf("**Message:** %s", ui.Truncate(content, previewLength)),
		}, "\n"))
	}
	return ui.Card{
		Title:       "👻 Your Ghost Pings",
		Description: ui.Truncate("*"+summary+"*\n\n"+strings.Join(entries, "\n\n"), 4000),
		Color:       m.colors.Action,
	}.Embed(), nil
}

// Tag is the display form of a user: the bare username for accounts
// without a discriminator.
func Tag(user *discordgo.User) string {
	if user.Discriminator == "" || user.Discriminator == "0" {
		return user.Username
	}
	return user.Username + "#" + user.Discriminator
}
