package snipe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPings struct {
	records []storage.GhostPingRecord
	err     error
}

func (m *memoryPings) Add(_ context.Context, record storage.GhostPingRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memoryPings) List(_ context.Context, guildID, userID string) ([]storage.GhostPingRecord, error) {
	var out []storage.GhostPingRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.GuildID == guildID && r.MentionedID == userID {
			out = append(out, r)
		}
	}
	return out, m.err
}

func newModule(now time.Time) (*Module, *memoryPings) {
	pings := &memoryPings{}
	m := New(pings, nil, config.DefaultConfig().EmbedColors)
	m.now = func() time.Time { return now }
	return m, pings
}

func deletedMessage(content string, mentions ...*discordgo.User) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: "a1", Username: "author", Discriminator: "0"},
		Mentions:  mentions,
	}
}

func TestSnipeShowsLastDeletedMessage(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m, _ := newModule(now)
	ctx := context.Background()

	require.NoError(t, m.MessageDeleted(ctx, "g1", deletedMessage("first")))
	require.NoError(t, m.MessageDeleted(ctx, "g1", deletedMessage("second")))

	embed, err := m.SnipeEmbed("c1")
	require.NoError(t, err)
	assert.Equal(t, "second", embed.Description)
	assert.Contains(t, embed.Fields[0].Value, "`author`")

	_, err = m.SnipeEmbed("c2")
	assert.ErrorIs(t, err, ErrNothing)
}

func TestSnipeIgnoresBotsAndEmptyMessages(t *testing.T) {
	m, pings := newModule(time.Now())
	ctx := context.Background()

	bot := deletedMessage("beep", &discordgo.User{ID: "u1"})
	bot.Author.Bot = true
	require.NoError(t, m.MessageDeleted(ctx, "g1", bot))
	require.NoError(t, m.MessageDeleted(ctx, "g1", deletedMessage("")))
	require.NoError(t, m.MessageDeleted(ctx, "g1", &discordgo.Message{ChannelID: "c1"}))
	require.NoError(t, m.MessageDeleted(ctx, "g1", nil))

	_, ok := m.Last("c1")
	assert.False(t, ok)
	assert.Empty(t, pings.records)
}

func TestSnipeKeepsAttachmentOnlyMessages(t *testing.T) {
	m, _ := newModule(time.Now())
	msg := deletedMessage("")
	msg.Attachments = []*discordgo.MessageAttachment{{URL: "https://cdn.example/a.png"}}
	require.NoError(t, m.MessageDeleted(context.Background(), "g1", msg))

	embed, err := m.SnipeEmbed("c1")
	require.NoError(t, err)
	assert.Equal(t, "*No content*", embed.Description)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "https://cdn.example/a.png", embed.Fields[2].Value)
}

func TestSnipeExpiresAndSweeps(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m, _ := newModule(now)
	require.NoError(t, m.MessageDeleted(context.Background(), "g1", deletedMessage("old")))

	m.now = func() time.Time { return now.Add(MaxAge + time.Second) }
	_, ok := m.Last("c1")
	assert.False(t, ok)

	assert.Equal(t, 0, m.Sweep(now.Add(MaxAge)))
	assert.Equal(t, 1, m.Sweep(now.Add(MaxAge+time.Second)))
}

func TestGhostPingRecordedPerMention(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m, pings := newModule(now)
	ctx := context.Background()

	msg := deletedMessage("hey <@u1> <@u2>",
		&discordgo.User{ID: "u1"},
		&discordgo.User{ID: "u2"},
		&discordgo.User{ID: "bot", Bot: true},
		&discordgo.User{ID: "a1"},
	)
	require.NoError(t, m.MessageDeleted(ctx, "g1", msg))
	require.Len(t, pings.records, 2)
	assert.Equal(t, "u1", pings.records[0].MentionedID)
	assert.Equal(t, "u2", pings.records[1].MentionedID)
	assert.Equal(t, now.Unix(), pings.records[0].Timestamp)
	assert.Equal(t, "author", pings.records[0].AuthorTag)

	embed, err := m.GhostPingEmbed(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Contains(t, embed.Description, "Showing all 1 ghost pings")
	assert.Contains(t, embed.Description, "<#c1>")

	_, err = m.GhostPingEmbed(ctx, "g1", "nobody")
	assert.ErrorIs(t, err, ErrNothing)
}

func TestGhostPingListIsCapped(t *testing.T) {
	m, pings := newModule(time.Now())
	for i := 0; i < MaxGhostPings+3; i++ {
		pings.records = append(pings.records, storage.GhostPingRecord{GuildID: "g1", MentionedID: "u1", Content: fmt.Sprint("ping ", i)})
	}
	embed, err := m.GhostPingEmbed(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Contains(t, embed.Description, fmt.Sprintf("Showing latest %d of %d ghost pings", MaxGhostPings, MaxGhostPings+3))
}

func TestGhostPingStoreFailure(t *testing.T) {
	m, pings := newModule(time.Now())
	pings.err = errors.New("db down")

	err := m.MessageDeleted(context.Background(), "g1", deletedMessage("hi", &discordgo.User{ID: "u1"}))
	assert.ErrorContains(t, err, "record ghost ping")
	_, ok := m.Last("c1")
	assert.True(t, ok)

	_, err = m.GhostPingEmbed(context.Background(), "g1", "u1")
	assert.ErrorContains(t, err, "load ghost pings")
}

func TestTag(t *testing.T) {
	assert.Equal(t, "name", Tag(&discordgo.User{Username: "name", Discriminator: "0"}))
	assert.Equal(t, "name#1234", Tag(&discordgo.User{Username: "name", Discriminator: "1234"}))
}
