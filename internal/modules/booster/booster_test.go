package booster

import (
	"context"
	"errors"
	"testing"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	sent map[string][]*discordgo.MessageSend
}

func (f *fakePlatform) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sent == nil {
		f.sent = make(map[string][]*discordgo.MessageSend)
	}
	f.sent[channelID] = append(f.sent[channelID], data)
	return &discordgo.Message{}, nil
}

type memoryStore struct {
	records map[string]storage.BoosterWhitelistRecord
	err     error
}

func (s *memoryStore) Get(_ context.Context, userID, guildID string) (*storage.BoosterWhitelistRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.records[guildID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *memoryStore) AddWhitelist(_ context.Context, userID, guildID string, boostCount int) error {
	if s.records == nil {
		s.records = make(map[string]storage.BoosterWhitelistRecord)
	}
	s.records[guildID+"/"+userID] = storage.BoosterWhitelistRecord{
		UserID: userID, GuildID: guildID, BoostCount: boostCount, WhitelistedAt: 1,
	}
	return nil
}

func (s *memoryStore) RemoveWhitelist(_ context.Context, userID, guildID string) error {
	if s.err != nil {
		return s.err
	}
	delete(s.records, guildID+"/"+userID)
	return nil
}

type memorySettings struct {
	s storage.GuildSettings
}

func (m *memorySettings) Guild(_ context.Context, guildID string) storage.GuildSettings {
	out := m.s
	out.GuildID = guildID
	return out
}

func (m *memorySettings) Update(_ context.Context, _ string, fn func(*storage.GuildSettings)) error {
	fn(&m.s)
	return nil
}

func boosting(id string, since *time.Time) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id}, PremiumSince: since}
}

func TestTransition(t *testing.T) {
	since := time.Now()
	started, stopped := Transition(boosting("u", nil), boosting("u", &since))
	assert.True(t, started)
	assert.False(t, stopped)

	started, stopped = Transition(boosting("u", &since), boosting("u", nil))
	assert.False(t, started)
	assert.True(t, stopped)

	started, stopped = Transition(nil, boosting("u", &since))
	assert.True(t, started)
	assert.False(t, stopped)

	started, stopped = Transition(boosting("u", &since), boosting("u", &since))
	assert.False(t, started)
	assert.False(t, stopped)
}

func TestMemberUpdateAnnouncesBoost(t *testing.T) {
	platform := &fakePlatform{}
	store := &memorySettings{}
	module := New(platform, Options{Store: &memoryStore{}, Settings: store, Colors: config.DefaultConfig().EmbedColors})
	require.NoError(t, module.Configure(context.Background(), "g1", "boosts", "https://media.example/boost.gif"))
	since := time.Now()

	require.NoError(t, module.MemberUpdate(context.Background(), "g1", boosting("u1", nil), boosting("u1", &since), 3))
	require.Len(t, platform.sent["boosts"], 1)
	msg := platform.sent["boosts"][0]
	assert.Contains(t, msg.Embeds[0].Description, "**3**")
	assert.Equal(t, "https://media.example/boost.gif", msg.Embeds[0].Image.URL)
	button := msg.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "booster_claim_u1", button.CustomID)

	require.NoError(t, module.MemberUpdate(context.Background(), "g1", boosting("u1", &since), boosting("u1", nil), 2))
	assert.Len(t, platform.sent["boosts"], 1)
}

func TestStoppedBoostRevokesWhitelist(t *testing.T) {
	store := &memoryStore{records: map[string]storage.BoosterWhitelistRecord{
		"g1/u1": {UserID: "u1", GuildID: "g1", BoostCount: 2, WhitelistedAt: 1},
		"g1/u2": {UserID: "u2", GuildID: "g1", BoostCount: 3, WhitelistedAt: 1},
	}}
	platform := &fakePlatform{}
	module := New(platform, Options{Store: store, Settings: &memorySettings{}})
	ctx := context.Background()
	since := time.Now()

	require.NoError(t, module.MemberUpdate(ctx, "g1", boosting("u1", &since), boosting("u1", nil), 1))
	assert.NotContains(t, store.records, "g1/u1")
	assert.Contains(t, store.records, "g1/u2")
	assert.Empty(t, platform.sent)

	store.err = errors.New("db down")
	err := module.MemberUpdate(ctx, "g1", boosting("u2", &since), boosting("u2", nil), 0)
	assert.ErrorContains(t, err, "remove whitelist")
}

func TestAnnouncementBelowThreshold(t *testing.T) {
	msg := Announcement("u1", 1, "", 0)
	assert.Empty(t, msg.Components)
	assert.Nil(t, msg.Embeds[0].Image)
}

func TestMemberUpdateWithoutChannel(t *testing.T) {
	platform := &fakePlatform{}
	module := New(platform, Options{Settings: &memorySettings{}})
	since := time.Now()
	require.NoError(t, module.MemberUpdate(context.Background(), "g1", nil, boosting("u1", &since), 5))
	assert.Empty(t, platform.sent)
}

func TestClaim(t *testing.T) {
	store := &memoryStore{records: map[string]storage.BoosterWhitelistRecord{
		"g1/low": {UserID: "low", GuildID: "g1", BoostCount: 1},
	}}
	module := New(&fakePlatform{}, Options{Store: store, Settings: &memorySettings{}})
	ctx := context.Background()

	assert.ErrorIs(t, module.Claim(ctx, "g1", "someone", "u1"), ErrNotYours)
	require.NoError(t, module.Claim(ctx, "g1", "u1", "u1"))
	assert.Equal(t, MinBoosts, store.records["g1/u1"].BoostCount)
	assert.ErrorIs(t, module.Claim(ctx, "g1", "u1", "u1"), ErrAlreadyClaimed)
	assert.ErrorIs(t, module.Claim(ctx, "g1", "low", "low"), ErrNotEnoughBoosts)

	store.err = errors.New("db down")
	err := module.Claim(ctx, "g1", "u2", "u2")
	require.Error(t, err)
	assert.Contains(t, Describe(err), "contact an administrator")
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(nil), "successfully")
	assert.Equal(t, "This button is not for you!", Describe(ErrNotYours))
	assert.Contains(t, Describe(ErrNotEnoughBoosts), "at least 2")
}
