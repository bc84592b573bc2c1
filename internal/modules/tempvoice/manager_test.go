package tempvoice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type permSet struct {
	channelID, targetID string
	kind                discordgo.PermissionOverwriteType
	allow, deny         int64
}

type move struct {
	userID    string
	channelID *string
}

type fakePlatform struct {
	mu        sync.Mutex
	nextID    int
	channels  map[string]*discordgo.Channel
	created   []discordgo.GuildChannelCreateData
	deleted   []string
	perms     []permSet
	permDels  []string
	moves     []move
	patches   map[string]map[string]any
	sent      map[string][]*discordgo.MessageSend
	createErr error
	moveErr   error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: make(map[string]*discordgo.Channel),
		patches:  make(map[string]map[string]any),
		sent:     make(map[string][]*discordgo.MessageSend),
	}
}

func (f *fakePlatform) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return nil, errors.New("unknown channel")
}

func (f *fakePlatform) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*discordgo.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakePlatform) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	ch := &discordgo.Channel{ID: fmt.Sprintf("ch%d", f.nextID), Name: data.Name, Type: data.Type, ParentID: data.ParentID}
	f.channels[ch.ID] = ch
	f.created = append(f.created, data)
	return ch, nil
}

func (f *fakePlatform) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	delete(f.channels, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakePlatform) ChannelPermissionSet(channelID, targetID string, kind discordgo.PermissionOverwriteType, allow, deny int64, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms = append(f.perms, permSet{channelID, targetID, kind, allow, deny})
	if ch, ok := f.channels[channelID]; ok {
		ch.PermissionOverwrites = filterOverwrites(ch.PermissionOverwrites, targetID)
		ch.PermissionOverwrites = append(ch.PermissionOverwrites, &discordgo.PermissionOverwrite{ID: targetID, Type: kind, Allow: allow, Deny: deny})
	}
	return nil
}

func filterOverwrites(in []*discordgo.PermissionOverwrite, drop string) []*discordgo.PermissionOverwrite {
	var out []*discordgo.PermissionOverwrite
	for _, o := range in {
		if o.ID != drop {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakePlatform) ChannelPermissionDelete(channelID, targetID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permDels = append(f.permDels, channelID+"/"+targetID)
	return nil
}

func (f *fakePlatform) GuildMemberMove(_, userID string, channelID *string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, move{userID, channelID})
	return nil
}

func (f *fakePlatform) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakePlatform) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[channelID] = append(f.sent[channelID], data)
	return &discordgo.Message{ID: "msg-" + channelID}, nil
}

func (f *fakePlatform) RequestWithBucketID(method, urlStr string, data interface{}, _ string, _ ...discordgo.RequestOption) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[urlStr] = data.(map[string]any)
	return nil, nil
}

type fakeVoice struct {
	mu    sync.Mutex
	where map[string]string
}

func (v *fakeVoice) set(userID, channelID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if channelID == "" {
		delete(v.where, userID)
		return
	}
	v.where[userID] = channelID
}

func (v *fakeVoice) UserChannel(_, userID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.where[userID]
}

func (v *fakeVoice) Occupants(_, channelID string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for user, ch := range v.where {
		if ch == channelID {
			out = append(out, user)
		}
	}
	return out
}

type memorySettings struct {
	mu sync.Mutex
	s  storage.GuildSettings
}

func (m *memorySettings) Guild(_ context.Context, guildID string) storage.GuildSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.s
	out.GuildID = guildID
	return out
}

func (m *memorySettings) Update(_ context.Context, _ string, fn func(*storage.GuildSettings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.s)
	return nil
}

type fixture struct {
	manager  *Manager
	platform *fakePlatform
	voice    *fakeVoice
	settings *memorySettings
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	platform := newFakePlatform()
	platform.channels["gen"] = &discordgo.Channel{ID: "gen", Name: "➕ Create Voice", Type: discordgo.ChannelTypeGuildVoice, ParentID: "cat"}
	voice := &fakeVoice{where: make(map[string]string)}
	s := &memorySettings{s: storage.GuildSettings{GeneratorChannelID: "gen"}}
	m := metrics.New()
	manager := NewManager(platform, voice, s, NewRegistry(), Options{
		Metrics: m,
		Logger:  zap.NewNop(),
		Config:  config.DefaultConfig().TempVoice,
		Colors:  config.DefaultConfig().EmbedColors,
	})
	return &fixture{manager: manager, platform: platform, voice: voice, settings: s, metrics: m}
}

// join simulates the gateway: the state cache updates, then the handler runs.
func (f *fixture) join(userID, name, before, after string) {
	f.voice.set(userID, after)
	f.manager.HandleVoiceState(context.Background(), "g1", userID, name, before, after)
}

func TestJoinGeneratorCreatesChannel(t *testing.T) {
	f := newFixture(t)
	f.join("owner", "alice", "", "gen")

	require.Len(t, f.platform.created, 1)
	data := f.platform.created[0]
	assert.Equal(t, "alice's Channel", data.Name)
	assert.Equal(t, "cat", data.ParentID)
	require.Len(t, data.PermissionOverwrites, 1)
	assert.Equal(t, int64(ownerPerms), data.PermissionOverwrites[0].Allow)

	record, ok := f.manager.Registry().Get("ch1")
	require.True(t, ok)
	assert.Equal(t, "owner", record.OwnerID)
	require.Len(t, f.platform.moves, 1)
	assert.Equal(t, "ch1", *f.platform.moves[0].channelID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TempChannels))
}

func TestLeavingEmptyChannelDeletesIt(t *testing.T) {
	f := newFixture(t)
	f.join("owner", "alice", "", "gen")
	f.voice.set("owner", "ch1")
	f.join("guest", "bob", "", "ch1")

	f.join("owner", "alice", "ch1", "")
	assert.Empty(t, f.platform.deleted)

	f.join("guest", "bob", "ch1", "")
	assert.Equal(t, []string{"ch1"}, f.platform.deleted)
	assert.Equal(t, 0, f.manager.Registry().Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.TempChannels))
}

func TestCreateFailureRegistersNothing(t *testing.T) {
	f := newFixture(t)
	f.platform.createErr = errors.New("missing permissions")
	f.join("owner", "alice", "", "gen")
	assert.Equal(t, 0, f.manager.Registry().Len())
	assert.Empty(t, f.platform.moves)
}

func TestMoveFailureRemovesChannel(t *testing.T) {
	f := newFixture(t)
	f.platform.moveErr = errors.New("user left voice")
	f.join("owner", "alice", "", "gen")
	assert.Equal(t, []string{"ch1"}, f.platform.deleted)
	assert.Equal(t, 0, f.manager.Registry().Len())
}

func ownedChannel(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.join("owner", "alice", "", "gen")
	f.voice.set("owner", "ch1")
	return f
}

func TestNonOwnerRejected(t *testing.T) {
	f := ownedChannel(t)
	f.voice.set("guest", "ch1")
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.Rename(ctx, "g1", "guest", "mine"), ErrNotOwner)
	assert.ErrorIs(t, f.manager.Kick(ctx, "g1", "guest", "owner"), ErrNotOwner)
	assert.ErrorIs(t, f.manager.Delete(ctx, "g1", "guest"), ErrNotOwner)
	assert.ErrorIs(t, f.manager.Rename(ctx, "g1", "stranger", "x"), ErrNotInChannel)
	assert.Empty(t, f.platform.patches)
}

func TestClaimRequiresOwnerAbsent(t *testing.T) {
	f := ownedChannel(t)
	f.voice.set("guest", "ch1")
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.Claim(ctx, "g1", "guest"), ErrOwnerPresent)

	f.voice.set("owner", "")
	require.NoError(t, f.manager.Claim(ctx, "g1", "guest"))
	record, _ := f.manager.Registry().Get("ch1")
	assert.Equal(t, "guest", record.OwnerID)
	last := f.platform.perms[len(f.platform.perms)-1]
	assert.Equal(t, "guest", last.targetID)
	assert.Equal(t, int64(ownerPerms), last.allow)
}

func TestOwnerActions(t *testing.T) {
	f := ownedChannel(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Rename(ctx, "g1", "owner", "  lobby  "))
	assert.Equal(t, "lobby", f.platform.patches[discordgo.EndpointChannel("ch1")]["name"])

	assert.ErrorIs(t, f.manager.SetLimit(ctx, "g1", "owner", 100), ErrInvalidLimit)
	require.NoError(t, f.manager.SetLimit(ctx, "g1", "owner", 0))
	assert.Equal(t, 0, f.platform.patches[discordgo.EndpointChannel("ch1")]["user_limit"])

	require.NoError(t, f.manager.SetRegion(ctx, "g1", "owner", "auto"))
	assert.Nil(t, f.platform.patches[discordgo.EndpointChannel("ch1")]["rtc_region"])
	require.NoError(t, f.manager.SetRegion(ctx, "g1", "owner", "japan"))
	assert.Equal(t, "japan", f.platform.patches[discordgo.EndpointChannel("ch1")]["rtc_region"])
	assert.ErrorIs(t, f.manager.SetRegion(ctx, "g1", "owner", "mars"), ErrInvalidRegion)

	require.NoError(t, f.manager.Trust(ctx, "g1", "owner", "friend"))
	last := f.platform.perms[len(f.platform.perms)-1]
	assert.Equal(t, int64(trustPerms), last.allow)

	require.NoError(t, f.manager.Untrust(ctx, "g1", "owner", "friend"))
	assert.Contains(t, f.platform.permDels, "ch1/friend")

	require.NoError(t, f.manager.Invite(ctx, "g1", "owner", "friend"))
	require.Len(t, f.platform.sent["dm-friend"], 1)

	assert.ErrorIs(t, f.manager.Kick(ctx, "g1", "owner", "friend"), ErrTargetNotInChannel)
	f.voice.set("friend", "ch1")
	require.NoError(t, f.manager.Kick(ctx, "g1", "owner", "friend"))
	assert.Nil(t, f.platform.moves[len(f.platform.moves)-1].channelID)

	require.NoError(t, f.manager.Block(ctx, "g1", "owner", "friend"))
	last = f.platform.perms[len(f.platform.perms)-1]
	assert.Equal(t, int64(blockPerms), last.deny)
}

func TestTogglePrivacyReadsOverwrite(t *testing.T) {
	f := ownedChannel(t)
	ctx := context.Background()

	locked, err := f.manager.TogglePrivacy(ctx, "g1", "owner")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = f.manager.TogglePrivacy(ctx, "g1", "owner")
	require.NoError(t, err)
	assert.False(t, locked)
	last := f.platform.perms[len(f.platform.perms)-1]
	assert.Equal(t, "g1", last.targetID)
	assert.Equal(t, int64(discordgo.PermissionVoiceConnect), last.allow)
}

func TestTransfer(t *testing.T) {
	f := ownedChannel(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.Transfer(ctx, "g1", "owner", "owner"), ErrSelfTarget)
	assert.ErrorIs(t, f.manager.Transfer(ctx, "g1", "owner", "guest"), ErrTargetNotInChannel)

	f.voice.set("guest", "ch1")
	require.NoError(t, f.manager.Transfer(ctx, "g1", "owner", "guest"))
	assert.ErrorIs(t, f.manager.Rename(ctx, "g1", "owner", "x"), ErrNotOwner)
	require.NoError(t, f.manager.Rename(ctx, "g1", "guest", "x"))
}

func TestSetupAndAutoDetect(t *testing.T) {
	f := newFixture(t)
	f.settings.s = storage.GuildSettings{}
	delete(f.platform.channels, "gen")

	result, err := f.manager.Setup(context.Background(), "g1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.PanelID)
	assert.Equal(t, result.GeneratorID, f.settings.s.GeneratorChannelID)
	assert.Equal(t, result.CategoryID, f.settings.s.TempVoiceCategoryID)
	require.Len(t, f.platform.created, 3)
	assert.Equal(t, 96000, f.platform.created[2].Bitrate)
	assert.Equal(t, int64(discordgo.PermissionSendMessages), f.platform.created[1].PermissionOverwrites[0].Deny)
	require.Len(t, f.platform.sent[result.InterfaceID], 1)

	again, err := f.manager.Setup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, result.GeneratorID, again.GeneratorID)
	assert.Len(t, f.platform.created, 3)

	f.settings.s = storage.GuildSettings{}
	channels, _ := f.platform.GuildChannels("g1")
	assert.True(t, f.manager.AutoDetect(context.Background(), "g1", channels))
	assert.Equal(t, result.GeneratorID, f.settings.s.GeneratorChannelID)
	assert.False(t, f.manager.AutoDetect(context.Background(), "g1", channels))
}

func TestPanelCoversEveryAction(t *testing.T) {
	f := newFixture(t)
	panel := f.manager.Panel()
	require.Len(t, panel.Components, 3)

	seen := 0
	for _, c := range panel.Components {
		row := c.(discordgo.ActionsRow)
		for _, b := range row.Components {
			id, err := customid.Parse(b.(discordgo.Button).CustomID)
			require.NoError(t, err)
			assert.Equal(t, customid.KindTempVoice, id.Kind)
			seen++
		}
	}
	assert.Equal(t, 15, seen)
}

func TestHandleButtonResponses(t *testing.T) {
	f := ownedChannel(t)
	ctx := context.Background()

	resp := f.manager.HandleButton(ctx, "g1", "owner", "name")
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, "tempvoice_modal_name", resp.Data.CustomID)

	resp = f.manager.HandleButton(ctx, "g1", "owner", "trust")
	row := resp.Data.Components[0].(discordgo.ActionsRow)
	menu := row.Components[0].(discordgo.SelectMenu)
	assert.Equal(t, discordgo.UserSelectMenu, menu.MenuType)
	assert.Equal(t, "tempvoice_select_trust", menu.CustomID)

	resp = f.manager.HandleButton(ctx, "g1", "owner", "waitingroom")
	assert.Contains(t, resp.Data.Content, "not yet implemented")

	resp = f.manager.HandleButton(ctx, "g1", "stranger", "name")
	assert.Contains(t, resp.Data.Content, "must be in your temporary voice channel")
	assert.Len(t, resp.Data.Components, 1)

	resp = f.manager.HandleModal(ctx, "g1", "owner", "limit", "abc")
	assert.Contains(t, resp.Data.Content, "between 0 and 99")

	resp = f.manager.HandleSelect(ctx, "g1", "owner", "region", []string{"europe"})
	assert.Contains(t, resp.Data.Content, "Europe")
}
