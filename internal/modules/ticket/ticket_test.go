package ticket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	mu       sync.Mutex
	channels map[string]*discordgo.Channel
	started  []*discordgo.ThreadStart
	added    []string
	removed  []string
	edits    []*discordgo.ChannelEdit
	sent     map[string][]*discordgo.MessageSend
	fail     map[string]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: map[string]*discordgo.Channel{
			"panel": {ID: "panel", Type: discordgo.ChannelTypeGuildText},
			"voice": {ID: "voice", Type: discordgo.ChannelTypeGuildVoice},
			"t1":    {ID: "t1", Name: "DONATE - alice", Type: discordgo.ChannelTypeGuildPrivateThread},
		},
		sent: make(map[string][]*discordgo.MessageSend),
		fail: make(map[string]error),
	}
}

func (f *fakePlatform) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channelID]; ok {
		copied := *ch
		return &copied, nil
	}
	return nil, errors.New("unknown channel")
}

func (f *fakePlatform) ThreadStartComplex(channelID string, data *discordgo.ThreadStart, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["start"]; err != nil {
		return nil, err
	}
	f.started = append(f.started, data)
	thread := &discordgo.Channel{ID: "thread123456789", Name: data.Name, Type: data.Type, ParentID: channelID}
	f.channels[thread.ID] = thread
	return thread, nil
}

func (f *fakePlatform) ThreadMemberAdd(threadID, memberID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["add"]; err != nil {
		return err
	}
	f.added = append(f.added, threadID+":"+memberID)
	return nil
}

func (f *fakePlatform) ThreadMemberRemove(threadID, memberID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, threadID+":"+memberID)
	return nil
}

func (f *fakePlatform) ChannelEditComplex(channelID string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data.Name != "" {
		if err := f.fail["rename"]; err != nil {
			return nil, err
		}
	}
	f.edits = append(f.edits, data)
	ch := f.channels[channelID]
	if data.Name != "" {
		ch.Name = data.Name
	}
	return ch, nil
}

func (f *fakePlatform) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[channelID] = append(f.sent[channelID], data)
	return &discordgo.Message{ID: "m"}, nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newModule(platform *fakePlatform, m *metrics.Metrics) *Module {
	module := New(platform, Options{
		Settings: settings.Static{StaffLogChannel: "staff"},
		Metrics:  m,
		Colors:   config.DefaultConfig().EmbedColors,
		Config:   config.TicketConfig{PaymentInfo: "pay here", AutoArchiveMinutes: 1440},
	})
	module.now = func() time.Time { return now }
	return module
}

func TestEveryTypeIsOrdered(t *testing.T) {
	assert.Len(t, typeOrder, len(types))
	for _, key := range typeOrder {
		ticketType, ok := Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, key, ticketType.Key)
		assert.NotEmpty(t, ticketType.Inputs, key)
		assert.LessOrEqual(t, len(ticketType.Inputs), 5, key)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "[CLOSED] - CS - bob", ClosedName("CS - bob"))
	assert.Equal(t, "[CLOSED] - CS - bob", ClosedName("[CLOSED] - CS - bob"))
	assert.Equal(t, "[CLOSED] - CS - bob", ClosedName("[CLOSED]-CS - bob"))
	assert.Equal(t, "CS - bob", OpenName("[CLOSED] - CS - bob"))

	long := ClosedName("BUG - " + strings.Repeat("x", 200))
	assert.LessOrEqual(t, len([]rune(long)), 100)
	assert.True(t, strings.HasPrefix(long, "[CLOSED] - BUG - "))

	assert.Equal(t, "DONATE-456789", Code(types["donate"], "123456789"))
	assert.Equal(t, "CK-42", Code(types["ck"], "42"))
	assert.Equal(t, "donate", typeFromName("[CLOSED] - DONATE - alice"))
	assert.Equal(t, "unknown", typeFromName("general"))
}

func TestPanel(t *testing.T) {
	module := newModule(newFakePlatform(), nil)

	all, err := module.Panel("")
	require.NoError(t, err)
	var buttons int
	for _, row := range all.Components {
		buttons += len(row.(discordgo.ActionsRow).Components)
	}
	assert.Equal(t, len(typeOrder), buttons)

	one, err := module.Panel("report_bug")
	require.NoError(t, err)
	require.Len(t, one.Components, 1)
	button := one.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "ticket_report_bug", button.CustomID)

	_, err = module.Panel("nope")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestModal(t *testing.T) {
	module := newModule(newFakePlatform(), nil)
	resp := module.Modal("ck")
	require.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, "ticket_modal_ck", resp.Data.CustomID)
	assert.Len(t, resp.Data.Components, 3)

	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, module.Modal("nope").Type)
}

func TestOpenDonateTicket(t *testing.T) {
	platform := newFakePlatform()
	m := metrics.New()
	module := newModule(platform, m)

	thread, err := module.Open(context.Background(), Opener{GuildID: "g1", ChannelID: "panel", UserID: "alice", Username: "alice"},
		"donate", map[string]string{"ucp_name": "Alice", "ingame_name": " ", "donate_what": "VIP"})
	require.NoError(t, err)

	require.Len(t, platform.started, 1)
	assert.Equal(t, "DONATE - alice", platform.started[0].Name)
	assert.Equal(t, discordgo.ChannelTypeGuildPrivateThread, platform.started[0].Type)
	assert.Equal(t, 1440, platform.started[0].AutoArchiveDuration)
	assert.Equal(t, []string{thread.ID + ":alice"}, platform.added)

	posted := platform.sent[thread.ID]
	require.Len(t, posted, 2)
	fields := posted[0].Embeds[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "Alice", fields[0].Value)
	assert.Equal(t, "None", fields[1].Value)
	row := posted[0].Components[0].(discordgo.ActionsRow)
	assert.Equal(t, "ticket_claim:"+thread.ID, row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, "btn_close_alice", row.Components[1].(discordgo.Button).CustomID)
	assert.Equal(t, "pay here", posted[1].Embeds[0].Description)

	staff := platform.sent["staff"]
	require.Len(t, staff, 1)
	assert.Equal(t, "🎫 New Ticket Created", staff[0].Embeds[0].Title)
	assert.Equal(t, "`DONATE-456789`", staff[0].Embeds[0].Fields[0].Value)
	join := staff[0].Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "btn_join_ticket:"+thread.ID, join.CustomID)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Tickets.WithLabelValues("donate", "open")))
}

func TestOpenRejects(t *testing.T) {
	platform := newFakePlatform()
	module := newModule(platform, nil)
	ctx := context.Background()

	_, err := module.Open(ctx, Opener{GuildID: "g1", ChannelID: "voice", UserID: "u"}, "cs", nil)
	assert.ErrorIs(t, err, ErrNotText)

	_, err = module.Open(ctx, Opener{GuildID: "g1", ChannelID: "panel", UserID: "u"}, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownType)

	platform.fail["start"] = errors.New("missing access")
	_, err = module.Open(ctx, Opener{GuildID: "g1", ChannelID: "panel", UserID: "u"}, "cs", nil)
	assert.Error(t, err)
	assert.Empty(t, platform.sent["staff"])
}

func TestClaim(t *testing.T) {
	module := newModule(newFakePlatform(), nil)
	msg := &discordgo.Message{
		Embeds: []*discordgo.MessageEmbed{{Title: "📖 Character Story Ticket"}},
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.Button{CustomID: customid.TicketClaim("t1").String()},
				&discordgo.Button{CustomID: customid.TicketClose("alice").String()},
			}},
		},
	}

	resp, err := module.Claim(context.Background(), "g1", "t1", "staff1", msg)
	require.NoError(t, err)
	require.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	embed := resp.Data.Embeds[0]
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, handledByField, embed.Fields[0].Name)
	assert.Empty(t, msg.Embeds[0].Fields)

	row := resp.Data.Components[0].(discordgo.ActionsRow)
	assert.True(t, row.Components[0].(discordgo.Button).Disabled)
	assert.False(t, row.Components[1].(discordgo.Button).Disabled)

	msg.Embeds = resp.Data.Embeds
	_, err = module.Claim(context.Background(), "g1", "t1", "staff2", msg)
	assert.ErrorIs(t, err, ErrClaimed)
}

func TestCloseAndReopen(t *testing.T) {
	platform := newFakePlatform()
	m := metrics.New()
	module := newModule(platform, m)
	ctx := context.Background()

	require.NoError(t, module.Close(ctx, Closure{GuildID: "g1", ThreadID: "t1", ActorID: "staff1", OwnerID: "alice"}))
	assert.Equal(t, []string{"t1:alice"}, platform.removed)
	assert.Equal(t, "[CLOSED] - DONATE - alice", platform.channels["t1"].Name)
	last := platform.edits[len(platform.edits)-1]
	require.NotNil(t, last.Archived)
	assert.True(t, *last.Archived)
	assert.True(t, *last.Locked)

	notice := platform.sent["t1"][0]
	reopen := notice.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "ticket_reopen:alice", reopen.CustomID)
	staff := platform.sent["staff"][0]
	link := staff.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "https://discord.com/channels/g1/t1", link.URL)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Tickets.WithLabelValues("donate", "close")))

	resp, err := module.Reopen(ctx, "g1", "t1", "staff1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "DONATE - alice", platform.channels["t1"].Name)
	assert.Contains(t, platform.added, "t1:alice")
	assert.Contains(t, resp.Data.Content, "has been added back")
	assert.Zero(t, resp.Data.Flags&discordgo.MessageFlagsEphemeral)
}

func TestCloseByOwnerKeepsMembership(t *testing.T) {
	platform := newFakePlatform()
	module := newModule(platform, nil)
	require.NoError(t, module.Close(context.Background(), Closure{GuildID: "g1", ThreadID: "t1", ActorID: "alice", OwnerID: "alice"}))
	assert.Empty(t, platform.removed)
}

func TestCloseContinuesWhenRenameFails(t *testing.T) {
	platform := newFakePlatform()
	platform.fail["rename"] = errors.New("rate limited")
	module := newModule(platform, nil)

	require.NoError(t, module.Close(context.Background(), Closure{GuildID: "g1", ThreadID: "t1", ActorID: "staff1", OwnerID: "alice"}))
	assert.Equal(t, "DONATE - alice", platform.channels["t1"].Name)
	require.Len(t, platform.edits, 1)
	assert.True(t, *platform.edits[0].Archived)
	assert.Equal(t, "DONATE - alice", platform.sent["staff"][0].Embeds[0].Fields[0].Value)
}

func TestThreadOnlyOperations(t *testing.T) {
	module := newModule(newFakePlatform(), nil)
	ctx := context.Background()

	_, err := module.CloseRequest(ctx, "panel", "alice", "done", "1h")
	assert.ErrorIs(t, err, ErrNotThread)
	assert.ErrorIs(t, module.Join(ctx, "g1", "panel", "staff1"), ErrNotThread)
	assert.ErrorIs(t, module.Close(ctx, Closure{GuildID: "g1", ThreadID: "panel"}), ErrNotThread)

	resp, err := module.CloseRequest(ctx, "t1", "alice", "done", "1h")
	require.NoError(t, err)
	row := resp.Data.Components[0].(discordgo.ActionsRow)
	assert.Equal(t, "close_accept:alice", row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, "close_deny:alice", row.Components[1].(discordgo.Button).CustomID)
}

func TestDecision(t *testing.T) {
	module := newModule(newFakePlatform(), nil)
	accepted := module.Decision("staff1", true)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, accepted.Type)
	assert.Contains(t, accepted.Data.Embeds[0].Title, "Accepted")
	assert.NotNil(t, accepted.Data.Components)
	assert.Empty(t, accepted.Data.Components)

	denied := module.Decision("staff1", false)
	assert.Contains(t, denied.Data.Embeds[0].Description, "stays open")
}

func TestDescribe(t *testing.T) {
	msg, ok := Describe(ErrClaimed)
	assert.True(t, ok)
	assert.NotEmpty(t, msg)
	_, ok = Describe(errors.New("other"))
	assert.False(t, ok)
}
