package guild

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	sent     map[string][]*discordgo.MessageSend
	messages map[string]*discordgo.Message
	edits    []*discordgo.MessageEdit
	sendErr  error
}

func (f *fakePlatform) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sent == nil {
		f.sent = make(map[string][]*discordgo.MessageSend)
	}
	f.sent[channelID] = append(f.sent[channelID], data)
	return &discordgo.Message{ID: "panel", ChannelID: channelID, Embeds: data.Embeds}, nil
}

func (f *fakePlatform) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	msg, ok := f.messages[channelID+"/"+messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return msg, nil
}

func (f *fakePlatform) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel, Embeds: m.Embeds}, nil
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

func newModule() (*Module, *fakePlatform, *memorySettings) {
	platform := &fakePlatform{messages: map[string]*discordgo.Message{}}
	settings := &memorySettings{}
	return New(platform, Options{Settings: settings, Colors: config.DefaultConfig().EmbedColors}), platform, settings
}

func TestPostRulesRemembersChannel(t *testing.T) {
	module, platform, settings := newModule()

	msg, err := module.PostRules(context.Background(), "g1", "rules", "admin")
	require.NoError(t, err)
	assert.Equal(t, "rules", settings.s.RulesChannel)
	require.Len(t, platform.sent["rules"], 1)

	rules, ok := ParseRules(msg)
	require.True(t, ok)
	assert.Equal(t, DefaultRules, rules)
	assert.True(t, strings.HasPrefix(rules.Body, "### 1. Respect Everyone"))
}

func TestPostRulesSendFailure(t *testing.T) {
	module, platform, settings := newModule()
	platform.sendErr = errors.New("missing access")

	_, err := module.PostRules(context.Background(), "g1", "rules", "admin")
	assert.ErrorContains(t, err, "send rules panel")
	assert.Empty(t, settings.s.RulesChannel)
}

func TestEditModalPrefillsCurrentText(t *testing.T) {
	module, platform, settings := newModule()
	settings.s.RulesChannel = "rules"
	current := Rules{Header: "hi", Body: "### 1. Be nice", Footer: "bye"}
	platform.messages["rules/42"] = &discordgo.Message{ID: "42", Embeds: RulesEmbeds(current, 0)}

	resp, err := module.EditModal(context.Background(), "g1", "42")
	require.NoError(t, err)
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, customid.RulesModal("42").String(), resp.Data.CustomID)

	var values []string
	for _, row := range resp.Data.Components {
		input := row.(discordgo.ActionsRow).Components[0].(discordgo.TextInput)
		values = append(values, input.Value)
	}
	assert.Equal(t, []string{"hi", "### 1. Be nice", "bye"}, values)
}

func TestEditModalErrors(t *testing.T) {
	module, platform, settings := newModule()
	ctx := context.Background()

	_, err := module.EditModal(ctx, "g1", "42")
	assert.ErrorIs(t, err, ErrNoRulesChannel)

	settings.s.RulesChannel = "rules"
	_, err = module.EditModal(ctx, "g1", "42")
	assert.ErrorContains(t, err, "fetch rules panel")

	platform.messages["rules/42"] = &discordgo.Message{ID: "42", Content: "not a panel"}
	_, err = module.EditModal(ctx, "g1", "42")
	assert.ErrorIs(t, err, ErrNotRulesPanel)

	msg, ok := Describe(err)
	assert.True(t, ok)
	assert.Equal(t, "That message is not a rules panel.", msg)
}

func TestSaveRulesEditsPanel(t *testing.T) {
	module, platform, settings := newModule()
	settings.s.RulesChannel = "rules"

	values := ui.ModalValues([]discordgo.MessageComponent{
		textInput(FieldHeader, "", " Welcome ", 0),
		textInput(FieldRules, "", "### 1. Be kind", 0),
		textInput(FieldFooter, "", "Enjoy", 0),
	})
	require.NoError(t, module.SaveRules(context.Background(), "g1", "42", "admin", values))

	require.Len(t, platform.edits, 1)
	edit := platform.edits[0]
	assert.Equal(t, "rules", edit.Channel)
	assert.Equal(t, "42", edit.ID)
	rules, ok := ParseRules(&discordgo.Message{Embeds: edit.Embeds})
	require.True(t, ok)
	assert.Equal(t, Rules{Header: "Welcome", Body: "### 1. Be kind", Footer: "Enjoy"}, rules)
}

func TestSaveRulesRejectsEmptyText(t *testing.T) {
	module, platform, settings := newModule()
	settings.s.RulesChannel = "rules"

	err := module.SaveRules(context.Background(), "g1", "42", "admin", map[string]string{FieldHeader: "h", FieldRules: "  ", FieldFooter: "f"})
	assert.ErrorIs(t, err, ErrEmptyRules)
	assert.Empty(t, platform.edits)
}

func TestCountMembers(t *testing.T) {
	guild := &discordgo.Guild{
		MemberCount:              4,
		PremiumSubscriptionCount: 2,
		Members: []*discordgo.Member{
			{User: &discordgo.User{ID: "1"}},
			{User: &discordgo.User{ID: "2", Bot: true}},
			{User: &discordgo.User{ID: "3", Bot: true}},
			nil,
		},
	}
	assert.Equal(t, Counts{Members: 4, Bots: 2, Boosts: 2}, CountMembers(guild))

	assert.Equal(t, 7, CountMembers(&discordgo.Guild{ApproximateMemberCount: 7}).Members)
}

func TestInfoEmbed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	guild := &discordgo.Guild{ID: "g1", Name: "Keep", Icon: "abc"}

	embed := InfoEmbed(guild, Counts{Members: 10, Bots: 3, Boosts: 5}, 0x123456, now)
	assert.Equal(t, "📊 Keep Statistics", embed.Title)
	assert.Contains(t, embed.Description, "**All Members:** 10")
	assert.Contains(t, embed.Description, "**Members:** 7")
	assert.Contains(t, embed.Description, "**Bots:** 3")
	assert.Contains(t, embed.Description, "**Boosts:** 5")
	require.NotNil(t, embed.Thumbnail)
	assert.Contains(t, embed.Thumbnail.URL, "abc")

	assert.Nil(t, InfoEmbed(&discordgo.Guild{Name: "Bare"}, Counts{}, 0, now).Thumbnail)
}
