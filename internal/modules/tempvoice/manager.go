// Package tempvoice creates a voice channel for each member who joins the
// generator channel and removes it once the last member leaves.
package tempvoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	ErrNotInChannel       = errors.New("tempvoice: not in a temporary channel")
	ErrNotOwner           = errors.New("tempvoice: not the channel owner")
	ErrOwnerPresent       = errors.New("tempvoice: owner is still in the channel")
	ErrTargetNotInChannel = errors.New("tempvoice: user is not in the channel")
	ErrSelfTarget         = errors.New("tempvoice: cannot target yourself")
	ErrInvalidLimit       = errors.New("tempvoice: limit must be between 0 and 99")
	ErrInvalidName        = errors.New("tempvoice: name must not be empty")
	ErrInvalidRegion      = errors.New("tempvoice: unknown region")
)

const (
	ownerPerms = discordgo.PermissionManageChannels |
		discordgo.PermissionVoiceMoveMembers |
		discordgo.PermissionVoiceMuteMembers |
		discordgo.PermissionVoiceDeafenMembers |
		discordgo.PermissionVoiceConnect |
		discordgo.PermissionViewChannel
	trustPerms  = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak | discordgo.PermissionVoiceStreamVideo
	invitePerms = discordgo.PermissionVoiceConnect | discordgo.PermissionViewChannel
	blockPerms  = discordgo.PermissionVoiceConnect | discordgo.PermissionViewChannel
	maxLimit    = 99
)

type Region struct {
	ID          string
	Label       string
	Description string
}

// Regions lists the selectable voice regions. "auto" lets Discord choose.
var Regions = []Region{
	{"auto", "Automatic", "Let Discord choose the best region"},
	{"singapore", "Singapore", "Southeast Asia"},
	{"sydney", "Sydney", "Australia"},
	{"japan", "Japan", "East Asia"},
	{"hongkong", "Hong Kong", "East Asia"},
	{"us-east", "US East", "North America"},
	{"us-west", "US West", "North America"},
	{"europe", "Europe", "Europe"},
}

type Platform interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	ChannelPermissionDelete(channelID, targetID string, options ...discordgo.RequestOption) error
	GuildMemberMove(guildID, userID string, channelID *string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	RequestWithBucketID(method, urlStr string, data interface{}, bucketID string, options ...discordgo.RequestOption) ([]byte, error)
}

// Voice answers who is connected where, from the gateway state cache.
type Voice interface {
	UserChannel(guildID, userID string) string
	Occupants(guildID, channelID string) []string
}

type Settings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
	Update(ctx context.Context, guildID string, fn func(*storage.GuildSettings)) error
}

type Manager struct {
	platform Platform
	voice    Voice
	settings Settings
	registry *Registry
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      config.TempVoiceConfig
	colors   config.EmbedColors
	now      func() time.Time
}

type Options struct {
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Config  config.TempVoiceConfig
	Colors  config.EmbedColors
}

func NewManager(platform Platform, voice Voice, settings Settings, registry *Registry, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		platform: platform,
		voice:    voice,
		settings: settings,
		registry: registry,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   logger,
		cfg:      opts.Config,
		colors:   opts.Colors,
		now:      time.Now,
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

// HandleVoiceState reacts to a member moving from before to after. Either id
// may be empty.
func (m *Manager) HandleVoiceState(ctx context.Context, guildID, userID, username, before, after string) {
	if before == after {
		return
	}
	if after != "" {
		if generator := m.settings.Guild(ctx, guildID).GeneratorChannelID; generator != "" && after == generator {
			m.create(ctx, guildID, userID, username, generator)
		}
	}
	if before != "" {
		if _, ok := m.registry.Get(before); ok && len(m.voice.Occupants(guildID, before)) == 0 {
			m.remove(ctx, guildID, before)
		}
	}
}

func (m *Manager) create(ctx context.Context, guildID, userID, username, generatorID string) {
	parentID := m.settings.Guild(ctx, guildID).TempVoiceCategoryID
	if parentID == "" {
		if generator, err := m.platform.Channel(generatorID, discordgo.WithContext(ctx)); err == nil {
			parentID = generator.ParentID
		}
	}

	channel, err := m.platform.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     ui.Truncate(username+"'s Channel", ui.MaxChannelName),
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: parentID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ownerPerms},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		m.reportError(ctx, guildID, "tempvoice_create", err, map[string]string{"user": userID})
		return
	}

	m.registry.Register(Record{ChannelID: channel.ID, GuildID: guildID, OwnerID: userID, CreatedAt: m.now()})
	m.metrics.SetTempChannels(m.registry.Len())
	m.logger.Info("temp channel created", zap.String("guild_id", guildID), zap.String("channel_id", channel.ID), zap.String("owner_id", userID))

	if err := m.platform.GuildMemberMove(guildID, userID, &channel.ID, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, guildID, "tempvoice_move", err, map[string]string{"user": userID, "channel": channel.ID})
		m.remove(ctx, guildID, channel.ID)
	}
}

func (m *Manager) remove(ctx context.Context, guildID, channelID string) {
	if _, err := m.platform.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, guildID, "tempvoice_delete", err, map[string]string{"channel": channelID})
	}
	if m.registry.Unregister(channelID) {
		m.metrics.SetTempChannels(m.registry.Len())
		m.logger.Info("temp channel removed", zap.String("guild_id", guildID), zap.String("channel_id", channelID))
	}
}

// owned returns the record of the temp channel actorID is in and owns.
func (m *Manager) owned(guildID, actorID string) (Record, error) {
	record, err := m.current(guildID, actorID)
	if err != nil {
		return Record{}, err
	}
	if record.OwnerID != actorID {
		return Record{}, ErrNotOwner
	}
	return record, nil
}

func (m *Manager) current(guildID, actorID string) (Record, error) {
	channelID := m.voice.UserChannel(guildID, actorID)
	if channelID == "" {
		return Record{}, ErrNotInChannel
	}
	record, ok := m.registry.Get(channelID)
	if !ok {
		return Record{}, ErrNotInChannel
	}
	return record, nil
}

func (m *Manager) inChannel(guildID, channelID, userID string) bool {
	return m.voice.UserChannel(guildID, userID) == channelID
}

func (m *Manager) patch(ctx context.Context, channelID string, body map[string]any) error {
	endpoint := discordgo.EndpointChannel(channelID)
	_, err := m.platform.RequestWithBucketID("PATCH", endpoint, body, endpoint, discordgo.WithContext(ctx))
	return err
}

func (m *Manager) Rename(ctx context.Context, guildID, actorID, name string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return m.patch(ctx, record.ChannelID, map[string]any{"name": ui.Truncate(name, ui.MaxChannelName)})
}

func (m *Manager) SetLimit(ctx context.Context, guildID, actorID string, limit int) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	if limit < 0 || limit > maxLimit {
		return ErrInvalidLimit
	}
	return m.patch(ctx, record.ChannelID, map[string]any{"user_limit": limit})
}

// TogglePrivacy flips the current @everyone Connect overwrite and reports
// whether the channel is now locked.
func (m *Manager) TogglePrivacy(ctx context.Context, guildID, actorID string) (bool, error) {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return false, err
	}
	channel, err := m.platform.Channel(record.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	locked := !connectDenied(channel, guildID)
	return locked, m.setPrivacy(ctx, guildID, record.ChannelID, locked)
}

// setPrivacy denies (locked) or allows Connect for @everyone.
func (m *Manager) setPrivacy(ctx context.Context, guildID, channelID string, locked bool) error {
	if locked {
		return m.platform.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, 0, discordgo.PermissionVoiceConnect, discordgo.WithContext(ctx))
	}
	return m.platform.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, discordgo.PermissionVoiceConnect, 0, discordgo.WithContext(ctx))
}

func connectDenied(channel *discordgo.Channel, everyoneID string) bool {
	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite.ID == everyoneID {
			return overwrite.Deny&discordgo.PermissionVoiceConnect != 0
		}
	}
	return false
}

func (m *Manager) Trust(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	return m.platform.ChannelPermissionSet(record.ChannelID, targetID, discordgo.PermissionOverwriteTypeMember, trustPerms, 0, discordgo.WithContext(ctx))
}

func (m *Manager) Untrust(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	return m.platform.ChannelPermissionDelete(record.ChannelID, targetID, discordgo.WithContext(ctx))
}

// Invite grants targetID access and sends them a direct link. A failed DM
// does not fail the invite.
func (m *Manager) Invite(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	if err := m.platform.ChannelPermissionSet(record.ChannelID, targetID, discordgo.PermissionOverwriteTypeMember, invitePerms, 0, discordgo.WithContext(ctx)); err != nil {
		return err
	}

	dm, err := m.platform.UserChannelCreate(targetID, discordgo.WithContext(ctx))
	if err != nil {
		m.logger.Debug("invite dm unavailable", zap.String("user_id", targetID), zap.Error(err))
		return nil
	}
	link := fmt.Sprintf("https://discord.com/channels/%s/%s", guildID, record.ChannelID)
	embed := ui.Card{
		Title:       "Voice Invite",
		Description: fmt.Sprintf("%s invited you to join their voice channel.", ui.Mention(actorID)),
		Color:       m.colors.Action,
	}.Embed()
	if _, err := m.platform.ChannelMessageSendComplex(dm.ID, ui.Message(embed, ui.Row(ui.Link("Join Voice", link))), discordgo.WithContext(ctx)); err != nil {
		m.logger.Debug("invite dm failed", zap.String("user_id", targetID), zap.Error(err))
	}
	return nil
}

func (m *Manager) Kick(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	if targetID == actorID {
		return ErrSelfTarget
	}
	if !m.inChannel(guildID, record.ChannelID, targetID) {
		return ErrTargetNotInChannel
	}
	return m.platform.GuildMemberMove(guildID, targetID, nil, discordgo.WithContext(ctx))
}

func (m *Manager) Block(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	if targetID == actorID {
		return ErrSelfTarget
	}
	if err := m.platform.ChannelPermissionSet(record.ChannelID, targetID, discordgo.PermissionOverwriteTypeMember, 0, blockPerms, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	if m.inChannel(guildID, record.ChannelID, targetID) {
		return m.platform.GuildMemberMove(guildID, targetID, nil, discordgo.WithContext(ctx))
	}
	return nil
}

func (m *Manager) Unblock(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	return m.platform.ChannelPermissionDelete(record.ChannelID, targetID, discordgo.WithContext(ctx))
}

// SetRegion sets the channel's voice region. "" and "auto" clear it.
func (m *Manager) SetRegion(ctx context.Context, guildID, actorID, region string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	var value any
	if region != "" && region != "auto" {
		if !knownRegion(region) {
			return ErrInvalidRegion
		}
		value = region
	}
	return m.patch(ctx, record.ChannelID, map[string]any{"rtc_region": value})
}

func knownRegion(id string) bool {
	for _, region := range Regions {
		if region.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) Transfer(ctx context.Context, guildID, actorID, targetID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	if targetID == actorID {
		return ErrSelfTarget
	}
	if !m.inChannel(guildID, record.ChannelID, targetID) {
		return ErrTargetNotInChannel
	}
	return m.assign(ctx, record, targetID)
}

// Claim hands an abandoned channel to actorID. It fails while the current
// owner is still connected.
func (m *Manager) Claim(ctx context.Context, guildID, actorID string) error {
	record, err := m.current(guildID, actorID)
	if err != nil {
		return err
	}
	if m.inChannel(guildID, record.ChannelID, record.OwnerID) {
		return ErrOwnerPresent
	}
	return m.assign(ctx, record, actorID)
}

func (m *Manager) assign(ctx context.Context, record Record, ownerID string) error {
	if err := m.platform.ChannelPermissionSet(record.ChannelID, ownerID, discordgo.PermissionOverwriteTypeMember, ownerPerms, 0, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	m.registry.SetOwner(record.ChannelID, ownerID)
	m.logger.Info("temp channel owner changed", zap.String("channel_id", record.ChannelID), zap.String("from", record.OwnerID), zap.String("to", ownerID))
	return nil
}

func (m *Manager) Delete(ctx context.Context, guildID, actorID string) error {
	record, err := m.owned(guildID, actorID)
	if err != nil {
		return err
	}
	if _, err := m.platform.ChannelDelete(record.ChannelID, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	m.registry.Unregister(record.ChannelID)
	m.metrics.SetTempChannels(m.registry.Len())
	return nil
}

func (m *Manager) reportError(ctx context.Context, guildID, scope string, err error, fields map[string]string) {
	if m.audit == nil {
		m.logger.Error(scope, zap.String("guild_id", guildID), zap.Error(err), zap.Any("fields", fields))
		return
	}
	m.audit.Error(ctx, guildID, scope, err, fields)
}
