package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	CollectionWarnings         = "warnings"
	CollectionBoosterWhitelist = "booster_whitelist"
	CollectionGhostPings       = "ghost_pings"
)

type WarningRecord struct {
	WarningID   string `json:"warning_id"`
	GuildID     string `json:"guild_id"`
	UserID      string `json:"user_id"`
	ModeratorID string `json:"moderator_id"`
	Reason      string `json:"reason"`
	Timestamp   int64  `json:"timestamp"`
}

type BoosterWhitelistRecord struct {
	UserID        string `json:"user_id"`
	GuildID       string `json:"guild_id"`
	WhitelistedAt int64  `json:"whitelisted_at"`
	BoostCount    int    `json:"boost_count"`
}

// GhostPingRecord is one mention of MentionedID in a deleted message.
type GhostPingRecord struct {
	MessageID   string `json:"message_id"`
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	AuthorID    string `json:"author_id"`
	AuthorTag   string `json:"author_tag"`
	MentionedID string `json:"mentioned_id"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
}

// Warnings is append-only; there is no update or delete path.
type Warnings struct {
	docs Documents
	now  func() time.Time
}

func NewWarnings(docs Documents) *Warnings {
	return &Warnings{docs: docs, now: time.Now}
}

func (w *Warnings) Add(ctx context.Context, guildID, userID, moderatorID, reason string) (WarningRecord, error) {
	record := WarningRecord{
		WarningID:   uuid.NewString(),
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		Timestamp:   w.now().Unix(),
	}
	if _, err := w.docs.InsertOne(ctx, CollectionWarnings, record); err != nil {
		return WarningRecord{}, err
	}
	return record, nil
}

// List returns the warnings of a member, newest first.
func (w *Warnings) List(ctx context.Context, guildID, userID string) ([]WarningRecord, error) {
	var records []WarningRecord
	err := w.docs.FindMany(ctx, CollectionWarnings, Filter{"guild_id": guildID, "user_id": userID}, FindOptions{Sort: "timestamp", Desc: true}, &records)
	return records, err
}

type Boosters struct {
	docs Documents
	now  func() time.Time
}

func NewBoosters(docs Documents) *Boosters {
	return &Boosters{docs: docs, now: time.Now}
}

func (b *Boosters) AddWhitelist(ctx context.Context, userID, guildID string, boostCount int) error {
	return b.docs.UpdateOne(ctx, CollectionBoosterWhitelist, Filter{"user_id": userID, "guild_id": guildID}, map[string]any{
		"user_id":        userID,
		"guild_id":       guildID,
		"whitelisted_at": b.now().Unix(),
		"boost_count":    boostCount,
	}, true)
}

func (b *Boosters) RemoveWhitelist(ctx context.Context, userID, guildID string) error {
	_, err := b.docs.DeleteOne(ctx, CollectionBoosterWhitelist, Filter{"user_id": userID, "guild_id": guildID})
	return err
}

// Get returns nil without error when the member has no record.
func (b *Boosters) Get(ctx context.Context, userID, guildID string) (*BoosterWhitelistRecord, error) {
	var record BoosterWhitelistRecord
	err := b.docs.FindOne(ctx, CollectionBoosterWhitelist, Filter{"user_id": userID, "guild_id": guildID}, &record)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

type GhostPings struct {
	docs Documents
}

func NewGhostPings(docs Documents) *GhostPings {
	return &GhostPings{docs: docs}
}

func (g *GhostPings) Add(ctx context.Context, record GhostPingRecord) error {
	_, err := g.docs.InsertOne(ctx, CollectionGhostPings, record)
	return err
}

// List returns the ghost pings of a member in a guild, newest first.
func (g *GhostPings) List(ctx context.Context, guildID, userID string) ([]GhostPingRecord, error) {
	var records []GhostPingRecord
	err := g.docs.FindMany(ctx, CollectionGhostPings, Filter{"guild_id": guildID, "mentioned_id": userID}, FindOptions{Sort: "timestamp", Desc: true}, &records)
	return records, err
}
