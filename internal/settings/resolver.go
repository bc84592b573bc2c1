// Package settings merges per-guild overrides with the configured defaults.
package settings

import (
	"context"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	GetGuildSettings(ctx context.Context, guildID string) (storage.GuildSettings, error)
	UpdateGuildSettings(ctx context.Context, guildID string, fn func(*storage.GuildSettings)) error
}

type Resolver struct {
	store  Store
	cfg    config.Config
	logger *zap.Logger
}

func NewResolver(store Store, cfg config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, cfg: cfg, logger: logger}
}

// Guild returns the effective settings for guildID. A storage failure falls
// back to the config defaults.
func (r *Resolver) Guild(ctx context.Context, guildID string) storage.GuildSettings {
	stored := storage.GuildSettings{GuildID: guildID}
	if r.store != nil && guildID != "" {
		s, err := r.store.GetGuildSettings(ctx, guildID)
		if err != nil {
			r.logger.Warn("guild settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		} else {
			stored = s
		}
	}
	return Merge(stored, r.cfg)
}

// Update applies fn to the stored row for guildID.
func (r *Resolver) Update(ctx context.Context, guildID string, fn func(*storage.GuildSettings)) error {
	return r.store.UpdateGuildSettings(ctx, guildID, fn)
}

// Merge fills the empty fields of stored from cfg.
func Merge(stored storage.GuildSettings, cfg config.Config) storage.GuildSettings {
	fill := func(field *string, fallback string) {
		if *field == "" {
			*field = fallback
		}
	}
	fill(&stored.AlertChannel, cfg.Channels.Alert)
	fill(&stored.ErrorLogChannel, cfg.Channels.ErrorLog)
	fill(&stored.WelcomeChannel, cfg.Channels.Welcome)
	fill(&stored.RulesChannel, cfg.Channels.Rules)
	fill(&stored.BoosterLogChannel, cfg.Channels.BoosterLog)
	fill(&stored.BoosterMediaURL, cfg.Booster.MediaURL)
	fill(&stored.StaffLogChannel, cfg.Channels.StaffLog)
	fill(&stored.SupportRoleID, cfg.SupportRoleID)
	return stored
}

// Static serves fixed settings for every guild.
type Static storage.GuildSettings

func (s Static) Guild(_ context.Context, guildID string) storage.GuildSettings {
	out := storage.GuildSettings(s)
	out.GuildID = guildID
	return out
}
