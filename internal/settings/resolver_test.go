package settings

import (
	"context"
	"testing"

	"guildkeeper/internal/config"
	"guildkeeper/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolverOverridesDefaults(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	cfg := config.DefaultConfig()
	cfg.Channels.Alert = "cfg-alert"
	cfg.Channels.Welcome = "cfg-welcome"
	r := NewResolver(store, cfg, zap.NewNop())

	ctx := context.Background()
	got := r.Guild(ctx, "g1")
	assert.Equal(t, "cfg-alert", got.AlertChannel)

	require.NoError(t, r.Update(ctx, "g1", func(s *storage.GuildSettings) { s.AlertChannel = "guild-alert" }))
	got = r.Guild(ctx, "g1")
	assert.Equal(t, "guild-alert", got.AlertChannel)
	assert.Equal(t, "cfg-welcome", got.WelcomeChannel)
	assert.Equal(t, "g1", got.GuildID)
}

func TestStatic(t *testing.T) {
	s := Static{AlertChannel: "a"}
	got := s.Guild(context.Background(), "g9")
	assert.Equal(t, "g9", got.GuildID)
	assert.Equal(t, "a", got.AlertChannel)
}
