package bot

import (
	"guildkeeper/internal/modules/guild"

	"github.com/bwmarrin/discordgo"
)

// stateView answers guild, member and voice lookups from the gateway cache,
// falling back to REST for guilds and members the cache has not seen.
type stateView struct {
	session *discordgo.Session
}

func (s *stateView) Guild(guildID string) (*discordgo.Guild, error) {
	if guild, err := s.session.State.Guild(guildID); err == nil {
		return guild, nil
	}
	return s.session.Guild(guildID)
}

// Counts reads the member figures of a guild under the state lock.
func (s *stateView) Counts(guildID string) (*discordgo.Guild, guild.Counts, error) {
	g, err := s.Guild(guildID)
	if err != nil {
		return nil, guild.Counts{}, err
	}
	s.session.State.RLock()
	defer s.session.State.RUnlock()
	return g, guild.CountMembers(g), nil
}

func (s *stateView) Member(guildID, userID string) (*discordgo.Member, error) {
	if member, err := s.session.State.Member(guildID, userID); err == nil {
		return member, nil
	}
	return s.session.GuildMember(guildID, userID)
}

func (s *stateView) BotID() string {
	if s.session.State == nil || s.session.State.User == nil {
		return ""
	}
	return s.session.State.User.ID
}

func (s *stateView) UserChannel(guildID, userID string) string {
	vs, err := s.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func (s *stateView) Occupants(guildID, channelID string) []string {
	guild, err := s.session.State.Guild(guildID)
	if err != nil {
		return nil
	}
	s.session.State.RLock()
	defer s.session.State.RUnlock()
	var users []string
	for _, vs := range guild.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			users = append(users, vs.UserID)
		}
	}
	return users
}
