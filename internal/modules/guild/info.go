package guild

import (
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
)

// Counts are the member figures shown on the server info card.
type Counts struct {
	Members int
	Bots    int
	Boosts  int
}

// CountMembers derives Counts from guild. Bots are counted among the
// members the gateway cache holds, so the caller must hold the state lock
// when guild comes from the cache.
func CountMembers(guild *discordgo.Guild) Counts {
	counts := Counts{Members: guild.MemberCount, Boosts: guild.PremiumSubscriptionCount}
	if counts.Members == 0 {
		counts.Members = guild.ApproximateMemberCount
	}
	for _, member := range guild.Members {
		if member != nil && member.User != nil && member.User.Bot {
			counts.Bots++
		}
	}
	if counts.Bots > counts.Members {
		counts.Bots = counts.Members
	}
	return counts
}

// InfoEmbed is the server statistics card.
func InfoEmbed(guild *discordgo.Guild, counts Counts, color int, now time.Time) *discordgo.MessageEmbed {
	card := ui.Card{
		Title: fmt.Sprintf("📊 %s Statistics", guild.Name),
		Description: strings.Join([]string{
			fmt.Sprintf("**All Members:** %d", counts.Members),
			fmt.Sprintf("**Members:** %d", counts.Members-counts.Bots),
			fmt.Sprintf("**Bots:** %d", counts.Bots),
			fmt.Sprintf("**Boosts:** %d", counts.Boosts),
		}, "\n"),
		Color:     color,
		Timestamp: now,
	}
	if guild.Icon != "" {
		card.Thumbnail = guild.IconURL("256")
	}
	return card.Embed()
}
