package moderation

import (
	"github.com/bwmarrin/discordgo"
)

// Permissions returns the guild-wide permissions of member. The owner and
// administrators get every permission.
func Permissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	if member.User != nil && member.User.ID == guild.OwnerID {
		return discordgo.PermissionAll
	}
	roles := roleIndex(guild)
	var perms int64
	if everyone := roles[guild.ID]; everyone != nil {
		perms |= everyone.Permissions
	}
	for _, id := range member.Roles {
		if role := roles[id]; role != nil {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}
	return perms
}

// HighestPosition is the position of member's top role, 0 for none.
func HighestPosition(guild *discordgo.Guild, member *discordgo.Member) int {
	if guild == nil || member == nil {
		return 0
	}
	roles := roleIndex(guild)
	highest := 0
	for _, id := range member.Roles {
		if role := roles[id]; role != nil && role.Position > highest {
			highest = role.Position
		}
	}
	return highest
}

func roleIndex(guild *discordgo.Guild) map[string]*discordgo.Role {
	index := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		index[role.ID] = role
	}
	return index
}

func checkIdentity(guild *discordgo.Guild, actorID, targetID, botID string) error {
	switch {
	case targetID == actorID:
		return ErrSelfTarget
	case targetID == guild.OwnerID:
		return ErrTargetOwner
	case botID != "" && targetID == botID:
		return ErrTargetBot
	}
	return nil
}

// checkRoles requires both the actor (unless owner) and the bot to sit
// strictly above the target.
func checkRoles(guild *discordgo.Guild, actor, target, bot *discordgo.Member) error {
	targetPos := HighestPosition(guild, target)
	if actor.User == nil || actor.User.ID != guild.OwnerID {
		if targetPos >= HighestPosition(guild, actor) {
			return ErrHierarchy
		}
	}
	if bot != nil && targetPos >= HighestPosition(guild, bot) {
		return ErrBotHierarchy
	}
	return nil
}
