package bot

import (
	"context"
	"fmt"

	"guildkeeper/internal/modules/moderation"
	"guildkeeper/internal/modules/ticket"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func permission(p int64) *int64 { return &p }

var noDM = new(bool)

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: description, Required: required}
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: description, Required: required}
}

func intOption(name, description string, required bool, min, max int) *discordgo.ApplicationCommandOption {
	low := float64(min)
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
		MinValue:    &low,
		MaxValue:    float64(max),
	}
}

func channelOption(name, description string, required bool, types ...discordgo.ChannelType) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: types,
	}
}

func ticketChoices() []*discordgo.ApplicationCommandOptionChoice {
	keys := ticket.Keys()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(keys)+1)
	choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: "All types", Value: "all"})
	for _, key := range keys {
		t, _ := ticket.Lookup(key)
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: t.Emoji + " " + t.Label, Value: key})
	}
	return choices
}

// Commands is the full slash command catalogue.
func Commands() []*discordgo.ApplicationCommand {
	reason := stringOption("reason", "Reason for the action", false)
	reason.MaxLength = moderation.MaxReason
	deleteDays := intOption("delete_days", "Days of messages to delete (0-7)", false, 0, moderation.MaxDeleteDays)
	text := discordgo.ChannelTypeGuildText

	ticketType := stringOption("type", "Ticket type to offer", false)
	ticketType.Choices = ticketChoices()

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "ban",
			Description:              "Ban a user from the server",
			DefaultMemberPermissions: permission(discordgo.PermissionBanMembers),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "User to ban", true), reason, deleteDays},
		},
		{
			Name:                     "kick",
			Description:              "Kick a member from the server",
			DefaultMemberPermissions: permission(discordgo.PermissionKickMembers),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Member to kick", true), reason},
		},
		{
			Name:                     "timeout",
			Description:              "Time out a member",
			DefaultMemberPermissions: permission(discordgo.PermissionModerateMembers),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("user", "Member to time out", true),
				intOption("duration", "Duration in minutes (max 28 days)", true, 1, int(moderation.MaxTimeout.Minutes())),
				reason,
			},
		},
		{
			Name:                     "untimeout",
			Description:              "Remove a member's timeout",
			DefaultMemberPermissions: permission(discordgo.PermissionModerateMembers),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Member to release", true), reason},
		},
		{
			Name:                     "warn",
			Description:              "Warn a member",
			DefaultMemberPermissions: permission(discordgo.PermissionModerateMembers),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Member to warn", true), reason},
		},
		{
			Name:                     "warnings",
			Description:              "List a member's warnings",
			DefaultMemberPermissions: permission(discordgo.PermissionModerateMembers),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Member to look up", true)},
		},
		{
			Name:                     "softban",
			Description:              "Ban and immediately unban to clear messages",
			DefaultMemberPermissions: permission(discordgo.PermissionBanMembers),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Member to softban", true), reason, deleteDays},
		},
		{
			Name:                     "purge",
			Description:              "Bulk delete recent messages",
			DefaultMemberPermissions: permission(discordgo.PermissionManageMessages),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				intOption("amount", "Number of messages to scan (1-100)", true, 1, moderation.MaxPurge),
				userOption("user", "Only delete messages from this user", false),
			},
		},
		{
			Name:                     "setup-ticket",
			Description:              "Post a ticket panel in this channel",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				ticketType,
				channelOption("log_channel", "Channel for staff ticket logs", false, text),
			},
		},
		{
			Name:         "close-request",
			Description:  "Ask to close this ticket",
			DMPermission: noDM,
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("reason", "Why the ticket can be closed", true),
				stringOption("deadline", "How long the other side has to answer", false),
			},
		},
		{
			Name:                     "ticket-add",
			Description:              "Add a member to this ticket",
			DefaultMemberPermissions: permission(discordgo.PermissionManageThreads),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Member to add", true)},
		},
		{
			Name:                     "tempvoice-setup",
			Description:              "Create the temporary voice category, generator and panel",
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			DMPermission:             noDM,
		},
		{
			Name:                     "tempvoice-panel",
			Description:              "Post the temporary voice control panel here",
			DefaultMemberPermissions: permission(discordgo.PermissionManageChannels),
			DMPermission:             noDM,
		},
		{
			Name:                     "setup-welcome",
			Description:              "Set the welcome channel",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel for welcome messages", true, text),
				channelOption("rules_channel", "Rules channel to point new members to", false, text),
			},
		},
		{
			Name:                     "setup-booster-log",
			Description:              "Set the booster announcement channel",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel for boost announcements", true, text),
				stringOption("media_url", "Image or GIF shown with the announcement", false),
			},
		},
		{
			Name:                     "setup-alerts",
			Description:              "Set the moderation alert and error log channels",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("alert_channel", "Channel for moderation and spam alerts", true, text),
				channelOption("error_channel", "Channel for error reports", false, text),
				{Type: discordgo.ApplicationCommandOptionRole, Name: "support_role", Description: "Role whose holders and above bypass spam checks"},
			},
		},
		{
			Name:                     "domain",
			Description:              "Manage the allowed and blocked link domains",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			DMPermission:             noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "list", Description: "allow or block", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{{Name: "allow", Value: "allow"}, {Name: "block", Value: "block"}},
				},
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "add, remove or list", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{{Name: "add", Value: "add"}, {Name: "remove", Value: "remove"}, {Name: "list", Value: "list"}},
				},
				stringOption("domain", "Domain, e.g. example.com", false),
			},
		},
		{
			Name:                     "report",
			Description:              "Summarise recent bot activity",
			DefaultMemberPermissions: permission(discordgo.PermissionManageServer),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{intOption("days", "How many days back (default 7)", false, 1, 90)},
		},
		{
			Name:                     "rules-setup",
			Description:              "Send the server rules panel to a channel",
			DefaultMemberPermissions: permission(discordgo.PermissionAdministrator),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{channelOption("channel", "The channel to send rules to", true, text)},
		},
		{
			Name:                     "edit-rules",
			Description:              "Edit the server rules message",
			DefaultMemberPermissions: permission(discordgo.PermissionAdministrator),
			DMPermission:             noDM,
			Options:                  []*discordgo.ApplicationCommandOption{stringOption("message_id", "The ID of the rules message to edit", true)},
		},
		{
			Name:         "serverinfo",
			Description:  "Show server member and boost counts",
			DMPermission: noDM,
		},
		{
			Name:                     "snipe",
			Description:              "Show the last deleted message in this channel",
			DefaultMemberPermissions: permission(discordgo.PermissionManageMessages),
			DMPermission:             noDM,
		},
		{
			Name:         "check-ghost-ping",
			Description:  "Check ghost pings where you were mentioned",
			DMPermission: noDM,
		},
	}
}

type commandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandEdit(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

type syncResult struct {
	Created, Updated, Deleted int
}

// reconcile makes the registered commands in scope guildID ("" for global)
// match desired: existing ones are edited, missing ones created and stale
// ones deleted.
func reconcile(ctx context.Context, api commandAPI, appID, guildID string, desired []*discordgo.ApplicationCommand) (syncResult, error) {
	var result syncResult
	existing, err := api.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return result, fmt.Errorf("list commands: %w", err)
	}
	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	wanted := make(map[string]struct{}, len(desired))
	for _, cmd := range desired {
		wanted[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := api.ApplicationCommandEdit(appID, guildID, current.ID, cmd, discordgo.WithContext(ctx)); err != nil {
				return result, fmt.Errorf("edit %s: %w", cmd.Name, err)
			}
			result.Updated++
			continue
		}
		if _, err := api.ApplicationCommandCreate(appID, guildID, cmd, discordgo.WithContext(ctx)); err != nil {
			return result, fmt.Errorf("create %s: %w", cmd.Name, err)
		}
		result.Created++
	}

	for _, cmd := range existing {
		if _, ok := wanted[cmd.Name]; ok {
			continue
		}
		if err := api.ApplicationCommandDelete(appID, guildID, cmd.ID, discordgo.WithContext(ctx)); err != nil {
			return result, fmt.Errorf("delete %s: %w", cmd.Name, err)
		}
		result.Deleted++
	}
	return result, nil
}

// SyncCommands registers the catalogue in the configured app guild, or
// globally when none is set.
func (b *Bot) SyncCommands(ctx context.Context) error {
	appID, err := b.applicationID(ctx)
	if err != nil {
		return err
	}
	result, err := reconcile(ctx, b.session, appID, b.cfg.AppGuildID, Commands())
	if err != nil {
		return err
	}
	b.logger.Info("commands synced",
		zap.String("guild_id", b.cfg.AppGuildID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
	)
	return nil
}

func (b *Bot) applicationID(ctx context.Context) (string, error) {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.ID, nil
	}
	user, err := b.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("resolve application id: %w", err)
	}
	return user.ID, nil
}
