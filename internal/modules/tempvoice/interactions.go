package tempvoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"guildkeeper/internal/customid"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
)

// ModalField is the custom id of the single text input in each modal.
const ModalField = "value"

var userActions = map[string]string{
	"trust":    "Select a user to trust",
	"untrust":  "Select a user to untrust",
	"invite":   "Select a user to invite",
	"kick":     "Select a user to kick",
	"block":    "Select a user to block",
	"unblock":  "Select a user to unblock",
	"transfer": "Select the new owner",
}

// HandleButton answers a click on the control panel.
func (m *Manager) HandleButton(ctx context.Context, guildID, actorID, action string) *discordgo.InteractionResponse {
	switch action {
	case "claim":
		if err := m.Claim(ctx, guildID, actorID); err != nil {
			return m.failure(ctx, guildID, action, err)
		}
		return ui.Reply("You are now the owner of this channel.")
	case "delete":
		if err := m.Delete(ctx, guildID, actorID); err != nil {
			return m.failure(ctx, guildID, action, err)
		}
		return ui.Reply("Your channel has been deleted.")
	case "privacy":
		locked, err := m.TogglePrivacy(ctx, guildID, actorID)
		if err != nil {
			return m.failure(ctx, guildID, action, err)
		}
		if locked {
			return ui.Reply("Channel is now **private**. Only trusted users can join.")
		}
		return ui.Reply("Channel is now **public**. Everyone can join.")
	}

	if _, err := m.owned(guildID, actorID); err != nil {
		return m.failure(ctx, guildID, action, err)
	}

	switch action {
	case "name":
		return ui.Modal(customid.TempVoiceModal(action).String(), "Rename Channel",
			ui.TextInput(ModalField, "New Channel Name", "Enter new channel name...", discordgo.TextInputShort, true, ui.MaxChannelName))
	case "limit":
		return ui.Modal(customid.TempVoiceModal(action).String(), "Set User Limit",
			ui.TextInput(ModalField, "User Limit (0 for unlimited)", "Enter a number (0-99)...", discordgo.TextInputShort, true, 2))
	case "waitingroom":
		return ui.Reply("Waiting room feature is not yet implemented.")
	case "chat":
		return ui.Reply("Chat thread feature is not yet implemented.")
	case "region":
		options := make([]discordgo.SelectMenuOption, 0, len(Regions))
		for _, region := range Regions {
			options = append(options, discordgo.SelectMenuOption{Label: region.Label, Value: region.ID, Description: region.Description})
		}
		return ui.Reply("Select a region:", ui.Row(discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    customid.TempVoiceSelect(action).String(),
			Placeholder: "Select region",
			Options:     options,
		}))
	}

	if placeholder, ok := userActions[action]; ok {
		return ui.Reply(placeholder+":", ui.Row(discordgo.SelectMenu{
			MenuType:    discordgo.UserSelectMenu,
			CustomID:    customid.TempVoiceSelect(action).String(),
			Placeholder: placeholder,
		}))
	}
	return ui.Reply("Unknown action.")
}

// HandleModal applies a rename or limit submission.
func (m *Manager) HandleModal(ctx context.Context, guildID, actorID, action, value string) *discordgo.InteractionResponse {
	value = strings.TrimSpace(value)
	switch action {
	case "name":
		if err := m.Rename(ctx, guildID, actorID, value); err != nil {
			return m.failure(ctx, guildID, action, err)
		}
		return ui.Reply(fmt.Sprintf("Channel renamed to **%s**.", ui.Truncate(value, ui.MaxChannelName)))
	case "limit":
		limit, err := strconv.Atoi(value)
		if err != nil {
			return m.failure(ctx, guildID, action, ErrInvalidLimit)
		}
		if err := m.SetLimit(ctx, guildID, actorID, limit); err != nil {
			return m.failure(ctx, guildID, action, err)
		}
		if limit == 0 {
			return ui.Reply("User limit removed.")
		}
		return ui.Reply(fmt.Sprintf("User limit set to **%d**.", limit))
	}
	return ui.Reply("Unknown action.")
}

// HandleSelect applies a user or region selection.
func (m *Manager) HandleSelect(ctx context.Context, guildID, actorID, action string, values []string) *discordgo.InteractionResponse {
	if len(values) == 0 {
		return ui.Reply("Nothing selected.")
	}
	value := values[0]

	var (
		err  error
		done string
	)
	switch action {
	case "region":
		err = m.SetRegion(ctx, guildID, actorID, value)
		label := value
		for _, region := range Regions {
			if region.ID == value {
				label = region.Label
			}
		}
		done = fmt.Sprintf("Voice region set to **%s**.", label)
	case "trust":
		err = m.Trust(ctx, guildID, actorID, value)
		done = fmt.Sprintf("%s is now trusted.", ui.Mention(value))
	case "untrust":
		err = m.Untrust(ctx, guildID, actorID, value)
		done = fmt.Sprintf("%s is no longer trusted.", ui.Mention(value))
	case "invite":
		err = m.Invite(ctx, guildID, actorID, value)
		done = fmt.Sprintf("%s has been invited.", ui.Mention(value))
	case "kick":
		err = m.Kick(ctx, guildID, actorID, value)
		done = fmt.Sprintf("%s has been kicked from the channel.", ui.Mention(value))
	case "block":
		err = m.Block(ctx, guildID, actorID, value)
		done = fmt.Sprintf("%s has been blocked from the channel.", ui.Mention(value))
	case "unblock":
		err = m.Unblock(ctx, guildID, actorID, value)
		done = fmt.Sprintf("%s has been unblocked.", ui.Mention(value))
	case "transfer":
		err = m.Transfer(ctx, guildID, actorID, value)
		done = fmt.Sprintf("Ownership transferred to %s.", ui.Mention(value))
	default:
		return ui.Reply("Unknown action.")
	}
	if err != nil {
		return m.failure(ctx, guildID, action, err)
	}
	return ui.Reply(done)
}

// failure maps validation errors to user messages and reports anything else.
func (m *Manager) failure(ctx context.Context, guildID, action string, err error) *discordgo.InteractionResponse {
	switch {
	case errors.Is(err, ErrNotInChannel):
		generator := m.settings.Guild(ctx, guildID).GeneratorChannelID
		if generator == "" {
			return ui.Reply("You must be in your temporary voice channel to use this.")
		}
		link := fmt.Sprintf("https://discord.com/channels/%s/%s", guildID, generator)
		return ui.Reply("You must be in your temporary voice channel to use this.", ui.Row(ui.Link("Join Voice", link)))
	case errors.Is(err, ErrNotOwner):
		return ui.Reply("Only the channel owner can use this.")
	case errors.Is(err, ErrOwnerPresent):
		return ui.Reply("The channel owner is still in the channel.")
	case errors.Is(err, ErrTargetNotInChannel):
		return ui.Reply("That user is not in your channel.")
	case errors.Is(err, ErrSelfTarget):
		return ui.Reply("You cannot do that to yourself.")
	case errors.Is(err, ErrInvalidLimit):
		return ui.Reply("Please enter a number between 0 and 99.")
	case errors.Is(err, ErrInvalidName):
		return ui.Reply("Please enter a channel name.")
	case errors.Is(err, ErrInvalidRegion):
		return ui.Reply("Unknown region.")
	}
	m.reportError(ctx, guildID, "tempvoice_"+action, err, nil)
	return ui.Reply("Something went wrong. Please try again.")
}
