package ticket

import (
	"github.com/bwmarrin/discordgo"
)

// Input is one text input of a ticket modal.
type Input struct {
	ID        string
	Label     string
	Style     discordgo.TextInputStyle
	Required  bool
	MaxLength int
	Inline    bool
}

// Type describes one kind of ticket: its thread code, colours and the
// questions asked before the thread is opened.
type Type struct {
	Key         string
	Code        string
	Label       string
	Title       string
	Description string
	Color       int
	Emoji       string
	Inputs      []Input
}

var types = map[string]Type{
	"donate": {
		Key:         "donate",
		Code:        "DONATE",
		Label:       "Donate",
		Title:       "Donation Ticket",
		Description: "Open a ticket to donate and receive your perks.",
		Color:       0x57F287,
		Emoji:       "💸",
		Inputs: []Input{
			{ID: "ucp_name", Label: "UCP Name", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
			{ID: "ingame_name", Label: "In-game Name", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
			{ID: "donate_what", Label: "What would you like to donate?", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 500},
		},
	},
	"report_player": {
		Key:         "report_player",
		Code:        "REP-PLAYER",
		Label:       "Report Player",
		Title:       "Report Player Ticket",
		Description: "Report a rule violation. Valid evidence is required and false reports are penalised.",
		Color:       0xED4245,
		Emoji:       "🚨",
		Inputs: []Input{
			{ID: "player_name", Label: "Reported Player", Style: discordgo.TextInputShort, Required: true, MaxLength: 100},
			{ID: "reason", Label: "Reason / Timeline", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
		},
	},
	"report_bug": {
		Key:         "report_bug",
		Code:        "BUG",
		Label:       "Report Bug",
		Title:       "Bug Report Ticket",
		Description: "Describe the bug, how to reproduce it and when it happened.",
		Color:       0xFEE75C,
		Emoji:       "🐛",
		Inputs: []Input{
			{ID: "bug_detail", Label: "Bug Details", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
			{ID: "proof_link", Label: "Proof Link (Screenshot/Video)", Style: discordgo.TextInputShort, MaxLength: 200},
		},
	},
	"report_staff": {
		Key:         "report_staff",
		Code:        "REP-STAFF",
		Label:       "Report Staff",
		Title:       "Report Staff Ticket",
		Description: "Report abuse of power or unprofessional behaviour. Handled privately by management.",
		Color:       0xED4245,
		Emoji:       "👮",
		Inputs: []Input{
			{ID: "staff_name", Label: "Staff Name", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
			{ID: "issue", Label: "Issue", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
			{ID: "proof_link", Label: "Proof Link (Screenshot/Video)", Style: discordgo.TextInputShort, MaxLength: 200},
		},
	},
	"cs": {
		Key:         "cs",
		Code:        "CS",
		Label:       "Character Story",
		Title:       "Character Story Ticket",
		Description: "Request a change to your character's name or story. Requires admin approval.",
		Color:       0x5865F2,
		Emoji:       "📖",
		Inputs: []Input{
			{ID: "ucp_name", Label: "UCP Name", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
			{ID: "character_name", Label: "Character Name", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
		},
	},
	"ck": {
		Key:         "ck",
		Code:        "CK",
		Label:       "Character Killed",
		Title:       "Character Killed Ticket",
		Description: "Your character was permanently killed and you want a new one.",
		Color:       0xEB459E,
		Emoji:       "💀",
		Inputs: []Input{
			{ID: "ucp_name", Label: "UCP Name", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
			{ID: "old_character", Label: "Old Character (killed)", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
			{ID: "new_character", Label: "New Character (requested)", Style: discordgo.TextInputShort, Required: true, MaxLength: 100, Inline: true},
		},
	},
}

// typeOrder is the order buttons appear on the combined panel.
var typeOrder = []string{"donate", "report_player", "report_bug", "report_staff", "cs", "ck"}

// Lookup returns the ticket type registered under key.
func Lookup(key string) (Type, bool) {
	t, ok := types[key]
	return t, ok
}

// Keys lists the known ticket types in panel order.
func Keys() []string {
	out := make([]string, len(typeOrder))
	copy(out, typeOrder)
	return out
}
