package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/customid"
	"guildkeeper/internal/modules/booster"
	"guildkeeper/internal/modules/guild"
	"guildkeeper/internal/modules/moderation"
	"guildkeeper/internal/modules/snipe"
	"guildkeeper/internal/modules/tempvoice"
	"guildkeeper/internal/modules/ticket"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"
	"guildkeeper/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	genericFailure    = "Something went wrong. The error has been logged."
	missingPermission = "You don't have permission to use this."
	defaultDeadline   = "24 hours"
	defaultReportDays = 7
)

type allowFunc func(b *Bot, ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) bool

type handlerFunc func(b *Bot, ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID)

type route struct {
	allow  allowFunc
	handle handlerFunc
}

// routes maps every custom id kind to its guard and handler.
var routes = map[customid.Kind]route{
	customid.KindSpamDownload:    {needs(discordgo.PermissionModerateMembers), (*Bot).spamDownload},
	customid.KindSpamUntimeout:   {needs(discordgo.PermissionModerateMembers), (*Bot).spamUntimeout},
	customid.KindSpamBan:         {needs(discordgo.PermissionBanMembers), (*Bot).spamBan},
	customid.KindTicketOpen:      {anyone, (*Bot).ticketOpen},
	customid.KindTicketModal:     {anyone, (*Bot).ticketModal},
	customid.KindTicketJoin:      {staffOnly, (*Bot).ticketJoin},
	customid.KindTicketClaim:     {staffOnly, (*Bot).ticketClaim},
	customid.KindTicketClose:     {ownerOrStaff, (*Bot).ticketClose},
	customid.KindCloseAccept:     {staffOnly, (*Bot).closeAccept},
	customid.KindCloseDeny:       {staffOnly, (*Bot).closeDeny},
	customid.KindTicketReopen:    {staffOnly, (*Bot).ticketReopen},
	customid.KindBoosterClaim:    {anyone, (*Bot).boosterClaim},
	customid.KindTempVoice:       {anyone, (*Bot).tempVoiceButton},
	customid.KindTempVoiceModal:  {anyone, (*Bot).tempVoiceModal},
	customid.KindTempVoiceSelect: {anyone, (*Bot).tempVoiceSelect},
	customid.KindRulesModal:      {needs(discordgo.PermissionAdministrator), (*Bot).rulesModal},
}

func needs(perm int64) allowFunc {
	return func(_ *Bot, _ context.Context, ic *discordgo.InteractionCreate, _ customid.ID) bool {
		return hasPermission(ic, perm)
	}
}

func anyone(*Bot, context.Context, *discordgo.InteractionCreate, customid.ID) bool { return true }

func staffOnly(b *Bot, ctx context.Context, ic *discordgo.InteractionCreate, _ customid.ID) bool {
	return b.isStaff(ctx, ic)
}

func ownerOrStaff(b *Bot, ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) bool {
	return actorOf(ic).ID == id.UserID || b.isStaff(ctx, ic)
}

func actorOf(ic *discordgo.InteractionCreate) *discordgo.User {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User
	}
	if ic.User != nil {
		return ic.User
	}
	return &discordgo.User{}
}

func hasPermission(ic *discordgo.InteractionCreate, perm int64) bool {
	if ic.Member == nil {
		return false
	}
	perms := ic.Member.Permissions
	return perms&discordgo.PermissionAdministrator != 0 || perms&perm == perm
}

// isStaff accepts members who can manage threads or hold the support role.
func (b *Bot) isStaff(ctx context.Context, ic *discordgo.InteractionCreate) bool {
	if hasPermission(ic, discordgo.PermissionManageThreads) {
		return true
	}
	if ic.Member == nil {
		return false
	}
	support := b.settings.Guild(ctx, ic.GuildID).SupportRoleID
	if support == "" {
		return false
	}
	for _, roleID := range ic.Member.Roles {
		if roleID == support {
			return true
		}
	}
	return false
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.GuildID == "" {
		b.respond(ic, ui.Reply("This bot only works inside a server."))
		return
	}
	ctx := context.Background()
	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		name := ic.ApplicationCommandData().Name
		defer b.metrics.StartInteraction("command")()
		b.handleCommand(ctx, ic, name)
	case discordgo.InteractionMessageComponent:
		b.dispatch(ctx, ic, ic.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		b.dispatch(ctx, ic, ic.ModalSubmitData().CustomID)
	}
}

func (b *Bot) dispatch(ctx context.Context, ic *discordgo.InteractionCreate, raw string) {
	id, err := customid.Parse(raw)
	if err != nil {
		b.logger.Debug("unknown custom id", zap.String("custom_id", raw))
		return
	}
	r, ok := routes[id.Kind]
	if !ok {
		b.logger.Warn("unrouted custom id", zap.String("kind", id.Kind.String()))
		return
	}
	defer b.metrics.StartInteraction(id.Kind.String())()
	if !r.allow(b, ctx, ic, id) {
		b.respond(ic, ui.Reply(missingPermission))
		return
	}
	r.handle(b, ctx, ic, id)
}

func (b *Bot) respond(ic *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) {
	if err := b.session.InteractionRespond(ic.Interaction, resp); err != nil {
		b.logger.Warn("interaction response failed", zap.String("interaction_id", ic.ID), zap.Error(err))
	}
}

// deferReply acknowledges a slow interaction with an ephemeral placeholder.
func (b *Bot) deferReply(ic *discordgo.InteractionCreate) bool {
	err := b.session.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("interaction defer failed", zap.String("interaction_id", ic.ID), zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) edit(ic *discordgo.InteractionCreate, content string) {
	if _, err := b.session.InteractionResponseEdit(ic.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.logger.Warn("interaction edit failed", zap.String("interaction_id", ic.ID), zap.Error(err))
	}
}

func (b *Bot) editEmbed(ic *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := b.session.InteractionResponseEdit(ic.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		b.logger.Warn("interaction edit failed", zap.String("interaction_id", ic.ID), zap.Error(err))
	}
}

// userMessage maps a validation error from any module to its reply.
func userMessage(err error) (string, bool) {
	for _, describe := range []func(error) (string, bool){moderation.Describe, ticket.Describe, guild.Describe} {
		if msg, ok := describe(err); ok {
			return msg, true
		}
	}
	return "", false
}

// failure turns err into the reply for the actor. Unexpected errors are
// reported unless the module already did.
func (b *Bot) failure(ctx context.Context, ic *discordgo.InteractionCreate, scope string, err error, reported bool) string {
	if msg, ok := userMessage(err); ok {
		return "❌ " + msg
	}
	if reported {
		b.logger.Warn(scope, zap.String("guild_id", ic.GuildID), zap.Error(err))
	} else {
		b.reportError(ctx, ic.GuildID, scope, err, map[string]string{"actor": actorOf(ic).ID})
	}
	return "❌ " + genericFailure
}

// options indexes command options by name.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(list []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(list))
	for _, opt := range list {
		out[opt.Name] = opt
	}
	return out
}

func (o options) string(name, fallback string) string {
	if opt, ok := o[name]; ok {
		if value := strings.TrimSpace(opt.StringValue()); value != "" {
			return value
		}
	}
	return fallback
}

func (o options) int(name string, fallback int) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return fallback
}

// id returns the snowflake of a user, channel or role option.
func (o options) id(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	if value, ok := opt.Value.(string); ok {
		return value
	}
	return ""
}

var moderationVerbs = map[string]string{
	"ban":       "Banned",
	"kick":      "Kicked",
	"timeout":   "Timed out",
	"untimeout": "Removed the timeout of",
	"warn":      "Warned",
	"softban":   "Softbanned",
}

func (b *Bot) handleCommand(ctx context.Context, ic *discordgo.InteractionCreate, name string) {
	opts := optionsOf(ic.ApplicationCommandData().Options)
	switch name {
	case "ban", "kick", "timeout", "untimeout", "warn", "softban":
		b.moderate(ctx, ic, name, opts)
	case "warnings":
		b.warnings(ctx, ic, opts)
	case "purge":
		b.purge(ctx, ic, opts)
	case "setup-ticket":
		b.setupTicket(ctx, ic, opts)
	case "close-request":
		b.closeRequest(ctx, ic, opts)
	case "ticket-add":
		b.ticketAdd(ctx, ic, opts)
	case "tempvoice-setup":
		b.tempVoiceSetup(ctx, ic)
	case "tempvoice-panel":
		b.tempVoicePanel(ctx, ic)
	case "setup-welcome":
		b.setupWelcome(ctx, ic, opts)
	case "setup-booster-log":
		b.setupBoosterLog(ctx, ic, opts)
	case "setup-alerts":
		b.setupAlerts(ctx, ic, opts)
	case "domain":
		b.domain(ctx, ic, opts)
	case "report":
		b.report(ctx, ic, opts)
	case "rules-setup":
		b.rulesSetup(ctx, ic, opts)
	case "edit-rules":
		b.editRules(ctx, ic, opts)
	case "serverinfo":
		b.serverInfo(ctx, ic)
	case "snipe":
		b.snipeCommand(ctx, ic)
	case "check-ghost-ping":
		b.checkGhostPing(ctx, ic)
	default:
		b.respond(ic, ui.Reply("Unknown command."))
	}
}

func (b *Bot) require(ic *discordgo.InteractionCreate, perm int64) bool {
	if hasPermission(ic, perm) {
		return true
	}
	b.respond(ic, ui.Reply(missingPermission))
	return false
}

func (b *Bot) moderate(ctx context.Context, ic *discordgo.InteractionCreate, action string, opts options) {
	req := moderation.Request{
		GuildID:  ic.GuildID,
		ActorID:  actorOf(ic).ID,
		TargetID: opts.id("user"),
		Reason:   opts.string("reason", ""),
	}
	if !b.deferReply(ic) {
		return
	}
	var err error
	switch action {
	case "ban":
		err = b.moderation.Ban(ctx, req, opts.int("delete_days", 0))
	case "kick":
		err = b.moderation.Kick(ctx, req)
	case "timeout":
		err = b.moderation.Timeout(ctx, req, time.Duration(opts.int("duration", 0))*time.Minute)
	case "untimeout":
		err = b.moderation.Untimeout(ctx, req)
	case "warn":
		_, err = b.moderation.Warn(ctx, req)
	case "softban":
		err = b.moderation.Softban(ctx, req, opts.int("delete_days", 0))
	}
	if err != nil {
		b.edit(ic, b.failure(ctx, ic, "command_"+action, err, true))
		return
	}
	b.edit(ic, fmt.Sprintf("✅ %s %s.", moderationVerbs[action], ui.Mention(req.TargetID)))
}

func (b *Bot) warnings(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	target := opts.id("user")
	if !b.deferReply(ic) {
		return
	}
	records, err := b.moderation.Warnings(ctx, ic.GuildID, actorOf(ic).ID, target)
	if err != nil {
		b.edit(ic, b.failure(ctx, ic, "command_warnings", err, false))
		return
	}
	b.editEmbed(ic, b.moderation.WarningsEmbed(target, records))
}

func (b *Bot) purge(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.deferReply(ic) {
		return
	}
	deleted, err := b.moderation.Purge(ctx, ic.GuildID, actorOf(ic).ID, ic.ChannelID, opts.int("amount", 0), opts.id("user"))
	if err != nil {
		b.edit(ic, b.failure(ctx, ic, "command_purge", err, true))
		return
	}
	b.edit(ic, fmt.Sprintf("🧹 Deleted %d message(s).", deleted))
}

func (b *Bot) setupTicket(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionManageServer) {
		return
	}
	key := opts.string("type", "all")
	if key == "all" {
		key = ""
	}
	panel, err := b.tickets.Panel(key)
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_setup_ticket", err, false)))
		return
	}
	if logChannel := opts.id("log_channel"); logChannel != "" {
		if err := b.settings.Update(ctx, ic.GuildID, func(s *storage.GuildSettings) { s.StaffLogChannel = logChannel }); err != nil {
			b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_setup_ticket", err, false)))
			return
		}
	}
	if _, err := b.session.ChannelMessageSendComplex(ic.ChannelID, panel, discordgo.WithContext(ctx)); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_setup_ticket", err, false)))
		return
	}
	b.respond(ic, ui.Reply("✅ Ticket panel posted."))
}

func (b *Bot) closeRequest(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	resp, err := b.tickets.CloseRequest(ctx, ic.ChannelID, actorOf(ic).ID, opts.string("reason", ""), opts.string("deadline", defaultDeadline))
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_close_request", err, false)))
		return
	}
	b.respond(ic, resp)
}

func (b *Bot) ticketAdd(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.isStaff(ctx, ic) {
		b.respond(ic, ui.Reply(missingPermission))
		return
	}
	target := opts.id("user")
	if err := b.tickets.Add(ctx, ic.GuildID, ic.ChannelID, actorOf(ic).ID, target); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_ticket_add", err, false)))
		return
	}
	b.respond(ic, ui.Announce(fmt.Sprintf("✅ %s has been added to the ticket.", ui.Mention(target))))
}

func (b *Bot) tempVoiceSetup(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !b.require(ic, discordgo.PermissionManageChannels) {
		return
	}
	if !b.deferReply(ic) {
		return
	}
	result, err := b.tempvoice.Setup(ctx, ic.GuildID)
	if err != nil {
		b.edit(ic, b.failure(ctx, ic, "command_tempvoice_setup", err, false))
		return
	}
	b.edit(ic, fmt.Sprintf("✅ Temp voice is ready. Join %s to create a channel; controls are in %s.",
		ui.ChannelMention(result.GeneratorID), ui.ChannelMention(result.InterfaceID)))
}

func (b *Bot) tempVoicePanel(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !b.require(ic, discordgo.PermissionManageChannels) {
		return
	}
	if _, err := b.session.ChannelMessageSendComplex(ic.ChannelID, b.tempvoice.Panel(), discordgo.WithContext(ctx)); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_tempvoice_panel", err, false)))
		return
	}
	b.respond(ic, ui.Reply("✅ Control panel posted."))
}

func (b *Bot) setupWelcome(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionManageServer) {
		return
	}
	channel := opts.id("channel")
	if err := b.welcome.Configure(ctx, ic.GuildID, channel, opts.id("rules_channel")); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_setup_welcome", err, false)))
		return
	}
	b.respond(ic, ui.Reply(fmt.Sprintf("✅ Welcome messages will be posted in %s.", ui.ChannelMention(channel))))
}

func (b *Bot) setupBoosterLog(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionManageServer) {
		return
	}
	channel := opts.id("channel")
	if err := b.booster.Configure(ctx, ic.GuildID, channel, opts.string("media_url", "")); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_setup_booster_log", err, false)))
		return
	}
	b.respond(ic, ui.Reply(fmt.Sprintf("✅ Boost announcements will be posted in %s.", ui.ChannelMention(channel))))
}

func (b *Bot) setupAlerts(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionManageServer) {
		return
	}
	alert, errorLog, support := opts.id("alert_channel"), opts.id("error_channel"), opts.id("support_role")
	err := b.settings.Update(ctx, ic.GuildID, func(s *storage.GuildSettings) {
		s.AlertChannel = alert
		if errorLog != "" {
			s.ErrorLogChannel = errorLog
		}
		if support != "" {
			s.SupportRoleID = support
		}
	})
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_setup_alerts", err, false)))
		return
	}
	b.respond(ic, ui.Reply(fmt.Sprintf("✅ Alerts will be posted in %s.", ui.ChannelMention(alert))))
}

func (b *Bot) domain(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionManageServer) {
		return
	}
	allow := opts.string("list", "") == "allow"
	action := opts.string("action", "")
	domain := ""
	if raw := opts.string("domain", ""); raw != "" {
		if _, host, err := utils.NormalizeURL(raw); err == nil {
			domain = strings.TrimPrefix(host, "www.")
		}
	}
	if action != "list" && domain == "" {
		b.respond(ic, ui.Reply("A valid domain is required for add and remove."))
		return
	}

	var err error
	var reply string
	switch action {
	case "add":
		if allow {
			err = b.store.AddDomainAllow(ctx, ic.GuildID, domain)
		} else {
			err = b.store.AddDomainBlock(ctx, ic.GuildID, domain)
		}
		reply = fmt.Sprintf("✅ Added `%s`.", domain)
	case "remove":
		if allow {
			err = b.store.RemoveDomainAllow(ctx, ic.GuildID, domain)
		} else {
			err = b.store.RemoveDomainBlock(ctx, ic.GuildID, domain)
		}
		reply = fmt.Sprintf("✅ Removed `%s`.", domain)
	case "list":
		var domains []string
		if allow {
			domains, err = b.store.ListDomainAllow(ctx, ic.GuildID)
		} else {
			domains, err = b.store.ListDomainBlock(ctx, ic.GuildID)
		}
		reply = "The list is empty."
		if len(domains) > 0 {
			reply = ui.CodeBlock(strings.Join(domains, "\n"), ui.MaxEmbedFieldValue)
		}
	default:
		reply = "Unknown action."
	}
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_domain", err, false)))
		return
	}
	b.respond(ic, ui.Reply(reply))
}

func (b *Bot) report(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionManageServer) {
		return
	}
	since := time.Now().AddDate(0, 0, -opts.int("days", defaultReportDays))
	report, err := b.analytics.Report(ctx, ic.GuildID, since)
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_report", err, false)))
		return
	}
	b.respond(ic, ui.ReplyEmbed(report.Embed(b.cfg.EmbedColors.Action), true))
}

func (b *Bot) rulesSetup(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionAdministrator) {
		return
	}
	channel := opts.id("channel")
	if _, err := b.server.PostRules(ctx, ic.GuildID, channel, actorOf(ic).ID); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_rules_setup", err, false)))
		return
	}
	b.respond(ic, ui.Reply(fmt.Sprintf("✅ Rules panel sent to %s.", ui.ChannelMention(channel))))
}

func (b *Bot) editRules(ctx context.Context, ic *discordgo.InteractionCreate, opts options) {
	if !b.require(ic, discordgo.PermissionAdministrator) {
		return
	}
	modal, err := b.server.EditModal(ctx, ic.GuildID, opts.string("message_id", ""))
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_edit_rules", err, false)))
		return
	}
	b.respond(ic, modal)
}

func (b *Bot) rulesModal(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	values := ui.ModalValues(ic.ModalSubmitData().Components)
	if err := b.server.SaveRules(ctx, ic.GuildID, id.MessageID, actorOf(ic).ID, values); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "rules_edit", err, false)))
		return
	}
	b.respond(ic, ui.Reply("✅ Rules message updated."))
}

func (b *Bot) serverInfo(ctx context.Context, ic *discordgo.InteractionCreate) {
	g, counts, err := b.state.Counts(ic.GuildID)
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "command_serverinfo", err, false)))
		return
	}
	b.respond(ic, ui.ReplyEmbed(guild.InfoEmbed(g, counts, b.cfg.EmbedColors.Action, time.Now()), false))
}

func (b *Bot) snipeCommand(_ context.Context, ic *discordgo.InteractionCreate) {
	embed, err := b.snipe.SnipeEmbed(ic.ChannelID)
	if err != nil {
		b.respond(ic, ui.Reply("There is no recently deleted message in this channel."))
		return
	}
	b.respond(ic, ui.ReplyEmbed(embed, true))
}

func (b *Bot) checkGhostPing(ctx context.Context, ic *discordgo.InteractionCreate) {
	if !b.deferReply(ic) {
		return
	}
	embed, err := b.snipe.GhostPingEmbed(ctx, ic.GuildID, actorOf(ic).ID)
	switch {
	case errors.Is(err, snipe.ErrNothing):
		b.edit(ic, "No ghost pings found where you were mentioned.")
	case err != nil:
		b.edit(ic, b.failure(ctx, ic, "command_check_ghost_ping", err, false))
	default:
		b.editEmbed(ic, embed)
	}
}

func (b *Bot) spamDownload(_ context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	incident, err := b.antispam.Incident(id.UserID, id.MessageID)
	if err != nil {
		b.respond(ic, ui.Reply("Incident details are no longer available."))
		return
	}
	b.respond(ic, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("Spam incident for %s", ui.Mention(id.UserID)),
			Flags:   discordgo.MessageFlagsEphemeral,
			Files: []*discordgo.File{{
				Name:        fmt.Sprintf("spam-%s-%s.txt", id.UserID, id.MessageID),
				ContentType: "text/plain",
				Reader:      strings.NewReader(incident.Report()),
			}},
		},
	})
}

func (b *Bot) spamUntimeout(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	if err := b.antispam.Untimeout(ctx, ic.GuildID, actorOf(ic).ID, id.UserID); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "anti_spam_untimeout", err, false)))
		return
	}
	b.respond(ic, ui.Reply(fmt.Sprintf("✅ Timeout removed for %s.", ui.Mention(id.UserID))))
}

func (b *Bot) spamBan(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	if err := b.antispam.Ban(ctx, ic.GuildID, actorOf(ic).ID, id.UserID); err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "anti_spam_ban", err, false)))
		return
	}
	b.respond(ic, ui.Reply(fmt.Sprintf("✅ %s has been banned.", ui.Mention(id.UserID))))
}

func (b *Bot) ticketOpen(_ context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	b.respond(ic, b.tickets.Modal(id.Arg))
}

func (b *Bot) ticketModal(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	if !b.deferReply(ic) {
		return
	}
	actor := actorOf(ic)
	values := ui.ModalValues(ic.ModalSubmitData().Components)
	thread, err := b.tickets.Open(ctx, ticket.Opener{
		GuildID:   ic.GuildID,
		ChannelID: ic.ChannelID,
		UserID:    actor.ID,
		Username:  actor.Username,
	}, id.Arg, values)
	if err != nil {
		b.edit(ic, b.failure(ctx, ic, "ticket_open", err, true))
		return
	}
	b.edit(ic, fmt.Sprintf("✅ Your ticket has been created: %s", ui.ChannelMention(thread.ID)))
}

func (b *Bot) ticketJoin(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	if !b.deferReply(ic) {
		return
	}
	if err := b.tickets.Join(ctx, ic.GuildID, id.ThreadID, actorOf(ic).ID); err != nil {
		b.edit(ic, b.failure(ctx, ic, "ticket_join", err, true))
		return
	}
	b.edit(ic, fmt.Sprintf("✅ You joined %s.", ui.ChannelMention(id.ThreadID)))
}

func (b *Bot) ticketClaim(ctx context.Context, ic *discordgo.InteractionCreate, _ customid.ID) {
	resp, err := b.tickets.Claim(ctx, ic.GuildID, ic.ChannelID, actorOf(ic).ID, ic.Message)
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "ticket_claim", err, false)))
		return
	}
	b.respond(ic, resp)
}

func (b *Bot) ticketClose(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	if !b.deferReply(ic) {
		return
	}
	err := b.tickets.Close(ctx, ticket.Closure{GuildID: ic.GuildID, ThreadID: ic.ChannelID, ActorID: actorOf(ic).ID, OwnerID: id.UserID})
	if err != nil {
		b.edit(ic, b.failure(ctx, ic, "ticket_close", err, true))
		return
	}
	b.edit(ic, "🔒 Ticket closed.")
}

// closeAccept answers the request first; the close runs after because the
// archived thread no longer accepts the response.
func (b *Bot) closeAccept(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	actor := actorOf(ic).ID
	b.respond(ic, b.tickets.Decision(actor, true))
	err := b.tickets.Close(ctx, ticket.Closure{GuildID: ic.GuildID, ThreadID: ic.ChannelID, ActorID: actor, OwnerID: id.UserID})
	if err != nil {
		b.failure(ctx, ic, "ticket_close", err, true)
	}
}

func (b *Bot) closeDeny(_ context.Context, ic *discordgo.InteractionCreate, _ customid.ID) {
	b.respond(ic, b.tickets.Decision(actorOf(ic).ID, false))
}

func (b *Bot) ticketReopen(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	resp, err := b.tickets.Reopen(ctx, ic.GuildID, ic.ChannelID, actorOf(ic).ID, id.UserID)
	if err != nil {
		b.respond(ic, ui.Reply(b.failure(ctx, ic, "ticket_reopen", err, true)))
		return
	}
	b.respond(ic, resp)
}

func (b *Bot) boosterClaim(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	err := b.booster.Claim(ctx, ic.GuildID, actorOf(ic).ID, id.UserID)
	if err != nil && !errors.Is(err, booster.ErrNotYours) && !errors.Is(err, booster.ErrAlreadyClaimed) && !errors.Is(err, booster.ErrNotEnoughBoosts) {
		b.reportError(ctx, ic.GuildID, "booster_claim", err, map[string]string{"user": id.UserID})
	}
	b.respond(ic, ui.Reply(booster.Describe(err)))
}

func (b *Bot) tempVoiceButton(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	b.respond(ic, b.tempvoice.HandleButton(ctx, ic.GuildID, actorOf(ic).ID, id.Arg))
}

func (b *Bot) tempVoiceModal(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	value := ui.ModalValues(ic.ModalSubmitData().Components)[tempvoice.ModalField]
	b.respond(ic, b.tempvoice.HandleModal(ctx, ic.GuildID, actorOf(ic).ID, id.Arg, value))
}

func (b *Bot) tempVoiceSelect(ctx context.Context, ic *discordgo.InteractionCreate, id customid.ID) {
	b.respond(ic, b.tempvoice.HandleSelect(ctx, ic.GuildID, actorOf(ic).ID, id.Arg, ic.MessageComponentData().Values))
}
