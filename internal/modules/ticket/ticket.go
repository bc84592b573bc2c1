// Package ticket runs support tickets as private threads under the panel
// channel.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/customid"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	closedPrefix   = "[CLOSED] - "
	handledByField = "✋ Handled by"
	codeSuffixLen  = 6
	previewFields  = 2
	previewLength  = 100
)

var closedPattern = regexp.MustCompile(`^\[CLOSED\]\s*-\s*`)

var (
	ErrUnknownType = errors.New("ticket: unknown ticket type")
	ErrNotThread   = errors.New("ticket: not a ticket thread")
	ErrNotText     = errors.New("ticket: tickets can only be opened from a text channel")
	ErrClaimed     = errors.New("ticket: already claimed")
)

type Platform interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ThreadStartComplex(channelID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ThreadMemberAdd(threadID, memberID string, options ...discordgo.RequestOption) error
	ThreadMemberRemove(threadID, memberID string, options ...discordgo.RequestOption) error
	ChannelEditComplex(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Settings interface {
	Guild(ctx context.Context, guildID string) storage.GuildSettings
}

type Module struct {
	platform Platform
	settings Settings
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *zap.Logger
	colors   config.EmbedColors
	cfg      config.TicketConfig
	now      func() time.Time
}

type Options struct {
	Settings Settings
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Colors   config.EmbedColors
	Config   config.TicketConfig
}

func New(platform Platform, opts Options) *Module {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		platform: platform,
		settings: opts.Settings,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   logger,
		colors:   opts.Colors,
		cfg:      opts.Config,
		now:      time.Now,
	}
}

// ThreadName is the name of a newly opened ticket thread.
func ThreadName(code, username string) string {
	return ui.Truncate(code+" - "+username, ui.MaxChannelName)
}

// Code is the short reference staff use for a ticket.
func Code(t Type, threadID string) string {
	suffix := threadID
	if len(suffix) > codeSuffixLen {
		suffix = suffix[len(suffix)-codeSuffixLen:]
	}
	return t.Code + "-" + suffix
}

// ClosedName marks name as closed, never stacking the prefix.
func ClosedName(name string) string {
	return ui.Truncate(closedPrefix+OpenName(name), ui.MaxChannelName)
}

// OpenName strips the closed marker from name.
func OpenName(name string) string {
	return closedPattern.ReplaceAllString(name, "")
}

// typeFromName recovers the ticket type from a thread name for metrics.
func typeFromName(name string) string {
	code, _, ok := strings.Cut(OpenName(name), " - ")
	if !ok {
		return "unknown"
	}
	for key, t := range types {
		if t.Code == code {
			return key
		}
	}
	return "unknown"
}

// Panel builds the message users click to open a ticket. An empty key
// offers every type.
func (m *Module) Panel(key string) (*discordgo.MessageSend, error) {
	if key != "" {
		t, ok := Lookup(key)
		if !ok {
			return nil, ErrUnknownType
		}
		embed := ui.Card{
			Title:       t.Emoji + " " + t.Label,
			Description: t.Description + "\n\nClick the button below to open a ticket.",
			Color:       t.Color,
		}.Embed()
		return ui.Message(embed, ui.Row(openButton(t))), nil
	}

	var b strings.Builder
	b.WriteString("Choose the kind of ticket you need. A private thread will be opened for you and staff.\n\n")
	rows := make([]discordgo.ActionsRow, 0, 2)
	var buttons []discordgo.MessageComponent
	for _, k := range typeOrder {
		t := types[k]
		fmt.Fprintf(&b, "%s **%s**: %s\n", t.Emoji, t.Label, t.Description)
		buttons = append(buttons, openButton(t))
		if len(buttons) == 5 {
			rows = append(rows, ui.Row(buttons...))
			buttons = nil
		}
	}
	if len(buttons) > 0 {
		rows = append(rows, ui.Row(buttons...))
	}
	embed := ui.Card{Title: "🎫 Support Tickets", Description: strings.TrimSpace(b.String()), Color: m.colors.Action}.Embed()
	return ui.Message(embed, rows...), nil
}

func openButton(t Type) discordgo.Button {
	return ui.Secondary(t.Emoji+" "+t.Label, customid.TicketOpen(t.Key).String())
}

// Modal asks the questions for a ticket type.
func (m *Module) Modal(key string) *discordgo.InteractionResponse {
	t, ok := Lookup(key)
	if !ok {
		return ui.Reply("Unknown ticket type.")
	}
	rows := make([]discordgo.ActionsRow, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		rows = append(rows, ui.TextInput(in.ID, in.Label, "", in.Style, in.Required, in.MaxLength))
	}
	return ui.Modal(customid.TicketModal(key).String(), ui.Truncate(t.Emoji+" "+t.Title, 45), rows...)
}

// Answers renders modal values as embed fields in question order.
func Answers(t Type, values map[string]string) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		value := strings.TrimSpace(values[in.ID])
		if value == "" {
			value = "None"
		}
		fields = append(fields, ui.Field(in.Label, value, in.Inline))
	}
	return fields
}

// ActionRow holds the claim and close buttons of an open ticket.
func ActionRow(threadID, ownerID string) discordgo.ActionsRow {
	return ui.Row(
		ui.Secondary("✋ Claim Ticket", customid.TicketClaim(threadID).String()),
		ui.Secondary("🔒 Close Ticket", customid.TicketClose(ownerID).String()),
	)
}

// Opener is the member submitting a ticket modal and where they did it.
type Opener struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
}

// Open creates the private thread for a submitted ticket modal.
func (m *Module) Open(ctx context.Context, o Opener, key string, values map[string]string) (*discordgo.Channel, error) {
	t, ok := Lookup(key)
	if !ok {
		return nil, ErrUnknownType
	}
	parent, err := m.platform.Channel(o.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("load panel channel: %w", err)
	}
	if parent.Type != discordgo.ChannelTypeGuildText {
		return nil, ErrNotText
	}

	thread, err := m.platform.ThreadStartComplex(o.ChannelID, &discordgo.ThreadStart{
		Name:                ThreadName(t.Code, o.Username),
		AutoArchiveDuration: m.cfg.AutoArchiveMinutes,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
	}, discordgo.WithContext(ctx), discordgo.WithAuditLogReason("Ticket created by "+o.Username))
	if err != nil {
		m.reportError(ctx, o.GuildID, "ticket_open", err, map[string]string{"user": o.UserID, "type": key})
		return nil, fmt.Errorf("start thread: %w", err)
	}
	if err := m.platform.ThreadMemberAdd(thread.ID, o.UserID, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, o.GuildID, "ticket_add_owner", err, map[string]string{"user": o.UserID, "thread": thread.ID})
		return nil, fmt.Errorf("add owner: %w", err)
	}

	answers := Answers(t, values)
	embed := ui.Card{
		Title: t.Emoji + " " + t.Title,
		Description: fmt.Sprintf("**Ticket Owner:** %s\n**Created:** %s",
			ui.Mention(o.UserID), ui.Timestamp(m.now(), "F")),
		Color:     t.Color,
		Fields:    answers,
		Footer:    "Ticket ID: " + thread.ID,
		Timestamp: m.now(),
	}.Embed()
	if _, err := m.platform.ChannelMessageSendComplex(thread.ID, ui.Message(embed, ActionRow(thread.ID, o.UserID)), discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, o.GuildID, "ticket_send", err, map[string]string{"thread": thread.ID})
	}
	if t.Key == "donate" && m.cfg.PaymentInfo != "" {
		payment := ui.Card{Title: "💳 Payment Methods", Description: m.cfg.PaymentInfo, Color: t.Color, Timestamp: m.now()}.Embed()
		if _, err := m.platform.ChannelMessageSendComplex(thread.ID, ui.Message(payment), discordgo.WithContext(ctx)); err != nil {
			m.logger.Warn("payment info not sent", zap.String("thread_id", thread.ID), zap.Error(err))
		}
	}

	m.staffLog(ctx, o.GuildID, m.openedLog(t, o.UserID, thread.ID, answers), ui.Row(
		ui.Secondary("🚀 Join Ticket", customid.TicketJoin(thread.ID).String()),
	))

	m.metrics.RecordTicket(key, "open")
	m.auditLog(ctx, o.GuildID, o.UserID, "ticket_open", fmt.Sprintf("type=%s thread=%s", key, thread.ID))
	return thread, nil
}

func (m *Module) openedLog(t Type, userID, threadID string, answers []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		ui.Field("Ticket Code", "`"+Code(t, threadID)+"`", true),
		ui.Field("Type", t.Title, true),
		ui.Field("Created By", ui.Mention(userID), true),
		ui.Field("Thread", ui.ChannelMention(threadID), false),
		ui.Field("Created", ui.Timestamp(m.now(), "R"), true),
	}
	if len(answers) > 0 {
		lines := make([]string, 0, previewFields)
		for i, answer := range answers {
			if i == previewFields {
				break
			}
			lines = append(lines, fmt.Sprintf("> **%s:** %s", answer.Name, ui.Truncate(answer.Value, previewLength)))
		}
		fields = append(fields, ui.Field("Preview", strings.Join(lines, "\n"), false))
	}
	return ui.Card{Title: "🎫 New Ticket Created", Color: t.Color, Fields: fields, Timestamp: m.now()}.Embed()
}

// Join adds a staff member to a ticket thread.
func (m *Module) Join(ctx context.Context, guildID, threadID, userID string) error {
	thread, err := m.thread(ctx, threadID)
	if err != nil {
		return err
	}
	if err := m.platform.ThreadMemberAdd(thread.ID, userID, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, guildID, "ticket_join", err, map[string]string{"user": userID, "thread": threadID})
		return fmt.Errorf("join thread: %w", err)
	}
	m.say(ctx, thread.ID, fmt.Sprintf("🚀 Staff %s has joined the ticket.", ui.Mention(userID)))
	m.metrics.RecordTicket(typeFromName(thread.Name), "join")
	return nil
}

// Add puts another member into the ticket thread.
func (m *Module) Add(ctx context.Context, guildID, threadID, actorID, userID string) error {
	thread, err := m.thread(ctx, threadID)
	if err != nil {
		return err
	}
	if err := m.platform.ThreadMemberAdd(thread.ID, userID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	m.auditLog(ctx, guildID, userID, "ticket_add", fmt.Sprintf("thread=%s by=%s", threadID, actorID))
	return nil
}

// Claim marks the ticket message as handled by actorID and disables its
// claim button. The returned response updates the clicked message.
func (m *Module) Claim(ctx context.Context, guildID, channelID, actorID string, msg *discordgo.Message) (*discordgo.InteractionResponse, error) {
	if msg == nil || len(msg.Embeds) == 0 {
		return nil, ErrNotThread
	}
	embed := *msg.Embeds[0]
	for _, field := range embed.Fields {
		if field.Name == handledByField {
			return nil, ErrClaimed
		}
	}
	embed.Fields = append(append([]*discordgo.MessageEmbedField{}, embed.Fields...), ui.Field(handledByField, ui.Mention(actorID), true))

	m.say(ctx, channelID, fmt.Sprintf("✋ Ticket claimed by %s", ui.Mention(actorID)))
	m.metrics.RecordTicket(typeFromTitle(embed.Title), "claim")
	m.auditLog(ctx, guildID, actorID, "ticket_claim", "thread="+channelID)
	return ui.Update([]*discordgo.MessageEmbed{&embed}, DisableButtons(msg.Components, customid.KindTicketClaim)), nil
}

func typeFromTitle(title string) string {
	for key, t := range types {
		if strings.HasSuffix(title, t.Title) {
			return key
		}
	}
	return "unknown"
}

// DisableButtons copies components, disabling every button of kind.
func DisableButtons(components []discordgo.MessageComponent, kind customid.Kind) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(components))
	for _, component := range components {
		var children []discordgo.MessageComponent
		switch row := component.(type) {
		case *discordgo.ActionsRow:
			children = row.Components
		case discordgo.ActionsRow:
			children = row.Components
		default:
			out = append(out, component)
			continue
		}
		rebuilt := make([]discordgo.MessageComponent, 0, len(children))
		for _, child := range children {
			var button discordgo.Button
			switch b := child.(type) {
			case *discordgo.Button:
				button = *b
			case discordgo.Button:
				button = b
			default:
				rebuilt = append(rebuilt, child)
				continue
			}
			if id, err := customid.Parse(button.CustomID); err == nil && id.Kind == kind {
				button.Disabled = true
			}
			rebuilt = append(rebuilt, button)
		}
		out = append(out, discordgo.ActionsRow{Components: rebuilt})
	}
	return out
}

// Closure names a ticket being closed, by whom and for whom.
type Closure struct {
	GuildID  string
	ThreadID string
	ActorID  string
	OwnerID  string
}

// Close removes the owner, renames, announces, logs, then archives and
// locks the thread. A failed rename is reported and skipped.
func (m *Module) Close(ctx context.Context, c Closure) error {
	thread, err := m.thread(ctx, c.ThreadID)
	if err != nil {
		return err
	}

	if c.OwnerID != "" && c.OwnerID != c.ActorID {
		if err := m.platform.ThreadMemberRemove(thread.ID, c.OwnerID, discordgo.WithContext(ctx)); err != nil {
			m.logger.Debug("ticket owner not removed", zap.String("thread_id", thread.ID), zap.String("owner_id", c.OwnerID), zap.Error(err))
		}
	}

	name := ClosedName(thread.Name)
	if name != thread.Name {
		if _, err := m.platform.ChannelEditComplex(thread.ID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
			m.reportError(ctx, c.GuildID, "ticket_rename", err, map[string]string{"thread": thread.ID, "name": name})
			name = thread.Name
		}
	}

	closed := ui.Card{
		Title:       "🔒 Ticket Closed",
		Description: fmt.Sprintf("Closed by %s.\n\nStaff can reopen this ticket with the button below.", ui.Mention(c.ActorID)),
		Color:       m.colors.Action,
		Timestamp:   m.now(),
	}.Embed()
	var rows []discordgo.ActionsRow
	if c.OwnerID != "" {
		rows = append(rows, ui.Row(ui.Secondary("🔓 Re-Open Ticket", customid.TicketReopen(c.OwnerID).String())))
	}
	if _, err := m.platform.ChannelMessageSendComplex(thread.ID, ui.Message(closed, rows...), discordgo.WithContext(ctx)); err != nil {
		m.logger.Warn("ticket close notice not sent", zap.String("thread_id", thread.ID), zap.Error(err))
	}

	link := fmt.Sprintf("https://discord.com/channels/%s/%s", c.GuildID, thread.ID)
	m.staffLog(ctx, c.GuildID, ui.Card{
		Title: "📕 Ticket Closed",
		Color: m.colors.Action,
		Fields: []*discordgo.MessageEmbedField{
			ui.Field("Ticket Name", name, false),
			ui.Field("Closed By", ui.Mention(c.ActorID), true),
			ui.Field("Ticket Owner", ui.Mention(c.OwnerID), true),
			ui.Field("Timestamp", ui.Timestamp(m.now(), "R"), false),
		},
		Timestamp: m.now(),
	}.Embed(), ui.Row(ui.Link("Jump to Thread", link)))

	yes := true
	if _, err := m.platform.ChannelEditComplex(thread.ID, &discordgo.ChannelEdit{Archived: &yes, Locked: &yes}, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, c.GuildID, "ticket_archive", err, map[string]string{"thread": thread.ID})
		return fmt.Errorf("archive thread: %w", err)
	}

	m.metrics.RecordTicket(typeFromName(thread.Name), "close")
	m.auditLog(ctx, c.GuildID, c.OwnerID, "ticket_close", fmt.Sprintf("thread=%s by=%s", thread.ID, c.ActorID))
	return nil
}

// CloseRequest asks the ticket participants to approve closing it.
func (m *Module) CloseRequest(ctx context.Context, channelID, requesterID, reason, deadline string) (*discordgo.InteractionResponse, error) {
	if _, err := m.thread(ctx, channelID); err != nil {
		return nil, err
	}
	embed := ui.Card{
		Title: "🔒 Close Request",
		Color: m.colors.Warning,
		Fields: []*discordgo.MessageEmbedField{
			ui.Field("Requested By", ui.Mention(requesterID), true),
			ui.Field("Response Deadline", strings.TrimSpace(deadline), true),
			ui.Field("Reason", strings.TrimSpace(reason), false),
		},
		Footer:    "Accept or deny this request",
		Timestamp: m.now(),
	}.Embed()
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Components: ui.Components(ui.Row(
				ui.Success("✅ Accept", customid.CloseAccept(requesterID).String()),
				ui.Danger("❌ Deny", customid.CloseDeny(requesterID).String()),
			)),
		},
	}, nil
}

// Decision replaces a close request with its outcome.
func (m *Module) Decision(actorID string, accepted bool) *discordgo.InteractionResponse {
	card := ui.Card{
		Title:       "✅ Close Request Accepted",
		Description: fmt.Sprintf("Accepted by %s.", ui.Mention(actorID)),
		Color:       m.colors.Success,
		Timestamp:   m.now(),
	}
	if !accepted {
		card.Title = "❌ Close Request Denied"
		card.Description = fmt.Sprintf("Denied by %s. The ticket stays open.", ui.Mention(actorID))
		card.Color = m.colors.Error
	}
	return ui.Update([]*discordgo.MessageEmbed{card.Embed()}, nil)
}

// Reopen undoes Close: unarchive, unlock, restore the name and the owner,
// and post fresh action buttons.
func (m *Module) Reopen(ctx context.Context, guildID, threadID, actorID, ownerID string) (*discordgo.InteractionResponse, error) {
	thread, err := m.thread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	no := false
	if _, err := m.platform.ChannelEditComplex(thread.ID, &discordgo.ChannelEdit{Archived: &no, Locked: &no}, discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, guildID, "ticket_unarchive", err, map[string]string{"thread": thread.ID})
		return nil, fmt.Errorf("unarchive thread: %w", err)
	}
	if name := OpenName(thread.Name); name != thread.Name {
		if _, err := m.platform.ChannelEditComplex(thread.ID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
			m.reportError(ctx, guildID, "ticket_rename", err, map[string]string{"thread": thread.ID, "name": name})
		}
	}

	restored := fmt.Sprintf("User %s has been added back.", ui.Mention(ownerID))
	if err := m.platform.ThreadMemberAdd(thread.ID, ownerID, discordgo.WithContext(ctx)); err != nil {
		m.logger.Debug("ticket owner not restored", zap.String("thread_id", thread.ID), zap.String("owner_id", ownerID), zap.Error(err))
		restored = fmt.Sprintf("User %s could not be added back. They may have left the server.", ui.Mention(ownerID))
	}

	m.metrics.RecordTicket(typeFromName(thread.Name), "reopen")
	m.auditLog(ctx, guildID, ownerID, "ticket_reopen", fmt.Sprintf("thread=%s by=%s", thread.ID, actorID))
	content := fmt.Sprintf("♻️ **Ticket Re-opened!**\n%s\nRe-opened by %s", restored, ui.Mention(actorID))
	return ui.Announce(content, ActionRow(thread.ID, ownerID)), nil
}

func (m *Module) thread(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	channel, err := m.platform.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	if !channel.IsThread() {
		return nil, ErrNotThread
	}
	return channel, nil
}

func (m *Module) say(ctx context.Context, channelID, content string) {
	if _, err := m.platform.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content}, discordgo.WithContext(ctx)); err != nil {
		m.logger.Debug("ticket notice not sent", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (m *Module) staffLog(ctx context.Context, guildID string, embed *discordgo.MessageEmbed, rows ...discordgo.ActionsRow) {
	if m.settings == nil {
		return
	}
	channelID := m.settings.Guild(ctx, guildID).StaffLogChannel
	if channelID == "" {
		m.logger.Debug("no staff log channel", zap.String("guild_id", guildID))
		return
	}
	if _, err := m.platform.ChannelMessageSendComplex(channelID, ui.Message(embed, rows...), discordgo.WithContext(ctx)); err != nil {
		m.reportError(ctx, guildID, "ticket_staff_log", err, map[string]string{"channel": channelID})
	}
}

func (m *Module) auditLog(ctx context.Context, guildID, userID, event, details string) {
	if m.audit != nil {
		m.audit.Log(ctx, audit.LevelInfo, guildID, userID, event, details)
	}
}

func (m *Module) reportError(ctx context.Context, guildID, scope string, err error, fields map[string]string) {
	if m.audit == nil {
		m.logger.Error(scope, zap.String("guild_id", guildID), zap.Error(err), zap.Any("fields", fields))
		return
	}
	m.audit.Error(ctx, guildID, scope, err, fields)
}

// Describe maps a validation error to the reply shown to the member.
func Describe(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrUnknownType):
		return "Unknown ticket type.", true
	case errors.Is(err, ErrNotThread):
		return "This can only be used inside a ticket thread.", true
	case errors.Is(err, ErrNotText):
		return "Tickets can only be opened from a text channel.", true
	case errors.Is(err, ErrClaimed):
		return "This ticket has already been claimed.", true
	}
	return "", false
}
