package bot

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"tempo/discordutils"
	"tempo/events"
	"tempo/timeutils"
)

var (
	dmPermission    = false
	adminPermission = int64(discordgo.PermissionAdministrator)
)

var botCommands = []*discordgo.ApplicationCommand{
	{
		Name:                     "setrole",
		Description:              "Set the notification role",
		DMPermission:             &dmPermission,
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        "role",
				Description: "Role to mention",
				Required:    true,
			},
		},
	}, {
		Name:                     "setchannel",
		Description:              "Set the notification channel",
		DMPermission:             &dmPermission,
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "Channel to send reminders",
				Required:     true,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			},
		},
	}, {
		Name:         "createevent",
		Description:  "Create a new event",
		DMPermission: &dmPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "Event name",
				Required:    true,
			},
			{
				Type: discordgo.ApplicationCommandOptionString,
				Name: "time",
				Description: fmt.Sprintf(
					"Event time (e.g. %v or %v)",
					timeutils.TimeOnlyExample,
					timeutils.DateTimeExample,
				),
				Required: true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "timezone",
				Description: "Your timezone (e.g. Europe/London)",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "description",
				Description: "Description of event",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "link",
				Description: "Optional link for event",
			},
		},
	}, {
		Name:         "events",
		Description:  "View all upcoming events",
		DMPermission: &dmPermission,
	}, {
		Name:                     "deleteevent",
		Description:              "Delete an event by ID",
		DMPermission:             &dmPermission,
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "id",
				Description: "Event ID to delete",
				Required:    true,
			},
		},
	}, {
		Name:        "selecttimezone",
		Description: "Select your timezone from a dropdown menu",
	}, {
		Name:        "settimezone",
		Description: "Set your timezone by name",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "timezone",
				Description: "IANA timezone (e.g. America/New_York) or offset (e.g. UTC+3)",
				Required:    true,
			},
		},
	}, {
		Name:                     "say",
		Description:              "Send a message as the bot",
		DMPermission:             &dmPermission,
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Channel to send message",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "message",
				Description: "Message to send",
				Required:    true,
			},
		},
	}, {
		Name:        "ping",
		Description: "Check the bot's latency and heartbeat",
	},
}

const (
	replyNotAdmin        = "❌ You need administrator permissions."
	replyGuildOnly       = "❌ This command only works in a server."
	replyInvalidTime     = "❌ Invalid time format. Use:\n- `HH:mm` (e.g. 15:30) for today/tomorrow\n- `YYYY-MM-DD HH:mm` for full date"
	replyMissingRole     = "⚠️ First set notification role with /setrole"
	replyEventNotFound   = "❌ Event not found or does not belong to this server."
	replyInvalidTimezone = "❌ Invalid timezone. Use an IANA name like `Europe/London` or an offset like `UTC+3`."
)

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func commandOptions(i *discordgo.InteractionCreate) options {
	opts := options{}
	for _, opt := range i.ApplicationCommandData().Options {
		opts[opt.Name] = opt
	}
	return opts
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

// errorReply turns an operation error into the message shown to the user.
func errorReply(err error) string {
	switch {
	case errors.Is(err, timeutils.ErrInvalidTimeFormat):
		return replyInvalidTime
	case errors.Is(err, timeutils.ErrInvalidTimezone):
		return replyInvalidTimezone
	case errors.Is(err, events.ErrMissingConfiguration):
		return replyMissingRole
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}

func (bot *Bot) reply(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{
		Content: content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := discordutils.Respond(i.Interaction, bot.session, data); err != nil {
		bot.log.Warn("failed to respond to interaction",
			zap.String("interaction", i.ID),
			zap.Error(err),
		)
	}
}

func (bot *Bot) followup(i *discordgo.InteractionCreate, content string) {
	if err := discordutils.SendFollowup(content, i.Interaction, bot.session); err != nil {
		bot.log.Warn("failed to send followup",
			zap.String("interaction", i.ID),
			zap.Error(err),
		)
	}
}

// requireGuild replies and returns false when the interaction came from a DM.
func (bot *Bot) requireGuild(i *discordgo.InteractionCreate) bool {
	if i.GuildID == "" {
		bot.reply(i, replyGuildOnly, true)
		return false
	}
	return true
}

// requireAdmin replies and returns false when the member is not an admin.
func (bot *Bot) requireAdmin(i *discordgo.InteractionCreate) bool {
	if !bot.requireGuild(i) {
		return false
	}
	if !discordutils.MemberHasAdminPermissions(i) {
		bot.reply(i, replyNotAdmin, true)
		return false
	}
	return true
}

// SetRole sets the role mentioned in reminders of new events.
func (bot *Bot) SetRole(i *discordgo.InteractionCreate) {
	if !bot.requireAdmin(i) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	role := commandOptions(i)["role"].RoleValue(nil, "")
	if err := bot.events.SetNotificationRole(ctx, i.GuildID, role.ID); err != nil {
		bot.log.Error("set role failed", zap.String("guild", i.GuildID), zap.Error(err))
		bot.reply(i, fmt.Sprintf("Failed to set new role: %v", err), true)
		return
	}
	bot.reply(i, fmt.Sprintf("✅ Notification role set to: %v", role.Mention()), false)
}

// SetChannel sets the channel reminders are posted to.
func (bot *Bot) SetChannel(i *discordgo.InteractionCreate) {
	if !bot.requireAdmin(i) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	channel := commandOptions(i)["channel"].ChannelValue(nil)
	if err := bot.events.SetNotificationChannel(ctx, i.GuildID, channel.ID); err != nil {
		bot.log.Error("set channel failed", zap.String("guild", i.GuildID), zap.Error(err))
		bot.reply(i, fmt.Sprintf("Failed to set new channel: %v", err), true)
		return
	}
	bot.reply(i, fmt.Sprintf("✅ Notification channel set to: %v", channel.Mention()), false)
}

// CreateEvent creates an event from the command options.
func (bot *Bot) CreateEvent(i *discordgo.InteractionCreate) {
	if !bot.requireGuild(i) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	opts := commandOptions(i)
	req := events.CreateEventRequest{
		GuildID:     i.GuildID,
		Name:        opts.str("name"),
		RawTime:     opts.str("time"),
		Timezone:    opts.str("timezone"),
		Description: opts.str("description"),
		Link:        opts.str("link"),
	}

	event, err := bot.events.CreateEvent(ctx, req)
	if err != nil {
		if !errors.Is(err, timeutils.ErrInvalidTimeFormat) &&
			!errors.Is(err, events.ErrMissingConfiguration) {
			bot.log.Error("create event failed", zap.String("guild", i.GuildID), zap.Error(err))
		}
		bot.reply(i, errorReply(err), true)
		return
	}

	bot.reply(i, fmt.Sprintf(
		"✅ Event \"%v\" (ID: %v) created successfully for %v (%v)!",
		event.Name,
		event.ID,
		timeutils.FormatLocal(event.Time(), req.Timezone),
		req.Timezone,
	), false)
}

// Events lists the guild's upcoming events in the caller's timezone.
func (bot *Bot) Events(i *discordgo.InteractionCreate) {
	if !bot.requireGuild(i) {
		return
	}
	if err := discordutils.AckInteraction(i.Interaction, bot.session, false); err != nil {
		bot.log.Warn("failed to ack interaction", zap.Error(err))
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	user := discordutils.InvokingUser(i)
	listings, tz, err := bot.events.ListUpcomingFor(ctx, i.GuildID, user.ID)
	if err != nil {
		bot.log.Error("list events failed", zap.String("guild", i.GuildID), zap.Error(err))
		bot.followup(i, errorReply(err))
		return
	}

	embed := discordutils.RenderEventList(listings, tz)
	if err := discordutils.SendFollowupEmbed(embed, i.Interaction, bot.session); err != nil {
		bot.log.Warn("failed to send event list", zap.Error(err))
	}
}

// DeleteEvent deletes an event of this guild by ID.
func (bot *Bot) DeleteEvent(i *discordgo.InteractionCreate) {
	if !bot.requireAdmin(i) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	id := commandOptions(i)["id"].IntValue()
	if id <= 0 {
		bot.reply(i, replyEventNotFound, true)
		return
	}

	deleted, err := bot.events.DeleteEvent(ctx, uint(id), i.GuildID)
	if err != nil {
		bot.log.Error("delete event failed", zap.Int64("id", id), zap.Error(err))
		bot.reply(i, errorReply(err), true)
		return
	}
	if !deleted {
		bot.reply(i, replyEventNotFound, true)
		return
	}
	bot.reply(i, fmt.Sprintf("✅ Event ID:%v deleted successfully.", id), false)
}

// Say sends a message to a channel as the bot.
func (bot *Bot) Say(i *discordgo.InteractionCreate) {
	if !bot.requireAdmin(i) {
		return
	}

	opts := commandOptions(i)
	channel := opts["channel"].ChannelValue(nil)
	_, err := bot.session.ChannelMessageSend(channel.ID, opts.str("message"))
	if err != nil {
		bot.log.Warn("say failed", zap.String("channel", channel.ID), zap.Error(err))
		bot.reply(i, fmt.Sprintf("❌ Failed to send message: %v", err), true)
		return
	}
	bot.reply(i, "✅ Message sent!", true)
}

// Ping reports websocket heartbeat and interaction roundtrip latency.
func (bot *Bot) Ping(i *discordgo.InteractionCreate) {
	bot.reply(i, "Pinging...", false)

	sent, err := bot.session.InteractionResponse(i.Interaction)
	if err != nil {
		bot.log.Warn("failed to fetch ping response", zap.Error(err))
		return
	}
	created, err := discordgo.SnowflakeTimestamp(i.ID)
	if err != nil {
		bot.log.Warn("bad interaction id", zap.String("id", i.ID), zap.Error(err))
		return
	}

	content := fmt.Sprintf(
		"🏓 **Pong!**\n┕ **Websocket Heartbeat:** %vms\n┕ **Roundtrip Latency:** %vms",
		bot.session.HeartbeatLatency().Milliseconds(),
		sent.Timestamp.Sub(created).Milliseconds(),
	)
	_, err = bot.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		bot.log.Warn("failed to edit ping response", zap.Error(err))
	}
}
