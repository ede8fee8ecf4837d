package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"tempo/assets"
	"tempo/autoreply"
	"tempo/events"
)

type commandHandler = func(*discordgo.InteractionCreate)

// Bot represents an instance of the event reminder discord bot.
type Bot struct {
	session            *discordgo.Session
	events             *events.Service
	log                *zap.Logger
	guildID            string
	registeredCommands []*discordgo.ApplicationCommand
	commandHandlers    map[string]commandHandler
	timezoneChoices    []assets.TimezoneChoice
	// nil when keyword replies are disabled
	replies *autoreply.Responder
}

func (bot *Bot) initSession(token string) error {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds
	if bot.replies != nil {
		session.Identify.Intents |= discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent
		session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			bot.MessageCreated(m)
		})
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		bot.log.Info("bot is up",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)),
		)
	})

	session.AddHandler(func(
		_ *discordgo.Session,
		i *discordgo.InteractionCreate,
	) {
		bot.dispatch(i)
	})

	// handlers may run as soon as Open returns
	bot.session = session
	if err := session.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

func (bot *Bot) dispatch(i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			bot.log.Error("interaction handler panicked", zap.Any("panic", r))
		}
	}()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		if handler, ok := bot.commandHandlers[name]; ok {
			handler(i)
		}
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == timezoneSelectorID {
			bot.TimezoneSelected(i)
		}
	}
}

func (bot *Bot) registerCommands() error {
	for _, command := range botCommands {
		newCommand, err := bot.session.ApplicationCommandCreate(
			bot.session.State.User.ID,
			bot.guildID,
			command,
		)
		if err != nil {
			return fmt.Errorf("create %v command: %w", command.Name, err)
		}
		bot.registeredCommands = append(bot.registeredCommands, newCommand)
		bot.log.Info("created command", zap.String("command", command.Name))
	}
	return nil
}

func (bot *Bot) handlers() map[string]commandHandler {
	return map[string]commandHandler{
		"setrole":        bot.SetRole,
		"setchannel":     bot.SetChannel,
		"createevent":    bot.CreateEvent,
		"events":         bot.Events,
		"deleteevent":    bot.DeleteEvent,
		"selecttimezone": bot.SelectTimezone,
		"settimezone":    bot.SetTimezone,
		"say":            bot.Say,
		"ping":           bot.Ping,
	}
}

// New initialises a new bot, opens its session and registers its slash
// commands in guildID, or globally when guildID is empty. With autoReply set
// the bot also answers guild messages matching the bundled keyword rules.
func New(
	token string,
	guildID string,
	autoReply bool,
	svc *events.Service,
	log *zap.Logger,
) (*Bot, error) {
	choices, err := assets.TimezoneChoices()
	if err != nil {
		return nil, fmt.Errorf("load timezone choices: %w", err)
	}

	bot := &Bot{
		events:          svc,
		log:             log,
		guildID:         guildID,
		timezoneChoices: choices,
	}

	if autoReply {
		rules, err := assets.AutoReplies()
		if err != nil {
			return nil, fmt.Errorf("load auto replies: %w", err)
		}
		bot.replies, err = autoreply.New(rules)
		if err != nil {
			return nil, err
		}
	}

	bot.commandHandlers = bot.handlers()

	if err := bot.initSession(token); err != nil {
		return nil, err
	}
	if err := bot.registerCommands(); err != nil {
		bot.Shutdown()
		return nil, err
	}

	return bot, nil
}

// Session returns the bot's discord session.
func (bot *Bot) Session() *discordgo.Session {
	return bot.session
}

// Shutdown removes the registered commands and closes the session.
func (bot *Bot) Shutdown() {
	bot.log.Info("shutting down bot")

	for _, command := range bot.registeredCommands {
		err := bot.session.ApplicationCommandDelete(
			bot.session.State.User.ID,
			bot.guildID,
			command.ID,
		)
		if err != nil {
			bot.log.Warn("failed to delete command",
				zap.String("command", command.Name),
				zap.Error(err),
			)
		} else {
			bot.log.Info("deleted command", zap.String("command", command.Name))
		}
	}
	bot.registeredCommands = nil

	if err := bot.session.Close(); err != nil {
		bot.log.Warn("closing discord session failed", zap.Error(err))
	}
}
