package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"tempo/discordutils"
)

const (
	timezoneSelectorID = "timezone_selector"
	commandTimeout     = 10 * time.Second
)

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func (bot *Bot) timezoneMenu() discordgo.ActionsRow {
	menuOptions := make([]discordgo.SelectMenuOption, 0, len(bot.timezoneChoices))
	for _, c := range bot.timezoneChoices {
		menuOptions = append(menuOptions, discordgo.SelectMenuOption{
			Label:       c.Label,
			Description: c.Description,
			Value:       c.Value,
		})
	}

	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    timezoneSelectorID,
				Placeholder: "Choose a timezone",
				Options:     menuOptions,
			},
		},
	}
}

// SelectTimezone shows the timezone picker to the caller only.
func (bot *Bot) SelectTimezone(i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title:       "🌍 Select Your Timezone",
		Description: "Choose your timezone from the dropdown menu below",
		Color:       discordutils.PickerColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	err := discordutils.Respond(i.Interaction, bot.session, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{bot.timezoneMenu()},
		Flags:      discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		bot.log.Warn("failed to show timezone picker", zap.Error(err))
	}
}

// TimezoneSelected saves the timezone picked from the menu.
func (bot *Bot) TimezoneSelected(i *discordgo.InteractionCreate) {
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return
	}
	selected := values[0]
	user := discordutils.InvokingUser(i)

	ctx, cancel := commandContext()
	defer cancel()

	if err := bot.events.SetUserTimezone(ctx, user.ID, selected); err != nil {
		bot.log.Warn("timezone selection rejected",
			zap.String("user", user.ID),
			zap.String("timezone", selected),
			zap.Error(err),
		)
		bot.reply(i, errorReply(err), true)
		return
	}

	err := bot.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("✅ Selected timezone: %v", selected),
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		bot.log.Warn("failed to update timezone picker", zap.Error(err))
	}
}

// SetTimezone saves a timezone typed by the caller.
func (bot *Bot) SetTimezone(i *discordgo.InteractionCreate) {
	ctx, cancel := commandContext()
	defer cancel()

	tz := commandOptions(i).str("timezone")
	user := discordutils.InvokingUser(i)
	if err := bot.events.SetUserTimezone(ctx, user.ID, tz); err != nil {
		bot.reply(i, errorReply(err), true)
		return
	}
	bot.reply(i, fmt.Sprintf("✅ Your timezone is now %v.", tz), true)
}
