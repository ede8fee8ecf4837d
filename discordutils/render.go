package discordutils

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"tempo/events"
	"tempo/models"
	"tempo/timeutils"
)

// Embed colours.
const (
	ReminderColor = 0xFFD700
	ListColor     = 0x00BFFF
	PickerColor   = 0x00AE86
)

// RoleMention returns the markup that pings a role.
func RoleMention(roleID string) string {
	return fmt.Sprintf("<@&%v>", roleID)
}

// Timestamp returns discord timestamp markup, which every client renders in
// the viewer's own timezone.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}

func linkValue(link string) string {
	if link == "" {
		return "No link provided"
	}
	return fmt.Sprintf("[Join here](%v)", link)
}

// RenderReminder builds the reminder embed for an event about to start.
func RenderReminder(event models.Event, now time.Time) *discordgo.MessageEmbed {
	at := event.Time()
	description := event.Description
	if description == "" {
		description = "No description"
	}

	body := fmt.Sprintf(
		"Event starts %v! %v\n\n**Time:** %v (%v UTC)",
		humanize.RelTime(at, now, "ago", "from now"),
		RoleMention(event.RoleID),
		Timestamp(at),
		timeutils.FormatLocal(at, "UTC"),
	)
	fields := []*discordgo.MessageEmbedField{
		{Name: "Description", Value: description},
		{Name: "Link", Value: linkValue(event.Link)},
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("⚠️ Event Reminder: %v", event.Name),
		Description: body,
		Color:       ReminderColor,
		Fields:      fields,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
}

// maxEmbedFields is discord's limit on fields in one embed.
const maxEmbedFields = 25

// RenderEventList builds the embed listing upcoming events in the viewer's
// timezone.
func RenderEventList(listings []events.Listing, timezone string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📅 Upcoming Events",
		Color: ListColor,
	}
	if len(listings) == 0 {
		embed.Description = "No upcoming events."
		return embed
	}

	shown := listings
	if len(shown) > maxEmbedFields {
		shown = shown[:maxEmbedFields]
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Showing %d of %d events.", maxEmbedFields, len(listings)),
		}
	}

	embed.Description = fmt.Sprintf("Times are shown in %v.", timezone)
	for _, l := range shown {
		value := l.Event.Description
		if value != "" {
			value += "\n"
		}
		value += "🔗 " + linkValue(l.Event.Link)

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("ID: %v — %v (%v)", l.Event.ID, l.Event.Name, l.LocalTime),
			Value: value,
		})
	}
	return embed
}
