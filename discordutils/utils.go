package discordutils

import (
	"github.com/bwmarrin/discordgo"
)

// MemberHasAdminPermissions returns true if the member who triggered the
// interaction has admin permissions in the guild.
func MemberHasAdminPermissions(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// InvokingUser returns the user behind an interaction, in a guild or a DM.
func InvokingUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// AckInteraction sends a deferred response for the given interaction.
func AckInteraction(
	interaction *discordgo.Interaction,
	session *discordgo.Session,
	ephemeral bool,
) error {
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if ephemeral {
		response.Data = &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		}
	}
	return session.InteractionRespond(interaction, response)
}

// SendFollowup creates a followup message with the given content.
func SendFollowup(
	content string,
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) error {
	_, err := session.FollowupMessageCreate(
		interaction,
		true,
		&discordgo.WebhookParams{
			Content: content,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{},
			},
		},
	)
	return err
}

// SendFollowupEmbed creates a followup message carrying a single embed.
func SendFollowupEmbed(
	embed *discordgo.MessageEmbed,
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) error {
	_, err := session.FollowupMessageCreate(
		interaction,
		true,
		&discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	)
	return err
}

// Respond replies to an interaction immediately, without deferring.
func Respond(
	interaction *discordgo.Interaction,
	session *discordgo.Session,
	data *discordgo.InteractionResponseData,
) error {
	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}
