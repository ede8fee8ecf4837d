package bot

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MessageCreated answers a guild message that matches a keyword rule.
func (bot *Bot) MessageCreated(m *discordgo.MessageCreate) {
	if bot.replies == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	reply, ok := bot.replies.Reply(m.Content, m.Author.ID)
	if !ok {
		return
	}

	_, err := bot.session.ChannelMessageSendReply(m.ChannelID, reply, m.Reference())
	if err != nil {
		bot.log.Warn("failed to send auto reply",
			zap.String("channel", m.ChannelID),
			zap.String("message", m.ID),
			zap.Error(err),
		)
	}
}
