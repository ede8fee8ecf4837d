package discordutils

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempo/models"
	"tempo/scheduler"
)

// Notifier delivers event reminders through a discord session.
type Notifier struct {
	session *discordgo.Session
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewNotifier creates a notifier that sends at most ratePerSec messages per
// second.
func NewNotifier(session *discordgo.Session, ratePerSec int, log *zap.Logger) *Notifier {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &Notifier{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// Resolve looks up the guild, channel and role a reminder should go to,
// checking the state cache before asking the API.
func (n *Notifier) Resolve(
	ctx context.Context,
	guildID string,
	channelID string,
	roleID string,
) (scheduler.Target, error) {
	guild, err := n.session.State.Guild(guildID)
	if err != nil {
		guild, err = n.session.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return scheduler.Target{}, fmt.Errorf("guild %v: %w", guildID, err)
		}
	}

	channel, err := n.session.State.Channel(channelID)
	if err != nil {
		channel, err = n.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return scheduler.Target{}, fmt.Errorf("channel %v: %w", channelID, err)
		}
	}
	if channel.GuildID != guild.ID {
		return scheduler.Target{}, fmt.Errorf(
			"channel %v does not belong to guild %v",
			channelID,
			guildID,
		)
	}

	if _, err := n.findRole(ctx, guild, roleID); err != nil {
		return scheduler.Target{}, err
	}

	return scheduler.Target{
		GuildID:     guild.ID,
		GuildName:   guild.Name,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		RoleID:      roleID,
	}, nil
}

func (n *Notifier) findRole(
	ctx context.Context,
	guild *discordgo.Guild,
	roleID string,
) (*discordgo.Role, error) {
	if role, err := n.session.State.Role(guild.ID, roleID); err == nil {
		return role, nil
	}

	roles, err := n.session.GuildRoles(guild.ID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("roles of guild %v: %w", guild.ID, err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return nil, fmt.Errorf("role %v not found in guild %v", roleID, guild.ID)
}

// Send posts the reminder for event to the target channel, mentioning the
// target role.
func (n *Notifier) Send(
	ctx context.Context,
	target scheduler.Target,
	event models.Event,
	now time.Time,
) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", scheduler.ErrNotSent, err)
	}

	_, err := n.session.ChannelMessageSendComplex(
		target.ChannelID,
		&discordgo.MessageSend{
			Content: RoleMention(target.RoleID),
			Embeds:  []*discordgo.MessageEmbed{RenderReminder(event, now)},
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Roles: []string{target.RoleID},
			},
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return err
	}

	n.log.Debug("sent reminder",
		zap.String("guild", target.GuildName),
		zap.String("channel", target.ChannelName),
		zap.Uint("event", event.ID),
	)
	return nil
}
