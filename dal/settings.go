package dal

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tempo/models"
)

// DefaultTimezone is used for users that never picked a timezone.
const DefaultTimezone = "UTC"

// SetRole inserts or updates the notification role of a guild, leaving its
// channel untouched.
func (s *Store) SetRole(ctx context.Context, guildID, roleID string) error {
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_id"}),
	}).Create(&models.GuildSettings{GuildID: guildID, RoleID: roleID}).Error
	if err != nil {
		return fmt.Errorf("set role for guild %v: %w", guildID, err)
	}
	return nil
}

// SetChannel inserts or updates the notification channel of a guild, leaving
// its role untouched.
func (s *Store) SetChannel(ctx context.Context, guildID, channelID string) error {
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"channel_id"}),
	}).Create(&models.GuildSettings{GuildID: guildID, ChannelID: channelID}).Error
	if err != nil {
		return fmt.Errorf("set channel for guild %v: %w", guildID, err)
	}
	return nil
}

// GetSettings returns the saved settings for the given guild, or nil if the
// guild has never been configured.
func (s *Store) GetSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	var settings models.GuildSettings
	err := s.with(ctx).
		Where("guild_id = ?", guildID).
		Take(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings for guild %v: %w", guildID, err)
	}
	return &settings, nil
}

// SetUserTimezone inserts or updates a user's timezone. The name is stored
// as given; validation is up to the caller.
func (s *Store) SetUserTimezone(ctx context.Context, userID, timezone string) error {
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timezone"}),
	}).Create(&models.UserTimezone{UserID: userID, Timezone: timezone}).Error
	if err != nil {
		return fmt.Errorf("set timezone for user %v: %w", userID, err)
	}
	return nil
}

// GetUserTimezone returns the user's saved timezone, or DefaultTimezone.
func (s *Store) GetUserTimezone(ctx context.Context, userID string) (string, error) {
	var tz models.UserTimezone
	err := s.with(ctx).
		Where("user_id = ?", userID).
		Take(&tz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultTimezone, nil
	}
	if err != nil {
		return "", fmt.Errorf("get timezone for user %v: %w", userID, err)
	}
	if tz.Timezone == "" {
		return DefaultTimezone, nil
	}
	return tz.Timezone, nil
}
