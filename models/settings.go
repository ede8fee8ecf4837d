package models

// GuildSettings holds a guild's notification role and channel.
// Either field may be empty until its configuration command has been used.
type GuildSettings struct {
	GuildID   string `gorm:"primaryKey"`
	RoleID    string
	ChannelID string
}

// Complete reports whether both the role and the channel are configured.
func (s *GuildSettings) Complete() bool {
	return s != nil && s.RoleID != "" && s.ChannelID != ""
}

// UserTimezone is a user's preferred timezone for displaying event times.
type UserTimezone struct {
	UserID   string `gorm:"primaryKey"`
	Timezone string `gorm:"not null"`
}
