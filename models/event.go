package models

import "time"

// Event represents a one-time reminder registered in a guild.
type Event struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	GuildID     string `gorm:"index;not null"`
	Name        string `gorm:"not null"`
	Description string
	// unix seconds, UTC
	TimeUnix  int64 `gorm:"column:time;index;not null"`
	Link      string
	RoleID    string
	CreatedAt time.Time
}

// Time returns the event's due instant in UTC.
func (e Event) Time() time.Time {
	return time.Unix(e.TimeUnix, 0).UTC()
}

// SetTime stores t as the event's due instant, truncated to the second.
func (e *Event) SetTime(t time.Time) {
	e.TimeUnix = t.UTC().Unix()
}
