package dal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tempo/models"
)

// InsertEvent stores a new event and returns its assigned ID.
func (s *Store) InsertEvent(ctx context.Context, event *models.Event) (uint, error) {
	event.ID = 0
	if err := s.with(ctx).Create(event).Error; err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	s.log.Debug("inserted event",
		zap.Uint("id", event.ID),
		zap.String("guild", event.GuildID),
		zap.Time("at", event.Time()),
	)
	return event.ID, nil
}

// FindDueBetween returns all events due in [from, to], compared at second
// precision. The result is ordered by time but callers should not rely on it.
func (s *Store) FindDueBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.with(ctx).
		Where("time BETWEEN ? AND ?", ceilUnix(from), to.Unix()).
		Order("time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("find due events: %w", err)
	}
	return events, nil
}

// FindUpcoming returns a guild's events in ascending time order.
func (s *Store) FindUpcoming(ctx context.Context, guildID string) ([]models.Event, error) {
	var events []models.Event
	err := s.with(ctx).
		Where("guild_id = ?", guildID).
		Order("time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("find events for guild %v: %w", guildID, err)
	}
	return events, nil
}

// FindEvent gets the event with the given ID, provided it belongs to guildID.
func (s *Store) FindEvent(ctx context.Context, id uint, guildID string) (*models.Event, error) {
	var event models.Event
	err := s.with(ctx).
		Where("id = ? AND guild_id = ?", id, guildID).
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event %v: %w", id, err)
	}
	return &event, nil
}

// DeleteEvent removes the event with the given ID from guildID. Deleting an
// event that does not exist is not an error.
func (s *Store) DeleteEvent(ctx context.Context, id uint, guildID string) error {
	err := s.with(ctx).
		Where("id = ? AND guild_id = ?", id, guildID).
		Delete(&models.Event{}).Error
	if err != nil {
		return fmt.Errorf("delete event %v: %w", id, err)
	}
	return nil
}

// DeleteExpiredBefore removes events due strictly before cutoff and reports
// how many were removed.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.with(ctx).
		Where("time < ?", ceilUnix(cutoff)).
		Delete(&models.Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ceilUnix rounds t up to a whole second so sub-second lower bounds do not
// admit events stored at the preceding second.
func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}
