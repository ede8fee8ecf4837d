// Package events implements the event and settings operations behind the
// bot's slash commands.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempo/dal"
	"tempo/models"
	"tempo/timeutils"
)

// ErrMissingConfiguration is returned when an operation needs a guild setting
// that has not been configured yet.
var ErrMissingConfiguration = errors.New("missing configuration")

// CreateEventRequest holds the user input for a new event.
type CreateEventRequest struct {
	GuildID     string
	Name        string
	RawTime     string
	Timezone    string
	Description string
	Link        string
}

// Listing is an event together with its time in the viewer's timezone.
type Listing struct {
	Event     models.Event
	LocalTime string
}

// Service runs event and settings operations against a store.
type Service struct {
	store *dal.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a service using the wall clock.
func NewService(store *dal.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// CreateEvent resolves the requested time and stores a new event carrying a
// snapshot of the guild's notification role.
func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	at, err := timeutils.Resolve(req.RawTime, req.Timezone, s.now())
	if err != nil {
		return nil, err
	}

	settings, err := s.store.GetSettings(ctx, req.GuildID)
	if err != nil {
		return nil, err
	}
	if settings == nil || settings.RoleID == "" {
		return nil, fmt.Errorf("%w: notification role is not set", ErrMissingConfiguration)
	}

	event := &models.Event{
		GuildID:     req.GuildID,
		Name:        req.Name,
		Description: req.Description,
		Link:        strings.TrimSpace(req.Link),
		RoleID:      settings.RoleID,
	}
	event.SetTime(at)

	if _, err := s.store.InsertEvent(ctx, event); err != nil {
		return nil, err
	}
	s.log.Info("created event",
		zap.Uint("id", event.ID),
		zap.String("guild", event.GuildID),
		zap.String("name", event.Name),
		zap.Time("at", event.Time()),
	)
	return event, nil
}

// ListUpcoming returns a guild's events ordered by time, rendered in the
// viewer's timezone.
func (s *Service) ListUpcoming(ctx context.Context, guildID, viewerTZ string) ([]Listing, error) {
	evs, err := s.store.FindUpcoming(ctx, guildID)
	if err != nil {
		return nil, err
	}
	listings := make([]Listing, 0, len(evs))
	for _, ev := range evs {
		listings = append(listings, Listing{
			Event:     ev,
			LocalTime: timeutils.FormatLocal(ev.Time(), viewerTZ),
		})
	}
	return listings, nil
}

// ListUpcomingFor lists a guild's events in the given user's saved timezone.
// It returns the timezone used alongside the listings.
func (s *Service) ListUpcomingFor(ctx context.Context, guildID, userID string) ([]Listing, string, error) {
	tz, err := s.UserTimezone(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	listings, err := s.ListUpcoming(ctx, guildID, tz)
	return listings, tz, err
}

// DeleteEvent removes an event from the guild. It reports false when no such
// event exists in that guild.
func (s *Service) DeleteEvent(ctx context.Context, id uint, guildID string) (bool, error) {
	if _, err := s.store.FindEvent(ctx, id, guildID); err != nil {
		if errors.Is(err, dal.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.store.DeleteEvent(ctx, id, guildID); err != nil {
		return false, err
	}
	s.log.Info("deleted event", zap.Uint("id", id), zap.String("guild", guildID))
	return true, nil
}

// SetNotificationRole sets the role mentioned by reminders of new events.
func (s *Service) SetNotificationRole(ctx context.Context, guildID, roleID string) error {
	return s.store.SetRole(ctx, guildID, roleID)
}

// SetNotificationChannel sets the channel reminders are posted to.
func (s *Service) SetNotificationChannel(ctx context.Context, guildID, channelID string) error {
	return s.store.SetChannel(ctx, guildID, channelID)
}

// SetUserTimezone validates and saves a user's timezone.
func (s *Service) SetUserTimezone(ctx context.Context, userID, timezone string) error {
	timezone = strings.TrimSpace(timezone)
	if _, err := timeutils.LoadZone(timezone); err != nil {
		return err
	}
	return s.store.SetUserTimezone(ctx, userID, timezone)
}

// UserTimezone returns a user's saved timezone, or UTC.
func (s *Service) UserTimezone(ctx context.Context, userID string) (string, error) {
	return s.store.GetUserTimezone(ctx, userID)
}
