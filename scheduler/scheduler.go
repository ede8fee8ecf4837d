// Package scheduler periodically delivers reminders for events that are about
// to start.
//
// Every tick selects the events due within the lookahead window, resolves
// where each one should be announced and hands it to a Notifier. Delivery is
// at most once: an event is deleted right after its send attempt, whether or
// not the send succeeded. Events that were never handed to the platform,
// because their target cannot be resolved or the notifier gave up before
// sending, are kept and retried on the following ticks until they expire.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tempo/models"
)

var (
	// ErrDeliveryFailure wraps errors returned by a Notifier when sending.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrTickInProgress is returned by Tick while another tick is running.
	ErrTickInProgress = errors.New("tick already in progress")
	// ErrNotSent is wrapped by a Notifier whose Send gave up before the
	// message left the process. The event is kept for the next tick.
	ErrNotSent = errors.New("reminder not sent")
)

// Store is the persistence the scheduler needs.
type Store interface {
	FindDueBetween(ctx context.Context, from, to time.Time) ([]models.Event, error)
	DeleteEvent(ctx context.Context, id uint, guildID string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetSettings(ctx context.Context, guildID string) (*models.GuildSettings, error)
}

// Target is a resolved place to announce an event.
type Target struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	RoleID      string
}

// Notifier resolves delivery targets and sends reminders to them.
type Notifier interface {
	Resolve(ctx context.Context, guildID, channelID, roleID string) (Target, error)
	Send(ctx context.Context, target Target, event models.Event, now time.Time) error
}

// Config controls tick timing.
type Config struct {
	Interval  time.Duration
	Lookahead time.Duration
	// Undelivered events older than this are purged. Zero disables purging.
	Expiry time.Duration
	// Maximum number of events delivered concurrently within a tick.
	Workers int
}

// DefaultConfig returns a one minute tick with a fifteen minute lookahead.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		Lookahead: 15 * time.Minute,
		Expiry:    24 * time.Hour,
		Workers:   8,
	}
}

// TickResult summarises one tick.
type TickResult struct {
	Due       int
	Delivered int
	Failed    int
	Skipped   int
	Expired   int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeFailed
)

// Scheduler runs reminder ticks on a fixed interval.
type Scheduler struct {
	cfg      Config
	store    Store
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron

	tickMu sync.Mutex
}

// New creates a stopped scheduler.
func New(cfg Config, store Store, notifier Notifier, log *zap.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Start begins running ticks every Interval. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	if s.cfg.Interval < time.Second {
		return fmt.Errorf("tick interval %s is below one second", s.cfg.Interval)
	}
	if s.cfg.Lookahead < s.cfg.Interval {
		s.log.Warn("lookahead is shorter than the tick interval; reminders may be missed",
			zap.Duration("interval", s.cfg.Interval),
			zap.Duration("lookahead", s.cfg.Lookahead),
		)
	}

	clog := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc("@every "+s.cfg.Interval.String(), s.runTick); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	c.Start()
	s.cron = c

	s.log.Info("reminder scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("lookahead", s.cfg.Lookahead),
	)
	return nil
}

// Stop prevents further ticks and waits for a running tick to finish, or
// for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.log.Info("stopped reminder scheduler")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runTick is the cron job. Its context is never cancelled, so Stop waits for
// in-flight deliveries instead of interrupting them.
func (s *Scheduler) runTick() {
	res, err := s.Tick(context.Background())
	if err != nil {
		s.log.Error("reminder tick failed", zap.Error(err))
		return
	}
	if res.Due > 0 || res.Expired > 0 {
		s.log.Info("reminder tick",
			zap.Int("due", res.Due),
			zap.Int("delivered", res.Delivered),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Int("expired", res.Expired),
		)
	}
}

// Tick delivers every event due within the lookahead window and returns once
// all deliveries have finished. Only one tick runs at a time.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if !s.tickMu.TryLock() {
		return TickResult{}, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	var res TickResult
	now := s.now().UTC()

	if s.cfg.Expiry > 0 {
		n, err := s.store.DeleteExpiredBefore(ctx, now.Add(-s.cfg.Expiry))
		if err != nil {
			s.log.Error("purging expired events failed", zap.Error(err))
		} else if n > 0 {
			s.log.Warn("purged undelivered events past expiry",
				zap.Int64("count", n),
				zap.Duration("expiry", s.cfg.Expiry),
			)
			res.Expired = int(n)
		}
	}

	due, err := s.store.FindDueBetween(ctx, now, now.Add(s.cfg.Lookahead))
	if err != nil {
		return res, err
	}
	res.Due = len(due)

	outcomes := make([]outcome, len(due))
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	for i := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = s.deliver(ctx, due[i], now)
		}(i)
	}
	wg.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeDelivered:
			res.Delivered++
		case outcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (s *Scheduler) deliver(ctx context.Context, event models.Event, now time.Time) outcome {
	log := s.log.With(
		zap.Uint("event", event.ID),
		zap.String("guild", event.GuildID),
	)

	settings, err := s.store.GetSettings(ctx, event.GuildID)
	if err != nil {
		log.Error("loading guild settings failed", zap.Error(err))
		return outcomeSkipped
	}
	if !settings.Complete() {
		log.Warn("guild has no notification channel or role, will retry")
		return outcomeSkipped
	}

	roleID := event.RoleID
	if roleID == "" {
		roleID = settings.RoleID
	}
	target, err := s.notifier.Resolve(ctx, event.GuildID, settings.ChannelID, roleID)
	if err != nil {
		log.Warn("could not resolve reminder target, will retry", zap.Error(err))
		return outcomeSkipped
	}

	if err := ctx.Err(); err != nil {
		log.Warn("tick cancelled before sending, will retry", zap.Error(err))
		return outcomeSkipped
	}

	sendErr := s.notifier.Send(ctx, target, event, now)
	if errors.Is(sendErr, ErrNotSent) {
		log.Warn("reminder was not sent, will retry", zap.Error(sendErr))
		return outcomeSkipped
	}

	// The send was attempted; the row goes even if ctx ended meanwhile.
	if err := s.store.DeleteEvent(context.WithoutCancel(ctx), event.ID, event.GuildID); err != nil {
		log.Error("deleting delivered event failed", zap.Error(err))
	}

	if sendErr != nil {
		log.Error("reminder not delivered",
			zap.String("channel", target.ChannelID),
			zap.Error(fmt.Errorf("%w: %v", ErrDeliveryFailure, sendErr)),
		)
		return outcomeFailed
	}
	log.Info("delivered reminder",
		zap.String("name", event.Name),
		zap.String("channel", target.ChannelID),
	)
	return outcomeDelivered
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
