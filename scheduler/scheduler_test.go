package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempo/dal"
	"tempo/models"
)

type sentReminder struct {
	target Target
	event  models.Event
}

type fakeNotifier struct {
	mu         sync.Mutex
	sent       []sentReminder
	unresolved map[string]bool // guild IDs
	sendErr    map[string]error
	// when set, Send signals entered and waits for release
	entered chan struct{}
	release chan struct{}
	// throttles Send like the discord notifier does
	limiter *rate.Limiter
	onSend  func()
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{unresolved: map[string]bool{}, sendErr: map[string]error{}}
}

func (n *fakeNotifier) Resolve(_ context.Context, guildID, channelID, roleID string) (Target, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unresolved[guildID] {
		return Target{}, errors.New("unknown channel")
	}
	return Target{GuildID: guildID, ChannelID: channelID, RoleID: roleID}, nil
}

func (n *fakeNotifier) Send(ctx context.Context, target Target, event models.Event, _ time.Time) error {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrNotSent, err)
		}
	}
	if n.onSend != nil {
		n.onSend()
	}
	if n.entered != nil {
		n.entered <- struct{}{}
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReminder{target: target, event: event})
	return n.sendErr[target.GuildID]
}

func (n *fakeNotifier) sentNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var names []string
	for _, s := range n.sent {
		names = append(names, s.event.Name)
	}
	return names
}

type fixture struct {
	store    *dal.Store
	notifier *fakeNotifier
	sched    *Scheduler
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	store, err := dal.Open(filepath.Join(t.TempDir(), "sched.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	notifier := newFakeNotifier()
	sched := New(DefaultConfig(), store, notifier, zap.NewNop())
	sched.now = func() time.Time { return now }
	return &fixture{store: store, notifier: notifier, sched: sched}
}

func (f *fixture) configure(t *testing.T, guildID string) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.SetRole(ctx, guildID, "role-"+guildID); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := f.store.SetChannel(ctx, guildID, "chan-"+guildID); err != nil {
		t.Fatalf("set channel: %v", err)
	}
}

func (f *fixture) insert(t *testing.T, guildID, name string, at time.Time) uint {
	t.Helper()
	ev := &models.Event{GuildID: guildID, Name: name, RoleID: "role-" + guildID}
	ev.SetTime(at)
	id, err := f.store.InsertEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestTick_DeliversOnceAndDeletes(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")
	f.insert(t, "g1", "raid", time.Date(2024, 3, 21, 14, 30, 0, 0, time.UTC))
	f.insert(t, "g1", "later", now.Add(2*time.Hour))

	ctx := context.Background()
	res, err := f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Due != 1 || res.Delivered != 1 {
		t.Fatalf("want 1 due and delivered, got %+v", res)
	}

	sent := f.notifier.sent
	if len(sent) != 1 || sent[0].event.Name != "raid" {
		t.Fatalf("want raid delivered, got %v", f.notifier.sentNames())
	}
	if sent[0].target.ChannelID != "chan-g1" || sent[0].target.RoleID != "role-g1" {
		t.Fatalf("unexpected target %+v", sent[0].target)
	}

	upcoming, err := f.store.FindUpcoming(ctx, "g1")
	if err != nil {
		t.Fatalf("find upcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].Name != "later" {
		t.Fatalf("want only later left, got %+v", upcoming)
	}

	if _, err := f.sched.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(f.notifier.sentNames()) != 1 {
		t.Fatalf("reminder delivered more than once: %v", f.notifier.sentNames())
	}
}

func TestTick_UsesRoleSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")

	ev := &models.Event{GuildID: "g1", Name: "old-role", RoleID: "role-at-creation"}
	ev.SetTime(now.Add(5 * time.Minute))
	if _, err := f.store.InsertEvent(context.Background(), ev); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := f.notifier.sent[0].target.RoleID; got != "role-at-creation" {
		t.Fatalf("want snapshot role, got %s", got)
	}
}

func TestTick_UnconfiguredGuildIsRetried(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()
	f.insert(t, "g1", "pending", now.Add(10*time.Minute))

	// role only: channel is still missing
	if err := f.store.SetRole(ctx, "g1", "role-g1"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	res, err := f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != 1 || len(f.notifier.sentNames()) != 0 {
		t.Fatalf("want skipped event, got %+v", res)
	}
	if evs, _ := f.store.FindUpcoming(ctx, "g1"); len(evs) != 1 {
		t.Fatalf("skipped event was deleted")
	}

	if err := f.store.SetChannel(ctx, "g1", "chan-g1"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	res, err = f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Delivered != 1 {
		t.Fatalf("want delivery after configuring, got %+v", res)
	}
}

func TestTick_UnresolvedTargetKeepsEvent(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")
	f.configure(t, "g2")
	f.notifier.unresolved["g1"] = true

	f.insert(t, "g1", "lost", now.Add(time.Minute))
	f.insert(t, "g2", "found", now.Add(2*time.Minute))

	ctx := context.Background()
	res, err := f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != 1 || res.Delivered != 1 {
		t.Fatalf("want one skipped and one delivered, got %+v", res)
	}
	if names := f.notifier.sentNames(); len(names) != 1 || names[0] != "found" {
		t.Fatalf("want found delivered, got %v", names)
	}
	if evs, _ := f.store.FindUpcoming(ctx, "g1"); len(evs) != 1 {
		t.Fatalf("want unresolved event kept, got %d", len(evs))
	}
}

func TestTick_SendFailureStillDeletes(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")
	f.notifier.sendErr["g1"] = errors.New("missing access")
	f.insert(t, "g1", "doomed", now.Add(time.Minute))

	ctx := context.Background()
	res, err := f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("want one failure, got %+v", res)
	}
	if evs, _ := f.store.FindUpcoming(ctx, "g1"); len(evs) != 0 {
		t.Fatalf("want event removed after a failed send")
	}
}

func TestTick_NotSentKeepsEvent(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")
	f.notifier.sendErr["g1"] = fmt.Errorf("%w: rate limited", ErrNotSent)
	f.insert(t, "g1", "throttled", now.Add(time.Minute))

	ctx := context.Background()
	res, err := f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("want one skipped, got %+v", res)
	}
	if evs, _ := f.store.FindUpcoming(ctx, "g1"); len(evs) != 1 {
		t.Fatalf("want unsent event kept, got %d", len(evs))
	}
}

func TestTick_DeletesAfterSendWhenContextEnds(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")
	f.insert(t, "g1", "last-second", now.Add(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.notifier.onSend = cancel

	res, err := f.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Delivered != 1 {
		t.Fatalf("want one delivered, got %+v", res)
	}
	if evs, _ := f.store.FindUpcoming(context.Background(), "g1"); len(evs) != 0 {
		t.Fatalf("sent event was kept and would be delivered again")
	}
}

func TestRunTick_RateLimitedSendsOutlastInterval(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.sched.cfg.Interval = time.Second
	// 25 sends at 20/s take longer than one interval
	f.notifier.limiter = rate.NewLimiter(20, 1)
	f.configure(t, "g1")
	for i := 0; i < 25; i++ {
		f.insert(t, "g1", "queued", now.Add(time.Duration(i)*10*time.Second))
	}

	f.sched.runTick()

	if got := len(f.notifier.sentNames()); got != 25 {
		t.Fatalf("want 25 sends, got %d", got)
	}
	if evs, _ := f.store.FindUpcoming(context.Background(), "g1"); len(evs) != 0 {
		t.Fatalf("want every sent event removed, %d left", len(evs))
	}
}

func TestTick_ManyEventsConcurrently(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.sched.cfg.Workers = 3
	f.configure(t, "g1")
	for i := 0; i < 20; i++ {
		f.insert(t, "g1", "bulk", now.Add(time.Duration(i)*30*time.Second))
	}

	res, err := f.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Due != 20 || res.Delivered != 20 {
		t.Fatalf("want 20 delivered, got %+v", res)
	}
	if len(f.notifier.sentNames()) != 20 {
		t.Fatalf("want 20 sends, got %d", len(f.notifier.sentNames()))
	}
}

func TestTick_PurgesExpired(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.insert(t, "g1", "stale", now.Add(-25*time.Hour))
	f.insert(t, "g1", "recent", now.Add(-time.Hour))

	res, err := f.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Expired != 1 {
		t.Fatalf("want one expired, got %+v", res)
	}
	evs, _ := f.store.FindUpcoming(context.Background(), "g1")
	if len(evs) != 1 || evs[0].Name != "recent" {
		t.Fatalf("want only recent left, got %+v", evs)
	}
}

func TestTick_NoOverlap(t *testing.T) {
	now := time.Date(2024, 3, 21, 14, 16, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.configure(t, "g1")
	f.insert(t, "g1", "slow", now.Add(time.Minute))
	f.notifier.entered = make(chan struct{})
	f.notifier.release = make(chan struct{})

	done := make(chan TickResult)
	go func() {
		res, _ := f.sched.Tick(context.Background())
		done <- res
	}()

	<-f.notifier.entered
	if _, err := f.sched.Tick(context.Background()); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("want ErrTickInProgress, got %v", err)
	}
	close(f.notifier.release)

	if res := <-done; res.Delivered != 1 {
		t.Fatalf("want first tick to deliver, got %+v", res)
	}
	if len(f.notifier.sentNames()) != 1 {
		t.Fatalf("want a single delivery, got %v", f.notifier.sentNames())
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, time.Now())

	if err := f.sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.sched.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.sched.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := f.sched.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_RejectsSubSecondInterval(t *testing.T) {
	f := newFixture(t, time.Now())
	f.sched.cfg.Interval = 10 * time.Millisecond

	if err := f.sched.Start(); err == nil {
		t.Fatalf("want error for sub-second interval")
	}
}
