package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/BTreeMap/PromptDeck/internal/messaging"
	"github.com/BTreeMap/PromptDeck/internal/models"
	"github.com/BTreeMap/PromptDeck/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakeSource struct {
	mu       sync.Mutex
	prompts  map[string][]models.Prompt
	calls    int
	err      error
	touched  []string
	touchErr error
}

func (f *fakeSource) GetNextPrompt(packID string) (*models.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ps := f.prompts[packID]
	if len(ps) == 0 {
		return nil, nil
	}
	p := ps[0]
	f.prompts[packID] = ps[1:]
	return &p, nil
}

func (f *fakeSource) TouchPack(packID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touched = append(f.touched, packID)
	return nil
}

func (f *fakeSource) Touched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.touched...)
}

type fakeSettings struct {
	mu    sync.Mutex
	packs map[string]*models.Pack
}

func (f *fakeSettings) GetPromptPack(packID string) (*models.Pack, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packs[packID]
	return p.Clone(), ok
}

type fakeNotes struct {
	mu        sync.Mutex
	openErr   error
	insertErr error
	inserted  []models.Prompt
	notes     []string
	zen       bool
}

func (f *fakeNotes) CreateOrOpenDailyNote(ctx context.Context, date time.Time) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return date.Format("2006-01-02") + ".md", nil
}

func (f *fakeNotes) InsertPrompt(ctx context.Context, note string, prompt models.Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.notes = append(f.notes, note)
	f.inserted = append(f.inserted, prompt)
	return nil
}

func (f *fakeNotes) EnableZenMode()  { f.mu.Lock(); f.zen = true; f.mu.Unlock() }
func (f *fakeNotes) DisableZenMode() { f.mu.Lock(); f.zen = false; f.mu.Unlock() }

type fakeNative struct {
	mu         sync.Mutex
	perm       models.Permission
	probeErr   error
	deliverErr error
	attempts   int
	delivered  []models.Notice
}

func (f *fakeNative) Name() models.DeliveryChannel { return models.ChannelNative }

func (f *fakeNative) Deliver(ctx context.Context, notice models.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, notice)
	return nil
}

func (f *fakeNative) RequestPermission(ctx context.Context) (models.Permission, error) {
	if f.probeErr != nil {
		return models.PermissionDefault, f.probeErr
	}
	return f.perm, nil
}

func (f *fakeNative) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, len(f.delivered)
}

var morning = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func testPack(id string, packType models.PackType) *models.Pack {
	settings := models.DefaultPackSettings()
	settings.NotificationTime = "09:00"
	return &models.Pack{ID: id, Name: "Pack " + id, Type: packType, Settings: settings}
}

type harness struct {
	s        *NotificationScheduler
	clock    *testClock
	source   *fakeSource
	settings *fakeSettings
	inApp    *messaging.InAppChannel
}

func newHarness(t *testing.T, packs []*models.Pack, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    &testClock{t: morning},
		source:   &fakeSource{prompts: make(map[string][]models.Prompt)},
		settings: &fakeSettings{packs: make(map[string]*models.Pack)},
		inApp:    messaging.NewInAppChannel(0),
	}
	for _, p := range packs {
		h.settings.packs[p.ID] = p
		h.source.prompts[p.ID] = []models.Prompt{
			{ID: p.ID + "-1", Content: "**First** prompt of " + p.ID, Type: models.PromptTypeText},
			{ID: p.ID + "-2", Content: "Second prompt of " + p.ID, Type: models.PromptTypeText},
		}
	}
	base := []Option{WithClock(h.clock.Now), WithLocation(time.UTC), WithInterItemDelay(0)}
	h.s = NewNotificationScheduler(h.source, h.settings, h.inApp, append(base, opts...)...)
	t.Cleanup(h.s.Destroy)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestParseNotificationTime(t *testing.T) {
	tests := []struct {
		in           string
		hour, minute int
		wantErr      bool
	}{
		{"00:00", 0, 0, false},
		{"09:05", 9, 5, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"9:00", 0, 0, true},
		{"09:60", 0, 0, true},
		{"09:5", 0, 0, true},
		{"0900", 0, 0, true},
		{" 09:00", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := ParseNotificationTime(tt.in)
		if tt.wantErr {
			if !errors.Is(err, models.ErrFormat) {
				t.Errorf("ParseNotificationTime(%q) error = %v, want ErrFormat", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNotificationTime(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if h != tt.hour || m != tt.minute {
			t.Errorf("ParseNotificationTime(%q) = %d:%d, want %d:%d", tt.in, h, m, tt.hour, tt.minute)
		}
	}
}

func TestNextFireTime(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	tests := []struct {
		name string
		now  time.Time
		at   string
		want time.Time
	}{
		{"before target fires today", time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC), "09:00", time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)},
		{"equal rolls to tomorrow", time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC), "09:00", time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)},
		{"after target rolls to tomorrow", time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC), "09:00", time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)},
		{"month boundary", time.Date(2026, 5, 31, 23, 30, 0, 0, time.UTC), "09:00", time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		{"year boundary", time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC), "00:00", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"local calendar", time.Date(2026, 5, 10, 23, 0, 0, 0, time.UTC).In(zone), "00:30", time.Date(2026, 5, 12, 0, 30, 0, 0, zone)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextFireTime(tt.at, tt.now)
			if err != nil {
				t.Fatalf("NextFireTime: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextFireTime(%q, %v) = %v, want %v", tt.at, tt.now, got, tt.want)
			}
		})
	}

	if _, err := NextFireTime("25:00", morning); !errors.Is(err, models.ErrFormat) {
		t.Errorf("NextFireTime invalid error = %v, want ErrFormat", err)
	}
}

func TestFormatContent(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"emphasis", "**Bold** and _italic_ and `code` ~~gone~~", 0, "Bold and italic and code gone"},
		{"heading", "# Title\nBody text", 0, "Title Body text"},
		{"link", "Read [the guide](https://example.com/guide) today", 0, "Read the guide today"},
		{"newlines", "one\n\n two \nthree", 0, "one two three"},
		{"short untouched", "plain", 10, "plain"},
		{"truncated", "abcdefghijklmnop", 10, "abcdefg..."},
		{"runes", strings.Repeat("é", 12), 10, strings.Repeat("é", 7) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatContent(tt.in, tt.maxLen); got != tt.want {
				t.Errorf("FormatContent(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}

	long := FormatContent(strings.Repeat("a", 500), 0)
	if n := len([]rune(long)); n != DefaultMaxBodyLength || !strings.HasSuffix(long, "...") {
		t.Errorf("default truncation produced %d runes (%q...)", n, long[:10])
	}
}

func TestSchedulePackKeepsOneTimer(t *testing.T) {
	pack := testPack("a", models.PackTypeRandom)
	h := newHarness(t, []*models.Pack{pack})

	for i := 0; i < 3; i++ {
		if err := h.s.SchedulePack(pack); err != nil {
			t.Fatalf("SchedulePack: %v", err)
		}
	}
	timers := h.s.ActiveTimers()
	if len(timers) != 1 {
		t.Fatalf("ActiveTimers = %d, want 1", len(timers))
	}
	want := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	if !timers[0].FireAt.Equal(want) {
		t.Errorf("FireAt = %v, want %v", timers[0].FireAt, want)
	}
	if timers[0].Remaining != "1h0m0s" {
		t.Errorf("Remaining = %q, want 1h0m0s", timers[0].Remaining)
	}

	pack.Settings.NotificationTime = "07:30"
	if err := h.s.SchedulePack(pack); err != nil {
		t.Fatalf("SchedulePack: %v", err)
	}
	timers = h.s.ActiveTimers()
	if len(timers) != 1 || !timers[0].FireAt.Equal(time.Date(2026, 5, 11, 7, 30, 0, 0, time.UTC)) {
		t.Errorf("after time change timers = %+v", timers)
	}
}

func TestScheduleAllIsolatesInvalidTime(t *testing.T) {
	good := testPack("good", models.PackTypeRandom)
	bad := testPack("bad", models.PackTypeRandom)
	bad.Settings.NotificationTime = "9am"
	off := testPack("off", models.PackTypeRandom)
	off.Settings.NotificationsEnabled = false
	h := newHarness(t, []*models.Pack{good, bad, off})

	err := h.s.ScheduleAll([]*models.Pack{good, bad, off})
	if !errors.Is(err, models.ErrFormat) {
		t.Fatalf("ScheduleAll error = %v, want ErrFormat", err)
	}
	var ids []string
	for _, info := range h.s.ActiveTimers() {
		ids = append(ids, info.PackID)
	}
	if diff := cmp.Diff([]string{"good"}, ids); diff != "" {
		t.Errorf("scheduled packs mismatch (-want +got):\n%s", diff)
	}

	good.Settings.NotificationsEnabled = false
	if err := h.s.SchedulePack(good); err != nil {
		t.Fatalf("SchedulePack disabled: %v", err)
	}
	if n := len(h.s.ActiveTimers()); n != 0 {
		t.Errorf("disabled pack left %d timers", n)
	}
}

func TestReloadCancelsRemovedPacks(t *testing.T) {
	a := testPack("a", models.PackTypeRandom)
	b := testPack("b", models.PackTypeRandom)
	h := newHarness(t, []*models.Pack{a, b})
	if err := h.s.ScheduleAll([]*models.Pack{a, b}); err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	if err := h.s.Reload([]*models.Pack{b}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	timers := h.s.ActiveTimers()
	if len(timers) != 1 || timers[0].PackID != "b" {
		t.Errorf("timers after reload = %+v", timers)
	}
	if h.s.Unschedule("a") {
		t.Error("Unschedule(a) = true after reload removed it")
	}
	if !h.s.Unschedule("b") {
		t.Error("Unschedule(b) = false")
	}
}

func TestFireQueuesAndReschedules(t *testing.T) {
	pack := testPack("a", models.PackTypeSequential)
	h := newHarness(t, []*models.Pack{pack})
	fireAt := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	h.clock.Set(fireAt)

	h.s.fire("a", fireAt)

	if n := h.s.PendingDeliveries(); n != 1 {
		t.Errorf("PendingDeliveries = %d, want 1", n)
	}
	timers := h.s.ActiveTimers()
	if len(timers) != 1 || !timers[0].FireAt.Equal(fireAt.AddDate(0, 0, 1)) {
		t.Errorf("timers after fire = %+v, want one at %v", timers, fireAt.AddDate(0, 0, 1))
	}

	// A timer firing early by the host clock still moves on to the next day.
	h.clock.Set(fireAt.Add(-time.Second))
	h.s.fire("a", fireAt)
	timers = h.s.ActiveTimers()
	if len(timers) != 1 || !timers[0].FireAt.Equal(fireAt.AddDate(0, 0, 1)) {
		t.Errorf("early fire rescheduled to %+v", timers)
	}
}

func TestSweepMissedAnnouncesOnce(t *testing.T) {
	ledger := store.NewInMemoryStore()
	pack := testPack("a", models.PackTypeRandom)
	h := newHarness(t, []*models.Pack{pack}, WithNoticeLedger(ledger))
	ctx := context.Background()

	if err := h.s.SchedulePack(pack); err != nil {
		t.Fatalf("SchedulePack: %v", err)
	}
	if n := h.s.SweepMissed(ctx); n != 0 {
		t.Fatalf("SweepMissed before fire time = %d, want 0", n)
	}

	h.clock.Set(morning.Add(65 * time.Minute))
	if n := h.s.SweepMissed(ctx); n != 1 {
		t.Fatalf("SweepMissed = %d, want 1", n)
	}
	timers := h.s.ActiveTimers()
	if len(timers) != 1 || !timers[0].FireAt.Equal(time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("timers after sweep = %+v", timers)
	}
	if n := h.s.SweepMissed(ctx); n != 0 {
		t.Errorf("second SweepMissed = %d, want 0", n)
	}
	if n := h.s.PendingDeliveries(); n != 1 {
		t.Errorf("PendingDeliveries = %d, want 1", n)
	}

	// A restarted scheduler sharing the ledger does not announce the same fire again.
	restarted := newHarness(t, []*models.Pack{pack}, WithNoticeLedger(ledger))
	if err := restarted.s.SchedulePack(pack); err != nil {
		t.Fatalf("SchedulePack: %v", err)
	}
	restarted.clock.Set(morning.Add(65 * time.Minute))
	if n := restarted.s.SweepMissed(ctx); n != 0 {
		t.Errorf("SweepMissed after restart = %d, want 0", n)
	}
	if n := len(restarted.s.ActiveTimers()); n != 1 {
		t.Errorf("restarted timers = %d, want 1", n)
	}
}

func TestSweepMissedLeavesTimersWithinGrace(t *testing.T) {
	pack := testPack("a", models.PackTypeRandom)
	h := newHarness(t, []*models.Pack{pack}, WithMissedGrace(5*time.Second))
	ctx := context.Background()
	if err := h.s.SchedulePack(pack); err != nil {
		t.Fatalf("SchedulePack: %v", err)
	}
	fireAt := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	for _, late := range []time.Duration{0, 3 * time.Second, 5 * time.Second} {
		h.clock.Set(fireAt.Add(late))
		if n := h.s.SweepMissed(ctx); n != 0 {
			t.Fatalf("SweepMissed %v after fire time = %d, want 0", late, n)
		}
		if timers := h.s.ActiveTimers(); len(timers) != 1 || !timers[0].FireAt.Equal(fireAt) {
			t.Fatalf("timer taken %v after fire time: %+v", late, timers)
		}
	}

	h.clock.Set(fireAt.Add(6 * time.Second))
	if n := h.s.SweepMissed(ctx); n != 1 {
		t.Fatalf("SweepMissed past grace = %d, want 1", n)
	}
}

func TestDeliveryQueuePriority(t *testing.T) {
	q := newDeliveryQueue(time.Hour)
	random := testPack("random", models.PackTypeRandom)
	zen := testPack("zen", models.PackTypeSequential)
	zen.Settings.ZenMode = true
	dated := testPack("dated", models.PackTypeDateBased)
	second := testPack("second", models.PackTypeRandom)

	push := func(pack *models.Pack, promptID string) bool {
		return q.push(&delivery{pack: pack, prompt: &models.Prompt{ID: promptID}, kind: models.NoticeKindPrompt}, morning)
	}
	push(random, "r1")
	push(second, "s1")
	push(zen, "z1")
	push(dated, "d1")
	if push(zen, "z1") {
		t.Error("duplicate (pack, prompt) was queued")
	}

	var order []string
	for {
		d, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, d.pack.ID)
	}
	if diff := cmp.Diff([]string{"dated", "zen", "random", "second"}, order); diff != "" {
		t.Errorf("pop order mismatch (-want +got):\n%s", diff)
	}

	// Recent deliveries of the date-bound pack drop it below the zen pack.
	for i := 0; i < 3; i++ {
		q.recordDelivery("dated", morning.Add(-time.Duration(i)*time.Minute))
	}
	q.recordDelivery("zen", morning.Add(-2*time.Hour))
	push(dated, "d2")
	push(zen, "z2")
	order = order[:0]
	for {
		d, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, d.pack.ID)
	}
	if diff := cmp.Diff([]string{"zen", "dated"}, order); diff != "" {
		t.Errorf("penalised pop order mismatch (-want +got):\n%s", diff)
	}

	if !push(zen, "z1") {
		t.Error("a delivered key could not be queued again")
	}
}

func TestPermissionProbe(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, nil)
	if got := h.s.ProbePermission(ctx); got != models.PermissionDenied {
		t.Errorf("without native channel permission = %q, want denied", got)
	}

	native := &fakeNative{perm: models.PermissionGranted}
	h = newHarness(t, nil, WithNativeChannel(native))
	if got := h.s.Permission(); got != models.PermissionDefault {
		t.Errorf("initial permission = %q, want default", got)
	}
	if got := h.s.ProbePermission(ctx); got != models.PermissionGranted {
		t.Errorf("permission = %q, want granted", got)
	}
	native.probeErr = errors.New("network down")
	if got := h.s.ProbePermission(ctx); got != models.PermissionGranted {
		t.Errorf("failed probe changed permission to %q", got)
	}
	native.probeErr = nil
	native.perm = models.PermissionDenied
	if got := h.s.ProbePermission(ctx); got != models.PermissionDenied {
		t.Errorf("permission = %q, want denied", got)
	}
}

func TestDeliveryChannelSelection(t *testing.T) {
	tests := []struct {
		name        string
		channel     models.DeliveryChannel
		perm        models.Permission
		deliverErr  error
		wantChannel models.DeliveryChannel
		wantNative  int
	}{
		{"native granted", models.ChannelNative, models.PermissionGranted, nil, models.ChannelNative, 1},
		{"native denied falls back", models.ChannelNative, models.PermissionDenied, nil, models.ChannelInApp, 0},
		{"native failure falls back", models.ChannelNative, models.PermissionGranted, errors.New("push rejected"), models.ChannelInApp, 0},
		{"in-app pack", models.ChannelInApp, models.PermissionGranted, nil, models.ChannelInApp, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pack := testPack("a", models.PackTypeRandom)
			pack.Settings.Channel = tt.channel
			native := &fakeNative{perm: tt.perm, deliverErr: tt.deliverErr}
			h := newHarness(t, []*models.Pack{pack}, WithNativeChannel(native))
			if err := h.s.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			fireAt := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
			h.clock.Set(fireAt)
			h.s.fire("a", fireAt)

			var notice models.Notice
			waitFor(t, "delivery", func() bool {
				if n := h.inApp.List(); len(n) > 0 {
					notice = n[0]
					return true
				}
				native.mu.Lock()
				defer native.mu.Unlock()
				if len(native.delivered) > 0 {
					notice = native.delivered[0]
					return true
				}
				return false
			})
			if notice.Channel != tt.wantChannel {
				t.Errorf("delivered on %q, want %q", notice.Channel, tt.wantChannel)
			}
			if notice.Body != "First prompt of a" || notice.Title != "Pack a" || notice.PromptID != "a-1" {
				t.Errorf("unexpected notice %+v", notice)
			}
			if _, got := native.counts(); got != tt.wantNative {
				t.Errorf("native deliveries = %d, want %d", got, tt.wantNative)
			}
			if _, ok := h.s.DeliveredNotice(notice.ID); !ok {
				t.Error("delivered notice not retained")
			}
		})
	}
}

func startAndDeliver(t *testing.T, h *harness, packID string) models.Notice {
	t.Helper()
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fireAt := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	h.clock.Set(fireAt)
	h.s.fire(packID, fireAt)
	waitFor(t, "in-app notice", func() bool { return len(h.inApp.List()) == 1 })
	return h.inApp.List()[0]
}

func TestHandleNoticeClick(t *testing.T) {
	pack := testPack("a", models.PackTypeRandom)
	pack.Settings.ZenMode = true
	notes := &fakeNotes{}
	h := newHarness(t, []*models.Pack{pack}, WithNoteSink(notes))
	notice := startAndDeliver(t, h, "a")
	before := h.s.ActiveTimers()

	if err := h.s.HandleNoticeClick(context.Background(), notice.ID); err != nil {
		t.Fatalf("HandleNoticeClick: %v", err)
	}
	if len(notes.inserted) != 1 || notes.inserted[0].ID != "a-1" {
		t.Errorf("inserted prompts = %+v, want a-1", notes.inserted)
	}
	if diff := cmp.Diff([]string{"2026-05-10.md"}, notes.notes); diff != "" {
		t.Errorf("note mismatch (-want +got):\n%s", diff)
	}
	if !notes.zen {
		t.Error("zen mode not enabled")
	}
	if diff := cmp.Diff([]string{"a"}, h.source.Touched()); diff != "" {
		t.Errorf("touched mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, h.s.ActiveTimers()); diff != "" {
		t.Errorf("click changed the schedule (-want +got):\n%s", diff)
	}

	if err := h.s.HandleNoticeClick(context.Background(), "n_unknown"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown notice error = %v, want ErrNotFound", err)
	}
}

func TestHandleNoticeClickFailureIsReported(t *testing.T) {
	pack := testPack("a", models.PackTypeRandom)
	notes := &fakeNotes{openErr: errors.New("vault read-only")}
	h := newHarness(t, []*models.Pack{pack}, WithNoteSink(notes))
	notice := startAndDeliver(t, h, "a")
	before := h.s.ActiveTimers()

	err := h.s.HandleNoticeClick(context.Background(), notice.ID)
	if !errors.Is(err, models.ErrTransientIO) {
		t.Fatalf("HandleNoticeClick error = %v, want ErrTransientIO", err)
	}
	feed := h.inApp.List()
	if len(feed) != 2 || feed[1].Kind != models.NoticeKindError {
		t.Fatalf("feed = %+v, want the prompt notice then an error notice", feed)
	}
	if !strings.Contains(feed[1].Body, "vault read-only") {
		t.Errorf("error notice body = %q", feed[1].Body)
	}
	if len(h.source.Touched()) != 0 {
		t.Error("failed click still touched the pack")
	}
	if diff := cmp.Diff(before, h.s.ActiveTimers()); diff != "" {
		t.Errorf("failed click changed the schedule (-want +got):\n%s", diff)
	}
}

func TestMissedNoticeClickFetchesPrompt(t *testing.T) {
	pack := testPack("a", models.PackTypeRandom)
	notes := &fakeNotes{}
	h := newHarness(t, []*models.Pack{pack}, WithNoteSink(notes))
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.s.SchedulePack(pack); err != nil {
		t.Fatalf("SchedulePack: %v", err)
	}
	h.clock.Set(morning.Add(2 * time.Hour))
	if n := h.s.SweepMissed(context.Background()); n != 1 {
		t.Fatalf("SweepMissed = %d, want 1", n)
	}
	waitFor(t, "missed notice", func() bool { return len(h.inApp.List()) == 1 })
	missed := h.inApp.List()[0]
	if missed.Kind != models.NoticeKindMissed || missed.Lifetime != models.MissedNoticeLifetime {
		t.Errorf("missed notice = %+v", missed)
	}
	if !strings.Contains(missed.Body, "09:00") {
		t.Errorf("missed notice body %q lacks the due time", missed.Body)
	}

	if err := h.s.HandleNoticeClick(context.Background(), missed.ID); err != nil {
		t.Fatalf("HandleNoticeClick: %v", err)
	}
	if len(notes.inserted) != 1 || notes.inserted[0].ID != "a-1" {
		t.Errorf("inserted prompts = %+v, want a-1", notes.inserted)
	}
}

func TestStartDestroy(t *testing.T) {
	pack := testPack("a", models.PackTypeRandom)
	h := newHarness(t, []*models.Pack{pack})
	ctx := context.Background()
	if err := h.s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := h.s.SchedulePack(pack); err != nil {
		t.Fatalf("SchedulePack: %v", err)
	}
	h.s.Destroy()
	h.s.Destroy()

	if n := len(h.s.ActiveTimers()); n != 0 {
		t.Errorf("timers after Destroy = %d", n)
	}
	if err := h.s.SchedulePack(pack); !errors.Is(err, ErrDestroyed) {
		t.Errorf("SchedulePack after Destroy error = %v, want ErrDestroyed", err)
	}
	if err := h.s.Start(ctx); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Start after Destroy error = %v, want ErrDestroyed", err)
	}
}
