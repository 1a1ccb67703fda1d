// Package notify schedules and delivers the daily prompt notices.
//
// A NotificationScheduler keeps at most one live timer per pack. When a timer
// fires the next prompt is queued for delivery and the pack is rescheduled for
// its next daily occurrence. A periodic sweep announces fires that elapsed
// without running, and opening a delivered notice hands the prompt to the
// note surface.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/PromptDeck/internal/messaging"
	"github.com/BTreeMap/PromptDeck/internal/models"
	"github.com/BTreeMap/PromptDeck/internal/scheduler"
	"github.com/BTreeMap/PromptDeck/internal/store"
	"github.com/BTreeMap/PromptDeck/internal/util"
)

// ErrDestroyed is returned once the scheduler has been torn down.
var ErrDestroyed = errors.New("notification scheduler destroyed")

// PromptSource hands out prompts and records interactions.
type PromptSource interface {
	GetNextPrompt(packID string) (*models.Prompt, error)
	TouchPack(packID string) error
}

// SettingsLookup resolves the current definition of a pack.
type SettingsLookup interface {
	GetPromptPack(packID string) (*models.Pack, bool)
}

// NoteSink is the note surface a clicked prompt is written to.
type NoteSink interface {
	// CreateOrOpenDailyNote returns a handle to the note of the given day.
	CreateOrOpenDailyNote(ctx context.Context, date time.Time) (string, error)
	// InsertPrompt writes the prompt into the note.
	InsertPrompt(ctx context.Context, note string, prompt models.Prompt) error
	EnableZenMode()
	DisableZenMode()
}

type deliveredNotice struct {
	notice models.Notice
	prompt *models.Prompt
}

// NotificationScheduler owns the per-pack timers and the delivery queue.
type NotificationScheduler struct {
	source   PromptSource
	settings SettingsLookup
	inApp    messaging.Channel
	opts     Opts
	timers   *timerRegistry
	queue    *deliveryQueue

	mu         sync.RWMutex
	permission models.Permission
	delivered  map[string]deliveredNotice
	order      []string
	started    bool
	destroyed  bool
	ctx        context.Context
	cancel     context.CancelFunc
	ownsCron   bool
	jobs       []cron.EntryID
	wg         sync.WaitGroup
}

// NewNotificationScheduler creates a scheduler delivering through inApp, and
// through the native channel when one is configured and permitted.
func NewNotificationScheduler(source PromptSource, settings SettingsLookup, inApp messaging.Channel, opts ...Option) *NotificationScheduler {
	o := defaultOpts()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Ledger == nil {
		o.Ledger = store.NewInMemoryStore()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return &NotificationScheduler{
		source:     source,
		settings:   settings,
		inApp:      inApp,
		opts:       o,
		timers:     newTimerRegistry(),
		queue:      newDeliveryQueue(o.RecentWindow),
		permission: models.PermissionDefault,
		delivered:  make(map[string]deliveredNotice),
		ctx:        context.Background(),
	}
}

func (s *NotificationScheduler) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// Start probes permission, starts the delivery loop and registers the
// periodic sweep, permission re-probe and ledger prune. Calling it again is a no-op.
func (s *NotificationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	if s.opts.Cron == nil {
		s.opts.Cron = scheduler.NewScheduler()
		s.ownsCron = true
	}
	s.wg.Add(1)
	go s.drain(runCtx)
	s.mu.Unlock()

	s.ProbePermission(ctx)

	jobs := []struct {
		spec string
		fn   func()
	}{
		{s.opts.SweepSpec, func() { s.SweepMissed(runCtx) }},
		{s.opts.PermissionSpec, func() { s.ProbePermission(runCtx) }},
		{s.opts.PruneSpec, func() { s.pruneLedger(runCtx) }},
	}
	registered := 0
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		id, err := s.opts.Cron.AddJob(job.spec, job.fn)
		if err != nil {
			return fmt.Errorf("register job %q: %w", job.spec, err)
		}
		s.mu.Lock()
		s.jobs = append(s.jobs, id)
		s.mu.Unlock()
		registered++
	}
	slog.Info("NotificationScheduler.Start: started", "permission", s.Permission(), "jobs", registered)
	return nil
}

// Destroy cancels every timer and periodic job and waits for the delivery
// loop to exit. Queued deliveries are dropped.
func (s *NotificationScheduler) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	cancel := s.cancel
	jobs := s.jobs
	s.jobs = nil
	c := s.opts.Cron
	owns := s.ownsCron
	s.mu.Unlock()

	if c != nil {
		if owns {
			c.Stop()
		} else {
			for _, id := range jobs {
				c.Remove(id)
			}
		}
	}
	s.timers.stop()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	slog.Info("NotificationScheduler.Destroy: stopped", "dropped", s.queue.len())
}

// SchedulePack arms the pack's daily timer, replacing any live one. A pack
// with notifications disabled has its timer cancelled.
func (s *NotificationScheduler) SchedulePack(pack *models.Pack) error {
	return s.scheduleFrom(pack, s.now())
}

func (s *NotificationScheduler) scheduleFrom(pack *models.Pack, ref time.Time) error {
	if pack == nil {
		return fmt.Errorf("%w: nil pack", models.ErrValidation)
	}
	if !pack.Settings.NotificationsEnabled {
		if s.timers.cancel(pack.ID) {
			slog.Debug("NotificationScheduler.SchedulePack: notifications disabled, timer cancelled", "packID", pack.ID)
		}
		return nil
	}
	fireAt, err := NextFireTime(pack.Settings.NotificationTime, ref.In(s.opts.Location))
	if err != nil {
		s.timers.cancel(pack.ID)
		slog.Error("NotificationScheduler.SchedulePack: invalid notification time", "packID", pack.ID, "time", pack.Settings.NotificationTime, "error", err)
		return fmt.Errorf("pack %s: %w", pack.ID, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return ErrDestroyed
	}
	packID := pack.ID
	s.timers.schedule(packID, s.now(), fireAt, func() {
		s.fire(packID, fireAt)
	})
	slog.Debug("NotificationScheduler.SchedulePack: timer armed", "packID", packID, "fireAt", fireAt)
	return nil
}

// ScheduleAll schedules every pack. One pack's failure does not stop the others.
func (s *NotificationScheduler) ScheduleAll(packs []*models.Pack) error {
	var errs []error
	for _, pack := range packs {
		if err := s.SchedulePack(pack); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unschedule cancels the pack's timer. It reports whether one was live.
func (s *NotificationScheduler) Unschedule(packID string) bool {
	return s.timers.cancel(packID)
}

// Reload reconciles timers with a new pack list: timers of packs no longer
// present are cancelled and every listed pack is rescheduled.
func (s *NotificationScheduler) Reload(packs []*models.Pack) error {
	keep := make(map[string]struct{}, len(packs))
	for _, pack := range packs {
		if pack != nil {
			keep[pack.ID] = struct{}{}
		}
	}
	for _, info := range s.timers.list(s.now()) {
		if _, ok := keep[info.PackID]; !ok {
			s.timers.cancel(info.PackID)
			slog.Debug("NotificationScheduler.Reload: pack removed, timer cancelled", "packID", info.PackID)
		}
	}
	return s.ScheduleAll(packs)
}

// fire runs when a pack's timer expires.
func (s *NotificationScheduler) fire(packID string, fireAt time.Time) {
	now := s.now()
	pack, ok := s.settings.GetPromptPack(packID)
	if !ok {
		slog.Warn("NotificationScheduler.fire: pack no longer exists", "packID", packID)
		return
	}
	if !pack.Settings.NotificationsEnabled {
		return
	}

	prompt, err := s.source.GetNextPrompt(packID)
	switch {
	case err != nil:
		slog.Error("NotificationScheduler.fire: next prompt failed", "packID", packID, "error", err)
	case prompt == nil:
		slog.Info("NotificationScheduler.fire: nothing left to deliver", "packID", packID)
	default:
		s.enqueue(&delivery{pack: pack, prompt: prompt, kind: models.NoticeKindPrompt, fireAt: fireAt}, now)
	}

	// Never reschedule before the instant that just fired.
	ref := now
	if fireAt.After(ref) {
		ref = fireAt
	}
	if err := s.scheduleFrom(pack, ref); err != nil && !errors.Is(err, ErrDestroyed) {
		slog.Error("NotificationScheduler.fire: reschedule failed", "packID", packID, "error", err)
	}
}

// SweepMissed cancels timers whose fire instant elapsed more than the missed
// grace ago, announces each missed fire once and reschedules the packs. It
// returns the number of missed notices queued.
func (s *NotificationScheduler) SweepMissed(ctx context.Context) int {
	now := s.now()
	overdue := s.timers.takeOverdue(now, s.opts.MissedGrace)
	if len(overdue) == 0 {
		return 0
	}
	ids := make([]string, 0, len(overdue))
	for id := range overdue {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	announced := 0
	for _, packID := range ids {
		fireAt := overdue[packID]
		pack, ok := s.settings.GetPromptPack(packID)
		if !ok {
			continue
		}
		key := packID + "@" + fireAt.UTC().Format(time.RFC3339)
		isNew, err := s.opts.Ledger.RecordNotice(ctx, key, packID)
		if err != nil {
			slog.Error("NotificationScheduler.SweepMissed: ledger unavailable, announcing anyway", "packID", packID, "error", err)
			isNew = true
		}
		if isNew && pack.Settings.NotificationsEnabled {
			if s.enqueue(&delivery{pack: pack, kind: models.NoticeKindMissed, fireAt: fireAt}, now) {
				announced++
			}
		}
		if err := s.scheduleFrom(pack, now); err != nil && !errors.Is(err, ErrDestroyed) {
			slog.Error("NotificationScheduler.SweepMissed: reschedule failed", "packID", packID, "error", err)
		}
	}
	if announced > 0 {
		slog.Info("NotificationScheduler.SweepMissed: missed notices queued", "count", announced)
	}
	return announced
}

func (s *NotificationScheduler) pruneLedger(ctx context.Context) {
	n, err := s.opts.Ledger.PruneNotices(ctx, s.now().Add(-s.opts.LedgerRetention))
	if err != nil {
		slog.Warn("NotificationScheduler.pruneLedger: prune failed", "error", err)
		return
	}
	slog.Debug("NotificationScheduler.pruneLedger: pruned", "count", n)
}

func (s *NotificationScheduler) enqueue(d *delivery, now time.Time) bool {
	d.pack = d.pack.Clone()
	if !s.queue.push(d, now) {
		slog.Debug("NotificationScheduler.enqueue: duplicate delivery dropped", "packID", d.pack.ID, "kind", d.kind)
		return false
	}
	return true
}

// PendingDeliveries returns the number of queued deliveries.
func (s *NotificationScheduler) PendingDeliveries() int {
	return s.queue.len()
}

// drain delivers queued items one at a time until ctx is cancelled.
func (s *NotificationScheduler) drain(ctx context.Context) {
	defer s.wg.Done()
	for {
		d, ok := s.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.queue.signal:
				continue
			}
		}
		s.deliver(ctx, d)
		if s.opts.InterItemDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.InterItemDelay):
			}
		}
	}
}

// channelFor picks native only when the pack asks for it and permission is granted.
func (s *NotificationScheduler) channelFor(pack *models.Pack) messaging.Channel {
	if pack.Settings.Channel == models.ChannelNative && s.opts.Native != nil && s.Permission() == models.PermissionGranted {
		return s.opts.Native
	}
	return s.inApp
}

func (s *NotificationScheduler) buildNotice(d *delivery, now time.Time) models.Notice {
	n := models.Notice{
		ID:        util.GenerateNoticeID(),
		Kind:      d.kind,
		PackID:    d.pack.ID,
		PackName:  d.pack.Name,
		CreatedAt: now,
	}
	if d.kind == models.NoticeKindMissed {
		n.Title = "Missed: " + d.pack.Name
		n.Body = fmt.Sprintf("Your %s prompt was due at %s. Open it to catch up.", d.pack.Name, d.fireAt.In(s.opts.Location).Format("15:04"))
		n.Lifetime = models.MissedNoticeLifetime
		return n
	}
	n.PromptID = d.prompt.ID
	n.Title = d.pack.Name
	n.Body = FormatContent(d.prompt.Content, s.opts.MaxBodyLength)
	n.Lifetime = models.PromptNoticeLifetime
	return n
}

func (s *NotificationScheduler) deliver(ctx context.Context, d *delivery) {
	now := s.now()
	notice := s.buildNotice(d, now)
	ch := s.channelFor(d.pack)
	notice.Channel = ch.Name()

	err := ch.Deliver(ctx, notice)
	if err != nil && ch != s.inApp {
		slog.Warn("NotificationScheduler.deliver: native delivery failed, falling back to in-app", "packID", d.pack.ID, "error", err)
		notice.Channel = models.ChannelInApp
		err = s.inApp.Deliver(ctx, notice)
	}
	if err != nil {
		slog.Error("NotificationScheduler.deliver: delivery failed", "packID", d.pack.ID, "noticeID", notice.ID, "error", err)
		return
	}
	s.remember(notice, d.prompt)
	s.queue.recordDelivery(d.pack.ID, now)
	slog.Debug("NotificationScheduler.deliver: notice delivered", "packID", d.pack.ID, "noticeID", notice.ID, "channel", notice.Channel, "kind", notice.Kind)
}

func (s *NotificationScheduler) remember(notice models.Notice, prompt *models.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p *models.Prompt
	if prompt != nil {
		cp := prompt.Clone()
		p = &cp
	}
	s.delivered[notice.ID] = deliveredNotice{notice: notice, prompt: p}
	s.order = append(s.order, notice.ID)
	if over := len(s.order) - s.opts.History; over > 0 {
		for _, id := range s.order[:over] {
			delete(s.delivered, id)
		}
		s.order = append(s.order[:0], s.order[over:]...)
	}
}

// DeliveredNotice looks up a recently delivered notice.
func (s *NotificationScheduler) DeliveredNotice(noticeID string) (models.Notice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dn, ok := s.delivered[noticeID]
	return dn.notice, ok
}

// reportError surfaces a failure to the user through the in-app channel.
func (s *NotificationScheduler) reportError(ctx context.Context, packID string, cause error) {
	notice := models.Notice{
		ID:        util.GenerateNoticeID(),
		Kind:      models.NoticeKindError,
		PackID:    packID,
		Title:     "PromptDeck",
		Body:      cause.Error(),
		Channel:   models.ChannelInApp,
		Lifetime:  models.ErrorNoticeLifetime,
		CreatedAt: s.now(),
	}
	if err := s.inApp.Deliver(ctx, notice); err != nil {
		slog.Error("NotificationScheduler.reportError: could not report", "packID", packID, "cause", cause, "error", err)
	}
}

// HandleNoticeClick opens a delivered notice: the prompt goes into today's
// note when the pack uses daily notes, zen mode is enabled if requested and
// the pack is touched. Failures are reported in-app and returned. The pack's
// schedule is never changed.
func (s *NotificationScheduler) HandleNoticeClick(ctx context.Context, noticeID string) error {
	s.mu.RLock()
	dn, ok := s.delivered[noticeID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: notice %q", models.ErrNotFound, noticeID)
	}
	packID := dn.notice.PackID

	fail := func(err error) error {
		slog.Error("NotificationScheduler.HandleNoticeClick: failed", "packID", packID, "noticeID", noticeID, "error", err)
		s.reportError(ctx, packID, err)
		return err
	}

	pack, ok := s.settings.GetPromptPack(packID)
	if !ok {
		return fail(models.PackNotFound(packID))
	}
	prompt := dn.prompt
	if prompt == nil {
		next, err := s.source.GetNextPrompt(packID)
		if err != nil {
			return fail(err)
		}
		prompt = next
	}

	if prompt != nil && pack.Settings.DailyNoteIntegration && s.opts.Notes != nil {
		note, err := s.opts.Notes.CreateOrOpenDailyNote(ctx, s.now())
		if err != nil {
			return fail(fmt.Errorf("%w: open daily note: %w", models.ErrTransientIO, err))
		}
		if err := s.opts.Notes.InsertPrompt(ctx, note, *prompt); err != nil {
			return fail(fmt.Errorf("%w: insert prompt: %w", models.ErrTransientIO, err))
		}
	}
	if pack.Settings.ZenMode && s.opts.Notes != nil {
		s.opts.Notes.EnableZenMode()
	}
	if err := s.source.TouchPack(packID); err != nil {
		return fail(err)
	}
	slog.Info("NotificationScheduler.HandleNoticeClick: notice opened", "packID", packID, "noticeID", noticeID)
	return nil
}

// ProbePermission asks the native channel whether it may deliver and records
// the answer. Without a native channel permission is denied. A failed probe
// keeps the previous state.
func (s *NotificationScheduler) ProbePermission(ctx context.Context) models.Permission {
	if s.opts.Native == nil {
		return s.setPermission(models.PermissionDenied)
	}
	if s.opts.Prober == nil {
		return s.setPermission(models.PermissionGranted)
	}
	perm, err := s.opts.Prober.RequestPermission(ctx)
	if err != nil {
		slog.Warn("NotificationScheduler.ProbePermission: probe failed, keeping state", "error", err)
		return s.Permission()
	}
	return s.setPermission(perm)
}

func (s *NotificationScheduler) setPermission(perm models.Permission) models.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission != perm {
		slog.Info("NotificationScheduler.ProbePermission: permission changed", "from", s.permission, "to", perm)
		s.permission = perm
	}
	return perm
}

// Permission returns the last probed native permission.
func (s *NotificationScheduler) Permission() models.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permission
}

// ActiveTimers returns the live timers ordered by fire time.
func (s *NotificationScheduler) ActiveTimers() []models.TimerInfo {
	return s.timers.list(s.now())
}
