package notify

import (
	"time"

	"github.com/BTreeMap/PromptDeck/internal/messaging"
	"github.com/BTreeMap/PromptDeck/internal/scheduler"
	"github.com/BTreeMap/PromptDeck/internal/store"
)

// Default timings for the notification scheduler.
const (
	// DefaultSweepSpec runs the missed-fire sweep every minute.
	DefaultSweepSpec = "@every 1m"
	// DefaultMissedGrace is how long past its fire instant a timer may still
	// fire on its own before the sweep treats it as missed.
	DefaultMissedGrace = 5 * time.Second
	// DefaultPermissionSpec re-probes native permission once a day.
	DefaultPermissionSpec = "@every 24h"
	// DefaultPruneSpec prunes the missed-notice ledger nightly.
	DefaultPruneSpec = "@daily"
	// DefaultInterItemDelay separates consecutive queued deliveries.
	DefaultInterItemDelay = 500 * time.Millisecond
	// DefaultRecentWindow is the span over which delivery volume lowers priority.
	DefaultRecentWindow = time.Hour
	// DefaultLedgerRetention bounds how long missed-notice keys are remembered.
	DefaultLedgerRetention = 7 * 24 * time.Hour
	// DefaultDeliveredHistory is how many delivered notices stay clickable.
	DefaultDeliveredHistory = 200
)

// Opts holds configuration for the NotificationScheduler.
type Opts struct {
	Native          messaging.Channel
	Prober          messaging.PermissionProber
	Notes           NoteSink
	Ledger          store.NoticeLedger
	Cron            *scheduler.Scheduler
	Now             func() time.Time
	Location        *time.Location
	SweepSpec       string
	MissedGrace     time.Duration
	PermissionSpec  string
	PruneSpec       string
	InterItemDelay  time.Duration
	RecentWindow    time.Duration
	LedgerRetention time.Duration
	MaxBodyLength   int
	History         int
}

// Option configures the NotificationScheduler.
type Option func(*Opts)

// WithNativeChannel enables native delivery. If ch also implements
// messaging.PermissionProber it is used to probe permission.
func WithNativeChannel(ch messaging.Channel) Option {
	return func(o *Opts) {
		o.Native = ch
		if p, ok := ch.(messaging.PermissionProber); ok && o.Prober == nil {
			o.Prober = p
		}
	}
}

// WithPermissionProber overrides the permission probe.
func WithPermissionProber(p messaging.PermissionProber) Option {
	return func(o *Opts) {
		o.Prober = p
	}
}

// WithNoteSink sets the note surface used when a notice is opened.
func WithNoteSink(sink NoteSink) Option {
	return func(o *Opts) {
		o.Notes = sink
	}
}

// WithNoticeLedger sets the ledger gating missed notices.
func WithNoticeLedger(ledger store.NoticeLedger) Option {
	return func(o *Opts) {
		o.Ledger = ledger
	}
}

// WithCron runs periodic jobs on a shared scheduler instead of a private one.
func WithCron(c *scheduler.Scheduler) Option {
	return func(o *Opts) {
		o.Cron = c
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithLocation sets the timezone daily notification times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithSweepSpec sets the cron expression of the missed-fire sweep.
func WithSweepSpec(spec string) Option {
	return func(o *Opts) {
		o.SweepSpec = spec
	}
}

// WithMissedGrace sets how late a timer may be before the sweep claims it.
func WithMissedGrace(d time.Duration) Option {
	return func(o *Opts) {
		o.MissedGrace = d
	}
}

// WithPermissionSpec sets the cron expression of the permission re-probe.
func WithPermissionSpec(spec string) Option {
	return func(o *Opts) {
		o.PermissionSpec = spec
	}
}

// WithInterItemDelay sets the pause between queued deliveries.
func WithInterItemDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.InterItemDelay = d
	}
}

// WithRecentWindow sets the span of the recent-volume priority penalty.
func WithRecentWindow(d time.Duration) Option {
	return func(o *Opts) {
		o.RecentWindow = d
	}
}

// WithMaxBodyLength bounds the formatted notice body.
func WithMaxBodyLength(n int) Option {
	return func(o *Opts) {
		o.MaxBodyLength = n
	}
}

func defaultOpts() Opts {
	return Opts{
		Now:             time.Now,
		Location:        time.Local,
		SweepSpec:       DefaultSweepSpec,
		MissedGrace:     DefaultMissedGrace,
		PermissionSpec:  DefaultPermissionSpec,
		PruneSpec:       DefaultPruneSpec,
		InterItemDelay:  DefaultInterItemDelay,
		RecentWindow:    DefaultRecentWindow,
		LedgerRetention: DefaultLedgerRetention,
		MaxBodyLength:   DefaultMaxBodyLength,
		History:         DefaultDeliveredHistory,
	}
}
