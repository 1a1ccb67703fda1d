// Package scheduler provides periodic job scheduling for PromptDeck.
//
// It runs background maintenance, such as the missed-notification sweep and
// the permission re-probe, from cron expressions or "@every" descriptors.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser plus descriptors such as "@every 1m", with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns the entry id, or an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		slog.Error("Scheduler.AddJob: invalid expression", "expr", expr, "error", err)
		return 0, err
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "expr", expr, "entryID", id)
	return id, nil
}

// Remove cancels a scheduled job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
