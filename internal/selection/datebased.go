package selection

import (
	"math"
	"sort"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// DateStatus summarises completion of the prompts dated on one day.
type DateStatus struct {
	Date        time.Time `json:"date"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	Percentage  int       `json:"percentage"`
	IsCompleted bool      `json:"is_completed"`
}

// DateBased binds prompts to local calendar days. Time of day is ignored.
type DateBased struct {
	now func() time.Time
	loc *time.Location
}

// DateOption configures a DateBased strategy.
type DateOption func(*DateBased)

// WithClock overrides the source of "today".
func WithClock(now func() time.Time) DateOption {
	return func(d *DateBased) { d.now = now }
}

// WithLocation overrides the timezone used to truncate dates to days.
func WithLocation(loc *time.Location) DateOption {
	return func(d *DateBased) { d.loc = loc }
}

// NewDateBased creates the date-based strategy using the local timezone.
func NewDateBased(opts ...DateOption) *DateBased {
	d := &DateBased{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Type implements Strategy.
func (d *DateBased) Type() models.PackType { return models.PackTypeDateBased }

// Day truncates t to the start of its calendar day in the strategy's timezone.
func (d *DateBased) Day(t time.Time) time.Time {
	t = t.In(d.loc)
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.loc)
}

func (d *DateBased) today() time.Time {
	return d.Day(d.now())
}

// daysBetween counts calendar days from a to b, immune to DST-length days.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func (d *DateBased) promptDay(p models.Prompt) (time.Time, bool) {
	if p.Date == nil {
		return time.Time{}, false
	}
	return d.Day(*p.Date), true
}

// SelectNext returns the first uncompleted prompt dated today.
func (d *DateBased) SelectNext(pack *models.Pack) (*models.Prompt, error) {
	return d.SelectForDate(pack, d.now())
}

// SelectForDate returns the first uncompleted prompt dated on target's day, in list order.
func (d *DateBased) SelectForDate(pack *models.Pack, target time.Time) (*models.Prompt, error) {
	if err := checkType("selectNext", models.PackTypeDateBased, pack); err != nil {
		return nil, err
	}
	want := d.Day(target)
	for _, p := range pack.Prompts {
		if day, ok := d.promptDay(p); ok && day.Equal(want) && !pack.Progress.CompletedPrompts.Has(p.ID) {
			return clonePtr(p), nil
		}
	}
	return nil, nil
}

// PromptsForDate returns every prompt dated on date's day, in list order.
func (d *DateBased) PromptsForDate(pack *models.Pack, date time.Time) ([]models.Prompt, error) {
	if err := checkType("promptsForDate", models.PackTypeDateBased, pack); err != nil {
		return nil, err
	}
	want := d.Day(date)
	return d.filter(pack, func(p models.Prompt, day time.Time) bool {
		return day.Equal(want)
	}), nil
}

// MissedPrompts returns uncompleted prompts dated strictly before cutoff's day, ascending.
func (d *DateBased) MissedPrompts(pack *models.Pack, cutoff time.Time) ([]models.Prompt, error) {
	if err := checkType("missedPrompts", models.PackTypeDateBased, pack); err != nil {
		return nil, err
	}
	limit := d.Day(cutoff)
	out := d.filter(pack, func(p models.Prompt, day time.Time) bool {
		return day.Before(limit) && !pack.Progress.CompletedPrompts.Has(p.ID)
	})
	sortByDate(out)
	return out, nil
}

// UpcomingPrompts returns prompts dated strictly after start's day, ascending, completed or not.
func (d *DateBased) UpcomingPrompts(pack *models.Pack, start time.Time) ([]models.Prompt, error) {
	if err := checkType("upcomingPrompts", models.PackTypeDateBased, pack); err != nil {
		return nil, err
	}
	from := d.Day(start)
	out := d.filter(pack, func(p models.Prompt, day time.Time) bool {
		return day.After(from)
	})
	sortByDate(out)
	return out, nil
}

// CatchUpPrompts returns missed prompts at most maxDaysBack days before today, ascending.
func (d *DateBased) CatchUpPrompts(pack *models.Pack, maxDaysBack int) ([]models.Prompt, error) {
	today := d.today()
	missed, err := d.MissedPrompts(pack, today)
	if err != nil {
		return nil, err
	}
	out := make([]models.Prompt, 0, len(missed))
	for _, p := range missed {
		day, _ := d.promptDay(p)
		if daysBetween(day, today) <= maxDaysBack {
			out = append(out, p)
		}
	}
	return out, nil
}

// NeedsCatchUp is true iff CatchUpPrompts is non-empty.
func (d *DateBased) NeedsCatchUp(pack *models.Pack, maxDaysBack int) (bool, error) {
	out, err := d.CatchUpPrompts(pack, maxDaysBack)
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

// NextAvailableDate returns the earliest day after from's day that has a prompt.
func (d *DateBased) NextAvailableDate(pack *models.Pack, from time.Time) (time.Time, bool, error) {
	if err := checkType("nextAvailableDate", models.PackTypeDateBased, pack); err != nil {
		return time.Time{}, false, err
	}
	ref := d.Day(from)
	var best time.Time
	found := false
	for _, day := range d.distinctDays(pack) {
		if day.After(ref) && (!found || day.Before(best)) {
			best, found = day, true
		}
	}
	return best, found, nil
}

// MostRecentDate returns the latest day before from's day that has a prompt.
func (d *DateBased) MostRecentDate(pack *models.Pack, from time.Time) (time.Time, bool, error) {
	if err := checkType("mostRecentDate", models.PackTypeDateBased, pack); err != nil {
		return time.Time{}, false, err
	}
	ref := d.Day(from)
	var best time.Time
	found := false
	for _, day := range d.distinctDays(pack) {
		if day.Before(ref) && (!found || day.After(best)) {
			best, found = day, true
		}
	}
	return best, found, nil
}

// DateCompletionStatus reports completion of the prompts dated on date's day.
func (d *DateBased) DateCompletionStatus(pack *models.Pack, date time.Time) (DateStatus, error) {
	prompts, err := d.PromptsForDate(pack, date)
	if err != nil {
		return DateStatus{}, err
	}
	status := DateStatus{Date: d.Day(date), Total: len(prompts)}
	for _, p := range prompts {
		if pack.Progress.CompletedPrompts.Has(p.ID) {
			status.Completed++
		}
	}
	status.Percentage = Percentage(status.Completed, status.Total)
	status.IsCompleted = status.Total > 0 && status.Completed == status.Total
	return status, nil
}

// MarkCompleted implements Strategy.
func (d *DateBased) MarkCompleted(pack *models.Pack, promptID string) error {
	if err := checkType("markCompleted", models.PackTypeDateBased, pack); err != nil {
		return err
	}
	if err := requirePrompt(pack, promptID); err != nil {
		return err
	}
	ensureCompletedSet(pack)
	pack.Progress.CompletedPrompts.Add(promptID)
	return nil
}

// IsCompleted implements Strategy.
func (d *DateBased) IsCompleted(pack *models.Pack) (bool, error) {
	if err := checkType("isCompleted", models.PackTypeDateBased, pack); err != nil {
		return false, err
	}
	return allCompleted(pack), nil
}

// Reset implements Strategy.
func (d *DateBased) Reset(pack *models.Pack) error {
	if err := checkType("reset", models.PackTypeDateBased, pack); err != nil {
		return err
	}
	pack.Progress.CompletedPrompts = models.IDSet{}
	return nil
}

func (d *DateBased) filter(pack *models.Pack, keep func(models.Prompt, time.Time) bool) []models.Prompt {
	out := make([]models.Prompt, 0)
	for _, p := range pack.Prompts {
		day, ok := d.promptDay(p)
		if ok && keep(p, day) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (d *DateBased) distinctDays(pack *models.Pack) []time.Time {
	seen := make(map[time.Time]struct{})
	days := make([]time.Time, 0)
	for _, p := range pack.Prompts {
		day, ok := d.promptDay(p)
		if !ok {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days
}

func sortByDate(prompts []models.Prompt) {
	sort.SliceStable(prompts, func(i, j int) bool {
		return prompts[i].Date.Before(*prompts[j].Date)
	})
}

// Percentage returns round(completed/total*100), or 0 when total is 0.
func Percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
