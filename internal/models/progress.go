package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ISOMillis is the wire format of progress timestamps: ISO-8601, UTC, millisecond precision.
const ISOMillis = "2006-01-02T15:04:05.000Z07:00"

// IDSet is a set of prompt ids. It serializes as a sorted JSON array.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Clone returns a copy of the set; a nil set stays nil.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of ids.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// Progress tracks completion state of a single pack.
//
// CurrentIndex is a Sequential cursor hint and UsedPrompts is the Random cycle
// membership; strategies ignore the field that does not belong to them.
// A nil UsedPrompts means the cycle has not been initialised yet.
type Progress struct {
	CompletedPrompts IDSet
	CurrentIndex     *int
	UsedPrompts      IDSet
	LastAccessDate   time.Time
}

// EmptyProgress returns progress with no completions and no access date, the
// value stores report for packs they hold no record of.
func EmptyProgress() Progress {
	return Progress{CompletedPrompts: IDSet{}}
}

// NewProgress returns empty progress last accessed at now.
func NewProgress(now time.Time) Progress {
	return Progress{
		CompletedPrompts: IDSet{},
		LastAccessDate:   now,
	}
}

// Clone returns a deep copy of the progress.
func (p Progress) Clone() Progress {
	out := Progress{
		CompletedPrompts: p.CompletedPrompts.Clone(),
		UsedPrompts:      p.UsedPrompts.Clone(),
		LastAccessDate:   p.LastAccessDate,
	}
	if out.CompletedPrompts == nil {
		out.CompletedPrompts = IDSet{}
	}
	if p.CurrentIndex != nil {
		idx := *p.CurrentIndex
		out.CurrentIndex = &idx
	}
	return out
}

// ValidateAgainst checks that every completed id belongs to the given prompt ids.
func (p Progress) ValidateAgainst(promptIDs IDSet) error {
	for id := range p.CompletedPrompts {
		if !promptIDs.Has(id) {
			return fmt.Errorf("%w: completed %q", ErrUnknownProgressItem, id)
		}
	}
	if p.CurrentIndex != nil && *p.CurrentIndex < 0 {
		return fmt.Errorf("%w: negative cursor %d", ErrValidation, *p.CurrentIndex)
	}
	return nil
}

type progressWire struct {
	CompletedPrompts []string  `json:"completedPrompts"`
	CurrentIndex     *int      `json:"currentIndex,omitempty"`
	UsedPrompts      *[]string `json:"usedPrompts,omitempty"`
	LastAccessDate   string    `json:"lastAccessDate"`
}

// MarshalJSON encodes sets as sorted arrays and the access date as an ISO string.
// An absent cycle set is omitted; an empty one is kept as [].
func (p Progress) MarshalJSON() ([]byte, error) {
	w := progressWire{
		CompletedPrompts: p.CompletedPrompts.Sorted(),
		CurrentIndex:     p.CurrentIndex,
		LastAccessDate:   p.LastAccessDate.UTC().Format(ISOMillis),
	}
	if p.UsedPrompts != nil {
		used := p.UsedPrompts.Sorted()
		w.UsedPrompts = &used
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var w progressWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: progress: %v", ErrValidation, err)
	}
	out := Progress{
		CompletedPrompts: NewIDSet(w.CompletedPrompts...),
		CurrentIndex:     w.CurrentIndex,
	}
	if w.UsedPrompts != nil {
		out.UsedPrompts = NewIDSet(*w.UsedPrompts...)
	}
	if w.LastAccessDate != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.LastAccessDate)
		if err != nil {
			return fmt.Errorf("%w: lastAccessDate: %v", ErrValidation, err)
		}
		out.LastAccessDate = ts
	}
	*p = out
	return nil
}
