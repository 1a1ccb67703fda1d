// Package settings loads prompt pack definitions from a YAML file.
//
// The file lists packs with their prompts and delivery settings:
//
//	packs:
//	  - id: morning
//	    name: Morning pages
//	    type: sequential
//	    settings:
//	      time: "07:30"
//	      channel: native
//	    prompts:
//	      - content: What do you want to remember about yesterday?
//
// Omitted settings take the pack defaults. Prompts without an id get a stable
// one derived from the pack id and their position, so progress survives reloads.
// A prompt date such as 2026-12-01 names a calendar day and is read as local
// midnight; full RFC 3339 timestamps are kept as written.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

type packFile struct {
	Packs []packDef `yaml:"packs"`
}

type packDef struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Type     models.PackType `yaml:"type"`
	Settings *settingsDef    `yaml:"settings"`
	Prompts  []promptDef     `yaml:"prompts"`
}

// promptDef reads the date as text so yaml does not resolve it to UTC.
type promptDef struct {
	ID       string            `yaml:"id"`
	Content  string            `yaml:"content"`
	Type     models.PromptType `yaml:"type"`
	Date     string            `yaml:"date"`
	Order    *int              `yaml:"order"`
	Metadata map[string]string `yaml:"metadata"`
}

// dateLayouts are the accepted prompt date forms without a zone.
var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02 15:04"}

// parseDate reads a prompt date. Zone-less values are in loc.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD or RFC 3339", models.ErrValidation, value)
}

func (d promptDef) prompt(loc *time.Location) (models.Prompt, error) {
	p := models.Prompt{
		ID:       d.ID,
		Content:  d.Content,
		Type:     d.Type,
		Order:    d.Order,
		Metadata: d.Metadata,
	}
	if d.Date != "" {
		date, err := parseDate(d.Date, loc)
		if err != nil {
			return models.Prompt{}, err
		}
		p.Date = &date
	}
	return p, nil
}

type settingsDef struct {
	Notifications *bool                  `yaml:"notifications"`
	Time          string                 `yaml:"time"`
	Channel       models.DeliveryChannel `yaml:"channel"`
	ZenMode       *bool                  `yaml:"zen_mode"`
	DailyNote     *bool                  `yaml:"daily_note"`
}

func (d *settingsDef) apply(s *models.PackSettings) {
	if d == nil {
		return
	}
	if d.Notifications != nil {
		s.NotificationsEnabled = *d.Notifications
	}
	if d.Time != "" {
		s.NotificationTime = d.Time
	}
	if d.Channel != "" {
		s.Channel = d.Channel
	}
	if d.ZenMode != nil {
		s.ZenMode = *d.ZenMode
	}
	if d.DailyNote != nil {
		s.DailyNoteIntegration = *d.DailyNote
	}
}

// Parse decodes and validates a pack definition document. Calendar dates are
// interpreted in now's location.
func Parse(data []byte, now time.Time) ([]*models.Pack, error) {
	var file packFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse packs: %w", models.ErrValidation, err)
	}
	packs := make([]*models.Pack, 0, len(file.Packs))
	seen := make(map[string]struct{}, len(file.Packs))
	for i, def := range file.Packs {
		if def.ID == "" {
			return nil, fmt.Errorf("pack %d: %w", i, models.ErrEmptyPackID)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate pack id %q", models.ErrValidation, def.ID)
		}
		seen[def.ID] = struct{}{}

		pack := &models.Pack{
			ID:        def.ID,
			Name:      def.Name,
			Type:      def.Type,
			Prompts:   make([]models.Prompt, 0, len(def.Prompts)),
			Settings:  models.DefaultPackSettings(),
			Progress:  models.NewProgress(now),
			CreatedAt: now,
			UpdatedAt: now,
		}
		def.Settings.apply(&pack.Settings)
		for j, pd := range def.Prompts {
			prompt, err := pd.prompt(now.Location())
			if err != nil {
				return nil, fmt.Errorf("pack %q prompt %d: %w", def.ID, j+1, err)
			}
			if prompt.ID == "" {
				prompt.ID = def.ID + "-" + strconv.Itoa(j+1)
			}
			if prompt.Type == "" {
				prompt.Type = models.PromptTypeText
			}
			pack.Prompts = append(pack.Prompts, prompt)
		}
		if err := pack.Validate(); err != nil {
			return nil, fmt.Errorf("pack %q: %w", def.ID, err)
		}
		packs = append(packs, pack)
	}
	return packs, nil
}

// Provider serves the packs defined in one YAML file.
type Provider struct {
	path string
	now  func() time.Time

	mu    sync.RWMutex
	packs map[string]*models.Pack
	order []string
}

// NewProvider loads the file at path.
func NewProvider(path string) (*Provider, error) {
	p := &Provider{path: path, now: time.Now, packs: make(map[string]*models.Pack)}
	if _, err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Path returns the definition file path.
func (p *Provider) Path() string {
	return p.path
}

// Reload re-reads the file. On error the previously loaded packs are kept.
func (p *Provider) Reload() ([]*models.Pack, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read packs file: %w", models.ErrTransientIO, err)
	}
	packs, err := Parse(data, p.now())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.packs = make(map[string]*models.Pack, len(packs))
	p.order = make([]string, 0, len(packs))
	for _, pack := range packs {
		p.packs[pack.ID] = pack
		p.order = append(p.order, pack.ID)
	}
	p.mu.Unlock()

	slog.Info("Provider.Reload: packs loaded", "path", p.path, "count", len(packs))
	return clonePacks(packs), nil
}

// GetPromptPack returns a copy of the pack definition.
func (p *Provider) GetPromptPack(packID string) (*models.Pack, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pack, ok := p.packs[packID]
	if !ok {
		return nil, false
	}
	return pack.Clone(), true
}

// PromptPacks returns copies of every pack, in file order.
func (p *Provider) PromptPacks() []*models.Pack {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.Pack, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.packs[id].Clone())
	}
	return out
}

func clonePacks(packs []*models.Pack) []*models.Pack {
	out := make([]*models.Pack, len(packs))
	for i, pack := range packs {
		out[i] = pack.Clone()
	}
	return out
}
