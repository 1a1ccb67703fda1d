// Package notes provides a file-backed daily note surface.
//
// Each day gets one markdown file named YYYY-MM-DD.md, created from a
// text/template. Opened prompts replace the {{prompt}} placeholder line of the
// note, or are appended under a "## Prompt" heading once no placeholder is left.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

const (
	// PromptPlaceholder marks where an inserted prompt goes.
	PromptPlaceholder = "{{prompt}}"
	// PromptHeading introduces prompts appended to a note without a placeholder.
	PromptHeading = "## Prompt"
	// DefaultTemplate is used when no template is configured.
	DefaultTemplate = "# {{.Title}}\n\n{{prompt}}\n"
	// DefaultTitleFormat formats the {{.Title}} of a note.
	DefaultTitleFormat = "Monday, January 2, 2006"

	dateFormat = "2006-01-02"
)

// Opts holds configuration for a FileNoteSink.
type Opts struct {
	Template    string
	TitleFormat string
}

// Option configures a FileNoteSink.
type Option func(*Opts)

// WithTemplate sets the template new notes are rendered from.
func WithTemplate(text string) Option {
	return func(o *Opts) {
		o.Template = text
	}
}

// WithTitleFormat sets the time layout of {{.Title}}.
func WithTitleFormat(layout string) Option {
	return func(o *Opts) {
		o.TitleFormat = layout
	}
}

// templateData is exposed to note templates.
type templateData struct {
	Date  string
	Title string
}

// FileNoteSink stores daily notes as markdown files in one directory.
type FileNoteSink struct {
	dir         string
	tmpl        *template.Template
	titleFormat string

	mu  sync.Mutex
	zen bool
}

// NewFileNoteSink creates the notes directory if needed and parses the template.
func NewFileNoteSink(dir string, opts ...Option) (*FileNoteSink, error) {
	o := Opts{Template: DefaultTemplate, TitleFormat: DefaultTitleFormat}
	for _, opt := range opts {
		opt(&o)
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: notes directory is required", models.ErrValidation)
	}
	// {{prompt}} renders as itself so the placeholder survives into the note.
	tmpl, err := template.New("daily-note").
		Funcs(template.FuncMap{"prompt": func() string { return PromptPlaceholder }}).
		Parse(o.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: note template: %w", models.ErrValidation, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create notes directory: %w", models.ErrTransientIO, err)
	}
	return &FileNoteSink{dir: dir, tmpl: tmpl, titleFormat: o.TitleFormat}, nil
}

// NotePath returns the file holding the note of the given day.
func (s *FileNoteSink) NotePath(date time.Time) string {
	return filepath.Join(s.dir, date.Format(dateFormat)+".md")
}

// CreateOrOpenDailyNote returns the path of the day's note, rendering it from
// the template first if it does not exist.
func (s *FileNoteSink) CreateOrOpenDailyNote(ctx context.Context, date time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrTransientIO, err)
	}
	path := s.NotePath(date)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: stat note: %w", models.ErrTransientIO, err)
	}

	var b strings.Builder
	data := templateData{Date: date.Format(dateFormat), Title: date.Format(s.titleFormat)}
	if err := s.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: render note: %w", models.ErrValidation, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, nil
		}
		return "", fmt.Errorf("%w: create note: %w", models.ErrTransientIO, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: write note: %w", models.ErrTransientIO, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: write note: %w", models.ErrTransientIO, err)
	}
	slog.Info("FileNoteSink.CreateOrOpenDailyNote: note created", "path", path)
	return path, nil
}

// InsertPrompt writes the prompt content into the note.
func (s *FileNoteSink) InsertPrompt(ctx context.Context, note string, prompt models.Prompt) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(note)
	if err != nil {
		return fmt.Errorf("%w: read note: %w", models.ErrTransientIO, err)
	}
	updated := insertContent(string(raw), strings.TrimSpace(prompt.Content))
	if err := writeAtomic(note, []byte(updated)); err != nil {
		return fmt.Errorf("%w: write note: %w", models.ErrTransientIO, err)
	}
	slog.Debug("FileNoteSink.InsertPrompt: prompt inserted", "path", note, "promptID", prompt.ID)
	return nil
}

// insertContent replaces the first placeholder, or appends a prompt section.
func insertContent(doc, content string) string {
	if strings.Contains(doc, PromptPlaceholder) {
		return strings.Replace(doc, PromptPlaceholder, content, 1)
	}
	if doc != "" && !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	return doc + "\n" + PromptHeading + "\n\n" + content + "\n"
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".note-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// EnableZenMode turns on distraction-free mode.
func (s *FileNoteSink) EnableZenMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.zen {
		slog.Info("FileNoteSink: zen mode enabled")
	}
	s.zen = true
}

// DisableZenMode turns off distraction-free mode.
func (s *FileNoteSink) DisableZenMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zen = false
}

// ZenMode reports whether distraction-free mode is on.
func (s *FileNoteSink) ZenMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zen
}
