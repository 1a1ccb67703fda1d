package notes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

var day = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func readNote(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read note: %v", err)
	}
	return string(b)
}

func TestCreateOrOpenDailyNote(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileNoteSink(dir)
	if err != nil {
		t.Fatalf("NewFileNoteSink: %v", err)
	}
	ctx := context.Background()

	path, err := sink.CreateOrOpenDailyNote(ctx, day)
	if err != nil {
		t.Fatalf("CreateOrOpenDailyNote: %v", err)
	}
	if want := filepath.Join(dir, "2026-05-10.md"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if diff := cmp.Diff("# Sunday, May 10, 2026\n\n{{prompt}}\n", readNote(t, path)); diff != "" {
		t.Errorf("rendered note mismatch (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(path, []byte("edited by hand\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	again, err := sink.CreateOrOpenDailyNote(ctx, day)
	if err != nil || again != path {
		t.Fatalf("reopen = %q, %v", again, err)
	}
	if got := readNote(t, path); got != "edited by hand\n" {
		t.Errorf("reopening overwrote the note: %q", got)
	}
}

func TestInsertPrompt(t *testing.T) {
	tests := []struct {
		name     string
		template string
		prompts  []string
		want     string
	}{
		{
			name:     "placeholder replaced",
			template: DefaultTemplate,
			prompts:  []string{"What went well?"},
			want:     "# Sunday, May 10, 2026\n\nWhat went well?\n",
		},
		{
			name:     "second prompt appended",
			template: DefaultTemplate,
			prompts:  []string{"What went well?", "What surprised you?"},
			want:     "# Sunday, May 10, 2026\n\nWhat went well?\n\n## Prompt\n\nWhat surprised you?\n",
		},
		{
			name:     "template without placeholder",
			template: "Journal {{.Date}}",
			prompts:  []string{"  Breathe.  "},
			want:     "Journal 2026-05-10\n\n## Prompt\n\nBreathe.\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewFileNoteSink(t.TempDir(), WithTemplate(tt.template))
			if err != nil {
				t.Fatalf("NewFileNoteSink: %v", err)
			}
			ctx := context.Background()
			path, err := sink.CreateOrOpenDailyNote(ctx, day)
			if err != nil {
				t.Fatalf("CreateOrOpenDailyNote: %v", err)
			}
			for i, content := range tt.prompts {
				if err := sink.InsertPrompt(ctx, path, models.Prompt{ID: "p", Content: content}); err != nil {
					t.Fatalf("InsertPrompt %d: %v", i, err)
				}
			}
			if diff := cmp.Diff(tt.want, readNote(t, path)); diff != "" {
				t.Errorf("note mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileNoteSinkErrors(t *testing.T) {
	if _, err := NewFileNoteSink(""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty dir error = %v, want ErrValidation", err)
	}
	if _, err := NewFileNoteSink(t.TempDir(), WithTemplate("{{.Title")); !errors.Is(err, models.ErrValidation) {
		t.Errorf("bad template error = %v, want ErrValidation", err)
	}

	sink, err := NewFileNoteSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileNoteSink: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sink.CreateOrOpenDailyNote(ctx, day); !errors.Is(err, models.ErrTransientIO) {
		t.Errorf("cancelled create error = %v, want ErrTransientIO", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.md")
	if err := sink.InsertPrompt(context.Background(), missing, models.Prompt{Content: "x"}); !errors.Is(err, models.ErrTransientIO) {
		t.Errorf("missing note error = %v, want ErrTransientIO", err)
	}
}

func TestZenMode(t *testing.T) {
	sink, err := NewFileNoteSink(t.TempDir(), WithTitleFormat("2006"))
	if err != nil {
		t.Fatalf("NewFileNoteSink: %v", err)
	}
	if sink.ZenMode() {
		t.Fatal("zen mode on by default")
	}
	sink.EnableZenMode()
	sink.EnableZenMode()
	if !sink.ZenMode() {
		t.Error("EnableZenMode did not enable")
	}
	sink.DisableZenMode()
	if sink.ZenMode() {
		t.Error("DisableZenMode did not disable")
	}
}
