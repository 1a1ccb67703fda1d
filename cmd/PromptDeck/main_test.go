package main

import (
	"flag"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/PromptDeck/internal/api"
	"github.com/BTreeMap/PromptDeck/internal/engine"
	"github.com/BTreeMap/PromptDeck/internal/store"
)

var configEnvKeys = []string{
	"PROMPTDECK_STATE_DIR", "PROMPTDECK_DB_DSN", "DATABASE_URL", "PROMPTDECK_SQLITE_DRIVER",
	"PROMPTDECK_PACKS_FILE", "PROMPTDECK_NOTES_DIR", "PROMPTDECK_NOTE_TEMPLATE", "API_ADDR",
	"PROMPTDECK_NATIVE", "PROMPTDECK_RECIPIENT", "WHATSAPP_DB_DSN", "PROMPTDECK_WATCH_PACKS",
	"PROMPTDECK_FLUSH_DELAY",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func newFlagSet() *flag.FlagSet {
	fset := flag.NewFlagSet("PromptDeck", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	return fset
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	config := loadEnvironmentConfig()

	want := Config{
		StateDir:     DefaultStateDir,
		DatabaseDSN:  filepath.Join(DefaultStateDir, DefaultDBFileName),
		SQLiteDriver: store.DriverSQLiteCGO,
		PacksFile:    filepath.Join(DefaultStateDir, DefaultPacksFileName),
		NotesDir:     filepath.Join(DefaultStateDir, DefaultNotesDirName),
		APIAddr:      api.DefaultAddr,
		Native:       NativeNone,
		WhatsAppDSN:  "file:" + filepath.Join(DefaultStateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on",
		WatchPacks:   true,
		FlushDelay:   engine.DefaultFlushDelay,
	}
	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PROMPTDECK_STATE_DIR", "/srv/deck")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/deck")
	t.Setenv("PROMPTDECK_WATCH_PACKS", "off")
	t.Setenv("PROMPTDECK_FLUSH_DELAY", "750ms")
	t.Setenv("PROMPTDECK_SQLITE_DRIVER", store.DriverSQLitePure)

	config := loadEnvironmentConfig()
	if config.DatabaseDSN != "postgres://u:p@db/deck" {
		t.Errorf("DatabaseDSN = %q, want DATABASE_URL", config.DatabaseDSN)
	}
	if config.PacksFile != "/srv/deck/packs.yaml" || config.NotesDir != "/srv/deck/notes" {
		t.Errorf("derived paths = %q, %q", config.PacksFile, config.NotesDir)
	}
	if config.WatchPacks || config.FlushDelay != 750*time.Millisecond || config.SQLiteDriver != store.DriverSQLitePure {
		t.Errorf("config = %+v", config)
	}

	t.Setenv("PROMPTDECK_DB_DSN", "memory")
	if got := loadEnvironmentConfig().DatabaseDSN; got != "memory" {
		t.Errorf("PROMPTDECK_DB_DSN did not take precedence: %q", got)
	}
}

func TestParseCommandLineFlagsRebasesStateDir(t *testing.T) {
	clearConfigEnv(t)
	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(newFlagSet(), []string{"-state-dir", "/tmp/deck", "-packs", "/etc/deck.yaml"}, config)
	if err != nil {
		t.Fatalf("parseCommandLineFlags: %v", err)
	}
	got := map[string]string{
		"db":       *flags.dbDSN,
		"packs":    *flags.packsFile,
		"notes":    *flags.notesDir,
		"whatsapp": *flags.whatsappDSN,
	}
	want := map[string]string{
		"db":       "/tmp/deck/promptdeck.db",
		"packs":    "/etc/deck.yaml",
		"notes":    "/tmp/deck/notes",
		"whatsapp": "file:/tmp/deck/whatsmeow.db?_foreign_keys=on",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rebased paths mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCommandLineFlagsNative(t *testing.T) {
	clearConfigEnv(t)
	config := loadEnvironmentConfig()
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"default none", nil, false},
		{"twilio with recipient", []string{"-native", "twilio", "-recipient", "+15551234567"}, false},
		{"whatsapp without recipient", []string{"-native", "whatsapp"}, true},
		{"unknown backend", []string{"-native", "pager", "-recipient", "1"}, true},
		{"bad duration", []string{"-flush-delay", "soon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCommandLineFlags(newFlagSet(), tt.args, config)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseCommandLineFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestBuildStoreOptions(t *testing.T) {
	tests := []struct {
		dsn  string
		want int
	}{
		{"memory", 0},
		{"", 0},
		{"postgres://u:p@db/deck", 1},
		{"/var/lib/promptdeck/promptdeck.db", 2},
	}
	for _, tt := range tests {
		dsn, driver := tt.dsn, store.DriverSQLiteCGO
		flags := Flags{dbDSN: &dsn, sqliteDriver: &driver}
		if got := len(buildStoreOptions(flags)); got != tt.want {
			t.Errorf("buildStoreOptions(%q) = %d options, want %d", tt.dsn, got, tt.want)
		}
	}
}

func TestLoadPacksMissingFile(t *testing.T) {
	provider, packs, err := loadPacks(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || provider != nil || packs != nil {
		t.Errorf("loadPacks(missing) = %v, %v, %v; want nothing", provider, packs, err)
	}
}
