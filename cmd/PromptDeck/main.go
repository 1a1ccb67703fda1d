package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/api"
	"github.com/BTreeMap/PromptDeck/internal/engine"
	"github.com/BTreeMap/PromptDeck/internal/lockfile"
	"github.com/BTreeMap/PromptDeck/internal/messaging"
	"github.com/BTreeMap/PromptDeck/internal/models"
	"github.com/BTreeMap/PromptDeck/internal/notes"
	"github.com/BTreeMap/PromptDeck/internal/notify"
	"github.com/BTreeMap/PromptDeck/internal/scheduler"
	"github.com/BTreeMap/PromptDeck/internal/settings"
	"github.com/BTreeMap/PromptDeck/internal/store"
	"github.com/BTreeMap/PromptDeck/internal/twiliowhatsapp"
	"github.com/BTreeMap/PromptDeck/internal/util"
	"github.com/BTreeMap/PromptDeck/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PromptDeck state data
	DefaultStateDir = "/var/lib/promptdeck"
	// DefaultDBFileName is the default SQLite progress database filename
	DefaultDBFileName = "promptdeck.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultPacksFileName is the default pack definition filename
	DefaultPacksFileName = "packs.yaml"
	// DefaultNotesDirName is the default daily notes directory name
	DefaultNotesDirName = "notes"
	// MemoryDSN selects the in-memory progress store
	MemoryDSN = "memory"

	// Native channel backends
	NativeNone     = "none"
	NativeTwilio   = "twilio"
	NativeWhatsApp = "whatsapp"

	shutdownTimeout = 15 * time.Second
	// evictSpec is how often idle pack progress is checked for eviction
	evictSpec = "@every 1m"
)

func main() {
	loadDotEnv()
	initializeLogger(os.Getenv("PROMPTDECK_LOG_LEVEL"))

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping PromptDeck")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "native", *flags.native)
	if err := run(ctx, flags); err != nil {
		slog.Error("PromptDeck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PromptDeck exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir     string
	DatabaseDSN  string
	SQLiteDriver string
	PacksFile    string
	NotesDir     string
	NoteTemplate string
	APIAddr      string
	Native       string
	Recipient    string
	WhatsAppDSN  string
	WatchPacks   bool
	FlushDelay   time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	sqliteDriver *string
	packsFile    *string
	notesDir     *string
	noteTemplate *string
	apiAddr      *string
	native       *string
	recipient    *string
	whatsappDSN  *string
	qrOutput     *string
	numeric      *bool
	watchPacks   *bool
	flushDelay   *time.Duration
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

// initializeLogger installs a text slog handler at the requested level.
func initializeLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig reads configuration from environment variables,
// filling defaults relative to the state directory.
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:     os.Getenv("PROMPTDECK_STATE_DIR"),
		DatabaseDSN:  os.Getenv("PROMPTDECK_DB_DSN"),
		SQLiteDriver: os.Getenv("PROMPTDECK_SQLITE_DRIVER"),
		PacksFile:    os.Getenv("PROMPTDECK_PACKS_FILE"),
		NotesDir:     os.Getenv("PROMPTDECK_NOTES_DIR"),
		NoteTemplate: os.Getenv("PROMPTDECK_NOTE_TEMPLATE"),
		APIAddr:      os.Getenv("API_ADDR"),
		Native:       os.Getenv("PROMPTDECK_NATIVE"),
		Recipient:    os.Getenv("PROMPTDECK_RECIPIENT"),
		WhatsAppDSN:  os.Getenv("WHATSAPP_DB_DSN"),
		WatchPacks:   util.ParseBoolEnv("PROMPTDECK_WATCH_PACKS", true),
		FlushDelay:   util.ParseDurationEnv("PROMPTDECK_FLUSH_DELAY", engine.DefaultFlushDelay),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PROMPTDECK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	// DATABASE_URL is honoured when no explicit progress DSN is set
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	if config.SQLiteDriver == "" {
		config.SQLiteDriver = store.DriverSQLiteCGO
	}
	if config.PacksFile == "" {
		config.PacksFile = filepath.Join(config.StateDir, DefaultPacksFileName)
	}
	if config.NotesDir == "" {
		config.NotesDir = filepath.Join(config.StateDir, DefaultNotesDirName)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.Native == "" {
		config.Native = NativeNone
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("environment variables loaded",
		"PROMPTDECK_STATE_DIR", config.StateDir,
		"PROMPTDECK_DB_DSN_SET", config.DatabaseDSN != "",
		"PROMPTDECK_SQLITE_DRIVER", config.SQLiteDriver,
		"PROMPTDECK_PACKS_FILE", config.PacksFile,
		"PROMPTDECK_NATIVE", config.Native,
		"API_ADDR", config.APIAddr)
	return config
}

// parseCommandLineFlags parses args with environment values as defaults.
func parseCommandLineFlags(fset *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		stateDir:     fset.String("state-dir", config.StateDir, "state directory for PromptDeck data (overrides $PROMPTDECK_STATE_DIR)"),
		dbDSN:        fset.String("db-dsn", config.DatabaseDSN, "progress database DSN, SQLite path, postgres DSN or \"memory\" (overrides $PROMPTDECK_DB_DSN or $DATABASE_URL)"),
		sqliteDriver: fset.String("sqlite-driver", config.SQLiteDriver, "SQLite driver: sqlite3 (cgo) or sqlite (pure Go) (overrides $PROMPTDECK_SQLITE_DRIVER)"),
		packsFile:    fset.String("packs", config.PacksFile, "YAML pack definition file (overrides $PROMPTDECK_PACKS_FILE)"),
		notesDir:     fset.String("notes-dir", config.NotesDir, "daily notes directory (overrides $PROMPTDECK_NOTES_DIR)"),
		noteTemplate: fset.String("note-template", config.NoteTemplate, "daily note template file (overrides $PROMPTDECK_NOTE_TEMPLATE)"),
		apiAddr:      fset.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		native:       fset.String("native", config.Native, "native channel backend: none, twilio or whatsapp (overrides $PROMPTDECK_NATIVE)"),
		recipient:    fset.String("recipient", config.Recipient, "phone number native notices are pushed to (overrides $PROMPTDECK_RECIPIENT)"),
		whatsappDSN:  fset.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:     fset.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:      fset.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		watchPacks:   fset.Bool("watch-packs", config.WatchPacks, "reload the pack file when it changes (overrides $PROMPTDECK_WATCH_PACKS)"),
		flushDelay:   fset.Duration("flush-delay", config.FlushDelay, "delay before batched progress writes (overrides $PROMPTDECK_FLUSH_DELAY)"),
	}
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	// Paths derived from the state directory follow a -state-dir override
	if *flags.stateDir != config.StateDir {
		rebase := func(value *string, def string) {
			if *value == def {
				*value = filepath.Join(*flags.stateDir, filepath.Base(def))
			}
		}
		rebase(flags.dbDSN, filepath.Join(config.StateDir, DefaultDBFileName))
		rebase(flags.packsFile, filepath.Join(config.StateDir, DefaultPacksFileName))
		rebase(flags.notesDir, filepath.Join(config.StateDir, DefaultNotesDirName))
		if *flags.whatsappDSN == "file:"+filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" {
			*flags.whatsappDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
	}

	switch *flags.native {
	case NativeNone, NativeTwilio, NativeWhatsApp:
	default:
		return Flags{}, fmt.Errorf("unknown native backend %q", *flags.native)
	}
	if *flags.native != NativeNone && *flags.recipient == "" {
		return Flags{}, fmt.Errorf("native backend %q requires a recipient", *flags.native)
	}
	return flags, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	dsn := *flags.dbDSN
	if dsn == "" || dsn == MemoryDSN {
		slog.Debug("Using in-memory progress store")
		return nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn, "driver", *flags.sqliteDriver)
	return []store.Option{store.WithSQLiteDSN(dsn), store.WithSQLiteDriver(*flags.sqliteDriver)}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	return waOpts
}

// buildNativeChannel connects the configured push backend. It returns a nil
// channel when native delivery is off.
func buildNativeChannel(ctx context.Context, flags Flags) (messaging.Channel, func(), error) {
	noop := func() {}
	var sender messaging.PushSender
	closeFn := noop
	switch *flags.native {
	case NativeTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, noop, fmt.Errorf("twilio client: %w", err)
		}
		sender = client
	case NativeWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, noop, fmt.Errorf("whatsapp client: %w", err)
		}
		sender = client
		closeFn = client.Close
	default:
		return nil, noop, nil
	}
	ch, err := messaging.NewNativeChannel(sender, *flags.recipient)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	slog.Info("Native channel configured", "backend", *flags.native)
	return ch, closeFn, nil
}

// buildNoteSink creates the daily note sink, reading the template file if set.
func buildNoteSink(flags Flags) (*notes.FileNoteSink, error) {
	var opts []notes.Option
	if *flags.noteTemplate != "" {
		tmpl, err := os.ReadFile(*flags.noteTemplate)
		if err != nil {
			return nil, fmt.Errorf("read note template: %w", err)
		}
		opts = append(opts, notes.WithTemplate(string(tmpl)))
	}
	return notes.NewFileNoteSink(*flags.notesDir, opts...)
}

// loadPacks opens the pack file. A missing file starts PromptDeck with no packs.
func loadPacks(path string) (*settings.Provider, []*models.Pack, error) {
	provider, err := settings.NewProvider(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Pack file not found, starting without packs", "path", path)
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return provider, provider.PromptPacks(), nil
}

// run wires every component and serves the API until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer st.Close()

	eng := engine.NewPromptEngine(st, engine.WithFlushDelay(*flags.flushDelay))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			slog.Error("Engine close left unflushed progress", "error", err)
		}
	}()

	provider, packs, err := loadPacks(*flags.packsFile)
	if err != nil {
		return err
	}
	if err := eng.Sync(ctx, packs); err != nil {
		slog.Error("Some packs could not be loaded", "error", err)
	}

	sink, err := buildNoteSink(flags)
	if err != nil {
		return err
	}

	inApp := messaging.NewInAppChannel(messaging.DefaultFeedCapacity)
	defer inApp.Stop()

	native, closeNative, err := buildNativeChannel(ctx, flags)
	if err != nil {
		return err
	}
	defer closeNative()

	cron := scheduler.NewScheduler()
	defer cron.Stop()
	if _, err := cron.AddJob(evictSpec, func() { eng.Evict() }); err != nil {
		return fmt.Errorf("register eviction job: %w", err)
	}

	notifyOpts := []notify.Option{
		notify.WithNoteSink(sink),
		notify.WithNoticeLedger(st),
		notify.WithCron(cron),
	}
	if native != nil {
		notifyOpts = append(notifyOpts, notify.WithNativeChannel(native))
	}
	notifier := notify.NewNotificationScheduler(eng, eng, inApp, notifyOpts...)
	if err := notifier.Start(ctx); err != nil {
		return fmt.Errorf("start notifications: %w", err)
	}
	defer notifier.Destroy()
	if err := notifier.ScheduleAll(eng.Packs()); err != nil {
		slog.Error("Some packs could not be scheduled", "error", err)
	}

	if provider != nil && *flags.watchPacks {
		watcher, err := provider.NewWatcher(func(packs []*models.Pack) {
			if err := eng.Sync(ctx, packs); err != nil {
				slog.Error("Pack reload incomplete", "error", err)
			}
			if err := notifier.Reload(eng.Packs()); err != nil {
				slog.Error("Pack reschedule incomplete", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("watch packs: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("watch packs: %w", err)
		}
		defer watcher.Stop()
	}

	server := api.NewServer(eng, notifier, inApp, api.WithAddr(*flags.apiAddr))
	return server.Run(ctx)
}
