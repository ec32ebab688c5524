package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"exocal/internal/auth"
	"exocal/internal/calendar"
	"exocal/internal/config"
	"exocal/internal/database"
	"exocal/internal/editor"
	"exocal/internal/holiday"
	"exocal/internal/logging"
	"exocal/internal/remote"
	"exocal/internal/remote/authclient"
	"exocal/internal/remote/docstore"
	"exocal/internal/session"
	"exocal/internal/view"
)

func main() {
	configPath := flag.String("config", "exocal.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyEnvOverrides(cfg)

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	sessions, err := session.NewStore(db, logger)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	var vault *session.Vault
	if key := os.Getenv("EXOCAL_VAULT_KEY"); key != "" {
		vault = session.NewVault(db, key)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, using local", "timezone", cfg.Timezone)
		loc = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := authclient.New(authclient.Config{
		BaseURL: cfg.AuthURL,
		APIKey:  cfg.APIKey,
	}, logger)
	defer provider.Close()

	term := newTerminal(os.Stdin, os.Stdout)

	ident := resumeSession(ctx, provider, vault, logger)
	if ident == nil {
		ident, err = term.signIn(ctx, provider)
		if err != nil {
			log.Fatalf("sign-in failed: %v", err)
		}
	}
	saveRefreshToken(vault, ident, logger)

	docStore, err := docstore.Dial(ctx, cfg.StoreURL, ident.IDToken, logger)
	if err != nil {
		log.Fatalf("failed to connect to document store: %v", err)
	}
	defer docStore.Close()

	renderer := view.NewText(os.Stdout)

	resolver := auth.NewResolver(sessions, docStore, statusSink{renderer}, logger)
	nav := &terminalNav{logger: logger}
	watcher := auth.NewWatcher(resolver, nav, logger)
	stopWatch := watcher.Watch(provider)
	defer stopWatch()

	holidaySvc := holidayService(cfg, logger)
	var holidayProvider calendar.HolidayProvider
	if holidaySvc != nil {
		holidayProvider = holidaySvc
	}

	ctrl := calendar.NewController(docStore, sessions, holidayProvider, renderer, logger)
	ctrl.UseLocation(loc)
	stopCtrl := ctrl.Start()
	defer stopCtrl()

	workflow := editor.NewWorkflow(docStore, sessions, term, logger)

	// The daily job drops the holiday cache and resubscribes the displayed
	// month, which refetches the overlay and repaints with the new "today".
	refresh := func() {
		if holidaySvc != nil {
			holidaySvc.Invalidate()
		}
		year, month := ctrl.Displayed()
		ctrl.ShowMonth(year, month)
		ctrl.Refresh()
	}

	sched := cron.New(cron.WithLocation(loc))
	if _, err := sched.AddFunc(cfg.RefreshCron, refresh); err != nil {
		logger.Warn("invalid refresh schedule", "schedule", cfg.RefreshCron, "error", err)
	} else {
		sched.Start()
		defer sched.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		term.run(ctx, ctrl, workflow, provider, vault)
	}()

	select {
	case <-quit:
		fmt.Println("\nShutting down...")
		cancel()
	case <-done:
	}
}

// applyEnvOverrides lets deployment settings come from the environment
// without editing the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("EXOCAL_AUTH_URL"); v != "" {
		cfg.AuthURL = v
	}
	if v := os.Getenv("EXOCAL_STORE_URL"); v != "" {
		cfg.StoreURL = v
	}
	if v := os.Getenv("EXOCAL_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("EXOCAL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
}

// resumeSession tries to restore the previous sign-in from the vaulted
// refresh token. Any failure falls through to an interactive sign-in.
func resumeSession(ctx context.Context, provider *authclient.Client, vault *session.Vault, logger *slog.Logger) *remote.Identity {
	if vault == nil {
		return nil
	}
	token, err := vault.Get(session.VaultEntryRefreshToken)
	if err != nil || len(token) == 0 {
		if err != nil {
			logger.Warn("refresh token unavailable", "error", err)
		}
		return nil
	}
	ident, err := provider.Resume(ctx, string(token))
	if err != nil {
		logger.Warn("session resume failed", "error", err)
		return nil
	}
	logger.Info("session resumed", "uid", ident.UID)
	return ident
}

func saveRefreshToken(vault *session.Vault, ident *remote.Identity, logger *slog.Logger) {
	if vault == nil || ident == nil || ident.RefreshToken == "" {
		return
	}
	if err := vault.Put(session.VaultEntryRefreshToken, []byte(ident.RefreshToken)); err != nil {
		logger.Warn("failed to store refresh token", "error", err)
	}
}

func holidayService(cfg *config.Config, logger *slog.Logger) *holiday.Service {
	switch cfg.Holidays.Source {
	case "api":
		return holiday.NewService(holiday.NewAPISource(cfg.Holidays.Country), logger)
	case "ics":
		return holiday.NewService(holiday.NewICSSource(cfg.Holidays.ICSURL), logger)
	default:
		return nil
	}
}

// statusSink routes auth notices to the status panel.
type statusSink struct {
	renderer calendar.Renderer
}

func (s statusSink) Notice(msg string) { s.renderer.RenderStatus(msg) }

// terminalNav satisfies auth.Navigator for a single-surface terminal
// client: "navigation" is just logged, the prompt stays where it is.
type terminalNav struct {
	logger *slog.Logger
	page   string
}

func (n *terminalNav) CurrentPage() string {
	if n.page == "" {
		return auth.PageLogin
	}
	return n.page
}

func (n *terminalNav) Navigate(page string) {
	n.page = page
	n.logger.Info("view changed", "page", page)
}
