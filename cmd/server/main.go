// Package main is the entry point for the slotbook server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/slotbook/backend/internal/api"
	"github.com/slotbook/backend/internal/api/handlers"
	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/booking"
	"github.com/slotbook/backend/internal/calendar"
	"github.com/slotbook/backend/internal/config"
	"github.com/slotbook/backend/internal/storage"
	"github.com/slotbook/backend/internal/storage/postgres"
	"github.com/slotbook/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	fs := pflag.NewFlagSet("slotbook", pflag.ExitOnError)
	config.RegisterFlags(fs)
	healthCheck := fs.Bool("health-check", false, "Run health check and exit")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Server.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(newLogHandler(cfg.Log)))

	// Allow overriding version via environment (e.g., injected by container build/runtime)
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting slotbook", "version", version, "storage", cfg.Storage.Driver, "provider", cfg.Calendar.Provider)

	st, err := openStores(cfg.Storage)
	if err != nil {
		return err
	}
	defer st.close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	sessions, err := auth.NewSessions(auth.SessionConfig{
		Secret:     []byte(cfg.Auth.SessionSecret),
		TTL:        cfg.Auth.SessionTTL,
		CookieName: cfg.Auth.CookieName,
		Secure:     cfg.Auth.CookieSecure,
	})
	if err != nil {
		return err
	}

	var provider calendar.Provider
	switch cfg.Calendar.Provider {
	case config.ProviderMock:
		provider = calendar.NewMockProvider(cfg.CalendarCallbackURL(), cfg.Calendar.MockEmail)
	default:
		provider = calendar.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.CalendarCallbackURL())
	}
	calendars := calendar.NewService(provider, st.tokens, calendar.Options{
		RefreshWindow:     cfg.Calendar.RefreshWindow,
		EnforceEmailMatch: cfg.Calendar.EnforceEmailMatch,
	})

	scheduler := calendar.NewScheduler(calendars, cfg.Calendar.RefreshInterval)
	if err := scheduler.Start(ctx); err != nil {
		slog.Warn("failed to start token refresh scheduler", "error", err)
	}
	// Catch up on tokens that lapsed while the server was down.
	scheduler.TriggerRefresh(ctx)

	var signIn *auth.GoogleSignIn
	if cfg.GoogleSignInEnabled() {
		signIn = auth.NewGoogleSignIn(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.SignInCallbackURL())
	}
	if cfg.Auth.DevLogin {
		slog.Warn("development login is enabled")
	}

	router := api.NewRouter(api.Deps{
		Sessions:  sessions,
		Users:     st.users,
		Bookings:  booking.NewService(st.bookingTypes, websocket.NewEventBroadcaster(hub)),
		Calendars: calendars,
		Hub:       hub,
		Scheduler: scheduler,
		SignIn:    signIn,
		DevLogin:  cfg.Auth.DevLogin,
		DB:        st.ping,
		Status: handlers.StatusInfo{
			Version:  version,
			Storage:  cfg.Storage.Driver,
			Provider: provider.Name(),
		},
		CalendarPage: cfg.Calendar.PageURL,
		Slots:        calendar.DefaultSlotConfig,
		StaticDir:    cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serveErr:
		return fmt.Errorf("serving http: %w", err)
	}

	scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// stores bundles the repositories of the configured driver.
type stores struct {
	users        auth.UserStore
	bookingTypes booking.Store
	tokens       calendar.TokenStore
	ping         handlers.Pinger
	close        func()
}

func openStores(cfg config.StorageConfig) (*stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			users:        storage.NewMemoryUsers(),
			bookingTypes: storage.NewMemoryBookingTypes(),
			tokens:       storage.NewMemoryCalendarTokens(),
			close:        func() {},
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres connection pool: %w", err)
		}
		return &stores{
			users:        postgres.NewUsers(db),
			bookingTypes: postgres.NewBookingTypes(db),
			tokens:       postgres.NewCalendarTokens(db),
			ping:         handlers.PingFunc(sqlDB.PingContext),
			close:        func() { sqlDB.Close() },
		}, nil

	default:
		dbPath := filepath.Join(cfg.DataDir, "slotbook.db")
		db, err := storage.NewDB(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
		}
		slog.Info("database ready", "path", db.Path())
		return &stores{
			users:        storage.NewUserRepository(db),
			bookingTypes: storage.NewBookingTypeRepository(db),
			tokens:       storage.NewCalendarTokenRepository(db),
			ping:         db,
			close:        func() { db.Close() },
		}, nil
	}
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
