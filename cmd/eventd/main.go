package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/eventdesk/internal/config"
	"github.com/dukerupert/eventdesk/internal/database"
	"github.com/dukerupert/eventdesk/internal/logging"
	"github.com/dukerupert/eventdesk/internal/model"
	"github.com/dukerupert/eventdesk/internal/server"
	"github.com/dukerupert/eventdesk/internal/store"
)

func main() {
	cfg := config.LoadServer()
	logger := logging.Setup(cfg.LogLevel, "text")

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if v, err := database.SchemaVersion(db); err == nil {
		slog.Info("database ready", "path", cfg.DBPath, "schema_version", v)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.New(db, server.Config{TokenTTL: cfg.TokenTTL, Registry: reg}, logger)

	if err := seedAdmin(srv.UserStore(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
		slog.Error("failed to seed admin", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("eventd starting", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// seedAdmin creates the configured admin account on first start, or promotes
// an existing account with that email.
func seedAdmin(users *store.UserStore, email, password string) error {
	if email == "" {
		return nil
	}
	existing, err := users.GetByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Role == model.RoleAdmin {
			return nil
		}
		slog.Info("promoting user to admin", "user_id", existing.ID)
		return users.SetRole(existing.ID, model.RoleAdmin)
	}
	if password == "" {
		slog.Warn("EVENTD_ADMIN_EMAIL set without EVENTD_ADMIN_PASSWORD, skipping admin seed")
		return nil
	}
	u, err := users.Create("Administrator", email, password, model.RoleAdmin)
	if err != nil {
		return err
	}
	slog.Info("admin account created", "user_id", u.ID)
	return nil
}
