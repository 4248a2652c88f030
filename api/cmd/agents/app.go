package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"study-agents/api/internal/agent"
	"study-agents/api/internal/config"
	"study-agents/api/internal/handle"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/llm/gemini"
	"study-agents/api/internal/logx"
	"study-agents/api/internal/store"
)

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	logOut io.Closer

	engine *gemini.Engine
	caller *llm.Caller
	orch   *agent.Orchestrator

	db   *sql.DB
	runs *store.RunRepo
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, out := logx.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	slog.SetDefault(logger)
	return &app{cfg: cfg, log: logger, logOut: out}, nil
}

// openStore connects and migrates when DB_DRIVER is set. Without it runs are
// not persisted.
func (a *app) openStore(ctx context.Context) error {
	if a.cfg.DBDriver == "" {
		a.log.Info("DB_DRIVER not set, run history disabled")
		return nil
	}
	db, err := store.Open(ctx, a.cfg.DBDriver, a.cfg.DSN())
	if err != nil {
		return err
	}
	if err := store.Migrate(db, a.cfg.DBDriver); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	a.runs = store.NewRunRepo(db, a.cfg.DBDriver)
	a.log.Info("db connected", "driver", a.cfg.DBDriver, "dsn", config.SafeDSNSummary(a.cfg.DSN()))
	return nil
}

func (a *app) openLLM(ctx context.Context) error {
	if err := a.cfg.RequireGemini(); err != nil {
		return err
	}
	tiers, err := a.cfg.Tiers()
	if err != nil {
		return err
	}
	engine, err := gemini.New(ctx, a.cfg.GeminiAPIKey, a.log)
	if err != nil {
		return err
	}
	a.engine = engine
	a.caller = llm.NewCaller(tiers, a.log)

	var opts []agent.Option
	if a.runs != nil {
		opts = append(opts, agent.WithRecorder(a.runs))
	}
	a.orch = agent.New(engine, a.caller, a.log, opts...)
	a.log.Info("models", "tiers", tiers.Map())
	return nil
}

// setup opens the store (if configured) and the model engine.
func setup(ctx context.Context) (*app, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openLLM(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logOut.Close()
}

func (a *app) startJanitor(ctx context.Context) {
	if a.runs == nil {
		return
	}
	j := &store.Janitor{Runs: a.runs, Retention: a.cfg.RunRetention, Interval: time.Hour, Log: a.log}
	go j.Start(ctx)
}

func (a *app) handleOptions() []handle.Option {
	opts := []handle.Option{handle.WithTimeout(a.cfg.RequestTimeout)}
	if a.runs != nil {
		opts = append(opts, handle.WithRuns(a.runs), handle.WithDB(a.db))
	}
	return opts
}

// serveHTTP runs srv until ctx is done, then shuts it down.
func (a *app) serveHTTP(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		a.log.Warn("shutdown error", "error", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
