package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/config"
	"github.com/alejandrodnm/polydesk/internal/adapters/httpapi"
	"github.com/alejandrodnm/polydesk/internal/adapters/notify"
	"github.com/alejandrodnm/polydesk/internal/adapters/polymarket"
	"github.com/alejandrodnm/polydesk/internal/adapters/reasoner"
	"github.com/alejandrodnm/polydesk/internal/adapters/storage"
	"github.com/alejandrodnm/polydesk/internal/application/engine"
	"github.com/alejandrodnm/polydesk/internal/application/handoff"
	"github.com/alejandrodnm/polydesk/internal/application/hypothesis"
	"github.com/alejandrodnm/polydesk/internal/application/tools"
	"github.com/alejandrodnm/polydesk/internal/application/trading"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

// desk agrupa todo lo cableado a partir de la config.
type desk struct {
	repo      *storage.Repository
	console   *notify.Console
	markets   *polymarket.Client
	trading   *trading.Service
	registry  *tools.Registry
	scheduler *engine.Scheduler
}

func build(ctx context.Context, cfg *config.Config) (*desk, error) {
	docs, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Storage.Backend,
		Dir:      cfg.Storage.Dir,
		DSN:      cfg.Storage.DSN,
		RedisURL: cfg.Storage.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	repo := storage.NewRepository(docs)

	console := notify.NewConsole()
	var notifier ports.Notifier = console
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewMulti(console, notify.NewWebhook(cfg.Notify.WebhookURL, 10*time.Second))
	}

	var agent ports.Reasoner = reasoner.Log{}
	if cfg.Reasoner.URL != "" {
		agent = reasoner.NewHTTP(cfg.Reasoner.URL, cfg.ReasonerTimeout())
	}

	markets := polymarket.NewClient(cfg.API.GammaBase)

	handoffs := handoff.New(repo)
	hyps := hypothesis.New(repo, handoffs, hypothesis.Config{
		MinEvidence:           cfg.Hypothesis.MinEvidence,
		MinEvidenceConfidence: cfg.Hypothesis.MinEvidenceConfidence,
		DefaultMinSampleSize:  cfg.Hypothesis.DefaultMinSampleSize,
	})
	svc := trading.NewService(repo, hyps, notifier, limitsFrom(cfg.Risk))

	p, err := svc.Bootstrap(ctx, decimal.NewFromFloat(cfg.Portfolio.StartingCapital))
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("bootstrap portfolio: %w", err)
	}
	slog.Info("portfolio ready",
		"cash", p.Cash.StringFixed(2),
		"positions", len(p.Positions),
		"starting_capital", p.StartingCapital.StringFixed(2),
	)

	registry := tools.NewDesk(tools.Deps{
		Trading:    svc,
		Hypotheses: hyps,
		Handoffs:   handoffs,
		Markets:    markets,
	})
	scheduler := engine.New(svc, hyps, handoffs, markets, agent, engine.Config{
		Interval:          cfg.TickInterval(),
		DispatchThreshold: cfg.Scheduler.DispatchThreshold,
	})

	return &desk{
		repo:      repo,
		console:   console,
		markets:   markets,
		trading:   svc,
		registry:  registry,
		scheduler: scheduler,
	}, nil
}

func limitsFrom(r config.RiskConfig) trading.Limits {
	return trading.Limits{
		MaxMarketExposure: decimal.NewFromFloat(r.MaxMarketExposurePct),
		MaxPositions:      r.MaxPositions,
		CashReservePct:    decimal.NewFromFloat(r.CashReservePct),
		AutoMax:           decimal.NewFromFloat(r.AutoMax),
		NotifyMax:         decimal.NewFromFloat(r.NotifyMax),
		ValidationGate:    decimal.NewFromFloat(r.ValidationGateAmount),
	}
}

func (d *desk) Close() {
	if err := d.repo.Close(); err != nil {
		slog.Warn("close storage", "err", err)
	}
}

// printSummary valora el portfolio con los precios de Gamma y lo imprime.
func (d *desk) printSummary(ctx context.Context) error {
	p, err := d.trading.Portfolio(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		ids = append(ids, pos.Market)
	}
	prices := map[string]decimal.Decimal{}
	if len(ids) > 0 {
		markets, err := d.markets.FetchMarkets(ctx, ids)
		if err != nil {
			slog.Warn("prices unavailable, marking at cost", "err", err)
		}
		for id, mk := range markets {
			if mk.YesPrice.IsPositive() {
				prices[id] = mk.YesPrice
			}
		}
	}

	d.console.PrintPortfolio(trading.Summarize(p, prices, d.trading.Limits()))
	return nil
}

func (d *desk) tickOnce(ctx context.Context) error {
	res, err := d.scheduler.Tick(ctx)
	if err != nil {
		return err
	}
	d.console.PrintSignals(res.Signals)
	slog.Info("tick dispatched", "task", res.Task.ID, "action", res.Task.Action, "urgency", res.Task.Urgency)
	return res.Err
}

// serve levanta la API de tools y, si loop es true, el scheduler.
// Ambos paran con ctx.
func (d *desk) serve(ctx context.Context, addr string, loop bool) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(d.registry),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("tool API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if loop {
		go func() {
			if err := d.scheduler.Run(ctx); err != nil {
				slog.Error("scheduler exited", "err", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("shutting down tool API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
