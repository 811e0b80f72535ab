package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paywall/crypto"
	"paywall/native/paywall"
	"paywall/observability"
)

const (
	defaultInterval = 10 * time.Second
	defaultBatch    = 100
)

// Registrar publishes display metadata for a minted access credential.
type Registrar interface {
	Register(ctx context.Context, intent paywall.MetadataIntent) error
}

// Outbox is the subset of the engine the worker drains.
type Outbox interface {
	PendingMetadata(limit int) ([]paywall.MetadataIntent, error)
	MarkMetadataRegistered(credential [32]byte) error
}

// LogRegistrar records intents in the structured log. It is the registrar
// used when no external metadata service is configured.
type LogRegistrar struct {
	Logger *slog.Logger
}

// Register implements Registrar.
func (r LogRegistrar) Register(_ context.Context, intent paywall.MetadataIntent) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("credential metadata registered",
		slog.String("credential", crypto.FormatHash(intent.Credential)),
		slog.String("article", crypto.FormatHash(intent.Article)),
		slog.String("owner", crypto.FormatAccount(intent.Owner)),
		slog.String("name", intent.Name),
		slog.String("uri", intent.URI),
		slog.String("standard", intent.Standard.String()),
	)
	return nil
}

// Config tunes the polling loop.
type Config struct {
	Interval time.Duration
	Batch    int
}

// Worker drains the metadata outbox on a fixed interval. Failed intents stay
// in the outbox and are retried on the next tick.
type Worker struct {
	outbox    Outbox
	registrar Registrar
	interval  time.Duration
	batch     int
	logger    *slog.Logger
	metrics   *observability.PaywallMetrics
}

// NewWorker constructs a worker. A nil registrar logs intents.
func NewWorker(outbox Outbox, registrar Registrar, cfg Config, logger *slog.Logger, metrics *observability.PaywallMetrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if registrar == nil {
		registrar = LogRegistrar{Logger: logger}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	batch := cfg.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Worker{
		outbox:    outbox,
		registrar: registrar,
		interval:  interval,
		batch:     batch,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.outbox == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				w.logger.Warn("metadata drain failed", slog.Any("error", err))
			}
		}
	}
}

// Drain registers one batch of pending intents and returns how many were
// delivered. Registration failures are logged and left for the next pass.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	pending, err := w.outbox.PendingMetadata(w.batch)
	if err != nil {
		return 0, fmt.Errorf("metadata: load pending: %w", err)
	}
	w.metrics.SetMetadataPending(len(pending))
	delivered := 0
	for _, intent := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := w.registrar.Register(ctx, intent); err != nil {
			w.metrics.RecordMetadata("failed")
			w.logger.Warn("credential metadata registration failed",
				slog.String("credential", crypto.FormatHash(intent.Credential)),
				slog.Any("error", err))
			continue
		}
		if err := w.outbox.MarkMetadataRegistered(intent.Credential); err != nil {
			return delivered, fmt.Errorf("metadata: mark registered: %w", err)
		}
		w.metrics.RecordMetadata("registered")
		delivered++
	}
	return delivered, nil
}
