package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/discovery"
	"github.com/dock-ai/registry/pkg/entitycard"
	"github.com/dock-ai/registry/pkg/repositories"
)

// RefreshStats counts the outcome of one revalidation run.
type RefreshStats struct {
	Checked   int
	Refreshed int
	Removed   int
	Failed    int
}

// CardRefresher periodically re-crawls indexed Entity Cards. A card that
// became invalid or now declares another domain is removed from the index; a
// card that is merely unreachable is kept and retried on the next run.
type CardRefresher struct {
	indexer *cardIndexer
	source  entitycard.Source
	cfg     config.RefreshConfig
	maxAge  time.Duration
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewCardRefresher creates a CardRefresher. Cards fetched more than maxAge
// ago are due for revalidation.
func NewCardRefresher(
	scope database.ScopeFunc,
	cards repositories.EntityCardRepository,
	pending repositories.PendingProviderRepository,
	source entitycard.Source,
	detector discovery.Detector,
	cfg config.RefreshConfig,
	maxAge time.Duration,
	logger *zap.Logger,
) *CardRefresher {
	named := logger.Named("card-refresh")
	return &CardRefresher{
		indexer: &cardIndexer{
			scope:    scope,
			cards:    cards,
			pending:  pending,
			detector: detector,
			logger:   named,
			now:      time.Now,
		},
		source: source,
		cfg:    cfg,
		maxAge: maxAge,
		logger: named,
	}
}

// Start schedules RunOnce on the configured cron spec.
func (r *CardRefresher) Start() error {
	cl := cronLogger{r.logger}
	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	))
	if _, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error("Entity card revalidation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	r.logger.Info("Entity card revalidation scheduled", zap.String("schedule", r.cfg.Schedule))
	return nil
}

// Stop stops scheduling and waits for a running revalidation, or for ctx.
func (r *CardRefresher) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce revalidates up to BatchSize of the stalest indexed cards.
func (r *CardRefresher) RunOnce(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats

	domains, err := r.staleDomains(ctx)
	if err != nil {
		return stats, err
	}

	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++

		card, err := r.source.FetchFresh(ctx, domain)
		switch {
		case err == nil:
			if _, err := r.indexer.index(ctx, domain, card); err != nil {
				stats.Failed++
				r.logger.Warn("Failed to re-index entity card", zap.String("domain", domain), zap.Error(err))
				continue
			}
			stats.Refreshed++
		case errors.Is(err, apperrors.ErrInvalidCard), errors.Is(err, apperrors.ErrDomainMismatch):
			if err := r.remove(ctx, domain); err != nil {
				stats.Failed++
				r.logger.Warn("Failed to remove entity card", zap.String("domain", domain), zap.Error(err))
				continue
			}
			stats.Removed++
			r.logger.Info("Removed entity card that no longer validates", zap.String("domain", domain))
		default:
			stats.Failed++
			r.logger.Debug("Entity card unreachable, keeping indexed copy", zap.String("domain", domain), zap.Error(err))
		}
	}

	if stats.Checked > 0 {
		r.logger.Info("Entity card revalidation finished",
			zap.Int("checked", stats.Checked),
			zap.Int("refreshed", stats.Refreshed),
			zap.Int("removed", stats.Removed),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

func (r *CardRefresher) staleDomains(ctx context.Context) ([]string, error) {
	ctx, cleanup, err := r.indexer.scope(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	domains, err := r.indexer.cards.ListStale(ctx, r.indexer.now().Add(-r.maxAge), r.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale entity cards: %w", err)
	}
	return domains, nil
}

func (r *CardRefresher) remove(ctx context.Context, domain string) error {
	r.source.Invalidate(ctx, domain)

	ctx, cleanup, err := r.indexer.scope(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	if err := r.indexer.cards.Delete(ctx, domain); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
