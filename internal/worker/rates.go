package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crat/backend/internal/config"
)

// RunTimeout bounds a single rate update run
const RunTimeout = 1 * time.Minute

// RateFetcher fetches a batch of USD rates keyed by feed symbol.
type RateFetcher interface {
	FetchRates(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// RateWriter upserts fetched rates into persistent storage.
type RateWriter interface {
	UpsertRate(ctx context.Context, symbol string, value decimal.Decimal) error
}

// RateUpdater periodically refreshes USD rates for the configured
// tokens. It is the sole writer to the rate store; overlapping runs
// are skipped rather than queued, so a slow run simply delays the next
// refresh.
type RateUpdater struct {
	feed    RateFetcher
	store   RateWriter
	symbols []string
	cron    *cron.Cron
	entryID cron.EntryID
	logger  *zap.Logger
}

// NewRateUpdater creates a rate updater for all configured tokens
func NewRateUpdater(feed RateFetcher, store RateWriter, cfg *config.Config, logger *zap.Logger) (*RateUpdater, error) {
	logger = logger.Named("rates")

	symbols := make([]string, 0, len(cfg.Crowdsale.Tokens))
	seen := make(map[string]bool)
	for _, t := range cfg.TokenList() {
		if !seen[t.FeedSymbol] {
			seen[t.FeedSymbol] = true
			symbols = append(symbols, t.FeedSymbol)
		}
	}

	u := &RateUpdater{
		feed:    feed,
		store:   store,
		symbols: symbols,
		logger:  logger,
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{logger}),
	))
	schedule := fmt.Sprintf("@every %dm", cfg.Crowdsale.RatesUpdateMin)
	id, err := c.AddFunc(schedule, u.runOnce)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule rate updates: %w", err)
	}
	u.cron = c
	u.entryID = id

	return u, nil
}

// Start begins the update schedule and performs an initial run so
// rates are available shortly after boot. The initial run goes through
// the same wrapped cron job, so it cannot overlap a scheduled tick.
func (u *RateUpdater) Start() {
	u.logger.Info("Rate updater started",
		zap.Strings("symbols", u.symbols))
	go u.cron.Entry(u.entryID).WrappedJob.Run()
	u.cron.Start()
}

// Shutdown stops the schedule and waits for a running update to finish
func (u *RateUpdater) Shutdown(timeout time.Duration) error {
	stopCtx := u.cron.Stop()
	select {
	case <-stopCtx.Done():
		u.logger.Info("Rate updater stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("rate updater shutdown timed out")
	}
}

// runOnce executes one update run. A feed failure fails the whole run
// with nothing written; the next scheduled tick retries. Symbols
// missing from the response stay stale without failing the run.
func (u *RateUpdater) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()

	if err := u.update(ctx); err != nil {
		u.logger.Error("Rate update run failed", zap.Error(err))
	}
}

func (u *RateUpdater) update(ctx context.Context) error {
	rates, err := u.feed.FetchRates(ctx, u.symbols)
	if err != nil {
		return fmt.Errorf("failed to fetch rates: %w", err)
	}

	updated := 0
	for _, symbol := range u.symbols {
		rate, ok := rates[symbol]
		if !ok {
			u.logger.Warn("Feed response missing symbol, rate stays stale",
				zap.String("symbol", symbol))
			continue
		}

		if err := u.store.UpsertRate(ctx, symbol, rate); err != nil {
			return fmt.Errorf("failed to upsert rate for %s: %w", symbol, err)
		}
		updated++
	}

	u.logger.Info("Rates updated",
		zap.Int("updated", updated),
		zap.Int("requested", len(u.symbols)))
	return nil
}

// cronLogger adapts zap to the cron logger interface
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
