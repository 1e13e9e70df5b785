package rates

import (
	"context"
	"sync"
	"time"

	"github.com/dujyo/gasengine/internal/app/services/feecalc"
	"github.com/dujyo/gasengine/internal/app/system"
	"github.com/dujyo/gasengine/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher periodically refreshes the oracle rates for the fee tokens. A
// failed fetch keeps the previous rate; quotes pin whatever rate was current
// when they were issued.
type Refresher struct {
	oracle   *feecalc.StaticOracle
	tokens   []string
	log      *logger.Logger
	interval time.Duration
	fetcher  Fetcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a lifecycle-managed rate refresher for the given
// tokens.
func NewRefresher(oracle *feecalc.StaticOracle, tokens []string, interval time.Duration, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("rates-refresher")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Refresher{
		oracle:   oracle,
		tokens:   tokens,
		log:      log,
		interval: interval,
	}
}

// WithFetcher assigns the fetcher used to retrieve external rates.
func (r *Refresher) WithFetcher(fetcher Fetcher) {
	r.mu.Lock()
	r.fetcher = fetcher
	r.mu.Unlock()
}

func (r *Refresher) Name() string { return "rates-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("rate refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("rate refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	r.mu.Lock()
	fetcher := r.fetcher
	r.mu.Unlock()
	if fetcher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, token := range r.tokens {
		rate, err := fetcher.Fetch(ctx, token)
		if err != nil {
			r.log.WithError(err).WithField("token", token).Warn("rate fetch failed")
			continue
		}
		r.oracle.SetRate(token, rate)
		r.log.WithField("token", token).WithField("rate", rate).Debug("rate refreshed")
	}
}
