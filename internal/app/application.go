package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/services/autoswap"
	"github.com/dujyo/gasengine/internal/app/services/classifier"
	"github.com/dujyo/gasengine/internal/app/services/distribution"
	enginesvc "github.com/dujyo/gasengine/internal/app/services/engine"
	"github.com/dujyo/gasengine/internal/app/services/feecalc"
	"github.com/dujyo/gasengine/internal/app/services/rates"
	sponsorshipsvc "github.com/dujyo/gasengine/internal/app/services/sponsorship"
	"github.com/dujyo/gasengine/internal/app/storage"
	"github.com/dujyo/gasengine/internal/app/storage/memory"
	"github.com/dujyo/gasengine/internal/app/system"
	"github.com/dujyo/gasengine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Ledger      storage.WalletLedger
	Sponsorship storage.SponsorshipStore
	Receipts    storage.ReceiptStore
}

// Settings groups the engine configuration. The zero value is completed with
// the platform defaults.
type Settings struct {
	PrimaryToken   string        `yaml:"primary_token"`
	SecondaryToken string        `yaml:"secondary_token"`
	ActivityWindow time.Duration `yaml:"activity_window"`

	// Rates configures the static price oracle: micro-USD per whole token.
	// Deployments with a live feed replace the oracle through Oracle.
	Rates map[string]int64 `yaml:"rates"`

	Classifier   classifier.Config     `yaml:"classifier"`
	Schedule     feecalc.Config        `yaml:"schedule"`
	Sponsorship  sponsorshipsvc.Config `yaml:"sponsorship"`
	AutoSwap     autoswap.Config       `yaml:"autoswap"`
	Distribution distribution.Policy   `yaml:"distribution"`
	RateFeed     RateFeedConfig        `yaml:"rate_feed"`
}

// RateFeedConfig configures the optional external rate source. With an empty
// URL the oracle keeps the static rates from Settings.Rates.
type RateFeedConfig struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultSettings returns the platform defaults: DYO fees at $0.10, DYS as
// the swap source at $0.05, a one hour abuse window.
func DefaultSettings() Settings {
	return Settings{
		PrimaryToken:   "DYO",
		SecondaryToken: "DYS",
		ActivityWindow: time.Hour,
		Rates: map[string]int64{
			"DYO": 100_000,
			"DYS": 50_000,
		},
		Classifier:   classifier.DefaultConfig(),
		Schedule:     feecalc.DefaultConfig(),
		Sponsorship:  sponsorshipsvc.DefaultConfig(),
		AutoSwap:     autoswap.DefaultConfig(),
		Distribution: distribution.DefaultPolicy(),
	}
}

// Application ties the fee services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Engine      *enginesvc.Engine
	Calculator  *feecalc.Calculator
	Oracle      *feecalc.StaticOracle
	Pool        *sponsorshipsvc.Pool
	Distributor *distribution.Distributor
	Tracker     *classifier.ActivityTracker

	Ledger           storage.WalletLedger
	SponsorshipStore storage.SponsorshipStore
	ReceiptStore     storage.ReceiptStore
}

// New builds a fully initialised application with the provided stores.
func New(settings Settings, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	defaults := DefaultSettings()
	if settings.PrimaryToken == "" {
		settings.PrimaryToken = defaults.PrimaryToken
	}
	if settings.SecondaryToken == "" {
		settings.SecondaryToken = defaults.SecondaryToken
	}
	if settings.ActivityWindow <= 0 {
		settings.ActivityWindow = defaults.ActivityWindow
	}
	if len(settings.Rates) == 0 {
		settings.Rates = defaults.Rates
	}
	// classifier.New defaults its zero fields individually, so a partial
	// classifier config keeps the parts the caller supplied.
	if settings.Schedule.Entries == nil && settings.Schedule.DefaultFixedUSD == 0 {
		settings.Schedule = defaults.Schedule
	}
	if settings.Sponsorship.BudgetTotal == 0 {
		settings.Sponsorship = defaults.Sponsorship
	}
	if settings.Distribution == (distribution.Policy{}) {
		settings.Distribution = defaults.Distribution
	}

	mem := memory.New()
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Sponsorship == nil {
		stores.Sponsorship = mem
	}
	if stores.Receipts == nil {
		stores.Receipts = mem
	}

	schedule, err := feecalc.NewSchedule(settings.Schedule)
	if err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}
	distributor, err := distribution.New(settings.Distribution)
	if err != nil {
		return nil, fmt.Errorf("distribution policy: %w", err)
	}

	oracle := feecalc.NewStaticOracle(settings.Rates)
	calc := feecalc.NewCalculator(schedule, oracle, settings.PrimaryToken, settings.SecondaryToken, log.Named("feecalc"))
	cls := classifier.New(settings.Classifier)
	tracker := classifier.NewActivityTracker(settings.ActivityWindow)
	pool := sponsorshipsvc.New(settings.Sponsorship, log.Named("sponsorship"))
	dex := autoswap.NewSimulatedDex(oracle, settings.AutoSwap.DexFeeBps)
	swapper := autoswap.New(dex, settings.PrimaryToken, settings.SecondaryToken, settings.AutoSwap, log.Named("autoswap"))

	eng := enginesvc.New(stores.Ledger, cls, tracker, calc, pool, swapper, distributor, log.Named("engine"))

	manager := system.NewManager()
	roller := sponsorshipsvc.NewPeriodRoller(pool, stores.Ledger, log.Named("sponsorship-roller"))
	if err := manager.Register(roller); err != nil {
		return nil, fmt.Errorf("register %s: %w", roller.Name(), err)
	}

	if settings.RateFeed.URL != "" {
		tokens := []string{settings.PrimaryToken, settings.SecondaryToken}
		refresher := rates.NewRefresher(oracle, tokens, settings.RateFeed.Interval, log.Named("rates"))
		fetcher, err := rates.NewHTTPFetcher(nil, settings.RateFeed.URL, settings.RateFeed.APIKey, log.Named("rates"))
		if err != nil {
			return nil, fmt.Errorf("rate feed: %w", err)
		}
		refresher.WithFetcher(fetcher)
		if err := manager.Register(refresher); err != nil {
			return nil, fmt.Errorf("register %s: %w", refresher.Name(), err)
		}
	}

	return &Application{
		manager:          manager,
		log:              log,
		Engine:           eng,
		Calculator:       calc,
		Oracle:           oracle,
		Pool:             pool,
		Distributor:      distributor,
		Tracker:          tracker,
		Ledger:           stores.Ledger,
		SponsorshipStore: stores.Sponsorship,
		ReceiptStore:     stores.Receipts,
	}, nil
}

// Deposit credits a wallet outside fee collection, creating the wallet row
// when absent. It backs the development deposit endpoint.
func (a *Application) Deposit(ctx context.Context, address, token string, amount int64) (wallet.Account, error) {
	if amount <= 0 {
		return wallet.Account{}, fmt.Errorf("deposit amount must be positive")
	}
	ltx, err := a.Ledger.Begin(ctx)
	if err != nil {
		return wallet.Account{}, fee.NewStoreError("begin deposit", err)
	}
	if err := ltx.Credit(ctx, address, token, wallet.EntryDeposit, amount, "deposit"); err != nil {
		if rbErr := ltx.Rollback(); rbErr != nil {
			a.log.WithError(rbErr).Error("rollback after failed deposit")
		}
		return wallet.Account{}, err
	}
	if err := ltx.Commit(); err != nil {
		return wallet.Account{}, fee.NewStoreError("commit deposit", err)
	}
	return a.Ledger.GetWallet(ctx, address, token)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
