// Package engine orchestrates fee collection: classify, price, sponsor,
// debit, auto-swap on shortfall, then distribute. Collect is the single
// atomic unit; any failure after Begin leaves every balance and budget
// untouched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/metrics"
	"github.com/dujyo/gasengine/internal/app/services/autoswap"
	"github.com/dujyo/gasengine/internal/app/services/classifier"
	"github.com/dujyo/gasengine/internal/app/services/distribution"
	"github.com/dujyo/gasengine/internal/app/services/feecalc"
	"github.com/dujyo/gasengine/internal/app/services/sponsorship"
	"github.com/dujyo/gasengine/internal/app/storage"
	"github.com/dujyo/gasengine/pkg/logger"
)

// Request describes one transaction to price or collect for.
type Request struct {
	Payer   string              `json:"payer"`
	Kind    fee.TransactionKind `json:"kind"`
	Tier    fee.UserTier        `json:"tier"`
	TxValue int64               `json:"tx_value"`

	// IsCreativeValidator routes the creative bonus share of the
	// distribution. It is a property of the transaction's validator, not of
	// the payer's tier.
	IsCreativeValidator bool `json:"is_creative_validator"`
}

// Engine wires the fee services around the wallet ledger.
type Engine struct {
	ledger     storage.WalletLedger
	classifier *classifier.Classifier
	tracker    *classifier.ActivityTracker
	calc       *feecalc.Calculator
	pool       *sponsorship.Pool
	swapper    *autoswap.Handler
	dist       *distribution.Distributor
	log        *logger.Logger
}

// New assembles the engine from its collaborators.
func New(
	ledger storage.WalletLedger,
	cls *classifier.Classifier,
	tracker *classifier.ActivityTracker,
	calc *feecalc.Calculator,
	pool *sponsorship.Pool,
	swapper *autoswap.Handler,
	dist *distribution.Distributor,
	log *logger.Logger,
) *Engine {
	if log == nil {
		log = logger.NewDefault("engine")
	}
	return &Engine{
		ledger:     ledger,
		classifier: cls,
		tracker:    tracker,
		calc:       calc,
		pool:       pool,
		swapper:    swapper,
		dist:       dist,
		log:        log,
	}
}

// Quote prices a transaction without mutating any state. Calling it any
// number of times returns the same result for the same activity window and
// oracle rates.
func (e *Engine) Quote(ctx context.Context, req Request) (fee.Quote, error) {
	q, err := e.quote(ctx, req)
	if err != nil {
		return fee.Quote{}, err
	}
	metrics.RecordQuote(string(q.Kind), string(q.Class))
	return q, nil
}

func (e *Engine) quote(ctx context.Context, req Request) (fee.Quote, error) {
	if req.Payer == "" {
		return fee.Quote{}, fmt.Errorf("payer address is required")
	}
	count := e.tracker.Count(req.Payer, req.Kind)
	class := e.classifier.Classify(req.Kind, count)

	q, err := e.calc.Quote(ctx, req.Kind, req.TxValue, req.Tier, class)
	if err != nil {
		return fee.Quote{}, fmt.Errorf("price fee: %w", err)
	}
	q.Sponsorable = !q.Free() && e.pool.Eligible(req.Kind)
	return q, nil
}

// Collect prices the transaction and settles the fee in one atomic unit:
// sponsorship first, then direct debit, then an auto-swap for the exact
// shortfall. The distribution credits happen in the same unit, so a receipt
// exists if and only if every movement it describes was applied.
func (e *Engine) Collect(ctx context.Context, req Request) (fee.Receipt, error) {
	start := time.Now()
	rcpt, err := e.collect(ctx, req)
	metrics.RecordCollection(string(req.Kind), collectionStatus(err, rcpt), time.Since(start))
	return rcpt, err
}

func (e *Engine) collect(ctx context.Context, req Request) (fee.Receipt, error) {
	q, err := e.quote(ctx, req)
	if err != nil {
		return fee.Receipt{}, err
	}

	receiptID := uuid.NewString()
	ref := "gasfee:" + receiptID
	now := time.Now().UTC()

	ltx, err := e.ledger.Begin(ctx)
	if err != nil {
		return fee.Receipt{}, fee.NewStoreError("begin collection", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := ltx.Rollback(); rbErr != nil {
			e.log.WithError(rbErr).WithField("payer", req.Payer).
				Error("rollback after failed fee collection")
		}
	}()

	var (
		outcome sponsorship.Outcome
		swapped fee.SwapOutcome
		dist    fee.DistributionResult
	)

	if !q.Free() {
		outcome, err = e.pool.TrySponsor(ctx, ltx, req.Payer, req.Kind, q.TokenAmount)
		if err != nil {
			return fee.Receipt{}, fmt.Errorf("sponsorship: %w", err)
		}

		// The subsidy lands as a sponsor credit and the full fee is debited,
		// so the payer's ledger shows both movements.
		if outcome.Sponsored > 0 {
			if err := ltx.Credit(ctx, req.Payer, e.calc.PrimaryToken(), wallet.EntrySponsor, outcome.Sponsored, ref); err != nil {
				return fee.Receipt{}, err
			}
		}

		balance, err := ltx.LockBalance(ctx, req.Payer, e.calc.PrimaryToken())
		if err != nil {
			if !fee.IsNotFound(err) {
				return fee.Receipt{}, err
			}
			balance = 0
		}
		if balance < q.TokenAmount {
			swapped, err = e.swapper.CoverShortfall(ctx, ltx, req.Payer, q.TokenAmount-balance, q.PrimaryRate, q.SecondaryRate)
			if err != nil {
				metrics.RecordSwap(false)
				return fee.Receipt{}, fmt.Errorf("cover shortfall: %w", err)
			}
			metrics.RecordSwap(true)
		}
		if err := ltx.Debit(ctx, req.Payer, e.calc.PrimaryToken(), wallet.EntryDebit, q.TokenAmount, ref); err != nil {
			return fee.Receipt{}, err
		}

		dist, err = e.dist.Distribute(q.TokenAmount, req.IsCreativeValidator)
		if err != nil {
			e.log.WithError(err).Error("fee distribution invariant violated")
			return fee.Receipt{}, err
		}
		if err := e.creditDestinations(ctx, ltx, dist, ref); err != nil {
			return fee.Receipt{}, err
		}
	}

	rcpt := fee.Receipt{
		ID:              receiptID,
		Payer:           req.Payer,
		Kind:            q.Kind,
		Class:           q.Class,
		Tier:            q.Tier,
		USDAmount:       q.USDAmount,
		TokenAmount:     q.TokenAmount,
		PrimaryRate:     q.PrimaryRate,
		SponsoredAmount: outcome.Sponsored,
		SwappedAmount:   swapped.AmountIn,
		Distribution:    dist,
		CreatedAt:       now,
	}
	if rcpt, err = ltx.CreateReceipt(ctx, rcpt); err != nil {
		return fee.Receipt{}, err
	}

	if err := ltx.Commit(); err != nil {
		return fee.Receipt{}, fee.NewStoreError("commit collection", err)
	}
	committed = true

	// The abuse window counts settled transactions only; a rolled-back
	// collection never inflates the payer's activity.
	e.tracker.Record(req.Payer, req.Kind)
	metrics.RecordSponsorship(outcome.Status, outcome.Sponsored)
	metrics.RecordDistribution(dist.Validators, dist.Treasury, dist.LiquidityPools, dist.Burn)

	e.log.WithField("payer", req.Payer).
		WithField("kind", string(req.Kind)).
		WithField("class", string(q.Class)).
		WithField("token_amount", q.TokenAmount).
		WithField("sponsored", outcome.Sponsored).
		Info("fee collected")
	return rcpt, nil
}

// creditDestinations books the split into the pot accounts. The burn share
// goes to a sink account no spending path ever debits.
func (e *Engine) creditDestinations(ctx context.Context, ltx storage.LedgerTx, dist fee.DistributionResult, ref string) error {
	policy := e.dist.Policy()
	token := e.calc.PrimaryToken()
	for _, dst := range []struct {
		account   string
		entryType string
		amount    int64
	}{
		{policy.ValidatorsAccount, wallet.EntryDistribute, dist.Validators},
		{policy.TreasuryAccount, wallet.EntryDistribute, dist.Treasury},
		{policy.LiquidityAccount, wallet.EntryDistribute, dist.LiquidityPools},
		{policy.BurnAccount, wallet.EntryBurn, dist.Burn},
	} {
		if dst.amount == 0 {
			continue
		}
		if err := ltx.Credit(ctx, dst.account, token, dst.entryType, dst.amount, ref); err != nil {
			return err
		}
	}
	return nil
}

func collectionStatus(err error, rcpt fee.Receipt) string {
	switch {
	case err == nil && rcpt.TokenAmount == 0:
		return "free"
	case err == nil:
		return "collected"
	case errors.Is(err, fee.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, fee.ErrSlippageExceeded):
		return "slippage_exceeded"
	default:
		return "error"
	}
}
