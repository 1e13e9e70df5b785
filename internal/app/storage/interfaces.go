// Package storage defines the persistence contracts of the gas fee engine.
// The engine depends only on these interfaces, never on a concrete ledger
// representation.
package storage

import (
	"context"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/sponsorship"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
)

// WalletLedger provides wallet balances and the atomic unit fee collection
// runs in. Begin opens one unit of work; every balance or budget mutation of
// a collection happens inside it and is applied on Commit or discarded on
// Rollback.
type WalletLedger interface {
	CreateWallet(ctx context.Context, address, token string) (wallet.Account, error)
	GetWallet(ctx context.Context, address, token string) (wallet.Account, error)
	ListWallets(ctx context.Context, address string) ([]wallet.Account, error)
	ListEntries(ctx context.Context, address string) ([]wallet.Entry, error)

	Begin(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is a single lock-then-mutate unit of work. Locking a balance or
// budget row serializes it against concurrent units touching the same row
// until Commit or Rollback.
type LedgerTx interface {
	// LockBalance acquires the row lock for (address, token) and returns the
	// current balance. Missing wallets report fee.NotFoundError.
	LockBalance(ctx context.Context, address, token string) (int64, error)

	// Debit subtracts amount from a locked balance and records an entry.
	// Callers verify sufficiency under the lock before debiting.
	Debit(ctx context.Context, address, token, entryType string, amount int64, referenceID string) error

	// Credit adds amount to a balance, creating the wallet row if absent,
	// and records an entry.
	Credit(ctx context.Context, address, token, entryType string, amount int64, referenceID string) error

	// LockBudget acquires the row lock for the period budget, creating it
	// with the given total when the period has not been opened yet.
	LockBudget(ctx context.Context, periodID string, total int64) (sponsorship.Budget, error)

	// DebitBudget subtracts amount from a locked period budget.
	DebitBudget(ctx context.Context, periodID string, amount int64) error

	// PayerSponsoredTotal returns the lifetime sponsored amount of a payer.
	PayerSponsoredTotal(ctx context.Context, payer string) (int64, error)

	// AddPayerSponsored accumulates sponsored amount for a payer.
	AddPayerSponsored(ctx context.Context, payer string, amount int64) error

	// CreateReceipt persists the collection receipt.
	CreateReceipt(ctx context.Context, rcpt fee.Receipt) (fee.Receipt, error)

	Commit() error
	Rollback() error
}

// SponsorshipStore reads budget state outside the atomic unit.
type SponsorshipStore interface {
	GetBudget(ctx context.Context, periodID string) (sponsorship.Budget, error)
}

// ReceiptStore reads persisted receipts.
type ReceiptStore interface {
	GetReceipt(ctx context.Context, id string) (fee.Receipt, error)
	ListReceipts(ctx context.Context, payer string) ([]fee.Receipt, error)
}
