// Package postgres implements the wallet ledger on PostgreSQL. Balance and
// budget rows are locked with SELECT ... FOR UPDATE inside one database
// transaction per unit of work.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/sponsorship"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.WalletLedger = (*Store)(nil)
var _ storage.SponsorshipStore = (*Store)(nil)
var _ storage.ReceiptStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema creates the ledger tables when they do not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS gas_wallets (
	address     TEXT        NOT NULL,
	token       TEXT        NOT NULL,
	balance     BIGINT      NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (address, token)
);

CREATE TABLE IF NOT EXISTS gas_ledger_entries (
	id            TEXT        PRIMARY KEY,
	address       TEXT        NOT NULL,
	token         TEXT        NOT NULL,
	entry_type    TEXT        NOT NULL,
	amount        BIGINT      NOT NULL,
	balance_after BIGINT      NOT NULL,
	reference_id  TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sponsorship_budgets (
	period_id  TEXT        PRIMARY KEY,
	total      BIGINT      NOT NULL,
	remaining  BIGINT      NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK (remaining >= 0 AND remaining <= total)
);

CREATE TABLE IF NOT EXISTS sponsorship_usage (
	payer TEXT   PRIMARY KEY,
	total BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS fee_receipts (
	id         TEXT        PRIMARY KEY,
	payer      TEXT        NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the ledger schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// CreateWallet registers a zero-balance wallet row.
func (s *Store) CreateWallet(ctx context.Context, address, token string) (wallet.Account, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gas_wallets (address, token, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
	`, address, token, now)
	if err != nil {
		return wallet.Account{}, err
	}
	return wallet.Account{Address: address, Token: token, CreatedAt: now, UpdatedAt: now}, nil
}

// GetWallet returns the wallet row for (address, token).
func (s *Store) GetWallet(ctx context.Context, address, token string) (wallet.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, token, balance, created_at, updated_at
		FROM gas_wallets
		WHERE address = $1 AND token = $2
	`, address, token)

	var acct wallet.Account
	if err := row.Scan(&acct.Address, &acct.Token, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.Account{}, &fee.NotFoundError{Resource: "wallet", ID: address + "/" + token}
		}
		return wallet.Account{}, err
	}
	return acct, nil
}

// ListWallets returns every token account of an address, ordered by token.
func (s *Store) ListWallets(ctx context.Context, address string) ([]wallet.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, token, balance, created_at, updated_at
		FROM gas_wallets
		WHERE address = $1
		ORDER BY token
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []wallet.Account
	for rows.Next() {
		var acct wallet.Account
		if err := rows.Scan(&acct.Address, &acct.Token, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// ListEntries returns ledger entries recorded for an address.
func (s *Store) ListEntries(ctx context.Context, address string) ([]wallet.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, token, entry_type, amount, balance_after, reference_id, created_at
		FROM gas_ledger_entries
		WHERE address = $1
		ORDER BY created_at
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []wallet.Entry
	for rows.Next() {
		var entry wallet.Entry
		if err := rows.Scan(&entry.ID, &entry.Address, &entry.Token, &entry.Type, &entry.Amount,
			&entry.BalanceAfter, &entry.ReferenceID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetBudget returns the budget for a period.
func (s *Store) GetBudget(ctx context.Context, periodID string) (sponsorship.Budget, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT period_id, total, remaining, created_at, updated_at
		FROM sponsorship_budgets
		WHERE period_id = $1
	`, periodID)

	var budget sponsorship.Budget
	if err := row.Scan(&budget.PeriodID, &budget.Total, &budget.Remaining, &budget.CreatedAt, &budget.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sponsorship.Budget{}, &fee.NotFoundError{Resource: "budget", ID: periodID}
		}
		return sponsorship.Budget{}, err
	}
	return budget, nil
}

// GetReceipt returns one receipt by id.
func (s *Store) GetReceipt(ctx context.Context, id string) (fee.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM fee_receipts WHERE id = $1`, id)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fee.Receipt{}, &fee.NotFoundError{Resource: "receipt", ID: id}
		}
		return fee.Receipt{}, err
	}
	var rcpt fee.Receipt
	if err := json.Unmarshal(payload, &rcpt); err != nil {
		return fee.Receipt{}, err
	}
	return rcpt, nil
}

// ListReceipts returns receipts for a payer ordered by creation time.
func (s *Store) ListReceipts(ctx context.Context, payer string) ([]fee.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM fee_receipts WHERE payer = $1 ORDER BY created_at
	`, payer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []fee.Receipt
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rcpt fee.Receipt
		if err := json.Unmarshal(payload, &rcpt); err != nil {
			return nil, err
		}
		receipts = append(receipts, rcpt)
	}
	return receipts, rows.Err()
}

// Begin opens a database transaction as the unit of work.
func (s *Store) Begin(ctx context.Context) (storage.LedgerTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fee.NewStoreError("begin", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

var _ storage.LedgerTx = (*pgTx)(nil)

func (t *pgTx) LockBalance(ctx context.Context, address, token string) (int64, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT balance FROM gas_wallets
		WHERE address = $1 AND token = $2
		FOR UPDATE
	`, address, token)

	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &fee.NotFoundError{Resource: "wallet", ID: address + "/" + token}
		}
		return 0, fee.NewStoreError("lock balance", err)
	}
	return balance, nil
}

func (t *pgTx) Debit(ctx context.Context, address, token, entryType string, amount int64, referenceID string) error {
	row := t.tx.QueryRowContext(ctx, `
		UPDATE gas_wallets
		SET balance = balance - $3, updated_at = $4
		WHERE address = $1 AND token = $2 AND balance >= $3
		RETURNING balance
	`, address, token, amount, time.Now().UTC())

	var balanceAfter int64
	if err := row.Scan(&balanceAfter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fee.ErrInsufficientFunds
		}
		return fee.NewStoreError("debit", err)
	}
	return t.insertEntry(ctx, address, token, entryType, -amount, balanceAfter, referenceID)
}

func (t *pgTx) Credit(ctx context.Context, address, token, entryType string, amount int64, referenceID string) error {
	now := time.Now().UTC()
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO gas_wallets (address, token, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (address, token)
		DO UPDATE SET balance = gas_wallets.balance + $3, updated_at = $4
		RETURNING balance
	`, address, token, amount, now)

	var balanceAfter int64
	if err := row.Scan(&balanceAfter); err != nil {
		return fee.NewStoreError("credit", err)
	}
	return t.insertEntry(ctx, address, token, entryType, amount, balanceAfter, referenceID)
}

func (t *pgTx) insertEntry(ctx context.Context, address, token, entryType string, amount, balanceAfter int64, referenceID string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO gas_ledger_entries (id, address, token, entry_type, amount, balance_after, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), address, token, entryType, amount, balanceAfter, referenceID, time.Now().UTC())
	if err != nil {
		return fee.NewStoreError("record entry", err)
	}
	return nil
}

func (t *pgTx) LockBudget(ctx context.Context, periodID string, total int64) (sponsorship.Budget, error) {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sponsorship_budgets (period_id, total, remaining, created_at, updated_at)
		VALUES ($1, $2, $2, $3, $3)
		ON CONFLICT (period_id) DO NOTHING
	`, periodID, total, now)
	if err != nil {
		return sponsorship.Budget{}, fee.NewStoreError("open budget", err)
	}

	row := t.tx.QueryRowContext(ctx, `
		SELECT period_id, total, remaining, created_at, updated_at
		FROM sponsorship_budgets
		WHERE period_id = $1
		FOR UPDATE
	`, periodID)

	var budget sponsorship.Budget
	if err := row.Scan(&budget.PeriodID, &budget.Total, &budget.Remaining, &budget.CreatedAt, &budget.UpdatedAt); err != nil {
		return sponsorship.Budget{}, fee.NewStoreError("lock budget", err)
	}
	return budget, nil
}

func (t *pgTx) DebitBudget(ctx context.Context, periodID string, amount int64) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE sponsorship_budgets
		SET remaining = remaining - $2, updated_at = $3
		WHERE period_id = $1 AND remaining >= $2
	`, periodID, amount, time.Now().UTC())
	if err != nil {
		return fee.NewStoreError("debit budget", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fee.NewStoreError("debit budget", errors.New("remaining below requested amount"))
	}
	return nil
}

func (t *pgTx) PayerSponsoredTotal(ctx context.Context, payer string) (int64, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT total FROM sponsorship_usage WHERE payer = $1 FOR UPDATE`, payer)

	var total int64
	if err := row.Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fee.NewStoreError("sponsored total", err)
	}
	return total, nil
}

func (t *pgTx) AddPayerSponsored(ctx context.Context, payer string, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sponsorship_usage (payer, total)
		VALUES ($1, $2)
		ON CONFLICT (payer) DO UPDATE SET total = sponsorship_usage.total + $2
	`, payer, amount)
	if err != nil {
		return fee.NewStoreError("add sponsored", err)
	}
	return nil
}

func (t *pgTx) CreateReceipt(ctx context.Context, rcpt fee.Receipt) (fee.Receipt, error) {
	if rcpt.ID == "" {
		rcpt.ID = uuid.NewString()
	}
	if rcpt.CreatedAt.IsZero() {
		rcpt.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rcpt)
	if err != nil {
		return fee.Receipt{}, err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO fee_receipts (id, payer, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, rcpt.ID, rcpt.Payer, payload, rcpt.CreatedAt)
	if err != nil {
		return fee.Receipt{}, fee.NewStoreError("create receipt", err)
	}
	return rcpt, nil
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fee.NewStoreError("commit", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fee.NewStoreError("rollback", err)
	}
	return nil
}
