// Package memory provides an in-memory wallet ledger. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/domain/sponsorship"
	"github.com/dujyo/gasengine/internal/app/domain/wallet"
	"github.com/dujyo/gasengine/internal/app/storage"
)

// Store is the in-memory implementation of the storage interfaces. An open
// transaction holds the store lock exclusively, which gives every unit of
// work the same serialization the postgres row locks provide.
type Store struct {
	mu             sync.Mutex
	wallets        map[string]wallet.Account
	entries        map[string][]wallet.Entry
	budgets        map[string]sponsorship.Budget
	payerSponsored map[string]int64
	receipts       map[string]fee.Receipt
	receiptOrder   []string
}

var _ storage.WalletLedger = (*Store)(nil)
var _ storage.SponsorshipStore = (*Store)(nil)
var _ storage.ReceiptStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		wallets:        make(map[string]wallet.Account),
		entries:        make(map[string][]wallet.Entry),
		budgets:        make(map[string]sponsorship.Budget),
		payerSponsored: make(map[string]int64),
		receipts:       make(map[string]fee.Receipt),
	}
}

func walletKey(address, token string) string { return address + "|" + token }

// CreateWallet registers a zero-balance wallet row.
func (s *Store) CreateWallet(_ context.Context, address, token string) (wallet.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey(address, token)
	if _, exists := s.wallets[key]; exists {
		return wallet.Account{}, fmt.Errorf("wallet %s/%s already exists", address, token)
	}
	now := time.Now().UTC()
	acct := wallet.Account{Address: address, Token: token, CreatedAt: now, UpdatedAt: now}
	s.wallets[key] = acct
	return acct, nil
}

// GetWallet returns the wallet row for (address, token).
func (s *Store) GetWallet(_ context.Context, address, token string) (wallet.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.wallets[walletKey(address, token)]
	if !ok {
		return wallet.Account{}, &fee.NotFoundError{Resource: "wallet", ID: address + "/" + token}
	}
	return acct, nil
}

// ListWallets returns every token account of an address, ordered by token.
func (s *Store) ListWallets(_ context.Context, address string) ([]wallet.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wallet.Account
	for _, acct := range s.wallets {
		if acct.Address == address {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// ListEntries returns ledger entries recorded for an address.
func (s *Store) ListEntries(_ context.Context, address string) ([]wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries[address]
	out := make([]wallet.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// GetBudget returns the budget for a period.
func (s *Store) GetBudget(_ context.Context, periodID string) (sponsorship.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget, ok := s.budgets[periodID]
	if !ok {
		return sponsorship.Budget{}, &fee.NotFoundError{Resource: "budget", ID: periodID}
	}
	return budget, nil
}

// GetReceipt returns one receipt by id.
func (s *Store) GetReceipt(_ context.Context, id string) (fee.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rcpt, ok := s.receipts[id]
	if !ok {
		return fee.Receipt{}, &fee.NotFoundError{Resource: "receipt", ID: id}
	}
	return rcpt, nil
}

// ListReceipts returns receipts for a payer in insertion order.
func (s *Store) ListReceipts(_ context.Context, payer string) ([]fee.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []fee.Receipt
	for _, id := range s.receiptOrder {
		if rcpt := s.receipts[id]; rcpt.Payer == payer {
			out = append(out, rcpt)
		}
	}
	return out, nil
}

// Begin opens a unit of work. The store lock is held until Commit or
// Rollback; writes are staged and applied atomically on Commit.
func (s *Store) Begin(_ context.Context) (storage.LedgerTx, error) {
	s.mu.Lock()
	return &memTx{
		store:          s,
		balances:       make(map[string]int64),
		created:        make(map[string]bool),
		budgets:        make(map[string]sponsorship.Budget),
		payerSponsored: make(map[string]int64),
	}, nil
}

type memTx struct {
	store          *Store
	done           bool
	balances       map[string]int64
	created        map[string]bool
	entries        []wallet.Entry
	budgets        map[string]sponsorship.Budget
	payerSponsored map[string]int64
	receipts       []fee.Receipt
}

var _ storage.LedgerTx = (*memTx)(nil)

func (tx *memTx) balance(address, token string) (int64, bool) {
	key := walletKey(address, token)
	if bal, ok := tx.balances[key]; ok {
		return bal, true
	}
	if acct, ok := tx.store.wallets[key]; ok {
		return acct.Balance, true
	}
	return 0, tx.created[key]
}

func (tx *memTx) LockBalance(_ context.Context, address, token string) (int64, error) {
	if tx.done {
		return 0, fmt.Errorf("transaction finished")
	}
	bal, ok := tx.balance(address, token)
	if !ok {
		return 0, &fee.NotFoundError{Resource: "wallet", ID: address + "/" + token}
	}
	return bal, nil
}

func (tx *memTx) Debit(_ context.Context, address, token, entryType string, amount int64, referenceID string) error {
	if tx.done {
		return fmt.Errorf("transaction finished")
	}
	bal, ok := tx.balance(address, token)
	if !ok {
		return &fee.NotFoundError{Resource: "wallet", ID: address + "/" + token}
	}
	if amount > bal {
		return fmt.Errorf("debit %d exceeds balance %d for %s/%s: %w", amount, bal, address, token, fee.ErrInsufficientFunds)
	}
	newBal := bal - amount
	tx.balances[walletKey(address, token)] = newBal
	tx.entries = append(tx.entries, wallet.Entry{
		ID:           uuid.NewString(),
		Address:      address,
		Token:        token,
		Type:         entryType,
		Amount:       -amount,
		BalanceAfter: newBal,
		ReferenceID:  referenceID,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (tx *memTx) Credit(_ context.Context, address, token, entryType string, amount int64, referenceID string) error {
	if tx.done {
		return fmt.Errorf("transaction finished")
	}
	key := walletKey(address, token)
	bal, ok := tx.balance(address, token)
	if !ok {
		tx.created[key] = true
		bal = 0
	}
	newBal := bal + amount
	tx.balances[key] = newBal
	tx.entries = append(tx.entries, wallet.Entry{
		ID:           uuid.NewString(),
		Address:      address,
		Token:        token,
		Type:         entryType,
		Amount:       amount,
		BalanceAfter: newBal,
		ReferenceID:  referenceID,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (tx *memTx) LockBudget(_ context.Context, periodID string, total int64) (sponsorship.Budget, error) {
	if tx.done {
		return sponsorship.Budget{}, fmt.Errorf("transaction finished")
	}
	if budget, ok := tx.budgets[periodID]; ok {
		return budget, nil
	}
	if budget, ok := tx.store.budgets[periodID]; ok {
		tx.budgets[periodID] = budget
		return budget, nil
	}
	now := time.Now().UTC()
	budget := sponsorship.Budget{PeriodID: periodID, Total: total, Remaining: total, CreatedAt: now, UpdatedAt: now}
	tx.budgets[periodID] = budget
	return budget, nil
}

func (tx *memTx) DebitBudget(_ context.Context, periodID string, amount int64) error {
	if tx.done {
		return fmt.Errorf("transaction finished")
	}
	budget, ok := tx.budgets[periodID]
	if !ok {
		return &fee.NotFoundError{Resource: "budget", ID: periodID}
	}
	if amount > budget.Remaining {
		return fmt.Errorf("budget debit %d exceeds remaining %d for period %s", amount, budget.Remaining, periodID)
	}
	budget.Remaining -= amount
	budget.UpdatedAt = time.Now().UTC()
	tx.budgets[periodID] = budget
	return nil
}

func (tx *memTx) PayerSponsoredTotal(_ context.Context, payer string) (int64, error) {
	if tx.done {
		return 0, fmt.Errorf("transaction finished")
	}
	if total, ok := tx.payerSponsored[payer]; ok {
		return total, nil
	}
	return tx.store.payerSponsored[payer], nil
}

func (tx *memTx) AddPayerSponsored(_ context.Context, payer string, amount int64) error {
	if tx.done {
		return fmt.Errorf("transaction finished")
	}
	total, ok := tx.payerSponsored[payer]
	if !ok {
		total = tx.store.payerSponsored[payer]
	}
	tx.payerSponsored[payer] = total + amount
	return nil
}

func (tx *memTx) CreateReceipt(_ context.Context, rcpt fee.Receipt) (fee.Receipt, error) {
	if tx.done {
		return fee.Receipt{}, fmt.Errorf("transaction finished")
	}
	if rcpt.ID == "" {
		rcpt.ID = uuid.NewString()
	}
	if rcpt.CreatedAt.IsZero() {
		rcpt.CreatedAt = time.Now().UTC()
	}
	tx.receipts = append(tx.receipts, rcpt)
	return rcpt, nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.store.mu.Unlock()

	now := time.Now().UTC()
	for key, bal := range tx.balances {
		acct, ok := tx.store.wallets[key]
		if !ok {
			address, token := splitWalletKey(key)
			acct = wallet.Account{Address: address, Token: token, CreatedAt: now}
		}
		acct.Balance = bal
		acct.UpdatedAt = now
		tx.store.wallets[key] = acct
	}
	for _, entry := range tx.entries {
		tx.store.entries[entry.Address] = append(tx.store.entries[entry.Address], entry)
	}
	for periodID, budget := range tx.budgets {
		tx.store.budgets[periodID] = budget
	}
	for payer, total := range tx.payerSponsored {
		tx.store.payerSponsored[payer] = total
	}
	for _, rcpt := range tx.receipts {
		tx.store.receipts[rcpt.ID] = rcpt
		tx.store.receiptOrder = append(tx.store.receiptOrder, rcpt.ID)
	}
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

func splitWalletKey(key string) (address, token string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
