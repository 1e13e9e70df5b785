// Package wallet defines the ledger-side records the fee engine debits and
// credits. Balances are droplets (1e-8 token).
package wallet

import "time"

// Account is a per-address, per-token balance row.
type Account struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry types recorded against the ledger.
const (
	EntryDebit      = "debit"
	EntrySwapIn     = "swap_in"
	EntrySwapOut    = "swap_out"
	EntrySponsor    = "sponsor"
	EntryBurn       = "burn"
	EntryDeposit    = "deposit"
	EntryDistribute = "distribute"
)

// Entry is a single ledger movement, recorded inside the same atomic unit as
// the balance change it describes.
type Entry struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Token        string    `json:"token"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	ReferenceID  string    `json:"reference_id"`
	CreatedAt    time.Time `json:"created_at"`
}
