// Package httpapi exposes the fee engine over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/dujyo/gasengine/internal/app"
	"github.com/dujyo/gasengine/internal/app/domain/fee"
	"github.com/dujyo/gasengine/internal/app/services/engine"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/fees/quote", h.feeQuote)
	mux.HandleFunc("/fees/collect", h.feeCollect)
	mux.HandleFunc("/fees/schedule", h.feeSchedule)
	mux.HandleFunc("/fees/sponsorship", h.feeSponsorship)
	mux.HandleFunc("/fees/distribution", h.feeDistribution)
	mux.HandleFunc("/receipts/", h.receipt)
	mux.HandleFunc("/receipts", h.receipts)
	mux.HandleFunc("/wallets", h.wallets)
	mux.HandleFunc("/wallets/", h.walletResources)
	mux.HandleFunc("/healthz", h.health)
	return mux
}

func (h *handler) feeQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req engine.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quote, err := h.app.Engine.Quote(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *handler) feeCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req engine.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rcpt, err := h.app.Engine.Collect(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
}

func (h *handler) feeSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	schedule := h.app.Calculator.Schedule()

	type entryView struct {
		FixedUSD   int64 `json:"fixed_usd"`
		PercentBps int64 `json:"percent_bps"`
		MinUSD     int64 `json:"min_usd"`
		MaxUSD     int64 `json:"max_usd"`
		Free       bool  `json:"free"`
	}
	entries := make(map[string]entryView)
	for _, kind := range schedule.Kinds() {
		entry, ok := schedule.Entry(kind)
		if !ok {
			continue
		}
		entries[string(kind)] = entryView{
			FixedUSD:   entry.FixedUSD,
			PercentBps: entry.PercentBps,
			MinUSD:     entry.MinUSD,
			MaxUSD:     entry.MaxUSD,
			Free:       entry.Free,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"multipliers_bps": map[string]int64{
			string(fee.ClassCultural):       schedule.MultiplierBps(fee.ClassCultural),
			string(fee.ClassNormal):         schedule.MultiplierBps(fee.ClassNormal),
			string(fee.ClassPotentialAbuse): schedule.MultiplierBps(fee.ClassPotentialAbuse),
		},
		"tier_discounts_bps": map[string]int64{
			string(fee.TierRegular):            schedule.TierDiscountBps(fee.TierRegular),
			string(fee.TierPremium):            schedule.TierDiscountBps(fee.TierPremium),
			string(fee.TierCreativeValidator):  schedule.TierDiscountBps(fee.TierCreativeValidator),
			string(fee.TierCommunityValidator): schedule.TierDiscountBps(fee.TierCommunityValidator),
			string(fee.TierEconomicValidator):  schedule.TierDiscountBps(fee.TierEconomicValidator),
		},
		"primary_token":   h.app.Calculator.PrimaryToken(),
		"secondary_token": h.app.Calculator.SecondaryToken(),
	})
}

func (h *handler) feeSponsorship(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	budget, err := h.app.Pool.Status(r.Context(), h.app.SponsorshipStore)
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

// feeDistribution returns the active policy and, with ?amount=, a preview of
// how that fee amount would split.
func (h *handler) feeDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{"policy": h.app.Distributor.Policy()}
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || amount < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be a non-negative integer"))
			return
		}
		creative := r.URL.Query().Get("creative") == "true"
		preview, err := h.app.Distributor.Distribute(amount, creative)
		if err != nil {
			writeError(w, statusFor(err, http.StatusBadRequest), err)
			return
		}
		resp["preview"] = preview
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) receipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payer := strings.TrimSpace(r.URL.Query().Get("payer"))
	if payer == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("payer query parameter is required"))
		return
	}
	rcpts, err := h.app.ReceiptStore.ListReceipts(r.Context(), payer)
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, rcpts)
}

func (h *handler) receipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/receipts"), "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rcpt, err := h.app.ReceiptStore.GetReceipt(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

func (h *handler) wallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Address) == "" || strings.TrimSpace(payload.Token) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("address and token are required"))
		return
	}
	acct, err := h.app.Ledger.CreateWallet(r.Context(), payload.Address, payload.Token)
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) walletResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/wallets"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	address := parts[0]

	// /wallets/{address} lists every token account of the address.
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		accounts, err := h.app.Ledger.ListWallets(r.Context(), address)
		if err != nil {
			writeError(w, statusFor(err, http.StatusInternalServerError), err)
			return
		}
		if len(accounts) == 0 {
			writeError(w, http.StatusNotFound, fmt.Errorf("wallet %s not found", address))
			return
		}
		writeJSON(w, http.StatusOK, accounts)
		return
	}

	switch parts[1] {
	case "entries":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		entries, err := h.app.Ledger.ListEntries(r.Context(), address)
		if err != nil {
			writeError(w, statusFor(err, http.StatusInternalServerError), err)
			return
		}
		writeJSON(w, http.StatusOK, entries)

	case "deposit":
		h.walletDeposit(w, r, address)

	default:
		// /wallets/{address}/{token} reads one balance.
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		acct, err := h.app.Ledger.GetWallet(r.Context(), address, parts[1])
		if err != nil {
			writeError(w, statusFor(err, http.StatusInternalServerError), err)
			return
		}
		writeJSON(w, http.StatusOK, acct)
	}
}

// walletDeposit credits a wallet directly. It exists for local development
// and tests; production deployments front it with the platform gateway.
func (h *handler) walletDeposit(w http.ResponseWriter, r *http.Request, address string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Token  string `json:"token"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Amount <= 0 || strings.TrimSpace(payload.Token) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("token and a positive amount are required"))
		return
	}

	acct, err := h.app.Deposit(r.Context(), address, payload.Token, payload.Amount)
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the engine error taxonomy onto HTTP statuses. Unrecognized
// errors use the fallback the call site chose.
func statusFor(err error, fallback int) int {
	var storeErr *fee.StoreError
	switch {
	case fee.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, fee.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, fee.ErrSlippageExceeded):
		return http.StatusConflict
	case errors.Is(err, fee.ErrInternalInvariant):
		return http.StatusInternalServerError
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError
	default:
		return fallback
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
