package api

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
)

// DevTools are the development-mode handles on the in-process chain: minting
// test balances, creating AMM pairs and moving price feeds.
type DevTools struct {
	Ledger *chain.MemoryLedger
	Router *chain.MemoryRouter
	Feeds  *chain.FeedRegistry
}

// MintRequest is the JSON body for POST /dev/mint.
type MintRequest struct {
	Token  common.Address  `json:"token"`
	To     common.Address  `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// PairRequest is the JSON body for POST /dev/pairs.
type PairRequest struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
}

// FeedRequest is the JSON body for POST /dev/feeds/{feed}.
type FeedRequest struct {
	Answer decimal.Decimal `json:"answer"`
}

// Routes mounts the development endpoints on r.
func (d *DevTools) Routes(r chi.Router) {
	r.Post("/dev/mint", d.Mint)
	r.Post("/dev/pairs", d.CreatePair)
	r.Post("/dev/feeds/{feed}", d.SetFeed)
}

// Mint handles POST /api/v1/dev/mint
func (d *DevTools) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if err := d.Ledger.Mint(r.Context(), req.Token, req.To, req.Amount); err != nil {
		writeFailure(w, err)
		return
	}
	bal, _ := d.Ledger.BalanceOf(r.Context(), req.Token, req.To)

	slog.Info("dev mint", "token", req.Token.Hex(), "to", req.To.Hex(), "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": bal})
}

// CreatePair handles POST /api/v1/dev/pairs
func (d *DevTools) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	pair, err := d.Router.CreatePair(req.Token0, req.Token1)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("dev pair created", "token0", req.Token0.Hex(), "token1", req.Token1.Hex(), "pair", pair.Hex())
	writeJSON(w, http.StatusCreated, map[string]common.Address{"pair": pair})
}

// SetFeed handles POST /api/v1/dev/feeds/{feed}
func (d *DevTools) SetFeed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "feed")
	var req FeedRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if !req.Answer.IsPositive() {
		writeError(w, "answer must be positive", http.StatusBadRequest)
		return
	}
	d.Feeds.Set(name, req.Answer)

	slog.Info("dev feed updated", "feed", name, "answer", req.Answer.String())
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{name: req.Answer})
}
