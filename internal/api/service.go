// Package api exposes the factory and its pools over HTTP and streams the
// pool journal over WebSocket.
//
// All token amounts use shopspring/decimal, never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/discovery"
	"github.com/lbp/pool-engine/internal/factory"
	"github.com/lbp/pool-engine/internal/lifecycle"
	"github.com/lbp/pool-engine/internal/metrics"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pool"
	"github.com/lbp/pool-engine/internal/store"
)

// CallerHeader carries the address a request acts for.
const CallerHeader = "X-Caller"

var (
	ErrBadCaller   = lifecycle.NewError(lifecycle.KindInput, "api: "+CallerHeader+" must be a hex address")
	ErrBadAddress  = lifecycle.NewError(lifecycle.KindInput, "api: invalid address")
	ErrBadRequest  = lifecycle.NewError(lifecycle.KindInput, "api: invalid request body")
	ErrUnknownFeed = lifecycle.NewError(lifecycle.KindInput, "api: unknown price feed")
	ErrUnsupported = lifecycle.NewError(lifecycle.KindInput, "api: not supported by this pool variant")
)

// FeedSource resolves the price feeds named in pool creation requests.
type FeedSource interface {
	Feed(name string) (chain.PriceFeed, bool)
}

// Service serves pool operations. Each pool serialises its own calls, so
// the service holds no lock of its own.
type Service struct {
	factory *factory.Factory
	store   store.Store
	feeds   FeedSource
	wsHub   *WSHub    // optional WebSocket hub for journal broadcasts
	dev     *DevTools // nil unless development mode is on
}

// NewService creates a new pool service.
// Pass nil for hub if WebSocket broadcasting is not needed and nil for dev
// to leave the development endpoints unmounted.
func NewService(f *factory.Factory, st store.Store, feeds FeedSource, hub *WSHub, dev *DevTools) *Service {
	return &Service{
		factory: f,
		store:   st,
		feeds:   feeds,
		wsHub:   hub,
		dev:     dev,
	}
}

// Routes mounts every handler on r, which is expected at /api/v1.
func (s *Service) Routes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}

	r.Get("/pools", s.ListPools)
	r.Post("/pools", s.CreatePool)
	r.Post("/discovery-pools", s.CreateDiscoveryPool)

	r.Route("/pools/{poolID}", func(r chi.Router) {
		r.Get("/", s.GetPool)
		r.Get("/events", s.GetPoolEvents)
		r.Get("/users/{address}", s.GetUserPosition)

		r.Post("/deposit-phase", s.TriggerDepositPhase)
		r.Post("/transfer-phase", s.TriggerTransferPhase)
		r.Post("/deposit", s.Deposit)
		r.Post("/withdraw-penalty", s.WithdrawWithPenalty)
		r.Post("/transfer", s.TransferToRealPool)
		r.Post("/lp-withdraw", s.WithdrawLpTokens)
		r.Post("/leftovers-claim", s.ClaimLeftovers)
		r.Post("/rewards-claim", s.ClaimRewards)
		r.Post("/emergency-stop", s.EmergencyStop)
		r.Post("/emergency-resume", s.EmergencyResume)
		r.Post("/emergency-rescue", s.EmergencyRescueFunds)
	})

	r.Get("/users/{address}/events", s.GetUserEvents)

	if s.dev != nil {
		s.dev.Routes(r)
	}
}

// --- Request types ---

// CreatePoolRequest is the JSON body for POST /pools. The caller funds the
// reward allocation.
type CreatePoolRequest struct {
	Token0           common.Address  `json:"token0"`
	Token1           common.Address  `json:"token1"`
	Feed0            string          `json:"feed0"`
	Feed1            string          `json:"feed1"`
	RewardToken      common.Address  `json:"reward_token"`
	RewardAllocation decimal.Decimal `json:"reward_allocation"`
	StartTime        time.Time       `json:"start_time"`
}

// CreateDiscoveryPoolRequest is the JSON body for POST /discovery-pools.
type CreateDiscoveryPoolRequest struct {
	RewardToken      common.Address  `json:"reward_token"`
	CounterToken     common.Address  `json:"counter_token"`
	RewardAllocation decimal.Decimal `json:"reward_allocation"`
	StartTime        time.Time       `json:"start_time"`
}

// DepositRequest is the JSON body for POST /deposit. Two-sided pools read
// Amount0/Amount1; discovery pools read Token/Amount.
type DepositRequest struct {
	Amount0       decimal.Decimal `json:"amount0"`
	Amount1       decimal.Decimal `json:"amount1"`
	Token         common.Address  `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	LockingPeriod uint32          `json:"locking_period"`
}

// WithdrawRequest is the JSON body for POST /withdraw-penalty. Day selects
// the deposit bucket of a two-sided pool.
type WithdrawRequest struct {
	LockingPeriod uint32          `json:"locking_period"`
	Day           int             `json:"day"`
	Token         common.Address  `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransferRequest is the JSON body for POST /transfer. Discovery pools
// migrate everything at once and ignore N.
type TransferRequest struct {
	N int `json:"n"`
}

// LpWithdrawRequest is the JSON body for POST /lp-withdraw.
type LpWithdrawRequest struct {
	LockingPeriod uint32 `json:"locking_period"`
}

// ResumeRequest is the JSON body for POST /emergency-resume.
type ResumeRequest struct {
	Phase model.Phase `json:"phase"`
}

// --- Pool registry ---

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.factory.Pools()
	out := make([]model.PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req CreatePoolRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	feed0, ok0 := s.feeds.Feed(req.Feed0)
	feed1, ok1 := s.feeds.Feed(req.Feed1)
	if !ok0 || !ok1 {
		writeFailure(w, ErrUnknownFeed)
		return
	}

	p, err := s.factory.CreateIntermediatePool(r.Context(), factory.IntermediateParams{
		Token0:           req.Token0,
		Token1:           req.Token1,
		Feed0:            feed0,
		Feed1:            feed1,
		RewardToken:      req.RewardToken,
		RewardAllocation: req.RewardAllocation,
		Funder:           caller,
		StartTime:        startOrNow(req.StartTime),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	metrics.ActivePools.Inc()
	s.record(r.Context(), p, model.Event{
		Kind:   model.EventPoolCreated,
		User:   caller.Hex(),
		Reward: req.RewardAllocation,
	})
	writeJSON(w, http.StatusCreated, p.Snapshot())
}

// CreateDiscoveryPool handles POST /api/v1/discovery-pools
func (s *Service) CreateDiscoveryPool(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req CreateDiscoveryPoolRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	p, err := s.factory.CreatePriceDiscoveryPool(r.Context(), factory.DiscoveryParams{
		RewardToken:      req.RewardToken,
		CounterToken:     req.CounterToken,
		RewardAllocation: req.RewardAllocation,
		Funder:           caller,
		StartTime:        startOrNow(req.StartTime),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	metrics.ActivePools.Inc()
	s.record(r.Context(), p, model.Event{
		Kind:   model.EventPoolCreated,
		User:   caller.Hex(),
		Reward: req.RewardAllocation,
	})
	writeJSON(w, http.StatusCreated, p.Snapshot())
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	p, err := s.factory.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// GetUserPosition handles GET /api/v1/pools/{poolID}/users/{address}
func (s *Service) GetUserPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.factory.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	user, err := addressParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Position(user))
}

// GetPoolEvents handles GET /api/v1/pools/{poolID}/events
func (s *Service) GetPoolEvents(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	if _, err := s.factory.Get(poolID); err != nil {
		writeFailure(w, err)
		return
	}
	events, err := s.store.EventsByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetUserEvents handles GET /api/v1/users/{address}/events
func (s *Service) GetUserEvents(w http.ResponseWriter, r *http.Request) {
	user, err := addressParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	events, err := s.store.EventsByUser(r.Context(), user.Hex())
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Phase triggers ---

// TriggerDepositPhase handles POST /api/v1/pools/{poolID}/deposit-phase
func (s *Service) TriggerDepositPhase(w http.ResponseWriter, r *http.Request) {
	p, err := s.factory.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := p.TriggerDepositPhase(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	s.record(r.Context(), p, model.Event{Kind: model.EventDepositPhase})
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// TriggerTransferPhase handles POST /api/v1/pools/{poolID}/transfer-phase
func (s *Service) TriggerTransferPhase(w http.ResponseWriter, r *http.Request) {
	p, err := s.factory.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := p.TriggerTransferPhase(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	s.record(r.Context(), p, model.Event{Kind: model.EventTransferPhase})
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// --- Deposits ---

// Deposit handles POST /api/v1/pools/{poolID}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	ctx := r.Context()

	switch p := p.(type) {
	case *pool.Pool:
		res, err := p.Deposit(ctx, caller, req.Amount0, req.Amount1, req.LockingPeriod)
		if err != nil {
			writeFailure(w, err)
			return
		}
		metrics.DepositsTotal.WithLabelValues(model.VariantIntermediate).Inc()
		s.record(ctx, p, model.Event{
			Kind:          model.EventDeposit,
			User:          caller.Hex(),
			LockingPeriod: req.LockingPeriod,
			Amount0:       res.Matched.Amount0,
			Amount1:       res.Matched.Amount1,
		})
		writeJSON(w, http.StatusOK, res)

	case *discovery.Pool:
		matched, err := p.Deposit(ctx, caller, req.Token, req.Amount, req.LockingPeriod)
		if err != nil {
			writeFailure(w, err)
			return
		}
		metrics.DepositsTotal.WithLabelValues(model.VariantDiscovery).Inc()
		s.record(ctx, p, model.Event{
			Kind:          model.EventDeposit,
			User:          caller.Hex(),
			LockingPeriod: req.LockingPeriod,
			Amount0:       matched.Amount0,
			Amount1:       matched.Amount1,
		})
		writeJSON(w, http.StatusOK, map[string]model.Pair{"matched": matched})

	default:
		writeFailure(w, ErrUnsupported)
	}
}

// WithdrawWithPenalty handles POST /api/v1/pools/{poolID}/withdraw-penalty
func (s *Service) WithdrawWithPenalty(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	ctx := r.Context()

	var (
		res     *pool.WithdrawalResult
		err     error
		variant string
	)
	switch p := p.(type) {
	case *pool.Pool:
		variant = model.VariantIntermediate
		res, err = p.WithdrawWithPenalty(ctx, caller, req.LockingPeriod, req.Day)
	case *discovery.Pool:
		variant = model.VariantDiscovery
		res, err = p.WithdrawWithPenalty(ctx, caller, req.Token, req.Amount, req.LockingPeriod)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		writeFailure(w, err)
		return
	}

	metrics.PenaltyWithdrawalsTotal.WithLabelValues(variant).Inc()
	s.record(ctx, p, model.Event{
		Kind:          model.EventPenaltyWithdrawal,
		User:          caller.Hex(),
		LockingPeriod: req.LockingPeriod,
		Amount0:       res.Refund.Amount0,
		Amount1:       res.Refund.Amount1,
	})
	writeJSON(w, http.StatusOK, res)
}

// --- Migration and vesting ---

// TransferToRealPool handles POST /api/v1/pools/{poolID}/transfer
func (s *Service) TransferToRealPool(w http.ResponseWriter, r *http.Request) {
	p, err := s.factory.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req TransferRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	ctx := r.Context()

	var res *pool.BatchResult
	switch p := p.(type) {
	case *pool.Pool:
		res, err = p.TransferToRealPool(ctx, req.N)
	case *discovery.Pool:
		res, err = p.TransferToRealPool(ctx)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		var te *pool.TransferError
		if errors.As(err, &te) {
			slog.Warn("transfer batch rejected", "pool", p.ID(), "cursor", te.Cursor, "err", te.Err)
		}
		writeFailure(w, err)
		return
	}

	metrics.BatchEntriesTotal.Add(float64(res.Processed))
	metrics.AddShares(p.ID(), res.Shares)
	s.record(ctx, p, model.Event{
		Kind:    model.EventBatchTransfer,
		Amount0: res.Matched.Amount0,
		Amount1: res.Matched.Amount1,
		Shares:  res.Shares,
	})
	writeJSON(w, http.StatusOK, res)
}

// WithdrawLpTokens handles POST /api/v1/pools/{poolID}/lp-withdraw
func (s *Service) WithdrawLpTokens(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	var req LpWithdrawRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	ctx := r.Context()

	var (
		shares decimal.Decimal
		resp   any
	)
	switch p := p.(type) {
	case *pool.Pool:
		res, err := p.WithdrawLpTokens(ctx, caller, req.LockingPeriod)
		if err != nil {
			writeFailure(w, err)
			return
		}
		shares, resp = res.Shares, res
	case *discovery.Pool:
		res, err := p.WithdrawLpTokens(ctx, caller)
		if err != nil {
			writeFailure(w, err)
			return
		}
		shares, resp = res.Shares, res
	default:
		writeFailure(w, ErrUnsupported)
		return
	}

	if shares.IsPositive() {
		metrics.ClaimsTotal.WithLabelValues("lp").Inc()
		s.record(ctx, p, model.Event{
			Kind:          model.EventLpWithdrawal,
			User:          caller.Hex(),
			LockingPeriod: req.LockingPeriod,
			Shares:        shares,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClaimLeftovers handles POST /api/v1/pools/{poolID}/leftovers-claim
func (s *Service) ClaimLeftovers(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	ip, isIntermediate := p.(*pool.Pool)
	if !isIntermediate {
		writeFailure(w, ErrUnsupported)
		return
	}

	ctx := r.Context()
	claim, err := ip.ClaimLeftovers(ctx, caller)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !claim.Leftover.IsZero() || claim.Reward.IsPositive() {
		metrics.ClaimsTotal.WithLabelValues("leftover").Inc()
		s.record(ctx, p, model.Event{
			Kind:    model.EventLeftoverClaim,
			User:    caller.Hex(),
			Amount0: claim.Leftover.Amount0,
			Amount1: claim.Leftover.Amount1,
			Reward:  claim.Reward,
		})
	}
	writeJSON(w, http.StatusOK, claim)
}

// ClaimRewards handles POST /api/v1/pools/{poolID}/rewards-claim
func (s *Service) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	dp, isDiscovery := p.(*discovery.Pool)
	if !isDiscovery {
		writeFailure(w, ErrUnsupported)
		return
	}

	ctx := r.Context()
	reward, err := dp.ClaimRewards(ctx, caller)
	if err != nil {
		writeFailure(w, err)
		return
	}
	metrics.ClaimsTotal.WithLabelValues("reward").Inc()
	s.record(ctx, p, model.Event{
		Kind:   model.EventRewardClaim,
		User:   caller.Hex(),
		Reward: reward,
	})
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"reward": reward})
}

// --- Emergency controls ---

// EmergencyStop handles POST /api/v1/pools/{poolID}/emergency-stop
func (s *Service) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	if err := p.EmergencyStop(caller); err != nil {
		writeFailure(w, err)
		return
	}
	metrics.EmergencyActionsTotal.WithLabelValues("stop").Inc()
	s.record(r.Context(), p, model.Event{Kind: model.EventEmergencyStop, User: caller.Hex()})
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// EmergencyResume handles POST /api/v1/pools/{poolID}/emergency-resume
func (s *Service) EmergencyResume(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	var req ResumeRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if err := p.EmergencyResume(caller, req.Phase); err != nil {
		writeFailure(w, err)
		return
	}
	metrics.EmergencyActionsTotal.WithLabelValues("resume").Inc()
	s.record(r.Context(), p, model.Event{Kind: model.EventEmergencyResume, User: caller.Hex()})
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// EmergencyRescueFunds handles POST /api/v1/pools/{poolID}/emergency-rescue
func (s *Service) EmergencyRescueFunds(w http.ResponseWriter, r *http.Request) {
	p, caller, ok := s.target(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	swept, err := p.EmergencyRescueFunds(ctx, caller)
	if err != nil {
		writeFailure(w, err)
		return
	}

	metrics.EmergencyActionsTotal.WithLabelValues("rescue").Inc()
	token0, token1 := p.Tokens()
	s.record(ctx, p, model.Event{
		Kind:    model.EventEmergencyRescue,
		User:    caller.Hex(),
		Amount0: swept[token0],
		Amount1: swept[token1],
	})
	writeJSON(w, http.StatusOK, swept)
}

// --- Helpers ---

// target resolves the addressed pool and the caller, writing the error
// response itself when either is missing.
func (s *Service) target(w http.ResponseWriter, r *http.Request) (factory.Pool, common.Address, bool) {
	p, err := s.factory.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeFailure(w, err)
		return nil, common.Address{}, false
	}
	caller, err := callerOf(r)
	if err != nil {
		writeFailure(w, err)
		return nil, common.Address{}, false
	}
	return p, caller, true
}

// record journals a successful call, refreshes the stored snapshot and
// broadcasts the event. The pool already committed the call, so storage
// failures are logged rather than returned.
func (s *Service) record(ctx context.Context, p factory.Pool, e model.Event) {
	e.ID = uuid.New().String()
	e.PoolID = p.ID()
	e.Phase = p.Phase()
	e.Timestamp = time.Now().UTC()

	if err := s.store.AppendEvent(ctx, &e); err != nil {
		slog.Error("failed to journal event", "pool", e.PoolID, "kind", e.Kind, "err", err)
	}
	snap := p.Snapshot()
	if err := s.store.SavePool(ctx, &snap); err != nil {
		slog.Error("failed to save snapshot", "pool", e.PoolID, "err", err)
	}
	metrics.ObservePhase(e.PoolID, e.Phase)

	slog.Info("pool event",
		"id", e.ID,
		"pool", e.PoolID,
		"kind", e.Kind,
		"user", e.User,
		"phase", e.Phase.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   e.Kind,
			PoolID: e.PoolID,
			Phase:  e.Phase.String(),
			User:   e.User,
			Event:  &e,
		})
	}
}

func callerOf(r *http.Request) (common.Address, error) {
	h := r.Header.Get(CallerHeader)
	if !common.IsHexAddress(h) {
		return common.Address{}, ErrBadCaller
	}
	return common.HexToAddress(h), nil
}

func addressParam(r *http.Request) (common.Address, error) {
	a := chi.URLParam(r, "address")
	if !common.IsHexAddress(a) {
		return common.Address{}, ErrBadAddress
	}
	return common.HexToAddress(a), nil
}

// decode reads a JSON body into v; an empty body leaves v zero.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return ErrBadRequest
	}
	return nil
}

func startOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// statusFor maps a rejected call to its HTTP status.
func statusFor(err error) int {
	switch lifecycle.Classify(err) {
	case lifecycle.KindPhase, lifecycle.KindIdempotency:
		return http.StatusConflict
	case lifecycle.KindInput:
		return http.StatusBadRequest
	case lifecycle.KindAuth:
		return http.StatusForbidden
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	}
	if errors.Is(err, chain.ErrInsufficientBalance) || errors.Is(err, chain.ErrInvalidAmount) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeFailure writes err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeError(w, err.Error(), status)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
