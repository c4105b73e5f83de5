package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/api"
	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/factory"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pool"
	"github.com/lbp/pool-engine/internal/store"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	weth  = common.HexToAddress("0x0000000000000000000000000000000000001000")
	usdc  = common.HexToAddress("0x0000000000000000000000000000000000002000")
	vrsw  = common.HexToAddress("0x0000000000000000000000000000000000003000")
)

const week = 7 * 24 * time.Hour

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

type testEnv struct {
	router chi.Router
	store  *store.MemoryStore
	ledger *chain.MemoryLedger
	now    time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

// newTestEnv creates a Service over an in-memory chain, store and chi router.
func newTestEnv(t *testing.T, devMode bool) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	env.ledger = chain.NewMemoryLedger()
	amm := chain.NewMemoryRouter(env.ledger, common.HexToAddress("0x0000000000000000000000000000000000008000"))
	feeds := chain.NewFeedRegistry(env.clock)
	env.store = store.NewMemoryStore()

	f := factory.New(common.HexToAddress("0x0000000000000000000000000000000000000fac"), env.ledger, amm,
		factory.Settings{Admin: admin, Now: env.clock})

	var dev *api.DevTools
	if devMode {
		dev = &api.DevTools{Ledger: env.ledger, Router: amm, Feeds: feeds}
	}
	svc := api.NewService(f, env.store, feeds, nil, dev)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, caller common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if caller != (common.Address{}) {
		req.Header.Set(api.CallerHeader, caller.Hex())
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// seedChain creates the weth/usdc pair, two feeds and funds admin and alice
// through the dev endpoints.
func seedChain(t *testing.T, env *testEnv) {
	t.Helper()
	expectStatus(t, env.do(t, "POST", "/api/v1/dev/pairs", common.Address{},
		api.PairRequest{Token0: weth, Token1: usdc}), http.StatusCreated)
	expectStatus(t, env.do(t, "POST", "/api/v1/dev/pairs", common.Address{},
		api.PairRequest{Token0: vrsw, Token1: usdc}), http.StatusCreated)
	expectStatus(t, env.do(t, "POST", "/api/v1/dev/feeds/eth", common.Address{},
		api.FeedRequest{Answer: d(200000000)}), http.StatusOK)
	expectStatus(t, env.do(t, "POST", "/api/v1/dev/feeds/usd", common.Address{},
		api.FeedRequest{Answer: d(100000000)}), http.StatusOK)

	for _, m := range []api.MintRequest{
		{Token: vrsw, To: admin, Amount: d(1000)},
		{Token: weth, To: alice, Amount: d(100)},
		{Token: usdc, To: alice, Amount: d(100)},
		{Token: vrsw, To: bob, Amount: d(100)},
	} {
		expectStatus(t, env.do(t, "POST", "/api/v1/dev/mint", common.Address{}, m), http.StatusOK)
	}
}

func createPool(t *testing.T, env *testEnv) model.PoolSnapshot {
	t.Helper()
	w := env.do(t, "POST", "/api/v1/pools", admin, api.CreatePoolRequest{
		Token0:           weth,
		Token1:           usdc,
		Feed0:            "eth",
		Feed1:            "usd",
		RewardToken:      vrsw,
		RewardAllocation: d(1000),
		StartTime:        env.now,
	})
	expectStatus(t, w, http.StatusCreated)

	var snap model.PoolSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

// --- Two-sided pool lifecycle ---

func TestIntermediatePool_Lifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	seedChain(t, env)
	snap := createPool(t, env)
	base := "/api/v1/pools/" + snap.ID

	if snap.Phase != model.PhaseCreated {
		t.Fatalf("expected created phase, got %s", snap.Phase)
	}

	expectStatus(t, env.do(t, "POST", base+"/deposit-phase", common.Address{}, nil), http.StatusOK)

	// Offer (10, 10) at ratio 2: only (10, 5) is taken.
	w := env.do(t, "POST", base+"/deposit", alice, api.DepositRequest{
		Amount0: d(10), Amount1: d(10), LockingPeriod: 2,
	})
	expectStatus(t, w, http.StatusOK)
	var dep pool.DepositResult
	json.Unmarshal(w.Body.Bytes(), &dep)
	if !dep.Matched.Amount0.Equal(d(10)) || !dep.Matched.Amount1.Equal(d(5)) {
		t.Errorf("matched = (%s, %s), want (10, 5)", dep.Matched.Amount0, dep.Matched.Amount1)
	}

	// Unknown locking period.
	w = env.do(t, "POST", base+"/deposit", alice, api.DepositRequest{
		Amount0: d(10), Amount1: d(10), LockingPeriod: 3,
	})
	expectStatus(t, w, http.StatusBadRequest)

	// Deposits stay open for the whole window.
	expectStatus(t, env.do(t, "POST", base+"/transfer-phase", common.Address{}, nil), http.StatusConflict)

	env.now = env.now.Add(week)
	expectStatus(t, env.do(t, "POST", base+"/transfer-phase", common.Address{}, nil), http.StatusOK)
	expectStatus(t, env.do(t, "POST", base+"/transfer", common.Address{}, api.TransferRequest{N: 0}), http.StatusBadRequest)

	w = env.do(t, "POST", base+"/transfer", common.Address{}, api.TransferRequest{N: 10})
	expectStatus(t, w, http.StatusOK)
	var batch pool.BatchResult
	json.Unmarshal(w.Body.Bytes(), &batch)
	if !batch.Completed || batch.Processed != 1 {
		t.Fatalf("expected completed batch of 1, got %+v", batch)
	}

	// LP shares stay locked for the period.
	expectStatus(t, env.do(t, "POST", base+"/lp-withdraw", alice, api.LpWithdrawRequest{LockingPeriod: 2}), http.StatusConflict)

	env.now = env.now.Add(2 * week)
	w = env.do(t, "POST", base+"/lp-withdraw", alice, api.LpWithdrawRequest{LockingPeriod: 2})
	expectStatus(t, w, http.StatusOK)
	var lp pool.LpWithdrawal
	json.Unmarshal(w.Body.Bytes(), &lp)
	if !lp.Shares.Equal(batch.Shares) {
		t.Errorf("withdrew %s shares, want %s", lp.Shares, batch.Shares)
	}

	w = env.do(t, "POST", base+"/leftovers-claim", alice, nil)
	expectStatus(t, w, http.StatusOK)
	var claim pool.Claim
	json.Unmarshal(w.Body.Bytes(), &claim)
	if !claim.Reward.Equal(d(1000)) {
		t.Errorf("reward = %s, want 1000", claim.Reward)
	}

	// Reward claims belong to discovery pools.
	expectStatus(t, env.do(t, "POST", base+"/rewards-claim", alice, nil), http.StatusBadRequest)

	bal, _ := env.ledger.BalanceOf(context.Background(), vrsw, alice)
	if !bal.Equal(d(1000)) {
		t.Errorf("alice reward balance = %s, want 1000", bal)
	}
}

func TestIntermediatePool_Journal(t *testing.T) {
	env := newTestEnv(t, true)
	seedChain(t, env)
	snap := createPool(t, env)
	base := "/api/v1/pools/" + snap.ID

	expectStatus(t, env.do(t, "POST", base+"/deposit-phase", common.Address{}, nil), http.StatusOK)
	expectStatus(t, env.do(t, "POST", base+"/deposit", alice, api.DepositRequest{
		Amount0: d(4), Amount1: d(4), LockingPeriod: 4,
	}), http.StatusOK)

	w := env.do(t, "GET", base+"/events", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var events []model.Event
	json.Unmarshal(w.Body.Bytes(), &events)

	kinds := make([]string, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	want := []string{model.EventPoolCreated, model.EventDepositPhase, model.EventDeposit}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if events[2].LockingPeriod != 4 || events[2].ID == "" {
		t.Errorf("unexpected deposit event %+v", events[2])
	}

	w = env.do(t, "GET", "/api/v1/users/"+alice.Hex()+"/events", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	json.Unmarshal(w.Body.Bytes(), &events)
	if len(events) != 1 || events[0].Kind != model.EventDeposit {
		t.Errorf("alice events = %+v", events)
	}

	stored, err := env.store.GetPool(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("snapshot not saved: %v", err)
	}
	if stored.Phase != model.PhaseDeposit || stored.TotalDeposits != 1 {
		t.Errorf("stored snapshot phase=%s deposits=%d", stored.Phase, stored.TotalDeposits)
	}

	w = env.do(t, "GET", base+"/users/"+alice.Hex(), common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var pos model.UserPosition
	json.Unmarshal(w.Body.Bytes(), &pos)
	if len(pos.Deposits) != 1 || pos.Deposits[0].LockingPeriod != 4 {
		t.Errorf("unexpected position %+v", pos)
	}
}

// --- Discovery pool ---

func TestDiscoveryPool_DepositAndClaimPhase(t *testing.T) {
	env := newTestEnv(t, true)
	seedChain(t, env)

	w := env.do(t, "POST", "/api/v1/discovery-pools", admin, api.CreateDiscoveryPoolRequest{
		RewardToken:      vrsw,
		CounterToken:     usdc,
		RewardAllocation: d(500),
		StartTime:        env.now,
	})
	expectStatus(t, w, http.StatusCreated)
	var snap model.PoolSnapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Variant != model.VariantDiscovery {
		t.Fatalf("variant = %s", snap.Variant)
	}
	base := "/api/v1/pools/" + snap.ID

	expectStatus(t, env.do(t, "POST", base+"/deposit-phase", common.Address{}, nil), http.StatusOK)
	expectStatus(t, env.do(t, "POST", base+"/deposit", bob, api.DepositRequest{
		Token: weth, Amount: d(10), LockingPeriod: 2,
	}), http.StatusBadRequest)
	expectStatus(t, env.do(t, "POST", base+"/deposit", bob, api.DepositRequest{
		Token: vrsw, Amount: d(10), LockingPeriod: 2,
	}), http.StatusOK)

	expectStatus(t, env.do(t, "POST", base+"/rewards-claim", bob, nil), http.StatusConflict)
	expectStatus(t, env.do(t, "POST", base+"/leftovers-claim", bob, nil), http.StatusBadRequest)

	w = env.do(t, "POST", base+"/withdraw-penalty", bob, api.WithdrawRequest{
		Token: vrsw, Amount: d(10), LockingPeriod: 2,
	})
	expectStatus(t, w, http.StatusOK)
	var res pool.WithdrawalResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Refund.Amount0.Equal(d(9)) || !res.Penalty.Amount0.Equal(d(1)) {
		t.Errorf("refund %s penalty %s, want 9 and 1", res.Refund.Amount0, res.Penalty.Amount0)
	}
}

// --- Emergency controls ---

func TestEmergency_AdminOnly(t *testing.T) {
	env := newTestEnv(t, true)
	seedChain(t, env)
	snap := createPool(t, env)
	base := "/api/v1/pools/" + snap.ID

	expectStatus(t, env.do(t, "POST", base+"/deposit-phase", common.Address{}, nil), http.StatusOK)
	expectStatus(t, env.do(t, "POST", base+"/emergency-stop", alice, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, "POST", base+"/emergency-stop", admin, nil), http.StatusOK)

	// Stopped pools reject every user call.
	expectStatus(t, env.do(t, "POST", base+"/deposit", alice, api.DepositRequest{
		Amount0: d(1), Amount1: d(1), LockingPeriod: 2,
	}), http.StatusConflict)

	w := env.do(t, "POST", base+"/emergency-rescue", admin, nil)
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, "POST", base+"/emergency-resume", admin, api.ResumeRequest{Phase: model.PhaseDeposit})
	expectStatus(t, w, http.StatusOK)
	var after model.PoolSnapshot
	json.Unmarshal(w.Body.Bytes(), &after)
	if after.Phase != model.PhaseDeposit {
		t.Errorf("phase after resume = %s", after.Phase)
	}
}

// --- Request validation ---

func TestRequests_Rejected(t *testing.T) {
	env := newTestEnv(t, true)
	seedChain(t, env)
	snap := createPool(t, env)
	base := "/api/v1/pools/" + snap.ID

	tests := []struct {
		name   string
		method string
		path   string
		caller common.Address
		body   any
		want   int
	}{
		{"unknown pool", "GET", "/api/v1/pools/missing", common.Address{}, nil, http.StatusNotFound},
		{"missing caller", "POST", base + "/deposit", common.Address{}, api.DepositRequest{}, http.StatusBadRequest},
		{"bad user address", "GET", base + "/users/not-an-address", common.Address{}, nil, http.StatusBadRequest},
		{"deposit before phase", "POST", base + "/deposit", alice, api.DepositRequest{Amount0: d(1), Amount1: d(1), LockingPeriod: 2}, http.StatusConflict},
		{"duplicate pool", "POST", "/api/v1/pools", admin, api.CreatePoolRequest{Token0: usdc, Token1: weth, Feed0: "usd", Feed1: "eth"}, http.StatusConflict},
		{"unknown feed", "POST", "/api/v1/pools", admin, api.CreatePoolRequest{Token0: vrsw, Token1: usdc, Feed0: "nope", Feed1: "usd"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.caller, tt.body)
			expectStatus(t, w, tt.want)
			var body map[string]string
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestDevEndpoints_DisabledOutsideDevMode(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, "POST", "/api/v1/dev/mint", common.Address{}, api.MintRequest{Token: weth, To: alice, Amount: d(1)})
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected dev route to be unmounted, got %d", w.Code)
	}
}

func TestListPools(t *testing.T) {
	env := newTestEnv(t, true)
	seedChain(t, env)

	w := env.do(t, "GET", "/api/v1/pools", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	if body := bytes.TrimSpace(w.Body.Bytes()); string(body) != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}

	created := createPool(t, env)
	w = env.do(t, "GET", "/api/v1/pools", common.Address{}, nil)
	var pools []model.PoolSnapshot
	json.Unmarshal(w.Body.Bytes(), &pools)
	if len(pools) != 1 || pools[0].ID != created.ID {
		t.Errorf("unexpected pools %+v", pools)
	}
}
