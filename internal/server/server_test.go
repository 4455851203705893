package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/cache/memory"
	"github.com/npanium/zkLeaderboard/internal/crypto"
	"github.com/npanium/zkLeaderboard/internal/domain"
	"github.com/npanium/zkLeaderboard/internal/engine"
	"github.com/npanium/zkLeaderboard/internal/server/handler"
	"github.com/npanium/zkLeaderboard/internal/service"
	"github.com/npanium/zkLeaderboard/internal/token"
)

const apiKey = "secret"

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	tokenID  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	custody  = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	cand1    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	cand2    = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

var testNow = time.Unix(1_700_000_000, 0)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	ledger *token.Memory
}

func newTestServer(t *testing.T, relayLimit int) *testServer {
	t.Helper()
	require := require.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := token.NewMemory()
	eng, err := engine.New(engine.Config{
		Custody: custody,
		Ledger:  ledger.As(custody),
		Clock:   func() time.Time { return testNow },
		Logger:  logger,
	})
	require.NoError(err)

	svc, err := service.NewBettingService(service.BettingConfig{
		Engine: eng,
		Admin:  ledger,
		Locks:  memory.NewLockManager(),
		Logger: logger,
	})
	require.NoError(err)

	s := NewServer(Config{
		Port:        0,
		APIKey:      apiKey,
		RelayLimit:  relayLimit,
		RelayWindow: time.Minute,
	}, Handlers{
		Health:      handler.NewHealthHandler(nil, logger),
		Status:      handler.NewStatusHandler("standalone", eng, testNow),
		Engine:      handler.NewEngineHandler(svc, eng, logger),
		Bets:        handler.NewBetHandler(svc, eng, logger),
		Token:       handler.NewTokenHandler(svc, logger),
		Settlements: handler.NewSettlementHandler(svc, logger),
	}, memory.NewRateLimiter(), nil, logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testServer{t: t, srv: ts, ledger: ledger}
}

func (ts *testServer) do(method, path string, body any, authed bool) (int, map[string]any) {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, ts.srv.URL+path, rdr)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	if len(raw) > 0 {
		require.NoError(ts.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (ts *testServer) initAndOpen() {
	ts.t.Helper()
	code, _ := ts.do(http.MethodPost, "/api/engine/init", map[string]string{
		"operator": operator.Hex(), "treasury": treasury.Hex(), "token": tokenID.Hex(),
	}, true)
	require.Equal(ts.t, http.StatusOK, code)
	code, _ = ts.do(http.MethodPost, "/api/window/start", map[string]any{
		"candidates": []string{cand1.Hex(), cand2.Hex()},
	}, true)
	require.Equal(ts.t, http.StatusOK, code)
}

// fundedBettor mints tokens through the API and approves the engine custody.
func (ts *testServer) fundedBettor(amount uint64) *crypto.Signer {
	ts.t.Helper()
	s, err := crypto.GenerateSigner()
	require.NoError(ts.t, err)
	code, _ := ts.do(http.MethodPost, "/api/token/mint-to", map[string]string{
		"to": s.Address().Hex(), "amount": fmt.Sprint(amount),
	}, true)
	require.Equal(ts.t, http.StatusOK, code)
	ts.ledger.Approve(s.Address(), custody, uint256.NewInt(amount))
	return s
}

func betBody(t *testing.T, s *crypto.Signer, candidate common.Address, up bool, amount, nonce uint64) map[string]any {
	t.Helper()
	auth := domain.BetAuthorization{
		Bettor:    s.Address(),
		Candidate: candidate,
		Position:  up,
		Amount:    uint256.NewInt(amount),
		Nonce:     nonce,
		Deadline:  uint64(testNow.Unix()) + 60,
	}
	require.NoError(t, s.SignBetAuthorization(&auth))
	return map[string]any{
		"bettor":    auth.Bettor.Hex(),
		"candidate": auth.Candidate.Hex(),
		"position":  auth.Position,
		"amount":    auth.Amount.Dec(),
		"nonce":     auth.Nonce,
		"deadline":  auth.Deadline,
		"signature": hexutil.Encode(auth.Signature),
	}
}

func TestHealthAndStatus(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t, 0)

	code, body := ts.do(http.MethodGet, "/api/health", nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal("ok", body["status"])

	code, body = ts.do(http.MethodGet, "/api/status", nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal("standalone", body["mode"])
}

func TestOperatorRoutesRequireKey(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t, 0)

	code, _ := ts.do(http.MethodPost, "/api/engine/init", map[string]string{
		"operator": operator.Hex(), "treasury": treasury.Hex(), "token": tokenID.Hex(),
	}, false)
	require.Equal(http.StatusUnauthorized, code)

	code, _ = ts.do(http.MethodPost, "/api/window/close", nil, false)
	require.Equal(http.StatusUnauthorized, code)

	code, body := ts.do(http.MethodPost, "/api/engine/init", map[string]string{
		"operator": domain.ZeroAddress.Hex(), "treasury": treasury.Hex(), "token": tokenID.Hex(),
	}, true)
	require.Equal(http.StatusUnprocessableEntity, code)
	require.Contains(body["error"], "non-zero")

	ts.initAndOpen()
	code, body = ts.do(http.MethodPost, "/api/engine/init", map[string]string{
		"operator": operator.Hex(), "treasury": treasury.Hex(), "token": tokenID.Hex(),
	}, true)
	require.Equal(http.StatusConflict, code)
	require.Contains(body["error"], "already initialized")
}

func TestBadRequests(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t, 0)

	code, _ := ts.do(http.MethodPost, "/api/engine/init", map[string]string{"operator": "nope"}, true)
	require.Equal(http.StatusBadRequest, code)

	code, _ = ts.do(http.MethodPost, "/api/window/start", map[string]any{"candidates": []string{"0x12"}}, true)
	require.Equal(http.StatusBadRequest, code)

	code, _ = ts.do(http.MethodPost, "/api/window/start", map[string]any{"roster": []string{}}, true)
	require.Equal(http.StatusBadRequest, code)

	code, _ = ts.do(http.MethodGet, "/api/bets/-1", nil, false)
	require.Equal(http.StatusBadRequest, code)

	code, _ = ts.do(http.MethodGet, "/api/events?round=x", nil, false)
	require.Equal(http.StatusBadRequest, code)
}

func TestRoundOverHTTP(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t, 0)
	ts.initAndOpen()

	alice := ts.fundedBettor(1000)
	bob := ts.fundedBettor(1000)

	aliceBet := betBody(t, alice, cand1, true, 1000, 0)
	code, body := ts.do(http.MethodPost, "/api/bets/verify", aliceBet, false)
	require.Equal(http.StatusOK, code)
	require.Equal(true, body["valid"])

	code, body = ts.do(http.MethodPost, "/api/bets", aliceBet, false)
	require.Equal(http.StatusCreated, code)
	require.EqualValues(1, body["next_nonce"])

	code, _ = ts.do(http.MethodPost, "/api/bets", aliceBet, false)
	require.Equal(http.StatusUnprocessableEntity, code)

	code, _ = ts.do(http.MethodPost, "/api/bets", betBody(t, bob, cand1, false, 1000, 0), false)
	require.Equal(http.StatusCreated, code)

	code, body = ts.do(http.MethodGet, "/api/bets/count", nil, false)
	require.Equal(http.StatusOK, code)
	require.EqualValues(2, body["count"])

	code, body = ts.do(http.MethodGet, "/api/bets/0", nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal("900", body["amount"])
	require.Equal(true, body["position"])

	code, _ = ts.do(http.MethodGet, "/api/bets/2", nil, false)
	require.Equal(http.StatusNotFound, code)

	code, body = ts.do(http.MethodGet, "/api/bets/amounts/0", nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal("900", body["up"])
	require.Equal("900", body["down"])

	code, _ = ts.do(http.MethodGet, "/api/bets/amounts/2", nil, false)
	require.Equal(http.StatusNotFound, code)

	code, body = ts.do(http.MethodGet, "/api/nonces/"+alice.Address().Hex(), nil, false)
	require.Equal(http.StatusOK, code)
	require.EqualValues(1, body["nonce"])

	code, body = ts.do(http.MethodGet, "/api/candidates/"+cand2.Hex(), nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal(true, body["valid"])

	code, _ = ts.do(http.MethodPost, "/api/payouts", map[string]any{"winners": []bool{true, false}}, true)
	require.Equal(http.StatusConflict, code)

	code, _ = ts.do(http.MethodPost, "/api/window/close", nil, true)
	require.Equal(http.StatusOK, code)

	code, _ = ts.do(http.MethodPost, "/api/payouts", map[string]any{"winners": []bool{true}}, true)
	require.Equal(http.StatusUnprocessableEntity, code)

	code, body = ts.do(http.MethodPost, "/api/payouts", map[string]any{"winners": []bool{true, false}}, true)
	require.Equal(http.StatusOK, code)
	require.EqualValues(2, body["bets_cleared"])

	code, body = ts.do(http.MethodGet, "/api/token/balance/"+alice.Address().Hex(), nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal("1800", body["balance"])

	code, body = ts.do(http.MethodGet, "/api/window/status", nil, false)
	require.Equal(http.StatusOK, code)
	require.Equal(false, body["window_active"])
	require.EqualValues(0, body["bet_count"])

	code, _ = ts.do(http.MethodGet, "/api/settlements", nil, false)
	require.Equal(http.StatusNotImplemented, code)
	code, _ = ts.do(http.MethodGet, "/api/settlements/archive?round=1", nil, false)
	require.Equal(http.StatusNotImplemented, code)
}

func TestRelayRateLimit(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t, 2)
	ts.initAndOpen()
	alice := ts.fundedBettor(1000)
	body := betBody(t, alice, cand1, true, 1000, 0)

	for i := 0; i < 2; i++ {
		code, _ := ts.do(http.MethodPost, "/api/bets/verify", body, false)
		require.Equal(http.StatusOK, code)
	}
	code, resp := ts.do(http.MethodPost, "/api/bets/verify", body, false)
	require.Equal(http.StatusTooManyRequests, code)
	require.Equal("rate limited", resp["error"])
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t, 0)
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "abc", resp.Header.Get("X-Request-ID"))
}
