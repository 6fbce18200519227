package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nftmint/internal/apiauth"
	"nftmint/internal/app"
	"nftmint/internal/config"
	"nftmint/internal/jobstore"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, opts app.Options) (*Server, *app.App) {
	t.Helper()
	cfg := &config.AppConfig{
		Chain: config.ChainConfig{
			ChainID:     545,
			ExplorerURL: "https://evm-testnet.flowscan.io",
			Contract:    "0xD8a47Da70D7E828e01fDC4F959fAB5aA52e6fF4b",
			ImageURI:    "https://example.com/flow.png",
		},
		Mint: config.MintConfig{
			PriceWei:       "10000000000000000",
			ConfirmTimeout: 5 * time.Second,
			PollInterval:   time.Millisecond,
			SuccessDisplay: 3 * time.Second,
		},
		Service: config.ServiceConfig{
			HMACSecret:     testSecret,
			HMACClockSkew:  time.Minute,
			IdempotencyTTL: time.Minute,
		},
		Store: config.StoreConfig{Driver: "memory"},
	}
	a, err := app.New(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return NewServer(a, nil), a
}

func do(t *testing.T, s *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if method == http.MethodPost {
		apiauth.Sign(req, testSecret, body, time.Now())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

// waitRefreshed waits for the refresh started by connect.
func waitRefreshed(t *testing.T, a *app.App) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for a.Collection.Tokens().RefreshedAt.IsZero() {
		if time.Now().After(deadline) {
			t.Fatalf("connect did not refresh the collection")
		}
		time.Sleep(time.Millisecond)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestMintIdempotency(t *testing.T) {
	s, a := newTestServer(t, app.Options{Fake: true, DevWallet: true})

	rec := do(t, s, http.MethodPost, "/api/v1/session/connect", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	sess := decode[sessionView](t, rec)
	if sess.State != "connected" || len(sess.AccountShort) != 13 {
		t.Fatalf("unexpected session %+v", sess)
	}
	waitRefreshed(t, a)

	key := map[string]string{headerIdempotencyKey: "key-1"}
	rec = do(t, s, http.MethodPost, "/api/v1/mints", nil, key)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
	first := decode[jobView](t, rec)
	if first.State != "submitting" || first.ValueWei != "10000000000000000" {
		t.Fatalf("unexpected job %+v", first)
	}

	if _, err := a.Mints.Wait(context.Background(), first.RequestID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/mints", nil, key)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected replay 200 got %d", rec.Code)
	}
	replay := decode[jobView](t, rec)
	if replay.RequestID != first.RequestID {
		t.Fatalf("expected replay of %s, got %s", first.RequestID, replay.RequestID)
	}
	if replay.State != "confirmed" || replay.TokenID != "0" || replay.TxURL == "" {
		t.Fatalf("unexpected replayed job %+v", replay)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/collection", nil, nil)
	coll := decode[collectionView](t, rec)
	if len(coll.Tokens) != 1 || coll.Tokens[0] != "0" || coll.ImageURI == "" {
		t.Fatalf("unexpected collection %+v", coll)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/mints/current", nil, nil)
	cur := decode[currentMintView](t, rec)
	if cur.Job == nil || cur.Job.RequestID != first.RequestID || !cur.SuccessVisible {
		t.Fatalf("unexpected current mint %+v", cur)
	}
}

func TestMintRequiresConnection(t *testing.T) {
	s, _ := newTestServer(t, app.Options{Fake: true, DevWallet: true})

	rec := do(t, s, http.MethodPost, "/api/v1/mints", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestPostRequiresSignature(t *testing.T) {
	s, _ := newTestServer(t, app.Options{Fake: true, DevWallet: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/connect", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestConnectWithoutWallet(t *testing.T) {
	s, _ := newTestServer(t, app.Options{Fake: true})

	rec := do(t, s, http.MethodPost, "/api/v1/session/connect", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	sess := decode[sessionView](t, rec)
	if sess.State != "failed" || sess.Error == "" || sess.Account != "" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestDisconnectClearsSession(t *testing.T) {
	s, _ := newTestServer(t, app.Options{Fake: true, DevWallet: true})

	do(t, s, http.MethodPost, "/api/v1/session/connect", nil, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/session/disconnect", nil, nil)
	sess := decode[sessionView](t, rec)
	if sess.State != "disconnected" || sess.Account != "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/collection", nil, nil)
	if coll := decode[collectionView](t, rec); len(coll.Tokens) != 0 || coll.Account != "" {
		t.Fatalf("expected empty collection, got %+v", coll)
	}
}

func TestGetMintFromHistory(t *testing.T) {
	s, a := newTestServer(t, app.Options{Fake: true})

	rec := jobstore.Record{
		RequestID: "req-1",
		Account:   "0x00000000000000000000000000000000000000aa",
		ValueWei:  "10000000000000000",
		State:     "failed",
		Cause:     "contract_revert",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := a.Store.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	resp := do(t, s, http.MethodGet, "/api/v1/mints/req-1", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := decode[jobView](t, resp); got.Cause != "contract_revert" || got.State != "failed" {
		t.Fatalf("unexpected job %+v", got)
	}

	resp = do(t, s, http.MethodGet, "/api/v1/mints/missing", nil, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, app.Options{Fake: true, DevWallet: true})

	rec := do(t, s, http.MethodGet, "/api/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	health := decode[struct {
		Status  string `json:"status"`
		Session string `json:"session"`
	}](t, rec)
	if health.Status != "healthy" || health.Session != "disconnected" {
		t.Fatalf("unexpected health %+v", health)
	}

	do(t, s, http.MethodPost, "/api/v1/session/connect", nil, nil)
	rec = do(t, s, http.MethodGet, "/api/v1/metrics", nil, nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`nftmint_connect_attempts_total{result="ok"} 1`)) {
		t.Fatalf("metrics missing connect counter:\n%s", rec.Body.String())
	}
}
