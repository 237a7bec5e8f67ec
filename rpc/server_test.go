package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"bridgeproxy/native/proxy"
	"bridgeproxy/native/token"
	"bridgeproxy/storage"
)

var (
	testAdmin   = testAddr(0x01)
	testManager = testAddr(0x02)
	testUser    = testAddr(0x03)
	testRouter  = testAddr(0x05)
	testGateway = testAddr(0x06)
	testCustody = testAddr(0x08)
	testAsset   = testAddr(0x09)
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

// drainInvoker pulls the full granted capacity, mimicking a well-behaved
// provider router.
type drainInvoker struct {
	asset  [20]byte
	router [20]byte
}

func (i drainInvoker) Invoke(call proxy.ProviderCall) error {
	granted, err := call.Tokens.Allowance(i.asset, call.Custody, i.router)
	if err != nil {
		return err
	}
	if granted.Sign() == 0 {
		return nil
	}
	return call.Tokens.TransferFrom(i.asset, call.Custody, i.router, i.router, granted)
}

func newTestServer(t *testing.T) (*Server, *proxy.Engine) {
	t.Helper()
	engine := proxy.NewEngine(storage.NewMemDB(), testCustody)
	engine.SetInvoker(drainInvoker{asset: testAsset, router: testRouter})
	if err := engine.Tokens().Register(testAsset, token.Metadata{Symbol: "TKN"}); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := engine.Setup(proxy.GenesisConfig{
		Admin:           testAdmin,
		Managers:        [][20]byte{testManager},
		PlatformFeeRate: 10_000,
		FixedNativeFee:  big.NewInt(500),
		Providers:       [][20]byte{testRouter, testGateway},
		Assets:          [][20]byte{testAsset},
		MinAmounts:      []*big.Int{big.NewInt(100)},
		MaxAmounts:      []*big.Int{big.NewInt(10_000_000)},
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tokens := engine.Tokens()
	if err := tokens.Mint(testAsset, testUser, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tokens.Approve(testAsset, testUser, testCustody, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tokens.Mint(token.NativeAsset, testUser, big.NewInt(500)); err != nil {
		t.Fatalf("mint native: %v", err)
	}
	server := NewServer(engine, Options{Network: "testnet"})
	return server, engine
}

func post(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func hexAddr(a [20]byte) string { return encodeAddress(a) }

func TestDispatchTokenEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := post(t, router, "/v1/dispatch/token", dispatchRequest{
		Caller:      hexAddr(testUser),
		InputAsset:  hexAddr(testAsset),
		InputAmount: "1000000",
		DstChainID:  137,
		Recipient:   hexAddr(testAddr(0x07)),
		Router:      hexAddr(testRouter),
		Gateway:     hexAddr(testGateway),
		CallData:    "0xdeadbeef",
		Value:       "500",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var receipt receiptPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.RequestID == "" || receipt.Fees.PostFee != "990000" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestDispatchEndpointValidation(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := post(t, router, "/v1/dispatch/token", dispatchRequest{
		Caller: "not-an-address",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status = %d", rec.Code)
	}

	rec = post(t, router, "/v1/dispatch/token", dispatchRequest{
		Caller:      hexAddr(testUser),
		InputAsset:  hexAddr(testAsset),
		InputAmount: "1000000",
		Recipient:   hexAddr(testAddr(0x07)),
		Router:      hexAddr(testRouter),
		Gateway:     hexAddr(testAddr(0xEE)),
		Value:       "500",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unlisted gateway status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestAdminEndpointsGated(t *testing.T) {
	server, engine := newTestServer(t)
	router := server.Router()

	rec := post(t, router, "/v1/admin/pause", callerRequest{Caller: hexAddr(testUser)})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pause by stranger status = %d", rec.Code)
	}
	rec = post(t, router, "/v1/admin/pause", callerRequest{Caller: hexAddr(testManager)})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, body %s", rec.Code, rec.Body)
	}
	paused, err := engine.IsPaused()
	if err != nil || !paused {
		t.Fatalf("paused = %v %v, want true", paused, err)
	}

	rec = post(t, router, "/v1/admin/fixed-fee", boundRequest{Caller: hexAddr(testManager), Value: "900"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set fee status = %d, body %s", rec.Code, rec.Body)
	}
	fee, _ := engine.FixedNativeFee()
	if fee.Int64() != 900 {
		t.Fatalf("fee = %s, want 900", fee)
	}
}

func TestStatusAndQueryEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := get(t, router, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status statusPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Network != "testnet" || status.Paused || status.Admin != hexAddr(testAdmin) {
		t.Fatalf("unexpected status: %+v", status)
	}

	rec = get(t, router, "/v1/fees/config?asset="+hexAddr(testAsset))
	if rec.Code != http.StatusOK {
		t.Fatalf("fee config status = %d", rec.Code)
	}
	var feeCfg feeConfigPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &feeCfg); err != nil {
		t.Fatalf("decode fee config: %v", err)
	}
	if feeCfg.FixedNativeFee != "500" || feeCfg.Min != "100" || feeCfg.Max != "10000000" {
		t.Fatalf("unexpected fee config: %+v", feeCfg)
	}

	rec = get(t, router, "/v1/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("providers status = %d", rec.Code)
	}

	rec = get(t, router, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	_, engine := newTestServer(t)
	server := NewServer(engine, Options{Network: "testnet", RequestsPerSecond: 1, Burst: 1})
	router := server.Router()

	first := get(t, router, "/v1/status")
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	second := get(t, router, "/v1/status")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}
