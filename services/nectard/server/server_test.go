package server_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"nectar/crypto"
	gatewayauth "nectar/gateway/auth"
	"nectar/gateway/middleware"
	"nectar/native/params"
	"nectar/native/points"
	"nectar/native/pricefeed"
	"nectar/native/vault"
	"nectar/services/nectard/server"
	"nectar/services/nectard/storage"
	kv "nectar/storage"
)

const (
	testAPIKey      = "atlas-key"
	testSecret      = "atlas-secret"
	testAdminSecret = "admin-secret"
)

var nonceCounter atomic.Uint64

type testEnv struct {
	t       *testing.T
	api     *httptest.Server
	engine  *vault.Engine
	ledger  *points.Ledger
	partner crypto.Address
}

func fillAddress(fill byte) crypto.Address {
	raw := bytes.Repeat([]byte{fill}, 20)
	return crypto.MustNewAddress(crypto.PartnerPrefix, raw)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	state := kv.NewKVStore(kv.NewMemDB())
	store, err := storage.Open(context.Background(), storage.FileDSN(filepath.Join(t.TempDir(), "nectard.db")))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	partner := fillAddress(0x42)
	treasury := fillAddress(0xAA)

	paramStore := params.NewStore(state)
	require.NoError(t, paramStore.Save(&params.Params{
		PointsPerCollateralUnit: 1_000,
		Treasury:                treasury.Bytes(),
		MaxTotalSupply:          10_000_000_000,
		GlobalDailyMintCap:      1_000_000_000,
		MinimumVaultDeposit:     10_000,
		DailyQuotaFractionBps:   500,
		SafetyBufferBps:         11_000,
	}))

	ledger, err := points.NewLedger(state, points.Limits{
		MaxTotalSupply:     10_000_000_000,
		GlobalDailyMintCap: 1_000_000_000,
	})
	require.NoError(t, err)

	engine, err := vault.NewEngine(state, paramStore, ledger)
	require.NoError(t, err)

	prices := pricefeed.NewManager(2*time.Minute, 1)

	partnerAuth := gatewayauth.NewAuthenticator(map[string]gatewayauth.Credential{
		testAPIKey: {Secret: testSecret, Partner: partner.Array()},
	}, 2*time.Minute, 10*time.Minute, 256, time.Now, store)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(server.Config{
		Admin: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testAdminSecret,
			Issuer:     "nectar-admin",
			Audience:   "nectar",
		},
		PartnerRate: middleware.RateLimit{RequestsPerMinute: 6_000, Burst: 1_000},
		AdminRate:   middleware.RateLimit{RequestsPerMinute: 6_000, Burst: 1_000},
		PriceBase:   "USD",
		PriceQuote:  "COL",
	}, logger, engine, ledger, paramStore, prices, store, partnerAuth)

	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)
	return &testEnv{t: t, api: api, engine: engine, ledger: ledger, partner: partner}
}

func (e *testEnv) partnerRequest(method, path string, payload interface{}) *http.Response {
	e.t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(e.t, err)
	}
	req, err := http.NewRequest(method, e.api.URL+path, bytes.NewReader(body))
	require.NoError(e.t, err)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := fmt.Sprintf("nonce-%d", nonceCounter.Add(1))
	sig := gatewayauth.ComputeSignature(testSecret, timestamp, nonce, method, path, body)
	req.Header.Set(gatewayauth.HeaderAPIKey, testAPIKey)
	req.Header.Set(gatewayauth.HeaderTimestamp, timestamp)
	req.Header.Set(gatewayauth.HeaderNonce, nonce)
	req.Header.Set(gatewayauth.HeaderSignature, hex.EncodeToString(sig))
	resp, err := e.api.Client().Do(req)
	require.NoError(e.t, err)
	return resp
}

func (e *testEnv) adminToken(scope string) string {
	e.t.Helper()
	claims := jwt.MapClaims{
		"iss":   "nectar-admin",
		"aud":   "nectar",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAdminSecret))
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) adminRequest(method, path string, payload interface{}) *http.Response {
	e.t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(e.t, err)
	}
	req, err := http.NewRequest(method, e.api.URL+path, bytes.NewReader(body))
	require.NoError(e.t, err)
	req.Header.Set("Authorization", "Bearer "+e.adminToken(middleware.ScopeAdmin))
	resp, err := e.api.Client().Do(req)
	require.NoError(e.t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *testEnv) onboard(deposit uint64) {
	e.t.Helper()
	resp := e.adminRequest(http.MethodPost, "/admin/onboard", map[string]interface{}{
		"partner": e.partner.String(),
		"deposit": deposit,
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestIssueRedeemFlow(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)
	holder := fillAddress(0x07)

	resp := env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": holder.String(),
		"amount": 50_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var issued struct {
		HolderBalance   uint64 `json:"holder_balance"`
		BackingReserved uint64 `json:"backing_reserved"`
		Outstanding     uint64 `json:"outstanding"`
		DailyQuotaUsed  uint64 `json:"daily_quota_used"`
	}
	decodeResponse(t, resp, &issued)
	require.Equal(t, uint64(50_000), issued.HolderBalance)
	require.Equal(t, uint64(50), issued.BackingReserved)
	require.Equal(t, uint64(50_000), issued.Outstanding)
	require.Equal(t, uint64(50_000), issued.DailyQuotaUsed)

	resp, err := env.api.Client().Get(env.api.URL + "/v1/points/balance/" + holder.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance struct {
		Balance uint64 `json:"balance"`
	}
	decodeResponse(t, resp, &balance)
	require.Equal(t, uint64(50_000), balance.Balance)

	resp = env.partnerRequest(http.MethodPost, "/v1/points/redeem", map[string]interface{}{
		"holder": holder.String(),
		"amount": 20_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var redeemed struct {
		HolderBalance   uint64 `json:"holder_balance"`
		ReservedBacking uint64 `json:"reserved_backing"`
	}
	decodeResponse(t, resp, &redeemed)
	require.Equal(t, uint64(30_000), redeemed.HolderBalance)
	require.Equal(t, uint64(30), redeemed.ReservedBacking)

	resp, err = env.api.Client().Get(env.api.URL + "/v1/supply")
	require.NoError(t, err)
	var supply struct {
		TotalMinted uint64 `json:"total_minted"`
		TotalBurned uint64 `json:"total_burned"`
		Circulating uint64 `json:"circulating"`
	}
	decodeResponse(t, resp, &supply)
	require.Equal(t, uint64(50_000), supply.TotalMinted)
	require.Equal(t, uint64(20_000), supply.TotalBurned)
	require.Equal(t, uint64(30_000), supply.Circulating)
}

func TestIssueRequiresPartnerAuth(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)

	body, err := json.Marshal(map[string]interface{}{
		"holder": fillAddress(0x07).String(),
		"amount": 1_000,
	})
	require.NoError(t, err)
	resp, err := env.api.Client().Post(env.api.URL+"/v1/points/issue", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIssueRejectsTamperedSignature(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)

	body, err := json.Marshal(map[string]interface{}{
		"holder": fillAddress(0x07).String(),
		"amount": 1_000,
	})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, env.api.URL+"/v1/points/issue", bytes.NewReader(body))
	require.NoError(t, err)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig := gatewayauth.ComputeSignature("wrong-secret", timestamp, "n1", http.MethodPost, "/v1/points/issue", body)
	req.Header.Set(gatewayauth.HeaderAPIKey, testAPIKey)
	req.Header.Set(gatewayauth.HeaderTimestamp, timestamp)
	req.Header.Set(gatewayauth.HeaderNonce, "n1")
	req.Header.Set(gatewayauth.HeaderSignature, hex.EncodeToString(sig))
	resp, err := env.api.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminEndpointsRequireScope(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(map[string]interface{}{"partner": env.partner.String(), "deposit": 100_000})
	require.NoError(t, err)
	resp, err := env.api.Client().Post(env.api.URL+"/admin/onboard", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, env.api.URL+"/admin/onboard", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.adminToken("points.read"))
	resp, err = env.api.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWithdrawHonoursSafetyBuffer(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)
	holder := fillAddress(0x07)

	resp := env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": holder.String(),
		"amount": 1_000_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// backing is 1_000 units, buffered to 1_100; only 98_900 may leave.
	resp = env.partnerRequest(http.MethodPost, "/v1/vault/withdraw", map[string]interface{}{"amount": 98_901})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.partnerRequest(http.MethodPost, "/v1/vault/withdraw", map[string]interface{}{"amount": 98_900})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var withdrawn struct {
		Withdrawn         uint64 `json:"withdrawn"`
		CollateralBalance uint64 `json:"collateral_balance"`
	}
	decodeResponse(t, resp, &withdrawn)
	require.Equal(t, uint64(98_900), withdrawn.Withdrawn)
	require.Equal(t, uint64(1_100), withdrawn.CollateralBalance)
}

func TestQuotaEndpointReportsWindow(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)
	holder := fillAddress(0x07)

	resp := env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": holder.String(),
		"amount": 2_000_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.partnerRequest(http.MethodGet, "/v1/quota", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var quota struct {
		DailyQuotaPoints    uint64 `json:"daily_quota_points"`
		DailyQuotaUsed      uint64 `json:"daily_quota_used"`
		DailyQuotaRemaining uint64 `json:"daily_quota_remaining"`
		LifetimeQuotaPoints uint64 `json:"lifetime_quota_points"`
	}
	decodeResponse(t, resp, &quota)
	require.Equal(t, uint64(5_000_000), quota.DailyQuotaPoints)
	require.Equal(t, uint64(2_000_000), quota.DailyQuotaUsed)
	require.Equal(t, uint64(3_000_000), quota.DailyQuotaRemaining)
	require.Equal(t, uint64(100_000_000), quota.LifetimeQuotaPoints)
}

func TestLockedVaultRejectsIssue(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)
	vaultID, ok := env.engine.VaultIDForPartner(env.partner.Array())
	require.True(t, ok)

	resp := env.adminRequest(http.MethodPost, "/admin/vault/lock", map[string]string{
		"vault_id": hex.EncodeToString(vaultID[:]),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": fillAddress(0x07).String(),
		"amount": 1_000,
	})
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	resp.Body.Close()

	resp = env.adminRequest(http.MethodPost, "/admin/vault/unlock", map[string]string{
		"vault_id": hex.EncodeToString(vaultID[:]),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": fillAddress(0x07).String(),
		"amount": 1_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestParamsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp := env.adminRequest(http.MethodPut, "/admin/params", map[string]interface{}{
		"points_per_collateral_unit": 2_000,
		"treasury":                   fillAddress(0xAA).String(),
		"max_total_supply":           5_000_000_000,
		"global_daily_mint_cap":      500_000_000,
		"daily_quota_fraction_bps":   250,
		"safety_buffer_bps":          12_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.adminRequest(http.MethodGet, "/admin/params", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		PointsPerCollateralUnit uint64 `json:"points_per_collateral_unit"`
		MaxTotalSupply          uint64 `json:"max_total_supply"`
		SafetyBufferBps         uint32 `json:"safety_buffer_bps"`
	}
	decodeResponse(t, resp, &view)
	require.Equal(t, uint64(2_000), view.PointsPerCollateralUnit)
	require.Equal(t, uint64(5_000_000_000), view.MaxTotalSupply)
	require.Equal(t, uint32(12_000), view.SafetyBufferBps)
}

func TestRedeemIncludesPayoutWhenPriced(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)
	holder := fillAddress(0x07)

	resp := env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": holder.String(),
		"amount": 10_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.adminRequest(http.MethodPost, "/admin/price", map[string]string{
		"source": "manual",
		"rate":   "1/100",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.partnerRequest(http.MethodPost, "/v1/points/redeem", map[string]interface{}{
		"holder": holder.String(),
		"amount": 10_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var redeemed struct {
		PayoutValue string `json:"payout_value"`
		PayoutPair  string `json:"payout_pair"`
	}
	decodeResponse(t, resp, &redeemed)
	require.Equal(t, "100", redeemed.PayoutValue)
	require.Equal(t, "USD/COL", redeemed.PayoutPair)
}

func TestAuditTrailRecordsOperations(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)

	resp := env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": fillAddress(0x07).String(),
		"amount": 1_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.adminRequest(http.MethodGet, "/admin/audit?kind=vault.points_issued", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit struct {
		Events []struct {
			Kind   string `json:"Kind"`
			Amount uint64 `json:"Amount"`
		} `json:"events"`
	}
	decodeResponse(t, resp, &audit)
	require.Len(t, audit.Events, 1)
	require.Equal(t, uint64(1_000), audit.Events[0].Amount)
}

func TestSupplyHistoryTracksIssuance(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(100_000)

	resp := env.partnerRequest(http.MethodPost, "/v1/points/issue", map[string]interface{}{
		"holder": fillAddress(0x07).String(),
		"amount": 25_000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := env.api.Client().Get(env.api.URL + "/v1/supply/history")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history struct {
		History []struct {
			Day         uint64 `json:"day"`
			Circulating uint64 `json:"circulating"`
			DailyMinted uint64 `json:"daily_minted"`
		} `json:"history"`
	}
	decodeResponse(t, resp, &history)
	require.Len(t, history.History, 1)
	today := uint64(time.Now().Unix()) / 86_400
	require.Equal(t, today, history.History[0].Day)
	require.Equal(t, uint64(25_000), history.History[0].Circulating)
	require.Equal(t, uint64(25_000), history.History[0].DailyMinted)

	resp, err = env.api.Client().Get(env.api.URL + "/v1/supply/history?limit=bogus")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
