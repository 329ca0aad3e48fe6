package server

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nectar/crypto"
	"nectar/native/params"
	"nectar/native/points"
	"nectar/native/pricefeed"
	"nectar/native/vault"
	"nectar/observability"
)

type onboardRequest struct {
	Partner string `json:"partner"`
	Deposit uint64 `json:"deposit"`
}

type onboardResponse struct {
	Vault            vaultView `json:"vault"`
	DailyQuotaPoints uint64    `json:"daily_quota_points"`
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req onboardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	partner, err := crypto.DecodeAddress(req.Partner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid partner address")
		return
	}
	v, token, err := s.engine.Onboard(partner.Array(), req.Deposit)
	observability.Engine().Observe("vault", "onboard", err, started)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.recordSupplyMetrics(r.Context())
	writeJSON(w, http.StatusCreated, onboardResponse{
		Vault:            renderVault(v),
		DailyQuotaPoints: token.DailyQuotaPoints,
	})
}

type revenueRequest struct {
	VaultID string `json:"vault_id"`
	Amount  uint64 `json:"amount"`
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req revenueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	vaultID, err := vault.ParseVaultID(req.VaultID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vault id")
		return
	}
	v, err := s.engine.CreditRevenue(vaultID, req.Amount)
	observability.Engine().Observe("vault", "credit_revenue", err, started)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.recordSupplyMetrics(r.Context())
	writeJSON(w, http.StatusOK, renderVault(v))
}

type flagRequest struct {
	VaultID string `json:"vault_id"`
}

// adminCaller resolves the address recorded on administrative vault events.
func (s *Server) adminCaller() ([20]byte, error) {
	p, err := s.params.Load()
	if err != nil {
		return [20]byte{}, err
	}
	var caller [20]byte
	copy(caller[:], p.Treasury)
	return caller, nil
}

func (s *Server) handleSetLocked(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req flagRequest
		if !decodeBody(w, r, &req) {
			return
		}
		vaultID, err := vault.ParseVaultID(req.VaultID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid vault id")
			return
		}
		caller, err := s.adminCaller()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := s.engine.SetLocked(caller, vaultID, locked); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"locked": locked})
	}
}

func (s *Server) handleSetPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req flagRequest
		if !decodeBody(w, r, &req) {
			return
		}
		vaultID, err := vault.ParseVaultID(req.VaultID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid vault id")
			return
		}
		caller, err := s.adminCaller()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := s.engine.SetPaused(caller, vaultID, paused); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

type priceRequest struct {
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Source string `json:"source"`
	Rate   string `json:"rate"`
}

func (s *Server) handleRecordPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rate, ok := new(big.Rat).SetString(strings.TrimSpace(req.Rate))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid rate")
		return
	}
	base := req.Base
	if base == "" {
		base = s.cfg.PriceBase
	}
	quote := req.Quote
	if quote == "" {
		quote = s.cfg.PriceQuote
	}
	err := s.prices.Record(base, quote, pricefeed.Quote{
		Rate:      rate,
		Timestamp: time.Now().UTC(),
		Source:    req.Source,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type paramsView struct {
	PointsPerCollateralUnit uint64 `json:"points_per_collateral_unit"`
	MintingPaused           bool   `json:"minting_paused"`
	GloballyPaused          bool   `json:"globally_paused"`
	Treasury                string `json:"treasury"`
	MaxTotalSupply          uint64 `json:"max_total_supply"`
	GlobalDailyMintCap      uint64 `json:"global_daily_mint_cap"`
	MaxPointsPerMint        uint64 `json:"max_points_per_mint"`
	MinimumVaultDeposit     uint64 `json:"minimum_vault_deposit"`
	DailyQuotaFractionBps   uint32 `json:"daily_quota_fraction_bps"`
	SafetyBufferBps         uint32 `json:"safety_buffer_bps"`
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	p, err := s.params.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	treasury := ""
	if len(p.Treasury) == 20 {
		treasury = crypto.MustNewAddress(crypto.PartnerPrefix, p.Treasury).String()
	}
	writeJSON(w, http.StatusOK, paramsView{
		PointsPerCollateralUnit: p.PointsPerCollateralUnit,
		MintingPaused:           p.MintingPaused,
		GloballyPaused:          p.GloballyPaused,
		Treasury:                treasury,
		MaxTotalSupply:          p.MaxTotalSupply,
		GlobalDailyMintCap:      p.GlobalDailyMintCap,
		MaxPointsPerMint:        p.MaxPointsPerMint,
		MinimumVaultDeposit:     p.MinimumVaultDeposit,
		DailyQuotaFractionBps:   p.DailyQuotaFractionBps,
		SafetyBufferBps:         p.SafetyBufferBps,
	})
}

// handlePutParams replaces the protocol parameters and reapplies the ledger
// limits derived from them.
func (s *Server) handlePutParams(w http.ResponseWriter, r *http.Request) {
	var view paramsView
	if !decodeBody(w, r, &view) {
		return
	}
	treasury, err := crypto.DecodeAddress(view.Treasury)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid treasury address")
		return
	}
	next := (&params.Params{
		PointsPerCollateralUnit: view.PointsPerCollateralUnit,
		MintingPaused:           view.MintingPaused,
		GloballyPaused:          view.GloballyPaused,
		Treasury:                treasury.Bytes(),
		MaxTotalSupply:          view.MaxTotalSupply,
		GlobalDailyMintCap:      view.GlobalDailyMintCap,
		MaxPointsPerMint:        view.MaxPointsPerMint,
		MinimumVaultDeposit:     view.MinimumVaultDeposit,
		DailyQuotaFractionBps:   view.DailyQuotaFractionBps,
		SafetyBufferBps:         view.SafetyBufferBps,
	}).ApplyDefaults()
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.params.Save(next); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.ledger.SetLimits(points.Limits{
		MaxTotalSupply:     next.MaxTotalSupply,
		GlobalDailyMintCap: next.GlobalDailyMintCap,
		MaxPointsPerMint:   next.MaxPointsPerMint,
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleGetParams(w, r)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.store.RecentAudit(r.Context(), kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}
