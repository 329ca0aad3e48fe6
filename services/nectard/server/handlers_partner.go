package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"nectar/core/events"
	"nectar/crypto"
	"nectar/native/pricefeed"
	"nectar/native/vault"
	"nectar/observability"
)

type vaultView struct {
	ID                     string `json:"id"`
	Partner                string `json:"partner"`
	CollateralBalance      uint64 `json:"collateral_balance"`
	ReservedForBacking     uint64 `json:"reserved_for_backing"`
	AvailableForWithdrawal uint64 `json:"available_for_withdrawal"`
	LifetimeQuotaPoints    uint64 `json:"lifetime_quota_points"`
	OutstandingPoints      uint64 `json:"outstanding_points"`
	Locked                 bool   `json:"locked"`
}

func renderVault(v vault.Vault) vaultView {
	return vaultView{
		ID:                     hex.EncodeToString(v.ID[:]),
		Partner:                crypto.MustNewAddress(crypto.PartnerPrefix, v.Partner[:]).String(),
		CollateralBalance:      v.CollateralBalance,
		ReservedForBacking:     v.ReservedForBacking,
		AvailableForWithdrawal: v.AvailableForWithdrawal,
		LifetimeQuotaPoints:    v.LifetimeQuotaPoints,
		OutstandingPoints:      v.OutstandingPoints,
		Locked:                 v.Locked,
	}
}

// partnerVault resolves the authenticated partner's vault, writing the error
// response itself when the partner has none.
func (s *Server) partnerVault(w http.ResponseWriter, r *http.Request) ([32]byte, [20]byte, bool) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return [32]byte{}, [20]byte{}, false
	}
	vaultID, ok := s.engine.VaultIDForPartner(principal.Partner)
	if !ok {
		writeError(w, http.StatusNotFound, "no vault onboarded for partner")
		return [32]byte{}, [20]byte{}, false
	}
	return vaultID, principal.Partner, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type issueRequest struct {
	Holder string `json:"holder"`
	Amount uint64 `json:"amount"`
}

type issueResponse struct {
	Holder          string `json:"holder"`
	Amount          uint64 `json:"amount"`
	HolderBalance   uint64 `json:"holder_balance"`
	Circulating     uint64 `json:"circulating"`
	BackingReserved uint64 `json:"backing_reserved"`
	Outstanding     uint64 `json:"outstanding"`
	DailyQuotaUsed  uint64 `json:"daily_quota_used"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	vaultID, partner, ok := s.partnerVault(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holder, err := crypto.DecodeAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	result, err := s.engine.Issue(partner, vaultID, holder.Array(), req.Amount)
	observability.Engine().Observe("vault", "issue", err, started)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.recordSupplyMetrics(r.Context())
	writeJSON(w, http.StatusOK, issueResponse{
		Holder:          req.Holder,
		Amount:          req.Amount,
		HolderBalance:   result.Receipt.Balance,
		Circulating:     result.Receipt.Circulating,
		BackingReserved: result.BackingReserved,
		Outstanding:     result.Outstanding,
		DailyQuotaUsed:  result.DailyQuotaUsed,
	})
}

type redeemRequest struct {
	Holder string `json:"holder"`
	Amount uint64 `json:"amount"`
}

type redeemResponse struct {
	Holder          string `json:"holder"`
	Amount          uint64 `json:"amount"`
	HolderBalance   uint64 `json:"holder_balance"`
	Circulating     uint64 `json:"circulating"`
	ReservedBacking uint64 `json:"reserved_backing"`
	PayoutValue     string `json:"payout_value,omitempty"`
	PayoutPair      string `json:"payout_pair,omitempty"`
}

// handleRedeem burns holder points on behalf of the partner and releases the
// collateral that was reserved to back them. When a fresh collateral price is
// available the response carries an indicative payout value.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	vaultID, _, ok := s.partnerVault(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holder, err := crypto.DecodeAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	receipt, err := s.ledger.Burn(holder.Array(), req.Amount, events.CategoryRedemption)
	observability.Engine().Observe("points", "burn", err, started)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	released, err := s.engine.ReleaseOnBurn(vaultID, req.Amount)
	if err != nil {
		s.log.Error("release backing after burn", "vault", hex.EncodeToString(vaultID[:]), "error", err)
		writeError(w, http.StatusInternalServerError, "points burned but backing release failed")
		return
	}
	s.recordSupplyMetrics(r.Context())
	resp := redeemResponse{
		Holder:          req.Holder,
		Amount:          req.Amount,
		HolderBalance:   receipt.Balance,
		Circulating:     receipt.Circulating,
		ReservedBacking: released.ReservedForBacking,
	}
	if quote, err := s.prices.Latest(s.cfg.PriceBase, s.cfg.PriceQuote); err == nil {
		if value, err := pricefeed.ComputeCollateralValue(req.Amount, quote.Rate); err == nil {
			resp.PayoutValue = value.String()
			resp.PayoutPair = s.cfg.PriceBase + "/" + s.cfg.PriceQuote
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type withdrawRequest struct {
	Amount uint64 `json:"amount"`
}

type withdrawResponse struct {
	Withdrawn              uint64 `json:"withdrawn"`
	CollateralBalance      uint64 `json:"collateral_balance"`
	AvailableForWithdrawal uint64 `json:"available_for_withdrawal"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	vaultID, partner, ok := s.partnerVault(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.engine.Withdraw(partner, vaultID, req.Amount)
	observability.Engine().Observe("vault", "withdraw", err, started)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.recordSupplyMetrics(r.Context())
	writeJSON(w, http.StatusOK, withdrawResponse{
		Withdrawn:              result.Withdrawn,
		CollateralBalance:      result.CollateralBalance,
		AvailableForWithdrawal: result.AvailableForWithdrawal,
	})
}

func (s *Server) handleVaultState(w http.ResponseWriter, r *http.Request) {
	vaultID, _, ok := s.partnerVault(w, r)
	if !ok {
		return
	}
	v, err := s.engine.VaultState(vaultID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderVault(v))
}

type quotaResponse struct {
	DailyQuotaPoints    uint64 `json:"daily_quota_points"`
	DailyQuotaUsed      uint64 `json:"daily_quota_used"`
	DailyQuotaRemaining uint64 `json:"daily_quota_remaining"`
	LifetimeQuotaPoints uint64 `json:"lifetime_quota_points"`
	OutstandingPoints   uint64 `json:"outstanding_points"`
	Paused              bool   `json:"paused"`
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	vaultID, _, ok := s.partnerVault(w, r)
	if !ok {
		return
	}
	quota, err := s.engine.TokenState(vaultID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	v, err := s.engine.VaultState(vaultID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	remaining := uint64(0)
	if quota.DailyQuotaPoints > quota.DailyQuotaUsed {
		remaining = quota.DailyQuotaPoints - quota.DailyQuotaUsed
	}
	writeJSON(w, http.StatusOK, quotaResponse{
		DailyQuotaPoints:    quota.DailyQuotaPoints,
		DailyQuotaUsed:      quota.DailyQuotaUsed,
		DailyQuotaRemaining: remaining,
		LifetimeQuotaPoints: v.LifetimeQuotaPoints,
		OutstandingPoints:   v.OutstandingPoints,
		Paused:              quota.Paused,
	})
}
