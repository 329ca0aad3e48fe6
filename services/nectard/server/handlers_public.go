package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nectar/crypto"
)

type balanceResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	balance, err := s.ledger.GetBalance(addr.Array())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.String(), Balance: balance})
}

type supplyResponse struct {
	TotalMinted        uint64 `json:"total_minted"`
	TotalBurned        uint64 `json:"total_burned"`
	Circulating        uint64 `json:"circulating"`
	MaxTotalSupply     uint64 `json:"max_total_supply"`
	GlobalDailyMinted  uint64 `json:"global_daily_minted"`
	GlobalDailyMintCap uint64 `json:"global_daily_mint_cap"`
}

func (s *Server) handleSupply(w http.ResponseWriter, _ *http.Request) {
	info := s.ledger.Supply()
	writeJSON(w, http.StatusOK, supplyResponse{
		TotalMinted:        info.TotalMinted,
		TotalBurned:        info.TotalBurned,
		Circulating:        info.Circulating,
		MaxTotalSupply:     info.MaxTotalSupply,
		GlobalDailyMinted:  info.GlobalDailyMinted,
		GlobalDailyMintCap: info.GlobalDailyMintCap,
	})
}

type supplyHistoryEntry struct {
	Day         uint64    `json:"day"`
	Circulating uint64    `json:"circulating"`
	DailyMinted uint64    `json:"daily_minted"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// handleSupplyHistory serves the per-day supply snapshots, newest first.
func (s *Server) handleSupplyHistory(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	snapshots, err := s.store.SupplyHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	entries := make([]supplyHistoryEntry, 0, len(snapshots))
	for _, snap := range snapshots {
		entries = append(entries, supplyHistoryEntry{
			Day:         snap.Day,
			Circulating: snap.Circulating,
			DailyMinted: snap.DailyMinted,
			RecordedAt:  snap.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}
