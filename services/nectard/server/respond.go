package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"nectar/native/points"
	"nectar/native/pricefeed"
	"nectar/native/vault"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeEngineError maps engine sentinel errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, points.ErrInvalidAmount),
		errors.Is(err, vault.ErrBelowMinimumDeposit):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, vault.ErrVaultNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vault.ErrVaultExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, vault.ErrVaultLocked),
		errors.Is(err, vault.ErrTokenPaused),
		errors.Is(err, vault.ErrMintingPaused):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, vault.ErrDailyQuotaExceeded),
		errors.Is(err, vault.ErrLifetimeQuotaExceeded),
		errors.Is(err, vault.ErrInsufficientCollateral),
		errors.Is(err, vault.ErrExcessiveWithdrawal),
		errors.Is(err, points.ErrSupplyCapExceeded),
		errors.Is(err, points.ErrDailyCapExceeded),
		errors.Is(err, points.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pricefeed.ErrNoQuote),
		errors.Is(err, pricefeed.ErrStaleQuote),
		errors.Is(err, pricefeed.ErrInsufficientFeeds):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
