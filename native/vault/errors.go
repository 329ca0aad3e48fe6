package vault

import "errors"

var (
	ErrInvalidAmount          = errors.New("vault: invalid amount")
	ErrUnauthorized           = errors.New("vault: unauthorized")
	ErrVaultLocked            = errors.New("vault: vault locked")
	ErrTokenPaused            = errors.New("vault: token paused")
	ErrMintingPaused          = errors.New("vault: minting paused")
	ErrDailyQuotaExceeded     = errors.New("vault: daily quota exceeded")
	ErrLifetimeQuotaExceeded  = errors.New("vault: lifetime quota exceeded")
	ErrInsufficientCollateral = errors.New("vault: insufficient collateral")
	ErrExcessiveWithdrawal    = errors.New("vault: excessive withdrawal")
	ErrVaultNotFound          = errors.New("vault: vault not found")
	ErrVaultExists            = errors.New("vault: vault already exists")
	ErrBelowMinimumDeposit    = errors.New("vault: deposit below minimum")
	ErrArithmeticOverflow     = errors.New("vault: arithmetic overflow")
)
