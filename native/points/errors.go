package points

import "errors"

var (
	ErrInvalidAmount       = errors.New("points: invalid amount")
	ErrSupplyCapExceeded   = errors.New("points: supply cap exceeded")
	ErrDailyCapExceeded    = errors.New("points: global daily cap exceeded")
	ErrInsufficientBalance = errors.New("points: insufficient balance")
	ErrArithmeticOverflow  = errors.New("points: arithmetic overflow")
)
