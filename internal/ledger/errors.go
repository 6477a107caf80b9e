package ledger

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountOutOfRange    = errors.New("amount out of range")
	ErrUnknownToken        = errors.New("unknown token")
	ErrTokenExists         = errors.New("token already issued")
)
