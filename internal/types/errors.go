package types

import "errors"

// Sentinel errors for the trading engine.
var (
	// Signal and order creation errors
	ErrInvalidSignal     = errors.New("invalid signal")
	ErrInvalidReversal   = errors.New("ambiguous reversal: net quantity is zero")
	ErrRejectedByRisk    = errors.New("order rejected by risk manager")
	ErrIllegalTransition = errors.New("illegal order status transition")

	// Ledger errors
	ErrInvalidFill   = errors.New("fill exceeds closable quantity")
	ErrDuplicateFill = errors.New("duplicate fill trade id")

	// Order book errors
	ErrOrderNotFound = errors.New("order not found")
	ErrStaleCancel   = errors.New("cancel is a no-op: order already filled")

	// Data errors
	ErrInvalidPrice = errors.New("invalid price value")
	ErrInvalidData  = errors.New("invalid market data")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)
