// Package broker defines the adapter surface between the engine and
// external execution venues.
package broker

import (
	"context"
	"errors"

	"github.com/tathienbao/algo-engine/internal/types"
)

// Common broker errors.
var (
	ErrNotConnected  = errors.New("broker not connected")
	ErrUnknownOrder  = errors.New("unknown order")
	ErrOrderRejected = errors.New("order rejected by broker")
	ErrRateLimited   = errors.New("rate limited by broker")
)

// ConnectionState represents the broker connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ExecutionUpdate is an asynchronous execution report from the venue:
// a (possibly partial) fill, or a rejection.
type ExecutionUpdate struct {
	OrderID  string
	Fill     *types.Fill
	Rejected bool
	Reason   string
}

// ExecutionHandler receives execution updates. The broker may invoke
// it from its own goroutine; handlers must be safe for that.
type ExecutionHandler func(update ExecutionUpdate)

// Adapter is the minimal surface the engine needs from a venue. Fills
// come back through the execution handler, never as return values:
// live venues are asynchronous and the paper broker mimics that.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// SubmitOrder hands an order to the venue. A nil error means
	// accepted for execution, not filled.
	SubmitOrder(ctx context.Context, order *types.Order) error

	// CancelOrder requests cancellation of a previously submitted
	// order.
	CancelOrder(ctx context.Context, orderID string) error

	// SetExecutionHandler registers the callback for fills and
	// rejections. Must be called before SubmitOrder.
	SetExecutionHandler(handler ExecutionHandler)

	// Name returns the adapter identifier (e.g. "paper").
	Name() string
}
