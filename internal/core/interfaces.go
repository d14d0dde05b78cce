// Package core defines the shared interfaces and domain types for the
// market surveillance pipeline.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// TradeHandler receives each parsed trade synchronously from the
// ingestor's receive loop. Implementations must not block.
type TradeHandler func(trade TradeEvent)

// StateHandler observes connection lifecycle transitions.
type StateHandler func(from, to ConnectionState)

// ErrorHandler observes classified ingest errors.
type ErrorHandler func(err error, severity ErrorSeverity)

// IIngestor defines the interface for the exchange trade stream client.
type IIngestor interface {
	Start(ctx context.Context) error
	Stop() error
	Subscribe(symbols []string) error
	OnTrade(handler TradeHandler)
	OnState(handler StateHandler)
	OnError(handler ErrorHandler)
	State() ConnectionState
}

// IRestartable is the back-edge the recovery manager holds into the
// ingestor. The orchestrator wires the two; neither owns the other.
type IRestartable interface {
	// Restart re-dials and re-subscribes after a disconnect.
	Restart(ctx context.Context) error
	// Abandon marks the connection FAILED once recovery is exhausted.
	Abandon()
}

// IAlertDeliverer fans a rendered alert out to its recipients. The
// dispatcher holds one; delivery details stay behind it.
type IAlertDeliverer interface {
	Deliver(ctx context.Context, alert Alert) error
}

// IPriceConverter normalises trade notionals into USD.
type IPriceConverter interface {
	// ToUSD returns the USD value of price*quantity, or decimal.Zero
	// when the rate is unknown. Zero values never aggregate.
	ToUSD(ctx context.Context, symbol string, price, quantity decimal.Decimal) decimal.Decimal
	ToUSDBatch(ctx context.Context, trades []TradeEvent) []decimal.Decimal
}

// IWindowResetter clears one side of a sliding window after a
// successful cumulative dispatch. Resets are advisory.
type IWindowResetter interface {
	Reset(symbol string, side Side)
}

// ISink delivers formatted alert text to one recipient.
type ISink interface {
	Send(ctx context.Context, recipient string, text string) error
	Name() string
}

// IWhitelist exposes the externally managed recipient list.
type IWhitelist interface {
	Whitelist() []string
}

// IHealthMonitor defines the interface for health monitoring.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
