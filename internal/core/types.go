package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the taker side of a trade. The venue reports a buyer-is-maker
// flag; buyer-is-maker means the taker sold.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// EventKind distinguishes the two alert families.
type EventKind string

const (
	KindSingle     EventKind = "SINGLE"
	KindCumulative EventKind = "CUMULATIVE"
	// KindAdmin marks operational notifications from the recovery
	// ledger. They bypass suppression and carry only rendered text.
	KindAdmin EventKind = "ADMIN"
)

// ErrorSeverity classifies recorded errors for the recovery ledger.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// ConnectionState is the ingestor's connection lifecycle state.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition. CLOSED is terminal and reachable from anywhere.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	if next == StateClosed {
		return s != StateClosed
	}
	switch s {
	case StateDisconnected:
		return next == StateConnecting
	case StateConnecting:
		return next == StateConnected || next == StateReconnecting
	case StateConnected:
		return next == StateReconnecting
	case StateReconnecting:
		return next == StateConnecting || next == StateFailed
	case StateFailed:
		return next == StateDisconnected
	default:
		return false
	}
}

// TradeEvent is one taker trade as emitted by the ingestor. Values are
// immutable after construction.
type TradeEvent struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	TradeTime time.Time       `json:"trade_time"`
	TradeID   int64           `json:"trade_id"`
	IsTaker   bool            `json:"is_taker"`
}

// Validate rejects trades that must never reach the aggregation path.
func (t TradeEvent) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade has empty symbol")
	}
	if !t.Side.Valid() {
		return fmt.Errorf("trade %s has invalid side %q", t.Symbol, t.Side)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("trade %s has non-positive price %s", t.Symbol, t.Price)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("trade %s has non-positive quantity %s", t.Symbol, t.Quantity)
	}
	return nil
}

// WindowEntry is one trade's contribution to a sliding window. Entries
// live from insertion until tradeTime falls behind now-window.
type WindowEntry struct {
	TradeTime time.Time
	UsdValue  decimal.Decimal
	Side      Side
}

// WindowSummary is a point-in-time view over one sliding window.
// TotalUsd always equals BuyUsd+SellUsd.
type WindowSummary struct {
	Count     int
	BuyCount  int
	SellCount int
	TotalUsd  decimal.Decimal
	BuyUsd    decimal.Decimal
	SellUsd   decimal.Decimal
	OldestTs  time.Time
	NewestTs  time.Time
}

// ExchangeRate is one cached quote->USD conversion rate.
type ExchangeRate struct {
	Quote     string
	Rate      decimal.Decimal
	FetchedAt time.Time
	TTL       time.Duration
}

// ValidAt reports whether the cache entry is still fresh at the given time.
func (r ExchangeRate) ValidAt(now time.Time) bool {
	return now.Sub(r.FetchedAt) < r.TTL
}

// ThresholdEvent is a detector verdict on its way to suppression.
type ThresholdEvent struct {
	Kind           EventKind       `json:"kind"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	TotalUsd       decimal.Decimal `json:"total_usd"`
	BuyUsd         decimal.Decimal `json:"buy_usd"`
	SellUsd        decimal.Decimal `json:"sell_usd"`
	TradeCount     int             `json:"trade_count"`
	WindowDuration time.Duration   `json:"window_duration"`
	ObservedAt     time.Time       `json:"observed_at"`
}

// Key returns the suppression key for this event. Each kind and
// direction cools down independently.
func (e ThresholdEvent) Key() CooldownKey {
	return CooldownKey{Kind: e.Kind, Symbol: e.Symbol, Side: e.Side}
}

// Alert is what the dispatcher consumes: the threshold event plus the
// message rendered at enqueue time.
type Alert struct {
	ID              string         `json:"id"`
	Event           ThresholdEvent `json:"event"`
	RenderedMessage string         `json:"rendered_message"`
	CreatedAt       time.Time      `json:"created_at"`
}

// CooldownKey scopes suppression to (kind, symbol, side).
type CooldownKey struct {
	Kind   EventKind
	Symbol string
	Side   Side
}

func (k CooldownKey) String() string {
	return string(k.Kind) + ":" + k.Symbol + ":" + string(k.Side)
}

// ReconnectAttempt is one entry in the recovery ledger.
type ReconnectAttempt struct {
	AttemptNumber int
	StartedAt     time.Time
	EndedAt       time.Time
	Success       bool
	Err           string
	Backoff       time.Duration
}

// ErrorRecord is one entry in the rolling error buffer.
type ErrorRecord struct {
	At        time.Time
	Severity  ErrorSeverity
	Component string
	Message   string
}
