package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
	"whale_watcher/pkg/telemetry"
	"whale_watcher/pkg/websocket"
)

const (
	defaultAckTimeout = 10 * time.Second
	defaultStaleAfter = 2 * time.Minute

	pingInterval = 20 * time.Second
	pingWait     = 10 * time.Second
	pongWait     = 30 * time.Second
)

// Stats is a point-in-time ingestor snapshot.
type Stats struct {
	State       string
	Trades      uint64
	ParseErrors uint64
	OutOfOrder  uint64
	LastTradeAt time.Time
}

// Ingestor implements core.IIngestor over one venue stream. Each
// connection attempt uses a fresh websocket client; reconnect policy
// belongs to the recovery manager, reached through the state and error
// callbacks.
type Ingestor struct {
	exchange string
	wsURL    string
	logger   core.ILogger

	mu       sync.Mutex
	state    core.ConnectionState
	symbols  []string
	client   *websocket.Client
	onTrade  core.TradeHandler
	onState  core.StateHandler
	onError  core.ErrorHandler
	ackCh    chan int64
	rejectCh chan string

	ackTimeout time.Duration
	staleAfter time.Duration

	// lastTimes is only touched from the read loop.
	lastTimes map[string]time.Time

	trades      atomic.Uint64
	parseErrors atomic.Uint64
	outOfOrder  atomic.Uint64
	lastTradeAt atomic.Value
}

// NewIngestor creates an ingestor for the given venue endpoint and
// symbol set. Symbols are normalised to upper case.
func NewIngestor(exchange, wsURL string, symbols []string, logger core.ILogger) *Ingestor {
	return &Ingestor{
		exchange:   exchange,
		wsURL:      wsURL,
		symbols:    normalizeSymbols(symbols),
		logger:     logger.WithField("component", "ingestor"),
		state:      core.StateDisconnected,
		ackTimeout: defaultAckTimeout,
		staleAfter: defaultStaleAfter,
		lastTimes:  make(map[string]time.Time),
	}
}

// OnTrade registers the trade handler. It runs on the receive loop and
// must not block.
func (i *Ingestor) OnTrade(handler core.TradeHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onTrade = handler
}

// OnState registers the state transition observer.
func (i *Ingestor) OnState(handler core.StateHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onState = handler
}

// OnError registers the error observer.
func (i *Ingestor) OnError(handler core.ErrorHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onError = handler
}

// State returns the current connection state.
func (i *Ingestor) State() core.ConnectionState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Start dials the stream, subscribes the configured symbols and waits
// for the venue's acknowledgement. The state becomes CONNECTED only
// after the ack arrives.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	switch i.state {
	case core.StateConnecting, core.StateConnected:
		i.mu.Unlock()
		return apperrors.ErrAlreadyRunning
	case core.StateClosed:
		i.mu.Unlock()
		return apperrors.ErrClosed
	case core.StateFailed:
		i.mu.Unlock()
		return fmt.Errorf("%w: connection marked FAILED, reset required", apperrors.ErrNotConnected)
	}
	i.mu.Unlock()

	i.setState(core.StateConnecting)

	client := websocket.NewClient(i.wsURL, i.handleMessage, i.logger)
	client.SetPingConfig(pingInterval, pingWait, pongWait)
	client.SetOnDisconnect(i.handleDisconnect)

	ackCh := make(chan int64, 4)
	rejectCh := make(chan string, 4)

	i.mu.Lock()
	i.client = client
	i.ackCh = ackCh
	i.rejectCh = rejectCh
	symbols := append([]string(nil), i.symbols...)
	i.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		i.dropClient(client)
		i.setState(core.StateReconnecting)
		err = fmt.Errorf("%w: dial %s: %v", apperrors.ErrTransport, i.wsURL, err)
		i.reportError(err, core.SeverityHigh)
		return err
	}

	subID := time.Now().UnixMilli()
	if err := client.Send(newSubscribeRequest(symbols, subID)); err != nil {
		i.dropClient(client)
		i.setState(core.StateReconnecting)
		err = fmt.Errorf("%w: subscribe: %v", apperrors.ErrTransport, err)
		i.reportError(err, core.SeverityHigh)
		return err
	}

	timer := time.NewTimer(i.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			i.dropClient(client)
			i.setState(core.StateReconnecting)
			return ctx.Err()
		case got := <-ackCh:
			if got != subID {
				continue
			}
			i.setState(core.StateConnected)
			i.logger.Info("subscribed to trade streams",
				"symbols", len(symbols), "id", subID)
			return nil
		case msg := <-rejectCh:
			i.dropClient(client)
			i.setState(core.StateReconnecting)
			err := fmt.Errorf("%w: %s", apperrors.ErrSubscribeRejected, msg)
			i.reportError(err, core.SeverityHigh)
			return err
		case <-timer.C:
			i.dropClient(client)
			i.setState(core.StateReconnecting)
			err := fmt.Errorf("%w: no ack within %s", apperrors.ErrSubscribeRejected, i.ackTimeout)
			i.reportError(err, core.SeverityHigh)
			return err
		}
	}
}

// Stop closes the stream for good. No disconnect is reported.
func (i *Ingestor) Stop() error {
	i.mu.Lock()
	if i.state == core.StateClosed {
		i.mu.Unlock()
		return nil
	}
	client := i.client
	i.client = nil
	i.mu.Unlock()

	i.setState(core.StateClosed)
	if client != nil {
		client.Stop()
	}
	i.logger.Info("ingestor stopped",
		"trades", i.trades.Load(),
		"parse_errors", i.parseErrors.Load())
	return nil
}

// Restart tears down whatever socket is left and dials again. Called
// by the recovery manager.
func (i *Ingestor) Restart(ctx context.Context) error {
	i.mu.Lock()
	client := i.client
	i.client = nil
	i.mu.Unlock()
	if client != nil {
		client.Stop()
	}
	return i.Start(ctx)
}

// Abandon marks the connection FAILED after recovery exhaustion.
func (i *Ingestor) Abandon() {
	i.mu.Lock()
	client := i.client
	i.client = nil
	i.mu.Unlock()
	if client != nil {
		client.Stop()
	}
	i.setState(core.StateFailed)
}

// Reset moves a FAILED connection back to DISCONNECTED so an operator
// can start over.
func (i *Ingestor) Reset() error {
	i.mu.Lock()
	if i.state != core.StateFailed {
		st := i.state
		i.mu.Unlock()
		return fmt.Errorf("reset only applies to FAILED, state is %s", st)
	}
	i.mu.Unlock()
	i.setState(core.StateDisconnected)
	return nil
}

// Subscribe adds symbols to the monitored set. When connected, the new
// ones are subscribed immediately; otherwise they ride along on the
// next connect.
func (i *Ingestor) Subscribe(symbols []string) error {
	added := normalizeSymbols(symbols)
	if len(added) == 0 {
		return fmt.Errorf("%w: empty symbol list", apperrors.ErrInvalidSymbol)
	}

	i.mu.Lock()
	known := make(map[string]struct{}, len(i.symbols))
	for _, s := range i.symbols {
		known[s] = struct{}{}
	}
	var fresh []string
	for _, s := range added {
		if _, dup := known[s]; !dup {
			fresh = append(fresh, s)
			i.symbols = append(i.symbols, s)
		}
	}
	client := i.client
	state := i.state
	i.mu.Unlock()

	if len(fresh) == 0 || state != core.StateConnected || client == nil {
		return nil
	}
	return client.Send(newSubscribeRequest(fresh, time.Now().UnixMilli()))
}

// CheckHealth reports the stream's liveness for the health monitor.
func (i *Ingestor) CheckHealth() error {
	state := i.State()
	if state != core.StateConnected {
		return fmt.Errorf("connection state %s", state)
	}
	last, _ := i.lastTradeAt.Load().(time.Time)
	if last.IsZero() {
		return nil
	}
	if since := time.Since(last); since > i.staleAfter {
		return fmt.Errorf("no trades for %s", since.Round(time.Second))
	}
	return nil
}

// Stats returns a snapshot of the ingest counters.
func (i *Ingestor) Stats() Stats {
	last, _ := i.lastTradeAt.Load().(time.Time)
	return Stats{
		State:       i.State().String(),
		Trades:      i.trades.Load(),
		ParseErrors: i.parseErrors.Load(),
		OutOfOrder:  i.outOfOrder.Load(),
		LastTradeAt: last,
	}
}

// handleMessage classifies each frame off the socket. It runs on the
// read loop; everything here must stay non-blocking.
func (i *Ingestor) handleMessage(raw []byte) {
	f, err := parseFrame(i.exchange, raw)
	if err != nil {
		i.parseErrors.Add(1)
		telemetry.GetGlobalMetrics().IncParseErrors()
		i.logger.Debug("dropped malformed frame", "error", err.Error())
		i.reportError(err, core.SeverityLow)
		return
	}

	switch f.kind {
	case frameTrade:
		i.acceptTrade(f.trade)
	case frameAck:
		i.mu.Lock()
		ch := i.ackCh
		i.mu.Unlock()
		if ch != nil {
			select {
			case ch <- f.ackID:
			default:
			}
		}
	case frameReject:
		i.mu.Lock()
		ch := i.rejectCh
		i.mu.Unlock()
		if ch != nil {
			select {
			case ch <- f.rejectMsg:
			default:
			}
		}
	case frameOther:
		// venue chatter outside the trade stream
	}
}

func (i *Ingestor) acceptTrade(trade core.TradeEvent) {
	i.trades.Add(1)
	telemetry.GetGlobalMetrics().IncTradesReceived(trade.Symbol)
	i.lastTradeAt.Store(time.Now())

	if last, ok := i.lastTimes[trade.Symbol]; ok && trade.TradeTime.Before(last) {
		// Accepted anyway; windows tolerate out-of-order arrivals.
		i.outOfOrder.Add(1)
		i.logger.Debug("out-of-order trade",
			"symbol", trade.Symbol,
			"regression", last.Sub(trade.TradeTime).String())
	} else {
		i.lastTimes[trade.Symbol] = trade.TradeTime
	}

	i.mu.Lock()
	handler := i.onTrade
	i.mu.Unlock()
	if handler != nil {
		handler(trade)
	}
}

// handleDisconnect fires once per connection when the socket dies
// outside a deliberate Stop.
func (i *Ingestor) handleDisconnect(err error) {
	i.mu.Lock()
	state := i.state
	rejectCh := i.rejectCh
	i.mu.Unlock()

	switch state {
	case core.StateClosed, core.StateFailed:
		return
	case core.StateConnecting:
		// Startup failure: the ack waiter surfaces it.
		if rejectCh != nil {
			select {
			case rejectCh <- fmt.Sprintf("connection lost before ack: %v", err):
			default:
			}
		}
		return
	}

	i.logger.Warn("stream disconnected", "error", err.Error())
	i.setState(core.StateReconnecting)
	i.reportError(fmt.Errorf("%w: %v", apperrors.ErrTransport, err), core.SeverityHigh)
}

// setState applies a lifecycle transition, ignoring illegal ones.
func (i *Ingestor) setState(next core.ConnectionState) bool {
	i.mu.Lock()
	from := i.state
	if from == next {
		i.mu.Unlock()
		return false
	}
	if !from.CanTransition(next) {
		i.mu.Unlock()
		i.logger.Warn("illegal state transition ignored",
			"from", from.String(), "to", next.String())
		return false
	}
	i.state = next
	handler := i.onState
	i.mu.Unlock()

	telemetry.GetGlobalMetrics().SetConnectionState(int64(next))
	i.logger.Info("connection state changed",
		"from", from.String(), "to", next.String())
	if handler != nil {
		handler(from, next)
	}
	return true
}

func (i *Ingestor) reportError(err error, severity core.ErrorSeverity) {
	i.mu.Lock()
	handler := i.onError
	i.mu.Unlock()
	if handler != nil {
		handler(err, severity)
	}
}

// dropClient stops the given client if it is still the active one.
func (i *Ingestor) dropClient(client *websocket.Client) {
	i.mu.Lock()
	if i.client == client {
		i.client = nil
	}
	i.mu.Unlock()
	client.Stop()
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
