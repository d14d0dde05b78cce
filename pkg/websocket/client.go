// Package websocket provides a single-use WebSocket connection with
// keep-alive. Reconnection policy lives with the caller: when the read
// loop ends the client reports the disconnect and goes inert.
package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
	"whale_watcher/pkg/telemetry"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MessageHandler handles incoming WebSocket messages
type MessageHandler func(message []byte)

// DisconnectHandler is invoked exactly once when the connection drops
// for any reason other than a deliberate Stop.
type DisconnectHandler func(err error)

// Client is a one-connection WebSocket client. Construct a fresh client
// for every connection attempt.
type Client struct {
	url          string
	handler      MessageHandler
	onDisconnect DisconnectHandler

	conn *websocket.Conn
	mu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopped        atomic.Bool
	disconnectOnce sync.Once

	pingInterval time.Duration
	pingWait     time.Duration
	pongWait     time.Duration

	logger core.ILogger

	// OTel
	tracer      trace.Tracer
	msgCounter  metric.Int64Counter
	connCounter metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewClient creates a new WebSocket client
func NewClient(url string, handler MessageHandler, logger core.ILogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	tracer := telemetry.GetTracer("ws-client")
	meter := telemetry.GetMeter("ws-client")

	msgCounter, _ := meter.Int64Counter("ws_messages_total",
		metric.WithDescription("Total number of WebSocket messages received"))
	connCounter, _ := meter.Int64Counter("ws_connections_total",
		metric.WithDescription("Total number of WebSocket connections initiated"))
	latencyHist, _ := meter.Float64Histogram("ws_message_processing_latency_seconds",
		metric.WithDescription("Latency of processing WebSocket messages in seconds"))

	return &Client{
		url:          url,
		handler:      handler,
		pingInterval: 20 * time.Second,
		pingWait:     10 * time.Second,
		pongWait:     30 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		tracer:       tracer,
		msgCounter:   msgCounter,
		connCounter:  connCounter,
		latencyHist:  latencyHist,
		logger:       logger,
	}
}

// SetPingConfig sets the ping/pong configuration. Must be called before
// Connect.
func (c *Client) SetPingConfig(interval, wait, pongWait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingInterval = interval
	c.pingWait = wait
	c.pongWait = pongWait
}

// SetOnDisconnect sets the disconnect callback. Must be called before
// Connect.
func (c *Client) SetOnDisconnect(cb DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

// Connect dials the endpoint and starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	_, span := c.tracer.Start(ctx, "WS Connect",
		trace.WithAttributes(attribute.String("ws.url", c.url)),
	)
	defer span.End()

	c.connCounter.Add(ctx, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return apperrors.ErrAlreadyRunning
	}
	if c.stopped.Load() {
		return apperrors.ErrClosed
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}

	conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	c.conn = conn

	c.wg.Add(1)
	go c.readLoop(conn)

	if c.pingInterval > 0 {
		c.wg.Add(1)
		go c.heartbeat(conn)
	}

	return nil
}

// Send writes a JSON message over the connection
func (c *Client) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return apperrors.ErrNotConnected
	}

	return c.conn.WriteJSON(message)
}

// IsConnected reports whether the socket is currently open
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stop closes the connection deliberately. The disconnect callback is
// not invoked for a Stop.
func (c *Client) Stop() {
	c.stopped.Store(true)
	c.cancel()
	c.closeConn()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All goroutines exited cleanly
	case <-time.After(5 * time.Second):
		if c.logger != nil {
			c.logger.Warn("WebSocket client Stop: some goroutines did not exit within timeout")
		}
	}
}

func (c *Client) heartbeat(conn *websocket.Conn) {
	defer c.wg.Done()

	c.mu.Lock()
	interval := c.pingInterval
	wait := c.pingWait
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wait)); err != nil {
				// A failed ping ends the connection; the read loop
				// surfaces the disconnect.
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.closeConn()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !c.stopped.Load() {
				c.reportDisconnect(err)
			}
			return
		}

		start := time.Now()
		c.msgCounter.Add(c.ctx, 1)

		if c.handler != nil {
			c.handler(message)
		}

		c.latencyHist.Record(c.ctx, time.Since(start).Seconds())
	}
}

func (c *Client) reportDisconnect(err error) {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		cb := c.onDisconnect
		c.mu.Unlock()
		if cb != nil {
			cb(err)
		}
	})
}
