package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fleetwatch/statusclient/internal/config"
	"fleetwatch/statusclient/internal/events"
	"fleetwatch/statusclient/internal/logging"
	"fleetwatch/statusclient/internal/protocol"
	"fleetwatch/statusclient/internal/state"
)

// State represents the connection lifecycle position of the engine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var errNotConnected = errors.New("not connected")

// Client owns the persistent channel to the fleet authority: one WebSocket
// connection, the reconnection schedule, and the sequential dispatch of inbound
// frames into the state store and event bus.
type Client struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *state.Store
	bus     *events.Bus
	ticker  *state.UptimeTicker
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu             sync.Mutex
	connState      State
	conn           *websocket.Conn
	sessionLog     *logging.Logger
	generation     int
	attempts       int
	totalAttempts  int
	reconnectTimer *time.Timer
	manual         bool
	failedEmitted  bool
	pollStop       chan struct{}
	pollDone       chan struct{}

	writeMu sync.Mutex
}

// New wires the engine around an explicitly constructed store and bus.
func New(cfg *config.Config, store *state.Store, bus *events.Bus, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.L()
	}
	return &Client{
		cfg:     cfg,
		log:     logger,
		store:   store,
		bus:     bus,
		ticker:  state.NewUptimeTicker(store, state.DefaultUptimeInterval, logger),
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst),
	}
}

// ConnectionState returns the current lifecycle state.
func (c *Client) ConnectionState() State {
	if c == nil {
		return StateDisconnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

// Connect opens the channel. It is idempotent while a connection is being
// established or already open, and suspends until open, timeout, or error. A
// failed attempt feeds the reconnection schedule like any remote close.
func (c *Client) Connect() error {
	if c == nil {
		return errors.New("nil client")
	}
	return c.connect(0, false)
}

// connect performs the dial. Scheduled retries pass the generation captured
// when their timer was armed; the check runs under the same lock Disconnect
// uses to bump the generation, so a timer that fired concurrently with a
// manual disconnect can never revive the connection.
func (c *Client) connect(timerGen int, scheduled bool) error {
	c.mu.Lock()
	if scheduled && (timerGen != c.generation || c.manual) {
		c.mu.Unlock()
		return nil
	}
	if c.connState == StateConnecting || c.connState == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.connState = StateConnecting
	c.manual = false
	gen := c.generation
	c.mu.Unlock()

	//1.- Dial under the connect timeout; expiry abandons the half-open attempt
	// exactly as a remote close would.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.log.Warn("connection attempt failed",
			logging.String("url", c.cfg.URL),
			logging.Error(err))
		c.handleDisconnect(gen, websocket.CloseAbnormalClosure, err.Error())
		return err
	}

	c.mu.Lock()
	if c.manual || gen != c.generation {
		//2.- Disconnect was requested while the dial was in flight.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	//3.- Derive a session-scoped logger so every line from this connection's
	// lifetime carries the same session_id.
	_, sessionLog, _ := logging.WithSession(context.Background(), c.log, "")

	c.conn = conn
	c.connState = StateConnected
	c.attempts = 0
	c.failedEmitted = false
	c.sessionLog = sessionLog
	sessionGen := c.generation
	c.startPollLocked(sessionGen)
	c.mu.Unlock()

	sessionLog.Info("connected", logging.String("url", c.cfg.URL))
	c.bus.Publish(events.Envelope{Kind: events.KindConnected, Connected: &events.Connected{}})
	c.ticker.Start()

	go c.readLoop(conn, sessionGen)

	//4.- Announce ourselves: subscribe to live events and ask for a baseline.
	// The handshake skips the request budget; losing either frame would leave
	// the session subscribed to nothing.
	if err := c.send(protocol.NewSubscribeRequest()); err != nil {
		sessionLog.Warn("subscribe request failed", logging.Error(err))
	}
	if err := c.send(protocol.NewStatusRequest()); err != nil {
		sessionLog.Warn("status request failed", logging.Error(err))
	}
	return nil
}

// logger returns the session-scoped logger while a connection is live and the
// base logger otherwise.
func (c *Client) logger() *logging.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionLog != nil {
		return c.sessionLog
	}
	return c.log
}

// Disconnect tears the connection down: it cancels any pending reconnect
// timer, stops the uptime ticker and meta-info poller, and detaches the read
// loop before closing the socket so no further events are dispatched. Safe to
// call repeatedly.
func (c *Client) Disconnect() {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.manual = true
	//1.- Bumping the generation detaches the read loop before the socket closes.
	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connState = StateDisconnected
	c.attempts = 0
	c.failedEmitted = false
	sessionLog := c.sessionLog
	c.sessionLog = nil
	pollStop, pollDone := c.pollStop, c.pollDone
	c.pollStop, c.pollDone = nil, nil
	c.mu.Unlock()

	if pollStop != nil {
		close(pollStop)
		<-pollDone
	}
	c.ticker.Stop()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
		if sessionLog == nil {
			sessionLog = c.log
		}
		sessionLog.Info("disconnected")
	}
}

// Close disconnects and wipes the state store; used on application teardown.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.Disconnect()
	c.store.Reset()
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			c.handleDisconnect(gen, code, reason)
			return
		}
		if !c.isCurrent(gen) {
			return
		}
		//1.- Frames are applied sequentially in arrival order; per-message
		// failures never escape the dispatch boundary.
		c.dispatch(raw)
	}
}

func (c *Client) isCurrent(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// handleDisconnect funnels every connection loss, dial failure included,
// through the reconnection schedule.
func (c *Client) handleDisconnect(gen, code int, reason string) {
	c.mu.Lock()
	if gen != c.generation || c.manual {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	sessionLog := c.sessionLog
	c.sessionLog = nil
	if sessionLog == nil {
		sessionLog = c.log
	}
	pollStop, pollDone := c.pollStop, c.pollDone
	c.pollStop, c.pollDone = nil, nil

	if !c.cfg.ReconnectEnabled {
		c.connState = StateDisconnected
		c.mu.Unlock()
		c.drainPoller(pollStop, pollDone)
		c.bus.Publish(events.Envelope{Kind: events.KindDisconnected,
			Disconnected: &events.Disconnected{Code: code, Reason: reason}})
		return
	}

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.connState = StateFailed
		emitFailed := !c.failedEmitted
		c.failedEmitted = true
		total := c.totalAttempts
		c.mu.Unlock()
		c.drainPoller(pollStop, pollDone)
		c.bus.Publish(events.Envelope{Kind: events.KindDisconnected,
			Disconnected: &events.Disconnected{Code: code, Reason: reason}})
		if emitFailed {
			sessionLog.Error("reconnection attempts exhausted",
				logging.Int("max_attempts", c.cfg.MaxReconnectAttempts),
				logging.Int("total_attempts", total))
			c.bus.Publish(events.Envelope{Kind: events.KindConnectionFailed,
				ConnectionFailed: &events.ConnectionFailed{
					MaxAttempts:   c.cfg.MaxReconnectAttempts,
					TotalAttempts: total,
				}})
		}
		return
	}

	//1.- Schedule the next attempt from the backoff sequence. The callback
	// checks the generation captured here so a timer that already fired when
	// Disconnect ran cannot revive the connection.
	delay := delayFor(c.cfg.ReconnectDelays, c.attempts)
	c.attempts++
	c.totalAttempts++
	attempt := c.attempts
	c.connState = StateReconnecting
	timerGen := c.generation
	c.reconnectTimer = time.AfterFunc(delay, func() {
		_ = c.connect(timerGen, true)
	})
	c.mu.Unlock()

	c.drainPoller(pollStop, pollDone)
	sessionLog.Warn("connection lost, reconnecting",
		logging.Int("code", code),
		logging.String("reason", reason),
		logging.Int("attempt", attempt),
		logging.Duration("delay", delay))
	c.bus.Publish(events.Envelope{Kind: events.KindDisconnected,
		Disconnected: &events.Disconnected{Code: code, Reason: reason}})
	c.bus.Publish(events.Envelope{Kind: events.KindReconnecting,
		Reconnecting: &events.Reconnecting{
			Attempt:     attempt,
			Delay:       delay,
			MaxAttempts: c.cfg.MaxReconnectAttempts,
		}})
}

func (c *Client) drainPoller(stop chan struct{}, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Client) startPollLocked(gen int) {
	if c.cfg.MetaInfoInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.pollStop, c.pollDone = stop, done
	go c.pollLoop(gen, stop, done)
}

func (c *Client) pollLoop(gen int, stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(c.cfg.MetaInfoInterval)
	defer ticker.Stop()
	defer close(done)
	for {
		select {
		case <-ticker.C:
			if !c.isCurrent(gen) {
				return
			}
			if err := c.sendThrottled(protocol.NewMetaInfoRequest()); err != nil {
				c.logger().Debug("meta-info request failed", logging.Error(err))
			}
		case <-stop:
			return
		}
	}
}

// send writes the frame immediately. The connect-time handshake uses this
// path: losing a subscribe or baseline request would leave the session
// silently unsubscribed, so those frames are never subject to the budget.
func (c *Client) send(req protocol.Request) error {
	data, err := req.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// sendThrottled applies the outbound request budget; periodic polls and
// resync escalations are dropped when the budget is exhausted.
func (c *Client) sendThrottled(req protocol.Request) error {
	if !c.limiter.Allow() {
		c.logger().Debug("outbound request throttled", logging.String("type", req.Type))
		return nil
	}
	return c.send(req)
}

// requestResync asks for a fresh full sync; used when a removal could not be
// resolved and the configured policy escalates instead of dropping silently.
func (c *Client) requestResync() {
	if err := c.sendThrottled(protocol.NewStatusRequest()); err != nil {
		c.logger().Debug("resync request failed", logging.Error(err))
	}
}
