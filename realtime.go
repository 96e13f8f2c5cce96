package staffchat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Transport contract
// ============================================================================

// TransportHandlers is the complete inbound handler set for one session.
// Bind installs it atomically, replacing whatever was installed before;
// there is never more than one live handler set, so re-initialization cannot
// accumulate duplicate deliveries.
type TransportHandlers struct {
	OnMessage          func(InboundMessage)
	OnMessageDeleted   func(DeletePayload)
	OnConnectionChange func(connected bool)
}

// Transport is the event channel the session synchronizes against. Outbound
// emits are fire-and-forget: no acknowledgement is assumed, and success is
// inferred only from a later inbound echo or broadcast.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	JoinRoom(ctx context.Context, key ConversationKey) error
	LeaveRoom(ctx context.Context, key ConversationKey) error
	EmitSend(ctx context.Context, p SendPayload) error
	EmitDelete(ctx context.Context, p DeletePayload) error
	Bind(h TransportHandlers)
	IsConnected() bool
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the websocket transport.
type RealtimeConfig struct {
	Token         string
	DialAttempts  int           // bounded retry per connect cycle
	RetryDelay    time.Duration // fixed delay between attempts
	AutoReconnect bool
	Logger        zerolog.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.DialAttempts == 0 {
		c.DialAttempts = 5
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient owns the single long-lived websocket connection to the hub.
// It reconnects with bounded attempts and a fixed backoff; after exhausting
// them it stays in a persistent disconnected state, observable through
// IsConnected and the connection-change handler, since a later Connect may
// still succeed without any other caller intervention.
type RealtimeClient struct {
	baseURL string
	config  RealtimeConfig
	log     zerolog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	cancelFn         context.CancelFunc

	hmu      sync.RWMutex
	handlers TransportHandlers
}

// NewRealtime creates a websocket transport for the given hub URL.
func NewRealtime(baseURL string, config RealtimeConfig) *RealtimeClient {
	config.defaults()
	return &RealtimeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
		log:     config.Logger,
		state:   StateDisconnected,
	}
}

// Realtime creates the transport matching this client's hub and token.
func (c *Client) Realtime(config RealtimeConfig) *RealtimeClient {
	if config.Token == "" {
		config.Token = c.token
	}
	config.Logger = c.log
	return NewRealtime(c.baseURL, config)
}

// Bind installs the handler set, replacing any previous one.
func (rt *RealtimeClient) Bind(h TransportHandlers) {
	rt.hmu.Lock()
	rt.handlers = h
	rt.hmu.Unlock()
}

// State returns the current connection state.
func (rt *RealtimeClient) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// IsConnected reports whether the transport currently has a live connection.
func (rt *RealtimeClient) IsConnected() bool {
	return rt.State() == StateConnected
}

func (rt *RealtimeClient) wsURL() string {
	u := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	u += "/ws"
	if rt.config.Token != "" {
		u += "?token=" + rt.config.Token
	}
	return u
}

// Connect establishes the connection, retrying up to DialAttempts times with
// RetryDelay between attempts. On exhaustion it leaves the transport in the
// persistent disconnected state and returns ErrNotConnected; callers treat
// that as degraded, not fatal.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= rt.config.DialAttempts; attempt++ {
		conn, _, err := websocket.Dial(ctx, rt.wsURL(), nil)
		if err == nil {
			rt.attach(ctx, conn)
			return nil
		}
		lastErr = err
		rt.log.Warn().Err(err).Int("attempt", attempt).Msg("realtime dial failed")

		if attempt == rt.config.DialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			rt.setDisconnected()
			return ctx.Err()
		case <-time.After(rt.config.RetryDelay):
		}
	}

	rt.setDisconnected()
	rt.emitConnectionChange(false)
	return fmt.Errorf("%w: %v", ErrNotConnected, lastErr)
}

func (rt *RealtimeClient) attach(ctx context.Context, conn *websocket.Conn) {
	// WithoutCancel severs the new read loop from the previous connection's
	// context, so a dead loop's cancellation cannot reach its replacement.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rt.mu.Lock()
	if rt.cancelFn != nil {
		rt.cancelFn()
	}
	rt.conn = conn
	rt.state = StateConnected
	rt.cancelFn = cancel
	rt.mu.Unlock()

	rt.emitConnectionChange(true)
	go rt.readLoop(connCtx, conn)
}

func (rt *RealtimeClient) setDisconnected() {
	rt.mu.Lock()
	rt.state = StateDisconnected
	rt.conn = nil
	rt.mu.Unlock()
}

// Disconnect gracefully closes the connection and suppresses reconnection.
func (rt *RealtimeClient) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.emitConnectionChange(false)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// ============================================================================
// Outbound
// ============================================================================

// JoinRoom subscribes to one conversation's events. Redundant joins are
// no-ops on the remote side; join/leave delivery is not exactly-once.
func (rt *RealtimeClient) JoinRoom(ctx context.Context, key ConversationKey) error {
	return rt.send(ctx, Command{Type: EventRoomJoin, Payload: RoomPayload{ConversationKey: string(key)}})
}

// LeaveRoom unsubscribes from one conversation's events.
func (rt *RealtimeClient) LeaveRoom(ctx context.Context, key ConversationKey) error {
	return rt.send(ctx, Command{Type: EventRoomLeave, Payload: RoomPayload{ConversationKey: string(key)}})
}

// EmitSend fires an outbound message event.
func (rt *RealtimeClient) EmitSend(ctx context.Context, p SendPayload) error {
	return rt.send(ctx, Command{Type: EventMessageSend, Payload: p})
}

// EmitDelete fires an outbound deletion event.
func (rt *RealtimeClient) EmitDelete(ctx context.Context, p DeletePayload) error {
	return rt.send(ctx, Command{Type: EventMessageDelete, Payload: p})
}

func (rt *RealtimeClient) send(ctx context.Context, cmd Command) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ============================================================================
// Inbound
// ============================================================================

// readLoop decodes inbound envelopes and dispatches them synchronously, one
// event at a time, preserving delivery order per conversation.
func (rt *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.setDisconnected()
			rt.emitConnectionChange(false)

			if rt.config.AutoReconnect {
				rt.reconnect(ctx)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			rt.log.Warn().Err(err).Msg("undecodable realtime frame")
			continue
		}
		rt.dispatch(env)
	}
}

func (rt *RealtimeClient) dispatch(env Envelope) {
	rt.hmu.RLock()
	h := rt.handlers
	rt.hmu.RUnlock()

	switch env.Type {
	case EventMessage:
		var p InboundMessage
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			rt.log.Warn().Err(err).Msg("malformed message event")
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(p)
		}
	case EventMessageDeleted:
		var p DeletePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			rt.log.Warn().Err(err).Msg("malformed message.deleted event")
			return
		}
		if h.OnMessageDeleted != nil {
			h.OnMessageDeleted(p)
		}
	default:
		rt.log.Debug().Str("type", env.Type).Msg("ignoring unknown realtime event")
	}
}

func (rt *RealtimeClient) emitConnectionChange(connected bool) {
	rt.hmu.RLock()
	h := rt.handlers.OnConnectionChange
	rt.hmu.RUnlock()
	if h != nil {
		h(connected)
	}
}

// reconnect runs one bounded dial cycle after a dropped connection.
func (rt *RealtimeClient) reconnect(ctx context.Context) {
	rt.mu.Lock()
	if rt.intentionalClose {
		rt.mu.Unlock()
		return
	}
	rt.state = StateReconnecting
	rt.mu.Unlock()

	for attempt := 1; attempt <= rt.config.DialAttempts; attempt++ {
		select {
		case <-ctx.Done():
			rt.setDisconnected()
			return
		case <-time.After(rt.config.RetryDelay):
		}

		rt.mu.Lock()
		if rt.intentionalClose {
			rt.mu.Unlock()
			return
		}
		rt.mu.Unlock()

		conn, _, err := websocket.Dial(ctx, rt.wsURL(), nil)
		if err == nil {
			rt.attach(ctx, conn)
			return
		}
		rt.log.Warn().Err(err).Int("attempt", attempt).Msg("realtime reconnect failed")
	}

	rt.log.Error().Int("attempts", rt.config.DialAttempts).Msg("realtime reconnect exhausted")
	rt.setDisconnected()
}
