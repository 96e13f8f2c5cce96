package staffchat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Identity
// ============================================================================

// IdentitySource supplies the previously established local identity. The
// session never establishes identity itself; that belongs to the auth layer.
type IdentitySource interface {
	LocalID() (string, error)
}

// StaticIdentity is an IdentitySource wrapping a fixed employee id.
type StaticIdentity string

func (s StaticIdentity) LocalID() (string, error) {
	if s == "" {
		return "", ErrIdentityMissing
	}
	return string(s), nil
}

// ============================================================================
// Session
// ============================================================================

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateInitializing
	stateReady
)

// SessionOptions configures a Session.
type SessionOptions struct {
	// Identity supplies the local employee id. Required.
	Identity IdentitySource

	// LocalName is the display name stamped on outbound messages. Optional.
	LocalName string

	// Transport overrides the websocket transport, mainly for tests.
	Timeout   time.Duration
	Transport Transport

	// OnUpdate is invoked after a conversation's ledger slot changes from a
	// transport event or history load, so a UI can re-query Messages. Called
	// from transport goroutines; must not block.
	OnUpdate func(ConversationKey)

	Logger zerolog.Logger
}

// Session is the synchronization engine: it binds UI commands to ledger
// mutations and transport emissions, applies optimistic local updates, and
// reconciles them against server-confirmed events. It is the ledger's only
// writer.
//
// Each session is an explicitly constructed value with a defined lifecycle
// (Initialize/Cleanup); tests construct independent sessions in isolation.
type Session struct {
	client    *Client
	ledger    *Ledger
	directory *DirectoryCache
	transport Transport
	identity  IdentitySource
	onUpdate  func(ConversationKey)
	log       zerolog.Logger
	timeout   time.Duration

	mu           sync.Mutex
	state        sessionState
	localID      string
	localName    string
	activeMode   ChatMode
	activeTarget string
	activeKey    ConversationKey
	connected    bool
	lastErr      error
}

// NewSession creates a session over the given client. The zero-value options
// yield a session with the client's own realtime transport and no identity,
// which will fail Initialize with ErrIdentityMissing.
func NewSession(client *Client, opts SessionOptions) *Session {
	transport := opts.Transport
	if transport == nil {
		transport = client.Realtime(RealtimeConfig{AutoReconnect: true})
	}
	identity := opts.Identity
	if identity == nil {
		identity = StaticIdentity("")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		client:    client,
		ledger:    NewLedger(),
		directory: NewDirectoryCache(client),
		transport: transport,
		identity:  identity,
		onUpdate:  opts.OnUpdate,
		log:       opts.Logger,
		timeout:   timeout,
		localName: opts.LocalName,
	}
}

// Ledger exposes the session's ledger for read-only inspection.
func (s *Session) Ledger() *Ledger { return s.ledger }

// Directory exposes the loaded roster.
func (s *Session) Directory() *DirectoryCache { return s.directory }

// LocalID returns the local identity, "" before initialization.
func (s *Session) LocalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// ActiveKey returns the selected conversation key, "" when idle.
func (s *Session) ActiveKey() ConversationKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKey
}

// IsConnected reflects the transport's last reported connection state.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Err returns the session-level error flag: the last absorbed recoverable
// failure, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ============================================================================
// Lifecycle
// ============================================================================

// Initialize resolves the local identity, binds the transport handlers,
// connects, and loads the directory. Transport and directory failures are
// absorbed into the error flag and degrade the session instead of failing
// it; only a missing identity is terminal.
//
// Initialize is idempotent: repeated or overlapping calls while initializing
// or ready return immediately and never re-bind handlers.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.state = stateInitializing
	s.mu.Unlock()

	id, err := s.identity.LocalID()
	if err != nil || id == "" {
		s.mu.Lock()
		s.state = stateUninitialized
		s.lastErr = ErrIdentityMissing
		s.mu.Unlock()
		return ErrIdentityMissing
	}
	s.mu.Lock()
	s.localID = id
	s.mu.Unlock()

	// Exactly one live handler set per session. Bind replaces any prior set,
	// so a torn-down-and-reinitialized session cannot double-deliver.
	s.transport.Bind(TransportHandlers{
		OnMessage:          s.handleMessage,
		OnMessageDeleted:   s.handleMessageDeleted,
		OnConnectionChange: s.handleConnectionChange,
	})

	if err := s.transport.Connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("transport connect failed, continuing degraded")
		s.setErr(err)
	}
	if err := s.directory.Load(ctx); err != nil {
		s.log.Warn().Err(err).Msg("directory load failed, continuing with empty roster")
		s.setErr(err)
	}

	s.mu.Lock()
	s.state = stateReady
	s.mu.Unlock()
	return nil
}

// Cleanup tears the session down: clears the handler set, disconnects the
// transport, and resets conversation state. The ledger's contents are
// session-scoped and dropped with the session value.
func (s *Session) Cleanup() {
	s.transport.Bind(TransportHandlers{})
	if err := s.transport.Disconnect(); err != nil {
		s.log.Debug().Err(err).Msg("transport disconnect")
	}

	s.mu.Lock()
	s.state = stateUninitialized
	s.activeMode = ""
	s.activeTarget = ""
	s.activeKey = ""
	s.connected = false
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// ============================================================================
// Commands
// ============================================================================

// SelectConversation switches the active conversation. The previous room is
// left before the new one is joined; selecting the already-active target is a
// no-op and issues no join, leave, or fetch. The first selection of a
// conversation triggers an asynchronous history load into its ledger slot.
func (s *Session) SelectConversation(ctx context.Context, mode ChatMode, targetID string) error {
	s.mu.Lock()
	if s.state != stateReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	key := ResolveKey(mode, s.localID, targetID)
	if key == s.activeKey {
		s.mu.Unlock()
		return nil
	}
	previous := s.activeKey
	s.activeMode = mode
	s.activeTarget = targetID
	s.activeKey = key
	s.mu.Unlock()

	if previous != "" {
		if err := s.transport.LeaveRoom(ctx, previous); err != nil {
			s.log.Debug().Err(err).Str("key", string(previous)).Msg("leave room failed")
		}
	}
	if err := s.transport.JoinRoom(ctx, key); err != nil {
		s.log.Debug().Err(err).Str("key", string(key)).Msg("join room failed")
	}

	if !s.ledger.Has(key) {
		// The fetch is keyed to its own conversation and survives a later
		// selection change; a stale result merges into its slot instead of
		// overwriting whatever is active by then.
		go s.loadHistory(context.WithoutCancel(ctx), key)
	}
	return nil
}

func (s *Session) loadHistory(ctx context.Context, key ConversationKey) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.client.FetchHistory(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", string(key)).Msg("history fetch failed")
		return
	}
	s.ledger.Replace(key, msgs)
	s.notify(key)
}

// Send appends an optimistic message under the active conversation and emits
// it. Empty text (after trimming), a missing selection, and an unset identity
// are silent no-ops. The optimistic entry carries a temporary id; the server
// echo arrives under the authoritative id and is absorbed by the ledger's
// content-tuple dedup rule.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.localID == "" || s.activeKey == "" {
		s.mu.Unlock()
		return nil
	}
	key := s.activeKey
	mode := s.activeMode
	target := s.activeTarget
	localID := s.localID
	localName := s.localName
	s.mu.Unlock()

	msg := Message{
		ID:         uuid.NewString(),
		SenderID:   localID,
		SenderName: localName,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}
	payload := SendPayload{
		SenderID:   localID,
		SenderName: localName,
		Text:       text,
		Timestamp:  msg.Timestamp,
	}
	if mode == ModeChannel {
		msg.ChatID = target
		payload.ChatID = target
	} else {
		msg.ReceiverID = target
		payload.ReceiverID = target
	}

	s.ledger.Append(key, msg)

	if err := s.transport.EmitSend(ctx, payload); err != nil {
		// The optimistic entry stays; it simply will not be confirmed until
		// reconnection. There is no durable retry.
		s.log.Warn().Err(err).Msg("emit send failed")
		s.setErr(err)
	}
	return nil
}

// DeleteMessage soft-deletes a message and emits the deletion. Purely
// optimistic: a remote rejection is never rolled back. key may be "" for the
// active conversation. Idempotent; deleting an unknown id is a no-op locally
// and emits anyway, which the remote tolerates.
func (s *Session) DeleteMessage(ctx context.Context, key ConversationKey, messageID string) error {
	if key == "" {
		s.mu.Lock()
		key = s.activeKey
		s.mu.Unlock()
	}
	if key == "" {
		return ErrNoSelection
	}

	s.ledger.MarkDeleted(key, messageID)

	if err := s.transport.EmitDelete(ctx, DeletePayload{
		ConversationKey: string(key),
		MessageID:       messageID,
	}); err != nil {
		s.log.Warn().Err(err).Msg("emit delete failed")
		s.setErr(err)
	}
	return nil
}

// Messages returns the ordered sequence for a conversation, deleted entries
// included; key may be "" for the active conversation.
func (s *Session) Messages(key ConversationKey) []Message {
	if key == "" {
		s.mu.Lock()
		key = s.activeKey
		s.mu.Unlock()
	}
	return s.ledger.Get(key)
}

// ============================================================================
// Inbound reconciliation
// ============================================================================

// handleMessage classifies an inbound event, repairs missing fields, and
// appends it; the ledger's dedup rule absorbs echoes of local sends.
func (s *Session) handleMessage(ev InboundMessage) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
		s.log.Warn().Msg("inbound message without id, synthesized one")
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
		s.log.Warn().Str("id", ev.ID).Msg("inbound message without timestamp, defaulted to now")
	}

	s.mu.Lock()
	localID := s.localID
	s.mu.Unlock()

	var key ConversationKey
	if ev.ChatID != "" {
		key = ChannelKey(ev.ChatID)
	} else {
		peer := ev.SenderID
		if ev.SenderID == localID {
			peer = ev.ReceiverID
		}
		key = ResolveKey(ModeDirect, localID, peer)
	}

	if s.ledger.Append(key, Message{
		ID:         ev.ID,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		ReceiverID: ev.ReceiverID,
		ChatID:     ev.ChatID,
		Text:       ev.Text,
		Timestamp:  ev.Timestamp,
	}) {
		s.notify(key)
	}
}

func (s *Session) handleMessageDeleted(p DeletePayload) {
	if s.ledger.MarkDeleted(ConversationKey(p.ConversationKey), p.MessageID) {
		s.notify(ConversationKey(p.ConversationKey))
	}
}

func (s *Session) notify(key ConversationKey) {
	if s.onUpdate != nil {
		s.onUpdate(key)
	}
}

// handleConnectionChange updates the connectivity flag; conversation state is
// untouched. On recovery the active room is re-joined, since the remote end
// forgets subscriptions across a drop.
func (s *Session) handleConnectionChange(connected bool) {
	s.mu.Lock()
	s.connected = connected
	key := s.activeKey
	s.mu.Unlock()

	if connected && key != "" {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.transport.JoinRoom(ctx, key); err != nil {
			s.log.Debug().Err(err).Str("key", string(key)).Msg("rejoin after reconnect failed")
		}
	}
}
