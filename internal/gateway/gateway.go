// Package gateway maintains the bot's Discord Gateway connection and feeds every dispatch event
// into the sync pipeline. Reconnecting is left to the caller: Run returns when the session ends.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/internal/events"
)

const (
	defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	// Gateway opcodes
	opDispatch       = 0  // Receive: Event dispatch
	opHeartbeat      = 1  // Send/Receive: Heartbeat
	opIdentify       = 2  // Send: Identify (begin session)
	opReconnect      = 7  // Receive: Reconnect
	opInvalidSession = 9  // Receive: Invalid session
	opHello          = 10 // Receive: Hello (heartbeat interval)
	opHeartbeatACK   = 11 // Receive: Heartbeat ACK
)

var (
	// ErrReconnect is returned by Run when Discord asks the client to reconnect
	ErrReconnect = errors.New("gateway requested reconnect")

	// ErrInvalidSession is returned by Run when Discord invalidates the session
	ErrInvalidSession = errors.New("gateway invalidated session")
)

// Applier consumes decoded events
type Applier interface {
	Apply(ctx context.Context, ev events.Event) error
}

// Payload is a Discord Gateway message
type Payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  *string         `json:"t,omitempty"`
}

type helloPayload struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type identifyPayload struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Gateway is one bot session
type Gateway struct {
	url     string
	token   string
	intents int
	applier Applier
	logger  *zap.Logger

	// WebSocket connection; gorilla allows one concurrent writer
	conn    *websocket.Conn
	writeMu sync.Mutex

	sessionID atomic.Value // string
	sequence  atomic.Int64
	hasSeq    atomic.Bool

	heartbeatInterval time.Duration
	lastAckAt         atomic.Int64

	closeChan chan struct{}
	closeOnce sync.Once
	closeErr  error

	dispatched   atomic.Uint64
	decodeErrors atomic.Uint64
}

// New creates a gateway session for the configured bot token
func New(cfg *config.DiscordConfig, applier Applier, logger *zap.Logger) *Gateway {
	url := cfg.GatewayURL
	if url == "" {
		url = defaultGatewayURL
	}
	return &Gateway{
		url:       url,
		token:     cfg.BotToken,
		intents:   cfg.Intents,
		applier:   applier,
		logger:    logger,
		closeChan: make(chan struct{}),
	}
}

// Run connects and processes Gateway messages until the context ends, Discord ends the session,
// or the connection fails. A Gateway can only be run once
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("connecting to Discord Gateway", zap.String("gateway_url", g.url))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial Gateway: %w", err)
	}
	g.conn = conn

	go func() {
		select {
		case <-ctx.Done():
			g.close(ctx.Err())
		case <-g.closeChan:
		}
	}()

	return g.receiveLoop(ctx)
}

// SessionID returns the id of the current session, empty before READY
func (g *Gateway) SessionID() string {
	id, _ := g.sessionID.Load().(string)
	return id
}

// Dispatched returns how many dispatch events were handed to the applier
func (g *Gateway) Dispatched() uint64 {
	return g.dispatched.Load()
}

// IsStale reports whether no heartbeat ACK arrived within staleDuration
func (g *Gateway) IsStale(staleDuration time.Duration) bool {
	last := g.lastAckAt.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) > staleDuration
}

// Close ends the session
func (g *Gateway) Close() {
	g.close(nil)
}

// receiveLoop processes incoming Gateway messages
func (g *Gateway) receiveLoop(ctx context.Context) error {
	for {
		_, message, err := g.conn.ReadMessage()
		if err != nil {
			select {
			case <-g.closeChan:
				return g.closeErr
			default:
			}
			g.close(err)
			return fmt.Errorf("failed to read Gateway message: %w", err)
		}

		var payload Payload
		if err := json.Unmarshal(message, &payload); err != nil {
			g.logger.Error("failed to unmarshal Gateway payload", zap.Error(err))
			continue
		}

		if payload.S != nil {
			g.sequence.Store(*payload.S)
			g.hasSeq.Store(true)
		}

		if err := g.handlePayload(ctx, &payload); err != nil {
			if errors.Is(err, ErrReconnect) || errors.Is(err, ErrInvalidSession) {
				g.close(err)
				return err
			}
			g.logger.Error("failed to handle Gateway payload",
				zap.Int("opcode", payload.Op),
				zap.Error(err),
			)
		}
	}
}

// handlePayload processes a Gateway payload based on opcode
func (g *Gateway) handlePayload(ctx context.Context, payload *Payload) error {
	switch payload.Op {
	case opHello:
		return g.handleHello(ctx, payload)

	case opHeartbeat:
		return g.sendHeartbeat()

	case opHeartbeatACK:
		g.lastAckAt.Store(time.Now().UnixNano())
		return nil

	case opDispatch:
		if payload.T == nil {
			return fmt.Errorf("dispatch event missing event type")
		}
		return g.handleDispatch(ctx, *payload.T, payload.D)

	case opReconnect:
		g.logger.Warn("received reconnect request from Gateway")
		return ErrReconnect

	case opInvalidSession:
		g.logger.Warn("received invalid session from Gateway")
		return ErrInvalidSession

	default:
		g.logger.Debug("received unknown opcode", zap.Int("opcode", payload.Op))
		return nil
	}
}

// handleHello starts the heartbeat and identifies
func (g *Gateway) handleHello(ctx context.Context, payload *Payload) error {
	var hello helloPayload
	if err := json.Unmarshal(payload.D, &hello); err != nil {
		return fmt.Errorf("failed to unmarshal HELLO payload: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval %d", hello.HeartbeatInterval)
	}

	g.heartbeatInterval = time.Duration(hello.HeartbeatInterval) * time.Millisecond
	g.logger.Info("received HELLO from Gateway", zap.Duration("heartbeat_interval", g.heartbeatInterval))

	go g.heartbeatLoop(ctx)

	return g.sendIdentify()
}

func (g *Gateway) sendIdentify() error {
	d, err := json.Marshal(identifyPayload{
		Token:   g.token,
		Intents: g.intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "discordlitesync",
			Device:  "discordlitesync",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal IDENTIFY payload: %w", err)
	}

	g.logger.Debug("sending IDENTIFY to Gateway", zap.Int("intents", g.intents))
	return g.send(Payload{Op: opIdentify, D: d})
}

// handleDispatch decodes a dispatch event and applies it. Events the pipeline does not consume
// are ignored
func (g *Gateway) handleDispatch(ctx context.Context, name string, data json.RawMessage) error {
	ev, err := events.Decode(name, data, time.Now())
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			g.logger.Debug("ignoring dispatch event", zap.String("event_type", name))
			return nil
		}
		g.decodeErrors.Add(1)
		return err
	}

	if ready, ok := ev.(events.Ready); ok {
		g.sessionID.Store(ready.SessionID)
		g.logger.Info("Gateway session ready", zap.String("session_id", ready.SessionID))
	}

	g.dispatched.Add(1)
	return g.applier.Apply(ctx, ev)
}

// heartbeatLoop sends periodic heartbeat messages
func (g *Gateway) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(g.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.closeChan:
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(); err != nil {
				g.logger.Error("failed to send heartbeat", zap.Error(err))
				g.close(err)
				return
			}
		}
	}
}

// sendHeartbeat sends the last sequence number, or null before the first one
func (g *Gateway) sendHeartbeat() error {
	d := json.RawMessage("null")
	if g.hasSeq.Load() {
		d = json.RawMessage(fmt.Sprintf("%d", g.sequence.Load()))
	}
	return g.send(Payload{Op: opHeartbeat, D: d})
}

func (g *Gateway) send(p Payload) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.conn.WriteJSON(p)
}

func (g *Gateway) close(err error) {
	g.closeOnce.Do(func() {
		g.closeErr = err
		close(g.closeChan)

		g.writeMu.Lock()
		if g.conn != nil {
			_ = g.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = g.conn.Close()
		}
		g.writeMu.Unlock()

		g.logger.Info("Gateway connection closed",
			zap.Uint64("dispatched", g.dispatched.Load()),
			zap.Uint64("decode_errors", g.decodeErrors.Load()),
		)
	})
}
