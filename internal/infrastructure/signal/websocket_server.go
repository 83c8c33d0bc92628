package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
	"pairlink/internal/core/services"
	"pairlink/pkg/utils"
	"pairlink/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config carries the signal server's transport settings.
type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MessagesPerSecond float64 // 0 disables per-connection rate limiting
	Burst             int
	MaxMessageBytes   int64
	AllowedOrigins    []string
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// WebSocketServer is the inbound operation transport and, at the same time,
// the Notifier: each connected identity's socket is its private channel.
type WebSocketServer struct {
	broker ports.BrokerService
	auth   services.AuthService
	cfg    Config

	connections map[domain.Identity]*websocket.Conn
	writeLocks  map[domain.Identity]*sync.Mutex
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

// SignalMessage is the inbound wire envelope.
type SignalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundMessage struct {
	Type    string          `json:"type"`
	From    domain.Identity `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CreateSessionPayload struct {
	Code         domain.SessionCode `json:"code,omitempty"`
	AudioEnabled bool               `json:"audio_enabled"`
}

type JoinSessionPayload struct {
	Code         domain.SessionCode `json:"code"`
	AudioEnabled bool               `json:"audio_enabled"`
}

type PrivilegedConnectPayload struct {
	Target       domain.Identity `json:"target"`
	AudioEnabled bool            `json:"audio_enabled"`
}

type FramePayload struct {
	Data []byte `json:"data"`
}

func NewWebSocketServer(auth services.AuthService, cfg Config, logger *zap.SugaredLogger) *WebSocketServer {
	cfg.applyDefaults()

	s := &WebSocketServer{
		auth:        auth,
		cfg:         cfg,
		connections: make(map[domain.Identity]*websocket.Conn),
		writeLocks:  make(map[domain.Identity]*sync.Mutex),
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// AttachBroker binds the broker after construction. The server doubles as
// the broker's notifier, so the two cannot be built in one step. Must be
// called before the server accepts connections.
func (s *WebSocketServer) AttachBroker(broker ports.BrokerService) {
	s.broker = broker
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// authenticate extracts the caller identity and role set from the bearer
// token (Authorization header or token query parameter).
func (s *WebSocketServer) authenticate(r *http.Request) (*services.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, fmt.Errorf("missing token")
	}
	return s.auth.ValidateToken(token)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		s.logger.Warnw("websocket auth failed", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	identity := claims.Identity
	roles := claims.Roles

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	// A reconnecting identity replaces its old connection.
	s.mu.Lock()
	if old, isReconnect := s.connections[identity]; isReconnect && old != nil {
		old.Close()
		s.logger.Infow("closing old connection for reconnecting identity", "identity", identity)
	}
	s.connections[identity] = conn
	s.writeLocks[identity] = &sync.Mutex{}
	s.mu.Unlock()

	s.logger.Infow("identity connected", "identity", identity, "roles", roles)

	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	messageChan := make(chan SignalMessage, 16)
	errorChan := make(chan error, 1)
	readerDone := make(chan struct{})

	go func() {
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			select {
			case messageChan <- msg:
			case <-readerDone:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.sendError(identity, "rate limit exceeded")
				continue
			}
			if err := s.handleMessage(context.Background(), identity, roles, msg); err != nil {
				s.logger.Infow("operation failed", "identity", identity, "type", msg.Type, "error", err)
				s.sendError(identity, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "identity", identity, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message", "identity", identity, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	// Unblock the reader goroutine if it is parked on a full messageChan.
	close(readerDone)

	s.mu.Lock()
	// Another goroutine may have replaced this connection already.
	isCurrent := s.connections[identity] == conn
	if isCurrent {
		delete(s.connections, identity)
		delete(s.writeLocks, identity)
	}
	s.mu.Unlock()

	// A connection replaced by a reconnect must not end the session the
	// identity still holds on its new socket.
	if isCurrent {
		if err := s.broker.EndSession(context.Background(), identity); err != nil {
			s.logger.Infow("error ending session on disconnect", "identity", identity, "error", err)
		}
	}

	s.logger.Infow("identity disconnected", "identity", identity)
}

func (s *WebSocketServer) handleMessage(ctx context.Context, identity domain.Identity, roles []domain.Role, msg SignalMessage) error {
	switch msg.Type {
	case "create_session":
		return s.handleCreateSession(ctx, identity, msg)
	case "join_session":
		return s.handleJoinSession(ctx, identity, msg)
	case "privileged_connect":
		return s.handlePrivilegedConnect(ctx, identity, roles, msg)
	case "end_session":
		return s.broker.EndSession(ctx, identity)
	case "toggle_audio":
		return s.broker.ToggleAudio(ctx, identity)
	case "camera_frame":
		return s.handleFrame(ctx, identity, domain.ChannelVideo, msg)
	case "audio_frame":
		return s.handleFrame(ctx, identity, domain.ChannelAudio, msg)
	case "heartbeat":
		s.broker.Heartbeat(ctx, identity)
		return nil
	case "list_live_users":
		_, err := s.broker.ListLiveUsers(ctx, identity, roles)
		return err
	case "":
		return fmt.Errorf("message type is required")
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) handleCreateSession(ctx context.Context, identity domain.Identity, msg SignalMessage) error {
	var payload CreateSessionPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("invalid create_session payload: %w", err)
		}
	}

	code := payload.Code
	if code == "" {
		code = domain.SessionCode(utils.GenerateSessionCode())
	}
	if err := validation.ValidateSessionCode(string(code)); err != nil {
		return err
	}

	_, err := s.broker.CreateSession(ctx, identity, code, domain.MediaRequest{Audio: payload.AudioEnabled})
	return err
}

func (s *WebSocketServer) handleJoinSession(ctx context.Context, identity domain.Identity, msg SignalMessage) error {
	var payload JoinSessionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid join_session payload: %w", err)
	}
	if err := validation.ValidateSessionCode(string(payload.Code)); err != nil {
		return err
	}

	return s.broker.JoinSession(ctx, identity, payload.Code, domain.MediaRequest{Audio: payload.AudioEnabled})
}

func (s *WebSocketServer) handlePrivilegedConnect(ctx context.Context, identity domain.Identity, roles []domain.Role, msg SignalMessage) error {
	var payload PrivilegedConnectPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid privileged_connect payload: %w", err)
	}
	if err := validation.ValidateIdentity(string(payload.Target)); err != nil {
		return err
	}

	return s.broker.PrivilegedConnect(ctx, identity, roles, payload.Target, domain.MediaRequest{Audio: payload.AudioEnabled})
}

func (s *WebSocketServer) handleFrame(ctx context.Context, identity domain.Identity, channel domain.MediaChannel, msg SignalMessage) error {
	var payload FramePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid frame payload: %w", err)
	}
	return s.broker.ForwardFrame(ctx, identity, channel, payload.Data)
}

// PublishEvent implements ports.Notifier: the event is delivered only to the
// named identity's own socket.
func (s *WebSocketServer) PublishEvent(ctx context.Context, to domain.Identity, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.send(to, outboundMessage{Type: string(event.EventType()), Payload: payload})
}

// PublishMedia implements ports.Notifier: the opaque payload is forwarded
// verbatim to the peer's private channel for the media type.
func (s *WebSocketServer) PublishMedia(ctx context.Context, to domain.Identity, from domain.Identity, channel domain.MediaChannel, payload []byte) error {
	msgType := "camera_frame"
	if channel == domain.ChannelAudio {
		msgType = "audio_frame"
	}

	data, err := json.Marshal(FramePayload{Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return s.send(to, outboundMessage{Type: msgType, From: from, Payload: data})
}

func (s *WebSocketServer) send(to domain.Identity, msg outboundMessage) error {
	s.mu.RLock()
	conn, exists := s.connections[to]
	lock := s.writeLocks[to]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("identity %s not connected", to)
	}

	lock.Lock()
	defer lock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(msg)
}

func (s *WebSocketServer) sendError(to domain.Identity, message string) {
	payload, _ := json.Marshal(domain.ErrorEvent{Message: message})
	if err := s.send(to, outboundMessage{Type: string(domain.EventError), Payload: payload}); err != nil {
		s.logger.Debugw("failed to send error event", "identity", to, "error", err)
	}
}

func (s *WebSocketServer) IsConnected(identity domain.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.connections[identity]
	return exists
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
