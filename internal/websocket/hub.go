package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/middleware"
	"flashcards-backend/internal/models"
	"flashcards-backend/internal/services"
)

const (
	channelPrefix = "flashcards:progress:"
	writeWait     = 5 * time.Second
)

type TokenParser interface {
	Parse(token string) (*middleware.Session, error)
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub streams pipeline stage events to clients watching a request id. With
// Redis configured, events go through pub/sub so any instance can serve the
// socket; otherwise they are delivered in process.
type Hub struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	redisClient *redis.Client
	tokens      TokenParser
	upgrader    websocket.Upgrader
	events      chan models.StageEvent
	log         *logger.Logger
}

// NewHub builds a hub. redisClient may be nil. When tokens is non-nil a valid
// session token is required in the token query parameter.
func NewHub(redisClient *redis.Client, tokens TokenParser, allowedOrigins []string, log *logger.Logger) *Hub {
	h := &Hub{
		clients:     make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		tokens:      tokens,
		events:      make(chan models.StageEvent, 256),
		log:         log.With("component", "websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return checkOrigin(allowedOrigins, r) },
	}
	return h
}

func checkOrigin(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return origin == middleware.TelegramWebOrigin
}

// StageChanged queues the event for delivery. It never blocks; events are
// dropped when the queue is full.
func (h *Hub) StageChanged(requestID uuid.UUID, stage services.Stage, err error) {
	evt := models.StageEvent{
		Type:      "stage",
		RequestID: requestID,
		Stage:     string(stage),
		At:        time.Now().UTC(),
	}
	if err != nil {
		evt.Error = apperr.PublicMessage(err)
	}
	select {
	case h.events <- evt:
	default:
		h.log.Warn("progress event dropped", "request_id", requestID.String(), "stage", string(stage))
	}
}

// Run delivers queued events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case evt := <-h.events:
			h.publish(ctx, evt)
		}
	}
}

func (h *Hub) publish(ctx context.Context, evt models.StageEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if h.redisClient != nil {
		if err := h.redisClient.Publish(ctx, channelPrefix+evt.RequestID.String(), data).Err(); err != nil {
			h.log.Warn("progress publish failed", "request_id", evt.RequestID.String(), "error", err)
		}
		return
	}
	h.broadcast(evt.RequestID, data)
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(r.URL.Query().Get("request_id"))
	if err != nil || requestID == uuid.Nil {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}

	if h.tokens != nil {
		if _, err := h.tokens.Parse(r.URL.Query().Get("token")); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	h.register(requestID, c)

	go func() {
		defer h.unregister(requestID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) register(requestID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[requestID] = append(h.clients[requestID], c)

	if h.redisClient != nil && len(h.clients[requestID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[requestID] = cancel
		go h.subscribe(ctx, requestID)
	}

	h.log.Debug("websocket connected", "request_id", requestID.String(), "total", len(h.clients[requestID]))
}

func (h *Hub) unregister(requestID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	clients := h.clients[requestID]
	for i, existing := range clients {
		if existing == c {
			h.clients[requestID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}

	if len(h.clients[requestID]) == 0 {
		delete(h.clients, requestID)
		if cancel, ok := h.cancelFuncs[requestID]; ok {
			cancel()
			delete(h.cancelFuncs, requestID)
		}
	}

	h.log.Debug("websocket disconnected", "request_id", requestID.String())
}

func (h *Hub) subscribe(ctx context.Context, requestID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, channelPrefix+requestID.String())
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(requestID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(requestID uuid.UUID, data []byte) {
	h.mu.RLock()
	targets := append([]*client(nil), h.clients[requestID]...)
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.log.Debug("websocket write failed", "request_id", requestID.String(), "error", err)
		}
	}
}

// Watchers reports how many sockets follow requestID.
func (h *Hub) Watchers(requestID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[requestID])
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			c.conn.Close()
		}
		if cancel, ok := h.cancelFuncs[id]; ok {
			cancel()
		}
	}
	h.clients = make(map[uuid.UUID][]*client)
	h.cancelFuncs = make(map[uuid.UUID]context.CancelFunc)
}
