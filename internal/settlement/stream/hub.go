// Package stream entrega desfechos de liquidação em tempo real via WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

// ReplayFunc busca o último desfecho conhecido de uma aposta (ok=false se não houver)
type ReplayFunc func(ctx context.Context, betID string) (events.WagerSettled, bool, error)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla permite um único writer por conexão
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por aposta
// subs: betID (ou "*") -> conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	replay   ReplayFunc

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

// NewHub cria o hub; replay pode ser nil
func NewHub(allowOrigin func(r *http.Request) bool, replay ReplayFunc, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		replay:   replay,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão.
// Cada cliente pode assinar várias apostas.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.BetID == "" {
				_ = c.writeJSON(map[string]string{"type": "error", "error": "betId is required"})
				continue
			}
			h.subscribe(msg.BetID, c)
			h.sendLast(r.Context(), c, msg.BetID)
		case "unsubscribe":
			h.unsubscribe(msg.BetID, c)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}
}

func (h *Hub) subscribe(betID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[betID]; !ok {
		h.subs[betID] = make(map[*client]struct{})
	}
	h.subs[betID][c] = struct{}{}
}

func (h *Hub) unsubscribe(betID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[betID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, betID)
		}
	}
}

// drop remove a conexão de todas as assinaturas
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// sendLast reenvia o último desfecho da aposta para quem acabou de assinar
func (h *Hub) sendLast(ctx context.Context, c *client, betID string) {
	if h.replay == nil || betID == AllBets {
		return
	}
	ev, ok, err := h.replay(ctx, betID)
	if err != nil {
		h.log.Warn("ws replay failed", zap.String("betId", betID), zap.Error(err))
		return
	}
	if ok {
		_ = c.writeJSON(ev)
	}
}

// Subscribers conta clientes inscritos numa aposta (ou "*")
func (h *Hub) Subscribers(betID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[betID])
}

// Broadcast envia o desfecho para os inscritos na aposta e para os inscritos em "*"
func (h *Hub) Broadcast(ev events.WagerSettled) {
	h.mu.RLock()
	targets := make(map[*client]struct{}, len(h.subs[ev.BetID])+len(h.subs[AllBets]))
	for c := range h.subs[ev.BetID] {
		targets[c] = struct{}{}
	}
	for c := range h.subs[AllBets] {
		targets[c] = struct{}{}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for c := range targets {
		_ = c.writeRaw(b)
	}
}
