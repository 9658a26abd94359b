package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/inkwell-app/inkwell-backend/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub tracks live websocket connections and fans snapshot refreshes out to
// them. One account may hold several connections at once, each with its own
// set of subscriptions.
type Hub struct {
	clients    map[*Client]struct{}
	byEmail    map[string]map[*Client]struct{}
	source     SnapshotSource
	register   chan *Client
	unregister chan *Client
	publish    chan string
	ctx        context.Context
	cancel     context.CancelFunc
	mutex      sync.RWMutex
}

// NewHub creates a hub backed by the given snapshot source and starts its
// main loop.
func NewHub(source SnapshotSource) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		byEmail:    make(map[string]map[*Client]struct{}),
		source:     source,
		register:   make(chan *Client, 32),
		unregister: make(chan *Client, 32),
		publish:    make(chan string, 256),
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.run()
	return h
}

// HandleWS upgrades an HTTP request to a websocket connection. The token is
// carried in the query string because browsers cannot set headers on a
// websocket handshake.
func (h *Hub) HandleWS(ctx *gin.Context) {
	tokenString := strings.TrimSpace(ctx.Query("token"))
	if tokenString == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40101, "token query parameter missing")
		return
	}
	if utils.IsTokenBlacklisted(tokenString) {
		utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
		return
	}
	claims, err := utils.ParseToken(tokenString)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		utils.Sugar.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(claims.UserID, strings.ToLower(claims.Email), conn, h)
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Publish schedules a snapshot refresh for every connection owned by the
// given recipient.
func (h *Hub) Publish(recipientEmail string) {
	select {
	case h.publish <- strings.ToLower(recipientEmail):
	case <-h.ctx.Done():
	}
}

// Shutdown closes every connection and stops the hub loop.
func (h *Hub) Shutdown(ctx context.Context) {
	utils.Sugar.Info("shutting down realtime hub")
	h.cancel()

	h.mutex.Lock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*Client]struct{})
	h.byEmail = make(map[string]map[*Client]struct{})
	h.mutex.Unlock()
}

func (h *Hub) run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case email := <-h.publish:
			h.fanOut(email)
		case <-ticker.C:
			h.cleanInactiveConnections()
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = struct{}{}
	set, ok := h.byEmail[client.Email]
	if !ok {
		set = make(map[*Client]struct{})
		h.byEmail[client.Email] = set
	}
	set[client] = struct{}{}
	utils.Sugar.Debugf("realtime client registered email=%s conn=%s", client.Email, client.ID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if set, ok := h.byEmail[client.Email]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byEmail, client.Email)
		}
	}
	client.Close()
	utils.Sugar.Debugf("realtime client unregistered email=%s conn=%s", client.Email, client.ID)
}

func (h *Hub) fanOut(email string) {
	h.mutex.RLock()
	targets := make([]*Client, 0, 2)
	for client := range h.byEmail[email] {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		client.pushAll()
	}
}

func (h *Hub) cleanInactiveConnections() {
	h.mutex.RLock()
	stale := make([]*Client, 0)
	for client := range h.clients {
		if !client.IsActive(2 * time.Minute) {
			stale = append(stale, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range stale {
		h.unregister <- client
	}
}

// ConnectionCount reports how many connections are registered.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
