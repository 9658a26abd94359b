package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// subscription is one live query registered on a connection. Subscriptions on
// the same connection are independent: cancelling one leaves the rest active.
type subscription struct {
	ID    string
	Scope string
	Limit int
}

// Client represents one authenticated websocket connection.
type Client struct {
	ID     string
	UserID uint
	Email  string
	Conn   *websocket.Conn
	Send   chan []byte

	hub        *Hub
	subs       map[string]subscription
	subsMu     sync.Mutex
	lastActive time.Time
	closed     bool
	closeMutex sync.RWMutex
}

// NewClient creates a client for an upgraded connection.
func NewClient(userID uint, email string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:         generateConnID(userID),
		UserID:     userID,
		Email:      email,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		hub:        hub,
		subs:       make(map[string]subscription),
		lastActive: time.Now(),
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.updateActivity()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		c.updateActivity()
		if len(message) > 0 {
			c.handleFrame(message)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.writeMessage(message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(message []byte) {
	var frame clientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.enqueue(newErrorFrame("", "bad_frame", "malformed frame"))
		return
	}

	switch frame.Action {
	case "subscribe":
		c.handleSubscribe(frame)
	case "unsubscribe":
		c.handleUnsubscribe(frame.ID)
	case "ping":
		c.handlePing()
	default:
		c.enqueue(newErrorFrame(frame.ID, "bad_frame", "unknown action"))
	}
}

func (c *Client) handleSubscribe(frame clientFrame) {
	if frame.ID == "" {
		c.enqueue(newErrorFrame("", "bad_frame", "subscription id required"))
		return
	}
	scope := frame.Scope
	if scope == "" {
		scope = ScopeRecent
	}
	if scope != ScopeRecent && scope != ScopeAll {
		c.enqueue(newErrorFrame(frame.ID, "bad_frame", "unknown scope"))
		return
	}
	limit := frame.Limit
	if scope == ScopeRecent && limit <= 0 {
		limit = DefaultRecentLimit
	}

	sub := subscription{ID: frame.ID, Scope: scope, Limit: limit}
	c.subsMu.Lock()
	c.subs[sub.ID] = sub
	c.subsMu.Unlock()

	c.pushSnapshot(sub)
}

func (c *Client) handleUnsubscribe(id string) {
	if id == "" {
		return
	}
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}

func (c *Client) handlePing() {
	response := struct {
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
	}{
		Type:      "pong",
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(response); err == nil {
		c.enqueue(data)
	}
}

// pushSnapshot resolves and sends the full result set for one subscription.
func (c *Client) pushSnapshot(sub subscription) {
	data, err := c.hub.source.Snapshot(c.Email, sub.Scope, sub.Limit)
	if err != nil {
		if err == ErrNotReady {
			c.enqueue(newErrorFrame(sub.ID, "index_not_ready", "result set is still indexing, retry shortly"))
		} else {
			c.enqueue(newErrorFrame(sub.ID, "snapshot_failed", "could not load snapshot"))
		}
		return
	}

	frame, err := newSnapshotFrame(sub.ID, data)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// pushAll refreshes every active subscription on this connection.
func (c *Client) pushAll() {
	c.subsMu.Lock()
	subs := make([]subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.Unlock()

	for _, sub := range subs {
		c.pushSnapshot(sub)
	}
}

// enqueue drops the frame when the send buffer is full rather than blocking
// the hub on a slow consumer.
func (c *Client) enqueue(data []byte) {
	c.closeMutex.RLock()
	defer c.closeMutex.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) writeMessage(message []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteMessage(websocket.TextMessage, message)
}

// Close closes the client connection.
func (c *Client) Close() {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
		c.Conn.Close()
	}
}

func (c *Client) updateActivity() {
	c.closeMutex.Lock()
	c.lastActive = time.Now()
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.closeMutex.Unlock()
}

// IsActive reports whether the client saw traffic within timeout.
func (c *Client) IsActive(timeout time.Duration) bool {
	c.closeMutex.RLock()
	defer c.closeMutex.RUnlock()
	return !c.closed && time.Since(c.lastActive) < timeout
}

func generateConnID(userID uint) string {
	return fmt.Sprintf("%d_%d", userID, time.Now().UnixNano())
}
