package internal

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eventchat/internal/storage"
)

// a group broadcasts pushed messages to every connection joined to one event.
type Group struct {
	eventID    string
	members    map[*wsConn]bool
	register   chan *wsConn
	unregister chan *wsConn
	broadcast  chan []byte
	mutex      sync.RWMutex
}

func newGroup(eventID string) *Group {
	return &Group{
		eventID:    eventID,
		members:    make(map[*wsConn]bool),
		register:   make(chan *wsConn),
		unregister: make(chan *wsConn),
		broadcast:  make(chan []byte, 256),
	}
}

func (group *Group) size() int {
	group.mutex.RLock()
	defer group.mutex.RUnlock()
	return len(group.members)
}

func (group *Group) run() {
	for {
		select {
		case member := <-group.register:
			group.mutex.Lock()
			group.members[member] = true
			group.mutex.Unlock()
		case member := <-group.unregister:
			group.mutex.Lock()
			if _, exists := group.members[member]; exists {
				delete(group.members, member)
				close(member.send)
			}
			group.mutex.Unlock()
		case payload := <-group.broadcast:
			// Push to every joined connection, the sender included. A member
			// whose send buffer is full gets dropped so the group stays healthy.
			group.mutex.Lock()
			for member := range group.members {
				select {
				case member.send <- payload:
				default:
					close(member.send)
					delete(group.members, member)
				}
			}
			group.mutex.Unlock()
		}
	}
}

// wsConn wraps one websocket connection with its buffered send queue and the
// authenticated identity resolved during the upgrade.
type wsConn struct {
	server       *Server
	group        *Group
	conn         *websocket.Conn
	send         chan []byte
	messageTimes []time.Time
	userID       int64
	username     string
	token        string
}

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 8192
	rateLimitWindow = 3 * time.Second
	rateLimitBurst  = 5
)

func newWSConn(server *Server, conn *websocket.Conn, userID int64, username, token string) *wsConn {
	return &wsConn{
		server:       server,
		conn:         conn,
		send:         make(chan []byte, 256),
		messageTimes: make([]time.Time, 0, rateLimitBurst),
		userID:       userID,
		username:     username,
		token:        token,
	}
}

func (c *wsConn) readPump() {
	defer func() {
		if c.group != nil {
			c.group.unregister <- c
			c.server.presence.Leave(c.group.eventID)
			c.server.hub.deleteGroupIfEmpty(c.group.eventID)
		}
		c.conn.Close()
		c.server.metrics.DecConn()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			// normal close or read error; break so the deferred cleanup runs.
			break
		}
		frame, err := decodeFrame(payload)
		if err != nil {
			c.push(errorFrame(errCodeBadFrame, "unparseable frame"))
			continue
		}
		switch frame.Type {
		case frameJoinEvent:
			c.handleJoin(frame)
		case frameSendMessage:
			c.handleSend(frame)
		default:
			c.push(errorFrame(errCodeBadFrame, "unknown frame type "+frame.Type))
		}
	}
}

// handleJoin subscribes the connection to the event's broadcast group. The
// join must come before any send and only once per connection.
func (c *wsConn) handleJoin(frame hubFrame) {
	eventID := strings.TrimSpace(frame.EventID)
	if eventID == "" {
		c.push(errorFrame(errCodeBadFrame, "join_event requires event_id"))
		return
	}
	if c.group != nil {
		c.push(errorFrame(errCodeBadFrame, "already joined"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	event, err := c.server.store.GetEvent(ctx, eventID)
	cancel()
	if err != nil {
		log.Printf("join lookup for event %s: %v", eventID, err)
		c.push(errorFrame(errCodeInternal, "event lookup failed"))
		return
	}
	if event == nil {
		c.push(errorFrame(errCodeNotFound, "no such event"))
		return
	}
	group := c.server.hub.getOrCreateGroup(eventID)
	c.group = group
	group.register <- c
	c.server.presence.Join(eventID)
}

// handleSend validates the remote call, persists the message with a
// server-assigned id and timestamp, then broadcasts it to the whole group.
func (c *wsConn) handleSend(frame hubFrame) {
	if c.group == nil {
		c.push(errorFrame(errCodeNotJoined, "join_event must come first"))
		return
	}
	// the session was checked at the handshake, but a logout or expiry since
	// then must not keep an open connection sending.
	checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_, err := c.server.authenticateToken(checkCtx, c.token)
	cancel()
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			c.push(errorFrame(errCodeUnauthorized, "session expired or revoked"))
			return
		}
		log.Printf("session check for user %d: %v", c.userID, err)
		c.push(errorFrame(errCodeInternal, "session check failed"))
		return
	}
	now := time.Now()
	if !c.allowMessage(now) {
		c.push(errorFrame(errCodeRateLimited, "sending too quickly, wait a moment"))
		return
	}
	text := strings.TrimSpace(frame.Text)
	if text == "" {
		c.push(errorFrame(errCodeBadFrame, "send_message requires text"))
		return
	}
	if frame.EventID != "" && frame.EventID != c.group.eventID {
		c.push(errorFrame(errCodeBadFrame, "send_message event_id does not match joined event"))
		return
	}
	// the sender's identity comes from the authenticated session, never the frame.
	message := ChatMessage{
		MessageID: uuid.NewString(),
		EventID:   c.group.eventID,
		UserID:    c.userID,
		UserName:  c.username,
		Text:      text,
		Ts:        now.Unix(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = c.server.store.InsertMessage(ctx, storage.Message{
		MessageID: message.MessageID,
		EventID:   message.EventID,
		UserID:    message.UserID,
		UserName:  message.UserName,
		Text:      message.Text,
		Ts:        message.Ts,
	})
	cancel()
	if err != nil {
		log.Printf("persist message for event %s: %v", message.EventID, err)
		c.push(errorFrame(errCodeInternal, "message not stored"))
		return
	}
	encoded, err := encodeFrame(hubFrame{Type: frameReceiveMessage, Message: &message})
	if err != nil {
		return
	}
	c.group.broadcast <- encoded
	c.server.metrics.IncMessage()
}

// push queues a frame for this connection only, dropping it if the queue is full.
func (c *wsConn) push(frame hubFrame) {
	payload, err := encodeFrame(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) allowMessage(now time.Time) bool {
	cutoff := now.Add(-rateLimitWindow)
	idx := 0
	for _, ts := range c.messageTimes {
		if ts.After(cutoff) {
			c.messageTimes[idx] = ts
			idx++
		}
	}
	c.messageTimes = c.messageTimes[:idx]
	if len(c.messageTimes) >= rateLimitBurst {
		return false
	}
	c.messageTimes = append(c.messageTimes, now)
	return true
}
