package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/events"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientQueue    = 64
)

// Message types sent over the event stream.
const (
	MessageTypeAlertEvent = "alert_event"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// Message is one frame of the event stream.
type Message struct {
	Type string     `json:"type"`
	Data *EventData `json:"data,omitempty"`
}

// EventData carries a lifecycle event. Alert is omitted for replayed
// history, which only keeps the formatted form.
type EventData struct {
	Event events.FormattedEvent `json:"event"`
	Alert *alerts.RiskAlert     `json:"alert,omitempty"`
}

// hub fans lifecycle events out to connected websocket clients and keeps a
// short history for clients that ask for a replay on connect.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	history *events.RingBuffer
}

func newHub(historySize int) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		history: events.NewRingBuffer(historySize),
	}
}

// publish is registered as an alerts.Listener. A client whose queue is full
// is disconnected rather than allowed to stall the manager.
func (h *hub) publish(ev alerts.Event) {
	fe := events.FormatEvent(ev)
	alert := ev.Alert.Clone()
	msg := Message{Type: MessageTypeAlertEvent, Data: &EventData{Event: fe, Alert: &alert}}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.history.Add(fe)
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logging.Warn().Uint64("client", c.id).Msg("websocket client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// register adds c after queueing up to replay historical events, oldest
// first. History and registration happen under one lock so a replayed
// event is never delivered twice.
func (h *hub) register(c *client, replay int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if replay > 0 {
		for _, fe := range h.history.Recent(min(replay, cap(c.send))) {
			c.send <- Message{Type: MessageTypeAlertEvent, Data: &EventData{Event: fe}}
		}
	}
	h.clients[c] = struct{}{}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
	logging.Debug().Uint64("client", c.id).Int("total_clients", len(h.clients)).Msg("websocket client connected")
	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WebSocketClients.Set(float64(len(h.clients)))
	logging.Debug().Uint64("client", c.id).Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
}

// count returns the number of connected clients.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close disconnects every client and refuses new ones.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// client is one websocket connection.
type client struct {
	id   uint64
	hub  *hub
	conn *websocket.Conn
	send chan Message
}

// readPump consumes client frames, answering pings, until the connection
// fails. It owns unregistration.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client", c.id).Msg("unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			c.hub.mu.Lock()
			if _, ok := c.hub.clients[c]; ok {
				select {
				case c.send <- Message{Type: MessageTypePong}:
				default:
				}
			}
			c.hub.mu.Unlock()
		}
	}
}

// writePump delivers queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
