// Package monitor implements the Live Monitor Hub (C11): a single
// operator-facing WebSocket connection that gets pushed a running feed
// of tier batch completions and security incidents.
//
// Adapted from internal/websocket/hub.go's single-active-connection
// pattern (one connected dashboard at a time; a new connection evicts
// the old one rather than fanning out to many).
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/scheduler"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventType distinguishes the two kinds of events pushed to the
// connected dashboard.
type EventType string

const (
	EventTierBatchComplete EventType = "tier_batch_complete"
	EventSecurityIncident  EventType = "security_incident"
)

// Event is the envelope written to the WebSocket connection.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// TierBatchResult is the payload for EventTierBatchComplete.
type TierBatchResult struct {
	Tier              int     `json:"tier"`
	TotalJobs         int     `json:"total_jobs"`
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	TotalTokens       int     `json:"total_tokens"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
	JobsPerSecond     float64 `json:"jobs_per_second"`
}

// Hub manages a single active WebSocket client, broadcasting domain
// events to it as they occur. A newly connecting client displaces
// whoever was previously connected.
type Hub struct {
	client     *client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mutex      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Run pumps the register/unregister/broadcast channels until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mutex.Lock()
			if h.client != nil {
				close(h.client.send)
			}
			h.client = c
			h.mutex.Unlock()
			log.Info().Msg("monitor: dashboard connected")

		case c := <-h.unregister:
			h.mutex.Lock()
			if h.client == c {
				close(h.client.send)
				h.client = nil
				log.Info().Msg("monitor: dashboard disconnected")
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			if h.client != nil {
				select {
				case h.client.send <- message:
				default:
					log.Warn().Msg("monitor: dashboard send buffer full, dropping connection")
					close(h.client.send)
					h.client = nil
				}
			}
			h.mutex.RUnlock()
		}
	}
}

func (h *Hub) broadcastEvent(evtType EventType, data any) {
	h.mutex.RLock()
	connected := h.client != nil
	h.mutex.RUnlock()
	if !connected {
		return
	}

	evt := Event{Type: evtType, Data: data, Timestamp: time.Now().Unix()}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("monitor: failed to marshal event")
		return
	}
	h.broadcast <- payload
}

// PublishTierBatchResult pushes a completed batch's stats to the
// connected dashboard. A no-op if nobody is connected.
func (h *Hub) PublishTierBatchResult(tier int, stats scheduler.BatchStats) {
	h.broadcastEvent(EventTierBatchComplete, TierBatchResult{
		Tier:              tier,
		TotalJobs:         stats.TotalJobs,
		Successful:        stats.Successful,
		Failed:            stats.Failed,
		TotalTokens:       stats.TotalTokens,
		AvgResponseTimeMS: stats.AvgResponseTimeMS,
		JobsPerSecond:     stats.JobsPerSecond,
	})
}

// PublishIncident pushes a security incident to the connected
// dashboard as it is detected, independent of the JSONL/relational
// audit trail eventlog.Sink already maintains.
func (h *Hub) PublishIncident(incident eventlog.Incident) {
	h.broadcastEvent(EventSecurityIncident, incident)
}

// ServeWS upgrades the request to a WebSocket connection and registers
// it as the hub's (sole) active client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("monitor: WebSocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("monitor: read pump closing")
			}
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
