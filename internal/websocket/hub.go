package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	// done is closed by the hub once the client is dropped
	done chan struct{}
}

// Hub fans job state changes out to the sockets watching each job
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stopped    chan struct{}

	log zerolog.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		stopped:    make(chan struct{}),
		log:        logger.With(log, "websocket"),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			h.log.Debug().Str("jobId", client.JobID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debug().Str("jobId", client.JobID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client. Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.done)
		if len(clients) == 0 {
			delete(h.clients, client.JobID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.remove(client)
		}
	}
}

// Subscribers returns how many sockets watch jobID
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// JobUpdated translates a state change into a socket message. It never
// blocks; updates are dropped when the broadcast buffer is full.
func (h *Hub) JobUpdated(jobID string, state model.JobState) {
	var msg interface{}
	switch state.Status() {
	case model.JobStatusQueued, model.JobStatusInProgress:
		msg = model.WSProgressMessage{
			Type:     model.WSMessageTypeProgress,
			JobID:    jobID,
			Progress: state.Progress(),
			Status:   state.Status(),
		}
	case model.JobStatusCompleted:
		msg = model.WSCompleteMessage{
			Type:     model.WSMessageTypeComplete,
			JobID:    jobID,
			VideoURL: state.ArtifactLocation(),
		}
	case model.JobStatusFailed:
		msg = model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: jobID,
			Error: model.WSError{Code: "RENDER_FAILED", Message: state.ErrorMessage()},
		}
	case model.JobStatusCanceled:
		msg = model.WSProgressMessage{
			Type:   model.WSMessageTypeCanceled,
			JobID:  jobID,
			Status: state.Status(),
		}
	default:
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal job update")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	default:
		h.log.Warn().Str("jobId", jobID).Msg("broadcast buffer full, dropping update")
	}
}

const writeWait = 10 * time.Second

// conn is the part of *websocket.Conn the hub uses.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// HandleConnection handles a WebSocket connection. It returns only after the
// writer goroutine has stopped using c.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	h.serve(c, jobID)
}

func (h *Hub) serve(c conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Send:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}
	if wc, ok := c.(*websocket.Conn); ok {
		client.Conn = wc
	}

	select {
	case h.register <- client:
	case <-h.stopped:
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(c, client)
	}()

	defer func() {
		select {
		case h.unregister <- client:
		case <-h.stopped:
		}
		// done is closed by now, either by unregister or by closeAll
		<-writerDone
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("jobId", jobID).Msg("websocket read error")
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- data:
			case <-client.done:
			default:
			}
		}
	}
}

func (h *Hub) writeLoop(c conn, client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	write := func(messageType int, data []byte) error {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		return c.WriteMessage(messageType, data)
	}

	for {
		select {
		case <-client.done:
			write(websocket.CloseMessage, []byte{})
			return

		case message := <-client.Send:
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
