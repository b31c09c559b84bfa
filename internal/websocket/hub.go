package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/adapters/device"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/consultation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Consultations resolves the open consultation a socket is bound to
type Consultations interface {
	Get(id string) (*consultation.Orchestrator, error)
}

// Microphones receives the clinician's microphone stream
type Microphones interface {
	Attach(consultationID string, config repositories.AudioConfig)
	Detach(consultationID string)
	Write(consultationID string, chunk []byte) error
}

// Hub keeps at most one socket per consultation. A newer socket for the same
// consultation replaces the older one.
type Hub struct {
	// Registered clients, keyed by consultation ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	consultations Consultations
	microphones   Microphones
	validator     *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(consultations Consultations, microphones Microphones, validator *MessageValidator, logger *zap.Logger) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		stop:          make(chan struct{}),
		consultations: consultations,
		microphones:   microphones,
		validator:     validator,
		logger:        logger,
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			previous := h.clients[client.consultationID]
			h.clients[client.consultationID] = client
			h.mu.Unlock()
			if previous != nil {
				previous.close()
				h.logger.Info("Client replaced", zap.String("consultationID", client.consultationID))
			}
			h.logger.Info("Client registered", zap.String("consultationID", client.consultationID))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client.consultationID] == client {
				delete(h.clients, client.consultationID)
				h.microphones.Detach(client.consultationID)
			}
			h.mu.Unlock()
			client.close()
			h.logger.Info("Client unregistered", zap.String("consultationID", client.consultationID))

		case <-h.stop:
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Connected reports whether a socket is open for the consultation
func (h *Hub) Connected(consultationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[consultationID]
	return ok
}

// ValidateMicrophone applies the microphone_ready rules to a format announced
// outside the socket
func (h *Hub) ValidateMicrophone(config repositories.AudioConfig) error {
	return h.validator.ValidateMicrophone(config)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	closed    chan struct{}
	closeOnce sync.Once

	consultationID string
	orchestrator   *consultation.Orchestrator

	logger *zap.Logger

	mutex        sync.Mutex
	chunkCount   int
	bytesWritten int
	fullNotified bool
}

// HandleWebSocket upgrades the request and binds the socket to an open
// consultation. The caller authenticates the request.
func (h *Hub) HandleWebSocket(c echo.Context, consultationID string) error {
	o, err := h.consultations.Get(consultationID)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(h, conn, o)
	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
	go client.forwardEvents()

	return nil
}

func newClient(h *Hub, conn *websocket.Conn, o *consultation.Orchestrator) *Client {
	return &Client{
		hub:            h,
		conn:           conn,
		send:           make(chan WriteData, sendBufferSize),
		closed:         make(chan struct{}),
		consultationID: o.ID(),
		orchestrator:   o,
		logger:         h.logger.With(zap.String("consultationID", o.ID())),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.stop:
		c.close()
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still buffered, so the final events reach the
// client before the close frame
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

// forwardEvents relays orchestrator events until the consultation closes or
// the socket goes away
func (c *Client) forwardEvents() {
	events := c.orchestrator.Events()
	for {
		select {
		case event := <-events:
			c.queue(CreateEventMessage(event))

		case <-c.orchestrator.Done():
			for {
				select {
				case event := <-events:
					c.queue(CreateEventMessage(event))
				default:
					c.leave()
					return
				}
			}

		case <-c.closed:
			return
		}
	}
}

// queue serializes a message onto the send buffer, dropping it when the
// client is too slow
func (c *Client) queue(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	case <-c.closed:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

// processMessage processes control messages from the clinician's client
func (c *Client) processMessage(message []byte) {
	result, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.queue(CreateErrorMessage(ErrorCodeInvalidMessage, "Invalid message", err.Error()))
		return
	}

	switch msg := result.(type) {
	case *MicrophoneMessage:
		if msg.Type == MessageTypeMicrophoneReady {
			c.hub.microphones.Attach(c.consultationID, msg.AudioConfig())
			c.mutex.Lock()
			c.fullNotified = false
			c.mutex.Unlock()
			c.logger.Info("Microphone ready",
				zap.String("encoding", msg.Encoding),
				zap.Int("sampleRate", msg.SampleRate))
			c.queue(CreateMicrophoneStatusMessage(true))
			return
		}
		c.hub.microphones.Detach(c.consultationID)
		c.logger.Info("Microphone lost")
		c.queue(CreateMicrophoneStatusMessage(false))

	case *PingMessage:
		c.queue(CreatePongMessage(msg.Data))
	}
}

// processBinaryAudioChunk handles binary audio data
func (c *Client) processBinaryAudioChunk(data []byte) {
	err := c.hub.microphones.Write(c.consultationID, data)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch {
	case err == nil:
		c.chunkCount++
		c.bytesWritten += len(data)
		if c.chunkCount%100 == 0 {
			c.logger.Debug("Audio streaming",
				zap.Int("totalChunks", c.chunkCount),
				zap.String("received", humanize.Bytes(uint64(c.bytesWritten))))
		}

	case errors.Is(err, device.ErrNotCapturing):
		// Chunks outside a recording are expected around start and stop.
		c.logger.Debug("Dropping audio chunk outside recording", zap.Int("size", len(data)))

	case errors.Is(err, device.ErrCaptureFull):
		if !c.fullNotified {
			c.fullNotified = true
			c.logger.Warn("Capture buffer full", zap.String("received", humanize.Bytes(uint64(c.bytesWritten))))
			c.queue(CreateErrorMessage(ErrorCodeCaptureFull, "Recording buffer is full", humanize.Bytes(uint64(c.bytesWritten))))
		}

	default:
		c.logger.Error("Failed to buffer audio chunk", zap.Error(err))
	}
}
