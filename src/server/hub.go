package server

import (
	"encoding/json"
	"net/http"

	"nepse-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *APIServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.connections.Add(1)
			// Send initial state on connect
			client.send <- s.initialState(client.symbols)

		case sub := <-s.subscribe:
			if _, ok := s.clients[sub.client]; !ok {
				continue
			}
			sub.client.symbols = sub.symbols
			select {
			case sub.client.send <- s.initialState(sub.symbols):
			default:
			}

		case client := <-s.unregister:
			s.dropClient(client)

		case message := <-s.broadcast:
			s.mergeState(message)

			for client := range s.clients {
				out := filterUpdate(message, client.symbols)
				if out == nil {
					continue
				}
				select {
				case client.send <- out:
				default:
					// Client too slow, disconnect to keep the hub moving
					s.dropClient(client)
				}
			}

		case <-s.quit:
			for client := range s.clients {
				s.dropClient(client)
			}
			return
		}
	}
}

func (s *APIServer) dropClient(client *Client) {
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
		s.connections.Add(-1)
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues an update for every connected client. A full queue drops
// the update; the next one carries fresher data anyway.
func (s *APIServer) Broadcast(payload *models.MLatestData) {
	if payload == nil {
		return
	}
	if payload.Type == "" {
		payload.Type = "UPDATE"
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = s.Clock.Now().UnixMilli()
	}

	select {
	case s.broadcast <- payload:
	default:
		s.Logger.Warning("Broadcast queue full, dropping %s update", payload.Type)
	}
}

// -----------------------------------------------------------------------------

// mergeState folds an update into the state sent to new clients.
func (s *APIServer) mergeState(update *models.MLatestData) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	if update.Index != nil {
		idx := *update.Index
		s.latest.Index = &idx
		s.recent.Append(snapshotOf(idx, update.Timestamp))
	}
	for _, q := range update.Prices {
		s.prices[q.Symbol] = q
	}
	for _, j := range update.Jobs {
		s.latest.Jobs = upsertJob(s.latest.Jobs, j)
	}
	if update.Timestamp > s.latest.Timestamp {
		s.latest.Timestamp = update.Timestamp
	}
}

// initialState is the full picture a client receives on connect or subscribe.
func (s *APIServer) initialState(symbols []string) *models.MLatestData {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	out := &models.MLatestData{
		Type:      "INITIAL",
		Recent:    s.recent.GetAll(),
		Prices:    sortedQuotes(s.prices, symbols),
		Jobs:      append([]models.MJobStatus(nil), s.latest.Jobs...),
		Timestamp: s.latest.Timestamp,
	}
	if s.latest.Index != nil {
		idx := *s.latest.Index
		out.Index = &idx
	}
	return out
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MLatestData, 256),
	}

	select {
	case s.register <- client:
	case <-s.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe command and answers with a fresh
// INITIAL state limited to the new symbol set. An empty set means all.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	select {
	case s.subscribe <- subscription{client: client, symbols: normalizeSymbols(cmd.Symbols)}:
	case <-s.quit:
	}
}
