package services

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Websocket frame types exchanged with chat clients.
const (
	FrameConnectionEstablished = "connection_established"
	FrameSendMessage           = "send_message"
	FrameMessageSent           = "message_sent"
	FrameNewMessage            = "new_message"
	FrameError                 = "error"
)

// ChatFrame is the JSON envelope for every websocket message in both
// directions. Inbound frames may omit type: a frame carrying content is a
// message send.
type ChatFrame struct {
	Type            string      `json:"type,omitempty"`
	RoomID          uint        `json:"room_id,omitempty"`
	Content         string      `json:"content,omitempty"`
	IsSystemMessage bool        `json:"is_system_message,omitempty"`
	Message         interface{} `json:"message,omitempty"`
	Error           string      `json:"error,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Persistent      *bool       `json:"persistent,omitempty"`
}

type chatClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *chatClient) writeJSON(frame ChatFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(frame)
}

// ConnectionManager tracks live websocket connections per chat room. A user
// holds at most one connection per room; a newer connection replaces the
// older one.
type ConnectionManager struct {
	mu    sync.RWMutex
	rooms map[uint]map[uint]*chatClient
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{rooms: make(map[uint]map[uint]*chatClient)}
}

// Connect registers the connection and acknowledges it with a
// connection_established frame.
func (m *ConnectionManager) Connect(roomID, userID uint, conn *websocket.Conn) {
	client := &chatClient{conn: conn}

	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		room = make(map[uint]*chatClient)
		m.rooms[roomID] = room
	}
	previous := room[userID]
	room[userID] = client
	m.mu.Unlock()

	if previous != nil {
		previous.conn.Close()
	}
	client.writeJSON(ChatFrame{Type: FrameConnectionEstablished, RoomID: roomID})
}

// Disconnect drops the connection from the registry. It is a no-op when the
// registered connection is not the one being closed, so a replaced connection
// cannot evict its successor.
func (m *ConnectionManager) Disconnect(roomID, userID uint, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	if client, ok := room[userID]; ok && client.conn == conn {
		delete(room, userID)
	}
	if len(room) == 0 {
		delete(m.rooms, roomID)
	}
}

// Broadcast sends the frame to every connection in the room except
// excludeUserID. Delivery is best effort; failed connections are dropped.
func (m *ConnectionManager) Broadcast(roomID uint, excludeUserID uint, frame ChatFrame) {
	m.mu.RLock()
	targets := make(map[uint]*chatClient)
	for userID, client := range m.rooms[roomID] {
		if userID != excludeUserID {
			targets[userID] = client
		}
	}
	m.mu.RUnlock()

	for userID, client := range targets {
		if err := client.writeJSON(frame); err != nil {
			client.conn.Close()
			m.Disconnect(roomID, userID, client.conn)
		}
	}
}

// SendTo sends the frame to one user in the room, if connected.
func (m *ConnectionManager) SendTo(roomID, userID uint, frame ChatFrame) {
	m.mu.RLock()
	client := m.rooms[roomID][userID]
	m.mu.RUnlock()

	if client == nil {
		return
	}
	if err := client.writeJSON(frame); err != nil {
		client.conn.Close()
		m.Disconnect(roomID, userID, client.conn)
	}
}

// Connected reports whether the user has a live connection in the room.
func (m *ConnectionManager) Connected(roomID, userID uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID][userID]
	return ok
}

// Global connection manager instance
var Manager = NewConnectionManager()
