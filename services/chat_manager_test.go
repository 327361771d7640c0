package services

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatTestServer upgrades every request and registers the connection under
// the room and user ids passed as query params.
func chatTestServer(t *testing.T, manager *ConnectionManager) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID, _ := strconv.ParseUint(r.URL.Query().Get("room"), 10, 32)
		userID, _ := strconv.ParseUint(r.URL.Query().Get("user"), 10, 32)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		manager.Connect(uint(roomID), uint(userID), conn)

		// Drain frames until the peer goes away.
		go func() {
			defer manager.Disconnect(uint(roomID), uint(userID), conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(server.Close)
	return server
}

func dialChat(t *testing.T, server *httptest.Server, roomID, userID uint) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") +
		"/?room=" + strconv.FormatUint(uint64(roomID), 10) +
		"&user=" + strconv.FormatUint(uint64(userID), 10)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ChatFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame ChatFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestConnectSendsEstablishedFrame(t *testing.T) {
	manager := NewConnectionManager()
	server := chatTestServer(t, manager)

	conn := dialChat(t, server, 1, 10)
	frame := readFrame(t, conn)
	assert.Equal(t, FrameConnectionEstablished, frame.Type)
	assert.Equal(t, uint(1), frame.RoomID)
	assert.True(t, manager.Connected(1, 10))
}

func TestBroadcastSkipsSender(t *testing.T) {
	manager := NewConnectionManager()
	server := chatTestServer(t, manager)

	sender := dialChat(t, server, 1, 10)
	receiver := dialChat(t, server, 1, 11)
	readFrame(t, sender)
	readFrame(t, receiver)

	manager.Broadcast(1, 10, ChatFrame{Type: FrameNewMessage, RoomID: 1, Content: "hello"})

	frame := readFrame(t, receiver)
	assert.Equal(t, FrameNewMessage, frame.Type)
	assert.Equal(t, "hello", frame.Content)

	// The sender must not get its own broadcast back.
	sender.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var unexpected ChatFrame
	err := sender.ReadJSON(&unexpected)
	assert.Error(t, err)
}

func TestBroadcastScopedToRoom(t *testing.T) {
	manager := NewConnectionManager()
	server := chatTestServer(t, manager)

	inRoom := dialChat(t, server, 1, 10)
	otherRoom := dialChat(t, server, 2, 11)
	readFrame(t, inRoom)
	readFrame(t, otherRoom)

	manager.Broadcast(1, 0, ChatFrame{Type: FrameNewMessage, RoomID: 1})

	frame := readFrame(t, inRoom)
	assert.Equal(t, FrameNewMessage, frame.Type)

	otherRoom.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var unexpected ChatFrame
	err := otherRoom.ReadJSON(&unexpected)
	assert.Error(t, err)
}

func TestDisconnectRemovesOnlyOwnConnection(t *testing.T) {
	manager := NewConnectionManager()
	server := chatTestServer(t, manager)

	conn := dialChat(t, server, 1, 10)
	readFrame(t, conn)
	require.True(t, manager.Connected(1, 10))

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for manager.Connected(1, 10) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, manager.Connected(1, 10))
}

func TestConcurrentBroadcasts(t *testing.T) {
	manager := NewConnectionManager()
	server := chatTestServer(t, manager)

	receiver := dialChat(t, server, 1, 20)
	readFrame(t, receiver)

	const frames = 50
	var wg sync.WaitGroup
	for i := 0; i < frames; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.Broadcast(1, 0, ChatFrame{Type: FrameNewMessage, RoomID: 1})
		}()
	}
	wg.Wait()

	for i := 0; i < frames; i++ {
		frame := readFrame(t, receiver)
		assert.Equal(t, FrameNewMessage, frame.Type)
	}
}
