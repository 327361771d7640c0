package routes

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
)

func seedDirectRoom(t *testing.T, users ...*models.User) *models.ChatRoom {
	t.Helper()
	room := models.ChatRoom{}
	if err := storage.DB.Create(&room).Error; err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		participant := models.ChatRoomParticipant{ChatRoomID: room.ID, UserID: u.ID}
		if err := storage.DB.Create(&participant).Error; err != nil {
			t.Fatal(err)
		}
	}
	return &room
}

func dialRoom(t *testing.T, server *httptest.Server, roomID uint, user *models.User) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") +
		fmt.Sprintf("/api/chat/rooms/%d/ws?token=%s", roomID, signTestToken(user))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial room %d: %v", roomID, err)
	}
	t.Cleanup(func() { conn.Close() })

	established := readWsFrame(t, conn)
	if established.Type != services.FrameConnectionEstablished {
		t.Fatalf("expected %s frame, got %s", services.FrameConnectionEstablished, established.Type)
	}
	return conn
}

func readWsFrame(t *testing.T, conn *websocket.Conn) services.ChatFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame services.ChatFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestSocketSurvivesMalformedJSON(t *testing.T) {
	setupTestDB(t)
	app := buildTestApp()
	server := httptest.NewServer(app)
	defer server.Close()

	alice := createTestUser(t, "alice@test.local", "owner", "user")
	bob := createTestUser(t, "bob@test.local", "caregiver", "user")
	room := seedDirectRoom(t, alice, bob)

	conn := dialRoom(t, server, room.ID, alice)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	frame := readWsFrame(t, conn)
	if frame.Type != services.FrameError {
		t.Fatalf("expected an error frame for malformed JSON, got %s", frame.Type)
	}

	// The connection must stay usable afterwards.
	if err := conn.WriteJSON(services.ChatFrame{Type: services.FrameSendMessage, Content: "still here"}); err != nil {
		t.Fatal(err)
	}
	ack := readWsFrame(t, conn)
	if ack.Type != services.FrameMessageSent {
		t.Fatalf("expected %s after recovering, got %s", services.FrameMessageSent, ack.Type)
	}
}

func TestSocketAcceptsTypelessContentFrame(t *testing.T) {
	setupTestDB(t)
	app := buildTestApp()
	server := httptest.NewServer(app)
	defer server.Close()

	alice := createTestUser(t, "alice@test.local", "owner", "user")
	bob := createTestUser(t, "bob@test.local", "caregiver", "user")
	room := seedDirectRoom(t, alice, bob)

	conn := dialRoom(t, server, room.ID, alice)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"hello there"}`)); err != nil {
		t.Fatal(err)
	}
	ack := readWsFrame(t, conn)
	if ack.Type != services.FrameMessageSent {
		t.Fatalf("expected %s for a content-only frame, got %s (%s)", services.FrameMessageSent, ack.Type, ack.Error)
	}

	var count int64
	storage.DB.Model(&models.Message{}).Where("chat_room_id = ?", room.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 persisted message, got %d", count)
	}
}

func TestSocketRejectsClientSystemMessages(t *testing.T) {
	setupTestDB(t)
	app := buildTestApp()
	server := httptest.NewServer(app)
	defer server.Close()

	alice := createTestUser(t, "alice@test.local", "owner", "user")
	bob := createTestUser(t, "bob@test.local", "caregiver", "user")
	room := seedDirectRoom(t, alice, bob)

	conn := dialRoom(t, server, room.ID, alice)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"hi","is_system_message":true}`)); err != nil {
		t.Fatal(err)
	}
	frame := readWsFrame(t, conn)
	if frame.Type != services.FrameError {
		t.Fatalf("expected an error frame for a client system message, got %s", frame.Type)
	}

	var count int64
	storage.DB.Model(&models.Message{}).Where("chat_room_id = ?", room.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no persisted message, got %d", count)
	}
}

func TestConcurrentSendersShareWriteLock(t *testing.T) {
	setupTestDB(t)
	app := buildTestApp()
	server := httptest.NewServer(app)
	defer server.Close()

	alice := createTestUser(t, "alice@test.local", "owner", "user")
	bob := createTestUser(t, "bob@test.local", "caregiver", "user")
	room := seedDirectRoom(t, alice, bob)

	aliceConn := dialRoom(t, server, room.ID, alice)
	bobConn := dialRoom(t, server, room.ID, bob)

	const perSender = 10

	var wg sync.WaitGroup
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				c.WriteJSON(services.ChatFrame{Type: services.FrameSendMessage, Content: fmt.Sprintf("msg %d", i)})
			}
		}(conn)
	}
	wg.Wait()

	// Each side receives its own acks plus the peer's broadcasts, all
	// serialized through the connection's write lock.
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		acks, broadcasts := 0, 0
		for i := 0; i < 2*perSender; i++ {
			frame := readWsFrame(t, conn)
			switch frame.Type {
			case services.FrameMessageSent:
				acks++
			case services.FrameNewMessage:
				broadcasts++
			default:
				t.Fatalf("unexpected frame type %s (%s)", frame.Type, frame.Error)
			}
		}
		if acks != perSender || broadcasts != perSender {
			t.Fatalf("expected %d acks and %d broadcasts, got %d and %d", perSender, perSender, acks, broadcasts)
		}
	}

	var count int64
	storage.DB.Model(&models.Message{}).Where("chat_room_id = ?", room.ID).Count(&count)
	if count != 2*perSender {
		t.Fatalf("expected %d persisted messages, got %d", 2*perSender, count)
	}
}
