package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

// Websocket close codes for connection-time rejections.
const (
	wsCloseNoToken        = 4000
	wsCloseInvalidToken   = 4001
	wsCloseUserNotFound   = 4002
	wsCloseUserInactive   = 4003
	wsCloseNotAuthorized  = 4004
	wsCloseRoomNotFound   = 4005
	wsCloseInternalError  = 1011
	wsCloseDeadline       = 5 * time.Second
	typingIndicatorExpiry = 5 * time.Second
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CreateChatRoom opens (or returns) a conversation. Booking rooms are unique
// per booking and join the owner with the caregiver; direct rooms list their
// participants explicitly.
func CreateChatRoom(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var input CreateChatRoomInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if input.BookingID != nil {
		createBookingChatRoom(ctx, user, *input.BookingID)
		return
	}

	if len(input.ParticipantIDs) == 0 {
		utils.CreateValidationError(ctx, "either bookingID or participantIDs is required")
		return
	}
	createDirectChatRoom(ctx, user, input.ParticipantIDs)
}

func createBookingChatRoom(ctx iris.Context, user *models.User, bookingID uint) {
	var booking models.Booking
	bookingExists := storage.DB.Preload("Caregiver").Where("id = ?", bookingID).Find(&booking)
	if bookingExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if bookingExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "booking not found")
		return
	}

	if booking.OwnerID != user.ID && booking.Caregiver.UserID != user.ID && !user.IsAdmin() {
		utils.CreateForbidden(ctx, "not your booking")
		return
	}

	var existing models.ChatRoom
	found := storage.DB.Preload("Participants").Where("booking_id = ?", booking.ID).Limit(1).Find(&existing)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected > 0 {
		ctx.JSON(existing)
		return
	}

	room := models.ChatRoom{BookingID: &booking.ID}
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}

		participants := []models.ChatRoomParticipant{
			{ChatRoomID: room.ID, UserID: booking.OwnerID},
			{ChatRoomID: room.ID, UserID: booking.Caregiver.UserID},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}

		welcome := models.Message{
			ChatRoomID:      room.ID,
			SenderID:        booking.OwnerID,
			Content:         "Chat room created for your booking. Say hello!",
			IsSystemMessage: true,
		}
		return tx.Create(&welcome).Error
	})
	if txErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	storage.DB.Preload("Participants").First(&room, room.ID)
	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(room)
}

func createDirectChatRoom(ctx iris.Context, user *models.User, participantIDs []uint) {
	memberIDs := map[uint]bool{user.ID: true}
	for _, id := range participantIDs {
		memberIDs[id] = true
	}
	if len(memberIDs) < 2 {
		utils.CreateValidationError(ctx, "a chat room needs at least two participants")
		return
	}

	for id := range memberIDs {
		var member models.User
		memberExists := storage.DB.Where("id = ?", id).Find(&member)
		if memberExists.Error != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		if memberExists.RowsAffected == 0 {
			utils.CreateNotFound(ctx, "participant "+strconv.FormatUint(uint64(id), 10)+" not found")
			return
		}
	}

	room := models.ChatRoom{}
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		participants := make([]models.ChatRoomParticipant, 0, len(memberIDs))
		for id := range memberIDs {
			participants = append(participants, models.ChatRoomParticipant{ChatRoomID: room.ID, UserID: id})
		}
		return tx.Create(&participants).Error
	})
	if txErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	storage.DB.Preload("Participants").First(&room, room.ID)
	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(room)
}

func GetMyChatRooms(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var roomIDs []uint
	if err := storage.DB.Model(&models.ChatRoomParticipant{}).
		Where("user_id = ?", user.ID).
		Pluck("chat_room_id", &roomIDs).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if len(roomIDs) == 0 {
		ctx.JSON([]models.ChatRoom{})
		return
	}

	var rooms []models.ChatRoom
	if err := storage.DB.Preload("Booking").Preload("Participants").Preload("Participants.User").
		Where("id IN ?", roomIDs).Order("updated_at DESC").
		Find(&rooms).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	type roomSummary struct {
		models.ChatRoom
		LastMessage *models.Message `json:"lastMessage"`
		UnreadCount int64           `json:"unreadCount"`
	}

	summaries := make([]roomSummary, 0, len(rooms))
	for i := range rooms {
		summary := roomSummary{ChatRoom: rooms[i]}

		var last models.Message
		lastExists := storage.DB.Where("chat_room_id = ?", rooms[i].ID).
			Order("id DESC").Limit(1).Find(&last)
		if lastExists.Error == nil && lastExists.RowsAffected > 0 {
			summary.LastMessage = &last
		}

		storage.DB.Model(&models.Message{}).
			Where("chat_room_id = ? AND sender_id <> ? AND is_read = ?", rooms[i].ID, user.ID, false).
			Count(&summary.UnreadCount)

		summaries = append(summaries, summary)
	}

	ctx.JSON(summaries)
}

func GetChatHistory(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	room := getRoomForParticipant(ctx, user)
	if room == nil {
		return
	}

	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 50)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := storage.DB.Model(&models.Message{}).Where("chat_room_id = ?", room.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var messages []models.Message
	if err := query.Preload("Sender").Preload("ReadBy").
		Order("id DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&messages).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, messages, page, perPage, total)
}

// MarkMessagesRead records read receipts for everything in the room the
// requester has not sent, and bumps their participant watermark.
func MarkMessagesRead(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	room := getRoomForParticipant(ctx, user)
	if room == nil {
		return
	}

	var unread []models.Message
	if err := storage.DB.
		Where("chat_room_id = ? AND sender_id <> ? AND is_read = ?", room.ID, user.ID, false).
		Find(&unread).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	now := time.Now()
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		for i := range unread {
			if err := tx.Model(&unread[i]).Update("is_read", true).Error; err != nil {
				return err
			}
			receipt := models.MessageReadStatus{MessageID: unread[i].ID, UserID: user.ID}
			if err := tx.Where(&receipt).FirstOrCreate(&receipt).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.ChatRoomParticipant{}).
			Where("chat_room_id = ? AND user_id = ?", room.ID, user.ID).
			Update("last_read_at", &now).Error
	})
	if txErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"markedRead": len(unread)})
}

// SetTypingStatus stores a short-lived typing flag in Redis; GetTypingStatus
// reads which participants currently hold one.
func SetTypingStatus(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	room := getRoomForParticipant(ctx, user)
	if room == nil {
		return
	}

	var input TypingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	key := fmt.Sprintf("typing:room:%d:user:%d", room.ID, user.ID)
	if input.Typing {
		storage.Redis.Set(context.Background(), key, "1", typingIndicatorExpiry)
	} else {
		storage.Redis.Del(context.Background(), key)
	}

	ctx.JSON(iris.Map{"ok": true})
}

func GetTypingStatus(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	room := getRoomForParticipant(ctx, user)
	if room == nil {
		return
	}

	var participants []models.ChatRoomParticipant
	if err := storage.DB.Where("chat_room_id = ?", room.ID).Find(&participants).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	typing := []uint{}
	for _, participant := range participants {
		if participant.UserID == user.ID {
			continue
		}
		key := fmt.Sprintf("typing:room:%d:user:%d", room.ID, participant.UserID)
		if exists, err := storage.Redis.Exists(context.Background(), key).Result(); err == nil && exists > 0 {
			typing = append(typing, participant.UserID)
		}
	}

	ctx.JSON(iris.Map{"typing": typing})
}

// ChatWebSocket upgrades the connection after token and membership checks.
// Rejections use distinct close codes so clients can tell an expired token
// from a missing room without parsing text.
func ChatWebSocket(ctx iris.Context) {
	conn, upgradeErr := chatUpgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if upgradeErr != nil {
		return
	}

	roomID, user, closeCode, closeReason := authorizeChatSocket(ctx)
	if closeCode != 0 {
		closeSocket(conn, closeCode, closeReason)
		return
	}

	services.Manager.Connect(roomID, user.ID, conn)
	defer services.Manager.Disconnect(roomID, user.ID, conn)

	for {
		var frame services.ChatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			// Malformed JSON is the client's problem, not the connection's:
			// report it and keep reading.
			if isDecodeError(err) {
				sendSocketError(roomID, user.ID, "invalid message format")
				continue
			}
			return
		}

		switch {
		case frame.Type == services.FrameSendMessage,
			frame.Type == "" && frame.Content != "":
			if frame.IsSystemMessage {
				sendSocketError(roomID, user.ID, "system messages cannot be sent by clients")
				continue
			}
			handleIncomingMessage(roomID, user, frame.Content)
		default:
			sendSocketError(roomID, user.ID, "unknown frame type: "+frame.Type)
		}
	}
}

// isDecodeError reports whether a ReadJSON failure was a payload problem
// rather than the peer going away.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func authorizeChatSocket(ctx iris.Context) (roomID uint, user *models.User, closeCode int, closeReason string) {
	token := ctx.URLParamDefault("token", "")
	if token == "" {
		header := ctx.GetHeader("Authorization")
		if len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}
	if token == "" {
		return 0, nil, wsCloseNoToken, "missing token"
	}

	verifier := jsonWT.NewVerifier(jsonWT.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	verifiedToken, verifyErr := verifier.VerifyToken([]byte(token))
	if verifyErr != nil {
		return 0, nil, wsCloseInvalidToken, "invalid token"
	}
	var claims utils.AccessToken
	if err := verifiedToken.Claims(&claims); err != nil {
		return 0, nil, wsCloseInvalidToken, "invalid token"
	}

	var account models.User
	if err := storage.DB.First(&account, claims.ID).Error; err != nil {
		return 0, nil, wsCloseUserNotFound, "user not found"
	}
	if !account.Active() {
		return 0, nil, wsCloseUserInactive, "account deactivated"
	}

	id64, parseErr := strconv.ParseUint(ctx.Params().Get("id"), 10, 32)
	if parseErr != nil {
		return 0, nil, wsCloseRoomNotFound, "room not found"
	}

	var room models.ChatRoom
	roomExists := storage.DB.Where("id = ?", uint(id64)).Find(&room)
	if roomExists.Error != nil {
		return 0, nil, wsCloseInternalError, "server error"
	}
	if roomExists.RowsAffected == 0 {
		return 0, nil, wsCloseRoomNotFound, "room not found"
	}

	member, memberErr := isRoomParticipant(room.ID, account.ID)
	if memberErr != nil {
		return 0, nil, wsCloseInternalError, "server error"
	}
	if !member && !account.IsAdmin() {
		return 0, nil, wsCloseNotAuthorized, "not a participant"
	}

	return room.ID, &account, 0, ""
}

// handleIncomingMessage runs the content policy, persists, acks the sender,
// then fans out to the rest of the room. All writes to the sender go through
// the manager so they share the connection's write lock with broadcasts.
func handleIncomingMessage(roomID uint, user *models.User, content string) {
	allowed, reason := services.ValidateMessage(storage.DB, roomID, content)
	if !allowed {
		sendSocketError(roomID, user.ID, reason)
		return
	}

	message := models.Message{
		ChatRoomID: roomID,
		SenderID:   user.ID,
		Content:    content,
	}
	if err := storage.DB.Create(&message).Error; err != nil {
		sendSocketError(roomID, user.ID, "could not save message")
		return
	}
	storage.DB.Model(&models.ChatRoom{}).Where("id = ?", roomID).Update("updated_at", time.Now())
	message.Sender = *user

	services.Manager.SendTo(roomID, user.ID, services.ChatFrame{
		Type:    services.FrameMessageSent,
		RoomID:  roomID,
		Message: message,
	})

	services.Manager.Broadcast(roomID, user.ID, services.ChatFrame{
		Type:    services.FrameNewMessage,
		RoomID:  roomID,
		Message: message,
	})
}

func sendSocketError(roomID, userID uint, reason string) {
	services.Manager.SendTo(roomID, userID, services.ChatFrame{Type: services.FrameError, Error: reason})
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsCloseDeadline)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

func getRoomForParticipant(ctx iris.Context, user *models.User) *models.ChatRoom {
	id := ctx.Params().Get("id")

	var room models.ChatRoom
	roomExists := storage.DB.Where("id = ?", id).Find(&room)
	if roomExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if roomExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "chat room not found")
		return nil
	}

	member, memberErr := isRoomParticipant(room.ID, user.ID)
	if memberErr != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if !member && !user.IsAdmin() {
		utils.CreateForbidden(ctx, "not a participant of this room")
		return nil
	}

	return &room
}

func isRoomParticipant(roomID, userID uint) (bool, error) {
	var count int64
	err := storage.DB.Model(&models.ChatRoomParticipant{}).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

type CreateChatRoomInput struct {
	BookingID      *uint  `json:"bookingID"`
	ParticipantIDs []uint `json:"participantIDs"`
}

type TypingInput struct {
	Typing bool `json:"typing"`
}
