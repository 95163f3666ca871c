package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"scholarconnect-ws/internal/auth"
	"scholarconnect-ws/internal/chat"
	"scholarconnect-ws/internal/domain"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// eventTimeout bounds every store-touching event so a hung gateway call
// cannot pin a connection goroutine forever.
const eventTimeout = 10 * time.Second

type WSConnection struct {
	Conn     *websocket.Conn
	ID       string
	User     *chat.User // nil until authenticate succeeds
	gen      uint64     // presence generation for this registration
	focused  string     // room the client currently has open
	rooms    map[string]bool
	writeMux sync.Mutex // prevents concurrent writes on one socket
}

type WSManager struct {
	resolver   *auth.Resolver
	roomSvc    *chat.Rooms
	dispatcher *chat.Dispatcher
	presence   *chat.Registry
	typing     *chat.Typing
	calls      *chat.Calls

	mutex     sync.RWMutex
	conns     map[string]*WSConnection            // connID -> connection
	byUser    map[string]*WSConnection            // userID -> newest connection
	roomConns map[string]map[string]*WSConnection // roomID -> connID -> connection
}

func NewWSManager(resolver *auth.Resolver, roomSvc *chat.Rooms) *WSManager {
	return &WSManager{
		resolver:  resolver,
		roomSvc:   roomSvc,
		conns:     make(map[string]*WSConnection),
		byUser:    make(map[string]*WSConnection),
		roomConns: make(map[string]map[string]*WSConnection),
	}
}

// Bind wires the services that in turn emit through this manager. Split
// from the constructor because manager and services reference each other.
func (w *WSManager) Bind(dispatcher *chat.Dispatcher, presence *chat.Registry, typing *chat.Typing, calls *chat.Calls) {
	w.dispatcher = dispatcher
	w.presence = presence
	w.typing = typing
	w.calls = calls
}

func (w *WSManager) addConnection(conn *WSConnection) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.conns[conn.ID] = conn
}

// registerUser records the authenticated identity. conn.User is
// assigned here, under the hub lock, because the emitter paths read
// it from other goroutines.
func (w *WSManager) registerUser(conn *WSConnection, user *chat.User) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	conn.User = user
	w.byUser[user.ID] = conn
}

func (w *WSManager) subscribe(conn *WSConnection, roomID string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if _, exists := w.roomConns[roomID]; !exists {
		w.roomConns[roomID] = make(map[string]*WSConnection)
	}
	w.roomConns[roomID][conn.ID] = conn
	conn.rooms[roomID] = true
}

func (w *WSManager) removeConnection(conn *WSConnection) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	delete(w.conns, conn.ID)
	for roomID := range conn.rooms {
		if subs, exists := w.roomConns[roomID]; exists {
			delete(subs, conn.ID)
			if len(subs) == 0 {
				delete(w.roomConns, roomID)
			}
		}
	}
	if conn.User != nil && w.byUser[conn.User.ID] == conn {
		delete(w.byUser, conn.User.ID)
	}
}

// HandleConnection owns one socket for its whole life: authenticate
// first, then the event loop, then teardown.
func (w *WSManager) HandleConnection(c *websocket.Conn) {
	conn := &WSConnection{
		Conn:  c,
		ID:    uuid.New().String(),
		rooms: make(map[string]bool),
	}
	defer c.Close()

	w.addConnection(conn)
	defer func() {
		w.removeConnection(conn)
		if conn.User != nil {
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			w.typing.ClearUser(ctx, conn.User.ID)
			w.presence.RegisterOffline(ctx, conn.User.ID, conn.gen)
			log.Printf("WebSocket client disconnected: %s (conn %s)", conn.User.ID, conn.ID)
		}
	}()

	for {
		var evt domain.SocketEvent
		if err := c.ReadJSON(&evt); err != nil {
			break
		}
		w.handleEvent(conn, &evt)
	}
}

func (w *WSManager) handleEvent(conn *WSConnection, evt *domain.SocketEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling %s event: %v", evt.Type, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if evt.Type == "authenticate" {
		w.handleAuthenticate(ctx, conn, evt.Data)
		return
	}

	if conn.User == nil {
		w.send(conn, domain.SocketResponse{
			Type:  "auth_error",
			Error: "authentication required",
		})
		return
	}

	switch evt.Type {
	case "join_room":
		w.handleJoinRoom(ctx, conn, evt.Data)

	case "leave_room":
		w.handleLeaveRoom(ctx, conn, evt.Data)

	case "send_message":
		w.handleSendMessage(ctx, conn, evt.Data)

	case "typing_start":
		var p domain.RoomPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ChatRoomID == "" {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		w.typing.Start(ctx, p.ChatRoomID, conn.User.ID)

	case "typing_stop":
		var p domain.RoomPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ChatRoomID == "" {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		w.typing.Stop(ctx, p.ChatRoomID, conn.User.ID)

	case "mark_as_read":
		var p domain.MarkAsReadPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		if err := w.dispatcher.MarkManyRead(ctx, conn.User.ID, p.ChatRoomID, p.MessageIDs); err != nil {
			w.sendError(conn, err)
		}

	case "call_initiate":
		var p domain.CallInitiatePayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		if _, err := w.calls.Initiate(ctx, p.ChatRoomID, conn.User.ID, p.CallType); err != nil {
			w.sendError(conn, err)
		}

	case "call_accept":
		var p domain.CallActionPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		if _, err := w.calls.Accept(ctx, p.CallID, conn.User.ID); err != nil {
			w.sendError(conn, err)
		}

	case "call_reject":
		var p domain.CallActionPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		if err := w.calls.Reject(ctx, p.CallID, conn.User.ID); err != nil {
			w.sendError(conn, err)
		}

	case "call_end":
		var p domain.CallActionPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			w.sendError(conn, chat.ErrValidationFailed)
			return
		}
		if err := w.calls.End(ctx, p.CallID, conn.User.ID); err != nil {
			w.sendError(conn, err)
		}

	default:
		log.Printf("Unknown event type: %s from conn %s", evt.Type, conn.ID)
		w.send(conn, domain.SocketResponse{
			Type:  "error",
			Error: "unknown event type: " + evt.Type,
		})
	}
}

func (w *WSManager) handleAuthenticate(ctx context.Context, conn *WSConnection, data json.RawMessage) {
	var p domain.AuthenticatePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		w.send(conn, domain.SocketResponse{Type: "auth_error", Error: "credential required"})
		return
	}

	user, err := w.resolver.Resolve(ctx, p.Token)
	if err != nil {
		// The connection stays open and unauthenticated.
		w.send(conn, domain.SocketResponse{Type: "auth_error", Error: "authentication failed"})
		return
	}

	w.registerUser(conn, user)
	conn.gen = w.presence.RegisterOnline(ctx, user.ID, conn.ID)

	rooms, err := w.roomSvc.ResolveRoomsFor(ctx, user.ID)
	if err != nil {
		log.Printf("Failed to resolve rooms for %s: %v", user.ID, err)
		rooms = nil
	}
	roomIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		w.subscribe(conn, room.ID)
		roomIDs = append(roomIDs, room.ID)
	}

	log.Printf("WebSocket client authenticated: %s (%s) on conn %s, %d rooms",
		user.ID, user.Role, conn.ID, len(roomIDs))

	w.send(conn, domain.SocketResponse{
		Type:    "authenticated",
		Success: true,
		Data: map[string]any{
			"user":      user,
			"room_ids":  roomIDs,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (w *WSManager) handleJoinRoom(ctx context.Context, conn *WSConnection, data json.RawMessage) {
	var p domain.RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChatRoomID == "" {
		w.sendError(conn, chat.ErrValidationFailed)
		return
	}

	room, err := w.roomSvc.JoinActive(ctx, conn.User.ID, p.ChatRoomID)
	if err != nil {
		w.sendError(conn, err)
		return
	}

	w.subscribe(conn, room.ID)
	conn.focused = room.ID

	w.send(conn, domain.SocketResponse{
		Type:    "room_joined",
		Success: true,
		Data: map[string]any{
			"chat_room_id": room.ID,
			"timestamp":    time.Now().Format(time.RFC3339),
		},
	})
}

// handleLeaveRoom narrows the focused room. Membership subscriptions
// stay; fan-out for the user's rooms continues until disconnect.
func (w *WSManager) handleLeaveRoom(ctx context.Context, conn *WSConnection, data json.RawMessage) {
	var p domain.RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChatRoomID == "" {
		w.sendError(conn, chat.ErrValidationFailed)
		return
	}

	if conn.focused == p.ChatRoomID {
		conn.focused = ""
	}
	w.typing.Stop(ctx, p.ChatRoomID, conn.User.ID)

	w.send(conn, domain.SocketResponse{
		Type:    "room_left",
		Success: true,
		Data: map[string]any{
			"chat_room_id": p.ChatRoomID,
			"timestamp":    time.Now().Format(time.RFC3339),
		},
	})
}

func (w *WSManager) handleSendMessage(ctx context.Context, conn *WSConnection, data json.RawMessage) {
	var p domain.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		w.sendError(conn, chat.ErrValidationFailed)
		return
	}

	_, err := w.dispatcher.Send(ctx, conn.User.ID, chat.SendInput{
		ChatRoomID:       p.ChatRoomID,
		Content:          p.Content,
		MessageType:      p.MessageType,
		ReplyToMessageID: p.ReplyToMessageID,
		Metadata:         p.Metadata,
	})
	if err != nil {
		w.sendError(conn, err)
	}
	// The dispatcher already emitted the room broadcast and the
	// sender-only message_sent ack.
}

// sendError converts a service error into an error event for the
// offending connection only. Nothing here ever closes the socket.
func (w *WSManager) sendError(conn *WSConnection, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, chat.ErrValidationFailed):
		msg = "invalid payload"
	case errors.Is(err, chat.ErrAccessDenied):
		msg = "access denied"
	case errors.Is(err, chat.ErrNotFoundOrForbidden):
		msg = "not found"
	case errors.Is(err, chat.ErrPersistence):
		msg = "operation failed"
	}
	log.Printf("Event error on conn %s: %v", conn.ID, err)
	w.send(conn, domain.SocketResponse{Type: "error", Error: msg})
}

func (w *WSManager) send(conn *WSConnection, resp domain.SocketResponse) {
	if err := conn.safeWriteJSON(resp); err != nil {
		log.Printf("Failed to write to conn %s: %v", conn.ID, err)
	}
}

// fanOut delivers to a snapshot of connections concurrently. Writes are
// fire-and-forget; a failed write just logs.
func (w *WSManager) fanOut(targets []*WSConnection, resp domain.SocketResponse) {
	var wg sync.WaitGroup
	for _, conn := range targets {
		wg.Add(1)
		go func(c *WSConnection) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Recovered from panic while broadcasting to conn %s: %v", c.ID, r)
				}
			}()
			if err := c.safeWriteJSON(resp); err != nil {
				log.Printf("Failed to broadcast to conn %s: %v", c.ID, err)
			}
		}(conn)
	}
	wg.Wait()
}

func (w *WSManager) roomTargets(roomID, excludeUserID string) []*WSConnection {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	targets := make([]*WSConnection, 0, len(w.roomConns[roomID]))
	for _, conn := range w.roomConns[roomID] {
		if excludeUserID != "" && conn.User != nil && conn.User.ID == excludeUserID {
			continue
		}
		targets = append(targets, conn)
	}
	return targets
}

// ToRoom implements chat.Emitter.
func (w *WSManager) ToRoom(roomID, event string, payload any) {
	w.fanOut(w.roomTargets(roomID, ""), domain.SocketResponse{Type: event, Success: true, Data: payload})
}

// ToRoomExcept implements chat.Emitter.
func (w *WSManager) ToRoomExcept(roomID, excludeUserID, event string, payload any) {
	w.fanOut(w.roomTargets(roomID, excludeUserID), domain.SocketResponse{Type: event, Success: true, Data: payload})
}

// ToUser implements chat.Emitter.
func (w *WSManager) ToUser(userID, event string, payload any) {
	w.mutex.RLock()
	conn := w.byUser[userID]
	w.mutex.RUnlock()
	if conn == nil {
		return
	}
	w.fanOut([]*WSConnection{conn}, domain.SocketResponse{Type: event, Success: true, Data: payload})
}

// Broadcast implements chat.Emitter: every authenticated connection
// except the excluded user.
func (w *WSManager) Broadcast(excludeUserID, event string, payload any) {
	w.mutex.RLock()
	targets := make([]*WSConnection, 0, len(w.conns))
	for _, conn := range w.conns {
		if conn.User == nil {
			continue
		}
		if excludeUserID != "" && conn.User.ID == excludeUserID {
			continue
		}
		targets = append(targets, conn)
	}
	w.mutex.RUnlock()
	w.fanOut(targets, domain.SocketResponse{Type: event, Success: true, Data: payload})
}

// HandleBackendMessage implements kafka.BackendEventHandler: room events
// originated by other services still reach live clients.
func (w *WSManager) HandleBackendMessage(ev chat.MessageEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in HandleBackendMessage: %v", r)
		}
	}()
	w.ToRoom(ev.ChatRoomID, "message_received", ev)
}

// GetActiveConnections returns per-room connection counts for monitoring
func (w *WSManager) GetActiveConnections() map[string]int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	result := make(map[string]int)
	for roomID, conns := range w.roomConns {
		result[roomID] = len(conns)
	}
	return result
}

// safeWriteJSON writes with mutex protection and panic recovery so
// concurrent fan-outs never interleave frames on one socket.
func (conn *WSConnection) safeWriteJSON(message any) error {
	conn.writeMux.Lock()
	defer conn.writeMux.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeWriteJSON for conn %s: %v", conn.ID, r)
		}
	}()

	return conn.Conn.WriteJSON(message)
}
