package delivery

import (
	"errors"
	"time"

	"scholarconnect-ws/internal/chat"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleListRooms(c *fiber.Ctx) error {
	user := currentUser(c)

	rooms, err := s.roomSvc.ResolveRoomsFor(c.Context(), user.ID)
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    rooms,
	})
}

// handleOnlineUsers reads the shared online hash; the same data other
// ScholarConnect services consume.
func (s *Server) handleOnlineUsers(c *fiber.Ctx) error {
	online, err := s.redis.GetOnlineUsers(c.Context())
	if err != nil {
		return restError(c, chat.ErrPersistence)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    online,
	})
}

func (s *Server) handleTypingUsers(c *fiber.Ctx) error {
	user := currentUser(c)
	roomID := c.Params("room_id")

	if _, err := s.roomSvc.VerifyAccess(c.Context(), user.ID, roomID); err != nil {
		return restError(c, err)
	}
	typing, err := s.redis.GetTypingUsers(c.Context(), roomID)
	if err != nil {
		return restError(c, chat.ErrPersistence)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    typing,
	})
}

type requestRoomBody struct {
	StudentID string `json:"studentId"`
	AdvisorID string `json:"advisorId"`
}

// handleRequestRoom creates (or returns) the room for a student/advisor
// pair. The caller must be one of the two participants.
func (s *Server) handleRequestRoom(c *fiber.Ctx) error {
	user := currentUser(c)

	var body requestRoomBody
	if err := c.BodyParser(&body); err != nil {
		return restError(c, chat.ErrValidationFailed)
	}

	studentID, advisorID := body.StudentID, body.AdvisorID
	switch user.Role {
	case chat.RoleStudent:
		studentID = user.ID
	case chat.RoleAdvisor:
		advisorID = user.ID
	}
	if user.ID != studentID && user.ID != advisorID {
		return restError(c, chat.ErrAccessDenied)
	}

	room, err := s.roomSvc.RequestRoom(c.Context(), studentID, advisorID)
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    room,
	})
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	user := currentUser(c)
	roomID := c.Params("room_id")

	limit := c.QueryInt("limit", 0)
	var before time.Time
	if cursor := c.Query("before"); cursor != "" {
		parsed, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return restError(c, chat.ErrValidationFailed)
		}
		before = parsed
	}

	msgs, err := s.dispatcher.History(c.Context(), user.ID, roomID, limit, before, c.Query("before_id"))
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msgs,
	})
}

type editMessageBody struct {
	Content string `json:"content"`
}

func (s *Server) handleEditMessage(c *fiber.Ctx) error {
	user := currentUser(c)

	var body editMessageBody
	if err := c.BodyParser(&body); err != nil {
		return restError(c, chat.ErrValidationFailed)
	}

	msg, err := s.dispatcher.Edit(c.Context(), c.Params("message_id"), user.ID, body.Content)
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	user := currentUser(c)

	if err := s.dispatcher.Delete(c.Context(), c.Params("message_id"), user.ID); err != nil {
		return restError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func restError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, chat.ErrValidationFailed):
		status, msg = fiber.StatusBadRequest, "invalid request"
	case errors.Is(err, chat.ErrAccessDenied):
		status, msg = fiber.StatusForbidden, "access denied"
	case errors.Is(err, chat.ErrNotFoundOrForbidden):
		status, msg = fiber.StatusNotFound, "not found"
	case errors.Is(err, chat.ErrPersistence):
		status, msg = fiber.StatusInternalServerError, "operation failed"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}
