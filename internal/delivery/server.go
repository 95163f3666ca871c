package delivery

import (
	"log"

	"scholarconnect-ws/internal/auth"
	"scholarconnect-ws/internal/chat"
	"scholarconnect-ws/internal/config"
	redisinfra "scholarconnect-ws/internal/infrastructure/redis"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

type Server struct {
	config     *config.Config
	resolver   *auth.Resolver
	redis      *redisinfra.RedisClient
	wsManager  *WSManager
	roomSvc    *chat.Rooms
	dispatcher *chat.Dispatcher
}

func NewServer(cfg *config.Config, resolver *auth.Resolver, redis *redisinfra.RedisClient, wsManager *WSManager, roomSvc *chat.Rooms, dispatcher *chat.Dispatcher) *Server {
	return &Server{
		config:     cfg,
		resolver:   resolver,
		redis:      redis,
		wsManager:  wsManager,
		roomSvc:    roomSvc,
		dispatcher: dispatcher,
	}
}

func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "ScholarConnect Messaging Server",
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With",
		ExposeHeaders:    "Content-Length,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400, // 24 hours
	}

	// Set origins based on environment
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		log.Printf("CORS configured for production with origins: %s", corsConfig.AllowOrigins)
	} else {
		corsConfig.AllowOrigins = "*"
		corsConfig.AllowCredentials = false // Never allow credentials with wildcard origin
	}

	app.Use(cors.New(corsConfig))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"message":     "ScholarConnect messaging server is running",
			"port":        s.config.Port,
			"environment": s.config.Environment,
		})
	})

	// REST companion API: same services, same access gate as the socket
	// layer, bearer-token variant of the identity resolver.
	api := app.Group("/api", s.authRequired)
	api.Get("/rooms", s.handleListRooms)
	api.Get("/presence/online", s.handleOnlineUsers)
	api.Get("/rooms/:room_id/typing", s.handleTypingUsers)
	api.Post("/rooms", s.handleRequestRoom)
	api.Get("/rooms/:room_id/messages", s.handleListMessages)
	api.Put("/messages/:message_id", s.handleEditMessage)
	api.Delete("/messages/:message_id", s.handleDeleteMessage)

	// WebSocket middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket route: auth happens in-band via the authenticate event
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		s.wsManager.HandleConnection(c)
	}))

	log.Printf("ScholarConnect messaging server (WebSocket + REST) starting on port %s", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// authRequired resolves the Authorization header with the same resolver
// the socket layer uses and stashes the user in locals.
func (s *Server) authRequired(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get("Authorization"))
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "missing bearer token",
		})
	}
	user, err := s.resolver.Resolve(c.Context(), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "authentication failed",
		})
	}
	c.Locals("user", user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *chat.User {
	user, _ := c.Locals("user").(*chat.User)
	return user
}
