package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pepe999/PartyGames-BE/handlers"
	"github.com/pepe999/PartyGames-BE/middleware"
	"github.com/pepe999/PartyGames-BE/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	roomHandler *handlers.RoomHandler,
	registry *services.RoomRegistry,
	hub *services.Hub,
	jwtSecret string,
	log zerolog.Logger,
) {
	api := router.Group("/api")
	api.Use(middleware.OptionalAuth(jwtSecret))
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("/:code", roomHandler.GetRoom)
			rooms.POST("/:code/join", roomHandler.JoinRoom)
			rooms.POST("/:code/leave", roomHandler.Leave)
			rooms.POST("/:code/team", roomHandler.ChangeTeam)
			rooms.POST("/:code/ready", roomHandler.SetReady)
			rooms.PUT("/:code/settings", roomHandler.UpdateSettings)
			rooms.POST("/:code/start", roomHandler.StartGame)
			rooms.POST("/:code/answer", roomHandler.SubmitAnswer)
			rooms.POST("/:code/next", roomHandler.NextPrompt)
		}
	}

	// Websocket attach: the player must already be in the room's roster;
	// joining happens over HTTP or via the join command.
	router.GET("/ws/:code/:playerID", middleware.OptionalAuth(jwtSecret), func(c *gin.Context) {
		code := c.Param("code")
		playerID := c.Param("playerID")

		snapshot, err := registry.Snapshot(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		known := false
		for _, p := range snapshot.Room.Players {
			if p.ID == playerID {
				known = true
				break
			}
		}
		if !known {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "player not found in room"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Str("room", code).Str("player", playerID).Err(err).Msg("websocket upgrade failed")
			return
		}

		hub.RegisterClient(conn, code, playerID, middleware.UserID(c))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
