package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pepe999/PartyGames-BE/middleware"
	"github.com/pepe999/PartyGames-BE/models"
	"github.com/pepe999/PartyGames-BE/services"
)

// RoomHandler is the HTTP side of the command surface. The websocket
// gateway accepts the same commands; both feed the same per-room actors.
type RoomHandler struct {
	registry *services.RoomRegistry
	sessions *services.SessionCoordinator
}

func NewRoomHandler(registry *services.RoomRegistry, sessions *services.SessionCoordinator) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		sessions: sessions,
	}
}

type createRoomRequest struct {
	GameID     uint                `json:"game_id" binding:"required"`
	Name       string              `json:"name"`
	Visibility string              `json:"visibility"`
	Password   string              `json:"password"`
	Settings   models.RoomSettings `json:"settings"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.registry.CreateRoom(c.Request.Context(), services.CreateRoomInput{
		GameID:     req.GameID,
		Name:       req.Name,
		Visibility: req.Visibility,
		Password:   req.Password,
		HostUserID: middleware.UserID(c),
		Settings:   req.Settings,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

type joinRoomRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Team        string `json:"team"`
	Password    string `json:"password"`
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.registry.JoinRoom(c.Request.Context(), services.JoinRoomInput{
		Code:        c.Param("code"),
		DisplayName: req.DisplayName,
		Team:        req.Team,
		Password:    req.Password,
		Identity:    c.ClientIP(),
		UserID:      middleware.UserID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	snapshot, err := h.registry.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type playerRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
}

func (h *RoomHandler) Leave(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.Leave(c.Request.Context(), c.Param("code"), req.PlayerID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left room"})
}

type changeTeamRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Team     string `json:"team" binding:"required"`
}

func (h *RoomHandler) ChangeTeam(c *gin.Context) {
	var req changeTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	player, err := h.registry.ChangeTeam(c.Request.Context(), c.Param("code"), req.PlayerID, req.Team)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

type setReadyRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Ready    bool   `json:"ready"`
}

func (h *RoomHandler) SetReady(c *gin.Context) {
	var req setReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	player, err := h.registry.SetReady(c.Request.Context(), c.Param("code"), req.PlayerID, req.Ready)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

type updateSettingsRequest struct {
	Settings models.RoomSettings `json:"settings" binding:"required"`
}

func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := h.registry.UpdateSettings(c.Request.Context(), c.Param("code"), middleware.UserID(c), req.Settings)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) StartGame(c *gin.Context) {
	room, err := h.registry.StartGame(c.Request.Context(), c.Param("code"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type submitAnswerRequest struct {
	PlayerID    string `json:"player_id" binding:"required"`
	OptionIndex *int   `json:"option_index,omitempty"`
	Text        string `json:"text,omitempty"`
}

func (h *RoomHandler) SubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.sessions.SubmitAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, services.SubmitAnswerInput{
		OptionIndex: req.OptionIndex,
		Text:        req.Text,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "answer submitted"})
}

func (h *RoomHandler) NextPrompt(c *gin.Context) {
	if err := h.sessions.RequestNextPrompt(c.Request.Context(), c.Param("code"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "advanced to next prompt"})
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch services.KindOf(err) {
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindConflict:
		status = http.StatusConflict
	case services.KindForbidden:
		status = http.StatusForbidden
	case services.KindInvalidInput:
		status = http.StatusBadRequest
	case services.KindRateLimited:
		status = http.StatusTooManyRequests
	case services.KindTransient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
