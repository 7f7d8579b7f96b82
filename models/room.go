package models

import (
	"time"
)

const (
	RoomStatusWaiting  = "WAITING"
	RoomStatusPlaying  = "PLAYING"
	RoomStatusFinished = "FINISHED"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

type Room struct {
	ID           string  `json:"id" gorm:"primaryKey"`
	Code         string  `json:"code" gorm:"index;not null"`
	Name         string  `json:"name"`
	GameID       uint    `json:"game_id" gorm:"not null"`
	Visibility   string  `json:"visibility" gorm:"not null;default:'public'"`
	PasswordHash string  `json:"-"`
	HostUserID   *string `json:"host_user_id"`
	Status       string  `json:"status" gorm:"not null;default:'WAITING'"`

	Settings RoomSettings `json:"settings" gorm:"serializer:json"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	// Relationships
	Players []Player `json:"players,omitempty" gorm:"foreignKey:RoomID"`
}

type RoomSettings struct {
	RoundCount           int      `json:"round_count"`
	TimePerPromptSeconds int      `json:"time_per_prompt_seconds"`
	Categories           []string `json:"categories,omitempty"`
	Difficulty           string   `json:"difficulty,omitempty"`
	TeamMode             bool     `json:"team_mode"`
	MaxPlayers           int      `json:"max_players"`
}

// EffectiveMaxPlayers is the capacity bound for joins: the room setting when
// present, otherwise the game's default.
func (r *Room) EffectiveMaxPlayers(game *GameMeta) int {
	if r.Settings.MaxPlayers > 0 {
		return r.Settings.MaxPlayers
	}
	return game.MaxPlayers
}

// ConnectedPlayers returns the currently connected roster entries.
func (r *Room) ConnectedPlayers() []Player {
	var out []Player
	for _, p := range r.Players {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// RoomView is the outbound shape of a room. The password hash never leaves
// the registry; clients only learn whether a password is required.
type RoomView struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	GameID      uint         `json:"game_id"`
	Visibility  string       `json:"visibility"`
	HasPassword bool         `json:"has_password"`
	HostUserID  *string      `json:"host_user_id"`
	Status      string       `json:"status"`
	Settings    RoomSettings `json:"settings"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Players     []Player     `json:"players"`
}

func (r *Room) View() RoomView {
	players := r.Players
	if players == nil {
		players = []Player{}
	}
	return RoomView{
		ID:          r.ID,
		Code:        r.Code,
		Name:        r.Name,
		GameID:      r.GameID,
		Visibility:  r.Visibility,
		HasPassword: r.PasswordHash != "",
		HostUserID:  r.HostUserID,
		Status:      r.Status,
		Settings:    r.Settings,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Players:     players,
	}
}
