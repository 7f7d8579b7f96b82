package models

import (
	"time"
)

const (
	TeamA         = "A"
	TeamB         = "B"
	TeamSpectator = "SPECTATOR"
)

// ValidTeam reports whether s is one of the three allowed team values.
func ValidTeam(s string) bool {
	return s == TeamA || s == TeamB || s == TeamSpectator
}

type Player struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	RoomID      string    `json:"room_id" gorm:"index;not null"`
	UserID      *string   `json:"user_id" gorm:"index"`
	DisplayName string    `json:"display_name" gorm:"not null"`
	Team        string    `json:"team" gorm:"not null;default:'SPECTATOR'"`
	Connected   bool      `json:"connected" gorm:"not null;default:true"`
	Ready       bool      `json:"ready" gorm:"not null;default:false"`
	Score       int       `json:"score" gorm:"not null;default:0"`
	JoinedAt    time.Time `json:"joined_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
