package models

import (
	"time"
)

// GameMeta is a catalog entry describing one playable game. The catalog CRUD
// itself lives outside this service; the coordinator only reads these rows.
type GameMeta struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"not null"`
	PromptKind string    `json:"prompt_kind" gorm:"not null"`
	MinPlayers int       `json:"min_players" gorm:"not null;default:2"`
	MaxPlayers int       `json:"max_players" gorm:"not null;default:16"`
	IsOnline   bool      `json:"is_online" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
