package services

import (
	"context"

	"github.com/pepe999/PartyGames-BE/models"
)

// Store is the persistent record store the coordinator runs against.
// Implementations return gorm.ErrRecordNotFound for missing rows; the
// services translate that into the error taxonomy.
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	FindRoomByCode(ctx context.Context, code string) (*models.Room, error)
	SaveRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	RoomCodeExists(ctx context.Context, code string) (bool, error)

	UpsertPlayer(ctx context.Context, player *models.Player) error
	UpdatePlayerFields(ctx context.Context, playerID string, fields map[string]any) error
	DeletePlayer(ctx context.Context, playerID string) error

	FindGameMeta(ctx context.Context, gameID uint) (*models.GameMeta, error)
	ListApprovedPrompts(ctx context.Context, gameID uint, kind string, limit int) ([]models.Prompt, error)
}

// Broadcaster fans an event out to every live subscriber of a room channel.
// Delivery is at-most-once with no replay; clients reconcile via the room
// snapshot endpoint.
type Broadcaster interface {
	Publish(roomCode, event string, payload any)
}

// AttemptLimiter bounds password attempts per identity within a rolling
// window.
type AttemptLimiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}
