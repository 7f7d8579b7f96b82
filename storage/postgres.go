package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pepe999/PartyGames-BE/models"
)

// PostgresStore implements services.Store on gorm. Per-room serialization
// happens above this layer; these calls are plain reads and writes.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room *models.Room) error {
	return s.db.WithContext(ctx).Create(room).Error
}

// FindRoomByCode prefers the active room holding the code. When none
// exists the most recently finished holder is returned so snapshot reads
// can still reconcile final state; mutation paths reject terminal rooms by
// status.
func (s *PostgresStore) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := s.findRoomByCode(ctx, code, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.findRoomByCode(ctx, code, true)
	}
	return room, err
}

func (s *PostgresStore) findRoomByCode(ctx context.Context, code string, finished bool) (*models.Room, error) {
	query := s.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		})
	if finished {
		query = query.Where("code = ? AND status = ?", code, models.RoomStatusFinished).
			Order("finished_at DESC")
	} else {
		query = query.Where("code = ? AND status <> ?", code, models.RoomStatusFinished)
	}
	var room models.Room
	if err := query.First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *PostgresStore) SaveRoom(ctx context.Context, room *models.Room) error {
	return s.db.WithContext(ctx).Omit("Players").Save(room).Error
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Player{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, "id = ?", roomID).Error
	})
}

// RoomCodeExists checks the code against active rooms only; codes of
// finished rooms may be reused.
func (s *PostgresStore) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("code = ? AND status <> ?", code, models.RoomStatusFinished).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostgresStore) UpsertPlayer(ctx context.Context, player *models.Player) error {
	return s.db.WithContext(ctx).Save(player).Error
}

func (s *PostgresStore) UpdatePlayerFields(ctx context.Context, playerID string, fields map[string]any) error {
	return s.db.WithContext(ctx).Model(&models.Player{}).
		Where("id = ?", playerID).
		Updates(fields).Error
}

func (s *PostgresStore) DeletePlayer(ctx context.Context, playerID string) error {
	return s.db.WithContext(ctx).Delete(&models.Player{}, "id = ?", playerID).Error
}

func (s *PostgresStore) FindGameMeta(ctx context.Context, gameID uint) (*models.GameMeta, error) {
	var game models.GameMeta
	if err := s.db.WithContext(ctx).First(&game, gameID).Error; err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *PostgresStore) ListApprovedPrompts(ctx context.Context, gameID uint, kind string, limit int) ([]models.Prompt, error) {
	var prompts []models.Prompt
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND kind = ? AND approved = ?", gameID, kind, true).
		Limit(limit).
		Find(&prompts).Error
	if err != nil {
		return nil, err
	}
	return prompts, nil
}
