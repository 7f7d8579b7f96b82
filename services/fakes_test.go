package services

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/pepe999/PartyGames-BE/models"
)

// fakeStore is an in-memory Store so service tests run without postgres.
type fakeStore struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room // keyed by room id
	games   map[uint]*models.GameMeta
	prompts []models.Prompt

	findErr error // injected store failure
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms: make(map[string]*models.Room),
		games: make(map[uint]*models.GameMeta),
	}
}

func (s *fakeStore) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *room
	stored.Players = append([]models.Player(nil), room.Players...)
	s.rooms[room.ID] = &stored
	return nil
}

func (s *fakeStore) FindRoomByCode(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var finished *models.Room
	for _, room := range s.rooms {
		if room.Code != code {
			continue
		}
		if room.Status != models.RoomStatusFinished {
			copied := *room
			copied.Players = append([]models.Player(nil), room.Players...)
			return &copied, nil
		}
		finished = room
	}
	if finished != nil {
		copied := *finished
		copied.Players = append([]models.Player(nil), finished.Players...)
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) SaveRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rooms[room.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	players := stored.Players
	*stored = *room
	stored.Players = players
	return nil
}

func (s *fakeStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

func (s *fakeStore) RoomCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.Code == code && room.Status != models.RoomStatusFinished {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UpsertPlayer(_ context.Context, player *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[player.RoomID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range room.Players {
		if room.Players[i].ID == player.ID {
			room.Players[i] = *player
			return nil
		}
	}
	room.Players = append(room.Players, *player)
	return nil
}

func (s *fakeStore) UpdatePlayerFields(_ context.Context, playerID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		for i := range room.Players {
			if room.Players[i].ID != playerID {
				continue
			}
			p := &room.Players[i]
			if v, ok := fields["connected"]; ok {
				p.Connected = v.(bool)
			}
			if v, ok := fields["team"]; ok {
				p.Team = v.(string)
			}
			if v, ok := fields["ready"]; ok {
				p.Ready = v.(bool)
			}
			if v, ok := fields["score"]; ok {
				p.Score = v.(int)
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *fakeStore) DeletePlayer(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		for i := range room.Players {
			if room.Players[i].ID == playerID {
				room.Players = append(room.Players[:i], room.Players[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (s *fakeStore) FindGameMeta(_ context.Context, gameID uint) (*models.GameMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *game
	return &copied, nil
}

func (s *fakeStore) ListApprovedPrompts(_ context.Context, gameID uint, kind string, limit int) ([]models.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Prompt
	for _, p := range s.prompts {
		if p.GameID == gameID && p.Kind == kind && p.Approved {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) roomByCode(code string) *models.Room {
	room, _ := s.FindRoomByCode(context.Background(), code)
	return room
}

// fakeBus records published events in order.
type fakeBus struct {
	mu     sync.Mutex
	events []busEvent
}

type busEvent struct {
	Room    string
	Name    string
	Payload any
}

func (b *fakeBus) Publish(roomCode, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{Room: roomCode, Name: event, Payload: payload})
}

func (b *fakeBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (b *fakeBus) last(name string) (busEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Name == name {
			return b.events[i], true
		}
	}
	return busEvent{}, false
}

// fakeLimiter answers a fixed verdict.
type fakeLimiter struct {
	allow bool
	err   error

	mu    sync.Mutex
	calls int
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.allow, l.err
}

func (l *fakeLimiter) attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
