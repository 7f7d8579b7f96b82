package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pepe999/PartyGames-BE/models"
)

// Settings bounds. Zero values are filled with defaults before validation.
const (
	minRoundCount = 1
	maxRoundCount = 50
	minPromptTime = 5
	maxPromptTime = 300
	minMaxPlayers = 2
	maxMaxPlayers = 64

	defaultRoundCount = 5
	defaultPromptTime = 30
)

// RoomRegistry is the canonical room and player roster. Every mutating
// operation for a room runs inside that room's actor, so read-then-write
// sequences against the store never interleave for the same room.
type RoomRegistry struct {
	store     Store
	sup       *Supervisor
	codes     *CodeAllocator
	guard     *PasswordGuard
	bus       Broadcaster
	snapshots *SnapshotCache
	log       zerolog.Logger

	// Lifecycle hooks, wired at startup. The registry raises start and
	// teardown as signals instead of depending on the session coordinator.
	gameStarted func(code string)
	sessionEnd  func(code string)
	sessionView func(ctx context.Context, code string) *SessionView
}

func NewRoomRegistry(store Store, sup *Supervisor, codes *CodeAllocator, guard *PasswordGuard, bus Broadcaster, snapshots *SnapshotCache, log zerolog.Logger) *RoomRegistry {
	return &RoomRegistry{
		store:     store,
		sup:       sup,
		codes:     codes,
		guard:     guard,
		bus:       bus,
		snapshots: snapshots,
		log:       log.With().Str("component", "registry").Logger(),
	}
}

func (r *RoomRegistry) OnGameStarted(fn func(code string)) { r.gameStarted = fn }
func (r *RoomRegistry) OnSessionEnd(fn func(code string))  { r.sessionEnd = fn }
func (r *RoomRegistry) SessionViewer(fn func(ctx context.Context, code string) *SessionView) {
	r.sessionView = fn
}

type CreateRoomInput struct {
	GameID     uint
	Name       string
	Visibility string
	Password   string
	HostUserID *string
	Settings   models.RoomSettings
}

// CreateRoom allocates a code, validates the game and settings, and spawns
// the room's actor. The response carries a has_password flag, never the
// hash.
func (r *RoomRegistry) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.RoomView, error) {
	game, err := r.findGame(ctx, in.GameID)
	if err != nil {
		return nil, err
	}
	if !game.IsOnline {
		return nil, ErrGameNotPlayable
	}

	settings, err := normalizeSettings(in.Settings)
	if err != nil {
		return nil, err
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if visibility != models.VisibilityPublic && visibility != models.VisibilityPrivate {
		return nil, E(KindInvalidInput, "invalid visibility")
	}

	var passwordHash string
	if in.Password != "" {
		passwordHash, err = r.guard.Hash(in.Password)
		if err != nil {
			return nil, transient("hashing password", err)
		}
	}

	code, err := r.codes.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:           uuid.NewString(),
		Code:         code,
		Name:         in.Name,
		GameID:       in.GameID,
		Visibility:   visibility,
		PasswordHash: passwordHash,
		HostUserID:   in.HostUserID,
		Status:       models.RoomStatusWaiting,
		Settings:     settings,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.CreateRoom(ctx, room); err != nil {
		return nil, transient("creating room", err)
	}

	r.sup.Spawn(code)
	r.refreshSnapshot(ctx, room)
	r.log.Info().Str("room", code).Uint("game", in.GameID).Msg("room created")

	view := room.View()
	return &view, nil
}

type JoinRoomInput struct {
	Code        string
	DisplayName string
	Team        string
	Password    string
	Identity    string // rate-limit key for password attempts, e.g. client IP
	UserID      *string
}

// JoinRoom adds a player to a waiting room. Rejoining with the same userId
// is idempotent: the prior record is returned (and reconnected if it had
// dropped) instead of creating a duplicate.
func (r *RoomRegistry) JoinRoom(ctx context.Context, in JoinRoomInput) (*models.Player, error) {
	var player *models.Player
	var opErr error
	if err := r.sup.Do(ctx, in.Code, func() {
		player, opErr = r.joinLocked(ctx, in)
	}); err != nil {
		return nil, err
	}
	return player, opErr
}

func (r *RoomRegistry) joinLocked(ctx context.Context, in JoinRoomInput) (*models.Player, error) {
	room, err := r.loadRoom(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotJoinable
	}
	// Input validation precedes password verification so malformed
	// requests never consume attempt-limiter tokens.
	if in.DisplayName == "" {
		return nil, ErrEmptyName
	}
	if in.Team != "" && !models.ValidTeam(in.Team) {
		return nil, ErrInvalidTeam
	}
	if err := r.guard.Verify(ctx, in.Identity, room.PasswordHash, in.Password); err != nil {
		return nil, err
	}

	game, err := r.findGame(ctx, room.GameID)
	if err != nil {
		return nil, err
	}
	maxPlayers := room.EffectiveMaxPlayers(game)

	// Idempotent rejoin path: the only way a reconnect is correlated to a
	// prior record is the caller presenting the same userId.
	if in.UserID != nil {
		for i := range room.Players {
			p := &room.Players[i]
			if p.UserID == nil || *p.UserID != *in.UserID {
				continue
			}
			if p.Connected {
				return p, nil
			}
			if len(room.ConnectedPlayers()) >= maxPlayers {
				return nil, ErrRoomFull
			}
			if err := r.store.UpdatePlayerFields(ctx, p.ID, map[string]any{"connected": true}); err != nil {
				return nil, transient("reconnecting player", err)
			}
			p.Connected = true
			r.bus.Publish(room.Code, EventPlayerJoined, map[string]any{"player": p})
			r.refreshSnapshot(ctx, room)
			return p, nil
		}
	}

	for _, p := range room.Players {
		if p.Connected && p.DisplayName == in.DisplayName {
			return nil, ErrDisplayNameTaken
		}
	}
	if len(room.ConnectedPlayers()) >= maxPlayers {
		return nil, ErrRoomFull
	}

	team := in.Team
	if team == "" {
		team = balanceTeam(room)
	}

	player := &models.Player{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UserID:      in.UserID,
		DisplayName: in.DisplayName,
		Team:        team,
		Connected:   true,
		JoinedAt:    time.Now().UTC(),
	}
	if err := r.store.UpsertPlayer(ctx, player); err != nil {
		return nil, transient("persisting player", err)
	}
	room.Players = append(room.Players, *player)

	r.bus.Publish(room.Code, EventPlayerJoined, map[string]any{"player": player})
	r.refreshSnapshot(ctx, room)
	return player, nil
}

// balanceTeam picks whichever of A/B has fewer connected players; ties
// favor A.
func balanceTeam(room *models.Room) string {
	countA, countB := 0, 0
	for _, p := range room.Players {
		if !p.Connected {
			continue
		}
		switch p.Team {
		case models.TeamA:
			countA++
		case models.TeamB:
			countB++
		}
	}
	if countB < countA {
		return models.TeamB
	}
	return models.TeamA
}

// UpdateSettings replaces the room settings. Host-only when a host is set;
// an unauthenticated host means no restriction.
func (r *RoomRegistry) UpdateSettings(ctx context.Context, code string, userID *string, settings models.RoomSettings) (*models.RoomView, error) {
	var view *models.RoomView
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		view, opErr = r.updateSettingsLocked(ctx, code, userID, settings)
	}); err != nil {
		return nil, err
	}
	return view, opErr
}

func (r *RoomRegistry) updateSettingsLocked(ctx context.Context, code string, userID *string, settings models.RoomSettings) (*models.RoomView, error) {
	room, err := r.loadRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := requireHost(room, userID); err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	normalized, err := normalizeSettings(settings)
	if err != nil {
		return nil, err
	}
	room.Settings = normalized
	if err := r.store.SaveRoom(ctx, room); err != nil {
		return nil, transient("saving room settings", err)
	}
	r.bus.Publish(room.Code, EventRoomUpdated, map[string]any{"room": room.View()})
	r.refreshSnapshot(ctx, room)
	view := room.View()
	return &view, nil
}

// StartGame transitions WAITING→PLAYING exactly once and signals the
// session coordinator through the start hook.
func (r *RoomRegistry) StartGame(ctx context.Context, code string, userID *string) (*models.RoomView, error) {
	var view *models.RoomView
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		view, opErr = r.startGameLocked(ctx, code, userID)
	}); err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	if r.gameStarted != nil {
		r.gameStarted(code)
	}
	return view, nil
}

func (r *RoomRegistry) startGameLocked(ctx context.Context, code string, userID *string) (*models.RoomView, error) {
	room, err := r.loadRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := requireHost(room, userID); err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	game, err := r.findGame(ctx, room.GameID)
	if err != nil {
		return nil, err
	}
	if len(room.ConnectedPlayers()) < game.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	now := time.Now().UTC()
	room.Status = models.RoomStatusPlaying
	room.StartedAt = &now
	if err := r.store.SaveRoom(ctx, room); err != nil {
		return nil, transient("starting game", err)
	}

	r.bus.Publish(room.Code, EventGameStarted, map[string]any{"room": room.View()})
	r.refreshSnapshot(ctx, room)
	r.log.Info().Str("room", code).Msg("game started")
	view := room.View()
	return &view, nil
}

// FinishGame transitions PLAYING→FINISHED. The session coordinator calls
// finishRoomLocked directly from inside the actor; this entry point covers
// an external finish command.
func (r *RoomRegistry) FinishGame(ctx context.Context, code string) (*models.RoomView, error) {
	var view *models.RoomView
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		var room *models.Room
		room, opErr = r.loadRoom(ctx, code)
		if opErr != nil {
			return
		}
		opErr = r.finishRoomLocked(ctx, room)
		if opErr == nil {
			v := room.View()
			view = &v
		}
	}); err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	if r.sessionEnd != nil {
		r.sessionEnd(code)
	}
	return view, nil
}

// finishRoomLocked stamps the terminal state and releases the room's actor.
// The snapshot is refreshed, not dropped, so clients that missed the final
// broadcast can still read the finished room and scores. Must run inside
// the room's actor.
func (r *RoomRegistry) finishRoomLocked(ctx context.Context, room *models.Room) error {
	if room.Status != models.RoomStatusPlaying {
		return ErrRoomNotPlaying
	}
	now := time.Now().UTC()
	room.Status = models.RoomStatusFinished
	room.FinishedAt = &now
	if err := r.store.SaveRoom(ctx, room); err != nil {
		return transient("finishing game", err)
	}
	r.bus.Publish(room.Code, EventRoomUpdated, map[string]any{"room": room.View()})
	r.refreshSnapshot(ctx, room)
	r.sup.Stop(room.Code)
	return nil
}

// ChangeTeam moves a player between A, B and SPECTATOR while the room is
// waiting.
func (r *RoomRegistry) ChangeTeam(ctx context.Context, code, playerID, team string) (*models.Player, error) {
	if !models.ValidTeam(team) {
		return nil, ErrInvalidTeam
	}
	return r.updatePlayer(ctx, code, playerID, map[string]any{"team": team}, func(p *models.Player) {
		p.Team = team
	})
}

// SetReady flips the ready flag while the room is waiting.
func (r *RoomRegistry) SetReady(ctx context.Context, code, playerID string, ready bool) (*models.Player, error) {
	return r.updatePlayer(ctx, code, playerID, map[string]any{"ready": ready}, func(p *models.Player) {
		p.Ready = ready
	})
}

func (r *RoomRegistry) updatePlayer(ctx context.Context, code, playerID string, fields map[string]any, apply func(*models.Player)) (*models.Player, error) {
	var player *models.Player
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		var room *models.Room
		room, opErr = r.loadRoom(ctx, code)
		if opErr != nil {
			return
		}
		if room.Status != models.RoomStatusWaiting {
			opErr = ErrRoomNotWaiting
			return
		}
		p := findPlayer(room, playerID)
		if p == nil {
			opErr = ErrPlayerNotFound
			return
		}
		if err := r.store.UpdatePlayerFields(ctx, p.ID, fields); err != nil {
			opErr = transient("updating player", err)
			return
		}
		apply(p)
		player = p
		r.bus.Publish(room.Code, EventRoomUpdated, map[string]any{"player": p})
		r.refreshSnapshot(ctx, room)
	}); err != nil {
		return nil, err
	}
	return player, opErr
}

// Leave hard-removes a player. A departing host triggers failover.
func (r *RoomRegistry) Leave(ctx context.Context, code, playerID string) error {
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		opErr = r.departLocked(ctx, code, playerID, true)
	}); err != nil {
		return err
	}
	return opErr
}

// HandleDisconnect soft-removes a player on transport loss. There is no
// reconnection grace period before host failover.
func (r *RoomRegistry) HandleDisconnect(ctx context.Context, code, playerID string) error {
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		opErr = r.departLocked(ctx, code, playerID, false)
	}); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil
		}
		return err
	}
	return opErr
}

// HandleReconnect marks a known player connected again after a websocket
// attach.
func (r *RoomRegistry) HandleReconnect(ctx context.Context, code, playerID string) error {
	var opErr error
	if err := r.sup.Do(ctx, code, func() {
		var room *models.Room
		room, opErr = r.loadRoom(ctx, code)
		if opErr != nil {
			return
		}
		p := findPlayer(room, playerID)
		if p == nil {
			opErr = ErrPlayerNotFound
			return
		}
		if p.Connected {
			return
		}
		if err := r.store.UpdatePlayerFields(ctx, p.ID, map[string]any{"connected": true}); err != nil {
			opErr = transient("reconnecting player", err)
			return
		}
		p.Connected = true
		r.bus.Publish(room.Code, EventRoomUpdated, map[string]any{"player": p})
		r.refreshSnapshot(ctx, room)
	}); err != nil {
		return err
	}
	return opErr
}

func (r *RoomRegistry) departLocked(ctx context.Context, code, playerID string, hard bool) error {
	room, err := r.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	player := findPlayer(room, playerID)
	if player == nil {
		return ErrPlayerNotFound
	}

	if isHost(room, player) {
		reason := ReasonHostLeft
		if !hard {
			reason = ReasonHostDisconnected
		}
		return r.failoverLocked(ctx, room, player, reason, hard)
	}

	if err := r.removeLocked(ctx, room, player, hard); err != nil {
		return err
	}
	if len(room.ConnectedPlayers()) == 0 {
		return r.deleteRoomLocked(ctx, room, ReasonRoomEmpty)
	}
	r.refreshSnapshot(ctx, room)
	return nil
}

// failoverLocked reassigns host authority to the deterministic successor,
// or tears the room down when none exists. Must run inside the room's
// actor.
func (r *RoomRegistry) failoverLocked(ctx context.Context, room *models.Room, departing *models.Player, reason string, hard bool) error {
	// removeLocked compacts room.Players in place, so detach the pick from
	// the slice before the roster shifts under it.
	var successor *models.Player
	if s := SelectSuccessor(room, departing.ID); s != nil {
		picked := *s
		successor = &picked
	}

	if err := r.removeLocked(ctx, room, departing, hard); err != nil {
		return err
	}

	if successor == nil {
		return r.deleteRoomLocked(ctx, room, reason)
	}

	room.HostUserID = successor.UserID
	if err := r.store.SaveRoom(ctx, room); err != nil {
		return transient("transferring host", err)
	}
	r.bus.Publish(room.Code, EventHostTransferred, map[string]any{
		"new_host_player_id": successor.ID,
		"new_host_user_id":   successor.UserID,
		"reason":             reason,
	})
	r.refreshSnapshot(ctx, room)
	r.log.Info().Str("room", room.Code).Str("successor", successor.ID).Str("reason", reason).Msg("host transferred")
	return nil
}

// SelectSuccessor picks the earliest-joined, currently-connected player of
// the room excluding the departing host. Ties on join time break on the
// smaller player id so the choice stays deterministic.
func SelectSuccessor(room *models.Room, departingID string) *models.Player {
	var successor *models.Player
	for i := range room.Players {
		p := &room.Players[i]
		if p.ID == departingID || !p.Connected {
			continue
		}
		if successor == nil ||
			p.JoinedAt.Before(successor.JoinedAt) ||
			(p.JoinedAt.Equal(successor.JoinedAt) && p.ID < successor.ID) {
			successor = p
		}
	}
	return successor
}

func (r *RoomRegistry) removeLocked(ctx context.Context, room *models.Room, player *models.Player, hard bool) error {
	reason := ReasonDisconnected
	if hard {
		reason = ReasonLeft
		if err := r.store.DeletePlayer(ctx, player.ID); err != nil {
			return transient("removing player", err)
		}
		for i := range room.Players {
			if room.Players[i].ID == player.ID {
				room.Players = append(room.Players[:i], room.Players[i+1:]...)
				break
			}
		}
	} else {
		if err := r.store.UpdatePlayerFields(ctx, player.ID, map[string]any{"connected": false}); err != nil {
			return transient("disconnecting player", err)
		}
		player.Connected = false
	}
	r.bus.Publish(room.Code, EventPlayerLeft, map[string]any{
		"player_id": player.ID,
		"reason":    reason,
	})
	return nil
}

// deleteRoomLocked tears down storage, session state, snapshot and the
// actor itself, then emits exactly one room-closed event.
func (r *RoomRegistry) deleteRoomLocked(ctx context.Context, room *models.Room, reason string) error {
	if err := r.store.DeleteRoom(ctx, room.ID); err != nil {
		return transient("deleting room", err)
	}
	r.bus.Publish(room.Code, EventRoomClosed, map[string]any{"reason": reason})
	if r.sessionEnd != nil {
		r.sessionEnd(room.Code)
	}
	if r.snapshots != nil {
		r.snapshots.Drop(ctx, room.Code)
	}
	r.sup.Stop(room.Code)
	r.log.Info().Str("room", room.Code).Str("reason", reason).Msg("room closed")
	return nil
}

// Snapshot returns the current room state for client reconciliation. The
// store is authoritative; the redis cache serves only when the store is
// unavailable.
func (r *RoomRegistry) Snapshot(ctx context.Context, code string) (*SnapshotView, error) {
	room, err := r.loadRoom(ctx, code)
	if err != nil {
		if KindOf(err) == KindTransient && r.snapshots != nil {
			if cached, cacheErr := r.snapshots.Get(ctx, code); cacheErr == nil {
				return cached, nil
			}
		}
		return nil, err
	}
	snapshot := &SnapshotView{Room: room.View()}
	if r.sessionView != nil {
		snapshot.Session = r.sessionView(ctx, code)
	}
	return snapshot, nil
}

func (r *RoomRegistry) refreshSnapshot(ctx context.Context, room *models.Room) {
	if r.snapshots == nil {
		return
	}
	snapshot := SnapshotView{Room: room.View()}
	r.snapshots.Store(ctx, snapshot)
}

func (r *RoomRegistry) loadRoom(ctx context.Context, code string) (*models.Room, error) {
	room, err := r.store.FindRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, transient("loading room", err)
	}
	return room, nil
}

func (r *RoomRegistry) findGame(ctx context.Context, gameID uint) (*models.GameMeta, error) {
	game, err := r.store.FindGameMeta(ctx, gameID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, transient("loading game meta", err)
	}
	return game, nil
}

func findPlayer(room *models.Room, playerID string) *models.Player {
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			return &room.Players[i]
		}
	}
	return nil
}

func isHost(room *models.Room, player *models.Player) bool {
	return room.HostUserID != nil && player.UserID != nil && *room.HostUserID == *player.UserID
}

func requireHost(room *models.Room, userID *string) error {
	if room.HostUserID == nil {
		return nil
	}
	if userID == nil || *userID != *room.HostUserID {
		return ErrNotHost
	}
	return nil
}

func normalizeSettings(s models.RoomSettings) (models.RoomSettings, error) {
	if s.RoundCount == 0 {
		s.RoundCount = defaultRoundCount
	}
	if s.TimePerPromptSeconds == 0 {
		s.TimePerPromptSeconds = defaultPromptTime
	}
	if s.RoundCount < minRoundCount || s.RoundCount > maxRoundCount {
		return s, ErrInvalidSettings
	}
	if s.TimePerPromptSeconds < minPromptTime || s.TimePerPromptSeconds > maxPromptTime {
		return s, ErrInvalidSettings
	}
	if s.MaxPlayers != 0 && (s.MaxPlayers < minMaxPlayers || s.MaxPlayers > maxMaxPlayers) {
		return s, ErrInvalidSettings
	}
	return s, nil
}
