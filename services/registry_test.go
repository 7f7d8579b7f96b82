package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepe999/PartyGames-BE/models"
)

const testGameID = uint(1)

type registryEnv struct {
	store *fakeStore
	bus   *fakeBus
	sup   *Supervisor
	reg   *RoomRegistry
}

func newRegistryEnv(t *testing.T) *registryEnv {
	t.Helper()
	store := newFakeStore()
	store.games[testGameID] = &models.GameMeta{
		ID:         testGameID,
		Name:       "Quiz Royale",
		PromptKind: models.PromptKindQuestion,
		MinPlayers: 2,
		MaxPlayers: 8,
		IsOnline:   true,
	}
	log := zerolog.Nop()
	sup := NewSupervisor(log)
	codes := NewCodeAllocator(store, log)
	guard := NewPasswordGuard(&fakeLimiter{allow: true}, log)
	bus := &fakeBus{}
	reg := NewRoomRegistry(store, sup, codes, guard, bus, nil, log)
	return &registryEnv{store: store, bus: bus, sup: sup, reg: reg}
}

func (e *registryEnv) createRoom(t *testing.T, in CreateRoomInput) *models.RoomView {
	t.Helper()
	if in.GameID == 0 {
		in.GameID = testGameID
	}
	room, err := e.reg.CreateRoom(context.Background(), in)
	require.NoError(t, err)
	return room
}

func (e *registryEnv) join(t *testing.T, code, name string, userID *string) *models.Player {
	t.Helper()
	player, err := e.reg.JoinRoom(context.Background(), JoinRoomInput{
		Code:        code,
		DisplayName: name,
		UserID:      userID,
	})
	require.NoError(t, err)
	return player
}

func strptr(s string) *string { return &s }

func TestCreateRoom(t *testing.T) {
	env := newRegistryEnv(t)

	room := env.createRoom(t, CreateRoomInput{Name: "Friday night", Password: "secret"})
	assert.Regexp(t, codePattern, room.Code)
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
	assert.True(t, room.HasPassword)
	assert.True(t, env.sup.Alive(room.Code))

	// The hash never leaves the registry.
	stored := env.store.roomByCode(room.Code)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.PasswordHash)
	assert.NotEqual(t, "secret", stored.PasswordHash)
}

func TestCreateRoomValidation(t *testing.T) {
	env := newRegistryEnv(t)
	env.store.games[2] = &models.GameMeta{ID: 2, Name: "Board only", IsOnline: false}

	_, err := env.reg.CreateRoom(context.Background(), CreateRoomInput{GameID: 99})
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = env.reg.CreateRoom(context.Background(), CreateRoomInput{GameID: 2})
	assert.ErrorIs(t, err, ErrGameNotPlayable)

	_, err = env.reg.CreateRoom(context.Background(), CreateRoomInput{
		GameID:   testGameID,
		Settings: models.RoomSettings{RoundCount: 500},
	})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = env.reg.CreateRoom(context.Background(), CreateRoomInput{
		GameID:   testGameID,
		Settings: models.RoomSettings{TimePerPromptSeconds: 1},
	})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestJoinAutoBalancesTeams(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})

	jan := env.join(t, room.Code, "Jan", nil)
	assert.Equal(t, models.TeamA, jan.Team, "first joiner lands on A")

	petra := env.join(t, room.Code, "Petra", nil)
	assert.Equal(t, models.TeamB, petra.Team, "second joiner balances to B")

	env.join(t, room.Code, "Mila", nil)
	env.join(t, room.Code, "Theo", nil)

	countA, countB := 0, 0
	for _, p := range env.store.roomByCode(room.Code).Players {
		switch p.Team {
		case models.TeamA:
			countA++
		case models.TeamB:
			countB++
		}
	}
	diff := countA - countB
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 1)
}

func TestJoinIdempotentRejoin(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})

	first := env.join(t, room.Code, "Jan", strptr("user-1"))
	again := env.join(t, room.Code, "Jan", strptr("user-1"))
	assert.Equal(t, first.ID, again.ID, "same userId must not create a duplicate")
	assert.Len(t, env.store.roomByCode(room.Code).Players, 1)
}

func TestJoinReconnectsDroppedPlayer(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})

	jan := env.join(t, room.Code, "Jan", strptr("user-1"))
	env.join(t, room.Code, "Petra", nil)
	require.NoError(t, env.reg.HandleDisconnect(context.Background(), room.Code, jan.ID))
	require.False(t, env.store.roomByCode(room.Code).Players[0].Connected)

	back := env.join(t, room.Code, "Jan", strptr("user-1"))
	assert.Equal(t, jan.ID, back.ID)
	assert.True(t, back.Connected)
}

func TestJoinCapacity(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{
		Settings: models.RoomSettings{MaxPlayers: 2},
	})

	env.join(t, room.Code, "Jan", nil)
	env.join(t, room.Code, "Petra", nil)

	_, err := env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Theo"})
	assert.ErrorIs(t, err, ErrRoomFull)

	connected := 0
	for _, p := range env.store.roomByCode(room.Code).Players {
		if p.Connected {
			connected++
		}
	}
	assert.LessOrEqual(t, connected, 2)
}

func TestJoinRejectedAfterStart(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	env.join(t, room.Code, "Jan", nil)
	env.join(t, room.Code, "Petra", nil)

	_, err := env.reg.StartGame(context.Background(), room.Code, nil)
	require.NoError(t, err)

	_, err = env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Theo"})
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestJoinPasswordFlow(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{Password: "secret"})

	_, err := env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Jan"})
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Jan", Password: "nope"})
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Jan", Password: "secret"})
	assert.NoError(t, err)
}

func TestJoinRejectsInvalidInput(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})

	_, err := env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code})
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Jan", Team: "C"})
	assert.ErrorIs(t, err, ErrInvalidTeam)

	_, err = env.reg.JoinRoom(context.Background(), JoinRoomInput{Code: "ZZZZ-ZZZZ", DisplayName: "Jan"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStartGameRequiresMinPlayers(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	env.join(t, room.Code, "Jan", nil)

	_, err := env.reg.StartGame(context.Background(), room.Code, nil)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	assert.Equal(t, models.RoomStatusWaiting, env.store.roomByCode(room.Code).Status)
}

func TestStartGameExactlyOnce(t *testing.T) {
	env := newRegistryEnv(t)
	started := 0
	env.reg.OnGameStarted(func(string) { started++ })

	room := env.createRoom(t, CreateRoomInput{})
	env.join(t, room.Code, "Jan", nil)
	env.join(t, room.Code, "Petra", nil)

	view, err := env.reg.StartGame(context.Background(), room.Code, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPlaying, view.Status)
	assert.NotNil(t, view.StartedAt)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, env.bus.count(EventGameStarted))

	_, err = env.reg.StartGame(context.Background(), room.Code, nil)
	assert.ErrorIs(t, err, ErrRoomNotWaiting)
	assert.Equal(t, 1, started, "start signal fires exactly once")
}

func TestHostOnlyOperations(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{HostUserID: strptr("host-1")})
	env.join(t, room.Code, "Host", strptr("host-1"))
	env.join(t, room.Code, "Petra", strptr("user-2"))

	_, err := env.reg.UpdateSettings(context.Background(), room.Code, strptr("user-2"), models.RoomSettings{RoundCount: 3})
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = env.reg.StartGame(context.Background(), room.Code, nil)
	assert.ErrorIs(t, err, ErrNotHost)

	updated, err := env.reg.UpdateSettings(context.Background(), room.Code, strptr("host-1"), models.RoomSettings{RoundCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Settings.RoundCount)

	_, err = env.reg.StartGame(context.Background(), room.Code, strptr("host-1"))
	assert.NoError(t, err)
}

func TestChangeTeamAndReadyOnlyWhileWaiting(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	jan := env.join(t, room.Code, "Jan", nil)
	env.join(t, room.Code, "Petra", nil)

	moved, err := env.reg.ChangeTeam(context.Background(), room.Code, jan.ID, models.TeamSpectator)
	require.NoError(t, err)
	assert.Equal(t, models.TeamSpectator, moved.Team)

	readied, err := env.reg.SetReady(context.Background(), room.Code, jan.ID, true)
	require.NoError(t, err)
	assert.True(t, readied.Ready)

	_, err = env.reg.ChangeTeam(context.Background(), room.Code, jan.ID, "X")
	assert.ErrorIs(t, err, ErrInvalidTeam)

	_, err = env.reg.StartGame(context.Background(), room.Code, nil)
	require.NoError(t, err)

	_, err = env.reg.ChangeTeam(context.Background(), room.Code, jan.ID, models.TeamA)
	assert.ErrorIs(t, err, ErrRoomNotWaiting)
	_, err = env.reg.SetReady(context.Background(), room.Code, jan.ID, false)
	assert.ErrorIs(t, err, ErrRoomNotWaiting)
}

func TestLeaveLastPlayerDeletesRoom(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	jan := env.join(t, room.Code, "Jan", nil)

	require.NoError(t, env.reg.Leave(context.Background(), room.Code, jan.ID))

	assert.Nil(t, env.store.roomByCode(room.Code))
	assert.Equal(t, 1, env.bus.count(EventRoomClosed))
	assert.False(t, env.sup.Alive(room.Code))
}

func TestHostLeaveTransfersToEarliestJoined(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{HostUserID: strptr("host-1")})
	host := env.join(t, room.Code, "Host", strptr("host-1"))
	p1 := env.join(t, room.Code, "Petra", strptr("user-2"))
	env.join(t, room.Code, "Theo", strptr("user-3"))

	require.NoError(t, env.reg.Leave(context.Background(), room.Code, host.ID))

	stored := env.store.roomByCode(room.Code)
	require.NotNil(t, stored)
	require.NotNil(t, stored.HostUserID)
	assert.Equal(t, "user-2", *stored.HostUserID, "earliest-joined connected player becomes host")

	ev, ok := env.bus.last(EventHostTransferred)
	require.True(t, ok)
	payload := ev.Payload.(map[string]any)
	assert.Equal(t, p1.ID, payload["new_host_player_id"])
	assert.Equal(t, "user-2", *payload["new_host_user_id"].(*string))
	assert.Equal(t, ReasonHostLeft, payload["reason"])
}

func TestHostFailoverSkipsDisconnected(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{HostUserID: strptr("host-1")})
	host := env.join(t, room.Code, "Host", strptr("host-1"))
	petra := env.join(t, room.Code, "Petra", strptr("user-2"))
	env.join(t, room.Code, "Theo", strptr("user-3"))

	require.NoError(t, env.reg.HandleDisconnect(context.Background(), room.Code, petra.ID))
	require.NoError(t, env.reg.Leave(context.Background(), room.Code, host.ID))

	stored := env.store.roomByCode(room.Code)
	require.NotNil(t, stored)
	require.NotNil(t, stored.HostUserID)
	assert.Equal(t, "user-3", *stored.HostUserID)
}

func TestHostDisconnectWithoutSuccessorClosesRoom(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{HostUserID: strptr("host-1")})
	host := env.join(t, room.Code, "Host", strptr("host-1"))

	require.NoError(t, env.reg.HandleDisconnect(context.Background(), room.Code, host.ID))

	assert.Nil(t, env.store.roomByCode(room.Code))
	require.Equal(t, 1, env.bus.count(EventRoomClosed))
	ev, _ := env.bus.last(EventRoomClosed)
	assert.Equal(t, ReasonHostDisconnected, ev.Payload.(map[string]any)["reason"])
}

func TestDisconnectSoftRemoves(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	jan := env.join(t, room.Code, "Jan", nil)
	env.join(t, room.Code, "Petra", nil)

	require.NoError(t, env.reg.HandleDisconnect(context.Background(), room.Code, jan.ID))

	stored := env.store.roomByCode(room.Code)
	require.Len(t, stored.Players, 2, "disconnect keeps the record")
	for _, p := range stored.Players {
		if p.ID == jan.ID {
			assert.False(t, p.Connected)
		}
	}

	require.NoError(t, env.reg.HandleReconnect(context.Background(), room.Code, jan.ID))
	for _, p := range env.store.roomByCode(room.Code).Players {
		if p.ID == jan.ID {
			assert.True(t, p.Connected)
		}
	}
}

func TestSelectSuccessor(t *testing.T) {
	now := time.Now()
	room := &models.Room{Players: []models.Player{
		{ID: "host", Connected: true, JoinedAt: now},
		{ID: "p2", Connected: true, JoinedAt: now.Add(2 * time.Second)},
		{ID: "p1", Connected: true, JoinedAt: now.Add(time.Second)},
		{ID: "gone", Connected: false, JoinedAt: now.Add(-time.Second)},
	}}

	successor := SelectSuccessor(room, "host")
	require.NotNil(t, successor)
	assert.Equal(t, "p1", successor.ID, "earliest-joined connected player wins")

	assert.Nil(t, SelectSuccessor(&models.Room{Players: []models.Player{
		{ID: "host", Connected: true, JoinedAt: now},
	}}, "host"))
}

func TestSelectSuccessorTieBreak(t *testing.T) {
	now := time.Now()
	room := &models.Room{Players: []models.Player{
		{ID: "host", Connected: true, JoinedAt: now},
		{ID: "bbb", Connected: true, JoinedAt: now.Add(time.Second)},
		{ID: "aaa", Connected: true, JoinedAt: now.Add(time.Second)},
	}}
	successor := SelectSuccessor(room, "host")
	require.NotNil(t, successor)
	assert.Equal(t, "aaa", successor.ID)
}

func TestFinishGameReleasesActorAndKeepsSnapshot(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	env.join(t, room.Code, "Jan", nil)
	env.join(t, room.Code, "Petra", nil)
	_, err := env.reg.StartGame(context.Background(), room.Code, nil)
	require.NoError(t, err)

	view, err := env.reg.FinishGame(context.Background(), room.Code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, view.Status)
	assert.False(t, env.sup.Alive(room.Code), "finished rooms release their actor")

	// Terminal state stays readable so clients that missed the final
	// broadcast can reconcile.
	snapshot, err := env.reg.Snapshot(context.Background(), room.Code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusFinished, snapshot.Room.Status)
	assert.Len(t, snapshot.Room.Players, 2)

	exists, err := env.store.RoomCodeExists(context.Background(), room.Code)
	require.NoError(t, err)
	assert.False(t, exists, "finished rooms free their code")
}

func TestJoinValidatesInputBeforePasswordCheck(t *testing.T) {
	store := newFakeStore()
	store.games[testGameID] = &models.GameMeta{
		ID: testGameID, MinPlayers: 2, MaxPlayers: 8, IsOnline: true,
		PromptKind: models.PromptKindQuestion,
	}
	limiter := &fakeLimiter{allow: true}
	log := zerolog.Nop()
	sup := NewSupervisor(log)
	reg := NewRoomRegistry(store, sup, NewCodeAllocator(store, log), NewPasswordGuard(limiter, log), &fakeBus{}, nil, log)

	room, err := reg.CreateRoom(context.Background(), CreateRoomInput{GameID: testGameID, Password: "secret"})
	require.NoError(t, err)

	_, err = reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, Password: "secret"})
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Jan", Team: "X", Password: "secret"})
	assert.ErrorIs(t, err, ErrInvalidTeam)
	assert.Equal(t, 0, limiter.attempts(), "malformed joins never charge the limiter")

	_, err = reg.JoinRoom(context.Background(), JoinRoomInput{Code: room.Code, DisplayName: "Jan", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.attempts())
}

func TestSnapshotReturnsRoomState(t *testing.T) {
	env := newRegistryEnv(t)
	room := env.createRoom(t, CreateRoomInput{})
	env.join(t, room.Code, "Jan", nil)

	snapshot, err := env.reg.Snapshot(context.Background(), room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.Code, snapshot.Room.Code)
	assert.Len(t, snapshot.Room.Players, 1)
	assert.Nil(t, snapshot.Session)
}
