package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// roomActor serializes every mutating command for one room. Commands are
// closures executed strictly in submission order by a single goroutine, so
// read-then-write sequences against the store cannot interleave for the
// same room. Different rooms run fully in parallel.
type roomActor struct {
	cmds chan func()
	quit chan struct{}
}

func (a *roomActor) run() {
	for {
		select {
		case fn := <-a.cmds:
			fn()
		case <-a.quit:
			return
		}
	}
}

// Supervisor owns the room-code → actor map with deterministic creation and
// teardown tied to room lifecycle events.
type Supervisor struct {
	mu     sync.Mutex
	actors map[string]*roomActor
	log    zerolog.Logger
}

func NewSupervisor(log zerolog.Logger) *Supervisor {
	return &Supervisor{
		actors: make(map[string]*roomActor),
		log:    log.With().Str("component", "supervisor").Logger(),
	}
}

// Spawn starts an actor for a freshly created room. Spawning an already
// live code is a no-op.
func (s *Supervisor) Spawn(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[code]; ok {
		return
	}
	a := &roomActor{
		cmds: make(chan func(), 64),
		quit: make(chan struct{}),
	}
	s.actors[code] = a
	go a.run()
	s.log.Debug().Str("room", code).Msg("room actor spawned")
}

// Stop tears the actor down. Queued commands that have not started are
// dropped; callers waiting in Do observe ErrRoomNotFound. Safe to call from
// inside the actor's own command.
func (s *Supervisor) Stop(code string) {
	s.mu.Lock()
	a, ok := s.actors[code]
	if ok {
		delete(s.actors, code)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	close(a.quit)
	s.log.Debug().Str("room", code).Msg("room actor stopped")
}

// Alive reports whether a room actor is currently running.
func (s *Supervisor) Alive(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.actors[code]
	return ok
}

// Do submits fn to the room's actor and waits for it to finish. Returns
// ErrRoomNotFound when no actor exists (room deleted or never created), so
// stale timer callbacks degrade to silent no-ops.
func (s *Supervisor) Do(ctx context.Context, code string, fn func()) error {
	s.mu.Lock()
	a, ok := s.actors[code]
	s.mu.Unlock()
	if !ok {
		return ErrRoomNotFound
	}

	started := make(chan struct{})
	done := make(chan struct{})
	wrapped := func() {
		close(started)
		defer close(done)
		fn()
	}

	select {
	case a.cmds <- wrapped:
	case <-a.quit:
		return ErrRoomNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-a.quit:
		// The actor can stop itself mid-command (room deletion). A command
		// that already started always runs to completion; one still queued
		// is dropped.
		select {
		case <-started:
			<-done
			return nil
		default:
			return ErrRoomNotFound
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
