package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pepe999/PartyGames-BE/models"
)

const (
	answerPoints = 100
	revealDelay  = 5 * time.Second
)

const (
	phaseRoundActive = "round-active"
	phaseRoundReveal = "round-reveal"
)

const (
	WinnerTeamA = "A"
	WinnerTeamB = "B"
	WinnerDraw  = "draw"
)

// sessionState is the ephemeral per-room round bookkeeping. It exists only
// while the room is PLAYING and is owned by the room's actor: every read
// and write of its fields happens inside actor commands. The generation
// counter guards reveal timers, so a timer superseded by manual advance,
// early finish or room deletion is a guaranteed no-op.
type sessionState struct {
	roomCode   string
	gameID     uint
	promptKind string

	roundIndex int
	roundCount int
	promptTime time.Duration

	phase          string
	current        *promptEntry
	roundStartedAt time.Time
	scores         map[string]int

	gen   int
	timer *time.Timer
}

// SessionView is the outward summary of a running session. The answer key
// of the current prompt is withheld.
type SessionView struct {
	RoomCode       string             `json:"room_code"`
	RoundIndex     int                `json:"round_index"`
	RoundCount     int                `json:"round_count"`
	Phase          string             `json:"phase"`
	Prompt         *models.PromptView `json:"prompt,omitempty"`
	RoundStartedAt time.Time          `json:"round_started_at"`
	Scores         map[string]int     `json:"scores"`
}

// SessionCoordinator drives the round state machine for every playing
// room: Idle → RoundActive → RoundReveal → (RoundActive | Finished). All
// transitions run inside the room's actor.
type SessionCoordinator struct {
	store   Store
	sup     *Supervisor
	catalog *PromptCatalog
	bus     Broadcaster
	reg     *RoomRegistry
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState

	// afterFunc is swappable so tests can fire timers deterministically.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

func NewSessionCoordinator(store Store, sup *Supervisor, catalog *PromptCatalog, bus Broadcaster, reg *RoomRegistry, log zerolog.Logger) *SessionCoordinator {
	return &SessionCoordinator{
		store:     store,
		sup:       sup,
		catalog:   catalog,
		bus:       bus,
		reg:       reg,
		sessions:  make(map[string]*sessionState),
		afterFunc: time.AfterFunc,
		log:       log.With().Str("component", "session").Logger(),
	}
}

// Begin initializes session state for a room that just transitioned to
// PLAYING and starts the first round. Idempotent for an already running
// session.
func (c *SessionCoordinator) Begin(ctx context.Context, code string) error {
	var opErr error
	if err := c.sup.Do(ctx, code, func() {
		opErr = c.beginLocked(ctx, code)
	}); err != nil {
		return err
	}
	return opErr
}

func (c *SessionCoordinator) beginLocked(ctx context.Context, code string) error {
	if c.state(code) != nil {
		return nil
	}
	room, err := c.reg.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusPlaying {
		return ErrRoomNotPlaying
	}
	game, err := c.reg.findGame(ctx, room.GameID)
	if err != nil {
		return err
	}

	s := &sessionState{
		roomCode:   code,
		gameID:     room.GameID,
		promptKind: game.PromptKind,
		roundCount: room.Settings.RoundCount,
		promptTime: time.Duration(room.Settings.TimePerPromptSeconds) * time.Second,
		scores:     map[string]int{models.TeamA: 0, models.TeamB: 0},
	}
	c.setState(code, s)
	return c.startRoundLocked(ctx, s)
}

func (c *SessionCoordinator) startRoundLocked(ctx context.Context, s *sessionState) error {
	entry, err := c.catalog.Draw(ctx, s.gameID, s.promptKind)
	if err != nil {
		if err == ErrNoPrompts {
			// Out of content: finish with whatever has been scored so far.
			c.log.Warn().Str("room", s.roomCode).Msg("no prompts left, finishing early")
			return c.finishLocked(ctx, s)
		}
		return err
	}

	s.roundIndex++
	s.current = entry
	s.phase = phaseRoundActive
	s.roundStartedAt = time.Now().UTC()

	c.bus.Publish(s.roomCode, EventPromptShow, map[string]any{
		"round_index": s.roundIndex,
		"round_count": s.roundCount,
		"prompt":      entry.Prompt.PublicView(entry.Payload),
		"seconds":     int(s.promptTime / time.Second),
	})
	c.armTimer(s, s.promptTime)
	return nil
}

// armTimer schedules the next automatic transition. Bumping the generation
// first invalidates any timer still in flight.
func (c *SessionCoordinator) armTimer(s *sessionState, d time.Duration) {
	s.gen++
	gen := s.gen
	code := s.roomCode
	s.timer = c.afterFunc(d, func() {
		c.fire(code, gen)
	})
}

// fire runs a timer callback through the room's actor. A deleted room has
// no actor and a superseded timer fails the generation check, so both
// degrade to silent no-ops.
func (c *SessionCoordinator) fire(code string, gen int) {
	_ = c.sup.Do(context.Background(), code, func() {
		s := c.state(code)
		if s == nil || s.gen != gen {
			return
		}
		ctx := context.Background()
		var err error
		switch s.phase {
		case phaseRoundActive:
			err = c.revealLocked(s)
		case phaseRoundReveal:
			err = c.advanceLocked(ctx, s)
		}
		if err != nil {
			c.log.Error().Str("room", code).Err(err).Msg("session timer transition failed")
		}
	})
}

// revealLocked ends the active round. Reveal is purely timer-driven; there
// is no early reveal when everyone has answered.
func (c *SessionCoordinator) revealLocked(s *sessionState) error {
	s.phase = phaseRoundReveal
	c.bus.Publish(s.roomCode, EventRoundResult, map[string]any{
		"round_index": s.roundIndex,
		"answer":      answerKey(s.current.Payload),
		"scores":      s.scores,
	})
	c.armTimer(s, revealDelay)
	return nil
}

func (c *SessionCoordinator) advanceLocked(ctx context.Context, s *sessionState) error {
	if s.roundIndex >= s.roundCount {
		return c.finishLocked(ctx, s)
	}
	return c.startRoundLocked(ctx, s)
}

func (c *SessionCoordinator) finishLocked(ctx context.Context, s *sessionState) error {
	room, err := c.reg.loadRoom(ctx, s.roomCode)
	if err != nil {
		return err
	}
	if err := c.reg.finishRoomLocked(ctx, room); err != nil {
		return err
	}
	c.bus.Publish(s.roomCode, EventGameFinished, map[string]any{
		"winner":        computeWinner(s.scores),
		"scores":        s.scores,
		"rounds_played": s.roundIndex,
	})
	c.log.Info().Str("room", s.roomCode).Int("rounds", s.roundIndex).Msg("game finished")
	c.End(s.roomCode)
	return nil
}

type SubmitAnswerInput struct {
	OptionIndex *int
	Text        string
}

// SubmitAnswer scores a submission against the hidden key during an active
// round. A correct answer awards a fixed point value to the submitter's
// team; repeated submissions by the same player keep counting.
func (c *SessionCoordinator) SubmitAnswer(ctx context.Context, code, playerID string, in SubmitAnswerInput) error {
	var opErr error
	if err := c.sup.Do(ctx, code, func() {
		opErr = c.submitLocked(ctx, code, playerID, in)
	}); err != nil {
		return err
	}
	return opErr
}

func (c *SessionCoordinator) submitLocked(ctx context.Context, code, playerID string, in SubmitAnswerInput) error {
	s := c.state(code)
	if s == nil || s.phase != phaseRoundActive {
		return ErrNoActiveRound
	}
	room, err := c.reg.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	player := findPlayer(room, playerID)
	if player == nil {
		return ErrPlayerNotFound
	}

	c.bus.Publish(code, EventAnswerSubmitted, map[string]any{
		"player_id":   player.ID,
		"round_index": s.roundIndex,
	})

	if !answerMatches(s.current.Payload, in) {
		return nil
	}
	if player.Team != models.TeamA && player.Team != models.TeamB {
		return nil
	}

	s.scores[player.Team] += answerPoints
	if err := c.store.UpdatePlayerFields(ctx, player.ID, map[string]any{"score": player.Score + answerPoints}); err != nil {
		return transient("updating player score", err)
	}
	return nil
}

// RequestNextPrompt is the host-triggered manual advance, valid only during
// the reveal phase. It cancels the pending auto-advance timer.
func (c *SessionCoordinator) RequestNextPrompt(ctx context.Context, code string, userID *string) error {
	var opErr error
	if err := c.sup.Do(ctx, code, func() {
		s := c.state(code)
		if s == nil {
			opErr = ErrNoActiveRound
			return
		}
		if s.phase != phaseRoundReveal {
			opErr = ErrNotInReveal
			return
		}
		room, err := c.reg.loadRoom(ctx, code)
		if err != nil {
			opErr = err
			return
		}
		if err := requireHost(room, userID); err != nil {
			opErr = err
			return
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		s.gen++
		opErr = c.advanceLocked(ctx, s)
	}); err != nil {
		return err
	}
	return opErr
}

// View returns the session summary for the snapshot endpoint, or nil when
// the room is not playing.
func (c *SessionCoordinator) View(ctx context.Context, code string) *SessionView {
	var view *SessionView
	_ = c.sup.Do(ctx, code, func() {
		s := c.state(code)
		if s == nil {
			return
		}
		scores := make(map[string]int, len(s.scores))
		for team, score := range s.scores {
			scores[team] = score
		}
		view = &SessionView{
			RoomCode:       s.roomCode,
			RoundIndex:     s.roundIndex,
			RoundCount:     s.roundCount,
			Phase:          s.phase,
			RoundStartedAt: s.roundStartedAt,
			Scores:         scores,
		}
		if s.current != nil {
			pv := s.current.Prompt.PublicView(s.current.Payload)
			view.Prompt = &pv
		}
	})
	return view
}

// End discards session state and stops any pending timer. Safe to call for
// rooms without a session.
func (c *SessionCoordinator) End(code string) {
	c.mu.Lock()
	s, ok := c.sessions[code]
	if ok {
		delete(c.sessions, code)
	}
	c.mu.Unlock()
	if ok && s.timer != nil {
		s.timer.Stop()
	}
}

func (c *SessionCoordinator) state(code string) *sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[code]
}

func (c *SessionCoordinator) setState(code string, s *sessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[code] = s
}

func computeWinner(scores map[string]int) string {
	switch {
	case scores[models.TeamA] > scores[models.TeamB]:
		return WinnerTeamA
	case scores[models.TeamB] > scores[models.TeamA]:
		return WinnerTeamB
	default:
		return WinnerDraw
	}
}

// answerKey is the hidden correct answer, revealed only in round-result.
func answerKey(payload models.PromptPayload) map[string]any {
	switch body := payload.(type) {
	case models.QuestionPayload:
		return map[string]any{
			"correct_index": body.CorrectIndex,
			"text":          body.Options[body.CorrectIndex],
		}
	case models.WordPayload:
		return map[string]any{"term": body.Term}
	case models.PhrasePayload:
		return map[string]any{"text": body.Text}
	}
	return nil
}

func answerMatches(payload models.PromptPayload, in SubmitAnswerInput) bool {
	switch body := payload.(type) {
	case models.QuestionPayload:
		return in.OptionIndex != nil && *in.OptionIndex == body.CorrectIndex
	case models.WordPayload:
		return strings.EqualFold(strings.TrimSpace(in.Text), body.Term)
	case models.PhrasePayload:
		return strings.EqualFold(strings.TrimSpace(in.Text), body.Text)
	}
	return false
}
