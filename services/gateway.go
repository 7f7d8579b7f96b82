package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pepe999/PartyGames-BE/models"
)

const commandTimeout = 10 * time.Second

// Gateway routes inbound websocket commands to the registry and session
// coordinator, and turns transport disconnects into leave/failover
// decisions using the connection's last-known (room, player) identity.
type Gateway struct {
	registry *RoomRegistry
	sessions *SessionCoordinator
	log      zerolog.Logger
}

func NewGateway(registry *RoomRegistry, sessions *SessionCoordinator, log zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		sessions: sessions,
		log:      log.With().Str("component", "gateway").Logger(),
	}
}

// Connected marks the bound player live again; a websocket attach after a
// transport blip is the reconnect path when the player id is still known.
func (g *Gateway) Connected(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := g.registry.HandleReconnect(ctx, c.RoomCode(), c.PlayerID()); err != nil {
		g.log.Debug().Str("room", c.RoomCode()).Str("player", c.PlayerID()).Err(err).Msg("reconnect mark failed")
	}
}

// Disconnected implements CommandRouter. Without a userId-correlated
// rejoin, a disconnect is indistinguishable from a permanent leave.
func (g *Gateway) Disconnected(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := g.registry.HandleDisconnect(ctx, c.RoomCode(), c.PlayerID()); err != nil {
		g.log.Warn().Str("room", c.RoomCode()).Str("player", c.PlayerID()).Err(err).Msg("disconnect handling failed")
	}
}

type teamCommand struct {
	Team string `json:"team"`
}

type readyCommand struct {
	Ready bool `json:"ready"`
}

type answerCommand struct {
	OptionIndex *int   `json:"option_index,omitempty"`
	Text        string `json:"text,omitempty"`
}

type settingsCommand struct {
	Settings models.RoomSettings `json:"settings"`
}

// Route implements CommandRouter.
func (g *Gateway) Route(c *Client, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case "ping":
		c.Send("pong", nil)
		return

	case "leave":
		err = g.registry.Leave(ctx, c.RoomCode(), c.PlayerID())

	case "change_team":
		var cmd teamCommand
		if err = json.Unmarshal(msg.Payload, &cmd); err == nil {
			_, err = g.registry.ChangeTeam(ctx, c.RoomCode(), c.PlayerID(), cmd.Team)
		}

	case "set_ready":
		var cmd readyCommand
		if err = json.Unmarshal(msg.Payload, &cmd); err == nil {
			_, err = g.registry.SetReady(ctx, c.RoomCode(), c.PlayerID(), cmd.Ready)
		}

	case "update_settings":
		var cmd settingsCommand
		if err = json.Unmarshal(msg.Payload, &cmd); err == nil {
			_, err = g.registry.UpdateSettings(ctx, c.RoomCode(), c.UserID(), cmd.Settings)
		}

	case "start_game":
		_, err = g.registry.StartGame(ctx, c.RoomCode(), c.UserID())

	case "submit_answer":
		var cmd answerCommand
		if err = json.Unmarshal(msg.Payload, &cmd); err == nil {
			err = g.sessions.SubmitAnswer(ctx, c.RoomCode(), c.PlayerID(), SubmitAnswerInput{
				OptionIndex: cmd.OptionIndex,
				Text:        cmd.Text,
			})
		}

	case "next_prompt":
		err = g.sessions.RequestNextPrompt(ctx, c.RoomCode(), c.UserID())

	case "request_state":
		snapshot, snapErr := g.registry.Snapshot(ctx, c.RoomCode())
		if snapErr != nil {
			err = snapErr
			break
		}
		c.Send("state_sync", snapshot)
		return

	default:
		c.Send("error", map[string]any{"error": "unknown command " + msg.Type})
		return
	}

	if err != nil {
		g.log.Debug().Str("room", c.RoomCode()).Str("command", msg.Type).Err(err).Msg("command rejected")
		c.Send("error", map[string]any{"command": msg.Type, "error": err.Error()})
	}
}
