package services

// Event names published on room channels. Clients that miss one reconcile
// through the room snapshot endpoint; there is no replay buffer.
const (
	EventRoomUpdated     = "room-updated"
	EventPlayerJoined    = "player-joined"
	EventPlayerLeft      = "player-left"
	EventHostTransferred = "host-transferred"
	EventRoomClosed      = "room-closed"
	EventGameStarted     = "game-started"
	EventPromptShow      = "prompt-show"
	EventAnswerSubmitted = "answer-submitted"
	EventRoundResult     = "round-result"
	EventGameFinished    = "game-finished"
)

// Reason codes carried by room-closed and player-left events.
const (
	ReasonHostLeft         = "host-left"
	ReasonHostDisconnected = "host-disconnected"
	ReasonRoomEmpty        = "empty"
	ReasonLeft             = "left"
	ReasonDisconnected     = "disconnected"
)
