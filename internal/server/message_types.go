package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeChallenge   MessageType = "challenge"
	MessageTypeRespond     MessageType = "respond"
	MessageTypeMove        MessageType = "move"
	MessageTypeQueue       MessageType = "queue"
	MessageTypeLeave       MessageType = "leave"
	MessageTypeLeaderboard MessageType = "leaderboard"
	MessageTypeRefresh     MessageType = "refresh"
	MessageTypeProfile     MessageType = "profile"

	// Server to client messages
	MessageTypeError           MessageType = "error"
	MessageTypeAuthResponse    MessageType = "auth_response"
	MessageTypeChallengeSent   MessageType = "challenge_sent"
	MessageTypeChallengePrompt MessageType = "challenge_prompt"
	MessageTypeMovePrompt      MessageType = "move_prompt"
	MessageTypeMoveAccepted    MessageType = "move_accepted"
	MessageTypeNotice          MessageType = "notice"
	MessageTypeQueueTicket     MessageType = "queue_ticket"
	MessageTypeQueueLeft       MessageType = "queue_left"
	MessageTypeLeaderboardData MessageType = "leaderboard_data"
	MessageTypeProfileData     MessageType = "profile_data"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
