package server

import (
	"encoding/json"
	"time"

	"github.com/lox/rpsbot/internal/leaderboard"
	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/session"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName,omitempty"`
}

type ChallengeData struct {
	TargetID string `json:"targetId"`
	BestOf   int    `json:"bestOf,omitempty"`
}

type RespondData struct {
	SessionID string `json:"sessionId"`
	Accept    bool   `json:"accept"`
}

type MoveData struct {
	SessionID string `json:"sessionId"`
	Move      string `json:"move"`
}

type QueueData struct {
	WaitMinutes int `json:"waitMinutes,omitempty"`
}

type LeaderboardRequestData struct {
	Tier string `json:"tier,omitempty"`
}

type ProfileRequestData struct {
	PlayerID string `json:"playerId,omitempty"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChallengeSentData struct {
	Session session.Info `json:"session"`
}

type ChallengePromptData struct {
	SessionID      string              `json:"sessionId"`
	From           session.Participant `json:"from"`
	BestOf         int                 `json:"bestOf"`
	Deadline       time.Time           `json:"deadline"`
	TimeoutSeconds int                 `json:"timeoutSeconds"`
}

type MovePromptData struct {
	SessionID      string              `json:"sessionId"`
	Opponent       session.Participant `json:"opponent"`
	Round          int                 `json:"round"`
	BestOf         int                 `json:"bestOf"`
	Score          int                 `json:"score"`
	OpponentScore  int                 `json:"opponentScore"`
	Deadline       time.Time           `json:"deadline"`
	TimeoutSeconds int                 `json:"timeoutSeconds"`
}

type MoveAcceptedData struct {
	SessionID string `json:"sessionId"`
	Round     int    `json:"round"`
}

type QueueTicketData struct {
	Waiting   bool      `json:"waiting"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
	SessionID string    `json:"sessionId,omitempty"`
}

type QueueLeftData struct {
	Removed bool `json:"removed"`
}

type LeaderboardResponseData struct {
	Board leaderboard.Board `json:"board"`
}

type ProfileData struct {
	Record rating.Record `json:"record"`
	Tier   rating.Tier   `json:"tier"`
	Busy   bool          `json:"busy"`
}

// NoticeData is a session.Notice as sent on the wire.
type NoticeData = session.Notice
