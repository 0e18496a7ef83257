package session

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/rps"
)

// Messenger is the chat-side collaborator the engine talks through.
//
// Prompt calls block until the player answers or ctx is done; when ctx is
// cancelled they must return promptly with an error. The engine turns a
// cancellation caused by its own deadline into a timeout, and any other error
// into ErrCollaboratorUnavailable.
type Messenger interface {
	Notify(ctx context.Context, to Participant, n Notice) error
	PromptChallenge(ctx context.Context, to Participant, p ChallengePrompt) (Response, error)
	PromptMove(ctx context.Context, to Participant, p MovePrompt) (rps.Move, error)
}

// Response is the target's answer to a challenge.
type Response int

const (
	Decline Response = iota
	Accept
)

func (r Response) String() string {
	if r == Accept {
		return "accept"
	}
	return "decline"
}

// ChallengePrompt asks the target to accept or decline.
type ChallengePrompt struct {
	SessionID string      `json:"sessionId"`
	From      Participant `json:"from"`
	BestOf    int         `json:"bestOf"`
	Deadline  time.Time   `json:"deadline"`
}

// MovePrompt asks a participant for their move in one round.
type MovePrompt struct {
	SessionID     string      `json:"sessionId"`
	Opponent      Participant `json:"opponent"`
	Round         int         `json:"round"`
	BestOf        int         `json:"bestOf"`
	Score         int         `json:"score"`
	OpponentScore int         `json:"opponentScore"`
	Deadline      time.Time   `json:"deadline"`
}

// NoticeKind identifies a one-way notification.
type NoticeKind string

const (
	NoticeChallengeAccepted NoticeKind = "challenge_accepted"
	NoticeChallengeDeclined NoticeKind = "challenge_declined"
	NoticeChallengeExpired  NoticeKind = "challenge_expired"
	NoticeChallengeFailed   NoticeKind = "challenge_failed"
	NoticeSeriesStarted     NoticeKind = "series_started"
	NoticeRoundResult       NoticeKind = "round_result"
	NoticeSeriesWon         NoticeKind = "series_won"
	NoticeSeriesLost        NoticeKind = "series_lost"
	NoticeSeriesForfeited   NoticeKind = "series_forfeited"
	NoticeSeriesAbandoned   NoticeKind = "series_abandoned"
	NoticePromoted          NoticeKind = "promoted"
	NoticeDemoted           NoticeKind = "demoted"
	NoticeQueueJoined       NoticeKind = "queue_joined"
	NoticeQueueExpired      NoticeKind = "queue_expired"
)

// Result is a round or series result from the recipient's point of view.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultTie  Result = "tie"
	// ResultNone marks a series that ended without a winner.
	ResultNone Result = "none"
)

// Notice is a one-way message to a participant. Which fields are set depends on Kind.
type Notice struct {
	Kind          NoticeKind     `json:"kind"`
	SessionID     string         `json:"sessionId,omitempty"`
	Opponent      Participant    `json:"opponent"`
	BestOf        int            `json:"bestOf,omitempty"`
	Round         int            `json:"round,omitempty"`
	Move          rps.Move       `json:"move,omitempty"`
	OpponentMove  rps.Move       `json:"opponentMove,omitempty"`
	Result        Result         `json:"result,omitempty"`
	Score         int            `json:"score"`
	OpponentScore int            `json:"opponentScore"`
	Rating        *rating.Change `json:"rating,omitempty"`
	Tier          string         `json:"tier,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

func (n Notice) String() string {
	return fmt.Sprintf("%s(%s)", n.Kind, n.SessionID)
}
