package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Participant is a player as known to the chat platform.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p Participant) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Status is the lifecycle state of a session.
type Status int32

const (
	StatusPending Status = iota
	StatusAccepted
	StatusDeclined
	StatusExpired
	StatusInProgress
	StatusCompleted
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusDeclined:
		return "declined"
	case StatusExpired:
		return "expired"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusPending; st <= StatusAbandoned; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", text)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusExpired, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Kind distinguishes direct challenges from matchmade sessions.
type Kind int

const (
	KindChallenge Kind = iota
	KindQueue
)

func (k Kind) prefix() string {
	if k == KindQueue {
		return "queue"
	}
	return "challenge"
}

// IDFor returns the session id an initiator's session of the given kind uses.
func IDFor(kind Kind, initiatorID string) string {
	return kind.prefix() + "-" + initiatorID
}

// Session is one challenge-to-completion lifecycle between two participants.
//
// The status only moves through compare-and-swap, so when two sources race
// (a response and the acceptance deadline) exactly one transition wins.
type Session struct {
	ID             string
	Kind           Kind
	Initiator      Participant
	Target         Participant
	BestOf         int
	CreatedAt      time.Time
	AcceptDeadline time.Time

	status   atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

func newSession(req Request) *Session {
	return &Session{
		ID:             IDFor(req.Kind, req.Initiator.ID),
		Kind:           req.Kind,
		Initiator:      req.Initiator,
		Target:         req.Target,
		BestOf:         req.BestOf,
		CreatedAt:      req.CreatedAt,
		AcceptDeadline: req.AcceptDeadline,
		done:           make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) transition(from, to Status) bool {
	return s.status.CompareAndSwap(int32(from), int32(to))
}

// Accept records the target's acceptance. It fails unless the session is Pending.
func (s *Session) Accept() bool { return s.transition(StatusPending, StatusAccepted) }

// Decline records the target's refusal. It fails unless the session is Pending.
func (s *Session) Decline() bool { return s.transition(StatusPending, StatusDeclined) }

// Expire closes the acceptance window. It fails unless the session is Pending.
func (s *Session) Expire() bool { return s.transition(StatusPending, StatusExpired) }

// Start marks the series as running.
func (s *Session) Start() bool { return s.transition(StatusAccepted, StatusInProgress) }

// Complete marks the series as finished.
func (s *Session) Complete() bool { return s.transition(StatusInProgress, StatusCompleted) }

// Abandon tears down a live session after a failure.
func (s *Session) Abandon() bool {
	for {
		cur := s.Status()
		if cur.Terminal() {
			return false
		}
		if s.transition(cur, StatusAbandoned) {
			return true
		}
	}
}

// Involves reports whether playerID is one of the two participants.
func (s *Session) Involves(playerID string) bool {
	return s.Initiator.ID == playerID || s.Target.ID == playerID
}

// Opponent returns the other participant.
func (s *Session) Opponent(playerID string) Participant {
	if s.Initiator.ID == playerID {
		return s.Target
	}
	return s.Initiator
}

// Done is closed once the session is terminal and out of the registry.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Info is a point-in-time view of a session.
type Info struct {
	ID             string      `json:"id"`
	Initiator      Participant `json:"initiator"`
	Target         Participant `json:"target"`
	BestOf         int         `json:"bestOf"`
	Status         Status      `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	AcceptDeadline time.Time   `json:"acceptDeadline"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	return Info{
		ID:             s.ID,
		Initiator:      s.Initiator,
		Target:         s.Target,
		BestOf:         s.BestOf,
		Status:         s.Status(),
		CreatedAt:      s.CreatedAt,
		AcceptDeadline: s.AcceptDeadline,
	}
}
