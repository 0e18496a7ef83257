package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/rpsbot/internal/rps"
)

// fakeMessenger scripts the participants' side of a session. Moves queued
// with script are handed out in order; once a player's script is empty their
// prompt blocks until the context ends, which is how a timeout is simulated.
type fakeMessenger struct {
	mu      sync.Mutex
	notices map[string][]Notice
	moves   map[string]chan rps.Move
	failOn  map[string]error
	panicOn map[string]bool
	late    map[string]rps.Move

	challenges chan ChallengePrompt
	responses  chan Response
	prompted   chan string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		notices:    make(map[string][]Notice),
		moves:      make(map[string]chan rps.Move),
		failOn:     make(map[string]error),
		panicOn:    make(map[string]bool),
		late:       make(map[string]rps.Move),
		challenges: make(chan ChallengePrompt, 8),
		responses:  make(chan Response, 8),
		prompted:   make(chan string, 64),
	}
}

func (f *fakeMessenger) script(playerID string, moves ...rps.Move) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.moves[playerID]
	if !ok {
		ch = make(chan rps.Move, 16)
		f.moves[playerID] = ch
	}
	for _, m := range moves {
		ch <- m
	}
}

func (f *fakeMessenger) fail(playerID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[playerID] = err
}

// explode makes every move prompt to playerID panic.
func (f *fakeMessenger) explode(playerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicOn[playerID] = true
}

// answerLate makes playerID reply with m only once the prompt's context has
// ended, the way a reply can race the round deadline.
func (f *fakeMessenger) answerLate(playerID string, m rps.Move) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.late[playerID] = m
}

func (f *fakeMessenger) remaining(playerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves[playerID])
}

func (f *fakeMessenger) Notify(ctx context.Context, to Participant, n Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices[to.ID] = append(f.notices[to.ID], n)
	return nil
}

func (f *fakeMessenger) PromptChallenge(ctx context.Context, to Participant, p ChallengePrompt) (Response, error) {
	f.mu.Lock()
	err := f.failOn[to.ID]
	f.mu.Unlock()
	if err != nil {
		return Decline, err
	}

	f.challenges <- p
	select {
	case r := <-f.responses:
		return r, nil
	case <-ctx.Done():
		return Decline, context.Cause(ctx)
	}
}

func (f *fakeMessenger) PromptMove(ctx context.Context, to Participant, _ MovePrompt) (rps.Move, error) {
	f.mu.Lock()
	err := f.failOn[to.ID]
	explode := f.panicOn[to.ID]
	late, isLate := f.late[to.ID]
	ch, ok := f.moves[to.ID]
	if !ok {
		ch = make(chan rps.Move, 16)
		f.moves[to.ID] = ch
	}
	f.mu.Unlock()

	f.prompted <- to.ID
	if explode {
		panic("messenger blew up")
	}
	if err != nil {
		return 0, err
	}
	if isLate {
		<-ctx.Done()
		return late, nil
	}

	select {
	case m := <-ch:
		return m, nil
	default:
	}
	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return 0, context.Cause(ctx)
	}
}

func (f *fakeMessenger) noticesFor(playerID string) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notice(nil), f.notices[playerID]...)
}

func (f *fakeMessenger) kindsFor(playerID string) []NoticeKind {
	var kinds []NoticeKind
	for _, n := range f.noticesFor(playerID) {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (f *fakeMessenger) count(playerID string, kind NoticeKind) int {
	n := 0
	for _, k := range f.kindsFor(playerID) {
		if k == kind {
			n++
		}
	}
	return n
}

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func waitPrompted(t *testing.T, f *fakeMessenger, n int) []string {
	t.Helper()
	var ids []string
	for range n {
		select {
		case id := <-f.prompted:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for move prompt %d of %d", len(ids)+1, n)
		}
	}
	return ids
}

func waitChallenge(t *testing.T, f *fakeMessenger) ChallengePrompt {
	t.Helper()
	select {
	case p := <-f.challenges:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for challenge prompt")
		return ChallengePrompt{}
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not finish, status %s", s.ID, s.Status())
	}
}

var (
	alice = Participant{ID: "alice", Name: "Alice"}
	bob   = Participant{ID: "bob", Name: "Bob"}
	carol = Participant{ID: "carol", Name: "Carol"}
)
