package trivia

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
	"github.com/victornm/chattrivia/internal/event"
)

const (
	DefaultQuestionTimeout   = 20 * time.Second
	DefaultNextQuestionDelay = 15 * time.Second
)

var ErrInvalidRoundLimit = errors.InvalidArgument("round limit must be positive")

// Channel is the chat channel a contest runs in.
type Channel interface {
	ID() string
	// Announce sends a message to the channel. Delivery failures are reported
	// to the caller and never stop a contest.
	Announce(ctx context.Context, text string) error
	DisplayName(ctx context.Context, participantID string) string
}

// Publisher receives the lifecycle events of a session. *event.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

type State int32

const (
	StateIdle State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type Config struct {
	// SessionID identifies the session in events. A random ID is generated when empty.
	SessionID string
	Channel   Channel
	Bank      domain.Bank
	Rounds    int
	// Seed makes the question order reproducible. Nil shuffles randomly.
	Seed              *uint64
	QuestionTimeout   time.Duration
	NextQuestionDelay time.Duration
	Clock             clockwork.Clock
	Events            Publisher
}

// Session runs one trivia contest in one channel.
//
// Multiple goroutines may invoke methods on a Session simultaneously. Answers
// are resolved through a Gate and a Scoreboard, lifecycle transitions (asking
// a question, ending) are serialized by mu.
type Session struct {
	id      string
	channel Channel
	rounds  int
	timeout time.Duration
	delay   time.Duration
	events  Publisher

	gate   Gate
	scores Scoreboard
	timer  *Timer

	state   atomic.Int32
	current atomic.Pointer[round]

	mu   sync.Mutex
	deck *Deck
	ctx  context.Context

	done chan struct{}
}

type round struct {
	turn     int
	question domain.Question
}

// NewSession builds a contest from the bank. It fails on an empty bank or a
// non-positive round limit.
func NewSession(c Config) (*Session, error) {
	if c.Channel == nil {
		return nil, errors.InvalidArgument("channel is required")
	}
	if c.Rounds <= 0 {
		return nil, ErrInvalidRoundLimit
	}

	deck, err := NewDeck(c.Bank.Questions(), c.Seed)
	if err != nil {
		return nil, err
	}

	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = DefaultQuestionTimeout
	}
	if c.NextQuestionDelay <= 0 {
		c.NextQuestionDelay = DefaultNextQuestionDelay
	}
	if c.Events == nil {
		c.Events = nopPublisher{}
	}

	return &Session{
		id:      c.SessionID,
		channel: c.Channel,
		rounds:  c.Rounds,
		timeout: c.QuestionTimeout,
		delay:   c.NextQuestionDelay,
		events:  c.Events,
		timer:   NewTimer(c.Clock),
		deck:    deck,
		ctx:     context.Background(),
		done:    make(chan struct{}),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) ChannelID() string { return s.channel.ID() }

func (s *Session) Rounds() int { return s.rounds }

func (s *Session) State() State { return State(s.state.Load()) }

// Turn returns the number of questions asked so far.
func (s *Session) Turn() int {
	if r := s.current.Load(); r != nil {
		return r.turn
	}
	return 0
}

// Question returns the prompt of the last question asked.
func (s *Session) Question() (string, bool) {
	r := s.current.Load()
	if r == nil {
		return "", false
	}
	return r.question.Prompt, true
}

// Score returns the score of a participant.
func (s *Session) Score(participantID string) int {
	return s.scores.Get(participantID)
}

// Scores returns the current scoreboard.
func (s *Session) Scores() []Score {
	return s.scores.Snapshot()
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start announces the contest and asks the first question.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.State() != StateIdle {
		s.mu.Unlock()
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s is %s", s.id, s.State()))
	}
	s.ctx = context.WithoutCancel(ctx)
	s.state.Store(int32(StateActive))
	s.mu.Unlock()

	slog.InfoContext(ctx, "trivia: session started",
		"session", s.id,
		"channel", s.channel.ID(),
		"rounds", s.rounds,
		"questions", s.deck.Len(),
	)

	s.events.Publish(ctx, domain.EventSessionStarted{
		SessionID: s.id,
		ChannelID: s.channel.ID(),
		Rounds:    s.rounds,
	})

	s.announce(ctx, "Starting trivia.")
	s.askNext()

	return nil
}

// SubmitAnswer checks a message against the open question. The first correct
// answer of a question is credited and true is returned, every other message
// is ignored.
func (s *Session) SubmitAnswer(ctx context.Context, participantID, text string) bool {
	if s.State() != StateActive {
		return false
	}

	r := s.current.Load()
	if r == nil || !s.gate.IsOpen(r.turn) || !r.question.Accepts(text) {
		return false
	}

	if !s.gate.TryClose(r.turn) {
		return false
	}

	// Must happen before advancing, or the timer could fire into the next question.
	s.timer.Cancel()

	score := s.scores.Credit(participantID)

	s.events.Publish(ctx, domain.EventScoreCredited{
		SessionID:     s.id,
		ChannelID:     s.channel.ID(),
		ParticipantID: participantID,
		Turn:          r.turn,
		Score:         score,
		CreditTime:    time.Now(),
	})

	s.announce(ctx, fmt.Sprintf("Correct. **%s** is now at **%d** point(s).",
		s.channel.DisplayName(ctx, participantID), score))

	s.advance(ctx, r.turn)

	return true
}

// End stops the contest and announces the final standings. Only the first call
// has an effect.
func (s *Session) End(ctx context.Context) {
	s.end(ctx, domain.EndReasonExplicit)
}

func (s *Session) askNext() {
	s.mu.Lock()
	if s.State() != StateActive {
		s.mu.Unlock()
		return
	}

	turn := s.Turn() + 1
	q := s.deck.Draw()
	s.current.Store(&round{turn: turn, question: q})
	s.gate.Open(turn)
	s.timer.Arm(s.timeout, func() { s.onTimeout(turn) })
	ctx := s.ctx
	s.mu.Unlock()

	s.events.Publish(ctx, domain.EventQuestionAsked{
		SessionID: s.id,
		ChannelID: s.channel.ID(),
		Turn:      turn,
		Prompt:    q.Prompt,
	})

	s.announce(ctx, q.Prompt)
}

func (s *Session) onTimeout(turn int) {
	if !s.gate.IsOpen(turn) {
		return
	}
	if !s.gate.TryClose(turn) {
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.events.Publish(ctx, domain.EventQuestionTimedOut{
		SessionID: s.id,
		ChannelID: s.channel.ID(),
		Turn:      turn,
	})

	s.announce(ctx, "Time up.")
	s.advance(ctx, turn)
}

// advance runs after the question of turn was resolved by an answer or a timeout.
func (s *Session) advance(ctx context.Context, turn int) {
	s.mu.Lock()
	if s.State() != StateActive {
		s.mu.Unlock()
		return
	}
	lastTurn := turn >= s.rounds
	outOfQuestions := s.deck.IsEmpty()
	s.mu.Unlock()

	switch {
	case lastTurn:
		s.end(ctx, domain.EndReasonRoundLimit)

	case outOfQuestions:
		if leader, ok := s.scores.Leader(); ok {
			s.announce(ctx, fmt.Sprintf("Out of questions. **%s** has the most points.",
				s.channel.DisplayName(ctx, leader.ParticipantID)))
		} else {
			s.announce(ctx, "Out of questions. Nobody scored.")
		}
		s.end(ctx, domain.EndReasonOutOfQuestions)

	default:
		s.announce(ctx, fmt.Sprintf("Next question commencing in %s.", formatDelay(s.delay)))

		s.mu.Lock()
		if s.State() == StateActive {
			s.timer.Arm(s.delay, s.askNext)
		}
		s.mu.Unlock()
	}
}

func (s *Session) end(ctx context.Context, reason domain.EndReason) {
	s.mu.Lock()
	if s.State() == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state.Store(int32(StateEnded))
	s.timer.Cancel()
	s.gate.Close()
	s.mu.Unlock()

	standings := s.Standings(ctx)

	var sb strings.Builder
	sb.WriteString("Game over. Final score: ```\n")
	for _, st := range standings {
		fmt.Fprintf(&sb, "%s: %d point(s).\n", st.DisplayName, st.Score)
	}
	sb.WriteString("```")
	s.announce(ctx, sb.String())

	slog.InfoContext(ctx, "trivia: session ended",
		"session", s.id,
		"channel", s.channel.ID(),
		"reason", reason,
		"turns", s.Turn(),
	)

	s.events.Publish(ctx, domain.EventSessionEnded{
		Contest: domain.Contest{
			SessionID: s.id,
			ChannelID: s.channel.ID(),
			Rounds:    s.rounds,
			Turns:     s.Turn(),
			Reason:    reason,
			Standings: standings,
		},
	})

	close(s.done)
}

// Standings returns the scoreboard with the display name of every participant.
func (s *Session) Standings(ctx context.Context) []domain.Standing {
	scores := s.scores.Snapshot()

	standings := make([]domain.Standing, 0, len(scores))
	for _, sc := range scores {
		standings = append(standings, domain.Standing{
			ParticipantID: sc.ParticipantID,
			DisplayName:   s.channel.DisplayName(ctx, sc.ParticipantID),
			Score:         sc.Score,
		})
	}

	return standings
}

func (s *Session) announce(ctx context.Context, text string) {
	if err := s.channel.Announce(ctx, text); err != nil {
		slog.ErrorContext(ctx, "trivia: announce failed",
			"session", s.id,
			"channel", s.channel.ID(),
			"error", err,
		)
	}
}

func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, event.Event) {}
