// Package registry tracks the trivia contest running in each chat channel.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
	"github.com/victornm/chattrivia/internal/event"
	"github.com/victornm/chattrivia/internal/trivia"
)

const (
	defaultRounds    = 10
	defaultMaxRounds = 100
)

// ChannelFunc returns the chat channel with the given id.
type ChannelFunc func(id string) trivia.Channel

type Config struct {
	EventBus *event.Bus
	Channels ChannelFunc
	Clock    clockwork.Clock

	// DefaultBank is used when a contest is started without its own questions.
	DefaultBank   domain.Bank
	DefaultRounds int
	MaxRounds     int

	QuestionTimeout   time.Duration
	NextQuestionDelay time.Duration

	// MaxDuration force ends contests running longer. Zero disables it.
	MaxDuration time.Duration
}

type Service struct {
	c  Config
	eb *event.Bus

	mu       sync.RWMutex
	sessions map[string]*trivia.Session
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.DefaultRounds <= 0 {
		c.DefaultRounds = defaultRounds
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = defaultMaxRounds
	}

	s := &Service{
		c:        c,
		eb:       c.EventBus,
		sessions: make(map[string]*trivia.Session),
	}

	event.On(s.eb, func(ctx context.Context, e domain.EventSessionEnded) error {
		s.forget(ctx, e.Contest.ChannelID, e.Contest.SessionID)
		return nil
	})

	return s
}

type StartContestRequest struct {
	ChannelID string
	// Bank overrides the default question bank.
	Bank domain.Bank
	// Rounds is the round limit, the configured default when zero.
	Rounds int
	Seed   *uint64
}

// StartContest starts a contest in a channel that is not already running one.
func (s *Service) StartContest(ctx context.Context, req StartContestRequest) (*trivia.Session, error) {
	if req.ChannelID == "" {
		return nil, errors.InvalidArgument("channel is required")
	}

	rounds := req.Rounds
	if rounds == 0 {
		rounds = s.c.DefaultRounds
	}
	if rounds > s.c.MaxRounds {
		return nil, errors.InvalidArgument("at most %d rounds are allowed, got %d", s.c.MaxRounds, rounds)
	}

	bank := req.Bank
	if len(bank) == 0 {
		bank = s.c.DefaultBank
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	ss, err := trivia.NewSession(trivia.Config{
		SessionID:         id.String(),
		Channel:           s.c.Channels(req.ChannelID),
		Bank:              bank,
		Rounds:            rounds,
		Seed:              req.Seed,
		QuestionTimeout:   s.c.QuestionTimeout,
		NextQuestionDelay: s.c.NextQuestionDelay,
		Clock:             s.c.Clock,
		Events:            s.eb,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// An ended session may still hold the slot until its session.ended handler runs.
	if cur, ok := s.sessions[req.ChannelID]; ok && cur.State() != trivia.StateEnded {
		s.mu.Unlock()
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("a contest is already running in channel %s: session=%s", req.ChannelID, cur.ID()))
	}
	s.sessions[req.ChannelID] = ss
	s.mu.Unlock()

	if err := ss.Start(ctx); err != nil {
		s.forget(ctx, req.ChannelID, ss.ID())
		return nil, err
	}

	if s.c.MaxDuration > 0 {
		go s.expire(ctx, ss, s.c.MaxDuration)
	}

	return ss, nil
}

func (s *Service) expire(ctx context.Context, ss *trivia.Session, after time.Duration) {
	ctx = context.WithoutCancel(ctx)

	select {
	case <-ss.Done():
	case <-s.c.Clock.After(after):
		slog.InfoContext(ctx, "registry: contest expired",
			"session", ss.ID(),
			"channel", ss.ChannelID(),
			"after", after,
		)
		ss.End(ctx)
	}
}

type SubmitMessageRequest struct {
	ChannelID     string
	ParticipantID string
	Text          string
}

type SubmitMessageResponse struct {
	// Correct is true when the message won the current question.
	Correct bool
	Score   int
}

// SubmitMessage passes a chat message to the contest of its channel, if any.
func (s *Service) SubmitMessage(ctx context.Context, req SubmitMessageRequest) (*SubmitMessageResponse, error) {
	if req.ChannelID == "" || req.ParticipantID == "" {
		return nil, errors.InvalidArgument("channel and participant are required")
	}

	ss, ok := s.Get(req.ChannelID)
	if !ok {
		return &SubmitMessageResponse{}, nil
	}

	if !ss.SubmitAnswer(ctx, req.ParticipantID, req.Text) {
		return &SubmitMessageResponse{}, nil
	}

	return &SubmitMessageResponse{
		Correct: true,
		Score:   ss.Score(req.ParticipantID),
	}, nil
}

// EndContest ends the contest running in a channel.
func (s *Service) EndContest(ctx context.Context, channelID string) (*trivia.Session, error) {
	ss, ok := s.Get(channelID)
	if !ok {
		return nil, errors.NotFound("no contest running in channel %s", channelID)
	}

	ss.End(ctx)
	s.forget(ctx, channelID, ss.ID())

	return ss, nil
}

// Get returns the contest running in a channel. Ended contests are not returned.
func (s *Service) Get(channelID string) (*trivia.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[channelID]
	if !ok || ss.State() == trivia.StateEnded {
		return nil, false
	}
	return ss, true
}

// Len returns the number of running contests.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ss := range s.sessions {
		if ss.State() != trivia.StateEnded {
			n++
		}
	}
	return n
}

// Shutdown ends every running contest.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	sessions := make([]*trivia.Session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	s.mu.RUnlock()

	for _, ss := range sessions {
		ss.End(ctx)
		s.forget(ctx, ss.ChannelID(), ss.ID())
	}
}

// forget frees the channel slot if it is still held by the given session.
func (s *Service) forget(ctx context.Context, channelID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[channelID]
	if !ok || cur.ID() != sessionID {
		return
	}

	delete(s.sessions, channelID)

	slog.DebugContext(ctx, "registry: channel released",
		"channel", channelID,
		"session", sessionID,
	)
}
