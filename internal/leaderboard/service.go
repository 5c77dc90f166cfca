package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
	"github.com/victornm/chattrivia/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultTTL      = 24 * time.Hour
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// TTL is how long the leaderboard of an ended session is kept.
	TTL time.Duration
}

// Service mirrors the scoreboards of running contests into redis sorted sets so
// they can be read and pushed to clients without touching the sessions.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}

	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	event.On(s.eb, s.UpdateLeaderboard)
	event.On(s.eb, s.ExpireLeaderboard)

	return s
}

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns the leaderboard for a session, including all participants and their scores.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.SessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.NotFound("leaderboard not found: session=%s", req.SessionID)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: z.Member.(string),
			Score:         int(z.Score),
		})
	}

	return &domain.Leaderboard{
		SessionID: req.SessionID,
		Entries:   entries,
	}, nil
}

// UpdateLeaderboard overwrites the participant's score in the leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreCredited) error {
	// TODO: retry on error
	// GT keeps the higher score when credits of one participant are handled out of order.
	if err := s.redis.ZAddGT(ctx, s.getLeaderboardKey(e.SessionID), redis.Z{
		Score:  float64(e.Score),
		Member: e.ParticipantID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, e)
}

// ExpireLeaderboard keeps the leaderboard of an ended session for the configured TTL.
// The final standings are written with the expiry, the key then exists and expires
// even when the last credit of the session has not been handled yet.
func (s *Service) ExpireLeaderboard(ctx context.Context, e domain.EventSessionEnded) error {
	c := e.Contest
	key := s.getLeaderboardKey(c.SessionID)

	pipe := s.redis.TxPipeline()
	if len(c.Standings) > 0 {
		members := make([]redis.Z, 0, len(c.Standings))
		for _, st := range c.Standings {
			members = append(members, redis.Z{Score: float64(st.Score), Member: st.ParticipantID})
		}
		pipe.ZAddGT(ctx, key, members...)
	}
	pipe.Expire(ctx, key, s.ttl)
	pipe.Del(ctx, s.getLeaderboardTimeKey(c.SessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("expire leaderboard: session=%s: %w", c.SessionID, err)
	}

	return nil
}

// schedulePublishLeaderboard publishes the leaderboard changes after a certain interval.
// Answers can be credited in bursts, publishing at most once per interval reduces the number of published events.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, e domain.EventScoreCredited) error {
	// This is a simple way to prevent multiple instances of the service from publishing the leaderboard.
	// But it's not perfect and can be improved.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(e.SessionID), e.CreditTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, e)
}

func (s *Service) publishLeaderboard(ctx context.Context, e domain.EventScoreCredited) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		SessionID: e.SessionID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", e.SessionID, err)
	}
	l.ChannelID = e.ChannelID

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
