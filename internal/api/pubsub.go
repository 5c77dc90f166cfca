package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/chattrivia/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		ChannelID string             `json:"channel_id,omitempty"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		ParticipantID string `json:"participant_id"`
		Score         int    `json:"score"`
	}
)

func newLeaderboard(l domain.Leaderboard) Leaderboard {
	return Leaderboard{
		SessionID: l.SessionID,
		ChannelID: l.ChannelID,
		Entries: lo.Map(l.Entries, func(e domain.LeaderboardEntry, _ int) LeaderboardEntry {
			return LeaderboardEntry{
				ParticipantID: e.ParticipantID,
				Score:         e.Score,
			}
		}),
	}
}

// PublishLeaderboardUpdated notifies the channel of the session and every ranked participant.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := newLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	if data.ChannelID != "" {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.channelTopic(data.ChannelID), e.Name(), data)
		})
	}

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.participantTopic(entry.ParticipantID), e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, topic, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, topic, b).Err()
}

func (a *API) channelTopic(channelID string) string {
	return fmt.Sprintf("%s:channel:%s", a.prefix, channelID)
}

func (a *API) participantTopic(participantID string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, participantID)
}
