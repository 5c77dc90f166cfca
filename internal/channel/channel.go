// Package channel delivers contest announcements to chat channels through redis pubsub.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const EventNameAnnouncement = "trivia.announcement"

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Announcement struct {
		ChannelID string    `json:"channel_id"`
		Text      string    `json:"text"`
		Time      time.Time `json:"time"`
	}
)

// Directory hands out channels sharing one redis connection.
type Directory struct {
	redis  Redis
	prefix string
}

func NewDirectory(r Redis, prefix string) *Directory {
	return &Directory{redis: r, prefix: prefix}
}

// Channel returns the chat channel with the given id.
func (d *Directory) Channel(id string) *Channel {
	return &Channel{id: id, dir: d}
}

// SetDisplayName records the name shown for a participant in announcements.
func (d *Directory) SetDisplayName(ctx context.Context, participantID, name string) error {
	if err := d.redis.HSet(ctx, d.namesKey(), participantID, name).Err(); err != nil {
		return fmt.Errorf("channel: set display name: %w", err)
	}
	return nil
}

// DisplayName returns the recorded name of a participant, or its id when none is known.
func (d *Directory) DisplayName(ctx context.Context, participantID string) (string, error) {
	name, err := d.redis.HGet(ctx, d.namesKey(), participantID).Result()
	if errors.Is(err, redis.Nil) {
		return participantID, nil
	}
	if err != nil {
		return participantID, fmt.Errorf("channel: get display name: %w", err)
	}
	return name, nil
}

// Topic is the pubsub channel announcements of a chat channel are published on.
func (d *Directory) Topic(channelID string) string {
	return fmt.Sprintf("%s:channel:%s", d.prefix, channelID)
}

func (d *Directory) namesKey() string {
	return fmt.Sprintf("%s:names", d.prefix)
}

// Channel is a chat channel backed by a redis pubsub topic.
type Channel struct {
	id  string
	dir *Directory
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) Announce(ctx context.Context, text string) error {
	n := Notification{
		Event: EventNameAnnouncement,
		Data: Announcement{
			ChannelID: c.id,
			Text:      text,
			Time:      time.Now().UTC(),
		},
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("channel: marshal announcement: %w", err)
	}

	if err := c.dir.redis.Publish(ctx, c.dir.Topic(c.id), b).Err(); err != nil {
		return fmt.Errorf("channel: publish announcement: %w", err)
	}

	return nil
}

// DisplayName never fails, names that cannot be resolved fall back to the participant id.
func (c *Channel) DisplayName(ctx context.Context, participantID string) string {
	name, _ := c.dir.DisplayName(ctx, participantID)
	return name
}
