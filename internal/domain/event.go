package domain

import "time"

const (
	EventNameSessionStarted     = "session.started"
	EventNameQuestionAsked      = "question.asked"
	EventNameQuestionTimedOut   = "question.timed_out"
	EventNameScoreCredited      = "score.credited"
	EventNameSessionEnded       = "session.ended"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSessionStarted struct {
	SessionID string
	ChannelID string
	Rounds    int
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventQuestionAsked struct {
	SessionID string
	ChannelID string
	Turn      int
	Prompt    string
}

func (EventQuestionAsked) Name() string { return EventNameQuestionAsked }

type EventQuestionTimedOut struct {
	SessionID string
	ChannelID string
	Turn      int
}

func (EventQuestionTimedOut) Name() string { return EventNameQuestionTimedOut }

type EventScoreCredited struct {
	SessionID     string
	ChannelID     string
	ParticipantID string
	Turn          int
	Score         int
	CreditTime    time.Time
}

func (EventScoreCredited) Name() string { return EventNameScoreCredited }

// EventSessionEnded is published exactly once per session.
type EventSessionEnded struct {
	Contest Contest
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

// Leaderboard is the list of participants of a session sorted by score in descending order.
type Leaderboard struct {
	SessionID string
	ChannelID string
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	ParticipantID string
	Score         int
}
