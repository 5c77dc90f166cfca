package trivia

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Scoreboard maps participants to their score.
//
// Multiple goroutines may credit participants simultaneously, credits of
// different participants never wait on each other.
type Scoreboard struct {
	entries sync.Map // participant ID -> *scoreEntry
	seq     atomic.Uint64
}

type scoreEntry struct {
	score atomic.Int64
	order uint64
}

// Score is one row of a scoreboard snapshot.
type Score struct {
	ParticipantID string
	Score         int
}

// Credit adds one point to the participant and returns the new score.
func (s *Scoreboard) Credit(participantID string) int {
	v, ok := s.entries.Load(participantID)
	if !ok {
		v, _ = s.entries.LoadOrStore(participantID, &scoreEntry{order: s.seq.Add(1)})
	}

	return int(v.(*scoreEntry).score.Add(1))
}

// Get returns the score of a participant, 0 if they never scored.
func (s *Scoreboard) Get(participantID string) int {
	v, ok := s.entries.Load(participantID)
	if !ok {
		return 0
	}

	return int(v.(*scoreEntry).score.Load())
}

// Snapshot returns the scores sorted by score in descending order.
// Ties keep the order in which participants first scored.
func (s *Scoreboard) Snapshot() []Score {
	type row struct {
		Score
		order uint64
	}

	var rows []row
	s.entries.Range(func(k, v any) bool {
		e := v.(*scoreEntry)
		rows = append(rows, row{
			Score: Score{ParticipantID: k.(string), Score: int(e.score.Load())},
			order: e.order,
		})
		return true
	})

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score.Score != rows[j].Score.Score {
			return rows[i].Score.Score > rows[j].Score.Score
		}
		return rows[i].order < rows[j].order
	})

	scores := make([]Score, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.Score)
	}

	return scores
}

// Leader returns the participant with the highest score, false if nobody scored.
func (s *Scoreboard) Leader() (Score, bool) {
	snap := s.Snapshot()
	if len(snap) == 0 {
		return Score{}, false
	}

	return snap[0], true
}
