package trivia_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/chattrivia/internal/trivia"
)

func TestScoreboard_ConcurrentCredits(t *testing.T) {
	var (
		sb    trivia.Scoreboard
		wg    sync.WaitGroup
		calls = map[string]int{"u1": 100, "u2": 37, "u3": 1, "u4": 250}
	)

	for id, n := range calls {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sb.Credit(id)
			}()
		}
	}
	wg.Wait()

	for id, n := range calls {
		require.Equal(t, n, sb.Get(id), "participant %s", id)
	}
	require.Zero(t, sb.Get("nobody"))
}

func TestScoreboard_CreditReturnsNewScore(t *testing.T) {
	var sb trivia.Scoreboard

	require.Equal(t, 1, sb.Credit("u1"))
	require.Equal(t, 2, sb.Credit("u1"))
	require.Equal(t, 1, sb.Credit("u2"))
}

func TestScoreboard_Snapshot(t *testing.T) {
	tests := map[string]struct {
		credits []string
		want    []trivia.Score
	}{
		"empty scoreboard should have no entries": {
			credits: nil,
			want:    []trivia.Score{},
		},

		"entries should be sorted by score": {
			credits: []string{"u1", "u2", "u2", "u3", "u3", "u3"},
			want: []trivia.Score{
				{ParticipantID: "u3", Score: 3},
				{ParticipantID: "u2", Score: 2},
				{ParticipantID: "u1", Score: 1},
			},
		},

		"ties should keep the first credited participant first": {
			credits: []string{"u2", "u1", "u3", "u1", "u2"},
			want: []trivia.Score{
				{ParticipantID: "u2", Score: 2},
				{ParticipantID: "u1", Score: 2},
				{ParticipantID: "u3", Score: 1},
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var sb trivia.Scoreboard
			for _, id := range tt.credits {
				sb.Credit(id)
			}

			require.Equal(t, tt.want, sb.Snapshot())
		})
	}
}

func TestScoreboard_Leader(t *testing.T) {
	var sb trivia.Scoreboard

	_, ok := sb.Leader()
	require.False(t, ok)

	for i := 0; i < 3; i++ {
		sb.Credit(fmt.Sprintf("u%d", i))
	}
	sb.Credit("u2")

	leader, ok := sb.Leader()
	require.True(t, ok)
	require.Equal(t, trivia.Score{ParticipantID: "u2", Score: 2}, leader)
}
