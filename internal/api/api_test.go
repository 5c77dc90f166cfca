package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chattrivia/internal/api"
	"github.com/victornm/chattrivia/internal/archive"
	"github.com/victornm/chattrivia/internal/channel"
	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/event"
	"github.com/victornm/chattrivia/internal/leaderboard"
	"github.com/victornm/chattrivia/internal/registry"
	"github.com/victornm/chattrivia/internal/trivia"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAPI_StartContest(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, s *server) string
		assert  func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		"should start a contest with the default questions": {
			arrange: func(*testing.T, *server) string { return "" },
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusCreated, rec.Code)

				var got api.Contest
				decode(t, rec, &got)
				require.NotEmpty(t, got.SessionID)
				require.Equal(t, "c1", got.ChannelID)
				require.Equal(t, "active", got.State)
				require.Equal(t, 3, got.Rounds)
				require.Equal(t, 1, got.Turn)
				require.NotEmpty(t, got.Question)
				require.Empty(t, got.Scores)
			},
		},

		"should start a contest with the questions of the request": {
			arrange: func(*testing.T, *server) string {
				return `{"rounds": 2, "seed": 1, "questions": [{"prompt": "Capital of France?", "answers": ["Paris"]}]}`
			},
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusCreated, rec.Code)

				var got api.Contest
				decode(t, rec, &got)
				require.Equal(t, 2, got.Rounds)
				require.Equal(t, "Capital of France?", got.Question)
			},
		},

		"should reject a second contest in the channel": {
			arrange: func(t *testing.T, s *server) string {
				rec := s.do(t, http.MethodPost, "/v1/channels/c1/trivia", "")
				require.Equal(t, http.StatusCreated, rec.Code)
				return ""
			},
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusConflict, rec.Code)
			},
		},

		"should reject invalid rounds": {
			arrange: func(*testing.T, *server) string { return `{"rounds": -1}` },
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, rec.Code)
			},
		},

		"should reject too many rounds": {
			arrange: func(*testing.T, *server) string { return `{"rounds": 500}` },
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, rec.Code)
			},
		},

		"should reject questions without answers": {
			arrange: func(*testing.T, *server) string {
				return `{"questions": [{"prompt": "Capital of France?", "answers": []}]}`
			},
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, rec.Code)
			},
		},

		"should reject malformed json": {
			arrange: func(*testing.T, *server) string { return `{"rounds":` },
			assert: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, rec.Code)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := makeServer(t)
			body := tt.arrange(t, s)

			rec := s.do(t, http.MethodPost, "/v1/channels/c1/trivia", body)

			tt.assert(t, rec)
		})
	}
}

func TestAPI_SubmitMessage(t *testing.T) {
	s := makeServer(t)

	rec := s.do(t, http.MethodPost, "/v1/channels/c1/messages", `{"participant_id": "u1", "text": "4"}`)
	require.Equal(t, http.StatusOK, rec.Code, "messages without a contest should be accepted")
	require.JSONEq(t, `{"correct": false, "score": 0}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/trivia", `{"questions": [{"prompt": "2+2", "answers": ["4"]}, {"prompt": "2*2", "answers": ["4"]}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/messages", `{"participant_id": "u1", "display_name": "Alice", "text": "5"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"correct": false, "score": 0}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/messages", `{"participant_id": "u1", "text": " 4 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"correct": true, "score": 1}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/channels/c1/trivia", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.Contest
	decode(t, rec, &got)
	require.Equal(t, []api.Score{{ParticipantID: "u1", DisplayName: "Alice", Score: 1}}, got.Scores)

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/messages", `{"text": "4"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "participant is required")
}

func TestAPI_EndContest(t *testing.T) {
	s := makeServer(t)

	rec := s.do(t, http.MethodDelete, "/v1/channels/c1/trivia", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/trivia", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodDelete, "/v1/channels/c1/trivia", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.Contest
	decode(t, rec, &got)
	require.Equal(t, "ended", got.State)

	rec = s.do(t, http.MethodGet, "/v1/channels/c1/trivia", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/trivia", "")
	require.Equal(t, http.StatusCreated, rec.Code, "channel should be free again")
}

func TestAPI_ListResults(t *testing.T) {
	s := makeServer(t)
	endTime := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	s.results.results = []archive.Result{
		{
			Contest: domain.Contest{
				SessionID: "s1",
				ChannelID: "c1",
				Rounds:    3,
				Turns:     2,
				Reason:    domain.EndReasonRoundLimit,
				Standings: []domain.Standing{{ParticipantID: "u1", DisplayName: "Alice", Score: 2}},
			},
			EndTime: endTime,
		},
	}

	rec := s.do(t, http.MethodGet, "/v1/channels/c1/results?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, archive.ListResultsRequest{ChannelID: "c1", Limit: 5}, s.results.req)

	var got struct {
		Results []api.Result `json:"results"`
	}
	decode(t, rec, &got)
	require.Equal(t, []api.Result{
		{
			SessionID: "s1",
			Rounds:    3,
			Turns:     2,
			Reason:    string(domain.EndReasonRoundLimit),
			EndTime:   endTime,
			Standings: []api.Score{{ParticipantID: "u1", DisplayName: "Alice", Score: 2}},
		},
	}, got.Results)

	rec = s.do(t, http.MethodGet, "/v1/channels/c1/results?limit=1000", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetLeaderboard(t *testing.T) {
	s := makeServer(t)

	rec := s.do(t, http.MethodGet, "/v1/sessions/unknown/leaderboard", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/trivia", `{"questions": [{"prompt": "2+2", "answers": ["4"]}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var contest api.Contest
	decode(t, rec, &contest)

	rec = s.do(t, http.MethodPost, "/v1/channels/c1/messages", `{"participant_id": "u1", "text": "4"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	path := "/v1/sessions/" + contest.SessionID + "/leaderboard"
	require.Eventually(t, func() bool {
		return s.do(t, http.MethodGet, path, "").Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond, "leaderboard should be updated from the credited event")

	var got api.Leaderboard
	decode(t, s.do(t, http.MethodGet, path, ""), &got)
	require.Equal(t, contest.SessionID, got.SessionID)
	require.Equal(t, []api.LeaderboardEntry{{ParticipantID: "u1", Score: 1}}, got.Entries)
}

func TestAPI_PublishLeaderboardUpdated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := makeServer(t)

	sub := s.redis.Subscribe(ctx, "test:channel:c1", "test:user:u1", "test:user:u2")
	t.Cleanup(func() { sub.Close() })
	for range 3 {
		_, err := sub.Receive(ctx)
		require.NoError(t, err, "should subscribe")
	}

	err := s.api.PublishLeaderboardUpdated(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{
			SessionID: "s1",
			ChannelID: "c1",
			Entries: []domain.LeaderboardEntry{
				{ParticipantID: "u1", Score: 2},
				{ParticipantID: "u2", Score: 1},
			},
		},
	})
	require.NoError(t, err)

	got := make(map[string]string)
	for range 3 {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)
		got[msg.Channel] = msg.Payload
	}

	want := `{
		"event": "leaderboard.updated",
		"data": {
			"session_id": "s1",
			"channel_id": "c1",
			"entries": [
				{"participant_id": "u1", "score": 2},
				{"participant_id": "u2", "score": 1}
			]
		}
	}`
	require.Len(t, got, 3)
	for topic, payload := range got {
		require.JSONEq(t, want, payload, "topic %s", topic)
	}
}

type server struct {
	api     *api.API
	engine  *gin.Engine
	redis   redis.UniversalClient
	results *fakeResults
}

func makeServer(t *testing.T) *server {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

	var (
		eb  = event.NewBus()
		dir = channel.NewDirectory(rc, "test")
	)

	rg := registry.NewService(registry.Config{
		EventBus: eb,
		Clock:    clockwork.NewFakeClock(),
		Channels: func(id string) trivia.Channel {
			return dir.Channel(id)
		},
		DefaultBank:   domain.Bank{"Q1": {"A"}, "Q2": {"A"}, "Q3": {"A"}},
		DefaultRounds: 3,
		MaxRounds:     10,
	})

	t.Cleanup(func() {
		rg.Shutdown(context.Background())
		eb.Stop()
		rc.Close()
	})

	s := &server{
		engine:  gin.New(),
		redis:   rc,
		results: &fakeResults{},
	}

	s.api = api.New(api.Config{
		Router:   s.engine,
		EventBus: eb,
		Registry: rg,
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			EventBus: eb,
			Redis:    rc,
			Prefix:   "test",
		}),
		Results:      s.results,
		Directory:    dir,
		Redis:        rc,
		PubsubPrefix: "test",
	})

	return s
}

func (s *server) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type fakeResults struct {
	req     archive.ListResultsRequest
	results []archive.Result
}

func (f *fakeResults) ListResults(_ context.Context, req archive.ListResultsRequest) ([]archive.Result, error) {
	f.req = req
	return f.results, nil
}
