// Package api exposes the trivia contests over HTTP.
package api

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/victornm/chattrivia/internal/archive"
	"github.com/victornm/chattrivia/internal/bank"
	"github.com/victornm/chattrivia/internal/channel"
	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
	"github.com/victornm/chattrivia/internal/event"
	"github.com/victornm/chattrivia/internal/leaderboard"
	"github.com/victornm/chattrivia/internal/registry"
	"github.com/victornm/chattrivia/internal/trivia"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Registry     *registry.Service
	Leaderboard  *leaderboard.Service
	Results      Results
	Directory    *channel.Directory
	Redis        Redis
	PubsubPrefix string
}

// Results lists archived contests.
type Results interface {
	ListResults(ctx context.Context, req archive.ListResultsRequest) ([]archive.Result, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	rs  *registry.Service
	ls  *leaderboard.Service
	ar  Results
	dir *channel.Directory

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		rs:     c.Registry,
		ls:     c.Leaderboard,
		ar:     c.Results,
		dir:    c.Directory,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/channels/:channel/trivia", a.StartContest)
	v1.GET("/channels/:channel/trivia", a.GetContest)
	v1.DELETE("/channels/:channel/trivia", a.EndContest)
	v1.POST("/channels/:channel/messages", a.SubmitMessage)
	v1.GET("/channels/:channel/results", a.ListResults)
	v1.GET("/sessions/:session/leaderboard", a.GetLeaderboard)

	// Register event handlers
	event.On(c.EventBus, a.PublishLeaderboardUpdated)

	return a
}

type (
	StartContestRequest struct {
		Rounds    int          `json:"rounds" binding:"omitempty,min=1"`
		Seed      *uint64      `json:"seed"`
		Questions []bank.Entry `json:"questions"`
	}

	Contest struct {
		SessionID string  `json:"session_id"`
		ChannelID string  `json:"channel_id"`
		State     string  `json:"state"`
		Rounds    int     `json:"rounds"`
		Turn      int     `json:"turn"`
		Question  string  `json:"question,omitempty"`
		Scores    []Score `json:"scores"`
	}

	Score struct {
		ParticipantID string `json:"participant_id"`
		DisplayName   string `json:"display_name,omitempty"`
		Score         int    `json:"score"`
	}
)

func (a *API) StartContest(c *gin.Context) {
	var req StartContestRequest
	// The body is optional, an empty one starts a contest with the defaults.
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		abort(c, invalidBody(err))
		return
	}

	var b domain.Bank
	if len(req.Questions) > 0 {
		var err error
		if b, err = bank.FromEntries(req.Questions); err != nil {
			abort(c, err)
			return
		}
	}

	ss, err := a.rs.StartContest(c.Request.Context(), registry.StartContestRequest{
		ChannelID: c.Param("channel"),
		Bank:      b,
		Rounds:    req.Rounds,
		Seed:      req.Seed,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newContest(c, ss))
}

func (a *API) GetContest(c *gin.Context) {
	ss, ok := a.rs.Get(c.Param("channel"))
	if !ok {
		abort(c, errors.NotFound("no contest running in channel %s", c.Param("channel")))
		return
	}

	c.JSON(http.StatusOK, newContest(c, ss))
}

func (a *API) EndContest(c *gin.Context) {
	ss, err := a.rs.EndContest(c.Request.Context(), c.Param("channel"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newContest(c, ss))
}

type (
	SubmitMessageRequest struct {
		ParticipantID string `json:"participant_id" binding:"required,max=128"`
		DisplayName   string `json:"display_name" binding:"max=128"`
		Text          string `json:"text" binding:"max=2000"`
	}

	SubmitMessageResponse struct {
		Correct bool `json:"correct"`
		Score   int  `json:"score"`
	}
)

func (a *API) SubmitMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, invalidBody(err))
		return
	}

	if req.DisplayName != "" {
		if err := a.dir.SetDisplayName(ctx, req.ParticipantID, req.DisplayName); err != nil {
			abort(c, err)
			return
		}
	}

	resp, err := a.rs.SubmitMessage(ctx, registry.SubmitMessageRequest{
		ChannelID:     c.Param("channel"),
		ParticipantID: req.ParticipantID,
		Text:          req.Text,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitMessageResponse{
		Correct: resp.Correct,
		Score:   resp.Score,
	})
}

type (
	ListResultsRequest struct {
		Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
	}

	Result struct {
		SessionID string    `json:"session_id"`
		Rounds    int       `json:"rounds"`
		Turns     int       `json:"turns"`
		Reason    string    `json:"reason"`
		EndTime   time.Time `json:"end_time"`
		Standings []Score   `json:"standings"`
	}
)

func (a *API) ListResults(c *gin.Context) {
	var req ListResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abort(c, invalidBody(err))
		return
	}

	results, err := a.ar.ListResults(c.Request.Context(), archive.ListResultsRequest{
		ChannelID: c.Param("channel"),
		Limit:     req.Limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": lo.Map(results, func(r archive.Result, _ int) Result {
			return Result{
				SessionID: r.SessionID,
				Rounds:    r.Rounds,
				Turns:     r.Turns,
				Reason:    string(r.Reason),
				EndTime:   r.EndTime,
				Standings: lo.Map(r.Standings, toScore),
			}
		}),
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		SessionID: c.Param("session"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(*l))
}

func newContest(c *gin.Context, ss *trivia.Session) Contest {
	q, _ := ss.Question()

	return Contest{
		SessionID: ss.ID(),
		ChannelID: ss.ChannelID(),
		State:     ss.State().String(),
		Rounds:    ss.Rounds(),
		Turn:      ss.Turn(),
		Question:  q,
		Scores:    lo.Map(ss.Standings(c.Request.Context()), toScore),
	}
}

func toScore(st domain.Standing, _ int) Score {
	return Score{
		ParticipantID: st.ParticipantID,
		DisplayName:   st.DisplayName,
		Score:         st.Score,
	}
}

func invalidBody(err error) *errors.Error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request: %v", err),
		errors.WithCause(err))
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
