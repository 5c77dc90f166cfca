// Package archive keeps the final standings of ended contests in postgres.
package archive

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
	"github.com/victornm/chattrivia/internal/event"
)

//go:embed schema.sql
var schema string

const defaultListLimit = 20

// DB is the subset of *pgxpool.Pool used by the archive.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	EventBus *event.Bus
	DB       DB
}

type Service struct {
	db DB
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB}

	event.On(c.EventBus, func(ctx context.Context, e domain.EventSessionEnded) error {
		return s.SaveContest(ctx, e.Contest, time.Now())
	})

	return s
}

// Migrate creates the archive tables.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// SaveContest stores a contest and its standings.
func (s *Service) SaveContest(ctx context.Context, c domain.Contest, endTime time.Time) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insContestStmt  = `INSERT INTO contests (session_id, channel_id, rounds, turns, reason, end_time) VALUES ($1, $2, $3, $4, $5, $6);`
		insStandingStmt = `INSERT INTO contest_standings (session_id, rank, participant_id, display_name, score, share) VALUES ($1, $2, $3, $4, $5, $6);`
	)

	_, err = tx.Exec(ctx, insContestStmt, c.SessionID, c.ChannelID, c.Rounds, c.Turns, string(c.Reason), endTime)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("contest already archived: session=%s", c.SessionID),
			errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert contest: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range standingRows(c) {
		batch.Queue(insStandingStmt, c.SessionID, r.Rank, r.ParticipantID, r.DisplayName, r.Score, r.Share)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert standings: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "archive: contest saved",
		"session", c.SessionID,
		"channel", c.ChannelID,
		"standings", len(c.Standings),
	)

	return nil
}

type standingRow struct {
	Rank          int
	ParticipantID string
	DisplayName   string
	Score         int
	// Share is the fraction of asked questions the participant won.
	Share decimal.Decimal
}

func standingRows(c domain.Contest) []standingRow {
	return lo.Map(c.Standings, func(st domain.Standing, i int) standingRow {
		share := decimal.Zero
		if c.Turns > 0 {
			share = decimal.NewFromInt(int64(st.Score)).
				Div(decimal.NewFromInt(int64(c.Turns))).
				Round(4)
		}

		return standingRow{
			Rank:          i + 1,
			ParticipantID: st.ParticipantID,
			DisplayName:   st.DisplayName,
			Score:         st.Score,
			Share:         share,
		}
	})
}

type ListResultsRequest struct {
	ChannelID string
	Limit     int
}

type Result struct {
	domain.Contest
	EndTime time.Time
}

// ListResults returns the most recent contests of a channel with their standings.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]Result, error) {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	const contestsStmt = `
SELECT session_id::text, channel_id, rounds, turns, reason, end_time
FROM contests
WHERE channel_id = $1
ORDER BY end_time DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, contestsStmt, req.ChannelID, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Result, error) {
		var (
			res    Result
			reason string
		)
		if err := r.Scan(&res.SessionID, &res.ChannelID, &res.Rounds, &res.Turns, &reason, &res.EndTime); err != nil {
			return Result{}, err
		}
		res.Reason = domain.EndReason(reason)
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}

	if len(results) == 0 {
		return results, nil
	}

	const standingsStmt = `
SELECT session_id::text, participant_id, display_name, score
FROM contest_standings
WHERE session_id = ANY($1::uuid[])
ORDER BY session_id, rank;`

	ids := lo.Map(results, func(r Result, _ int) string { return r.SessionID })

	rows, err = s.db.Query(ctx, standingsStmt, ids)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}

	type row struct {
		SessionID string
		domain.Standing
	}

	standings, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var st row
		err := r.Scan(&st.SessionID, &st.ParticipantID, &st.DisplayName, &st.Score)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}

	bySession := lo.GroupBy(standings, func(r row) string { return r.SessionID })
	for i := range results {
		results[i].Standings = lo.Map(bySession[results[i].SessionID], func(r row, _ int) domain.Standing {
			return r.Standing
		})
	}

	return results, nil
}
