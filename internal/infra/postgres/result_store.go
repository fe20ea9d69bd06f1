package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"edutest-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists users, quiz sessions, and points in Postgres.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// EnsureUser returns the stored user, registering an unapproved record on
// first contact.
func (s *ResultStore) EnsureUser(ctx context.Context, userID int64, fullName string) (domain.User, error) {
	var u domain.User
	var approved int
	err := s.pool.QueryRow(ctx,
		`SELECT tg_id, full_name, approved, points FROM users WHERE tg_id=$1`, userID,
	).Scan(&u.ID, &u.FullName, &approved, &u.Points)
	if err == nil {
		u.Approved = approved == 1
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO users (tg_id, full_name, approved, points) VALUES ($1, $2, 0, 0)`,
		userID, fullName,
	); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return domain.User{ID: userID, FullName: fullName}, nil
}

func (s *ResultStore) SetUserName(ctx context.Context, userID int64, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET full_name=$1 WHERE tg_id=$2`, name, userID)
	if err != nil {
		return fmt.Errorf("set user name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *ResultStore) SetApproved(ctx context.Context, userID int64, approved bool) error {
	val := 0
	if approved {
		val = 1
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET approved=$1 WHERE tg_id=$2`, val, userID)
	if err != nil {
		return fmt.Errorf("set approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *ResultStore) IsApproved(ctx context.Context, userID int64) (bool, error) {
	var approved int
	err := s.pool.QueryRow(ctx, `SELECT approved FROM users WHERE tg_id=$1`, userID).Scan(&approved)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select approval: %w", err)
	}
	return approved == 1, nil
}

func (s *ResultStore) UserPoints(ctx context.Context, userID int64) (int, error) {
	var points int
	err := s.pool.QueryRow(ctx, `SELECT points FROM users WHERE tg_id=$1`, userID).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select points: %w", err)
	}
	return points, nil
}

func (s *ResultStore) ListPending(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tg_id, full_name FROM users WHERE approved=0 ORDER BY tg_id`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var pending []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FullName); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		pending = append(pending, u)
	}
	return pending, rows.Err()
}

func (s *ResultStore) StartSession(ctx context.Context, userID int64, topic string, total, timerMinutes int) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (tg_id, topic, total, timer_minutes) VALUES ($1, $2, $3, $4) RETURNING id`,
		userID, topic, total, timerMinutes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (s *ResultStore) FinishSession(ctx context.Context, sessionID int64, score int, details []domain.TranscriptEntry) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE sessions SET finished_at=now(), score=$1, details=$2 WHERE id=$3`,
		score, data, sessionID,
	); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

func (s *ResultStore) AddPoints(ctx context.Context, userID int64, points int, topic string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE users SET points=points + $1 WHERE tg_id=$2`, points, userID,
	); err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	if topic == "" {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO user_topics (tg_id, topic, points) VALUES ($1, $2, $3)
		 ON CONFLICT (tg_id, topic) DO UPDATE SET points = user_topics.points + EXCLUDED.points`,
		userID, topic, points,
	); err != nil {
		return fmt.Errorf("add topic points: %w", err)
	}
	return nil
}

// TopScores ranks approved users by points descending, then name. With a
// topic it uses the per-topic rollup instead of the overall total.
func (s *ResultStore) TopScores(ctx context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error) {
	var rows pgx.Rows
	var err error
	if topic != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT u.full_name, ut.points
			 FROM user_topics ut JOIN users u ON ut.tg_id=u.tg_id
			 WHERE u.approved=1 AND ut.topic=$1
			 ORDER BY ut.points DESC, u.full_name LIMIT $2`, topic, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT full_name, points FROM users WHERE approved=1
			 ORDER BY points DESC, full_name LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.DisplayName, &e.Points); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
