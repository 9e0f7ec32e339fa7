package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/ports"
)

const sessionColumns = `
	id, task_id, status, planned_duration, actual_duration, started_at, ended_at,
	completed_steps, total_steps, notes, distractions, git_branch, git_commit`

// streakLookback bounds how far back a streak is counted.
const streakLookback = 365

// sessionRepository implements ports.SessionRepository and ports.StreakQuery
// using SQLite.
type sessionRepository struct {
	db *sql.DB
}

// newSessionRepository creates a new session repository.
func newSessionRepository(db *sql.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

var (
	_ ports.SessionRepository = (*sessionRepository)(nil)
	_ ports.StreakQuery       = (*sessionRepository)(nil)
)

// Create persists a new session and assigns its ID.
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = domain.NewID()
	}

	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.TaskID,
		string(session.Status),
		session.PlannedDuration,
		session.ActualDuration,
		utc(session.StartedAt),
		utcPtr(session.EndedAt),
		session.CompletedSteps,
		session.TotalSteps,
		session.Notes,
		marshalDistractions(session.Distractions),
		session.GitBranch,
		session.GitCommit,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Update writes the outcome of a session. Only an unended row is written:
// the first end to land wins, and a later one returns ErrSessionTerminal.
func (r *sessionRepository) Update(ctx context.Context, session *domain.Session) error {
	query := `
		UPDATE sessions
		SET status = ?, actual_duration = ?, ended_at = ?, completed_steps = ?,
			total_steps = ?, notes = ?, distractions = ?
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(session.Status),
		session.ActualDuration,
		utcPtr(session.EndedAt),
		session.CompletedSteps,
		session.TotalSteps,
		session.Notes,
		marshalDistractions(session.Distractions),
		session.ID,
		string(domain.SessionStatusActive),
		string(domain.SessionStatusPaused),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, session.ID); err != nil {
		return err
	}
	return domain.ErrSessionTerminal
}

// FindByID retrieves a session by its unique identifier.
func (r *sessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// FindActive retrieves the most recent unended session, or nil.
func (r *sessionRepository) FindActive(ctx context.Context) (*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status IN (?, ?)
		ORDER BY started_at DESC
		LIMIT 1
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query,
		string(domain.SessionStatusActive),
		string(domain.SessionStatusPaused)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return session, nil
}

// FindByTask retrieves all sessions of a task, newest first.
func (r *sessionRepository) FindByTask(ctx context.Context, taskID string) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE task_id = ?
		ORDER BY started_at DESC
	`
	return r.querySessions(ctx, query, taskID)
}

// FindRecent retrieves sessions started since the given time, newest first.
func (r *sessionRepository) FindRecent(ctx context.Context, since time.Time) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE started_at >= ?
		ORDER BY started_at DESC
	`
	return r.querySessions(ctx, query, utc(since))
}

// FindOrphaned returns unended sessions started before the cutoff.
func (r *sessionRepository) FindOrphaned(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status IN (?, ?) AND started_at < ?
		ORDER BY started_at ASC
	`
	return r.querySessions(ctx, query,
		string(domain.SessionStatusActive),
		string(domain.SessionStatusPaused),
		utc(startedBefore))
}

// CountCompletedSince counts completed sessions started since the given time.
func (r *sessionRepository) CountCompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE status = ? AND started_at >= ?
	`, string(domain.SessionStatusCompleted), utc(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// CurrentStreak counts consecutive local days, ending today, with at least
// one started session. A day without sessions yet does not break the streak
// when it is today.
func (r *sessionRepository) CurrentStreak(ctx context.Context, now time.Time) (int, error) {
	streak := 0
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for i := 0; i < streakLookback; i++ {
		startOfDay := today.AddDate(0, 0, -i)
		endOfDay := startOfDay.AddDate(0, 0, 1)

		var n int
		err := r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sessions WHERE started_at >= ? AND started_at < ?
		`, utc(startOfDay), utc(endOfDay)).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to query streak: %w", err)
		}

		if n > 0 {
			streak++
			continue
		}
		if i == 0 {
			continue
		}
		break
	}
	return streak, nil
}

func (r *sessionRepository) querySessions(ctx context.Context, query string, args ...interface{}) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var taskID sql.NullString
	var endedAt sql.NullTime
	var distractions string

	err := row.Scan(
		&session.ID,
		&taskID,
		&session.Status,
		&session.PlannedDuration,
		&session.ActualDuration,
		&session.StartedAt,
		&endedAt,
		&session.CompletedSteps,
		&session.TotalSteps,
		&session.Notes,
		&distractions,
		&session.GitBranch,
		&session.GitCommit,
	)
	if err != nil {
		return nil, err
	}

	if taskID.Valid {
		session.TaskID = &taskID.String
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	session.Distractions = unmarshalDistractions(distractions)
	return &session, nil
}

func marshalDistractions(d []domain.Distraction) string {
	if len(d) == 0 {
		return ""
	}
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalDistractions(data string) []domain.Distraction {
	if data == "" {
		return nil
	}
	var distractions []domain.Distraction
	if err := json.Unmarshal([]byte(data), &distractions); err != nil {
		return nil
	}
	return distractions
}
