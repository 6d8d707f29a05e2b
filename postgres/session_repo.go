package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/authkit-go/authkit/sessions"
)

// SessionRepo implements sessions.Repo on PostgreSQL.
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) CreateSessionRow(ctx context.Context, token, userID string) (string, time.Time, error) {
	var (
		id        string
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (session_token, user_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, token, userID).Scan(&id, &createdAt)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[SessionRepo.CreateSessionRow]")
	}
	return id, createdAt, nil
}

func (r *SessionRepo) UpdateSessionToken(ctx context.Context, id, token string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET session_token = $1
		WHERE id = $2
	`, token, id)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.UpdateSessionToken]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.UpdateSessionToken] rows affected")
	}
	if n == 0 {
		return errors.Errorf("[SessionRepo.UpdateSessionToken] session %s not found", id)
	}
	return nil
}

func (r *SessionRepo) DeleteSessionRow(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, errors.Wrap(err, "[SessionRepo.DeleteSessionRow]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[SessionRepo.DeleteSessionRow] rows affected")
	}
	return n > 0, nil
}

func (r *SessionRepo) ListSessionRows(ctx context.Context) ([]sessions.SessionRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_token, user_id, created_at
		FROM sessions
	`)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.ListSessionRows]")
	}
	defer rows.Close()

	var out []sessions.SessionRow
	for rows.Next() {
		var row sessions.SessionRow
		if err := rows.Scan(&row.ID, &row.Token, &row.UserID, &row.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "[SessionRepo.ListSessionRows] scan")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.ListSessionRows] rows")
	}
	return out, nil
}
