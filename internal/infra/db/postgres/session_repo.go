package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	domain "github.com/bryanwahyu/verdict/internal/domain/account"
)

type SessionRepository struct{ db *sql.DB }

func NewSessionRepository(db *sql.DB) *SessionRepository { return &SessionRepository{db: db} }

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `
INSERT INTO sessions (id, user_id, refresh_hash, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5);`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.UserID, s.RefreshHash, s.ExpiresAt, s.CreatedAt)
	return errors.Wrap(err, "insert session")
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	const q = `
SELECT id, user_id, refresh_hash, expires_at, created_at, revoked_at
FROM sessions WHERE id=$1;`
	var s domain.Session
	var revoked sql.NullTime
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.UserID, &s.RefreshHash, &s.ExpiresAt, &s.CreatedAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query session")
	}
	if revoked.Valid {
		s.RevokedAt = &revoked.Time
	}
	return &s, nil
}

func (r *SessionRepository) Rotate(ctx context.Context, id, refreshHash string, expiresAt time.Time) error {
	const q = `UPDATE sessions SET refresh_hash=$1, expires_at=$2 WHERE id=$3 AND revoked_at IS NULL;`
	return r.update(ctx, q, refreshHash, expiresAt, id)
}

func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sessions SET revoked_at=$1 WHERE id=$2 AND revoked_at IS NULL;`
	return r.update(ctx, q, at, id)
}

func (r *SessionRepository) update(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "update session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
