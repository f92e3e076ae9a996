package mysql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Insert assigns the id and stores the record.
func (r *AnalysisRepository) Insert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	const q = `
INSERT INTO analyses
  (id, user_id, created_at, objection_text, mode, context, result)
VALUES (?,?,?,?,?,?,?)
`
	ctxJSON, err := jsonText(rec.Context)
	if err != nil {
		return domain.Record{}, errors.Wrap(err, "encode context")
	}
	resJSON, err := jsonText(rec.Result)
	if err != nil {
		return domain.Record{}, errors.Wrap(err, "encode result")
	}

	rec.ID = domain.RecordID(uuid.NewString())
	if _, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.CreatedAt, rec.ObjectionText, rec.Mode, ctxJSON, resJSON,
	); err != nil {
		return domain.Record{}, errors.Wrap(err, "insert analysis")
	}
	return rec, nil
}

// List returns the user's records, newest first.
func (r *AnalysisRepository) List(ctx context.Context, userID string) ([]domain.Record, error) {
	const q = `
SELECT id, user_id, created_at, objection_text, mode, context, result
FROM analyses
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query analyses")
	}
	defer rows.Close()

	out := make([]domain.Record, 0)
	for rows.Next() {
		var rec domain.Record
		var ctxJSON, resJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.ObjectionText, &rec.Mode, &ctxJSON, &resJSON); err != nil {
			return nil, errors.Wrap(err, "scan analysis")
		}
		if err := json.Unmarshal(ctxJSON, &rec.Context); err != nil {
			return nil, errors.Wrapf(err, "decode context of %s", rec.ID)
		}
		if err := json.Unmarshal(resJSON, &rec.Result); err != nil {
			return nil, errors.Wrapf(err, "decode result of %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Remove deletes one of the user's records. ErrNotFound when nothing matched.
func (r *AnalysisRepository) Remove(ctx context.Context, userID string, id domain.RecordID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return errors.Wrap(err, "delete analysis")
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
