package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/verdict/internal/domain/account"
	"github.com/bryanwahyu/verdict/internal/domain/verdict"
)

func sampleRecord(userID string) verdict.Record {
	return verdict.Record{
		UserID:        userID,
		CreatedAt:     1767258000000,
		ObjectionText: "Send me the deck and I will circle back.",
		Mode:          verdict.ModeTactical,
		Context:       verdict.Context{DealSizeTier: "B2B Enterprise", Sector: "Logistics", DealStage: "Proposal Sent"},
		Result: verdict.Payload{
			Meaning:           "Polite brush-off.",
			IntentLevel:       verdict.IntentMedium,
			IntentExplanation: "Engaged but no owner.",
			CloseProbability:  "20-30%",
			BestResponse:      "Who else needs to see it?",
			WhatNotToSay:      []string{"Sure, no rush", "Any update?"},
			FollowUpStrategy:  verdict.FollowUpStrategy{MaxFollowUps: "2", TimeGap: "3 days", StopCondition: "No champion named"},
			WalkAwaySignal:    "Nobody owns the decision.",
		},
	}
}

func TestAnalysisRepository_InsertListRemove(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAnalysisRepository(db)
	ctx := context.Background()
	userID := uuid.NewString()
	rec := sampleRecord(userID)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyses")).
		WithArgs(sqlmock.AnyArg(), userID, int64(1767258000000), rec.ObjectionText, "TACTICAL", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	saved, err := repo.Insert(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	ctxJSON, _ := json.Marshal(rec.Context)
	resJSON, _ := json.Marshal(rec.Result)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id=$1\nORDER BY created_at DESC, id DESC")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "objection_text", "mode", "context", "result"}).
			AddRow(string(saved.ID), userID, saved.CreatedAt, rec.ObjectionText, "TACTICAL", ctxJSON, resJSON))
	list, err := repo.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved, list[0])

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analyses WHERE user_id=$1 AND id=$2;")).
		WithArgs(userID, string(saved.ID)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Remove(ctx, userID, saved.ID))

	// ids that are not uuids never reach the database
	assert.ErrorIs(t, repo.Remove(ctx, userID, "not-a-uuid"), verdict.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	err = repo.Create(context.Background(), &account.User{Email: "a@b.com", PasswordHash: "h", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, account.ErrAlreadyExists)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepository(db)
	id := uuid.NewString()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1;")).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).AddRow(id, "a@b.com", "h", now))
	u, err := repo.GetByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1;")).
		WithArgs("x@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))
	_, err = repo.GetByEmail(context.Background(), "x@b.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RotateAndRevoke(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSessionRepository(db)
	ctx := context.Background()
	sid := uuid.NewString()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET refresh_hash=$1, expires_at=$2 WHERE id=$3 AND revoked_at IS NULL;")).
		WithArgs("h2", now, sid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Rotate(ctx, sid, "h2", now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked_at=$1")).
		WithArgs(now, sid).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Revoke(ctx, sid, now), account.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id=$1;")).
		WithArgs(sid).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "refresh_hash", "expires_at", "created_at", "revoked_at"}))
	_, err = repo.Get(ctx, sid)
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = repo.Get(ctx, "garbage")
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
