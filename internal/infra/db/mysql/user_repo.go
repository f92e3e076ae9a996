package mysql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	domain "github.com/bryanwahyu/verdict/internal/domain/account"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	const q = `INSERT INTO users (id, email, password_hash, created_at) VALUES (?,?,?,?)`
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx, q, id, u.Email, u.PasswordHash, u.CreatedAt); err != nil {
		if isDuplicate(err) {
			return domain.ErrAlreadyExists
		}
		return errors.Wrap(err, "insert user")
	}
	u.ID = id
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE email = ? LIMIT 1`
	return r.get(ctx, q, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE id = ? LIMIT 1`
	return r.get(ctx, q, id)
}

func (r *UserRepository) get(ctx context.Context, q string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query user")
	}
	return &u, nil
}
