package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"

	"todoagent/internal/model"
)

type UserRepository struct {
	db     DBInterface
	logger *zap.Logger
}

func NewUserRepository(db DBInterface, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3) RETURNING created_at`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
		}
		r.logger.Error("Failed to insert user", zap.Error(err))
		return fmt.Errorf("inserting user: %w", err)
	}
	r.logger.Info("User created", zap.String("user_id", u.ID))
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := pgxscan.Get(ctx, r.db, &u,
		`SELECT id::text AS id, email, password_hash, created_at FROM users WHERE email = $1`,
		strings.ToLower(email),
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}
