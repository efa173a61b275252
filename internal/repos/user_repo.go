package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockroom/internal/domain"
)

type UserRepo struct{ store *Store }

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{store: s} }

func (r *UserRepo) Create(ctx context.Context, u domain.User) (int64, error) {
	db, err := r.store.DB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO users(full_name, email, date_of_birth, password_hash)
		VALUES(?, ?, ?, ?)`, u.FullName, u.Email, u.DateOfBirth, u.Hash)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}
	var u domain.User
	err = db.GetContext(ctx, &u, `
		SELECT id, full_name, email, COALESCE(date_of_birth,'') AS date_of_birth, password_hash
		FROM users WHERE LOWER(email) = LOWER(?)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, email, hash string) error {
	db, err := r.store.DB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE LOWER(email) = LOWER(?)`, hash, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
