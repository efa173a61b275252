package services

import (
	"context"
	"errors"
	"fmt"

	"stockroom/internal/domain"
	"stockroom/internal/repos"
	"stockroom/internal/validate"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCreds = errors.New("invalid email or password")
	ErrInvalid  = errors.New("invalid input")
)

type AuthService struct {
	Users *repos.UserRepo
	Cost  int // bcrypt cost; zero means bcrypt.DefaultCost
}

func (s *AuthService) hash(password string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(b), err
}

// Signup creates an account. A taken email returns repos.ErrDuplicate.
func (s *AuthService) Signup(ctx context.Context, fullName, email, dob, password string) (*domain.User, error) {
	name, ok := validate.Name(fullName)
	if !ok {
		return nil, fmt.Errorf("%w: full name", ErrInvalid)
	}
	email, ok = validate.Email(email)
	if !ok {
		return nil, fmt.Errorf("%w: email", ErrInvalid)
	}
	if dob != "" {
		if dob, ok = validate.Date(dob); !ok {
			return nil, fmt.Errorf("%w: date of birth", ErrInvalid)
		}
	}
	if !validate.Password(password) {
		return nil, fmt.Errorf("%w: password must be 8-64 chars with upper, lower, digit and symbol", ErrInvalid)
	}
	h, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u := domain.User{FullName: name, Email: email, DateOfBirth: dob, Hash: h}
	if u.ID, err = s.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, repos.ErrNotReady) {
		return nil, err
	}
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	return u, nil
}

// ResetPassword replaces the stored hash. Unknown emails return repos.ErrNotFound.
func (s *AuthService) ResetPassword(ctx context.Context, email, password string) error {
	if !validate.Password(password) {
		return fmt.Errorf("%w: password must be 8-64 chars with upper, lower, digit and symbol", ErrInvalid)
	}
	h, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.Users.UpdatePassword(ctx, email, h)
}
