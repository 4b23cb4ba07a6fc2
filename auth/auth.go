// Package auth registers accounts and verifies credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"geochat/database"
	"geochat/models"
	"geochat/utils"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	db        *database.DatabaseService
	cost      int
	dummyHash []byte
	logger    *slog.Logger
}

// NewService builds a credential service. cost is the bcrypt work factor;
// values outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewService(db *database.DatabaseService, cost int, logger *slog.Logger) (*Service, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("geochat-timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		db:        db,
		cost:      cost,
		dummyHash: dummy,
		logger:    logger.With("component", "auth"),
	}, nil
}

func (s *Service) hash(password string) ([]byte, error) {
	if err := utils.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPrecondition, err)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return h, nil
}

// Register creates an account. The first account ever registered is made admin.
func (s *Service) Register(ctx context.Context, username, password string) (models.User, error) {
	if err := utils.ValidateUsername(username); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", models.ErrPrecondition, err)
	}
	h, err := s.hash(password)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.db.CreateUser(ctx, username, h)
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("Registered user", "user_id", u.ID, "admin", u.IsAdmin)
	return u, nil
}

// Authenticate checks a username and password without changing login state.
// Unknown users and wrong passwords both yield models.ErrAuthenticationFailed.
func (s *Service) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	u, err := s.db.GetUserByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return models.User{}, models.ErrAuthenticationFailed
	}
	if err != nil {
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return models.User{}, models.ErrAuthenticationFailed
	}
	return u, nil
}

// Login authenticates and marks the account as logged in.
func (s *Service) Login(ctx context.Context, username, password string) (models.User, error) {
	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return models.User{}, err
	}
	if err := s.db.SetLoggedIn(ctx, u.ID, true); err != nil {
		return models.User{}, err
	}
	u.LoggedIn = true
	return u, nil
}

// Logout marks the account as logged out.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.db.SetLoggedIn(ctx, userID, false)
}

func (s *Service) ChangeUsername(ctx context.Context, userID int64, username string) error {
	if err := utils.ValidateUsername(username); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPrecondition, err)
	}
	return s.db.UpdateUsername(ctx, userID, username)
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, password string) error {
	h, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.db.UpdatePassword(ctx, userID, h)
}

// DeleteAccount removes the account together with its comments and messages.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("Deleted user", "user_id", userID)
	return nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (models.User, error) {
	return s.db.GetUserByID(ctx, userID)
}
