// Package auth implements the account registry and session gate.
//
// Role policy: the first user ever registered becomes the admin; every
// later registration is a qa_user regardless of what was requested.
package auth

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

// Store is the subset of the user table the service needs.
type Store interface {
	InsertUser(u *models.User) error
	GetUser(username string) (*models.User, error)
	ListUsers() ([]models.User, error)
	CountUsers() (int, error)
	CountActiveAdmins() (int, error)
	SetUserActive(username string, active bool) error
	TouchLastLogin(username string, at time.Time) error
	DeleteUser(username string) error
}

type Service struct {
	store      Store
	tokens     *TokenIssuer
	bcryptCost int
}

func NewService(store Store, tokens *TokenIssuer, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: store, tokens: tokens, bcryptCost: bcryptCost}
}

func (s *Service) Register(username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password cannot be empty")
	}

	if _, err := s.store.GetUser(username); err == nil {
		return nil, apperr.Validation("registration failed: username %q already exists", username)
	} else if !errors.Is(err, sqlite.ErrNotFound) {
		return nil, err
	}

	total, err := s.store.CountUsers()
	if err != nil {
		return nil, err
	}

	role := models.RoleQAUser
	if total == 0 {
		role = models.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now(),
	}

	if err := s.store.InsertUser(user); err != nil {
		return nil, err
	}

	logger.Info("User registered",
		zap.String("username", username),
		zap.String("role", role),
	)

	return user, nil
}

func (s *Service) Login(username, password string) (string, *models.User, error) {
	if username == "" || password == "" {
		return "", nil, apperr.Validation("username and password cannot be empty")
	}

	user, err := s.store.GetUser(username)
	if errors.Is(err, sqlite.ErrNotFound) {
		return "", nil, apperr.Validation("login failed: username %q not found", username)
	}
	if err != nil {
		return "", nil, err
	}

	if !user.Active {
		return "", nil, apperr.Authorization("login failed: account %q is deactivated", username)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.Validation("login failed: incorrect password")
	}

	now := time.Now()
	if err := s.store.TouchLastLogin(username, now); err != nil {
		logger.Warn("Failed to record last login", zap.String("username", username), zap.Error(err))
	}
	user.LastLogin = &now

	token, err := s.tokens.Issue(user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}

	logger.Info("User logged in", zap.String("username", username), zap.String("role", user.Role))

	return token, user, nil
}

func (s *Service) ListUsers() ([]models.User, error) {
	return s.store.ListUsers()
}

// SetActive toggles an account. Deactivating the last remaining active
// admin is refused and leaves the table unchanged.
func (s *Service) SetActive(actor, target string, active bool) error {
	user, err := s.store.GetUser(target)
	if errors.Is(err, sqlite.ErrNotFound) {
		return apperr.NotFound("user %q not found", target)
	}
	if err != nil {
		return err
	}

	if !active && user.IsAdmin() && user.Active {
		admins, err := s.store.CountActiveAdmins()
		if err != nil {
			return err
		}
		if admins <= 1 {
			return apperr.Authorization("cannot deactivate %q: at least one active admin must remain", target)
		}
	}

	if err := s.store.SetUserActive(target, active); err != nil {
		return err
	}

	logger.Info("User status changed",
		zap.String("actor", actor),
		zap.String("target", target),
		zap.Bool("active", active),
	)
	return nil
}

// Delete removes an account. Self-deletion and deleting the last
// remaining active admin are refused.
func (s *Service) Delete(actor, target string) error {
	if actor == target {
		return apperr.Authorization("cannot delete your own account")
	}

	user, err := s.store.GetUser(target)
	if errors.Is(err, sqlite.ErrNotFound) {
		return apperr.NotFound("user %q not found", target)
	}
	if err != nil {
		return err
	}

	if user.IsAdmin() && user.Active {
		admins, err := s.store.CountActiveAdmins()
		if err != nil {
			return err
		}
		if admins <= 1 {
			return apperr.Authorization("cannot delete %q: at least one active admin must remain", target)
		}
	}

	if err := s.store.DeleteUser(target); err != nil {
		return err
	}

	logger.Info("User deleted", zap.String("actor", actor), zap.String("target", target))
	return nil
}
