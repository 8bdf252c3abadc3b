// Package auth owns the account boundary: registration, login and keeping
// the account table in step with the in-memory profile.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"desacordo-backend/internal/database"
	"desacordo-backend/internal/directory"
	"desacordo-backend/internal/models"
	"desacordo-backend/internal/validator"
)

var (
	ErrAlreadyExists      = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnknownAccount     = errors.New("account does not exist")
)

const defaultBcryptCost = 12

// FieldErrors maps a registration field to the rule it broke.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for field, reason := range f {
		fields = append(fields, field+": "+reason)
	}
	sort.Strings(fields)
	return "invalid registration: " + strings.Join(fields, ", ")
}

// Announcer is told about every new account, normally the event router.
type Announcer interface {
	UserRegistered(user models.User)
}

type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserName  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

type Service struct {
	sugar     *zap.SugaredLogger
	accounts  *database.Accounts
	store     *directory.Store
	ids       directory.IDGenerator
	announcer Announcer
	cost      int
	now       func() time.Time
}

func New(sugar *zap.SugaredLogger, accounts *database.Accounts, store *directory.Store, ids directory.IDGenerator, announcer Announcer) *Service {
	return &Service{
		sugar:     sugar,
		accounts:  accounts,
		store:     store,
		ids:       ids,
		announcer: announcer,
		cost:      defaultBcryptCost,
		now:       time.Now,
	}
}

// SetBcryptCost overrides the hashing cost, tests use bcrypt.MinCost.
func (s *Service) SetBcryptCost(cost int) {
	s.cost = cost
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (reg Registration) validate() error {
	fieldErrors := FieldErrors{}

	if err := validator.Email(reg.Email); err != nil {
		fieldErrors["email"] = err.Error()
	}
	if err := validator.Password(reg.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if err := validator.Username(reg.UserName); err != nil {
		fieldErrors["username"] = err.Error()
	}

	if len(fieldErrors) > 0 {
		return fieldErrors
	}
	return nil
}

func (s *Service) Register(ctx context.Context, reg Registration) (models.User, error) {
	reg.Email = normalizeEmail(reg.Email)
	if err := reg.validate(); err != nil {
		return models.User{}, err
	}

	userID, err := s.ids.NewID()
	if err != nil {
		return models.User{}, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return models.User{}, err
	}

	err = s.accounts.Insert(ctx, database.Account{
		ID:           userID,
		Email:        reg.Email,
		UserName:     reg.UserName,
		AvatarURL:    reg.AvatarURL,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, database.ErrDuplicate) {
		return models.User{}, ErrAlreadyExists
	}
	if err != nil {
		return models.User{}, fmt.Errorf("inserting account: %w", err)
	}

	user, err := s.store.CreateUser(models.User{
		ID:        userID,
		Email:     reg.Email,
		UserName:  reg.UserName,
		AvatarURL: reg.AvatarURL,
	})
	if errors.Is(err, directory.ErrAlreadyExists) {
		return models.User{}, ErrAlreadyExists
	}
	if err != nil {
		return models.User{}, err
	}

	s.sugar.Infof("User [%s] registered", user.ID)

	if s.announcer != nil {
		s.announcer.UserRegistered(user)
	}
	return user, nil
}

// Login checks the password and makes sure the directory holds the profile,
// restoring it from the account row if the process restarted since.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		s.sugar.Debugf("Wrong password for user [%s]", account.ID)
		return models.User{}, ErrInvalidCredentials
	}

	return s.restore(account)
}

// Restore loads the profile of an authenticated user into the directory.
// A session cookie outlives the process, so the directory may not have
// seen the user since the last restart.
func (s *Service) Restore(ctx context.Context, userID string) (models.User, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, ErrUnknownAccount
	}
	if err != nil {
		return models.User{}, err
	}

	return s.restore(account)
}

func (s *Service) restore(account database.Account) (models.User, error) {
	return s.store.RestoreUser(models.User{
		ID:        account.ID,
		Email:     account.Email,
		UserName:  account.UserName,
		AvatarURL: account.AvatarURL,
	})
}

// ProfileUpdated persists the fields the account row mirrors.
func (s *Service) ProfileUpdated(user models.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.accounts.UpdateProfile(ctx, user.ID, user.UserName, user.AvatarURL); err != nil {
		s.sugar.Errorf("Failed to persist profile of user [%s]: %v", user.ID, err)
	}
}
