package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"chatforge/internal/model"
	"chatforge/internal/pkg/jwtutil"
	"chatforge/internal/repository"
)

// MailPublisher enqueues an outbound mail job. Publishing is fire and forget:
// account creation never waits on, or fails because of, mail delivery.
type MailPublisher interface {
	PublishMail(ctx context.Context, to, subject, body string) error
}

type AuthService struct {
	userRepo      *repository.UserRepository
	mail          MailPublisher
	jwtSecret     string
	jwtExpiration time.Duration
	log           zerolog.Logger
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(userRepo *repository.UserRepository, mail MailPublisher, jwtSecret string, jwtExpiration time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		mail:          mail,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		log:           log.With().Str("component", "auth").Logger(),
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || email == "" || password == "" || len(password) < 8 {
		return nil, ErrInvalidInput
	}

	existingByName, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}

	existingByEmail, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	if s.mail != nil {
		subject := "Welcome to ChatForge"
		body := fmt.Sprintf("Hi %s,\n\nYour account has been created. You can now build and share your own chatbots.\n", username)
		if err := s.mail.PublishMail(ctx, email, subject, body); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enqueue welcome mail failed")
		}
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) GetUserByID(id string) (*model.User, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}
