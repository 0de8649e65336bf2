package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/auth"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// ResetTokenTTL is how long a password reset link stays valid
const ResetTokenTTL = time.Hour

// ResetMailer sends password reset links
type ResetMailer interface {
	Enabled() bool
	SendPasswordReset(ctx context.Context, to, token string) error
}

// RegisterInput is the sign-up payload
type RegisterInput struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginInput is the sign-in payload
type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ForgotPasswordInput asks for a reset link
type ForgotPasswordInput struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordInput sets a new password with a reset token
type ResetPasswordInput struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// Session is an issued login
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      *entities.User `json:"user"`
}

// AuthUseCase handles accounts and sessions
type AuthUseCase struct {
	users  *repository.UserRepository
	tokens *auth.JWTManager
	mailer ResetMailer
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthUseCase creates an auth use case
func NewAuthUseCase(users *repository.UserRepository, tokens *auth.JWTManager, mailer ResetMailer, log *zap.Logger) *AuthUseCase {
	return &AuthUseCase{
		users:  users,
		tokens: tokens,
		mailer: mailer,
		log:    log.Named("auth"),
		now:    time.Now,
	}
}

var errBadCredentials = entities.NewDomainError(entities.CodeUnauthorized, "Invalid email or password")

// Register creates an account with default notification preferences
func (uc *AuthUseCase) Register(ctx context.Context, in RegisterInput) (*entities.User, error) {
	if len(in.Password) < auth.MinPasswordLength {
		return nil, entities.Invalid(fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         entities.RoleUser,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}

	prefs := entities.DefaultPreferences(user.ID)
	if err := uc.users.SavePreferences(ctx, &prefs); err != nil {
		return nil, err
	}

	uc.log.Info("User registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login checks credentials and issues a session token
func (uc *AuthUseCase) Login(ctx context.Context, in LoginInput) (*Session, error) {
	user, err := uc.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if isNotFound(err) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) {
		uc.log.Info("Failed login", zap.String("user_id", user.ID))
		return nil, errBadCredentials
	}

	token, expires, err := uc.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Me returns the signed-in user
func (uc *AuthUseCase) Me(ctx context.Context, userID string) (*entities.User, error) {
	return uc.users.Get(ctx, userID)
}

// ForgotPassword emails a reset link. It answers the same for unknown
// addresses and failed sends.
func (uc *AuthUseCase) ForgotPassword(ctx context.Context, email string) error {
	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	token, hash, err := auth.NewResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	err = uc.users.CreateResetToken(ctx, &entities.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: uc.now().UTC().Add(ResetTokenTTL),
	})
	if err != nil {
		return err
	}

	if !uc.mailer.Enabled() {
		uc.log.Warn("Email not configured, reset link not sent", zap.String("user_id", user.ID))
		return nil
	}
	if err := uc.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		uc.log.Error("Failed to send reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password
func (uc *AuthUseCase) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if len(in.Password) < auth.MinPasswordLength {
		return entities.Invalid(fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}
	token, err := uc.users.ConsumeResetToken(ctx, auth.HashResetToken(in.Token), uc.now().UTC())
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := uc.users.UpdatePassword(ctx, token.UserID, hash); err != nil {
		return err
	}
	uc.log.Info("Password reset", zap.String("user_id", token.UserID))
	return nil
}
