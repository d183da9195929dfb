package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"campus_hub/hub/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithEmail    = errors.New("no user found for given email")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrUserInactive             = errors.New("user account is inactive")
	ErrEmailNotVerified         = errors.New("email must be verified before signing in to an invited account")
	ErrGeneratingJwt            = errors.New("error generating jwt")
	ErrEmailAlreadyInUse        = errors.New("email is already in use")
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	ErrInvalidResetToken        = errors.New("invalid or expired reset token")
)

type LoginResult struct {
	UserId      uuid.UUID
	AccessToken string
	ExpiresAt   time.Time
}

type NewUser struct {
	Name     string
	Email    string
	Password string
}

type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	LoginWithEmail(ctx context.Context, email, password string) (LoginResult, error)

	// CreateUser registers an unverified user and returns it with its
	// verification token set.
	CreateUser(ctx context.Context, user NewUser) (schema.User, error)

	VerifyUser(ctx context.Context, token string) error

	// CreateResetToken stores a new single use reset token for the user with
	// the given email and returns the user and the token.
	CreateResetToken(ctx context.Context, email string) (schema.User, string, error)

	ResetPassword(ctx context.Context, token, password string) error

	Logout(r *http.Request) error

	GetTokenExpiration(r *http.Request) (time.Time, error)
}

// NewRandomToken returns 32 random bytes hex encoded.
func NewRandomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("error generating random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func addInitialAdminToDb(db *gorm.DB, name, email string, password []byte) error {
	user := schema.User{
		Id:         uuid.New(),
		Name:       name,
		Email:      email,
		Role:       schema.AdminRole,
		Password:   password,
		IsVerified: true,
		IsActive:   true,
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", email)
		if result.Error != nil {
			return schema.NewDbError("checking if admin has already been added", result.Error)
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&user)
			if result.Error != nil {
				return schema.NewDbError("creating initial admin user", result.Error)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

type requestContextKey string

const (
	UserRequestContextKey    requestContextKey = "user"
	ProjectRequestContextKey requestContextKey = "project"
)
