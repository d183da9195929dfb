package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/schema"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	bcryptCost    = 10
	resetTokenTtl = time.Hour
)

type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
	blacklist  TokenBlacklist
	tokenTtl   time.Duration
	logger     *slog.Logger
}

type BasicProviderArgs struct {
	Secret        []byte
	TokenTtl      time.Duration
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, blacklist TokenBlacklist, logger *slog.Logger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, args.AdminName, args.AdminEmail, hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding inital admin to db: %w", err)
	}

	ttl := args.TokenTtl
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret, ttl),
		db:         db,
		auditLog:   auditLog,
		blacklist:  blacklist,
		tokenTtl:   ttl,
		logger:     logger.With("component", "identity_provider"),
	}, nil
}

func (auth *BasicIdentityProvider) rejectRevokedTokens() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			revoked, err := auth.blacklist.IsRevoked(r.Context(), token.JwtID())
			if err == nil && !revoked {
				var userId string
				userId, err = ValueFromContext(r, userIdKey)
				if err != nil {
					http.Error(w, err.Error(), http.StatusUnauthorized)
					return
				}
				revoked, err = auth.blacklist.IsUserTokenRevoked(r.Context(), userId, token.IssuedAt())
			}
			if err != nil {
				auth.logger.Error("error checking token blacklist", "error", err, "code", logging.AUTH_LOGIN)
				http.Error(w, "unable to verify access token", http.StatusInternalServerError)
				return
			}
			if revoked {
				http.Error(w, "access token has been revoked", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := UserIdFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			user, err := schema.GetUser(userId, auth.db.WithContext(r.Context()))
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					http.Error(w, err.Error(), http.StatusUnauthorized)
					return
				}
				auth.logger.Error("error loading user for request", "user_id", userId, "error", err)
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", userId, schema.ErrDbAccessFailed), http.StatusInternalServerError)
				return
			}

			if !user.IsActive {
				http.Error(w, ErrUserInactive.Error(), http.StatusForbidden)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{
		auth.jwtManager.Verifier(),
		auth.jwtManager.Authenticator(),
		auth.rejectRevokedTokens(),
		auth.addUserToContext(),
		auth.auditLog.Middleware,
	}
}

func (auth *BasicIdentityProvider) LoginWithEmail(ctx context.Context, email, password string) (LoginResult, error) {
	db := auth.db.WithContext(ctx)

	user, err := schema.GetUserByEmail(email, db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		auth.logger.Error("error looking up user by email", "error", err, "code", logging.AUTH_LOGIN)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	// Placeholder users created by team invitations have no credential yet.
	if len(user.Password) == 0 {
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return LoginResult{}, ErrUserInactive
	}

	// An invited account carries team memberships granted to the email, so the
	// registrant must prove they own it first.
	if user.InvitedAt != nil && !user.IsVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id)
	if err != nil {
		auth.logger.Error("error creating access token", "user_id", user.Id, "error", err, "code", logging.AUTH_LOGIN)
		return LoginResult{}, ErrGeneratingJwt
	}

	result := db.Model(&schema.User{Id: user.Id}).Update("last_login_at", time.Now().UTC())
	if result.Error != nil {
		auth.logger.Warn("unable to record last login", "user_id", user.Id, "error", result.Error, "code", logging.AUTH_LOGIN)
	}

	return LoginResult{UserId: user.Id, AccessToken: token.Token, ExpiresAt: token.ExpiresAt}, nil
}

func (auth *BasicIdentityProvider) CreateUser(ctx context.Context, args NewUser) (schema.User, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.Password), bcryptCost)
	if err != nil {
		return schema.User{}, fmt.Errorf("error encrypting password: %w", err)
	}

	verificationToken, err := NewRandomToken()
	if err != nil {
		return schema.User{}, err
	}

	var user schema.User

	err = auth.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", args.Email)
		if result.Error != nil {
			return schema.NewDbError("checking for existing email", result.Error)
		}

		if result.RowsAffected == 0 {
			user = schema.User{
				Id:                uuid.New(),
				Email:             args.Email,
				Name:              args.Name,
				Role:              schema.StudentRole,
				Password:          hashedPwd,
				IsVerified:        false,
				IsActive:          true,
				VerificationToken: &verificationToken,
			}
			if result := txn.Create(&user); result.Error != nil {
				return schema.NewDbError("creating new user", result.Error)
			}
			return nil
		}

		if len(existingUser.Password) != 0 {
			return ErrEmailAlreadyInUse
		}

		// The email was added to a team before the user registered, the
		// placeholder account is claimed instead of creating a second user.
		updates := map[string]interface{}{
			"name":               args.Name,
			"password":           hashedPwd,
			"verification_token": verificationToken,
			"is_verified":        false,
		}
		if result := txn.Model(&existingUser).Updates(updates); result.Error != nil {
			return schema.NewDbError("claiming placeholder user", result.Error)
		}
		user = existingUser
		user.Name = args.Name
		user.Password = hashedPwd
		user.VerificationToken = &verificationToken
		user.IsVerified = false
		return nil
	})

	if err != nil {
		if errors.Is(err, schema.ErrDbAccessFailed) {
			auth.logger.Error("error creating user", "error", err, "code", logging.AUTH_REGISTER)
		}
		return schema.User{}, fmt.Errorf("error creating new user: %w", err)
	}

	return user, nil
}

func (auth *BasicIdentityProvider) VerifyUser(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidVerificationToken
	}

	result := auth.db.WithContext(ctx).Model(&schema.User{}).
		Where("verification_token = ?", token).
		Updates(map[string]interface{}{"is_verified": true, "verification_token": nil})
	if result.Error != nil {
		auth.logger.Error("error verifying user", "error", result.Error, "code", logging.AUTH_VERIFY)
		return schema.NewDbError("verifying user", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidVerificationToken
	}

	return nil
}

func (auth *BasicIdentityProvider) CreateResetToken(ctx context.Context, email string) (schema.User, string, error) {
	db := auth.db.WithContext(ctx)

	user, err := schema.GetUserByEmail(email, db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return schema.User{}, "", ErrUserNotFoundWithEmail
		}
		auth.logger.Error("error looking up user for password reset", "error", err, "code", logging.AUTH_RESET)
		return schema.User{}, "", err
	}

	token, err := NewRandomToken()
	if err != nil {
		return schema.User{}, "", err
	}

	expiry := time.Now().UTC().Add(resetTokenTtl)
	result := db.Model(&user).Updates(map[string]interface{}{"reset_token": token, "reset_token_expiry": expiry})
	if result.Error != nil {
		auth.logger.Error("error storing reset token", "user_id", user.Id, "error", result.Error, "code", logging.AUTH_RESET)
		return schema.User{}, "", schema.NewDbError("storing reset token", result.Error)
	}

	user.ResetToken = &token
	user.ResetTokenExpiry = &expiry

	return user, token, nil
}

func (auth *BasicIdentityProvider) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrInvalidResetToken
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("error encrypting password: %w", err)
	}

	var user schema.User

	err = auth.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.Limit(1).Find(&user, "reset_token = ? AND reset_token_expiry > ?", token, time.Now().UTC())
		if result.Error != nil {
			return schema.NewDbError("looking up reset token", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvalidResetToken
		}

		// Receiving the reset email proves ownership of the address.
		updates := map[string]interface{}{
			"password":           hashedPwd,
			"reset_token":        nil,
			"reset_token_expiry": nil,
			"is_verified":        true,
		}
		if result := txn.Model(&user).Updates(updates); result.Error != nil {
			return schema.NewDbError("updating password", result.Error)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, schema.ErrDbAccessFailed) {
			auth.logger.Error("error resetting password", "error", err, "code", logging.AUTH_RESET)
		}
		return err
	}

	if err := auth.blacklist.RevokeUserTokens(ctx, user.Id.String(), auth.tokenTtl); err != nil {
		auth.logger.Error("unable to revoke existing sessions after password reset", "user_id", user.Id, "error", err, "code", logging.AUTH_RESET)
	}

	return nil
}

func (auth *BasicIdentityProvider) Logout(r *http.Request) error {
	token, _, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return fmt.Errorf("error retrieving access token: %w", err)
	}

	if err := auth.blacklist.Revoke(r.Context(), token.JwtID(), time.Until(token.Expiration())); err != nil {
		auth.logger.Error("error revoking token", "error", err, "code", logging.AUTH_LOGOUT)
		return err
	}

	return nil
}

func (auth *BasicIdentityProvider) GetTokenExpiration(r *http.Request) (time.Time, error) {
	token, _, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return time.Time{}, fmt.Errorf("error retrieving access token: %w", err)
	}

	return token.Expiration(), nil
}
