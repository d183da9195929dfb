package auth

import (
	"fmt"
	"net/http"
	"time"

	"campus_hub/hub/schema"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

const TokenCookieName = "token"

type JwtManager struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
}

func NewJwtManager(secret []byte, ttl time.Duration) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil), ttl: ttl}
}

func tokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(TokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Verifier accepts the token from the Authorization header, falling back to
// the session cookie set at login.
func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verify(m.auth, jwtauth.TokenFromHeader, tokenFromCookie)
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return jwtauth.Authenticator(m.auth)
}

const userIdKey = "user_id"

type AccessToken struct {
	Token     string
	Jti       string
	ExpiresAt time.Time
}

func (m *JwtManager) CreateUserJwt(userId uuid.UUID) (AccessToken, error) {
	now := time.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(m.ttl)

	claims := map[string]interface{}{
		userIdKey: userId.String(),
		"jti":     jti,
		"iat":     now,
		"exp":     expiresAt,
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		return AccessToken{}, fmt.Errorf("error generating access token: %w", err)
	}
	return AccessToken{Token: token, Jti: jti, ExpiresAt: expiresAt}, nil
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("error retrieving auth claims: %w", err)
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

func UserIdFromContext(r *http.Request) (uuid.UUID, error) {
	value, err := ValueFromContext(r, userIdKey)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' provided: %w", value, err)
	}
	return id, nil
}

func UserFromContext(r *http.Request) (schema.User, error) {
	userUntyped := r.Context().Value(UserRequestContextKey)
	if userUntyped == nil {
		return schema.User{}, fmt.Errorf("user field not found in request context")
	}
	user, ok := userUntyped.(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}
