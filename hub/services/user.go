package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/mail"
	"campus_hub/hub/schema"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const forgotPasswordMessage = "If the email exists, a reset link has been sent"

type UserService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	mailer    mail.Mailer
	publicUrl string
	rateLimit int
	logger    *slog.Logger
}

func (s *UserService) AuthRoutes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))

		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/forgot-password", s.ForgotPassword)
	})

	r.Post("/verify", s.Verify)
	r.Post("/reset-password", s.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/logout", s.Logout)
	})

	return r
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/me", s.Info)
	r.Put("/me", s.UpdateProfile)

	r.With(auth.StaffOnly()).Get("/", s.List)

	return r
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) link(path, token string) string {
	return fmt.Sprintf("%v%v?token=%v", strings.TrimSuffix(s.publicUrl, "/"), path, url.QueryEscape(token))
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (r *registerRequest) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

type RegisterResponse struct {
	UserId uuid.UUID `json:"userId"`
}

func (s *UserService) Register(w http.ResponseWriter, r *http.Request) {
	var params registerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	email := params.Email

	user, err := s.userAuth.CreateUser(r.Context(), auth.NewUser{Name: params.Name, Email: email, Password: params.Password})
	if err != nil {
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			s.logger.Warn("registration attempt with existing email", "email", email, "code", logging.AUTH_REGISTER)
			writeError(w, s.logger, "registering user", CodedError(auth.ErrEmailAlreadyInUse, http.StatusConflict))
			return
		}
		writeError(w, s.logger, "registering user", err)
		return
	}

	if user.VerificationToken != nil {
		link := s.link("/auth/verify", *user.VerificationToken)
		if err := s.mailer.SendVerificationEmail(user.Email, user.Name, link); err != nil {
			// The account exists at this point, the user can ask for a new
			// link through the password reset flow.
			s.logger.Error("unable to send verification email", "user_id", user.Id, "error", err, "code", logging.MAIL)
		}
	}

	s.logger.Info("user registered", "user_id", user.Id, "email", user.Email, "code", logging.AUTH_REGISTER)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, RegisterResponse{UserId: user.Id})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

type LoginResponse struct {
	UserId      uuid.UUID `json:"userId"`
	AccessToken string    `json:"accessToken"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	email := params.Email

	login, err := s.userAuth.LoginWithEmail(r.Context(), email, params.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.logger.Warn("login attempt with invalid credentials", "email", email, "code", logging.AUTH_LOGIN)
			err = CodedError(err, http.StatusUnauthorized)
		case errors.Is(err, auth.ErrUserInactive):
			err = CodedError(err, http.StatusForbidden)
		case errors.Is(err, auth.ErrEmailNotVerified):
			s.logger.Warn("login attempt on unverified invited account", "email", email, "code", logging.AUTH_LOGIN)
			err = CodedError(err, http.StatusForbidden)
		}
		writeError(w, s.logger, "logging in", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    login.AccessToken,
		Path:     "/",
		Expires:  login.ExpiresAt,
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.publicUrl, "https://"),
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("user logged in", "user_id", login.UserId, "code", logging.AUTH_LOGIN)

	utils.WriteJsonResponse(w, LoginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

func (s *UserService) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.userAuth.Logout(r); err != nil {
		writeError(w, s.logger, "logging out", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	userId, _ := auth.UserIdFromContext(r)
	s.logger.Info("user logged out", "user_id", userId, "code", logging.AUTH_LOGOUT)

	utils.WriteSuccess(w)
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (s *UserService) Verify(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := s.userAuth.VerifyUser(r.Context(), params.Token); err != nil {
		if errors.Is(err, auth.ErrInvalidVerificationToken) {
			s.logger.Warn("verification attempt with invalid token", "code", logging.AUTH_VERIFY)
			err = CodedError(err, http.StatusBadRequest)
		}
		writeError(w, s.logger, "verifying email", err)
		return
	}

	utils.WriteJsonResponse(w, MessageResponse{Message: "Verification successful"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *forgotPasswordRequest) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

func (s *UserService) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var params forgotPasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	email := params.Email

	user, token, err := s.userAuth.CreateResetToken(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFoundWithEmail) {
			s.logger.Warn("forgot password attempt with unknown email", "email", email, "code", logging.AUTH_RESET)
			utils.WriteJsonResponse(w, MessageResponse{Message: forgotPasswordMessage})
			return
		}
		writeError(w, s.logger, "requesting password reset", err)
		return
	}

	// The response must not reveal whether the email belongs to an account.
	if err := s.mailer.SendPasswordResetEmail(user.Email, s.link("/auth/reset-password", token)); err != nil {
		s.logger.Error("unable to send password reset email", "user_id", user.Id, "error", err, "code", logging.MAIL)
	} else {
		s.logger.Info("password reset requested", "user_id", user.Id, "code", logging.AUTH_RESET)
	}

	utils.WriteJsonResponse(w, MessageResponse{Message: forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (s *UserService) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var params resetPasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := s.userAuth.ResetPassword(r.Context(), params.Token, params.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidResetToken) {
			err = CodedError(err, http.StatusBadRequest)
		}
		writeError(w, s.logger, "resetting password", err)
		return
	}

	utils.WriteJsonResponse(w, MessageResponse{Message: "Password has been reset"})
}

type UserTeamInfo struct {
	TeamId   uuid.UUID `json:"teamId"`
	TeamName string    `json:"teamName"`
	Role     string    `json:"role"`
}

type UserInfo struct {
	Id          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Role        string         `json:"role"`
	Department  *string        `json:"department"`
	AvatarUrl   *string        `json:"avatarUrl"`
	IsVerified  bool           `json:"isVerified"`
	IsActive    bool           `json:"isActive"`
	LastLoginAt *time.Time     `json:"lastLoginAt"`
	Preferences datatypes.JSON `json:"preferences"`
	CreatedAt   time.Time      `json:"createdAt"`

	Teams []UserTeamInfo `json:"teams,omitempty"`
}

func convertToUserInfo(user schema.User) UserInfo {
	info := UserInfo{
		Id:          user.Id,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Department:  user.Department,
		AvatarUrl:   user.AvatarUrl,
		IsVerified:  user.IsVerified,
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
		Preferences: user.Preferences,
		CreatedAt:   user.CreatedAt,
	}

	for _, membership := range user.Teams {
		teamInfo := UserTeamInfo{TeamId: membership.TeamId, Role: membership.Role}
		if membership.Team != nil {
			teamInfo.TeamName = membership.Team.Name
		}
		info.Teams = append(info.Teams, teamInfo)
	}

	return info
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	userId, err := auth.UserIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var user schema.User
	result := s.db.WithContext(r.Context()).Preload("Teams").Preload("Teams.Team").First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			writeError(w, s.logger, "retrieving user info", CodedError(schema.ErrUserNotFound, http.StatusNotFound))
			return
		}
		writeError(w, s.logger, "retrieving user info", dbFailure(s.logger, "sql error loading user info", result.Error, "user_id", userId))
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(user))
}

type updateProfileRequest struct {
	Name        *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Department  *string        `json:"department" validate:"omitempty,max=255"`
	AvatarUrl   *string        `json:"avatarUrl" validate:"omitempty,url"`
	Preferences datatypes.JSON `json:"preferences"`
}

func (s *UserService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params updateProfileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.Name != nil {
		updates["name"] = *params.Name
	}
	if params.Department != nil {
		updates["department"] = *params.Department
	}
	if params.AvatarUrl != nil {
		updates["avatar_url"] = *params.AvatarUrl
	}
	if params.Preferences != nil {
		updates["preferences"] = params.Preferences
	}

	if len(updates) > 0 {
		result := s.db.WithContext(r.Context()).Model(&schema.User{Id: user.Id}).Updates(updates)
		if result.Error != nil {
			writeError(w, s.logger, "updating profile", dbFailure(s.logger, "sql error updating profile", result.Error, "user_id", user.Id))
			return
		}
	}

	updated, err := schema.GetUser(user.Id, s.db.WithContext(r.Context()))
	if err != nil {
		writeError(w, s.logger, "updating profile", err)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(updated))
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.WithContext(r.Context()).Order("name").Find(&users)
	if result.Error != nil {
		writeError(w, s.logger, "listing users", dbFailure(s.logger, "sql error listing users", result.Error))
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, convertToUserInfo(user))
	}

	utils.WriteJsonResponse(w, infos)
}
