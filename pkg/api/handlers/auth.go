package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/api/auth"
	"github.com/genbu-cloud/genbu/pkg/api/middleware"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// AuthHandler handles registration, login and session endpoints.
type AuthHandler struct {
	store      store.UserStore
	jwtService *auth.JWTService
	validate   *validator.Validate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s store.UserStore, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		store:      s,
		jwtService: jwtService,
		validate:   validator.New(),
	}
}

// RegisterRequest is the request body for POST /api/register.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the request body for POST /api/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is a sanitized user representation for API responses.
type UserResponse struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Avatar *uuid.UUID `json:"avatar,omitempty"`
}

func userToResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar,
	}
}

// Register handles POST /api/register. Creates an account and starts a
// session for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		UnprocessableEntity(w, "Name, valid email and a password of at least 8 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		InternalServerError(w, "Failed to hash password")
		return
	}

	user := &models.User{
		ID:    uuid.New(),
		Name:  req.Name,
		Email: req.Email,
		Hash:  string(hash),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			Conflict(w, "A user with this email already exists")
			return
		}
		InternalServerError(w, "Failed to create user")
		return
	}

	if !h.startSession(w, user.ID) {
		return
	}
	logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	WriteJSONCreated(w, userToResponse(user))
}

// Login handles POST /api/login. Verifies credentials and sets the session
// cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		BadRequest(w, "Email and password are required")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			Unauthorized(w, "Invalid email or password")
			return
		}
		InternalServerError(w, "Authentication failed")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(req.Password)) != nil {
		Unauthorized(w, "Invalid email or password")
		return
	}

	if !h.startSession(w, user.ID) {
		return
	}
	WriteJSONOK(w, userToResponse(user))
}

// Logout handles POST /api/logout. Clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ExpiredSessionCookie())
	w.WriteHeader(http.StatusOK)
}

// Me handles GET /api/users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			Unauthorized(w, "User not found")
			return
		}
		InternalServerError(w, "Failed to fetch user")
		return
	}
	WriteJSONOK(w, userToResponse(user))
}

func (h *AuthHandler) startSession(w http.ResponseWriter, userID uuid.UUID) bool {
	token, err := h.jwtService.GenerateSession(userID)
	if err != nil {
		InternalServerError(w, "Failed to create session")
		return false
	}
	http.SetCookie(w, auth.NewSessionCookie(token, h.jwtService.SessionDuration()))
	return true
}
