package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/umutdemirel/bookable/internal/auth"
	"github.com/umutdemirel/bookable/internal/storage"
	libauth "github.com/umutdemirel/bookable/libs/auth"
)

type userStore interface {
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
}

type AuthHandler struct {
	users     userStore
	jwtSecret string
	tokenTTL  time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(users userStore, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token      string `json:"token"`
	ExpiresAt  string `json:"expires_at"`
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error("user lookup failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now().UTC()
	expiresAt := now.Add(h.tokenTTL)
	token, err := libauth.SignHS256(libauth.Claims{
		Sub:        user.ID,
		BusinessID: user.BusinessID,
		Role:       user.Role,
		Iat:        now.Unix(),
		Exp:        expiresAt.Unix(),
	}, h.jwtSecret)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:      token,
		ExpiresAt:  expiresAt.Format(time.RFC3339),
		BusinessID: user.BusinessID,
		Role:       user.Role,
	})
}

type meResponse struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
}

// Me returns the account behind the presented token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.Sub)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("user lookup failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:         user.ID,
		BusinessID: user.BusinessID,
		Email:      user.Email,
		Role:       user.Role,
	})
}
