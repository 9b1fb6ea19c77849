package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/eventdesk/internal/auth"
	"github.com/dukerupert/eventdesk/internal/middleware"
	"github.com/dukerupert/eventdesk/internal/model"
	"github.com/dukerupert/eventdesk/internal/store"
)

const minPasswordLen = 8

type AuthHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	tokenTTL     time.Duration
	logger       *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		sessionStore: ss,
		tokenTTL:     tokenTTL,
		logger:       logger,
	}
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, u *model.User) {
	sess, err := h.sessionStore.Create(u.ID, h.tokenTTL)
	if err != nil {
		h.logger.Error("create session", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, status, model.Token{
		AccessToken: sess.Token,
		TokenType:   "bearer",
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
	})
}

// Register creates a participant account and returns a token for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	u, err := h.userStore.Create(req.Name, req.Email, req.Password, model.RoleParticipant)
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("register user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	h.logger.Info("user registered", "user_id", u.ID)
	h.issue(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, err := h.userStore.Authenticate(req.Email, req.Password)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		return
	}

	h.issue(w, http.StatusOK, u)
}

// Logout revokes the bearer token of the request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionStore.GetByToken(middleware.BearerToken(r))
	if err != nil {
		h.logger.Error("logout lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	if sess != nil {
		if err := h.sessionStore.Delete(sess.ID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
